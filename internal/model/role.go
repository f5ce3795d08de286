package model

// Role is the caller's role as asserted by the identity provider.
type Role string

const (
	RoleCandidate Role = "candidate"
	RoleAdmin     Role = "admin"
)

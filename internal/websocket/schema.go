package websocket

import (
	"time"

	"github.com/google/uuid"
	"github.com/stemsi/exstem-grading/internal/model"
)

// ─── Actions (Client → Server) ──────────────────────────────────────

type Action string

const (
	ActionAutosave Action = "autosave"
	ActionSubmit   Action = "submit"
	ActionPing     Action = "ping"
)

// RequestPayload is the single client message shape; fields not used by an
// action are ignored.
type RequestPayload struct {
	Action Action `json:"action"`
	// Answers maps question ID to option index. Merged on autosave, replaces
	// the stored sheet on submit. A submit without answers keeps what is stored.
	Answers map[string]int `json:"answers,omitempty"`
}

// ─── Events (Server → Client) ───────────────────────────────────────

type Event string

const (
	EventError     Event = "error"
	EventSaved     Event = "saved"
	EventSubmitted Event = "submitted"
	EventPong      Event = "pong"
)

// SavedResponse acknowledges an autosave.
type SavedResponse struct {
	Event            Event   `json:"event"`
	Version          int     `json:"version"`
	Answered         int     `json:"answered"`
	RemainingSeconds float64 `json:"remaining_seconds"`
}

// SubmittedResponse is sent once the attempt has left IN_PROGRESS, whether
// the candidate submitted it or the window closed during an autosave. Score
// is never included; candidates read it from the results endpoint after
// publication.
type SubmittedResponse struct {
	Event      Event               `json:"event"`
	AttemptID  uuid.UUID           `json:"attempt_id"`
	Status     model.AttemptStatus `json:"status"`
	ResolvedAs model.AttemptStatus `json:"resolved_as"`
	Late       bool                `json:"late"`
	At         *time.Time          `json:"at,omitempty"`
}

type ErrorResponse struct {
	Event Event  `json:"event"`
	Code  string `json:"code"`
	Error string `json:"error"`
}

type PongResponse struct {
	Event Event `json:"event"`
}

// NewSubmittedResponse builds the terminal event for a resolved attempt.
func NewSubmittedResponse(a *model.Attempt) SubmittedResponse {
	at := a.SubmittedAt
	if at == nil {
		at = a.AutoSubmittedAt
	}
	return SubmittedResponse{
		Event:      EventSubmitted,
		AttemptID:  a.ID,
		Status:     a.Status,
		ResolvedAs: a.ResolvedAs,
		Late:       a.Late,
		At:         at,
	}
}

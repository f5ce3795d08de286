package model

// Permission represents a string code for a specific administrative action.
// Permissions arrive embedded in the identity provider's admin token.
type Permission string

const (
	// PermissionResultsRead allows listing every result regardless of publication.
	PermissionResultsRead Permission = "results:read"

	// PermissionResultsPublish allows publishing and unpublishing results.
	PermissionResultsPublish Permission = "results:publish"

	// PermissionAttemptsSweep allows triggering the expiry sweep on demand.
	PermissionAttemptsSweep Permission = "attempts:sweep"

	// PermissionExamsMonitor allows attaching to the live attempt monitor.
	PermissionExamsMonitor Permission = "exams:monitor"

	// PermissionExamsRefresh allows invalidating the cached exam definition.
	PermissionExamsRefresh Permission = "exams:refresh_cache"
)

// AllPermissions is a slice of all available permissions.
var AllPermissions = []Permission{
	PermissionResultsRead,
	PermissionResultsPublish,
	PermissionAttemptsSweep,
	PermissionExamsMonitor,
	PermissionExamsRefresh,
}

// PermissionStrings returns AllPermissions as plain strings.
func PermissionStrings() []string {
	out := make([]string, len(AllPermissions))
	for i, p := range AllPermissions {
		out[i] = string(p)
	}
	return out
}

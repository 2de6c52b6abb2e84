// Package auth maps workflow roles to permission sets. The mapping is
// fixed at build time; role membership comes from the store.
package auth

// Permission names follow the "area:verb" convention used across the API.
const (
	PermIngestRead      = "ingest:read"
	PermIngestWrite     = "ingest:write"
	PermMatchRead       = "match:read"
	PermMatchExecute    = "match:execute"
	PermExceptionsRead  = "exceptions:read"
	PermExceptionsWrite = "exceptions:write"
	PermAdminRules      = "admin:rules"
	PermAuditRead       = "audit:read"
	PermAnalyticsRead   = "analytics:read"
)

var rolePermissions = map[string]map[string]bool{
	"admin": {
		PermIngestRead:      true,
		PermIngestWrite:     true,
		PermMatchRead:       true,
		PermMatchExecute:    true,
		PermExceptionsRead:  true,
		PermExceptionsWrite: true,
		PermAdminRules:      true,
		PermAuditRead:       true,
		PermAnalyticsRead:   true,
	},
	"operator_l1": {
		PermMatchRead:       true,
		PermExceptionsRead:  true,
		PermExceptionsWrite: true,
		PermAnalyticsRead:   true,
	},
	"operator_l2": {
		PermMatchRead:       true,
		PermExceptionsRead:  true,
		PermExceptionsWrite: true,
		PermAnalyticsRead:   true,
	},
	"auditor": {
		PermAuditRead:      true,
		PermMatchRead:      true,
		PermExceptionsRead: true,
		PermAnalyticsRead:  true,
	},
	"finance_viewer": {
		PermMatchRead:      true,
		PermExceptionsRead: true,
		PermAnalyticsRead:  true,
	},
}

// HasPermission reports whether any of the roles grants the permission.
func HasPermission(roles []string, permission string) bool {
	for _, role := range roles {
		if rolePermissions[role][permission] {
			return true
		}
	}
	return false
}

// KnownRole reports whether the role exists in the build-time mapping.
func KnownRole(role string) bool {
	_, ok := rolePermissions[role]
	return ok
}

package model

import "time"

// ProcessToken is a single-use credential binding one process/user pair for
// authenticating worker-originated requests. Once Completed is set, all
// subsequent verifications must fail.
type ProcessToken struct {
	Token     string    `json:"token"`
	ProcessID string    `json:"process_id"`
	UserID    string    `json:"user_id"`
	ExpiresAt time.Time `json:"expires_at"`
	Completed bool      `json:"completed"`
	CreatedAt time.Time `json:"created_at"`
}

// Expired reports whether the token is past its expiry at the given instant.
func (t ProcessToken) Expired(now time.Time) bool {
	return now.After(t.ExpiresAt)
}

// Worker API key permissions.
const (
	PermissionAutomation    = "automation"
	PermissionRefreshAPIKey = "refresh-api-key"
)

// WorkerAPIKey is a capability-scoped credential for the automation worker.
// Unlike a ProcessToken it is not bound to a single process; it carries named
// permissions and its own expiry/revocation flags.
type WorkerAPIKey struct {
	Key         string     `json:"key"`
	Name        string     `json:"name"`
	Permissions []string   `json:"permissions"`
	Revoked     bool       `json:"revoked"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

// HasPermission reports whether the key carries the named permission.
func (k WorkerAPIKey) HasPermission(perm string) bool {
	for _, p := range k.Permissions {
		if p == perm {
			return true
		}
	}
	return false
}

// Usable reports whether the key is neither revoked nor expired at now.
func (k WorkerAPIKey) Usable(now time.Time) bool {
	if k.Revoked {
		return false
	}
	if k.ExpiresAt != nil && now.After(*k.ExpiresAt) {
		return false
	}
	return true
}

package domain

import "time"

const (
	RoleAdmin   = "admin"
	RoleManager = "manager"
	RoleUser    = "user"
)

// ValidRole reports whether role belongs to the closed set of role tags.
func ValidRole(role string) bool {
	switch role {
	case RoleAdmin, RoleManager, RoleUser:
		return true
	}
	return false
}

// Identity is the cached user record mirrored from the backend platform.
// LastChecked is stamped whenever an authoritative lookup succeeds; the
// record is usable without re-verification only within the freshness window.
type Identity struct {
	ID          string    `json:"id"`
	Email       string    `json:"email"`
	DisplayName string    `json:"display_name"`
	Role        string    `json:"role"`
	TeamID      string    `json:"team_id,omitempty"`
	TeamName    string    `json:"team_name,omitempty"`
	LastChecked time.Time `json:"last_checked"`
}

// FreshAt reports whether the record is within the freshness window at now.
func (i *Identity) FreshAt(now time.Time, window time.Duration) bool {
	if i == nil || i.LastChecked.IsZero() {
		return false
	}
	return now.Sub(i.LastChecked) < window
}

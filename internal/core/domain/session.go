package domain

import "time"

// Session is the credential pair issued by the backend platform. The agent
// never mints or validates credentials; it only stores and forwards them.
type Session struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresAt    time.Time `json:"expires_at"`
	UserID       string    `json:"user_id,omitempty"`
	Email        string    `json:"email,omitempty"`
}

// ExpiredAt reports whether the access token has expired at now. A zero
// ExpiresAt means the expiry could not be determined and the session is
// treated as live until the platform rejects it.
func (s *Session) ExpiredAt(now time.Time) bool {
	if s == nil {
		return true
	}
	return !s.ExpiresAt.IsZero() && !now.Before(s.ExpiresAt)
}

// AuthChangeEvent names the platform's auth-state-change notifications.
type AuthChangeEvent string

const (
	AuthSignedIn       AuthChangeEvent = "SIGNED_IN"
	AuthSignedOut      AuthChangeEvent = "SIGNED_OUT"
	AuthTokenRefreshed AuthChangeEvent = "TOKEN_REFRESHED"
)

// AuthChange is delivered to auth-state subscribers.
type AuthChange struct {
	Event   AuthChangeEvent
	Session *Session
}

package ports

import (
	"context"

	"github.com/aditi-updates/session-agent/internal/core/domain"
)

// AuthGateway is the agent's view of the backend platform's auth surface.
// The platform owns session issuance and validation; the gateway only asks.
type AuthGateway interface {
	// Session returns the live session, refreshing it when expired.
	// Returns domain.ErrNoSession when none is held or recoverable.
	Session(ctx context.Context) (*domain.Session, error)
	// User performs an authoritative identity lookup against the platform.
	User(ctx context.Context) (*domain.Identity, error)
	// Refresh exchanges the refresh token for a new session.
	Refresh(ctx context.Context) (*domain.Session, error)
	SignOut(ctx context.Context) error
	// Subscribe registers fn for auth-state-change notifications.
	Subscribe(fn func(domain.AuthChange))
}

// TokenSource yields the current bearer token, if any. Implemented by the
// auth gateway and consumed by the guarded transport.
type TokenSource interface {
	AccessToken(ctx context.Context) (string, error)
}

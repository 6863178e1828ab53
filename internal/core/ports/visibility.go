package ports

import (
	"context"
	"time"

	"github.com/aditi-updates/session-agent/internal/core/domain"
)

// VisibilityEvent is one platform visibility transition for a tab.
// Route, when set, is the shell's current path at the time of the event.
type VisibilityEvent struct {
	TabID string
	State domain.VisibilityState
	At    time.Time
	Route string
}

// VisibilityProcessor consumes visibility events in per-tab order.
type VisibilityProcessor interface {
	Apply(ctx context.Context, ev VisibilityEvent) error
}

// Navigator performs a client-side (non-reloading) navigation. The sidecar
// default records the target route for the embedding shell to pick up.
type Navigator interface {
	Navigate(ctx context.Context, route string) error
}

package ports

import (
	"context"

	"github.com/aditi-updates/session-agent/internal/core/domain"
)

// SaveInput carries the partial fields merged over the store's defaults
// (tab id, last-active timestamp, current route) on every save.
type SaveInput struct {
	// Route replaces the tracked current route when non-empty.
	Route string
	// Extra is merged into the snapshot's extra fields.
	Extra map[string]string
}

// TabStateStore persists the per-tab snapshot. Every save replaces the
// prior persisted value; there is no merge with what is already stored.
type TabStateStore interface {
	// ID returns a stable identifier for the tab session's lifetime.
	ID() string
	Save(ctx context.Context, in SaveInput) error
	// Restore returns the last persisted snapshot, or false when the record
	// is absent or unreadable. Corruption is logged, never returned.
	Restore(ctx context.Context) (*domain.TabState, bool)
	// Route returns the currently tracked route.
	Route() string
}

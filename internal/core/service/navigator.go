package service

import (
	"context"

	"github.com/aditi-updates/session-agent/internal/core/domain"
	"github.com/aditi-updates/session-agent/internal/core/ports"
)

// RouteAnnouncer is the sidecar's Navigator: instead of touching a browser
// history API it re-points the tracked route and records the target in the
// snapshot, where the embedding shell picks it up on its next poll.
type RouteAnnouncer struct {
	store ports.TabStateStore
}

func NewRouteAnnouncer(store ports.TabStateStore) *RouteAnnouncer {
	return &RouteAnnouncer{store: store}
}

func (a *RouteAnnouncer) Navigate(ctx context.Context, route string) error {
	return a.store.Save(ctx, ports.SaveInput{
		Route: route,
		Extra: map[string]string{domain.ExtraNavigatingTo: route},
	})
}

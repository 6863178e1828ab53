package service

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/aditi-updates/session-agent/internal/api/metrics"
	"github.com/aditi-updates/session-agent/internal/core/domain"
	"github.com/aditi-updates/session-agent/internal/core/ports"
)

// identityPeeker is the narrow slice of the identity service the
// reconciler needs: whether an identity is currently held, without IO.
type identityPeeker interface {
	Peek() (*domain.Identity, bool)
}

// Reconciler drives the two-state foreground/background machine from
// ingested visibility events. On each transition it records a snapshot and,
// entering the foreground, arms the suppression guard and restores a
// previously saved route when allowed.
type Reconciler struct {
	store    ports.TabStateStore
	guard    *VisibilityGuard
	identity identityPeeker
	nav      ports.Navigator
	log      zerolog.Logger

	mu         sync.Mutex
	state      domain.VisibilityState
	disallowed map[string]struct{}
}

// disallowedRoutes are never restored on foreground: landing back on the
// home or login page is navigation the user has to do deliberately.
var disallowedRoutes = []string{"/", "/login"}

func NewReconciler(store ports.TabStateStore, guard *VisibilityGuard, identity identityPeeker, nav ports.Navigator, log zerolog.Logger) *Reconciler {
	disallowed := make(map[string]struct{}, len(disallowedRoutes))
	for _, r := range disallowedRoutes {
		disallowed[r] = struct{}{}
	}
	return &Reconciler{
		store:      store,
		guard:      guard,
		identity:   identity,
		nav:        nav,
		log:        log,
		state:      domain.Foreground,
		disallowed: disallowed,
	}
}

// Apply processes one visibility transition. Events repeating the current
// state are ignored. Storage failures are logged and swallowed: the guard
// works from memory even when persistence is down.
func (r *Reconciler) Apply(ctx context.Context, ev ports.VisibilityEvent) error {
	if !ev.State.Valid() {
		r.log.Warn().Str("state", string(ev.State)).Msg("unknown visibility state dropped")
		return nil
	}
	r.mu.Lock()
	if ev.State == r.state {
		r.mu.Unlock()
		r.log.Debug().Str("state", string(ev.State)).Msg("visibility state unchanged, ignoring")
		return nil
	}
	r.state = ev.State
	r.mu.Unlock()
	metrics.VisibilityEventsTotal.WithLabelValues(string(ev.State)).Inc()

	switch ev.State {
	case domain.Foreground:
		r.enterForeground(ctx, ev)
	case domain.Background:
		r.enterBackground(ctx, ev)
	}
	return nil
}

// State returns the machine's current visibility state.
func (r *Reconciler) State() domain.VisibilityState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// enterForeground arms the guard synchronously before anything else, so any
// code that runs after observing the transition sees the flag set.
func (r *Reconciler) enterForeground(ctx context.Context, ev ports.VisibilityEvent) {
	r.guard.Arm()

	prev, hadPrev := r.store.Restore(ctx)

	if err := r.store.Save(ctx, ports.SaveInput{
		Route: ev.Route,
		Extra: map[string]string{domain.ExtraLastVisible: ev.At.UTC().Format(time.RFC3339)},
	}); err != nil {
		r.log.Warn().Err(err).Msg("foreground snapshot not persisted, continuing statelessly")
	}

	if hadPrev {
		r.maybeRestoreRoute(ctx, prev)
	}

	r.log.Debug().Str("tab_id", ev.TabID).Msg("returned to foreground")
}

func (r *Reconciler) enterBackground(ctx context.Context, ev ports.VisibilityEvent) {
	extra := map[string]string{domain.ExtraLastHidden: ev.At.UTC().Format(time.RFC3339)}
	// hasAuth is recorded for diagnostics only; nothing gates on it.
	if _, held := r.identity.Peek(); held {
		extra[domain.ExtraHasAuth] = "true"
	}

	if err := r.store.Save(ctx, ports.SaveInput{Route: ev.Route, Extra: extra}); err != nil {
		r.log.Warn().Err(err).Msg("background snapshot not persisted, continuing statelessly")
	}

	r.log.Debug().Str("tab_id", ev.TabID).Msg("moved to background")
}

// maybeRestoreRoute performs a client-side navigation back to the saved
// route when it differs from the current one and is not disallowed.
func (r *Reconciler) maybeRestoreRoute(ctx context.Context, prev *domain.TabState) {
	target := prev.Route
	if target == "" || target == r.store.Route() {
		return
	}
	if _, blocked := r.disallowed[target]; blocked {
		return
	}

	if err := r.nav.Navigate(ctx, target); err != nil {
		r.log.Warn().Err(err).Str("route", target).Msg("route restore failed")
		return
	}
	r.log.Info().Str("route", target).Msg("restored saved route")
}

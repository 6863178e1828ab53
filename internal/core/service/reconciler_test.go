package service

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/aditi-updates/session-agent/internal/core/domain"
	"github.com/aditi-updates/session-agent/internal/core/ports"
	"github.com/aditi-updates/session-agent/internal/infrastructure/storage/memory"
)

// ---------------------------------------------------------------------------
// Stubs
// ---------------------------------------------------------------------------

type stubPeeker struct {
	id *domain.Identity
}

func (p *stubPeeker) Peek() (*domain.Identity, bool) {
	if p.id == nil {
		return nil, false
	}
	return p.id, true
}

type recordingNavigator struct {
	routes []string
}

func (n *recordingNavigator) Navigate(_ context.Context, route string) error {
	n.routes = append(n.routes, route)
	return nil
}

func newTestReconciler(peeker *stubPeeker) (*Reconciler, *TabStateStore, *VisibilityGuard, *recordingNavigator) {
	store := NewTabStateStore(memory.NewKV(), memory.NewKV(), zerolog.Nop())
	guard := NewVisibilityGuard(3 * time.Second)
	nav := &recordingNavigator{}
	r := NewReconciler(store, guard, peeker, nav, zerolog.Nop())
	return r, store, guard, nav
}

func ev(state domain.VisibilityState) ports.VisibilityEvent {
	return ports.VisibilityEvent{TabID: "tab-1", State: state, At: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func evAt(state domain.VisibilityState, route string) ports.VisibilityEvent {
	e := ev(state)
	e.Route = route
	return e
}

// ---------------------------------------------------------------------------
// Tests
// ---------------------------------------------------------------------------

func TestReconciler_ForegroundArmsGuard(t *testing.T) {
	r, _, guard, _ := newTestReconciler(&stubPeeker{})
	ctx := context.Background()

	if err := r.Apply(ctx, ev(domain.Background)); err != nil {
		t.Fatalf("hide: %v", err)
	}
	if guard.IsSuppressingNetwork() {
		t.Fatalf("guard must not arm on backgrounding")
	}

	if err := r.Apply(ctx, ev(domain.Foreground)); err != nil {
		t.Fatalf("show: %v", err)
	}
	if !guard.IsSuppressingNetwork() {
		t.Fatalf("guard must be armed at the moment of showing")
	}
	if r.State() != domain.Foreground {
		t.Fatalf("state = %s, want foreground", r.State())
	}
}

func TestReconciler_SnapshotsCarryTimestamps(t *testing.T) {
	r, store, _, _ := newTestReconciler(&stubPeeker{})
	ctx := context.Background()

	if err := r.Apply(ctx, ev(domain.Background)); err != nil {
		t.Fatalf("hide: %v", err)
	}
	state, ok := store.Restore(ctx)
	if !ok || state.Extra[domain.ExtraLastHidden] == "" {
		t.Fatalf("background snapshot missing last_hidden: %+v", state)
	}

	if err := r.Apply(ctx, ev(domain.Foreground)); err != nil {
		t.Fatalf("show: %v", err)
	}
	state, ok = store.Restore(ctx)
	if !ok || state.Extra[domain.ExtraLastVisible] == "" {
		t.Fatalf("foreground snapshot missing last_visible: %+v", state)
	}
}

func TestReconciler_BackgroundAnnotatesHeldIdentity(t *testing.T) {
	peeker := &stubPeeker{id: &domain.Identity{ID: "u1", Email: "a@aditi.example", Role: domain.RoleUser}}
	r, store, _, _ := newTestReconciler(peeker)
	ctx := context.Background()

	if err := r.Apply(ctx, ev(domain.Background)); err != nil {
		t.Fatalf("hide: %v", err)
	}
	state, ok := store.Restore(ctx)
	if !ok || state.Extra[domain.ExtraHasAuth] != "true" {
		t.Fatalf("expected has_auth annotation, got %+v", state)
	}
}

func TestReconciler_RestoresSavedRoute(t *testing.T) {
	r, _, _, nav := newTestReconciler(&stubPeeker{})
	ctx := context.Background()

	// The tab was hidden on /updates/today; the shell comes back on / after
	// a reload and should be sent back to where it was.
	if err := r.Apply(ctx, evAt(domain.Background, "/updates/today")); err != nil {
		t.Fatalf("hide: %v", err)
	}
	if err := r.Apply(ctx, evAt(domain.Foreground, "/")); err != nil {
		t.Fatalf("show: %v", err)
	}

	if len(nav.routes) != 1 || nav.routes[0] != "/updates/today" {
		t.Fatalf("expected restore to /updates/today, got %v", nav.routes)
	}
}

func TestReconciler_NeverRestoresDisallowedRoutes(t *testing.T) {
	for _, blocked := range []string{"/", "/login"} {
		r, _, _, nav := newTestReconciler(&stubPeeker{})
		ctx := context.Background()

		if err := r.Apply(ctx, evAt(domain.Background, blocked)); err != nil {
			t.Fatalf("hide: %v", err)
		}
		if err := r.Apply(ctx, evAt(domain.Foreground, "/updates")); err != nil {
			t.Fatalf("show: %v", err)
		}

		if len(nav.routes) != 0 {
			t.Fatalf("route %q must not be restored, navigated to %v", blocked, nav.routes)
		}
	}
}

func TestReconciler_IgnoresRepeatedState(t *testing.T) {
	r, store, _, _ := newTestReconciler(&stubPeeker{})
	ctx := context.Background()

	if err := r.Apply(ctx, ev(domain.Foreground)); err != nil {
		t.Fatalf("duplicate foreground: %v", err)
	}
	if _, ok := store.Restore(ctx); ok {
		t.Fatalf("no-op transition must not write a snapshot")
	}
}

func TestReconciler_DropsUnknownState(t *testing.T) {
	r, _, guard, _ := newTestReconciler(&stubPeeker{})
	e := ev("prerender")
	if err := r.Apply(context.Background(), e); err != nil {
		t.Fatalf("unknown state must be dropped, got %v", err)
	}
	if guard.IsSuppressingNetwork() {
		t.Fatalf("unknown state must not arm the guard")
	}
}

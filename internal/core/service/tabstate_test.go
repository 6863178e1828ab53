package service

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/aditi-updates/session-agent/internal/core/ports"
	"github.com/aditi-updates/session-agent/internal/infrastructure/storage/memory"
)

func newTestStore() (*TabStateStore, *memory.KV) {
	shared := memory.NewKV()
	s := NewTabStateStore(shared, memory.NewKV(), zerolog.Nop())
	return s, shared
}

func TestTabStateStore_RestoreAbsent(t *testing.T) {
	s, _ := newTestStore()
	if state, ok := s.Restore(context.Background()); ok || state != nil {
		t.Fatalf("expected absent on fresh store, got %+v", state)
	}
}

func TestTabStateStore_RestoreMalformed(t *testing.T) {
	s, shared := newTestStore()
	if err := shared.Set(context.Background(), tabStateKey, "{not json"); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if state, ok := s.Restore(context.Background()); ok || state != nil {
		t.Fatalf("malformed record must read as absent, got %+v", state)
	}
}

func TestTabStateStore_SaveOverwrites(t *testing.T) {
	s, _ := newTestStore()
	ctx := context.Background()

	if err := s.Save(ctx, ports.SaveInput{Route: "/updates", Extra: map[string]string{"first": "1"}}); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := s.Save(ctx, ports.SaveInput{Extra: map[string]string{"second": "2"}}); err != nil {
		t.Fatalf("save: %v", err)
	}

	state, ok := s.Restore(ctx)
	if !ok {
		t.Fatalf("expected record")
	}
	if state.Route != "/updates" {
		t.Fatalf("route not tracked across saves: %q", state.Route)
	}
	// Replacement, not merge: the first save's extra is gone.
	if _, stale := state.Extra["first"]; stale {
		t.Fatalf("persisted record merged with prior value: %+v", state.Extra)
	}
	if state.Extra["second"] != "2" {
		t.Fatalf("missing extra from latest save: %+v", state.Extra)
	}
}

func TestTabStateStore_IDStable(t *testing.T) {
	s, _ := newTestStore()
	first := s.ID()
	if first == "" {
		t.Fatalf("empty id")
	}
	for i := 0; i < 10; i++ {
		if got := s.ID(); got != first {
			t.Fatalf("id changed across calls: %q vs %q", got, first)
		}
	}
}

func TestTabStateStore_IDSurvivesSameTabRestart(t *testing.T) {
	shared := memory.NewKV()
	tab := memory.NewKV()

	a := NewTabStateStore(shared, tab, zerolog.Nop())
	id := a.ID()

	// Same per-tab storage, as after a reload of the same tab.
	b := NewTabStateStore(shared, tab, zerolog.Nop())
	if got := b.ID(); got != id {
		t.Fatalf("id not restored from per-tab storage: %q vs %q", got, id)
	}

	// A brand-new tab gets its own.
	c := NewTabStateStore(shared, memory.NewKV(), zerolog.Nop())
	if got := c.ID(); got == id {
		t.Fatalf("distinct tabs produced the same id %q", got)
	}
}

func TestTabStateStore_ConcurrentTabsLastWriterWins(t *testing.T) {
	shared := memory.NewKV()
	ctx := context.Background()

	tabA := NewTabStateStore(shared, memory.NewKV(), zerolog.Nop())
	tabB := NewTabStateStore(shared, memory.NewKV(), zerolog.Nop())
	tabA.now = func() time.Time { return time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC) }
	tabB.now = func() time.Time { return time.Date(2025, 6, 1, 12, 0, 1, 0, time.UTC) }

	if err := tabA.Save(ctx, ports.SaveInput{Route: "/updates"}); err != nil {
		t.Fatalf("save a: %v", err)
	}
	if err := tabB.Save(ctx, ports.SaveInput{Route: "/team"}); err != nil {
		t.Fatalf("save b: %v", err)
	}

	state, ok := tabA.Restore(ctx)
	if !ok {
		t.Fatalf("expected record")
	}
	if state.TabID != tabB.ID() || state.Route != "/team" {
		t.Fatalf("expected tab B's write to win wholesale, got %+v", state)
	}
}

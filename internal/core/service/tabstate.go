package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/aditi-updates/session-agent/internal/core/domain"
	"github.com/aditi-updates/session-agent/internal/core/ports"
)

const (
	tabStateKey = "aditi:tab-state"
	tabIDKey    = "aditi:tab-id"
)

// TabStateStore persists the per-tab snapshot to shared durable storage and
// keeps the tab identifier in per-tab storage. Concurrent tabs overwrite
// each other's snapshot under the same key; that race is accepted.
type TabStateStore struct {
	shared ports.KV
	tab    ports.KV
	log    zerolog.Logger
	now    func() time.Time

	mu    sync.Mutex
	id    string
	route string
}

func NewTabStateStore(shared, tab ports.KV, log zerolog.Logger) *TabStateStore {
	return &TabStateStore{
		shared: shared,
		tab:    tab,
		log:    log,
		now:    time.Now,
		route:  "/",
	}
}

// ID returns the tab identifier, generating and caching it on first use.
// The identifier survives reconnects of the same tab session but a new tab
// gets its own. A per-tab storage failure degrades to an in-memory id that
// is still stable for the process lifetime.
func (s *TabStateStore) ID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ensureID()
}

// ensureID resolves the tab identifier. Caller holds the mutex.
func (s *TabStateStore) ensureID() string {
	if s.id != "" {
		return s.id
	}

	ctx := context.Background()
	if cached, ok, err := s.tab.Get(ctx, tabIDKey); err == nil && ok && cached != "" {
		s.id = cached
		return s.id
	}

	s.id = fmt.Sprintf("%d-%s", s.now().UnixMilli(), uuid.NewString()[:8])
	if err := s.tab.Set(ctx, tabIDKey, s.id); err != nil {
		s.log.Warn().Err(err).Msg("tab id not cached, keeping in-memory id")
	}
	return s.id
}

// Save merges the given fields over {tab id, last-active: now, route:
// current} and replaces the persisted record. It never merges with the
// previously persisted value.
func (s *TabStateStore) Save(ctx context.Context, in ports.SaveInput) error {
	s.mu.Lock()
	if in.Route != "" {
		s.route = in.Route
	}
	state := domain.TabState{
		TabID:      s.ensureID(),
		LastActive: s.now(),
		Route:      s.route,
	}
	s.mu.Unlock()

	if len(in.Extra) > 0 {
		state.Extra = make(map[string]string, len(in.Extra))
		for k, v := range in.Extra {
			state.Extra[k] = v
		}
	}

	raw, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("tab state marshal: %w", err)
	}
	if err := s.shared.Set(ctx, tabStateKey, string(raw)); err != nil {
		return fmt.Errorf("tab state save: %w", err)
	}
	return nil
}

// Restore returns the last persisted snapshot. Absence, storage failure,
// and malformed JSON all read as "no snapshot"; corruption is logged,
// never surfaced.
func (s *TabStateStore) Restore(ctx context.Context) (*domain.TabState, bool) {
	value, ok, err := s.shared.Get(ctx, tabStateKey)
	if err != nil {
		s.log.Warn().Err(err).Msg("tab state read failed")
		return nil, false
	}
	if !ok {
		return nil, false
	}

	var state domain.TabState
	if err := json.Unmarshal([]byte(value), &state); err != nil {
		s.log.Warn().Err(err).Msg("tab state malformed, treating as absent")
		return nil, false
	}
	return &state, true
}

// Route returns the currently tracked route.
func (s *TabStateStore) Route() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.route
}

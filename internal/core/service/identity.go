package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/aditi-updates/session-agent/internal/api/metrics"
	"github.com/aditi-updates/session-agent/internal/core/domain"
	"github.com/aditi-updates/session-agent/internal/core/ports"
)

// networkSuppressor is what the identity service needs from the guard.
type networkSuppressor interface {
	IsSuppressingNetwork() bool
}

// IdentityService is the two-tier identity repository: a persistent cache
// with an explicit freshness predicate in front of the authoritative
// platform lookup. Callers choose a lookup policy instead of branching on
// ambient flags.
type IdentityService struct {
	cache     ports.IdentityCache
	gw        ports.AuthGateway
	guard     networkSuppressor
	freshness time.Duration
	// loadBound caps every authoritative lookup; past it the lookup is
	// abandoned and loading state force-cleared, whatever the outcome.
	loadBound time.Duration
	log       zerolog.Logger
	now       func() time.Time

	mu      sync.Mutex
	current *domain.Identity
	loading bool
}

func NewIdentityService(cache ports.IdentityCache, gw ports.AuthGateway, guard networkSuppressor, freshness, loadBound time.Duration, log zerolog.Logger) *IdentityService {
	if freshness <= 0 {
		freshness = 2 * time.Hour
	}
	if loadBound <= 0 {
		loadBound = 15 * time.Second
	}
	return &IdentityService{
		cache:     cache,
		gw:        gw,
		guard:     guard,
		freshness: freshness,
		loadBound: loadBound,
		log:       log,
		now:       time.Now,
	}
}

// Resolve returns the identity under the given policy.
//
// While the suppression window is active, cache-tolerant policies serve a
// fresh cached record without network, and return ErrNetworkSuppressed when
// none exists rather than issue a call. AuthoritativeOnly is an explicit
// caller choice and always goes to the platform.
func (s *IdentityService) Resolve(ctx context.Context, policy ports.LookupPolicy) (*domain.Identity, error) {
	switch policy {
	case ports.AuthoritativeOnly:
		return s.authoritative(ctx, policy)

	case ports.CacheFirst:
		if cached := s.cached(ctx); cached != nil {
			metrics.IdentityLookupsTotal.WithLabelValues(string(policy), "cache").Inc()
			return cached, nil
		}
		if s.guard.IsSuppressingNetwork() {
			metrics.IdentityLookupsTotal.WithLabelValues(string(policy), "suppressed").Inc()
			return nil, domain.ErrNetworkSuppressed
		}
		return s.authoritative(ctx, policy)

	case ports.CacheIfFreshElseAuthoritative, "":
		cached := s.cached(ctx)
		if cached.FreshAt(s.now(), s.freshness) {
			metrics.IdentityLookupsTotal.WithLabelValues(string(ports.CacheIfFreshElseAuthoritative), "cache").Inc()
			return cached, nil
		}
		if s.guard.IsSuppressingNetwork() {
			metrics.IdentityLookupsTotal.WithLabelValues(string(ports.CacheIfFreshElseAuthoritative), "suppressed").Inc()
			return nil, domain.ErrNetworkSuppressed
		}
		return s.authoritative(ctx, ports.CacheIfFreshElseAuthoritative)

	default:
		return nil, fmt.Errorf("unknown lookup policy %q", policy)
	}
}

// Peek returns the in-memory last-known identity without any IO.
func (s *IdentityService) Peek() (*domain.Identity, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return nil, false
	}
	id := *s.current
	return &id, true
}

// Loading reports whether an authoritative lookup is in flight.
func (s *IdentityService) Loading() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loading
}

// SignOut delegates to the platform and clears both cache tiers.
func (s *IdentityService) SignOut(ctx context.Context) error {
	err := s.gw.SignOut(ctx)
	s.clear(ctx)
	return err
}

// OnAuthChange keeps the in-memory tier in step with the platform's
// auth-state notifications. Wired to the gateway subscription at startup.
func (s *IdentityService) OnAuthChange(change domain.AuthChange) {
	if change.Event == domain.AuthSignedOut {
		s.clear(context.Background())
	}
}

// ---------------------------------------------------------------------------

// cached reads the persistent tier. Any failure reads as absence.
func (s *IdentityService) cached(ctx context.Context) *domain.Identity {
	id, err := s.cache.Get(ctx)
	if err != nil {
		if !errors.Is(err, domain.ErrNoIdentity) {
			s.log.Warn().Err(err).Msg("identity cache read failed, treating as absent")
		}
		return nil
	}
	s.mu.Lock()
	s.current = id
	s.mu.Unlock()
	return id
}

// authoritative asks the platform, bounded by loadBound. An answer without
// usable identity fields clears the cache instead of guessing.
func (s *IdentityService) authoritative(ctx context.Context, policy ports.LookupPolicy) (*domain.Identity, error) {
	s.mu.Lock()
	s.loading = true
	s.mu.Unlock()
	defer func() {
		// Force-clear: no outcome may leave the loading state stuck.
		s.mu.Lock()
		s.loading = false
		s.mu.Unlock()
	}()

	ctx, cancel := context.WithTimeout(ctx, s.loadBound)
	defer cancel()

	start := s.now()
	id, err := s.gw.User(ctx)
	metrics.IdentityLookupDuration.Observe(time.Since(start).Seconds())

	if err != nil {
		if errors.Is(err, domain.ErrNoIdentity) {
			s.log.Info().Msg("platform returned identity without usable fields, clearing cache")
			s.clear(ctx)
			metrics.IdentityLookupsTotal.WithLabelValues(string(policy), "error").Inc()
			return nil, domain.ErrNoIdentity
		}
		metrics.IdentityLookupsTotal.WithLabelValues(string(policy), "error").Inc()
		return nil, err
	}

	id.LastChecked = s.now()
	if err := s.cache.Put(ctx, id); err != nil {
		s.log.Warn().Err(err).Msg("identity cache write failed")
	}

	s.mu.Lock()
	s.current = id
	s.mu.Unlock()

	metrics.IdentityLookupsTotal.WithLabelValues(string(policy), "authoritative").Inc()
	out := *id
	return &out, nil
}

func (s *IdentityService) clear(ctx context.Context) {
	s.mu.Lock()
	s.current = nil
	s.mu.Unlock()
	if err := s.cache.Delete(ctx); err != nil {
		s.log.Warn().Err(err).Msg("identity cache clear failed")
	}
}

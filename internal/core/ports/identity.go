package ports

import (
	"context"

	"github.com/aditi-updates/session-agent/internal/core/domain"
)

// LookupPolicy selects how an identity resolution balances the local cache
// against the authoritative platform lookup. Callers pick a policy instead
// of branching on ambient flags.
type LookupPolicy string

const (
	// CacheFirst serves any cached record, fresh or stale, before going
	// to the network.
	CacheFirst LookupPolicy = "cache_first"
	// AuthoritativeOnly always performs the platform lookup.
	AuthoritativeOnly LookupPolicy = "authoritative_only"
	// CacheIfFreshElseAuthoritative serves the cache within the freshness
	// window and falls through to the platform otherwise.
	CacheIfFreshElseAuthoritative LookupPolicy = "cache_if_fresh"
)

// IdentityCache is the persistent tier of the identity repository.
// Get returns domain.ErrNoIdentity when no record is stored.
type IdentityCache interface {
	Get(ctx context.Context) (*domain.Identity, error)
	Put(ctx context.Context, id *domain.Identity) error
	Delete(ctx context.Context) error
}

// IdentityService is the two-tier identity repository.
type IdentityService interface {
	Resolve(ctx context.Context, policy LookupPolicy) (*domain.Identity, error)
	// Peek returns the in-memory last-known identity without any IO.
	Peek() (*domain.Identity, bool)
	SignOut(ctx context.Context) error
}

package ports

import "context"

// KV is the synchronous string key/value contract shared by the durable
// per-origin store and the per-tab store. Neither enforces a TTL; freshness
// checks are the caller's responsibility.
type KV interface {
	// Get returns the value for key and whether it was present.
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
	// Keys returns every existing key with the given prefix. The scan is
	// bounded by the number of existing keys.
	Keys(ctx context.Context, prefix string) ([]string, error)
}

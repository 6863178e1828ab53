package config

import (
	"context"
	"fmt"
	"time"

	"github.com/sethvargo/go-envconfig"
)

type Config struct {
	Port     string `env:"PORT,      default=8090"`
	Env      string `env:"ENV,       default=development"`
	LogLevel string `env:"LOG_LEVEL, default=info"`

	// AgentToken, when set, is required as a bearer token on the agent's
	// own /v1 endpoints. Empty disables the check (local development).
	AgentToken string `env:"AGENT_TOKEN"`

	Backend BackendConfig
	Windows WindowConfig
	Redis   RedisConfig
	Mongo   MongoConfig
}

// BackendConfig describes the hosted auth/database platform the agent
// fronts. The platform is consumed as a black box.
type BackendConfig struct {
	URL     string `env:"BACKEND_URL, default=http://localhost:54321"`
	AnonKey string `env:"BACKEND_ANON_KEY"`
	// SessionKey is the shared-storage key the platform's persisted
	// session is written under.
	SessionKey string `env:"BACKEND_SESSION_KEY, default=sb-aditi-auth-token"`
	// KeyPrefixes are the naming patterns scanned when discovering a
	// persisted session in shared storage.
	KeyPrefixes []string `env:"BACKEND_KEY_PREFIXES, default=sb-,supabase.auth."`
	// SealKey is the 32-byte hex key used to seal session material at
	// rest. Empty stores session material in the clear.
	SealKey string `env:"BACKEND_SEAL_KEY"`
	// SignOutOnRetryFailure forces a sign-out when a refreshed retry
	// still fails.
	SignOutOnRetryFailure bool `env:"BACKEND_SIGNOUT_ON_RETRY_FAILURE, default=false"`
}

// WindowConfig holds the subsystem's time bounds.
type WindowConfig struct {
	// Returning is how long the network-suppression flag stays armed
	// after a background-to-foreground transition.
	Returning time.Duration `env:"RETURNING_WINDOW, default=3s"`
	// Freshness is the maximum age at which a cached identity is usable
	// without re-verification.
	Freshness time.Duration `env:"FRESHNESS_WINDOW, default=2h"`
	// LoadBound is the ceiling on any authoritative lookup, after which
	// loading state is force-cleared.
	LoadBound time.Duration `env:"LOAD_BOUND, default=15s"`
}

type RedisConfig struct {
	Addr string `env:"REDIS_ADDR, default=localhost:6379"`
	DB   int    `env:"REDIS_DB,   default=0"`
}

type MongoConfig struct {
	URI      string `env:"MONGO_URI, default=mongodb://localhost:27017"`
	Database string `env:"MONGO_DB,  default=aditi_session_agent"`
}

// Load reads configuration from environment variables using go-envconfig.
func Load(ctx context.Context) (*Config, error) {
	var cfg Config
	if err := envconfig.Process(ctx, &cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return &cfg, nil
}

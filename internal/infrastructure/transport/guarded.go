// Package transport provides the single outbound choke point. The guarded
// transport is wired once at startup; downstream callers hold a plain
// *http.Client and are unaware of the wrapping.
package transport

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/aditi-updates/session-agent/internal/api/metrics"
	"github.com/aditi-updates/session-agent/internal/core/ports"
	"github.com/aditi-updates/session-agent/internal/infrastructure/storage"
)

// Options configures the guarded transport.
type Options struct {
	// BackendHosts are the hosts that receive a bearer credential.
	BackendHosts []string
	// KeyPrefixes are the shared-storage naming patterns scanned when the
	// live session yields no token.
	KeyPrefixes []string
}

// Guarded is an http.RoundTripper decorator. Every request passes through
// unmodified; the only job left is attaching a bearer credential to
// known-backend requests when one is available. It never fabricates
// responses and never blocks beyond a bounded storage scan.
type Guarded struct {
	base   http.RoundTripper
	source ports.TokenSource
	kv     ports.KV
	sealer *storage.Sealer
	hosts  map[string]struct{}
	opts   Options
	log    zerolog.Logger
}

// NewGuarded decorates base. source may yield no token; kv is scanned as a
// fallback. sealer may be nil when persisted values are stored in the clear.
func NewGuarded(base http.RoundTripper, source ports.TokenSource, kv ports.KV, sealer *storage.Sealer, opts Options, log zerolog.Logger) *Guarded {
	if base == nil {
		base = http.DefaultTransport
	}
	hosts := make(map[string]struct{}, len(opts.BackendHosts))
	for _, h := range opts.BackendHosts {
		hosts[h] = struct{}{}
	}
	return &Guarded{base: base, source: source, kv: kv, sealer: sealer, hosts: hosts, opts: opts, log: log}
}

// RoundTrip implements http.RoundTripper. Per the RoundTripper contract the
// incoming request is never mutated; header changes go on a clone.
func (g *Guarded) RoundTrip(req *http.Request) (*http.Response, error) {
	if _, known := g.hosts[req.URL.Host]; !known {
		metrics.TransportRequestsTotal.WithLabelValues("foreign").Inc()
		return g.base.RoundTrip(req)
	}

	if req.Header.Get("Authorization") != "" {
		metrics.TransportRequestsTotal.WithLabelValues("preset").Inc()
		return g.base.RoundTrip(req)
	}

	token := g.discoverToken(req)
	if token == "" {
		metrics.TransportRequestsTotal.WithLabelValues("anonymous").Inc()
		g.log.Warn().Str("host", req.URL.Host).Str("path", req.URL.Path).
			Msg("no token available, forwarding request without credential")
		return g.base.RoundTrip(req)
	}

	clone := req.Clone(req.Context())
	clone.Header.Set("Authorization", "Bearer "+token)
	metrics.TransportRequestsTotal.WithLabelValues("attached").Inc()
	return g.base.RoundTrip(clone)
}

// discoverToken resolves a bearer token in fixed order: the live in-memory
// session first, then a bounded scan of shared storage for keys matching the
// platform's persisted-session naming patterns.
func (g *Guarded) discoverToken(req *http.Request) string {
	ctx := req.Context()

	if g.source != nil {
		token, err := g.source.AccessToken(ctx)
		if err == nil && token != "" {
			metrics.TokenDiscoveryTotal.WithLabelValues("live").Inc()
			return token
		}
		if err != nil {
			g.log.Debug().Err(err).Msg("live session yielded no token")
		}
	}

	if g.kv != nil {
		for _, prefix := range g.opts.KeyPrefixes {
			keys, err := g.kv.Keys(ctx, prefix)
			if err != nil {
				g.log.Warn().Err(err).Str("prefix", prefix).Msg("storage scan failed")
				continue
			}
			for _, key := range keys {
				if token := g.tokenFromStorage(ctx, key); token != "" {
					metrics.TokenDiscoveryTotal.WithLabelValues("storage").Inc()
					return token
				}
			}
		}
	}

	metrics.TokenDiscoveryTotal.WithLabelValues("none").Inc()
	return ""
}

// tokenFromStorage extracts an access token from one persisted session
// value. Unreadable or malformed values are treated as absent.
func (g *Guarded) tokenFromStorage(ctx context.Context, key string) string {
	value, ok, err := g.kv.Get(ctx, key)
	if err != nil || !ok {
		return ""
	}

	raw := []byte(value)
	if g.sealer != nil {
		raw, err = g.sealer.Open(value)
		if err != nil {
			g.log.Debug().Str("key", key).Msg("persisted value unreadable, skipping")
			return ""
		}
	}

	var persisted struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.Unmarshal(raw, &persisted); err != nil {
		return ""
	}
	return persisted.AccessToken
}

// Package metrics defines all custom Prometheus metrics for the session
// agent. It is the single source of truth for metric names, labels, and
// help strings. Metrics register with the default registry via promauto.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "sessionagent"

// ── Visibility metrics ────────────────────────────────────────────────────────

// VisibilityEventsTotal counts ingested visibility transitions.
// Label:
//   - state: "visible" or "hidden"
var VisibilityEventsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "visibility_events_total",
		Help:      "Total number of visibility transitions ingested.",
	},
	[]string{"state"},
)

// GuardArmsTotal counts how often the returning-from-background flag was armed.
var GuardArmsTotal = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "guard_arms_total",
		Help:      "Total number of times the network-suppression guard was armed.",
	},
)

// QueueDepth tracks the current number of events waiting in each worker channel.
// Label:
//   - worker_id: numeric worker index (e.g. "0", "1", …)
var QueueDepth = promauto.NewGaugeVec(
	prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "queue_depth",
		Help:      "Current number of events pending in each dispatcher worker channel.",
	},
	[]string{"worker_id"},
)

// ── Transport metrics ─────────────────────────────────────────────────────────

// TransportRequestsTotal counts requests passed through the guarded transport.
// Label:
//   - outcome: "attached", "preset", "anonymous", or "foreign"
var TransportRequestsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "transport_requests_total",
		Help:      "Total number of requests passed through the guarded transport.",
	},
	[]string{"outcome"},
)

// TokenDiscoveryTotal counts token discovery attempts by winning source.
// Label:
//   - source: "live", "storage", or "none"
var TokenDiscoveryTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "token_discovery_total",
		Help:      "Total number of token discovery attempts, by winning source.",
	},
	[]string{"source"},
)

// ── Identity metrics ──────────────────────────────────────────────────────────

// IdentityLookupsTotal counts identity resolutions.
// Labels:
//   - policy: requested lookup policy
//   - source: "cache", "authoritative", "suppressed", or "error"
var IdentityLookupsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "identity_lookups_total",
		Help:      "Total number of identity resolutions, by policy and serving source.",
	},
	[]string{"policy", "source"},
)

// IdentityLookupDuration measures authoritative lookup latency.
var IdentityLookupDuration = promauto.NewHistogram(
	prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "identity_lookup_duration_seconds",
		Help:      "Duration of authoritative identity lookups.",
		Buckets:   prometheus.DefBuckets,
	},
)

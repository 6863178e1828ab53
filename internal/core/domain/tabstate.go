package domain

import "time"

// VisibilityState is the two-valued platform visibility signal.
type VisibilityState string

const (
	Foreground VisibilityState = "visible"
	Background VisibilityState = "hidden"
)

// Valid reports whether s is one of the two known visibility states.
func (s VisibilityState) Valid() bool {
	return s == Foreground || s == Background
}

// TabState is the per-tab snapshot written to the shared durable store.
// Tabs under the same origin write to the same key; last writer wins and
// no component may assume its write survived another tab's next write.
type TabState struct {
	TabID      string            `json:"tab_id"`
	LastActive time.Time         `json:"last_active"`
	Route      string            `json:"route"`
	Extra      map[string]string `json:"extra,omitempty"`
}

// Well-known Extra keys. Callers are free to merge arbitrary fields; these
// are the ones the reconciler itself writes.
const (
	ExtraLastVisible  = "last_visible"
	ExtraLastHidden   = "last_hidden"
	ExtraHasAuth      = "has_auth"
	ExtraNavigatingTo = "navigating_to"
)

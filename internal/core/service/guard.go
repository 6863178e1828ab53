package service

import (
	"sync"
	"time"

	"github.com/aditi-updates/session-agent/internal/api/metrics"
)

// VisibilityGuard owns the returning-from-background condition as an
// explicit (armedAt, window) pair. Nothing outside this object can extend
// the window: re-arming restarts the timer, and expiry is computed on read
// rather than cleared by anyone else.
type VisibilityGuard struct {
	mu      sync.Mutex
	armedAt time.Time
	window  time.Duration
	now     func() time.Time
}

func NewVisibilityGuard(window time.Duration) *VisibilityGuard {
	return &VisibilityGuard{window: window, now: time.Now}
}

// Arm marks a background-to-foreground transition. Restart semantics: an
// Arm before expiry resets the timer, it never extends an old one.
func (g *VisibilityGuard) Arm() {
	g.mu.Lock()
	g.armedAt = g.now()
	g.mu.Unlock()
	metrics.GuardArmsTotal.Inc()
}

// IsSuppressingNetwork reports whether the condition is active right now.
// True for all reads in [armedAt, armedAt+window), false from expiry on.
func (g *VisibilityGuard) IsSuppressingNetwork() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.armedAt.IsZero() {
		return false
	}
	elapsed := g.now().Sub(g.armedAt)
	return elapsed >= 0 && elapsed < g.window
}

// Window returns the configured suppression window.
func (g *VisibilityGuard) Window() time.Duration {
	return g.window
}

// ArmedAt returns when the guard was last armed, zero if never.
func (g *VisibilityGuard) ArmedAt() time.Time {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.armedAt
}

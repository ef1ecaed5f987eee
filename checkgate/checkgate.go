// Package checkgate throttles background update checks. User-initiated
// checks are never rate limited; the only thing that can stop those is the
// engine itself reporting it cannot check right now.
package checkgate

import (
	"sync"
	"time"
)

// DefaultMinimumInterval is the shortest gap allowed between background
// checks.
const DefaultMinimumInterval = 5 * time.Minute

// Gate tracks when an update check last ran. Safe for concurrent use: the
// background timer and user menu actions hit the same instance.
type Gate struct {
	clock func() time.Time

	mu        sync.Mutex
	lastCheck time.Time
}

// New creates a Gate. A nil clock defaults to time.Now.
func New(clock func() time.Time) *Gate {
	if clock == nil {
		clock = time.Now
	}
	return &Gate{clock: clock}
}

// RecordCheck notes that a check ran now. Callers invoke it each time they
// actually ask the engine, regardless of the result.
func (g *Gate) RecordCheck() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.lastCheck = g.clock()
}

// CanStartCheck reports whether a check may run given the engine's
// availability flag and a minimum interval since the previous check. A gate
// that has never recorded a check always passes the interval test.
func (g *Gate) CanStartCheck(engineAvailable bool, minimumInterval time.Duration) bool {
	if !engineAvailable {
		return false
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if g.lastCheck.IsZero() {
		return true
	}
	return g.clock().Sub(g.lastCheck) >= minimumInterval
}

// CanStartBackgroundCheck applies the default minimum interval.
func (g *Gate) CanStartBackgroundCheck(engineAvailable bool) bool {
	return g.CanStartCheck(engineAvailable, DefaultMinimumInterval)
}

// CanStartUserCheck gates an explicit user action. Rate limiting never
// applies; only the engine's own availability matters.
func (g *Gate) CanStartUserCheck(engineAvailable *bool) bool {
	// An absent availability signal is treated as available rather than
	// silently swallowing a user's click.
	if engineAvailable == nil {
		return true
	}
	return *engineAvailable
}

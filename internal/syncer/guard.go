// Package syncer pushes local board changes to the store and shields freshly
// written records from stale remote echoes.
package syncer

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/codr1/courtqueue/internal/models"
)

const (
	DefaultEchoGrace = 2 * time.Second
	DefaultMaxHold   = time.Minute
)

// PlayerKey and CourtKey build guard keys.
func PlayerKey(id string) string { return "player:" + id }

func CourtKey(court models.CourtID) string { return "court:" + string(court) }

// Guard is the pending-write set. A held key shields its record from remote
// snapshots until the write is confirmed and the echo grace has passed, or
// until MaxHold elapses without a confirmation.
type Guard struct {
	clock   clockwork.Clock
	grace   time.Duration
	maxHold time.Duration

	mu      sync.Mutex
	entries map[string]time.Time
}

func NewGuard(clock clockwork.Clock, grace, maxHold time.Duration) *Guard {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if grace < 0 {
		grace = DefaultEchoGrace
	}
	if maxHold <= 0 {
		maxHold = DefaultMaxHold
	}
	return &Guard{clock: clock, grace: grace, maxHold: maxHold, entries: make(map[string]time.Time)}
}

// Hold marks keys as written locally and not yet confirmed.
func (g *Guard) Hold(keys ...string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	deadline := g.clock.Now().Add(g.maxHold)
	for _, key := range keys {
		g.entries[key] = deadline
	}
}

// Confirm starts the echo grace for keys the store has acknowledged.
func (g *Guard) Confirm(keys ...string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	deadline := g.clock.Now().Add(g.grace)
	for _, key := range keys {
		if _, ok := g.entries[key]; ok {
			g.entries[key] = deadline
		}
	}
}

// Rekey moves a hold from a temporary id to the store-assigned one.
func (g *Guard) Rekey(oldKey, newKey string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if deadline, ok := g.entries[oldKey]; ok {
		delete(g.entries, oldKey)
		g.entries[newKey] = deadline
	}
}

func (g *Guard) Holding(key string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	deadline, ok := g.entries[key]
	if !ok {
		return false
	}
	if !g.clock.Now().Before(deadline) {
		delete(g.entries, key)
		return false
	}
	return true
}

// Sweep drops expired entries and returns how many remain.
func (g *Guard) Sweep() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	now := g.clock.Now()
	for key, deadline := range g.entries {
		if !now.Before(deadline) {
			delete(g.entries, key)
		}
	}
	return len(g.entries)
}

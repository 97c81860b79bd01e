package mirror

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

const DefaultTTL = time.Hour

// ShouldRefresh reports whether data last refreshed at last is stale at now.
func ShouldRefresh(last, now time.Time, ttl time.Duration) bool {
	return now.Sub(last) >= ttl
}

// Gate lets at most one refresh cycle run per TTL window.
//
// The in-flight flag lives in the process; the timestamp lives in the
// StateStore so that several processes sharing a cache also share the window.
type Gate struct {
	state    StateStore
	ttl      time.Duration
	now      func() time.Time
	inFlight atomic.Bool
}

func NewGate(state StateStore, ttl time.Duration) *Gate {
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	return &Gate{
		state: state,
		ttl:   ttl,
		now:   time.Now,
	}
}

// TryAcquire claims the next refresh cycle. On true the timestamp has
// already been advanced and the caller must call Release when the cycle ends.
//
// Any failure of the state store reads as "not stale".
func (g *Gate) TryAcquire(ctx context.Context) bool {
	return g.acquire(ctx, false)
}

// Claim takes the gate whether or not the data is stale. It still refuses
// while another cycle in this process holds the gate, and still advances the
// timestamp so that readers don't follow up with a cycle of their own.
func (g *Gate) Claim(ctx context.Context) bool {
	return g.acquire(ctx, true)
}

func (g *Gate) acquire(ctx context.Context, force bool) bool {
	if !g.inFlight.CompareAndSwap(false, true) {
		return false
	}

	acquired := false
	defer func() {
		if !acquired {
			g.inFlight.Store(false)
		}
	}()

	last, err := g.state.LastRefreshed(ctx)
	if err != nil {
		slog.ErrorContext(ctx, "error reading refresh timestamp", "error", err)
		return false
	}
	now := g.now()
	if !force && !ShouldRefresh(last, now, g.ttl) {
		return false
	}

	ok, err := g.state.AdvanceLastRefreshed(ctx, last, now)
	if err != nil {
		slog.ErrorContext(ctx, "error advancing refresh timestamp", "error", err)
		return false
	}
	// A forced cycle runs even when another process moved the timestamp first
	acquired = ok || force

	return acquired
}

// Release ends the cycle claimed by TryAcquire.
func (g *Gate) Release() {
	g.inFlight.Store(false)
}

// InFlight reports whether a cycle currently holds the gate.
func (g *Gate) InFlight() bool {
	return g.inFlight.Load()
}

// MemoryState is a StateStore held in memory. The zero value starts at the
// zero time, which is always stale.
type MemoryState struct {
	mu   sync.Mutex
	last time.Time
}

func (m *MemoryState) LastRefreshed(context.Context) (time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.last, nil
}

func (m *MemoryState) AdvanceLastRefreshed(_ context.Context, prev, next time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.last.Equal(prev) || !next.After(m.last) {
		return false, nil
	}
	m.last = next

	return true, nil
}

package mirror

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShouldRefresh(t *testing.T) {
	assert.True(t, ShouldRefresh(time.Time{}, t0, time.Hour))
	assert.True(t, ShouldRefresh(t0, t0.Add(time.Hour), time.Hour))
	assert.False(t, ShouldRefresh(t0, t0.Add(59*time.Minute), time.Hour))
}

func TestGate_SingleFlight(t *testing.T) {
	var (
		ctx      = context.Background()
		state    = &MemoryState{}
		g        = NewGate(state, time.Hour)
		acquired atomic.Int32
		wg       sync.WaitGroup
	)
	g.now = func() time.Time { return t0 }

	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if g.TryAcquire(ctx) {
				acquired.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), acquired.Load())
	assert.True(t, g.InFlight())

	// Timestamp moved before the cycle ends
	last, err := state.LastRefreshed(ctx)
	require.NoError(t, err)
	assert.Equal(t, t0, last)

	g.Release()
	assert.False(t, g.InFlight())

	// Still inside the window
	assert.False(t, g.TryAcquire(ctx))
	assert.False(t, g.InFlight())

	g.now = func() time.Time { return t0.Add(time.Hour) }
	assert.True(t, g.TryAcquire(ctx))
}

type failingState struct {
	readErr, advanceErr error
}

func (f failingState) LastRefreshed(context.Context) (time.Time, error) {
	return time.Time{}, f.readErr
}

func (f failingState) AdvanceLastRefreshed(context.Context, time.Time, time.Time) (bool, error) {
	return false, f.advanceErr
}

func TestGate_StoreErrorsReadAsFresh(t *testing.T) {
	ctx := context.Background()

	g := NewGate(failingState{readErr: errors.New("disk")}, time.Hour)
	assert.False(t, g.TryAcquire(ctx))
	assert.False(t, g.InFlight())

	g = NewGate(failingState{advanceErr: errors.New("locked")}, time.Hour)
	assert.False(t, g.TryAcquire(ctx))
	assert.False(t, g.InFlight())
}

func TestMemoryState_Advance(t *testing.T) {
	var (
		ctx = context.Background()
		m   MemoryState
	)

	ok, err := m.AdvanceLastRefreshed(ctx, time.Time{}, t0)
	require.NoError(t, err)
	assert.True(t, ok)

	// Stale prev
	ok, _ = m.AdvanceLastRefreshed(ctx, time.Time{}, t0.Add(time.Hour))
	assert.False(t, ok)

	// Backwards
	ok, _ = m.AdvanceLastRefreshed(ctx, t0, t0.Add(-time.Hour))
	assert.False(t, ok)
}

func TestGate_Claim(t *testing.T) {
	var (
		ctx   = context.Background()
		state = &MemoryState{}
		g     = NewGate(state, time.Hour)
	)
	g.now = func() time.Time { return t0 }
	require.True(t, g.TryAcquire(ctx))

	// In flight, even a claim waits its turn
	assert.False(t, g.Claim(ctx))
	g.Release()

	// Fresh, but claimed anyway and the window restarts
	g.now = func() time.Time { return t0.Add(time.Minute) }
	assert.False(t, g.TryAcquire(ctx))
	require.True(t, g.Claim(ctx))
	last, err := state.LastRefreshed(ctx)
	require.NoError(t, err)
	assert.Equal(t, t0.Add(time.Minute), last)
	g.Release()

	// A clock that didn't move doesn't block a claim
	require.True(t, g.Claim(ctx))
	g.Release()

	g = NewGate(failingState{readErr: errors.New("disk")}, time.Hour)
	assert.False(t, g.Claim(ctx))
	assert.False(t, g.InFlight())
}

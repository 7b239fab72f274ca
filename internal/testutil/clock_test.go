package testutil

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeterministicClock_Advances(t *testing.T) {
	clock := NewDeterministicClock()
	assert.Equal(t, int64(0), clock.Ticks())

	assert.Equal(t, Epoch.Add(time.Second), clock.Now())
	assert.Equal(t, Epoch.Add(2*time.Second), clock.Now())
	assert.Equal(t, int64(2), clock.Ticks())
}

func TestDeterministicClock_Reset(t *testing.T) {
	clock := NewDeterministicClock()
	clock.Now()
	clock.Now()
	clock.Reset()

	assert.Equal(t, int64(0), clock.Ticks())
	assert.Equal(t, Epoch.Add(time.Second), clock.Now())
}

func TestDeterministicClock_ThreadSafe(t *testing.T) {
	clock := NewDeterministicClock()
	const workers, calls = 20, 50

	var mu sync.Mutex
	seen := make(map[time.Time]bool)
	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			for j := 0; j < calls; j++ {
				now := clock.Now()
				mu.Lock()
				seen[now] = true
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	require.Len(t, seen, workers*calls)
	assert.Equal(t, int64(workers*calls), clock.Ticks())
}

func TestSequentialIDGenerator(t *testing.T) {
	gen := NewSequentialIDGenerator("")
	assert.Equal(t, "run-0001", gen.Generate())
	assert.Equal(t, "run-0002", gen.Generate())

	gen = NewSequentialIDGenerator("gen")
	assert.Equal(t, "gen-0001", gen.Generate())
}

func TestCartShape(t *testing.T) {
	s := CartShape(t)
	assert.Equal(t, 2, s.N)
	assert.True(t, s.Cross.IsZero())
	assert.Len(t, s.StateBounds.Lower, 3)
	assert.Len(t, s.ControlBounds.Lower, 2)
}

func TestTrackingDescriptor_Compiles(t *testing.T) {
	s := Compile(t, TrackingDescriptor())
	assert.False(t, s.Weight.IsGiven())
	assert.False(t, s.Jx.IsGiven())
	assert.True(t, s.VariableWeighting)
}

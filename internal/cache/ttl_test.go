package cache

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTTLGetSet(t *testing.T) {
	c := NewTTL[string](time.Minute)

	_, ok := c.Get("tok")
	require.False(t, ok)

	c.Set("tok", "verdict")
	v, ok := c.Get("tok")
	require.True(t, ok)
	assert.Equal(t, "verdict", v)
}

func TestTTLNeverReturnsExpired(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	clock := func() time.Time { return now }
	c := NewTTL[int](3 * time.Minute).WithClock(clock)

	c.Set("tok", 42)

	// Just inside the window.
	now = now.Add(3 * time.Minute)
	v, ok := c.Get("tok")
	require.True(t, ok)
	assert.Equal(t, 42, v)

	// One tick past expiry.
	now = now.Add(time.Second)
	_, ok = c.Get("tok")
	assert.False(t, ok)
}

func TestTTLDisabled(t *testing.T) {
	c := NewTTL[int](0)
	c.Set("tok", 1)
	_, ok := c.Get("tok")
	assert.False(t, ok)
}

func TestTTLSweep(t *testing.T) {
	base := time.Unix(1_700_000_000, 0)
	now := base
	c := NewTTL[int](time.Minute).WithClock(func() time.Time { return now })

	c.Set("a", 1)
	c.Set("b", 2)
	require.Equal(t, 2, c.Len())

	now = base.Add(2 * time.Minute)
	c.Sweep()
	assert.Equal(t, 0, c.Len())
}

func TestTTLSetSweepsOpportunistically(t *testing.T) {
	base := time.Unix(1_700_000_000, 0)
	now := base
	c := NewTTL[int](time.Minute).WithClock(func() time.Time { return now })

	for i := 0; i < sweepEvery-1; i++ {
		c.Set(fmt.Sprintf("tok-%d", i), i)
	}
	require.Equal(t, sweepEvery-1, c.Len())

	// Every earlier entry is now stale; the next Set crosses the sweep
	// threshold and evicts all of them.
	now = base.Add(2 * time.Minute)
	c.Set("fresh", 1)
	assert.Equal(t, 1, c.Len())

	v, ok := c.Get("fresh")
	require.True(t, ok)
	assert.Equal(t, 1, v)
}

func TestTTLClear(t *testing.T) {
	c := NewTTL[int](time.Minute)
	c.Set("a", 1)
	c.Clear()
	_, ok := c.Get("a")
	assert.False(t, ok)
}

func TestGroupSharesInFlightResult(t *testing.T) {
	g := NewGroup[int]()

	var calls atomic.Int32
	release := make(chan struct{})

	var entered, wg sync.WaitGroup
	results := make([]int, 10)
	for i := 0; i < 10; i++ {
		entered.Add(1)
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			entered.Done()
			v, err := g.Do("tok", func() (int, error) {
				calls.Add(1)
				<-release
				return 7, nil
			})
			require.NoError(t, err)
			results[i] = v
		}(i)
	}

	// Wait until every goroutine is at (or inside) Do, then release the
	// single blocked computation.
	entered.Wait()
	time.Sleep(10 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load())
	for _, v := range results {
		assert.Equal(t, 7, v)
	}
}

func TestGroupPropagatesError(t *testing.T) {
	g := NewGroup[int]()
	wantErr := errors.New("upstream unavailable")

	_, err := g.Do("tok", func() (int, error) { return 0, wantErr })
	assert.ErrorIs(t, err, wantErr)

	// A failed call is forgotten; the next call runs again.
	v, err := g.Do("tok", func() (int, error) { return 1, nil })
	require.NoError(t, err)
	assert.Equal(t, 1, v)
}

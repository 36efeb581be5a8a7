package cache

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestCache(t *testing.T, opts ...MemoryOption) (*MemoryCache, *testClock) {
	t.Helper()
	clk := &testClock{now: time.Date(2026, 10, 14, 12, 0, 0, 0, time.UTC)}
	opts = append([]MemoryOption{WithMemoryClock(clk.Now), WithMemoryCleanup(0)}, opts...)
	mc := NewMemoryCache(opts...)
	t.Cleanup(func() { _ = mc.Close() })
	return mc, clk
}

func TestMemoryCacheRoundTripsStructs(t *testing.T) {
	ctx := context.Background()
	mc, _ := newTestCache(t)

	type state struct {
		Day    string `json:"day"`
		Halted bool   `json:"halted"`
	}
	require.NoError(t, mc.Set(ctx, "ledger", state{Day: "2026-10-14", Halted: true}, 0))

	var got state
	require.NoError(t, mc.Get(ctx, "ledger", &got))
	assert.Equal(t, state{Day: "2026-10-14", Halted: true}, got)

	require.NoError(t, mc.Set(ctx, "raw", "text", 0))
	var s string
	require.NoError(t, mc.Get(ctx, "raw", &s))
	assert.Equal(t, "text", s)

	require.ErrorIs(t, mc.Get(ctx, "missing", &s), ErrCacheMiss)
}

func TestMemoryCacheExpiry(t *testing.T) {
	ctx := context.Background()
	mc, clk := newTestCache(t)

	ok, err := mc.SetNX(ctx, "seen:1", "1", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = mc.SetNX(ctx, "seen:1", "1", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	exists, err := mc.Exists(ctx, "seen:1")
	require.NoError(t, err)
	assert.True(t, exists)

	clk.Advance(2 * time.Minute)
	exists, err = mc.Exists(ctx, "seen:1")
	require.NoError(t, err)
	assert.False(t, exists)

	ok, err = mc.SetNX(ctx, "seen:1", "1", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestMemoryCacheEvictsLeastRecentlyUsed(t *testing.T) {
	ctx := context.Background()
	mc, clk := newTestCache(t, WithMemoryMaxSize(2))

	require.NoError(t, mc.Set(ctx, "a", "1", 0))
	clk.Advance(time.Second)
	require.NoError(t, mc.Set(ctx, "b", "2", 0))
	clk.Advance(time.Second)

	var s string
	require.NoError(t, mc.Get(ctx, "a", &s))
	clk.Advance(time.Second)
	require.NoError(t, mc.Set(ctx, "c", "3", 0))

	require.NoError(t, mc.Get(ctx, "a", &s))
	require.ErrorIs(t, mc.Get(ctx, "b", &s), ErrCacheMiss)
	require.NoError(t, mc.Get(ctx, "c", &s))

	require.NoError(t, mc.Delete(ctx, "a", "c"))
	exists, err := mc.Exists(ctx, "a", "c")
	require.NoError(t, err)
	assert.False(t, exists)
}

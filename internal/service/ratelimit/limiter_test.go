package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time { return c.t }

func TestLimiter_BurstThenRefill(t *testing.T) {
	clk := &fakeClock{t: time.Date(2026, 10, 14, 12, 0, 0, 0, time.UTC)}
	l := New(3, 1, WithClock(clk.now))

	for i := 0; i < 3; i++ {
		assert.True(t, l.Allow("10.0.0.1"), "request %d", i)
	}
	assert.False(t, l.Allow("10.0.0.1"))
	assert.True(t, l.Allow("10.0.0.2"), "keys are independent")

	clk.t = clk.t.Add(1500 * time.Millisecond)
	assert.True(t, l.Allow("10.0.0.1"))
	assert.False(t, l.Allow("10.0.0.1"))

	clk.t = clk.t.Add(time.Hour)
	for i := 0; i < 3; i++ {
		assert.True(t, l.Allow("10.0.0.1"))
	}
	assert.False(t, l.Allow("10.0.0.1"), "refill is capped at burst")
}

func TestLimiter_EvictsIdleKeys(t *testing.T) {
	clk := &fakeClock{t: time.Date(2026, 10, 14, 12, 0, 0, 0, time.UTC)}
	l := New(2, 1, WithClock(clk.now), WithIdleEviction(time.Minute))

	l.Allow("a")
	l.Allow("b")
	l.Allow("b")
	assert.Len(t, l.m, 2)

	clk.t = clk.t.Add(30 * time.Second)
	l.Allow("c")
	assert.Len(t, l.m, 3, "no eviction before the idle period")

	clk.t = clk.t.Add(45 * time.Second)
	l.Allow("c")
	assert.Len(t, l.m, 1, "a and b were idle, c was just used")
	_, ok := l.m["c"]
	assert.True(t, ok)
}

func TestLimiter_EvictionDisabled(t *testing.T) {
	clk := &fakeClock{t: time.Date(2026, 10, 14, 12, 0, 0, 0, time.UTC)}
	l := New(1, 1, WithClock(clk.now), WithIdleEviction(0))

	l.Allow("a")
	clk.t = clk.t.Add(24 * time.Hour)
	l.Allow("b")
	assert.Len(t, l.m, 2)
}

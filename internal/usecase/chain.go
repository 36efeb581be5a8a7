package usecase

import (
	"context"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/jtorres-1/mirror-trade/internal/domain/models"
)

// ChainConfig holds the martingale sizing rules.
type ChainConfig struct {
	BaseStake  decimal.Decimal
	Multiplier decimal.Decimal
	MaxStake   decimal.Decimal
	MaxDepth   int
	ForceOTC   bool
}

// EndReason says why a chain returned to idle.
type EndReason string

const (
	EndWin       EndReason = "win"
	EndExhausted EndReason = "no_levels_left"
	EndDepthCap  EndReason = "depth_cap"
	EndHalted    EndReason = "halted"
	EndCancelled EndReason = "cancelled"
	EndShutdown  EndReason = "shutdown"
)

// legTimer is a pre-armed wake-up for one leg.
type legTimer struct {
	leg    int
	at     time.Time
	due    bool
	cancel context.CancelFunc
}

// ExecutionChain is the state of one martingale sequence.
// Only the scheduler goroutine touches it.
type ExecutionChain struct {
	ID        string
	Signal    models.Signal
	Pair      string
	Levels    []models.TimeOfDay
	Index     int
	Stake     decimal.Decimal
	StartedAt time.Time

	executing       bool
	cancelRequested bool
	timers          map[int]*legTimer
}

func newChain(id string, sig models.Signal, cfg ChainConfig, now time.Time) *ExecutionChain {
	pair := sig.Pair
	if cfg.ForceOTC && !strings.HasSuffix(strings.ToUpper(pair), "OTC") {
		pair += " OTC"
	}
	levels := make([]models.TimeOfDay, len(sig.ReEntryTimes))
	copy(levels, sig.ReEntryTimes)
	return &ExecutionChain{
		ID:        id,
		Signal:    sig,
		Pair:      pair,
		Levels:    levels,
		Stake:     cfg.BaseStake,
		StartedAt: now,
		timers:    make(map[int]*legTimer),
	}
}

// armedLegs is the number of re-entry legs that may ever run.
func (c *ExecutionChain) armedLegs(maxDepth int) int {
	return min(len(c.Levels), maxDepth)
}

// levelFor returns the scheduled time of leg k; leg 0 is the entry.
func (c *ExecutionChain) levelFor(k int) models.TimeOfDay {
	if k == 0 {
		return c.Signal.EntryTime
	}
	return c.Levels[k-1]
}

// submitStake caps the running stake at the configured maximum.
func (c *ExecutionChain) submitStake(cfg ChainConfig) decimal.Decimal {
	if cfg.MaxStake.IsPositive() && c.Stake.GreaterThan(cfg.MaxStake) {
		return cfg.MaxStake
	}
	return c.Stake
}

// nextStake escalates by the multiplier, rounded to cents and capped.
func nextStake(stake decimal.Decimal, cfg ChainConfig) decimal.Decimal {
	next := stake.Mul(cfg.Multiplier).Round(2)
	if cfg.MaxStake.IsPositive() && next.GreaterThan(cfg.MaxStake) {
		return cfg.MaxStake
	}
	return next
}

// advance moves past a non-winning leg. ok is false when the chain should end.
func (c *ExecutionChain) advance(res models.Result, cfg ChainConfig) (EndReason, bool) {
	if c.Index >= len(c.Levels) {
		return EndExhausted, false
	}
	if c.Index >= cfg.MaxDepth {
		return EndDepthCap, false
	}
	if res != models.ResultSkipped {
		c.Stake = nextStake(c.Stake, cfg)
	}
	c.Index++
	return "", true
}

func (c *ExecutionChain) request(id string, cfg ChainConfig) models.TradeRequest {
	return models.TradeRequest{
		ID:            id,
		ChainID:       c.ID,
		Pair:          c.Pair,
		Direction:     c.Signal.Direction,
		ExpiryMinutes: c.Signal.ExpiryMinutes,
		Stake:         c.submitStake(cfg),
		Leg:           c.Index,
	}
}

func (c *ExecutionChain) cancelTimers() {
	for k, t := range c.timers {
		t.cancel()
		delete(c.timers, k)
	}
}

func (c *ExecutionChain) snapshot() models.ChainSnapshot {
	times := make([]string, len(c.Levels))
	for i, l := range c.Levels {
		times[i] = l.String()
	}
	pending := make([]int, 0, len(c.timers))
	for k := 0; k <= len(c.Levels); k++ {
		if _, ok := c.timers[k]; ok {
			pending = append(pending, k)
		}
	}
	return models.ChainSnapshot{
		Status:        models.ChainActive,
		ChainID:       c.ID,
		Pair:          c.Pair,
		Direction:     c.Signal.Direction,
		ExpiryMinutes: c.Signal.ExpiryMinutes,
		ReEntryTimes:  times,
		ReEntryIndex:  c.Index,
		Stake:         c.Stake,
		Executing:     c.executing,
		PendingLegs:   pending,
		StartedAt:     c.StartedAt,
	}
}

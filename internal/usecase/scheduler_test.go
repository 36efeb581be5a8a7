package usecase

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jtorres-1/mirror-trade/internal/domain/models"
	drepo "github.com/jtorres-1/mirror-trade/internal/domain/repository"
	"github.com/jtorres-1/mirror-trade/internal/services/dedup"
)

func TestScheduler_WinCancelsPendingReEntries(t *testing.T) {
	h := newHarness(t, defaultConfig(), "0")

	d := h.admit(t, h.signal("m1", tod(14, 0), tod(14, 5), tod(14, 10)))
	require.True(t, d.Accepted)
	assert.Equal(t, "id-1", d.ChainID)

	snap := h.snapshot(t)
	assert.Equal(t, models.ChainActive, snap.Chain.Status)

	req := h.exec.expectCall(t)
	assert.Equal(t, 0, req.Leg)
	assert.Equal(t, "EUR/USD OTC", req.Pair)
	assert.Equal(t, "1", req.Stake.String())
	h.exec.win("0.85")

	h.waitIdle(t)
	h.clock.Advance(20 * time.Minute)
	h.exec.expectNoCall(t)

	rows := h.waitRecords(t, 1)
	require.Len(t, rows, 1)
	assert.Equal(t, "BASE", rows[0].Leg)
	assert.Equal(t, models.ResultWin, rows[0].Result)
	assert.Equal(t, "0.85", h.snapshot(t).Ledger.CumulativeProfit.String())
}

func TestScheduler_LossCascadeEscalatesAndClamps(t *testing.T) {
	cfg := defaultConfig()
	cfg.Chain.MaxDepth = 3
	h := newHarness(t, cfg, "0")

	require.True(t, h.admit(t, h.signal("m1", tod(14, 0), tod(14, 5), tod(14, 10), tod(14, 15))).Accepted)

	var stakes []string
	for leg := 0; leg <= 3; leg++ {
		switch {
		case leg == 1:
			h.clock.Advance(4*time.Minute + 30*time.Second)
		case leg > 1:
			h.clock.Advance(5 * time.Minute)
		}
		req := h.exec.expectCall(t)
		assert.Equal(t, leg, req.Leg)
		stakes = append(stakes, req.Stake.String())
		h.exec.lose(req.Stake)
	}
	assert.Equal(t, []string{"1", "2.2", "4.84", "10"}, stakes)

	h.waitIdle(t)
	rows := h.waitRecords(t, 4)
	labels := make([]string, len(rows))
	for i, r := range rows {
		labels[i] = r.Leg
	}
	assert.Equal(t, []string{"BASE", "ML1", "ML2", "ML3"}, labels)
	assert.Equal(t, "-18.04", h.snapshot(t).Ledger.CumulativeProfit.String())
}

func TestScheduler_DepthCapEndsChain(t *testing.T) {
	cfg := defaultConfig()
	cfg.Chain.MaxDepth = 1
	h := newHarness(t, cfg, "0")

	require.True(t, h.admit(t, h.signal("m1", tod(14, 0), tod(14, 5), tod(14, 10))).Accepted)
	h.exec.lose(h.exec.expectCall(t).Stake)

	h.clock.Advance(4*time.Minute + 30*time.Second)
	req := h.exec.expectCall(t)
	assert.Equal(t, 1, req.Leg)
	h.exec.lose(req.Stake)

	h.waitIdle(t)
	h.clock.Advance(5 * time.Minute)
	h.exec.expectNoCall(t)
}

func TestScheduler_ChainBusyDropsSecondSignal(t *testing.T) {
	h := newHarness(t, defaultConfig(), "0")

	first := h.admit(t, h.signal("m1", tod(14, 0), tod(14, 5)))
	require.True(t, first.Accepted)
	h.exec.expectCall(t)

	h.clock.Advance(61 * time.Second)
	second := h.admit(t, h.signal("m2", tod(14, 1)))
	assert.False(t, second.Accepted)
	assert.Equal(t, string(dedup.ReasonChainBusy), second.Reason)
	assert.Equal(t, first.ChainID, h.snapshot(t).Chain.ChainID)

	h.exec.win("0.9")
	h.waitIdle(t)
}

func TestScheduler_RapidFireWithinWindow(t *testing.T) {
	h := newHarness(t, defaultConfig(), "0")

	require.True(t, h.admit(t, h.signal("m1", tod(14, 0))).Accepted)
	h.exec.expectCall(t)
	h.exec.win("0.9")
	h.waitIdle(t)

	d := h.admit(t, h.signal("m2", tod(14, 0)))
	assert.Equal(t, string(dedup.ReasonRapidFire), d.Reason)
}

func TestScheduler_NotRelevant(t *testing.T) {
	h := newHarness(t, defaultConfig(), "0")
	d := h.admit(t, h.signal("m1", tod(13, 0)))
	assert.True(t, d.Parsed)
	assert.False(t, d.Accepted)
	assert.Equal(t, string(dedup.ReasonNotRelevant), d.Reason)
}

func TestScheduler_HaltAbortsChainAndBlocksUntilRollover(t *testing.T) {
	h := newHarness(t, defaultConfig(), "3")

	require.True(t, h.admit(t, h.signal("m1", tod(14, 0), tod(14, 5), tod(14, 10))).Accepted)
	h.exec.lose(h.exec.expectCall(t).Stake)
	h.clock.Advance(4*time.Minute + 30*time.Second)
	h.exec.lose(h.exec.expectCall(t).Stake)

	h.waitIdle(t)
	snap := h.snapshot(t)
	assert.True(t, snap.Ledger.Halted)
	assert.Equal(t, "-3.2", snap.Ledger.CumulativeProfit.String())

	h.clock.Advance(5 * time.Minute)
	h.exec.expectNoCall(t)

	h.clock.Advance(2 * time.Minute)
	d := h.admit(t, h.signal("m2", tod(14, 12)))
	assert.Equal(t, ReasonHaltActive, d.Reason)

	// next exchange day clears the halt before admission
	h.clock.Advance(24 * time.Hour)
	d = h.admit(t, h.signal("m3", tod(14, 12)))
	assert.True(t, d.Accepted)
	snap = h.snapshot(t)
	assert.False(t, snap.Ledger.Halted)
	assert.True(t, snap.Ledger.CumulativeProfit.IsZero())
	assert.Equal(t, "2026-10-15", snap.Ledger.TradingDay)
	h.exec.expectCall(t)
}

func TestScheduler_ExecutorErrorCountsAsLoss(t *testing.T) {
	h := newHarness(t, defaultConfig(), "0")

	require.True(t, h.admit(t, h.signal("m1", tod(14, 0), tod(14, 5))).Accepted)
	h.exec.expectCall(t)
	h.exec.fail(errors.New("bridge unreachable"))

	h.clock.Advance(4*time.Minute + 30*time.Second)
	req := h.exec.expectCall(t)
	assert.Equal(t, "2.2", req.Stake.String())
	h.exec.win("1.8")
	h.waitIdle(t)

	rows := h.waitRecords(t, 2)
	assert.Equal(t, models.ResultError, rows[0].Result)
	assert.True(t, rows[0].Profit.IsZero())
	assert.Equal(t, "1.8", h.snapshot(t).Ledger.CumulativeProfit.String())
}

func TestScheduler_BusyExecutorSkipsLeg(t *testing.T) {
	h := newHarness(t, defaultConfig(), "0")

	require.True(t, h.admit(t, h.signal("m1", tod(14, 0), tod(14, 5))).Accepted)
	h.exec.expectCall(t)
	h.exec.fail(drepo.ErrExecutorBusy)

	h.clock.Advance(4*time.Minute + 30*time.Second)
	req := h.exec.expectCall(t)
	assert.Equal(t, "1", req.Stake.String())
	h.exec.lose(req.Stake)
	h.waitIdle(t)

	rows := h.waitRecords(t, 2)
	assert.Equal(t, models.ResultSkipped, rows[0].Result)
	assert.Equal(t, models.ResultLoss, rows[1].Result)
}

func TestScheduler_DueLegWaitsForPrevious(t *testing.T) {
	h := newHarness(t, defaultConfig(), "0")

	require.True(t, h.admit(t, h.signal("m1", tod(14, 0), tod(14, 5))).Accepted)
	base := h.exec.expectCall(t)

	// leg 1 comes due while the base leg is still open
	h.clock.Advance(4*time.Minute + 40*time.Second)
	h.exec.expectNoCall(t)
	assert.True(t, h.snapshot(t).Chain.Executing)

	h.exec.lose(base.Stake)
	req := h.exec.expectCall(t)
	assert.Equal(t, 1, req.Leg)
	h.exec.win("1.9")
	h.waitIdle(t)
}

func TestScheduler_MissedSlotRollsToNextDay(t *testing.T) {
	h := newHarness(t, defaultConfig(), "0")

	require.True(t, h.admit(t, h.signal("m1", tod(14, 0), tod(14, 5))).Accepted)
	base := h.exec.expectCall(t)

	h.clock.Advance(10 * time.Minute) // 14:10:30, more than grace past 14:05
	h.exec.lose(base.Stake)
	h.exec.expectNoCall(t)

	snap := h.snapshot(t)
	assert.Equal(t, models.ChainActive, snap.Chain.Status)
	assert.Equal(t, []int{1}, snap.Chain.PendingLegs)

	// land exactly on tomorrow's 14:05
	h.clock.Advance(24*time.Hour - 5*time.Minute - 30*time.Second)
	req := h.exec.expectCall(t)
	assert.Equal(t, 1, req.Leg)
	h.exec.win("1.9")
	h.waitIdle(t)
}

func TestScheduler_CancelDropsPendingLegs(t *testing.T) {
	h := newHarness(t, defaultConfig(), "0")

	require.True(t, h.admit(t, h.signal("m1", tod(14, 0), tod(14, 5), tod(14, 10))).Accepted)
	base := h.exec.expectCall(t)

	ok, err := h.sched.Cancel(h.ctx)
	require.NoError(t, err)
	assert.True(t, ok)

	h.exec.lose(base.Stake)
	h.waitIdle(t)
	h.clock.Advance(15 * time.Minute)
	h.exec.expectNoCall(t)

	ok, err = h.sched.Cancel(h.ctx)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestScheduler_IdleSnapshot(t *testing.T) {
	h := newHarness(t, defaultConfig(), "0")
	snap := h.snapshot(t)
	assert.Equal(t, models.ChainIdle, snap.Chain.Status)
	assert.Equal(t, "2026-10-14", snap.Ledger.TradingDay)
	assert.False(t, snap.Ledger.Halted)
}

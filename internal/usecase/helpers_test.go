package usecase

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/jtorres-1/mirror-trade/internal/domain/models"
	drepo "github.com/jtorres-1/mirror-trade/internal/domain/repository"
	"github.com/jtorres-1/mirror-trade/internal/services/clock"
	"github.com/jtorres-1/mirror-trade/internal/services/dedup"
	"github.com/jtorres-1/mirror-trade/internal/services/risk"
	applogger "github.com/jtorres-1/mirror-trade/pkg/logger"
)

var baseTime = time.Date(2026, 10, 14, 14, 0, 30, 0, time.UTC)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func tod(h, m int) models.TimeOfDay { return models.TimeOfDay{Hour: h, Minute: m} }

// fakeClock fires After channels only when advanced.
type fakeClock struct {
	mu      sync.Mutex
	now     time.Time
	waiters []fakeWaiter
}

type fakeWaiter struct {
	at time.Time
	ch chan time.Time
}

func newFakeClock(now time.Time) *fakeClock { return &fakeClock{now: now} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) After(d time.Duration) <-chan time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	ch := make(chan time.Time, 1)
	at := c.now.Add(d)
	if !at.After(c.now) {
		ch <- c.now
		return ch
	}
	c.waiters = append(c.waiters, fakeWaiter{at: at, ch: ch})
	return ch
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
	keep := c.waiters[:0]
	for _, w := range c.waiters {
		if !w.at.After(c.now) {
			w.ch <- c.now
			continue
		}
		keep = append(keep, w)
	}
	c.waiters = keep
}

type execReply struct {
	out models.TradeOutcome
	err error
}

// scriptedExecutor hands each request to the test and waits for its reply.
type scriptedExecutor struct {
	calls   chan models.TradeRequest
	replies chan execReply
}

func newScriptedExecutor() *scriptedExecutor {
	return &scriptedExecutor{
		calls:   make(chan models.TradeRequest, 16),
		replies: make(chan execReply, 1),
	}
}

func (e *scriptedExecutor) Name() string { return "scripted" }

func (e *scriptedExecutor) Submit(ctx context.Context, req models.TradeRequest) (models.TradeOutcome, error) {
	e.calls <- req
	select {
	case r := <-e.replies:
		return r.out, r.err
	case <-ctx.Done():
		return models.TradeOutcome{}, ctx.Err()
	}
}

func (e *scriptedExecutor) expectCall(t *testing.T) models.TradeRequest {
	t.Helper()
	select {
	case req := <-e.calls:
		return req
	case <-time.After(2 * time.Second):
		t.Fatalf("expected executor call")
		return models.TradeRequest{}
	}
}

func (e *scriptedExecutor) expectNoCall(t *testing.T) {
	t.Helper()
	select {
	case req := <-e.calls:
		t.Fatalf("unexpected executor call for leg %d", req.Leg)
	case <-time.After(100 * time.Millisecond):
	}
}

func (e *scriptedExecutor) win(profit string) {
	e.replies <- execReply{out: models.TradeOutcome{Result: models.ResultWin, Profit: dec(profit)}}
}

func (e *scriptedExecutor) lose(stake decimal.Decimal) {
	e.replies <- execReply{out: models.TradeOutcome{Result: models.ResultLoss, Profit: stake.Neg()}}
}

func (e *scriptedExecutor) fail(err error) {
	e.replies <- execReply{err: err}
}

type memoryTradeLog struct {
	mu   sync.Mutex
	rows []models.LegRecord
}

func (m *memoryTradeLog) Record(_ context.Context, rec models.LegRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows = append(m.rows, rec)
	return nil
}

func (m *memoryTradeLog) Close() error { return nil }

func (m *memoryTradeLog) records() []models.LegRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.LegRecord(nil), m.rows...)
}

type nopMetrics struct{}

func (nopMetrics) RecordSignal(string)                   {}
func (nopMetrics) RecordLeg(string, string, float64)     {}
func (nopMetrics) RecordDailyProfit(float64, bool)       {}
func (nopMetrics) RecordChainActive(bool)                {}
func (nopMetrics) RecordExecutorLatency(string, float64) {}
func (nopMetrics) RecordError(string)                    {}

type harness struct {
	clock *fakeClock
	exec  *scriptedExecutor
	log   *memoryTradeLog
	sched *Scheduler
	ctx   context.Context
}

func defaultConfig() SchedulerConfig {
	return SchedulerConfig{
		Chain: ChainConfig{
			BaseStake:  dec("1"),
			Multiplier: dec("2.2"),
			MaxStake:   dec("10"),
			MaxDepth:   2,
			ForceOTC:   true,
		},
		SettlementBuffer: 8 * time.Second,
		SubmitSlack:      time.Minute,
	}
}

func newHarness(t *testing.T, cfg SchedulerConfig, stopLoss string) *harness {
	t.Helper()
	return buildHarness(t, cfg, stopLoss, nil)
}

func newHarnessWithStore(t *testing.T, store drepo.StateStore) *harness {
	t.Helper()
	return buildHarness(t, defaultConfig(), "5", store)
}

func buildHarness(t *testing.T, cfg SchedulerConfig, stopLoss string, store drepo.StateStore) *harness {
	t.Helper()
	fc := newFakeClock(baseTime)
	conv := clock.New(0, clock.WithLocation(time.UTC))
	gate := dedup.NewGate(dedup.Config{}, conv, nil)
	ledger := risk.NewLedger(dec(stopLoss), conv, baseTime)
	tl := &memoryTradeLog{}
	journal := NewJournal(tl, store, nopMetrics{}, applogger.Nop())
	exec := newScriptedExecutor()

	var n int
	ids := func() string {
		n++
		return fmt.Sprintf("id-%d", n)
	}
	sched := NewScheduler(cfg, conv, gate, ledger, exec, journal, nopMetrics{}, applogger.Nop(),
		WithTimeSource(fc), WithIDGenerator(ids))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = sched.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return &harness{clock: fc, exec: exec, log: tl, sched: sched, ctx: ctx}
}

func (h *harness) signal(id string, entry models.TimeOfDay, levels ...models.TimeOfDay) models.Signal {
	return models.Signal{
		Pair:            "EUR/USD",
		Direction:       models.DirectionBuy,
		ExpiryMinutes:   5,
		EntryTime:       entry,
		ReEntryTimes:    levels,
		SourceMessageID: id,
		ReceivedAt:      h.clock.Now(),
	}
}

func (h *harness) admit(t *testing.T, sig models.Signal) Decision {
	t.Helper()
	d, err := h.sched.Admit(h.ctx, sig)
	require.NoError(t, err)
	return d
}

func (h *harness) snapshot(t *testing.T) models.EngineSnapshot {
	t.Helper()
	snap, err := h.sched.Snapshot(h.ctx)
	require.NoError(t, err)
	return snap
}

func (h *harness) waitIdle(t *testing.T) {
	t.Helper()
	require.Eventually(t, func() bool {
		snap, err := h.sched.Snapshot(h.ctx)
		return err == nil && snap.Chain.Status == models.ChainIdle
	}, 2*time.Second, 5*time.Millisecond)
}

func (h *harness) waitRecords(t *testing.T, n int) []models.LegRecord {
	t.Helper()
	require.Eventually(t, func() bool { return len(h.log.records()) >= n }, 2*time.Second, 5*time.Millisecond)
	return h.log.records()
}

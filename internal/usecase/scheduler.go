package usecase

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/jtorres-1/mirror-trade/internal/domain/models"
	drepo "github.com/jtorres-1/mirror-trade/internal/domain/repository"
	"github.com/jtorres-1/mirror-trade/internal/services/dedup"
	"github.com/jtorres-1/mirror-trade/internal/services/risk"
	applogger "github.com/jtorres-1/mirror-trade/pkg/logger"
)

// ErrSchedulerStopped is returned once the scheduler loop has exited.
var ErrSchedulerStopped = errors.New("scheduler stopped")

const (
	ReasonNotSignal  = "not_a_signal"
	ReasonHaltActive = "halt_active"
)

// Decision is the result of offering a message to the scheduler.
type Decision struct {
	Parsed   bool           `json:"parsed"`
	Accepted bool           `json:"accepted"`
	Reason   string         `json:"reason,omitempty"`
	ChainID  string         `json:"chain_id,omitempty"`
	Signal   *models.Signal `json:"signal,omitempty"`
}

// Timeline resolves leg times against the exchange clock.
type Timeline interface {
	ResolveOccurrence(t models.TimeOfDay, now time.Time) time.Time
	Grace() time.Duration
}

// SchedulerConfig holds chain sizing and executor timing.
type SchedulerConfig struct {
	Chain            ChainConfig
	SettlementBuffer time.Duration
	SubmitSlack      time.Duration
}

// SchedulerOption configures a Scheduler.
type SchedulerOption func(*Scheduler)

// WithTimeSource replaces the wall clock.
func WithTimeSource(ts TimeSource) SchedulerOption {
	return func(s *Scheduler) { s.clock = ts }
}

// WithIDGenerator replaces the uuid generator for chain and order ids.
func WithIDGenerator(fn func() string) SchedulerOption {
	return func(s *Scheduler) { s.newID = fn }
}

// Scheduler owns the single execution chain, the risk ledger and the dedup
// gate. All state changes happen on the goroutine running Run; timers and
// executor calls report back through the inbox.
type Scheduler struct {
	cfg      SchedulerConfig
	timeline Timeline
	gate     *dedup.Gate
	ledger   *risk.Ledger
	executor drepo.TradeExecutor
	journal  *Journal
	metrics  drepo.Metrics
	l        *applogger.Logger
	clock    TimeSource
	newID    func() string

	inbox  chan any
	done   chan struct{}
	runCtx context.Context
	chain  *ExecutionChain
}

// NewScheduler creates a Scheduler. Call Run to start it.
func NewScheduler(
	cfg SchedulerConfig,
	timeline Timeline,
	gate *dedup.Gate,
	ledger *risk.Ledger,
	executor drepo.TradeExecutor,
	journal *Journal,
	metrics drepo.Metrics,
	l *applogger.Logger,
	opts ...SchedulerOption,
) *Scheduler {
	s := &Scheduler{
		cfg:      cfg,
		timeline: timeline,
		gate:     gate,
		ledger:   ledger,
		executor: executor,
		journal:  journal,
		metrics:  metrics,
		l:        l,
		clock:    SystemTime{},
		newID:    func() string { return uuid.NewString() },
		inbox:    make(chan any, 64),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type admitEvent struct {
	sig   models.Signal
	reply chan Decision
}

type legDueEvent struct {
	chainID string
	timer   *legTimer
}

type legDoneEvent struct {
	req  models.TradeRequest
	out  models.TradeOutcome
	err  error
	took time.Duration
}

type cancelEvent struct {
	reply chan bool
}

type snapshotEvent struct {
	reply chan models.EngineSnapshot
}

// Run processes events until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	s.runCtx = ctx
	defer close(s.done)

	s.journal.Start()
	defer func() {
		if err := s.journal.Close(); err != nil {
			s.l.Error("close journal", applogger.Error(err))
		}
	}()
	s.restoreLedger(ctx)

	for {
		select {
		case <-ctx.Done():
			if s.chain != nil {
				s.endChain(s.chain, EndShutdown)
			}
			return nil
		case ev := <-s.inbox:
			s.handle(ev)
		}
	}
}

// Admit offers a parsed signal for execution.
func (s *Scheduler) Admit(ctx context.Context, sig models.Signal) (Decision, error) {
	reply := make(chan Decision, 1)
	if err := s.send(ctx, admitEvent{sig: sig, reply: reply}); err != nil {
		return Decision{}, err
	}
	return await(ctx, s.done, reply)
}

// Cancel ends the active chain and drops its pending re-entries. A leg
// already at the executor settles first. Reports whether a chain was active.
func (s *Scheduler) Cancel(ctx context.Context) (bool, error) {
	reply := make(chan bool, 1)
	if err := s.send(ctx, cancelEvent{reply: reply}); err != nil {
		return false, err
	}
	return await(ctx, s.done, reply)
}

// Snapshot returns the current chain and ledger state.
func (s *Scheduler) Snapshot(ctx context.Context) (models.EngineSnapshot, error) {
	reply := make(chan models.EngineSnapshot, 1)
	if err := s.send(ctx, snapshotEvent{reply: reply}); err != nil {
		return models.EngineSnapshot{}, err
	}
	return await(ctx, s.done, reply)
}

func await[T any](ctx context.Context, done <-chan struct{}, reply <-chan T) (T, error) {
	var zero T
	select {
	case v := <-reply:
		return v, nil
	case <-ctx.Done():
		return zero, ctx.Err()
	case <-done:
		return zero, ErrSchedulerStopped
	}
}

func (s *Scheduler) send(ctx context.Context, ev any) error {
	select {
	case s.inbox <- ev:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-s.done:
		return ErrSchedulerStopped
	}
}

// post is used by timer and executor goroutines.
func (s *Scheduler) post(ev any) {
	select {
	case s.inbox <- ev:
	case <-s.done:
	}
}

func (s *Scheduler) handle(ev any) {
	switch e := ev.(type) {
	case admitEvent:
		e.reply <- s.onAdmit(e.sig)
	case legDueEvent:
		s.onLegDue(e)
	case legDoneEvent:
		s.onLegDone(e)
	case cancelEvent:
		e.reply <- s.onCancel()
	case snapshotEvent:
		e.reply <- s.snapshot()
	}
}

func (s *Scheduler) onAdmit(sig models.Signal) Decision {
	now := s.clock.Now()
	s.checkRollover(now)
	d := Decision{Parsed: true, Signal: &sig}

	if s.ledger.Halted() {
		d.Reason = ReasonHaltActive
		return d
	}
	if v := s.gate.Admit(sig, now, s.chain != nil); !v.Accepted {
		d.Reason = string(v.Reason)
		return d
	}

	c := newChain(s.newID(), sig, s.cfg.Chain, now)
	s.chain = c
	s.arm(c, 0, s.timeline.ResolveOccurrence(sig.EntryTime, now))
	for k := 1; k <= c.armedLegs(s.cfg.Chain.MaxDepth); k++ {
		s.arm(c, k, s.timeline.ResolveOccurrence(c.levelFor(k), now))
	}
	s.metrics.RecordChainActive(true)

	s.l.Info("chain started",
		applogger.String("chain_id", c.ID),
		applogger.String("pair", c.Pair),
		applogger.String("direction", string(sig.Direction)),
		applogger.Int("expiry_min", sig.ExpiryMinutes),
		applogger.String("entry", sig.EntryTime.String()),
		applogger.Int("re_entries", c.armedLegs(s.cfg.Chain.MaxDepth)),
		applogger.String("message_id", sig.SourceMessageID),
	)

	d.Accepted = true
	d.ChainID = c.ID
	return d
}

// arm schedules a wake-up for leg at the given instant, replacing any earlier one.
func (s *Scheduler) arm(c *ExecutionChain, leg int, at time.Time) {
	if old, ok := c.timers[leg]; ok {
		old.cancel()
	}
	ctx, cancel := context.WithCancel(s.runCtx)
	t := &legTimer{leg: leg, at: at, cancel: cancel}
	c.timers[leg] = t

	chainID := c.ID
	wake := s.clock.After(at.Sub(s.clock.Now()))
	go func() {
		select {
		case <-ctx.Done():
			return
		case <-wake:
		}
		if ctx.Err() != nil {
			return
		}
		s.post(legDueEvent{chainID: chainID, timer: t})
	}()

	s.l.Debug("leg armed",
		applogger.String("chain_id", chainID),
		applogger.String("leg", models.LegLabel(leg)),
		applogger.Time("at", at),
	)
}

func (s *Scheduler) onLegDue(ev legDueEvent) {
	c := s.chain
	if c == nil || c.ID != ev.chainID {
		return
	}
	t, ok := c.timers[ev.timer.leg]
	if !ok || t != ev.timer {
		return
	}
	t.due = true
	if c.executing {
		s.l.Info("leg due while previous leg is executing, holding",
			applogger.String("chain_id", c.ID),
			applogger.String("leg", models.LegLabel(t.leg)),
		)
	}
	s.tryLaunch(c)
}

// tryLaunch starts the next leg if its timer has fired and nothing is executing.
func (s *Scheduler) tryLaunch(c *ExecutionChain) {
	if c.executing {
		return
	}
	t, ok := c.timers[c.Index]
	if !ok || !t.due {
		return
	}

	now := s.clock.Now()
	s.checkRollover(now)
	if s.ledger.Halted() {
		s.endChain(c, EndHalted)
		return
	}
	if late := now.Sub(t.at); c.Index > 0 && late > s.timeline.Grace() {
		at := s.timeline.ResolveOccurrence(c.levelFor(c.Index), now)
		s.l.Warn("re-entry slot missed, deferring to next occurrence",
			applogger.String("chain_id", c.ID),
			applogger.String("leg", models.LegLabel(c.Index)),
			applogger.Duration("late_ms", late),
			applogger.Time("at", at),
		)
		s.arm(c, c.Index, at)
		return
	}

	t.cancel()
	delete(c.timers, c.Index)
	s.launch(c)
}

func (s *Scheduler) launch(c *ExecutionChain) {
	req := c.request(s.newID(), s.cfg.Chain)
	c.executing = true
	timeout := c.Signal.Expiry() + s.cfg.SettlementBuffer + s.cfg.SubmitSlack

	s.l.Info("placing trade",
		applogger.String("chain_id", c.ID),
		applogger.String("leg", models.LegLabel(req.Leg)),
		applogger.String("pair", req.Pair),
		applogger.String("direction", string(req.Direction)),
		applogger.Decimal("stake", req.Stake),
		applogger.String("executor", s.executor.Name()),
	)

	go func() {
		ctx, cancel := context.WithTimeout(s.runCtx, timeout)
		defer cancel()
		start := time.Now()
		out, err := s.executor.Submit(ctx, req)
		s.post(legDoneEvent{req: req, out: out, err: err, took: time.Since(start)})
	}()
}

// classify maps an executor reply to a leg result and its realized profit.
func classify(out models.TradeOutcome, err error) (models.Result, decimal.Decimal) {
	switch {
	case errors.Is(err, drepo.ErrExecutorBusy):
		return models.ResultSkipped, decimal.Zero
	case err != nil:
		return models.ResultError, decimal.Zero
	case out.Result == models.ResultWin && out.Profit.IsPositive():
		return models.ResultWin, out.Profit
	case out.Result == models.ResultLoss && !out.Profit.IsPositive():
		return models.ResultLoss, out.Profit
	default:
		return models.ResultError, decimal.Zero
	}
}

func (s *Scheduler) onLegDone(ev legDoneEvent) {
	res, profit := classify(ev.out, ev.err)
	now := s.clock.Now()
	label := models.LegLabel(ev.req.Leg)

	s.metrics.RecordExecutorLatency(s.executor.Name(), ev.took.Seconds())
	s.metrics.RecordLeg(label, string(res), ev.req.Stake.InexactFloat64())
	s.journal.Record(models.LegRecord{
		Timestamp:     now.UTC(),
		ChainID:       ev.req.ChainID,
		Pair:          ev.req.Pair,
		Direction:     ev.req.Direction,
		ExpiryMinutes: ev.req.ExpiryMinutes,
		Stake:         ev.req.Stake,
		Result:        res,
		Profit:        profit,
		Leg:           label,
	})

	fields := []applogger.Field{
		applogger.String("chain_id", ev.req.ChainID),
		applogger.String("leg", label),
		applogger.String("result", string(res)),
		applogger.Decimal("stake", ev.req.Stake),
		applogger.Decimal("profit", profit),
		applogger.Duration("took_ms", ev.took),
	}
	switch res {
	case models.ResultError:
		if ev.err != nil {
			fields = append(fields, applogger.Error(ev.err))
		}
		s.metrics.RecordError("executor")
		s.l.Warn("leg failed, counted as loss", fields...)
	case models.ResultSkipped:
		s.l.Warn("executor busy, leg skipped", fields...)
	default:
		s.l.Info("leg settled", fields...)
	}

	if res.Completed() {
		s.checkRollover(now)
		tripped := s.ledger.RecordOutcome(profit)
		s.publishLedger()
		if tripped {
			s.l.Warn("daily stop loss reached, trading halted",
				applogger.String("day", s.ledger.Day()),
				applogger.Decimal("profit", s.ledger.Profit()),
			)
		}
	}

	c := s.chain
	if c == nil || c.ID != ev.req.ChainID {
		return
	}
	c.executing = false

	switch {
	case c.cancelRequested:
		s.endChain(c, EndCancelled)
		return
	case res == models.ResultWin:
		s.endChain(c, EndWin)
		return
	case s.ledger.Halted():
		s.endChain(c, EndHalted)
		return
	}

	if reason, ok := c.advance(res, s.cfg.Chain); !ok {
		s.endChain(c, reason)
		return
	}
	next := c.timers[c.Index]
	fields = []applogger.Field{
		applogger.String("chain_id", c.ID),
		applogger.String("leg", models.LegLabel(c.Index)),
		applogger.Decimal("stake", c.submitStake(s.cfg.Chain)),
	}
	if next != nil {
		fields = append(fields, applogger.Time("at", next.at))
	}
	s.l.Info("re-entry scheduled", fields...)
	s.tryLaunch(c)
}

func (s *Scheduler) onCancel() bool {
	c := s.chain
	if c == nil {
		return false
	}
	if c.executing {
		c.cancelRequested = true
		c.cancelTimers()
		s.l.Info("chain cancel requested, waiting for executing leg",
			applogger.String("chain_id", c.ID))
		return true
	}
	s.endChain(c, EndCancelled)
	return true
}

func (s *Scheduler) endChain(c *ExecutionChain, reason EndReason) {
	c.cancelTimers()
	if s.chain == c {
		s.chain = nil
	}
	s.metrics.RecordChainActive(false)
	s.l.Info("chain finished",
		applogger.String("chain_id", c.ID),
		applogger.String("reason", string(reason)),
		applogger.Int("legs", c.Index+1),
		applogger.Decimal("day_profit", s.ledger.Profit()),
	)
}

func (s *Scheduler) checkRollover(now time.Time) {
	if !s.ledger.CheckRollover(now) {
		return
	}
	s.l.Info("trading day rolled over", applogger.String("day", s.ledger.Day()))
	s.publishLedger()
}

func (s *Scheduler) publishLedger() {
	snap := s.ledger.Snapshot()
	s.metrics.RecordDailyProfit(snap.CumulativeProfit.InexactFloat64(), snap.Halted)
	s.journal.SaveLedger(snap)
}

func (s *Scheduler) restoreLedger(ctx context.Context) {
	snap, err := s.journal.LoadLedger(ctx)
	if err != nil {
		s.l.Warn("load ledger state", applogger.Error(err))
		return
	}
	if snap == nil {
		return
	}
	if s.ledger.Restore(*snap) {
		s.l.Info("ledger restored",
			applogger.String("day", snap.TradingDay),
			applogger.Decimal("profit", snap.CumulativeProfit),
			applogger.Bool("halted", snap.Halted),
		)
		s.metrics.RecordDailyProfit(snap.CumulativeProfit.InexactFloat64(), snap.Halted)
	}
}

func (s *Scheduler) snapshot() models.EngineSnapshot {
	out := models.EngineSnapshot{
		Chain:  models.ChainSnapshot{Status: models.ChainIdle, Stake: s.cfg.Chain.BaseStake},
		Ledger: s.ledger.Snapshot(),
	}
	if s.chain != nil {
		out.Chain = s.chain.snapshot()
	}
	return out
}

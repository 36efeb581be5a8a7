package usecase

import (
	"context"
	"errors"
	"fmt"

	"github.com/jtorres-1/mirror-trade/internal/domain/models"
	drepo "github.com/jtorres-1/mirror-trade/internal/domain/repository"
	"github.com/jtorres-1/mirror-trade/internal/services/parser"
	applogger "github.com/jtorres-1/mirror-trade/pkg/logger"
)

// BackfillConfig controls the startup scan of recent history.
type BackfillConfig struct {
	Enabled bool
	Limit   int
}

// SignalIntake parses chat messages from every source and offers signals to the scheduler.
type SignalIntake struct {
	sched    *Scheduler
	sources  []drepo.MessageSource
	metrics  drepo.Metrics
	l        *applogger.Logger
	backfill BackfillConfig
}

// NewSignalIntake creates a new SignalIntake instance.
func NewSignalIntake(sched *Scheduler, sources []drepo.MessageSource, metrics drepo.Metrics, l *applogger.Logger, backfill BackfillConfig) *SignalIntake {
	return &SignalIntake{sched: sched, sources: sources, metrics: metrics, l: l, backfill: backfill}
}

// Handle parses one message and, if it is a signal, submits it.
func (i *SignalIntake) Handle(ctx context.Context, msg models.Message) (Decision, error) {
	sig, ok := parser.ParseMessage(msg)
	if !ok {
		i.metrics.RecordSignal(ReasonNotSignal)
		i.l.Debug("message ignored",
			applogger.String("message_id", msg.ID),
			applogger.String("source", msg.Source),
			applogger.Bool("edited", msg.Edited),
		)
		return Decision{Reason: ReasonNotSignal}, nil
	}

	d, err := i.sched.Admit(ctx, sig)
	if err != nil {
		i.metrics.RecordError("admit")
		return Decision{}, fmt.Errorf("admit signal: %w", err)
	}

	fields := []applogger.Field{
		applogger.String("message_id", msg.ID),
		applogger.String("source", msg.Source),
		applogger.Bool("edited", msg.Edited),
		applogger.String("pair", sig.Pair),
		applogger.String("direction", string(sig.Direction)),
		applogger.String("entry", sig.EntryTime.String()),
	}
	if d.Accepted {
		i.metrics.RecordSignal("accepted")
		i.l.Info("signal accepted", append(fields, applogger.String("chain_id", d.ChainID))...)
	} else {
		i.metrics.RecordSignal(d.Reason)
		i.l.Info("signal rejected", append(fields, applogger.String("reason", d.Reason))...)
	}
	return d, nil
}

func (i *SignalIntake) deliver(ctx context.Context, msg models.Message) {
	if _, err := i.Handle(ctx, msg); err != nil && !errors.Is(err, context.Canceled) {
		i.l.Error("handle message", applogger.String("message_id", msg.ID), applogger.Error(err))
	}
}

// Start starts every source and then runs the backfill scan if enabled.
func (i *SignalIntake) Start(ctx context.Context) error {
	for _, src := range i.sources {
		if err := src.Start(ctx, i.deliver); err != nil {
			return fmt.Errorf("start source %s: %w", src.Name(), err)
		}
		i.l.Info("message source started", applogger.String("source", src.Name()))
	}
	if i.backfill.Enabled {
		i.Backfill(ctx)
	}
	return nil
}

// Backfill replays recent history newest first and stops at the first
// message that parses as a signal, whether or not it is admitted.
func (i *SignalIntake) Backfill(ctx context.Context) {
	limit := i.backfill.Limit
	if limit <= 0 {
		limit = 20
	}
	for _, src := range i.sources {
		bf, ok := src.(drepo.Backfiller)
		if !ok {
			continue
		}
		msgs, err := bf.Recent(ctx, limit)
		if err != nil {
			i.metrics.RecordError("backfill")
			i.l.Warn("backfill failed", applogger.String("source", src.Name()), applogger.Error(err))
			continue
		}
		for _, m := range msgs {
			d, err := i.Handle(ctx, m)
			if err != nil {
				i.l.Warn("backfill message", applogger.String("message_id", m.ID), applogger.Error(err))
				return
			}
			if d.Parsed {
				i.l.Info("backfill found signal",
					applogger.String("source", src.Name()),
					applogger.String("message_id", m.ID),
					applogger.Bool("accepted", d.Accepted),
				)
				return
			}
		}
	}
}

// Close closes every source.
func (i *SignalIntake) Close() error {
	var errs []error
	for _, src := range i.sources {
		if err := src.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", src.Name(), err))
		}
	}
	return errors.Join(errs...)
}

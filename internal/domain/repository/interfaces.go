package repository

import (
	"context"
	"errors"

	"github.com/jtorres-1/mirror-trade/internal/domain/models"
)

// ErrExecutorBusy is returned by an executor that cannot accept a trade right now.
var ErrExecutorBusy = errors.New("executor busy")

// MessageSource delivers new and edited chat messages to a handler.
type MessageSource interface {
	Name() string
	// Start begins delivering messages and returns once the source is running.
	Start(ctx context.Context, deliver func(context.Context, models.Message)) error
	Close() error
}

// Backfiller is implemented by sources that can fetch recent history, newest first.
type Backfiller interface {
	Recent(ctx context.Context, limit int) ([]models.Message, error)
}

// TradeExecutor places one binary option trade and blocks until it settles.
type TradeExecutor interface {
	Name() string
	Submit(ctx context.Context, req models.TradeRequest) (models.TradeOutcome, error)
}

// TradeLog persists leg records.
type TradeLog interface {
	Record(ctx context.Context, rec models.LegRecord) error
	Close() error
}

// StateStore persists ledger state and seen message ids across restarts.
type StateStore interface {
	LoadLedger(ctx context.Context) (*models.LedgerSnapshot, error)
	SaveLedger(ctx context.Context, snap models.LedgerSnapshot) error
	MarkSeen(ctx context.Context, messageID string) error
	IsSeen(ctx context.Context, messageID string) (bool, error)
}

// Metrics is the engine's metrics interface.
type Metrics interface {
	RecordSignal(outcome string)
	RecordLeg(leg, result string, stake float64)
	RecordDailyProfit(profit float64, halted bool)
	RecordChainActive(active bool)
	RecordExecutorLatency(executor string, seconds float64)
	RecordError(kind string)
}

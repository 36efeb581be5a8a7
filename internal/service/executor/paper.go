package executor

import (
	"context"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"

	"github.com/jtorres-1/mirror-trade/internal/domain/models"
	drepo "github.com/jtorres-1/mirror-trade/internal/domain/repository"
	applogger "github.com/jtorres-1/mirror-trade/pkg/logger"
)

// PaperConfig configures the simulated executor.
type PaperConfig struct {
	WinRate float64
	// Payout is the profit fraction of the stake on a win.
	Payout float64
	// SettlementBuffer is added to the expiry before a trade settles.
	SettlementBuffer time.Duration
	// Fast settles immediately.
	Fast bool
	Seed uint64
}

// Paper settles trades with a seeded coin flip after the option expires.
// Only one trade may be open at a time.
type Paper struct {
	cfg  PaperConfig
	busy atomic.Bool
	mu   sync.Mutex
	rng  *rand.Rand
	l    *applogger.Logger
}

// NewPaper creates a paper executor.
func NewPaper(cfg PaperConfig, l *applogger.Logger) *Paper {
	if cfg.Seed == 0 {
		cfg.Seed = uint64(time.Now().UnixNano())
	}
	if l == nil {
		l = applogger.Nop()
	}
	return &Paper{
		cfg: cfg,
		rng: rand.New(rand.NewPCG(cfg.Seed, cfg.Seed^0x9e3779b97f4a7c15)),
		l:   l,
	}
}

func (p *Paper) Name() string { return "paper" }

// Submit waits for expiry plus the settlement buffer, then settles.
func (p *Paper) Submit(ctx context.Context, req models.TradeRequest) (models.TradeOutcome, error) {
	if !p.busy.CompareAndSwap(false, true) {
		return models.TradeOutcome{}, drepo.ErrExecutorBusy
	}
	defer p.busy.Store(false)

	if !p.cfg.Fast {
		wait := time.Duration(req.ExpiryMinutes)*time.Minute + p.cfg.SettlementBuffer
		t := time.NewTimer(wait)
		defer t.Stop()
		select {
		case <-ctx.Done():
			return models.TradeOutcome{}, ctx.Err()
		case <-t.C:
		}
	}

	out := p.settle(req.Stake)
	p.l.Debug("paper trade settled",
		applogger.String("client_order_id", req.ID),
		applogger.String("pair", req.Pair),
		applogger.String("result", string(out.Result)),
		applogger.Decimal("profit", out.Profit),
	)
	return out, nil
}

func (p *Paper) settle(stake decimal.Decimal) models.TradeOutcome {
	p.mu.Lock()
	roll := p.rng.Float64()
	p.mu.Unlock()

	if roll < p.cfg.WinRate {
		profit := stake.Mul(decimal.NewFromFloat(p.cfg.Payout)).Round(2)
		if !profit.IsPositive() {
			profit = decimal.New(1, -2)
		}
		return models.TradeOutcome{Result: models.ResultWin, Profit: profit}
	}
	return models.TradeOutcome{Result: models.ResultLoss, Profit: stake.Neg()}
}

package risk

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/jtorres-1/mirror-trade/internal/domain/models"
)

// DayKeyer maps an instant to its trading day.
type DayKeyer interface {
	DayKey(now time.Time) string
}

// Ledger tracks cumulative realized profit per trading day and halts
// trading once losses reach the stop threshold. It is owned by the scheduler.
type Ledger struct {
	days      DayKeyer
	threshold decimal.Decimal
	day       string
	profit    decimal.Decimal
	halted    bool
}

// NewLedger starts a ledger on the trading day of now. A zero threshold never halts.
func NewLedger(threshold decimal.Decimal, days DayKeyer, now time.Time) *Ledger {
	return &Ledger{
		days:      days,
		threshold: threshold,
		day:       days.DayKey(now),
		profit:    decimal.Zero,
	}
}

// CheckRollover resets profit and halt on a new trading day. It reports whether a reset happened.
func (l *Ledger) CheckRollover(now time.Time) bool {
	key := l.days.DayKey(now)
	if key == l.day {
		return false
	}
	l.day = key
	l.profit = decimal.Zero
	l.halted = false
	return true
}

// RecordOutcome adds realized profit and reports whether this call tripped the halt.
func (l *Ledger) RecordOutcome(profit decimal.Decimal) bool {
	l.profit = l.profit.Add(profit)
	if l.halted || !l.threshold.IsPositive() {
		return false
	}
	if l.profit.LessThanOrEqual(l.threshold.Neg()) {
		l.halted = true
		return true
	}
	return false
}

// Halted reports whether new trading is blocked for the rest of the day.
func (l *Ledger) Halted() bool { return l.halted }

// Profit returns the cumulative realized profit for the current day.
func (l *Ledger) Profit() decimal.Decimal { return l.profit }

// Day returns the current trading day key.
func (l *Ledger) Day() string { return l.day }

// Snapshot returns the persisted form of the ledger.
func (l *Ledger) Snapshot() models.LedgerSnapshot {
	return models.LedgerSnapshot{
		TradingDay:       l.day,
		CumulativeProfit: l.profit,
		Halted:           l.halted,
	}
}

// Restore loads a snapshot taken on the current trading day. Snapshots from
// other days are ignored; it reports whether the snapshot was applied.
func (l *Ledger) Restore(s models.LedgerSnapshot) bool {
	if s.TradingDay != l.day {
		return false
	}
	l.profit = s.CumulativeProfit
	l.halted = s.Halted
	return true
}

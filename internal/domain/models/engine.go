package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// ChainStatus is the state of the single execution chain slot.
type ChainStatus string

const (
	ChainIdle   ChainStatus = "IDLE"
	ChainActive ChainStatus = "ACTIVE"
)

// ChainSnapshot is a read-only view of the active chain.
type ChainSnapshot struct {
	Status        ChainStatus     `json:"status"`
	ChainID       string          `json:"chain_id,omitempty"`
	Pair          string          `json:"pair,omitempty"`
	Direction     Direction       `json:"direction,omitempty"`
	ExpiryMinutes int             `json:"expiry_minutes,omitempty"`
	ReEntryTimes  []string        `json:"re_entry_times,omitempty"`
	ReEntryIndex  int             `json:"re_entry_index"`
	Stake         decimal.Decimal `json:"stake"`
	Executing     bool            `json:"executing"`
	PendingLegs   []int           `json:"pending_legs,omitempty"`
	StartedAt     time.Time       `json:"started_at,omitempty"`
}

// LedgerSnapshot is the persisted state of the daily risk ledger.
type LedgerSnapshot struct {
	TradingDay       string          `json:"trading_day"`
	CumulativeProfit decimal.Decimal `json:"cumulative_profit"`
	Halted           bool            `json:"halted"`
}

// EngineSnapshot combines chain and ledger views for status reporting.
type EngineSnapshot struct {
	Chain  ChainSnapshot  `json:"chain"`
	Ledger LedgerSnapshot `json:"ledger"`
}

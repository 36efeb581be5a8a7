package models

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Result is the settled outcome of one leg.
type Result string

const (
	ResultWin     Result = "WIN"
	ResultLoss    Result = "LOSS"
	ResultError   Result = "ERROR"
	ResultSkipped Result = "SKIPPED"
)

// Completed reports whether the result carries a real profit figure.
func (r Result) Completed() bool {
	return r == ResultWin || r == ResultLoss
}

// TradeRequest is what the scheduler hands to an executor for one leg.
type TradeRequest struct {
	ID            string          `json:"client_order_id"`
	ChainID       string          `json:"chain_id"`
	Pair          string          `json:"pair"`
	Direction     Direction       `json:"direction"`
	ExpiryMinutes int             `json:"expiry_minutes"`
	Stake         decimal.Decimal `json:"amount"`
	Leg           int             `json:"leg"`
}

// TradeOutcome is the executor's report for a settled trade.
type TradeOutcome struct {
	Result Result          `json:"result"`
	Profit decimal.Decimal `json:"profit"`
}

// LegRecord is one row of the trade log.
type LegRecord struct {
	Timestamp     time.Time       `json:"ts_utc"`
	ChainID       string          `json:"chain_id"`
	Pair          string          `json:"pair"`
	Direction     Direction       `json:"direction"`
	ExpiryMinutes int             `json:"expiry_min"`
	Stake         decimal.Decimal `json:"amount"`
	Result        Result          `json:"result"`
	Profit        decimal.Decimal `json:"profit"`
	Leg           string          `json:"leg"`
}

// LegLabel names leg k of a chain: BASE for the first, ML1.. for re-entries.
func LegLabel(k int) string {
	if k == 0 {
		return "BASE"
	}
	return fmt.Sprintf("ML%d", k)
}

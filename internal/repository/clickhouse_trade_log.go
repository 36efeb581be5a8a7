package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jtorres-1/mirror-trade/internal/domain/models"
	drepo "github.com/jtorres-1/mirror-trade/internal/domain/repository"
)

// ClickHouseTradeLog stores leg records in a MergeTree table.
type ClickHouseTradeLog struct {
	db    *sql.DB
	table string
}

var _ drepo.TradeLog = (*ClickHouseTradeLog)(nil)

// NewClickHouseTradeLog creates a ClickHouse trade log. The pool is owned by
// pkg/clickhouse.Client.
func NewClickHouseTradeLog(db *sql.DB, table string) *ClickHouseTradeLog {
	return &ClickHouseTradeLog{db: db, table: table}
}

// TradeLogSchema returns the idempotent DDL for table.
func TradeLogSchema(table string) []string {
	return []string{fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	ts DateTime64(3, 'UTC'),
	chain_id String,
	pair LowCardinality(String),
	direction LowCardinality(String),
	expiry_min UInt16,
	amount Decimal(18, 2),
	result LowCardinality(String),
	profit Decimal(18, 2),
	leg LowCardinality(String)
) ENGINE = MergeTree
PARTITION BY toYYYYMM(ts)
ORDER BY (ts, chain_id, leg)`, table)}
}

func (s *ClickHouseTradeLog) insertQuery() string {
	return fmt.Sprintf("INSERT INTO %s (ts, chain_id, pair, direction, expiry_min, amount, result, profit, leg) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)", s.table)
}

func (s *ClickHouseTradeLog) Record(ctx context.Context, rec models.LegRecord) error {
	_, err := s.db.ExecContext(ctx, s.insertQuery(),
		rec.Timestamp.UTC(),
		rec.ChainID,
		rec.Pair,
		string(rec.Direction),
		uint16(rec.ExpiryMinutes),
		rec.Stake,
		string(rec.Result),
		rec.Profit,
		rec.Leg,
	)
	if err != nil {
		return fmt.Errorf("clickhouse insert leg: %w", err)
	}
	return nil
}

func (s *ClickHouseTradeLog) Close() error {
	return nil // Managed by pkg
}

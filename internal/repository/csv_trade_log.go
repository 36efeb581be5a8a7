package repository

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/jtorres-1/mirror-trade/internal/domain/models"
	drepo "github.com/jtorres-1/mirror-trade/internal/domain/repository"
)

// csvTimeLayout matches a naive UTC ISO-8601 timestamp with microseconds.
const csvTimeLayout = "2006-01-02T15:04:05.000000"

var csvHeader = []string{"ts_utc", "chain_id", "pair", "direction", "expiry_min", "amount", "result", "profit", "leg"}

// CSVTradeLog appends leg records to a CSV file, writing the header when the
// file is new.
type CSVTradeLog struct {
	mu sync.Mutex
	f  *os.File
	w  *csv.Writer
}

var _ drepo.TradeLog = (*CSVTradeLog)(nil)

// NewCSVTradeLog opens path for appending.
func NewCSVTradeLog(path string) (*CSVTradeLog, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("csv trade log dir: %w", err)
		}
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open csv trade log: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("stat csv trade log: %w", err)
	}

	l := &CSVTradeLog{f: f, w: csv.NewWriter(f)}
	if info.Size() == 0 {
		if err := l.write(csvHeader); err != nil {
			_ = f.Close()
			return nil, err
		}
	}
	return l, nil
}

func (l *CSVTradeLog) Record(_ context.Context, rec models.LegRecord) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.write([]string{
		rec.Timestamp.UTC().Format(csvTimeLayout),
		rec.ChainID,
		rec.Pair,
		string(rec.Direction),
		strconv.Itoa(rec.ExpiryMinutes),
		rec.Stake.StringFixed(2),
		string(rec.Result),
		rec.Profit.StringFixed(2),
		rec.Leg,
	})
}

func (l *CSVTradeLog) write(row []string) error {
	if err := l.w.Write(row); err != nil {
		return fmt.Errorf("write csv row: %w", err)
	}
	l.w.Flush()
	if err := l.w.Error(); err != nil {
		return fmt.Errorf("flush csv row: %w", err)
	}
	return nil
}

func (l *CSVTradeLog) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.w.Flush()
	return l.f.Close()
}

package usecase

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jtorres-1/mirror-trade/internal/domain/models"
	drepo "github.com/jtorres-1/mirror-trade/internal/domain/repository"
	applogger "github.com/jtorres-1/mirror-trade/pkg/logger"
)

type flakyTradeLog struct {
	memoryTradeLog
	failures int
	attempts int
	closed   bool
}

func (f *flakyTradeLog) Record(ctx context.Context, rec models.LegRecord) error {
	f.mu.Lock()
	f.attempts++
	fail := f.attempts <= f.failures
	f.mu.Unlock()
	if fail {
		return errors.New("sink unavailable")
	}
	return f.memoryTradeLog.Record(ctx, rec)
}

func (f *flakyTradeLog) Close() error {
	f.closed = true
	return nil
}

type memoryStateStore struct {
	mu     sync.Mutex
	ledger *models.LedgerSnapshot
	seen   map[string]bool
}

func (s *memoryStateStore) LoadLedger(context.Context) (*models.LedgerSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ledger, nil
}

func (s *memoryStateStore) SaveLedger(_ context.Context, snap models.LedgerSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ledger = &snap
	return nil
}

func (s *memoryStateStore) MarkSeen(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.seen == nil {
		s.seen = map[string]bool{}
	}
	s.seen[id] = true
	return nil
}

func (s *memoryStateStore) IsSeen(_ context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.seen[id], nil
}

func TestJournal_RetriesAndDrainsOnClose(t *testing.T) {
	tl := &flakyTradeLog{failures: 2}
	j := NewJournal(tl, nil, nopMetrics{}, applogger.Nop(), WithJournalRetry(3, time.Millisecond))
	j.Start()

	j.Record(models.LegRecord{ChainID: "c1", Leg: "BASE", Result: models.ResultLoss})
	require.NoError(t, j.Close())

	rows := tl.records()
	require.Len(t, rows, 1)
	assert.Equal(t, "c1", rows[0].ChainID)
	assert.Equal(t, 3, tl.attempts)
	assert.True(t, tl.closed)

	// writes after close are ignored
	j.Record(models.LegRecord{ChainID: "c2"})
	assert.Len(t, tl.records(), 1)
}

func TestJournal_GivesUpAfterAttempts(t *testing.T) {
	tl := &flakyTradeLog{failures: 10}
	j := NewJournal(tl, nil, nopMetrics{}, applogger.Nop(), WithJournalRetry(2, time.Millisecond))
	j.Start()
	j.Record(models.LegRecord{ChainID: "c1"})
	require.NoError(t, j.Close())
	assert.Empty(t, tl.records())
	assert.Equal(t, 2, tl.attempts)
}

func TestJournal_LedgerState(t *testing.T) {
	store := &memoryStateStore{}
	j := NewJournal(&memoryTradeLog{}, store, nopMetrics{}, applogger.Nop())
	j.Start()

	snap, err := j.LoadLedger(context.Background())
	require.NoError(t, err)
	assert.Nil(t, snap)

	j.SaveLedger(models.LedgerSnapshot{TradingDay: "2026-10-14", CumulativeProfit: dec("-2"), Halted: true})
	require.NoError(t, j.Close())

	snap, err = j.LoadLedger(context.Background())
	require.NoError(t, err)
	require.NotNil(t, snap)
	assert.Equal(t, "2026-10-14", snap.TradingDay)
	assert.True(t, snap.Halted)
}

func TestJournal_WithoutStore(t *testing.T) {
	j := NewJournal(&memoryTradeLog{}, nil, nopMetrics{}, applogger.Nop())
	snap, err := j.LoadLedger(context.Background())
	require.NoError(t, err)
	assert.Nil(t, snap)
	j.SaveLedger(models.LedgerSnapshot{})
	require.NoError(t, j.Close())
}

func TestScheduler_RestoresLedgerOnStart(t *testing.T) {
	store := &memoryStateStore{ledger: &models.LedgerSnapshot{TradingDay: "2026-10-14", CumulativeProfit: dec("-7"), Halted: true}}
	h := newHarnessWithStore(t, store)

	snap := h.snapshot(t)
	assert.True(t, snap.Ledger.Halted)
	assert.Equal(t, "-7", snap.Ledger.CumulativeProfit.String())

	d := h.admit(t, h.signal("m1", tod(14, 0)))
	assert.Equal(t, ReasonHaltActive, d.Reason)
}

type fanoutLog []*flakyTradeLog

func (f fanoutLog) Record(ctx context.Context, rec models.LegRecord) error {
	for _, s := range f {
		if err := s.Record(ctx, rec); err != nil {
			return err
		}
	}
	return nil
}

func (f fanoutLog) Sinks() []drepo.TradeLog {
	out := make([]drepo.TradeLog, len(f))
	for i, s := range f {
		out[i] = s
	}
	return out
}

func (f fanoutLog) Close() error { return nil }

func TestJournal_RetriesEachSinkOnItsOwn(t *testing.T) {
	healthy := &flakyTradeLog{}
	flaky := &flakyTradeLog{failures: 1}
	j := NewJournal(fanoutLog{healthy, flaky}, nil, nopMetrics{}, applogger.Nop(), WithJournalRetry(3, time.Millisecond))
	j.Start()

	j.Record(models.LegRecord{ChainID: "c1", Leg: "BASE"})
	require.NoError(t, j.Close())

	assert.Len(t, healthy.records(), 1)
	assert.Equal(t, 1, healthy.attempts)
	assert.Len(t, flaky.records(), 1)
	assert.Equal(t, 2, flaky.attempts)
}

package usecase

import (
	"context"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/jtorres-1/mirror-trade/internal/domain/models"
	drepo "github.com/jtorres-1/mirror-trade/internal/domain/repository"
	applogger "github.com/jtorres-1/mirror-trade/pkg/logger"
)

// Journal writes leg records and ledger snapshots off the scheduler
// goroutine. Writes are buffered and retried with backoff.
type Journal struct {
	log      drepo.TradeLog
	store    drepo.StateStore
	metrics  drepo.Metrics
	l        *applogger.Logger
	timeout  time.Duration
	attempts int
	backoff  time.Duration

	jobs    chan journalJob
	wg      sync.WaitGroup
	mu      sync.Mutex
	started bool
	closed  bool
}

type journalJob struct {
	leg    *models.LegRecord
	ledger *models.LedgerSnapshot
}

// JournalOption configures a Journal.
type JournalOption func(*Journal)

// WithJournalBuffer sets how many pending writes are held before dropping.
func WithJournalBuffer(n int) JournalOption {
	return func(j *Journal) {
		if n > 0 {
			j.jobs = make(chan journalJob, n)
		}
	}
}

// WithJournalRetry sets the attempts per write and the base backoff.
func WithJournalRetry(attempts int, backoff time.Duration) JournalOption {
	return func(j *Journal) {
		if attempts > 0 {
			j.attempts = attempts
		}
		if backoff > 0 {
			j.backoff = backoff
		}
	}
}

// NewJournal creates a Journal. store may be nil when state is not persisted.
func NewJournal(log drepo.TradeLog, store drepo.StateStore, metrics drepo.Metrics, l *applogger.Logger, opts ...JournalOption) *Journal {
	j := &Journal{
		log:      log,
		store:    store,
		metrics:  metrics,
		l:        l,
		timeout:  5 * time.Second,
		attempts: 3,
		backoff:  100 * time.Millisecond,
		jobs:     make(chan journalJob, 1024),
	}
	for _, opt := range opts {
		opt(j)
	}
	return j
}

// Start launches the background writer.
func (j *Journal) Start() {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.started || j.closed {
		return
	}
	j.started = true
	j.wg.Add(1)
	go func() {
		defer j.wg.Done()
		for job := range j.jobs {
			j.write(job)
		}
	}()
}

// Record queues a leg record.
func (j *Journal) Record(rec models.LegRecord) {
	j.enqueue(journalJob{leg: &rec})
}

// SaveLedger queues a ledger snapshot.
func (j *Journal) SaveLedger(snap models.LedgerSnapshot) {
	if j.store == nil {
		return
	}
	j.enqueue(journalJob{ledger: &snap})
}

// LoadLedger reads the last persisted ledger snapshot, nil when none.
func (j *Journal) LoadLedger(ctx context.Context) (*models.LedgerSnapshot, error) {
	if j.store == nil {
		return nil, nil
	}
	ctx, cancel := context.WithTimeout(ctx, j.timeout)
	defer cancel()
	return j.store.LoadLedger(ctx)
}

func (j *Journal) enqueue(job journalJob) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.closed {
		return
	}
	select {
	case j.jobs <- job:
	default:
		j.metrics.RecordError("journal_buffer_full")
		j.l.Error("journal buffer full, dropping write")
	}
}

// fanout is implemented by trade logs that write to several sinks. Each sink
// is retried on its own.
type fanout interface {
	Sinks() []drepo.TradeLog
}

func (j *Journal) write(job journalJob) {
	if job.leg == nil {
		j.retry("save_ledger", func(ctx context.Context) error {
			return j.store.SaveLedger(ctx, *job.ledger)
		})
		return
	}

	sinks := []drepo.TradeLog{j.log}
	if f, ok := j.log.(fanout); ok {
		sinks = f.Sinks()
	}
	for _, sink := range sinks {
		j.retry("record_leg", func(ctx context.Context) error {
			return sink.Record(ctx, *job.leg)
		})
	}
}

func (j *Journal) retry(op string, fn func(context.Context) error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = j.backoff
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxElapsedTime = 0

	err := backoff.Retry(func() error {
		ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
		defer cancel()
		return fn(ctx)
	}, backoff.WithMaxRetries(b, uint64(j.attempts-1)))
	if err == nil {
		return
	}

	j.metrics.RecordError("journal_write")
	j.l.Error("journal write failed",
		applogger.String("op", op),
		applogger.Error(err),
		applogger.Int("attempts", j.attempts),
	)
}

// Close drains pending writes and closes the trade log.
func (j *Journal) Close() error {
	j.mu.Lock()
	if j.closed {
		j.mu.Unlock()
		return nil
	}
	j.closed = true
	close(j.jobs)
	started := j.started
	j.mu.Unlock()

	if started {
		j.wg.Wait()
	}
	return j.log.Close()
}

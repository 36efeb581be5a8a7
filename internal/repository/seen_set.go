package repository

import (
	"context"
	"time"

	drepo "github.com/jtorres-1/mirror-trade/internal/domain/repository"
	"github.com/jtorres-1/mirror-trade/internal/services/dedup"
	applogger "github.com/jtorres-1/mirror-trade/pkg/logger"
)

const seenStoreTimeout = 500 * time.Millisecond

// PersistentSeenSet is a dedup.SeenSet that survives restarts. Lookups hit
// memory first; store errors are logged and treated as "not seen".
type PersistentSeenSet struct {
	mem   *dedup.MemorySeenSet
	store drepo.StateStore
	l     *applogger.Logger
}

var _ dedup.SeenSet = (*PersistentSeenSet)(nil)

// NewPersistentSeenSet creates a seen set backed by store.
func NewPersistentSeenSet(store drepo.StateStore, l *applogger.Logger) *PersistentSeenSet {
	if l == nil {
		l = applogger.Nop()
	}
	return &PersistentSeenSet{mem: dedup.NewMemorySeenSet(), store: store, l: l}
}

func (s *PersistentSeenSet) Contains(id string) bool {
	if s.mem.Contains(id) {
		return true
	}
	ctx, cancel := context.WithTimeout(context.Background(), seenStoreTimeout)
	defer cancel()
	seen, err := s.store.IsSeen(ctx, id)
	if err != nil {
		s.l.Warn("seen lookup failed", applogger.String("message_id", id), applogger.Error(err))
		return false
	}
	if seen {
		s.mem.Add(id)
	}
	return seen
}

func (s *PersistentSeenSet) Add(id string) {
	s.mem.Add(id)
	ctx, cancel := context.WithTimeout(context.Background(), seenStoreTimeout)
	defer cancel()
	if err := s.store.MarkSeen(ctx, id); err != nil {
		s.l.Warn("seen persist failed", applogger.String("message_id", id), applogger.Error(err))
	}
}

package dedup

import (
	"sync"
	"time"

	"github.com/jtorres-1/mirror-trade/internal/domain/models"
)

// Reason names why a signal was not admitted.
type Reason string

const (
	ReasonNone             Reason = ""
	ReasonDuplicateMessage Reason = "duplicate_message"
	ReasonStaleMessage     Reason = "stale_message"
	ReasonRapidFire        Reason = "rapid_fire"
	ReasonChainBusy        Reason = "chain_busy"
	ReasonNotRelevant      Reason = "not_relevant"
)

const (
	DefaultStaleAfter      = 120 * time.Second
	DefaultDuplicateWindow = 60 * time.Second
)

// Verdict is the outcome of an admission check.
type Verdict struct {
	Accepted bool
	Reason   Reason
}

// SeenSet remembers message ids that produced an accepted signal.
type SeenSet interface {
	Contains(id string) bool
	Add(id string)
}

// RelevanceChecker decides whether an entry time is still actionable.
type RelevanceChecker interface {
	IsStillRelevant(t models.TimeOfDay, now time.Time) bool
}

// Config holds the gate thresholds.
type Config struct {
	StaleAfter      time.Duration
	DuplicateWindow time.Duration
}

// Gate filters duplicate, stale and overlapping signals.
// It is not safe for concurrent use; the scheduler owns it.
type Gate struct {
	cfg          Config
	relevance    RelevanceChecker
	seen         SeenSet
	lastAccepted time.Time
}

// NewGate creates a Gate. A nil seen set uses an in-memory one.
func NewGate(cfg Config, relevance RelevanceChecker, seen SeenSet) *Gate {
	if cfg.StaleAfter <= 0 {
		cfg.StaleAfter = DefaultStaleAfter
	}
	if cfg.DuplicateWindow <= 0 {
		cfg.DuplicateWindow = DefaultDuplicateWindow
	}
	if seen == nil {
		seen = NewMemorySeenSet()
	}
	return &Gate{cfg: cfg, relevance: relevance, seen: seen}
}

// Admit runs the checks in order and records the signal when accepted.
func (g *Gate) Admit(sig models.Signal, now time.Time, chainActive bool) Verdict {
	if sig.SourceMessageID != "" && g.seen.Contains(sig.SourceMessageID) {
		return reject(ReasonDuplicateMessage)
	}
	if !sig.ReceivedAt.IsZero() && now.Sub(sig.ReceivedAt) > g.cfg.StaleAfter {
		return reject(ReasonStaleMessage)
	}
	if !g.lastAccepted.IsZero() && now.Sub(g.lastAccepted) < g.cfg.DuplicateWindow {
		return reject(ReasonRapidFire)
	}
	if chainActive {
		return reject(ReasonChainBusy)
	}
	if !g.relevance.IsStillRelevant(sig.EntryTime, now) {
		return reject(ReasonNotRelevant)
	}

	if sig.SourceMessageID != "" {
		g.seen.Add(sig.SourceMessageID)
	}
	g.lastAccepted = now
	return Verdict{Accepted: true}
}

// LastAccepted returns when the last signal was admitted.
func (g *Gate) LastAccepted() time.Time { return g.lastAccepted }

func reject(r Reason) Verdict {
	return Verdict{Reason: r}
}

// MemorySeenSet is a process-lifetime SeenSet.
type MemorySeenSet struct {
	mu  sync.RWMutex
	ids map[string]struct{}
}

// NewMemorySeenSet creates an empty MemorySeenSet.
func NewMemorySeenSet() *MemorySeenSet {
	return &MemorySeenSet{ids: make(map[string]struct{})}
}

func (s *MemorySeenSet) Contains(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.ids[id]
	return ok
}

func (s *MemorySeenSet) Add(id string) {
	s.mu.Lock()
	s.ids[id] = struct{}{}
	s.mu.Unlock()
}

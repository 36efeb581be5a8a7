package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jtorres-1/mirror-trade/internal/domain/models"
	drepo "github.com/jtorres-1/mirror-trade/internal/domain/repository"
	"github.com/jtorres-1/mirror-trade/pkg/cache"
)

const (
	ledgerKey     = "ledger"
	seenKeyPrefix = "seen"
	// ledgerTTL keeps a snapshot past the trading day it belongs to.
	ledgerTTL = 48 * time.Hour
)

// CacheStateStore keeps engine state in a cache.Service (memory or Redis).
type CacheStateStore struct {
	cache   cache.Service
	seenTTL time.Duration
}

var _ drepo.StateStore = (*CacheStateStore)(nil)

// NewCacheStateStore creates a state store. Seen ids expire after seenTTL;
// zero keeps them forever.
func NewCacheStateStore(c cache.Service, seenTTL time.Duration) *CacheStateStore {
	return &CacheStateStore{cache: c, seenTTL: seenTTL}
}

func (s *CacheStateStore) LoadLedger(ctx context.Context) (*models.LedgerSnapshot, error) {
	var snap models.LedgerSnapshot
	if err := s.cache.Get(ctx, ledgerKey, &snap); err != nil {
		if errors.Is(err, cache.ErrCacheMiss) {
			return nil, nil
		}
		return nil, fmt.Errorf("load ledger: %w", err)
	}
	return &snap, nil
}

func (s *CacheStateStore) SaveLedger(ctx context.Context, snap models.LedgerSnapshot) error {
	if err := s.cache.Set(ctx, ledgerKey, snap, ledgerTTL); err != nil {
		return fmt.Errorf("save ledger: %w", err)
	}
	return nil
}

func (s *CacheStateStore) MarkSeen(ctx context.Context, messageID string) error {
	if _, err := s.cache.SetNX(ctx, cache.GenerateKey(seenKeyPrefix, messageID), "1", s.seenTTL); err != nil {
		return fmt.Errorf("mark seen %s: %w", messageID, err)
	}
	return nil
}

func (s *CacheStateStore) IsSeen(ctx context.Context, messageID string) (bool, error) {
	ok, err := s.cache.Exists(ctx, cache.GenerateKey(seenKeyPrefix, messageID))
	if err != nil {
		return false, fmt.Errorf("is seen %s: %w", messageID, err)
	}
	return ok, nil
}

// Package memory provides the in-memory store implementation. It is safe
// for concurrent use and is primarily intended for tests and local
// development.
package memory

import (
	"context"
	"math/big"
	"sync"

	"github.com/relaybridge/feed_registry/internal/app/domain/feed"
	"github.com/relaybridge/feed_registry/internal/app/storage"
)

// maxHistory bounds per-feed round history; the oldest rounds are pruned
// first. The latest slot is unaffected by pruning.
const maxHistory = 1024

type feedEntry struct {
	record  feed.Feed
	history map[string]feed.Round
	order   []string
}

// Store is an in-memory implementation of the storage interfaces.
type Store struct {
	mu       sync.RWMutex
	feeds    map[string]*feedEntry
	ordering []string
	global   uint64
	treasury uint64
}

var _ storage.FeedStore = (*Store)(nil)
var _ storage.TreasuryStore = (*Store)(nil)

// New creates an empty store.
func New() *Store {
	return &Store{feeds: make(map[string]*feedEntry)}
}

// FeedStore implementation --------------------------------------------------

func (s *Store) CreateFeed(_ context.Context, f feed.Feed) (feed.Feed, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.feeds[f.ID]; exists {
		return feed.Feed{}, feed.ErrAlreadyRegistered
	}
	s.createLocked(f)
	return f.Clone(), nil
}

func (s *Store) createLocked(f feed.Feed) {
	s.feeds[f.ID] = &feedEntry{
		record:  f.Clone(),
		history: make(map[string]feed.Round),
	}
	s.ordering = append(s.ordering, f.ID)
}

func (s *Store) SetFeedEnabled(_ context.Context, id string, enabled bool) (feed.Feed, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.feeds[id]
	if !ok {
		return feed.Feed{}, feed.ErrFeedNotFound
	}
	entry.record.Enabled = enabled
	return entry.record.Clone(), nil
}

func (s *Store) GetFeed(_ context.Context, id string) (feed.Feed, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, ok := s.feeds[id]
	if !ok {
		return feed.Feed{}, feed.ErrFeedNotFound
	}
	return entry.record.Clone(), nil
}

func (s *Store) ListFeeds(_ context.Context) ([]feed.Feed, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]feed.Feed, 0, len(s.ordering))
	for _, id := range s.ordering {
		result = append(result, s.feeds[id].record.Clone())
	}
	return result, nil
}

func (s *Store) CountFeeds(_ context.Context) (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return uint64(len(s.ordering)), nil
}

func (s *Store) CommitRound(_ context.Context, commit storage.RoundCommit) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.feeds[commit.FeedID]
	if !ok {
		if !commit.Register {
			return feed.ErrFeedNotFound
		}
		s.createLocked(feed.Feed{
			ID:          commit.FeedID,
			Decimals:    commit.Decimals,
			Description: commit.Description,
			Enabled:     true,
		})
		entry = s.feeds[commit.FeedID]
	}

	round := commit.Round.Clone()
	entry.record.Latest = &round
	entry.record.TotalUpdates++
	entry.record.LastUpdateBlock = commit.Block
	entry.record.LastUpdateTimestamp = commit.Timestamp

	key := round.RoundID.String()
	if _, exists := entry.history[key]; !exists {
		entry.order = append(entry.order, key)
	}
	entry.history[key] = round.Clone()
	for len(entry.order) > maxHistory {
		oldest := entry.order[0]
		entry.order = entry.order[1:]
		delete(entry.history, oldest)
	}

	s.global++
	return nil
}

func (s *Store) RoundAt(_ context.Context, id string, roundID *big.Int) (feed.Round, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, ok := s.feeds[id]
	if !ok {
		return feed.Round{}, feed.ErrFeedNotFound
	}
	round, ok := entry.history[roundID.String()]
	if !ok {
		return feed.Round{}, feed.ErrRoundNotFound
	}
	return round.Clone(), nil
}

func (s *Store) TotalGlobalUpdates(_ context.Context) (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.global, nil
}

// TreasuryStore implementation ----------------------------------------------

func (s *Store) TreasuryBalance(_ context.Context) (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.treasury, nil
}

func (s *Store) TreasuryDeposit(_ context.Context, amount uint64) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.treasury += amount
	return s.treasury, nil
}

func (s *Store) TreasuryWithdraw(_ context.Context, amount uint64) (uint64, uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.treasury == 0 || amount > s.treasury {
		return 0, s.treasury, feed.ErrNoFunds
	}
	if amount == 0 {
		amount = s.treasury
	}
	s.treasury -= amount
	return amount, s.treasury, nil
}

// Package query exposes the read-only projections over the feed registry.
// Reads bypass the validation pipeline entirely and degrade gracefully:
// a feed without data reports stale rather than failing.
package query

import (
	"context"
	"math/big"
	"time"

	"github.com/relaybridge/feed_registry/internal/app/domain/feed"
	"github.com/relaybridge/feed_registry/internal/app/storage"
	"github.com/relaybridge/feed_registry/pkg/logger"
)

// LatestCache is an optional read-through cache for latest rounds. A miss
// or cache failure falls back to the store.
type LatestCache interface {
	GetLatest(ctx context.Context, feedID string) (feed.Round, bool)
	SetLatest(ctx context.Context, feedID string, round feed.Round)
}

// Service answers read queries.
type Service struct {
	store storage.FeedStore
	cache LatestCache
	log   *logger.Logger
	now   func() time.Time
}

// New constructs a query service. cache may be nil.
func New(store storage.FeedStore, cache LatestCache, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("query")
	}
	return &Service{store: store, cache: cache, log: log, now: time.Now}
}

// WithClock overrides the staleness clock. Intended for tests.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// LatestRound returns the most recent accepted round for a feed, or
// feed.ErrNoData when none has been committed yet.
func (s *Service) LatestRound(ctx context.Context, feedID string) (feed.Round, error) {
	if s.cache != nil {
		if round, ok := s.cache.GetLatest(ctx, feedID); ok {
			return round, nil
		}
	}

	record, err := s.store.GetFeed(ctx, feedID)
	if err != nil {
		return feed.Round{}, err
	}
	if record.Latest == nil {
		return feed.Round{}, feed.ErrNoData
	}

	round := record.Latest.Clone()
	if s.cache != nil {
		s.cache.SetLatest(ctx, feedID, round)
	}
	return round, nil
}

// RoundAt returns the historical round with the given id, or
// feed.ErrRoundNotFound.
func (s *Service) RoundAt(ctx context.Context, feedID string, roundID *big.Int) (feed.Round, error) {
	return s.store.RoundAt(ctx, feedID, roundID)
}

// AllPrices returns the latest answer and staleness flag of every feed,
// ordered as List.
func (s *Service) AllPrices(ctx context.Context) ([]feed.PriceRow, error) {
	records, err := s.store.ListFeeds(ctx)
	if err != nil {
		return nil, err
	}

	now := uint64(s.now().Unix())
	rows := make([]feed.PriceRow, 0, len(records))
	for _, record := range records {
		row := feed.PriceRow{FeedID: record.ID, Stale: true}
		if record.Latest != nil {
			row.Answer = record.Latest.Answer
			row.UpdatedAt = record.Latest.UpdatedAt
			row.Stale = stale(now, record.Latest.UpdatedAt)
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// Stats returns the per-feed aggregate counters and staleness flag.
func (s *Service) Stats(ctx context.Context, feedID string) (feed.Stats, error) {
	record, err := s.store.GetFeed(ctx, feedID)
	if err != nil {
		return feed.Stats{}, err
	}

	st := feed.Stats{
		TotalUpdates:        record.TotalUpdates,
		LastUpdateBlock:     record.LastUpdateBlock,
		LastUpdateTimestamp: record.LastUpdateTimestamp,
		Stale:               true,
	}
	if record.Latest != nil {
		st.Stale = stale(uint64(s.now().Unix()), record.Latest.UpdatedAt)
	}
	return st, nil
}

// IsStale reports whether a feed has no data or its latest update is older
// than the staleness window.
func (s *Service) IsStale(ctx context.Context, feedID string) (bool, error) {
	record, err := s.store.GetFeed(ctx, feedID)
	if err != nil {
		return false, err
	}
	if record.Latest == nil {
		return true, nil
	}
	return stale(uint64(s.now().Unix()), record.Latest.UpdatedAt), nil
}

// TotalGlobalUpdates returns the count of committed updates across feeds.
func (s *Service) TotalGlobalUpdates(ctx context.Context) (uint64, error) {
	return s.store.TotalGlobalUpdates(ctx)
}

func stale(now, updatedAt uint64) bool {
	if updatedAt >= now {
		return false
	}
	return time.Duration(now-updatedAt)*time.Second > feed.StaleWindow
}

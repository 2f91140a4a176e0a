package query

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/relaybridge/feed_registry/internal/app/domain/feed"
	"github.com/relaybridge/feed_registry/internal/app/storage"
	"github.com/relaybridge/feed_registry/internal/app/storage/memory"
)

func commitRound(t *testing.T, store *memory.Store, feedID string, roundID, answer int64, updatedAt uint64) {
	t.Helper()
	err := store.CommitRound(context.Background(), storage.RoundCommit{
		FeedID: feedID,
		Round: feed.Round{
			RoundID:         big.NewInt(roundID),
			Answer:          big.NewInt(answer),
			StartedAt:       updatedAt,
			UpdatedAt:       updatedAt,
			AnsweredInRound: big.NewInt(roundID),
		},
		Block:     1,
		Timestamp: updatedAt,
	})
	if err != nil {
		t.Fatalf("commit round %d: %v", roundID, err)
	}
}

func newFeed(t *testing.T, store *memory.Store, id string) {
	t.Helper()
	if _, err := store.CreateFeed(context.Background(), feed.Feed{ID: id, Decimals: 8, Enabled: true}); err != nil {
		t.Fatalf("create feed: %v", err)
	}
}

func TestLatestRound(t *testing.T) {
	store := memory.New()
	newFeed(t, store, "F1")
	svc := New(store, nil, nil)

	if _, err := svc.LatestRound(context.Background(), "F1"); !errors.Is(err, feed.ErrNoData) {
		t.Fatalf("expected ErrNoData, got %v", err)
	}
	if _, err := svc.LatestRound(context.Background(), "missing"); !errors.Is(err, feed.ErrFeedNotFound) {
		t.Fatalf("expected ErrFeedNotFound, got %v", err)
	}

	commitRound(t, store, "F1", 1, 100, 1000)
	commitRound(t, store, "F1", 2, 110, 1100)

	round, err := svc.LatestRound(context.Background(), "F1")
	if err != nil {
		t.Fatalf("latest: %v", err)
	}
	if round.RoundID.Int64() != 2 || round.Answer.Int64() != 110 {
		t.Fatalf("unexpected latest: %#v", round)
	}
}

func TestRoundAt(t *testing.T) {
	store := memory.New()
	newFeed(t, store, "F1")
	svc := New(store, nil, nil)

	commitRound(t, store, "F1", 1, 100, 1000)
	commitRound(t, store, "F1", 2, 110, 1100)

	round, err := svc.RoundAt(context.Background(), "F1", big.NewInt(1))
	if err != nil {
		t.Fatalf("round at: %v", err)
	}
	if round.RoundID.Int64() != 1 || round.Answer.Int64() != 100 {
		t.Fatalf("unexpected round: %#v", round)
	}

	if _, err := svc.RoundAt(context.Background(), "F1", big.NewInt(7)); !errors.Is(err, feed.ErrRoundNotFound) {
		t.Fatalf("expected ErrRoundNotFound, got %v", err)
	}
}

func TestIsStale(t *testing.T) {
	store := memory.New()
	newFeed(t, store, "F1")

	now := time.Unix(100000, 0)
	svc := New(store, nil, nil).WithClock(func() time.Time { return now })

	// No data at all reads as stale.
	stale, err := svc.IsStale(context.Background(), "F1")
	if err != nil || !stale {
		t.Fatalf("expected stale for empty feed, got %v %v", stale, err)
	}

	// Four hours old: outside the three-hour window.
	commitRound(t, store, "F1", 1, 100, uint64(now.Add(-4*time.Hour).Unix()))
	if stale, _ = svc.IsStale(context.Background(), "F1"); !stale {
		t.Fatalf("expected stale at 4h silence")
	}

	// One hour old: fresh.
	commitRound(t, store, "F1", 2, 110, uint64(now.Add(-1*time.Hour).Unix()))
	if stale, _ = svc.IsStale(context.Background(), "F1"); stale {
		t.Fatalf("expected fresh at 1h silence")
	}
}

func TestAllPrices(t *testing.T) {
	store := memory.New()
	newFeed(t, store, "F1")
	newFeed(t, store, "F2")
	newFeed(t, store, "F3")

	now := time.Unix(100000, 0)
	svc := New(store, nil, nil).WithClock(func() time.Time { return now })

	commitRound(t, store, "F1", 1, 100, uint64(now.Add(-1*time.Hour).Unix()))
	commitRound(t, store, "F2", 1, 200, uint64(now.Add(-4*time.Hour).Unix()))

	rows, err := svc.AllPrices(context.Background())
	if err != nil {
		t.Fatalf("all prices: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("expected 3 rows, got %d", len(rows))
	}
	if rows[0].FeedID != "F1" || rows[0].Stale || rows[0].Answer.Int64() != 100 {
		t.Fatalf("unexpected F1 row: %#v", rows[0])
	}
	if rows[1].FeedID != "F2" || !rows[1].Stale {
		t.Fatalf("unexpected F2 row: %#v", rows[1])
	}
	if rows[2].FeedID != "F3" || !rows[2].Stale || rows[2].Answer != nil {
		t.Fatalf("unexpected F3 row: %#v", rows[2])
	}
}

func TestStatsAndGlobalCounter(t *testing.T) {
	store := memory.New()
	newFeed(t, store, "F1")

	now := time.Unix(100000, 0)
	svc := New(store, nil, nil).WithClock(func() time.Time { return now })

	commitRound(t, store, "F1", 1, 100, uint64(now.Add(-30*time.Minute).Unix()))
	commitRound(t, store, "F1", 2, 110, uint64(now.Add(-20*time.Minute).Unix()))

	stats, err := svc.Stats(context.Background(), "F1")
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.TotalUpdates != 2 || stats.Stale {
		t.Fatalf("unexpected stats: %#v", stats)
	}

	total, err := svc.TotalGlobalUpdates(context.Background())
	if err != nil || total != 2 {
		t.Fatalf("expected 2 global updates, got %d (%v)", total, err)
	}
}

type fakeCache struct {
	entries map[string]feed.Round
	hits    int
	writes  int
}

func (c *fakeCache) GetLatest(_ context.Context, feedID string) (feed.Round, bool) {
	round, ok := c.entries[feedID]
	if ok {
		c.hits++
	}
	return round, ok
}

func (c *fakeCache) SetLatest(_ context.Context, feedID string, round feed.Round) {
	c.entries[feedID] = round
	c.writes++
}

func TestLatestRound_CacheReadThrough(t *testing.T) {
	store := memory.New()
	newFeed(t, store, "F1")
	commitRound(t, store, "F1", 1, 100, 1000)

	cache := &fakeCache{entries: map[string]feed.Round{}}
	svc := New(store, cache, nil)

	if _, err := svc.LatestRound(context.Background(), "F1"); err != nil {
		t.Fatalf("latest: %v", err)
	}
	if cache.writes != 1 {
		t.Fatalf("expected cache fill, writes=%d", cache.writes)
	}

	round, err := svc.LatestRound(context.Background(), "F1")
	if err != nil {
		t.Fatalf("latest from cache: %v", err)
	}
	if cache.hits != 1 || round.RoundID.Int64() != 1 {
		t.Fatalf("expected cache hit, hits=%d round=%#v", cache.hits, round)
	}
}

// Package storage defines the persistence interfaces the services depend
// on. Implementations live in the memory and postgres subpackages.
package storage

import (
	"context"
	"math/big"

	"github.com/relaybridge/feed_registry/internal/app/domain/feed"
)

// RoundCommit is the atomic unit of a validated update: the round to write,
// the counters to bump, and, for auto-registration, the feed to create in
// the same step. A commit either applies in full or not at all.
type RoundCommit struct {
	FeedID string

	// Register creates the feed as part of this commit. Auto-registration
	// is part of the validation pipeline, so a failed pipeline must leave
	// no feed behind; deferring creation to the commit guarantees that.
	Register    bool
	Decimals    uint8
	Description string

	Round     feed.Round
	Block     uint64
	Timestamp uint64
}

// FeedStore persists feed records, their rounds, and the global counter.
type FeedStore interface {
	// CreateFeed registers a feed. Fails with feed.ErrAlreadyRegistered
	// when the identifier exists.
	CreateFeed(ctx context.Context, f feed.Feed) (feed.Feed, error)

	// SetFeedEnabled toggles the enabled gate without touching history or
	// counters. Fails with feed.ErrFeedNotFound for unknown identifiers.
	SetFeedEnabled(ctx context.Context, id string, enabled bool) (feed.Feed, error)

	// GetFeed returns the record, or feed.ErrFeedNotFound.
	GetFeed(ctx context.Context, id string) (feed.Feed, error)

	// ListFeeds returns all records in registration order.
	ListFeeds(ctx context.Context) ([]feed.Feed, error)

	// CountFeeds returns the number of registered feeds.
	CountFeeds(ctx context.Context) (uint64, error)

	// CommitRound applies one validated update atomically: optional feed
	// creation, latest-slot write, history insert, per-feed and global
	// counter increments.
	CommitRound(ctx context.Context, commit RoundCommit) error

	// RoundAt returns a historical round, or feed.ErrRoundNotFound.
	RoundAt(ctx context.Context, id string, roundID *big.Int) (feed.Round, error)

	// TotalGlobalUpdates returns the number of commits across all feeds.
	TotalGlobalUpdates(ctx context.Context) (uint64, error)
}

// TreasuryStore persists the deployment's operational balance.
type TreasuryStore interface {
	// TreasuryBalance returns the current balance.
	TreasuryBalance(ctx context.Context) (uint64, error)

	// TreasuryDeposit credits the balance and returns the new total.
	TreasuryDeposit(ctx context.Context, amount uint64) (uint64, error)

	// TreasuryWithdraw debits amount, or the full balance when amount is
	// zero. Fails with feed.ErrNoFunds when the balance is zero or short.
	// Returns the amount withdrawn and the remaining balance.
	TreasuryWithdraw(ctx context.Context, amount uint64) (withdrawn, remaining uint64, err error)
}

// Package validator implements the acceptance pipeline for relayed price
// updates: authorization, lookup and auto-registration, payload validation,
// monotonicity, and the atomic commit.
package validator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/relaybridge/feed_registry/internal/app/authz"
	"github.com/relaybridge/feed_registry/internal/app/domain/feed"
	"github.com/relaybridge/feed_registry/internal/app/events"
	"github.com/relaybridge/feed_registry/internal/app/metrics"
	"github.com/relaybridge/feed_registry/internal/app/storage"
	"github.com/relaybridge/feed_registry/pkg/logger"
)

// Service is the single entry point for inbound updates. The host
// serializes all mutating calls; the pipeline relies on that to validate
// against a snapshot and commit without a compare-and-swap.
type Service struct {
	policy *authz.Policy
	store  storage.FeedStore
	bus    *events.Bus
	log    *logger.Logger

	mu           sync.RWMutex
	expectedFeed string

	now    func() time.Time
	height func() uint64
	seq    atomic.Uint64
}

// New constructs an update validator bound to the given trust policy.
func New(policy *authz.Policy, store storage.FeedStore, bus *events.Bus, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("validator")
	}
	if bus == nil {
		bus = events.NewBus()
	}
	s := &Service{
		policy: policy,
		store:  store,
		bus:    bus,
		log:    log,
		now:    time.Now,
	}
	s.height = func() uint64 { return s.seq.Add(1) }
	return s
}

// WithClock overrides the host clock. Intended for tests.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// WithBlockSource overrides the host-observed block height source. The
// default is a per-process commit sequence.
func (s *Service) WithBlockSource(height func() uint64) *Service {
	s.height = height
	return s
}

// Policy exposes the trust policy for read surfaces.
func (s *Service) Policy() *authz.Policy {
	return s.policy
}

// ExpectedOriginFeed returns the single-feed constraint; empty means the
// deployment accepts any registered or auto-registerable feed.
func (s *Service) ExpectedOriginFeed() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.expectedFeed
}

// SetExpectedOriginFeed installs or clears the single-feed constraint.
// Operator-only; takes effect on the next call.
func (s *Service) SetExpectedOriginFeed(id string) {
	s.mu.Lock()
	old := s.expectedFeed
	s.expectedFeed = id
	s.mu.Unlock()

	s.bus.Publish(events.Event{Type: events.TypeExpectedFeedChanged, Old: old, New: id})
	s.log.WithField("old", old).
		WithField("new", id).
		Info("expected origin feed changed")
}

// SetAuthorizedOrigin replaces the origin identity allowed to produce
// updates. Operator-only; previously accepted data is untouched.
func (s *Service) SetAuthorizedOrigin(origin feed.Identity) {
	change := s.policy.SetAuthorizedOrigin(origin)

	s.bus.Publish(events.Event{
		Type: events.TypeOriginChanged,
		Old:  string(change.Old),
		New:  string(change.New),
	})
	s.log.WithField("old", string(change.Old)).
		WithField("new", string(change.New)).
		Info("authorized origin changed")
}

// SubmitUpdate runs the full acceptance pipeline. Every step short-circuits
// to a distinct error and a failing call leaves zero observable state
// change, auto-registration included.
func (s *Service) SubmitUpdate(ctx context.Context, transport feed.Identity, u feed.Update) error {
	if err := s.submit(ctx, transport, u); err != nil {
		metrics.RecordUpdateRejected(rejectionReason(err))
		s.log.WithError(err).
			WithField("feed_id", u.FeedID).
			Warn("update rejected")
		return err
	}
	metrics.RecordUpdateAccepted()
	return nil
}

func (s *Service) submit(ctx context.Context, transport feed.Identity, u feed.Update) error {
	// Authorization comes before any registry access so probing for
	// unknown feeds requires a trusted caller.
	if err := s.policy.Check(transport, u.Origin, u.MessageVersion); err != nil {
		return err
	}

	if u.RoundID == nil || u.Answer == nil {
		return fmt.Errorf("round id and answer are required")
	}

	record, err := s.store.GetFeed(ctx, u.FeedID)
	autoRegister := false
	switch {
	case errors.Is(err, feed.ErrFeedNotFound):
		// Validate against the record auto-registration would create;
		// the feed itself is only created inside the commit so a later
		// rejection leaves no trace.
		autoRegister = true
		record = feed.Feed{
			ID:          u.FeedID,
			Decimals:    u.Decimals,
			Description: feed.AutoRegisteredDescription,
			Enabled:     true,
		}
	case err != nil:
		return fmt.Errorf("lookup feed %s: %w", u.FeedID, err)
	}

	if !record.Enabled {
		return feed.ErrFeedDisabled
	}

	if expected := s.ExpectedOriginFeed(); expected != "" && u.FeedID != expected {
		return feed.ErrInvalidFeedSource
	}

	if u.Decimals != record.Decimals {
		return feed.ErrDecimalsMismatch
	}

	if u.Answer.Sign() <= 0 {
		return feed.ErrInvalidPrice
	}

	if record.Latest != nil {
		if u.RoundID.Cmp(record.Latest.RoundID) <= 0 {
			return feed.ErrStaleRound
		}
		if u.UpdatedAt < record.Latest.UpdatedAt {
			return feed.ErrStaleTimestamp
		}
	}

	commit := storage.RoundCommit{
		FeedID:      u.FeedID,
		Register:    autoRegister,
		Decimals:    u.Decimals,
		Description: feed.AutoRegisteredDescription,
		Round:       u.Round(),
		Block:       s.height(),
		Timestamp:   uint64(s.now().Unix()),
	}
	if err := s.store.CommitRound(ctx, commit); err != nil {
		return fmt.Errorf("commit round for feed %s: %w", u.FeedID, err)
	}

	if autoRegister {
		metrics.RecordFeedRegistered("auto")
		s.bus.Publish(events.Event{Type: events.TypeFeedRegistered, FeedID: u.FeedID})
	}

	s.bus.Publish(events.Event{
		Type:      events.TypeOriginVerified,
		FeedID:    u.FeedID,
		RoundID:   u.RoundID,
		Origin:    u.Origin,
		UpdatedAt: u.UpdatedAt,
	})
	s.bus.Publish(events.Event{
		Type:      events.TypeFeedUpdated,
		FeedID:    u.FeedID,
		RoundID:   u.RoundID,
		Answer:    u.Answer,
		UpdatedAt: u.UpdatedAt,
	})
	s.bus.Publish(events.Event{
		Type:      events.TypePriceUpdated,
		FeedID:    u.FeedID,
		RoundID:   u.RoundID,
		Answer:    u.Answer,
		UpdatedAt: u.UpdatedAt,
	})

	s.log.WithField("feed_id", u.FeedID).
		WithField("round_id", u.RoundID.String()).
		WithField("auto_registered", autoRegister).
		Info("update committed")
	return nil
}

func rejectionReason(err error) string {
	switch {
	case errors.Is(err, feed.ErrUntrustedTransport):
		return "untrusted_transport"
	case errors.Is(err, feed.ErrUntrustedOrigin):
		return "untrusted_origin"
	case errors.Is(err, feed.ErrVersionMismatch):
		return "version_mismatch"
	case errors.Is(err, feed.ErrFeedDisabled):
		return "feed_disabled"
	case errors.Is(err, feed.ErrInvalidFeedSource):
		return "invalid_feed_source"
	case errors.Is(err, feed.ErrDecimalsMismatch):
		return "decimals_mismatch"
	case errors.Is(err, feed.ErrInvalidPrice):
		return "invalid_price"
	case errors.Is(err, feed.ErrStaleRound):
		return "stale_round"
	case errors.Is(err, feed.ErrStaleTimestamp):
		return "stale_timestamp"
	default:
		return "internal"
	}
}

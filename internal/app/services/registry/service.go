// Package registry owns the mapping of feed identifier to feed record:
// explicit registration, enable/disable, and the read views over it.
package registry

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/relaybridge/feed_registry/internal/app/domain/feed"
	"github.com/relaybridge/feed_registry/internal/app/events"
	"github.com/relaybridge/feed_registry/internal/app/metrics"
	"github.com/relaybridge/feed_registry/internal/app/storage"
	"github.com/relaybridge/feed_registry/pkg/logger"
)

// Service manages feed registration and the enabled gate.
type Service struct {
	store storage.FeedStore
	bus   *events.Bus
	log   *logger.Logger
}

// New constructs a registry service.
func New(store storage.FeedStore, bus *events.Bus, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("registry")
	}
	if bus == nil {
		bus = events.NewBus()
	}
	return &Service{store: store, bus: bus, log: log}
}

// Register creates a feed record. Operator-only; fails with
// feed.ErrAlreadyRegistered when the identifier exists.
func (s *Service) Register(ctx context.Context, id string, decimals uint8, description string) (feed.Feed, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return feed.Feed{}, fmt.Errorf("feed id is required")
	}

	created, err := s.store.CreateFeed(ctx, feed.Feed{
		ID:          id,
		Decimals:    decimals,
		Description: description,
		Enabled:     true,
	})
	if err != nil {
		return feed.Feed{}, fmt.Errorf("register feed %s: %w", id, err)
	}

	metrics.RecordFeedRegistered("explicit")
	s.bus.Publish(events.Event{Type: events.TypeFeedRegistered, FeedID: id})
	s.log.WithField("feed_id", id).
		WithField("decimals", decimals).
		Info("feed registered")
	return created, nil
}

// RegisterBatch applies Register element-wise. The slices must have equal
// length; each element succeeds or fails independently and the combined
// error reports every failed element.
func (s *Service) RegisterBatch(ctx context.Context, ids []string, decimals []uint8, descriptions []string) error {
	if len(ids) != len(decimals) || len(ids) != len(descriptions) {
		return feed.ErrLengthMismatch
	}
	var errs []error
	for i := range ids {
		if _, err := s.Register(ctx, ids[i], decimals[i], descriptions[i]); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Enable lifts the update gate for a feed.
func (s *Service) Enable(ctx context.Context, id string) (feed.Feed, error) {
	return s.setEnabled(ctx, id, true)
}

// Disable blocks new updates for a feed. History and counters are kept and
// reads of existing data stay available.
func (s *Service) Disable(ctx context.Context, id string) (feed.Feed, error) {
	return s.setEnabled(ctx, id, false)
}

func (s *Service) setEnabled(ctx context.Context, id string, enabled bool) (feed.Feed, error) {
	updated, err := s.store.SetFeedEnabled(ctx, id, enabled)
	if err != nil {
		return feed.Feed{}, fmt.Errorf("set feed %s enabled=%t: %w", id, enabled, err)
	}
	s.log.WithField("feed_id", id).
		WithField("enabled", enabled).
		Info("feed gate changed")
	return updated, nil
}

// Get returns one feed record.
func (s *Service) Get(ctx context.Context, id string) (feed.Feed, error) {
	return s.store.GetFeed(ctx, id)
}

// List returns all feeds in registration order.
func (s *Service) List(ctx context.Context) ([]feed.Feed, error) {
	return s.store.ListFeeds(ctx)
}

// Count returns the number of registered feeds.
func (s *Service) Count(ctx context.Context) (uint64, error) {
	return s.store.CountFeeds(ctx)
}

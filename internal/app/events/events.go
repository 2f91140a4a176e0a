// Package events provides the notification bus external collaborators
// (dashboards, bots) subscribe to. Events are emitted after state has been
// committed; handlers observe, they never influence acceptance.
package events

import (
	"math/big"
	"sync"
	"time"

	"github.com/relaybridge/feed_registry/internal/app/domain/feed"
	"github.com/relaybridge/feed_registry/pkg/logger"
)

// Type classifies a notification.
type Type string

const (
	// Emitted by the validator on every committed update, in this order.
	TypeOriginVerified Type = "origin.verified"
	TypeFeedUpdated    Type = "feed.updated"
	TypePriceUpdated   Type = "price.updated"

	// Registry and policy changes.
	TypeFeedRegistered      Type = "feed.registered"
	TypeOriginChanged       Type = "origin.changed"
	TypeExpectedFeedChanged Type = "expected_feed.changed"
)

// Event is one notification. Fields beyond Type are populated per kind.
type Event struct {
	Type      Type      `json:"type"`
	Timestamp time.Time `json:"timestamp"`

	FeedID    string   `json:"feed_id,omitempty"`
	RoundID   *big.Int `json:"round_id,omitempty"`
	Answer    *big.Int `json:"answer,omitempty"`
	UpdatedAt uint64   `json:"updated_at,omitempty"`

	Origin feed.Identity `json:"origin,omitempty"`

	// Old/New carry the previous and current value for change events.
	Old string `json:"old,omitempty"`
	New string `json:"new,omitempty"`
}

// Handler processes events as they are published.
type Handler func(Event)

// Bus fans events out to subscribers synchronously, preserving emit order.
type Bus struct {
	mu       sync.RWMutex
	nextID   int
	handlers map[int]Handler
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{handlers: map[int]Handler{}}
}

// Subscribe registers a handler and returns its unsubscribe func.
func (b *Bus) Subscribe(h Handler) func() {
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.handlers[id] = h
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		delete(b.handlers, id)
		b.mu.Unlock()
	}
}

// Publish delivers the event to every subscriber. The timestamp is stamped
// here when the emitter left it zero.
func (b *Bus) Publish(ev Event) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}

	b.mu.RLock()
	handlers := make([]Handler, 0, len(b.handlers))
	for _, h := range b.handlers {
		handlers = append(handlers, h)
	}
	b.mu.RUnlock()

	for _, h := range handlers {
		h(ev)
	}
}

// LogSink subscribes a structured-log sink so every notification appears in
// the service log. Returns the unsubscribe func.
func LogSink(bus *Bus, log *logger.Logger) func() {
	if log == nil {
		log = logger.NewDefault("events")
	}
	return bus.Subscribe(func(ev Event) {
		entry := log.WithField("event", string(ev.Type))
		if ev.FeedID != "" {
			entry = entry.WithField("feed_id", ev.FeedID)
		}
		if ev.RoundID != nil {
			entry = entry.WithField("round_id", ev.RoundID.String())
		}
		entry.Debug("notification published")
	})
}

// Package monitor watches feed staleness in the background so operators
// see delivery problems before consumers do.
package monitor

import (
	"context"
	"sync"
	"time"

	"github.com/relaybridge/feed_registry/internal/app/metrics"
	"github.com/relaybridge/feed_registry/internal/app/services/query"
	"github.com/relaybridge/feed_registry/internal/app/storage"
	"github.com/relaybridge/feed_registry/internal/app/system"
	"github.com/relaybridge/feed_registry/pkg/logger"
)

var _ system.Service = (*Monitor)(nil)

// Monitor periodically scans all feeds, publishes the stale-feed gauge,
// and logs staleness transitions.
type Monitor struct {
	store    storage.FeedStore
	queries  *query.Service
	log      *logger.Logger
	interval time.Duration

	mu       sync.Mutex
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	running  bool
	wasStale map[string]bool
}

// New creates a lifecycle-managed staleness monitor.
func New(store storage.FeedStore, queries *query.Service, log *logger.Logger) *Monitor {
	if log == nil {
		log = logger.NewDefault("staleness-monitor")
	}
	return &Monitor{
		store:    store,
		queries:  queries,
		log:      log,
		interval: time.Minute,
		wasStale: make(map[string]bool),
	}
}

// WithInterval overrides the scan interval. Intended for tests.
func (m *Monitor) WithInterval(interval time.Duration) *Monitor {
	m.interval = interval
	return m
}

func (m *Monitor) Name() string { return "staleness-monitor" }

func (m *Monitor) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return nil
	}
	runCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.running = true
	m.mu.Unlock()

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		ticker := time.NewTicker(m.interval)
		defer ticker.Stop()

		for {
			select {
			case <-runCtx.Done():
				return
			case <-ticker.C:
				m.tick(runCtx)
			}
		}
	}()

	m.log.Info("staleness monitor started")
	return nil
}

func (m *Monitor) Stop(ctx context.Context) error {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return nil
	}
	cancel := m.cancel
	m.running = false
	m.cancel = nil
	m.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		m.wg.Wait()
	}()

	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}

	m.log.Info("staleness monitor stopped")
	return nil
}

func (m *Monitor) tick(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	rows, err := m.queries.AllPrices(ctx)
	if err != nil {
		m.log.WithError(err).Warn("staleness scan failed")
		return
	}

	staleCount := 0
	for _, row := range rows {
		if row.Stale {
			staleCount++
		}
		m.mu.Lock()
		was := m.wasStale[row.FeedID]
		m.wasStale[row.FeedID] = row.Stale
		m.mu.Unlock()

		if row.Stale && !was {
			m.log.WithField("feed_id", row.FeedID).
				WithField("updated_at", row.UpdatedAt).
				Warn("feed went stale")
		}
		if !row.Stale && was {
			m.log.WithField("feed_id", row.FeedID).Info("feed recovered")
		}
	}
	metrics.SetStaleFeeds(staleCount)
}

package query

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/relaybridge/feed_registry/internal/app/domain/feed"
	"github.com/relaybridge/feed_registry/internal/app/events"
	"github.com/relaybridge/feed_registry/pkg/logger"
)

// cacheTTL bounds how long a cached latest round may serve reads; commit
// notifications invalidate entries well before expiry.
const cacheTTL = feed.StaleWindow

const cachePrefix = "feedreg:latest:"

// RedisCache caches latest rounds in Redis. Failures are logged and treated
// as misses so the store stays authoritative.
type RedisCache struct {
	client *redis.Client
	log    *logger.Logger
}

var _ LatestCache = (*RedisCache)(nil)

// NewRedisCache creates a cache over the given client.
func NewRedisCache(client *redis.Client, log *logger.Logger) *RedisCache {
	if log == nil {
		log = logger.NewDefault("query-cache")
	}
	return &RedisCache{client: client, log: log}
}

// Attach subscribes the cache to commit notifications so a committed round
// invalidates the stale entry; the next read repopulates from the store.
// Returns the unsubscribe func.
func (c *RedisCache) Attach(bus *events.Bus) func() {
	return bus.Subscribe(func(ev events.Event) {
		if ev.Type != events.TypePriceUpdated {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		if err := c.client.Del(ctx, cachePrefix+ev.FeedID).Err(); err != nil {
			c.log.WithError(err).WithField("feed_id", ev.FeedID).Warn("cache invalidate failed")
		}
	})
}

func (c *RedisCache) GetLatest(ctx context.Context, feedID string) (feed.Round, bool) {
	payload, err := c.client.Get(ctx, cachePrefix+feedID).Bytes()
	if err != nil {
		if err != redis.Nil {
			c.log.WithError(err).WithField("feed_id", feedID).Warn("cache read failed")
		}
		return feed.Round{}, false
	}

	var round feed.Round
	if err := json.Unmarshal(payload, &round); err != nil {
		c.log.WithError(err).WithField("feed_id", feedID).Warn("cache entry corrupt")
		return feed.Round{}, false
	}
	if round.RoundID == nil || round.Answer == nil {
		return feed.Round{}, false
	}
	return round, true
}

func (c *RedisCache) SetLatest(ctx context.Context, feedID string, round feed.Round) {
	payload, err := json.Marshal(round)
	if err != nil {
		c.log.WithError(err).WithField("feed_id", feedID).Warn("cache encode failed")
		return
	}
	if err := c.client.Set(ctx, cachePrefix+feedID, payload, cacheTTL).Err(); err != nil {
		c.log.WithError(err).WithField("feed_id", feedID).Warn("cache write failed")
	}
}

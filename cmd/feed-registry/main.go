// Command feed-registry runs the destination-side feed registry: it
// accepts relayed price updates, validates them, and serves the read and
// operator surfaces.
package main

import (
	"context"
	"database/sql"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	_ "github.com/lib/pq"

	app "github.com/relaybridge/feed_registry/internal/app"
	"github.com/relaybridge/feed_registry/internal/app/domain/feed"
	"github.com/relaybridge/feed_registry/internal/app/httpapi"
	"github.com/relaybridge/feed_registry/internal/app/metrics"
	"github.com/relaybridge/feed_registry/internal/app/services/query"
	"github.com/relaybridge/feed_registry/internal/app/storage/postgres"
	"github.com/relaybridge/feed_registry/internal/config"
	"github.com/relaybridge/feed_registry/pkg/logger"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the configuration file")
	flag.Parse()

	log := logger.NewDefault("feed-registry")

	cfg, err := config.LoadOrDefault(*configPath)
	if err != nil {
		log.WithError(err).Error("load configuration")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	stores := app.Stores{}
	if cfg.Postgres.DSN != "" {
		db, err := sql.Open("postgres", cfg.Postgres.DSN)
		if err != nil {
			log.WithError(err).Error("open postgres")
			os.Exit(1)
		}
		defer db.Close()
		if err := db.PingContext(ctx); err != nil {
			log.WithError(err).Error("ping postgres")
			os.Exit(1)
		}
		if err := postgres.Apply(ctx, db); err != nil {
			log.WithError(err).Error("apply migrations")
			os.Exit(1)
		}
		store := postgres.New(db)
		stores.Feeds = store
		stores.Treasury = store
		log.Info("using postgres store")
	} else {
		log.Warn("no postgres DSN configured; using in-memory store")
	}

	var cache *query.RedisCache
	if cfg.Redis.Addr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			log.WithError(err).Warn("redis unreachable; read cache disabled")
		} else {
			cache = query.NewRedisCache(client, log)
			log.Info("latest-round read cache enabled")
		}
	}

	opts := app.Options{
		TrustedTransport:   feed.Identity(cfg.Trust.TrustedTransport),
		AuthorizedOrigin:   feed.Identity(cfg.Trust.AuthorizedOrigin),
		ExpectedOriginFeed: cfg.Trust.ExpectedOriginFeed,
	}
	if cache != nil {
		opts.LatestCache = cache
	}

	application, err := app.New(stores, opts, log)
	if err != nil {
		log.WithError(err).Error("build application")
		os.Exit(1)
	}
	if cache != nil {
		cache.Attach(application.Bus)
	}

	if err := application.Start(ctx); err != nil {
		log.WithError(err).Error("start application")
		os.Exit(1)
	}

	limiter := httpapi.NewRateLimiter(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst, log)

	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	mux.Handle("/", limiter.Handler(httpapi.NewHandler(application, cfg.Trust.OperatorKey)))

	server := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           metrics.InstrumentHandler(mux),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.WithField("addr", cfg.Server.Addr).Info("http server listening")
		errCh <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received")
	case err := <-errCh:
		log.WithError(err).Error("http server failed")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("http shutdown")
	}
	if err := application.Stop(shutdownCtx); err != nil {
		log.WithError(err).Warn("application shutdown")
	}
	log.Info("feed registry stopped")
}

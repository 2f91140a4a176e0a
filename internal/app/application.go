// Package app wires stores, trust policy, services, and background runners
// into one lifecycle-managed application.
package app

import (
	"context"
	"fmt"

	"github.com/relaybridge/feed_registry/internal/app/authz"
	"github.com/relaybridge/feed_registry/internal/app/domain/feed"
	"github.com/relaybridge/feed_registry/internal/app/events"
	"github.com/relaybridge/feed_registry/internal/app/services/monitor"
	"github.com/relaybridge/feed_registry/internal/app/services/query"
	registrysvc "github.com/relaybridge/feed_registry/internal/app/services/registry"
	treasurysvc "github.com/relaybridge/feed_registry/internal/app/services/treasury"
	validatorsvc "github.com/relaybridge/feed_registry/internal/app/services/validator"
	"github.com/relaybridge/feed_registry/internal/app/storage"
	"github.com/relaybridge/feed_registry/internal/app/storage/memory"
	"github.com/relaybridge/feed_registry/internal/app/system"
	"github.com/relaybridge/feed_registry/pkg/logger"
)

// Stores encapsulates persistence dependencies. Nil stores default to the
// in-memory implementation.
type Stores struct {
	Feeds    storage.FeedStore
	Treasury storage.TreasuryStore
}

// Options carries the deployment's trust anchors and optional read cache.
type Options struct {
	TrustedTransport   feed.Identity
	AuthorizedOrigin   feed.Identity
	ExpectedOriginFeed string
	LatestCache        query.LatestCache
}

// Application ties the domain services together and manages their
// lifecycle.
type Application struct {
	manager *system.Manager
	log     *logger.Logger

	Bus       *events.Bus
	Policy    *authz.Policy
	Registry  *registrysvc.Service
	Validator *validatorsvc.Service
	Queries   *query.Service
	Treasury  *treasurysvc.Service
}

// New builds a fully initialised application.
func New(stores Stores, opts Options, log *logger.Logger) (*Application, error) {
	if log == nil {
		log = logger.NewDefault("app")
	}
	if opts.TrustedTransport == "" {
		return nil, fmt.Errorf("trusted transport identity is required")
	}
	if opts.AuthorizedOrigin == "" {
		return nil, fmt.Errorf("authorized origin identity is required")
	}

	mem := memory.New()
	if stores.Feeds == nil {
		stores.Feeds = mem
	}
	if stores.Treasury == nil {
		stores.Treasury = mem
	}

	bus := events.NewBus()
	events.LogSink(bus, log)

	policy := authz.NewPolicy(opts.TrustedTransport, opts.AuthorizedOrigin)
	registry := registrysvc.New(stores.Feeds, bus, log)
	validator := validatorsvc.New(policy, stores.Feeds, bus, log)
	if opts.ExpectedOriginFeed != "" {
		validator.SetExpectedOriginFeed(opts.ExpectedOriginFeed)
	}
	queries := query.New(stores.Feeds, opts.LatestCache, log)
	treasury := treasurysvc.New(stores.Treasury, log)

	manager := system.NewManager()
	staleMonitor := monitor.New(stores.Feeds, queries, log)
	if err := manager.Register(staleMonitor); err != nil {
		return nil, fmt.Errorf("register staleness monitor: %w", err)
	}

	return &Application{
		manager:   manager,
		log:       log,
		Bus:       bus,
		Policy:    policy,
		Registry:  registry,
		Validator: validator,
		Queries:   queries,
		Treasury:  treasury,
	}, nil
}

// Attach registers an additional lifecycle-managed service. Call before
// Start.
func (a *Application) Attach(service system.Service) error {
	return a.manager.Register(service)
}

// Start begins all registered services.
func (a *Application) Start(ctx context.Context) error {
	return a.manager.Start(ctx)
}

// Stop stops all services.
func (a *Application) Stop(ctx context.Context) error {
	return a.manager.Stop(ctx)
}

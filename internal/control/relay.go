// Package control wires the relay's components together and manages their
// lifecycle.
package control

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/dvanle/relay/internal/core/config"
	"github.com/dvanle/relay/internal/health"
	"github.com/dvanle/relay/internal/infra/controlplane"
	redisclient "github.com/dvanle/relay/internal/infra/redis"
	"github.com/dvanle/relay/internal/infra/storage"
	"github.com/dvanle/relay/internal/infra/storage/memory"
	"github.com/dvanle/relay/internal/infra/storage/postgres"
	"github.com/dvanle/relay/internal/infra/transport"
	"github.com/dvanle/relay/internal/infra/transport/grpcwriter"
	"github.com/dvanle/relay/internal/infra/transport/httpwriter"
	"github.com/dvanle/relay/internal/ingest/publisher"
	"github.com/dvanle/relay/internal/ingest/retry"
	"github.com/dvanle/relay/internal/ingest/shard"
)

// Option configures a Relay beyond what the config file can express.
type Option func(*relayOptions)

type relayOptions struct {
	persist grpcwriter.PersistFunc
}

// WithPersistFunc registers the persist RPC used by the grpc transport.
// Generated ingester clients live with the caller, so the daemon embedding
// the relay supplies the call.
func WithPersistFunc(persist grpcwriter.PersistFunc) Option {
	return func(o *relayOptions) { o.persist = persist }
}

// Relay is the main application struct that manages the publishing lifecycle.
type Relay struct {
	cfg          *config.AppConfig
	table        *shard.Table
	refresher    *controlplane.Refresher
	cpClient     *controlplane.Client
	writer       transport.Writer
	pumps        []*Pump
	outbox       storage.OutboxRepository
	healthServer *health.Server
	db           *postgres.DB
	redisClient  *redisclient.Client
	log          *slog.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewRelay creates a new Relay instance with all dependencies initialized.
func NewRelay(cfg *config.AppConfig, opts ...Option) (*Relay, error) {
	var o relayOptions
	for _, opt := range opts {
		opt(&o)
	}

	// 1. Initialize Storage
	var outbox storage.OutboxRepository
	var db *postgres.DB

	if cfg.Database.URL != "" {
		var err error
		db, err = postgres.NewDB(context.Background(), cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("failed to init db: %w", err)
		}
		if err := db.Migrate(); err != nil {
			return nil, err
		}
		outbox = postgres.NewOutboxRepo(db)
		slog.Info("Using PostgreSQL storage")
	} else {
		outbox = memory.NewOutboxRepo(memory.NewMemoryStorage())
		slog.Info("Using Memory storage")
	}

	// 2. Initialize Dead-Letter Queue
	var deadLetters storage.DeadLetterRepository
	var redisClient *redisclient.Client

	if cfg.Redis.URL != "" {
		var err error
		redisClient, err = redisclient.NewClient(cfg.Redis)
		if err != nil {
			slog.Warn("Failed to connect to Redis, using in-memory dead letters", "error", err)
		} else {
			deadLetters = redisclient.NewDeadLetterRepo(redisClient, "relay")
		}
	}
	if deadLetters == nil {
		deadLetters = memory.NewDeadLetterRepo(memory.NewMemoryStorage())
	}

	// 3. Initialize Routing
	retrier := retry.New(cfg.Retry.Params())
	table := shard.NewTable()

	cpClient := controlplane.NewClient(controlplane.Config{
		URL:     cfg.ControlPlane.URL,
		Timeout: cfg.ControlPlane.Timeout,
	})

	routes := make([]controlplane.Route, 0, len(cfg.Routes))
	for _, r := range cfg.Routes {
		routes = append(routes, controlplane.Route{Index: r.Index, Source: r.Source})
	}

	refresher := controlplane.NewRefresher(
		cpClient,
		table,
		routes,
		cfg.ControlPlane.RefreshInterval,
		retrier,
	)

	// 4. Initialize Write Path
	var writer transport.Writer
	switch cfg.Ingesters.Transport {
	case "", "http":
		writer = httpwriter.New(httpwriter.Config{
			Endpoints: cfg.Ingesters.Endpoints,
			Timeout:   cfg.Ingesters.Timeout,
		})
	case "grpc":
		if o.persist == nil {
			return nil, fmt.Errorf("grpc transport requires a persist function, see WithPersistFunc")
		}
		writer = grpcwriter.New(grpcwriter.Config{
			Endpoints:   cfg.Ingesters.Endpoints,
			DialTimeout: cfg.Ingesters.Timeout,
		}, o.persist)
	default:
		return nil, fmt.Errorf("unknown ingester transport %q", cfg.Ingesters.Transport)
	}
	pub := publisher.New(table, writer, retrier)

	pumps := make([]*Pump, 0, len(cfg.Routes))
	for _, route := range cfg.Routes {
		pumps = append(pumps, NewPump(route, outbox, deadLetters, pub))
	}

	// 5. Initialize Health Monitor
	healthMon := health.NewMonitor(routes, table, outbox, deadLetters)
	healthServer := health.NewServer(healthMon, cfg.Server.Port)

	return &Relay{
		cfg:          cfg,
		table:        table,
		refresher:    refresher,
		cpClient:     cpClient,
		writer:       writer,
		pumps:        pumps,
		outbox:       outbox,
		healthServer: healthServer,
		db:           db,
		redisClient:  redisClient,
		log:          slog.Default(),
	}, nil
}

// Start starts the relay and all its components.
func (r *Relay) Start(ctx context.Context) error {
	// Start Health Server
	go func() {
		if err := r.healthServer.Start(); err != nil {
			r.log.Error("Health server failed", "error", err)
		}
	}()

	// Start DB Metrics Collector
	if r.db != nil {
		r.db.StartMetricsCollector(ctx)
	}

	// Requeue records a previous run claimed but never settled. Failed
	// records stay parked; the requeue subcommand is the operator path for
	// those.
	for _, route := range r.cfg.Routes {
		n, err := r.outbox.RequeueStuck(ctx, route.Index, route.Source)
		if err != nil {
			r.log.Warn("Failed to requeue stuck records",
				"index", route.Index,
				"source", route.Source,
				"error", err,
			)
			continue
		}
		if n > 0 {
			r.log.Info("Requeued stuck records",
				"index", route.Index,
				"source", route.Source,
				"count", n,
			)
		}
	}

	// Populate the shard table and keep it fresh
	if err := r.refresher.Start(ctx); err != nil {
		return fmt.Errorf("failed to start shard refresher: %w", err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	r.cancel = cancel

	// Start Pumps
	for _, pump := range r.pumps {
		r.log.Info("Starting outbox pump",
			"index", pump.route.Index,
			"source", pump.route.Source,
		)
		r.wg.Add(1)
		go func(p *Pump) {
			defer r.wg.Done()
			if err := p.Run(runCtx); err != nil && runCtx.Err() == nil {
				r.log.Error("Outbox pump failed",
					"index", p.route.Index,
					"source", p.route.Source,
					"error", err,
				)
			}
		}(pump)
	}

	return nil
}

// Stop stops the relay.
func (r *Relay) Stop(ctx context.Context) error {
	r.log.Info("Stopping Relay...")

	// Stop Pumps and Refresher
	if r.cancel != nil {
		r.cancel()
	}
	r.wg.Wait()
	r.refresher.Stop()

	// Close transport and clients
	if err := r.writer.Close(); err != nil {
		r.log.Warn("Failed to close writer", "error", err)
	}
	if err := r.cpClient.Close(); err != nil {
		r.log.Warn("Failed to close control-plane client", "error", err)
	}
	if r.redisClient != nil {
		if err := r.redisClient.Close(); err != nil {
			r.log.Warn("Failed to close Redis", "error", err)
		}
	}
	if r.db != nil {
		if err := r.db.Close(); err != nil {
			r.log.Warn("Failed to close database", "error", err)
		}
	}

	// Stop Health Server
	return r.healthServer.Stop(ctx)
}

package cmd

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/dbsmedya/goindexq/internal/config"
	"github.com/dbsmedya/goindexq/internal/database"
	"github.com/dbsmedya/goindexq/internal/dispatch"
	"github.com/dbsmedya/goindexq/internal/handler"
	"github.com/dbsmedya/goindexq/internal/listener"
	"github.com/dbsmedya/goindexq/internal/logger"
	"github.com/dbsmedya/goindexq/internal/metrics"
	"github.com/dbsmedya/goindexq/internal/monitoring"
	"github.com/dbsmedya/goindexq/internal/queue"
	"github.com/dbsmedya/goindexq/internal/rootline"
)

// app holds the components every command is built from. They are constructed
// once per process and passed by reference.
type app struct {
	cfg      *config.Config
	log      *logger.Logger
	db       *database.Manager
	store    *queue.Store
	resolver *rootline.Resolver
	policy   *monitoring.Policy
	registry *prometheus.Registry
	metrics  *metrics.Collector
	bus      *dispatch.Bus
	handler  *handler.UpdateHandler
	listener *listener.Listener
}

// loadConfig reads the config file, applies CLI overrides and validates the result.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(GetConfigFile())
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	overrides := GetCLIOverrides()
	cfg.ApplyOverrides(overrides.LogLevel, overrides.LogFormat, overrides.Workers, overrides.BatchSize)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// newApp loads configuration and wires all components. With connect set, the
// database connection is verified; otherwise the pool is opened lazily.
func newApp(ctx context.Context, connect bool) (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	log, err := logger.New(&cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	dbManager := database.NewManager(&cfg.Database)
	if connect {
		err = dbManager.Connect(ctx)
	} else {
		err = dbManager.Open()
	}
	if err != nil {
		return nil, err
	}

	a, err := wire(cfg, log, dbManager)
	if err != nil {
		_ = dbManager.Close()
		return nil, err
	}
	return a, nil
}

func wire(cfg *config.Config, log *logger.Logger, dbManager *database.Manager) (*app, error) {
	a := &app{
		cfg:      cfg,
		log:      log,
		db:       dbManager,
		policy:   monitoring.NewPolicy(cfg.MonitoredTables()),
		registry: prometheus.NewRegistry(),
	}
	a.metrics = metrics.New(a.registry)

	var err error
	if a.store, err = queue.NewStore(dbManager.DB, log); err != nil {
		return nil, err
	}
	if a.resolver, err = rootline.NewResolver(dbManager.DB, cfg, log); err != nil {
		return nil, err
	}

	a.bus = dispatch.NewBus(log, a.metrics)
	if a.handler, err = handler.NewUpdateHandler(a.store, a.resolver, a.policy, log); err != nil {
		return nil, err
	}
	if err := a.handler.Register(a.bus); err != nil {
		return nil, fmt.Errorf("failed to register queue handlers: %w", err)
	}
	if a.listener, err = listener.New(a.bus, listener.SelfNamed, log); err != nil {
		return nil, err
	}
	return a, nil
}

// Close flushes logs and closes the database.
func (a *app) Close() {
	_ = a.db.Close()
	_ = a.log.Sync()
}

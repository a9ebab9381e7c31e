// Package app assembles the engine and its backing services from configuration.
// The API server and the operator CLI share it.
package app

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/sharesphere/spherecore/internal/cache"
	"github.com/sharesphere/spherecore/internal/db"
	"github.com/sharesphere/spherecore/internal/engine"
	"github.com/sharesphere/spherecore/internal/events"
	"github.com/sharesphere/spherecore/internal/store"
	"github.com/sharesphere/spherecore/internal/store/memory"
	"github.com/sharesphere/spherecore/pkg/config"
	"github.com/sharesphere/spherecore/pkg/logging"
)

// HealthCheck reports whether one backing service is reachable
type HealthCheck func(ctx context.Context) error

// App holds the engine and everything that must be closed with it
type App struct {
	Engine *engine.Engine
	// Checks maps a service name to its health check
	Checks map[string]HealthCheck

	closers []func() error
	logger  *zap.Logger
}

// New connects the configured store, cache and publisher and builds the engine on them
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	a := &App{
		Checks: make(map[string]HealthCheck),
		logger: logging.WithComponent("app"),
	}

	st, err := a.openStore(ctx, cfg)
	if err != nil {
		a.Close()
		return nil, err
	}

	opts := []engine.Option{
		engine.WithLogger(logging.WithComponent("engine")),
		engine.WithListLimits(cfg.Ranking.DefaultLimit, cfg.Ranking.MaxLimit),
	}

	c, err := cache.New(&cfg.Redis)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to connect cache: %w", err)
	}
	if c != nil {
		opts = append(opts, engine.WithCache(c))
		a.Checks["redis"] = c.Health
		a.closers = append(a.closers, c.Close)
	}

	if cfg.Events.Enabled {
		pub := events.NewKafkaPublisher(&cfg.Events)
		opts = append(opts, engine.WithPublisher(pub))
		a.closers = append(a.closers, pub.Close)
		a.logger.Info("Kafka publisher enabled",
			zap.Strings("brokers", cfg.Events.Brokers),
			zap.String("topic", cfg.Events.Topic))
	}

	a.Engine = engine.New(st, opts...)
	return a, nil
}

func (a *App) openStore(ctx context.Context, cfg *config.Config) (store.Store, error) {
	if cfg.Store.Backend == config.BackendMemory {
		a.logger.Warn("Using the in-memory store; data is lost on exit")
		return memory.New(memory.WithTxTimeout(cfg.Store.TxTimeout)), nil
	}

	d, err := db.New(&cfg.Database, cfg.Logging.Level)
	if err != nil {
		return nil, fmt.Errorf("failed to connect database: %w", err)
	}
	a.closers = append(a.closers, d.Close)
	a.Checks["postgres"] = d.Health

	if cfg.Database.AutoMigrate {
		if err := d.Migrate(ctx); err != nil {
			return nil, fmt.Errorf("failed to migrate database: %w", err)
		}
	}
	return db.NewStore(d, cfg.Store.TxTimeout), nil
}

// Close releases the backing services in reverse order of opening
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.logger.Error("Error closing service", zap.Error(err))
		}
	}
	a.closers = nil
}

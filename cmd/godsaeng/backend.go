package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sio4242/Godsaeng-project/config"
	"github.com/sio4242/Godsaeng-project/internal/domain/progression"
	"github.com/sio4242/Godsaeng-project/internal/domain/study"
	"github.com/sio4242/Godsaeng-project/internal/infrastructure/persistence/postgres"
	"github.com/sio4242/Godsaeng-project/internal/infrastructure/persistence/sqlite"
	"github.com/sio4242/Godsaeng-project/pkg/logger"
	"github.com/sio4242/Godsaeng-project/pkg/retry"
)

// store is what the service needs from either storage driver.
type store interface {
	study.Repository
	study.UnitOfWork
	progression.Repository
	Ping(ctx context.Context) error
	Close() error
}

var errMigrationsUnsupported = errors.New("the sqlite driver manages its schema on open")

// backend is an opened store plus driver-specific schema management.
type backend struct {
	store
	pg *postgres.Connection
}

// openBackend connects the configured driver, retrying the first connection.
func openBackend(ctx context.Context, cfg config.DatabaseConfig, log *logger.Logger) (*backend, error) {
	r := retry.StartupRetrier(cfg.ConnectAttempts, func(attempt int, err error, delay time.Duration) {
		log.Warn("storage not reachable, retrying",
			logger.String("driver", string(cfg.Driver)),
			logger.Int("attempt", attempt),
			logger.Duration("delay", delay),
			logger.Err(err),
		)
	})

	switch cfg.Driver {
	case config.DriverPostgres:
		pgCfg := postgres.DefaultConfig()
		pgCfg.URL = cfg.URL
		pgCfg.MaxConns = cfg.MaxConns
		pgCfg.MinConns = cfg.MinConns
		pgCfg.MaxConnLifetime = cfg.ConnMaxLifetime
		pgCfg.MaxConnIdleTime = cfg.ConnMaxIdleTime
		pgCfg.LockTimeout = cfg.LockTimeout

		conn, err := retry.DoWithData(ctx, r, func(ctx context.Context) (*postgres.Connection, error) {
			return postgres.NewConnection(ctx, pgCfg)
		})
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		return &backend{store: postgres.NewStore(conn), pg: conn}, nil

	case config.DriverSQLite:
		s, err := retry.DoWithData(ctx, r, func(ctx context.Context) (*sqlite.Store, error) {
			return sqlite.Open(ctx, cfg.SQLitePath)
		})
		if err != nil {
			return nil, fmt.Errorf("open sqlite: %w", err)
		}
		return &backend{store: s}, nil

	default:
		return nil, fmt.Errorf("unknown driver %q", cfg.Driver)
	}
}

func (b *backend) migrator() (*postgres.Migrator, error) {
	if b.pg == nil {
		return nil, errMigrationsUnsupported
	}
	return postgres.NewMigrator(b.pg), nil
}

// migrateUp applies pending migrations. The sqlite schema is already in
// place once the store is open.
func (b *backend) migrateUp(ctx context.Context) (int, error) {
	m, err := b.migrator()
	if errors.Is(err, errMigrationsUnsupported) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return m.Migrate(ctx)
}

package main

import (
	"context"
	"errors"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/sio4242/Godsaeng-project/config"
	"github.com/sio4242/Godsaeng-project/internal/application/command"
	"github.com/sio4242/Godsaeng-project/internal/application/eventhandler"
	"github.com/sio4242/Godsaeng-project/internal/application/query"
	"github.com/sio4242/Godsaeng-project/internal/domain/progression"
	"github.com/sio4242/Godsaeng-project/internal/infrastructure/messaging"
	"github.com/sio4242/Godsaeng-project/internal/infrastructure/persistence/redis"
	httpserver "github.com/sio4242/Godsaeng-project/internal/interface/http"
	"github.com/sio4242/Godsaeng-project/pkg/circuitbreaker"
	"github.com/sio4242/Godsaeng-project/pkg/logger"
)

func newServeCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, err := loadConfig(flags)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg, log)
		},
	}
}

func serve(ctx context.Context, cfg *config.Config, log *logger.Logger) error {
	// ─────────────────────────────────────────────────────────────────────────
	// Storage
	// ─────────────────────────────────────────────────────────────────────────
	b, err := openBackend(ctx, cfg.Database, log)
	if err != nil {
		return err
	}
	defer func() {
		if err := b.Close(); err != nil {
			log.Error("failed to close storage", logger.Err(err))
		}
	}()

	applied, err := b.migrateUp(ctx)
	if err != nil {
		return err
	}
	log.Info("storage ready",
		logger.String("driver", string(cfg.Database.Driver)),
		logger.Int("migrations_applied", applied),
	)

	health := httpserver.NewHealthChecker(cfg.App.Version)
	health.AddCheck("database", httpserver.PingCheck(b))

	// ─────────────────────────────────────────────────────────────────────────
	// Cache (optional)
	// ─────────────────────────────────────────────────────────────────────────
	var cache progression.Cache
	if !cfg.Redis.Disabled {
		rc, err := redis.NewCache(ctx, redisConfig(cfg.Redis))
		if err != nil {
			log.Warn("redis unavailable, progression cache disabled", logger.Err(err))
		} else {
			defer rc.Close()
			breaker := circuitbreaker.CacheBreaker(func(name string, from, to circuitbreaker.State) {
				log.Warn("circuit breaker state changed",
					logger.Component(name),
					logger.String("from", from.String()),
					logger.String("to", to.String()),
				)
			})
			cache = redis.NewProgressionCache(rc, cfg.Redis.SnapshotTTL, redis.WithBreaker(breaker))
			health.AddCheck("redis", httpserver.PingCheck(rc))
		}
	}

	// ─────────────────────────────────────────────────────────────────────────
	// Events
	// ─────────────────────────────────────────────────────────────────────────
	busCfg := messaging.DefaultInMemoryEventBusConfig()
	busCfg.Logger = log
	bus := messaging.NewInMemoryEventBus(busCfg)
	defer bus.Close()

	if err := eventhandler.NewOnSessionClosedHandler(log).Register(bus); err != nil {
		return err
	}

	// ─────────────────────────────────────────────────────────────────────────
	// Application
	// ─────────────────────────────────────────────────────────────────────────
	requirement := progression.FixedRequirement(progression.Exp(cfg.Progression.ExpPerLevel))

	server := httpserver.NewServer(httpConfig(cfg.HTTP), httpserver.Dependencies{
		OpenSession: command.NewOpenSessionHandler(b, bus, log),
		CloseSession: command.NewCloseSessionHandler(b, bus, log, command.CloseSessionHandlerConfig{
			Requirement: requirement,
			TxTimeout:   cfg.Database.TxTimeout,
			Cache:       cache,
		}),
		ListSessions:   query.NewListSessionsHandler(b),
		GetProgression: query.NewGetProgressionHandler(b, cache, requirement, log),
		Health:         health,
		Logger:         log,
	})

	errCh := server.StartAsync()
	select {
	case err := <-errCh:
		if err != nil {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	log.Info("shutting down", logger.Duration("timeout", cfg.App.ShutdownTimeout))
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.App.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return nil
}

func redisConfig(c config.RedisConfig) redis.Config {
	rc := redis.DefaultConfig()
	rc.URL = c.URL
	rc.Host = c.Host
	rc.Port = c.Port
	rc.Password = c.Password
	rc.DB = c.DB
	rc.PoolSize = c.PoolSize
	rc.MinIdleConns = c.MinIdleConns
	rc.DialTimeout = c.DialTimeout
	rc.ReadTimeout = c.ReadTimeout
	rc.WriteTimeout = c.WriteTimeout
	return rc
}

func httpConfig(c config.HTTPConfig) httpserver.Config {
	hc := httpserver.DefaultConfig()
	hc.Host = c.Host
	hc.Port = c.Port
	hc.ReadTimeout = c.ReadTimeout
	hc.WriteTimeout = c.WriteTimeout
	hc.IdleTimeout = c.IdleTimeout
	hc.EnableCORS = c.EnableCORS
	hc.AllowedOrigins = c.AllowedOrigins
	hc.UserIDHeader = c.UserIDHeader
	return hc
}

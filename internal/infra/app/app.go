// Package app assembles the authorization engine: configuration,
// logging, the selected repository backend, the event publisher, and
// the usecase services, plus the metrics endpoint and the expiry
// sweeper that run alongside them.
package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/remon646/staffdesk-authz/internal/core/port"
	"github.com/remon646/staffdesk-authz/internal/infra/config"
	"github.com/remon646/staffdesk-authz/internal/infra/database"
	kafkainfra "github.com/remon646/staffdesk-authz/internal/infra/kafka"
	"github.com/remon646/staffdesk-authz/internal/infra/logger"
	redisinfra "github.com/remon646/staffdesk-authz/internal/infra/redis"
	"github.com/remon646/staffdesk-authz/internal/infra/telemetry"
	postgresrepo "github.com/remon646/staffdesk-authz/internal/repository/postgres"
	redisrepo "github.com/remon646/staffdesk-authz/internal/repository/redis"
	"github.com/remon646/staffdesk-authz/internal/usecase"
)

type Application struct {
	cfg    *config.AppConfig
	logger *zap.Logger

	pool     *pgxpool.Pool
	redis    *redisinfra.Client
	producer *kafkainfra.Producer

	Roles         *usecase.RoleService
	Permissions   *usecase.PermissionService
	Authorization *usecase.AuthorizationService

	sweeper *usecase.ExpirySweeper
}

func New(ctx context.Context, cfg *config.AppConfig) (*Application, error) {
	log, err := logger.New(cfg.App.Env)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	metrics, err := telemetry.Attach(cfg)
	if err != nil {
		return nil, fmt.Errorf("init telemetry: %w", err)
	}

	app := &Application{cfg: cfg, logger: log}

	var (
		roleRepo port.RoleRepository
		permRepo port.PermissionRepository
	)
	switch cfg.Storage.Backend {
	case config.BackendPostgres:
		pool, err := database.NewPostgresPool(ctx, cfg.Postgres, log)
		if err != nil {
			return nil, fmt.Errorf("init postgres: %w", err)
		}
		repos := postgresrepo.NewRepositories(pool)
		app.pool = pool
		roleRepo = repos.Roles
		permRepo = repos.Permissions
	case config.BackendRedis:
		client, err := redisinfra.NewClient(cfg.Redis, log)
		if err != nil {
			return nil, fmt.Errorf("init redis: %w", err)
		}
		repos := redisrepo.NewRepositories(client.Client(), cfg.Redis.KeyPrefix)
		app.redis = client
		roleRepo = repos.Roles
		permRepo = repos.Permissions
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}

	var eventPublisher port.EventPublisher
	if len(cfg.Kafka.Brokers) > 0 {
		producer, err := kafkainfra.NewProducer(cfg.Kafka, log)
		if err != nil {
			app.close()
			return nil, fmt.Errorf("init kafka producer: %w", err)
		}
		app.producer = producer
		eventPublisher = kafkainfra.NewEventPublisher(producer, cfg.App, log)
		log.Info("Kafka event publisher initialized", zap.Strings("brokers", cfg.Kafka.Brokers))
	} else {
		log.Info("Kafka brokers not configured, using stub publisher")
		eventPublisher = kafkainfra.NewStubPublisher(log)
	}

	app.Roles = usecase.NewRoleService(roleRepo, eventPublisher, log)
	app.Permissions = usecase.NewPermissionService(permRepo, roleRepo, eventPublisher, log)
	app.Authorization = usecase.NewAuthorizationService(permRepo, roleRepo, metrics, log)

	if cfg.Authz.SweepEnabled {
		app.sweeper = usecase.NewExpirySweeper(roleRepo, permRepo, cfg.Authz.SweepInterval, cfg.Authz.ExpiryWarningDays, log)
	}

	return app, nil
}

func (a *Application) Run(ctx context.Context) error {
	defer func() {
		_ = a.logger.Sync()
	}()
	defer a.close()

	if a.sweeper != nil {
		go a.sweeper.Run(ctx)
		a.logger.Info("Expiry sweeper started",
			zap.Duration("interval", a.cfg.Authz.SweepInterval),
			zap.Int("warning_days", a.cfg.Authz.ExpiryWarningDays),
		)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.Telemetry.MetricsPort),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	a.logger.Info("Authorization engine started",
		zap.String("env", a.cfg.App.Env),
		zap.String("backend", a.cfg.Storage.Backend),
		zap.String("metrics_address", srv.Addr),
	)

	serverErrCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrCh <- fmt.Errorf("run metrics server: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown metrics server: %w", err)
		}
		return nil
	case err := <-serverErrCh:
		return err
	}
}

func (a *Application) close() {
	if a.producer != nil {
		if err := a.producer.Close(); err != nil {
			a.logger.Warn("Kafka producer close failed", zap.Error(err))
		}
	}
	if a.pool != nil {
		a.pool.Close()
	}
	if a.redis != nil {
		_ = a.redis.Close()
	}
}

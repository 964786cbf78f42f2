package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/go-redis/redis/v8"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/harborgate/orgd/pkg/api"
	"github.com/harborgate/orgd/pkg/audit"
	"github.com/harborgate/orgd/pkg/auth"
	"github.com/harborgate/orgd/pkg/billing"
	"github.com/harborgate/orgd/pkg/command"
	"github.com/harborgate/orgd/pkg/config"
	"github.com/harborgate/orgd/pkg/importer"
	"github.com/harborgate/orgd/pkg/license"
	"github.com/harborgate/orgd/pkg/middleware"
	"github.com/harborgate/orgd/pkg/observability"
	"github.com/harborgate/orgd/pkg/orgs"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "orgd: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := observability.NewLogger(cfg.Observability.LogLevel, os.Stdout)
	logger.WithField("mode", string(cfg.DeploymentMode)).Info("starting orgd")

	db, err := sql.Open("postgres", cfg.Database.URL)
	if err != nil {
		return fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.Database.ConnLifetime)

	pingCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		return fmt.Errorf("ping postgres: %w", err)
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	var (
		registry = prometheus.NewRegistry()
		metrics  *observability.Metrics
	)
	if cfg.Observability.MetricsEnabled {
		metrics = observability.NewMetrics(registry)
	}

	store := orgs.NewCachedStorage(orgs.NewPostgresStore(db), cfg.Cache.OrgCacheSize, cfg.Cache.OrgCacheTTL, metrics)

	signer, err := loadSigner(cfg)
	if err != nil {
		return fmt.Errorf("load license keys: %w", err)
	}

	auditLog, err := audit.NewDBLogger(db)
	if err != nil {
		return fmt.Errorf("init audit log: %w", err)
	}

	otelProviders, err := observability.InitOTel(context.Background(), observability.OTelConfig{
		Enabled:        cfg.Observability.OTelEnabled,
		Endpoint:       cfg.Observability.OTelEndpoint,
		ServiceName:    cfg.Observability.OTelServiceName,
		ServiceVersion: cfg.Observability.OTelServiceVersion,
		Insecure:       cfg.Observability.OTelInsecure,
	}, logger)
	if err != nil {
		return fmt.Errorf("init otel: %w", err)
	}

	attempts := auth.NewRedisAttemptLimiter(redisClient, auth.AttemptLimitConfig{
		MaxFailures: cfg.Guard.MaxFailures,
		Window:      cfg.Guard.Window,
	}, "guard")

	dispatcher := command.NewDispatcher(command.Deps{
		Store:    store,
		Resolver: auth.NewRoleResolver(store),
		Guard:    auth.NewSensitiveOperationGuard(auth.BcryptVerifier{}, attempts, cfg.Guard.MinDelay),
		Mode:     cfg,
		Billing:  billing.NewOrchestrator(billing.NewInstrumentedGateway(billing.NewPostgresGateway(db), metrics), store, billing.NewPostgresUsage(db)),
		Licenses: license.NewManager(signer, store, cfg.License.Validity),
		Imports:  importer.NewProcessor(store, cfg.DeploymentMode.Hosted()),
		Creds:    auth.NewCredentialManager(store),
		Audit:    auditLog,
		Logger:   logger,
		Metrics:  metrics,
	})

	purger := orgs.NewMembershipPurger(store, logger, metrics, cfg.Cleanup.Retention, cfg.Cleanup.Schedule)
	if err := purger.Start(); err != nil {
		return fmt.Errorf("start membership purger: %w", err)
	}

	server := api.NewServer(dispatcher, api.Options{
		Store:        store,
		Limiter:      middleware.NewRedisRateLimiter(redisClient, middleware.DefaultRateLimitConfig(), "api"),
		Logger:       logger,
		Metrics:      metrics,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	})

	statsCtx, stopStats := context.WithCancel(context.Background())
	defer stopStats()
	if metrics != nil {
		go observability.CollectDBStats(statsCtx, db, metrics, 15*time.Second)
	}

	healthMux := http.NewServeMux()
	observability.RegisterHealthRoutes(healthMux, observability.NewHealthChecker(db, redisClient))
	if cfg.Observability.MetricsEnabled {
		observability.RegisterMetricsEndpoint(healthMux, registry)
	}
	healthServer := &http.Server{
		Addr:    cfg.Server.Host + ":" + cfg.Server.HealthPort,
		Handler: healthMux,
	}

	var group errgroup.Group
	group.Go(func() error {
		return server.Start(cfg.Server.Host + ":" + cfg.Server.Port)
	})
	group.Go(func() error {
		logger.WithField("addr", healthServer.Addr).Info("health server listening")
		if err := healthServer.ListenAndServe(); err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	go func() {
		if err := group.Wait(); err != nil {
			logger.WithError(err).Error("server failed")
			os.Exit(1)
		}
	}()

	shutdown := observability.NewShutdownManager(logger, healthServer, cfg.Server.ShutdownTimeout)
	shutdown.RegisterShutdownFunc(server.Shutdown)
	shutdown.RegisterShutdownFunc(func(context.Context) error {
		purger.Stop()
		return nil
	})
	shutdown.RegisterShutdownFunc(func(ctx context.Context) error {
		return observability.ShutdownOTel(ctx, otelProviders, logger)
	})
	shutdown.RegisterShutdownFunc(func(context.Context) error {
		return auditLog.Close()
	})
	shutdown.RegisterShutdownFunc(func(context.Context) error {
		return redisClient.Close()
	})
	shutdown.RegisterShutdownFunc(func(context.Context) error {
		return db.Close()
	})

	return shutdown.WaitForShutdown()
}

// loadSigner reads the license key material for the deployment mode:
// hosted deployments sign with the private key, self-hosted ones only
// verify with the public key.
func loadSigner(cfg *config.Config) (license.Signer, error) {
	if cfg.DeploymentMode.Hosted() {
		pem, err := os.ReadFile(cfg.License.PrivateKeyFile)
		if err != nil {
			return nil, err
		}
		return license.NewRSASigner(pem)
	}
	pem, err := os.ReadFile(cfg.License.PublicKeyFile)
	if err != nil {
		return nil, err
	}
	return license.NewRSAVerifier(pem)
}

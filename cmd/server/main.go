package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Priya8975/userdb-provisioner/internal/api"
	"github.com/Priya8975/userdb-provisioner/internal/config"
	"github.com/Priya8975/userdb-provisioner/internal/engine"
	"github.com/Priya8975/userdb-provisioner/internal/geo"
	"github.com/Priya8975/userdb-provisioner/internal/provisioner"
	"github.com/Priya8975/userdb-provisioner/internal/store"
	ws "github.com/Priya8975/userdb-provisioner/internal/websocket"
	"github.com/Priya8975/userdb-provisioner/internal/worker"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Provisioning backend
	client := provisioner.NewClient(cfg.ProvisionerBaseURL, cfg.ProvisionerScope, cfg.ProvisionerAPIToken, logger)

	// Region selection
	policy, err := geo.NewRegionPolicy(cfg.DefaultRegion, cfg.RegionMap)
	if err != nil {
		logger.Error("invalid region policy", "error", err)
		os.Exit(1)
	}
	var lookup geo.ContinentLookup
	if cfg.GeoLookupURL != "" {
		lookup = geo.NewLocator(cfg.GeoLookupURL)
		logger.Info("geolocation enabled", "url", cfg.GeoLookupURL)
	}
	selector := geo.NewSelector(policy, lookup, cfg.GeoTimeout, logger)

	opts := engine.Options{
		Scope:         cfg.ProvisionerScope,
		ListTimeout:   cfg.ListTimeout,
		CreateTimeout: cfg.CreateTimeout,
	}
	deps := api.Deps{Scope: cfg.ProvisionerScope, Checks: map[string]api.Pinger{}}

	// Redis-backed guards are optional as a group
	if cfg.RedisURL != "" {
		redisStore, err := store.NewRedis(ctx, cfg.RedisURL)
		if err != nil {
			logger.Error("failed to connect to redis", "error", err)
			os.Exit(1)
		}
		defer redisStore.Close()
		logger.Info("connected to Redis")

		cb := engine.NewCircuitBreaker(redisStore.Client(), logger)
		opts.Breaker = cb
		deps.Breaker = cb
		if cfg.CreateRateLimit > 0 {
			opts.Throttle = engine.NewRateLimiter(redisStore.Client(), cfg.CreateRateLimit, logger)
		}
		if cfg.ClaimTTL > 0 {
			opts.Claims = engine.NewClaimLock(redisStore.Client(), cfg.ClaimTTL, logger)
		}
		deps.Checks["redis"] = redisStore
	}

	// Audit log is optional
	var audit worker.AuditStore
	if cfg.DatabaseURL != "" {
		pgStore, err := store.NewPostgres(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Error("failed to connect to postgres", "error", err)
			os.Exit(1)
		}
		defer pgStore.Close()
		logger.Info("connected to PostgreSQL")

		if err := pgStore.RunMigrations(ctx); err != nil {
			logger.Error("failed to run migrations", "error", err)
			os.Exit(1)
		}
		logger.Info("database migrations applied")

		audit = pgStore
		deps.Audit = pgStore
		deps.Checks["postgres"] = pgStore
	}

	// Live feed
	hub := ws.NewHub(logger)
	go hub.Run(ctx)
	deps.Hub = hub

	// Outcome recorders
	pool := worker.NewPool(cfg.NumRecorders, worker.NewRecorder(audit, hub, logger), logger)
	pool.Start(ctx)

	prov := engine.NewProvisioner(client, selector, opts, logger)
	deps.Webhook = api.NewWebhookHandler(cfg.WebhookSecret, prov, pool, logger)

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      api.NewRouter(deps),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.ListTimeout + cfg.CreateTimeout + cfg.GeoTimeout + 5*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		logger.Info("server starting",
			"port", cfg.Port,
			"scope", cfg.ProvisionerScope,
			"default_region", cfg.DefaultRegion,
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal for graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
	}

	// In-flight deliveries are done; flush their outcome records.
	pool.Stop()
	cancel()

	logger.Info("server stopped")
}

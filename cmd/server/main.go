package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/web3-frozen/position-fetchers/internal/cache"
	"github.com/web3-frozen/position-fetchers/internal/config"
	"github.com/web3-frozen/position-fetchers/internal/events"
	"github.com/web3-frozen/position-fetchers/internal/handler"
	"github.com/web3-frozen/position-fetchers/internal/middleware"
	"github.com/web3-frozen/position-fetchers/internal/monitor"
	"github.com/web3-frozen/position-fetchers/internal/monitor/fetchers"
	"github.com/web3-frozen/position-fetchers/internal/multicall"
	"github.com/web3-frozen/position-fetchers/internal/pricing"
	"github.com/web3-frozen/position-fetchers/internal/scheduler"
	"github.com/web3-frozen/position-fetchers/internal/store"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	cfg := config.Load()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Chain readers
	var readerOpts []multicall.Option
	if cfg.MulticallAddress != "" {
		if !common.IsHexAddress(cfg.MulticallAddress) {
			logger.Error("MULTICALL_ADDRESS is not an address", "value", cfg.MulticallAddress)
			os.Exit(1)
		}
		readerOpts = append(readerOpts, multicall.WithAddress(common.HexToAddress(cfg.MulticallAddress)))
	}
	readers, err := multicall.DialAll(ctx, cfg.RPCURLs(), readerOpts...)
	if err != nil {
		logger.Error("failed to dial rpc", "error", err)
		os.Exit(1)
	}
	defer readers.Close()
	for network := range readers {
		logger.Info("rpc connected", "network", network)
	}

	var (
		engineOpts []monitor.Option
		readyDeps  []handler.Pinger
		db         *store.Store
	)

	// Database
	if cfg.DatabaseURL != "" {
		db, err = store.New(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Error("failed to connect to database", "error", err)
			os.Exit(1)
		}
		defer db.Close()

		if err := db.Migrate(ctx); err != nil {
			logger.Error("failed to run migrations", "error", err)
			os.Exit(1)
		}
		logger.Info("database connected and migrated")
		engineOpts = append(engineOpts, monitor.WithStore(db))
		readyDeps = append(readyDeps, db)
	} else {
		logger.Warn("DATABASE_URL not set, snapshots are not persisted")
	}

	// Redis snapshot cache (retry up to 30s for ExternalSecret to sync)
	if cfg.RedisURL != "" {
		var sc *cache.SnapshotCache
		for i := 0; i < 6; i++ {
			sc, err = cache.New(cfg.RedisURL, cfg.RedisPassword, cfg.SnapshotCacheTTL)
			if err == nil {
				break
			}
			logger.Warn("redis not ready, retrying...", "attempt", i+1, "error", err)
			time.Sleep(5 * time.Second)
		}
		if err != nil {
			logger.Error("failed to connect to redis after retries", "error", err)
			os.Exit(1)
		}
		defer sc.Close()
		logger.Info("redis connected for snapshot cache")
		engineOpts = append(engineOpts, monitor.WithCache(sc))
		readyDeps = append(readyDeps, sc)
	}

	// NATS events
	if cfg.NatsURL != "" {
		pub, err := events.Connect(cfg.NatsURL)
		if err != nil {
			logger.Error("failed to connect to nats", "error", err)
			os.Exit(1)
		}
		defer pub.Close()
		logger.Info("nats connected", "subject", events.SubjectUpdated)
		engineOpts = append(engineOpts, monitor.WithPublisher(pub))
	}

	// Fetch engine
	engine := monitor.NewEngine(logger, engineOpts...)
	deps := fetchers.Deps{
		Readers:      readers,
		Prices:       pricing.NewLlama(cfg.LlamaCoinsURL, fetchers.TrackedTokens()),
		Logger:       logger,
		VaporwaveAPI: cfg.VaporwaveAPIURL,
	}
	for _, f := range fetchers.Catalog(deps) {
		if err := engine.Register(f); err != nil {
			logger.Error("failed to register fetcher", "error", err)
			os.Exit(1)
		}
		if db != nil {
			if err := db.UpsertFetcher(ctx, f.Registration()); err != nil {
				logger.Error("failed to record fetcher", "fetcher", f.Registration().Key(), "error", err)
				os.Exit(1)
			}
		}
	}
	if db != nil {
		stored, err := db.ListFetchers(ctx)
		if err != nil {
			logger.Error("failed to list recorded fetchers", "error", err)
			os.Exit(1)
		}
		for _, r := range stored {
			if _, ok := engine.Lookup(r.AppID, r.GroupID, r.Network); !ok {
				logger.Warn("recorded fetcher is no longer registered", "fetcher", r.Key())
			}
		}
	}

	// Scheduled jobs
	sched := scheduler.New(logger)
	if err := sched.Add("refresh", cfg.RefreshSchedule, engine.RefreshAll); err != nil {
		logger.Error("invalid refresh schedule", "error", err)
		os.Exit(1)
	}
	if db != nil {
		err := sched.Add("cleanup", "@daily", func(ctx context.Context) {
			n, err := db.CleanupOldSnapshots(ctx, cfg.SnapshotRetention)
			if err != nil {
				logger.Error("snapshot cleanup failed", "error", err)
				return
			}
			logger.Info("snapshot cleanup", "deleted", n)
		})
		if err != nil {
			logger.Error("invalid cleanup schedule", "error", err)
			os.Exit(1)
		}
	}
	sched.Start()
	go engine.RefreshAll(ctx)

	// HTTP routes
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(middleware.Recover(logger))
	r.Use(middleware.Logger(logger))
	r.Use(middleware.Metrics())
	r.Use(middleware.CORS(cfg.FrontendOrigin))

	r.Handle("/metrics", promhttp.Handler())
	r.Get("/healthz", handler.Health())
	r.Get("/readyz", handler.Ready(readyDeps...))

	r.Route("/api", func(r chi.Router) {
		r.Get("/fetchers", handler.Fetchers(engine))
		r.Get("/positions", handler.Positions(engine))
		r.Post("/positions/refresh", handler.Refresh(engine))
		if db != nil {
			r.Get("/positions/history", handler.History(engine, db))
		}
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server starting", "port", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down gracefully")
	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	sched.Stop(shutdownCtx)
	_ = srv.Shutdown(shutdownCtx)
}

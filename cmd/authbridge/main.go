// cmd/authbridge/main.go
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"authbridge/internal/adminapi"
	"authbridge/internal/bridge"
	"authbridge/internal/reconcile"
	"authbridge/pkg/config"
	"authbridge/pkg/db"
	"authbridge/pkg/idp"
	"authbridge/pkg/logger"
	"authbridge/pkg/middleware"
	"authbridge/pkg/problems"
	"authbridge/pkg/satellites"
)

func main() {
	// 1. Load configuration & initialize structured logger.
	cfg := config.Load()
	appLog := logger.New(cfg.Env, cfg.LogLevel)
	defer func() { _ = appLog.Sync() }()
	if err := cfg.Validate(); err != nil {
		appLog.Fatalw("invalid configuration", "err", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Optional backing services.
	dbPool := db.MustConnect(cfg, appLog)
	if dbPool != nil {
		defer dbPool.Close()
	}
	rdb := db.MustRedis(cfg, appLog)
	if rdb != nil {
		defer rdb.Close()
	}

	// 3. Satellite registry: remote store first, then the file, then the env list.
	store := mustStore(ctx, cfg, dbPool, appLog)
	var sources []satellites.Source
	if store != nil {
		sources = append(sources, store)
	}
	sources = append(sources,
		satellites.FileSource{Path: cfg.SatellitesFile, Log: appLog},
		satellites.EnvSource{Origins: cfg.SatelliteDomains, Log: appLog},
	)
	registry := satellites.NewRegistry(satellites.Chain(appLog, sources...), cfg.SatelliteCacheTTL, appLog)
	if _, err := registry.Refresh(ctx); err != nil {
		appLog.Warnw("initial satellite load failed", "err", err)
	}

	if cfg.WatchSatellites {
		go func() {
			if err := satellites.WatchFile(ctx, cfg.SatellitesFile, registry, appLog); err != nil {
				appLog.Warnw("satellites file watcher stopped", "err", err)
			}
		}()
	}

	var invalidator *satellites.Invalidator
	if rdb != nil {
		invalidator = satellites.NewInvalidator(rdb, instanceID(), appLog)
		go func() {
			if err := invalidator.Listen(ctx, registry); err != nil && ctx.Err() == nil {
				appLog.Warnw("satellite invalidation listener stopped", "err", err)
			}
		}()
	}

	// 4. Identity provider and reconciliation trigger.
	provider := idp.NewJWTProvider(cfg, appLog)
	var guard reconcile.Guard = reconcile.NewMemoryGuard(10000, cfg.ReconcileGuardTTL)
	if rdb != nil {
		guard = reconcile.NewRedisGuard(rdb, cfg.ReconcileGuardTTL)
	}
	trigger := reconcile.NewTrigger(reconcile.NewHTTPClient(cfg.ReconcileEndpoint(), cfg.ReconcileTimeout), guard, appLog)

	br, err := bridge.New(cfg, registry, provider, trigger, appLog)
	if err != nil {
		appLog.Fatalw("bridge init", "err", err)
	}

	// 5. Build HTTP router and register middlewares.
	tracing, shutdownTracing := middleware.Tracing(cfg, appLog)
	router := chi.NewRouter()
	router.Use(middleware.RequestID())
	router.Use(chimw.RealIP)
	router.Use(middleware.Recover(appLog))
	router.Use(middleware.DebugWriteHeader(cfg.DebugDoubleWrite, appLog))
	router.Use(tracing)
	router.Use(middleware.WithSnapshot(registry))
	router.Use(br.ProviderCORS)

	// 6. Basic operational endpoints.
	router.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) { _, _ = w.Write([]byte("ok")) })
	router.Get("/metrics", promhttp.Handler().ServeHTTP)

	// 7. Domain routes.
	br.RegisterRoutes(router)
	adminapi.New(appLog, registry, store, invalidator, adminapi.Config{
		Token:       cfg.AdminToken,
		CORSOrigins: cfg.AdminCORSOrigins,
		ProblemBase: problems.Base(cfg.PrimaryURL),
	}).RegisterRoutes(router)

	// 8. Configure and start HTTP server asynchronously.
	httpServer := &http.Server{Addr: cfg.HTTPAddr, Handler: router, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		appLog.Infow("authbridge listening", "addr", cfg.HTTPAddr, "satellites", registry.Snapshot(ctx).Len())
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			appLog.Fatalw("ListenAndServe", "err", err)
		}
	}()

	// 9. Wait for termination signal (SIGINT/SIGTERM), then shut down gracefully.
	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = httpServer.Shutdown(shutdownCtx)
	_ = shutdownTracing(shutdownCtx)
	appLog.Infow("authbridge stopped")
}

// mustStore builds the writable satellite store selected by SATELLITE_SOURCE,
// or nil for the file source.
func mustStore(ctx context.Context, cfg config.Config, pool *pgxpool.Pool, log *zap.SugaredLogger) satellites.Store {
	switch cfg.SatelliteSource {
	case config.SourcePostgres:
		pg := satellites.NewPostgresStore(db.OpenSQL(pool), log)
		if err := pg.EnsureSchema(ctx); err != nil {
			log.Fatalw("ensure satellites schema", "err", err)
		}
		if n, err := pg.SeedFromFile(ctx, cfg.SatellitesFile); err != nil {
			log.Warnw("seed satellites from file", "err", err)
		} else if n > 0 {
			log.Infow("seeded satellites table", "count", n, "file", cfg.SatellitesFile)
		}
		return pg
	case config.SourceS3:
		client, err := satellites.NewS3Client(ctx, cfg)
		if err != nil {
			log.Fatalw("s3 client", "err", err)
		}
		return satellites.NewS3Store(client, cfg.S3Bucket, cfg.S3Key, log)
	default:
		return nil
	}
}

func instanceID() string {
	host, _ := os.Hostname()
	return host + "/" + uuid.NewString()[:8]
}

package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"github.com/okian/gridlock/internal/adapters/http/api"
	"github.com/okian/gridlock/internal/adapters/repository"
	"github.com/okian/gridlock/internal/adapters/ws"
	service "github.com/okian/gridlock/internal/app"
	"github.com/okian/gridlock/internal/config"
	"github.com/okian/gridlock/internal/jobs"
	"github.com/okian/gridlock/pkg/logger"
	"github.com/okian/gridlock/pkg/metrics"
)

// HTTP server timeout constants. The WebSocket route needs an unbounded
// write window, so WriteTimeout stays zero and slow clients are handled by
// the hub's drop policy instead.
const (
	readHeaderTimeout = 5 * time.Second
	idleTimeout       = 60 * time.Second
	connectTimeout    = 10 * time.Second
	shutdownTimeout   = 30 * time.Second
)

func main() {
	// Disable default Go metrics collection to avoid duplicate metrics.
	prometheus.Unregister(collectors.NewGoCollector())
	prometheus.Unregister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	// Optional .env for local development; absence is fine.
	_ = godotenv.Load()

	if err := logger.Init(); err != nil {
		os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		return
	}

	loggerInstance := logger.Get()

	// Root context with cancel on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Load configuration (defaults -> optional file -> env).
	cfg, err := config.Load(ctx)
	if err != nil {
		os.Stderr.WriteString("failed to load config: " + err.Error() + "\n")
		return
	}

	// Apply configured log level (fallback to info on invalid input).
	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		loggerInstance.Warn(ctx, "invalid log_level; falling back to info",
			logger.String("log_level", cfg.LogLevel), logger.Error(err))
		_ = logger.SetLevelString("info")
	}

	// Storage. Without a database URL, or when the database is unreachable,
	// the tracker runs degraded on an in-memory store: live tracking keeps
	// working, history does not survive a restart.
	store, cleanup := openStore(ctx, cfg, loggerInstance)
	defer cleanup()

	hub := ws.NewHub(
		ws.WithSendBuffer(cfg.SendBufferSize),
	)

	svc := service.New(
		service.WithLogger(loggerInstance.Named("service")),
		service.WithStore(store),
		service.WithSender(hub),
		service.WithSessionTTL(time.Duration(cfg.SessionTTLSeconds)*time.Second),
		service.WithIncidentRadius(cfg.IncidentRadiusMeters),
		service.WithSampleWindow(time.Duration(cfg.SampleWindowSeconds)*time.Second),
		service.WithSampleQueueSize(cfg.SampleQueueSize),
		service.WithSampleWriterCount(cfg.SampleWriterCount),
	)
	if err := svc.Start(ctx); err != nil {
		os.Stderr.WriteString("failed to start service: " + err.Error() + "\n")
		return
	}
	defer svc.Stop()

	gateway := ws.NewGateway(svc, hub,
		ws.WithRateLimit(cfg.RateLimitPerMinute),
		ws.WithAllowedOrigin(cfg.AllowedOrigin),
	)

	// HTTP mux and routes.
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", gateway.HandleWS)

	apiServer := api.NewServer(svc, svc, api.WithAllowedOrigin(cfg.AllowedOrigin))
	apiServer.Register(ctx, mux)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadHeaderTimeout: readHeaderTimeout,
		IdleTimeout:       idleTimeout,
	}

	// Maintenance loops and the HTTP server share one lifecycle.
	g, gctx := errgroup.WithContext(ctx)

	janitor := jobs.New("janitor",
		time.Duration(cfg.JanitorIntervalSeconds)*time.Second,
		svc.EvictIdle,
	)
	g.Go(func() error { return janitor.Run(gctx) })

	congestion := jobs.New("congestion",
		time.Duration(cfg.CongestionIntervalSeconds)*time.Second,
		svc.RecomputeCongestion,
		jobs.WithOnSkip(metrics.RecordCongestionRunSkipped),
	)
	g.Go(func() error { return congestion.Run(gctx) })

	g.Go(func() error {
		loggerInstance.Info(gctx, "starting HTTP server", logger.String("addr", cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		loggerInstance.Info(context.Background(), "shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		loggerInstance.Error(context.Background(), "shutdown error", logger.Error(err))
	}

	loggerInstance.Info(context.Background(), "server stopped")
}

// openStore connects to Postgres when configured, falling back to the
// in-memory store on any failure. The returned cleanup closes the pool.
func openStore(ctx context.Context, cfg *config.Config, log logger.Logger) (repository.Store, func()) {
	if cfg.DatabaseURL == "" {
		log.Warn(ctx, "no database_url configured, running with in-memory store")
		return repository.NewMemoryStore(), func() {}
	}

	connectCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	pool, err := pgxpool.New(connectCtx, cfg.DatabaseURL)
	if err == nil {
		err = pool.Ping(connectCtx)
	}
	if err != nil {
		log.Error(ctx, "database unavailable, running with in-memory store", logger.Error(err))
		if pool != nil {
			pool.Close()
		}
		return repository.NewMemoryStore(), func() {}
	}

	store := repository.NewPostgresStore(pool)
	if err := store.EnsureSchema(connectCtx); err != nil {
		log.Error(ctx, "schema setup failed, running with in-memory store", logger.Error(err))
		pool.Close()
		return repository.NewMemoryStore(), func() {}
	}

	log.Info(ctx, "connected to database")
	return store, pool.Close
}

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	cfhttp "github.com/Strob0t/agentplan/internal/adapter/http"
	"github.com/Strob0t/agentplan/internal/adapter/litellm"
	cfmcp "github.com/Strob0t/agentplan/internal/adapter/mcp"
	"github.com/Strob0t/agentplan/internal/adapter/memstore"
	cfnats "github.com/Strob0t/agentplan/internal/adapter/nats"
	"github.com/Strob0t/agentplan/internal/adapter/natskv"
	cfotel "github.com/Strob0t/agentplan/internal/adapter/otel"
	"github.com/Strob0t/agentplan/internal/adapter/postgres"
	"github.com/Strob0t/agentplan/internal/adapter/ristretto"
	"github.com/Strob0t/agentplan/internal/adapter/tiered"
	"github.com/Strob0t/agentplan/internal/adapter/ws"
	"github.com/Strob0t/agentplan/internal/config"
	"github.com/Strob0t/agentplan/internal/logger"
	"github.com/Strob0t/agentplan/internal/middleware"
	"github.com/Strob0t/agentplan/internal/port/broadcast"
	"github.com/Strob0t/agentplan/internal/port/cache"
	"github.com/Strob0t/agentplan/internal/port/planner"
	"github.com/Strob0t/agentplan/internal/resilience"
	"github.com/Strob0t/agentplan/internal/service"
)

const idempotencyTTL = 24 * time.Hour

func main() {
	args := os.Args[1:]
	var err error
	if len(args) > 0 && args[0] == "admin" {
		err = runAdmin(args[1:])
	} else {
		err = run(args)
	}
	if err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	flags, err := config.ParseFlags(args)
	if err != nil {
		return fmt.Errorf("flags: %w", err)
	}
	cfg, cfgPath, err := config.LoadWithCLI(flags)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	log, logCloser := logger.New(cfg.Logging)
	defer logCloser.Close()
	slog.SetDefault(log)

	slog.Info("config loaded",
		"path", cfgPath,
		"port", cfg.Server.Port,
		"log_level", cfg.Logging.Level,
		"max_parallel", cfg.Orchestrator.MaxParallel,
		"dependency_policy", cfg.Orchestrator.DependencyPolicy,
		"agents", len(cfg.Agents),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// --- Telemetry ---

	otelShutdown, err := cfotel.Setup(ctx, cfg.OTEL)
	if err != nil {
		return fmt.Errorf("otel: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := otelShutdown(shutdownCtx); err != nil {
			slog.Warn("otel shutdown failed", "error", err)
		}
	}()
	metrics, err := cfotel.NewMetrics()
	if err != nil {
		return fmt.Errorf("otel metrics: %w", err)
	}

	// --- Infrastructure ---

	var archive *postgres.ArchiveStore
	if cfg.Postgres.DSN != "" {
		pool, err := postgres.NewPool(ctx, cfg.Postgres)
		if err != nil {
			return fmt.Errorf("postgres: %w", err)
		}
		defer pool.Close()
		if err := postgres.RunMigrations(ctx, cfg.Postgres.DSN); err != nil {
			return fmt.Errorf("migrations: %w", err)
		}
		archive = postgres.NewArchiveStore(pool)
		slog.Info("plan archive enabled")
	}

	var queue *cfnats.Queue
	if cfg.NATS.URL != "" {
		queue, err = cfnats.Connect(ctx, cfg.NATS.URL)
		if err != nil {
			return fmt.Errorf("nats: %w", err)
		}
		defer func() { _ = queue.Close() }()
	}

	responseCache, closeCache, err := buildCache(ctx, cfg, queue)
	if err != nil {
		return fmt.Errorf("cache: %w", err)
	}
	defer closeCache()

	// --- Planner and executors ---

	llmClient := litellm.NewClient(cfg.LiteLLM.URL, cfg.LiteLLM.MasterKey)
	llmClient.SetBreaker(resilience.NewBreaker(cfg.Breaker.MaxFailures, cfg.Breaker.Timeout))

	executors, err := buildExecutors(cfg)
	if err != nil {
		return fmt.Errorf("agents: %w", err)
	}

	var oracle planner.Oracle = litellm.NewOracle(llmClient, litellm.OracleConfig{
		Model:      cfg.Orchestrator.PlannerModel,
		MaxTokens:  cfg.Orchestrator.PlannerMaxTokens,
		AgentTypes: executors.Types(),
	})
	if responseCache != nil {
		oracle = service.NewCachedOracle(oracle, responseCache, cfg.Orchestrator.PlannerModel, cfg.Cache.L2TTL)
	}

	// --- Services ---

	hub := ws.NewHub(originHost(cfg.Server.CORSOrigin))
	defer hub.Close()

	broadcasters := []broadcast.Broadcaster{hub}
	if queue != nil {
		broadcasters = append(broadcasters, cfnats.NewPublisher(queue))
	}
	planNotifier, err := buildNotifier(&cfg.Notify)
	if err != nil {
		return fmt.Errorf("notify: %w", err)
	}
	if planNotifier != nil {
		broadcasters = append(broadcasters, planNotifier)
		defer planNotifier.Wait()
		slog.Info("plan notifications enabled", "targets", len(cfg.Notify.Targets))
	}

	svc := service.NewOrchestratorService(memstore.New(), executors, oracle,
		broadcast.Multi(broadcasters...), &cfg.Orchestrator)
	svc.SetMetrics(metrics)
	if archive != nil {
		svc.SetArchive(archive)
	}

	if queue != nil {
		cancelFeedback, err := svc.StartFeedbackConsumer(ctx, queue)
		if err != nil {
			return fmt.Errorf("feedback consumer: %w", err)
		}
		defer cancelFeedback()
	}

	stopCleanup := svc.StartCleanup(ctx)
	defer stopCleanup()

	// --- HTTP ---

	handlers := &cfhttp.Handlers{
		Plans:   svc,
		LiteLLM: llmClient,
	}

	limiter := middleware.NewRateLimiter(cfg.Rate.RequestsPerSecond, cfg.Rate.Burst)
	stopLimiter := limiter.StartCleanup(time.Minute, 10*time.Minute)
	defer stopLimiter()

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(cfotel.HTTPMiddleware(cfg.OTEL.ServiceName))
	r.Use(cfhttp.SecurityHeaders)
	r.Use(cfhttp.CORS(cfg.Server.CORSOrigin))
	r.Use(cfhttp.Logger)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(limiter.Handler)

	r.Get("/ws", hub.HandleWS)

	var writeMW []func(http.Handler) http.Handler
	if responseCache != nil {
		writeMW = append(writeMW, middleware.Idempotency(responseCache, idempotencyTTL))
	}
	cfhttp.MountRoutes(r, handlers, writeMW...)

	addr := ":" + cfg.Server.Port
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	// --- MCP ---

	var mcpSrv *cfmcp.Server
	if cfg.MCP.Enabled {
		mcpSrv = cfmcp.NewServer(cfmcp.ServerConfig{
			Addr:    cfg.MCP.Addr,
			Name:    "agentplan",
			Version: "0.1.0",
			APIKey:  cfg.MCP.APIKey,
		}, cfmcp.ServerDeps{Plans: svc})
		if err := mcpSrv.Start(); err != nil {
			return fmt.Errorf("mcp: %w", err)
		}
	}

	serveErr := make(chan error, 1)
	go func() {
		slog.Info("starting server", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		return fmt.Errorf("http server: %w", err)
	}
	slog.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Warn("http shutdown failed", "error", err)
	}
	if mcpSrv != nil {
		if err := mcpSrv.Stop(shutdownCtx); err != nil {
			slog.Warn("mcp shutdown failed", "error", err)
		}
	}
	return svc.Shutdown(shutdownCtx)
}

// buildCache returns the planner response cache: ristretto in front of the
// NATS KV bucket when NATS is configured, ristretto alone otherwise. A nil
// cache means caching is disabled.
func buildCache(ctx context.Context, cfg *config.Config, queue *cfnats.Queue) (cache.Cache, func(), error) {
	if !cfg.Cache.Enabled {
		return nil, func() {}, nil
	}
	l1, err := ristretto.New(cfg.Cache.L1MaxSizeMB << 20)
	if err != nil {
		return nil, nil, err
	}
	if queue == nil {
		return l1, l1.Close, nil
	}
	l2, err := natskv.Open(ctx, queue.JetStream(), cfg.Cache.L2Bucket, cfg.Cache.L2TTL)
	if err != nil {
		l1.Close()
		return nil, nil, err
	}
	slog.Info("tiered cache enabled", "bucket", cfg.Cache.L2Bucket)
	return tiered.New(l1, l2, cfg.Cache.L1TTL), l1.Close, nil
}

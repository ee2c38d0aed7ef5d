package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/lizTheDeveloper/ai-village-sub001/internal/budget"
	"github.com/lizTheDeveloper/ai-village-sub001/internal/config"
	"github.com/lizTheDeveloper/ai-village-sub001/internal/connector"
	"github.com/lizTheDeveloper/ai-village-sub001/internal/gateway"
	"github.com/lizTheDeveloper/ai-village-sub001/internal/probe"
	"github.com/lizTheDeveloper/ai-village-sub001/internal/queue"
	"github.com/lizTheDeveloper/ai-village-sub001/internal/resolve"
	"github.com/lizTheDeveloper/ai-village-sub001/internal/router"
	"github.com/lizTheDeveloper/ai-village-sub001/internal/sink"
	"github.com/lizTheDeveloper/ai-village-sub001/internal/telemetry"
	"github.com/lizTheDeveloper/ai-village-sub001/internal/vocab"
)

var version = "dev"

const (
	breakerFailureThreshold = 5
	breakerProbeInterval    = 30 * time.Second
)

func main() {
	configDir := flag.String("config", "configs", "path to configuration directory")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	// Load configuration
	loader := config.NewLoader(*configDir, logger)
	if err := loader.Load(); err != nil {
		logger.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	cfg := loader.Config()
	logger = newLogger(cfg.Telemetry)
	slog.SetDefault(logger)

	if err := loader.Watch(); err != nil {
		logger.Warn("failed to start config watcher", "error", err)
	}

	// Connect to PostgreSQL. The exchange log is best-effort: the
	// pipeline runs without it.
	var exchangeSink sink.ExchangeSink = sink.NoopSink{}
	dbPool, err := pgxpool.New(context.Background(), cfg.Database.DSN())
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer dbPool.Close()

	if err := dbPool.Ping(context.Background()); err != nil {
		logger.Warn("database not reachable (exchange log disabled)", "error", err)
	} else {
		logger.Info("database connected")
		exchangeSink = sink.NewPostgresSink(dbPool, cfg.Pipeline.SinkBuffer, logger)
	}

	// Connect to Redis: capability cache and budget counters.
	var rdb *redis.Client
	if cfg.Redis.Address != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Address,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			PoolSize: cfg.Redis.PoolSize,
		})
		if err := rdb.Ping(context.Background()).Err(); err != nil {
			logger.Warn("redis not reachable (capability cache and budget in-memory only)", "error", err)
			rdb = nil
		} else {
			logger.Info("redis connected")
		}
	}

	var durable probe.DurableCache
	if rdb != nil {
		durable = probe.NewRedisCache(rdb)
	}
	capCache := probe.NewCache(durable)

	// Action vocabulary and the policy gate.
	vocabulary, err := loader.Actions().Vocabulary()
	if err != nil {
		logger.Error("invalid action vocabulary", "error", err)
		os.Exit(1)
	}

	var gate *vocab.PolicyGate
	if cfg.Policy.Enabled {
		gate = vocab.NewPolicyGate(cfg.Policy.EvaluationTimeout)
		if err := gate.Load(cfg.Policy.BundlePath); err != nil {
			logger.Error("failed to load policy bundle", "error", err, "path", cfg.Policy.BundlePath)
			os.Exit(1)
		}
		logger.Info("policy gate enabled", "path", cfg.Policy.BundlePath)
	}

	metrics := telemetry.NewMetrics()
	health := router.NewHealthTracker(breakerFailureThreshold, breakerProbeInterval)

	// Build the connector registry and the decision pipeline.
	registry := connector.BuildFromConfig(loader.Providers(), capCache, vocabulary, cfg.Pipeline, metrics)
	loader.OnReload(func() {
		registry.Swap(connector.BuildFromConfig(loader.Providers(), capCache, vocabulary, loader.Config().Pipeline, metrics))
		logger.Info("connector registry reloaded")
	})

	decisions, err := queue.New(queue.Options{
		Registry:  registry,
		Providers: loader.Providers(),
		Models:    loader.Models(),
		Routes:    router.NewResolver(loader.Models(), health),
		Resolver:  resolve.New(vocabulary),
		Vocab:     vocabulary,
		Gate:      gate,
		Sink:      exchangeSink,
		Metrics:   metrics,
		Budget:    budget.NewTracker(rdb),
		BudgetCfg: cfg.Budget,
		Logger:    logger,
	})
	if err != nil {
		logger.Error("failed to build decision pipeline", "error", err)
		os.Exit(1)
	}

	handler := gateway.NewHandler(decisions, func() *vocab.Vocabulary {
		return vocabulary
	}, health, registry.Names())

	// Router setup
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(requestIDMiddleware)

	r.Get("/village/v1/health", handler.Health)
	r.Post("/v1/decisions", handler.SubmitDecision)
	r.Post("/v1/decisions/async", handler.SubmitDecisionAsync)
	r.Get("/v1/decisions/{agentID}", handler.PollDecision)
	r.Get("/v1/actions", handler.ListActions)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Metrics on a separate listener so the decision surface stays
	// private to the simulation network.
	if cfg.Telemetry.MetricsPort > 0 {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.Handler())
			metricsAddr := fmt.Sprintf(":%d", cfg.Telemetry.MetricsPort)
			logger.Info("metrics listening", "addr", metricsAddr)
			if err := http.ListenAndServe(metricsAddr, mux); err != nil {
				logger.Warn("metrics server stopped", "error", err)
			}
		}()
	}

	// Graceful shutdown
	errCh := make(chan error, 1)
	go func() {
		logger.Info("villaged starting", "addr", addr, "version", version)
		errCh <- srv.ListenAndServe()
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		logger.Info("received shutdown signal", "signal", sig)
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.GracefulShutdown)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("graceful shutdown failed", "error", err)
	}
	decisions.Close()
	if err := exchangeSink.Close(ctx); err != nil {
		logger.Warn("exchange sink close", "error", err)
	}
	logger.Info("villaged stopped")
}

func newLogger(cfg config.TelemetryConfig) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(cfg.LogLevel) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.LogFormat == "text" {
		return slog.New(slog.NewTextHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, opts))
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := r.Header.Get("X-Request-ID")
		if reqID == "" {
			reqID = generateRequestID()
		}
		w.Header().Set("X-Request-ID", reqID)
		ctx := context.WithValue(r.Context(), requestIDKey, reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

type contextKey string

const requestIDKey contextKey = "request_id"

func generateRequestID() string {
	now := time.Now()
	b := make([]byte, 8)
	rand.Read(b)
	return fmt.Sprintf("req_%d_%s", now.UnixMilli(), hex.EncodeToString(b))
}

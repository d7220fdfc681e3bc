package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/courtsight/predictor-api/internal/config"
	"github.com/courtsight/predictor-api/internal/handlers"
	"github.com/courtsight/predictor-api/internal/logic"
	"github.com/courtsight/predictor-api/internal/store"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	logger := newLogger(cfg.Env)
	defer logger.Sync()
	sugar := logger.Sugar()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pg, err := pgxpool.New(ctx, cfg.PostgresURL)
	if err != nil {
		sugar.Fatalw("Failed to connect to Postgres", "error", err)
	}
	defer pg.Close()

	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		sugar.Fatalw("Invalid Redis URL", "error", err)
	}
	rdb := redis.NewClient(redisOpts)
	defer rdb.Close()

	ch, err := connectClickHouse(cfg.ClickHouseURL)
	if err != nil {
		sugar.Fatalw("Failed to connect to ClickHouse", "error", err)
	}
	defer ch.Close()

	profile, err := loadProfile(cfg)
	if err != nil {
		sugar.Fatalw("Failed to load feature profile", "error", err)
	}
	sugar.Infow("Serving profile", "profile", profile.Name, "model_version", profile.ModelVersion)

	forms := store.NewLiveFormStore(pg, rdb, cfg.FormCacheTTL, logger)

	winScorer, err := loadScorer(cfg.WinModelPath, logger)
	if err != nil {
		sugar.Fatalw("Failed to load win model", "error", err, "path", cfg.WinModelPath)
	}

	winAssembler := logic.NewAssembler(profile, forms, logger)

	var spreadAssembler *logic.Assembler
	var spreadScorer *logic.Scorer
	if cfg.SpreadModelPath != "" {
		spreadScorer, err = loadScorer(cfg.SpreadModelPath, logger)
		if err != nil {
			sugar.Fatalw("Failed to load spread model", "error", err, "path", cfg.SpreadModelPath)
		}
		spreadProfile, err := logic.LookupProfile("spread-specific")
		if err != nil {
			sugar.Fatalw("Spread profile missing", "error", err)
		}
		spreadAssembler = logic.NewAssembler(spreadProfile, forms, logger)
	}

	prediction := logic.NewPredictionService(winAssembler, winScorer, spreadAssembler, spreadScorer, logger)

	h := handlers.New(handlers.Config{
		Postgres:   pg,
		ClickHouse: ch,
		Redis:      rdb,
		Logger:     logger,
		Prediction: prediction,
		Forms:      forms,
		Profile:    profile,
	})

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: cfg.AllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", h.Health)
	r.Get("/ready", h.Ready)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/predict", h.PredictGame)
		r.Get("/teams/{id}/form", h.GetTeamForm)
	})

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		sugar.Infow("Server listening", "port", cfg.Port, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			sugar.Fatalw("Server failed", "error", err)
		}
	}()

	<-ctx.Done()
	sugar.Info("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		sugar.Errorw("Graceful shutdown failed", "error", err)
	}
	sugar.Info("Server stopped")
}

func newLogger(env string) *zap.Logger {
	if env == "production" {
		logger, _ := zap.NewProduction()
		return logger
	}
	logger, _ := zap.NewDevelopment()
	return logger
}

func connectClickHouse(url string) (driver.Conn, error) {
	opts, err := clickhouse.ParseDSN(url)
	if err != nil {
		return nil, err
	}
	return clickhouse.Open(opts)
}

func loadProfile(cfg *config.Config) (*logic.Profile, error) {
	if cfg.FeatureProfileFile != "" {
		return logic.LoadProfileFile(cfg.FeatureProfileFile)
	}
	return logic.LookupProfile(cfg.FeatureProfile)
}

// loadScorer tolerates a missing path: the service then serves the documented
// neutral fallback until a model artifact is deployed.
func loadScorer(path string, logger *zap.Logger) (*logic.Scorer, error) {
	if path == "" {
		return logic.NewScorer(nil, logger), nil
	}
	artifact, err := logic.LoadModelArtifact(path)
	if err != nil {
		return nil, err
	}
	return logic.NewScorer(artifact, logger), nil
}

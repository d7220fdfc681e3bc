// The pipeline builds the leakage-free training table: it loads the full game
// history, runs the feature engine under the configured profile, and writes
// the resulting rows to ClickHouse and/or a CSV export.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/courtsight/predictor-api/internal/config"
	"github.com/courtsight/predictor-api/internal/logic"
	"github.com/courtsight/predictor-api/internal/store"
	"github.com/courtsight/predictor-api/internal/worker"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "pipeline: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger := newLogger(cfg.Env)
	defer logger.Sync()
	sugar := logger.Sugar()

	ctx := context.Background()
	runID := uuid.New()

	profile, err := loadProfile(cfg)
	if err != nil {
		return fmt.Errorf("load profile: %w", err)
	}

	pg, err := pgxpool.New(ctx, cfg.PostgresURL)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer pg.Close()

	var ch driver.Conn
	if cfg.ClickHouseURL != "" {
		opts, err := clickhouse.ParseDSN(cfg.ClickHouseURL)
		if err != nil {
			return fmt.Errorf("clickhouse dsn: %w", err)
		}
		if ch, err = clickhouse.Open(opts); err != nil {
			return fmt.Errorf("connect clickhouse: %w", err)
		}
		defer ch.Close()
	}

	var csvFile *os.File
	if cfg.FeatureCSVPath != "" {
		csvFile, err = os.Create(cfg.FeatureCSVPath)
		if err != nil {
			return fmt.Errorf("create csv: %w", err)
		}
		defer csvFile.Close()
	}

	sugar.Infow("Pipeline run starting",
		"run_id", runID,
		"profile", profile.Name,
		"model_version", profile.ModelVersion,
		"seasons", cfg.PipelineSeasons,
	)

	games := store.NewGameStore(pg, logger)
	allGames, err := games.ListGames(ctx, cfg.PipelineSeasons)
	if err != nil {
		return fmt.Errorf("load games: %w", err)
	}
	snaps, err := games.ListSeasonStats(ctx)
	if err != nil {
		return fmt.Errorf("load season stats: %w", err)
	}
	sugar.Infow("History loaded", "games", len(allGames), "snapshots", len(snaps))

	engine := logic.NewEngine(profile, logger, cfg.PipelineWorkers)
	rows, err := engine.Build(ctx, allGames, snaps)
	if err != nil {
		var integrity *logic.DataIntegrityError
		if errors.As(err, &integrity) {
			// Corrupt history must never produce a training table.
			return fmt.Errorf("data integrity: %w", err)
		}
		return fmt.Errorf("feature build: %w", err)
	}

	sinkCfg := worker.SinkConfig{
		Profile:       profile,
		RunID:         runID,
		BatchSize:     cfg.BatchSize,
		FlushInterval: cfg.FlushInterval,
		ClickHouse:    ch,
		Logger:        logger,
	}
	if csvFile != nil {
		sinkCfg.CSV = csvFile
	}
	sink, err := worker.NewSink(sinkCfg)
	if err != nil {
		return err
	}

	sink.Start(ctx)
	for _, row := range rows {
		sink.Enqueue(row)
	}
	sink.Stop()

	sugar.Infow("Pipeline run finished",
		"run_id", runID,
		"rows", len(rows),
		"games", len(allGames),
	)
	return nil
}

func newLogger(env string) *zap.Logger {
	if env == "production" {
		logger, _ := zap.NewProduction()
		return logger
	}
	logger, _ := zap.NewDevelopment()
	return logger
}

func loadProfile(cfg *config.Config) (*logic.Profile, error) {
	if cfg.FeatureProfileFile != "" {
		return logic.LoadProfileFile(cfg.FeatureProfileFile)
	}
	return logic.LookupProfile(cfg.FeatureProfile)
}

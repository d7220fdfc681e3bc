package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	// Server
	Port int
	Env  string

	// CORS
	AllowedOrigins []string

	// Database URLs
	PostgresURL   string
	ClickHouseURL string
	RedisURL      string

	// Feature pipeline
	FeatureProfile     string
	FeatureProfileFile string
	PipelineWorkers    int
	PipelineSeasons    []int
	FeatureCSVPath     string
	BatchSize          int
	FlushInterval      time.Duration

	// Models
	WinModelPath    string
	SpreadModelPath string

	// Caching
	FormCacheTTL time.Duration
}

// Load loads configuration from environment variables.
// It returns an error if critical configuration is missing.
func Load() (*Config, error) {
	cfg := &Config{
		Port: getEnvInt("PORT", 8080),
		Env:  getEnv("ENV", "development"),

		FeatureProfile:     getEnv("FEATURE_PROFILE", "advanced-with-snapshots"),
		FeatureProfileFile: getEnv("FEATURE_PROFILE_FILE", ""),
		PipelineWorkers:    getEnvInt("PIPELINE_WORKERS", 8),
		FeatureCSVPath:     getEnv("FEATURE_CSV_PATH", ""),
		BatchSize:          getEnvInt("BATCH_SIZE", 500),
		FlushInterval:      getEnvDuration("FLUSH_INTERVAL", 1*time.Second),

		WinModelPath:    getEnv("WIN_MODEL_PATH", ""),
		SpreadModelPath: getEnv("SPREAD_MODEL_PATH", ""),

		FormCacheTTL: getEnvDuration("FORM_CACHE_TTL", 5*time.Minute),
	}

	// CORS
	origins := getEnv("ALLOWED_ORIGINS", "http://localhost:3000")
	rawOrigins := strings.Split(origins, ",")
	for _, o := range rawOrigins {
		if trimmed := strings.TrimSpace(o); trimmed != "" {
			cfg.AllowedOrigins = append(cfg.AllowedOrigins, trimmed)
		}
	}

	// Seasons, e.g. PIPELINE_SEASONS=2022,2023,2024. Empty means all.
	if raw := getEnv("PIPELINE_SEASONS", ""); raw != "" {
		for _, part := range strings.Split(raw, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			season, err := strconv.Atoi(part)
			if err != nil {
				return nil, fmt.Errorf("invalid PIPELINE_SEASONS entry %q: %w", part, err)
			}
			cfg.PipelineSeasons = append(cfg.PipelineSeasons, season)
		}
	}

	// Critical configuration - fail if missing
	var err error
	if cfg.PostgresURL, err = getEnvRequired("POSTGRES_URL"); err != nil {
		return nil, err
	}
	if cfg.ClickHouseURL, err = getEnvRequired("CLICKHOUSE_URL"); err != nil {
		return nil, err
	}
	if cfg.RedisURL, err = getEnvRequired("REDIS_URL"); err != nil {
		return nil, err
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvRequired(key string) (string, error) {
	if value := os.Getenv(key); value != "" {
		return value, nil
	}
	return "", fmt.Errorf("missing required environment variable: %s", key)
}

func getEnvInt(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return fallback
}

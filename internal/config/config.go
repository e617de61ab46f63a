package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all runtime configuration for the service.
type Config struct {
	Port           string
	DBPath         string
	APIKeys        []string
	AllowedOrigins []string
	EnableHSTS     bool
	LogLevel       slog.Level
	CacheTTL       time.Duration
	RateLimitRPS   float64
	RateBurst      int
	BuildParallel  int

	Scoring ScoringConfig
}

// ScoringConfig holds the weight table and metric benchmarks used by the
// scoring engine. Validated once at startup so scattered literals can't
// drift out of sync.
type ScoringConfig struct {
	Weights    Weights
	Benchmarks Benchmarks

	// MinResolvedOutcomes is the eligibility gate: developers with fewer
	// resolved (operational or withdrawn) projects are never scored.
	MinResolvedOutcomes int
}

// Weights assigns each metric its share of the composite score, in
// percentage points. The seven values must sum to exactly 100.
type Weights struct {
	Completion float64
	Timeline   float64
	Volume     float64
	Breadth    float64
	Diversity  float64
	Pipeline   float64
	Depth      float64
}

// Sum returns the total of all seven weights.
func (w Weights) Sum() float64 {
	return w.Completion + w.Timeline + w.Volume + w.Breadth + w.Diversity + w.Pipeline + w.Depth
}

// Benchmarks holds the normalization anchors for the metric calculators,
// calibrated against typical ISO queue data.
type Benchmarks struct {
	TimelineExcellentDays float64 // avg queue->COD at or under this scores 100
	TimelinePoorDays      float64 // avg queue->COD at or over this scores 0
	VolumeCap             int     // log-scaled; project counts near this approach 100
	RegionsMax            int     // number of ISO regions in the dataset
	FuelTypesMax          int     // distinct fuel types treated as full diversity
	PipelineCap           int     // log-scaled; active counts near this approach 100
	DepthMaxYears         float64 // track records at or over this score 100
}

// DefaultScoring returns the calibrated scoring configuration.
func DefaultScoring() ScoringConfig {
	return ScoringConfig{
		Weights: Weights{
			Completion: 30,
			Timeline:   20,
			Volume:     15,
			Breadth:    10,
			Diversity:  10,
			Pipeline:   10,
			Depth:      5,
		},
		Benchmarks: Benchmarks{
			TimelineExcellentDays: 365,
			TimelinePoorDays:      365 * 6,
			VolumeCap:             200,
			RegionsMax:            9,
			FuelTypesMax:          8,
			PipelineCap:           50,
			DepthMaxYears:         20,
		},
		MinResolvedOutcomes: 5,
	}
}

// Validate checks the scoring configuration invariants.
func (s ScoringConfig) Validate() error {
	if sum := s.Weights.Sum(); sum != 100 {
		return fmt.Errorf("scoring weights must sum to 100, got %v", sum)
	}
	if s.Benchmarks.TimelinePoorDays <= s.Benchmarks.TimelineExcellentDays {
		return fmt.Errorf("timeline poor benchmark (%v) must exceed excellent benchmark (%v)",
			s.Benchmarks.TimelinePoorDays, s.Benchmarks.TimelineExcellentDays)
	}
	if s.Benchmarks.VolumeCap <= 0 || s.Benchmarks.PipelineCap <= 0 {
		return fmt.Errorf("volume and pipeline caps must be positive")
	}
	if s.Benchmarks.RegionsMax <= 0 || s.Benchmarks.FuelTypesMax <= 0 {
		return fmt.Errorf("regions and fuel type maxima must be positive")
	}
	if s.Benchmarks.DepthMaxYears <= 0 {
		return fmt.Errorf("depth max years must be positive")
	}
	if s.MinResolvedOutcomes < 1 {
		return fmt.Errorf("min resolved outcomes must be at least 1, got %d", s.MinResolvedOutcomes)
	}
	return nil
}

// Load reads configuration from the environment, falling back to a .env
// file when present, and validates it.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Debug(".env file not found, using environment variables or defaults")
	}

	cfg := &Config{
		Port:           getEnv("PORT", "8080"),
		DBPath:         getEnv("DB_PATH", "./data/queue.db"),
		APIKeys:        splitKeys(getEnv("API_KEYS", "dev-key-change-me")),
		AllowedOrigins: splitKeys(getEnv("CORS_ORIGINS", "http://localhost:3000,http://localhost:5173")),
		EnableHSTS:     getEnv("ENABLE_HSTS", "false") == "true",
		LogLevel:       parseLogLevel(getEnv("LOG_LEVEL", "info")),
		CacheTTL:       getEnvDuration("CACHE_TTL", 15*time.Minute),
		RateLimitRPS:   getEnvFloat("RATE_LIMIT_RPS", 10),
		RateBurst:      getEnvInt("RATE_LIMIT_BURST", 20),
		BuildParallel:  getEnvInt("BUILD_PARALLELISM", 8),
		Scoring:        DefaultScoring(),
	}

	if v := os.Getenv("MIN_RESOLVED_OUTCOMES"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("invalid MIN_RESOLVED_OUTCOMES %q: %w", v, err)
		}
		cfg.Scoring.MinResolvedOutcomes = n
	}

	if len(cfg.APIKeys) == 0 {
		return nil, fmt.Errorf("at least one API key is required")
	}
	if cfg.BuildParallel < 1 {
		return nil, fmt.Errorf("BUILD_PARALLELISM must be at least 1, got %d", cfg.BuildParallel)
	}
	if err := cfg.Scoring.Validate(); err != nil {
		return nil, fmt.Errorf("invalid scoring configuration: %w", err)
	}

	slog.Info("Configuration loaded",
		"port", cfg.Port,
		"db_path", cfg.DBPath,
		"cache_ttl", cfg.CacheTTL.String(),
		"min_resolved_outcomes", cfg.Scoring.MinResolvedOutcomes)

	return cfg, nil
}

func parseLogLevel(raw string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func splitKeys(raw string) []string {
	var keys []string
	for _, k := range strings.Split(raw, ",") {
		if k = strings.TrimSpace(k); k != "" {
			keys = append(keys, k)
		}
	}
	return keys
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

package config

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"

	"github.com/sentinelpay/fraud-scoring-backend/internal/domain/transaction"
)

type Config struct {
	Version     string `koanf:"version"`
	Environment string `koanf:"environment"`
	LogLevel    string `koanf:"log_level"`

	Server    ServerConfig    `koanf:"server"`
	Database  DatabaseConfig  `koanf:"database"`
	Redis     RedisConfig     `koanf:"redis"`
	Cache     CacheConfig     `koanf:"cache"`
	Scoring   ScoringConfig   `koanf:"scoring"`
	Model     ModelConfig     `koanf:"model"`
	Decision  DecisionConfig  `koanf:"decision"`
	Telemetry TelemetryConfig `koanf:"telemetry"`
}

type ServerConfig struct {
	Port            int           `koanf:"port"`
	ReadTimeout     time.Duration `koanf:"read_timeout"`
	WriteTimeout    time.Duration `koanf:"write_timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

type DatabaseConfig struct {
	URL             string        `koanf:"url"`
	MaxConns        int32         `koanf:"max_conns"`
	MinConns        int32         `koanf:"min_conns"`
	ConnMaxLifetime time.Duration `koanf:"conn_max_lifetime"`
	AcquireTimeout  time.Duration `koanf:"acquire_timeout"`
}

type RedisConfig struct {
	Addr         string        `koanf:"addr"`
	Password     string        `koanf:"password"`
	DB           int           `koanf:"db"`
	PoolSize     int           `koanf:"pool_size"`
	MinIdleConns int           `koanf:"min_idle_conns"`
	MaxRetries   int           `koanf:"max_retries"`
	DialTimeout  time.Duration `koanf:"dial_timeout"`
	ReadTimeout  time.Duration `koanf:"read_timeout"`
	WriteTimeout time.Duration `koanf:"write_timeout"`
}

type CacheConfig struct {
	L1Size                  int           `koanf:"l1_size"`
	ScoreTTL                time.Duration `koanf:"score_ttl"`
	GeoTTL                  time.Duration `koanf:"geo_ttl"`
	DistributedSingleFlight bool          `koanf:"distributed_single_flight"`
}

type ScoringConfig struct {
	Deadline        time.Duration `koanf:"deadline"`
	DegradedScore   float64       `koanf:"degraded_score"`
	PersistQueue    int           `koanf:"persist_queue"`
	PersistRetryMax time.Duration `koanf:"persist_retry_max"`
}

type ModelConfig struct {
	ArtifactPath string `koanf:"artifact_path"`
}

// DecisionThreshold maps a probability lower bound (inclusive) to a tier.
// The table must be ordered and strictly increasing; Validate enforces it
// once at load time so request paths never re-check.
type DecisionThreshold struct {
	Threshold      float64                    `koanf:"threshold"`
	RiskLevel      transaction.RiskLevel      `koanf:"risk_level"`
	Recommendation transaction.Recommendation `koanf:"recommendation"`
}

type DecisionConfig struct {
	Thresholds []DecisionThreshold `koanf:"thresholds"`
}

type TelemetryConfig struct {
	Enabled      bool    `koanf:"enabled"`
	OTLPEndpoint string  `koanf:"otlp_endpoint"`
	SamplingRate float64 `koanf:"sampling_rate"`
}

func Load(path string) (*Config, error) {
	k := koanf.New(".")

	defaults := &Config{
		Version:     "dev",
		Environment: "development",
		LogLevel:    "info",
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     10 * time.Second,
			WriteTimeout:    10 * time.Second,
			ShutdownTimeout: 30 * time.Second,
		},
		Database: DatabaseConfig{
			URL:             "postgres://localhost:5432/fraud?sslmode=disable",
			MaxConns:        25,
			MinConns:        5,
			ConnMaxLifetime: 5 * time.Minute,
			AcquireTimeout:  2 * time.Second,
		},
		Redis: RedisConfig{
			Addr:         "localhost:6379",
			DB:           0,
			PoolSize:     10,
			MinIdleConns: 2,
			MaxRetries:   2,
			DialTimeout:  2 * time.Second,
			ReadTimeout:  500 * time.Millisecond,
			WriteTimeout: 500 * time.Millisecond,
		},
		Cache: CacheConfig{
			L1Size:   10000,
			ScoreTTL: 1 * time.Hour,
			GeoTTL:   24 * time.Hour,
		},
		Scoring: ScoringConfig{
			Deadline:        100 * time.Millisecond,
			DegradedScore:   0.5,
			PersistQueue:    1024,
			PersistRetryMax: 30 * time.Second,
		},
		Model: ModelConfig{
			ArtifactPath: "configs/model.json",
		},
		Decision: DecisionConfig{
			Thresholds: DefaultThresholds(),
		},
		Telemetry: TelemetryConfig{
			Enabled:      false,
			OTLPEndpoint: "localhost:4317",
			SamplingRate: 0.1,
		},
	}

	if err := k.Load(structs.Provider(defaults, "koanf"), nil); err != nil {
		return nil, fmt.Errorf("loading defaults: %w", err)
	}

	// Config file is optional
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("loading config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider("FRAUD_", ".", func(s string) string {
		return strings.Replace(strings.ToLower(
			strings.TrimPrefix(s, "FRAUD_")), "_", ".", -1)
	}), nil); err != nil {
		return nil, fmt.Errorf("loading environment variables: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// DefaultThresholds is the product-approved decision table.
func DefaultThresholds() []DecisionThreshold {
	return []DecisionThreshold{
		{Threshold: 0.0, RiskLevel: transaction.RiskLow, Recommendation: transaction.RecommendApprove},
		{Threshold: 0.3, RiskLevel: transaction.RiskMedium, Recommendation: transaction.RecommendApprove},
		{Threshold: 0.5, RiskLevel: transaction.RiskHigh, Recommendation: transaction.RecommendReview},
		{Threshold: 0.8, RiskLevel: transaction.RiskCritical, Recommendation: transaction.RecommendDecline},
	}
}

// Validate rejects configurations the pipeline cannot run with.
func (c *Config) Validate() error {
	if c.Scoring.Deadline <= 0 {
		return fmt.Errorf("scoring.deadline must be positive")
	}
	if c.Scoring.DegradedScore < 0 || c.Scoring.DegradedScore > 1 {
		return fmt.Errorf("scoring.degraded_score must be in [0,1]")
	}
	if c.Cache.L1Size <= 0 {
		return fmt.Errorf("cache.l1_size must be positive")
	}
	return c.Decision.Validate()
}

// Validate enforces the monotonicity contract of the threshold table:
// the first entry starts at 0, bounds strictly increase, and all bounds
// stay inside [0,1).
func (d *DecisionConfig) Validate() error {
	if len(d.Thresholds) == 0 {
		return fmt.Errorf("decision.thresholds must not be empty")
	}
	if !sort.SliceIsSorted(d.Thresholds, func(i, j int) bool {
		return d.Thresholds[i].Threshold < d.Thresholds[j].Threshold
	}) {
		return fmt.Errorf("decision.thresholds must be in increasing order")
	}
	if d.Thresholds[0].Threshold != 0 {
		return fmt.Errorf("decision.thresholds must start at 0")
	}
	for i, t := range d.Thresholds {
		if t.Threshold < 0 || t.Threshold >= 1 {
			return fmt.Errorf("decision.thresholds[%d] out of range [0,1)", i)
		}
		if i > 0 && t.Threshold == d.Thresholds[i-1].Threshold {
			return fmt.Errorf("decision.thresholds[%d] duplicates previous bound", i)
		}
		switch t.RiskLevel {
		case transaction.RiskLow, transaction.RiskMedium, transaction.RiskHigh, transaction.RiskCritical:
		default:
			return fmt.Errorf("decision.thresholds[%d] has unknown risk level %q", i, t.RiskLevel)
		}
		switch t.Recommendation {
		case transaction.RecommendApprove, transaction.RecommendReview, transaction.RecommendDecline:
		default:
			return fmt.Errorf("decision.thresholds[%d] has unknown recommendation %q", i, t.Recommendation)
		}
	}
	return nil
}

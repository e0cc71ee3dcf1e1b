package main

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/opensource-finance/leasecheck/internal/domain"
)

// loadConfig builds the configuration for the tier selected by
// LEASECHECK_TIER and applies environment overrides on top.
func loadConfig(getenv func(string) string) (*domain.Config, error) {
	cfg := domain.DefaultConfig()
	switch tier := getenv("LEASECHECK_TIER"); tier {
	case "", string(domain.TierCommunity):
	case string(domain.TierPro):
		cfg = domain.ProConfig()
	default:
		return nil, fmt.Errorf("unknown LEASECHECK_TIER %q", tier)
	}

	e := envReader{getenv: getenv}

	e.stringVar("LEASECHECK_HOST", &cfg.Server.Host)
	e.intVar("LEASECHECK_PORT", &cfg.Server.Port)

	e.stringVar("LEASECHECK_HEURISTICS", &cfg.Scoring.HeuristicsPath)
	e.intVar("LEASECHECK_REVIEW_THRESHOLD", &cfg.Scoring.ReviewThreshold)
	e.intVar("LEASECHECK_RULE_WORKERS", &cfg.Scoring.MaxRuleWorkers)

	e.boolVar("LEASECHECK_QUOTA_ENABLED", &cfg.Quota.Enabled)
	e.int64Var("LEASECHECK_QUOTA_LIMIT", &cfg.Quota.Limit)
	e.durationVar("LEASECHECK_QUOTA_WINDOW", &cfg.Quota.Window)
	e.float64Var("LEASECHECK_BURST_PER_SECOND", &cfg.Quota.BurstPerSecond)
	e.intVar("LEASECHECK_BURST", &cfg.Quota.Burst)

	e.stringVar("LEASECHECK_DB_DRIVER", &cfg.Repository.Driver)
	e.stringVar("LEASECHECK_SQLITE_PATH", &cfg.Repository.SQLitePath)
	e.stringVar("LEASECHECK_POSTGRES_HOST", &cfg.Repository.PostgresHost)
	e.intVar("LEASECHECK_POSTGRES_PORT", &cfg.Repository.PostgresPort)
	e.stringVar("LEASECHECK_POSTGRES_USER", &cfg.Repository.PostgresUser)
	e.stringVar("LEASECHECK_POSTGRES_PASSWORD", &cfg.Repository.PostgresPassword)
	e.stringVar("LEASECHECK_POSTGRES_DB", &cfg.Repository.PostgresDB)
	e.stringVar("LEASECHECK_POSTGRES_SSLMODE", &cfg.Repository.PostgresSSLMode)

	e.stringVar("LEASECHECK_CACHE", &cfg.Cache.Type)
	e.stringVar("LEASECHECK_REDIS_ADDR", &cfg.Cache.RedisAddr)
	e.stringVar("LEASECHECK_REDIS_PASSWORD", &cfg.Cache.RedisPassword)
	e.intVar("LEASECHECK_REDIS_DB", &cfg.Cache.RedisDB)
	e.durationVar("LEASECHECK_RESULT_TTL", &cfg.Cache.ResultTTL)

	e.stringVar("LEASECHECK_BUS", &cfg.EventBus.Type)
	e.stringVar("LEASECHECK_NATS_URL", &cfg.EventBus.NATSUrl)
	e.stringVar("LEASECHECK_NATS_TOKEN", &cfg.EventBus.NATSToken)

	e.stringVar("LEASECHECK_LOG_LEVEL", &cfg.Logging.Level)
	e.stringVar("LEASECHECK_LOG_FORMAT", &cfg.Logging.Format)
	if getenv("LEASECHECK_DEBUG") == "true" {
		cfg.Logging.Level = "debug"
	}
	e.boolVar("LEASECHECK_TRACING", &cfg.Tracing.Enabled)

	if err := e.err(); err != nil {
		return nil, err
	}
	if cfg.Scoring.ReviewThreshold < 0 || cfg.Scoring.ReviewThreshold > 100 {
		return nil, fmt.Errorf("LEASECHECK_REVIEW_THRESHOLD must be within 0-100, got %d", cfg.Scoring.ReviewThreshold)
	}
	return cfg, nil
}

// envReader applies typed overrides and collects parse errors.
type envReader struct {
	getenv func(string) string
	errs   []string
}

func (e *envReader) stringVar(key string, dst *string) {
	if v := e.getenv(key); v != "" {
		*dst = v
	}
}

func (e *envReader) intVar(key string, dst *int) {
	if v := e.getenv(key); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			e.errs = append(e.errs, fmt.Sprintf("%s: %q is not an integer", key, v))
			return
		}
		*dst = n
	}
}

func (e *envReader) int64Var(key string, dst *int64) {
	if v := e.getenv(key); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			e.errs = append(e.errs, fmt.Sprintf("%s: %q is not an integer", key, v))
			return
		}
		*dst = n
	}
}

func (e *envReader) float64Var(key string, dst *float64) {
	if v := e.getenv(key); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			e.errs = append(e.errs, fmt.Sprintf("%s: %q is not a number", key, v))
			return
		}
		*dst = f
	}
}

func (e *envReader) boolVar(key string, dst *bool) {
	if v := e.getenv(key); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			e.errs = append(e.errs, fmt.Sprintf("%s: %q is not a boolean", key, v))
			return
		}
		*dst = b
	}
}

func (e *envReader) durationVar(key string, dst *time.Duration) {
	if v := e.getenv(key); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			e.errs = append(e.errs, fmt.Sprintf("%s: %q is not a duration", key, v))
			return
		}
		*dst = d
	}
}

func (e *envReader) err() error {
	if len(e.errs) == 0 {
		return nil
	}
	return fmt.Errorf("invalid environment: %s", strings.Join(e.errs, "; "))
}

// newLogger builds the process logger from cfg.
func newLogger(cfg domain.LoggingConfig) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}

	if cfg.Format == "text" {
		return slog.New(slog.NewTextHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, opts))
}

// splitList parses a comma-separated environment value.
func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

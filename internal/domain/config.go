package domain

import "time"

// Config holds the complete leasecheck configuration.
type Config struct {
	Server ServerConfig `json:"server"`

	// Tier determines which backends are used
	Tier Tier `json:"tier"`

	Scoring    ScoringConfig    `json:"scoring"`
	Quota      QuotaConfig      `json:"quota"`
	Repository RepositoryConfig `json:"repository"`
	Cache      CacheConfig      `json:"cache"`
	EventBus   EventBusConfig   `json:"eventBus"`

	Logging LoggingConfig `json:"logging"`
	Tracing TracingConfig `json:"tracing"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host         string `json:"host"`
	Port         int    `json:"port"`
	ReadTimeout  int    `json:"readTimeout"`  // seconds
	WriteTimeout int    `json:"writeTimeout"` // seconds
}

// ScoringConfig selects the heuristics profile and the review cut-off.
type ScoringConfig struct {
	// HeuristicsPath is an optional YAML profile; empty uses built-in defaults.
	HeuristicsPath string `json:"heuristicsPath"`

	// ReviewThreshold: assessments scoring below it are marked REVIEW.
	ReviewThreshold int `json:"reviewThreshold"`

	// MaxRuleWorkers bounds parallel clause-rule evaluation.
	MaxRuleWorkers int `json:"maxRuleWorkers"`
}

// QuotaConfig limits analysis requests per tenant.
type QuotaConfig struct {
	Enabled bool `json:"enabled"`

	// Requests allowed per Window.
	Limit  int64         `json:"limit"`
	Window time.Duration `json:"window"`

	// Token bucket applied before the window counter.
	BurstPerSecond float64 `json:"burstPerSecond"`
	Burst          int     `json:"burst"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `json:"level"`  // debug, info, warn, error
	Format string `json:"format"` // json, text
}

// TracingConfig holds OpenTelemetry settings.
type TracingConfig struct {
	Enabled     bool   `json:"enabled"`
	ServiceName string `json:"serviceName"`
}

// Tier represents the deployment tier.
type Tier string

const (
	// TierCommunity runs on SQLite, an in-process cache and channels.
	TierCommunity Tier = "community"

	// TierPro runs on PostgreSQL, Redis and NATS.
	TierPro Tier = "pro"
)

// DefaultConfig returns the community tier configuration.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			ReadTimeout:  30,
			WriteTimeout: 30,
		},
		Tier: TierCommunity,
		Scoring: ScoringConfig{
			ReviewThreshold: 60,
			MaxRuleWorkers:  10,
		},
		Quota: QuotaConfig{
			Enabled:        true,
			Limit:          1000,
			Window:         time.Hour,
			BurstPerSecond: 20,
			Burst:          40,
		},
		Repository: RepositoryConfig{
			Driver:     "sqlite",
			SQLitePath: "./leasecheck.db",
		},
		Cache: CacheConfig{
			Type:         "memory",
			LocalMaxSize: 10000,
			LocalTTL:     5 * time.Minute,
			ResultTTL:    24 * time.Hour,
		},
		EventBus: EventBusConfig{
			Type:              "channel",
			ChannelBufferSize: 1000,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Tracing: TracingConfig{
			Enabled:     false,
			ServiceName: "leasecheck",
		},
	}
}

// ProConfig returns the pro tier configuration.
func ProConfig() *Config {
	cfg := DefaultConfig()
	cfg.Tier = TierPro
	cfg.Repository = RepositoryConfig{
		Driver:       "postgres",
		PostgresHost: "localhost",
		PostgresPort: 5432,
		PostgresDB:   "leasecheck",
	}
	cfg.Cache = CacheConfig{
		Type:           "redis",
		RedisAddr:      "localhost:6379",
		EnableTwoPhase: true,
		LocalMaxSize:   1000,
		LocalTTL:       5 * time.Minute,
		ResultTTL:      24 * time.Hour,
	}
	cfg.EventBus = EventBusConfig{
		Type:              "nats",
		NATSUrl:           "nats://localhost:4222",
		NATSMaxReconnects: 10,
		NATSReconnectWait: 5,
	}
	cfg.Tracing.Enabled = true
	return cfg
}

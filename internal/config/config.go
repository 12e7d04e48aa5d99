package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Cache      CacheConfig      `yaml:"cache" mapstructure:"cache"`
	Refresh    RefreshConfig    `yaml:"refresh" mapstructure:"refresh"`
	Benchmark  BenchmarkConfig  `yaml:"benchmark" mapstructure:"benchmark"`
	Anthropic  AnthropicConfig  `yaml:"anthropic" mapstructure:"anthropic"`
	Monitoring MonitoringConfig `yaml:"monitoring" mapstructure:"monitoring"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// CacheConfig configures freshness scoring and cache behavior.
type CacheConfig struct {
	// Factor weights; must sum to 1.0.
	AgeWeight        float64 `yaml:"age_weight" mapstructure:"age_weight"`
	DataWeight       float64 `yaml:"data_weight" mapstructure:"data_weight"`
	CompetitorWeight float64 `yaml:"competitor_weight" mapstructure:"competitor_weight"`
	IndustryWeight   float64 `yaml:"industry_weight" mapstructure:"industry_weight"`
	AccessWeight     float64 `yaml:"access_weight" mapstructure:"access_weight"`

	FreshnessThreshold float64 `yaml:"freshness_threshold" mapstructure:"freshness_threshold"`
	StaleThreshold     float64 `yaml:"stale_threshold" mapstructure:"stale_threshold"`

	// Per-analysis-type TTLs in hours.
	TTLHours map[string]float64 `yaml:"ttl_hours" mapstructure:"ttl_hours"`
	// DefaultTTLHours applies to unknown analysis types.
	DefaultTTLHours float64 `yaml:"default_ttl_hours" mapstructure:"default_ttl_hours"`

	// FingerprintTimeoutSecs bounds the data-change check on the hit path.
	FingerprintTimeoutSecs int `yaml:"fingerprint_timeout_secs" mapstructure:"fingerprint_timeout_secs"`

	// CleanupMaxAgeHours is the default cutoff for the cleanup operation.
	CleanupMaxAgeHours int `yaml:"cleanup_max_age_hours" mapstructure:"cleanup_max_age_hours"`
}

// RefreshConfig configures the background refresh queue.
type RefreshConfig struct {
	Workers         int `yaml:"workers" mapstructure:"workers"`
	QueueSize       int `yaml:"queue_size" mapstructure:"queue_size"`
	PerKeyCooldownS int `yaml:"per_key_cooldown_secs" mapstructure:"per_key_cooldown_secs"`
	MaxAttempts     int `yaml:"max_attempts" mapstructure:"max_attempts"`
}

// BenchmarkConfig configures the benchmark engine.
type BenchmarkConfig struct {
	// MinSampleSize gates recalculation from anonymous submissions.
	MinSampleSize int `yaml:"min_sample_size" mapstructure:"min_sample_size"`
	// SeedFile optionally overrides the built-in synthetic base table.
	SeedFile string `yaml:"seed_file" mapstructure:"seed_file"`
	// RecalcConcurrency bounds parallel (industry, stage) recalculations.
	RecalcConcurrency int `yaml:"recalc_concurrency" mapstructure:"recalc_concurrency"`
}

// AnthropicConfig holds Anthropic API settings for analysis recomputation.
type AnthropicConfig struct {
	Key        string `yaml:"key" mapstructure:"key"`
	QuickModel string `yaml:"quick_model" mapstructure:"quick_model"`
	DeepModel  string `yaml:"deep_model" mapstructure:"deep_model"`
	MaxTokens  int64  `yaml:"max_tokens" mapstructure:"max_tokens"`
}

// MonitoringConfig configures health thresholds and alert delivery.
type MonitoringConfig struct {
	WebhookURL        string  `yaml:"webhook_url" mapstructure:"webhook_url"`
	HitRateFloor      float64 `yaml:"hit_rate_floor" mapstructure:"hit_rate_floor"`
	AvgAgeCeilingHrs  float64 `yaml:"avg_age_ceiling_hours" mapstructure:"avg_age_ceiling_hours"`
	QueueSaturation   float64 `yaml:"queue_saturation" mapstructure:"queue_saturation"`
	CheckIntervalSecs int     `yaml:"check_interval_secs" mapstructure:"check_interval_secs"`
}

// ServerConfig configures the HTTP API server.
type ServerConfig struct {
	Port           int      `yaml:"port" mapstructure:"port"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("MARKETLENS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "marketlens.db")
	v.SetDefault("store.max_conns", 10)
	v.SetDefault("store.min_conns", 2)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("cache.age_weight", 0.30)
	v.SetDefault("cache.data_weight", 0.25)
	v.SetDefault("cache.competitor_weight", 0.20)
	v.SetDefault("cache.industry_weight", 0.15)
	v.SetDefault("cache.access_weight", 0.10)
	v.SetDefault("cache.freshness_threshold", 0.7)
	v.SetDefault("cache.stale_threshold", 0.3)
	v.SetDefault("cache.ttl_hours", map[string]float64{
		"strategic":   168,
		"marketing":   72,
		"competitive": 48,
		"quick":       24,
	})
	v.SetDefault("cache.default_ttl_hours", 72)
	v.SetDefault("cache.fingerprint_timeout_secs", 2)
	v.SetDefault("cache.cleanup_max_age_hours", 720)
	v.SetDefault("refresh.workers", 2)
	v.SetDefault("refresh.queue_size", 256)
	v.SetDefault("refresh.per_key_cooldown_secs", 600)
	v.SetDefault("refresh.max_attempts", 2)
	v.SetDefault("benchmark.min_sample_size", 5)
	v.SetDefault("benchmark.recalc_concurrency", 4)
	v.SetDefault("anthropic.quick_model", "claude-haiku-4-5-20251001")
	v.SetDefault("anthropic.deep_model", "claude-sonnet-4-5-20250929")
	v.SetDefault("anthropic.max_tokens", 4096)
	v.SetDefault("monitoring.hit_rate_floor", 1.0)
	v.SetDefault("monitoring.avg_age_ceiling_hours", 336)
	v.SetDefault("monitoring.queue_saturation", 0.8)
	v.SetDefault("monitoring.check_interval_secs", 300)

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}

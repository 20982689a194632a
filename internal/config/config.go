// Package config loads ecoledger configuration from config.yaml and the
// environment.
package config

import (
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/sells-group/ecoledger/internal/aggregate"
)

// Config holds the full application configuration.
type Config struct {
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
	Ingest    IngestConfig    `yaml:"ingest" mapstructure:"ingest"`
	Factors   FactorsConfig   `yaml:"factors" mapstructure:"factors"`
	Aggregate AggregateConfig `yaml:"aggregate" mapstructure:"aggregate"`
	Recommend RecommendConfig `yaml:"recommend" mapstructure:"recommend"`
	Retry     RetryConfig     `yaml:"retry" mapstructure:"retry"`
}

// StoreConfig configures the ledger database.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Port           int      `yaml:"port" mapstructure:"port"`
	CORSOrigins    []string `yaml:"cors_origins" mapstructure:"cors_origins"`
	RateLimitRPS   float64  `yaml:"rate_limit_rps" mapstructure:"rate_limit_rps"`
	RateLimitBurst int      `yaml:"rate_limit_burst" mapstructure:"rate_limit_burst"`
	MaxUploadMB    int      `yaml:"max_upload_mb" mapstructure:"max_upload_mb"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// IngestConfig configures CSV normalization and the row worker pool.
type IngestConfig struct {
	Workers     int               `yaml:"workers" mapstructure:"workers"`
	DateLayouts []string          `yaml:"date_layouts" mapstructure:"date_layouts"`
	UnitAliases map[string]string `yaml:"unit_aliases" mapstructure:"unit_aliases"`
	Charset     string            `yaml:"charset" mapstructure:"charset"`
}

// FactorsConfig points at an optional factor table overriding the built-in one.
type FactorsConfig struct {
	Path string `yaml:"path" mapstructure:"path"`
}

// AggregateConfig configures summaries and CO2e presentation.
type AggregateConfig struct {
	Period       string `yaml:"period" mapstructure:"period"`
	ZeroFill     bool   `yaml:"zero_fill" mapstructure:"zero_fill"`
	HotspotLimit int    `yaml:"hotspot_limit" mapstructure:"hotspot_limit"`
	CO2eUnit     string `yaml:"co2e_unit" mapstructure:"co2e_unit"`
	Precision    int32  `yaml:"precision" mapstructure:"precision"`
}

// RecommendConfig configures recommendation ranking. Thresholds are shares
// of total CO2e in [0,1].
type RecommendConfig struct {
	TopK            int     `yaml:"top_k" mapstructure:"top_k"`
	HighThreshold   float64 `yaml:"high_threshold" mapstructure:"high_threshold"`
	MediumThreshold float64 `yaml:"medium_threshold" mapstructure:"medium_threshold"`
}

// Thresholds returns the impact thresholds.
func (r RecommendConfig) Thresholds() aggregate.Thresholds {
	return aggregate.Thresholds{High: r.HighThreshold, Medium: r.MediumThreshold}
}

// RetryConfig configures retries when opening the ledger database.
type RetryConfig struct {
	MaxAttempts      int `yaml:"max_attempts" mapstructure:"max_attempts"`
	InitialBackoffMs int `yaml:"initial_backoff_ms" mapstructure:"initial_backoff_ms"`
	MaxBackoffMs     int `yaml:"max_backoff_ms" mapstructure:"max_backoff_ms"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("ECOLEDGER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "ecoledger.db")
	v.SetDefault("store.max_conns", 10)
	v.SetDefault("store.min_conns", 2)
	v.SetDefault("server.port", 8000)
	v.SetDefault("server.cors_origins", []string{"*"})
	v.SetDefault("server.rate_limit_rps", 2.0)
	v.SetDefault("server.rate_limit_burst", 5)
	v.SetDefault("server.max_upload_mb", 10)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("ingest.workers", 0)
	v.SetDefault("aggregate.period", string(aggregate.PeriodMonth))
	v.SetDefault("aggregate.zero_fill", false)
	v.SetDefault("aggregate.hotspot_limit", aggregate.DefaultHotspotLimit)
	v.SetDefault("aggregate.co2e_unit", aggregate.UnitKg)
	v.SetDefault("aggregate.precision", 0)
	v.SetDefault("recommend.top_k", 3)
	v.SetDefault("recommend.high_threshold", aggregate.DefaultThresholds.High)
	v.SetDefault("recommend.medium_threshold", aggregate.DefaultThresholds.Medium)
	v.SetDefault("retry.max_attempts", 5)
	v.SetDefault("retry.initial_backoff_ms", 250)
	v.SetDefault("retry.max_backoff_ms", 5000)

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

// Validation modes.
const (
	ModeServe = "serve"
	ModeCLI   = "cli"
)

// Validate rejects settings the engine cannot run with. Serve mode also
// checks the HTTP settings. All problems are reported together.
func (c *Config) Validate(mode string) error {
	var errs []string

	switch mode {
	case ModeServe:
		if c.Server.Port <= 0 {
			errs = append(errs, "server.port must be > 0")
		}
		if c.Server.MaxUploadMB < 0 {
			errs = append(errs, "server.max_upload_mb must be >= 0")
		}
	case ModeCLI:
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	switch c.Store.Driver {
	case "sqlite", "postgres":
	default:
		errs = append(errs, fmt.Sprintf("store.driver must be sqlite or postgres, got %q", c.Store.Driver))
	}
	if c.Store.DatabaseURL == "" {
		errs = append(errs, "store.database_url is required")
	}
	if _, err := aggregate.ParsePeriod(c.Aggregate.Period); err != nil {
		errs = append(errs, fmt.Sprintf("aggregate.period must be day, week, or month, got %q", c.Aggregate.Period))
	}
	if _, err := aggregate.ParseUnit(c.Aggregate.CO2eUnit); err != nil {
		errs = append(errs, fmt.Sprintf("aggregate.co2e_unit must be kg or t, got %q", c.Aggregate.CO2eUnit))
	}
	if c.Aggregate.Precision < 0 {
		errs = append(errs, "aggregate.precision must be >= 0")
	}
	r := c.Recommend
	if r.HighThreshold < 0 || r.HighThreshold > 1 || r.MediumThreshold < 0 || r.MediumThreshold > r.HighThreshold {
		errs = append(errs, "recommend thresholds must satisfy 0 <= medium_threshold <= high_threshold <= 1")
	}

	if len(errs) > 0 {
		return eris.Errorf("config: %s", strings.Join(errs, "; "))
	}
	return nil
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

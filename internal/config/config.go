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
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	PNCP      PNCPConfig      `yaml:"pncp" mapstructure:"pncp"`
	Discovery DiscoveryConfig `yaml:"discovery" mapstructure:"discovery"`
	Cache     CacheConfig     `yaml:"cache" mapstructure:"cache"`
	Notion    NotionConfig    `yaml:"notion" mapstructure:"notion"`
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// PNCPConfig holds PNCP API credentials and transport settings.
type PNCPConfig struct {
	BaseURL         string  `yaml:"base_url" mapstructure:"base_url"`
	ConsultationURL string  `yaml:"consultation_url" mapstructure:"consultation_url"`
	Username        string  `yaml:"username" mapstructure:"username"`
	Password        string  `yaml:"password" mapstructure:"password"`
	TimeoutSecs     int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	MaxRetries      int     `yaml:"max_retries" mapstructure:"max_retries"`
	RequestsPerSec  float64 `yaml:"requests_per_sec" mapstructure:"requests_per_sec"`
	PageSize        int     `yaml:"page_size" mapstructure:"page_size"`
}

// DiscoveryConfig configures the multi-stage discovery engine.
type DiscoveryConfig struct {
	MaxRecords        int     `yaml:"max_records" mapstructure:"max_records"`
	Modalities        []int   `yaml:"modalities" mapstructure:"modalities"`
	MinTenderValue    float64 `yaml:"min_tender_value" mapstructure:"min_tender_value"`
	MaxTenderValue    float64 `yaml:"max_tender_value" mapstructure:"max_tender_value"`
	PassThreshold     int     `yaml:"pass_threshold" mapstructure:"pass_threshold"`
	SampleWorkers     int     `yaml:"sample_workers" mapstructure:"sample_workers"`
	SampleBatchSize   int     `yaml:"sample_batch_size" mapstructure:"sample_batch_size"`
	SampleItems       int     `yaml:"sample_items" mapstructure:"sample_items"`
	BatchPauseSecs    int     `yaml:"batch_pause_secs" mapstructure:"batch_pause_secs"`
	HighValueMin      float64 `yaml:"high_value_min" mapstructure:"high_value_min"`
	MediumValueMin    float64 `yaml:"medium_value_min" mapstructure:"medium_value_min"`
	HighConcurrency   int     `yaml:"high_concurrency" mapstructure:"high_concurrency"`
	MediumConcurrency int     `yaml:"medium_concurrency" mapstructure:"medium_concurrency"`
	LowConcurrency    int     `yaml:"low_concurrency" mapstructure:"low_concurrency"`
}

// CacheConfig configures the organization reputation cache.
type CacheConfig struct {
	SnapshotPath     string `yaml:"snapshot_path" mapstructure:"snapshot_path"`
	MaxAgeDays       int    `yaml:"max_age_days" mapstructure:"max_age_days"`
	EphemeralTTLSecs int    `yaml:"ephemeral_ttl_secs" mapstructure:"ephemeral_ttl_secs"`
	SaveAfterRun     bool   `yaml:"save_after_run" mapstructure:"save_after_run"`
}

// NotionConfig holds Notion export settings.
type NotionConfig struct {
	Token     string `yaml:"token" mapstructure:"token"`
	TendersDB string `yaml:"tenders_db" mapstructure:"tenders_db"`
}

// ServerConfig configures the status server.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
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
	v.SetEnvPrefix("TENDERSCAN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "postgres")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("pncp.base_url", "https://pncp.gov.br/api/pncp")
	v.SetDefault("pncp.consultation_url", "https://pncp.gov.br/api/consulta")
	v.SetDefault("pncp.timeout_secs", 30)
	v.SetDefault("pncp.max_retries", 3)
	v.SetDefault("pncp.requests_per_sec", 1.0)
	v.SetDefault("pncp.page_size", 100)
	v.SetDefault("discovery.max_records", 1000)
	v.SetDefault("discovery.modalities", []int{4, 6, 8})
	v.SetDefault("discovery.min_tender_value", 1000.0)
	v.SetDefault("discovery.max_tender_value", 0.0)
	v.SetDefault("discovery.pass_threshold", 30)
	v.SetDefault("discovery.sample_workers", 5)
	v.SetDefault("discovery.sample_batch_size", 50)
	v.SetDefault("discovery.sample_items", 3)
	v.SetDefault("discovery.batch_pause_secs", 1)
	v.SetDefault("discovery.high_value_min", 100_000.0)
	v.SetDefault("discovery.medium_value_min", 10_000.0)
	v.SetDefault("discovery.high_concurrency", 10)
	v.SetDefault("discovery.medium_concurrency", 5)
	v.SetDefault("discovery.low_concurrency", 3)
	v.SetDefault("cache.snapshot_path", "org_cache.json")
	v.SetDefault("cache.max_age_days", 30)
	v.SetDefault("cache.ephemeral_ttl_secs", 3600)
	v.SetDefault("cache.save_after_run", true)

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

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate rejects configurations the engine cannot run with.
func (c *Config) Validate() error {
	d := c.Discovery
	if d.PassThreshold < 0 || d.PassThreshold > 100 {
		return eris.Errorf("config: pass_threshold %d outside [0,100]", d.PassThreshold)
	}
	if d.MaxTenderValue > 0 && d.MaxTenderValue < d.MinTenderValue {
		return eris.New("config: max_tender_value below min_tender_value")
	}
	if d.MediumValueMin >= d.HighValueMin {
		return eris.New("config: medium_value_min must be below high_value_min")
	}
	if d.SampleWorkers <= 0 || d.SampleBatchSize <= 0 || d.SampleItems <= 0 {
		return eris.New("config: sampling parameters must be positive")
	}
	if d.HighConcurrency <= 0 || d.MediumConcurrency <= 0 || d.LowConcurrency <= 0 {
		return eris.New("config: tier concurrency must be positive")
	}
	if c.Cache.MaxAgeDays <= 0 {
		return eris.New("config: cache max_age_days must be positive")
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

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
	Store   StoreConfig  `yaml:"store" mapstructure:"store"`
	POS     POSConfig    `yaml:"pos" mapstructure:"pos"`
	Ledger  LedgerConfig `yaml:"ledger" mapstructure:"ledger"`
	Sync    SyncConfig   `yaml:"sync" mapstructure:"sync"`
	Commit  CommitConfig `yaml:"commit" mapstructure:"commit"`
	Sweep   SweepConfig  `yaml:"sweep" mapstructure:"sweep"`
	Server  ServerConfig `yaml:"server" mapstructure:"server"`
	Log     LogConfig    `yaml:"log" mapstructure:"log"`
	VenueID int64        `yaml:"venue_id" mapstructure:"venue_id"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// POSConfig holds the point-of-sale feed's endpoint and credentials.
type POSConfig struct {
	BaseURL  string `yaml:"base_url" mapstructure:"base_url"`
	Email    string `yaml:"email" mapstructure:"email"`
	Password string `yaml:"password" mapstructure:"password"`
}

// LedgerConfig holds the accounting feed's endpoint and credentials.
type LedgerConfig struct {
	BaseURL  string `yaml:"base_url" mapstructure:"base_url"`
	APIToken string `yaml:"api_token" mapstructure:"api_token"`
	OrgID    string `yaml:"org_id" mapstructure:"org_id"`
}

// SyncConfig configures the fetch side of the pipeline.
type SyncConfig struct {
	PageSize      int     `yaml:"page_size" mapstructure:"page_size"`
	PageDelayMs   int     `yaml:"page_delay_ms" mapstructure:"page_delay_ms"`
	RatePerSecond float64 `yaml:"rate_per_second" mapstructure:"rate_per_second"`
	TimeoutSecs   int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	MaxRetries    int     `yaml:"max_retries" mapstructure:"max_retries"`
}

// CommitConfig configures the processing side.
type CommitConfig struct {
	ChunkSize    int     `yaml:"chunk_size" mapstructure:"chunk_size"`
	ChunkDelayMs int     `yaml:"chunk_delay_ms" mapstructure:"chunk_delay_ms"`
	Threshold    float64 `yaml:"threshold" mapstructure:"threshold"`
}

// SweepConfig configures backlog sweeps.
type SweepConfig struct {
	Limit           int `yaml:"limit" mapstructure:"limit"`
	SubBatchSize    int `yaml:"sub_batch_size" mapstructure:"sub_batch_size"`
	MaxWorkers      int `yaml:"max_workers" mapstructure:"max_workers"`
	SubBatchDelayMs int `yaml:"sub_batch_delay_ms" mapstructure:"sub_batch_delay_ms"`
}

// ServerConfig configures the HTTP trigger server.
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
	v.SetEnvPrefix("BARSYNC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults. Empty-string defaults keep env-only keys visible to viper.
	v.SetDefault("store.database_url", "")
	v.SetDefault("pos.base_url", "")
	v.SetDefault("pos.email", "")
	v.SetDefault("pos.password", "")
	v.SetDefault("ledger.base_url", "")
	v.SetDefault("ledger.api_token", "")
	v.SetDefault("ledger.org_id", "")
	v.SetDefault("venue_id", 0)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("sync.page_size", 100)
	v.SetDefault("sync.page_delay_ms", 200)
	v.SetDefault("sync.rate_per_second", 5)
	v.SetDefault("sync.timeout_secs", 60)
	v.SetDefault("sync.max_retries", 4)
	v.SetDefault("commit.chunk_size", 500)
	v.SetDefault("commit.chunk_delay_ms", 100)
	v.SetDefault("commit.threshold", 0.95)
	v.SetDefault("sweep.limit", 500)
	v.SetDefault("sweep.sub_batch_size", 100)
	v.SetDefault("sweep.max_workers", 5)
	v.SetDefault("sweep.sub_batch_delay_ms", 250)

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

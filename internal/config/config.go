// Package config loads application configuration from config.yaml and
// SOLWATCH_-prefixed environment variables, and initializes the global logger.
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
	SAM       SAMConfig       `yaml:"sam" mapstructure:"sam"`
	Feed      FeedConfig      `yaml:"feed" mapstructure:"feed"`
	Attach    AttachConfig    `yaml:"attach" mapstructure:"attach"`
	Extract   ExtractConfig   `yaml:"extract" mapstructure:"extract"`
	Scorer    ScorerConfig    `yaml:"scorer" mapstructure:"scorer"`
	Snapshot  SnapshotConfig  `yaml:"snapshot" mapstructure:"snapshot"`
	Reconcile ReconcileConfig `yaml:"reconcile" mapstructure:"reconcile"`
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the Postgres backend.
type StoreConfig struct {
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// SAMConfig holds SAM.gov API access settings.
type SAMConfig struct {
	APIKey   string `yaml:"api_key" mapstructure:"api_key"`
	BaseURL  string `yaml:"base_url" mapstructure:"base_url"`
	PageSize int    `yaml:"page_size" mapstructure:"page_size"`
}

// FeedConfig configures the legacy nightly flat-file feed.
type FeedConfig struct {
	FTPHost     string `yaml:"ftp_host" mapstructure:"ftp_host"`
	FTPPathTmpl string `yaml:"ftp_path_tmpl" mapstructure:"ftp_path_tmpl"`
}

// AttachConfig configures attachment resolution.
type AttachConfig struct {
	TempDir         string `yaml:"temp_dir" mapstructure:"temp_dir"`
	MaxSizeBytes    int64  `yaml:"max_size_bytes" mapstructure:"max_size_bytes"`
	TimeoutSecs     int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	SkipDownloads   bool   `yaml:"skip_downloads" mapstructure:"skip_downloads"`
	DownloadWorkers int    `yaml:"download_workers" mapstructure:"download_workers"`
}

// ExtractConfig configures text extraction.
type ExtractConfig struct {
	PdfToTextPath string `yaml:"pdftotext_path" mapstructure:"pdftotext_path"`
}

// ScorerConfig configures the classifier inference endpoint.
type ScorerConfig struct {
	BaseURL          string `yaml:"base_url" mapstructure:"base_url"`
	TimeoutSecs      int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	MaxAttempts      int    `yaml:"max_attempts" mapstructure:"max_attempts"`
	RetryBackoffMs   int    `yaml:"retry_backoff_ms" mapstructure:"retry_backoff_ms"`
	BreakerThreshold int    `yaml:"breaker_threshold" mapstructure:"breaker_threshold"`
	BreakerResetSecs int    `yaml:"breaker_reset_secs" mapstructure:"breaker_reset_secs"`
}

// SnapshotConfig configures the authoritative opportunity snapshot download.
type SnapshotConfig struct {
	CSVURL        string `yaml:"csv_url" mapstructure:"csv_url"`
	CacheDir      string `yaml:"cache_dir" mapstructure:"cache_dir"`
	CacheTTLHours int    `yaml:"cache_ttl_hours" mapstructure:"cache_ttl_hours"`
	UseBrowser    bool   `yaml:"use_browser" mapstructure:"use_browser"`
	ChromePath    string `yaml:"chrome_path" mapstructure:"chrome_path"`
}

// ReconcileConfig configures the periodic solicitation sweep.
type ReconcileConfig struct {
	MaxChecks       int `yaml:"max_checks" mapstructure:"max_checks"`
	InactiveAgeDays int `yaml:"inactive_age_days" mapstructure:"inactive_age_days"`
	ActiveAgeDays   int `yaml:"active_age_days" mapstructure:"active_age_days"`
}

// ServerConfig configures the status API server.
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

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	v.SetEnvPrefix("SOLWATCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("sam.base_url", "https://api.sam.gov/opportunities/v2/search")
	v.SetDefault("sam.page_size", 100)
	v.SetDefault("feed.ftp_host", "ftp.fbo.gov")
	v.SetDefault("feed.ftp_path_tmpl", "/FBOFeed%s")
	v.SetDefault("attach.temp_dir", "/tmp/solwatch")
	v.SetDefault("attach.max_size_bytes", int64(500_000_000))
	v.SetDefault("attach.timeout_secs", 120)
	v.SetDefault("attach.download_workers", 4)
	v.SetDefault("extract.pdftotext_path", "pdftotext")
	v.SetDefault("scorer.base_url", "http://localhost:9090")
	v.SetDefault("scorer.timeout_secs", 30)
	v.SetDefault("scorer.max_attempts", 3)
	v.SetDefault("scorer.retry_backoff_ms", 500)
	v.SetDefault("scorer.breaker_threshold", 5)
	v.SetDefault("scorer.breaker_reset_secs", 30)
	v.SetDefault("snapshot.cache_dir", "/tmp/solwatch/snapshot")
	v.SetDefault("snapshot.cache_ttl_hours", 24)
	v.SetDefault("reconcile.max_checks", 500)
	v.SetDefault("reconcile.inactive_age_days", 90)
	v.SetDefault("reconcile.active_age_days", 365)

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

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
	Store    StoreConfig    `yaml:"store" mapstructure:"store"`
	Fetch    FetchConfig    `yaml:"fetch" mapstructure:"fetch"`
	Assign   AssignConfig   `yaml:"assign" mapstructure:"assign"`
	Collab   CollabConfig   `yaml:"collab" mapstructure:"collab"`
	View     ViewConfig     `yaml:"view" mapstructure:"view"`
	Pipeline PipelineConfig `yaml:"pipeline" mapstructure:"pipeline"`
	Server   ServerConfig   `yaml:"server" mapstructure:"server"`
	Log      LogConfig      `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// FetchConfig configures the inbound email fetch.
type FetchConfig struct {
	SourceURL       string `yaml:"source_url" mapstructure:"source_url"`
	TimeoutSecs     int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	MaxAttempts     int    `yaml:"max_attempts" mapstructure:"max_attempts"`
	BackoffMillis   int    `yaml:"backoff_millis" mapstructure:"backoff_millis"`
	FallbackEnabled bool   `yaml:"fallback_enabled" mapstructure:"fallback_enabled"`
	DatasetPath     string `yaml:"dataset_path" mapstructure:"dataset_path"`
}

// AssignConfig selects the identifier assignment policy.
// "sequential" always assigns max(id)+1; "dedup" reuses an existing row
// when the upstream id and content match.
type AssignConfig struct {
	Strategy string `yaml:"strategy" mapstructure:"strategy"`
}

// CollabConfig configures the classifier/scorer/drafter collaborators.
type CollabConfig struct {
	Provider      string `yaml:"provider" mapstructure:"provider"`
	AnthropicKey  string `yaml:"anthropic_key" mapstructure:"anthropic_key"`
	Model         string `yaml:"model" mapstructure:"model"`
	TemplatesPath string `yaml:"templates_path" mapstructure:"templates_path"`
}

// ViewConfig configures the human-readable HTML log view.
type ViewConfig struct {
	Path string `yaml:"path" mapstructure:"path"`
}

// PipelineConfig bounds a single pipeline run.
type PipelineConfig struct {
	TimeoutSecs int `yaml:"timeout_secs" mapstructure:"timeout_secs"`
}

// ServerConfig configures the mock inbox server.
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
	v.SetEnvPrefix("TRIAGE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "database/support_emails.db")
	v.SetDefault("fetch.source_url", "http://localhost:8000/new_email")
	v.SetDefault("fetch.timeout_secs", 10)
	v.SetDefault("fetch.max_attempts", 3)
	v.SetDefault("fetch.backoff_millis", 500)
	v.SetDefault("fetch.fallback_enabled", true)
	v.SetDefault("fetch.dataset_path", "data/mock_support_emails.json")
	v.SetDefault("assign.strategy", "sequential")
	v.SetDefault("collab.provider", "rules")
	v.SetDefault("collab.model", "claude-haiku-4-5-20251001")
	v.SetDefault("view.path", "docs/index.html")
	v.SetDefault("pipeline.timeout_secs", 120)
	v.SetDefault("server.port", 8000)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

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

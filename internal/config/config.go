package config

import (
	"sort"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
	Extract   ExtractConfig   `yaml:"extract" mapstructure:"extract"`
	Learning  LearningConfig  `yaml:"learning" mapstructure:"learning"`
	Filter    FilterConfig    `yaml:"filter" mapstructure:"filter"`
	Anthropic AnthropicConfig `yaml:"anthropic" mapstructure:"anthropic"`
	Fetch     FetchConfig     `yaml:"fetch" mapstructure:"fetch"`
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
}

// StoreConfig configures the learning store backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	Path        string `yaml:"path" mapstructure:"path"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// ExtractConfig configures the strategy cascade.
type ExtractConfig struct {
	FastMode            bool     `yaml:"fast_mode" mapstructure:"fast_mode"`
	FastModeThreshold   float64  `yaml:"fast_mode_threshold" mapstructure:"fast_mode_threshold"`
	MaxConcurrentFields int      `yaml:"max_concurrent_fields" mapstructure:"max_concurrent_fields"`
	Strategies          []string `yaml:"strategies" mapstructure:"strategies"`
	AIEnhance           bool     `yaml:"ai_enhance" mapstructure:"ai_enhance"`
	// FieldsFile is an optional YAML field registry merged over the defaults.
	FieldsFile string `yaml:"fields_file" mapstructure:"fields_file"`
}

// LearningConfig configures the self-improvement engine.
type LearningConfig struct {
	HistoryLimit        int     `yaml:"history_limit" mapstructure:"history_limit"`
	SimilarityThreshold float64 `yaml:"similarity_threshold" mapstructure:"similarity_threshold"`
	LocationConfidence  float64 `yaml:"location_confidence" mapstructure:"location_confidence"`
	SuccessConfidence   float64 `yaml:"success_confidence" mapstructure:"success_confidence"`
	SaveAttempts        int     `yaml:"save_attempts" mapstructure:"save_attempts"`
}

// FilterConfig configures the anti-pattern filter.
type FilterConfig struct {
	FailClosed     bool     `yaml:"fail_closed" mapstructure:"fail_closed"`
	RequiredFields []string `yaml:"required_fields" mapstructure:"required_fields"`
}

// AnthropicConfig holds Anthropic API settings for AI enhancement.
type AnthropicConfig struct {
	Key       string `yaml:"key" mapstructure:"key"`
	Model     string `yaml:"model" mapstructure:"model"`
	MaxTokens int64  `yaml:"max_tokens" mapstructure:"max_tokens"`
}

// FetchConfig configures page fetching for extract --url and batch.
type FetchConfig struct {
	TimeoutSecs       int      `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	RequestsPerSecond float64  `yaml:"requests_per_second" mapstructure:"requests_per_second"`
	MaxConcurrent     int      `yaml:"max_concurrent" mapstructure:"max_concurrent"`
	UserAgent         string   `yaml:"user_agent" mapstructure:"user_agent"`
	ExcludePaths      []string `yaml:"exclude_paths" mapstructure:"exclude_paths"`
	JinaKey           string   `yaml:"jina_key" mapstructure:"jina_key"`
	JinaBaseURL       string   `yaml:"jina_base_url" mapstructure:"jina_base_url"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("EXTRACT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.path", "learning.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("extract.fast_mode", false)
	v.SetDefault("extract.fast_mode_threshold", 0.9)
	v.SetDefault("extract.max_concurrent_fields", 4)
	v.SetDefault("extract.ai_enhance", false)
	v.SetDefault("learning.history_limit", 1000)
	v.SetDefault("learning.similarity_threshold", 0.7)
	v.SetDefault("learning.location_confidence", 0.7)
	v.SetDefault("learning.success_confidence", 0.5)
	v.SetDefault("learning.save_attempts", 3)
	v.SetDefault("filter.fail_closed", false)
	v.SetDefault("filter.required_fields", []string{"name", "address", "phone", "levelsOfCare", "insurance"})
	v.SetDefault("anthropic.model", "claude-haiku-4-5-20251001")
	v.SetDefault("anthropic.max_tokens", 1024)
	v.SetDefault("fetch.timeout_secs", 15)
	v.SetDefault("fetch.requests_per_second", 2)
	v.SetDefault("fetch.max_concurrent", 4)
	v.SetDefault("fetch.jina_base_url", "https://r.jina.ai")
	v.SetDefault("server.port", 8080)

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

// Validate checks the settings a command needs. mode is the command name:
// extract, batch, serve, feedback or query.
func (c *Config) Validate(mode string) error {
	var errs []string
	add := func(msg string) { errs = append(errs, msg) }

	switch c.Store.Driver {
	case "sqlite", "memory":
	case "postgres":
		if c.Store.DatabaseURL == "" {
			add("store.database_url is required for the postgres driver")
		}
	default:
		add("store.driver must be sqlite, postgres or memory")
	}
	if c.Learning.HistoryLimit <= 0 {
		add("learning.history_limit must be > 0")
	}
	for name, v := range map[string]float64{
		"extract.fast_mode_threshold":   c.Extract.FastModeThreshold,
		"learning.similarity_threshold": c.Learning.SimilarityThreshold,
		"learning.location_confidence":  c.Learning.LocationConfidence,
		"learning.success_confidence":   c.Learning.SuccessConfidence,
	} {
		if v < 0 || v > 1 {
			add(name + " must be between 0 and 1")
		}
	}

	switch mode {
	case "extract", "batch", "serve":
		if c.Extract.MaxConcurrentFields < 1 {
			add("extract.max_concurrent_fields must be >= 1")
		}
		if c.Extract.AIEnhance && c.Anthropic.Key == "" {
			add("anthropic.key is required when extract.ai_enhance is set")
		}
		if mode == "batch" && (c.Fetch.MaxConcurrent < 1 || c.Fetch.MaxConcurrent > 50) {
			add("fetch.max_concurrent must be between 1 and 50")
		}
		if mode == "serve" && c.Server.Port <= 0 {
			add("server.port must be > 0")
		}
	case "feedback", "query":
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(errs) > 0 {
		sort.Strings(errs)
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

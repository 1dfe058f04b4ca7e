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
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
	Anthropic  AnthropicConfig  `yaml:"anthropic" mapstructure:"anthropic"`
	Search     SearchConfig     `yaml:"search" mapstructure:"search"`
	Auth       AuthConfig       `yaml:"auth" mapstructure:"auth"`
	Google     GoogleConfig     `yaml:"google" mapstructure:"google"`
	SMTP       SMTPConfig       `yaml:"smtp" mapstructure:"smtp"`
	Census     CensusConfig     `yaml:"census" mapstructure:"census"`
	Reference  ReferenceConfig  `yaml:"reference" mapstructure:"reference"`
	Resilience ResilienceConfig `yaml:"resilience" mapstructure:"resilience"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// ServerConfig configures the HTTP API server.
type ServerConfig struct {
	Port               int      `yaml:"port" mapstructure:"port"`
	CORSOrigins        []string `yaml:"cors_origins" mapstructure:"cors_origins"`
	ShutdownTimeoutSec int      `yaml:"shutdown_timeout_secs" mapstructure:"shutdown_timeout_secs"`
	MetricsIntervalSec int      `yaml:"metrics_interval_secs" mapstructure:"metrics_interval_secs"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// AnthropicConfig holds Anthropic API settings for the AI advisor.
// An empty key disables the advisor and every AI search uses the
// deterministic fallback.
type AnthropicConfig struct {
	Key         string `yaml:"key" mapstructure:"key"`
	Model       string `yaml:"model" mapstructure:"model"`
	MaxTokens   int64  `yaml:"max_tokens" mapstructure:"max_tokens"`
	TimeoutSecs int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
}

// SearchConfig holds result caps for the search modes.
type SearchConfig struct {
	MaxResults   int `yaml:"max_results" mapstructure:"max_results"`
	MaxAIResults int `yaml:"max_ai_results" mapstructure:"max_ai_results"`
	AICandidates int `yaml:"ai_candidates" mapstructure:"ai_candidates"`
}

// AuthConfig configures token issuance.
type AuthConfig struct {
	JWTSecret        string `yaml:"jwt_secret" mapstructure:"jwt_secret"`
	AccessTTLMinutes int    `yaml:"access_ttl_minutes" mapstructure:"access_ttl_minutes"`
	RefreshTTLDays   int    `yaml:"refresh_ttl_days" mapstructure:"refresh_ttl_days"`
	ResetTTLMinutes  int    `yaml:"reset_ttl_minutes" mapstructure:"reset_ttl_minutes"`
	FrontendURL      string `yaml:"frontend_url" mapstructure:"frontend_url"`
	BcryptCost       int    `yaml:"bcrypt_cost" mapstructure:"bcrypt_cost"`
}

// GoogleConfig holds Google OAuth client credentials.
type GoogleConfig struct {
	ClientID     string `yaml:"client_id" mapstructure:"client_id"`
	ClientSecret string `yaml:"client_secret" mapstructure:"client_secret"`
	RedirectURL  string `yaml:"redirect_url" mapstructure:"redirect_url"`
}

// SMTPConfig configures outbound password reset email.
type SMTPConfig struct {
	Host      string `yaml:"host" mapstructure:"host"`
	Port      int    `yaml:"port" mapstructure:"port"`
	Username  string `yaml:"username" mapstructure:"username"`
	Password  string `yaml:"password" mapstructure:"password"`
	FromEmail string `yaml:"from_email" mapstructure:"from_email"`
}

// CensusConfig configures the ACS apartment lookup.
type CensusConfig struct {
	Key        string  `yaml:"key" mapstructure:"key"`
	BaseURL    string  `yaml:"base_url" mapstructure:"base_url"`
	RateLimit  float64 `yaml:"rate_limit" mapstructure:"rate_limit"`
	UseLiveAPI bool    `yaml:"use_live_api" mapstructure:"use_live_api"`
}

// ReferenceConfig points at optional overrides for the embedded reference tables.
type ReferenceConfig struct {
	Path           string `yaml:"path" mapstructure:"path"`
	VenueShapefile string `yaml:"venue_shapefile" mapstructure:"venue_shapefile"`
}

// ResilienceConfig configures the circuit breaker around external calls.
type ResilienceConfig struct {
	FailureThreshold int `yaml:"failure_threshold" mapstructure:"failure_threshold"`
	ResetTimeoutSecs int `yaml:"reset_timeout_secs" mapstructure:"reset_timeout_secs"`
	MaxRetries       int `yaml:"max_retries" mapstructure:"max_retries"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("SITESELECT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "siteselect.db")
	v.SetDefault("store.max_conns", 10)
	v.SetDefault("store.min_conns", 2)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8000)
	v.SetDefault("server.cors_origins", []string{"http://localhost:3000", "http://localhost:3001"})
	v.SetDefault("server.shutdown_timeout_secs", 10)
	v.SetDefault("server.metrics_interval_secs", 60)
	v.SetDefault("anthropic.model", "claude-haiku-4-5-20251001")
	v.SetDefault("anthropic.max_tokens", 1024)
	v.SetDefault("anthropic.timeout_secs", 20)
	v.SetDefault("search.max_results", 20)
	v.SetDefault("search.max_ai_results", 15)
	v.SetDefault("search.ai_candidates", 10)
	v.SetDefault("auth.access_ttl_minutes", 30)
	v.SetDefault("auth.refresh_ttl_days", 7)
	v.SetDefault("auth.reset_ttl_minutes", 60)
	v.SetDefault("auth.frontend_url", "http://localhost:3001")
	v.SetDefault("auth.bcrypt_cost", 12)
	v.SetDefault("google.redirect_url", "http://localhost:8000/auth/google/callback")
	v.SetDefault("smtp.port", 587)
	v.SetDefault("census.base_url", "https://api.census.gov/data")
	v.SetDefault("census.rate_limit", 5)
	v.SetDefault("resilience.failure_threshold", 5)
	v.SetDefault("resilience.reset_timeout_secs", 30)
	v.SetDefault("resilience.max_retries", 3)

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

// Validate checks the settings required by a command mode
// ("serve", "store" or "cli").
func (c *Config) Validate(mode string) error {
	var errs []string

	switch mode {
	case "serve":
		if c.Server.Port <= 0 {
			errs = append(errs, "server.port must be > 0")
		}
		if c.Auth.JWTSecret == "" {
			errs = append(errs, "auth.jwt_secret is required")
		}
		errs = append(errs, c.storeErrors()...)
	case "store":
		errs = append(errs, c.storeErrors()...)
	case "cli":
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if c.Search.MaxResults < 1 || c.Search.MaxAIResults < 1 || c.Search.AICandidates < 1 {
		errs = append(errs, "search.max_results, search.max_ai_results and search.ai_candidates must be >= 1")
	}

	if len(errs) > 0 {
		return eris.Errorf("config: invalid for %s: %s", mode, strings.Join(errs, "; "))
	}
	return nil
}

func (c *Config) storeErrors() []string {
	var errs []string
	if c.Store.DatabaseURL == "" {
		errs = append(errs, "store.database_url is required")
	}
	if c.Store.Driver != "postgres" && c.Store.Driver != "sqlite" {
		errs = append(errs, "store.driver must be postgres or sqlite")
	}
	return errs
}

// GoogleEnabled reports whether Google sign-in is configured.
func (c *Config) GoogleEnabled() bool {
	return c.Google.ClientID != "" && c.Google.ClientSecret != ""
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

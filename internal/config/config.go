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
	Store   StoreConfig   `yaml:"store" mapstructure:"store"`
	Server  ServerConfig  `yaml:"server" mapstructure:"server"`
	Log     LogConfig     `yaml:"log" mapstructure:"log"`
	Batch   BatchConfig   `yaml:"batch" mapstructure:"batch"`
	Report  ReportConfig  `yaml:"report" mapstructure:"report"`
	V8      PartnerConfig `yaml:"v8" mapstructure:"v8"`
	Facta   PartnerConfig `yaml:"facta" mapstructure:"facta"`
	C6      PartnerConfig `yaml:"c6" mapstructure:"c6"`
	Monitor MonitorConfig `yaml:"monitor" mapstructure:"monitor"`
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
	Port           int      `yaml:"port" mapstructure:"port"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// BatchConfig configures batch processing.
type BatchConfig struct {
	// RequestsPerSecond paces the sequential identifier loop per provider.
	RequestsPerSecond float64 `yaml:"requests_per_second" mapstructure:"requests_per_second"`
	MaxIdentifiers    int     `yaml:"max_identifiers" mapstructure:"max_identifiers"`
}

// ReportConfig configures spreadsheet generation.
type ReportConfig struct {
	SheetName string `yaml:"sheet_name" mapstructure:"sheet_name"`
}

// PartnerConfig holds one partner's endpoint and fallback credentials.
// Credentials stored per owner in the database take precedence; these values
// act as the deployment-wide default.
type PartnerConfig struct {
	BaseURL     string            `yaml:"base_url" mapstructure:"base_url"`
	Credentials map[string]string `yaml:"credentials" mapstructure:"credentials"`
}

// MonitorConfig configures the stale-job checker.
type MonitorConfig struct {
	StaleAfterMinutes int `yaml:"stale_after_minutes" mapstructure:"stale_after_minutes"`
	IntervalMinutes   int `yaml:"interval_minutes" mapstructure:"interval_minutes"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("NEXCRED")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "postgres")
	v.SetDefault("store.max_conns", 10)
	v.SetDefault("store.min_conns", 2)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("batch.requests_per_second", 2)
	v.SetDefault("batch.max_identifiers", 5000)
	v.SetDefault("report.sheet_name", "Consultas")
	v.SetDefault("v8.base_url", "https://bff.v8sistema.com")
	v.SetDefault("facta.base_url", "https://webservice.facta.com.br")
	v.SetDefault("c6.base_url", "https://baas-api.c6bank.info")
	v.SetDefault("monitor.stale_after_minutes", 30)
	v.SetDefault("monitor.interval_minutes", 5)

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

// Validate checks the fields a command mode depends on, collecting every
// problem instead of stopping at the first.
func (c *Config) Validate(mode string) error {
	var problems []string

	check := func(cond bool, msg string) {
		if cond {
			problems = append(problems, msg)
		}
	}

	switch mode {
	case "serve":
		check(c.Server.Port <= 0, "server.port must be > 0")
		fallthrough
	case "batch":
		check(c.Store.Driver == "postgres" && c.Store.DatabaseURL == "", "store.database_url is required for the postgres driver")
		check(c.Batch.RequestsPerSecond < 0, "batch.requests_per_second must be >= 0")
		check(c.Batch.MaxIdentifiers < 0, "batch.max_identifiers must be >= 0")
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(problems) > 0 {
		return eris.Errorf("config: %s", strings.Join(problems, "; "))
	}
	return nil
}

// Partner returns the endpoint/credential config for the given provider tag.
func (c *Config) Partner(provider string) PartnerConfig {
	switch provider {
	case "v8":
		return c.V8
	case "facta":
		return c.Facta
	case "c6":
		return c.C6
	}
	return PartnerConfig{}
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

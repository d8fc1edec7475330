package config

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

const (
	KeyServerPort          = "server.port"
	KeyServerDBPath        = "server.db_path"
	KeyAggregateWindowDays = "aggregate.window_days"
	KeyAggregateLimit      = "aggregate.limit"
	KeyAggregateCacheTTL   = "aggregate.cache_ttl"
	KeyAggregateCacheSize  = "aggregate.cache_size"
	KeyNotifyEnabled       = "notify.enabled"
	KeyNotifyFrom          = "notify.from"
	KeyNotifySMTPHost      = "notify.smtp.host"
	KeyNotifySMTPPort      = "notify.smtp.port"
	KeyLogLevel            = "log.level"
	KeyLogFormat           = "log.format"

	EnvPrefix = "TASKTIME"
)

type Config struct {
	Server    ServerConfig    `mapstructure:"server" yaml:"server"`
	Aggregate AggregateConfig `mapstructure:"aggregate" yaml:"aggregate"`
	Notify    NotifyConfig    `mapstructure:"notify" yaml:"notify"`
	Log       LogConfig       `mapstructure:"log" yaml:"log"`
}

type ServerConfig struct {
	Port   int    `mapstructure:"port" yaml:"port" validate:"min=1,max=65535"`
	DBPath string `mapstructure:"db_path" yaml:"db_path" validate:"required"`
}

type AggregateConfig struct {
	WindowDays int           `mapstructure:"window_days" yaml:"window_days" validate:"min=1,max=366"`
	Limit      int           `mapstructure:"limit" yaml:"limit" validate:"min=1,max=1000"`
	CacheTTL   time.Duration `mapstructure:"cache_ttl" yaml:"cache_ttl" validate:"min=0"`
	CacheSize  int           `mapstructure:"cache_size" yaml:"cache_size" validate:"min=1"`
}

type NotifyConfig struct {
	Enabled bool       `mapstructure:"enabled" yaml:"enabled"`
	From    string     `mapstructure:"from" yaml:"from" validate:"omitempty,email"`
	SMTP    SMTPConfig `mapstructure:"smtp" yaml:"smtp"`
}

type SMTPConfig struct {
	Host     string `mapstructure:"host" yaml:"host" validate:"omitempty,hostname|ip"`
	Port     int    `mapstructure:"port" yaml:"port" validate:"min=0,max=65535"`
	Username string `mapstructure:"username" yaml:"username"`
	Password string `mapstructure:"password" yaml:"password"`
}

type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level" validate:"oneof=debug info warn error"`
	Format string `mapstructure:"format" yaml:"format" validate:"oneof=text json"`
}

// SetDefaults sets default values if not provided
func SetDefaults() {
	setDefaults(viper.GetViper())
}

// LoadAndValidate loads config from Viper and validates it
func LoadAndValidate() (*Config, error) {
	return loadAndValidateFromViper(viper.GetViper())
}

// ValidateYAMLContent validates configuration from raw YAML content.
func ValidateYAMLContent(content []byte) (*Config, error) {
	local := viper.New()
	setDefaults(local)
	local.SetConfigType("yaml")
	if err := local.ReadConfig(bytes.NewReader(content)); err != nil {
		return nil, fmt.Errorf("read config content: %w", err)
	}
	return loadAndValidateFromViper(local)
}

// ExampleYAML returns the default configuration template.
func ExampleYAML() string {
	return `# tasktime configuration
server:
  port: 8080
  db_path: "./tasktime.db"

aggregate:
  window_days: 30
  limit: 20
  cache_ttl: 60s
  cache_size: 1024

notify:
  enabled: false
  from: ""
  smtp:
    host: ""
    port: 25
    username: ""
    password: ""

log:
  level: info
  format: text
`
}

func loadAndValidateFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	cfg.Log.Level = strings.ToLower(strings.TrimSpace(cfg.Log.Level))
	cfg.Log.Format = strings.ToLower(strings.TrimSpace(cfg.Log.Format))

	validate := validator.New()
	if err := validate.Struct(cfg); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}
	if err := validateNotify(cfg.Notify); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault(KeyServerPort, 8080)
	v.SetDefault(KeyServerDBPath, "./tasktime.db")
	v.SetDefault(KeyAggregateWindowDays, 30)
	v.SetDefault(KeyAggregateLimit, 20)
	v.SetDefault(KeyAggregateCacheTTL, 60*time.Second)
	v.SetDefault(KeyAggregateCacheSize, 1024)
	v.SetDefault(KeyNotifyEnabled, false)
	v.SetDefault(KeyNotifyFrom, "")
	v.SetDefault(KeyNotifySMTPHost, "")
	v.SetDefault(KeyNotifySMTPPort, 25)
	v.SetDefault(KeyLogLevel, "info")
	v.SetDefault(KeyLogFormat, "text")
}

func validateNotify(cfg NotifyConfig) error {
	if !cfg.Enabled {
		return nil
	}
	if strings.TrimSpace(cfg.From) == "" {
		return fmt.Errorf("validation failed: notify.from is required when notify.enabled is true")
	}
	if strings.TrimSpace(cfg.SMTP.Host) == "" {
		return fmt.Errorf("validation failed: notify.smtp.host is required when notify.enabled is true")
	}
	return nil
}

package common

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	API     APIConfig     `mapstructure:"api"`
	Poll    PollConfig    `mapstructure:"poll"`
	UI      UIConfig      `mapstructure:"ui"`
	Export  ExportConfig  `mapstructure:"export"`
	History HistoryConfig `mapstructure:"history"`
	Server  ServerConfig  `mapstructure:"server"`
	Log     LogConfig     `mapstructure:"log"`
}

// APIConfig holds extraction API configuration
type APIConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	Key     string        `mapstructure:"key"`
	Timeout time.Duration `mapstructure:"timeout"` // 0 means no per-request timeout
}

// PollConfig holds status polling configuration
type PollConfig struct {
	Interval time.Duration `mapstructure:"interval"`
}

// UIConfig holds user-facing behaviour shared by the CLI and the web UI
type UIConfig struct {
	NoticeTTL    time.Duration `mapstructure:"notice_ttl"`
	SupportEmail string        `mapstructure:"support_email"`
	SessionTTL   time.Duration `mapstructure:"session_ttl"`
}

// ExportConfig holds image download configuration
type ExportConfig struct {
	Dir     string        `mapstructure:"dir"`
	Stagger time.Duration `mapstructure:"stagger"`
}

// HistoryConfig holds the task journal configuration; an empty DSN disables it
type HistoryConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
	DialTimeout     time.Duration `mapstructure:"dial_timeout"`
}

// ServerConfig holds web daemon configuration
type ServerConfig struct {
	Addr           string        `mapstructure:"addr"`
	GRPCAddr       string        `mapstructure:"grpc_addr"`
	HealthInterval time.Duration `mapstructure:"health_interval"`
}

// LogConfig holds logger configuration
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

var defaults = map[string]any{
	"api.base_url":              "http://localhost:8000",
	"api.key":                   "",
	"api.timeout":               time.Duration(0),
	"poll.interval":             2 * time.Second,
	"ui.notice_ttl":             5 * time.Second,
	"ui.support_email":          "support@cheque-extractor.com",
	"ui.session_ttl":            30 * time.Minute,
	"export.dir":                ".",
	"export.stagger":            time.Second,
	"history.dsn":               "",
	"history.max_conns":         int32(5),
	"history.max_conn_lifetime": 30 * time.Minute,
	"history.dial_timeout":      3 * time.Second,
	"server.addr":               ":8080",
	"server.grpc_addr":          "",
	"server.health_interval":    30 * time.Second,
	"log.level":                 "info",
	"log.format":                "text",
}

// NewViper returns a viper instance carrying the defaults, an optional cheque.yaml from the
// working directory (or configFile when set) and environment overrides such as API_BASE_URL.
func NewViper(configFile string) (*viper.Viper, error) {
	v := viper.New()
	for k, val := range defaults {
		v.SetDefault(k, val)
	}

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("cheque")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &notFound) {
			return nil, NewAppError("CONFIG_ERROR", "read config file", err)
		}
	}
	return v, nil
}

// LoadConfig decodes configuration from v.
func LoadConfig(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, NewAppError("CONFIG_ERROR", "decode config", err)
	}
	cfg.API.BaseURL = strings.TrimRight(cfg.API.BaseURL, "/")
	return &cfg, nil
}

// Validate validates the loaded configuration
func (c *Config) Validate() error {
	v := NewValidator()
	v.Field("api.base_url", c.API.BaseURL, Required, HTTPURL)
	v.Field("poll.interval", c.Poll.Interval, PositiveDuration)
	v.Field("ui.notice_ttl", c.UI.NoticeTTL, PositiveDuration)
	v.Field("export.stagger", c.Export.Stagger, NonNegativeDuration)
	v.Field("log.format", c.Log.Format, OneOf("text", "json"))
	if v.HasErrors() {
		return NewAppError("CONFIG_ERROR", v.ErrorMessage(), ErrInvalidInput)
	}
	return nil
}

// String renders the configuration without secrets.
func (c *Config) String() string {
	key := "unset"
	if c.API.Key != "" {
		key = "set"
	}
	return fmt.Sprintf("api=%s key=%s poll=%s history=%t", c.API.BaseURL, key, c.Poll.Interval, c.History.DSN != "")
}

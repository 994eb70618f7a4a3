// Package server provides configuration helpers that define runtime defaults,
// validation, and the flag/env/file layering for the rtchat service.
package server

import (
	"fmt"
	"runtime"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment variable read by LoadConfig, e.g.
// RTCHAT_PORT or RTCHAT_LOG_LEVEL.
const EnvPrefix = "RTCHAT"

// LogConfig controls the zap logger and its optional rotating file sink.
type LogConfig struct {
	Level      string
	Format     string
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

// Config holds the server configuration settings.
type Config struct {
	Port            string
	Workers         int
	AllowedOrigins  []string
	MaxMessageSize  int64
	MaxNameLength   int
	WriteTimeout    time.Duration
	PingInterval    time.Duration
	PongWait        time.Duration
	ShutdownTimeout time.Duration
	ConfigFile      string
	Log             LogConfig
}

func defaultConfig() Config {
	return Config{
		Port:    ":8080",
		Workers: runtime.NumCPU(),
		AllowedOrigins: []string{
			"http://localhost:8080",
		},
		MaxMessageSize:  4096,
		MaxNameLength:   32,
		WriteTimeout:    10 * time.Second,
		PingInterval:    54 * time.Second,
		PongWait:        60 * time.Second,
		ShutdownTimeout: 10 * time.Second,
		Log: LogConfig{
			Level:      "info",
			Format:     "console",
			MaxSizeMB:  100,
			MaxBackups: 3,
			MaxAgeDays: 28,
		},
	}
}

// NewConfig creates a Config instance populated with default values for all settings.
func NewConfig() *Config {
	cfg := defaultConfig()
	return &cfg
}

// LoadConfig builds the configuration from defaults, an optional config file
// (--config), RTCHAT_* environment variables and command-line flags, in
// increasing order of precedence. The result is sanitized.
func LoadConfig(args []string) (*Config, error) {
	def := defaultConfig()

	fs := pflag.NewFlagSet("rtchat", pflag.ContinueOnError)
	fs.String("config", "", "path to a config file (yaml, json, toml, ...)")
	fs.StringP("port", "p", def.Port, "listen address or port")
	fs.IntP("workers", "w", def.Workers, "number of OS threads executing goroutines")
	fs.StringSlice("allowed-origins", def.AllowedOrigins, "origins allowed to open a WebSocket ('*' allows all)")
	fs.String("log-level", def.Log.Level, "log level (debug, info, warn, error)")
	fs.String("log-format", def.Log.Format, "log format (console, json)")
	fs.String("log-file", "", "also write logs to this file, rotated")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	v := viper.New()
	setDefaults(v, def)

	for key, flag := range map[string]string{
		"port":            "port",
		"workers":         "workers",
		"allowed_origins": "allowed-origins",
		"log.level":       "log-level",
		"log.format":      "log-format",
		"log.file":        "log-file",
	} {
		if err := v.BindPFlag(key, fs.Lookup(flag)); err != nil {
			return nil, fmt.Errorf("bind flag %s: %w", flag, err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	path, _ := fs.GetString("config")
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	cfg := Config{
		Port:            v.GetString("port"),
		Workers:         v.GetInt("workers"),
		AllowedOrigins:  originsValue(v),
		MaxMessageSize:  v.GetInt64("max_message_size"),
		MaxNameLength:   v.GetInt("max_name_length"),
		WriteTimeout:    v.GetDuration("write_timeout"),
		PingInterval:    v.GetDuration("ping_interval"),
		PongWait:        v.GetDuration("pong_wait"),
		ShutdownTimeout: v.GetDuration("shutdown_timeout"),
		ConfigFile:      path,
		Log: LogConfig{
			Level:      v.GetString("log.level"),
			Format:     v.GetString("log.format"),
			File:       v.GetString("log.file"),
			MaxSizeMB:  v.GetInt("log.max_size_mb"),
			MaxBackups: v.GetInt("log.max_backups"),
			MaxAgeDays: v.GetInt("log.max_age_days"),
		},
	}

	sanitized := sanitizeConfig(cfg)
	return &sanitized, nil
}

func setDefaults(v *viper.Viper, def Config) {
	v.SetDefault("port", def.Port)
	v.SetDefault("workers", def.Workers)
	v.SetDefault("allowed_origins", def.AllowedOrigins)
	v.SetDefault("max_message_size", def.MaxMessageSize)
	v.SetDefault("max_name_length", def.MaxNameLength)
	v.SetDefault("write_timeout", def.WriteTimeout)
	v.SetDefault("ping_interval", def.PingInterval)
	v.SetDefault("pong_wait", def.PongWait)
	v.SetDefault("shutdown_timeout", def.ShutdownTimeout)
	v.SetDefault("log.level", def.Log.Level)
	v.SetDefault("log.format", def.Log.Format)
	v.SetDefault("log.file", def.Log.File)
	v.SetDefault("log.max_size_mb", def.Log.MaxSizeMB)
	v.SetDefault("log.max_backups", def.Log.MaxBackups)
	v.SetDefault("log.max_age_days", def.Log.MaxAgeDays)
}

// originsValue reads allowed_origins, accepting a comma separated string from
// the environment as well as a list from flags or a config file.
func originsValue(v *viper.Viper) []string {
	if raw, ok := v.Get("allowed_origins").(string); ok {
		return parseOrigins(raw)
	}
	return v.GetStringSlice("allowed_origins")
}

func parseOrigins(origins string) []string {
	parts := strings.Split(origins, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func sanitizeConfig(cfg Config) Config {
	def := defaultConfig()

	if cfg.Port == "" {
		cfg.Port = def.Port
	}
	if !strings.Contains(cfg.Port, ":") {
		cfg.Port = ":" + cfg.Port
	}

	if cfg.Workers <= 0 {
		cfg.Workers = def.Workers
	}

	if cfg.MaxMessageSize <= 0 {
		cfg.MaxMessageSize = def.MaxMessageSize
	}

	if cfg.MaxNameLength <= 0 {
		cfg.MaxNameLength = def.MaxNameLength
	}

	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = def.WriteTimeout
	}

	// A zero ping interval disables keepalive; the pong wait must outlast it.
	if cfg.PingInterval < 0 {
		cfg.PingInterval = 0
	}
	if cfg.PingInterval > 0 && cfg.PongWait <= cfg.PingInterval {
		cfg.PongWait = cfg.PingInterval * 10 / 9
	}

	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = def.ShutdownTimeout
	}

	if cfg.Log.Level == "" {
		cfg.Log.Level = def.Log.Level
	}
	if cfg.Log.Format != "json" {
		cfg.Log.Format = def.Log.Format
	}

	cfg.AllowedOrigins = append([]string(nil), cfg.AllowedOrigins...)
	return cfg
}

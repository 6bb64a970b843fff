package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	// Service is the remote extraction service.
	Service struct {
		BaseURL string        `mapstructure:"base_url"`
		WSURL   string        `mapstructure:"ws_url"`
		Timeout time.Duration `mapstructure:"timeout"`
	} `mapstructure:"service"`

	// Channel tunes the status channel's reconnect policy.
	Channel struct {
		BaseDelay   time.Duration `mapstructure:"base_delay"`
		MaxAttempts int           `mapstructure:"max_attempts"`
		DialTimeout time.Duration `mapstructure:"dial_timeout"`
	} `mapstructure:"channel"`

	Server struct {
		Addr      string `mapstructure:"addr"`
		Port      int    `mapstructure:"port"`
		UploadDir string `mapstructure:"upload_dir"`
	} `mapstructure:"server"`

	Schema struct {
		Path string `mapstructure:"path"` // default target schema file
	} `mapstructure:"schema"`

	Log struct {
		Level string `mapstructure:"level"`
	} `mapstructure:"log"`
}

// SetDefaults registers the default for every key so env overrides work without a
// config file.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("service.base_url", "http://localhost:8000")
	v.SetDefault("service.ws_url", "ws://localhost:8000/ws")
	v.SetDefault("service.timeout", 60*time.Second)
	v.SetDefault("channel.base_delay", time.Second)
	v.SetDefault("channel.max_attempts", 5)
	v.SetDefault("channel.dial_timeout", 10*time.Second)
	v.SetDefault("server.addr", "127.0.0.1")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.upload_dir", "uploads")
	v.SetDefault("schema.path", "")
	v.SetDefault("log.level", "info")
}

// LoadConfig reads config.yaml from configDir (the working directory when empty),
// then applies STRUCTURIZER_* environment overrides, e.g.
// STRUCTURIZER_SERVICE_BASE_URL for service.base_url.
func LoadConfig(configDir string) (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	if configDir == "" {
		configDir = "."
	}
	v.AddConfigPath(configDir)

	SetDefaults(v)
	v.SetEnvPrefix("STRUCTURIZER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		// It's okay if the config file doesn't exist; defaults and env vars still apply
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error decoding config: %w", err)
	}
	return &config, nil
}

// ListenAddr is the host:port the HTTP server binds to.
func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.Addr, c.Server.Port)
}

package config

import (
	"errors"
	"fmt"
	"net/url"

	log "github.com/sirupsen/logrus"
)

func (c *Config) Validate() error {
	// Service config
	if err := checkURL("service.base_url", c.Service.BaseURL, "http", "https"); err != nil {
		return err
	}
	if err := checkURL("service.ws_url", c.Service.WSURL, "ws", "wss"); err != nil {
		return err
	}
	if c.Service.Timeout <= 0 {
		return errors.New("service.timeout must be positive")
	}

	// Channel config
	if c.Channel.BaseDelay <= 0 {
		return errors.New("channel.base_delay must be positive")
	}
	if c.Channel.MaxAttempts < 0 {
		return errors.New("channel.max_attempts must not be negative")
	}
	if c.Channel.DialTimeout <= 0 {
		return errors.New("channel.dial_timeout must be positive")
	}

	// Server config
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d is out of range", c.Server.Port)
	}
	if c.Server.UploadDir == "" {
		return errors.New("server.upload_dir is required")
	}

	if _, err := log.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("log.level: %w", err)
	}
	return nil
}

func checkURL(key, raw string, schemes ...string) error {
	if raw == "" {
		return fmt.Errorf("%s is required", key)
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	for _, s := range schemes {
		if u.Scheme == s && u.Host != "" {
			return nil
		}
	}
	return fmt.Errorf("%s must be a %s URL, got %q", key, schemes[0], raw)
}

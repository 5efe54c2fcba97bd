// Package config loads the worker's config.toml. Every field has a
// default, so a missing file yields a fully usable configuration.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// Config represents the worker's config.toml.
type Config struct {
	Server   Server   `toml:"server"`
	Backoff  Backoff  `toml:"backoff"`
	Cache    Cache    `toml:"cache"`
	Timeouts Timeouts `toml:"timeouts"`
	Outbox   Outbox   `toml:"outbox"`
}

// Server holds the HTTP gateway settings.
type Server struct {
	Addr           string   `toml:"addr"`
	AllowedOrigins []string `toml:"allowed_origins"`
}

// Backoff holds the reconnect retry policy.
type Backoff struct {
	InitialMS int     `toml:"initial_ms"`
	MaxMS     int     `toml:"max_ms"`
	Factor    float64 `toml:"factor"`
	Jitter    float64 `toml:"jitter"`
}

// Cache bounds the in-memory chat and message history.
type Cache struct {
	MaxChats           int `toml:"max_chats"`
	MaxMessagesPerChat int `toml:"max_messages_per_chat"`
}

// Timeouts holds per-operation deadlines.
type Timeouts struct {
	HandshakeMS int `toml:"handshake_ms"`
	SendMS      int `toml:"send_ms"`
}

// Outbox holds the scheduled-send queue settings.
type Outbox struct {
	PollIntervalMS int `toml:"poll_interval_ms"`
	RetryDelayMS   int `toml:"retry_delay_ms"`
	MaxAttempts    int `toml:"max_attempts"`
}

// Default returns the configuration used when no file overrides it.
func Default() *Config {
	return &Config{
		Server: Server{
			Addr:           "127.0.0.1:3001",
			AllowedOrigins: []string{"http://localhost:5173", "http://localhost:3000"},
		},
		Backoff: Backoff{
			InitialMS: 2000,
			MaxMS:     60000,
			Factor:    2,
			Jitter:    0.2,
		},
		Cache: Cache{
			MaxChats:           512,
			MaxMessagesPerChat: 200,
		},
		Timeouts: Timeouts{
			HandshakeMS: 90000,
			SendMS:      30000,
		},
		Outbox: Outbox{
			PollIntervalMS: 500,
			RetryDelayMS:   30000,
			MaxAttempts:    3,
		},
	}
}

// Load reads config from the given path. A missing file returns the
// defaults; a present but invalid file is an error.
func Load(path string) (*Config, error) {
	cfg := Default()
	_, err := toml.DecodeFile(path, cfg)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Default(), nil
		}
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Save writes config to the given path, creating parent dirs as needed.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	encErr := toml.NewEncoder(f).Encode(cfg)
	if closeErr := f.Close(); closeErr != nil && encErr == nil {
		return closeErr
	}
	return encErr
}

func (c *Config) validate() error {
	if c.Server.Addr == "" {
		return errors.New("server.addr must not be empty")
	}
	if c.Backoff.InitialMS <= 0 || c.Backoff.MaxMS < c.Backoff.InitialMS {
		return errors.New("backoff: initial_ms must be positive and max_ms >= initial_ms")
	}
	if c.Backoff.Factor < 1 {
		return errors.New("backoff.factor must be >= 1")
	}
	if c.Cache.MaxChats <= 0 || c.Cache.MaxMessagesPerChat <= 0 {
		return errors.New("cache bounds must be positive")
	}
	if c.Outbox.MaxAttempts <= 0 {
		return errors.New("outbox.max_attempts must be positive")
	}
	return nil
}

// HandshakeTimeout returns timeouts.handshake_ms as a duration.
func (c *Config) HandshakeTimeout() time.Duration {
	return time.Duration(c.Timeouts.HandshakeMS) * time.Millisecond
}

// SendTimeout returns timeouts.send_ms as a duration.
func (c *Config) SendTimeout() time.Duration {
	return time.Duration(c.Timeouts.SendMS) * time.Millisecond
}

// BackoffInitial returns backoff.initial_ms as a duration.
func (c *Config) BackoffInitial() time.Duration {
	return time.Duration(c.Backoff.InitialMS) * time.Millisecond
}

// BackoffMax returns backoff.max_ms as a duration.
func (c *Config) BackoffMax() time.Duration {
	return time.Duration(c.Backoff.MaxMS) * time.Millisecond
}

// OutboxPollInterval returns outbox.poll_interval_ms as a duration.
func (c *Config) OutboxPollInterval() time.Duration {
	return time.Duration(c.Outbox.PollIntervalMS) * time.Millisecond
}

// OutboxRetryDelay returns outbox.retry_delay_ms as a duration.
func (c *Config) OutboxRetryDelay() time.Duration {
	return time.Duration(c.Outbox.RetryDelayMS) * time.Millisecond
}

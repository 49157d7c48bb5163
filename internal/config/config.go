// Vigil - Multi-User Web Change Monitor
// Copyright 2026 Vigil contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vigil-watch/vigil

// Package config loads layered configuration: struct defaults, then an
// optional YAML file, then VIGIL_-prefixed environment variables.
package config

import (
	"fmt"
	"time"
)

// Config is the full server configuration tree.
type Config struct {
	Server   ServerConfig   `koanf:"server"`
	Logging  LoggingConfig  `koanf:"logging"`
	Storage  StorageConfig  `koanf:"storage"`
	Monitor  MonitorConfig  `koanf:"monitor"`
	Fetch    FetchConfig    `koanf:"fetch"`
	Session  SessionConfig  `koanf:"session"`
	Security SecurityConfig `koanf:"security"`
}

// ServerConfig covers the HTTP listener.
type ServerConfig struct {
	Host        string        `koanf:"host"`
	Port        int           `koanf:"port"`
	Timeout     time.Duration `koanf:"timeout"`
	TLSCert     string        `koanf:"tls_cert"`
	TLSKey      string        `koanf:"tls_key"`
	CORSOrigins []string      `koanf:"cors_origins"`
}

// LoggingConfig covers zerolog setup.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"` // "json" or "console"
}

// StorageConfig locates the per-user data tree and the users file.
type StorageConfig struct {
	DataDir   string `koanf:"data_dir"`
	UsersFile string `koanf:"users_file"`
}

// MonitorConfig tunes the scheduling engine.
type MonitorConfig struct {
	MinInterval     int    `koanf:"min_interval"` // minutes
	ScanWorkers     int    `koanf:"scan_workers"`
	CaptchaKeywords string `koanf:"captcha_keywords"` // semicolon-separated
	DumpPages       bool   `koanf:"dump_pages"`
	DumpDir         string `koanf:"dump_dir"`
}

// FetchConfig tunes outbound HTTP.
type FetchConfig struct {
	Timeout       time.Duration `koanf:"timeout"`
	UserAgent     string        `koanf:"user_agent"`
	RatePerSecond float64       `koanf:"rate_per_second"`
	Burst         int           `koanf:"burst"`
}

// SessionConfig tunes tokens and the idle janitor.
type SessionConfig struct {
	TokenSecret     string        `koanf:"token_secret"`
	TokenTTL        time.Duration `koanf:"token_ttl"`
	MaxIdle         time.Duration `koanf:"max_idle"`
	JanitorInterval time.Duration `koanf:"janitor_interval"`
}

// SecurityConfig holds deployment secrets.
type SecurityConfig struct {
	ReloadPassphrase string `koanf:"reload_passphrase"`
}

// defaultConfig returns the baseline every deployment starts from.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:        "0.0.0.0",
			Port:        8080,
			Timeout:     30 * time.Second,
			CORSOrigins: []string{},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Storage: StorageConfig{
			DataDir:   "data",
			UsersFile: "data/users.json",
		},
		Monitor: MonitorConfig{
			MinInterval:     5,
			ScanWorkers:     8,
			CaptchaKeywords: "captcha;are you a robot;access denied;permission denied",
			DumpPages:       false,
			DumpDir:         "data/dumps",
		},
		Fetch: FetchConfig{
			Timeout:       30 * time.Second,
			UserAgent:     "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0 Safari/537.36",
			RatePerSecond: 4,
			Burst:         8,
		},
		Session: SessionConfig{
			TokenSecret:     "",
			TokenTTL:        24 * time.Hour,
			MaxIdle:         12 * time.Hour,
			JanitorInterval: time.Minute,
		},
		Security: SecurityConfig{
			ReloadPassphrase: "",
		},
	}
}

// Validate checks ranges after all layers applied.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}
	if (c.Server.TLSCert == "") != (c.Server.TLSKey == "") {
		return fmt.Errorf("server.tls_cert and server.tls_key must be set together")
	}
	if c.Monitor.MinInterval < 1 {
		return fmt.Errorf("monitor.min_interval must be at least 1 minute")
	}
	if c.Monitor.ScanWorkers < 1 {
		return fmt.Errorf("monitor.scan_workers must be positive")
	}
	if c.Fetch.Timeout <= 0 {
		return fmt.Errorf("fetch.timeout must be positive")
	}
	if c.Fetch.RatePerSecond < 0 {
		return fmt.Errorf("fetch.rate_per_second must not be negative")
	}
	if c.Storage.DataDir == "" {
		return fmt.Errorf("storage.data_dir must be set")
	}
	if c.Session.TokenTTL <= 0 || c.Session.MaxIdle <= 0 {
		return fmt.Errorf("session.token_ttl and session.max_idle must be positive")
	}
	return nil
}

// Vigil - Multi-User Web Change Monitor
// Copyright 2026 Vigil contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vigil-watch/vigil

package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists where the config file is searched, first hit wins.
var DefaultConfigPaths = []string{
	"vigil.yaml",
	"vigil.yml",
	"/etc/vigil/vigil.yaml",
	"/etc/vigil/vigil.yml",
}

// ConfigPathEnvVar overrides the config file search.
const ConfigPathEnvVar = "VIGIL_CONFIG"

// envMappings maps VIGIL_-prefixed variable names (lower-cased, prefix
// stripped) to koanf paths. Explicit mapping because section and key names
// both contain underscores.
var envMappings = map[string]string{
	"server_host":               "server.host",
	"server_port":               "server.port",
	"server_timeout":            "server.timeout",
	"server_tls_cert":           "server.tls_cert",
	"server_tls_key":            "server.tls_key",
	"server_cors_origins":       "server.cors_origins",
	"log_level":                 "logging.level",
	"log_format":                "logging.format",
	"data_dir":                  "storage.data_dir",
	"users_file":                "storage.users_file",
	"min_interval":              "monitor.min_interval",
	"scan_workers":              "monitor.scan_workers",
	"captcha_keywords":          "monitor.captcha_keywords",
	"dump_pages":                "monitor.dump_pages",
	"dump_dir":                  "monitor.dump_dir",
	"fetch_timeout":             "fetch.timeout",
	"fetch_user_agent":          "fetch.user_agent",
	"fetch_rate_per_second":     "fetch.rate_per_second",
	"fetch_burst":               "fetch.burst",
	"session_token_secret":      "session.token_secret",
	"session_token_ttl":         "session.token_ttl",
	"session_max_idle":          "session.max_idle",
	"session_janitor_interval":  "session.janitor_interval",
	"security_reload_passphrase": "security.reload_passphrase",
}

// Load builds the configuration from defaults, the config file (if any) and
// the environment, then validates it.
func Load() (*Config, error) {
	return loadFrom(findConfigFile())
}

// LoadFile is Load with an explicit config file path. An empty path skips the
// file layer.
func LoadFile(path string) (*Config, error) {
	return loadFrom(path)
}

func loadFrom(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	envProvider := env.Provider("VIGIL_", ".", envTransform)
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	// cors_origins arrives as a comma-separated string from the environment.
	if raw, ok := k.Get("server.cors_origins").(string); ok {
		var origins []string
		for _, o := range strings.Split(raw, ",") {
			if o = strings.TrimSpace(o); o != "" {
				origins = append(origins, o)
			}
		}
		if err := k.Set("server.cors_origins", origins); err != nil {
			return nil, fmt.Errorf("set cors origins: %w", err)
		}
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func envTransform(key string) string {
	key = strings.ToLower(strings.TrimPrefix(key, "VIGIL_"))
	if path, ok := envMappings[key]; ok {
		return path
	}
	return ""
}

func findConfigFile() string {
	if path := os.Getenv(ConfigPathEnvVar); path != "" {
		return path
	}
	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

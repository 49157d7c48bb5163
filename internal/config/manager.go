// Vigil - Multi-User Web Change Monitor
// Copyright 2026 Vigil contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vigil-watch/vigil

package config

import (
	"crypto/subtle"
	"sync"

	"github.com/vigil-watch/vigil/internal/logging"
)

// Manager holds the live configuration and supports atomic reload for the
// reload endpoint. Reload hooks fan the fresh config out to running
// components (fetcher user agent, page-dump flag, CAPTCHA keywords).
type Manager struct {
	mu       sync.RWMutex
	current  *Config
	path     string
	onReload []func(*Config)
}

// NewManager wraps an already-loaded config. path is the file Reload re-reads;
// empty re-runs the default search.
func NewManager(cfg *Config, path string) *Manager {
	return &Manager{current: cfg, path: path}
}

// Current returns the live config snapshot.
func (m *Manager) Current() *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// OnReload registers a hook invoked with the new config after every
// successful Reload. Hooks must be registered before serving starts.
func (m *Manager) OnReload(fn func(*Config)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onReload = append(m.onReload, fn)
}

// Reload re-reads all configuration layers. On any error the previous config
// stays live and no hooks run.
func (m *Manager) Reload() error {
	path := m.path
	if path == "" {
		path = findConfigFile()
	}
	fresh, err := loadFrom(path)
	if err != nil {
		logging.Error().Err(err).Msg("config reload failed, keeping previous config")
		return err
	}

	m.mu.Lock()
	m.current = fresh
	hooks := append([](func(*Config))(nil), m.onReload...)
	m.mu.Unlock()

	for _, fn := range hooks {
		fn(fresh)
	}
	logging.Info().Msg("configuration reloaded")
	return nil
}

// CheckPassphrase compares a reload passphrase in constant time. An empty
// configured passphrase disables the reload endpoint entirely.
func (m *Manager) CheckPassphrase(passphrase string) bool {
	m.mu.RLock()
	configured := m.current.Security.ReloadPassphrase
	m.mu.RUnlock()
	if configured == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(configured), []byte(passphrase)) == 1
}

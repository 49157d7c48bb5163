// Vigil - Multi-User Web Change Monitor
// Copyright 2026 Vigil contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vigil-watch/vigil

// Package registry holds the process-wide map of authenticated sessions. A
// session pairs a user's Monitor with their token, idle timestamp and
// settings; it is created on first login and kept warm until the janitor
// reaps it.
package registry

import (
	"sync"
	"time"

	"github.com/vigil-watch/vigil/internal/auth"
	"github.com/vigil-watch/vigil/internal/clock"
	"github.com/vigil-watch/vigil/internal/logging"
	"github.com/vigil-watch/vigil/internal/match"
	"github.com/vigil-watch/vigil/internal/metrics"
	"github.com/vigil-watch/vigil/internal/monitor"
)

// Store widens monitor.Store with the session-level storage operations.
type Store interface {
	monitor.Store
	EnsureUserDirs(username string) error
	LoadSettings(username string) (map[string]any, error)
}

// Session is one logged-in user's state.
type Session struct {
	Monitor    *monitor.Monitor
	Token      string
	LastActive time.Time
	Settings   map[string]any
}

// Options wires the registry's collaborators.
type Options struct {
	Credentials *auth.Credentials
	Issuer      *auth.TokenIssuer
	Store       Store
	Fetcher     monitor.Fetcher
	Keywords    *match.Keywords
	Clock       clock.Clock
	Rand        clock.Rand
	MinInterval int
	ScanWorkers int
	MaxIdle     time.Duration
}

// Registry is the {username -> Session} map. Mutation happens only on login
// and during janitor sweeps.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	opts     Options
}

// New creates an empty registry.
func New(opts Options) *Registry {
	if opts.Clock == nil {
		opts.Clock = clock.System()
	}
	if opts.MaxIdle <= 0 {
		opts.MaxIdle = 12 * time.Hour
	}
	return &Registry{
		sessions: make(map[string]*Session),
		opts:     opts,
	}
}

// Login verifies credentials and returns the session token. A first login
// creates and populates a fresh Monitor; later logins return the existing
// token.
func (r *Registry) Login(username, password string) (string, bool) {
	if err := r.opts.Credentials.Verify(username, password); err != nil {
		logging.Warn().Str("user", username).Msg("login rejected")
		return "", false
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.opts.Clock.Now()
	if s, ok := r.sessions[username]; ok {
		s.LastActive = now
		return s.Token, true
	}

	token, err := r.opts.Issuer.Mint(username, now)
	if err != nil {
		logging.Error().Err(err).Str("user", username).Msg("token mint failed")
		return "", false
	}
	if err := r.opts.Store.EnsureUserDirs(username); err != nil {
		logging.Error().Err(err).Str("user", username).Msg("user dir setup failed")
		return "", false
	}

	m := monitor.New(username, monitor.Options{
		Fetcher:     r.opts.Fetcher,
		Store:       r.opts.Store,
		Keywords:    r.opts.Keywords,
		Clock:       r.opts.Clock,
		Rand:        r.opts.Rand,
		MinInterval: r.opts.MinInterval,
		ScanWorkers: r.opts.ScanWorkers,
	})
	if ok, msg := m.Populate(); !ok {
		logging.Warn().Str("user", username).Str("detail", msg).Msg("populate finished with failures")
	}
	settings, err := r.opts.Store.LoadSettings(username)
	if err != nil {
		logging.Warn().Err(err).Str("user", username).Msg("settings load failed")
		settings = map[string]any{}
	}

	r.sessions[username] = &Session{
		Monitor:    m,
		Token:      token,
		LastActive: now,
		Settings:   settings,
	}
	metrics.ActiveSessions.Set(float64(len(r.sessions)))
	logging.Info().Str("user", username).Msg("session created")
	return token, true
}

// AuthUser validates a (username, token) pair by string equality and, on
// success, advances the session's idle clock and returns its Monitor.
func (r *Registry) AuthUser(username, token string) (*monitor.Monitor, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[username]
	if !ok || token == "" || s.Token != token {
		return nil, false
	}
	s.LastActive = r.opts.Clock.Now()
	return s.Monitor, true
}

// Settings returns a session's settings map.
func (r *Registry) Settings(username string) (map[string]any, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[username]
	if !ok {
		return nil, false
	}
	return s.Settings, true
}

// Reconfigure fans a config reload out to every session's Monitor.
func (r *Registry) Reconfigure(captchaKeywords string) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, s := range r.sessions {
		s.Monitor.UpdateKeywords(captchaKeywords)
	}
	logging.Info().Int("sessions", len(r.sessions)).Msg("config fanned out to monitors")
}

// SaveAll persists every session's Monitor. Called on shutdown.
func (r *Registry) SaveAll() {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for username, s := range r.sessions {
		if ok, msg := s.Monitor.Save(); !ok {
			logging.Error().Str("user", username).Str("detail", msg).Msg("shutdown save failed")
		}
	}
}

// reapIdle drops sessions idle beyond MaxIdle, saving their Monitors first.
func (r *Registry) reapIdle(now time.Time) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	reaped := 0
	for username, s := range r.sessions {
		if now.Sub(s.LastActive) <= r.opts.MaxIdle {
			continue
		}
		if ok, msg := s.Monitor.Save(); !ok {
			logging.Error().Str("user", username).Str("detail", msg).Msg("save before reap failed")
		}
		delete(r.sessions, username)
		reaped++
		logging.Info().Str("user", username).Msg("idle session reaped")
	}
	if reaped > 0 {
		metrics.ActiveSessions.Set(float64(len(r.sessions)))
	}
	return reaped
}

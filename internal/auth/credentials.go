// Vigil - Multi-User Web Change Monitor
// Copyright 2026 Vigil contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vigil-watch/vigil

// Package auth verifies user credentials against the bcrypt users file and
// mints session tokens.
package auth

import (
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/goccy/go-json"
	"golang.org/x/crypto/bcrypt"

	"github.com/vigil-watch/vigil/internal/logging"
)

// ErrInvalidCredentials covers unknown users and wrong passwords alike, so
// callers cannot distinguish the two.
var ErrInvalidCredentials = errors.New("invalid credentials")

// Credentials is the users file: a map of username to bcrypt password hash.
type Credentials struct {
	mu    sync.RWMutex
	path  string
	users map[string]string
}

// LoadCredentials reads the users file. A missing file yields an empty
// credential set; every login then fails until users are added.
func LoadCredentials(path string) (*Credentials, error) {
	c := &Credentials{path: path, users: map[string]string{}}
	if err := c.Reload(); err != nil {
		return nil, err
	}
	return c, nil
}

// Reload re-reads the users file, replacing the in-memory set atomically.
func (c *Credentials) Reload() error {
	data, err := os.ReadFile(c.path)
	if err != nil {
		if os.IsNotExist(err) {
			logging.Warn().Str("path", c.path).Msg("users file missing, no logins possible")
			c.mu.Lock()
			c.users = map[string]string{}
			c.mu.Unlock()
			return nil
		}
		return fmt.Errorf("read users file: %w", err)
	}
	var users map[string]string
	if err := json.Unmarshal(data, &users); err != nil {
		return fmt.Errorf("decode users file: %w", err)
	}
	c.mu.Lock()
	c.users = users
	c.mu.Unlock()
	logging.Info().Int("users", len(users)).Msg("credentials loaded")
	return nil
}

// Verify checks a username/password pair. The bcrypt comparison runs even
// for unknown users to keep timing uniform.
func (c *Credentials) Verify(username, password string) error {
	c.mu.RLock()
	hash, ok := c.users[username]
	c.mu.RUnlock()
	if !ok {
		// Burn a comparison against a fixed hash of an unguessable value.
		_ = bcrypt.CompareHashAndPassword(
			[]byte("$2a$10$N9qo8uLOickgx2ZMRZoMyeIjZAgcfl7p92ldGxad68LJZdL17lhWy"),
			[]byte(password),
		)
		return ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		return ErrInvalidCredentials
	}
	return nil
}

// AddUser hashes the password and writes the updated users file. Used by the
// user provisioning CLI path, not the server runtime.
func (c *Credentials) AddUser(username, password string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.users[username] = string(hash)
	data, err := json.MarshalIndent(c.users, "", "  ")
	if err != nil {
		return fmt.Errorf("encode users file: %w", err)
	}
	if err := os.WriteFile(c.path, data, 0o600); err != nil {
		return fmt.Errorf("write users file: %w", err)
	}
	return nil
}

// Vigil - Multi-User Web Change Monitor
// Copyright 2026 Vigil contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vigil-watch/vigil

package storage

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/goccy/go-json"
)

// DefaultSound is the fallback alert sound filename under <data>/_default.
const DefaultSound = "notification.wav"

// LoadSound reads a user's alert sound. On miss it substitutes the default
// sound; the returned filename reports which file was actually served.
func (s *Store) LoadSound(username, name string) ([]byte, string, error) {
	if name != "" {
		data, err := os.ReadFile(filepath.Join(s.userDir(username), "sounds", filepath.Base(name)))
		if err == nil {
			return data, name, nil
		}
		if !os.IsNotExist(err) {
			return nil, "", fmt.Errorf("read sound %s: %w", name, err)
		}
	}
	data, err := os.ReadFile(filepath.Join(s.dataDir, "_default", DefaultSound))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, "", fmt.Errorf("%w: sound %s", ErrNotFound, name)
		}
		return nil, "", fmt.Errorf("read default sound: %w", err)
	}
	return data, DefaultSound, nil
}

// SaveSound stores a user's alert sound.
func (s *Store) SaveSound(username, name string, data []byte) error {
	if err := s.EnsureUserDirs(username); err != nil {
		return err
	}
	path := filepath.Join(s.userDir(username), "sounds", filepath.Base(name))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write sound %s: %w", name, err)
	}
	return nil
}

// LoadSettings reads the user's settings blob. A missing file yields an
// empty settings map.
func (s *Store) LoadSettings(username string) (map[string]any, error) {
	data, err := os.ReadFile(filepath.Join(s.userDir(username), "settings.json"))
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]any{}, nil
		}
		return nil, fmt.Errorf("read settings: %w", err)
	}
	var settings map[string]any
	if err := json.Unmarshal(data, &settings); err != nil {
		return nil, fmt.Errorf("decode settings: %w", err)
	}
	return settings, nil
}

// SaveSettings writes the user's settings blob.
func (s *Store) SaveSettings(username string, settings map[string]any) error {
	if err := s.EnsureUserDirs(username); err != nil {
		return err
	}
	data, err := json.MarshalIndent(settings, "", "  ")
	if err != nil {
		return fmt.Errorf("encode settings: %w", err)
	}
	path := filepath.Join(s.userDir(username), "settings.json")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write settings: %w", err)
	}
	return nil
}

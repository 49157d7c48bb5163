// Vigil - Multi-User Web Change Monitor
// Copyright 2026 Vigil contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vigil-watch/vigil

// Package storage is the per-user persistence layer.
//
// Layout under the data directory:
//
//	<data>/users.json                     credential file (bcrypt hashes)
//	<data>/_default/notification.wav      fallback alert sound
//	<data>/<user>/dashboard.csv           one row per query
//	<data>/<user>/settings.json           per-user client settings
//	<data>/<user>/cookies/<name>.json     cookie jar per cookies_filename
//	<data>/<user>/sounds/<name>           per-user alert sounds
//
// All writes for a user funnel through that user's Monitor, so the store
// performs no locking of its own beyond atomic file replacement.
package storage

import (
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/vigil-watch/vigil/internal/logging"
)

// DashboardColumns is the dashboard CSV header, in persistence order.
// Transient fields (is_new, the live compiled pattern) are excluded.
var DashboardColumns = []string{
	"uid",
	"alias",
	"url",
	"target_url",
	"sequence",
	"mode",
	"min_matches",
	"interval",
	"cooldown",
	"randomize",
	"eta",
	"cycles_limit",
	"cycles",
	"is_recurring",
	"last_run",
	"last_match_datetime",
	"found",
	"status",
	"cookies_filename",
	"alert_sound",
}

// TimeFormat is how timestamps persist in the dashboard CSV.
const TimeFormat = "2006-01-02 15:04:05"

// ErrNotFound reports a missing user artifact (dashboard, sound, settings).
var ErrNotFound = errors.New("not found")

// Store is the file-backed implementation of the persistence collaborator.
type Store struct {
	dataDir string
}

// New creates a Store rooted at dataDir, creating the directory if needed.
func New(dataDir string) (*Store, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	return &Store{dataDir: dataDir}, nil
}

// DataDir returns the store root.
func (s *Store) DataDir() string { return s.dataDir }

func (s *Store) userDir(username string) string {
	return filepath.Join(s.dataDir, username)
}

func (s *Store) dashboardPath(username string) string {
	return filepath.Join(s.userDir(username), "dashboard.csv")
}

// EnsureUserDirs creates the user's directory tree. Called at login.
func (s *Store) EnsureUserDirs(username string) error {
	for _, dir := range []string{
		s.userDir(username),
		filepath.Join(s.userDir(username), "cookies"),
		filepath.Join(s.userDir(username), "sounds"),
	} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create user dir %s: %w", dir, err)
		}
	}
	return nil
}

// GetDashboard reads the user's dashboard table. Each row maps column name
// to its raw string value, in file order. A missing dashboard is not an
// error; it yields no rows.
func (s *Store) GetDashboard(username string) ([]map[string]string, error) {
	f, err := os.Open(s.dashboardPath(username))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("open dashboard: %w", err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read dashboard: %w", err)
	}
	if len(records) < 2 {
		return nil, nil
	}

	header := records[0]
	rows := make([]map[string]string, 0, len(records)-1)
	for _, record := range records[1:] {
		row := make(map[string]string, len(header))
		for i, col := range header {
			if i < len(record) {
				row[col] = record[i]
			}
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// SaveDashboard writes the user's dashboard table atomically (temp file plus
// rename). Rows are written in the given order with DashboardColumns as the
// header; missing cells persist as empty strings.
func (s *Store) SaveDashboard(username string, rows []map[string]string) error {
	if err := s.EnsureUserDirs(username); err != nil {
		return err
	}
	path := s.dashboardPath(username)
	tmp, err := os.CreateTemp(s.userDir(username), "dashboard-*.csv")
	if err != nil {
		return fmt.Errorf("create temp dashboard: %w", err)
	}
	defer os.Remove(tmp.Name())

	writer := csv.NewWriter(tmp)
	if err := writer.Write(DashboardColumns); err != nil {
		tmp.Close()
		return fmt.Errorf("write dashboard header: %w", err)
	}
	for _, row := range rows {
		record := make([]string, len(DashboardColumns))
		for i, col := range DashboardColumns {
			record[i] = row[col]
		}
		if err := writer.Write(record); err != nil {
			tmp.Close()
			return fmt.Errorf("write dashboard row: %w", err)
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		tmp.Close()
		return fmt.Errorf("flush dashboard: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp dashboard: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("replace dashboard: %w", err)
	}
	logging.Debug().Str("user", username).Int("rows", len(rows)).Msg("dashboard saved")
	return nil
}

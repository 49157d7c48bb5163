// Vigil - Multi-User Web Change Monitor
// Copyright 2026 Vigil contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vigil-watch/vigil

package storage

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/vigil-watch/vigil/internal/logging"
)

var cookieStemChars = regexp.MustCompile(`[^A-Za-z0-9_]+`)

func (s *Store) cookiesDir(username string) string {
	return filepath.Join(s.userDir(username), "cookies")
}

func (s *Store) cookiePath(username, filename string) string {
	return filepath.Join(s.cookiesDir(username), filepath.Base(filename))
}

// SetdefaultCookieFile loads the named cookie jar, creating a fresh empty one
// (with a generated unique filename) when the name is blank or the file does
// not exist. Returns the jar and the filename actually in use.
func (s *Store) SetdefaultCookieFile(username, filename string) (map[string]string, string, error) {
	if err := s.EnsureUserDirs(username); err != nil {
		return nil, "", err
	}
	if filename != "" {
		data, err := os.ReadFile(s.cookiePath(username, filename))
		if err == nil {
			var cookies map[string]string
			if err := json.Unmarshal(data, &cookies); err != nil {
				return nil, "", fmt.Errorf("decode cookies %s: %w", filename, err)
			}
			return cookies, filename, nil
		}
		if !os.IsNotExist(err) {
			return nil, "", fmt.Errorf("read cookies %s: %w", filename, err)
		}
	}

	created, err := s.createCookieFile(username, filename)
	if err != nil {
		return nil, "", err
	}
	return map[string]string{}, created, nil
}

// createCookieFile picks a unique filesystem-safe filename and writes an
// empty jar. The stem comes from the URL hostname when the hint looks like a
// URL, from the sanitized hint otherwise, or is generated.
func (s *Store) createCookieFile(username, hint string) (string, error) {
	stem := cookieStem(hint)

	candidate := stem
	for n := 1; ; n++ {
		if _, err := os.Stat(s.cookiePath(username, candidate+".json")); os.IsNotExist(err) {
			break
		}
		candidate = fmt.Sprintf("%s_%d", stem, n)
	}
	filename := candidate + ".json"

	if err := s.SaveCookies(username, filename, map[string]string{}); err != nil {
		return "", err
	}
	logging.Info().Str("user", username).Str("file", filename).Msg("created cookie file")
	return filename, nil
}

func cookieStem(hint string) string {
	hint = strings.TrimSuffix(hint, ".json")
	if strings.HasPrefix(hint, "http") {
		if u, err := url.Parse(hint); err == nil && u.Hostname() != "" {
			host := strings.TrimPrefix(u.Hostname(), "www.")
			if stem := sanitizeStem(host); stem != "" {
				return stem
			}
		}
	}
	if stem := sanitizeStem(hint); stem != "" {
		return stem
	}
	return "cookie_" + uuid.New().String()[:8]
}

func sanitizeStem(in string) string {
	return strings.Trim(cookieStemChars.ReplaceAllString(in, "_"), "_")
}

// SaveCookies writes one cookie jar.
func (s *Store) SaveCookies(username, filename string, cookies map[string]string) error {
	if err := s.EnsureUserDirs(username); err != nil {
		return err
	}
	data, err := json.MarshalIndent(cookies, "", "  ")
	if err != nil {
		return fmt.Errorf("encode cookies %s: %w", filename, err)
	}
	if err := os.WriteFile(s.cookiePath(username, filename), data, 0o644); err != nil {
		return fmt.Errorf("write cookies %s: %w", filename, err)
	}
	return nil
}

// ReloadCookies updates existing cookie jars from a
// {cookies_filename -> {name -> value}} map. Unknown filenames are skipped;
// harvested cookies only ever refresh jars a query already references.
func (s *Store) ReloadCookies(username string, jars map[string]map[string]string) error {
	for filename, cookies := range jars {
		if _, err := os.Stat(s.cookiePath(username, filename)); err != nil {
			if os.IsNotExist(err) {
				logging.Warn().Str("user", username).Str("file", filename).Msg("skipping cookies for unknown file")
				continue
			}
			return fmt.Errorf("stat cookies %s: %w", filename, err)
		}
		if err := s.SaveCookies(username, filename, cookies); err != nil {
			return err
		}
		logging.Info().Str("user", username).Str("file", filename).Int("count", len(cookies)).Msg("reloaded cookies")
	}
	return nil
}

// Vigil - Multi-User Web Change Monitor
// Copyright 2026 Vigil contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vigil-watch/vigil

package fetch

import (
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/vigil-watch/vigil/internal/logging"
)

var unsafeChars = regexp.MustCompile(`[^A-Za-z0-9_]+`)

// DumpFilename derives a filesystem-safe dump file name from a URL: runs of
// characters outside [A-Za-z0-9_] collapse to single underscores.
func DumpFilename(rawURL string) string {
	stem := strings.Trim(unsafeChars.ReplaceAllString(rawURL, "_"), "_")
	if stem == "" {
		stem = "page"
	}
	return stem + ".txt"
}

// dumpPage writes normalized page text to the dump directory. Failures are
// logged and swallowed; the dump is a debugging aid, never part of a run's
// outcome.
func (f *Fetcher) dumpPage(rawURL, text string) {
	f.mu.RLock()
	dir := f.dumpDir
	f.mu.RUnlock()

	if err := os.MkdirAll(dir, 0o755); err != nil {
		logging.Warn().Err(err).Str("dir", dir).Msg("cannot create page dump directory")
		return
	}
	path := filepath.Join(dir, DumpFilename(rawURL))
	if err := os.WriteFile(path, []byte(text), 0o644); err != nil {
		logging.Warn().Err(err).Str("path", path).Msg("failed to dump page content")
		return
	}
	logging.Debug().Str("url", rawURL).Str("path", path).Msg("dumped page content")
}

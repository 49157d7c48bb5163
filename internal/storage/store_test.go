// Vigil - Multi-User Web Change Monitor
// Copyright 2026 Vigil contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vigil-watch/vigil

package storage

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return s
}

func TestDashboardRoundTrip(t *testing.T) {
	s := newTestStore(t)

	rows := []map[string]string{
		{
			"uid":      "u1",
			"alias":    "first",
			"url":      "https://a.example",
			"sequence": "hello",
			"interval": "15",
			"found":    "true",
			"status":   "0",
		},
		{
			"uid":      "u2",
			"alias":    "second, with comma",
			"url":      "https://b.example",
			"sequence": `a\&b`,
			"interval": "60",
			"found":    "false",
			"status":   "-1",
		},
	}
	if err := s.SaveDashboard("alice", rows); err != nil {
		t.Fatalf("SaveDashboard: %v", err)
	}

	got, err := s.GetDashboard("alice")
	if err != nil {
		t.Fatalf("GetDashboard: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("rows = %d, want 2", len(got))
	}
	if got[0]["uid"] != "u1" || got[1]["uid"] != "u2" {
		t.Errorf("row order not preserved: %v", got)
	}
	if got[1]["alias"] != "second, with comma" {
		t.Errorf("comma field mangled: %q", got[1]["alias"])
	}
	// Columns absent from the input persist as empty strings.
	if got[0]["eta"] != "" {
		t.Errorf("eta = %q, want empty", got[0]["eta"])
	}
}

func TestGetDashboardMissingFileYieldsNoRows(t *testing.T) {
	s := newTestStore(t)
	rows, err := s.GetDashboard("nobody")
	if err != nil {
		t.Fatalf("GetDashboard: %v", err)
	}
	if rows != nil {
		t.Errorf("rows = %v, want nil", rows)
	}
}

func TestSaveDashboardOverwrites(t *testing.T) {
	s := newTestStore(t)
	if err := s.SaveDashboard("alice", []map[string]string{{"uid": "u1"}, {"uid": "u2"}}); err != nil {
		t.Fatal(err)
	}
	if err := s.SaveDashboard("alice", []map[string]string{{"uid": "u3"}}); err != nil {
		t.Fatal(err)
	}
	rows, err := s.GetDashboard("alice")
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 1 || rows[0]["uid"] != "u3" {
		t.Errorf("rows = %v, want single u3 row", rows)
	}
}

func TestSetdefaultCookieFileCreatesFromURLHint(t *testing.T) {
	s := newTestStore(t)

	cookies, filename, err := s.SetdefaultCookieFile("alice", "https://www.shop.example.com/item?id=1")
	if err != nil {
		t.Fatalf("SetdefaultCookieFile: %v", err)
	}
	if len(cookies) != 0 {
		t.Errorf("fresh jar should be empty, got %v", cookies)
	}
	if filename != "shop_example_com.json" {
		t.Errorf("filename = %q, want hostname stem without www", filename)
	}
	if _, err := os.Stat(filepath.Join(s.DataDir(), "alice", "cookies", filename)); err != nil {
		t.Errorf("jar not on disk: %v", err)
	}
}

func TestSetdefaultCookieFileProbesNumericSuffix(t *testing.T) {
	s := newTestStore(t)

	_, first, err := s.SetdefaultCookieFile("alice", "https://shop.example.com")
	if err != nil {
		t.Fatal(err)
	}
	_, second, err := s.SetdefaultCookieFile("alice", "https://shop.example.com/other")
	if err != nil {
		t.Fatal(err)
	}
	if first != "shop_example_com.json" || second != "shop_example_com_1.json" {
		t.Errorf("filenames = %q, %q", first, second)
	}
}

func TestSetdefaultCookieFileLoadsExisting(t *testing.T) {
	s := newTestStore(t)
	want := map[string]string{"session": "abc", "lang": "en"}
	if err := s.SaveCookies("alice", "mine.json", want); err != nil {
		t.Fatal(err)
	}

	cookies, filename, err := s.SetdefaultCookieFile("alice", "mine.json")
	if err != nil {
		t.Fatal(err)
	}
	if filename != "mine.json" {
		t.Errorf("filename = %q", filename)
	}
	if cookies["session"] != "abc" || cookies["lang"] != "en" {
		t.Errorf("cookies = %v", cookies)
	}
}

func TestSetdefaultCookieFileGeneratedStemForBlankHint(t *testing.T) {
	s := newTestStore(t)
	_, filename, err := s.SetdefaultCookieFile("alice", "")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(filename, "cookie_") || !strings.HasSuffix(filename, ".json") {
		t.Errorf("filename = %q, want generated cookie_* name", filename)
	}
}

func TestReloadCookiesSkipsUnknownJars(t *testing.T) {
	s := newTestStore(t)
	if err := s.SaveCookies("alice", "known.json", map[string]string{"a": "1"}); err != nil {
		t.Fatal(err)
	}

	err := s.ReloadCookies("alice", map[string]map[string]string{
		"known.json":   {"a": "2", "b": "3"},
		"unknown.json": {"x": "y"},
	})
	if err != nil {
		t.Fatalf("ReloadCookies: %v", err)
	}

	cookies, _, err := s.SetdefaultCookieFile("alice", "known.json")
	if err != nil {
		t.Fatal(err)
	}
	if cookies["a"] != "2" || cookies["b"] != "3" {
		t.Errorf("known jar not refreshed: %v", cookies)
	}
	if _, err := os.Stat(filepath.Join(s.DataDir(), "alice", "cookies", "unknown.json")); !os.IsNotExist(err) {
		t.Error("unknown jar must not be created")
	}
}

func TestLoadSoundFallsBackToDefault(t *testing.T) {
	s := newTestStore(t)
	def := filepath.Join(s.DataDir(), "_default")
	if err := os.MkdirAll(def, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(def, DefaultSound), []byte("default-wav"), 0o644); err != nil {
		t.Fatal(err)
	}

	data, name, err := s.LoadSound("alice", "missing.wav")
	if err != nil {
		t.Fatalf("LoadSound: %v", err)
	}
	if name != DefaultSound || string(data) != "default-wav" {
		t.Errorf("got (%q, %q)", name, data)
	}
}

func TestLoadSoundPrefersUserFile(t *testing.T) {
	s := newTestStore(t)
	if err := s.SaveSound("alice", "ding.wav", []byte("ding")); err != nil {
		t.Fatal(err)
	}

	data, name, err := s.LoadSound("alice", "ding.wav")
	if err != nil {
		t.Fatalf("LoadSound: %v", err)
	}
	if name != "ding.wav" || string(data) != "ding" {
		t.Errorf("got (%q, %q)", name, data)
	}
}

func TestLoadSoundNoDefaultIsNotFound(t *testing.T) {
	s := newTestStore(t)
	_, _, err := s.LoadSound("alice", "missing.wav")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestSettingsRoundTrip(t *testing.T) {
	s := newTestStore(t)

	got, err := s.LoadSettings("alice")
	if err != nil {
		t.Fatalf("LoadSettings: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("fresh settings = %v, want empty", got)
	}

	in := map[string]any{"theme": "dark", "volume": 0.5}
	if err := s.SaveSettings("alice", in); err != nil {
		t.Fatalf("SaveSettings: %v", err)
	}
	got, err = s.LoadSettings("alice")
	if err != nil {
		t.Fatal(err)
	}
	if got["theme"] != "dark" {
		t.Errorf("theme = %v", got["theme"])
	}
	if v, ok := got["volume"].(float64); !ok || v != 0.5 {
		t.Errorf("volume = %v", got["volume"])
	}
}

// Vigil - Multi-User Web Change Monitor
// Copyright 2026 Vigil contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vigil-watch/vigil

package fetch

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "plain text passes through lower-cased",
			in:   "Hello   World",
			want: "hello world",
		},
		{
			name: "tags stripped, text kept in order",
			in:   "<html><body><h1>Price</h1><p>42 EUR</p></body></html>",
			want: "price 42 eur",
		},
		{
			name: "script body dropped",
			in:   `<p>visible</p><script>var hidden = "secret";</script><p>also visible</p>`,
			want: "visible also visible",
		},
		{
			name: "style body dropped",
			in:   `<style>.x { color: red }</style>shown`,
			want: "shown",
		},
		{
			name: "nested noscript dropped",
			in:   `<div>keep<noscript><p>skip</p></noscript></div>`,
			want: "keep",
		},
		{
			name: "whitespace collapsed",
			in:   "<p>a</p>\n\n<p>b\t\tc</p>",
			want: "a b c",
		},
		{
			name: "empty body",
			in:   "",
			want: "",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Normalize(tt.in); got != tt.want {
				t.Errorf("Normalize = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestDumpFilename(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"https://shop.example.com/item?id=42", "https_shop_example_com_item_id_42.txt"},
		{"http://a.b/c/d", "http_a_b_c_d.txt"},
		{"///", "page.txt"},
		{"", "page.txt"},
	}
	for _, tt := range tests {
		if got := DumpFilename(tt.in); got != tt.want {
			t.Errorf("DumpFilename(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestFetchReturnsNormalizedText(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if ua := r.Header.Get("User-Agent"); ua != "vigil-test" {
			t.Errorf("User-Agent = %q", ua)
		}
		if c, err := r.Cookie("session"); err != nil || c.Value != "abc" {
			t.Errorf("session cookie missing or wrong: %v", err)
		}
		w.Write([]byte("<html><body><p>Hello World</p></body></html>"))
	}))
	defer srv.Close()

	f := New(Config{Timeout: 5 * time.Second, UserAgent: "vigil-test"})
	text, err := f.Fetch(context.Background(), srv.URL, map[string]string{"session": "abc"})
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if text != "hello world" {
		t.Errorf("text = %q", text)
	}
}

func TestFetchNonOKStatusIsStillASuccessfulFetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte("Permission Denied"))
	}))
	defer srv.Close()

	f := New(Config{Timeout: 5 * time.Second})
	text, err := f.Fetch(context.Background(), srv.URL, nil)
	if err != nil {
		t.Fatalf("Fetch on 403: %v", err)
	}
	if text != "permission denied" {
		t.Errorf("text = %q", text)
	}
}

func TestFetchConnectionFailureWrapsErrConnection(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // nothing listening anymore

	f := New(Config{Timeout: time.Second})
	_, err := f.Fetch(context.Background(), srv.URL, nil)
	if !errors.Is(err, ErrConnection) {
		t.Fatalf("err = %v, want ErrConnection", err)
	}
}

func TestFetchDumpsPageWhenEnabled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<p>Dump Me</p>"))
	}))
	defer srv.Close()

	dir := t.TempDir()
	f := New(Config{Timeout: 5 * time.Second, DumpPages: true, DumpDir: dir})
	if _, err := f.Fetch(context.Background(), srv.URL, nil); err != nil {
		t.Fatalf("Fetch: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(dir, DumpFilename(srv.URL)))
	if err != nil {
		t.Fatalf("dump file missing: %v", err)
	}
	if string(data) != "dump me" {
		t.Errorf("dump content = %q", data)
	}
}

func TestSetDumpPagesToggles(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("x"))
	}))
	defer srv.Close()

	dir := t.TempDir()
	f := New(Config{Timeout: 5 * time.Second, DumpPages: false, DumpDir: dir})
	if _, err := f.Fetch(context.Background(), srv.URL, nil); err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if entries, _ := os.ReadDir(dir); len(entries) != 0 {
		t.Fatal("dump written while disabled")
	}

	f.SetDumpPages(true)
	if _, err := f.Fetch(context.Background(), srv.URL, nil); err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if entries, _ := os.ReadDir(dir); len(entries) != 1 {
		t.Fatal("dump not written after enabling")
	}
}

func TestFetchCanceledContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(time.Second)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	f := New(Config{Timeout: 5 * time.Second})
	if _, err := f.Fetch(ctx, srv.URL, nil); err == nil {
		t.Fatal("expected error for canceled context")
	}
}

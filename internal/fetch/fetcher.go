// Vigil - Multi-User Web Change Monitor
// Copyright 2026 Vigil contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vigil-watch/vigil

// Package fetch executes the outbound HTTP side of a query run.
//
// A Fetcher performs a single GET with the query's cookies and the configured
// user agent, normalizes the body from HTML to plain lower-cased text, and
// classifies network-level failures. Outbound traffic is shaped by a global
// rate limiter and guarded by a per-host circuit breaker so one unreachable
// site cannot slow every user's scans.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"github.com/vigil-watch/vigil/internal/logging"
	"github.com/vigil-watch/vigil/internal/metrics"
)

// ErrConnection wraps any network-level failure: DNS, refused, reset,
// timeout, or an open circuit breaker. Callers map it to the
// connection-lost query status.
var ErrConnection = errors.New("connection lost")

// Config holds fetcher settings.
type Config struct {
	// Timeout bounds a single fetch end to end.
	Timeout time.Duration

	// UserAgent is sent with every request.
	UserAgent string

	// RatePerSecond caps outbound requests across all monitors.
	// Zero disables shaping.
	RatePerSecond float64

	// Burst is the limiter burst size. Default 1 when rate limiting is on.
	Burst int

	// DumpPages enables writing normalized page text to DumpDir.
	DumpPages bool

	// DumpDir is the page dump directory.
	DumpDir string
}

// Fetcher executes query fetches. Safe for concurrent use by scan workers.
type Fetcher struct {
	client  *http.Client
	limiter *rate.Limiter

	mu        sync.RWMutex
	userAgent string
	dumpPages bool
	dumpDir   string

	breakersMu sync.Mutex
	breakers   map[string]*gobreaker.CircuitBreaker[string]
}

// New creates a Fetcher from config.
func New(cfg Config) *Fetcher {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	var limiter *rate.Limiter
	if cfg.RatePerSecond > 0 {
		burst := cfg.Burst
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSecond), burst)
	}
	return &Fetcher{
		client: &http.Client{
			Timeout: timeout,
		},
		limiter:   limiter,
		userAgent: cfg.UserAgent,
		dumpPages: cfg.DumpPages,
		dumpDir:   cfg.DumpDir,
		breakers:  make(map[string]*gobreaker.CircuitBreaker[string]),
	}
}

// SetUserAgent swaps the user agent; applied by config reload.
func (f *Fetcher) SetUserAgent(ua string) {
	f.mu.Lock()
	f.userAgent = ua
	f.mu.Unlock()
}

// SetDumpPages toggles the page-dump side effect; applied by config reload.
func (f *Fetcher) SetDumpPages(enabled bool) {
	f.mu.Lock()
	f.dumpPages = enabled
	f.mu.Unlock()
}

// Fetch performs one GET and returns the normalized, lower-cased page text.
// Any HTTP completion (regardless of status code) is a successful fetch;
// network-level failures return an error wrapping ErrConnection.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string, cookies map[string]string) (string, error) {
	if f.limiter != nil {
		if err := f.limiter.Wait(ctx); err != nil {
			return "", fmt.Errorf("%w: %v", ErrConnection, err)
		}
	}

	host := hostOf(rawURL)
	start := time.Now()
	text, err := f.breakerFor(host).Execute(func() (string, error) {
		return f.fetchOnce(ctx, rawURL, cookies)
	})
	if err != nil {
		metrics.FetchDuration.WithLabelValues("error").Observe(time.Since(start).Seconds())
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			logging.Warn().Str("host", host).Msg("fetch rejected by open circuit breaker")
			metrics.CircuitBreakerRequests.WithLabelValues(host, "rejected").Inc()
			return "", fmt.Errorf("%w: %v", ErrConnection, err)
		}
		metrics.CircuitBreakerRequests.WithLabelValues(host, "failure").Inc()
		return "", err
	}
	metrics.FetchDuration.WithLabelValues("ok").Observe(time.Since(start).Seconds())
	metrics.CircuitBreakerRequests.WithLabelValues(host, "success").Inc()

	if f.dumpEnabled() {
		f.dumpPage(rawURL, text)
	}
	return text, nil
}

// fetchOnce runs the raw request/normalize pipeline without breaker wiring.
func (f *Fetcher) fetchOnce(ctx context.Context, rawURL string, cookies map[string]string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrConnection, err)
	}
	f.mu.RLock()
	ua := f.userAgent
	f.mu.RUnlock()
	if ua != "" {
		req.Header.Set("User-Agent", ua)
	}
	for name, value := range cookies {
		req.AddCookie(&http.Cookie{Name: name, Value: value})
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrConnection, err)
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			logging.Warn().Err(cerr).Msg("failed to close response body")
		}
	}()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrConnection, err)
	}
	return Normalize(string(body)), nil
}

// breakerFor returns the circuit breaker for a host, creating it on first use.
// Settings follow the usual profile: open after a 60% failure rate across at
// least 10 requests, probe again after 2 minutes.
func (f *Fetcher) breakerFor(host string) *gobreaker.CircuitBreaker[string] {
	f.breakersMu.Lock()
	defer f.breakersMu.Unlock()
	if cb, ok := f.breakers[host]; ok {
		return cb
	}
	cb := gobreaker.NewCircuitBreaker[string](gobreaker.Settings{
		Name:        host,
		MaxRequests: 3,
		Interval:    time.Minute,
		Timeout:     2 * time.Minute,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < 10 {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= 0.6
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Info().
				Str("host", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("circuit breaker state transition")
			metrics.CircuitBreakerState.WithLabelValues(name).Set(stateToFloat(to))
		},
	})
	f.breakers[host] = cb
	metrics.CircuitBreakerState.WithLabelValues(host).Set(0)
	return cb
}

func stateToFloat(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return 0
	}
}

func (f *Fetcher) dumpEnabled() bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.dumpPages && f.dumpDir != ""
}

func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return "unknown"
	}
	return u.Hostname()
}

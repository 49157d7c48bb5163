// Vigil - Multi-User Web Change Monitor
// Copyright 2026 Vigil contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vigil-watch/vigil

package monitor

import (
	"context"
	"sync"
	"time"

	"github.com/vigil-watch/vigil/internal/logging"
	"github.com/vigil-watch/vigil/internal/metrics"
)

// shouldRun decides whether q is due at now. Gates, in order: recovery
// fast-path, disabled check, ETA window, termination, cycle budget, and the
// cooldown/interval time gate with jitter.
func (m *Monitor) shouldRun(q *Query, now time.Time) bool {
	if (q.Status == StatusNeverRan || q.Status == StatusConnectionLost) && q.CyclesLimit >= 0 {
		return true
	}
	if q.CyclesLimit < 0 {
		return false
	}
	if !q.ETA.Matches(now) {
		return false
	}
	if q.Found && !q.IsRecurring {
		return false
	}
	if q.CyclesLimit != 0 && q.Cycles >= q.CyclesLimit {
		return false
	}

	gap := now.Sub(q.LastRun).Minutes()
	if q.Found {
		return gap > float64(q.Cooldown)
	}
	spread := float64(q.Randomize * q.Interval)
	jitter := m.rnd.Uniform(-spread, spread) * 0.01
	return gap > float64(q.Interval)+jitter
}

// Scan evaluates every query once. Due queries fetch concurrently on a
// bounded worker pool; skipped queries only have is_new cleared. The
// returned snapshot preserves insertion order.
func (m *Monitor) Scan(ctx context.Context) (Snapshot, string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.clk.Now()
	start := time.Now()

	var due []*Query
	for _, uid := range m.order {
		q := m.queries[uid]
		if m.shouldRun(q, now) {
			due = append(due, q)
		} else {
			q.IsNew = false
		}
	}

	sem := make(chan struct{}, m.workers)
	var wg sync.WaitGroup
	for _, q := range due {
		wg.Add(1)
		sem <- struct{}{}
		go func(q *Query) {
			defer wg.Done()
			defer func() { <-sem }()
			m.runQuery(ctx, q, now)
		}(q)
	}
	wg.Wait()

	metrics.ScansTotal.WithLabelValues(m.username).Inc()
	metrics.ScanDuration.WithLabelValues(m.username).Observe(time.Since(start).Seconds())
	logging.Debug().
		Str("user", m.username).
		Int("queries", len(m.order)).
		Int("ran", len(due)).
		Msg("scan complete")

	return m.snapshotLocked(), m.drainWarnings("Scan complete")
}

// runQuery executes one due query and applies the state transitions. A panic
// inside the run converts to ConnectionLost without touching found; it must
// never abort the surrounding scan. Each worker owns its query exclusively
// for the duration of the scan.
func (m *Monitor) runQuery(ctx context.Context, q *Query, now time.Time) {
	defer func() {
		if r := recover(); r != nil {
			logging.Error().
				Str("user", m.username).
				Str("uid", q.UID).
				Any("panic", r).
				Msg("query run panicked")
			q.LastRun = now
			q.Status = StatusConnectionLost
			q.IsNew = true
		}
	}()

	prevFound := q.Found
	found := false
	status := StatusOK

	text, err := m.fetcher.Fetch(ctx, q.URL, q.cookies)
	if err != nil {
		if ctx.Err() != nil {
			// Shutdown mid-scan: leave the query as it was.
			return
		}
		logging.Warn().Err(err).Str("user", m.username).Str("uid", q.UID).Str("url", q.URL).Msg("fetch failed")
		status = StatusConnectionLost
	} else {
		var hits int
		found, hits = q.pattern.Evaluate(text)
		if hits == 0 && m.keywords.Denied(text) {
			status = StatusAccessDenied
			found = false
		}
	}

	q.LastRun = now
	if status == StatusOK || status == StatusAccessDenied {
		q.Cycles++
	}
	if found || (q.IsRecurring && !prevFound) {
		q.LastMatch = now
	}
	q.Found = found
	q.Status = status
	q.IsNew = true

	metrics.QueryRunsTotal.WithLabelValues(status.String()).Inc()
	if found {
		metrics.QueryMatchesTotal.Inc()
		logging.Info().Str("user", m.username).Str("uid", q.UID).Str("alias", q.Alias).Msg("query matched")
	}
}

// UpdateKeywords swaps the CAPTCHA keyword set. Config reload fans this out
// to every Monitor through the registry.
func (m *Monitor) UpdateKeywords(list string) {
	m.keywords.Update(list)
}

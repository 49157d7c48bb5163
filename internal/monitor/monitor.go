// Vigil - Multi-User Web Change Monitor
// Copyright 2026 Vigil contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vigil-watch/vigil

package monitor

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/vigil-watch/vigil/internal/clock"
	"github.com/vigil-watch/vigil/internal/logging"
	"github.com/vigil-watch/vigil/internal/match"
	"github.com/vigil-watch/vigil/internal/metrics"
)

// DefaultScanWorkers bounds concurrent fetches within one scan.
const DefaultScanWorkers = 8

// Fetcher retrieves a page and returns its normalized lower-cased text.
// Network-level failures wrap fetch.ErrConnection.
type Fetcher interface {
	Fetch(ctx context.Context, url string, cookies map[string]string) (string, error)
}

// Store is the persistence collaborator: dashboard rows, cookie jars, alert
// sounds.
type Store interface {
	GetDashboard(username string) ([]map[string]string, error)
	SaveDashboard(username string, rows []map[string]string) error
	SetdefaultCookieFile(username, filename string) (map[string]string, string, error)
	SaveCookies(username, filename string, cookies map[string]string) error
	ReloadCookies(username string, jars map[string]map[string]string) error
	LoadSound(username, name string) ([]byte, string, error)
}

// Options carries the Monitor's collaborators and tunables.
type Options struct {
	Fetcher     Fetcher
	Store       Store
	Keywords    *match.Keywords
	Clock       clock.Clock
	Rand        clock.Rand
	MinInterval int
	ScanWorkers int
}

// Monitor owns one user's queries. All public methods serialize on the
// Monitor's lock: a scan sees every query as it existed when the scan
// started, and no two mutations interleave.
type Monitor struct {
	mu        sync.Mutex
	username  string
	queries   map[string]*Query
	order     []string
	warnings  []string
	validator *Validator
	fetcher   Fetcher
	store     Store
	keywords  *match.Keywords
	clk       clock.Clock
	rnd       clock.Rand
	workers   int
}

// New creates an empty Monitor for the given user.
func New(username string, opts Options) *Monitor {
	if opts.Clock == nil {
		opts.Clock = clock.System()
	}
	if opts.Rand == nil {
		opts.Rand = clock.NewRand()
	}
	if opts.Keywords == nil {
		opts.Keywords = match.NewKeywords("")
	}
	if opts.ScanWorkers < 1 {
		opts.ScanWorkers = DefaultScanWorkers
	}
	return &Monitor{
		username:  username,
		queries:   make(map[string]*Query),
		validator: NewValidator(opts.MinInterval),
		fetcher:   opts.Fetcher,
		store:     opts.Store,
		keywords:  opts.Keywords,
		clk:       opts.Clock,
		rnd:       opts.Rand,
		workers:   opts.ScanWorkers,
	}
}

// Username returns the owning user.
func (m *Monitor) Username() string { return m.username }

// warn records a non-fatal finding for the current public call.
func (m *Monitor) warn(ws ...string) {
	m.warnings = append(m.warnings, ws...)
}

// drainWarnings appends accumulated warnings to msg and clears the set. Every
// public method returns through here so the set is empty on the next entry.
func (m *Monitor) drainWarnings(msg string) string {
	if len(m.warnings) > 0 {
		msg = msg + " with warnings: " + strings.Join(m.warnings, ", ")
		m.warnings = m.warnings[:0]
	}
	return msg
}

// aliasTaken reports whether alias belongs to a query other than exceptUID.
func (m *Monitor) aliasTaken(alias, exceptUID string) bool {
	for _, q := range m.queries {
		if q.Alias == alias && q.UID != exceptUID {
			return true
		}
	}
	return false
}

// insert adds q to the map, appending to insertion order unless the uid is
// already tracked (edit in place).
func (m *Monitor) insert(q *Query) {
	if _, ok := m.queries[q.UID]; !ok {
		m.order = append(m.order, q.UID)
	}
	m.queries[q.UID] = q
	metrics.ActiveQueries.Set(float64(len(m.queries)))
}

// attachCookies loads or creates the query's cookie jar.
func (m *Monitor) attachCookies(q *Query) error {
	hint := q.CookiesFilename
	if hint == "" {
		hint = q.URL
	}
	cookies, filename, err := m.store.SetdefaultCookieFile(m.username, hint)
	if err != nil {
		return err
	}
	q.cookies = cookies
	q.CookiesFilename = filename
	return nil
}

// AddQuery validates params and inserts a new query with a fresh uid (unless
// one is supplied). Fails on validation errors or duplicate alias.
func (m *Monitor) AddQuery(params map[string]any) (bool, string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	q, warnings, err := m.validator.Validate(params)
	if err != nil {
		m.warnings = m.warnings[:0]
		return false, err.Error()
	}
	m.warn(warnings...)
	if m.aliasTaken(q.Alias, q.UID) {
		m.warnings = m.warnings[:0]
		return false, "Query not added due to duplicate alias: " + q.Alias
	}
	if q.UID == "" {
		q.UID = uuid.New().String()
	}
	if err := m.attachCookies(q); err != nil {
		m.warnings = m.warnings[:0]
		logging.Error().Err(err).Str("user", m.username).Msg("cookie setup failed")
		return false, "Query not added: " + err.Error()
	}
	// Fresh queries start from a clean slate regardless of what params said.
	q.Cycles = 0
	q.Found = false
	q.Status = StatusNeverRan
	q.LastRun = epoch
	q.LastMatch = epoch

	m.insert(q)
	logging.Info().Str("user", m.username).Str("uid", q.UID).Str("alias", q.Alias).Msg("query added")
	return true, m.drainWarnings("Query added successfully")
}

// EditQuery merges params over an existing query, re-validates, and replaces
// it atomically. The uid must exist.
func (m *Monitor) EditQuery(params map[string]any) (bool, string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	uid := stringOf(params["uid"])
	existing, ok := m.queries[uid]
	if !ok {
		return false, fmt.Sprintf("Query with uid: %s does not exist", uid)
	}

	merged := paramsOf(existing)
	for k, v := range params {
		merged[k] = v
	}
	q, warnings, err := m.validator.Validate(merged)
	if err != nil {
		m.warnings = m.warnings[:0]
		return false, err.Error()
	}
	m.warn(warnings...)
	if m.aliasTaken(q.Alias, uid) {
		m.warnings = m.warnings[:0]
		return false, "Query not added due to duplicate alias: " + q.Alias
	}
	if err := m.attachCookies(q); err != nil {
		m.warnings = m.warnings[:0]
		return false, "Query not edited: " + err.Error()
	}
	m.insert(q)
	logging.Info().Str("user", m.username).Str("uid", uid).Msg("query edited")
	return true, m.drainWarnings("Query edited successfully")
}

// DeleteQuery removes a query by uid.
func (m *Monitor) DeleteQuery(uid string) (bool, string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.queries[uid]; !ok {
		return false, fmt.Sprintf("Query with uid: %s does not exist", uid)
	}
	m.remove(uid)
	logging.Info().Str("user", m.username).Str("uid", uid).Msg("query deleted")
	return true, "Query deleted successfully"
}

// remove drops uid from the map and the insertion order.
func (m *Monitor) remove(uid string) {
	delete(m.queries, uid)
	for i, id := range m.order {
		if id == uid {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
	metrics.ActiveQueries.Set(float64(len(m.queries)))
}

// RestoreQuery is AddQuery for persisted rows: the provided uid, cycles,
// timestamps, found and status are retained instead of reset.
func (m *Monitor) RestoreQuery(params map[string]any) (bool, string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	q, warnings, err := m.validator.Validate(params)
	if err != nil {
		m.warnings = m.warnings[:0]
		return false, err.Error()
	}
	m.warn(warnings...)
	if m.aliasTaken(q.Alias, q.UID) {
		m.warnings = m.warnings[:0]
		return false, "Query not added due to duplicate alias: " + q.Alias
	}
	if q.UID == "" {
		q.UID = uuid.New().String()
	}
	if err := m.attachCookies(q); err != nil {
		m.warnings = m.warnings[:0]
		return false, "Query not restored: " + err.Error()
	}
	m.insert(q)
	return true, m.drainWarnings("Query restored: " + q.Alias)
}

// GetQuery returns one query's state.
func (m *Monitor) GetQuery(uid string) (State, bool, string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	q, ok := m.queries[uid]
	if !ok {
		return State{}, false, "Query does not exist"
	}
	return q.State(), true, ""
}

// GetAllQueries returns the current snapshot without scanning.
func (m *Monitor) GetAllQueries() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshotLocked()
}

func (m *Monitor) snapshotLocked() Snapshot {
	snap := make(Snapshot, 0, len(m.order))
	for _, uid := range m.order {
		snap = append(snap, m.queries[uid].State())
	}
	return snap
}

// CleanQueries retains queries that are unmatched or recurring and removes
// the rest.
func (m *Monitor) CleanQueries() (bool, string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for _, uid := range append([]string(nil), m.order...) {
		q := m.queries[uid]
		if q.Found && !q.IsRecurring {
			m.remove(uid)
			removed++
		}
	}
	logging.Info().Str("user", m.username).Int("removed", removed).Msg("queries cleaned")
	return true, fmt.Sprintf("Cleaned %d queries", removed)
}

// Save persists the dashboard and every query's cookie jar.
func (m *Monitor) Save() (bool, string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rows := make([]map[string]string, 0, len(m.order))
	for _, uid := range m.order {
		rows = append(rows, m.queries[uid].Row())
	}
	if err := m.store.SaveDashboard(m.username, rows); err != nil {
		logging.Error().Err(err).Str("user", m.username).Msg("dashboard save failed")
		return false, "Save failed: " + err.Error()
	}
	for _, uid := range m.order {
		q := m.queries[uid]
		if err := m.store.SaveCookies(m.username, q.CookiesFilename, q.cookies); err != nil {
			logging.Error().Err(err).Str("user", m.username).Str("file", q.CookiesFilename).Msg("cookie save failed")
			return false, "Save failed: " + err.Error()
		}
	}
	return true, "Saved user data"
}

// Populate restores every persisted dashboard row. It reports success only
// when all rows restored cleanly; restore messages concatenate into the
// returned message.
func (m *Monitor) Populate() (bool, string) {
	rows, err := m.store.GetDashboard(m.username)
	if err != nil {
		logging.Error().Err(err).Str("user", m.username).Msg("dashboard load failed")
		return false, "Populate failed: " + err.Error()
	}
	allOK := true
	var msgs []string
	for _, row := range rows {
		params := make(map[string]any, len(row))
		for k, v := range row {
			params[k] = v
		}
		ok, msg := m.RestoreQuery(params)
		allOK = allOK && ok
		msgs = append(msgs, msg)
	}
	return allOK, strings.Join(msgs, "; ")
}

// ReloadCookies forwards harvested cookie jars to storage and refreshes the
// in-memory jars of queries that reference them. Query observable state is
// untouched.
func (m *Monitor) ReloadCookies(jars map[string]map[string]string) (bool, string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.store.ReloadCookies(m.username, jars); err != nil {
		return false, "Cookie reload failed: " + err.Error()
	}
	for _, q := range m.queries {
		if fresh, ok := jars[q.CookiesFilename]; ok {
			q.cookies = fresh
		}
	}
	return true, "Cookies reloaded"
}

// GetSoundFile fetches a user's alert sound, falling back to the default.
func (m *Monitor) GetSoundFile(name string) ([]byte, string, error) {
	return m.store.LoadSound(m.username, name)
}

// paramsOf flattens a query back into a parameter map for edit merging.
func paramsOf(q *Query) map[string]any {
	state := q.State()
	return map[string]any{
		"uid":                 state.UID,
		"alias":               state.Alias,
		"url":                 state.URL,
		"target_url":          state.TargetURL,
		"sequence":            state.Sequence,
		"mode":                state.Mode,
		"min_matches":         state.MinMatches,
		"interval":            state.Interval,
		"cooldown":            state.Cooldown,
		"randomize":           state.Randomize,
		"eta":                 state.ETA,
		"cycles_limit":        state.CyclesLimit,
		"cycles":              state.Cycles,
		"is_recurring":        state.IsRecurring,
		"last_run":            state.LastRun,
		"last_match_datetime": state.LastMatch,
		"found":               state.Found,
		"status":              state.Status,
		"cookies_filename":    state.CookiesFilename,
		"alert_sound":         state.AlertSound,
	}
}

// Vigil - Multi-User Web Change Monitor
// Copyright 2026 Vigil contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vigil-watch/vigil

package monitor

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/vigil-watch/vigil/internal/clock"
	"github.com/vigil-watch/vigil/internal/fetch"
	"github.com/vigil-watch/vigil/internal/match"
)

type fakeFetcher struct {
	mu    sync.Mutex
	body  string
	err   error
	calls int
}

func (f *fakeFetcher) Fetch(ctx context.Context, url string, cookies map[string]string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	return f.body, nil
}

func (f *fakeFetcher) set(body string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.body, f.err = body, err
}

type fakeStore struct {
	mu         sync.Mutex
	dashboards map[string][]map[string]string
	cookies    map[string]map[string]map[string]string
	sounds     map[string][]byte
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		dashboards: map[string][]map[string]string{},
		cookies:    map[string]map[string]map[string]string{},
		sounds:     map[string][]byte{},
	}
}

func (s *fakeStore) GetDashboard(username string) ([]map[string]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dashboards[username], nil
}

func (s *fakeStore) SaveDashboard(username string, rows []map[string]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dashboards[username] = rows
	return nil
}

func (s *fakeStore) SetdefaultCookieFile(username, filename string) (map[string]string, string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cookies[username] == nil {
		s.cookies[username] = map[string]map[string]string{}
	}
	if filename == "" {
		filename = "default"
	}
	if !strings.HasSuffix(filename, ".json") {
		filename += ".json"
	}
	if jar, ok := s.cookies[username][filename]; ok {
		return jar, filename, nil
	}
	s.cookies[username][filename] = map[string]string{}
	return map[string]string{}, filename, nil
}

func (s *fakeStore) SaveCookies(username, filename string, cookies map[string]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cookies[username] == nil {
		s.cookies[username] = map[string]map[string]string{}
	}
	s.cookies[username][filename] = cookies
	return nil
}

func (s *fakeStore) ReloadCookies(username string, jars map[string]map[string]string) error {
	for filename, jar := range jars {
		if err := s.SaveCookies(username, filename, jar); err != nil {
			return err
		}
	}
	return nil
}

func (s *fakeStore) LoadSound(username, name string) ([]byte, string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if data, ok := s.sounds[name]; ok {
		return data, name, nil
	}
	return []byte("default"), "notification.wav", nil
}

type testRig struct {
	monitor *Monitor
	fetcher *fakeFetcher
	store   *fakeStore
	clk     *clock.Fixed
}

// saturday returns a known Saturday at the given time of day.
func saturday(hour, minute int) time.Time {
	return time.Date(2026, 8, 22, hour, minute, 0, 0, time.UTC)
}

func newRig(t *testing.T) *testRig {
	t.Helper()
	fetcher := &fakeFetcher{body: "hello world"}
	store := newFakeStore()
	clk := clock.NewFixed(saturday(12, 0))
	m := New("alice", Options{
		Fetcher:  fetcher,
		Store:    store,
		Keywords: match.NewKeywords("captcha;permission denied"),
		Clock:    clk,
		Rand:     clock.ZeroRand{},
	})
	return &testRig{monitor: m, fetcher: fetcher, store: store, clk: clk}
}

func (r *testRig) addQuery(t *testing.T, params map[string]any) string {
	t.Helper()
	ok, msg := r.monitor.AddQuery(params)
	if !ok {
		t.Fatalf("AddQuery failed: %s", msg)
	}
	snap := r.monitor.GetAllQueries()
	return snap[len(snap)-1].UID
}

func TestAddQueryMessages(t *testing.T) {
	r := newRig(t)

	ok, msg := r.monitor.AddQuery(baseParams())
	if !ok || msg != "Query added successfully" {
		t.Fatalf("AddQuery = (%v, %q)", ok, msg)
	}

	params := baseParams()
	params["alias"] = "low"
	params["interval"] = "1"
	ok, msg = r.monitor.AddQuery(params)
	if !ok {
		t.Fatalf("AddQuery: %s", msg)
	}
	want := "Query added successfully with warnings: interval too low (min:5)"
	if msg != want {
		t.Errorf("msg = %q, want %q", msg, want)
	}

	// Warnings must not leak into the next call.
	params = baseParams()
	params["alias"] = "clean"
	ok, msg = r.monitor.AddQuery(params)
	if !ok || msg != "Query added successfully" {
		t.Errorf("warnings leaked into next call: (%v, %q)", ok, msg)
	}
}

func TestAddQueryDuplicateAlias(t *testing.T) {
	r := newRig(t)

	params := baseParams()
	params["alias"] = "a"
	if ok, msg := r.monitor.AddQuery(params); !ok {
		t.Fatalf("first add: %s", msg)
	}

	params = baseParams()
	params["alias"] = "a"
	params["url"] = "http://other.example"
	ok, msg := r.monitor.AddQuery(params)
	if ok {
		t.Fatal("second add with duplicate alias should fail")
	}
	if msg != "Query not added due to duplicate alias: a" {
		t.Errorf("msg = %q", msg)
	}
	if len(r.monitor.GetAllQueries()) != 1 {
		t.Error("first query should remain intact")
	}
}

func TestScanMatchAndRearm(t *testing.T) {
	r := newRig(t)
	params := baseParams()
	params["sequence"] = "world"
	params["interval"] = "15"
	params["is_recurring"] = true
	uid := r.addQuery(t, params)

	snap, _ := r.monitor.Scan(context.Background())
	q := snap.find(t, uid)
	if !q.Found || q.Status != int(StatusOK) || q.Cycles != 1 {
		t.Fatalf("after first scan: found=%v status=%d cycles=%d", q.Found, q.Status, q.Cycles)
	}
	if q.LastMatch != saturday(12, 0).Format("2006-01-02 15:04:05") {
		t.Errorf("last_match = %q", q.LastMatch)
	}
	if !q.IsNew {
		t.Error("executed query should be marked is_new")
	}

	r.clk.Advance(20 * time.Minute)
	snap, _ = r.monitor.Scan(context.Background())
	q = snap.find(t, uid)
	if q.Status != int(StatusOK) || q.Cycles != 2 {
		t.Errorf("after rearm scan: status=%d cycles=%d, want OK/2", q.Status, q.Cycles)
	}
}

func TestScanAccessDenied(t *testing.T) {
	r := newRig(t)
	r.fetcher.set("please solve this captcha to continue", nil)
	uid := r.addQuery(t, baseParams())

	snap, _ := r.monitor.Scan(context.Background())
	q := snap.find(t, uid)
	if q.Found {
		t.Error("found should stay false on access denied")
	}
	if q.Status != int(StatusAccessDenied) {
		t.Errorf("status = %d, want AccessDenied", q.Status)
	}
	if q.Cycles != 1 {
		t.Errorf("cycles = %d, access denied consumes a cycle", q.Cycles)
	}

	// AccessDenied waits for the normal interval gate: an immediate rescan
	// skips the query.
	calls := r.fetcher.calls
	r.monitor.Scan(context.Background())
	if r.fetcher.calls != calls {
		t.Error("access-denied query should not re-run before its interval")
	}
}

func TestScanConnectionLostFastRetry(t *testing.T) {
	r := newRig(t)
	r.fetcher.set("", fetch.ErrConnection)
	uid := r.addQuery(t, baseParams())

	snap, _ := r.monitor.Scan(context.Background())
	q := snap.find(t, uid)
	if q.Found {
		t.Error("found should be false on connection lost")
	}
	if q.Status != int(StatusConnectionLost) {
		t.Errorf("status = %d, want ConnectionLost", q.Status)
	}
	if q.Cycles != 0 {
		t.Errorf("cycles = %d, connection lost must not consume a cycle", q.Cycles)
	}

	// Immediate rescan without advancing the clock runs the query again.
	calls := r.fetcher.calls
	r.monitor.Scan(context.Background())
	if r.fetcher.calls != calls+1 {
		t.Error("connection-lost query should retry immediately")
	}
}

func TestShouldRunEtaGate(t *testing.T) {
	r := newRig(t)
	params := baseParams()
	params["eta"] = "saturday,16-18"
	uid := r.addQuery(t, params)

	m := r.monitor
	m.mu.Lock()
	q := m.queries[uid]
	q.Status = StatusOK // past the recovery fast-path
	m.mu.Unlock()

	if m.shouldRun(q, saturday(15, 0)) {
		t.Error("should_run at Saturday 15:00 = true, want false")
	}
	if !m.shouldRun(q, saturday(17, 30)) {
		t.Error("should_run at Saturday 17:30 = false, want true")
	}
}

func TestShouldRunDisabled(t *testing.T) {
	r := newRig(t)
	params := baseParams()
	params["cycles_limit"] = -1
	uid := r.addQuery(t, params)

	calls := r.fetcher.calls
	r.monitor.Scan(context.Background())
	if r.fetcher.calls != calls {
		t.Error("cycles_limit=-1 query must never run")
	}
	snap := r.monitor.GetAllQueries()
	if q := snap.find(t, uid); q.Status != int(StatusNeverRan) {
		t.Errorf("status = %d, want NeverRan", q.Status)
	}
}

func TestShouldRunCooldownAfterMatch(t *testing.T) {
	r := newRig(t)
	params := baseParams()
	params["interval"] = "15"
	params["cooldown"] = "60"
	params["is_recurring"] = true
	uid := r.addQuery(t, params)

	r.monitor.Scan(context.Background()) // found=true

	r.clk.Advance(30 * time.Minute)
	calls := r.fetcher.calls
	r.monitor.Scan(context.Background())
	if r.fetcher.calls != calls {
		t.Error("matched query inside cooldown should not run")
	}

	r.clk.Advance(31 * time.Minute)
	r.monitor.Scan(context.Background())
	if r.fetcher.calls != calls+1 {
		t.Error("matched query past cooldown should run")
	}
	snap := r.monitor.GetAllQueries()
	if q := snap.find(t, uid); q.Cycles != 2 {
		t.Errorf("cycles = %d, want 2", q.Cycles)
	}
}

func TestScanCyclesLimitGate(t *testing.T) {
	r := newRig(t)
	r.fetcher.set("no match here", nil)
	params := baseParams()
	params["sequence"] = "absent"
	params["cycles_limit"] = 2
	r.addQuery(t, params)

	for i := 0; i < 4; i++ {
		r.monitor.Scan(context.Background())
		r.clk.Advance(time.Hour)
	}
	if r.fetcher.calls != 2 {
		t.Errorf("fetch calls = %d, want 2 (cycles_limit)", r.fetcher.calls)
	}
}

func TestScanSnapshotOrder(t *testing.T) {
	r := newRig(t)
	var uids []string
	for _, alias := range []string{"q1", "q2", "q3", "q4", "q5"} {
		params := baseParams()
		params["alias"] = alias
		uids = append(uids, r.addQuery(t, params))
	}
	snap, _ := r.monitor.Scan(context.Background())
	if len(snap) != len(uids) {
		t.Fatalf("snapshot size = %d, want %d", len(snap), len(uids))
	}
	for i, state := range snap {
		if state.UID != uids[i] {
			t.Errorf("snapshot[%d].uid = %s, want %s (insertion order)", i, state.UID, uids[i])
		}
	}
}

func TestEditQuery(t *testing.T) {
	r := newRig(t)
	uid := r.addQuery(t, baseParams())

	ok, msg := r.monitor.EditQuery(map[string]any{"uid": uid, "interval": "30"})
	if !ok {
		t.Fatalf("EditQuery: %s", msg)
	}
	state, ok, _ := r.monitor.GetQuery(uid)
	if !ok || state.Interval != 30 {
		t.Errorf("interval = %d, want 30", state.Interval)
	}
	if state.URL != "http://example.com" {
		t.Errorf("unmentioned fields must survive the merge, url = %q", state.URL)
	}

	ok, msg = r.monitor.EditQuery(map[string]any{"uid": "nope", "interval": "30"})
	if ok || msg != "Query with uid: nope does not exist" {
		t.Errorf("EditQuery unknown uid = (%v, %q)", ok, msg)
	}
}

func TestDeleteQuery(t *testing.T) {
	r := newRig(t)
	uid := r.addQuery(t, baseParams())

	if ok, msg := r.monitor.DeleteQuery(uid); !ok {
		t.Fatalf("DeleteQuery: %s", msg)
	}
	if _, ok, msg := r.monitor.GetQuery(uid); ok || msg != "Query does not exist" {
		t.Errorf("GetQuery after delete = (%v, %q)", ok, msg)
	}
	if ok, _ := r.monitor.DeleteQuery(uid); ok {
		t.Error("double delete should fail")
	}
}

func TestCleanQueries(t *testing.T) {
	r := newRig(t)

	matched := baseParams()
	matched["alias"] = "matched"
	uidMatched := r.addQuery(t, matched)

	recurring := baseParams()
	recurring["alias"] = "recurring"
	recurring["is_recurring"] = true
	uidRecurring := r.addQuery(t, recurring)

	r.monitor.Scan(context.Background()) // both match "world"

	ok, _ := r.monitor.CleanQueries()
	if !ok {
		t.Fatal("CleanQueries failed")
	}
	if _, ok, _ := r.monitor.GetQuery(uidMatched); ok {
		t.Error("matched non-recurring query should be cleaned")
	}
	if _, ok, _ := r.monitor.GetQuery(uidRecurring); !ok {
		t.Error("recurring query should survive cleaning")
	}
}

func TestSaveAndPopulateRoundTrip(t *testing.T) {
	r := newRig(t)
	params := baseParams()
	params["alias"] = "watch"
	params["eta"] = "monday-friday"
	uid := r.addQuery(t, params)
	r.monitor.Scan(context.Background())

	ok, msg := r.monitor.Save()
	if !ok || msg != "Saved user data" {
		t.Fatalf("Save = (%v, %q)", ok, msg)
	}

	fresh := New("alice", Options{
		Fetcher:  r.fetcher,
		Store:    r.store,
		Keywords: match.NewKeywords(""),
		Clock:    r.clk,
		Rand:     clock.ZeroRand{},
	})
	ok, msg = fresh.Populate()
	if !ok {
		t.Fatalf("Populate: %s", msg)
	}
	if !strings.Contains(msg, "Query restored: watch") {
		t.Errorf("msg = %q, want restore confirmation", msg)
	}

	state, ok, _ := fresh.GetQuery(uid)
	if !ok {
		t.Fatal("restored query missing")
	}
	if state.Alias != "watch" || state.ETA != "monday-friday" || state.Cycles != 1 {
		t.Errorf("restored state = %+v", state)
	}
}

func TestRestoreRecurringRearms(t *testing.T) {
	r := newRig(t)
	params := baseParams()
	params["is_recurring"] = true
	uid := r.addQuery(t, params)

	r.monitor.Scan(context.Background())
	if q := r.monitor.GetAllQueries().find(t, uid); !q.Found {
		t.Fatal("query should have matched")
	}
	r.monitor.Save()

	fresh := New("alice", Options{Fetcher: r.fetcher, Store: r.store, Clock: r.clk, Rand: clock.ZeroRand{}})
	if ok, msg := fresh.Populate(); !ok {
		t.Fatalf("Populate: %s", msg)
	}
	q := fresh.GetAllQueries().find(t, uid)
	if q.Found {
		t.Error("recurring query must re-arm (found=false) after restore")
	}
}

func TestScanPanicIsolation(t *testing.T) {
	r := newRig(t)
	uid := r.addQuery(t, baseParams())

	other := baseParams()
	other["alias"] = "other"
	otherUID := r.addQuery(t, other)

	r.monitor.mu.Lock()
	r.monitor.queries[uid].pattern = nil // force a panic inside this query's run
	r.monitor.mu.Unlock()

	snap, _ := r.monitor.Scan(context.Background())
	q := snap.find(t, uid)
	if q.Status != int(StatusConnectionLost) {
		t.Errorf("panicked query status = %d, want ConnectionLost", q.Status)
	}
	if q.Cycles != 0 {
		t.Errorf("panicked query cycles = %d, want 0", q.Cycles)
	}
	if o := snap.find(t, otherUID); o.Status != int(StatusOK) {
		t.Errorf("sibling query status = %d, scan must not abort", o.Status)
	}
}

func TestReloadCookies(t *testing.T) {
	r := newRig(t)
	uid := r.addQuery(t, baseParams())
	state, _, _ := r.monitor.GetQuery(uid)

	ok, _ := r.monitor.ReloadCookies(map[string]map[string]string{
		state.CookiesFilename: {"session": "abc"},
		"unknown.json":        {"x": "y"},
	})
	if !ok {
		t.Fatal("ReloadCookies failed")
	}
	r.monitor.mu.Lock()
	got := r.monitor.queries[uid].cookies["session"]
	r.monitor.mu.Unlock()
	if got != "abc" {
		t.Errorf("in-memory jar not refreshed, session = %q", got)
	}
	after, _, _ := r.monitor.GetQuery(uid)
	if after != state {
		t.Error("ReloadCookies must not mutate query observable state")
	}
}

func TestWarningsEmptyAfterFailedCall(t *testing.T) {
	r := newRig(t)

	params := baseParams()
	params["interval"] = "1"   // raises a warning
	params["sequence"] = "(((" // then fails hard
	if ok, _ := r.monitor.AddQuery(params); ok {
		t.Fatal("add should have failed")
	}
	if ok, msg := r.monitor.AddQuery(baseParams()); !ok || msg != "Query added successfully" {
		t.Errorf("warnings from failed call leaked: (%v, %q)", ok, msg)
	}
}

func (s Snapshot) find(t *testing.T, uid string) State {
	t.Helper()
	for _, state := range s {
		if state.UID == uid {
			return state
		}
	}
	t.Fatalf("uid %s not in snapshot", uid)
	return State{}
}

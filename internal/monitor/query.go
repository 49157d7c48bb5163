// Vigil - Multi-User Web Change Monitor
// Copyright 2026 Vigil contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vigil-watch/vigil

// Package monitor is the per-user scheduling and execution engine. A Monitor
// owns a set of Queries, admits mutations through the Validator, decides at
// each scan which queries are due, runs them concurrently and maintains their
// observable state.
package monitor

import (
	"bytes"
	"strconv"
	"time"

	"github.com/goccy/go-json"

	"github.com/vigil-watch/vigil/internal/eta"
	"github.com/vigil-watch/vigil/internal/match"
	"github.com/vigil-watch/vigil/internal/storage"
)

// Status is the outcome of a query's most recent run.
type Status int

const (
	StatusNeverRan       Status = -1
	StatusOK             Status = 0
	StatusAccessDenied   Status = 1
	StatusConnectionLost Status = 2
)

func (s Status) String() string {
	switch s {
	case StatusNeverRan:
		return "never_ran"
	case StatusOK:
		return "ok"
	case StatusAccessDenied:
		return "access_denied"
	case StatusConnectionLost:
		return "connection_lost"
	}
	return "unknown"
}

// Query is one user-defined watch: a URL, a pattern and the timing rules
// governing when it runs. All fields except pattern and cookies are
// observable through snapshots and persist in the dashboard.
type Query struct {
	UID             string
	Alias           string
	URL             string
	TargetURL       string
	Sequence        string
	Mode            string
	MinMatches      int
	Interval        int // minutes
	Cooldown        int // minutes
	Randomize       int // 0..100 percent jitter on Interval
	ETA             eta.Schedule
	CyclesLimit     int // 0 unlimited, >0 bound, <0 disabled
	Cycles          int
	IsRecurring     bool
	LastRun         time.Time
	LastMatch       time.Time
	Found           bool
	Status          Status
	IsNew           bool
	CookiesFilename string
	AlertSound      string

	pattern *match.Pattern
	cookies map[string]string
}

// epoch is the default for LastRun and LastMatch before a query ever runs.
var epoch = time.Unix(0, 0).UTC()

// State is the wire form of a Query: what serializes to API clients and,
// stringified, to the dashboard. Timestamps render in storage.TimeFormat,
// the ETA as its raw expression.
type State struct {
	UID             string `json:"uid"`
	Alias           string `json:"alias"`
	URL             string `json:"url"`
	TargetURL       string `json:"target_url"`
	Sequence        string `json:"sequence"`
	Mode            string `json:"mode"`
	MinMatches      int    `json:"min_matches"`
	Interval        int    `json:"interval"`
	Cooldown        int    `json:"cooldown"`
	Randomize       int    `json:"randomize"`
	ETA             string `json:"eta"`
	CyclesLimit     int    `json:"cycles_limit"`
	Cycles          int    `json:"cycles"`
	IsRecurring     bool   `json:"is_recurring"`
	LastRun         string `json:"last_run"`
	LastMatch       string `json:"last_match_datetime"`
	Found           bool   `json:"found"`
	Status          int    `json:"status"`
	IsNew           bool   `json:"is_new"`
	CookiesFilename string `json:"cookies_filename"`
	AlertSound      string `json:"alert_sound"`
}

// State captures the query's observable fields.
func (q *Query) State() State {
	return State{
		UID:             q.UID,
		Alias:           q.Alias,
		URL:             q.URL,
		TargetURL:       q.TargetURL,
		Sequence:        q.Sequence,
		Mode:            q.Mode,
		MinMatches:      q.MinMatches,
		Interval:        q.Interval,
		Cooldown:        q.Cooldown,
		Randomize:       q.Randomize,
		ETA:             q.ETA.Raw,
		CyclesLimit:     q.CyclesLimit,
		Cycles:          q.Cycles,
		IsRecurring:     q.IsRecurring,
		LastRun:         q.LastRun.Format(storage.TimeFormat),
		LastMatch:       q.LastMatch.Format(storage.TimeFormat),
		Found:           q.Found,
		Status:          int(q.Status),
		IsNew:           q.IsNew,
		CookiesFilename: q.CookiesFilename,
		AlertSound:      q.AlertSound,
	}
}

// Row converts the query to a dashboard row. Transient fields stay out, and
// recurring queries always persist found=false so they re-arm on restart.
func (q *Query) Row() map[string]string {
	found := q.Found
	if q.IsRecurring {
		found = false
	}
	return map[string]string{
		"uid":                 q.UID,
		"alias":               q.Alias,
		"url":                 q.URL,
		"target_url":          q.TargetURL,
		"sequence":            q.Sequence,
		"mode":                q.Mode,
		"min_matches":         strconv.Itoa(q.MinMatches),
		"interval":            strconv.Itoa(q.Interval),
		"cooldown":            strconv.Itoa(q.Cooldown),
		"randomize":           strconv.Itoa(q.Randomize),
		"eta":                 q.ETA.Raw,
		"cycles_limit":        strconv.Itoa(q.CyclesLimit),
		"cycles":              strconv.Itoa(q.Cycles),
		"is_recurring":        strconv.FormatBool(q.IsRecurring),
		"last_run":            q.LastRun.Format(storage.TimeFormat),
		"last_match_datetime": q.LastMatch.Format(storage.TimeFormat),
		"found":               strconv.FormatBool(found),
		"status":              strconv.Itoa(int(q.Status)),
		"cookies_filename":    q.CookiesFilename,
		"alert_sound":         q.AlertSound,
	}
}

// Snapshot is an ordered view of a Monitor's queries as returned by Scan and
// GetAllQueries. It marshals to a JSON object keyed by uid, preserving the
// Monitor's insertion order.
type Snapshot []State

// MarshalJSON writes the snapshot as {uid: state, ...} in slice order.
func (s Snapshot) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, state := range s {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(state.UID)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		val, err := json.Marshal(state)
		if err != nil {
			return nil, err
		}
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON reads the {uid: state, ...} object form back into a slice,
// keeping the object's key order.
func (s *Snapshot) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	if _, err := dec.Token(); err != nil { // opening brace
		return err
	}
	var out Snapshot
	for dec.More() {
		key, err := dec.Token()
		if err != nil {
			return err
		}
		var state State
		if err := dec.Decode(&state); err != nil {
			return err
		}
		if uid, ok := key.(string); ok && state.UID == "" {
			state.UID = uid
		}
		out = append(out, state)
	}
	if _, err := dec.Token(); err != nil { // closing brace
		return err
	}
	*s = out
	return nil
}

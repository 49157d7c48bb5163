// Vigil - Multi-User Web Change Monitor
// Copyright 2026 Vigil contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vigil-watch/vigil

package monitor

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/vigil-watch/vigil/internal/eta"
	"github.com/vigil-watch/vigil/internal/match"
	"github.com/vigil-watch/vigil/internal/storage"
)

// DefaultMinInterval is the floor on query intervals when the config does not
// override it.
const DefaultMinInterval = 5

// ErrValidation marks hard admission failures: a required field missing or
// uncoercible, or an uncompilable pattern.
var ErrValidation = errors.New("validation failed")

// Validator normalizes and type-checks raw query parameter maps. Unknown keys
// drop silently; recognized keys coerce toward their domain or fall back to
// defaults; required fields fail hard. Non-fatal findings accumulate as
// warnings for the Monitor to surface.
type Validator struct {
	minInterval int
}

// NewValidator returns a Validator with the given interval floor in minutes.
// Values below 1 fall back to DefaultMinInterval.
func NewValidator(minInterval int) *Validator {
	if minInterval < 1 {
		minInterval = DefaultMinInterval
	}
	return &Validator{minInterval: minInterval}
}

// Validate builds a Query from a raw parameter map. It returns the validated
// query, any warnings raised along the way, and an error on hard failure.
func (v *Validator) Validate(params map[string]any) (*Query, []string, error) {
	var warnings []string
	q := &Query{}

	q.URL = strings.TrimSpace(stringOf(params["url"]))
	if q.URL == "" {
		return nil, warnings, fmt.Errorf("%w: missing required field url", ErrValidation)
	}
	q.Sequence = stringOf(params["sequence"])
	if strings.TrimSpace(q.Sequence) == "" {
		return nil, warnings, fmt.Errorf("%w: missing required field sequence", ErrValidation)
	}

	rawInterval := strings.TrimSpace(stringOf(params["interval"]))
	if rawInterval == "" {
		return nil, warnings, fmt.Errorf("%w: missing required field interval", ErrValidation)
	}
	interval, ok := parseSpan(rawInterval)
	if !ok {
		return nil, warnings, fmt.Errorf("%w: invalid interval %q", ErrValidation, rawInterval)
	}
	if interval < v.minInterval {
		warnings = append(warnings, fmt.Sprintf("interval too low (min:%d)", v.minInterval))
		interval = v.minInterval
	}
	q.Interval = interval

	q.UID = stringOf(params["uid"])
	q.Alias = strings.TrimSpace(stringOf(params["alias"]))
	if q.Alias == "" {
		q.Alias = q.URL
	}
	q.TargetURL = strings.TrimSpace(stringOf(params["target_url"]))
	if q.TargetURL == "" {
		q.TargetURL = q.URL
	}

	q.Mode = stringOf(params["mode"])
	if q.Mode != match.ModeExists && q.Mode != match.ModeNotExists {
		q.Mode = match.ModeExists
	}

	q.MinMatches = intOf(params["min_matches"], 1)
	if q.MinMatches < 1 {
		q.MinMatches = 1
	}

	cooldown := 0
	if raw := strings.TrimSpace(stringOf(params["cooldown"])); raw != "" {
		if parsed, ok := parseSpan(raw); ok {
			cooldown = parsed
		}
	}
	if cooldown < q.Interval {
		cooldown = q.Interval
	}
	q.Cooldown = cooldown

	q.Randomize = intOf(params["randomize"], 0)
	if q.Randomize < 0 {
		q.Randomize = 0
	} else if q.Randomize > 100 {
		q.Randomize = 100
	}

	schedule, invalid := eta.Parse(stringOf(params["eta"]))
	if len(invalid) > 0 {
		warnings = append(warnings, "invalid ETA rules: "+strings.Join(invalid, ", "))
	}
	q.ETA = schedule

	q.CyclesLimit = intOf(params["cycles_limit"], 0)
	q.Cycles = intOf(params["cycles"], 0)
	if q.Cycles < 0 {
		q.Cycles = 0
	}
	q.IsRecurring = boolOf(params["is_recurring"])
	q.Found = boolOf(params["found"])

	status := Status(intOf(params["status"], int(StatusNeverRan)))
	switch status {
	case StatusNeverRan, StatusOK, StatusAccessDenied, StatusConnectionLost:
		q.Status = status
	default:
		q.Status = StatusNeverRan
	}

	q.LastRun = timeOf(params["last_run"])
	q.LastMatch = timeOf(params["last_match_datetime"])

	q.CookiesFilename = stringOf(params["cookies_filename"])
	q.AlertSound = stringOf(params["alert_sound"])

	pattern, err := match.Compile(q.Sequence, q.Mode, q.MinMatches)
	if err != nil {
		return nil, warnings, fmt.Errorf("%w: invalid sequence: %v", ErrValidation, err)
	}
	q.pattern = pattern

	return q, warnings, nil
}

// parseSpan parses a duration expressed in minutes, with an optional trailing
// `h` (hours) or `d` (days) unit. Fractions are allowed; the result truncates
// toward zero after unit conversion.
func parseSpan(raw string) (int, bool) {
	raw = strings.ToLower(strings.TrimSpace(raw))
	multiplier := 1.0
	switch {
	case strings.HasSuffix(raw, "h"):
		multiplier = 60
		raw = strings.TrimSuffix(raw, "h")
	case strings.HasSuffix(raw, "d"):
		multiplier = 60 * 24
		raw = strings.TrimSuffix(raw, "d")
	}
	value, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return 0, false
	}
	return int(value * multiplier), true
}

func stringOf(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case bool:
		return strconv.FormatBool(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int:
		return strconv.Itoa(t)
	}
	return fmt.Sprintf("%v", v)
}

func intOf(v any, fallback int) int {
	switch t := v.(type) {
	case nil:
		return fallback
	case int:
		return t
	case float64:
		return int(t)
	case string:
		if f, err := strconv.ParseFloat(strings.TrimSpace(t), 64); err == nil {
			return int(f)
		}
	}
	return fallback
}

func boolOf(v any) bool {
	switch t := v.(type) {
	case bool:
		return t
	case string:
		return strings.EqualFold(strings.TrimSpace(t), "true") || strings.TrimSpace(t) == "1"
	case float64:
		return t != 0
	case int:
		return t != 0
	}
	return false
}

func timeOf(v any) time.Time {
	switch t := v.(type) {
	case time.Time:
		if !t.IsZero() {
			return t
		}
	case string:
		if parsed, err := time.ParseInLocation(storage.TimeFormat, strings.TrimSpace(t), time.Local); err == nil {
			return parsed
		}
	}
	return epoch
}

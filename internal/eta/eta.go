// Vigil - Multi-User Web Change Monitor
// Copyright 2026 Vigil contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vigil-watch/vigil

// Package eta implements the query schedule language.
//
// An ETA expression is a comma-separated list of clauses gating when a query
// is allowed to run. Five clause shapes are recognized:
//
//	monday … sunday          day of week
//	HH[:MM]-HH[:MM]          daily time window
//	D/M/YYYY                 single date
//	D/M/YYYY-D/M/YYYY        inclusive date range
//	monday-friday            day-of-week range
//
// Whitespace is insignificant and weekday names are case-insensitive.
// Invalid clauses are reported back to the caller; the remaining clauses
// still apply. A schedule with no clauses matches always.
package eta

import (
	"strconv"
	"strings"
	"time"
)

// Days of week are numbered monday=0 … sunday=6, matching the wire format
// used by the dashboard clients.
var weekdays = map[string]int{
	"monday":    0,
	"tuesday":   1,
	"wednesday": 2,
	"thursday":  3,
	"friday":    4,
	"saturday":  5,
	"sunday":    6,
}

// HM is a time of day with minute resolution.
type HM struct {
	Hour   int
	Minute int
}

// after reports whether h is strictly later than o.
func (h HM) after(o HM) bool {
	return h.Hour > o.Hour || (h.Hour == o.Hour && h.Minute > o.Minute)
}

// TimeSpan is an inclusive daily time window.
type TimeSpan struct {
	From HM
	To   HM
}

// Date is a single calendar date.
type Date struct {
	Day   int
	Month int
	Year  int
}

// DateSpan is an inclusive date range. To holds midnight of the final day;
// evaluation extends it to the end of that day.
type DateSpan struct {
	From time.Time
	To   time.Time
}

// DowSpan is an inclusive day-of-week range.
type DowSpan struct {
	From int
	To   int
}

// Schedule is the parsed form of an ETA expression. Raw retains the verbatim
// user input; it is what persists and round-trips through the API.
type Schedule struct {
	Dow       []int
	TimeSpans []TimeSpan
	Dates     []Date
	DateSpans []DateSpan
	DowSpans  []DowSpan
	Raw       string
}

// Parse parses an ETA expression. It returns the schedule built from the
// valid clauses and the list of clauses that failed to parse. An empty
// expression yields an empty schedule and no invalid clauses.
func Parse(raw string) (Schedule, []string) {
	s := Schedule{
		Dow:       []int{},
		TimeSpans: []TimeSpan{},
		Dates:     []Date{},
		DateSpans: []DateSpan{},
		DowSpans:  []DowSpan{},
		Raw:       raw,
	}
	var invalid []string

	for _, clause := range strings.Split(raw, ",") {
		clause = strings.TrimSpace(clause)
		if clause == "" {
			continue
		}
		if !s.parseClause(clause) {
			invalid = append(invalid, clause)
		}
	}
	return s, invalid
}

// parseClause tries each clause shape in turn and appends to the matching
// list. Returns false if no shape fits.
func (s *Schedule) parseClause(clause string) bool {
	lower := strings.ToLower(strings.ReplaceAll(clause, " ", ""))

	if d, ok := weekdays[lower]; ok {
		s.Dow = append(s.Dow, d)
		return true
	}

	switch {
	case strings.Contains(lower, "/") && strings.Contains(lower, "-"):
		from, to, ok := parseDateSpan(lower)
		if !ok {
			return false
		}
		s.DateSpans = append(s.DateSpans, DateSpan{From: from, To: to})
	case strings.Contains(lower, "/"):
		d, ok := parseDate(lower)
		if !ok {
			return false
		}
		s.Dates = append(s.Dates, d)
	case strings.Contains(lower, "-"):
		if from, to, ok := parseDowSpan(lower); ok {
			s.DowSpans = append(s.DowSpans, DowSpan{From: from, To: to})
			return true
		}
		span, ok := parseTimeSpan(lower)
		if !ok {
			return false
		}
		s.TimeSpans = append(s.TimeSpans, span)
	default:
		return false
	}
	return true
}

// parseHM parses "HH" or "HH:MM".
func parseHM(in string) (HM, bool) {
	hs, ms, hasMinute := strings.Cut(in, ":")
	hour, err := strconv.Atoi(hs)
	if err != nil || hour < 0 || hour > 23 {
		return HM{}, false
	}
	minute := 0
	if hasMinute {
		minute, err = strconv.Atoi(ms)
		if err != nil || minute < 0 || minute > 59 {
			return HM{}, false
		}
	}
	return HM{Hour: hour, Minute: minute}, true
}

func parseTimeSpan(in string) (TimeSpan, bool) {
	froms, tos, ok := strings.Cut(in, "-")
	if !ok {
		return TimeSpan{}, false
	}
	from, ok := parseHM(froms)
	if !ok {
		return TimeSpan{}, false
	}
	to, ok := parseHM(tos)
	if !ok {
		return TimeSpan{}, false
	}
	return TimeSpan{From: from, To: to}, true
}

// parseDate parses "D/M/YYYY", rejecting dates that do not exist on the
// calendar (time.Date normalizes overflow, so round-trip check it).
func parseDate(in string) (Date, bool) {
	parts := strings.Split(in, "/")
	if len(parts) != 3 {
		return Date{}, false
	}
	day, err1 := strconv.Atoi(parts[0])
	month, err2 := strconv.Atoi(parts[1])
	year, err3 := strconv.Atoi(parts[2])
	if err1 != nil || err2 != nil || err3 != nil || year < 1000 {
		return Date{}, false
	}
	t := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	if t.Day() != day || int(t.Month()) != month || t.Year() != year {
		return Date{}, false
	}
	return Date{Day: day, Month: month, Year: year}, true
}

func parseDateSpan(in string) (time.Time, time.Time, bool) {
	froms, tos, ok := strings.Cut(in, "-")
	if !ok {
		return time.Time{}, time.Time{}, false
	}
	from, ok := parseDate(froms)
	if !ok {
		return time.Time{}, time.Time{}, false
	}
	to, ok := parseDate(tos)
	if !ok {
		return time.Time{}, time.Time{}, false
	}
	return from.midnight(), to.midnight(), true
}

func (d Date) midnight() time.Time {
	return time.Date(d.Year, time.Month(d.Month), d.Day, 0, 0, 0, 0, time.UTC)
}

func parseDowSpan(in string) (int, int, bool) {
	froms, tos, ok := strings.Cut(in, "-")
	if !ok {
		return 0, 0, false
	}
	from, okFrom := weekdays[froms]
	to, okTo := weekdays[tos]
	if !okFrom || !okTo {
		return 0, 0, false
	}
	return from, to, true
}

// weekday converts Go's Sunday-based weekday to the monday=0 numbering.
func weekday(t time.Time) int {
	return (int(t.Weekday()) + 6) % 7
}

// Matches reports whether now satisfies the schedule. For every non-empty
// clause list at least one entry must hold; empty lists impose no constraint.
func (s Schedule) Matches(now time.Time) bool {
	if len(s.Dow) > 0 && !s.matchDow(now) {
		return false
	}
	if len(s.TimeSpans) > 0 && !s.matchTimeSpan(now) {
		return false
	}
	if len(s.Dates) > 0 && !s.matchDate(now) {
		return false
	}
	if len(s.DateSpans) > 0 && !s.matchDateSpan(now) {
		return false
	}
	if len(s.DowSpans) > 0 && !s.matchDowSpan(now) {
		return false
	}
	return true
}

func (s Schedule) matchDow(now time.Time) bool {
	wd := weekday(now)
	for _, d := range s.Dow {
		if d == wd {
			return true
		}
	}
	return false
}

func (s Schedule) matchTimeSpan(now time.Time) bool {
	hm := HM{Hour: now.Hour(), Minute: now.Minute()}
	for _, span := range s.TimeSpans {
		if !span.From.after(hm) && !hm.after(span.To) {
			return true
		}
	}
	return false
}

func (s Schedule) matchDate(now time.Time) bool {
	for _, d := range s.Dates {
		if now.Day() == d.Day && int(now.Month()) == d.Month && now.Year() == d.Year {
			return true
		}
	}
	return false
}

func (s Schedule) matchDateSpan(now time.Time) bool {
	for _, span := range s.DateSpans {
		// To holds midnight of the final day; the range includes that whole day.
		if !now.Before(span.From) && !now.After(span.To.Add(24*time.Hour)) {
			return true
		}
	}
	return false
}

func (s Schedule) matchDowSpan(now time.Time) bool {
	wd := weekday(now)
	for _, span := range s.DowSpans {
		if wd >= span.From && wd <= span.To {
			return true
		}
	}
	return false
}

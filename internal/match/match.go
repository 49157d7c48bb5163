// Vigil - Multi-User Web Change Monitor
// Copyright 2026 Vigil contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vigil-watch/vigil

// Package match compiles query pattern sequences and evaluates them against
// normalized page text.
//
// A sequence is one or more regular expressions joined by the literal
// delimiter `\&` denoting logical AND. Hits of all sub-patterns are summed
// and compared against the query's min_matches threshold; the query's mode
// (exists / not-exists) sets the polarity of the final verdict.
package match

import (
	"fmt"
	"regexp"
	"strings"
	"sync"
)

// Delimiter joins sub-patterns within a sequence.
const Delimiter = `\&`

// ModeExists and ModeNotExists are the two match polarities.
const (
	ModeExists    = "exists"
	ModeNotExists = "not-exists"
)

// Pattern is a compiled query sequence.
type Pattern struct {
	sequence   string
	subs       []*regexp.Regexp
	minMatches int
	exists     bool
}

// Compile builds a Pattern from a sequence expression. Sub-patterns are
// lower-cased before compilation since page text is normalized to lower case.
func Compile(sequence, mode string, minMatches int) (*Pattern, error) {
	if minMatches < 1 {
		minMatches = 1
	}
	parts := strings.Split(sequence, Delimiter)
	subs := make([]*regexp.Regexp, 0, len(parts))
	for _, part := range parts {
		re, err := regexp.Compile(strings.ToLower(part))
		if err != nil {
			return nil, fmt.Errorf("invalid pattern %q: %w", part, err)
		}
		subs = append(subs, re)
	}
	return &Pattern{
		sequence:   sequence,
		subs:       subs,
		minMatches: minMatches,
		exists:     strings.ToLower(mode) == ModeExists,
	}, nil
}

// Sequence returns the original sequence expression.
func (p *Pattern) Sequence() string { return p.sequence }

// MinMatches returns the hit threshold.
func (p *Pattern) MinMatches() int { return p.minMatches }

// Evaluate counts non-overlapping hits of every sub-pattern in text and
// applies the polarity. Text must already be lower-cased.
func (p *Pattern) Evaluate(text string) (found bool, hits int) {
	for _, re := range p.subs {
		hits += len(re.FindAllStringIndex(text, -1))
	}
	raw := hits >= p.minMatches
	return raw == p.exists, hits
}

// Keywords is the CAPTCHA keyword set used for access-denied detection.
// It is shared across all monitors and swapped atomically on config reload.
type Keywords struct {
	mu  sync.RWMutex
	kws []string
}

// NewKeywords builds a keyword set from a semicolon-separated list.
// Blank entries are dropped; keywords are matched case-insensitively.
func NewKeywords(list string) *Keywords {
	k := &Keywords{}
	k.Update(list)
	return k
}

// Update replaces the keyword set.
func (k *Keywords) Update(list string) {
	var kws []string
	for _, kw := range strings.Split(strings.ToLower(list), ";") {
		if kw = strings.TrimSpace(kw); kw != "" {
			kws = append(kws, kw)
		}
	}
	k.mu.Lock()
	k.kws = kws
	k.mu.Unlock()
}

// Denied reports whether the normalized text contains any CAPTCHA keyword.
// Called only when a page produced zero pattern hits.
func (k *Keywords) Denied(text string) bool {
	k.mu.RLock()
	defer k.mu.RUnlock()
	for _, kw := range k.kws {
		if strings.Contains(text, kw) {
			return true
		}
	}
	return false
}

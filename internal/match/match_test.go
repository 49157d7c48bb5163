// Vigil - Multi-User Web Change Monitor
// Copyright 2026 Vigil contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vigil-watch/vigil

package match

import "testing"

func TestCompileAndEvaluate(t *testing.T) {
	tests := []struct {
		name       string
		sequence   string
		mode       string
		minMatches int
		text       string
		wantFound  bool
		wantHits   int
	}{
		{
			name:      "single pattern present",
			sequence:  "world",
			mode:      ModeExists,
			text:      "hello world",
			wantFound: true,
			wantHits:  1,
		},
		{
			name:      "single pattern absent",
			sequence:  "mars",
			mode:      ModeExists,
			text:      "hello world",
			wantFound: false,
			wantHits:  0,
		},
		{
			name:      "hits sum across sub-patterns",
			sequence:  `hello\&world`,
			mode:      ModeExists,
			text:      "hello world hello",
			wantFound: true,
			wantHits:  3,
		},
		{
			name:       "below min_matches threshold",
			sequence:   "tick",
			mode:       ModeExists,
			minMatches: 3,
			text:       "tick tick",
			wantFound:  false,
			wantHits:   2,
		},
		{
			name:       "at min_matches threshold",
			sequence:   "tick",
			mode:       ModeExists,
			minMatches: 3,
			text:       "tick tick tick",
			wantFound:  true,
			wantHits:   3,
		},
		{
			name:      "not-exists inverts polarity",
			sequence:  "sold out",
			mode:      ModeNotExists,
			text:      "in stock, order now",
			wantFound: true,
			wantHits:  0,
		},
		{
			name:      "not-exists with hit",
			sequence:  "sold out",
			mode:      ModeNotExists,
			text:      "currently sold out",
			wantFound: false,
			wantHits:  1,
		},
		{
			name:      "pattern lower-cased before compile",
			sequence:  "WORLD",
			mode:      ModeExists,
			text:      "hello world",
			wantFound: true,
			wantHits:  1,
		},
		{
			name:      "regex syntax",
			sequence:  `price: \d+`,
			mode:      ModeExists,
			text:      "price: 42 eur",
			wantFound: true,
			wantHits:  1,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := Compile(tt.sequence, tt.mode, tt.minMatches)
			if err != nil {
				t.Fatalf("Compile: %v", err)
			}
			found, hits := p.Evaluate(tt.text)
			if found != tt.wantFound || hits != tt.wantHits {
				t.Errorf("Evaluate = (%v, %d), want (%v, %d)", found, hits, tt.wantFound, tt.wantHits)
			}
		})
	}
}

func TestCompileRejectsBadRegex(t *testing.T) {
	if _, err := Compile(`valid\&[unclosed`, ModeExists, 1); err == nil {
		t.Fatal("expected error for unclosed character class")
	}
}

func TestCompileClampsMinMatches(t *testing.T) {
	p, err := Compile("x", ModeExists, 0)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	if p.MinMatches() != 1 {
		t.Errorf("MinMatches = %d, want 1", p.MinMatches())
	}
}

func TestPatternSequenceRoundTrip(t *testing.T) {
	seq := `a\&b`
	p, err := Compile(seq, ModeExists, 1)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	if p.Sequence() != seq {
		t.Errorf("Sequence = %q, want %q", p.Sequence(), seq)
	}
}

func TestKeywordsDenied(t *testing.T) {
	k := NewKeywords("captcha; Permission Denied ;;")

	tests := []struct {
		text string
		want bool
	}{
		{"please solve this captcha to continue", true},
		{"403 permission denied", true},
		{"welcome back", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := k.Denied(tt.text); got != tt.want {
			t.Errorf("Denied(%q) = %v, want %v", tt.text, got, tt.want)
		}
	}
}

func TestKeywordsUpdateReplacesSet(t *testing.T) {
	k := NewKeywords("captcha")
	k.Update("robot check")
	if k.Denied("captcha here") {
		t.Error("old keyword should be gone after Update")
	}
	if !k.Denied("automated robot check") {
		t.Error("new keyword should be live after Update")
	}
}

func TestKeywordsEmptyListDeniesNothing(t *testing.T) {
	k := NewKeywords("")
	if k.Denied("captcha") {
		t.Error("empty keyword set must never deny")
	}
}

// Vigil - Multi-User Web Change Monitor
// Copyright 2026 Vigil contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vigil-watch/vigil

// Package clock provides injectable time and randomness sources.
//
// Every time-dependent scheduling decision in the Monitor funnels through a
// Clock and a Rand so tests can drive them deterministically.
package clock

import (
	"math/rand"
	"sync"
	"time"
)

// Clock is a source of wall-clock time.
type Clock interface {
	Now() time.Time
}

// Rand is a source of uniform randomness.
type Rand interface {
	// Uniform returns a value drawn uniformly from [lo, hi).
	Uniform(lo, hi float64) float64
}

// System returns the real wall clock.
func System() Clock { return systemClock{} }

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// NewRand returns a Rand seeded from the current time.
func NewRand() Rand {
	return &lockedRand{rng: rand.New(rand.NewSource(time.Now().UnixNano()))}
}

// lockedRand guards a rand.Rand; Uniform may be called from concurrent
// scan workers.
type lockedRand struct {
	mu  sync.Mutex
	rng *rand.Rand
}

func (r *lockedRand) Uniform(lo, hi float64) float64 {
	if hi <= lo {
		return lo
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return lo + r.rng.Float64()*(hi-lo)
}

// Fixed is a Clock pinned to a settable instant, for tests.
type Fixed struct {
	mu sync.Mutex
	t  time.Time
}

// NewFixed returns a Fixed clock starting at t.
func NewFixed(t time.Time) *Fixed { return &Fixed{t: t} }

// Now returns the pinned instant.
func (f *Fixed) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.t
}

// Set pins the clock to t.
func (f *Fixed) Set(t time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.t = t
}

// Advance moves the clock forward by d.
func (f *Fixed) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.t = f.t.Add(d)
}

// ZeroRand is a Rand that always returns the midpoint, for tests.
type ZeroRand struct{}

func (ZeroRand) Uniform(lo, hi float64) float64 { return (lo + hi) / 2 }

// Vigil - Multi-User Web Change Monitor
// Copyright 2026 Vigil contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vigil-watch/vigil

package registry

import (
	"context"
	"time"

	"github.com/vigil-watch/vigil/internal/logging"
)

// Janitor is a suture service that periodically reaps idle sessions.
type Janitor struct {
	registry *Registry
	interval time.Duration
}

// NewJanitor creates a janitor sweeping at the given interval.
func NewJanitor(r *Registry, interval time.Duration) *Janitor {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Janitor{registry: r, interval: interval}
}

// Serve runs the sweep loop until ctx is canceled.
func (j *Janitor) Serve(ctx context.Context) error {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	logger := logging.WithComponent("session-janitor")
	logger.Info().Dur("interval", j.interval).Msg("janitor started")
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			j.registry.reapIdle(j.registry.opts.Clock.Now())
		}
	}
}

func (j *Janitor) String() string { return "session-janitor" }

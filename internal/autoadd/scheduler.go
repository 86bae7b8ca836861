// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package autoadd

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Scheduler runs the pipeline on a fixed interval for watch mode. The
// interval can be updated from a config reload between passes.
type Scheduler struct {
	svc  *Service
	opts Options

	mu       sync.Mutex
	interval time.Duration
}

func NewScheduler(svc *Service, interval time.Duration, opts Options) *Scheduler {
	if interval <= 0 {
		interval = 6 * time.Hour
	}
	return &Scheduler{
		svc:      svc,
		opts:     opts,
		interval: interval,
	}
}

// SetInterval updates the wait between passes. Takes effect after the
// current wait completes.
func (s *Scheduler) SetInterval(interval time.Duration) {
	if interval <= 0 {
		return
	}
	s.mu.Lock()
	s.interval = interval
	s.mu.Unlock()
}

func (s *Scheduler) currentInterval() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.interval
}

// Run executes an immediate pass and then loops until the context is
// canceled. Pass failures are logged and the loop keeps going; only
// cancellation stops it.
func (s *Scheduler) Run(ctx context.Context) error {
	s.runOnce(ctx)

	for {
		interval := s.currentInterval()
		log.Info().Dur("interval", interval).Msg("Waiting until next pass")

		timer := time.NewTimer(interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			log.Info().Msg("Scheduler stopped")
			return ctx.Err()
		case <-timer.C:
		}

		s.runOnce(ctx)
	}
}

func (s *Scheduler) runOnce(ctx context.Context) {
	start := time.Now()
	report, err := s.svc.Run(ctx, s.opts)
	if err != nil {
		log.Error().Err(err).Msg("Pass failed")
		return
	}
	log.Info().
		Dur("elapsed", time.Since(start)).
		Str("outcome", Describe(report)).
		Msg("Pass complete")
}

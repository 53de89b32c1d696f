// agibotrt - Robotics middleware runtime core
// Copyright 2026 The agibotrt Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/agibot-rt/agibotrt

package task

import (
	"context"
	"time"
)

// Loop invokes fn repeatedly at a fixed period until ctx is cancelled or
// fn returns false. Each iteration sleeps period minus however long the
// previous iteration took; if an iteration overran the period, the next
// one fires immediately rather than sleeping a negative duration, and the
// anchor resets from that iteration's completion instead of accumulating
// drift.
func Loop(ctx context.Context, period time.Duration, fn func(ctx context.Context) bool) {
	anchor := time.Now()
	for {
		if ctx.Err() != nil {
			return
		}
		if !fn(ctx) {
			return
		}
		now := time.Now()
		elapsed := now.Sub(anchor)
		sleep := period - elapsed
		if sleep < 0 {
			sleep = 0
		}
		anchor = now.Add(sleep)

		timer := time.NewTimer(sleep)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

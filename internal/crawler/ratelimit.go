package crawler

import (
	"context"
	"time"
)

// SleepFunc blocks for d or until ctx is done, whichever comes first.
// It returns ctx.Err() if the context ended the wait.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Sleep is the default SleepFunc.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Pacer applies a fixed delay after each fetch unit finishes its work.
//
// The delay is per unit, not global: with N concurrent units up to N of them
// may be paused at once. It caps each worker's own request cadence rather
// than the aggregate throughput of the crawl.
type Pacer struct {
	delay time.Duration
	sleep SleepFunc
}

// NewPacer creates a Pacer. A zero or negative delay disables pacing.
// If sleep is nil, Sleep is used.
func NewPacer(delay time.Duration, sleep SleepFunc) *Pacer {
	if sleep == nil {
		sleep = Sleep
	}
	return &Pacer{delay: delay, sleep: sleep}
}

// Enabled reports whether the pacer delays at all.
func (p *Pacer) Enabled() bool {
	return p.delay > 0
}

// Delay returns the configured delay.
func (p *Pacer) Delay() time.Duration {
	return p.delay
}

// Wait sleeps for the configured delay. It is a no-op when disabled.
func (p *Pacer) Wait(ctx context.Context) error {
	if !p.Enabled() {
		return nil
	}
	return p.sleep(ctx, p.delay)
}

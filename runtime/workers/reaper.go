package workers

import (
	"context"
	"log/slog"
	"time"

	"chat-core/runtime"
)

// TeardownFunc is the shared disconnect path. It must be idempotent: the
// reaper and an explicit disconnect can race on the same participant and
// the second invocation has to be a no-op.
type TeardownFunc func(ctx context.Context, participantID string)

// Reaper expires idle participants. Every tracked participant is Active
// until it crosses the idle threshold; the next sweep then runs the same
// teardown as an explicit disconnect.
type Reaper struct {
	tracker   *runtime.ActivityTracker
	teardown  TeardownFunc
	threshold time.Duration
	interval  time.Duration
	log       *slog.Logger
}

func NewReaper(tracker *runtime.ActivityTracker, teardown TeardownFunc,
	threshold, interval time.Duration, log *slog.Logger) *Reaper {
	return &Reaper{
		tracker:   tracker,
		teardown:  teardown,
		threshold: threshold,
		interval:  interval,
		log:       log,
	}
}

func (r *Reaper) Run(ctx context.Context) error {
	r.log.Info("Starting inactivity reaper",
		"threshold", r.threshold, "interval", r.interval)
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			r.Sweep(ctx)
		}
	}
}

// Sweep tears down every participant idle for at least the threshold.
func (r *Reaper) Sweep(ctx context.Context) {
	cutoff := time.Now().Add(-r.threshold)
	for _, id := range r.tracker.IdleSince(cutoff) {
		r.log.Info("Expiring idle participant", "participant", id)
		r.teardown(ctx, id)
	}
}

package runtime

import (
	"sync"
	"time"
)

// ActivityTracker records the last inbound activity per participant. The
// dispatch layer touches it on every event; the reaper sweeps it on an
// interval. Sweep cost scales with the number of tracked participants.
type ActivityTracker struct {
	mu   sync.Mutex
	last map[string]time.Time
	now  func() time.Time
}

func NewActivityTracker() *ActivityTracker {
	return &ActivityTracker{last: make(map[string]time.Time), now: time.Now}
}

func (t *ActivityTracker) Touch(participantID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.last[participantID] = t.now()
}

// Forget drops a participant from tracking and reports whether it was
// present. Teardown uses the return value as its idempotency latch: the
// second of two racing teardowns sees false and stops.
func (t *ActivityTracker) Forget(participantID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.last[participantID]
	delete(t.last, participantID)
	return ok
}

// IdleSince returns the participants whose last activity is at or before
// the cutoff.
func (t *ActivityTracker) IdleSince(cutoff time.Time) []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	var idle []string
	for id, at := range t.last {
		if !at.After(cutoff) {
			idle = append(idle, id)
		}
	}
	return idle
}

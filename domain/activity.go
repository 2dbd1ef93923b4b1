package domain

import "time"

// activityCap bounds the per-account history to the most recent entries.
const activityCap = 5

type ActivityEntry struct {
	Action string
	Other  string
	At     time.Time
}

// ActivityLog is a capped record of relationship mutations on an account.
// Appending beyond capacity evicts the oldest entry.
type ActivityLog struct {
	Entries []ActivityEntry
}

func (l *ActivityLog) Append(action, other string, at time.Time) {
	l.Entries = append(l.Entries, ActivityEntry{Action: action, Other: other, At: at})
	if len(l.Entries) > activityCap {
		l.Entries = l.Entries[len(l.Entries)-activityCap:]
	}
}

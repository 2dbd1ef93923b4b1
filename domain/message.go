// Package domain contains core concepts of the presence and messaging system.
// This file defines Message state and its transition rules.
package domain

import (
	"sort"
	"time"

	"github.com/google/uuid"
)

type MessageType string

const (
	MessageText  MessageType = "text"
	MessageAudio MessageType = "audio"
)

// Message is a point-to-point message. CreatedAt, DeliveredAt and ReadAt are
// server-assigned, set at most once and forward-only: a read message is
// always delivered.
type Message struct {
	ID         uuid.UUID
	SenderID   string
	ReceiverID string
	Content    string
	Type       MessageType
	Anonymous  bool

	CreatedAt   time.Time
	DeliveredAt *time.Time
	ReadAt      *time.Time

	Edited    bool
	Reactions map[string]int
}

// MarkDelivered stamps DeliveredAt if unset. Returns true when the state
// changed, false on the idempotent repeat.
func (m *Message) MarkDelivered(at time.Time) bool {
	if m.DeliveredAt != nil {
		return false
	}
	if at.Before(m.CreatedAt) {
		at = m.CreatedAt
	}
	m.DeliveredAt = &at
	return true
}

// MarkRead stamps ReadAt if unset, forcing DeliveredAt first so read always
// implies delivered.
func (m *Message) MarkRead(at time.Time) bool {
	if m.ReadAt != nil {
		return false
	}
	m.MarkDelivered(at)
	if at.Before(*m.DeliveredAt) {
		at = *m.DeliveredAt
	}
	m.ReadAt = &at
	return true
}

func (m *Message) IsRead() bool {
	return m.ReadAt != nil
}

// React increments the per-emoji counter, starting at zero for an unseen
// emoji. Counters are additive, not per-caller deduplicated.
func (m *Message) React(emoji string) int {
	if m.Reactions == nil {
		m.Reactions = make(map[string]int)
	}
	m.Reactions[emoji]++
	return m.Reactions[emoji]
}

// PairKey is the order-independent conversation key of two participant ids.
func PairKey(a, b string) string {
	if a > b {
		a, b = b, a
	}
	return a + "|" + b
}

// ConversationSummary groups the unread messages of one sender, annotated
// with the sender's display name as resolved at query time.
type ConversationSummary struct {
	SenderID   string    `json:"senderId"`
	SenderName string    `json:"senderName"`
	Anonymous  bool      `json:"anonymous"`
	Unread     int       `json:"unread"`
	LatestAt   time.Time `json:"latestAt"`
}

// SortSummaries orders conversations strictly descending by latest unread
// message time.
func SortSummaries(summaries []ConversationSummary) {
	sort.Slice(summaries, func(i, j int) bool {
		return summaries[i].LatestAt.After(summaries[j].LatestAt)
	})
}

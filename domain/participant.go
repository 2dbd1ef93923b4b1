// Package domain contains core concepts of the presence and messaging system.
// This file defines Participant entities and related invariants.
// No runtime, network, or UI logic should be added here.
package domain

import (
	"strings"
	"time"
)

// EphemeralPrefix distinguishes the anonymous namespace: session ids carry
// it, account ids never do, so the namespace is determinable from the id
// shape alone.
const EphemeralPrefix = "anon-"

func IsEphemeralID(id string) bool {
	return strings.HasPrefix(id, EphemeralPrefix)
}

// Kind tags the two identity namespaces unified under Participant.
type Kind string

const (
	KindAccount   Kind = "account"
	KindEphemeral Kind = "ephemeral"
)

// Participant is the tagged union over Account and Session, resolved by id
// shape and consumed uniformly by the rest of the system.
type Participant struct {
	Kind    Kind
	Account *Account
	Session *Session
}

func (p Participant) ID() string {
	if p.Kind == KindAccount {
		return p.Account.ID
	}
	return p.Session.ID
}

func (p Participant) DisplayName() string {
	if p.Kind == KindAccount {
		return p.Account.DisplayName
	}
	return p.Session.DisplayName
}

func (p Participant) IsAnonymous() bool {
	return p.Kind == KindEphemeral
}

// Account is a durable, credentialed identity. Relationship edges live on
// the account record so both sides of an edge are a single-record update.
type Account struct {
	ID          string
	DisplayName string
	Region      string
	Gender      string
	Age         int

	Online     bool
	LastActive time.Time

	PrivacyNoRequests bool

	Friends        []string
	FriendRequests []string
	Blocked        []string

	Activity ActivityLog
}

func (a *Account) IsFriend(id string) bool {
	return contains(a.Friends, id)
}

func (a *Account) HasPendingFrom(id string) bool {
	return contains(a.FriendRequests, id)
}

func (a *Account) HasBlocked(id string) bool {
	return contains(a.Blocked, id)
}

// Session is a transient, credential-less identity created on first connect
// and bounded by activity.
type Session struct {
	ID          string
	DisplayName string
	Online      bool
	CreatedAt   time.Time
	LastActive  time.Time
}

// ParticipantSummary is the presence-snapshot projection of a participant,
// resolved at query time so renames are never served stale.
type ParticipantSummary struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
	Region      string `json:"region,omitempty"`
	Anonymous   bool   `json:"anonymous"`
	Online      bool   `json:"online"`
}

func contains(list []string, id string) bool {
	for _, v := range list {
		if v == id {
			return true
		}
	}
	return false
}

// Remove returns list without id, preserving order.
func Remove(list []string, id string) []string {
	out := list[:0]
	for _, v := range list {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}

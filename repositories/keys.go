// Package repositories persists accounts, ephemeral sessions, messages and
// reports in BadgerDB. Records are CBOR-encoded; keys embed 19-digit
// zero-padded UnixNano timestamps so prefix scans come back in
// chronological order.
package repositories

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"chat-core/domain"
)

const (
	accountPrefix = "acct:"
	sessionPrefix = "sess:"
	messagePrefix = "msg:"
	messageIndex  = "msgid:"
	unreadPrefix  = "unread:"
	reportPrefix  = "report:"
)

func accountKey(id string) []byte { return []byte(accountPrefix + id) }
func sessionKey(id string) []byte { return []byte(sessionPrefix + id) }

// messageKey sorts a conversation chronologically: "msg:{pair}:{ts}:{uuid}".
// The UUID tail disambiguates two messages landing on the same nanosecond.
func messageKey(m domain.Message) []byte {
	return []byte(fmt.Sprintf("%s%s:%019d:%s",
		messagePrefix, domain.PairKey(m.SenderID, m.ReceiverID),
		m.CreatedAt.UnixNano(), m.ID))
}

func messageIndexKey(id uuid.UUID) []byte {
	return []byte(messageIndex + id.String())
}

// unreadKey indexes a not-yet-read message under its receiver, so unread
// counts and conversation summaries are a single prefix scan.
func unreadKey(m domain.Message) []byte {
	return []byte(fmt.Sprintf("%s%s:%019d:%s",
		unreadPrefix, m.ReceiverID, m.CreatedAt.UnixNano(), m.ID))
}

func reportKey(id uuid.UUID, at time.Time) []byte {
	return []byte(fmt.Sprintf("%s%019d:%s", reportPrefix, at.UnixNano(), id))
}

// unreadKeyFromMessageKey rebuilds the unread index key from a stored
// message key's "{ts}:{uuid}" tail. The key, not the decoded record, is
// authoritative for the timestamp: the CBOR round-trip may not preserve
// nanosecond precision.
func unreadKeyFromMessageKey(msgKey []byte, receiverID string) []byte {
	key := string(msgKey)
	uuidSep := strings.LastIndexByte(key, ':')
	tsSep := strings.LastIndexByte(key[:uuidSep], ':')
	return []byte(unreadPrefix + receiverID + key[tsSep:])
}

//go:generate go run go.uber.org/mock/mockgen -source=message.go -destination=../mocks/mock_message_repository.go -package=mocks
package repositories

import (
	stderrors "errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"

	"chat-core/domain"
	"chat-core/errors"
)

type IMessageRepository interface {
	Store(m domain.Message) error
	Get(id uuid.UUID) (domain.Message, error)
	// Update performs an atomic read-modify-write of one message and keeps
	// the unread index consistent with the resulting read state.
	Update(id uuid.UUID, mutate func(*domain.Message) error) (domain.Message, error)
	Delete(id uuid.UUID) (domain.Message, error)
	Conversation(a, b string, limit int) ([]domain.Message, error)
	History(participantID string, limit int) ([]domain.Message, error)
	UnreadFor(receiverID string) ([]domain.Message, error)
	ClearConversation(a, b string) error
	PurgeParticipant(participantID string) error
}

type MessageRepository struct {
	db  *badger.DB
	log *slog.Logger
}

func NewMessageRepository(db *badger.DB, log *slog.Logger) *MessageRepository {
	return &MessageRepository{db: db, log: log}
}

func (r *MessageRepository) Store(m domain.Message) error {
	data, err := marshalRecord(m)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	key := messageKey(m)
	return r.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set(key, data); err != nil {
			return err
		}
		if err := txn.Set(messageIndexKey(m.ID), key); err != nil {
			return err
		}
		if !m.IsRead() {
			return txn.Set(unreadKey(m), key)
		}
		return nil
	})
}

func (r *MessageRepository) Get(id uuid.UUID) (domain.Message, error) {
	var message domain.Message
	err := r.db.View(func(txn *badger.Txn) error {
		key, err := resolveMessageKey(txn, id)
		if err != nil {
			return err
		}
		return readRecord(txn, key, &message)
	})
	return message, err
}

func (r *MessageRepository) Update(id uuid.UUID, mutate func(*domain.Message) error) (domain.Message, error) {
	var message domain.Message
	err := r.db.Update(func(txn *badger.Txn) error {
		key, err := resolveMessageKey(txn, id)
		if err != nil {
			return err
		}
		if err := readRecord(txn, key, &message); err != nil {
			return err
		}
		if err := mutate(&message); err != nil {
			return err
		}
		data, err := marshalRecord(message)
		if err != nil {
			return fmt.Errorf("marshal message: %w", err)
		}
		if err := txn.Set(key, data); err != nil {
			return err
		}
		if message.IsRead() {
			// Idempotent: the index entry may already be gone.
			return txn.Delete(unreadKeyFromMessageKey(key, message.ReceiverID))
		}
		return nil
	})
	return message, err
}

func (r *MessageRepository) Delete(id uuid.UUID) (domain.Message, error) {
	var message domain.Message
	err := r.db.Update(func(txn *badger.Txn) error {
		key, err := resolveMessageKey(txn, id)
		if err != nil {
			return err
		}
		if err := readRecord(txn, key, &message); err != nil {
			return err
		}
		return dropMessage(txn, key, message)
	})
	return message, err
}

// Conversation returns up to limit messages between a and b, latest first.
// The padded timestamp in the key makes the reverse prefix scan come back
// already ordered.
func (r *MessageRepository) Conversation(a, b string, limit int) ([]domain.Message, error) {
	var messages []domain.Message
	err := r.db.View(func(txn *badger.Txn) error {
		prefix := []byte(messagePrefix + domain.PairKey(a, b) + ":")
		options := badger.DefaultIteratorOptions
		options.Reverse = true
		it := txn.NewIterator(options)
		defer it.Close()

		// Seek past the newest possible timestamp, then walk backwards.
		seekKey := append(append([]byte{}, prefix...), []byte("9999999999999999999")...)
		for it.Seek(seekKey); it.ValidForPrefix(prefix); it.Next() {
			if limit > 0 && len(messages) == limit {
				break
			}
			var message domain.Message
			err := it.Item().Value(func(val []byte) error {
				return unmarshalRecord(val, &message)
			})
			if err != nil {
				return err
			}
			messages = append(messages, message)
		}
		return nil
	})
	return messages, err
}

// History returns the messages the participant sent or received, oldest
// first, capped to the most recent limit. Conversations are spread across
// pair prefixes, so this is a full message scan; it only runs on connect.
func (r *MessageRepository) History(participantID string, limit int) ([]domain.Message, error) {
	messages, err := r.collect(func(m domain.Message) bool {
		return m.SenderID == participantID || m.ReceiverID == participantID
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(messages, func(i, j int) bool {
		return messages[i].CreatedAt.Before(messages[j].CreatedAt)
	})
	if limit > 0 && len(messages) > limit {
		messages = messages[len(messages)-limit:]
	}
	return messages, nil
}

func (r *MessageRepository) UnreadFor(receiverID string) ([]domain.Message, error) {
	var messages []domain.Message
	err := r.db.View(func(txn *badger.Txn) error {
		prefix := []byte(unreadPrefix + receiverID + ":")
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			msgKey, err := it.Item().ValueCopy(nil)
			if err != nil {
				return err
			}
			var message domain.Message
			if err := readRecord(txn, msgKey, &message); err != nil {
				if stderrors.Is(err, errors.ErrNotFound) {
					// Dangling index entry for a deleted message.
					continue
				}
				return err
			}
			messages = append(messages, message)
		}
		return nil
	})
	return messages, err
}

func (r *MessageRepository) ClearConversation(a, b string) error {
	prefix := messagePrefix + domain.PairKey(a, b) + ":"
	return r.dropWhere(func(key string, _ domain.Message) bool {
		return strings.HasPrefix(key, prefix)
	})
}

func (r *MessageRepository) PurgeParticipant(participantID string) error {
	return r.dropWhere(func(_ string, m domain.Message) bool {
		return m.SenderID == participantID || m.ReceiverID == participantID
	})
}

func (r *MessageRepository) collect(keep func(domain.Message) bool) ([]domain.Message, error) {
	var messages []domain.Message
	err := r.db.View(func(txn *badger.Txn) error {
		prefix := []byte(messagePrefix)
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var message domain.Message
			err := it.Item().Value(func(val []byte) error {
				return unmarshalRecord(val, &message)
			})
			if err != nil {
				return err
			}
			if keep(message) {
				messages = append(messages, message)
			}
		}
		return nil
	})
	return messages, err
}

// dropWhere hard-removes every matching message together with its id and
// unread index entries, in one transaction.
func (r *MessageRepository) dropWhere(match func(key string, m domain.Message) bool) error {
	return r.db.Update(func(txn *badger.Txn) error {
		prefix := []byte(messagePrefix)
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		type victim struct {
			key     []byte
			message domain.Message
		}
		var victims []victim
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var message domain.Message
			err := it.Item().Value(func(val []byte) error {
				return unmarshalRecord(val, &message)
			})
			if err != nil {
				return err
			}
			key := it.Item().KeyCopy(nil)
			if match(string(key), message) {
				victims = append(victims, victim{key: key, message: message})
			}
		}
		for _, v := range victims {
			if err := dropMessage(txn, v.key, v.message); err != nil {
				return err
			}
		}
		return nil
	})
}

func dropMessage(txn *badger.Txn, key []byte, m domain.Message) error {
	if err := txn.Delete(key); err != nil {
		return err
	}
	if err := txn.Delete(messageIndexKey(m.ID)); err != nil {
		return err
	}
	return txn.Delete(unreadKeyFromMessageKey(key, m.ReceiverID))
}

func resolveMessageKey(txn *badger.Txn, id uuid.UUID) ([]byte, error) {
	item, err := txn.Get(messageIndexKey(id))
	if stderrors.Is(err, badger.ErrKeyNotFound) {
		return nil, errors.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errors.ErrStorage, err)
	}
	return item.ValueCopy(nil)
}

//go:generate go run go.uber.org/mock/mockgen -source=session.go -destination=../mocks/mock_session_repository.go -package=mocks
package repositories

import (
	stderrors "errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"

	"chat-core/domain"
)

type ISessionRepository interface {
	Get(id string) (domain.Session, error)
	Put(session domain.Session) error
	// Delete is idempotent: removing an absent session is not an error.
	Delete(id string) error
	List() ([]domain.Session, error)
}

// SessionRepository stores ephemeral sessions. They live in the same Badger
// instance as accounts under their own prefix; the reaper is what bounds
// their lifetime, not the storage engine.
type SessionRepository struct {
	db *badger.DB
}

func NewSessionRepository(db *badger.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

func (r *SessionRepository) Get(id string) (domain.Session, error) {
	var session domain.Session
	err := r.db.View(func(txn *badger.Txn) error {
		return readRecord(txn, sessionKey(id), &session)
	})
	return session, err
}

func (r *SessionRepository) Put(session domain.Session) error {
	data, err := marshalRecord(session)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}
	return r.db.Update(func(txn *badger.Txn) error {
		return txn.Set(sessionKey(session.ID), data)
	})
}

func (r *SessionRepository) Delete(id string) error {
	err := r.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(sessionKey(id))
	})
	if stderrors.Is(err, badger.ErrKeyNotFound) {
		return nil
	}
	return err
}

func (r *SessionRepository) List() ([]domain.Session, error) {
	var sessions []domain.Session
	err := r.db.View(func(txn *badger.Txn) error {
		options := badger.DefaultIteratorOptions
		prefix := []byte(sessionPrefix)
		it := txn.NewIterator(options)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var session domain.Session
			err := it.Item().Value(func(val []byte) error {
				return unmarshalRecord(val, &session)
			})
			if err != nil {
				return err
			}
			sessions = append(sessions, session)
		}
		return nil
	})
	return sessions, err
}

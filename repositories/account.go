//go:generate go run go.uber.org/mock/mockgen -source=account.go -destination=../mocks/mock_account_repository.go -package=mocks
package repositories

import (
	stderrors "errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"

	"chat-core/domain"
	"chat-core/errors"
)

type IAccountRepository interface {
	Get(id string) (domain.Account, error)
	Put(account domain.Account) error
	// Update performs an atomic read-modify-write of a single account.
	Update(id string, mutate func(*domain.Account) error) (domain.Account, error)
	SetOnline(id string, online bool, at time.Time) error
	// ResetPresence marks every account offline. Run once at startup: no
	// connection survives a restart, so stored online flags are stale.
	ResetPresence() error
}

type AccountRepository struct {
	db *badger.DB
}

func NewAccountRepository(db *badger.DB) *AccountRepository {
	return &AccountRepository{db: db}
}

func (r *AccountRepository) Get(id string) (domain.Account, error) {
	var account domain.Account
	err := r.db.View(func(txn *badger.Txn) error {
		return readRecord(txn, accountKey(id), &account)
	})
	return account, err
}

func (r *AccountRepository) Put(account domain.Account) error {
	data, err := marshalRecord(account)
	if err != nil {
		return fmt.Errorf("marshal account: %w", err)
	}
	return r.db.Update(func(txn *badger.Txn) error {
		return txn.Set(accountKey(account.ID), data)
	})
}

func (r *AccountRepository) Update(id string, mutate func(*domain.Account) error) (domain.Account, error) {
	var account domain.Account
	err := r.db.Update(func(txn *badger.Txn) error {
		if err := readRecord(txn, accountKey(id), &account); err != nil {
			return err
		}
		if err := mutate(&account); err != nil {
			return err
		}
		data, err := marshalRecord(account)
		if err != nil {
			return fmt.Errorf("marshal account: %w", err)
		}
		return txn.Set(accountKey(id), data)
	})
	return account, err
}

func (r *AccountRepository) SetOnline(id string, online bool, at time.Time) error {
	_, err := r.Update(id, func(a *domain.Account) error {
		a.Online = online
		if !online {
			a.LastActive = at
		}
		return nil
	})
	return err
}

func (r *AccountRepository) ResetPresence() error {
	return r.db.Update(func(txn *badger.Txn) error {
		options := badger.DefaultIteratorOptions
		prefix := []byte(accountPrefix)
		it := txn.NewIterator(options)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var account domain.Account
			err := it.Item().Value(func(val []byte) error {
				return unmarshalRecord(val, &account)
			})
			if err != nil {
				return err
			}
			if !account.Online {
				continue
			}
			account.Online = false
			data, err := marshalRecord(account)
			if err != nil {
				return err
			}
			if err := txn.Set(accountKey(account.ID), data); err != nil {
				return err
			}
		}
		return nil
	})
}

// readRecord loads and decodes one CBOR record, mapping a missing key to
// the domain's NotFound error.
func readRecord(txn *badger.Txn, key []byte, out any) error {
	item, err := txn.Get(key)
	if stderrors.Is(err, badger.ErrKeyNotFound) {
		return errors.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("%w: %v", errors.ErrStorage, err)
	}
	return item.Value(func(val []byte) error {
		return unmarshalRecord(val, out)
	})
}

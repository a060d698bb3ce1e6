// internal/storage/badger_store.go
package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/dgraph-io/badger/v4"
)

var (
	ErrNotFound = errors.New("entity not found")
	ErrExists   = errors.New("entity already exists")
)

// Entity represents any storable entity with an ID
type Entity interface {
	GetID() string
}

// BadgerStore provides JSON entity storage under one key prefix
type BadgerStore struct {
	db     *badger.DB
	prefix string
}

func NewBadgerStore(db *badger.DB, prefix string) *BadgerStore {
	return &BadgerStore{
		db:     db,
		prefix: prefix,
	}
}

func (s *BadgerStore) makeKey(id string) []byte {
	return []byte(fmt.Sprintf("%s:%s", s.prefix, id))
}

func (s *BadgerStore) stripPrefix(key []byte) string {
	return strings.TrimPrefix(string(key), fmt.Sprintf("%s:", s.prefix))
}

// Tx binds the store to a caller-owned transaction, so writes under several
// prefixes can commit together.
type Tx struct {
	store *BadgerStore
	txn   *badger.Txn
}

func (s *BadgerStore) With(txn *badger.Txn) *Tx {
	return &Tx{store: s, txn: txn}
}

func (t *Tx) Exists(id string) (bool, error) {
	_, err := t.txn.Get(t.store.makeKey(id))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return false, nil
	}
	return err == nil, err
}

func (t *Tx) Get(id string, entity any) error {
	item, err := t.txn.Get(t.store.makeKey(id))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return fmt.Errorf("%s %s: %w", t.store.prefix, id, ErrNotFound)
	}
	if err != nil {
		return err
	}
	return item.Value(func(val []byte) error {
		return json.Unmarshal(val, entity)
	})
}

// Put writes entity whether or not it already exists.
func (t *Tx) Put(entity Entity) error {
	if entity.GetID() == "" {
		return fmt.Errorf("entity ID cannot be empty")
	}
	data, err := json.Marshal(entity)
	if err != nil {
		return fmt.Errorf("marshaling entity: %w", err)
	}
	return t.txn.Set(t.store.makeKey(entity.GetID()), data)
}

func (t *Tx) Create(entity Entity) error {
	exists, err := t.Exists(entity.GetID())
	if err != nil {
		return err
	}
	if exists {
		return fmt.Errorf("%s %s: %w", t.store.prefix, entity.GetID(), ErrExists)
	}
	return t.Put(entity)
}

func (t *Tx) Update(entity Entity) error {
	exists, err := t.Exists(entity.GetID())
	if err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("%s %s: %w", t.store.prefix, entity.GetID(), ErrNotFound)
	}
	return t.Put(entity)
}

func (t *Tx) Delete(id string) error {
	exists, err := t.Exists(id)
	if err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("%s %s: %w", t.store.prefix, id, ErrNotFound)
	}
	return t.txn.Delete(t.store.makeKey(id))
}

// Scan calls fn for every entity whose ID starts with idPrefix, in key order.
func (t *Tx) Scan(idPrefix string, fn func(id string, val []byte) error) error {
	opts := badger.DefaultIteratorOptions
	it := t.txn.NewIterator(opts)
	defer it.Close()

	prefix := t.store.makeKey(idPrefix)
	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		item := it.Item()
		id := t.store.stripPrefix(item.KeyCopy(nil))
		if err := item.Value(func(val []byte) error {
			return fn(id, val)
		}); err != nil {
			return err
		}
	}
	return nil
}

func (s *BadgerStore) Create(entity Entity) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return s.With(txn).Create(entity)
	})
}

func (s *BadgerStore) Get(id string, entity any) error {
	return s.db.View(func(txn *badger.Txn) error {
		return s.With(txn).Get(id, entity)
	})
}

func (s *BadgerStore) Update(entity Entity) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return s.With(txn).Update(entity)
	})
}

func (s *BadgerStore) Delete(id string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return s.With(txn).Delete(id)
	})
}

func (s *BadgerStore) Scan(idPrefix string, fn func(id string, val []byte) error) error {
	return s.db.View(func(txn *badger.Txn) error {
		return s.With(txn).Scan(idPrefix, fn)
	})
}

// List decodes every entity under the prefix into results, a pointer to a slice.
func (s *BadgerStore) List(results interface{}) error {
	var values []json.RawMessage
	err := s.Scan("", func(_ string, val []byte) error {
		values = append(values, append(json.RawMessage(nil), val...))
		return nil
	})
	if err != nil {
		return fmt.Errorf("listing entities: %w", err)
	}

	data, err := json.Marshal(values)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, results)
}

package storage

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
)

// stampSize is the length of the write-time header on every badger value.
const stampSize = 8

// BadgerStore keeps blobs in an embedded badger database. Each value is
// prefixed with the write stamp in unix nanoseconds.
type BadgerStore struct {
	db *badger.DB
}

// NewBadgerStore opens (or creates) a database at dir. An empty dir opens an
// in-memory database.
func NewBadgerStore(dir string) (*BadgerStore, error) {
	opts := badger.DefaultOptions(dir).WithLogger(nil)
	if dir == "" {
		opts = opts.WithInMemory(true)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger: %w", err)
	}
	return &BadgerStore{db: db}, nil
}

func (s *BadgerStore) read(key string) (data []byte, at time.Time, err error) {
	err = s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("get %s: %w", key, err)
		}
		return item.Value(func(val []byte) error {
			if len(val) < stampSize {
				return fmt.Errorf("badger value for %s is truncated", key)
			}
			at = time.Unix(0, int64(binary.BigEndian.Uint64(val[:stampSize])))
			data = append([]byte(nil), val[stampSize:]...)
			return nil
		})
	})
	return data, at, err
}

func (s *BadgerStore) Get(_ context.Context, key string) ([]byte, error) {
	data, _, err := s.read(key)
	return data, err
}

func (s *BadgerStore) ModTime(_ context.Context, key string) (time.Time, error) {
	_, at, err := s.read(key)
	return at, err
}

func (s *BadgerStore) Put(_ context.Context, key string, data []byte, at time.Time) error {
	if err := ValidKey(key); err != nil {
		return err
	}
	val := make([]byte, stampSize+len(data))
	binary.BigEndian.PutUint64(val[:stampSize], uint64(at.UnixNano()))
	copy(val[stampSize:], data)
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), val)
	})
}

func (s *BadgerStore) Delete(_ context.Context, key string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(key))
	})
}

func (s *BadgerStore) List(_ context.Context, prefix string) ([]string, error) {
	var keys []string
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		p := []byte(prefix)
		for it.Seek(p); it.ValidForPrefix(p); it.Next() {
			keys = append(keys, string(it.Item().KeyCopy(nil)))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", prefix, err)
	}
	return keys, nil
}

func (s *BadgerStore) Close() error {
	return s.db.Close()
}

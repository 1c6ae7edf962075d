package badgerstore

import (
	"encoding/json"
	"errors"
	"fmt"

	badger "github.com/dgraph-io/badger/v4"

	"haccp-training-service/internal/domain"
)

// Store is the local device storage: a small embedded BadgerDB holding the
// clue ledger and the offline progress mirror. It satisfies app.KV and
// app.ProgressMirror. Not shared across devices; survives restarts.
type Store struct {
	db *badger.DB
}

// Open opens (or creates) the store at path. An empty path opens an
// in-memory instance for tests.
func Open(path string) (*Store, error) {
	opts := badger.DefaultOptions(path).WithLogger(nil)
	if path == "" {
		opts = opts.WithInMemory(true)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open local store: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Get(key string) ([]byte, bool, error) {
	var value []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		value, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return value, true, nil
}

func (s *Store) Set(key string, value []byte) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), value)
	})
}

func (s *Store) DeletePrefix(prefix string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.IteratorOptions{Prefix: []byte(prefix)})
		defer it.Close()
		var keys [][]byte
		for it.Rewind(); it.Valid(); it.Next() {
			keys = append(keys, it.Item().KeyCopy(nil))
		}
		for _, key := range keys {
			if err := txn.Delete(key); err != nil {
				return err
			}
		}
		return nil
	})
}

func mirrorKey(playerID string, level int) string {
	return fmt.Sprintf("progress:%s:%d", playerID, level)
}

// Put stores the last known progress snapshot for offline fallback.
func (s *Store) Put(rec domain.ProgressRecord) error {
	raw, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return s.Set(mirrorKey(rec.PlayerID, rec.Level), raw)
}

// GetProgress returns the mirrored record, if one was ever stored on this
// device.
func (s *Store) GetProgress(playerID string, level int) (domain.ProgressRecord, bool) {
	raw, ok, err := s.Get(mirrorKey(playerID, level))
	if err != nil || !ok {
		return domain.ProgressRecord{}, false
	}
	var rec domain.ProgressRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return domain.ProgressRecord{}, false
	}
	return rec, true
}

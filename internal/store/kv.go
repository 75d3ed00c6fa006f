package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// SetValue upserts a key-value pair in the kv table.
func (s *Store) SetValue(key, value string) error {
	_, err := s.db.Exec(
		`INSERT INTO kv (key, value, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, time.Now(),
	)
	if err != nil {
		return fmt.Errorf("set %s: %w", key, err)
	}
	return nil
}

// GetValue returns the value stored under key. ok is false if the key is
// missing.
func (s *Store) GetValue(key string) (value string, ok bool, err error) {
	err = s.db.QueryRow(`SELECT value FROM kv WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get %s: %w", key, err)
	}
	return value, true, nil
}

// RemoveValue deletes key. Removing a missing key is not an error.
func (s *Store) RemoveValue(key string) error {
	if _, err := s.db.Exec(`DELETE FROM kv WHERE key = ?`, key); err != nil {
		return fmt.Errorf("remove %s: %w", key, err)
	}
	return nil
}

// KVStore adapts a Store to the kv.Store interface.
type KVStore struct {
	s *Store
}

// KV returns the kv.Store view of the database.
func (s *Store) KV() *KVStore {
	return &KVStore{s: s}
}

func (k *KVStore) Get(key string) (string, bool, error) { return k.s.GetValue(key) }
func (k *KVStore) Set(key, value string) error          { return k.s.SetValue(key, value) }
func (k *KVStore) Remove(key string) error              { return k.s.RemoveValue(key) }

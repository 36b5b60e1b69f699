package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// SlotStore keeps opaque blobs under string keys in SQLite.
type SlotStore struct {
	db *sql.DB
}

func NewSlotStore(db *sql.DB) *SlotStore {
	return &SlotStore{db: db}
}

// Load returns the blob stored under key, or (nil, nil) if there is none.
func (s *SlotStore) Load(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	err := s.db.QueryRowContext(ctx, `
		SELECT value FROM kv_slots WHERE key = ?
	`, key).Scan(&value)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load slot %q: %w", key, err)
	}

	return value, nil
}

func (s *SlotStore) Save(ctx context.Context, key string, data []byte) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO kv_slots (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = datetime('now')
	`, key, data)
	if err != nil {
		return fmt.Errorf("failed to save slot %q: %w", key, err)
	}

	return nil
}

package db

import (
	"context"
	"database/sql"

	"github.com/hpungsan/grimoire/internal/errors"
)

// Setting is one key-value pair from the settings table.
type Setting struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// SettingsStore is the flat key-value store for application settings
// such as the LLM provider and API key. It is independent of items.
type SettingsStore struct {
	db *sql.DB
}

// NewSettingsStore wraps an initialized database handle.
func NewSettingsStore(db *sql.DB) *SettingsStore {
	return &SettingsStore{db: db}
}

// Get returns the value of key. The second result is false when unset.
func (s *SettingsStore) Get(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM settings WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, errors.NewStorageFailure(err)
	}
	return value, true, nil
}

// Set stores value under key, replacing any previous value.
func (s *SettingsStore) Set(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO settings (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, key, value)
	if err != nil {
		return errors.NewStorageFailure(err)
	}
	return nil
}

// Delete removes key. Removing an unset key is not an error.
func (s *SettingsStore) Delete(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM settings WHERE key = ?`, key); err != nil {
		return errors.NewStorageFailure(err)
	}
	return nil
}

// All returns every setting ordered by key.
func (s *SettingsStore) All(ctx context.Context) ([]Setting, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT key, value FROM settings ORDER BY key`)
	if err != nil {
		return nil, errors.NewStorageFailure(err)
	}
	defer rows.Close()

	var settings []Setting
	for rows.Next() {
		var st Setting
		if err := rows.Scan(&st.Key, &st.Value); err != nil {
			return nil, errors.NewStorageFailure(err)
		}
		settings = append(settings, st)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewStorageFailure(err)
	}
	return settings, nil
}

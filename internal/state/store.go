// Package state persists the last known settings of each simulated device
// so a restarted emulator resumes where it left off.
//
// It keeps exactly one row per device label. It is not a command log.
package state

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Store reads and writes device settings in the device_settings table.
type Store struct {
	db *sql.DB
}

// NewStore creates a settings store on an open, migrated database.
//
// Parameters:
//   - db: Open SQLite connection used for queries
//
// Returns:
//   - *Store: Store instance ready for use
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Load decodes the saved settings for label into v.
//
// Returns:
//   - bool: false when nothing has been saved for label yet
//   - error: On query or decode failure
func (s *Store) Load(ctx context.Context, label string, v any) (bool, error) {
	if label == "" {
		return false, fmt.Errorf("device label is required")
	}

	var raw string
	err := s.db.QueryRowContext(ctx,
		"SELECT settings FROM device_settings WHERE label = ?", label,
	).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("loading settings for %s: %w", label, err)
	}

	if err := json.Unmarshal([]byte(raw), v); err != nil {
		return false, fmt.Errorf("decoding settings for %s: %w", label, err)
	}
	return true, nil
}

// Save replaces the settings stored for label with v.
func (s *Store) Save(ctx context.Context, label string, v any) error {
	if label == "" {
		return fmt.Errorf("device label is required")
	}

	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encoding settings for %s: %w", label, err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO device_settings (label, settings, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(label) DO UPDATE SET settings = excluded.settings, updated_at = excluded.updated_at`,
		label,
		string(raw),
		time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("saving settings for %s: %w", label, err)
	}
	return nil
}

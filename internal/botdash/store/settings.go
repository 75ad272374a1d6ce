package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// ErrSettingNotFound is returned by Settings.Get for unknown keys.
var ErrSettingNotFound = errors.New("store: setting not found")

// Settings is the per-bot key/value collaborator read at deploy time.
type Settings struct {
	s *Store
}

// Settings returns the settings view of the store.
func (s *Store) Settings() *Settings {
	return &Settings{s: s}
}

// Get returns one value.
func (st *Settings) Get(ctx context.Context, botID, key string) (string, error) {
	var value string
	err := st.s.db.QueryRowContext(ctx,
		`SELECT value FROM bot_settings WHERE bot_id = ? AND key = ?`, botID, key,
	).Scan(&value)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", fmt.Errorf("%w: %s/%s", ErrSettingNotFound, botID, key)
		}
		return "", fmt.Errorf("get setting %s/%s: %w", botID, key, err)
	}
	return value, nil
}

// Set upserts one value. The bot must exist.
func (st *Settings) Set(ctx context.Context, botID, key, value string) error {
	_, err := st.s.db.ExecContext(ctx, `
		INSERT INTO bot_settings (bot_id, key, value, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(bot_id, key) DO UPDATE SET
			value      = excluded.value,
			updated_at = excluded.updated_at
	`, botID, key, value, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("set setting %s/%s: %w", botID, key, err)
	}
	return nil
}

// Delete removes one key. Missing keys are not an error.
func (st *Settings) Delete(ctx context.Context, botID, key string) error {
	if _, err := st.s.db.ExecContext(ctx,
		`DELETE FROM bot_settings WHERE bot_id = ? AND key = ?`, botID, key,
	); err != nil {
		return fmt.Errorf("delete setting %s/%s: %w", botID, key, err)
	}
	return nil
}

// List returns every setting of botID. An empty map (not nil) is returned
// when there are none.
func (st *Settings) List(ctx context.Context, botID string) (map[string]string, error) {
	rows, err := st.s.db.QueryContext(ctx,
		`SELECT key, value FROM bot_settings WHERE bot_id = ? ORDER BY key`, botID)
	if err != nil {
		return nil, fmt.Errorf("list settings of %s: %w", botID, err)
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, fmt.Errorf("scan setting: %w", err)
		}
		out[k] = v
	}
	return out, rows.Err()
}

// Replace swaps the whole settings map of botID in one transaction.
func (st *Settings) Replace(ctx context.Context, botID string, values map[string]string) error {
	tx, err := st.s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("replace settings of %s: %w", botID, err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM bot_settings WHERE bot_id = ?`, botID); err != nil {
		return fmt.Errorf("replace settings of %s: %w", botID, err)
	}
	now := time.Now().UTC()
	for k, v := range values {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO bot_settings (bot_id, key, value, updated_at) VALUES (?, ?, ?, ?)`,
			botID, k, v, now,
		); err != nil {
			return fmt.Errorf("replace settings of %s: %s: %w", botID, k, err)
		}
	}
	return tx.Commit()
}

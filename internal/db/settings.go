package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Setting keys shared between the engine, the network monitor and the UI.
const (
	SettingLastSyncSuccess = "last_sync_success"
	SettingLastSyncAttempt = "last_sync_attempt"
	SettingLastOnline      = "last_online"
)

func setSettingTx(tx *sql.Tx, key, value string, now time.Time) error {
	_, err := tx.Exec(`INSERT OR REPLACE INTO settings (key, value, updated_at) VALUES (?, ?, ?)`,
		key, value, now.UnixNano())
	return err
}

// GetSetting returns the value stored under key and whether it exists.
func (db *DB) GetSetting(ctx context.Context, key string) (string, bool, error) {
	if err := db.readable(); err != nil {
		return "", false, err
	}
	var value string
	err := db.conn.QueryRowContext(ctx, `SELECT value FROM settings WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return value, true, nil
}

// SetSetting stores value under key.
func (db *DB) SetSetting(ctx context.Context, key, value string) error {
	return db.withWriteLock(func() error {
		_, err := db.conn.ExecContext(ctx, `INSERT OR REPLACE INTO settings (key, value, updated_at) VALUES (?, ?, ?)`,
			key, value, time.Now().UnixNano())
		if err != nil {
			return fmt.Errorf("set setting %s: %w", key, err)
		}
		return nil
	})
}

// DeleteSetting removes key. Missing keys are not an error.
func (db *DB) DeleteSetting(ctx context.Context, key string) error {
	return db.withWriteLock(func() error {
		_, err := db.conn.ExecContext(ctx, `DELETE FROM settings WHERE key = ?`, key)
		return err
	})
}

// SetTimeSetting stores t under key in RFC 3339 form.
func (db *DB) SetTimeSetting(ctx context.Context, key string, t time.Time) error {
	return db.SetSetting(ctx, key, t.UTC().Format(time.RFC3339Nano))
}

// GetTimeSetting returns the time stored under key, or the zero time.
func (db *DB) GetTimeSetting(ctx context.Context, key string) (time.Time, error) {
	v, ok, err := db.GetSetting(ctx, key)
	if err != nil || !ok {
		return time.Time{}, err
	}
	t, err := time.Parse(time.RFC3339Nano, v)
	if err != nil {
		return time.Time{}, fmt.Errorf("setting %s: %w", key, err)
	}
	return t, nil
}

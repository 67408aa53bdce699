package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/marcus/nhatky/internal/models"
)

// SyncCounts returns how much local work is not yet accepted by the server.
func (db *DB) SyncCounts(ctx context.Context) (models.SyncCounts, error) {
	var c models.SyncCounts
	if err := db.readable(); err != nil {
		return c, err
	}
	err := db.conn.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM timeline_entries WHERE sync_status = 'pending'),
			(SELECT COUNT(*) FROM timeline_entries WHERE sync_status = 'error'),
			(SELECT COUNT(*) FROM sync_queue WHERE dead = 1)
	`).Scan(&c.Pending, &c.Error, &c.Dead)
	return c, err
}

func insertConflictTx(tx *sql.Tx, entryID, localData, remoteData string, at time.Time) error {
	_, err := tx.Exec(`INSERT INTO sync_conflicts (entry_id, local_data, remote_data, detected_at) VALUES (?, ?, ?, ?)`,
		entryID, localData, remoteData, at.UnixNano())
	return err
}

// ListConflicts returns recent conflicts, most recent first.
func (db *DB) ListConflicts(ctx context.Context, limit int) ([]models.SyncConflict, error) {
	if err := db.readable(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 50
	}
	rows, err := db.conn.QueryContext(ctx, `
		SELECT id, entry_id, COALESCE(local_data,'null'), COALESCE(remote_data,'null'), detected_at
		FROM sync_conflicts
		ORDER BY id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var conflicts []models.SyncConflict
	for rows.Next() {
		var c models.SyncConflict
		var ts int64
		if err := rows.Scan(&c.ID, &c.EntryID, &c.LocalData, &c.RemoteData, &ts); err != nil {
			return nil, err
		}
		c.DetectedAt = time.Unix(0, ts)
		conflicts = append(conflicts, c)
	}
	return conflicts, rows.Err()
}

// ClearAll erases every collection, as on logout. It holds the write lock
// for the whole erase so no write interleaves with it.
func (db *DB) ClearAll(ctx context.Context) error {
	tables := []string{
		"timeline_entries", "sync_queue", "settings", "response_cache",
		"seasons", "stages", "tasks", "sync_conflicts", "local_tombstones",
	}
	err := db.withTx(ctx, func(tx *sql.Tx) error {
		for _, t := range tables {
			if _, err := tx.Exec(`DELETE FROM ` + t); err != nil {
				return fmt.Errorf("clear %s: %w", t, err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	db.log.Info("store: cleared all collections")
	return nil
}

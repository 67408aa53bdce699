package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/marcus/nhatky/internal/models"
)

func referenceTable(kind models.ReferenceKind) (string, error) {
	if !kind.Valid() {
		return "", fmt.Errorf("unknown reference collection %q", kind)
	}
	return string(kind), nil
}

func refreshedAtKey(kind models.ReferenceKind) string {
	return "refreshed_at:" + string(kind)
}

// StoreReferenceData replaces a reference collection wholesale in one
// transaction and stamps the refresh time.
func (db *DB) StoreReferenceData(ctx context.Context, kind models.ReferenceKind, records []models.ReferenceRecord) error {
	table, err := referenceTable(kind)
	if err != nil {
		return err
	}
	now := time.Now()
	err = db.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.Exec(`DELETE FROM ` + table); err != nil {
			return err
		}
		var stmt *sql.Stmt
		if kind == models.RefTasks {
			stmt, err = tx.Prepare(`INSERT OR REPLACE INTO tasks (id, stage_id, body, refreshed_at) VALUES (?, ?, ?, ?)`)
		} else {
			stmt, err = tx.Prepare(`INSERT OR REPLACE INTO ` + table + ` (id, body, refreshed_at) VALUES (?, ?, ?)`)
		}
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, r := range records {
			if kind == models.RefTasks {
				stageID := r.StageID
				if stageID == "" {
					stageID = bodyStageID(r.Body)
				}
				_, err = stmt.Exec(r.ID, stageID, string(r.Body), now.UnixNano())
			} else {
				_, err = stmt.Exec(r.ID, string(r.Body), now.UnixNano())
			}
			if err != nil {
				return fmt.Errorf("insert %s %s: %w", kind, r.ID, err)
			}
		}
		return setSettingTx(tx, refreshedAtKey(kind), now.UTC().Format(time.RFC3339Nano), now)
	})
	if err != nil {
		return fmt.Errorf("store %s: %w", kind, err)
	}
	return nil
}

// GetReferenceData returns a reference collection in the order it was stored.
func (db *DB) GetReferenceData(ctx context.Context, kind models.ReferenceKind) ([]models.ReferenceRecord, error) {
	table, err := referenceTable(kind)
	if err != nil {
		return nil, err
	}
	if err := db.readable(); err != nil {
		return nil, err
	}
	rows, err := db.conn.QueryContext(ctx, `SELECT id, body FROM `+table+` ORDER BY rowid`)
	if err != nil {
		return nil, err
	}
	records, err := scanReferenceRows(rows)
	if err != nil {
		return nil, err
	}
	if kind == models.RefTasks {
		for i := range records {
			records[i].StageID = bodyStageID(records[i].Body)
		}
	}
	return records, nil
}

// GetTasksByStageID returns tasks belonging to stageID using the stage index.
// Rows the index cannot answer (no stage_id column, or rows stored before it
// was backfilled) are found by scanning task bodies instead.
func (db *DB) GetTasksByStageID(ctx context.Context, stageID string) ([]models.ReferenceRecord, error) {
	if err := db.readable(); err != nil {
		return nil, err
	}
	rows, err := db.conn.QueryContext(ctx, `SELECT id, body FROM tasks WHERE stage_id = ? ORDER BY rowid`, stageID)
	if err == nil {
		var records []models.ReferenceRecord
		records, err = scanReferenceRows(rows)
		if err == nil && len(records) > 0 {
			for i := range records {
				records[i].StageID = stageID
			}
			return records, nil
		}
	}
	if err != nil {
		db.log.Debug("store: task index unavailable, scanning", "err", err)
	}

	all, err := db.GetReferenceData(ctx, models.RefTasks)
	if err != nil {
		return nil, err
	}
	var out []models.ReferenceRecord
	for _, r := range all {
		if r.StageID == stageID {
			out = append(out, r)
		}
	}
	return out, nil
}

// ReferenceRefreshedAt returns when kind was last replaced, or the zero
// time if it never was.
func (db *DB) ReferenceRefreshedAt(ctx context.Context, kind models.ReferenceKind) (time.Time, error) {
	return db.GetTimeSetting(ctx, refreshedAtKey(kind))
}

func scanReferenceRows(rows *sql.Rows) ([]models.ReferenceRecord, error) {
	defer rows.Close()
	var records []models.ReferenceRecord
	for rows.Next() {
		var r models.ReferenceRecord
		var body string
		if err := rows.Scan(&r.ID, &body); err != nil {
			return nil, err
		}
		r.Body = json.RawMessage(body)
		records = append(records, r)
	}
	return records, rows.Err()
}

func bodyStageID(body json.RawMessage) string {
	var probe struct {
		StageID string `json:"stageId"`
	}
	if err := json.Unmarshal(body, &probe); err != nil {
		return ""
	}
	return probe.StageID
}

package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/marcus/nhatky/internal/models"
)

// RetryPolicy governs how failed queue items are retried. The zero value
// retries every item on every pass, forever.
type RetryPolicy struct {
	// MaxAttempts dead-letters an item after this many failures. 0 = never.
	MaxAttempts int
	// BaseDelay is the wait after the first failure, doubled per failure.
	// 0 retries on the next pass.
	BaseDelay time.Duration
	// MaxDelay caps the backoff. 0 = uncapped.
	MaxDelay time.Duration
}

// Backoff returns the delay before the next attempt after the given number
// of consecutive failures.
func (p RetryPolicy) Backoff(failures int) time.Duration {
	if p.BaseDelay <= 0 || failures <= 0 {
		return 0
	}
	d := p.BaseDelay
	for i := 1; i < failures; i++ {
		if p.MaxDelay > 0 && d >= p.MaxDelay {
			break
		}
		if d > time.Duration(1<<62)/2 {
			break
		}
		d *= 2
	}
	if p.MaxDelay > 0 && d > p.MaxDelay {
		d = p.MaxDelay
	}
	return d
}

// Exhausted reports whether an item with this many failures is dead.
func (p RetryPolicy) Exhausted(failures int) bool {
	return p.MaxAttempts > 0 && failures >= p.MaxAttempts
}

// enqueueTx writes the single queue item for entryID. An existing item keeps
// its queue position and has its retry state reset.
func enqueueTx(tx *sql.Tx, entryID string, op models.Operation, payload []byte, revision int64) error {
	_, err := tx.Exec(`
		INSERT INTO sync_queue (entry_id, operation, payload, enqueued_at, revision, retry_count, next_attempt_at, dead, last_error)
		VALUES (?, ?, ?, ?, ?, 0, 0, 0, '')
		ON CONFLICT(entry_id) DO UPDATE SET
			operation = excluded.operation,
			payload = excluded.payload,
			revision = excluded.revision,
			retry_count = 0,
			next_attempt_at = 0,
			dead = 0,
			last_error = ''
	`, entryID, string(op), string(payload), time.Now().UnixNano(), revision)
	if err != nil {
		return fmt.Errorf("enqueue %s: %w", entryID, err)
	}
	return nil
}

const queueColumns = `seq, entry_id, operation, payload, enqueued_at, revision, retry_count, next_attempt_at, dead, last_error`

func scanQueueRows(rows *sql.Rows) ([]models.SyncQueueItem, error) {
	defer rows.Close()
	var items []models.SyncQueueItem
	for rows.Next() {
		var (
			it                 models.SyncQueueItem
			op, payload        string
			enqueuedAt, nextAt int64
			dead               int
		)
		if err := rows.Scan(&it.Seq, &it.EntryID, &op, &payload, &enqueuedAt, &it.Revision,
			&it.RetryCount, &nextAt, &dead, &it.LastError); err != nil {
			return nil, err
		}
		it.Operation = models.Operation(op)
		it.Payload = []byte(payload)
		it.EnqueuedAt = time.Unix(0, enqueuedAt)
		if nextAt > 0 {
			it.NextAttemptAt = time.Unix(0, nextAt)
		}
		it.Dead = dead != 0
		items = append(items, it)
	}
	return items, rows.Err()
}

// ListQueue returns live queue items due at now, in queue order.
func (db *DB) ListQueue(ctx context.Context, now time.Time) ([]models.SyncQueueItem, error) {
	if err := db.readable(); err != nil {
		return nil, err
	}
	rows, err := db.conn.QueryContext(ctx, `
		SELECT `+queueColumns+` FROM sync_queue
		WHERE dead = 0 AND next_attempt_at <= ?
		ORDER BY seq
	`, now.UnixNano())
	if err != nil {
		return nil, err
	}
	return scanQueueRows(rows)
}

// ListAllQueue returns every queue item including dead and deferred ones.
func (db *DB) ListAllQueue(ctx context.Context) ([]models.SyncQueueItem, error) {
	if err := db.readable(); err != nil {
		return nil, err
	}
	rows, err := db.conn.QueryContext(ctx, `SELECT `+queueColumns+` FROM sync_queue ORDER BY seq`)
	if err != nil {
		return nil, err
	}
	return scanQueueRows(rows)
}

// FailQueueItem records a failed remote call for item: the entry goes to
// error state and the item is scheduled per policy, or dead-lettered once
// the policy is exhausted. A failure for an item superseded by a newer local
// write only touches the entry's error reason.
func (db *DB) FailQueueItem(ctx context.Context, item models.SyncQueueItem, reason string, policy RetryPolicy) error {
	err := db.withTx(ctx, func(tx *sql.Tx) error {
		var retries int
		var revision int64
		err := tx.QueryRow(`SELECT retry_count, revision FROM sync_queue WHERE entry_id = ?`, item.EntryID).Scan(&retries, &revision)
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		if err != nil {
			return err
		}
		if revision != item.Revision {
			_, err := tx.Exec(`UPDATE timeline_entries SET sync_error = ? WHERE id = ?`, reason, item.EntryID)
			return err
		}

		retries++
		var nextAt int64
		if d := policy.Backoff(retries); d > 0 {
			nextAt = time.Now().Add(d).UnixNano()
		}
		dead := 0
		if policy.Exhausted(retries) {
			dead = 1
		}
		if _, err := tx.Exec(`
			UPDATE sync_queue SET retry_count = ?, next_attempt_at = ?, dead = ?, last_error = ?
			WHERE entry_id = ?
		`, retries, nextAt, dead, reason, item.EntryID); err != nil {
			return err
		}
		_, err = tx.Exec(`UPDATE timeline_entries SET sync_status = ?, sync_error = ? WHERE id = ?`,
			models.SyncError, reason, item.EntryID)
		return err
	})
	if err != nil {
		return fmt.Errorf("fail queue item %s: %w", item.EntryID, err)
	}
	return nil
}

// RequeueDead returns dead-lettered items to the live queue with their retry
// state reset. It returns how many items were revived.
func (db *DB) RequeueDead(ctx context.Context) (int, error) {
	var n int64
	err := db.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.Exec(`UPDATE sync_queue SET dead = 0, retry_count = 0, next_attempt_at = 0 WHERE dead = 1`)
		if err != nil {
			return err
		}
		n, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("requeue dead items: %w", err)
	}
	return int(n), nil
}

package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/url"
	"sort"
	"time"

	"github.com/marcus/nhatky/internal/dateparse"
	"github.com/marcus/nhatky/internal/models"
)

// tombstoneTTL bounds how long a deleted local-only identifier is remembered.
const tombstoneTTL = 7 * 24 * time.Hour

const entryColumns = `id, local_id, owner_id, body, record_version, sync_status, operation, last_modified, sync_error`

// TimelinePath is the remote path listing an owner's timeline. It doubles as
// the response cache key for the raw fallback.
func TimelinePath(ownerID string) string {
	return "/api/nhatky?userId=" + url.QueryEscape(ownerID)
}

type entryRow struct {
	id, localID, ownerID string
	body                 string
	recordVersion        int
	status               string
	op                   string
	lastModified         int64
	syncError            string
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntryRow(s rowScanner) (*entryRow, error) {
	var r entryRow
	if err := s.Scan(&r.id, &r.localID, &r.ownerID, &r.body, &r.recordVersion, &r.status, &r.op, &r.lastModified, &r.syncError); err != nil {
		return nil, err
	}
	return &r, nil
}

func (r *entryRow) entry() (*models.TimelineEntry, error) {
	body, err := upgradeRecord(r.recordVersion, []byte(r.body))
	if err != nil {
		return nil, fmt.Errorf("entry %s: %w", r.id, err)
	}
	var e models.TimelineEntry
	if err := json.Unmarshal(body, &e); err != nil {
		return nil, fmt.Errorf("decode entry %s: %w", r.id, err)
	}
	e.ID = r.id
	e.Sync = models.SyncMeta{
		Status:       models.SyncStatus(r.status),
		Operation:    models.Operation(r.op),
		LastModified: r.lastModified,
		LocalID:      r.localID,
		Error:        r.syncError,
	}
	return &e, nil
}

func getEntryRowTx(tx *sql.Tx, id string) (*entryRow, error) {
	r, err := scanEntryRow(tx.QueryRow(`SELECT `+entryColumns+` FROM timeline_entries WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return r, err
}

// lookupEntryRowTx is getEntryRowTx that also follows a local-only
// identifier to the server identifier it was rekeyed to.
func lookupEntryRowTx(tx *sql.Tx, id string) (*entryRow, error) {
	r, err := getEntryRowTx(tx, id)
	if err != nil || r != nil || !models.IsLocalID(id) {
		return r, err
	}
	r, err = scanEntryRow(tx.QueryRow(`SELECT `+entryColumns+` FROM timeline_entries WHERE local_id = ? LIMIT 1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return r, err
}

func dateKey(executionDate string) string {
	key, err := dateparse.Normalize(executionDate)
	if err != nil {
		return ""
	}
	return key
}

func nextInsertSeqTx(tx *sql.Tx) (int64, error) {
	var seq int64
	err := tx.QueryRow(`SELECT COALESCE(MAX(insert_seq), 0) + 1 FROM timeline_entries`).Scan(&seq)
	return seq, err
}

// writeEntryTx upserts the row for e, keeping insertSeq when the row exists.
func writeEntryTx(tx *sql.Tx, e *models.TimelineEntry, ownerFallback string, insertSeq int64) error {
	body, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encode entry: %w", err)
	}
	owner := e.UserID
	if owner == "" {
		owner = ownerFallback
	}
	_, err = tx.Exec(`
		INSERT INTO timeline_entries (id, local_id, owner_id, unit_id, exec_date_key, insert_seq, body, record_version,
			sync_status, operation, last_modified, sync_error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			local_id = excluded.local_id,
			owner_id = excluded.owner_id,
			unit_id = excluded.unit_id,
			exec_date_key = excluded.exec_date_key,
			body = excluded.body,
			record_version = excluded.record_version,
			sync_status = excluded.sync_status,
			operation = excluded.operation,
			last_modified = excluded.last_modified,
			sync_error = excluded.sync_error
	`, e.ID, e.Sync.LocalID, owner, e.UnitID, dateKey(e.ExecutionDate), insertSeq, string(body), models.CurrentRecordVersion,
		string(e.Sync.Status), string(e.Sync.Operation), e.Sync.LastModified, e.Sync.Error)
	return err
}

func insertSeqTx(tx *sql.Tx, id string) (int64, error) {
	var seq int64
	err := tx.QueryRow(`SELECT insert_seq FROM timeline_entries WHERE id = ?`, id).Scan(&seq)
	if errors.Is(err, sql.ErrNoRows) {
		return nextInsertSeqTx(tx)
	}
	return seq, err
}

// SaveTimelineEntry persists a local create or update and enqueues it. A
// create without an identifier gets a local-only one. A local-only identifier
// that was already acknowledged resolves to its server identifier. Any queued
// item for the same identifier is replaced in place. The stored entry is
// returned.
func (db *DB) SaveTimelineEntry(ctx context.Context, entry *models.TimelineEntry, op models.Operation) (*models.TimelineEntry, error) {
	if entry == nil {
		return nil, errors.New("save entry: nil entry")
	}
	if !op.Valid() {
		return nil, fmt.Errorf("save entry: invalid operation %q", op)
	}
	if op == models.OpDelete {
		if err := db.DeleteTimelineEntry(ctx, entry.ID); err != nil {
			return nil, err
		}
		return entry.Clone(), nil
	}

	e := entry.Clone()
	if e.ID == "" {
		if op != models.OpCreate {
			return nil, errors.New("save entry: update requires an id")
		}
		e.ID = newLocalID()
	}

	err := db.withTx(ctx, func(tx *sql.Tx) error {
		existing, err := lookupEntryRowTx(tx, e.ID)
		if err != nil {
			return err
		}
		if existing != nil {
			e.ID = existing.id
		} else if op == models.OpUpdate && models.IsLocalID(e.ID) {
			return ErrNotFound
		}

		effective := op
		if models.IsLocalID(e.ID) {
			// never left the device: the server has nothing to update yet
			effective = models.OpCreate
		} else if existing != nil && existing.op == string(models.OpCreate) && existing.status != string(models.SyncSynced) {
			effective = models.OpCreate
		}

		localID := ""
		if models.IsLocalID(e.ID) {
			localID = e.ID
		} else if existing != nil {
			localID = existing.localID
		}
		ownerFallback := ""
		if existing != nil {
			ownerFallback = existing.ownerID
		}

		seq, err := insertSeqTx(tx, e.ID)
		if err != nil {
			return err
		}

		e.Sync = models.SyncMeta{
			Status:       models.SyncPending,
			Operation:    effective,
			LastModified: db.nextModified(),
			LocalID:      localID,
		}
		if err := writeEntryTx(tx, e, ownerFallback, seq); err != nil {
			return err
		}
		payload, err := e.RemotePayload(effective)
		if err != nil {
			return err
		}
		return enqueueTx(tx, e.ID, effective, payload, e.Sync.LastModified)
	})
	if err != nil {
		return nil, fmt.Errorf("save entry %s: %w", e.ID, err)
	}
	return e, nil
}

// DeleteTimelineEntry removes a local-only entry immediately, without
// enqueuing anything. Entries the server knows about are marked for deletion
// and enqueued; they stay hidden from reads until the delete is acknowledged.
func (db *DB) DeleteTimelineEntry(ctx context.Context, id string) error {
	err := db.withTx(ctx, func(tx *sql.Tx) error {
		r, err := lookupEntryRowTx(tx, id)
		if err != nil {
			return err
		}
		if r == nil || r.op == string(models.OpDelete) {
			return ErrNotFound
		}
		id = r.id

		if models.IsLocalID(id) {
			if _, err := tx.Exec(`DELETE FROM timeline_entries WHERE id = ?`, id); err != nil {
				return err
			}
			if _, err := tx.Exec(`DELETE FROM sync_queue WHERE entry_id = ?`, id); err != nil {
				return err
			}
			return tombstoneTx(tx, id, time.Now())
		}

		mod := db.nextModified()
		if _, err := tx.Exec(`
			UPDATE timeline_entries SET operation = ?, sync_status = ?, last_modified = ?, sync_error = ''
			WHERE id = ?
		`, models.OpDelete, models.SyncPending, mod, id); err != nil {
			return err
		}
		payload, err := json.Marshal(map[string]string{"id": id})
		if err != nil {
			return err
		}
		return enqueueTx(tx, id, models.OpDelete, payload, mod)
	})
	if err != nil {
		return fmt.Errorf("delete entry %s: %w", id, err)
	}
	return nil
}

// tombstoneTx remembers a deleted local-only identifier until any create
// still in flight for it is acknowledged.
func tombstoneTx(tx *sql.Tx, localID string, now time.Time) error {
	if _, err := tx.Exec(`DELETE FROM local_tombstones WHERE deleted_at < ?`, now.Add(-tombstoneTTL).UnixNano()); err != nil {
		return err
	}
	_, err := tx.Exec(`INSERT OR REPLACE INTO local_tombstones (local_id, deleted_at) VALUES (?, ?)`, localID, now.UnixNano())
	return err
}

// GetTimelineEntry returns one visible entry by identifier. A local-only
// identifier also finds the entry after it was rekeyed.
func (db *DB) GetTimelineEntry(ctx context.Context, id string) (*models.TimelineEntry, error) {
	if err := db.readable(); err != nil {
		return nil, err
	}
	r, err := scanEntryRow(db.conn.QueryRowContext(ctx,
		`SELECT `+entryColumns+` FROM timeline_entries WHERE id = ? AND operation != 'delete'`, id))
	if errors.Is(err, sql.ErrNoRows) && models.IsLocalID(id) {
		r, err = scanEntryRow(db.conn.QueryRowContext(ctx,
			`SELECT `+entryColumns+` FROM timeline_entries WHERE local_id = ? AND operation != 'delete' LIMIT 1`, id))
	}
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return r.entry()
}

// GetAllTimelineEntries returns the visible entries owned by ownerID (all
// owners when empty), newest execution date first, ties in insertion order.
// When the owner has no stored rows at all, pending deletes included, it
// falls back to the last raw server response cached for the owner.
func (db *DB) GetAllTimelineEntries(ctx context.Context, ownerID string) ([]*models.TimelineEntry, error) {
	if err := db.readable(); err != nil {
		return nil, err
	}
	rows, err := db.conn.QueryContext(ctx, `
		SELECT `+entryColumns+` FROM timeline_entries
		WHERE operation != 'delete' AND (? = '' OR owner_id = ?)
		ORDER BY exec_date_key DESC, insert_seq ASC
	`, ownerID, ownerID)
	if err != nil {
		return nil, err
	}
	entries, err := collectEntries(rows)
	if err != nil {
		return nil, err
	}
	if len(entries) > 0 || ownerID == "" {
		return entries, nil
	}
	var stored int
	if err := db.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM timeline_entries WHERE owner_id = ?`, ownerID).Scan(&stored); err != nil {
		return nil, err
	}
	if stored > 0 {
		return entries, nil
	}

	cached, err := db.GetCachedResponse(ctx, TimelinePath(ownerID))
	if errors.Is(err, ErrNotFound) {
		return entries, nil
	}
	if err != nil {
		return nil, err
	}
	fallback, err := DecodeEntryList(cached.Body)
	if err != nil {
		db.log.Warn("store: cached timeline unreadable", "owner", ownerID, "err", err)
		return entries, nil
	}
	visible := fallback[:0]
	for _, e := range fallback {
		if e == nil || e.ID == "" {
			continue
		}
		var n int
		if err := db.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM timeline_entries WHERE id = ?`, e.ID).Scan(&n); err != nil {
			return nil, err
		}
		if n > 0 {
			continue
		}
		e.Sync.Status = models.SyncSynced
		visible = append(visible, e)
	}
	fallback = visible
	sort.SliceStable(fallback, func(i, j int) bool {
		return dateKey(fallback[i].ExecutionDate) > dateKey(fallback[j].ExecutionDate)
	})
	db.log.Debug("store: serving timeline from response cache", "owner", ownerID, "count", len(fallback))
	return fallback, nil
}

// GetPendingSyncEntries returns entries awaiting sync in enqueue order.
func (db *DB) GetPendingSyncEntries(ctx context.Context) ([]*models.TimelineEntry, error) {
	if err := db.readable(); err != nil {
		return nil, err
	}
	rows, err := db.conn.QueryContext(ctx, `
		SELECT e.id, e.local_id, e.owner_id, e.body, e.record_version, e.sync_status, e.operation, e.last_modified, e.sync_error
		FROM timeline_entries e JOIN sync_queue q ON q.entry_id = e.id
		WHERE e.sync_status = 'pending'
		ORDER BY q.seq
	`)
	if err != nil {
		return nil, err
	}
	return collectEntries(rows)
}

func collectEntries(rows *sql.Rows) ([]*models.TimelineEntry, error) {
	defer rows.Close()
	var entries []*models.TimelineEntry
	for rows.Next() {
		r, err := scanEntryRow(rows)
		if err != nil {
			return nil, err
		}
		e, err := r.entry()
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// DecodeEntryList decodes a timeline listing as returned by the remote API:
// either a bare array or an object wrapping it under "data".
func DecodeEntryList(body []byte) ([]*models.TimelineEntry, error) {
	var list []*models.TimelineEntry
	if err := json.Unmarshal(body, &list); err == nil {
		return list, nil
	}
	var wrapped struct {
		Data []*models.TimelineEntry `json:"data"`
	}
	if err := json.Unmarshal(body, &wrapped); err != nil {
		return nil, fmt.Errorf("decode timeline list: %w", err)
	}
	return wrapped.Data, nil
}

// MarkEntrySynced records that the server accepted the entry's queued
// mutation. A local-only entry is rekeyed to server.ID; a delete removes the
// row. Calling it again for the same identifier is a no-op.
func (db *DB) MarkEntrySynced(ctx context.Context, id string, server *models.TimelineEntry) error {
	err := db.withTx(ctx, func(tx *sql.Tx) error {
		r, err := getEntryRowTx(tx, id)
		if err != nil || r == nil {
			return err
		}
		_, err = ackTx(tx, r, models.Operation(r.op), math.MaxInt64, server)
		return err
	})
	if err != nil {
		return fmt.Errorf("mark entry %s synced: %w", id, err)
	}
	return nil
}

// MarkEntryError records a failed sync attempt. The queue item is kept.
func (db *DB) MarkEntryError(ctx context.Context, id, reason string) error {
	err := db.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.Exec(`UPDATE timeline_entries SET sync_status = ?, sync_error = ? WHERE id = ?`,
			models.SyncError, reason, id)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return ErrNotFound
		}
		_, err = tx.Exec(`UPDATE sync_queue SET last_error = ? WHERE entry_id = ?`, reason, id)
		return err
	})
	if err != nil {
		return fmt.Errorf("mark entry %s error: %w", id, err)
	}
	return nil
}

// AckQueueItem applies a successful remote call for item. If the entry was
// written again after item was taken from the queue, the newer local write
// is kept pending and re-enqueued as an update of the server identifier.
// It returns the entry's identifier after any rekey.
func (db *DB) AckQueueItem(ctx context.Context, item models.SyncQueueItem, server *models.TimelineEntry) (string, error) {
	newID := item.EntryID
	err := db.withTx(ctx, func(tx *sql.Tx) error {
		r, err := getEntryRowTx(tx, item.EntryID)
		if err != nil {
			return err
		}
		if r == nil {
			if _, err := tx.Exec(`DELETE FROM sync_queue WHERE entry_id = ?`, item.EntryID); err != nil {
				return err
			}
			if item.Operation != models.OpCreate || server == nil || server.ID == "" {
				return nil
			}
			queued, err := orphanDeleteTx(tx, item.EntryID, server, db.nextModified())
			if queued {
				newID = server.ID
			}
			return err
		}
		newID, err = ackTx(tx, r, item.Operation, item.Revision, server)
		return err
	})
	if err != nil {
		return item.EntryID, fmt.Errorf("ack %s %s: %w", item.Operation, item.EntryID, err)
	}
	return newID, nil
}

func ackTx(tx *sql.Tx, r *entryRow, op models.Operation, revision int64, server *models.TimelineEntry) (string, error) {
	raced := r.lastModified > revision

	if op == models.OpDelete {
		if raced {
			// edited again after the remote delete: the server copy is gone
			return r.id, requeueTx(tx, r, models.OpCreate)
		}
		if _, err := tx.Exec(`DELETE FROM timeline_entries WHERE id = ?`, r.id); err != nil {
			return "", err
		}
		_, err := tx.Exec(`DELETE FROM sync_queue WHERE entry_id = ?`, r.id)
		return r.id, err
	}

	local, err := r.entry()
	if err != nil {
		return "", err
	}
	id := r.id
	if server != nil && server.ID != "" && server.ID != r.id {
		id = server.ID
		if models.IsLocalID(r.id) {
			local.Sync.LocalID = r.id
		}
		if err := rekeyTx(tx, r.id, id); err != nil {
			return "", err
		}
		r.id = id
	}

	if raced {
		return id, requeueTx(tx, r, models.OpUpdate)
	}

	merged := local
	if server != nil {
		if merged, err = overlay(local, server); err != nil {
			return "", err
		}
	}
	merged.ID = id
	merged.Sync = local.Sync
	merged.Sync.Status = models.SyncSynced
	merged.Sync.Error = ""

	seq, err := insertSeqTx(tx, id)
	if err != nil {
		return "", err
	}
	if err := writeEntryTx(tx, merged, r.ownerID, seq); err != nil {
		return "", err
	}
	_, err = tx.Exec(`DELETE FROM sync_queue WHERE entry_id = ?`, id)
	return id, err
}

// orphanDeleteTx queues a remote delete for the server record created from a
// local-only entry that was deleted while its create was in flight. The row
// stays hidden until the delete is acknowledged.
func orphanDeleteTx(tx *sql.Tx, localID string, server *models.TimelineEntry, mod int64) (bool, error) {
	res, err := tx.Exec(`DELETE FROM local_tombstones WHERE local_id = ?`, localID)
	if err != nil {
		return false, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return false, nil
	}

	e := server.Clone()
	e.Sync = models.SyncMeta{
		Status:       models.SyncPending,
		Operation:    models.OpDelete,
		LastModified: mod,
		LocalID:      localID,
	}
	seq, err := insertSeqTx(tx, e.ID)
	if err != nil {
		return false, err
	}
	if err := writeEntryTx(tx, e, "", seq); err != nil {
		return false, err
	}
	payload, err := json.Marshal(map[string]string{"id": e.ID})
	if err != nil {
		return false, err
	}
	return true, enqueueTx(tx, e.ID, models.OpDelete, payload, mod)
}

// rekeyTx moves an entry and its queue item to a new identifier, keeping its
// insertion order.
func rekeyTx(tx *sql.Tx, oldID, newID string) error {
	if _, err := tx.Exec(`DELETE FROM timeline_entries WHERE id = ?`, newID); err != nil {
		return err
	}
	if _, err := tx.Exec(`UPDATE timeline_entries SET id = ?, local_id = CASE WHEN local_id = '' THEN ? ELSE local_id END WHERE id = ?`,
		newID, oldID, oldID); err != nil {
		return err
	}
	_, err := tx.Exec(`UPDATE sync_queue SET entry_id = ? WHERE entry_id = ?`, newID, oldID)
	return err
}

// requeueTx rewrites the entry's queue item from its current body.
func requeueTx(tx *sql.Tx, r *entryRow, op models.Operation) error {
	e, err := r.entry()
	if err != nil {
		return err
	}
	if _, err := tx.Exec(`UPDATE timeline_entries SET operation = ?, sync_status = ? WHERE id = ?`,
		op, models.SyncPending, r.id); err != nil {
		return err
	}
	payload, err := e.RemotePayload(op)
	if err != nil {
		return err
	}
	return enqueueTx(tx, r.id, op, payload, r.lastModified)
}

// overlay returns base with every field present in top applied over it.
func overlay(base, top *models.TimelineEntry) (*models.TimelineEntry, error) {
	merged := map[string]json.RawMessage{}
	for _, src := range []*models.TimelineEntry{base, top} {
		data, err := json.Marshal(src)
		if err != nil {
			return nil, err
		}
		var fields map[string]json.RawMessage
		if err := json.Unmarshal(data, &fields); err != nil {
			return nil, err
		}
		for k, v := range fields {
			merged[k] = v
		}
	}
	data, err := json.Marshal(merged)
	if err != nil {
		return nil, err
	}
	var out models.TimelineEntry
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// MergeResult summarises ApplyRemoteEntries.
type MergeResult struct {
	Upserted  int
	Removed   int
	Conflicts int
}

// ApplyRemoteEntries merges the server's listing of ownerID's timeline.
// Entries without local changes take the server copy. Entries with a queued
// local change keep it, and a differing server copy is recorded as a
// conflict. Synced entries the server no longer lists are removed.
func (db *DB) ApplyRemoteEntries(ctx context.Context, ownerID string, remote []*models.TimelineEntry) (MergeResult, error) {
	var res MergeResult
	err := db.withTx(ctx, func(tx *sql.Tx) error {
		seen := make(map[string]bool, len(remote))
		for _, srv := range remote {
			if srv == nil || srv.ID == "" {
				continue
			}
			seen[srv.ID] = true

			r, err := getEntryRowTx(tx, srv.ID)
			if err != nil {
				return err
			}
			if r != nil && r.op == string(models.OpDelete) {
				// the local delete is still on its way
				continue
			}
			if r != nil && r.status != string(models.SyncSynced) {
				conflict, err := recordConflictIfChangedTx(tx, r, srv)
				if err != nil {
					return err
				}
				if conflict {
					res.Conflicts++
				}
				continue
			}

			e := srv.Clone()
			e.Sync = models.SyncMeta{Status: models.SyncSynced, Operation: models.OpUpdate}
			if r != nil {
				e.Sync.LastModified = r.lastModified
				e.Sync.LocalID = r.localID
			}
			seq, err := insertSeqTx(tx, e.ID)
			if err != nil {
				return err
			}
			if err := writeEntryTx(tx, e, ownerID, seq); err != nil {
				return err
			}
			res.Upserted++
		}

		rows, err := tx.Query(`SELECT id FROM timeline_entries WHERE owner_id = ? AND sync_status = 'synced'`, ownerID)
		if err != nil {
			return err
		}
		var stale []string
		for rows.Next() {
			var id string
			if err := rows.Scan(&id); err != nil {
				rows.Close()
				return err
			}
			if !seen[id] {
				stale = append(stale, id)
			}
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}
		for _, id := range stale {
			if _, err := tx.Exec(`DELETE FROM timeline_entries WHERE id = ?`, id); err != nil {
				return err
			}
			res.Removed++
		}
		return nil
	})
	if err != nil {
		return res, fmt.Errorf("apply remote entries: %w", err)
	}
	return res, nil
}

func recordConflictIfChangedTx(tx *sql.Tx, r *entryRow, srv *models.TimelineEntry) (bool, error) {
	local, err := r.entry()
	if err != nil {
		return false, err
	}
	localData, err := json.Marshal(local)
	if err != nil {
		return false, err
	}
	srvCopy := srv.Clone()
	srvCopy.ID = local.ID
	remoteData, err := json.Marshal(srvCopy)
	if err != nil {
		return false, err
	}
	if string(localData) == string(remoteData) {
		return false, nil
	}

	var last sql.NullString
	err = tx.QueryRow(`SELECT remote_data FROM sync_conflicts WHERE entry_id = ? ORDER BY id DESC LIMIT 1`, r.id).Scan(&last)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return false, err
	}
	if last.Valid && last.String == string(remoteData) {
		return false, nil
	}
	if err := insertConflictTx(tx, r.id, string(localData), string(remoteData), time.Now()); err != nil {
		return false, err
	}
	return true, nil
}

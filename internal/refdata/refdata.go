// Package refdata serves the seasons, stages and tasks lookup collections
// from the local store, refreshing them from the API when needed.
package refdata

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/marcus/nhatky/internal/models"
	"github.com/marcus/nhatky/internal/syncclient"
)

// ErrRefreshFailed matches every RefreshError.
var ErrRefreshFailed = errors.New("reference refresh failed")

// RefreshError is a failed refresh of one collection.
type RefreshError struct {
	Kind models.ReferenceKind
	Err  error
}

func (e *RefreshError) Error() string {
	return fmt.Sprintf("refresh %s: %v", e.Kind, e.Err)
}

func (e *RefreshError) Unwrap() error { return e.Err }

func (e *RefreshError) Is(target error) bool { return target == ErrRefreshFailed }

// Store is the local persistence the cache reads through.
type Store interface {
	StoreReferenceData(ctx context.Context, kind models.ReferenceKind, records []models.ReferenceRecord) error
	GetReferenceData(ctx context.Context, kind models.ReferenceKind) ([]models.ReferenceRecord, error)
	GetTasksByStageID(ctx context.Context, stageID string) ([]models.ReferenceRecord, error)
	PutCachedResponse(ctx context.Context, url string, body []byte, capturedAt time.Time) error
	GetCachedResponse(ctx context.Context, url string) (*models.CachedResponse, error)
}

// Fetcher loads a reference collection from the API.
type Fetcher interface {
	FetchReference(ctx context.Context, kind models.ReferenceKind) ([]byte, error)
}

// Connectivity reports whether the device is online.
type Connectivity interface {
	Online() bool
}

// Cache is a read-through cache over the reference collections.
type Cache struct {
	store  Store
	remote Fetcher
	net    Connectivity
	log    *slog.Logger
}

// New creates a cache. remote may be nil for offline-only use; net may be nil
// to assume the device is online.
func New(store Store, remote Fetcher, net Connectivity, logger *slog.Logger) *Cache {
	if logger == nil {
		logger = slog.Default()
	}
	return &Cache{store: store, remote: remote, net: net, log: logger}
}

func (c *Cache) online() bool {
	return c.remote != nil && (c.net == nil || c.net.Online())
}

// Refresh replaces one collection with the server's current copy. The raw
// response is kept as a fallback.
func (c *Cache) Refresh(ctx context.Context, kind models.ReferenceKind) error {
	if c.remote == nil {
		return &RefreshError{Kind: kind, Err: errors.New("no remote configured")}
	}
	body, err := c.remote.FetchReference(ctx, kind)
	if err != nil {
		return &RefreshError{Kind: kind, Err: err}
	}
	records, err := decodeRecords(kind, body)
	if err != nil {
		return &RefreshError{Kind: kind, Err: err}
	}
	if err := c.store.PutCachedResponse(ctx, syncclient.ReferencePath(kind), body, time.Now()); err != nil {
		c.log.Warn("refdata: cache raw response", "kind", kind, "err", err)
	}
	if err := c.store.StoreReferenceData(ctx, kind, records); err != nil {
		return &RefreshError{Kind: kind, Err: err}
	}
	c.log.Debug("refdata: refreshed", "kind", kind, "count", len(records))
	return nil
}

// RefreshAll refreshes every collection independently and returns the
// failures by collection, or nil when all succeeded.
func (c *Cache) RefreshAll(ctx context.Context) map[models.ReferenceKind]error {
	var errs map[models.ReferenceKind]error
	for _, kind := range models.ReferenceKinds {
		if err := c.Refresh(ctx, kind); err != nil {
			if errs == nil {
				errs = make(map[models.ReferenceKind]error)
			}
			errs[kind] = err
		}
	}
	return errs
}

// load returns a collection, refreshing it first when it is empty and the
// device is online. fromStore is false when the records came from the raw
// response fallback.
func (c *Cache) load(ctx context.Context, kind models.ReferenceKind) (records []models.ReferenceRecord, fromStore bool, err error) {
	records, err = c.store.GetReferenceData(ctx, kind)
	if err != nil {
		return nil, false, err
	}
	if len(records) == 0 && c.online() {
		if err := c.Refresh(ctx, kind); err != nil {
			c.log.Warn("refdata: refresh on empty collection", "kind", kind, "err", err)
		} else if records, err = c.store.GetReferenceData(ctx, kind); err != nil {
			return nil, false, err
		}
	}
	if len(records) > 0 {
		return records, true, nil
	}

	cached, err := c.store.GetCachedResponse(ctx, syncclient.ReferencePath(kind))
	if err != nil {
		// nothing stored anywhere
		return nil, false, nil
	}
	records, err = decodeRecords(kind, cached.Body)
	if err != nil {
		c.log.Warn("refdata: cached response unreadable", "kind", kind, "err", err)
		return nil, false, nil
	}
	c.log.Debug("refdata: serving from response cache", "kind", kind, "count", len(records))
	return records, false, nil
}

// Seasons returns the season collection.
func (c *Cache) Seasons(ctx context.Context) ([]models.Season, error) {
	records, _, err := c.load(ctx, models.RefSeasons)
	if err != nil {
		return nil, err
	}
	return decodeBodies[models.Season](records)
}

// Stages returns the stage collection.
func (c *Cache) Stages(ctx context.Context) ([]models.Stage, error) {
	records, _, err := c.load(ctx, models.RefStages)
	if err != nil {
		return nil, err
	}
	return decodeBodies[models.Stage](records)
}

// Tasks returns the whole task collection.
func (c *Cache) Tasks(ctx context.Context) ([]models.Task, error) {
	records, _, err := c.load(ctx, models.RefTasks)
	if err != nil {
		return nil, err
	}
	return decodeBodies[models.Task](records)
}

// TasksByStageID returns the tasks belonging to one stage.
func (c *Cache) TasksByStageID(ctx context.Context, stageID string) ([]models.Task, error) {
	all, fromStore, err := c.load(ctx, models.RefTasks)
	if err != nil {
		return nil, err
	}
	var records []models.ReferenceRecord
	if fromStore {
		if records, err = c.store.GetTasksByStageID(ctx, stageID); err != nil {
			return nil, err
		}
	} else {
		for _, r := range all {
			if r.StageID == stageID {
				records = append(records, r)
			}
		}
	}
	return decodeBodies[models.Task](records)
}

func decodeBodies[T any](records []models.ReferenceRecord) ([]T, error) {
	out := make([]T, 0, len(records))
	for _, r := range records {
		var v T
		if err := json.Unmarshal(r.Body, &v); err != nil {
			return nil, fmt.Errorf("decode record %s: %w", r.ID, err)
		}
		out = append(out, v)
	}
	return out, nil
}

// decodeRecords turns an API listing into storage records with canonical
// string "id" fields and, for tasks, a canonical "stageId".
func decodeRecords(kind models.ReferenceKind, body []byte) ([]models.ReferenceRecord, error) {
	list, err := syncclient.DecodeList(body)
	if err != nil {
		return nil, err
	}
	records := make([]models.ReferenceRecord, 0, len(list))
	for i, raw := range list {
		id, err := syncclient.ExtractID(raw)
		if err != nil {
			return nil, fmt.Errorf("%s record %d: %w", kind, i, err)
		}
		var fields map[string]json.RawMessage
		if err := json.Unmarshal(raw, &fields); err != nil {
			return nil, fmt.Errorf("%s record %d: %w", kind, i, err)
		}
		delete(fields, "_id")
		fields["id"], _ = json.Marshal(id)

		rec := models.ReferenceRecord{ID: id}
		if kind == models.RefTasks {
			rec.StageID = stageRef(fields)
			fields["stageId"], _ = json.Marshal(rec.StageID)
		}
		for _, key := range numericStringFields[kind] {
			normalizeString(fields, key)
		}
		if rec.Body, err = json.Marshal(fields); err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, nil
}

// numericStringFields are string fields some servers send as numbers.
var numericStringFields = map[models.ReferenceKind][]string{
	models.RefSeasons: {"unitId"},
}

// stageRef finds a task's owning stage whatever shape the server used.
func stageRef(fields map[string]json.RawMessage) string {
	for _, key := range []string{"stageId", "stage_id", "giaidoanId", "stage"} {
		raw, ok := fields[key]
		if !ok {
			continue
		}
		if s := scalarString(raw); s != "" {
			return s
		}
		if id, err := syncclient.ExtractID(raw); err == nil {
			return id
		}
	}
	return ""
}

func normalizeString(fields map[string]json.RawMessage, key string) {
	raw, ok := fields[key]
	if !ok {
		return
	}
	fields[key], _ = json.Marshal(scalarString(raw))
}

func scalarString(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		if i, err := n.Int64(); err == nil {
			return strconv.FormatInt(i, 10)
		}
		return n.String()
	}
	return ""
}

package sync

import (
	"context"
	"errors"
	"time"

	"github.com/marcus/nhatky/internal/db"
	"github.com/marcus/nhatky/internal/models"
)

// ErrPassRunning is returned by RunPass when another pass is in flight.
var ErrPassRunning = errors.New("sync pass already running")

// DefaultInterval is the delay between scheduled passes.
const DefaultInterval = 60 * time.Second

// Store is the slice of the local store a pass works against.
type Store interface {
	ListQueue(ctx context.Context, now time.Time) ([]models.SyncQueueItem, error)
	AckQueueItem(ctx context.Context, item models.SyncQueueItem, server *models.TimelineEntry) (string, error)
	FailQueueItem(ctx context.Context, item models.SyncQueueItem, reason string, policy db.RetryPolicy) error
	PutCachedResponse(ctx context.Context, url string, body []byte, capturedAt time.Time) error
	ApplyRemoteEntries(ctx context.Context, ownerID string, remote []*models.TimelineEntry) (db.MergeResult, error)
	SetTimeSetting(ctx context.Context, key string, t time.Time) error
}

// Remote is the API surface a pass replays mutations against.
type Remote interface {
	CreateEntry(ctx context.Context, payload []byte) (*models.TimelineEntry, error)
	UpdateEntry(ctx context.Context, id string, payload []byte) (*models.TimelineEntry, error)
	DeleteEntry(ctx context.Context, id string) error
	Fetch(ctx context.Context, path string) ([]byte, error)
}

// Refresher reloads every reference collection, returning the failures by
// collection. One failure never stops the others.
type Refresher interface {
	RefreshAll(ctx context.Context) map[models.ReferenceKind]error
}

// Connectivity reports whether the device is online.
type Connectivity interface {
	Online() bool
}

// Config configures an Engine.
type Config struct {
	// OwnerID, when set, pulls the owner's timeline from the server each pass.
	OwnerID string
	// Interval between scheduled passes. Defaults to DefaultInterval.
	Interval time.Duration
	Retry    db.RetryPolicy
}

// PassResult summarises one reconciliation pass.
type PassResult struct {
	// Skipped is set when the device was offline and nothing was attempted.
	Skipped   bool
	Attempted int
	Synced    int
	Failed    int
	// Pulled is the number of server entries merged from the owner pull.
	Pulled        int
	Removed       int
	Conflicts     int
	PullError     error
	RefreshErrors map[models.ReferenceKind]error
	StartedAt     time.Time
	Duration      time.Duration
}

// Status is a snapshot of the engine for UI banners.
type Status struct {
	Running     bool
	LastPass    time.Time
	LastSuccess time.Time
	LastResult  PassResult
}

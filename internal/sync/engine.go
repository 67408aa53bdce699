// Package sync replays locally queued timeline mutations against the remote
// API, pulls the owner's timeline back and refreshes reference data.
package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	gosync "sync"
	"sync/atomic"
	"time"

	"github.com/marcus/nhatky/internal/db"
	"github.com/marcus/nhatky/internal/models"
	"github.com/marcus/nhatky/internal/syncclient"
)

// Engine runs reconciliation passes. At most one pass runs at a time.
type Engine struct {
	store  Store
	remote Remote
	refs   Refresher
	net    Connectivity
	cfg    Config
	log    *slog.Logger

	running atomic.Bool
	trigger chan struct{}
	now     func() time.Time

	mu          gosync.Mutex
	lastPass    time.Time
	lastSuccess time.Time
	lastResult  PassResult
}

// NewEngine wires an engine. refs and net may be nil: without refs no
// reference refresh happens, without net the device is assumed online.
func NewEngine(store Store, remote Remote, refs Refresher, net Connectivity, cfg Config, logger *slog.Logger) *Engine {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		store:   store,
		remote:  remote,
		refs:    refs,
		net:     net,
		cfg:     cfg,
		log:     logger,
		trigger: make(chan struct{}, 1),
		now:     time.Now,
	}
}

// RunPass performs one reconciliation pass. It returns ErrPassRunning if a
// pass is already in flight. Per-item failures are recorded on the items and
// never abort the pass; only local store failures are returned.
func (e *Engine) RunPass(ctx context.Context) (PassResult, error) {
	if !e.running.CompareAndSwap(false, true) {
		return PassResult{}, ErrPassRunning
	}
	defer e.running.Store(false)

	start := e.now()
	res := PassResult{StartedAt: start}

	if e.net != nil && !e.net.Online() {
		res.Skipped = true
		e.log.Debug("sync: offline, skipping pass")
		e.finish(res, false)
		return res, nil
	}

	items, err := e.store.ListQueue(ctx, start)
	if err != nil {
		e.finish(res, false)
		return res, fmt.Errorf("list queue: %w", err)
	}

	// strictly sequential: a later item may need the id an earlier create mints
	for _, item := range items {
		res.Attempted++
		if e.replay(ctx, item) {
			res.Synced++
		} else {
			res.Failed++
		}
	}

	if e.cfg.OwnerID != "" {
		if err := e.pull(ctx, &res); err != nil {
			res.PullError = err
			e.log.Warn("sync: pull failed", "owner", e.cfg.OwnerID, "err", err)
		}
	}

	if e.refs != nil {
		res.RefreshErrors = e.refs.RefreshAll(ctx)
		for kind, err := range res.RefreshErrors {
			e.log.Warn("sync: reference refresh failed", "kind", kind, "err", err)
		}
	}

	done := e.now()
	res.Duration = done.Sub(start)
	if err := e.store.SetTimeSetting(ctx, db.SettingLastSyncSuccess, done); err != nil {
		e.log.Warn("sync: record last success", "err", err)
	}
	e.finish(res, true)

	e.log.Info("sync: pass complete",
		"attempted", res.Attempted, "synced", res.Synced, "failed", res.Failed,
		"pulled", res.Pulled, "refresh_errors", len(res.RefreshErrors), "took", res.Duration)
	return res, nil
}

func (e *Engine) finish(res PassResult, success bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.lastPass = res.StartedAt
	e.lastResult = res
	if success {
		e.lastSuccess = res.StartedAt.Add(res.Duration)
	}
}

// replay sends one queued mutation and records the outcome. It reports
// whether the server accepted it.
func (e *Engine) replay(ctx context.Context, item models.SyncQueueItem) bool {
	log := e.log.With("entry", item.EntryID, "op", item.Operation)

	var server *models.TimelineEntry
	var err error
	switch item.Operation {
	case models.OpCreate:
		server, err = e.remote.CreateEntry(ctx, item.Payload)
	case models.OpUpdate:
		server, err = e.remote.UpdateEntry(ctx, item.EntryID, item.Payload)
	case models.OpDelete:
		err = e.remote.DeleteEntry(ctx, item.EntryID)
		if errors.Is(err, syncclient.ErrNotFound) {
			// already gone on the server
			err = nil
		}
	default:
		err = fmt.Errorf("unknown operation %q", item.Operation)
	}

	if err != nil {
		log.Warn("sync: remote call failed", "retry", item.RetryCount+1, "err", err)
		if ferr := e.store.FailQueueItem(ctx, item, err.Error(), e.cfg.Retry); ferr != nil {
			log.Error("sync: record failure", "err", ferr)
		}
		return false
	}

	newID, err := e.store.AckQueueItem(ctx, item, server)
	if err != nil {
		log.Error("sync: record success", "err", err)
		return false
	}
	if newID != item.EntryID {
		log.Debug("sync: entry rekeyed", "server_id", newID)
	}
	return true
}

// pull fetches the owner's timeline, caches the raw response and merges it.
func (e *Engine) pull(ctx context.Context, res *PassResult) error {
	body, err := e.remote.Fetch(ctx, syncclient.ListEntriesPath(e.cfg.OwnerID))
	if err != nil {
		return err
	}
	if err := e.store.PutCachedResponse(ctx, db.TimelinePath(e.cfg.OwnerID), body, e.now()); err != nil {
		return fmt.Errorf("cache timeline: %w", err)
	}
	entries, err := db.DecodeEntryList(body)
	if err != nil {
		return err
	}
	merged, err := e.store.ApplyRemoteEntries(ctx, e.cfg.OwnerID, entries)
	if err != nil {
		return err
	}
	res.Pulled = merged.Upserted
	res.Removed = merged.Removed
	res.Conflicts = merged.Conflicts
	if merged.Conflicts > 0 {
		e.log.Warn("sync: server changes conflict with pending local edits; local edits kept",
			"conflicts", merged.Conflicts)
	}
	return nil
}

// Status returns a snapshot of the engine state.
func (e *Engine) Status() Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	return Status{
		Running:     e.running.Load(),
		LastPass:    e.lastPass,
		LastSuccess: e.lastSuccess,
		LastResult:  e.lastResult,
	}
}

// Trigger requests a pass as soon as possible. Requests made while one is
// already pending are coalesced.
func (e *Engine) Trigger() {
	select {
	case e.trigger <- struct{}{}:
	default:
	}
}

// OnNetworkChange is the network monitor callback. Coming online triggers a
// pass.
func (e *Engine) OnNetworkChange(online bool) {
	if online {
		e.Trigger()
	}
}

// Run drives passes until ctx is cancelled: one immediately, then one per
// interval, plus any requested through Trigger. The interval restarts after
// every pass whatever its outcome.
func (e *Engine) Run(ctx context.Context) error {
	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-timer.C:
		case <-e.trigger:
		}

		if _, err := e.RunPass(ctx); err != nil {
			if errors.Is(err, ErrPassRunning) {
				e.log.Debug("sync: pass already running")
			} else {
				e.log.Error("sync: pass failed", "err", err)
			}
		}
		resetTimer(timer, e.cfg.Interval)
	}
}

func resetTimer(t *time.Timer, d time.Duration) {
	if !t.Stop() {
		select {
		case <-t.C:
		default:
		}
	}
	t.Reset(d)
}

package sync

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/marcus/nhatky/internal/db"
	"github.com/marcus/nhatky/internal/models"
	"github.com/marcus/nhatky/internal/netstatus"
	"github.com/marcus/nhatky/internal/refdata"
	"github.com/marcus/nhatky/internal/syncclient"
)

type harness struct {
	store   *db.DB
	api     *fakeAPI
	monitor *netstatus.Monitor
	engine  *Engine
}

func setupEngine(t *testing.T, cfg Config) *harness {
	t.Helper()
	store, err := db.Open(t.TempDir(), db.OpenOptions{Driver: "sqlite3"})
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	api, srv := newFakeAPI(t)
	client := syncclient.New(srv.URL, "test-token")
	monitor := netstatus.NewMonitor(store, nil)
	cache := refdata.New(store, client, monitor, nil)
	engine := NewEngine(store, client, cache, monitor, cfg, nil)
	monitor.Subscribe(engine.OnNetworkChange)

	return &harness{store: store, api: api, monitor: monitor, engine: engine}
}

func (h *harness) save(t *testing.T, e *models.TimelineEntry, op models.Operation) *models.TimelineEntry {
	t.Helper()
	saved, err := h.store.SaveTimelineEntry(context.Background(), e, op)
	if err != nil {
		t.Fatalf("SaveTimelineEntry: %v", err)
	}
	return saved
}

func (h *harness) pass(t *testing.T) PassResult {
	t.Helper()
	res, err := h.engine.RunPass(context.Background())
	if err != nil {
		t.Fatalf("RunPass: %v", err)
	}
	return res
}

func (h *harness) queueLen(t *testing.T) int {
	t.Helper()
	items, err := h.store.ListAllQueue(context.Background())
	if err != nil {
		t.Fatalf("ListAllQueue: %v", err)
	}
	return len(items)
}

func TestRunPass_OfflineSkipsEntirely(t *testing.T) {
	h := setupEngine(t, Config{})
	h.save(t, &models.TimelineEntry{UserID: "u1", Notes: "a"}, models.OpCreate)

	res := h.pass(t)
	if !res.Skipped || res.Attempted != 0 {
		t.Errorf("offline pass = %+v", res)
	}
	if n := h.api.mutationCount(); n != 0 {
		t.Errorf("remote calls while offline: %d", n)
	}
	if h.queueLen(t) != 1 {
		t.Error("queue touched while offline")
	}
}

func TestRunPass_OfflineCreateRoundTrip(t *testing.T) {
	h := setupEngine(t, Config{})
	ctx := context.Background()

	a := h.save(t, &models.TimelineEntry{UserID: "u1", Cost: 100000, ExecutionDate: "01-01-2025"}, models.OpCreate)
	if !models.IsLocalID(a.ID) {
		t.Fatalf("offline create id = %s", a.ID)
	}

	h.monitor.SetOnline(true)
	res := h.pass(t)
	if res.Attempted != 1 || res.Synced != 1 || res.Failed != 0 {
		t.Fatalf("pass = %+v", res)
	}
	if got := h.api.mutationLog(); got != "POST srv_1" {
		t.Fatalf("remote calls = %q, want one create", got)
	}

	entries, err := h.store.GetAllTimelineEntries(ctx, "u1")
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Fatalf("entries = %d, want 1", len(entries))
	}
	e := entries[0]
	if e.ID != "srv_1" || e.Sync.Status != models.SyncSynced || e.Cost != 100000 {
		t.Errorf("entry = %s %s cost=%v", e.ID, e.Sync.Status, e.Cost)
	}
	if h.queueLen(t) != 0 {
		t.Errorf("pending queue items = %d, want 0", h.queueLen(t))
	}

	srvRec, _ := h.api.get("srv_1")
	for _, leaked := range []string{"syncStatus", "operation", "lastModified", "localId"} {
		if _, ok := srvRec[leaked]; ok {
			t.Errorf("sync metadata %q sent to server", leaked)
		}
	}

	// back-to-back pass with no new writes
	h.api.resetCalls()
	res = h.pass(t)
	if res.Attempted != 0 || h.api.mutationCount() != 0 {
		t.Errorf("second pass made calls: %+v %q", res, h.api.mutationLog())
	}

	last, _ := h.store.GetTimeSetting(ctx, db.SettingLastSyncSuccess)
	if last.IsZero() {
		t.Error("last successful sync not recorded")
	}
}

func TestRunPass_CollapsedEditsSendOneCreate(t *testing.T) {
	h := setupEngine(t, Config{})

	e := h.save(t, &models.TimelineEntry{UserID: "u1", Notes: "v1"}, models.OpCreate)
	for _, n := range []string{"v2", "v3"} {
		e.Notes = n
		e = h.save(t, e, models.OpUpdate)
	}

	h.monitor.SetOnline(true)
	h.pass(t)
	if got := h.api.mutationLog(); got != "POST srv_1" {
		t.Fatalf("remote calls = %q", got)
	}
	rec, _ := h.api.get("srv_1")
	if rec["notes"] != "v3" {
		t.Errorf("server got notes %v, want v3", rec["notes"])
	}
}

func TestRunPass_LocalOnlyDeleteNeverReachesServer(t *testing.T) {
	h := setupEngine(t, Config{})
	ctx := context.Background()

	e := h.save(t, &models.TimelineEntry{UserID: "u1"}, models.OpCreate)
	if err := h.store.DeleteTimelineEntry(ctx, e.ID); err != nil {
		t.Fatal(err)
	}

	h.monitor.SetOnline(true)
	res := h.pass(t)
	if res.Attempted != 0 || h.api.mutationCount() != 0 {
		t.Errorf("local-only delete reached server: %q", h.api.mutationLog())
	}
}

func TestRunPass_UpdateAndDeleteUseServerID(t *testing.T) {
	h := setupEngine(t, Config{})
	ctx := context.Background()
	h.monitor.SetOnline(true)

	e := h.save(t, &models.TimelineEntry{UserID: "u1", Notes: "v1"}, models.OpCreate)
	h.pass(t)

	synced, err := h.store.GetTimelineEntry(ctx, "srv_1")
	if err != nil {
		t.Fatalf("entry not rekeyed from %s: %v", e.ID, err)
	}
	synced.Notes = "v2"
	h.save(t, synced, models.OpUpdate)
	h.pass(t)

	if err := h.store.DeleteTimelineEntry(ctx, "srv_1"); err != nil {
		t.Fatal(err)
	}
	h.pass(t)

	if got := h.api.mutationLog(); got != "POST srv_1, PUT srv_1, DELETE srv_1" {
		t.Errorf("remote calls = %q", got)
	}
	if _, ok := h.api.get("srv_1"); ok {
		t.Error("server still has the entry")
	}
	if _, err := h.store.GetTimelineEntry(ctx, "srv_1"); !errors.Is(err, db.ErrNotFound) {
		t.Errorf("local row survived acknowledged delete: %v", err)
	}
	if h.queueLen(t) != 0 {
		t.Error("queue not drained")
	}
}

func TestRunPass_DeleteDuringInFlightCreateReachesServer(t *testing.T) {
	h := setupEngine(t, Config{OwnerID: "u1"})
	ctx := context.Background()
	h.monitor.SetOnline(true)

	e := h.save(t, &models.TimelineEntry{UserID: "u1", Notes: "wrong field"}, models.OpCreate)
	h.api.mu.Lock()
	h.api.onCreate = func() {
		// user removes the entry while the create is on the wire
		if err := h.store.DeleteTimelineEntry(ctx, e.ID); err != nil {
			t.Errorf("delete during create: %v", err)
		}
	}
	h.api.mu.Unlock()

	h.pass(t)
	h.api.mu.Lock()
	h.api.onCreate = nil
	h.api.mu.Unlock()

	if entries, _ := h.store.GetAllTimelineEntries(ctx, "u1"); len(entries) != 0 {
		t.Fatalf("deleted entry visible after first pass: %d entries", len(entries))
	}
	if h.queueLen(t) != 1 {
		t.Fatalf("queue = %d, want the remote delete", h.queueLen(t))
	}

	h.pass(t)
	if got := h.api.mutationLog(); got != "POST srv_1, DELETE srv_1" {
		t.Errorf("remote calls = %q", got)
	}
	if _, ok := h.api.get("srv_1"); ok {
		t.Error("server still has the deleted entry")
	}
	if entries, _ := h.store.GetAllTimelineEntries(ctx, "u1"); len(entries) != 0 {
		t.Errorf("deleted entry came back: %d entries", len(entries))
	}
	if h.queueLen(t) != 0 {
		t.Error("queue not drained")
	}
}

func TestRunPass_DeleteOfMissingServerRecordIsAcknowledged(t *testing.T) {
	h := setupEngine(t, Config{})
	ctx := context.Background()
	h.monitor.SetOnline(true)

	h.save(t, &models.TimelineEntry{UserID: "u1"}, models.OpCreate)
	h.pass(t)
	if err := h.store.DeleteTimelineEntry(ctx, "srv_1"); err != nil {
		t.Fatal(err)
	}
	// deleted on the server by someone else in the meantime
	h.api.mu.Lock()
	delete(h.api.entries, "srv_1")
	h.api.mu.Unlock()

	res := h.pass(t)
	if res.Synced != 1 || h.queueLen(t) != 0 {
		t.Errorf("404 delete not treated as done: %+v", res)
	}
}

func TestRunPass_FailureDoesNotAbortPass(t *testing.T) {
	h := setupEngine(t, Config{})
	ctx := context.Background()
	h.api.failNotes = "X"

	x := h.save(t, &models.TimelineEntry{UserID: "u1", Notes: "X"}, models.OpCreate)
	h.save(t, &models.TimelineEntry{UserID: "u1", Notes: "Y"}, models.OpCreate)
	h.save(t, &models.TimelineEntry{UserID: "u1", Notes: "Z"}, models.OpCreate)

	h.monitor.SetOnline(true)
	res := h.pass(t)
	if res.Attempted != 3 || res.Synced != 2 || res.Failed != 1 {
		t.Fatalf("pass = %+v", res)
	}
	if got := h.api.mutationLog(); got != "POST (failed), POST srv_1, POST srv_2" {
		t.Errorf("remote calls = %q", got)
	}

	got, err := h.store.GetTimelineEntry(ctx, x.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Sync.Status != models.SyncError || !strings.Contains(got.Sync.Error, "500") {
		t.Errorf("X sync = %+v", got.Sync)
	}
	if h.queueLen(t) != 1 {
		t.Errorf("X queue item not kept")
	}

	// retried on the next pass, and succeeds once the server recovers
	h.api.failNotes = ""
	res = h.pass(t)
	if res.Synced != 1 {
		t.Errorf("retry pass = %+v", res)
	}
	counts, _ := h.store.SyncCounts(ctx)
	if counts.Unsynced() != 0 {
		t.Errorf("counts after recovery = %+v", counts)
	}
}

func TestRunPass_RetryPolicyDeadLetters(t *testing.T) {
	h := setupEngine(t, Config{Retry: db.RetryPolicy{MaxAttempts: 2}})
	ctx := context.Background()
	h.api.failNotes = "X"
	h.save(t, &models.TimelineEntry{UserID: "u1", Notes: "X"}, models.OpCreate)
	h.monitor.SetOnline(true)

	h.pass(t)
	h.pass(t)
	h.api.resetCalls()
	res := h.pass(t)
	if res.Attempted != 0 || h.api.mutationCount() != 0 {
		t.Errorf("dead item retried: %+v", res)
	}
	counts, _ := h.store.SyncCounts(ctx)
	if counts.Dead != 1 {
		t.Errorf("counts = %+v", counts)
	}
}

func TestRunPass_ReferenceRefreshFailureIsIsolated(t *testing.T) {
	h := setupEngine(t, Config{})
	ctx := context.Background()
	h.api.failPaths["/api/giaidoan"] = true
	h.monitor.SetOnline(true)

	res := h.pass(t)
	if len(res.RefreshErrors) != 1 || !errors.Is(res.RefreshErrors[models.RefStages], refdata.ErrRefreshFailed) {
		t.Fatalf("refresh errors = %v", res.RefreshErrors)
	}

	seasons, _ := h.store.GetReferenceData(ctx, models.RefSeasons)
	tasks, _ := h.store.GetReferenceData(ctx, models.RefTasks)
	if len(seasons) != 1 || len(tasks) != 1 {
		t.Errorf("seasons=%d tasks=%d, want both refreshed", len(seasons), len(tasks))
	}
	last, _ := h.store.GetTimeSetting(ctx, db.SettingLastSyncSuccess)
	if last.IsZero() {
		t.Error("refresh failure should not fail the pass")
	}
}

func TestRunPass_PullsOwnerTimeline(t *testing.T) {
	h := setupEngine(t, Config{OwnerID: "u1"})
	ctx := context.Background()
	h.api.put("srv_100", map[string]any{"userId": "u1", "notes": "from web", "executionDate": "02-02-2025"})
	h.api.put("srv_200", map[string]any{"userId": "u2", "notes": "someone else"})
	h.monitor.SetOnline(true)

	h.save(t, &models.TimelineEntry{UserID: "u1", Notes: "from device", ExecutionDate: "01-01-2025"}, models.OpCreate)
	res := h.pass(t)
	if res.PullError != nil {
		t.Fatalf("pull error: %v", res.PullError)
	}

	entries, _ := h.store.GetAllTimelineEntries(ctx, "u1")
	if len(entries) != 2 {
		t.Fatalf("entries = %d, want 2", len(entries))
	}
	if entries[0].ID != "srv_100" || entries[1].Notes != "from device" {
		t.Errorf("entries = %s, %s", entries[0].ID, entries[1].ID)
	}

	// server-side removal propagates; a pending local edit wins over a server edit
	h.api.mu.Lock()
	delete(h.api.entries, "srv_100")
	h.api.mu.Unlock()
	mine, _ := h.store.GetTimelineEntry(ctx, "srv_1")
	mine.Notes = "edited offline"
	h.save(t, mine, models.OpUpdate)
	h.api.put("srv_1", map[string]any{"userId": "u1", "notes": "edited on web"})
	h.api.failNotes = "edited offline"

	res = h.pass(t)
	if res.Removed != 1 || res.Conflicts != 1 {
		t.Errorf("pull result = %+v", res)
	}
	got, _ := h.store.GetTimelineEntry(ctx, "srv_1")
	if got.Notes != "edited offline" {
		t.Errorf("local edit lost: %q", got.Notes)
	}
	conflicts, _ := h.store.ListConflicts(ctx, 10)
	if len(conflicts) != 1 || conflicts[0].EntryID != "srv_1" {
		t.Errorf("conflicts = %+v", conflicts)
	}

	// the raw listing is kept as the offline fallback
	if _, err := h.store.GetCachedResponse(ctx, db.TimelinePath("u1")); err != nil {
		t.Errorf("timeline response not cached: %v", err)
	}
}

// blockingRemote holds creates until released.
type blockingRemote struct {
	entered chan struct{}
	release chan struct{}
}

func (b *blockingRemote) CreateEntry(ctx context.Context, payload []byte) (*models.TimelineEntry, error) {
	b.entered <- struct{}{}
	<-b.release
	return &models.TimelineEntry{ID: "srv_slow"}, nil
}

func (b *blockingRemote) UpdateEntry(ctx context.Context, id string, payload []byte) (*models.TimelineEntry, error) {
	return nil, nil
}

func (b *blockingRemote) DeleteEntry(ctx context.Context, id string) error { return nil }

func (b *blockingRemote) Fetch(ctx context.Context, path string) ([]byte, error) { return []byte(`[]`), nil }

func TestRunPass_MutualExclusion(t *testing.T) {
	store, err := db.Open(t.TempDir(), db.OpenOptions{Driver: "sqlite3"})
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()
	if _, err := store.SaveTimelineEntry(context.Background(), &models.TimelineEntry{UserID: "u1"}, models.OpCreate); err != nil {
		t.Fatal(err)
	}

	remote := &blockingRemote{entered: make(chan struct{}), release: make(chan struct{})}
	engine := NewEngine(store, remote, nil, nil, Config{}, nil)

	done := make(chan error, 1)
	go func() {
		_, err := engine.RunPass(context.Background())
		done <- err
	}()
	<-remote.entered

	if !engine.Status().Running {
		t.Error("status should report running")
	}
	if _, err := engine.RunPass(context.Background()); !errors.Is(err, ErrPassRunning) {
		t.Errorf("overlapping pass: got %v, want ErrPassRunning", err)
	}

	close(remote.release)
	if err := <-done; err != nil {
		t.Fatalf("first pass: %v", err)
	}
	if engine.Status().Running {
		t.Error("still running after pass")
	}
}

func waitFor(t *testing.T, cond func() bool, timeout time.Duration) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}

func TestRun_NetworkTransitionAndTriggerStartPasses(t *testing.T) {
	h := setupEngine(t, Config{Interval: time.Hour})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.engine.Run(ctx) }()

	// the immediate first pass happens offline and is skipped
	waitFor(t, func() bool { return !h.engine.Status().LastPass.IsZero() }, 2*time.Second)

	h.save(t, &models.TimelineEntry{UserID: "u1", Notes: "a"}, models.OpCreate)
	h.monitor.SetOnline(true)
	waitFor(t, func() bool { return h.api.mutationCount() == 1 }, 2*time.Second)

	h.save(t, &models.TimelineEntry{UserID: "u1", Notes: "b"}, models.OpCreate)
	h.engine.Trigger()
	h.engine.Trigger()
	waitFor(t, func() bool { return h.api.mutationCount() == 2 }, 2*time.Second)

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run returned %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop")
	}
}

func TestTriggerWatcher(t *testing.T) {
	dir := t.TempDir()
	var fired atomic.Int32

	w, err := NewTriggerWatcher(dir, func() { fired.Add(1) }, nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := w.Start(); err != nil {
		t.Fatal(err)
	}
	defer w.Stop()

	if err := TouchTrigger(dir); err != nil {
		t.Fatal(err)
	}
	waitFor(t, func() bool { return fired.Load() > 0 }, 2*time.Second)

	if err := w.Stop(); err != nil {
		t.Errorf("Stop: %v", err)
	}
}

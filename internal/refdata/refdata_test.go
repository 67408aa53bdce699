package refdata

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marcus/nhatky/internal/db"
	"github.com/marcus/nhatky/internal/models"
)

type fakeFetcher struct {
	bodies map[models.ReferenceKind]string
	fail   map[models.ReferenceKind]error
	calls  map[models.ReferenceKind]int
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{
		bodies: map[models.ReferenceKind]string{
			models.RefSeasons: `[{"id":"s1","name":"Dong Xuan 2025","unitId":7}]`,
			models.RefStages:  `{"data":[{"_id":"g1","name":"Gieo sa","order":1},{"_id":"g2","name":"Cham soc","order":2}]}`,
			models.RefTasks:   `[{"id":"t1","name":"Bon lot","stageId":"g1"},{"id":"t2","name":"Phun thuoc","stage":{"_id":"g2"}},{"id":3,"name":"Lam co","stage_id":"g1"}]`,
		},
		fail:  map[models.ReferenceKind]error{},
		calls: map[models.ReferenceKind]int{},
	}
}

func (f *fakeFetcher) FetchReference(_ context.Context, kind models.ReferenceKind) ([]byte, error) {
	f.calls[kind]++
	if err := f.fail[kind]; err != nil {
		return nil, err
	}
	return []byte(f.bodies[kind]), nil
}

type fixedNet bool

func (n fixedNet) Online() bool { return bool(n) }

func newTestStore(t *testing.T) *db.DB {
	t.Helper()
	database, err := db.Open(t.TempDir(), db.DefaultOpenOptions())
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close() })
	return database
}

func TestCache_ReadThroughRefreshesEmptyCollection(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	remote := newFakeFetcher()
	cache := New(store, remote, fixedNet(true), nil)

	seasons, err := cache.Seasons(ctx)
	require.NoError(t, err)
	require.Len(t, seasons, 1)
	assert.Equal(t, "s1", seasons[0].ID)
	assert.Equal(t, "7", seasons[0].UnitID)

	// second read is served locally
	_, err = cache.Seasons(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, remote.calls[models.RefSeasons])

	stages, err := cache.Stages(ctx)
	require.NoError(t, err)
	require.Len(t, stages, 2)
	assert.Equal(t, "g2", stages[1].ID)
	assert.Equal(t, 2, stages[1].Order)
}

func TestCache_TasksByStageID(t *testing.T) {
	ctx := context.Background()
	cache := New(newTestStore(t), newFakeFetcher(), nil, nil)

	tasks, err := cache.TasksByStageID(ctx, "g1")
	require.NoError(t, err)
	require.Len(t, tasks, 2)
	assert.Equal(t, "t1", tasks[0].ID)
	assert.Equal(t, "3", tasks[1].ID)

	tasks, err = cache.TasksByStageID(ctx, "g2")
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, "g2", tasks[0].StageID)

	tasks, err = cache.TasksByStageID(ctx, "missing")
	require.NoError(t, err)
	assert.Empty(t, tasks)
}

func TestCache_RefreshAllIsolatesFailures(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	remote := newFakeFetcher()
	remote.fail[models.RefStages] = errors.New("HTTP 500")
	cache := New(store, remote, fixedNet(true), nil)

	errs := cache.RefreshAll(ctx)
	require.Len(t, errs, 1)
	assert.ErrorIs(t, errs[models.RefStages], ErrRefreshFailed)

	seasons, err := store.GetReferenceData(ctx, models.RefSeasons)
	require.NoError(t, err)
	assert.Len(t, seasons, 1)
	tasks, err := store.GetReferenceData(ctx, models.RefTasks)
	require.NoError(t, err)
	assert.Len(t, tasks, 3)
}

func TestCache_FailedRefreshKeepsPreviousSnapshot(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	remote := newFakeFetcher()
	cache := New(store, remote, fixedNet(true), nil)
	require.NoError(t, cache.Refresh(ctx, models.RefTasks))

	remote.bodies[models.RefTasks] = `[{"name":"no id"}]`
	err := cache.Refresh(ctx, models.RefTasks)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRefreshFailed)

	tasks, err := cache.Tasks(ctx)
	require.NoError(t, err)
	assert.Len(t, tasks, 3)
}

func TestCache_OfflineFallsBackToRawResponse(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	remote := newFakeFetcher()

	// raw response survived but the structured collection was wiped
	require.NoError(t, store.PutCachedResponse(ctx, "/api/congviec", []byte(remote.bodies[models.RefTasks]), time.Now()))

	cache := New(store, remote, fixedNet(false), nil)
	tasks, err := cache.TasksByStageID(ctx, "g1")
	require.NoError(t, err)
	assert.Len(t, tasks, 2)
	assert.Zero(t, remote.calls[models.RefTasks])

	seasons, err := cache.Seasons(ctx)
	require.NoError(t, err)
	assert.Empty(t, seasons)
}

func TestCache_NoRemote(t *testing.T) {
	cache := New(newTestStore(t), nil, nil, nil)
	err := cache.Refresh(context.Background(), models.RefSeasons)
	assert.ErrorIs(t, err, ErrRefreshFailed)

	seasons, err := cache.Seasons(context.Background())
	require.NoError(t, err)
	assert.Empty(t, seasons)
}

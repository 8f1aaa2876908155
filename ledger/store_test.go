package ledger

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/cytofkit/cytofkit/errors"
	testdb "github.com/cytofkit/cytofkit/internal/testing"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	return NewStore(testdb.CreateTestDB(t), zaptest.NewLogger(t).Sugar())
}

func TestNewRunID(t *testing.T) {
	id, err := NewRunID(KindCluster)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(id, "CR_"))
	assert.Len(t, id, 15)

	id, err = NewRunID(Kind("other"))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(id, "RN_"))
}

func TestStoreLifecycle(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	run := &Run{Kind: KindCluster, Algorithm: "kmeans", Params: `{"k":3}`, InputPath: "/data/samples"}
	require.NoError(t, store.Begin(ctx, run))
	require.NotEmpty(t, run.ID)
	assert.Equal(t, StatusRunning, run.Status)

	got, err := store.Get(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusRunning, got.Status)
	assert.Nil(t, got.CompletedAt)

	outcome := Outcome{
		OutputDir: "/data/samples/results/cluster_results/240102_0304",
		NRows:     120,
		NClusters: 3,
		Artifacts: []Artifact{
			{Name: "combined_results.csv", Kind: "table", SizeBytes: 2048},
			{Name: "cluster_marker_means.csv", Kind: "table", SizeBytes: 128},
		},
	}
	require.NoError(t, store.Complete(ctx, run.ID, outcome))

	got, err = store.Get(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, got.Status)
	assert.Equal(t, 120, got.NRows)
	assert.Equal(t, 3, got.NClusters)
	assert.Equal(t, outcome.OutputDir, got.OutputDir)
	require.NotNil(t, got.CompletedAt)
	assert.GreaterOrEqual(t, got.DurationMS, int64(0))

	artifacts, err := store.Artifacts(ctx, run.ID)
	require.NoError(t, err)
	require.Len(t, artifacts, 2)
	assert.Equal(t, "cluster_marker_means.csv", artifacts[0].Name)

	// a completed run cannot be completed or failed again
	assert.Error(t, store.Complete(ctx, run.ID, outcome))
	assert.Error(t, store.Fail(ctx, run.ID, errors.New("late")))
}

func TestStoreFailAndCancel(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	failed := &Run{Kind: KindEmbed, Algorithm: "tsne", InputPath: "/data"}
	require.NoError(t, store.Begin(ctx, failed))
	require.NoError(t, store.Fail(ctx, failed.ID, errors.DataStateErrorf("no dataset loaded")))

	cancelled := &Run{Kind: KindCluster, Algorithm: "phenograph", InputPath: "/data"}
	require.NoError(t, store.Begin(ctx, cancelled))
	require.NoError(t, store.Fail(ctx, cancelled.ID, errors.Wrap(context.Canceled, "cluster")))

	got, err := store.Get(ctx, failed.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, got.Status)
	assert.Equal(t, "data_state", got.ErrorKind)
	assert.Contains(t, got.Error, "no dataset loaded")

	got, err = store.Get(ctx, cancelled.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, got.Status)
	assert.Equal(t, "cancelled", got.ErrorKind)
}

func TestStoreList(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	base := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	tick := 0
	store.now = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Minute)
	}

	var ids []string
	for _, kind := range []Kind{KindCluster, KindEmbed, KindCluster} {
		run := &Run{Kind: kind, InputPath: "/data"}
		require.NoError(t, store.Begin(ctx, run))
		ids = append(ids, run.ID)
	}

	all, err := store.List(ctx, ListFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, ids[2], all[0].ID, "newest first")

	clusters, err := store.List(ctx, ListFilter{Kind: KindCluster, Limit: 1})
	require.NoError(t, err)
	require.Len(t, clusters, 1)
	assert.Equal(t, ids[2], clusters[0].ID)
}

func TestStoreGetMissing(t *testing.T) {
	_, err := newTestStore(t).Get(context.Background(), "CR_NOPE")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "CR_NOPE")
	assert.NotEmpty(t, errors.GetAllHints(err))
}

func TestStoreBegin_Sqlmock(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := NewStore(db, zaptest.NewLogger(t).Sugar())

	mock.ExpectExec(`INSERT INTO runs`).
		WithArgs("CR_FIXED", "cluster", "kmeans", "{}", "/data", "running", sqlmock.AnyArg()).
		WillReturnError(errors.New("disk I/O error"))

	err = store.Begin(context.Background(), &Run{ID: "CR_FIXED", Kind: KindCluster, Algorithm: "kmeans", InputPath: "/data"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "CR_FIXED")
	assert.Contains(t, err.Error(), "disk I/O error")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStoreComplete_SqlmockRollsBackOnArtifactFailure(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := NewStore(db, zaptest.NewLogger(t).Sugar())

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE runs`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO run_artifacts`).WillReturnError(errors.New("constraint failed"))
	mock.ExpectRollback()

	err = store.Complete(context.Background(), "CR_X", Outcome{Artifacts: []Artifact{{Name: "a.csv", Kind: "table"}}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "a.csv")
	require.NoError(t, mock.ExpectationsWereMet())
}

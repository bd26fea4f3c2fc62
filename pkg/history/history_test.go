package history

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/feichai0017/docformat/internal/models"
)

func record(id string, finished time.Time) Record {
	return Record{
		Summary: models.BatchSummary{
			JobID:     id,
			Status:    models.StatusCompleted,
			Total:     2,
			Succeeded: 1,
			Failed:    1,
			Outcomes: []models.FileOutcome{
				{Index: 0, Filename: "a.docx", OutputName: "formatted_a.docx", Succeeded: true},
				{Index: 1, Filename: "b.docx", FailureKind: models.FailureDecode, Error: "bad zip"},
			},
			OutputName: models.BundleName,
			StartedAt:  finished.Add(-time.Second),
			FinishedAt: finished,
		},
		Profile: models.DefaultProfile(),
	}
}

func TestRecordAndList(t *testing.T) {
	ctx := context.Background()
	store, err := Open(filepath.Join(t.TempDir(), "nested", "history.db"))
	require.NoError(t, err)
	defer store.Close()

	base := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	require.NoError(t, store.Record(ctx, record("old", base)))
	require.NoError(t, store.Record(ctx, record("new", base.Add(time.Hour))))

	recs, err := store.List(ctx, 10)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "new", recs[0].Summary.JobID)
	assert.Equal(t, models.FailureDecode, recs[0].Summary.Outcomes[1].FailureKind)
	assert.Equal(t, models.DefaultProfile(), recs[0].Profile)
	assert.True(t, recs[1].Summary.FinishedAt.Equal(base))

	updated := record("old", base)
	updated.Summary.Status = models.StatusFailed
	require.NoError(t, store.Record(ctx, updated))
	recs, err = store.List(ctx, 1)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "new", recs[0].Summary.JobID)
}

func TestDeleteBefore(t *testing.T) {
	ctx := context.Background()
	store, err := Open(":memory:")
	require.NoError(t, err)
	defer store.Close()

	base := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	require.NoError(t, store.Record(ctx, record("a", base)))
	require.NoError(t, store.Record(ctx, record("b", base.Add(2*time.Hour))))

	n, err := store.DeleteBefore(ctx, base.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	recs, err := store.List(ctx, 0)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "b", recs[0].Summary.JobID)
}

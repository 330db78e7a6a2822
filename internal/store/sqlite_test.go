package store

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nexcred/backoffice/internal/model"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	st, err := NewSQLite(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func testJob(id string, provider model.Provider, identifiers []string) *model.BatchJob {
	return &model.BatchJob{
		ID:          id,
		Provider:    provider,
		FileName:    "lote.csv",
		Identifiers: identifiers,
		Total:       len(identifiers),
		Status:      model.JobStatusProcessing,
		OwnerID:     "user-1",
		OwnerEmail:  "ana@nexcred.com",
		CreatedAt:   time.Now().UTC(),
	}
}

// --- Batch jobs ---

func TestSQLiteStore_JobLifecycle(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	job := testJob("job-1", model.ProviderV8, []string{"11111111111", "22222222222"})
	require.NoError(t, st.CreateJob(ctx, job))

	got, err := st.GetJob(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, model.ProviderV8, got.Provider)
	assert.Equal(t, []string{"11111111111", "22222222222"}, got.Identifiers)
	assert.Equal(t, 2, got.Total)
	assert.Equal(t, 0, got.Processed)
	assert.Equal(t, model.JobStatusProcessing, got.Status)

	require.NoError(t, st.IncrementJobProgress(ctx, "job-1"))
	require.NoError(t, st.IncrementJobProgress(ctx, "job-1"))

	got, err = st.GetJob(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, 2, got.Processed)

	// A third increment would push processed past total.
	err = st.IncrementJobProgress(ctx, "job-1")
	require.Error(t, err)

	require.NoError(t, st.FinalizeJob(ctx, "job-1", model.JobStatusCompleted, ""))

	got, err = st.GetJob(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusCompleted, got.Status)
	assert.True(t, got.Terminal())
}

func TestSQLiteStore_GetJob_NotFound(t *testing.T) {
	st := newTestSQLiteStore(t)

	_, err := st.GetJob(context.Background(), "missing")
	require.Error(t, err)
}

func TestSQLiteStore_TerminalJobIsImmutable(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	job := testJob("job-1", model.ProviderFacta, []string{"11111111111"})
	require.NoError(t, st.CreateJob(ctx, job))
	require.NoError(t, st.FinalizeJob(ctx, "job-1", model.JobStatusError, "auth failed"))

	// Neither progress nor a second finalization may touch a terminal job.
	assert.Error(t, st.IncrementJobProgress(ctx, "job-1"))
	assert.Error(t, st.FinalizeJob(ctx, "job-1", model.JobStatusCompleted, ""))

	got, err := st.GetJob(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusError, got.Status)
	assert.Equal(t, "auth failed", got.ErrorMsg)
	assert.Equal(t, 0, got.Processed)
}

func TestSQLiteStore_FinalizeJob_RejectsNonTerminalStatus(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	require.NoError(t, st.CreateJob(ctx, testJob("job-1", model.ProviderV8, []string{"11111111111"})))
	assert.Error(t, st.FinalizeJob(ctx, "job-1", model.JobStatusProcessing, ""))
}

func TestSQLiteStore_ListJobs_Filters(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		job := testJob(fmt.Sprintf("v8-job-%d", i), model.ProviderV8, []string{"11111111111"})
		job.CreatedAt = time.Now().UTC().Add(time.Duration(i) * time.Second)
		require.NoError(t, st.CreateJob(ctx, job))
	}
	factaJob := testJob("facta-job", model.ProviderFacta, []string{"22222222222"})
	require.NoError(t, st.CreateJob(ctx, factaJob))
	require.NoError(t, st.FinalizeJob(ctx, "facta-job", model.JobStatusCompleted, ""))

	byProvider, err := st.ListJobs(ctx, JobFilter{Provider: model.ProviderV8})
	require.NoError(t, err)
	assert.Len(t, byProvider, 3)

	byStatus, err := st.ListJobs(ctx, JobFilter{Status: model.JobStatusCompleted})
	require.NoError(t, err)
	require.Len(t, byStatus, 1)
	assert.Equal(t, "facta-job", byStatus[0].ID)

	limited, err := st.ListJobs(ctx, JobFilter{Limit: 2})
	require.NoError(t, err)
	assert.Len(t, limited, 2)

	// Newest first.
	all, err := st.ListJobs(ctx, JobFilter{})
	require.NoError(t, err)
	require.Len(t, all, 4)
	assert.Equal(t, "v8-job-2", all[0].ID)
}

// --- Result records ---

func TestSQLiteStore_UpsertResult_Idempotent(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	key := model.CorrelationKey(model.ProviderV8, "111.111.111-11")
	first := 1200.50
	rec := &model.ResultRecord{
		CorrelationKey: key,
		Provider:       model.ProviderV8,
		Identifier:     "11111111111",
		Status:         model.ResultStatusSuccess,
		Balance:        &first,
		RawPayload:     []byte(`{"balance":1200.50}`),
		ReceivedAt:     time.Now().UTC(),
	}
	require.NoError(t, st.UpsertResult(ctx, rec))

	// A duplicate webhook delivery overwrites in place, never duplicates.
	second := 1523.87
	rec.Balance = &second
	rec.Message = "atualizado"
	require.NoError(t, st.UpsertResult(ctx, rec))

	got, err := st.GetResult(ctx, key)
	require.NoError(t, err)
	require.NotNil(t, got)
	require.NotNil(t, got.Balance)
	assert.Equal(t, 1523.87, *got.Balance)
	assert.Equal(t, "atualizado", got.Message)

	all, err := st.GetResults(ctx, []string{key})
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestSQLiteStore_GetResult_NotFound(t *testing.T) {
	st := newTestSQLiteStore(t)

	got, err := st.GetResult(context.Background(), "v8:99999999999")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestSQLiteStore_GetResults_Subset(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	for _, cpf := range []string{"11111111111", "22222222222"} {
		require.NoError(t, st.UpsertResult(ctx, &model.ResultRecord{
			CorrelationKey: model.CorrelationKey(model.ProviderFacta, cpf),
			Provider:       model.ProviderFacta,
			Identifier:     cpf,
			Status:         model.ResultStatusSuccess,
			ReceivedAt:     time.Now().UTC(),
		}))
	}

	keys := []string{
		model.CorrelationKey(model.ProviderFacta, "11111111111"),
		model.CorrelationKey(model.ProviderFacta, "33333333333"), // never queried
	}
	results, err := st.GetResults(ctx, keys)
	require.NoError(t, err)
	require.Len(t, results, 1)
	_, ok := results[keys[0]]
	assert.True(t, ok)

	empty, err := st.GetResults(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

// --- Activity log ---

func TestSQLiteStore_Activity_AppendAndList(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	base := time.Now().UTC()
	for i := 0; i < 3; i++ {
		require.NoError(t, st.AppendActivity(ctx, &model.ActivityLogEntry{
			ID:        fmt.Sprintf("act-%d", i),
			UserID:    "user-1",
			UserEmail: "ana@nexcred.com",
			Action:    model.ActionBatchSubmitted,
			Provider:  model.ProviderV8,
			Detail:    fmt.Sprintf("lote %d", i),
			CreatedAt: base.Add(time.Duration(i) * time.Second),
		}))
	}

	entries, err := st.ListActivity(ctx, 2)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "act-2", entries[0].ID)
	assert.Equal(t, "act-1", entries[1].ID)
}

// --- Partner credentials ---

func TestSQLiteStore_Credentials_Roundtrip(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	missing, err := st.GetCredentials(ctx, "user-1", model.ProviderC6)
	require.NoError(t, err)
	assert.Nil(t, missing)

	require.NoError(t, st.PutCredentials(ctx, &model.PartnerCredentials{
		OwnerID:  "user-1",
		Provider: model.ProviderC6,
		Fields:   map[string]string{"client_id": "cid", "client_secret": "old"},
	}))
	require.NoError(t, st.PutCredentials(ctx, &model.PartnerCredentials{
		OwnerID:  "user-1",
		Provider: model.ProviderC6,
		Fields:   map[string]string{"client_id": "cid", "client_secret": "new"},
	}))

	got, err := st.GetCredentials(ctx, "user-1", model.ProviderC6)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "new", got.Field("client_secret"))
	assert.False(t, got.UpdatedAt.IsZero())
}

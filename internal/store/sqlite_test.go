package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/triage-cli/internal/model"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLite(filepath.Join(t.TempDir(), "triage.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	require.NoError(t, s.Migrate(context.Background()))
	return s
}

func testEmail(id int64) *model.Email {
	return &model.Email{
		ID:        id,
		Timestamp: "2024-05-01 09:30:00",
		Sender:    "jane.doe@example.com",
		Subject:   "Where is my refund",
		Body:      "I requested a refund two weeks ago and have heard nothing.",
	}
}

func TestSQLiteStore_InsertAndGet(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()

	require.NoError(t, s.Insert(ctx, testEmail(1)))

	got, err := s.Get(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(1), got.ID)
	assert.Equal(t, "jane.doe@example.com", got.Sender)
	assert.Equal(t, "Where is my refund", got.Subject)
	assert.Nil(t, got.IntentLabel)
	assert.Nil(t, got.UrgencyScore)
	assert.Nil(t, got.Response)
}

func TestSQLiteStore_InsertDuplicate(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()

	require.NoError(t, s.Insert(ctx, testEmail(1)))
	err := s.Insert(ctx, testEmail(1))
	require.Error(t, err)
	assert.True(t, eris.Is(err, model.ErrDuplicateID))
}

func TestSQLiteStore_GetNotFound(t *testing.T) {
	s := newTestSQLiteStore(t)

	_, err := s.Get(context.Background(), 99)
	require.Error(t, err)
	assert.True(t, eris.Is(err, model.ErrNotFound))
}

func TestSQLiteStore_Exists(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()

	ok, err := s.Exists(ctx, 1)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Insert(ctx, testEmail(1)))

	ok, err = s.Exists(ctx, 1)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestSQLiteStore_InsertAssigned_Sequential(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()

	for want := int64(1); want <= 5; want++ {
		id, err := s.InsertAssigned(ctx, testEmail(0))
		require.NoError(t, err)
		assert.Equal(t, want, id)
	}

	maxID, err := s.MaxID(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(5), maxID)

	count, err := s.CountEmails(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(5), count)
}

func TestSQLiteStore_InsertAssigned_IgnoresProvisionalID(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()

	// Assignment overrides whatever id the source supplied.
	id, err := s.InsertAssigned(ctx, testEmail(42))
	require.NoError(t, err)
	assert.Equal(t, int64(1), id)
}

func TestSQLiteStore_UpdateDerived(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()

	require.NoError(t, s.Insert(ctx, testEmail(1)))
	require.NoError(t, s.UpdateDerived(ctx, 1, "Refund Request", 2, "Dear customer, ..."))

	got, err := s.Get(ctx, 1)
	require.NoError(t, err)
	require.NotNil(t, got.IntentLabel)
	require.NotNil(t, got.UrgencyScore)
	require.NotNil(t, got.Response)
	assert.Equal(t, "Refund Request", *got.IntentLabel)
	assert.Equal(t, 2, *got.UrgencyScore)
	assert.Equal(t, "Dear customer, ...", *got.Response)
}

func TestSQLiteStore_UpdateDerived_Idempotent(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()

	require.NoError(t, s.Insert(ctx, testEmail(1)))
	require.NoError(t, s.UpdateDerived(ctx, 1, "Refund Request", 2, "reply"))
	require.NoError(t, s.UpdateDerived(ctx, 1, "Refund Request", 2, "reply"))

	got, err := s.Get(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "Refund Request", *got.IntentLabel)
	assert.Equal(t, 2, *got.UrgencyScore)
	assert.Equal(t, "reply", *got.Response)

	count, err := s.CountEmails(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestSQLiteStore_UpdateDerived_NotFound(t *testing.T) {
	s := newTestSQLiteStore(t)

	err := s.UpdateDerived(context.Background(), 404, "Refund Request", 1, "reply")
	require.Error(t, err)
	assert.True(t, eris.Is(err, model.ErrNotFound))
}

func TestSQLiteStore_UpdateDerived_ClampsUrgency(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()

	require.NoError(t, s.Insert(ctx, testEmail(1)))
	require.NoError(t, s.UpdateDerived(ctx, 1, "Complaint", 9, "reply"))

	got, err := s.Get(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, model.MaxUrgency, *got.UrgencyScore)

	require.NoError(t, s.UpdateDerived(ctx, 1, "Complaint", -3, "reply"))
	got, err = s.Get(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, model.MinUrgency, *got.UrgencyScore)
}

func TestSQLiteStore_Upsert(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()

	e := testEmail(1)
	require.NoError(t, s.Upsert(ctx, e))

	e.Subject = "Updated subject"
	intent := "Billing Issue"
	e.IntentLabel = &intent
	require.NoError(t, s.Upsert(ctx, e))

	got, err := s.Get(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "Updated subject", got.Subject)
	require.NotNil(t, got.IntentLabel)
	assert.Equal(t, "Billing Issue", *got.IntentLabel)

	count, err := s.CountEmails(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestSQLiteStore_BulkInsert(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()

	emails := []model.Email{*testEmail(1), *testEmail(2), *testEmail(3)}
	inserted, err := s.BulkInsert(ctx, emails)
	require.NoError(t, err)
	assert.Equal(t, int64(3), inserted)

	// Re-ingesting the same dataset inserts nothing new.
	inserted, err = s.BulkInsert(ctx, emails)
	require.NoError(t, err)
	assert.Equal(t, int64(0), inserted)

	count, err := s.CountEmails(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), count)
}

func TestSQLiteStore_RunLifecycle(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()

	run, err := s.StartRun(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, run.ID)
	assert.Equal(t, model.RunStatusIdle, run.Status)

	require.NoError(t, s.UpdateRunStatus(ctx, run.ID, model.RunStatusFetching, model.StageFetch))
	require.NoError(t, s.UpdateRunStatus(ctx, run.ID, model.RunStatusClassifying, model.StageClassify))

	emailID := int64(7)
	require.NoError(t, s.FinishRun(ctx, run.ID, model.RunStatusDone, model.StageRecord, &emailID, ""))

	runs, err := s.ListRuns(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, run.ID, runs[0].ID)
	assert.Equal(t, model.RunStatusDone, runs[0].Status)
	assert.Equal(t, model.StageRecord, runs[0].Stage)
	require.NotNil(t, runs[0].EmailID)
	assert.Equal(t, int64(7), *runs[0].EmailID)
	assert.NotNil(t, runs[0].FinishedAt)
	assert.Empty(t, runs[0].Error)
}

func TestSQLiteStore_FinishRun_Failed(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()

	run, err := s.StartRun(ctx)
	require.NoError(t, err)

	require.NoError(t, s.FinishRun(ctx, run.ID, model.RunStatusFailed, model.StageFetch, nil, "source unreachable"))

	runs, err := s.ListRuns(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, model.RunStatusFailed, runs[0].Status)
	assert.Equal(t, model.StageFetch, runs[0].Stage)
	assert.Nil(t, runs[0].EmailID)
	assert.Equal(t, "source unreachable", runs[0].Error)
}

func TestSQLiteStore_UpdateRunStatus_NotFound(t *testing.T) {
	s := newTestSQLiteStore(t)

	err := s.UpdateRunStatus(context.Background(), "missing-run", model.RunStatusFetching, model.StageFetch)
	require.Error(t, err)
	assert.True(t, eris.Is(err, model.ErrNotFound))
}

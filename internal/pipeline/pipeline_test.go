package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/triage-cli/internal/assign"
	"github.com/sells-group/triage-cli/internal/collab"
	"github.com/sells-group/triage-cli/internal/model"
	"github.com/sells-group/triage-cli/internal/recorder"
	"github.com/sells-group/triage-cli/internal/store"
	"github.com/sells-group/triage-cli/internal/view"
)

type stubFetcher struct {
	email *model.Email
	err   error
}

func (f *stubFetcher) Fetch(context.Context) (*model.Email, error) {
	if f.err != nil {
		return nil, f.err
	}
	e := *f.email
	return &e, nil
}

type testHarness struct {
	pipeline *Pipeline
	store    store.Store
	viewPath string
}

func newHarness(t *testing.T, f *stubFetcher) *testHarness {
	t.Helper()
	dir := t.TempDir()

	st, err := store.NewSQLite(filepath.Join(dir, "triage.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	require.NoError(t, st.Migrate(context.Background()))

	assigner, err := assign.New("sequential")
	require.NoError(t, err)

	collabs, err := collab.New(collab.Options{})
	require.NoError(t, err)

	viewPath := filepath.Join(dir, "index.html")
	rec := recorder.New(st, view.New(viewPath))

	return &testHarness{
		pipeline: New(st, f, assigner, collabs, rec, time.Minute),
		store:    st,
		viewPath: viewPath,
	}
}

func angryRefundEmail() *model.Email {
	return &model.Email{
		Timestamp: "2024-05-01 09:30:00",
		Sender:    "jane.doe@example.com",
		Subject:   "Where is my refund",
		Body:      "I am furious. I requested a refund two weeks ago and nothing happened.",
	}
}

func TestPipeline_Run_EndToEnd(t *testing.T) {
	h := newHarness(t, &stubFetcher{email: angryRefundEmail()})
	ctx := context.Background()

	result, err := h.pipeline.Run(ctx)
	require.NoError(t, err)

	assert.Equal(t, int64(1), result.Email.ID)
	assert.Equal(t, "Refund Request", result.Intent)
	assert.Equal(t, 2, result.Urgency)
	assert.Contains(t, result.Response, "Dear jane.doe@example.com,")
	assert.Contains(t, result.Response, "refund request")
	assert.False(t, result.ViewLagged)

	// The store row carries all three derived fields.
	got, err := h.store.Get(ctx, 1)
	require.NoError(t, err)
	require.NotNil(t, got.IntentLabel)
	assert.Equal(t, "Refund Request", *got.IntentLabel)
	require.NotNil(t, got.UrgencyScore)
	assert.Equal(t, 2, *got.UrgencyScore)
	require.NotNil(t, got.Response)

	// The view shows the processed email.
	raw, err := os.ReadFile(h.viewPath)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "Email ID: 1")
	assert.Contains(t, string(raw), "Refund Request")

	// The run audit row is finished.
	runs, err := h.store.ListRuns(ctx, 5)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, model.RunStatusDone, runs[0].Status)
	require.NotNil(t, runs[0].EmailID)
	assert.Equal(t, int64(1), *runs[0].EmailID)
	assert.NotNil(t, runs[0].FinishedAt)
}

func TestPipeline_Run_SequentialIDsAcrossRuns(t *testing.T) {
	h := newHarness(t, &stubFetcher{email: angryRefundEmail()})
	ctx := context.Background()

	for want := int64(1); want <= 3; want++ {
		result, err := h.pipeline.Run(ctx)
		require.NoError(t, err)
		assert.Equal(t, want, result.Email.ID)
	}

	count, err := h.store.CountEmails(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), count)
}

func TestPipeline_Run_FetchFailureWritesNothing(t *testing.T) {
	h := newHarness(t, &stubFetcher{err: eris.Wrap(model.ErrFetchFailure, "source unreachable")})
	ctx := context.Background()

	_, err := h.pipeline.Run(ctx)
	require.Error(t, err)
	assert.True(t, eris.Is(err, model.ErrFetchFailure))

	// Failed fetch leaves the store untouched.
	count, cerr := h.store.CountEmails(ctx)
	require.NoError(t, cerr)
	assert.Equal(t, int64(0), count)

	// No view document is created either.
	_, statErr := os.Stat(h.viewPath)
	assert.True(t, os.IsNotExist(statErr))

	// The run audit row records the failed stage.
	runs, rerr := h.store.ListRuns(ctx, 5)
	require.NoError(t, rerr)
	require.Len(t, runs, 1)
	assert.Equal(t, model.RunStatusFailed, runs[0].Status)
	assert.Equal(t, model.StageFetch, runs[0].Stage)
	assert.NotEmpty(t, runs[0].Error)
}

func TestPipeline_Run_ViewFailureIsPartialSuccess(t *testing.T) {
	h := newHarness(t, &stubFetcher{email: angryRefundEmail()})
	ctx := context.Background()

	// A marker-less document breaks the view append while the store
	// write still commits.
	require.NoError(t, os.WriteFile(h.viewPath, []byte("<html>no marker</html>"), 0o644))

	result, err := h.pipeline.Run(ctx)
	require.NoError(t, err)
	assert.True(t, result.ViewLagged)

	got, gerr := h.store.Get(ctx, 1)
	require.NoError(t, gerr)
	require.NotNil(t, got.IntentLabel)
	assert.Equal(t, "Refund Request", *got.IntentLabel)

	// Partial success still finishes the run as done.
	runs, rerr := h.store.ListRuns(ctx, 5)
	require.NoError(t, rerr)
	require.Len(t, runs, 1)
	assert.Equal(t, model.RunStatusDone, runs[0].Status)
}

func TestPipeline_Run_NeutralEmailDefaults(t *testing.T) {
	neutral := &model.Email{
		Timestamp: "2024-05-01 10:00:00",
		Sender:    "sam@example.com",
		Subject:   "Quick hello",
		Body:      "Just wanted to check in, everything is fine.",
	}
	h := newHarness(t, &stubFetcher{email: neutral})

	result, err := h.pipeline.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "General Question", result.Intent)
	assert.Equal(t, 0, result.Urgency)
	assert.Contains(t, result.Response, "Thank you for reaching out")
}

package fetcher

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/sells-group/triage-cli/internal/model"
	"github.com/sells-group/triage-cli/internal/resilience"
)

func fastRetry(attempts int) resilience.RetryConfig {
	return resilience.RetryConfig{
		MaxAttempts:    attempts,
		BaseDelay:      1 * time.Millisecond,
		MaxDelay:       10 * time.Millisecond,
		Multiplier:     2.0,
		JitterFraction: 0,
	}
}

func newTestFetcher(url string, attempts int) *HTTPFetcher {
	return NewHTTP(HTTPOptions{
		SourceURL: url,
		Timeout:   2 * time.Second,
		Retry:     fastRetry(attempts),
		Limiter:   rate.NewLimiter(rate.Inf, 1),
	})
}

const goodPayload = `{
	"email_id": 3,
	"timestamp": "2024-05-01 09:30:00",
	"sender": "jane.doe@example.com",
	"subject": "Where is my refund",
	"body": "I requested a refund two weeks ago and have heard nothing."
}`

func TestHTTPFetcher_Success(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		assert.Equal(t, "application/json", r.Header.Get("Accept"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(goodPayload))
	}))
	defer srv.Close()

	f := newTestFetcher(srv.URL, 3)
	email, err := f.Fetch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, int64(3), email.ID)
	assert.Equal(t, "jane.doe@example.com", email.Sender)
	assert.Equal(t, "Where is my refund", email.Subject)
	assert.Nil(t, email.IntentLabel)
}

func TestHTTPFetcher_SuccessOnThirdAttempt(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(goodPayload))
	}))
	defer srv.Close()

	f := newTestFetcher(srv.URL, 3)
	email, err := f.Fetch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(3), calls.Load())
	assert.Equal(t, "jane.doe@example.com", email.Sender)
}

func TestHTTPFetcher_ExhaustsAttempts(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	f := newTestFetcher(srv.URL, 3)
	email, err := f.Fetch(context.Background())
	require.Error(t, err)
	assert.Nil(t, email)
	assert.Equal(t, int32(3), calls.Load())
	assert.True(t, eris.Is(err, model.ErrFetchFailure))
}

func TestHTTPFetcher_RetriesMalformedPayload(t *testing.T) {
	// Every failure mode is retried, not only transport errors.
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 2 {
			_, _ = w.Write([]byte(`{"subject": "no sender field"}`))
			return
		}
		_, _ = w.Write([]byte(goodPayload))
	}))
	defer srv.Close()

	f := newTestFetcher(srv.URL, 3)
	email, err := f.Fetch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load())
	assert.Equal(t, "jane.doe@example.com", email.Sender)
}

func TestHTTPFetcher_RetriesNonTransientStatus(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	f := newTestFetcher(srv.URL, 3)
	_, err := f.Fetch(context.Background())
	require.Error(t, err)
	assert.Equal(t, int32(3), calls.Load())
	assert.True(t, eris.Is(err, model.ErrFetchFailure))
}

func TestHTTPFetcher_ContextCancelStopsRetries(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	f := newTestFetcher(srv.URL, 3)
	_, err := f.Fetch(ctx)
	require.Error(t, err)
	assert.LessOrEqual(t, calls.Load(), int32(1))
}

func TestHTTPFetcher_DefaultsTimestamp(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"sender": "a@b.com", "subject": "hi", "body": "hello"}`))
	}))
	defer srv.Close()

	f := newTestFetcher(srv.URL, 1)
	email, err := f.Fetch(context.Background())
	require.NoError(t, err)
	assert.NotEmpty(t, email.Timestamp)
	_, perr := time.Parse("2006-01-02 15:04:05", email.Timestamp)
	assert.NoError(t, perr)
	assert.False(t, email.HasID())
}

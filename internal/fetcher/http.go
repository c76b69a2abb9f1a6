package fetcher

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/triage-cli/internal/model"
	"github.com/sells-group/triage-cli/internal/resilience"
)

// HTTPOptions configures the HTTP fetcher.
type HTTPOptions struct {
	SourceURL string
	UserAgent string
	// Timeout bounds each individual attempt, not the whole fetch.
	Timeout time.Duration
	Retry   resilience.RetryConfig
	// Limiter throttles calls to the inbox endpoint across runs.
	Limiter *rate.Limiter
}

// HTTPFetcher implements Fetcher against the inbox endpoint using
// net/http with retry and rate limiting.
type HTTPFetcher struct {
	client  *http.Client
	opts    HTTPOptions
	limiter *rate.Limiter
}

// NewHTTP creates an HTTPFetcher with the given options.
func NewHTTP(opts HTTPOptions) *HTTPFetcher {
	if opts.Timeout == 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.UserAgent == "" {
		opts.UserAgent = "triage-cli/1.0"
	}
	if opts.Retry.MaxAttempts == 0 {
		opts.Retry = resilience.DefaultRetryConfig()
	}
	limiter := opts.Limiter
	if limiter == nil {
		limiter = rate.NewLimiter(5, 5)
	}
	transport := &http.Transport{
		MaxIdleConnsPerHost: 2,
		IdleConnTimeout:     90 * time.Second,
	}
	return &HTTPFetcher{
		client:  &http.Client{Transport: transport},
		opts:    opts,
		limiter: limiter,
	}
}

// Fetch requests one email from the inbox endpoint. Every failure mode
// (timeout, non-2xx, malformed payload) is retried up to the configured
// attempt count with exponentially increasing delays; context
// cancellation stops retries immediately. On exhaustion the error chain
// carries model.ErrFetchFailure.
func (f *HTTPFetcher) Fetch(ctx context.Context) (*model.Email, error) {
	cfg := f.opts.Retry
	// The fetch contract retries every failure, not just transient ones.
	cfg.ShouldRetry = func(error) bool { return true }
	if cfg.OnRetry == nil {
		cfg.OnRetry = resilience.RetryLogger("inbox", "fetch")
	}

	email, err := resilience.DoVal(ctx, cfg, f.fetchOnce)
	if err != nil {
		return nil, eris.Wrapf(model.ErrFetchFailure, "fetch %s: %s", f.opts.SourceURL, err.Error())
	}
	return email, nil
}

func (f *HTTPFetcher) fetchOnce(ctx context.Context) (*model.Email, error) {
	if err := f.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "rate limiter wait")
	}

	attemptCtx, cancel := context.WithTimeout(ctx, f.opts.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(attemptCtx, http.MethodGet, f.opts.SourceURL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "create request")
	}
	req.Header.Set("User-Agent", f.opts.UserAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "http get")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, resp.Body)
		err := eris.Errorf("http %d from %s", resp.StatusCode, f.opts.SourceURL)
		if resilience.IsTransientHTTPStatus(resp.StatusCode) {
			return nil, resilience.NewTransientError(err, resp.StatusCode)
		}
		return nil, err
	}

	var p payload
	if err := json.NewDecoder(resp.Body).Decode(&p); err != nil {
		return nil, eris.Wrap(err, "decode payload")
	}
	if err := p.validate(); err != nil {
		return nil, eris.Wrap(err, "malformed payload")
	}

	email := p.toEmail(time.Now())
	zap.L().Info("fetched email from inbox",
		zap.String("sender", email.Sender),
		zap.String("subject", email.Subject),
		zap.Bool("provisional_id", email.HasID()),
	)
	return email, nil
}

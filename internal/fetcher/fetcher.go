// Package fetcher obtains one candidate support email, either from the
// upstream inbox HTTP endpoint (with bounded retry and exponential
// backoff) or from the local fallback dataset when the network path is
// exhausted. Fetching never writes to the store.
package fetcher

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/triage-cli/internal/model"
)

// Fetcher produces one candidate email per call.
type Fetcher interface {
	Fetch(ctx context.Context) (*model.Email, error)
}

// payload is the wire shape served by the inbox endpoint. email_id is
// optional; when present it is only provisional and the identifier
// assigner may override it.
type payload struct {
	EmailID   *int64 `json:"email_id"`
	Timestamp string `json:"timestamp"`
	Sender    string `json:"sender"`
	Subject   string `json:"subject"`
	Body      string `json:"body"`
}

func (p *payload) validate() error {
	if p.Sender == "" {
		return eris.New("payload missing sender")
	}
	if p.Subject == "" && p.Body == "" {
		return eris.New("payload missing subject and body")
	}
	return nil
}

func (p *payload) toEmail(now time.Time) *model.Email {
	e := &model.Email{
		Timestamp: p.Timestamp,
		Sender:    p.Sender,
		Subject:   p.Subject,
		Body:      p.Body,
	}
	if p.EmailID != nil {
		e.ID = *p.EmailID
	}
	if e.Timestamp == "" {
		e.Timestamp = now.UTC().Format("2006-01-02 15:04:05")
	}
	return e
}

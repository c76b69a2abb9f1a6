// Package recorder commits a completed pipeline run: the derived
// fields go to the store first (authoritative), then a rendered block
// is appended to the HTML log view.
package recorder

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/triage-cli/internal/model"
	"github.com/sells-group/triage-cli/internal/store"
	"github.com/sells-group/triage-cli/internal/view"
)

// Recorder writes final results for an email.
type Recorder struct {
	store store.Store
	view  *view.View
}

// New returns a Recorder over the given store and view.
func New(st store.Store, v *view.View) *Recorder {
	return &Recorder{store: st, view: v}
}

// Record writes the three derived fields for the email's id and appends
// the rendered block to the view. The store write is a single atomic
// update, so calling Record twice with identical arguments leaves the
// store in the same final state.
//
// A view failure after a successful store write returns an error
// wrapping model.ErrViewUpdate; the caller treats this as a partial
// success, not a failed run.
func (r *Recorder) Record(ctx context.Context, email *model.Email, intent string, urgency int, response string) error {
	if err := r.store.UpdateDerived(ctx, email.ID, intent, urgency, response); err != nil {
		if eris.Is(err, model.ErrNotFound) {
			// The assigner guarantees the row exists; a miss here is an
			// assignment bug, not a recoverable condition.
			return eris.Wrapf(err, "record email %d", email.ID)
		}
		return eris.Wrapf(eris.Wrap(model.ErrStoreUnavailable, err.Error()), "record email %d", email.ID)
	}

	zap.L().Info("recorded derived fields",
		zap.Int64("email_id", email.ID),
		zap.String("intent", intent),
		zap.Int("urgency", urgency),
	)

	if err := r.view.Append(view.Entry{
		EmailID:  email.ID,
		Intent:   intent,
		Urgency:  model.ClampUrgency(urgency),
		Response: response,
	}); err != nil {
		// Authoritative write already succeeded; the view lags.
		return err
	}

	return nil
}

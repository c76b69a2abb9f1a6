// Package assign decides which identifier an ingested email is stored
// under. The source system had three incompatible policies layered over
// each other; here exactly one strategy is selected at startup and the
// rest of the pipeline is indifferent to the choice.
package assign

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/triage-cli/internal/model"
	"github.com/sells-group/triage-cli/internal/store"
)

// Assigner fixes the identifier of a fetched email and guarantees that
// a row for that identifier exists in the store. Store failures are
// fatal: no partial record is left behind.
type Assigner interface {
	Assign(ctx context.Context, st store.Store, email *model.Email) (*model.Email, error)
	Name() string
}

// New returns the assigner for the configured strategy name.
func New(strategy string) (Assigner, error) {
	switch strategy {
	case "", "sequential":
		return &SequentialAssigner{}, nil
	case "dedup":
		return &DedupAssigner{}, nil
	default:
		return nil, eris.Errorf("assign: unknown strategy %q", strategy)
	}
}

// SequentialAssigner always creates a new record under max(id)+1,
// overwriting any provisional id the source supplied. Re-ingesting the
// same content yields a second row; identifiers over the store lifetime
// are exactly 1..N with no gaps.
type SequentialAssigner struct{}

func (a *SequentialAssigner) Name() string { return "sequential" }

func (a *SequentialAssigner) Assign(ctx context.Context, st store.Store, email *model.Email) (*model.Email, error) {
	id, err := st.InsertAssigned(ctx, email)
	if err != nil {
		return nil, eris.Wrap(wrapStore(err), "assign: sequential insert")
	}

	assigned := *email
	assigned.ID = id
	zap.L().Info("assigned new email id",
		zap.Int64("email_id", id),
		zap.String("strategy", a.Name()),
	)
	return &assigned, nil
}

// DedupAssigner reuses an existing row when the fetched email carries a
// provisional id already present with unchanged content. A provisional
// id unknown to the store is inserted as-is; an email without any id
// falls back to sequential assignment.
type DedupAssigner struct {
	seq SequentialAssigner
}

func (a *DedupAssigner) Name() string { return "dedup" }

func (a *DedupAssigner) Assign(ctx context.Context, st store.Store, email *model.Email) (*model.Email, error) {
	if !email.HasID() {
		return a.seq.Assign(ctx, st, email)
	}

	existing, err := st.Get(ctx, email.ID)
	switch {
	case err == nil:
		if !email.ContentEqual(existing) {
			// Same upstream id, different content: the id contract says
			// an id is never reused for a different body, so this email
			// gets a fresh identifier.
			zap.L().Warn("provisional id collides with different content, reassigning",
				zap.Int64("provisional_id", email.ID),
			)
			return a.seq.Assign(ctx, st, email)
		}
		zap.L().Info("reusing existing email record",
			zap.Int64("email_id", email.ID),
			zap.String("strategy", a.Name()),
		)
		reused := *email
		return &reused, nil

	case eris.Is(err, model.ErrNotFound):
		if insErr := st.Insert(ctx, email); insErr != nil {
			if eris.Is(insErr, model.ErrDuplicateID) {
				// Lost a race with a concurrent run; the row now exists.
				reused := *email
				return &reused, nil
			}
			return nil, eris.Wrap(wrapStore(insErr), "assign: dedup insert")
		}
		zap.L().Info("inserted email under provisional id",
			zap.Int64("email_id", email.ID),
			zap.String("strategy", a.Name()),
		)
		inserted := *email
		return &inserted, nil

	default:
		return nil, eris.Wrap(wrapStore(err), "assign: dedup lookup")
	}
}

// wrapStore tags non-sentinel store failures as StoreUnavailable so the
// orchestrator reports the right error kind.
func wrapStore(err error) error {
	if eris.Is(err, model.ErrNotFound) || eris.Is(err, model.ErrDuplicateID) {
		return err
	}
	return eris.Wrap(model.ErrStoreUnavailable, err.Error())
}

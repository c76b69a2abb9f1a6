// Package pipeline orchestrates one triage run: fetch an inbound
// email, assign its identifier, classify intent, score urgency, draft a
// reply, and record the result. Stages run strictly in order; any
// fatal stage failure ends the run with nothing partially committed.
package pipeline

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/triage-cli/internal/assign"
	"github.com/sells-group/triage-cli/internal/collab"
	"github.com/sells-group/triage-cli/internal/fetcher"
	"github.com/sells-group/triage-cli/internal/model"
	"github.com/sells-group/triage-cli/internal/recorder"
	"github.com/sells-group/triage-cli/internal/store"
)

// Pipeline wires the stages of a single triage run.
type Pipeline struct {
	store    store.Store
	fetcher  fetcher.Fetcher
	assigner assign.Assigner
	collabs  *collab.Set
	recorder *recorder.Recorder
	timeout  time.Duration
}

// New creates a Pipeline with all dependencies.
func New(st store.Store, f fetcher.Fetcher, a assign.Assigner, c *collab.Set, r *recorder.Recorder, timeout time.Duration) *Pipeline {
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	return &Pipeline{
		store:    st,
		fetcher:  f,
		assigner: a,
		collabs:  c,
		recorder: r,
		timeout:  timeout,
	}
}

// Result is the outcome of a successful run.
type Result struct {
	RunID    string       `json:"run_id,omitempty"`
	Email    *model.Email `json:"email"`
	Intent   string       `json:"intent_label"`
	Urgency  int          `json:"urgency_score"`
	Response string       `json:"response"`
	// ViewLagged is set when the store write succeeded but the log view
	// could not be updated (partial success).
	ViewLagged bool `json:"view_lagged,omitempty"`
}

// Run executes one pipeline run to completion or first fatal failure.
func (p *Pipeline) Run(ctx context.Context) (*Result, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	log := zap.L()
	log.Info("pipeline: starting triage run")

	// The audit row is best-effort; if the store is down the run fails
	// at assignment anyway, with the right error kind.
	var runID string
	if run, err := p.store.StartRun(ctx); err != nil {
		log.Warn("pipeline: failed to create run record", zap.Error(err))
	} else {
		runID = run.ID
	}

	setStatus := func(status model.RunStatus, stage model.Stage) {
		if runID == "" {
			return
		}
		if err := p.store.UpdateRunStatus(ctx, runID, status, stage); err != nil {
			log.Warn("pipeline: failed to update run status", zap.Error(err))
		}
	}

	fail := func(stage model.Stage, err error) (*Result, error) {
		log.Error("pipeline: stage failed",
			zap.String("stage", string(stage)),
			zap.Error(err),
		)
		if runID != "" {
			if finishErr := p.store.FinishRun(ctx, runID, model.RunStatusFailed, stage, nil, err.Error()); finishErr != nil {
				log.Warn("pipeline: failed to finish run record", zap.Error(finishErr))
			}
		}
		return nil, eris.Wrapf(err, "pipeline: %s stage", stage)
	}

	// Fetch. No store writes happen before or during this stage.
	setStatus(model.RunStatusFetching, model.StageFetch)
	start := time.Now()
	email, err := p.fetcher.Fetch(ctx)
	if err != nil {
		return fail(model.StageFetch, err)
	}
	log.Info("pipeline: fetch complete",
		zap.Duration("elapsed", time.Since(start)),
		zap.String("sender", email.Sender),
	)

	// Assign the identifier and create the row (derived fields unset).
	email, err = p.assigner.Assign(ctx, p.store, email)
	if err != nil {
		return fail(model.StageAssign, err)
	}

	// Classify.
	setStatus(model.RunStatusClassifying, model.StageClassify)
	intent, err := p.collabs.Classifier.Classify(ctx, email.Subject, email.Body)
	if err != nil {
		return fail(model.StageClassify, eris.Wrap(model.ErrCollaborator, err.Error()))
	}
	log.Info("pipeline: classified intent", zap.String("intent", intent))

	// Score.
	setStatus(model.RunStatusScoring, model.StageScore)
	urgency, err := p.collabs.Scorer.Score(ctx, email.Body)
	if err != nil {
		return fail(model.StageScore, eris.Wrap(model.ErrCollaborator, err.Error()))
	}
	urgency = model.ClampUrgency(urgency)
	log.Info("pipeline: scored urgency", zap.Int("urgency", urgency))

	// Draft.
	setStatus(model.RunStatusDrafting, model.StageDraft)
	response, err := p.collabs.Drafter.Draft(ctx, email.Sender, intent)
	if err != nil {
		return fail(model.StageDraft, eris.Wrap(model.ErrCollaborator, err.Error()))
	}

	// Record: the only stage that mutates derived fields, and only with
	// all three outputs in hand.
	setStatus(model.RunStatusRecording, model.StageRecord)
	result := &Result{
		RunID:    runID,
		Email:    email,
		Intent:   intent,
		Urgency:  urgency,
		Response: response,
	}

	if err := p.recorder.Record(ctx, email, intent, urgency, response); err != nil {
		if !eris.Is(err, model.ErrViewUpdate) {
			return fail(model.StageRecord, err)
		}
		// Partial success: the authoritative record exists, the human
		// view lags until the next successful run.
		result.ViewLagged = true
		log.Warn("pipeline: view update failed, store is authoritative",
			zap.Int64("email_id", email.ID),
			zap.Error(err),
		)
	}

	if runID != "" {
		if err := p.store.FinishRun(ctx, runID, model.RunStatusDone, model.StageRecord, &email.ID, ""); err != nil {
			log.Warn("pipeline: failed to finish run record", zap.Error(err))
		}
	}

	log.Info("pipeline: triage run complete",
		zap.String("run_id", runID),
		zap.Int64("email_id", email.ID),
		zap.String("intent", intent),
		zap.Int("urgency", urgency),
		zap.Bool("view_lagged", result.ViewLagged),
	)
	return result, nil
}

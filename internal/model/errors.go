package model

import "errors"

// Error kinds surfaced by the pipeline. Stage code wraps these with eris
// so callers can classify failures with errors.Is while keeping the full
// wrap chain for logging.
var (
	// ErrFetchFailure means the network fetch exhausted its retries and no
	// fallback was available (or the fallback itself failed).
	ErrFetchFailure = errors.New("fetch failure")

	// ErrStoreUnavailable means the persistent store could not be reached.
	// Always fatal; the run aborts with no partial record.
	ErrStoreUnavailable = errors.New("store unavailable")

	// ErrNotFound means a derived-field update targeted a missing record.
	// Fatal: it indicates an identifier assignment bug, not a user error.
	ErrNotFound = errors.New("record not found")

	// ErrDuplicateID means a conditional insert collided with an existing
	// record. The dedup assigner treats this as "check content and reuse".
	ErrDuplicateID = errors.New("duplicate email id")

	// ErrCollaborator means the classifier, scorer or drafter failed.
	// Fatal; nothing is persisted.
	ErrCollaborator = errors.New("collaborator error")

	// ErrViewUpdate means the HTML log view could not be updated after the
	// authoritative store write succeeded. Non-fatal: the run still
	// reports success and the view lags until the next run.
	ErrViewUpdate = errors.New("view update failure")
)

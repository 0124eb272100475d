// Package ierr collects the sentinel errors the pipeline's components use
// to signal the handful of error kinds the SyncController reacts to
// differently. Components wrap these with fmt.Errorf("...: %w", ...) so
// callers can still test with errors.Is.
package ierr

import "errors"

var (
	// ErrNotFound is returned by NodeClient for a 4xx "no such id/height".
	ErrNotFound = errors.New("not found")

	// ErrBadRequest is returned by NodeClient for any other 4xx response.
	ErrBadRequest = errors.New("bad request")

	// ErrUnavailable is returned by NodeClient once its retry budget for a
	// transient network or 5xx error is exhausted.
	ErrUnavailable = errors.New("node unavailable")

	// ErrBadBlock is returned by the Parser, or by the Projector when a
	// block cannot be reconciled against referential integrity.
	ErrBadBlock = errors.New("bad block")

	// ErrReorgTooDeep is returned by the ReorgDetector when the fork point
	// lies beyond max_reorg_depth, or is never found within stored history.
	ErrReorgTooDeep = errors.New("reorg exceeds max depth")

	// ErrPoisonBlock is returned by the SyncController when a block's
	// Projector commit still fails after max_block_retries retries.
	ErrPoisonBlock = errors.New("poison block")

	// ErrCancelled is returned when an in-flight operation observes
	// context cancellation; no state is changed before propagating it.
	ErrCancelled = errors.New("cancelled")
)

package domain

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrTransientStorage covers network and throttling conditions on the
	// storage gateway; safe to retry.
	ErrTransientStorage = errors.New("transient storage failure")
	// ErrPermanentStorage covers authorization and not-found conditions;
	// retrying cannot help.
	ErrPermanentStorage = errors.New("permanent storage failure")
	// ErrExtraction covers content extractor failures; retryable up to the
	// stage attempt budget.
	ErrExtraction = errors.New("extraction failure")
	// ErrInference covers inference capability failures, including responses
	// that do not match the expected schema.
	ErrInference = errors.New("inference failure")
	// ErrWorkflowDispatch covers notification/scheduling failures; recorded
	// but never escalated.
	ErrWorkflowDispatch = errors.New("workflow dispatch failure")
	// ErrLedgerConsistency indicates corrupted pipeline state. Fatal: the
	// process must halt rather than risk duplicate or lost work.
	ErrLedgerConsistency = errors.New("ledger consistency violation")
	// ErrNotFound marks lookups for identities the ledger has never seen.
	ErrNotFound = errors.New("not found")
)

// WrapError preserves typed semantic errors with operation context.
func WrapError(kind error, operation string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", operation, kind, err)
}

func IsKind(err error, kind error) bool {
	return errors.Is(err, kind)
}

// Retryable reports whether a stage failure should consume another attempt
// instead of dead-lettering immediately. Per-call timeouts count as
// retryable as long as the surrounding context is still live.
func Retryable(err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, ErrTransientStorage),
		errors.Is(err, ErrExtraction),
		errors.Is(err, ErrInference):
		return true
	case errors.Is(err, context.DeadlineExceeded):
		return true
	}
	return false
}

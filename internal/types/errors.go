package types

import (
	"errors"
	"fmt"
)

// =============================================================================
// ERROR TAXONOMY
// =============================================================================
// Only ErrValidation and ErrPrivacyViolation abort a case outright. All other
// kinds degrade gracefully and are surfaced in the summary's open-flags
// section so a reviewer always sees what was incomplete.

var (
	// ErrValidation marks malformed intake; the case never enters the pipeline.
	ErrValidation = errors.New("validation error")

	// ErrPrivacyViolation marks an unclassified or denied field. The privacy
	// boundary fails closed and the case is halted.
	ErrPrivacyViolation = errors.New("privacy violation")

	// ErrSelectionDegraded marks an unavailable selection source. The case
	// proceeds with reduced context, flagged in the summary; never fatal.
	ErrSelectionDegraded = errors.New("selection degraded")

	// ErrStageFailure marks a stage that exhausted its retry budget. Recorded
	// as an open flag; the case still completes.
	ErrStageFailure = errors.New("stage failure")

	// ErrBudgetExceeded marks a summary that cannot fit the configured budget
	// even under the strictest drop policy.
	ErrBudgetExceeded = errors.New("aggregation budget exceeded")

	// ErrPersistenceConflict marks a concurrent write to the same long-term
	// key. Exactly one writer succeeds; the loser sees this error and must
	// re-attempt with a new key/version. Safety data is never silently
	// overwritten.
	ErrPersistenceConflict = errors.New("persistence conflict")

	// ErrNotFound marks a missing memory entry or checkpoint.
	ErrNotFound = errors.New("not found")

	// ErrCancelled marks a case cancelled by the caller.
	ErrCancelled = errors.New("cancelled")
)

// Fatal reports whether an error must abort the case rather than degrade.
func Fatal(err error) bool {
	return errors.Is(err, ErrValidation) || errors.Is(err, ErrPrivacyViolation)
}

// ValidationErrorf wraps ErrValidation with detail.
func ValidationErrorf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// PrivacyViolationf wraps ErrPrivacyViolation with detail.
func PrivacyViolationf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrPrivacyViolation, fmt.Sprintf(format, args...))
}

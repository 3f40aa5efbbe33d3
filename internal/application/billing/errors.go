package billing

import "errors"

var (
	// ErrPassInProgress is returned when another billing pass holds the run-lock
	ErrPassInProgress = errors.New("billing pass already in progress")

	// ErrRunHistoryUnavailable is returned when no run repository is configured
	ErrRunHistoryUnavailable = errors.New("billing run history is not configured")
)

package scheduler

import "errors"

var (
	// ErrTriggerNotRunning is returned when a manual pass is requested from a stopped trigger
	ErrTriggerNotRunning = errors.New("billing trigger is not running")

	// ErrInvalidConfig is returned when configuration is invalid
	ErrInvalidConfig = errors.New("invalid scheduler configuration")
)

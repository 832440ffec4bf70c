package workflow

import "errors"

var (
	ErrInvalidTransition = errors.New("invalid state transition")
	ErrInvalidState      = errors.New("invalid state")
	ErrGuardFailed       = errors.New("guard condition failed")

	// ErrUnknownTrigger is returned when a decision names no trigger
	ErrUnknownTrigger = errors.New("unknown trigger")
)

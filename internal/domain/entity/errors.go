package entity

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when a targeted reimbursement does not exist
	ErrNotFound = errors.New("reimbursement not found")

	// ErrUnresolvedName is returned when a status, type or username has no lookup row
	ErrUnresolvedName = errors.New("lookup name not found")

	// ErrInvalidLookupKey is returned for a unique-key lookup outside the allow-list
	ErrInvalidLookupKey = errors.New("invalid lookup key")

	// ErrValidation is returned when a request fails field validation
	ErrValidation = errors.New("validation failed")
)

// UnresolvedNameError reports which lookup failed
type UnresolvedNameError struct {
	Kind string // status, type or user
	Name string
}

func (e *UnresolvedNameError) Error() string {
	return fmt.Sprintf("%s %q: %v", e.Kind, e.Name, ErrUnresolvedName)
}

// Unwrap lets errors.Is match ErrUnresolvedName
func (e *UnresolvedNameError) Unwrap() error {
	return ErrUnresolvedName
}

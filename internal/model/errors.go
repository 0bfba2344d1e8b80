package model

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrNotFound        = errors.New("not found")
	ErrForbidden       = errors.New("forbidden")
	ErrUnauthenticated = errors.New("unauthenticated")
	ErrConflict        = errors.New("conflict")
	ErrValidation      = errors.New("validation error")
	ErrGone            = errors.New("gone")
	ErrUnavailable     = errors.New("unavailable")
)

// ReservationConflictError carries the current holder so the 409 body can
// name who owns the lease.
type ReservationConflictError struct {
	ResourceKey   string
	HolderAgentID string
	HolderAlias   string
	ExpiresAt     time.Time
}

func (e *ReservationConflictError) Error() string {
	return fmt.Sprintf("reservation %q held by %s until %s", e.ResourceKey, e.HolderAlias, e.ExpiresAt.Format(time.RFC3339))
}

func (e *ReservationConflictError) Unwrap() error { return ErrConflict }

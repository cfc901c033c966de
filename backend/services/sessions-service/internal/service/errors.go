package service

import (
	"errors"
	"fmt"

	"chargepark/backend/services/sessions-service/internal/repository"
)

var (
	// ErrNotFound is returned for unknown order, session, user, fee or catalog ids.
	ErrNotFound = errors.New("sessions: not found")
	// ErrInvalidState is returned when the current status forbids the operation.
	ErrInvalidState = errors.New("sessions: invalid state")
	// ErrForbidden is returned when the actor does not own the resource.
	ErrForbidden = errors.New("sessions: forbidden")
	// ErrOutOfRange is returned when the driver is too far from the charging point.
	ErrOutOfRange = errors.New("sessions: out of range")
	// ErrValidation is returned for malformed input.
	ErrValidation = errors.New("sessions: validation failed")
	// ErrConflict is returned when a booking overlaps an existing one.
	ErrConflict = errors.New("sessions: conflict")
	// ErrNothingToDo marks an idempotent no-op, e.g. canceling a canceled order.
	ErrNothingToDo = errors.New("sessions: nothing to do")
)

// lookupErr maps repository misses to ErrNotFound and wraps everything else.
func lookupErr(err error, entity string, id int64) error {
	if errors.Is(err, repository.ErrNotFound) {
		return fmt.Errorf("%w: %s %d", ErrNotFound, entity, id)
	}
	return fmt.Errorf("load %s %d: %w", entity, id, err)
}

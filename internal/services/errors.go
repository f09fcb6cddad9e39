package services

import (
	"errors"
	"fmt"

	"github.com/saeid-a/CalibrateBack/internal/models"
	"github.com/saeid-a/CalibrateBack/internal/repository"
)

var (
	ErrInvalidInput           = errors.New("invalid input")
	ErrNotFound               = errors.New("not found")
	ErrForbidden              = errors.New("forbidden")
	ErrConflict               = errors.New("conflict")
	ErrUnavailable            = errors.New("store unavailable")
	ErrInvalidStateTransition = errors.New("invalid state transition")
	ErrUnauthorizedUser       = errors.New("unauthorized user")
	ErrConfirmationRequired   = errors.New("confirmation required")
)

// storeError translates repository and model errors into service errors.
// Anything it does not recognise is returned unchanged.
func storeError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, repository.ErrNotFound):
		return ErrNotFound
	case errors.Is(err, repository.ErrDuplicate):
		return ErrConflict
	case errors.Is(err, repository.ErrUnavailable):
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	case errors.Is(err, models.ErrInvalidEmail),
		errors.Is(err, models.ErrInvalidRole),
		errors.Is(err, models.ErrInvalidPhase):
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	default:
		return err
	}
}

package service

import (
	"errors"
	"fmt"

	"github.com/agentregistry-dev/modelregistry/pkg/registry/database"
)

// Error kinds returned by the deployment core. Callers match them with errors.Is.
var (
	ErrValidation     = errors.New("validation failed")
	ErrNotFound       = errors.New("not found")
	ErrConflict       = errors.New("conflict")
	ErrInvalidState   = errors.New("invalid state")
	ErrInfrastructure = errors.New("infrastructure failure")
)

// StoreError translates a store error into the service error kinds.
// what names the entity and is included in the message.
func StoreError(err error, what string) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, database.ErrNotFound), errors.Is(err, database.ErrForeignKey):
		return fmt.Errorf("%w: %s: %w", ErrNotFound, what, err)
	case errors.Is(err, database.ErrAlreadyExists):
		return fmt.Errorf("%w: %s: %w", ErrConflict, what, err)
	default:
		return fmt.Errorf("%w: %s: %w", ErrInfrastructure, what, err)
	}
}

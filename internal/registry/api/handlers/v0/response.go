package v0

import (
	"errors"

	"github.com/danielgtaylor/huma/v2"

	"github.com/agentregistry-dev/modelregistry/internal/registry/service"
)

// Response is a generic wrapper for Huma responses
// Usage: Response[HealthBody] instead of HealthOutput
type Response[T any] struct {
	Body T
}

// EmptyResponse represents a simple success response with a message
type EmptyResponse struct {
	Message string `json:"message" doc:"Success message" example:"Operation completed successfully"`
}

// DeploymentPath identifies a deployment in the URL
type DeploymentPath struct {
	ID string `path:"id" doc:"Deployment id" example:"3f0c6f6e-8c53-4a0e-9f43-4b1e0c8f1d2a"`
}

// errorResponse maps the deployment core's error kinds onto HTTP statuses
func errorResponse(err error, msg string) error {
	switch {
	case errors.Is(err, service.ErrValidation):
		return huma.Error422UnprocessableEntity(err.Error())
	case errors.Is(err, service.ErrNotFound):
		return huma.Error404NotFound(err.Error())
	case errors.Is(err, service.ErrConflict), errors.Is(err, service.ErrInvalidState):
		return huma.Error409Conflict(err.Error())
	default:
		return huma.Error500InternalServerError(msg, err)
	}
}

package v0

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/agentregistry-dev/modelregistry/pkg/models"
)

// Rollbacks is the rollback surface exposed over HTTP
type Rollbacks interface {
	ExecuteRollback(ctx context.Context, deploymentID, targetVersionID, reason, initiator string) (*models.RollbackOperation, error)
	CancelRollback(ctx context.Context, id string) (bool, error)
	GetRollback(ctx context.Context, id string) (*models.RollbackOperation, error)
	ListRollbacks(ctx context.Context, deploymentID string) ([]*models.RollbackOperation, error)
	GetOneClickRollbackOptions(ctx context.Context, deploymentID string) ([]*models.Deployment, error)
}

// RollbackRequest is the body of a rollback
type RollbackRequest struct {
	TargetVersionID string `json:"targetVersionId" minLength:"1" doc:"Known-good version to restore" example:"fraud-detector-v2"`
	Reason          string `json:"reason" doc:"Why the rollback was requested" example:"error rate above SLO"`
	InitiatedBy     string `json:"initiatedBy" minLength:"1" doc:"Identity requesting the rollback" example:"alice"`
}

// RollbacksBody lists rollback operations
type RollbacksBody struct {
	Rollbacks []models.RollbackOperation `json:"rollbacks" doc:"Rollback operations, newest first"`
}

// CancelBody reports whether a cancellation took effect
type CancelBody struct {
	Cancelled bool `json:"cancelled" doc:"False when the operation was already completed or failed, or does not exist"`
}

// RollbackOptionsBody lists one-click rollback candidates
type RollbackOptionsBody struct {
	Options []models.Deployment `json:"options" doc:"Up to five other active deployments in the same environment, newest first"`
}

// RollbackPath identifies a rollback operation in the URL
type RollbackPath struct {
	ID string `path:"id" doc:"Rollback operation id"`
}

// RegisterRollbacksEndpoints registers rollback execution and tracking endpoints
func RegisterRollbacksEndpoints(api huma.API, basePath string, rollbacks Rollbacks) {
	huma.Register(api, huma.Operation{
		OperationID:   "execute-rollback",
		Method:        http.MethodPost,
		Path:          basePath + "/deployments/{id}/rollbacks",
		Summary:       "Roll back a deployment",
		Description:   "Start an asynchronous rollback to the target version. The response is the pending operation; poll it for the outcome.",
		Tags:          []string{"rollbacks"},
		DefaultStatus: http.StatusAccepted,
	}, func(ctx context.Context, input *struct {
		DeploymentPath
		Body RollbackRequest
	}) (*Response[models.RollbackOperation], error) {
		op, err := rollbacks.ExecuteRollback(ctx, input.ID, input.Body.TargetVersionID, input.Body.Reason, input.Body.InitiatedBy)
		if err != nil {
			return nil, errorResponse(err, "Failed to start rollback")
		}
		return &Response[models.RollbackOperation]{Body: *op}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-rollbacks",
		Method:      http.MethodGet,
		Path:        basePath + "/deployments/{id}/rollbacks",
		Summary:     "List rollbacks of a deployment",
		Tags:        []string{"rollbacks"},
	}, func(ctx context.Context, input *DeploymentPath) (*Response[RollbacksBody], error) {
		ops, err := rollbacks.ListRollbacks(ctx, input.ID)
		if err != nil {
			return nil, errorResponse(err, "Failed to list rollbacks")
		}
		resp := &Response[RollbacksBody]{}
		resp.Body.Rollbacks = make([]models.RollbackOperation, 0, len(ops))
		for _, op := range ops {
			resp.Body.Rollbacks = append(resp.Body.Rollbacks, *op)
		}
		return resp, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-rollback",
		Method:      http.MethodGet,
		Path:        basePath + "/rollbacks/{id}",
		Summary:     "Get a rollback operation",
		Tags:        []string{"rollbacks"},
	}, func(ctx context.Context, input *RollbackPath) (*Response[models.RollbackOperation], error) {
		op, err := rollbacks.GetRollback(ctx, input.ID)
		if err != nil {
			return nil, errorResponse(err, "Failed to retrieve rollback")
		}
		return &Response[models.RollbackOperation]{Body: *op}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "cancel-rollback",
		Method:      http.MethodPost,
		Path:        basePath + "/rollbacks/{id}/cancel",
		Summary:     "Cancel a rollback",
		Description: "Mark a pending or in-progress rollback as failed and interrupt its task. The deployment ends up failed.",
		Tags:        []string{"rollbacks"},
	}, func(ctx context.Context, input *RollbackPath) (*Response[CancelBody], error) {
		cancelled, err := rollbacks.CancelRollback(ctx, input.ID)
		if err != nil {
			return nil, errorResponse(err, "Failed to cancel rollback")
		}
		return &Response[CancelBody]{Body: CancelBody{Cancelled: cancelled}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-rollback-options",
		Method:      http.MethodGet,
		Path:        basePath + "/deployments/{id}/rollback-options",
		Summary:     "One-click rollback options",
		Tags:        []string{"rollbacks"},
	}, func(ctx context.Context, input *DeploymentPath) (*Response[RollbackOptionsBody], error) {
		options, err := rollbacks.GetOneClickRollbackOptions(ctx, input.ID)
		if err != nil {
			return nil, errorResponse(err, "Failed to list rollback options")
		}
		resp := &Response[RollbackOptionsBody]{}
		resp.Body.Options = make([]models.Deployment, 0, len(options))
		for _, d := range options {
			resp.Body.Options = append(resp.Body.Options, *d)
		}
		return resp, nil
	})
}

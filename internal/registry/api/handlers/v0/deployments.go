package v0

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/agentregistry-dev/modelregistry/internal/registry/service"
	"github.com/agentregistry-dev/modelregistry/pkg/models"
)

// DeploymentRequest is the body of a deployment creation
type DeploymentRequest struct {
	models.CreateDeploymentRequest
	DeployedBy string `json:"deployedBy" minLength:"1" doc:"Identity recorded as the deployer" example:"alice"`
}

// StatusUpdate is the body of a status change
type StatusUpdate struct {
	Status models.DeploymentStatus `json:"status" enum:"pending,deploying,active,rolling_back,rolled_back,failed,terminated" doc:"New deployment status"`
}

// DeploymentsListBody is a page of deployments
type DeploymentsListBody struct {
	Deployments []models.Deployment `json:"deployments" doc:"Deployments, newest first"`
	Count       int                 `json:"count" doc:"Number of deployments in this page"`
}

// DeploymentsListInput represents query parameters for listing deployments
type DeploymentsListInput struct {
	Environment string `query:"environment" json:"environment,omitempty" doc:"Filter by environment" enum:"staging,production,canary"`
	Status      string `query:"status" json:"status,omitempty" doc:"Filter by status" enum:"pending,deploying,active,rolling_back,rolled_back,failed,terminated"`
	VersionID   string `query:"versionId" json:"versionId,omitempty" doc:"Filter by model version"`
	DeployedBy  string `query:"deployedBy" json:"deployedBy,omitempty" doc:"Filter by deployer"`
	Limit       int    `query:"limit" json:"limit,omitempty" doc:"Page size" default:"50" minimum:"1" maximum:"500"`
	Offset      int    `query:"offset" json:"offset,omitempty" doc:"Page offset" minimum:"0"`
}

// RegisterDeploymentsEndpoints registers the deployment lifecycle endpoints.
// When monitor is set, marking a deployment active starts watching it.
func RegisterDeploymentsEndpoints(api huma.API, basePath string, deployments service.DeploymentService, monitor Monitor) {
	// Create a deployment
	huma.Register(api, huma.Operation{
		OperationID:   "create-deployment",
		Method:        http.MethodPost,
		Path:          basePath + "/deployments",
		Summary:       "Create a deployment",
		Description:   "Track a new deployment of a model version. Deployments start in pending status.",
		Tags:          []string{"deployments"},
		DefaultStatus: http.StatusCreated,
	}, func(ctx context.Context, input *struct {
		Body DeploymentRequest
	}) (*Response[models.Deployment], error) {
		deployment, err := deployments.CreateDeployment(ctx, &input.Body.CreateDeploymentRequest, input.Body.DeployedBy)
		if err != nil {
			return nil, errorResponse(err, "Failed to create deployment")
		}
		return &Response[models.Deployment]{Body: *deployment}, nil
	})

	// List deployments
	huma.Register(api, huma.Operation{
		OperationID: "list-deployments",
		Method:      http.MethodGet,
		Path:        basePath + "/deployments",
		Summary:     "List deployments",
		Description: "List deployments newest first, optionally filtered by environment, status, version or deployer.",
		Tags:        []string{"deployments"},
	}, func(ctx context.Context, input *DeploymentsListInput) (*Response[DeploymentsListBody], error) {
		filter := &models.DeploymentFilter{}
		if input.Environment != "" {
			env := models.Environment(input.Environment)
			filter.Environment = &env
		}
		if input.Status != "" {
			status := models.DeploymentStatus(input.Status)
			filter.Status = &status
		}
		if input.VersionID != "" {
			filter.VersionID = &input.VersionID
		}
		if input.DeployedBy != "" {
			filter.DeployedBy = &input.DeployedBy
		}

		list, err := deployments.ListDeployments(ctx, filter, input.Limit, input.Offset)
		if err != nil {
			return nil, errorResponse(err, "Failed to list deployments")
		}

		resp := &Response[DeploymentsListBody]{}
		resp.Body.Deployments = make([]models.Deployment, 0, len(list))
		for _, d := range list {
			resp.Body.Deployments = append(resp.Body.Deployments, *d)
		}
		resp.Body.Count = len(resp.Body.Deployments)
		return resp, nil
	})

	// Get a deployment
	huma.Register(api, huma.Operation{
		OperationID: "get-deployment",
		Method:      http.MethodGet,
		Path:        basePath + "/deployments/{id}",
		Summary:     "Get deployment details",
		Tags:        []string{"deployments"},
	}, func(ctx context.Context, input *DeploymentPath) (*Response[models.Deployment], error) {
		deployment, err := deployments.GetDeployment(ctx, input.ID)
		if err != nil {
			return nil, errorResponse(err, "Failed to retrieve deployment")
		}
		return &Response[models.Deployment]{Body: *deployment}, nil
	})

	// Overwrite the status of a deployment
	huma.Register(api, huma.Operation{
		OperationID: "update-deployment-status",
		Method:      http.MethodPut,
		Path:        basePath + "/deployments/{id}/status",
		Summary:     "Update deployment status",
		Description: "Overwrite the status of a deployment. Transitions are not validated. Marking a deployment active starts SLO/drift monitoring. Moving it to failed, rolled_back or terminated stops monitoring.",
		Tags:        []string{"deployments"},
	}, func(ctx context.Context, input *struct {
		DeploymentPath
		Body StatusUpdate
	}) (*Response[models.Deployment], error) {
		deployment, err := deployments.UpdateStatus(ctx, input.ID, input.Body.Status)
		if err != nil {
			return nil, errorResponse(err, "Failed to update deployment status")
		}

		if monitor != nil {
			switch {
			case deployment.Status == models.DeploymentStatusActive:
				if err := monitor.StartMonitoring(ctx, deployment.ID); err != nil {
					return nil, errorResponse(err, "Status updated but monitoring failed to start")
				}
			case deployment.Status.IsTerminal():
				monitor.StopMonitoring(deployment.ID)
			}
		}
		return &Response[models.Deployment]{Body: *deployment}, nil
	})

	// Last known good deployment
	huma.Register(api, huma.Operation{
		OperationID: "get-last-known-good",
		Method:      http.MethodGet,
		Path:        basePath + "/deployments/{id}/last-known-good",
		Summary:     "Get the last known good deployment",
		Description: "The most recent prior active deployment in the same environment, used as the automatic rollback target.",
		Tags:        []string{"deployments"},
	}, func(ctx context.Context, input *DeploymentPath) (*Response[models.Deployment], error) {
		deployment, err := deployments.GetLastKnownGood(ctx, input.ID)
		if err != nil {
			return nil, errorResponse(err, "Failed to resolve last known good deployment")
		}
		return &Response[models.Deployment]{Body: *deployment}, nil
	})
}

// VersionPath identifies a model version in the URL
type VersionPath struct {
	ID string `path:"id" doc:"Model version id" example:"fraud-detector-v3"`
}

// RegisterVersionsEndpoints registers the model version catalog endpoints
func RegisterVersionsEndpoints(api huma.API, basePath string, deployments service.DeploymentService) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-version",
		Method:        http.MethodPost,
		Path:          basePath + "/versions",
		Summary:       "Register a model version",
		Description:   "Register a deployable model version so deployments and rollbacks can reference it.",
		Tags:          []string{"versions"},
		DefaultStatus: http.StatusCreated,
	}, func(ctx context.Context, input *struct {
		Body models.CreateVersionRequest
	}) (*Response[models.ModelVersion], error) {
		version, err := deployments.CreateVersion(ctx, &input.Body)
		if err != nil {
			return nil, errorResponse(err, "Failed to register version")
		}
		return &Response[models.ModelVersion]{Body: *version}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-version-by-id",
		Method:      http.MethodGet,
		Path:        basePath + "/versions/{id}",
		Summary:     "Get a model version",
		Tags:        []string{"versions"},
	}, func(ctx context.Context, input *VersionPath) (*Response[models.ModelVersion], error) {
		version, err := deployments.GetVersion(ctx, input.ID)
		if err != nil {
			return nil, errorResponse(err, "Failed to retrieve version")
		}
		return &Response[models.ModelVersion]{Body: *version}, nil
	})
}

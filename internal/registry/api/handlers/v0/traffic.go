package v0

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/agentregistry-dev/modelregistry/internal/registry/service"
	"github.com/agentregistry-dev/modelregistry/pkg/models"
)

// TrafficSplitRequest is the body of a traffic split
type TrafficSplitRequest struct {
	Percentage float64 `json:"percentage" minimum:"0" maximum:"100" doc:"Percentage of live traffic routed to the deployment" example:"10"`
}

// TrafficSplitsBody lists traffic splits
type TrafficSplitsBody struct {
	Splits []models.TrafficSplit `json:"splits" doc:"Traffic splits, newest first"`
}

// SplitPath identifies a traffic split in the URL
type SplitPath struct {
	ID string `path:"id" doc:"Traffic split id"`
}

// RegisterTrafficEndpoints registers the traffic split endpoints
func RegisterTrafficEndpoints(api huma.API, basePath string, deployments service.DeploymentService) {
	huma.Register(api, huma.Operation{
		OperationID:   "record-traffic-split",
		Method:        http.MethodPost,
		Path:          basePath + "/deployments/{id}/traffic",
		Summary:       "Record a traffic split",
		Description:   "Append a traffic split and update the deployment's current traffic. Earlier splits stay open until completed.",
		Tags:          []string{"traffic"},
		DefaultStatus: http.StatusCreated,
	}, func(ctx context.Context, input *struct {
		DeploymentPath
		Body TrafficSplitRequest
	}) (*Response[models.TrafficSplit], error) {
		split, err := deployments.RecordTrafficSplit(ctx, input.ID, input.Body.Percentage)
		if err != nil {
			return nil, errorResponse(err, "Failed to record traffic split")
		}
		return &Response[models.TrafficSplit]{Body: *split}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-traffic-splits",
		Method:      http.MethodGet,
		Path:        basePath + "/deployments/{id}/traffic",
		Summary:     "List traffic splits",
		Tags:        []string{"traffic"},
	}, func(ctx context.Context, input *DeploymentPath) (*Response[TrafficSplitsBody], error) {
		splits, err := deployments.GetTrafficSplits(ctx, input.ID)
		if err != nil {
			return nil, errorResponse(err, "Failed to list traffic splits")
		}
		resp := &Response[TrafficSplitsBody]{}
		resp.Body.Splits = make([]models.TrafficSplit, 0, len(splits))
		for _, s := range splits {
			resp.Body.Splits = append(resp.Body.Splits, *s)
		}
		return resp, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-current-traffic-split",
		Method:      http.MethodGet,
		Path:        basePath + "/deployments/{id}/traffic/current",
		Summary:     "Get the current traffic split",
		Description: "The newest split without a completion time.",
		Tags:        []string{"traffic"},
	}, func(ctx context.Context, input *DeploymentPath) (*Response[models.TrafficSplit], error) {
		split, err := deployments.GetCurrentTrafficSplit(ctx, input.ID)
		if err != nil {
			return nil, errorResponse(err, "Failed to retrieve current traffic split")
		}
		return &Response[models.TrafficSplit]{Body: *split}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "complete-traffic-split",
		Method:      http.MethodPost,
		Path:        basePath + "/traffic-splits/{id}/complete",
		Summary:     "Complete a traffic split",
		Tags:        []string{"traffic"},
	}, func(ctx context.Context, input *SplitPath) (*Response[models.TrafficSplit], error) {
		split, err := deployments.CompleteTrafficSplit(ctx, input.ID)
		if err != nil {
			return nil, errorResponse(err, "Failed to complete traffic split")
		}
		return &Response[models.TrafficSplit]{Body: *split}, nil
	})
}

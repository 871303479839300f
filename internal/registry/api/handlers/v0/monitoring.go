package v0

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/agentregistry-dev/modelregistry/pkg/models"
)

// Monitor is the SLO/drift monitoring surface exposed over HTTP
type Monitor interface {
	WatchCounter
	StartMonitoring(ctx context.Context, deploymentID string) error
	StopMonitoring(deploymentID string)
	IsMonitoring(deploymentID string) bool
	TriggerRollback(ctx context.Context, deploymentID, reason, initiator string) (*models.RollbackOperation, error)
}

// MonitoringBody reports the watch state of a deployment
type MonitoringBody struct {
	DeploymentID string `json:"deploymentId"`
	Monitoring   bool   `json:"monitoring" doc:"Whether SLO and drift checks are running"`
}

// TriggerRequest is the body of a manual trigger
type TriggerRequest struct {
	Reason      string `json:"reason" doc:"Why the rollback was requested" example:"manual remediation"`
	InitiatedBy string `json:"initiatedBy" minLength:"1" doc:"Identity requesting the rollback" example:"alice"`
}

// RegisterMonitoringEndpoints registers monitor control endpoints
func RegisterMonitoringEndpoints(api huma.API, basePath string, monitor Monitor) {
	huma.Register(api, huma.Operation{
		OperationID: "get-monitoring",
		Method:      http.MethodGet,
		Path:        basePath + "/deployments/{id}/monitoring",
		Summary:     "Get monitoring state",
		Tags:        []string{"monitoring"},
	}, func(_ context.Context, input *DeploymentPath) (*Response[MonitoringBody], error) {
		return &Response[MonitoringBody]{Body: MonitoringBody{
			DeploymentID: input.ID,
			Monitoring:   monitor.IsMonitoring(input.ID),
		}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "start-monitoring",
		Method:      http.MethodPost,
		Path:        basePath + "/deployments/{id}/monitoring/start",
		Summary:     "Start monitoring",
		Description: "Start periodic SLO and drift checks. The deployment must be active.",
		Tags:        []string{"monitoring"},
	}, func(ctx context.Context, input *DeploymentPath) (*Response[MonitoringBody], error) {
		if err := monitor.StartMonitoring(ctx, input.ID); err != nil {
			return nil, errorResponse(err, "Failed to start monitoring")
		}
		return &Response[MonitoringBody]{Body: MonitoringBody{DeploymentID: input.ID, Monitoring: true}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "stop-monitoring",
		Method:      http.MethodPost,
		Path:        basePath + "/deployments/{id}/monitoring/stop",
		Summary:     "Stop monitoring",
		Tags:        []string{"monitoring"},
	}, func(_ context.Context, input *DeploymentPath) (*Response[MonitoringBody], error) {
		monitor.StopMonitoring(input.ID)
		return &Response[MonitoringBody]{Body: MonitoringBody{DeploymentID: input.ID, Monitoring: false}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "trigger-rollback",
		Method:        http.MethodPost,
		Path:          basePath + "/deployments/{id}/monitoring/trigger",
		Summary:       "Roll back to the last known good version",
		Description:   "Resolve the most recent prior active deployment in the same environment and roll back to its version.",
		Tags:          []string{"monitoring", "rollbacks"},
		DefaultStatus: http.StatusAccepted,
	}, func(ctx context.Context, input *struct {
		DeploymentPath
		Body TriggerRequest
	}) (*Response[models.RollbackOperation], error) {
		op, err := monitor.TriggerRollback(ctx, input.ID, input.Body.Reason, input.Body.InitiatedBy)
		if err != nil {
			return nil, errorResponse(err, "Failed to trigger rollback")
		}
		return &Response[models.RollbackOperation]{Body: *op}, nil
	})
}

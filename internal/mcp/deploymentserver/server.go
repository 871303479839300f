package deploymentserver

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	restv0 "github.com/agentregistry-dev/modelregistry/internal/registry/api/handlers/v0"
	"github.com/agentregistry-dev/modelregistry/internal/registry/service"
	"github.com/agentregistry-dev/modelregistry/internal/version"
	"github.com/agentregistry-dev/modelregistry/pkg/models"
)

const (
	serverName = "model-registry-mcp"

	defaultPageLimit = 30
	maxPageLimit     = 100
	defaultSince     = time.Hour
)

// NewServer constructs an MCP server that exposes deployment inspection and
// remediation tools backed by the deployment core. Only trigger_rollback
// changes state; everything else is read-only.
func NewServer(deployments service.DeploymentService, rollbacks restv0.Rollbacks, monitor restv0.Monitor) *mcp.Server {
	server := mcp.NewServer(&mcp.Implementation{
		Name:    serverName,
		Version: version.Version,
	}, &mcp.ServerOptions{
		HasTools: true,
	})

	addDeploymentTools(server, deployments)
	addMonitoringTools(server, deployments, monitor)
	addRollbackTools(server, rollbacks, monitor)
	addMetaTools(server)

	return server
}

type listDeploymentsArgs struct {
	Environment string `json:"environment,omitempty" jsonschema:"filter by environment: staging, production or canary"`
	Status      string `json:"status,omitempty" jsonschema:"filter by deployment status"`
	VersionID   string `json:"version_id,omitempty" jsonschema:"filter by model version id"`
	DeployedBy  string `json:"deployed_by,omitempty" jsonschema:"filter by deployer"`
	Limit       int    `json:"limit,omitempty" jsonschema:"page size, at most 100"`
	Offset      int    `json:"offset,omitempty"`
}

type deploymentArgs struct {
	ID string `json:"id" jsonschema:"deployment id"`
}

type deploymentsResponse struct {
	Deployments []models.Deployment `json:"deployments"`
	Count       int                 `json:"count"`
}

func addDeploymentTools(server *mcp.Server, deployments service.DeploymentService) {
	mcp.AddTool(server, &mcp.Tool{
		Name:        "list_deployments",
		Description: "List deployments newest first with optional filters and pagination",
	}, func(ctx context.Context, _ *mcp.CallToolRequest, args listDeploymentsArgs) (*mcp.CallToolResult, deploymentsResponse, error) {
		filter := &models.DeploymentFilter{}
		if args.Environment != "" {
			env := models.Environment(args.Environment)
			if !env.IsValid() {
				return nil, deploymentsResponse{}, fmt.Errorf("invalid environment %q", args.Environment)
			}
			filter.Environment = &env
		}
		if args.Status != "" {
			status := models.DeploymentStatus(args.Status)
			if !status.IsValid() {
				return nil, deploymentsResponse{}, fmt.Errorf("invalid status %q", args.Status)
			}
			filter.Status = &status
		}
		if args.VersionID != "" {
			filter.VersionID = &args.VersionID
		}
		if args.DeployedBy != "" {
			filter.DeployedBy = &args.DeployedBy
		}

		list, err := deployments.ListDeployments(ctx, filter, clampLimit(args.Limit), max(args.Offset, 0))
		if err != nil {
			return nil, deploymentsResponse{}, err
		}
		return nil, toDeploymentsResponse(list), nil
	})

	mcp.AddTool(server, &mcp.Tool{
		Name:        "get_deployment",
		Description: "Get a deployment by id",
	}, func(ctx context.Context, _ *mcp.CallToolRequest, args deploymentArgs) (*mcp.CallToolResult, models.Deployment, error) {
		if args.ID == "" {
			return nil, models.Deployment{}, errors.New("id is required")
		}
		deployment, err := deployments.GetDeployment(ctx, args.ID)
		if err != nil {
			return nil, models.Deployment{}, err
		}
		return nil, *deployment, nil
	})

	mcp.AddTool(server, &mcp.Tool{
		Name:        "get_last_known_good",
		Description: "Get the most recent prior active deployment in the same environment, the automatic rollback target",
	}, func(ctx context.Context, _ *mcp.CallToolRequest, args deploymentArgs) (*mcp.CallToolResult, models.Deployment, error) {
		if args.ID == "" {
			return nil, models.Deployment{}, errors.New("id is required")
		}
		deployment, err := deployments.GetLastKnownGood(ctx, args.ID)
		if err != nil {
			return nil, models.Deployment{}, err
		}
		return nil, *deployment, nil
	})
}

type listAlertsArgs struct {
	DeploymentID string `json:"deployment_id"`
	Acknowledged *bool  `json:"acknowledged,omitempty" jsonschema:"only acknowledged (true) or unacknowledged (false) alerts"`
}

type alertsResponse struct {
	Alerts []models.DeploymentAlert `json:"alerts"`
	Count  int                      `json:"count"`
}

type queryMetricsArgs struct {
	DeploymentID string `json:"deployment_id"`
	Since        string `json:"since,omitempty" jsonschema:"look-back window as a Go duration, default 1h"`
	Granularity  string `json:"granularity,omitempty" jsonschema:"minute, hour or day; raw samples when empty"`
}

type metricsResponse struct {
	Samples []models.DeploymentMetrics `json:"samples"`
	Count   int                        `json:"count"`
}

type monitoringResponse struct {
	DeploymentID string `json:"deployment_id"`
	Monitoring   bool   `json:"monitoring"`
}

func addMonitoringTools(server *mcp.Server, deployments service.DeploymentService, monitor restv0.Monitor) {
	mcp.AddTool(server, &mcp.Tool{
		Name:        "list_alerts",
		Description: "List alerts raised for a deployment, newest first",
	}, func(ctx context.Context, _ *mcp.CallToolRequest, args listAlertsArgs) (*mcp.CallToolResult, alertsResponse, error) {
		if args.DeploymentID == "" {
			return nil, alertsResponse{}, errors.New("deployment_id is required")
		}
		alerts, err := deployments.ListAlerts(ctx, args.DeploymentID, args.Acknowledged)
		if err != nil {
			return nil, alertsResponse{}, err
		}
		out := alertsResponse{Alerts: make([]models.DeploymentAlert, 0, len(alerts))}
		for _, a := range alerts {
			out.Alerts = append(out.Alerts, *a)
		}
		out.Count = len(out.Alerts)
		return nil, out, nil
	})

	mcp.AddTool(server, &mcp.Tool{
		Name:        "query_metrics",
		Description: "Query metrics samples of a deployment over a recent window",
	}, func(ctx context.Context, _ *mcp.CallToolRequest, args queryMetricsArgs) (*mcp.CallToolResult, metricsResponse, error) {
		if args.DeploymentID == "" {
			return nil, metricsResponse{}, errors.New("deployment_id is required")
		}
		since := defaultSince
		if args.Since != "" {
			d, err := time.ParseDuration(args.Since)
			if err != nil || d <= 0 {
				return nil, metricsResponse{}, fmt.Errorf("invalid since %q", args.Since)
			}
			since = d
		}
		granularity := models.Granularity(args.Granularity)
		if granularity != "" && granularity.Duration() == 0 {
			return nil, metricsResponse{}, fmt.Errorf("invalid granularity %q", args.Granularity)
		}

		to := time.Now().UTC()
		samples, err := deployments.QueryMetrics(ctx, args.DeploymentID, to.Add(-since), to, granularity)
		if err != nil {
			return nil, metricsResponse{}, err
		}
		out := metricsResponse{Samples: make([]models.DeploymentMetrics, 0, len(samples))}
		for _, s := range samples {
			out.Samples = append(out.Samples, *s)
		}
		out.Count = len(out.Samples)
		return nil, out, nil
	})

	mcp.AddTool(server, &mcp.Tool{
		Name:        "monitoring_status",
		Description: "Report whether SLO and drift checks are running for a deployment",
	}, func(ctx context.Context, _ *mcp.CallToolRequest, args deploymentArgs) (*mcp.CallToolResult, monitoringResponse, error) {
		if args.ID == "" {
			return nil, monitoringResponse{}, errors.New("id is required")
		}
		return nil, monitoringResponse{DeploymentID: args.ID, Monitoring: monitor.IsMonitoring(args.ID)}, nil
	})
}

type listRollbacksArgs struct {
	DeploymentID string `json:"deployment_id"`
}

type getRollbackArgs struct {
	ID string `json:"id" jsonschema:"rollback operation id"`
}

type triggerRollbackArgs struct {
	DeploymentID    string `json:"deployment_id"`
	TargetVersionID string `json:"target_version_id,omitempty" jsonschema:"version to restore; the last known good deployment's version when empty"`
	Reason          string `json:"reason,omitempty"`
	InitiatedBy     string `json:"initiated_by,omitempty" jsonschema:"identity requesting the rollback"`
}

type rollbacksResponse struct {
	Rollbacks []models.RollbackOperation `json:"rollbacks"`
	Count     int                        `json:"count"`
}

func addRollbackTools(server *mcp.Server, rollbacks restv0.Rollbacks, monitor restv0.Monitor) {
	mcp.AddTool(server, &mcp.Tool{
		Name:        "list_rollbacks",
		Description: "List rollback operations of a deployment, newest first",
	}, func(ctx context.Context, _ *mcp.CallToolRequest, args listRollbacksArgs) (*mcp.CallToolResult, rollbacksResponse, error) {
		if args.DeploymentID == "" {
			return nil, rollbacksResponse{}, errors.New("deployment_id is required")
		}
		ops, err := rollbacks.ListRollbacks(ctx, args.DeploymentID)
		if err != nil {
			return nil, rollbacksResponse{}, err
		}
		out := rollbacksResponse{Rollbacks: make([]models.RollbackOperation, 0, len(ops))}
		for _, op := range ops {
			out.Rollbacks = append(out.Rollbacks, *op)
		}
		out.Count = len(out.Rollbacks)
		return nil, out, nil
	})

	mcp.AddTool(server, &mcp.Tool{
		Name:        "get_rollback",
		Description: "Get a rollback operation by id",
	}, func(ctx context.Context, _ *mcp.CallToolRequest, args getRollbackArgs) (*mcp.CallToolResult, models.RollbackOperation, error) {
		if args.ID == "" {
			return nil, models.RollbackOperation{}, errors.New("id is required")
		}
		op, err := rollbacks.GetRollback(ctx, args.ID)
		if err != nil {
			return nil, models.RollbackOperation{}, err
		}
		return nil, *op, nil
	})

	mcp.AddTool(server, &mcp.Tool{
		Name:        "rollback_options",
		Description: "List up to five other active deployments in the same environment that a deployment can be rolled back to",
	}, func(ctx context.Context, _ *mcp.CallToolRequest, args listRollbacksArgs) (*mcp.CallToolResult, deploymentsResponse, error) {
		if args.DeploymentID == "" {
			return nil, deploymentsResponse{}, errors.New("deployment_id is required")
		}
		options, err := rollbacks.GetOneClickRollbackOptions(ctx, args.DeploymentID)
		if err != nil {
			return nil, deploymentsResponse{}, err
		}
		return nil, toDeploymentsResponse(options), nil
	})

	mcp.AddTool(server, &mcp.Tool{
		Name:        "trigger_rollback",
		Description: "Start an asynchronous rollback of a deployment. Poll get_rollback for the outcome.",
	}, func(ctx context.Context, _ *mcp.CallToolRequest, args triggerRollbackArgs) (*mcp.CallToolResult, models.RollbackOperation, error) {
		if args.DeploymentID == "" || args.InitiatedBy == "" {
			return nil, models.RollbackOperation{}, errors.New("deployment_id and initiated_by are required")
		}
		reason := args.Reason
		if reason == "" {
			reason = "Rollback requested over MCP"
		}

		var (
			op  *models.RollbackOperation
			err error
		)
		if args.TargetVersionID == "" {
			op, err = monitor.TriggerRollback(ctx, args.DeploymentID, reason, args.InitiatedBy)
		} else {
			op, err = rollbacks.ExecuteRollback(ctx, args.DeploymentID, args.TargetVersionID, reason, args.InitiatedBy)
		}
		if err != nil {
			return nil, models.RollbackOperation{}, err
		}
		return nil, *op, nil
	})
}

func addMetaTools(server *mcp.Server) {
	mcp.AddTool(server, &mcp.Tool{
		Name:        "registry_health",
		Description: "Simple health check for the registry MCP bridge",
	}, func(ctx context.Context, _ *mcp.CallToolRequest, _ struct{}) (*mcp.CallToolResult, map[string]string, error) {
		_ = ctx
		return nil, map[string]string{"status": "ok"}, nil
	})

	mcp.AddTool(server, &mcp.Tool{
		Name:        "registry_version",
		Description: "Return registry build metadata",
	}, func(ctx context.Context, _ *mcp.CallToolRequest, _ struct{}) (*mcp.CallToolResult, map[string]string, error) {
		return nil, map[string]string{
			"version":    version.Version,
			"gitCommit":  version.GitCommit,
			"serverName": serverName,
		}, nil
	})
}

func toDeploymentsResponse(list []*models.Deployment) deploymentsResponse {
	out := deploymentsResponse{Deployments: make([]models.Deployment, 0, len(list))}
	for _, d := range list {
		out.Deployments = append(out.Deployments, *d)
	}
	out.Count = len(out.Deployments)
	return out
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return defaultPageLimit
	}
	if limit > maxPageLimit {
		return maxPageLimit
	}
	return limit
}

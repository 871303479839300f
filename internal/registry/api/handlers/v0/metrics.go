package v0

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"github.com/agentregistry-dev/modelregistry/internal/registry/service"
	"github.com/agentregistry-dev/modelregistry/pkg/models"
)

const defaultMetricsRange = time.Hour

// MetricsSampleRequest is the body of a metrics sample
type MetricsSampleRequest struct {
	Timestamp        *time.Time `json:"timestamp,omitempty" doc:"Sample time; defaults to now"`
	Availability     float64    `json:"availability" minimum:"0" maximum:"100" example:"99.95"`
	LatencyP95Ms     float64    `json:"latencyP95Ms" minimum:"0" example:"120"`
	LatencyP99Ms     float64    `json:"latencyP99Ms" minimum:"0" example:"250"`
	ErrorRate        float64    `json:"errorRate" minimum:"0" maximum:"100" example:"0.05"`
	InputDrift       *float64   `json:"inputDrift,omitempty" minimum:"0"`
	OutputDrift      *float64   `json:"outputDrift,omitempty" minimum:"0"`
	PerformanceDrift *float64   `json:"performanceDrift,omitempty" minimum:"0"`
	RequestCount     int64      `json:"requestCount,omitempty" minimum:"0"`
}

// MetricsQueryInput selects a time range of samples
type MetricsQueryInput struct {
	DeploymentPath
	From        string `query:"from" doc:"Range start (RFC 3339); defaults to one hour before the end" example:"2025-10-14T12:00:00Z"`
	To          string `query:"to" doc:"Range end (RFC 3339); defaults to now" example:"2025-10-14T13:00:00Z"`
	Granularity string `query:"granularity" enum:"minute,hour,day" doc:"Average samples into buckets of this width"`
}

// MetricsBody lists metrics samples
type MetricsBody struct {
	Metrics []models.DeploymentMetrics `json:"metrics" doc:"Samples, oldest first"`
}

// AlertsListInput filters the alerts of a deployment
type AlertsListInput struct {
	DeploymentPath
	Acknowledged string `query:"acknowledged" enum:"true,false" doc:"Filter by acknowledgement"`
}

// AlertsBody lists alerts
type AlertsBody struct {
	Alerts []models.DeploymentAlert `json:"alerts" doc:"Alerts, newest first"`
}

// AlertPath identifies an alert in the URL
type AlertPath struct {
	ID string `path:"id" doc:"Alert id"`
}

// RegisterMetricsEndpoints registers metrics ingestion and query endpoints
func RegisterMetricsEndpoints(api huma.API, basePath string, deployments service.DeploymentService) {
	huma.Register(api, huma.Operation{
		OperationID:   "record-metrics",
		Method:        http.MethodPost,
		Path:          basePath + "/deployments/{id}/metrics",
		Summary:       "Record a metrics sample",
		Tags:          []string{"metrics"},
		DefaultStatus: http.StatusCreated,
	}, func(ctx context.Context, input *struct {
		DeploymentPath
		Body MetricsSampleRequest
	}) (*Response[models.DeploymentMetrics], error) {
		sample := &models.DeploymentMetrics{
			DeploymentID:     input.ID,
			Availability:     input.Body.Availability,
			LatencyP95Ms:     input.Body.LatencyP95Ms,
			LatencyP99Ms:     input.Body.LatencyP99Ms,
			ErrorRate:        input.Body.ErrorRate,
			InputDrift:       input.Body.InputDrift,
			OutputDrift:      input.Body.OutputDrift,
			PerformanceDrift: input.Body.PerformanceDrift,
			RequestCount:     input.Body.RequestCount,
		}
		if input.Body.Timestamp != nil {
			sample.Timestamp = input.Body.Timestamp.UTC()
		}

		recorded, err := deployments.RecordMetrics(ctx, sample)
		if err != nil {
			return nil, errorResponse(err, "Failed to record metrics")
		}
		return &Response[models.DeploymentMetrics]{Body: *recorded}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "query-metrics",
		Method:      http.MethodGet,
		Path:        basePath + "/deployments/{id}/metrics",
		Summary:     "Query metrics",
		Description: "Samples in [from, to]. With a granularity every field is averaged per bucket and request counts are summed.",
		Tags:        []string{"metrics"},
	}, func(ctx context.Context, input *MetricsQueryInput) (*Response[MetricsBody], error) {
		to := time.Now().UTC()
		if input.To != "" {
			parsed, err := time.Parse(time.RFC3339, input.To)
			if err != nil {
				return nil, huma.Error422UnprocessableEntity(fmt.Sprintf("invalid 'to': %v", err))
			}
			to = parsed.UTC()
		}
		from := to.Add(-defaultMetricsRange)
		if input.From != "" {
			parsed, err := time.Parse(time.RFC3339, input.From)
			if err != nil {
				return nil, huma.Error422UnprocessableEntity(fmt.Sprintf("invalid 'from': %v", err))
			}
			from = parsed.UTC()
		}

		samples, err := deployments.QueryMetrics(ctx, input.ID, from, to, models.Granularity(input.Granularity))
		if err != nil {
			return nil, errorResponse(err, "Failed to query metrics")
		}
		resp := &Response[MetricsBody]{}
		resp.Body.Metrics = make([]models.DeploymentMetrics, 0, len(samples))
		for _, s := range samples {
			resp.Body.Metrics = append(resp.Body.Metrics, *s)
		}
		return resp, nil
	})
}

// RegisterAlertsEndpoints registers alert listing and triage endpoints
func RegisterAlertsEndpoints(api huma.API, basePath string, deployments service.DeploymentService) {
	huma.Register(api, huma.Operation{
		OperationID: "list-alerts",
		Method:      http.MethodGet,
		Path:        basePath + "/deployments/{id}/alerts",
		Summary:     "List alerts",
		Tags:        []string{"alerts"},
	}, func(ctx context.Context, input *AlertsListInput) (*Response[AlertsBody], error) {
		var acknowledged *bool
		if input.Acknowledged != "" {
			v := input.Acknowledged == "true"
			acknowledged = &v
		}

		alerts, err := deployments.ListAlerts(ctx, input.ID, acknowledged)
		if err != nil {
			return nil, errorResponse(err, "Failed to list alerts")
		}
		resp := &Response[AlertsBody]{}
		resp.Body.Alerts = make([]models.DeploymentAlert, 0, len(alerts))
		for _, a := range alerts {
			resp.Body.Alerts = append(resp.Body.Alerts, *a)
		}
		return resp, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "acknowledge-alert",
		Method:      http.MethodPost,
		Path:        basePath + "/alerts/{id}/acknowledge",
		Summary:     "Acknowledge an alert",
		Tags:        []string{"alerts"},
	}, func(ctx context.Context, input *AlertPath) (*Response[models.DeploymentAlert], error) {
		alert, err := deployments.AcknowledgeAlert(ctx, input.ID)
		if err != nil {
			return nil, errorResponse(err, "Failed to acknowledge alert")
		}
		return &Response[models.DeploymentAlert]{Body: *alert}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "resolve-alert",
		Method:      http.MethodPost,
		Path:        basePath + "/alerts/{id}/resolve",
		Summary:     "Resolve an alert",
		Tags:        []string{"alerts"},
	}, func(ctx context.Context, input *AlertPath) (*Response[models.DeploymentAlert], error) {
		alert, err := deployments.ResolveAlert(ctx, input.ID)
		if err != nil {
			return nil, errorResponse(err, "Failed to resolve alert")
		}
		return &Response[models.DeploymentAlert]{Body: *alert}, nil
	})
}

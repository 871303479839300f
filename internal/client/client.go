package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	v0 "github.com/agentregistry-dev/modelregistry/internal/registry/api/handlers/v0"
	"github.com/agentregistry-dev/modelregistry/pkg/models"
)

// DefaultBaseURL is the API root used when none is configured
const DefaultBaseURL = "http://localhost:8080/v0"

// Environment variables read by the CLI
const (
	EnvBaseURL = "ROLLCTL_API_BASE_URL"
	EnvToken   = "ROLLCTL_API_TOKEN"
)

// Client is a thin HTTP client for the deployment registry API
type Client struct {
	BaseURL    string
	httpClient *http.Client
	token      string
}

// APIError is a non-2xx response from the API
type APIError struct {
	StatusCode int
	Title      string
	Detail     string
}

func (e *APIError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%d %s: %s", e.StatusCode, e.Title, e.Detail)
	}
	return fmt.Sprintf("%d %s", e.StatusCode, e.Title)
}

// IsNotFound reports whether err is a 404 from the API
func IsNotFound(err error) bool {
	return StatusCode(err) == http.StatusNotFound
}

// StatusCode returns the HTTP status carried by err, or 0
func StatusCode(err error) int {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode
	}
	return 0
}

// NewClient constructs a client with explicit baseURL and token
func NewClient(baseURL, token string) *Client {
	if strings.TrimSpace(baseURL) == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

func (c *Client) do(ctx context.Context, method, pathWithQuery string, in, out any) error {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to marshal %T: %w", in, err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+pathWithQuery, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if out != nil {
		req.Header.Set("Accept", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		// read up to 4KB of body for the error message
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		apiErr := &APIError{StatusCode: resp.StatusCode, Title: http.StatusText(resp.StatusCode)}
		var problem struct {
			Title  string `json:"title"`
			Detail string `json:"detail"`
		}
		if json.Unmarshal(raw, &problem) == nil && (problem.Title != "" || problem.Detail != "") {
			if problem.Title != "" {
				apiErr.Title = problem.Title
			}
			apiErr.Detail = problem.Detail
		} else {
			apiErr.Detail = strings.TrimSpace(string(raw))
		}
		return apiErr
	}

	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func escape(id string) string {
	return url.PathEscape(id)
}

// Ping checks connectivity to the API
func (c *Client) Ping(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/ping", nil, nil)
}

// GetVersionInfo returns the server build information
func (c *Client) GetVersionInfo(ctx context.Context) (*v0.VersionBody, error) {
	var out v0.VersionBody
	if err := c.do(ctx, http.MethodGet, "/version", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CreateVersion registers a model version
func (c *Client) CreateVersion(ctx context.Context, req *models.CreateVersionRequest) (*models.ModelVersion, error) {
	var out models.ModelVersion
	if err := c.do(ctx, http.MethodPost, "/versions", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetVersion returns a model version
func (c *Client) GetVersion(ctx context.Context, id string) (*models.ModelVersion, error) {
	var out models.ModelVersion
	if err := c.do(ctx, http.MethodGet, "/versions/"+escape(id), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CreateDeployment creates a pending deployment
func (c *Client) CreateDeployment(ctx context.Context, req *v0.DeploymentRequest) (*models.Deployment, error) {
	var out models.Deployment
	if err := c.do(ctx, http.MethodPost, "/deployments", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListOptions filters and pages a deployment listing
type ListOptions struct {
	Environment string
	Status      string
	VersionID   string
	DeployedBy  string
	Limit       int
	Offset      int
}

func (o ListOptions) query() string {
	q := url.Values{}
	if o.Environment != "" {
		q.Set("environment", o.Environment)
	}
	if o.Status != "" {
		q.Set("status", o.Status)
	}
	if o.VersionID != "" {
		q.Set("versionId", o.VersionID)
	}
	if o.DeployedBy != "" {
		q.Set("deployedBy", o.DeployedBy)
	}
	if o.Limit > 0 {
		q.Set("limit", strconv.Itoa(o.Limit))
	}
	if o.Offset > 0 {
		q.Set("offset", strconv.Itoa(o.Offset))
	}
	if len(q) == 0 {
		return ""
	}
	return "?" + q.Encode()
}

// ListDeployments returns one page of deployments, newest first
func (c *Client) ListDeployments(ctx context.Context, opts ListOptions) ([]models.Deployment, error) {
	var out v0.DeploymentsListBody
	if err := c.do(ctx, http.MethodGet, "/deployments"+opts.query(), nil, &out); err != nil {
		return nil, err
	}
	return out.Deployments, nil
}

// GetDeployment returns a deployment
func (c *Client) GetDeployment(ctx context.Context, id string) (*models.Deployment, error) {
	var out models.Deployment
	if err := c.do(ctx, http.MethodGet, "/deployments/"+escape(id), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// UpdateStatus overwrites the status of a deployment
func (c *Client) UpdateStatus(ctx context.Context, id string, status models.DeploymentStatus) (*models.Deployment, error) {
	var out models.Deployment
	if err := c.do(ctx, http.MethodPut, "/deployments/"+escape(id)+"/status", v0.StatusUpdate{Status: status}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetLastKnownGood returns the automatic rollback target of a deployment
func (c *Client) GetLastKnownGood(ctx context.Context, id string) (*models.Deployment, error) {
	var out models.Deployment
	if err := c.do(ctx, http.MethodGet, "/deployments/"+escape(id)+"/last-known-good", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// RecordTrafficSplit shifts traffic to a deployment
func (c *Client) RecordTrafficSplit(ctx context.Context, id string, percentage float64) (*models.TrafficSplit, error) {
	var out models.TrafficSplit
	if err := c.do(ctx, http.MethodPost, "/deployments/"+escape(id)+"/traffic", v0.TrafficSplitRequest{Percentage: percentage}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListTrafficSplits returns the splits of a deployment, newest first
func (c *Client) ListTrafficSplits(ctx context.Context, id string) ([]models.TrafficSplit, error) {
	var out v0.TrafficSplitsBody
	if err := c.do(ctx, http.MethodGet, "/deployments/"+escape(id)+"/traffic", nil, &out); err != nil {
		return nil, err
	}
	return out.Splits, nil
}

// RecordMetrics pushes a metrics sample
func (c *Client) RecordMetrics(ctx context.Context, id string, sample *v0.MetricsSampleRequest) (*models.DeploymentMetrics, error) {
	var out models.DeploymentMetrics
	if err := c.do(ctx, http.MethodPost, "/deployments/"+escape(id)+"/metrics", sample, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// QueryMetrics returns samples in [from, to]; zero times use the server defaults
func (c *Client) QueryMetrics(ctx context.Context, id string, from, to time.Time, granularity models.Granularity) ([]models.DeploymentMetrics, error) {
	q := url.Values{}
	if !from.IsZero() {
		q.Set("from", from.UTC().Format(time.RFC3339))
	}
	if !to.IsZero() {
		q.Set("to", to.UTC().Format(time.RFC3339))
	}
	if granularity != "" {
		q.Set("granularity", string(granularity))
	}
	path := "/deployments/" + escape(id) + "/metrics"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	var out v0.MetricsBody
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out.Metrics, nil
}

// ListAlerts returns the alerts of a deployment, optionally filtered by acknowledgement
func (c *Client) ListAlerts(ctx context.Context, id string, acknowledged *bool) ([]models.DeploymentAlert, error) {
	path := "/deployments/" + escape(id) + "/alerts"
	if acknowledged != nil {
		path += "?acknowledged=" + strconv.FormatBool(*acknowledged)
	}
	var out v0.AlertsBody
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out.Alerts, nil
}

// AcknowledgeAlert marks an alert as acknowledged
func (c *Client) AcknowledgeAlert(ctx context.Context, id string) (*models.DeploymentAlert, error) {
	var out models.DeploymentAlert
	if err := c.do(ctx, http.MethodPost, "/alerts/"+escape(id)+"/acknowledge", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ResolveAlert marks an alert as resolved
func (c *Client) ResolveAlert(ctx context.Context, id string) (*models.DeploymentAlert, error) {
	var out models.DeploymentAlert
	if err := c.do(ctx, http.MethodPost, "/alerts/"+escape(id)+"/resolve", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ExecuteRollback starts a rollback and returns the pending operation
func (c *Client) ExecuteRollback(ctx context.Context, deploymentID string, req *v0.RollbackRequest) (*models.RollbackOperation, error) {
	var out models.RollbackOperation
	if err := c.do(ctx, http.MethodPost, "/deployments/"+escape(deploymentID)+"/rollbacks", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetRollback returns a rollback operation
func (c *Client) GetRollback(ctx context.Context, id string) (*models.RollbackOperation, error) {
	var out models.RollbackOperation
	if err := c.do(ctx, http.MethodGet, "/rollbacks/"+escape(id), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListRollbacks returns the rollbacks of a deployment, newest first
func (c *Client) ListRollbacks(ctx context.Context, deploymentID string) ([]models.RollbackOperation, error) {
	var out v0.RollbacksBody
	if err := c.do(ctx, http.MethodGet, "/deployments/"+escape(deploymentID)+"/rollbacks", nil, &out); err != nil {
		return nil, err
	}
	return out.Rollbacks, nil
}

// CancelRollback cancels a rollback and reports whether it took effect
func (c *Client) CancelRollback(ctx context.Context, id string) (bool, error) {
	var out v0.CancelBody
	if err := c.do(ctx, http.MethodPost, "/rollbacks/"+escape(id)+"/cancel", nil, &out); err != nil {
		return false, err
	}
	return out.Cancelled, nil
}

// GetRollbackOptions returns the one-click rollback candidates of a deployment
func (c *Client) GetRollbackOptions(ctx context.Context, deploymentID string) ([]models.Deployment, error) {
	var out v0.RollbackOptionsBody
	if err := c.do(ctx, http.MethodGet, "/deployments/"+escape(deploymentID)+"/rollback-options", nil, &out); err != nil {
		return nil, err
	}
	return out.Options, nil
}

// WaitForRollback polls a rollback until it completes or fails
func (c *Client) WaitForRollback(ctx context.Context, id string, interval time.Duration) (*models.RollbackOperation, error) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		op, err := c.GetRollback(ctx, id)
		if err != nil {
			return nil, err
		}
		if op.Status.IsTerminal() {
			return op, nil
		}
		select {
		case <-ctx.Done():
			return op, ctx.Err()
		case <-ticker.C:
		}
	}
}

// GetMonitoring reports whether a deployment is being watched
func (c *Client) GetMonitoring(ctx context.Context, deploymentID string) (*v0.MonitoringBody, error) {
	var out v0.MonitoringBody
	if err := c.do(ctx, http.MethodGet, "/deployments/"+escape(deploymentID)+"/monitoring", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// StartMonitoring starts SLO and drift checks for a deployment
func (c *Client) StartMonitoring(ctx context.Context, deploymentID string) error {
	return c.do(ctx, http.MethodPost, "/deployments/"+escape(deploymentID)+"/monitoring/start", nil, nil)
}

// StopMonitoring stops SLO and drift checks for a deployment
func (c *Client) StopMonitoring(ctx context.Context, deploymentID string) error {
	return c.do(ctx, http.MethodPost, "/deployments/"+escape(deploymentID)+"/monitoring/stop", nil, nil)
}

// TriggerRollback rolls a deployment back to its last known good version
func (c *Client) TriggerRollback(ctx context.Context, deploymentID string, req *v0.TriggerRequest) (*models.RollbackOperation, error) {
	var out models.RollbackOperation
	if err := c.do(ctx, http.MethodPost, "/deployments/"+escape(deploymentID)+"/monitoring/trigger", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

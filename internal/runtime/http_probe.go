package runtime

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/agentregistry-dev/modelregistry/pkg/models"
)

const defaultProbeTimeout = 5 * time.Second

// DeploymentLookup resolves a deployment to its configuration.
type DeploymentLookup interface {
	GetDeployment(ctx context.Context, id string) (*models.Deployment, error)
}

// HTTPProbe checks deployments over HTTP. Health is GET <endpoint><healthPath>
// answering 2xx; the running version is GET <endpoint>/version answering
// {"versionId": "..."}.
type HTTPProbe struct {
	deployments DeploymentLookup
	httpClient  *http.Client
}

var _ HealthProbe = (*HTTPProbe)(nil)

// NewHTTPProbe creates a probe. A nil client uses a client with a 5s timeout.
func NewHTTPProbe(deployments DeploymentLookup, httpClient *http.Client) *HTTPProbe {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultProbeTimeout}
	}
	return &HTTPProbe{deployments: deployments, httpClient: httpClient}
}

type versionResponse struct {
	VersionID string `json:"versionId"`
}

func (p *HTTPProbe) endpoint(ctx context.Context, deploymentID string) (*models.Deployment, string, error) {
	d, err := p.deployments.GetDeployment(ctx, deploymentID)
	if err != nil {
		return nil, "", err
	}
	if d.Config.Endpoint == "" {
		return nil, "", fmt.Errorf("deployment %s has no endpoint configured", deploymentID)
	}
	return d, strings.TrimRight(d.Config.Endpoint, "/"), nil
}

func (p *HTTPProbe) get(ctx context.Context, url string, timeoutSeconds int) (*http.Response, error) {
	if timeoutSeconds > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(timeoutSeconds)*time.Second)
		defer cancel()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request %s failed: %w", url, err)
	}
	// Body is read before the per-request timeout is released
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	_ = resp.Body.Close()
	if err != nil {
		return nil, fmt.Errorf("failed to read response from %s: %w", url, err)
	}
	resp.Body = io.NopCloser(strings.NewReader(string(body)))
	return resp, nil
}

// CheckHealth GETs the deployment's health check path. Any 2xx is healthy.
func (p *HTTPProbe) CheckHealth(ctx context.Context, deploymentID string) (bool, error) {
	d, base, err := p.endpoint(ctx, deploymentID)
	if err != nil {
		return false, err
	}

	path := d.Config.HealthCheck.Path
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	resp, err := p.get(ctx, base+path, d.Config.HealthCheck.TimeoutSeconds)
	if err != nil {
		return false, err
	}
	defer func() { _ = resp.Body.Close() }()

	return resp.StatusCode >= 200 && resp.StatusCode < 300, nil
}

// CheckDeployedVersion GETs /version and compares the reported versionId
// with expectedVersionID. A non-200 answer is an error.
func (p *HTTPProbe) CheckDeployedVersion(ctx context.Context, deploymentID, expectedVersionID string) (bool, error) {
	d, base, err := p.endpoint(ctx, deploymentID)
	if err != nil {
		return false, err
	}

	resp, err := p.get(ctx, base+"/version", d.Config.HealthCheck.TimeoutSeconds)
	if err != nil {
		return false, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("version endpoint returned status %d", resp.StatusCode)
	}

	var v versionResponse
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		return false, fmt.Errorf("failed to decode version response: %w", err)
	}
	return v.VersionID == expectedVersionID, nil
}

// Package testing provides test utilities for the deployment service.
package testing

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/agentregistry-dev/modelregistry/internal/registry/service"
	"github.com/agentregistry-dev/modelregistry/pkg/models"
)

// FakeDeploymentService is a configurable fake implementation of service.DeploymentService for testing.
// It supports both data-driven setup via struct fields and function hooks for custom behavior.
type FakeDeploymentService struct {
	mu sync.Mutex

	// Data fields for simple data-driven tests
	Versions    []*models.ModelVersion
	Deployments []*models.Deployment
	Metrics     []*models.DeploymentMetrics
	Alerts      []*models.DeploymentAlert

	// Call counters for verification
	UpdateStatusCalls int
	RaiseAlertCalls   int

	// Function hooks for custom behavior (take precedence over data fields when set)
	CreateVersionFn           func(ctx context.Context, req *models.CreateVersionRequest) (*models.ModelVersion, error)
	GetVersionFn              func(ctx context.Context, versionID string) (*models.ModelVersion, error)
	CreateDeploymentFn        func(ctx context.Context, req *models.CreateDeploymentRequest, deployer string) (*models.Deployment, error)
	GetDeploymentFn           func(ctx context.Context, id string) (*models.Deployment, error)
	ListDeploymentsFn         func(ctx context.Context, filter *models.DeploymentFilter, limit, offset int) ([]*models.Deployment, error)
	UpdateStatusFn            func(ctx context.Context, id string, status models.DeploymentStatus) (*models.Deployment, error)
	ListActiveInEnvironmentFn func(ctx context.Context, env models.Environment, excludeID string, limit int) ([]*models.Deployment, error)
	GetLastKnownGoodFn        func(ctx context.Context, deploymentID string) (*models.Deployment, error)
	RecordTrafficSplitFn      func(ctx context.Context, deploymentID string, percentage float64) (*models.TrafficSplit, error)
	CompleteTrafficSplitFn    func(ctx context.Context, id string) (*models.TrafficSplit, error)
	GetTrafficSplitsFn        func(ctx context.Context, deploymentID string) ([]*models.TrafficSplit, error)
	GetCurrentTrafficSplitFn  func(ctx context.Context, deploymentID string) (*models.TrafficSplit, error)
	RecordMetricsFn           func(ctx context.Context, sample *models.DeploymentMetrics) (*models.DeploymentMetrics, error)
	QueryMetricsFn            func(ctx context.Context, deploymentID string, from, to time.Time, granularity models.Granularity) ([]*models.DeploymentMetrics, error)
	RaiseAlertFn              func(ctx context.Context, alert *models.DeploymentAlert) (*models.DeploymentAlert, error)
	ListAlertsFn              func(ctx context.Context, deploymentID string, acknowledged *bool) ([]*models.DeploymentAlert, error)
	AcknowledgeAlertFn        func(ctx context.Context, id string) (*models.DeploymentAlert, error)
	ResolveAlertFn            func(ctx context.Context, id string) (*models.DeploymentAlert, error)
}

var _ service.DeploymentService = (*FakeDeploymentService)(nil)

// NewFakeDeploymentService creates an empty fake.
func NewFakeDeploymentService() *FakeDeploymentService {
	return &FakeDeploymentService{}
}

func notFound(what, id string) error {
	return fmt.Errorf("%w: %s %s", service.ErrNotFound, what, id)
}

// Version methods

func (f *FakeDeploymentService) CreateVersion(ctx context.Context, req *models.CreateVersionRequest) (*models.ModelVersion, error) {
	if f.CreateVersionFn != nil {
		return f.CreateVersionFn(ctx, req)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	v := &models.ModelVersion{ID: req.ID, ModelID: req.ModelID, Version: req.Version, ArtifactURI: req.ArtifactURI, CreatedAt: time.Now().UTC()}
	f.Versions = append(f.Versions, v)
	return v, nil
}

func (f *FakeDeploymentService) GetVersion(ctx context.Context, versionID string) (*models.ModelVersion, error) {
	if f.GetVersionFn != nil {
		return f.GetVersionFn(ctx, versionID)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, v := range f.Versions {
		if v.ID == versionID {
			return v, nil
		}
	}
	return nil, notFound("version", versionID)
}

// Deployment methods

func (f *FakeDeploymentService) CreateDeployment(ctx context.Context, req *models.CreateDeploymentRequest, deployer string) (*models.Deployment, error) {
	if f.CreateDeploymentFn != nil {
		return f.CreateDeploymentFn(ctx, req, deployer)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	now := time.Now().UTC()
	d := &models.Deployment{
		ID:              fmt.Sprintf("deployment-%d", len(f.Deployments)+1),
		VersionID:       req.VersionID,
		Environment:     req.Environment,
		Status:          models.DeploymentStatusPending,
		Strategy:        req.Strategy,
		Config:          req.Config,
		SLOTargets:      req.SLOTargets,
		DriftThresholds: req.DriftThresholds,
		DeployedBy:      deployer,
		DeployedAt:      now,
		UpdatedAt:       now,
	}
	f.Deployments = append(f.Deployments, d)
	return d, nil
}

func (f *FakeDeploymentService) GetDeployment(ctx context.Context, id string) (*models.Deployment, error) {
	if f.GetDeploymentFn != nil {
		return f.GetDeploymentFn(ctx, id)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, d := range f.Deployments {
		if d.ID == id {
			return d, nil
		}
	}
	return nil, notFound("deployment", id)
}

func (f *FakeDeploymentService) ListDeployments(ctx context.Context, filter *models.DeploymentFilter, limit, offset int) ([]*models.Deployment, error) {
	if f.ListDeploymentsFn != nil {
		return f.ListDeploymentsFn(ctx, filter, limit, offset)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if offset >= len(f.Deployments) {
		return nil, nil
	}
	out := f.Deployments[offset:]
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *FakeDeploymentService) UpdateStatus(ctx context.Context, id string, status models.DeploymentStatus) (*models.Deployment, error) {
	f.mu.Lock()
	f.UpdateStatusCalls++
	f.mu.Unlock()
	if f.UpdateStatusFn != nil {
		return f.UpdateStatusFn(ctx, id, status)
	}
	d, err := f.GetDeployment(ctx, id)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	d.Status = status
	d.UpdatedAt = time.Now().UTC()
	return d, nil
}

func (f *FakeDeploymentService) ListActiveInEnvironment(ctx context.Context, env models.Environment, excludeID string, limit int) ([]*models.Deployment, error) {
	if f.ListActiveInEnvironmentFn != nil {
		return f.ListActiveInEnvironmentFn(ctx, env, excludeID, limit)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.Deployment
	for _, d := range f.Deployments {
		if d.Environment == env && d.Status == models.DeploymentStatusActive && d.ID != excludeID {
			out = append(out, d)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *FakeDeploymentService) GetLastKnownGood(ctx context.Context, deploymentID string) (*models.Deployment, error) {
	if f.GetLastKnownGoodFn != nil {
		return f.GetLastKnownGoodFn(ctx, deploymentID)
	}
	return nil, notFound("last known good deployment for", deploymentID)
}

// Traffic methods

func (f *FakeDeploymentService) RecordTrafficSplit(ctx context.Context, deploymentID string, percentage float64) (*models.TrafficSplit, error) {
	if f.RecordTrafficSplitFn != nil {
		return f.RecordTrafficSplitFn(ctx, deploymentID, percentage)
	}
	return &models.TrafficSplit{ID: "split", DeploymentID: deploymentID, Percentage: percentage, StartedAt: time.Now().UTC()}, nil
}

func (f *FakeDeploymentService) CompleteTrafficSplit(ctx context.Context, id string) (*models.TrafficSplit, error) {
	if f.CompleteTrafficSplitFn != nil {
		return f.CompleteTrafficSplitFn(ctx, id)
	}
	return nil, notFound("traffic split", id)
}

func (f *FakeDeploymentService) GetTrafficSplits(ctx context.Context, deploymentID string) ([]*models.TrafficSplit, error) {
	if f.GetTrafficSplitsFn != nil {
		return f.GetTrafficSplitsFn(ctx, deploymentID)
	}
	return nil, nil
}

func (f *FakeDeploymentService) GetCurrentTrafficSplit(ctx context.Context, deploymentID string) (*models.TrafficSplit, error) {
	if f.GetCurrentTrafficSplitFn != nil {
		return f.GetCurrentTrafficSplitFn(ctx, deploymentID)
	}
	return nil, notFound("current traffic split for", deploymentID)
}

// Metrics methods

func (f *FakeDeploymentService) RecordMetrics(ctx context.Context, sample *models.DeploymentMetrics) (*models.DeploymentMetrics, error) {
	if f.RecordMetricsFn != nil {
		return f.RecordMetricsFn(ctx, sample)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Metrics = append(f.Metrics, sample)
	return sample, nil
}

func (f *FakeDeploymentService) QueryMetrics(ctx context.Context, deploymentID string, from, to time.Time, granularity models.Granularity) ([]*models.DeploymentMetrics, error) {
	if f.QueryMetricsFn != nil {
		return f.QueryMetricsFn(ctx, deploymentID, from, to, granularity)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.DeploymentMetrics
	for _, m := range f.Metrics {
		if m.DeploymentID == deploymentID && !m.Timestamp.Before(from) && !m.Timestamp.After(to) {
			out = append(out, m)
		}
	}
	return out, nil
}

// Alert methods

func (f *FakeDeploymentService) RaiseAlert(ctx context.Context, alert *models.DeploymentAlert) (*models.DeploymentAlert, error) {
	f.mu.Lock()
	f.RaiseAlertCalls++
	f.mu.Unlock()
	if f.RaiseAlertFn != nil {
		return f.RaiseAlertFn(ctx, alert)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Alerts = append(f.Alerts, alert)
	return alert, nil
}

func (f *FakeDeploymentService) ListAlerts(ctx context.Context, deploymentID string, acknowledged *bool) ([]*models.DeploymentAlert, error) {
	if f.ListAlertsFn != nil {
		return f.ListAlertsFn(ctx, deploymentID, acknowledged)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.DeploymentAlert
	for _, a := range f.Alerts {
		if a.DeploymentID != deploymentID {
			continue
		}
		if acknowledged != nil && a.Acknowledged != *acknowledged {
			continue
		}
		out = append(out, a)
	}
	return out, nil
}

func (f *FakeDeploymentService) AcknowledgeAlert(ctx context.Context, id string) (*models.DeploymentAlert, error) {
	if f.AcknowledgeAlertFn != nil {
		return f.AcknowledgeAlertFn(ctx, id)
	}
	return nil, notFound("alert", id)
}

func (f *FakeDeploymentService) ResolveAlert(ctx context.Context, id string) (*models.DeploymentAlert, error) {
	if f.ResolveAlertFn != nil {
		return f.ResolveAlertFn(ctx, id)
	}
	return nil, notFound("alert", id)
}

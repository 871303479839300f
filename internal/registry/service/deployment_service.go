package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/agentregistry-dev/modelregistry/pkg/models"
	"github.com/agentregistry-dev/modelregistry/pkg/registry/database"
)

// DeploymentService defines the lifecycle operations on deployments and their owned records
type DeploymentService interface {
	// Versions APIs
	// CreateVersion registers a model version in the version catalog
	CreateVersion(ctx context.Context, req *models.CreateVersionRequest) (*models.ModelVersion, error)
	// GetVersion retrieves a model version by id
	GetVersion(ctx context.Context, versionID string) (*models.ModelVersion, error)

	// Deployments APIs
	// CreateDeployment creates a deployment in pending status
	CreateDeployment(ctx context.Context, req *models.CreateDeploymentRequest, deployer string) (*models.Deployment, error)
	// GetDeployment retrieves a deployment by id
	GetDeployment(ctx context.Context, id string) (*models.Deployment, error)
	// ListDeployments retrieves deployments newest first
	ListDeployments(ctx context.Context, filter *models.DeploymentFilter, limit, offset int) ([]*models.Deployment, error)
	// UpdateStatus overwrites the status of a deployment
	UpdateStatus(ctx context.Context, id string, status models.DeploymentStatus) (*models.Deployment, error)
	// ListActiveInEnvironment retrieves active deployments of an environment newest first
	ListActiveInEnvironment(ctx context.Context, env models.Environment, excludeID string, limit int) ([]*models.Deployment, error)
	// GetLastKnownGood retrieves the most recent prior active deployment in the same environment
	GetLastKnownGood(ctx context.Context, deploymentID string) (*models.Deployment, error)

	// Traffic APIs
	// RecordTrafficSplit appends a traffic split and stamps the deployment's current traffic
	RecordTrafficSplit(ctx context.Context, deploymentID string, percentage float64) (*models.TrafficSplit, error)
	// CompleteTrafficSplit stamps the completion time of a split
	CompleteTrafficSplit(ctx context.Context, id string) (*models.TrafficSplit, error)
	// GetTrafficSplits retrieves the splits of a deployment newest first
	GetTrafficSplits(ctx context.Context, deploymentID string) ([]*models.TrafficSplit, error)
	// GetCurrentTrafficSplit retrieves the newest split without a completion time
	GetCurrentTrafficSplit(ctx context.Context, deploymentID string) (*models.TrafficSplit, error)

	// Metrics APIs
	// RecordMetrics appends a metrics sample
	RecordMetrics(ctx context.Context, sample *models.DeploymentMetrics) (*models.DeploymentMetrics, error)
	// QueryMetrics retrieves samples in [from, to], bucketed when granularity is set
	QueryMetrics(ctx context.Context, deploymentID string, from, to time.Time, granularity models.Granularity) ([]*models.DeploymentMetrics, error)

	// Alerts APIs
	// RaiseAlert records a new alert
	RaiseAlert(ctx context.Context, alert *models.DeploymentAlert) (*models.DeploymentAlert, error)
	// ListAlerts retrieves the alerts of a deployment newest first
	ListAlerts(ctx context.Context, deploymentID string, acknowledged *bool) ([]*models.DeploymentAlert, error)
	// AcknowledgeAlert marks an alert as acknowledged
	AcknowledgeAlert(ctx context.Context, id string) (*models.DeploymentAlert, error)
	// ResolveAlert stamps the resolution time of an alert
	ResolveAlert(ctx context.Context, id string) (*models.DeploymentAlert, error)
}

// DeploymentManager implements DeploymentService on top of the deployment store
type DeploymentManager struct {
	db     database.Database
	logger *zap.Logger
	now    func() time.Time
}

var _ DeploymentService = (*DeploymentManager)(nil)

// NewDeploymentManager creates a lifecycle manager backed by db
func NewDeploymentManager(db database.Database, logger *zap.Logger) *DeploymentManager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DeploymentManager{
		db:     db,
		logger: logger.Named("deployments"),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// CreateVersion registers a model version
func (s *DeploymentManager) CreateVersion(ctx context.Context, req *models.CreateVersionRequest) (*models.ModelVersion, error) {
	if req == nil {
		return nil, fmt.Errorf("%w: request is required", ErrValidation)
	}
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrValidation, err)
	}

	version := &models.ModelVersion{
		ID:          req.ID,
		ModelID:     req.ModelID,
		Version:     req.Version,
		ArtifactURI: req.ArtifactURI,
		CreatedAt:   s.now(),
	}
	if version.ID == "" {
		version.ID = uuid.NewString()
	}

	if err := s.db.CreateModelVersion(ctx, nil, version); err != nil {
		return nil, StoreError(err, "version")
	}
	return version, nil
}

// GetVersion retrieves a model version by id
func (s *DeploymentManager) GetVersion(ctx context.Context, versionID string) (*models.ModelVersion, error) {
	version, err := s.db.GetModelVersion(ctx, nil, versionID)
	if err != nil {
		return nil, StoreError(err, "version "+versionID)
	}
	return version, nil
}

// CreateDeployment validates the request and persists a pending deployment
func (s *DeploymentManager) CreateDeployment(ctx context.Context, req *models.CreateDeploymentRequest, deployer string) (*models.Deployment, error) {
	if req == nil {
		return nil, fmt.Errorf("%w: request is required", ErrValidation)
	}
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrValidation, err)
	}
	if deployer == "" {
		return nil, fmt.Errorf("%w: deployer is required", ErrValidation)
	}

	now := s.now()
	deployment := &models.Deployment{
		ID:              uuid.NewString(),
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

	if err := s.db.CreateDeployment(ctx, nil, deployment); err != nil {
		return nil, StoreError(err, "deployment version "+req.VersionID)
	}

	s.logger.Info("deployment created",
		zap.String("deployment_id", deployment.ID),
		zap.String("version_id", deployment.VersionID),
		zap.String("environment", string(deployment.Environment)),
		zap.String("strategy", string(deployment.Strategy)),
	)
	return deployment, nil
}

// GetDeployment retrieves a deployment by id
func (s *DeploymentManager) GetDeployment(ctx context.Context, id string) (*models.Deployment, error) {
	deployment, err := s.db.GetDeployment(ctx, nil, id)
	if err != nil {
		return nil, StoreError(err, "deployment "+id)
	}
	return deployment, nil
}

// ListDeployments retrieves deployments matching filter, newest first
func (s *DeploymentManager) ListDeployments(ctx context.Context, filter *models.DeploymentFilter, limit, offset int) ([]*models.Deployment, error) {
	deployments, err := s.db.ListDeployments(ctx, nil, filter, limit, offset)
	if err != nil {
		return nil, StoreError(err, "deployments")
	}
	return deployments, nil
}

// UpdateStatus overwrites the status of a deployment. Transitions are not
// checked here; models.CanTransition describes the legal edges.
func (s *DeploymentManager) UpdateStatus(ctx context.Context, id string, status models.DeploymentStatus) (*models.Deployment, error) {
	if !status.IsValid() {
		return nil, fmt.Errorf("%w: unknown status %q", ErrValidation, status)
	}

	deployment, err := s.db.UpdateDeploymentStatus(ctx, nil, id, status)
	if err != nil {
		return nil, StoreError(err, "deployment "+id)
	}

	s.logger.Info("deployment status updated",
		zap.String("deployment_id", id),
		zap.String("status", string(status)),
	)
	return deployment, nil
}

// ListActiveInEnvironment retrieves active deployments of env, newest first, excluding excludeID
func (s *DeploymentManager) ListActiveInEnvironment(ctx context.Context, env models.Environment, excludeID string, limit int) ([]*models.Deployment, error) {
	status := models.DeploymentStatusActive
	filter := &models.DeploymentFilter{
		Environment: &env,
		Status:      &status,
	}
	if excludeID != "" {
		filter.ExcludeID = &excludeID
	}
	return s.ListDeployments(ctx, filter, limit, 0)
}

// GetLastKnownGood returns the most recent active deployment in the same
// environment that was deployed no later than deploymentID.
func (s *DeploymentManager) GetLastKnownGood(ctx context.Context, deploymentID string) (*models.Deployment, error) {
	current, err := s.GetDeployment(ctx, deploymentID)
	if err != nil {
		return nil, err
	}

	status := models.DeploymentStatusActive
	deployedUntil := current.DeployedAt
	filter := &models.DeploymentFilter{
		Environment:   &current.Environment,
		Status:        &status,
		DeployedUntil: &deployedUntil,
		ExcludeID:     &current.ID,
	}
	candidates, err := s.ListDeployments(ctx, filter, 1, 0)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return nil, fmt.Errorf("%w: no known-good deployment before %s in %s", ErrNotFound, deploymentID, current.Environment)
	}
	return candidates[0], nil
}

// RecordTrafficSplit appends a split; prior splits are left open
func (s *DeploymentManager) RecordTrafficSplit(ctx context.Context, deploymentID string, percentage float64) (*models.TrafficSplit, error) {
	if percentage < 0 || percentage > 100 {
		return nil, fmt.Errorf("%w: percentage %.2f outside [0,100]", ErrValidation, percentage)
	}

	split := &models.TrafficSplit{
		ID:           uuid.NewString(),
		DeploymentID: deploymentID,
		Percentage:   percentage,
		StartedAt:    s.now(),
	}

	err := s.db.InTransaction(ctx, func(ctx context.Context, tx pgx.Tx) error {
		if err := s.db.CreateTrafficSplit(ctx, tx, split); err != nil {
			return err
		}
		return s.db.UpdateDeploymentTraffic(ctx, tx, deploymentID, &percentage)
	})
	if err != nil {
		return nil, StoreError(err, "traffic split for deployment "+deploymentID)
	}

	s.logger.Debug("traffic split recorded",
		zap.String("deployment_id", deploymentID),
		zap.Float64("percentage", percentage),
	)
	return split, nil
}

// CompleteTrafficSplit stamps the completion time of a split
func (s *DeploymentManager) CompleteTrafficSplit(ctx context.Context, id string) (*models.TrafficSplit, error) {
	split, err := s.db.CompleteTrafficSplit(ctx, nil, id, s.now())
	if err != nil {
		return nil, StoreError(err, "traffic split "+id)
	}
	return split, nil
}

// GetTrafficSplits retrieves the splits of a deployment newest first
func (s *DeploymentManager) GetTrafficSplits(ctx context.Context, deploymentID string) ([]*models.TrafficSplit, error) {
	splits, err := s.db.ListTrafficSplits(ctx, nil, deploymentID)
	if err != nil {
		return nil, StoreError(err, "traffic splits")
	}
	return splits, nil
}

// GetCurrentTrafficSplit retrieves the newest split without a completion time
func (s *DeploymentManager) GetCurrentTrafficSplit(ctx context.Context, deploymentID string) (*models.TrafficSplit, error) {
	splits, err := s.GetTrafficSplits(ctx, deploymentID)
	if err != nil {
		return nil, err
	}
	for _, split := range splits {
		if split.IsCurrent() {
			return split, nil
		}
	}
	return nil, fmt.Errorf("%w: no current traffic split for deployment %s", ErrNotFound, deploymentID)
}

// RecordMetrics appends a metrics sample, defaulting its timestamp to now
func (s *DeploymentManager) RecordMetrics(ctx context.Context, sample *models.DeploymentMetrics) (*models.DeploymentMetrics, error) {
	if sample == nil {
		return nil, fmt.Errorf("%w: sample is required", ErrValidation)
	}
	if err := sample.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrValidation, err)
	}

	recorded := *sample
	recorded.ID = uuid.NewString()
	if recorded.Timestamp.IsZero() {
		recorded.Timestamp = s.now()
	}

	if err := s.db.CreateMetrics(ctx, nil, &recorded); err != nil {
		return nil, StoreError(err, "metrics for deployment "+sample.DeploymentID)
	}
	return &recorded, nil
}

// QueryMetrics retrieves samples in [from, to] oldest first. A non-empty
// granularity averages every field into fixed buckets and sums request counts.
func (s *DeploymentManager) QueryMetrics(ctx context.Context, deploymentID string, from, to time.Time, granularity models.Granularity) ([]*models.DeploymentMetrics, error) {
	if to.Before(from) {
		return nil, fmt.Errorf("%w: time range end precedes start", ErrValidation)
	}
	width := granularity.Duration()
	if granularity != "" && width == 0 {
		return nil, fmt.Errorf("%w: unknown granularity %q", ErrValidation, granularity)
	}

	samples, err := s.db.ListMetrics(ctx, nil, deploymentID, from, to)
	if err != nil {
		return nil, StoreError(err, "metrics")
	}
	if width == 0 {
		return samples, nil
	}
	return bucketMetrics(samples, width), nil
}

// RaiseAlert records a new alert. ID and TriggeredAt are assigned here.
func (s *DeploymentManager) RaiseAlert(ctx context.Context, alert *models.DeploymentAlert) (*models.DeploymentAlert, error) {
	if alert == nil || alert.DeploymentID == "" || alert.Type == "" {
		return nil, fmt.Errorf("%w: alert deployment and type are required", ErrValidation)
	}

	raised := *alert
	raised.ID = uuid.NewString()
	raised.TriggeredAt = s.now()
	raised.ResolvedAt = nil
	raised.Acknowledged = false
	if raised.Severity == "" {
		raised.Severity = models.AlertSeverityWarning
	}

	if err := s.db.CreateAlert(ctx, nil, &raised); err != nil {
		return nil, StoreError(err, "alert for deployment "+alert.DeploymentID)
	}

	s.logger.Warn("deployment alert raised",
		zap.String("deployment_id", raised.DeploymentID),
		zap.String("alert_type", string(raised.Type)),
		zap.String("severity", string(raised.Severity)),
		zap.Float64("threshold", raised.Threshold),
		zap.Float64("value", raised.Value),
	)
	return &raised, nil
}

// ListAlerts retrieves the alerts of a deployment newest first
func (s *DeploymentManager) ListAlerts(ctx context.Context, deploymentID string, acknowledged *bool) ([]*models.DeploymentAlert, error) {
	alerts, err := s.db.ListAlerts(ctx, nil, deploymentID, acknowledged)
	if err != nil {
		return nil, StoreError(err, "alerts")
	}
	return alerts, nil
}

// AcknowledgeAlert marks an alert as acknowledged
func (s *DeploymentManager) AcknowledgeAlert(ctx context.Context, id string) (*models.DeploymentAlert, error) {
	alert, err := s.db.AcknowledgeAlert(ctx, nil, id)
	if err != nil {
		return nil, StoreError(err, "alert "+id)
	}
	return alert, nil
}

// ResolveAlert stamps the resolution time of an alert
func (s *DeploymentManager) ResolveAlert(ctx context.Context, id string) (*models.DeploymentAlert, error) {
	alert, err := s.db.ResolveAlert(ctx, nil, id, s.now())
	if err != nil {
		return nil, StoreError(err, "alert "+id)
	}
	return alert, nil
}

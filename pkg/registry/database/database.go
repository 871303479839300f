package database

import (
	"context"
	"errors"
	"time"

	"github.com/agentregistry-dev/modelregistry/pkg/models"
	"github.com/jackc/pgx/v5"
)

// Common database errors
var (
	ErrNotFound      = errors.New("record not found")
	ErrAlreadyExists = errors.New("record already exists")
	ErrForeignKey    = errors.New("referenced record does not exist")
	ErrInvalidInput  = errors.New("invalid input")
	ErrDatabase      = errors.New("database error")
)

// RollbackUpdate carries the mutable fields of a rollback operation
type RollbackUpdate struct {
	Status       models.RollbackStatus
	ErrorMessage *string
	CompletedAt  *time.Time
}

// Database defines the interface for deployment store operations.
// Every write is a single-row statement keyed by primary id; tx may be nil.
type Database interface {
	// Versions API
	// CreateModelVersion registers a version in the version catalog
	CreateModelVersion(ctx context.Context, tx pgx.Tx, version *models.ModelVersion) error
	// GetModelVersion retrieves a version by id
	GetModelVersion(ctx context.Context, tx pgx.Tx, id string) (*models.ModelVersion, error)

	// Deployments API
	// CreateDeployment inserts a new deployment record
	CreateDeployment(ctx context.Context, tx pgx.Tx, deployment *models.Deployment) error
	// GetDeployment retrieves a deployment by id
	GetDeployment(ctx context.Context, tx pgx.Tx, id string) (*models.Deployment, error)
	// ListDeployments retrieves deployments newest first
	ListDeployments(ctx context.Context, tx pgx.Tx, filter *models.DeploymentFilter, limit, offset int) ([]*models.Deployment, error)
	// UpdateDeploymentStatus overwrites the status of a deployment
	UpdateDeploymentStatus(ctx context.Context, tx pgx.Tx, id string, status models.DeploymentStatus) (*models.Deployment, error)
	// UpdateDeploymentTraffic stamps the current traffic percentage of a deployment
	UpdateDeploymentTraffic(ctx context.Context, tx pgx.Tx, id string, percentage *float64) error

	// Traffic splits API
	// CreateTrafficSplit appends a traffic split
	CreateTrafficSplit(ctx context.Context, tx pgx.Tx, split *models.TrafficSplit) error
	// CompleteTrafficSplit stamps the completion time of a split
	CompleteTrafficSplit(ctx context.Context, tx pgx.Tx, id string, completedAt time.Time) (*models.TrafficSplit, error)
	// ListTrafficSplits retrieves the splits of a deployment newest first
	ListTrafficSplits(ctx context.Context, tx pgx.Tx, deploymentID string) ([]*models.TrafficSplit, error)

	// Rollbacks API
	// CreateRollback inserts a rollback operation
	CreateRollback(ctx context.Context, tx pgx.Tx, op *models.RollbackOperation) error
	// GetRollback retrieves a rollback operation by id
	GetRollback(ctx context.Context, tx pgx.Tx, id string) (*models.RollbackOperation, error)
	// ListRollbacks retrieves the rollback operations of a deployment newest first
	ListRollbacks(ctx context.Context, tx pgx.Tx, deploymentID string) ([]*models.RollbackOperation, error)
	// ListActiveRollbacks retrieves every pending or in-progress rollback operation
	ListActiveRollbacks(ctx context.Context, tx pgx.Tx) ([]*models.RollbackOperation, error)
	// UpdateRollback overwrites status, error message and completion time of a rollback
	UpdateRollback(ctx context.Context, tx pgx.Tx, id string, update RollbackUpdate) (*models.RollbackOperation, error)

	// Metrics API
	// CreateMetrics appends a metrics sample
	CreateMetrics(ctx context.Context, tx pgx.Tx, sample *models.DeploymentMetrics) error
	// ListMetrics retrieves samples in [from, to] oldest first
	ListMetrics(ctx context.Context, tx pgx.Tx, deploymentID string, from, to time.Time) ([]*models.DeploymentMetrics, error)

	// Alerts API
	// CreateAlert inserts an alert
	CreateAlert(ctx context.Context, tx pgx.Tx, alert *models.DeploymentAlert) error
	// ListAlerts retrieves the alerts of a deployment newest first
	ListAlerts(ctx context.Context, tx pgx.Tx, deploymentID string, acknowledged *bool) ([]*models.DeploymentAlert, error)
	// AcknowledgeAlert marks an alert as acknowledged
	AcknowledgeAlert(ctx context.Context, tx pgx.Tx, id string) (*models.DeploymentAlert, error)
	// ResolveAlert stamps the resolution time of an alert
	ResolveAlert(ctx context.Context, tx pgx.Tx, id string, resolvedAt time.Time) (*models.DeploymentAlert, error)

	// InTransaction executes a function within a database transaction
	InTransaction(ctx context.Context, fn func(ctx context.Context, tx pgx.Tx) error) error
	// Close closes the database connection
	Close() error
}

// InTransactionT is a generic helper that wraps InTransaction for functions returning a value
func InTransactionT[T any](ctx context.Context, db Database, fn func(ctx context.Context, tx pgx.Tx) (T, error)) (T, error) {
	var result T
	var fnErr error

	err := db.InTransaction(ctx, func(txCtx context.Context, tx pgx.Tx) error {
		result, fnErr = fn(txCtx, tx)
		return fnErr
	})

	if err != nil {
		var zero T
		return zero, err
	}

	return result, nil
}

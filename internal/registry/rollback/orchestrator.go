// Package rollback executes traffic-shifted rollbacks of a deployment to a
// known-good version.
package rollback

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/agentregistry-dev/modelregistry/internal/registry/config"
	"github.com/agentregistry-dev/modelregistry/internal/registry/jobs"
	"github.com/agentregistry-dev/modelregistry/internal/registry/service"
	"github.com/agentregistry-dev/modelregistry/internal/registry/telemetry"
	"github.com/agentregistry-dev/modelregistry/internal/runtime"
	"github.com/agentregistry-dev/modelregistry/pkg/models"
	"github.com/agentregistry-dev/modelregistry/pkg/registry/database"
)

const (
	// MaxOneClickOptions bounds the candidates returned by GetOneClickRollbackOptions
	MaxOneClickOptions = 5

	// CancelledMessage is recorded on operations cancelled by a user
	CancelledMessage = "Rollback cancelled by user"
	// InterruptedMessage is recorded on operations left running by a previous process
	InterruptedMessage = "Rollback interrupted by restart"

	finalizeTimeout = 10 * time.Second
)

// ErrVerificationFailed is the failure recorded when the restored version never verifies
var ErrVerificationFailed = errors.New("Rollback verification failed") //nolint:staticcheck // recorded verbatim as the operation's error message

var errShutdown = errors.New("Rollback interrupted by shutdown") //nolint:staticcheck // recorded verbatim as the operation's error message

// Watcher is the monitor surface the orchestrator drives around a rollback.
type Watcher interface {
	ResumeMonitoring(ctx context.Context, deploymentID string) error
	StopMonitoring(deploymentID string)
}

// Orchestrator runs rollback operations as detached tasks, at most one per deployment.
type Orchestrator struct {
	deployments service.DeploymentService
	versions    runtime.VersionRegistry
	db          database.Database
	substrate   runtime.Substrate
	jobs        *jobs.Manager
	cfg         config.RollbackConfig
	metrics     *telemetry.Metrics
	logger      *zap.Logger

	watcherMu sync.RWMutex
	watcher   Watcher

	// opMu serialises terminal writes to rollback operations made by this process
	opMu sync.Mutex

	lifetime context.Context
	stop     context.CancelFunc
	wg       sync.WaitGroup

	now func() time.Time
}

// Option customises an Orchestrator
type Option func(*Orchestrator)

// WithMetrics records rollback instruments on m
func WithMetrics(m *telemetry.Metrics) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

// WithLogger sets the orchestrator logger
func WithLogger(l *zap.Logger) Option {
	return func(o *Orchestrator) { o.logger = l }
}

// WithVersionRegistry resolves target versions from r instead of the deployment service
func WithVersionRegistry(r runtime.VersionRegistry) Option {
	return func(o *Orchestrator) { o.versions = r }
}

// NewOrchestrator creates an orchestrator. Rollback operations are persisted in db.
func NewOrchestrator(
	deployments service.DeploymentService,
	db database.Database,
	substrate runtime.Substrate,
	jobManager *jobs.Manager,
	cfg config.RollbackConfig,
	opts ...Option,
) *Orchestrator {
	lifetime, stop := context.WithCancel(context.Background())
	o := &Orchestrator{
		deployments: deployments,
		versions:    deployments,
		db:          db,
		substrate:   substrate,
		jobs:        jobManager,
		cfg:         cfg,
		logger:      zap.NewNop(),
		lifetime:    lifetime,
		stop:        stop,
		now:         func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(o)
	}
	o.logger = o.logger.Named("rollback")
	if o.cfg.HealthCheckRetries < 1 {
		o.cfg.HealthCheckRetries = 1
	}
	return o
}

// SetWatcher registers the monitor stopped and resumed around each rollback
func (o *Orchestrator) SetWatcher(w Watcher) {
	o.watcherMu.Lock()
	defer o.watcherMu.Unlock()
	o.watcher = w
}

func (o *Orchestrator) currentWatcher() Watcher {
	o.watcherMu.RLock()
	defer o.watcherMu.RUnlock()
	return o.watcher
}

// Config returns the rollback budgets in effect
func (o *Orchestrator) Config() config.RollbackConfig {
	return o.cfg
}

// ExecuteRollback validates the request, persists a pending operation and
// launches the rollback in the background. The returned operation is always
// pending; poll GetRollback for the outcome.
func (o *Orchestrator) ExecuteRollback(ctx context.Context, deploymentID, targetVersionID, reason, initiator string) (*models.RollbackOperation, error) {
	deployment, err := o.deployments.GetDeployment(ctx, deploymentID)
	if err != nil {
		return nil, err
	}

	switch deployment.Status {
	case models.DeploymentStatusRollingBack:
		return nil, fmt.Errorf("%w: deployment %s is already rolling back", service.ErrConflict, deploymentID)
	case models.DeploymentStatusActive, models.DeploymentStatusFailed:
	default:
		return nil, fmt.Errorf("%w: deployment %s is %s; rollback requires active or failed",
			service.ErrInvalidState, deploymentID, deployment.Status)
	}

	version, err := o.versions.GetVersion(ctx, targetVersionID)
	if err != nil {
		return nil, err
	}

	if err := o.ensureNoActiveRollback(ctx, deploymentID); err != nil {
		return nil, err
	}

	now := o.now()
	op := &models.RollbackOperation{
		ID:              uuid.NewString(),
		DeploymentID:    deploymentID,
		TargetVersionID: targetVersionID,
		Reason:          reason,
		Status:          models.RollbackStatusPending,
		InitiatedBy:     initiator,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := o.db.CreateRollback(ctx, nil, op); err != nil {
		return nil, service.StoreError(err, "rollback for deployment "+deploymentID)
	}

	job, jobCtx, err := o.jobs.CreateJob(o.lifetime, jobs.RollbackJobType, deploymentID, jobs.JobID(op.ID))
	if err != nil {
		// Lost a race with another rollback of this deployment
		o.finalizeOperation(ctx, op.ID, fmt.Sprintf("Rollback rejected: %v", err))
		return nil, fmt.Errorf("%w: rollback already running for deployment %s", service.ErrConflict, deploymentID)
	}

	o.metrics.RecordRollbackStarted(ctx, initiator)
	o.logger.Info("rollback accepted",
		zap.String("rollback_id", op.ID),
		zap.String("deployment_id", deploymentID),
		zap.String("target_version_id", targetVersionID),
		zap.String("initiated_by", initiator),
		zap.String("reason", reason),
	)

	accepted := *op
	o.wg.Add(1)
	go o.run(jobCtx, job.ID, op, deployment, version)

	return &accepted, nil
}

func (o *Orchestrator) ensureNoActiveRollback(ctx context.Context, deploymentID string) error {
	if o.jobs.GetRunningJob(jobs.RollbackJobType, deploymentID) != nil {
		return fmt.Errorf("%w: rollback already running for deployment %s", service.ErrConflict, deploymentID)
	}
	ops, err := o.db.ListRollbacks(ctx, nil, deploymentID)
	if err != nil {
		return service.StoreError(err, "rollbacks")
	}
	for _, op := range ops {
		if !op.Status.IsTerminal() {
			return fmt.Errorf("%w: rollback %s is %s for deployment %s",
				service.ErrConflict, op.ID, op.Status, deploymentID)
		}
	}
	return nil
}

// run is the detached task. Every failure, panic included, ends with the
// operation failed, and with the deployment failed once the task has moved
// it to rolling_back.
func (o *Orchestrator) run(ctx context.Context, jobID jobs.JobID, op *models.RollbackOperation, deployment *models.Deployment, version *models.ModelVersion) {
	defer o.wg.Done()

	logger := o.logger.With(
		zap.String("rollback_id", op.ID),
		zap.String("deployment_id", deployment.ID),
	)

	var (
		err         error
		rollingBack bool
	)
	func() {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("rollback panicked: %v", r)
			}
		}()
		err = o.execute(ctx, jobID, op, deployment, version, &rollingBack, logger)
	}()
	if err == nil {
		return
	}
	if o.lifetime.Err() != nil {
		err = errShutdown
	}

	o.fail(ctx, jobID, op, deployment.ID, rollingBack, err, logger)
}

func (o *Orchestrator) execute(ctx context.Context, jobID jobs.JobID, op *models.RollbackOperation, deployment *models.Deployment, version *models.ModelVersion, rollingBack *bool, logger *zap.Logger) error {
	if err := o.jobs.StartJob(jobID); err != nil {
		return err
	}

	// a. mark the operation and the deployment as in flight
	if err := o.markInProgress(ctx, op.ID); err != nil {
		return err
	}
	if _, err := o.deployments.UpdateStatus(ctx, deployment.ID, models.DeploymentStatusRollingBack); err != nil {
		return err
	}
	*rollingBack = true

	// b. stop watching the bad version
	if w := o.currentWatcher(); w != nil {
		w.StopMonitoring(deployment.ID)
	}

	// c. drain traffic off the bad version
	if deployment.Strategy.ShiftsTraffic() {
		if err := o.shiftTraffic(ctx, deployment.ID, 0); err != nil {
			return err
		}
	}

	// d. redeploy the target version
	if err := ctx.Err(); err != nil {
		return err
	}
	resolved := runtime.ResolveRollbackConfig(deployment, version)
	if err := o.substrate.Workload.DeployVersion(ctx, deployment.ID, version.ID, resolved); err != nil {
		return fmt.Errorf("%w: deploy version %s: %w", service.ErrInfrastructure, version.ID, err)
	}
	logger.Info("target version redeployed", zap.String("version_id", version.ID))

	// e. restore traffic onto the restored version
	if deployment.Strategy.ShiftsTraffic() {
		if err := o.shiftTraffic(ctx, deployment.ID, 100); err != nil {
			return err
		}
	}

	// f. verify
	if !o.VerifyRollbackSuccess(ctx, deployment.ID, version.ID) {
		if err := ctx.Err(); err != nil {
			return err
		}
		return ErrVerificationFailed
	}

	// g. finish
	return o.complete(ctx, jobID, op, deployment.ID, logger)
}

func (o *Orchestrator) markInProgress(ctx context.Context, id string) error {
	o.opMu.Lock()
	defer o.opMu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	current, err := o.db.GetRollback(ctx, nil, id)
	if err != nil {
		return service.StoreError(err, "rollback "+id)
	}
	if current.Status != models.RollbackStatusPending {
		return fmt.Errorf("%w: rollback %s is %s", service.ErrConflict, id, current.Status)
	}
	if _, err := o.db.UpdateRollback(ctx, nil, id, database.RollbackUpdate{Status: models.RollbackStatusInProgress}); err != nil {
		return service.StoreError(err, "rollback "+id)
	}
	return nil
}

func (o *Orchestrator) shiftTraffic(ctx context.Context, deploymentID string, percentage float64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := o.substrate.Traffic.ShiftTraffic(ctx, deploymentID, percentage); err != nil {
		return fmt.Errorf("%w: shift traffic to %.0f%%: %w", service.ErrInfrastructure, percentage, err)
	}
	if _, err := o.deployments.RecordTrafficSplit(ctx, deploymentID, percentage); err != nil {
		return err
	}
	return nil
}

func (o *Orchestrator) complete(ctx context.Context, jobID jobs.JobID, op *models.RollbackOperation, deploymentID string, logger *zap.Logger) error {
	o.opMu.Lock()
	current, err := o.db.GetRollback(ctx, nil, op.ID)
	if err != nil {
		o.opMu.Unlock()
		return service.StoreError(err, "rollback "+op.ID)
	}
	if current.Status.IsTerminal() {
		o.opMu.Unlock()
		return fmt.Errorf("%w: rollback %s was %s before it finished", service.ErrConflict, op.ID, current.Status)
	}

	if _, err := o.deployments.UpdateStatus(ctx, deploymentID, models.DeploymentStatusRolledBack); err != nil {
		o.opMu.Unlock()
		return err
	}
	completedAt := o.now()
	_, err = o.db.UpdateRollback(ctx, nil, op.ID, database.RollbackUpdate{
		Status:      models.RollbackStatusCompleted,
		CompletedAt: &completedAt,
	})
	o.opMu.Unlock()
	if err != nil {
		return service.StoreError(err, "rollback "+op.ID)
	}

	_ = o.jobs.CompleteJob(jobID)
	o.metrics.RecordRollbackFinished(ctx, string(models.RollbackStatusCompleted))
	logger.Info("rollback completed")

	if w := o.currentWatcher(); w != nil {
		if err := w.ResumeMonitoring(o.lifetime, deploymentID); err != nil {
			logger.Warn("failed to resume monitoring after rollback", zap.Error(err))
		}
	}
	return nil
}

// fail records err on the operation, unless it already reached a terminal
// status. A deployment this task moved to rolling_back is marked failed and
// no longer watched; one it never touched is left alone.
func (o *Orchestrator) fail(ctx context.Context, jobID jobs.JobID, op *models.RollbackOperation, deploymentID string, rollingBack bool, cause error, logger *zap.Logger) {
	finalCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), finalizeTimeout)
	defer cancel()

	msg := cause.Error()
	o.finalizeOperation(finalCtx, op.ID, msg)

	if rollingBack {
		if _, err := o.deployments.UpdateStatus(finalCtx, deploymentID, models.DeploymentStatusFailed); err != nil {
			logger.Error("failed to mark deployment failed", zap.Error(err))
		}
		if w := o.currentWatcher(); w != nil {
			w.StopMonitoring(deploymentID)
		}
	}

	_ = o.jobs.FailJob(jobID, msg)
	o.metrics.RecordRollbackFinished(finalCtx, string(models.RollbackStatusFailed))
	logger.Error("rollback failed", zap.Error(cause))
}

// finalizeOperation marks a non-terminal operation failed with msg
func (o *Orchestrator) finalizeOperation(ctx context.Context, id, msg string) bool {
	o.opMu.Lock()
	defer o.opMu.Unlock()

	current, err := o.db.GetRollback(ctx, nil, id)
	if err != nil {
		o.logger.Error("failed to load rollback", zap.String("rollback_id", id), zap.Error(err))
		return false
	}
	if current.Status.IsTerminal() {
		return false
	}

	completedAt := o.now()
	if _, err := o.db.UpdateRollback(ctx, nil, id, database.RollbackUpdate{
		Status:       models.RollbackStatusFailed,
		ErrorMessage: &msg,
		CompletedAt:  &completedAt,
	}); err != nil {
		o.logger.Error("failed to mark rollback failed", zap.String("rollback_id", id), zap.Error(err))
		return false
	}
	return true
}

// CancelRollback marks a pending or in-progress operation failed and
// cancels its task when it runs in this process. It returns false for
// terminal or unknown operations.
func (o *Orchestrator) CancelRollback(ctx context.Context, id string) (bool, error) {
	o.opMu.Lock()
	defer o.opMu.Unlock()

	current, err := o.db.GetRollback(ctx, nil, id)
	if errors.Is(err, database.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, service.StoreError(err, "rollback "+id)
	}
	if current.Status.IsTerminal() {
		return false, nil
	}

	msg := CancelledMessage
	completedAt := o.now()
	if _, err := o.db.UpdateRollback(ctx, nil, id, database.RollbackUpdate{
		Status:       models.RollbackStatusFailed,
		ErrorMessage: &msg,
		CompletedAt:  &completedAt,
	}); err != nil {
		return false, service.StoreError(err, "rollback "+id)
	}

	interrupted := o.jobs.CancelJob(jobs.JobID(id))
	o.logger.Info("rollback cancelled",
		zap.String("rollback_id", id),
		zap.String("deployment_id", current.DeploymentID),
		zap.Bool("task_interrupted", interrupted),
	)
	return true, nil
}

// GetRollback retrieves a rollback operation by id
func (o *Orchestrator) GetRollback(ctx context.Context, id string) (*models.RollbackOperation, error) {
	op, err := o.db.GetRollback(ctx, nil, id)
	if err != nil {
		return nil, service.StoreError(err, "rollback "+id)
	}
	return op, nil
}

// ListRollbacks retrieves the rollback operations of a deployment newest first
func (o *Orchestrator) ListRollbacks(ctx context.Context, deploymentID string) ([]*models.RollbackOperation, error) {
	if _, err := o.deployments.GetDeployment(ctx, deploymentID); err != nil {
		return nil, err
	}
	ops, err := o.db.ListRollbacks(ctx, nil, deploymentID)
	if err != nil {
		return nil, service.StoreError(err, "rollbacks")
	}
	return ops, nil
}

// GetOneClickRollbackOptions returns up to five other active deployments in
// the same environment, newest first.
func (o *Orchestrator) GetOneClickRollbackOptions(ctx context.Context, deploymentID string) ([]*models.Deployment, error) {
	deployment, err := o.deployments.GetDeployment(ctx, deploymentID)
	if err != nil {
		return nil, err
	}
	return o.deployments.ListActiveInEnvironment(ctx, deployment.Environment, deployment.ID, MaxOneClickOptions)
}

// RecoverInterrupted fails operations left pending or in progress by a
// previous process, together with their deployments. It returns how many
// operations were recovered.
func (o *Orchestrator) RecoverInterrupted(ctx context.Context) (int, error) {
	ops, err := o.db.ListActiveRollbacks(ctx, nil)
	if err != nil {
		return 0, service.StoreError(err, "active rollbacks")
	}

	recovered := 0
	for _, op := range ops {
		if o.jobs.GetRunningJob(jobs.RollbackJobType, op.DeploymentID) != nil {
			continue
		}
		if !o.finalizeOperation(ctx, op.ID, InterruptedMessage) {
			continue
		}
		if _, err := o.deployments.UpdateStatus(ctx, op.DeploymentID, models.DeploymentStatusFailed); err != nil {
			return recovered, err
		}
		recovered++
		o.logger.Warn("interrupted rollback marked failed",
			zap.String("rollback_id", op.ID),
			zap.String("deployment_id", op.DeploymentID),
		)
	}
	return recovered, nil
}

// Shutdown cancels running rollback tasks and waits for them to record
// their outcome, or for ctx to expire.
func (o *Orchestrator) Shutdown(ctx context.Context) error {
	o.stop()

	done := make(chan struct{})
	go func() {
		o.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for rollback tasks: %w", ctx.Err())
	}
}

// Package monitor watches live deployments against their SLO targets and
// drift thresholds, raises alerts and triggers automatic rollbacks when
// breaches persist.
package monitor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/agentregistry-dev/modelregistry/internal/registry/config"
	"github.com/agentregistry-dev/modelregistry/internal/registry/service"
	"github.com/agentregistry-dev/modelregistry/internal/registry/telemetry"
	"github.com/agentregistry-dev/modelregistry/pkg/models"
)

// SystemInitiator is recorded as the initiator of automatic rollbacks
const SystemInitiator = "system:slo-monitor"

// Rollbacker launches rollbacks. It is satisfied by *rollback.Orchestrator.
type Rollbacker interface {
	ExecuteRollback(ctx context.Context, deploymentID, targetVersionID, reason, initiator string) (*models.RollbackOperation, error)
}

// watch is one running pair of periodic checks
type watch struct {
	cancel    context.CancelFunc
	startedAt time.Time
}

// breachState is the auto-rollback bookkeeping of one deployment
type breachState struct {
	count           int
	windowStart     time.Time
	suppressedUntil time.Time
}

// cursor remembers the newest sample each check has evaluated
type cursor struct {
	slo   time.Time
	drift time.Time
}

// Monitor owns the registry of per-deployment watches.
type Monitor struct {
	deployments service.DeploymentService
	rollbacker  Rollbacker
	cfg         config.MonitorConfig
	metrics     *telemetry.Metrics
	logger      *zap.Logger

	mu       sync.Mutex
	watches  map[string]*watch
	breaches map[string]*breachState
	cursors  map[string]*cursor

	lifetime context.Context
	stop     context.CancelFunc
	wg       sync.WaitGroup

	now func() time.Time
}

// Option customises a Monitor
type Option func(*Monitor)

// WithMetrics records alert and watch instruments on m
func WithMetrics(m *telemetry.Metrics) Option {
	return func(mon *Monitor) { mon.metrics = m }
}

// WithLogger sets the monitor logger
func WithLogger(l *zap.Logger) Option {
	return func(mon *Monitor) { mon.logger = l }
}

// New creates a monitor that raises alerts through deployments and
// triggers rollbacks through rollbacker.
func New(deployments service.DeploymentService, rollbacker Rollbacker, cfg config.MonitorConfig, opts ...Option) *Monitor {
	lifetime, stop := context.WithCancel(context.Background())
	m := &Monitor{
		deployments: deployments,
		rollbacker:  rollbacker,
		cfg:         cfg,
		logger:      zap.NewNop(),
		watches:     make(map[string]*watch),
		breaches:    make(map[string]*breachState),
		cursors:     make(map[string]*cursor),
		lifetime:    lifetime,
		stop:        stop,
		now:         func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = m.logger.Named("monitor")

	defaults := config.DefaultMonitorConfig()
	if m.cfg.SLOCheckInterval <= 0 {
		m.cfg.SLOCheckInterval = defaults.SLOCheckInterval
	}
	if m.cfg.DriftCheckInterval <= 0 {
		m.cfg.DriftCheckInterval = defaults.DriftCheckInterval
	}
	return m
}

// StartMonitoring starts the periodic checks of an active deployment,
// replacing any watch already running for it.
func (m *Monitor) StartMonitoring(ctx context.Context, deploymentID string) error {
	return m.start(ctx, deploymentID, models.DeploymentStatusActive)
}

// ResumeMonitoring restarts the checks of a deployment that was just rolled
// back. Breach history and evaluated samples of the replaced version are
// discarded.
func (m *Monitor) ResumeMonitoring(ctx context.Context, deploymentID string) error {
	m.mu.Lock()
	delete(m.breaches, deploymentID)
	now := m.now()
	m.cursors[deploymentID] = &cursor{slo: now, drift: now}
	m.mu.Unlock()

	return m.start(ctx, deploymentID, models.DeploymentStatusActive, models.DeploymentStatusRolledBack)
}

func (m *Monitor) start(ctx context.Context, deploymentID string, allowed ...models.DeploymentStatus) error {
	deployment, err := m.deployments.GetDeployment(ctx, deploymentID)
	if err != nil {
		return fmt.Errorf("%w: cannot monitor deployment %s: %w", service.ErrInvalidState, deploymentID, err)
	}
	if !statusIn(deployment.Status, allowed) {
		return fmt.Errorf("%w: cannot monitor deployment %s in status %s", service.ErrInvalidState, deploymentID, deployment.Status)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.lifetime.Err(); err != nil {
		return fmt.Errorf("monitor is shut down: %w", err)
	}

	if existing, ok := m.watches[deploymentID]; ok {
		existing.cancel()
		m.metrics.WatchStopped(ctx)
	}

	watchCtx, cancel := context.WithCancel(m.lifetime)
	w := &watch{cancel: cancel, startedAt: m.now()}
	m.watches[deploymentID] = w
	m.metrics.WatchStarted(ctx)

	m.wg.Add(2)
	go m.loop(watchCtx, deploymentID, m.cfg.SLOCheckInterval, m.CheckSLOs)
	go m.loop(watchCtx, deploymentID, m.cfg.DriftCheckInterval, m.CheckDrift)

	m.logger.Info("monitoring started",
		zap.String("deployment_id", deploymentID),
		zap.Duration("slo_interval", m.cfg.SLOCheckInterval),
		zap.Duration("drift_interval", m.cfg.DriftCheckInterval),
	)
	return nil
}

func statusIn(s models.DeploymentStatus, allowed []models.DeploymentStatus) bool {
	for _, a := range allowed {
		if s == a {
			return true
		}
	}
	return false
}

func (m *Monitor) loop(ctx context.Context, deploymentID string, interval time.Duration, check func(context.Context, string)) {
	defer m.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			check(ctx, deploymentID)
		}
	}
}

// StopMonitoring cancels the watch of a deployment and drops its breach
// history and sample cursors. It is a no-op when nothing is tracked and never
// blocks on the check goroutines.
func (m *Monitor) StopMonitoring(deploymentID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.breaches, deploymentID)
	delete(m.cursors, deploymentID)

	w, ok := m.watches[deploymentID]
	if !ok {
		return
	}
	w.cancel()
	delete(m.watches, deploymentID)
	m.metrics.WatchStopped(context.Background())

	m.logger.Info("monitoring stopped", zap.String("deployment_id", deploymentID))
}

// IsMonitoring reports whether a watch is running for the deployment
func (m *Monitor) IsMonitoring(deploymentID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.watches[deploymentID]
	return ok
}

// ActiveWatches returns the ids of the watched deployments
func (m *Monitor) ActiveWatches() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, 0, len(m.watches))
	for id := range m.watches {
		ids = append(ids, id)
	}
	return ids
}

// TriggerRollback rolls a deployment back to the version of the most recent
// prior active deployment in its environment. Errors are returned to the caller.
func (m *Monitor) TriggerRollback(ctx context.Context, deploymentID, reason, initiator string) (*models.RollbackOperation, error) {
	if _, err := m.deployments.GetDeployment(ctx, deploymentID); err != nil {
		return nil, err
	}

	lastKnownGood, err := m.deployments.GetLastKnownGood(ctx, deploymentID)
	if err != nil {
		return nil, err
	}

	op, err := m.rollbacker.ExecuteRollback(ctx, deploymentID, lastKnownGood.VersionID, reason, initiator)
	if err != nil {
		return nil, err
	}

	m.logger.Info("rollback triggered",
		zap.String("deployment_id", deploymentID),
		zap.String("rollback_id", op.ID),
		zap.String("target_version_id", lastKnownGood.VersionID),
		zap.String("initiated_by", initiator),
	)
	return op, nil
}

// Shutdown stops every watch and waits for the check goroutines to exit.
func (m *Monitor) Shutdown() {
	m.mu.Lock()
	m.stop()
	for id, w := range m.watches {
		w.cancel()
		delete(m.watches, id)
		m.metrics.WatchStopped(context.Background())
	}
	m.mu.Unlock()

	m.wg.Wait()
	m.logger.Info("monitor shut down")
}

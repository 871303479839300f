package runtime

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Operation names a substrate call that can be made to fail.
type Operation string

const (
	OpDeploy       Operation = "deploy"
	OpShiftTraffic Operation = "shift_traffic"
	OpCheckHealth  Operation = "check_health"
	OpCheckVersion Operation = "check_version"
)

// ErrInjected is wrapped by every failure injected with LocalRuntime.FailNext.
var ErrInjected = errors.New("injected substrate failure")

// Call records one substrate call made against a LocalRuntime.
type Call struct {
	Op           Operation
	DeploymentID string
	VersionID    string
	Percentage   float64
	Config       *ResolvedConfig
}

// LocalRuntime is an in-process substrate. Deploys take effect immediately,
// traffic weights are recorded, and replicas report healthy unless marked
// otherwise.
type LocalRuntime struct {
	mu        sync.Mutex
	logger    *zap.Logger
	versions  map[string]string
	traffic   map[string]float64
	unhealthy map[string]bool
	failures  map[Operation][]error
	calls     []Call

	// DeployDelay delays every deploy; the delay honours context cancellation.
	DeployDelay time.Duration
}

var (
	_ Workload    = (*LocalRuntime)(nil)
	_ Traffic     = (*LocalRuntime)(nil)
	_ HealthProbe = (*LocalRuntime)(nil)
)

// NewLocalRuntime creates an empty in-process substrate
func NewLocalRuntime(logger *zap.Logger) *LocalRuntime {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LocalRuntime{
		logger:    logger.Named("local-runtime"),
		versions:  make(map[string]string),
		traffic:   make(map[string]float64),
		unhealthy: make(map[string]bool),
		failures:  make(map[Operation][]error),
	}
}

// Substrate returns the runtime as a rollback substrate
func (r *LocalRuntime) Substrate() Substrate {
	return Substrate{Workload: r, Traffic: r, Health: r}
}

// FailNext makes the next n calls of op fail with an error wrapping ErrInjected.
func (r *LocalRuntime) FailNext(op Operation, n int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := 0; i < n; i++ {
		r.failures[op] = append(r.failures[op], fmt.Errorf("%w: %s", ErrInjected, op))
	}
}

// SetHealthy marks a deployment's replicas healthy or unhealthy
func (r *LocalRuntime) SetHealthy(deploymentID string, healthy bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if healthy {
		delete(r.unhealthy, deploymentID)
		return
	}
	r.unhealthy[deploymentID] = true
}

// SetDeployedVersion seeds the version a deployment is running
func (r *LocalRuntime) SetDeployedVersion(deploymentID, versionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.versions[deploymentID] = versionID
}

// DeployedVersion returns the version a deployment is running
func (r *LocalRuntime) DeployedVersion(deploymentID string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.versions[deploymentID]
	return v, ok
}

// TrafficWeight returns the last traffic percentage routed to a deployment
func (r *LocalRuntime) TrafficWeight(deploymentID string) (float64, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	w, ok := r.traffic[deploymentID]
	return w, ok
}

// Calls returns the calls made so far, oldest first
func (r *LocalRuntime) Calls() []Call {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Call, len(r.calls))
	copy(out, r.calls)
	return out
}

// record appends the call and pops an injected failure for op, if any.
// Caller must hold r.mu.
func (r *LocalRuntime) record(call Call) error {
	r.calls = append(r.calls, call)
	if queued := r.failures[call.Op]; len(queued) > 0 {
		r.failures[call.Op] = queued[1:]
		return queued[0]
	}
	return nil
}

func (r *LocalRuntime) DeployVersion(ctx context.Context, deploymentID, targetVersionID string, cfg ResolvedConfig) error {
	if r.DeployDelay > 0 {
		timer := time.NewTimer(r.DeployDelay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.record(Call{Op: OpDeploy, DeploymentID: deploymentID, VersionID: targetVersionID, Config: &cfg}); err != nil {
		return err
	}
	r.versions[deploymentID] = targetVersionID
	r.logger.Debug("version deployed",
		zap.String("deployment_id", deploymentID),
		zap.String("version_id", targetVersionID),
		zap.Int("replicas", cfg.Replicas),
		zap.Bool("rollback", cfg.Rollback),
	)
	return nil
}

func (r *LocalRuntime) ShiftTraffic(ctx context.Context, deploymentID string, percentage float64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if percentage < 0 || percentage > 100 {
		return fmt.Errorf("traffic percentage %.2f outside [0,100]", percentage)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.record(Call{Op: OpShiftTraffic, DeploymentID: deploymentID, Percentage: percentage}); err != nil {
		return err
	}
	r.traffic[deploymentID] = percentage
	r.logger.Debug("traffic shifted",
		zap.String("deployment_id", deploymentID),
		zap.Float64("percentage", percentage),
	)
	return nil
}

func (r *LocalRuntime) CheckHealth(ctx context.Context, deploymentID string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.record(Call{Op: OpCheckHealth, DeploymentID: deploymentID}); err != nil {
		return false, err
	}
	return !r.unhealthy[deploymentID], nil
}

func (r *LocalRuntime) CheckDeployedVersion(ctx context.Context, deploymentID, expectedVersionID string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.record(Call{Op: OpCheckVersion, DeploymentID: deploymentID, VersionID: expectedVersionID}); err != nil {
		return false, err
	}
	return r.versions[deploymentID] == expectedVersionID, nil
}

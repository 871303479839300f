package rollback_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/agentregistry-dev/modelregistry/internal/registry/config"
	internaldb "github.com/agentregistry-dev/modelregistry/internal/registry/database"
	"github.com/agentregistry-dev/modelregistry/internal/registry/jobs"
	"github.com/agentregistry-dev/modelregistry/internal/registry/rollback"
	"github.com/agentregistry-dev/modelregistry/internal/registry/service"
	"github.com/agentregistry-dev/modelregistry/internal/runtime"
	"github.com/agentregistry-dev/modelregistry/pkg/models"
)

const waitFor = 2 * time.Second

type fixture struct {
	db      *internaldb.Memory
	svc     *service.DeploymentManager
	runtime *runtime.LocalRuntime
	jobs    *jobs.Manager
	orch    *rollback.Orchestrator
}

func newFixture(t *testing.T, cfg config.RollbackConfig) *fixture {
	t.Helper()
	logger := zaptest.NewLogger(t)

	db := internaldb.NewMemory()
	svc := service.NewDeploymentManager(db, logger)
	rt := runtime.NewLocalRuntime(logger)
	jm := jobs.NewManager()
	t.Cleanup(jm.Close)

	orch := rollback.NewOrchestrator(svc, db, rt.Substrate(), jm, cfg, rollback.WithLogger(logger))
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), waitFor)
		defer cancel()
		_ = orch.Shutdown(ctx)
	})

	for _, id := range []string{"v1", "v2"} {
		_, err := svc.CreateVersion(context.Background(), &models.CreateVersionRequest{ID: id, ModelID: "fraud-detector", Version: id})
		require.NoError(t, err)
	}

	return &fixture{db: db, svc: svc, runtime: rt, jobs: jm, orch: orch}
}

func fastConfig() config.RollbackConfig {
	return config.RollbackConfig{
		HealthCheckRetries:  3,
		HealthCheckInterval: 20 * time.Millisecond,
		RollbackTimeout:     time.Minute,
		MaxRollbackTime:     time.Minute,
	}
}

func (f *fixture) deploy(t *testing.T, env models.Environment, strategy models.Strategy, status models.DeploymentStatus) *models.Deployment {
	t.Helper()
	ctx := context.Background()
	d, err := f.svc.CreateDeployment(ctx, &models.CreateDeploymentRequest{
		VersionID:   "v2",
		Environment: env,
		Strategy:    strategy,
		Config: models.DeploymentConfig{
			Replicas:    2,
			Resources:   models.ResourceShape{CPU: "500m", Memory: "1Gi"},
			HealthCheck: models.HealthCheckSpec{Path: "/healthz"},
		},
	}, "alice")
	require.NoError(t, err)
	if status != models.DeploymentStatusPending {
		d, err = f.svc.UpdateStatus(ctx, d.ID, status)
		require.NoError(t, err)
	}
	f.runtime.SetDeployedVersion(d.ID, "v2")
	return d
}

func (f *fixture) awaitTerminal(t *testing.T, id string) *models.RollbackOperation {
	t.Helper()
	var op *models.RollbackOperation
	require.Eventually(t, func() bool {
		var err error
		op, err = f.orch.GetRollback(context.Background(), id)
		return err == nil && op.Status.IsTerminal()
	}, waitFor, 5*time.Millisecond)
	return op
}

func callsOf(calls []runtime.Call, op runtime.Operation) []runtime.Call {
	var out []runtime.Call
	for _, c := range calls {
		if c.Op == op {
			out = append(out, c)
		}
	}
	return out
}

func TestExecuteRollback_CanarySuccess(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, fastConfig())
	d := f.deploy(t, models.EnvironmentProduction, models.StrategyCanary, models.DeploymentStatusActive)

	op, err := f.orch.ExecuteRollback(ctx, d.ID, "v1", "error rate spike", "alice")
	require.NoError(t, err)
	assert.Equal(t, models.RollbackStatusPending, op.Status)
	assert.Equal(t, d.ID, op.DeploymentID)
	assert.Equal(t, "v1", op.TargetVersionID)
	assert.Equal(t, "alice", op.InitiatedBy)

	done := f.awaitTerminal(t, op.ID)
	assert.Equal(t, models.RollbackStatusCompleted, done.Status)
	assert.NotNil(t, done.CompletedAt)
	assert.Nil(t, done.ErrorMessage)

	got, err := f.svc.GetDeployment(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, models.DeploymentStatusRolledBack, got.Status)
	require.NotNil(t, got.CurrentTraffic)
	assert.InDelta(t, 100, *got.CurrentTraffic, 0.001)

	version, ok := f.runtime.DeployedVersion(d.ID)
	require.True(t, ok)
	assert.Equal(t, "v1", version)

	shifts := callsOf(f.runtime.Calls(), runtime.OpShiftTraffic)
	require.Len(t, shifts, 2)
	assert.InDelta(t, 0, shifts[0].Percentage, 0.001)
	assert.InDelta(t, 100, shifts[1].Percentage, 0.001)

	deploys := callsOf(f.runtime.Calls(), runtime.OpDeploy)
	require.Len(t, deploys, 1)
	assert.True(t, deploys[0].Config.Rollback)
	assert.Equal(t, "v1", deploys[0].Config.VersionID)
	assert.Equal(t, 2, deploys[0].Config.Replicas)

	splits, err := f.svc.GetTrafficSplits(ctx, d.ID)
	require.NoError(t, err)
	require.Len(t, splits, 2)
	percentages := []float64{splits[0].Percentage, splits[1].Percentage}
	assert.ElementsMatch(t, []float64{0, 100}, percentages)

	require.Eventually(t, func() bool {
		return f.jobs.GetRunningJob(jobs.RollbackJobType, d.ID) == nil
	}, waitFor, 5*time.Millisecond)
}

func TestExecuteRollback_RollingSkipsTraffic(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, fastConfig())
	d := f.deploy(t, models.EnvironmentStaging, models.StrategyRolling, models.DeploymentStatusFailed)

	op, err := f.orch.ExecuteRollback(ctx, d.ID, "v1", "bad build", "bob")
	require.NoError(t, err)

	done := f.awaitTerminal(t, op.ID)
	assert.Equal(t, models.RollbackStatusCompleted, done.Status)
	assert.Empty(t, callsOf(f.runtime.Calls(), runtime.OpShiftTraffic))

	splits, err := f.svc.GetTrafficSplits(ctx, d.ID)
	require.NoError(t, err)
	assert.Empty(t, splits)
}

func TestExecuteRollback_Preconditions(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name     string
		status   models.DeploymentStatus
		target   string
		expected error
	}{
		{name: "already rolling back", status: models.DeploymentStatusRollingBack, target: "v1", expected: service.ErrConflict},
		{name: "pending", status: models.DeploymentStatusPending, target: "v1", expected: service.ErrInvalidState},
		{name: "deploying", status: models.DeploymentStatusDeploying, target: "v1", expected: service.ErrInvalidState},
		{name: "rolled back", status: models.DeploymentStatusRolledBack, target: "v1", expected: service.ErrInvalidState},
		{name: "terminated", status: models.DeploymentStatusTerminated, target: "v1", expected: service.ErrInvalidState},
		{name: "unknown target version", status: models.DeploymentStatusActive, target: "v9", expected: service.ErrNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, fastConfig())
			d := f.deploy(t, models.EnvironmentProduction, models.StrategyCanary, tt.status)

			op, err := f.orch.ExecuteRollback(ctx, d.ID, tt.target, "reason", "alice")
			require.ErrorIs(t, err, tt.expected)
			assert.Nil(t, op)

			ops, err := f.orch.ListRollbacks(ctx, d.ID)
			require.NoError(t, err)
			assert.Empty(t, ops)
			assert.Empty(t, f.runtime.Calls())
		})
	}
}

func TestExecuteRollback_UnknownDeployment(t *testing.T) {
	f := newFixture(t, fastConfig())

	_, err := f.orch.ExecuteRollback(context.Background(), "missing", "v1", "reason", "alice")
	require.ErrorIs(t, err, service.ErrNotFound)
}

func TestExecuteRollback_OneActivePerDeployment(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, fastConfig())
	f.runtime.DeployDelay = time.Hour
	d := f.deploy(t, models.EnvironmentProduction, models.StrategyRolling, models.DeploymentStatusActive)

	first, err := f.orch.ExecuteRollback(ctx, d.ID, "v1", "first", "alice")
	require.NoError(t, err)

	// Either the rolling_back status or the active row rejects a second rollback
	_, err = f.orch.ExecuteRollback(ctx, d.ID, "v1", "second", "bob")
	require.ErrorIs(t, err, service.ErrConflict)

	ops, err := f.orch.ListRollbacks(ctx, d.ID)
	require.NoError(t, err)
	require.Len(t, ops, 1)
	assert.Equal(t, first.ID, ops[0].ID)
}

func TestExecuteRollback_VerificationFailure(t *testing.T) {
	ctx := context.Background()
	cfg := fastConfig()
	f := newFixture(t, cfg)
	d := f.deploy(t, models.EnvironmentProduction, models.StrategyBlueGreen, models.DeploymentStatusActive)
	f.runtime.SetHealthy(d.ID, false)

	op, err := f.orch.ExecuteRollback(ctx, d.ID, "v1", "latency", "monitor")
	require.NoError(t, err)

	done := f.awaitTerminal(t, op.ID)
	assert.Equal(t, models.RollbackStatusFailed, done.Status)
	require.NotNil(t, done.ErrorMessage)
	assert.Equal(t, "Rollback verification failed", *done.ErrorMessage)

	require.Eventually(t, func() bool {
		got, err := f.svc.GetDeployment(ctx, d.ID)
		return err == nil && got.Status == models.DeploymentStatusFailed
	}, waitFor, 5*time.Millisecond)

	calls := f.runtime.Calls()
	assert.Len(t, callsOf(calls, runtime.OpCheckHealth), cfg.HealthCheckRetries)
	assert.Empty(t, callsOf(calls, runtime.OpCheckVersion))
}

func TestExecuteRollback_DeployFailure(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, fastConfig())
	d := f.deploy(t, models.EnvironmentProduction, models.StrategyRolling, models.DeploymentStatusActive)
	f.runtime.FailNext(runtime.OpDeploy, 1)

	op, err := f.orch.ExecuteRollback(ctx, d.ID, "v1", "reason", "alice")
	require.NoError(t, err)

	done := f.awaitTerminal(t, op.ID)
	assert.Equal(t, models.RollbackStatusFailed, done.Status)
	require.NotNil(t, done.ErrorMessage)
	assert.Contains(t, *done.ErrorMessage, runtime.ErrInjected.Error())
	assert.Empty(t, callsOf(f.runtime.Calls(), runtime.OpCheckHealth))

	require.Eventually(t, func() bool {
		got, err := f.svc.GetDeployment(ctx, d.ID)
		return err == nil && got.Status == models.DeploymentStatusFailed
	}, waitFor, 5*time.Millisecond)

	// A failed deployment can be rolled back again
	require.Eventually(t, func() bool {
		return f.jobs.RunningCount(jobs.RollbackJobType) == 0
	}, waitFor, 5*time.Millisecond)
	retry, err := f.orch.ExecuteRollback(ctx, d.ID, "v1", "retry", "alice")
	require.NoError(t, err)
	assert.Equal(t, models.RollbackStatusCompleted, f.awaitTerminal(t, retry.ID).Status)
}

func TestVerifyRollbackSuccess(t *testing.T) {
	ctx := context.Background()

	t.Run("healthy on first attempt", func(t *testing.T) {
		f := newFixture(t, fastConfig())
		f.runtime.SetDeployedVersion("dep", "v1")

		assert.True(t, f.orch.VerifyRollbackSuccess(ctx, "dep", "v1"))
		calls := f.runtime.Calls()
		assert.Len(t, callsOf(calls, runtime.OpCheckHealth), 1)
		assert.Len(t, callsOf(calls, runtime.OpCheckVersion), 1)
	})

	t.Run("unhealthy exhausts retries with waits in between", func(t *testing.T) {
		cfg := fastConfig()
		f := newFixture(t, cfg)
		f.runtime.SetHealthy("dep", false)

		start := time.Now()
		assert.False(t, f.orch.VerifyRollbackSuccess(ctx, "dep", "v1"))
		elapsed := time.Since(start)

		assert.Len(t, callsOf(f.runtime.Calls(), runtime.OpCheckHealth), cfg.HealthCheckRetries)
		assert.GreaterOrEqual(t, elapsed, time.Duration(cfg.HealthCheckRetries-1)*cfg.HealthCheckInterval)
	})

	t.Run("wrong version", func(t *testing.T) {
		f := newFixture(t, fastConfig())
		f.runtime.SetDeployedVersion("dep", "v2")

		assert.False(t, f.orch.VerifyRollbackSuccess(ctx, "dep", "v1"))
		assert.Len(t, callsOf(f.runtime.Calls(), runtime.OpCheckVersion), 3)
	})

	t.Run("probe errors count as failed attempts", func(t *testing.T) {
		f := newFixture(t, fastConfig())
		f.runtime.SetDeployedVersion("dep", "v1")
		f.runtime.FailNext(runtime.OpCheckHealth, 2)

		assert.True(t, f.orch.VerifyRollbackSuccess(ctx, "dep", "v1"))
		assert.Len(t, callsOf(f.runtime.Calls(), runtime.OpCheckHealth), 3)
	})

	t.Run("cancelled context stops waiting", func(t *testing.T) {
		cfg := fastConfig()
		cfg.HealthCheckInterval = time.Hour
		f := newFixture(t, cfg)
		f.runtime.SetHealthy("dep", false)

		cctx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
		defer cancel()
		assert.False(t, f.orch.VerifyRollbackSuccess(cctx, "dep", "v1"))
	})
}

func TestCancelRollback(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, fastConfig())
	f.runtime.DeployDelay = time.Hour
	d := f.deploy(t, models.EnvironmentProduction, models.StrategyRolling, models.DeploymentStatusActive)

	op, err := f.orch.ExecuteRollback(ctx, d.ID, "v1", "reason", "alice")
	require.NoError(t, err)

	// Wait for the task to block in the redeploy
	require.Eventually(t, func() bool {
		got, err := f.svc.GetDeployment(ctx, d.ID)
		return err == nil && got.Status == models.DeploymentStatusRollingBack
	}, waitFor, 5*time.Millisecond)

	cancelled, err := f.orch.CancelRollback(ctx, op.ID)
	require.NoError(t, err)
	assert.True(t, cancelled)

	done := f.awaitTerminal(t, op.ID)
	assert.Equal(t, models.RollbackStatusFailed, done.Status)
	require.NotNil(t, done.ErrorMessage)
	assert.Equal(t, rollback.CancelledMessage, *done.ErrorMessage)

	require.Eventually(t, func() bool {
		got, err := f.svc.GetDeployment(ctx, d.ID)
		return err == nil && got.Status == models.DeploymentStatusFailed
	}, waitFor, 5*time.Millisecond)

	// The task observed the cancellation and kept the cancel message
	require.Eventually(t, func() bool {
		return f.jobs.GetRunningJob(jobs.RollbackJobType, d.ID) == nil
	}, waitFor, 5*time.Millisecond)
	after, err := f.orch.GetRollback(ctx, op.ID)
	require.NoError(t, err)
	assert.Equal(t, rollback.CancelledMessage, *after.ErrorMessage)

	again, err := f.orch.CancelRollback(ctx, op.ID)
	require.NoError(t, err)
	assert.False(t, again)

	unknown, err := f.orch.CancelRollback(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, unknown)
}

func TestCancelRollback_TaskHoldsDeploymentUntilItExits(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, fastConfig())
	d := f.deploy(t, models.EnvironmentProduction, models.StrategyCanary, models.DeploymentStatusActive)

	// A cancelled task that has not reported back yet
	held, _, err := f.jobs.CreateJob(ctx, jobs.RollbackJobType, d.ID, "cancelled-task")
	require.NoError(t, err)
	require.True(t, f.jobs.CancelJob(held.ID))

	_, err = f.orch.ExecuteRollback(ctx, d.ID, "v1", "reason", "alice")
	require.ErrorIs(t, err, service.ErrConflict)

	require.NoError(t, f.jobs.FailJob(held.ID, "context canceled"))
	op, err := f.orch.ExecuteRollback(ctx, d.ID, "v1", "reason", "alice")
	require.NoError(t, err)
	assert.Equal(t, models.RollbackStatusCompleted, f.awaitTerminal(t, op.ID).Status)
}

func TestCancelRollback_ThenExecuteAgain(t *testing.T) {
	ctx := context.Background()
	cfg := fastConfig()
	cfg.HealthCheckRetries = 50
	f := newFixture(t, cfg)
	w := &recordingWatcher{}
	f.orch.SetWatcher(w)
	d := f.deploy(t, models.EnvironmentProduction, models.StrategyCanary, models.DeploymentStatusActive)

	// The first rollback cannot verify, so it is still running when cancelled
	f.runtime.SetHealthy(d.ID, false)
	first, err := f.orch.ExecuteRollback(ctx, d.ID, "v1", "reason", "alice")
	require.NoError(t, err)
	cancelled, err := f.orch.CancelRollback(ctx, first.ID)
	require.NoError(t, err)
	require.True(t, cancelled)
	f.runtime.SetHealthy(d.ID, true)

	// Rejected while the first task is still alive
	var second *models.RollbackOperation
	require.Eventually(t, func() bool {
		op, err := f.orch.ExecuteRollback(ctx, d.ID, "v1", "retry", "alice")
		if err != nil {
			assert.ErrorIs(t, err, service.ErrConflict)
			return false
		}
		second = op
		return true
	}, waitFor, 5*time.Millisecond)

	done := f.awaitTerminal(t, second.ID)
	assert.Equal(t, models.RollbackStatusCompleted, done.Status)
	require.Eventually(t, func() bool {
		return f.jobs.RunningCount(jobs.RollbackJobType) == 0
	}, waitFor, 5*time.Millisecond)

	// The cancelled task never overwrote the outcome of the second one
	got, err := f.svc.GetDeployment(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, models.DeploymentStatusRolledBack, got.Status)

	op, err := f.orch.GetRollback(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RollbackStatusFailed, op.Status)
	assert.Equal(t, rollback.CancelledMessage, *op.ErrorMessage)

	job, err := f.jobs.GetJob(jobs.JobID(first.ID))
	require.NoError(t, err)
	assert.Equal(t, jobs.JobStatusCancelled, job.Status)

	_, resumed := w.snapshot()
	assert.Equal(t, []string{d.ID}, resumed)
}

func TestCancelRollback_Completed(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, fastConfig())
	d := f.deploy(t, models.EnvironmentProduction, models.StrategyRolling, models.DeploymentStatusActive)

	op, err := f.orch.ExecuteRollback(ctx, d.ID, "v1", "reason", "alice")
	require.NoError(t, err)
	require.Equal(t, models.RollbackStatusCompleted, f.awaitTerminal(t, op.ID).Status)

	cancelled, err := f.orch.CancelRollback(ctx, op.ID)
	require.NoError(t, err)
	assert.False(t, cancelled)
}

func TestGetOneClickRollbackOptions(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, fastConfig())

	current := f.deploy(t, models.EnvironmentProduction, models.StrategyCanary, models.DeploymentStatusActive)
	for i := 0; i < 7; i++ {
		f.deploy(t, models.EnvironmentProduction, models.StrategyCanary, models.DeploymentStatusActive)
	}
	f.deploy(t, models.EnvironmentProduction, models.StrategyCanary, models.DeploymentStatusFailed)
	f.deploy(t, models.EnvironmentStaging, models.StrategyCanary, models.DeploymentStatusActive)

	options, err := f.orch.GetOneClickRollbackOptions(ctx, current.ID)
	require.NoError(t, err)
	assert.Len(t, options, rollback.MaxOneClickOptions)
	for _, o := range options {
		assert.NotEqual(t, current.ID, o.ID)
		assert.Equal(t, models.EnvironmentProduction, o.Environment)
		assert.Equal(t, models.DeploymentStatusActive, o.Status)
	}

	_, err = f.orch.GetOneClickRollbackOptions(ctx, "missing")
	require.ErrorIs(t, err, service.ErrNotFound)
}

func TestRecoverInterrupted(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, fastConfig())
	d := f.deploy(t, models.EnvironmentProduction, models.StrategyRolling, models.DeploymentStatusRollingBack)

	now := time.Now().UTC()
	require.NoError(t, f.db.CreateRollback(ctx, nil, &models.RollbackOperation{
		ID:              "left-over",
		DeploymentID:    d.ID,
		TargetVersionID: "v1",
		Status:          models.RollbackStatusInProgress,
		InitiatedBy:     "alice",
		CreatedAt:       now,
		UpdatedAt:       now,
	}))

	n, err := f.orch.RecoverInterrupted(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	op, err := f.orch.GetRollback(ctx, "left-over")
	require.NoError(t, err)
	assert.Equal(t, models.RollbackStatusFailed, op.Status)
	assert.Equal(t, rollback.InterruptedMessage, *op.ErrorMessage)

	got, err := f.svc.GetDeployment(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, models.DeploymentStatusFailed, got.Status)

	n, err = f.orch.RecoverInterrupted(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestShutdownInterruptsRunningRollback(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, fastConfig())
	f.runtime.DeployDelay = time.Hour
	d := f.deploy(t, models.EnvironmentProduction, models.StrategyRolling, models.DeploymentStatusActive)

	op, err := f.orch.ExecuteRollback(ctx, d.ID, "v1", "reason", "alice")
	require.NoError(t, err)

	shutdownCtx, cancel := context.WithTimeout(ctx, waitFor)
	defer cancel()
	require.NoError(t, f.orch.Shutdown(shutdownCtx))

	got, err := f.orch.GetRollback(ctx, op.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RollbackStatusFailed, got.Status)
	assert.Equal(t, "Rollback interrupted by shutdown", *got.ErrorMessage)
}

type recordingWatcher struct {
	mu      sync.Mutex
	stopped []string
	resumed []string
}

func (w *recordingWatcher) StopMonitoring(id string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.stopped = append(w.stopped, id)
}

func (w *recordingWatcher) ResumeMonitoring(_ context.Context, id string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.resumed = append(w.resumed, id)
	return nil
}

func (w *recordingWatcher) snapshot() ([]string, []string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]string(nil), w.stopped...), append([]string(nil), w.resumed...)
}

func TestRollbackDrivesWatcher(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, fastConfig())
	w := &recordingWatcher{}
	f.orch.SetWatcher(w)

	good := f.deploy(t, models.EnvironmentProduction, models.StrategyRolling, models.DeploymentStatusActive)
	bad := f.deploy(t, models.EnvironmentProduction, models.StrategyRolling, models.DeploymentStatusActive)
	f.runtime.SetHealthy(bad.ID, false)

	ok, err := f.orch.ExecuteRollback(ctx, good.ID, "v1", "reason", "alice")
	require.NoError(t, err)
	require.Equal(t, models.RollbackStatusCompleted, f.awaitTerminal(t, ok.ID).Status)

	failed, err := f.orch.ExecuteRollback(ctx, bad.ID, "v1", "reason", "alice")
	require.NoError(t, err)
	require.Equal(t, models.RollbackStatusFailed, f.awaitTerminal(t, failed.ID).Status)

	require.Eventually(t, func() bool {
		return f.jobs.RunningCount(jobs.RollbackJobType) == 0
	}, waitFor, 5*time.Millisecond)

	// The failed rollback stops the watch again once it gives up
	stopped, resumed := w.snapshot()
	assert.ElementsMatch(t, []string{good.ID, bad.ID, bad.ID}, stopped)
	assert.Equal(t, []string{good.ID}, resumed)
}

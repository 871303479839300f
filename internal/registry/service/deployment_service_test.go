//nolint:testpackage
package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	internaldb "github.com/agentregistry-dev/modelregistry/internal/registry/database"
	"github.com/agentregistry-dev/modelregistry/pkg/models"
)

func newTestManager(t *testing.T) *DeploymentManager {
	t.Helper()
	return NewDeploymentManager(internaldb.NewMemory(), zaptest.NewLogger(t))
}

func validRequest(versionID string) *models.CreateDeploymentRequest {
	return &models.CreateDeploymentRequest{
		VersionID:   versionID,
		Environment: models.EnvironmentProduction,
		Strategy:    models.StrategyCanary,
		Config: models.DeploymentConfig{
			Replicas:    2,
			Resources:   models.ResourceShape{CPU: "500m", Memory: "1Gi"},
			HealthCheck: models.HealthCheckSpec{Path: "/healthz"},
		},
		SLOTargets: models.SLOTargets{ErrorRate: 0.1},
	}
}

func mustVersion(t *testing.T, s *DeploymentManager, id string) *models.ModelVersion {
	t.Helper()
	v, err := s.CreateVersion(context.Background(), &models.CreateVersionRequest{
		ID:      id,
		ModelID: "fraud-detector",
		Version: id,
	})
	require.NoError(t, err)
	return v
}

func TestCreateDeployment(t *testing.T) {
	ctx := context.Background()
	s := newTestManager(t)
	mustVersion(t, s, "v1")

	d, err := s.CreateDeployment(ctx, validRequest("v1"), "alice")
	require.NoError(t, err)

	assert.NotEmpty(t, d.ID)
	assert.Equal(t, models.DeploymentStatusPending, d.Status)
	assert.Equal(t, "alice", d.DeployedBy)
	assert.Nil(t, d.CurrentTraffic)
	assert.False(t, d.DeployedAt.IsZero())

	got, err := s.GetDeployment(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, d.VersionID, got.VersionID)
	assert.Equal(t, d.Config, got.Config)
}

func TestCreateDeployment_Validation(t *testing.T) {
	ctx := context.Background()
	s := newTestManager(t)
	mustVersion(t, s, "v1")

	tests := []struct {
		name   string
		mutate func(r *models.CreateDeploymentRequest)
	}{
		{"missing version", func(r *models.CreateDeploymentRequest) { r.VersionID = "" }},
		{"unknown environment", func(r *models.CreateDeploymentRequest) { r.Environment = "qa" }},
		{"unknown strategy", func(r *models.CreateDeploymentRequest) { r.Strategy = "big_bang" }},
		{"zero replicas", func(r *models.CreateDeploymentRequest) { r.Config.Replicas = 0 }},
		{"missing cpu", func(r *models.CreateDeploymentRequest) { r.Config.Resources.CPU = "" }},
		{"missing memory", func(r *models.CreateDeploymentRequest) { r.Config.Resources.Memory = "" }},
		{"missing health check path", func(r *models.CreateDeploymentRequest) { r.Config.HealthCheck.Path = "" }},
		{"availability above 100", func(r *models.CreateDeploymentRequest) { r.SLOTargets.Availability = 101 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := validRequest("v1")
			tt.mutate(req)
			_, err := s.CreateDeployment(ctx, req, "alice")
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrValidation)
		})
	}

	t.Run("missing deployer", func(t *testing.T) {
		_, err := s.CreateDeployment(ctx, validRequest("v1"), "")
		assert.ErrorIs(t, err, ErrValidation)
	})
}

func TestCreateDeployment_UnknownVersion(t *testing.T) {
	s := newTestManager(t)

	_, err := s.CreateDeployment(context.Background(), validRequest("missing"), "alice")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestGetDeployment_NotFound(t *testing.T) {
	s := newTestManager(t)

	_, err := s.GetDeployment(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCreateVersion_Duplicate(t *testing.T) {
	s := newTestManager(t)
	mustVersion(t, s, "v1")

	_, err := s.CreateVersion(context.Background(), &models.CreateVersionRequest{ID: "v1", ModelID: "m", Version: "1"})
	assert.ErrorIs(t, err, ErrConflict)

	// same model and version under a new id
	_, err = s.CreateVersion(context.Background(), &models.CreateVersionRequest{ID: "other", ModelID: "fraud-detector", Version: "v1"})
	assert.ErrorIs(t, err, ErrConflict)
}

func TestUpdateStatus(t *testing.T) {
	ctx := context.Background()
	s := newTestManager(t)
	mustVersion(t, s, "v1")
	d, err := s.CreateDeployment(ctx, validRequest("v1"), "alice")
	require.NoError(t, err)

	updated, err := s.UpdateStatus(ctx, d.ID, models.DeploymentStatusActive)
	require.NoError(t, err)
	assert.Equal(t, models.DeploymentStatusActive, updated.Status)
	assert.False(t, updated.UpdatedAt.Before(d.UpdatedAt))

	// Overwrite is unconditional: terminal statuses can be overwritten
	_, err = s.UpdateStatus(ctx, d.ID, models.DeploymentStatusTerminated)
	require.NoError(t, err)
	updated, err = s.UpdateStatus(ctx, d.ID, models.DeploymentStatusActive)
	require.NoError(t, err)
	assert.Equal(t, models.DeploymentStatusActive, updated.Status)

	_, err = s.UpdateStatus(ctx, d.ID, "exploded")
	assert.ErrorIs(t, err, ErrValidation)

	_, err = s.UpdateStatus(ctx, "nope", models.DeploymentStatusActive)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListDeployments_Filters(t *testing.T) {
	ctx := context.Background()
	s := newTestManager(t)
	mustVersion(t, s, "v1")
	mustVersion(t, s, "v2")

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	tick := 0
	s.now = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Minute)
	}

	prod1, err := s.CreateDeployment(ctx, validRequest("v1"), "alice")
	require.NoError(t, err)
	stagingReq := validRequest("v2")
	stagingReq.Environment = models.EnvironmentStaging
	staging, err := s.CreateDeployment(ctx, stagingReq, "bob")
	require.NoError(t, err)
	prod2, err := s.CreateDeployment(ctx, validRequest("v2"), "alice")
	require.NoError(t, err)

	all, err := s.ListDeployments(ctx, nil, 0, 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, prod2.ID, all[0].ID, "newest first")
	assert.Equal(t, prod1.ID, all[2].ID)

	env := models.EnvironmentProduction
	prod, err := s.ListDeployments(ctx, &models.DeploymentFilter{Environment: &env}, 10, 0)
	require.NoError(t, err)
	assert.Len(t, prod, 2)

	by := "bob"
	bobs, err := s.ListDeployments(ctx, &models.DeploymentFilter{DeployedBy: &by}, 10, 0)
	require.NoError(t, err)
	require.Len(t, bobs, 1)
	assert.Equal(t, staging.ID, bobs[0].ID)

	version := "v2"
	v2, err := s.ListDeployments(ctx, &models.DeploymentFilter{VersionID: &version}, 10, 0)
	require.NoError(t, err)
	assert.Len(t, v2, 2)

	after := prod1.DeployedAt.Add(time.Second)
	recent, err := s.ListDeployments(ctx, &models.DeploymentFilter{DeployedAfter: &after}, 10, 0)
	require.NoError(t, err)
	assert.Len(t, recent, 2)

	page, err := s.ListDeployments(ctx, nil, 1, 1)
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, staging.ID, page[0].ID)
}

func TestGetLastKnownGood(t *testing.T) {
	ctx := context.Background()
	s := newTestManager(t)
	mustVersion(t, s, "v1")
	mustVersion(t, s, "v2")

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	tick := 0
	s.now = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Minute)
	}

	old, err := s.CreateDeployment(ctx, validRequest("v1"), "alice")
	require.NoError(t, err)
	current, err := s.CreateDeployment(ctx, validRequest("v2"), "alice")
	require.NoError(t, err)

	_, err = s.GetLastKnownGood(ctx, current.ID)
	assert.ErrorIs(t, err, ErrNotFound, "prior deployment is not active yet")

	_, err = s.UpdateStatus(ctx, old.ID, models.DeploymentStatusActive)
	require.NoError(t, err)
	_, err = s.UpdateStatus(ctx, current.ID, models.DeploymentStatusActive)
	require.NoError(t, err)

	lkg, err := s.GetLastKnownGood(ctx, current.ID)
	require.NoError(t, err)
	assert.Equal(t, old.ID, lkg.ID)
	assert.Equal(t, "v1", lkg.VersionID)

	_, err = s.GetLastKnownGood(ctx, old.ID)
	assert.ErrorIs(t, err, ErrNotFound, "newer deployments are not prior")

	_, err = s.GetLastKnownGood(ctx, "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestTrafficSplits(t *testing.T) {
	ctx := context.Background()
	s := newTestManager(t)
	mustVersion(t, s, "v1")
	d, err := s.CreateDeployment(ctx, validRequest("v1"), "alice")
	require.NoError(t, err)

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	tick := 0
	s.now = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Second)
	}

	first, err := s.RecordTrafficSplit(ctx, d.ID, 0)
	require.NoError(t, err)
	second, err := s.RecordTrafficSplit(ctx, d.ID, 100)
	require.NoError(t, err)

	splits, err := s.GetTrafficSplits(ctx, d.ID)
	require.NoError(t, err)
	require.Len(t, splits, 2)
	assert.Equal(t, second.ID, splits[0].ID, "newest first")
	assert.Equal(t, first.ID, splits[1].ID)
	assert.Nil(t, splits[1].CompletedAt, "prior split is not completed automatically")
	assert.True(t, splits[1].StartedAt.Before(splits[0].StartedAt))

	got, err := s.GetDeployment(ctx, d.ID)
	require.NoError(t, err)
	require.NotNil(t, got.CurrentTraffic)
	assert.InDelta(t, 100.0, *got.CurrentTraffic, 0.0001)

	current, err := s.GetCurrentTrafficSplit(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, second.ID, current.ID)

	completed, err := s.CompleteTrafficSplit(ctx, second.ID)
	require.NoError(t, err)
	require.NotNil(t, completed.CompletedAt)

	current, err = s.GetCurrentTrafficSplit(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, first.ID, current.ID)
}

func TestRecordTrafficSplit_Invalid(t *testing.T) {
	ctx := context.Background()
	s := newTestManager(t)
	mustVersion(t, s, "v1")
	d, err := s.CreateDeployment(ctx, validRequest("v1"), "alice")
	require.NoError(t, err)

	for _, pct := range []float64{-1, 100.5} {
		_, err := s.RecordTrafficSplit(ctx, d.ID, pct)
		assert.ErrorIs(t, err, ErrValidation)
	}

	_, err = s.RecordTrafficSplit(ctx, "nope", 50)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = s.CompleteTrafficSplit(ctx, "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestQueryMetrics_Granularity(t *testing.T) {
	ctx := context.Background()
	s := newTestManager(t)
	mustVersion(t, s, "v1")
	d, err := s.CreateDeployment(ctx, validRequest("v1"), "alice")
	require.NoError(t, err)

	base := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
	drift := 0.4
	samples := []models.DeploymentMetrics{
		{Timestamp: base.Add(5 * time.Second), Availability: 99, ErrorRate: 1, LatencyP95Ms: 100, RequestCount: 10, InputDrift: &drift},
		{Timestamp: base.Add(30 * time.Second), Availability: 97, ErrorRate: 3, LatencyP95Ms: 300, RequestCount: 20},
		{Timestamp: base.Add(90 * time.Second), Availability: 100, ErrorRate: 0, LatencyP95Ms: 50, RequestCount: 5},
	}
	for i := range samples {
		samples[i].DeploymentID = d.ID
		_, err := s.RecordMetrics(ctx, &samples[i])
		require.NoError(t, err)
	}

	from, to := base, base.Add(time.Hour)

	raw, err := s.QueryMetrics(ctx, d.ID, from, to, "")
	require.NoError(t, err)
	require.Len(t, raw, 3)
	assert.True(t, raw[0].Timestamp.Before(raw[1].Timestamp), "raw samples oldest first")

	perMinute, err := s.QueryMetrics(ctx, d.ID, from, to, models.GranularityMinute)
	require.NoError(t, err)
	require.Len(t, perMinute, 2)
	assert.Equal(t, base, perMinute[0].Timestamp)
	assert.InDelta(t, 98.0, perMinute[0].Availability, 0.0001)
	assert.InDelta(t, 2.0, perMinute[0].ErrorRate, 0.0001)
	assert.InDelta(t, 200.0, perMinute[0].LatencyP95Ms, 0.0001)
	assert.Equal(t, int64(30), perMinute[0].RequestCount)
	require.NotNil(t, perMinute[0].InputDrift)
	assert.InDelta(t, 0.4, *perMinute[0].InputDrift, 0.0001)
	assert.Nil(t, perMinute[0].OutputDrift)
	assert.Equal(t, base.Add(time.Minute), perMinute[1].Timestamp)

	perHour, err := s.QueryMetrics(ctx, d.ID, from, to, models.GranularityHour)
	require.NoError(t, err)
	require.Len(t, perHour, 1)
	assert.Equal(t, int64(35), perHour[0].RequestCount)

	_, err = s.QueryMetrics(ctx, d.ID, from, to, "fortnight")
	assert.ErrorIs(t, err, ErrValidation)

	_, err = s.QueryMetrics(ctx, d.ID, to, from, "")
	assert.ErrorIs(t, err, ErrValidation)
}

func TestRecordMetrics_Validation(t *testing.T) {
	ctx := context.Background()
	s := newTestManager(t)
	mustVersion(t, s, "v1")
	d, err := s.CreateDeployment(ctx, validRequest("v1"), "alice")
	require.NoError(t, err)

	_, err = s.RecordMetrics(ctx, &models.DeploymentMetrics{DeploymentID: d.ID, Availability: 120})
	assert.ErrorIs(t, err, ErrValidation)

	_, err = s.RecordMetrics(ctx, &models.DeploymentMetrics{DeploymentID: "nope", Availability: 99})
	assert.ErrorIs(t, err, ErrNotFound)

	recorded, err := s.RecordMetrics(ctx, &models.DeploymentMetrics{DeploymentID: d.ID, Availability: 99})
	require.NoError(t, err)
	assert.NotEmpty(t, recorded.ID)
	assert.False(t, recorded.Timestamp.IsZero())
}

func TestAlerts(t *testing.T) {
	ctx := context.Background()
	s := newTestManager(t)
	mustVersion(t, s, "v1")
	d, err := s.CreateDeployment(ctx, validRequest("v1"), "alice")
	require.NoError(t, err)

	alert, err := s.RaiseAlert(ctx, &models.DeploymentAlert{
		DeploymentID: d.ID,
		Type:         models.AlertTypeHighErrorRate,
		Severity:     models.AlertSeverityCritical,
		Message:      "error rate 5.00% above target 0.10%",
		Threshold:    0.1,
		Value:        5,
	})
	require.NoError(t, err)
	assert.NotEmpty(t, alert.ID)
	assert.False(t, alert.Acknowledged)
	assert.Nil(t, alert.ResolvedAt)

	_, err = s.RaiseAlert(ctx, &models.DeploymentAlert{DeploymentID: d.ID, Type: models.AlertTypeDriftDetected})
	require.NoError(t, err)

	unacked := false
	open, err := s.ListAlerts(ctx, d.ID, &unacked)
	require.NoError(t, err)
	assert.Len(t, open, 2)

	acked, err := s.AcknowledgeAlert(ctx, alert.ID)
	require.NoError(t, err)
	assert.True(t, acked.Acknowledged)

	open, err = s.ListAlerts(ctx, d.ID, &unacked)
	require.NoError(t, err)
	assert.Len(t, open, 1)

	all, err := s.ListAlerts(ctx, d.ID, nil)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	resolved, err := s.ResolveAlert(ctx, alert.ID)
	require.NoError(t, err)
	assert.NotNil(t, resolved.ResolvedAt)

	_, err = s.AcknowledgeAlert(ctx, "nope")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = s.RaiseAlert(ctx, &models.DeploymentAlert{DeploymentID: "nope", Type: models.AlertTypeSLOBreach})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestAverageMetrics(t *testing.T) {
	assert.Nil(t, AverageMetrics(nil))

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	avg := AverageMetrics([]*models.DeploymentMetrics{
		{DeploymentID: "d", Timestamp: base, ErrorRate: 2, RequestCount: 1},
		{DeploymentID: "d", Timestamp: base.Add(time.Minute), ErrorRate: 4, RequestCount: 2},
	})
	require.NotNil(t, avg)
	assert.InDelta(t, 3.0, avg.ErrorRate, 0.0001)
	assert.Equal(t, int64(3), avg.RequestCount)
	assert.Equal(t, base.Add(time.Minute), avg.Timestamp)
}

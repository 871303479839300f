package v0_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humago"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	v0 "github.com/agentregistry-dev/modelregistry/internal/registry/api/handlers/v0"
	"github.com/agentregistry-dev/modelregistry/internal/registry/config"
	internaldb "github.com/agentregistry-dev/modelregistry/internal/registry/database"
	"github.com/agentregistry-dev/modelregistry/internal/registry/jobs"
	"github.com/agentregistry-dev/modelregistry/internal/registry/monitor"
	"github.com/agentregistry-dev/modelregistry/internal/registry/rollback"
	"github.com/agentregistry-dev/modelregistry/internal/registry/service"
	"github.com/agentregistry-dev/modelregistry/internal/runtime"
	"github.com/agentregistry-dev/modelregistry/pkg/models"
)

type testAPI struct {
	mux     *http.ServeMux
	svc     *service.DeploymentManager
	runtime *runtime.LocalRuntime
	orch    *rollback.Orchestrator
	monitor *monitor.Monitor
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	logger := zaptest.NewLogger(t)

	db := internaldb.NewMemory()
	svc := service.NewDeploymentManager(db, logger)
	rt := runtime.NewLocalRuntime(logger)
	jm := jobs.NewManager()
	t.Cleanup(jm.Close)

	orch := rollback.NewOrchestrator(svc, db, rt.Substrate(), jm, config.RollbackConfig{
		HealthCheckRetries:  2,
		HealthCheckInterval: 10 * time.Millisecond,
	}, rollback.WithLogger(logger))

	monCfg := config.DefaultMonitorConfig()
	monCfg.SLOCheckInterval = time.Hour
	monCfg.DriftCheckInterval = time.Hour
	mon := monitor.New(svc, orch, monCfg, monitor.WithLogger(logger))
	orch.SetWatcher(mon)

	t.Cleanup(func() {
		mon.Shutdown()
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = orch.Shutdown(ctx)
	})

	mux := http.NewServeMux()
	api := humago.New(mux, huma.DefaultConfig("Test API", "1.0.0"))
	v0.RegisterVersionsEndpoints(api, "/v0", svc)
	v0.RegisterDeploymentsEndpoints(api, "/v0", svc, mon)
	v0.RegisterTrafficEndpoints(api, "/v0", svc)
	v0.RegisterMetricsEndpoints(api, "/v0", svc)
	v0.RegisterAlertsEndpoints(api, "/v0", svc)
	v0.RegisterRollbacksEndpoints(api, "/v0", orch)
	v0.RegisterMonitoringEndpoints(api, "/v0", mon)

	return &testAPI{mux: mux, svc: svc, runtime: rt, orch: orch, monitor: mon}
}

func (a *testAPI) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	a.mux.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func deploymentBody(versionID string, env models.Environment, strategy models.Strategy) map[string]any {
	return map[string]any{
		"versionId":   versionID,
		"environment": env,
		"strategy":    strategy,
		"deployedBy":  "alice",
		"config": map[string]any{
			"replicas":    2,
			"resources":   map[string]any{"cpu": "500m", "memory": "1Gi"},
			"healthCheck": map[string]any{"path": "/healthz"},
		},
		"sloTargets": map[string]any{"errorRate": 1.0},
	}
}

func (a *testAPI) seedVersions(t *testing.T, ids ...string) {
	t.Helper()
	for _, id := range ids {
		w := a.do(t, http.MethodPost, "/v0/versions", map[string]any{"id": id, "modelId": "fraud-detector", "version": id})
		require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	}
}

func (a *testAPI) createDeployment(t *testing.T, versionID string, env models.Environment, strategy models.Strategy) models.Deployment {
	t.Helper()
	w := a.do(t, http.MethodPost, "/v0/deployments", deploymentBody(versionID, env, strategy))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	d := decode[models.Deployment](t, w)
	a.runtime.SetDeployedVersion(d.ID, versionID)
	return d
}

func (a *testAPI) setStatus(t *testing.T, id string, status models.DeploymentStatus) models.Deployment {
	t.Helper()
	w := a.do(t, http.MethodPut, "/v0/deployments/"+id+"/status", map[string]any{"status": status})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	return decode[models.Deployment](t, w)
}

func TestDeploymentsEndpoints(t *testing.T) {
	a := newTestAPI(t)
	a.seedVersions(t, "v1", "v2")

	d := a.createDeployment(t, "v1", models.EnvironmentProduction, models.StrategyCanary)
	assert.Equal(t, models.DeploymentStatusPending, d.Status)
	assert.Equal(t, "alice", d.DeployedBy)
	assert.Nil(t, d.CurrentTraffic)

	tests := []struct {
		name           string
		method         string
		path           string
		body           any
		expectedStatus int
	}{
		{
			name:           "get deployment",
			method:         http.MethodGet,
			path:           "/v0/deployments/" + d.ID,
			expectedStatus: http.StatusOK,
		},
		{
			name:           "unknown deployment",
			method:         http.MethodGet,
			path:           "/v0/deployments/missing",
			expectedStatus: http.StatusNotFound,
		},
		{
			name:           "unknown version",
			method:         http.MethodPost,
			path:           "/v0/deployments",
			body:           deploymentBody("v9", models.EnvironmentStaging, models.StrategyRolling),
			expectedStatus: http.StatusNotFound,
		},
		{
			name:           "invalid environment",
			method:         http.MethodPost,
			path:           "/v0/deployments",
			body:           deploymentBody("v1", "qa", models.StrategyRolling),
			expectedStatus: http.StatusUnprocessableEntity,
		},
		{
			name:           "zero replicas",
			method:         http.MethodPost,
			path:           "/v0/deployments",
			body: func() map[string]any {
				b := deploymentBody("v1", models.EnvironmentStaging, models.StrategyRolling)
				b["config"].(map[string]any)["replicas"] = 0
				return b
			}(),
			expectedStatus: http.StatusUnprocessableEntity,
		},
		{
			name:           "unknown status",
			method:         http.MethodPut,
			path:           "/v0/deployments/" + d.ID + "/status",
			body:           map[string]any{"status": "exploded"},
			expectedStatus: http.StatusUnprocessableEntity,
		},
		{
			name:           "status of unknown deployment",
			method:         http.MethodPut,
			path:           "/v0/deployments/missing/status",
			body:           map[string]any{"status": "failed"},
			expectedStatus: http.StatusNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := a.do(t, tt.method, tt.path, tt.body)
			assert.Equal(t, tt.expectedStatus, w.Code, w.Body.String())
		})
	}
}

func TestListDeploymentsEndpoint(t *testing.T) {
	a := newTestAPI(t)
	a.seedVersions(t, "v1", "v2")

	a.createDeployment(t, "v1", models.EnvironmentProduction, models.StrategyRolling)
	a.createDeployment(t, "v2", models.EnvironmentProduction, models.StrategyCanary)
	a.createDeployment(t, "v2", models.EnvironmentStaging, models.StrategyRolling)

	tests := []struct {
		name          string
		query         string
		expectedCount int
	}{
		{name: "all", query: "", expectedCount: 3},
		{name: "by environment", query: "?environment=production", expectedCount: 2},
		{name: "by version", query: "?versionId=v2", expectedCount: 2},
		{name: "by environment and version", query: "?environment=staging&versionId=v2", expectedCount: 1},
		{name: "by status", query: "?status=active", expectedCount: 0},
		{name: "paged", query: "?limit=2", expectedCount: 2},
		{name: "offset", query: "?limit=2&offset=2", expectedCount: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := a.do(t, http.MethodGet, "/v0/deployments"+tt.query, nil)
			require.Equal(t, http.StatusOK, w.Code, w.Body.String())
			body := decode[v0.DeploymentsListBody](t, w)
			assert.Equal(t, tt.expectedCount, body.Count)
			assert.Len(t, body.Deployments, tt.expectedCount)
		})
	}
}

func TestStatusEndpointDrivesMonitoring(t *testing.T) {
	a := newTestAPI(t)
	a.seedVersions(t, "v1")
	d := a.createDeployment(t, "v1", models.EnvironmentStaging, models.StrategyRolling)

	a.setStatus(t, d.ID, models.DeploymentStatusActive)
	assert.True(t, a.monitor.IsMonitoring(d.ID))

	w := a.do(t, http.MethodGet, "/v0/deployments/"+d.ID+"/monitoring", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, decode[v0.MonitoringBody](t, w).Monitoring)

	a.setStatus(t, d.ID, models.DeploymentStatusTerminated)
	assert.False(t, a.monitor.IsMonitoring(d.ID))
}

func TestStatusEndpointStopsMonitoringOnEveryTerminalStatus(t *testing.T) {
	a := newTestAPI(t)
	a.seedVersions(t, "v1")

	for _, status := range []models.DeploymentStatus{
		models.DeploymentStatusFailed,
		models.DeploymentStatusRolledBack,
		models.DeploymentStatusTerminated,
	} {
		t.Run(string(status), func(t *testing.T) {
			d := a.createDeployment(t, "v1", models.EnvironmentStaging, models.StrategyRolling)
			a.setStatus(t, d.ID, models.DeploymentStatusActive)
			require.True(t, a.monitor.IsMonitoring(d.ID))

			a.setStatus(t, d.ID, status)
			assert.False(t, a.monitor.IsMonitoring(d.ID))
		})
	}
}

func TestMonitoringEndpoints(t *testing.T) {
	a := newTestAPI(t)
	a.seedVersions(t, "v1")
	d := a.createDeployment(t, "v1", models.EnvironmentStaging, models.StrategyRolling)

	// Pending deployments cannot be watched
	w := a.do(t, http.MethodPost, "/v0/deployments/"+d.ID+"/monitoring/start", nil)
	assert.Equal(t, http.StatusConflict, w.Code, w.Body.String())

	_, err := a.svc.UpdateStatus(context.Background(), d.ID, models.DeploymentStatusActive)
	require.NoError(t, err)

	w = a.do(t, http.MethodPost, "/v0/deployments/"+d.ID+"/monitoring/start", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.True(t, a.monitor.IsMonitoring(d.ID))

	w = a.do(t, http.MethodPost, "/v0/deployments/"+d.ID+"/monitoring/stop", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.False(t, a.monitor.IsMonitoring(d.ID))

	// Stopping twice is fine
	w = a.do(t, http.MethodPost, "/v0/deployments/"+d.ID+"/monitoring/stop", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestTrafficEndpoints(t *testing.T) {
	a := newTestAPI(t)
	a.seedVersions(t, "v1")
	d := a.createDeployment(t, "v1", models.EnvironmentCanary, models.StrategyCanary)

	w := a.do(t, http.MethodGet, "/v0/deployments/"+d.ID+"/traffic/current", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = a.do(t, http.MethodPost, "/v0/deployments/"+d.ID+"/traffic", map[string]any{"percentage": 10})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	first := decode[models.TrafficSplit](t, w)
	time.Sleep(2 * time.Millisecond)

	w = a.do(t, http.MethodPost, "/v0/deployments/"+d.ID+"/traffic", map[string]any{"percentage": 50})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	second := decode[models.TrafficSplit](t, w)

	w = a.do(t, http.MethodPost, "/v0/deployments/"+d.ID+"/traffic", map[string]any{"percentage": 150})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	w = a.do(t, http.MethodGet, "/v0/deployments/"+d.ID+"/traffic", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[v0.TrafficSplitsBody](t, w).Splits, 2)

	w = a.do(t, http.MethodGet, "/v0/deployments/"+d.ID+"/traffic/current", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, second.ID, decode[models.TrafficSplit](t, w).ID)

	w = a.do(t, http.MethodPost, "/v0/traffic-splits/"+second.ID+"/complete", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.NotNil(t, decode[models.TrafficSplit](t, w).CompletedAt)

	// The earlier split was never completed, so it is current again
	w = a.do(t, http.MethodGet, "/v0/deployments/"+d.ID+"/traffic/current", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, first.ID, decode[models.TrafficSplit](t, w).ID)

	got := a.do(t, http.MethodGet, "/v0/deployments/"+d.ID, nil)
	deployment := decode[models.Deployment](t, got)
	require.NotNil(t, deployment.CurrentTraffic)
	assert.InDelta(t, 50, *deployment.CurrentTraffic, 0.001)
}

func TestMetricsEndpoints(t *testing.T) {
	a := newTestAPI(t)
	a.seedVersions(t, "v1")
	d := a.createDeployment(t, "v1", models.EnvironmentProduction, models.StrategyRolling)

	base := time.Date(2025, 10, 14, 12, 0, 0, 0, time.UTC)
	for i, errRate := range []float64{1, 3} {
		w := a.do(t, http.MethodPost, "/v0/deployments/"+d.ID+"/metrics", map[string]any{
			"timestamp":    base.Add(time.Duration(i) * 10 * time.Second),
			"availability": 99.9,
			"latencyP95Ms": 100,
			"latencyP99Ms": 200,
			"errorRate":    errRate,
			"requestCount": 10,
		})
		require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	}

	query := "?from=2025-10-14T11:59:00Z&to=2025-10-14T12:01:00Z"

	w := a.do(t, http.MethodGet, "/v0/deployments/"+d.ID+"/metrics"+query, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Len(t, decode[v0.MetricsBody](t, w).Metrics, 2)

	w = a.do(t, http.MethodGet, "/v0/deployments/"+d.ID+"/metrics"+query+"&granularity=minute", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	buckets := decode[v0.MetricsBody](t, w).Metrics
	require.Len(t, buckets, 1)
	assert.InDelta(t, 2, buckets[0].ErrorRate, 0.001)
	assert.Equal(t, int64(20), buckets[0].RequestCount)

	w = a.do(t, http.MethodGet, "/v0/deployments/"+d.ID+"/metrics?from=yesterday", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	w = a.do(t, http.MethodPost, "/v0/deployments/"+d.ID+"/metrics", map[string]any{
		"availability": 120, "latencyP95Ms": 1, "latencyP99Ms": 1, "errorRate": 0,
	})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	w = a.do(t, http.MethodPost, "/v0/deployments/missing/metrics", map[string]any{
		"availability": 99, "latencyP95Ms": 1, "latencyP99Ms": 1, "errorRate": 0,
	})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestAlertsEndpoints(t *testing.T) {
	a := newTestAPI(t)
	a.seedVersions(t, "v1")
	d := a.createDeployment(t, "v1", models.EnvironmentProduction, models.StrategyRolling)

	ctx := context.Background()
	alert, err := a.svc.RaiseAlert(ctx, &models.DeploymentAlert{
		DeploymentID: d.ID,
		Type:         models.AlertTypeHighErrorRate,
		Severity:     models.AlertSeverityWarning,
		Message:      "error rate 1.50% exceeds 1.00%",
		Threshold:    1,
		Value:        1.5,
	})
	require.NoError(t, err)
	_, err = a.svc.RaiseAlert(ctx, &models.DeploymentAlert{
		DeploymentID: d.ID,
		Type:         models.AlertTypeHighLatency,
		Severity:     models.AlertSeverityCritical,
		Message:      "p95 latency 400ms exceeds 100ms",
		Threshold:    100,
		Value:        400,
	})
	require.NoError(t, err)

	w := a.do(t, http.MethodPost, "/v0/alerts/"+alert.ID+"/acknowledge", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.True(t, decode[models.DeploymentAlert](t, w).Acknowledged)

	tests := []struct {
		query    string
		expected int
	}{
		{query: "", expected: 2},
		{query: "?acknowledged=true", expected: 1},
		{query: "?acknowledged=false", expected: 1},
	}
	for _, tt := range tests {
		t.Run("list"+tt.query, func(t *testing.T) {
			w := a.do(t, http.MethodGet, "/v0/deployments/"+d.ID+"/alerts"+tt.query, nil)
			require.Equal(t, http.StatusOK, w.Code)
			assert.Len(t, decode[v0.AlertsBody](t, w).Alerts, tt.expected)
		})
	}

	w = a.do(t, http.MethodPost, "/v0/alerts/"+alert.ID+"/resolve", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotNil(t, decode[models.DeploymentAlert](t, w).ResolvedAt)

	w = a.do(t, http.MethodPost, "/v0/alerts/missing/acknowledge", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRollbackEndpoints(t *testing.T) {
	a := newTestAPI(t)
	a.seedVersions(t, "v1", "v2")

	d := a.createDeployment(t, "v2", models.EnvironmentProduction, models.StrategyCanary)
	a.setStatus(t, d.ID, models.DeploymentStatusActive)

	body := map[string]any{"targetVersionId": "v1", "reason": "latency regression", "initiatedBy": "alice"}

	w := a.do(t, http.MethodPost, "/v0/deployments/"+d.ID+"/rollbacks", body)
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())
	op := decode[models.RollbackOperation](t, w)
	assert.Equal(t, models.RollbackStatusPending, op.Status)

	require.Eventually(t, func() bool {
		w := a.do(t, http.MethodGet, "/v0/rollbacks/"+op.ID, nil)
		return w.Code == http.StatusOK && decode[models.RollbackOperation](t, w).Status == models.RollbackStatusCompleted
	}, 2*time.Second, 10*time.Millisecond)

	got := decode[models.Deployment](t, a.do(t, http.MethodGet, "/v0/deployments/"+d.ID, nil))
	assert.Equal(t, models.DeploymentStatusRolledBack, got.Status)

	w = a.do(t, http.MethodGet, "/v0/deployments/"+d.ID+"/rollbacks", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[v0.RollbacksBody](t, w).Rollbacks, 1)

	// Finished operations cannot be cancelled
	w = a.do(t, http.MethodPost, "/v0/rollbacks/"+op.ID+"/cancel", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.False(t, decode[v0.CancelBody](t, w).Cancelled)

	tests := []struct {
		name           string
		path           string
		body           any
		expectedStatus int
	}{
		{
			name:           "deployment not eligible",
			path:           "/v0/deployments/" + d.ID + "/rollbacks",
			body:           body,
			expectedStatus: http.StatusConflict,
		},
		{
			name:           "unknown deployment",
			path:           "/v0/deployments/missing/rollbacks",
			body:           body,
			expectedStatus: http.StatusNotFound,
		},
		{
			name:           "missing target",
			path:           "/v0/deployments/" + d.ID + "/rollbacks",
			body:           map[string]any{"reason": "x", "initiatedBy": "alice"},
			expectedStatus: http.StatusUnprocessableEntity,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := a.do(t, http.MethodPost, tt.path, tt.body)
			assert.Equal(t, tt.expectedStatus, w.Code, w.Body.String())
		})
	}

	w = a.do(t, http.MethodGet, "/v0/rollbacks/missing", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = a.do(t, http.MethodPost, "/v0/rollbacks/missing/cancel", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.False(t, decode[v0.CancelBody](t, w).Cancelled)
}

func TestRollbackOptionsAndTrigger(t *testing.T) {
	a := newTestAPI(t)
	a.seedVersions(t, "v1", "v2")

	previous := a.createDeployment(t, "v1", models.EnvironmentProduction, models.StrategyRolling)
	a.setStatus(t, previous.ID, models.DeploymentStatusActive)
	time.Sleep(2 * time.Millisecond)
	current := a.createDeployment(t, "v2", models.EnvironmentProduction, models.StrategyRolling)
	a.setStatus(t, current.ID, models.DeploymentStatusActive)

	w := a.do(t, http.MethodGet, "/v0/deployments/"+current.ID+"/rollback-options", nil)
	require.Equal(t, http.StatusOK, w.Code)
	options := decode[v0.RollbackOptionsBody](t, w).Options
	require.Len(t, options, 1)
	assert.Equal(t, previous.ID, options[0].ID)

	w = a.do(t, http.MethodGet, "/v0/deployments/"+current.ID+"/last-known-good", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, previous.ID, decode[models.Deployment](t, w).ID)

	w = a.do(t, http.MethodPost, "/v0/deployments/"+current.ID+"/monitoring/trigger", map[string]any{
		"reason":      "manual remediation",
		"initiatedBy": "bob",
	})
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())
	op := decode[models.RollbackOperation](t, w)
	assert.Equal(t, "v1", op.TargetVersionID)
	assert.Equal(t, "bob", op.InitiatedBy)

	// The oldest deployment has nothing to fall back to
	w = a.do(t, http.MethodPost, "/v0/deployments/"+previous.ID+"/monitoring/trigger", map[string]any{
		"reason":      "manual remediation",
		"initiatedBy": "bob",
	})
	assert.Equal(t, http.StatusNotFound, w.Code, w.Body.String())
}

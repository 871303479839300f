package monitor

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/agentregistry-dev/modelregistry/internal/registry/service"
	"github.com/agentregistry-dev/modelregistry/pkg/models"
)

// criticalFactor is how far past its threshold an observation must be to be critical
const criticalFactor = 2.0

// breach is a threshold violation found in an averaged sample
type breach struct {
	alertType models.AlertType
	metric    string
	threshold float64
	observed  float64
	critical  bool
}

// upperBound reports a breach when observed exceeds threshold. A zero threshold disables the check.
func upperBound(alertType models.AlertType, metric string, threshold, observed float64) *breach {
	if threshold <= 0 || observed <= threshold {
		return nil
	}
	return &breach{
		alertType: alertType,
		metric:    metric,
		threshold: threshold,
		observed:  observed,
		critical:  observed >= criticalFactor*threshold,
	}
}

// availabilityBreach compares unavailability, so 99.7% against a 99.9% target is critical.
func availabilityBreach(target, observed float64) *breach {
	if target <= 0 || observed >= target {
		return nil
	}
	return &breach{
		alertType: models.AlertTypeLowAvailability,
		metric:    "availability",
		threshold: target,
		observed:  observed,
		critical:  100-observed >= criticalFactor*(100-target),
	}
}

func sloBreaches(targets models.SLOTargets, avg *models.DeploymentMetrics) []*breach {
	candidates := []*breach{
		availabilityBreach(targets.Availability, avg.Availability),
		upperBound(models.AlertTypeHighLatency, "latency p95 (ms)", targets.LatencyP95Ms, avg.LatencyP95Ms),
		upperBound(models.AlertTypeHighLatency, "latency p99 (ms)", targets.LatencyP99Ms, avg.LatencyP99Ms),
		upperBound(models.AlertTypeHighErrorRate, "error rate (%)", targets.ErrorRate, avg.ErrorRate),
	}
	return compact(candidates)
}

func driftBreaches(thresholds models.DriftThresholds, avg *models.DeploymentMetrics) []*breach {
	var candidates []*breach
	if avg.InputDrift != nil {
		candidates = append(candidates, upperBound(models.AlertTypeDriftDetected, "input drift", thresholds.Input, *avg.InputDrift))
	}
	if avg.OutputDrift != nil {
		candidates = append(candidates, upperBound(models.AlertTypeDriftDetected, "output drift", thresholds.Output, *avg.OutputDrift))
	}
	if avg.PerformanceDrift != nil {
		candidates = append(candidates, upperBound(models.AlertTypeDriftDetected, "performance drift", thresholds.Performance, *avg.PerformanceDrift))
	}
	return compact(candidates)
}

func compact(candidates []*breach) []*breach {
	out := candidates[:0]
	for _, b := range candidates {
		if b != nil {
			out = append(out, b)
		}
	}
	return out
}

// CheckSLOs evaluates the samples recorded since the previous SLO check
// against the deployment's SLO targets. Failures are logged, never returned.
func (m *Monitor) CheckSLOs(ctx context.Context, deploymentID string) {
	m.check(ctx, deploymentID, "slo", func(d *models.Deployment, avg *models.DeploymentMetrics) []*breach {
		return sloBreaches(d.SLOTargets, avg)
	})
}

// CheckDrift evaluates the samples recorded since the previous drift check
// against the deployment's drift thresholds. Failures are logged, never returned.
func (m *Monitor) CheckDrift(ctx context.Context, deploymentID string) {
	m.check(ctx, deploymentID, "drift", func(d *models.Deployment, avg *models.DeploymentMetrics) []*breach {
		return driftBreaches(d.DriftThresholds, avg)
	})
}

func (m *Monitor) check(ctx context.Context, deploymentID, kind string, evaluate func(*models.Deployment, *models.DeploymentMetrics) []*breach) {
	logger := m.logger.With(zap.String("deployment_id", deploymentID), zap.String("check", kind))

	deployment, err := m.deployments.GetDeployment(ctx, deploymentID)
	if err != nil {
		logger.Warn("check skipped: deployment unavailable", zap.Error(err))
		return
	}
	switch deployment.Status {
	case models.DeploymentStatusActive, models.DeploymentStatusRolledBack:
	default:
		logger.Debug("check skipped", zap.String("status", string(deployment.Status)))
		return
	}

	now := m.now()
	from := m.windowStart(deploymentID, kind, now)
	samples, err := m.deployments.QueryMetrics(ctx, deploymentID, from, now, "")
	if err != nil {
		logger.Warn("check skipped: metrics query failed", zap.Error(err))
		return
	}
	avg := service.AverageMetrics(samples)
	if avg == nil {
		return
	}
	m.advance(deploymentID, kind, avg.Timestamp)

	for _, b := range evaluate(deployment, avg) {
		if !m.raise(ctx, deployment, b, logger) {
			continue
		}
		m.countBreach(ctx, deployment, logger)
	}
}

// windowStart returns the lower bound of the next query: just after the
// newest evaluated sample, or MetricsWindow back on the first run.
func (m *Monitor) windowStart(deploymentID, kind string, now time.Time) time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()

	var last time.Time
	if c, ok := m.cursors[deploymentID]; ok {
		if kind == "slo" {
			last = c.slo
		} else {
			last = c.drift
		}
	}
	if last.IsZero() {
		return now.Add(-m.cfg.MetricsWindow)
	}
	return last.Add(time.Nanosecond)
}

func (m *Monitor) advance(deploymentID, kind string, newest time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.cursors[deploymentID]
	if !ok {
		c = &cursor{}
		m.cursors[deploymentID] = c
	}
	if kind == "slo" {
		c.slo = newest
	} else {
		c.drift = newest
	}
}

func (m *Monitor) raise(ctx context.Context, deployment *models.Deployment, b *breach, logger *zap.Logger) bool {
	severity := models.AlertSeverityWarning
	if b.critical {
		severity = models.AlertSeverityCritical
	}

	alert, err := m.deployments.RaiseAlert(ctx, &models.DeploymentAlert{
		DeploymentID: deployment.ID,
		Type:         b.alertType,
		Severity:     severity,
		Message:      fmt.Sprintf("%s %.4g breaches threshold %.4g", b.metric, b.observed, b.threshold),
		Threshold:    b.threshold,
		Value:        b.observed,
	})
	if err != nil {
		logger.Warn("failed to raise alert", zap.String("alert_type", string(b.alertType)), zap.Error(err))
		return false
	}
	m.metrics.RecordAlert(ctx, string(alert.Type), string(alert.Severity))
	return true
}

// countBreach records one breach and triggers an automatic rollback when
// AutoRollbackThreshold breaches land inside one AlertCooldown window.
func (m *Monitor) countBreach(ctx context.Context, deployment *models.Deployment, logger *zap.Logger) {
	now := m.now()

	m.mu.Lock()
	state, ok := m.breaches[deployment.ID]
	if !ok {
		state = &breachState{windowStart: now}
		m.breaches[deployment.ID] = state
	}
	if now.Sub(state.windowStart) > m.cfg.AlertCooldown {
		state.count = 0
		state.windowStart = now
	}
	state.count++
	count := state.count

	trigger := m.cfg.AutoRollbackEnabled &&
		count >= m.cfg.AutoRollbackThreshold &&
		!now.Before(state.suppressedUntil)
	if trigger {
		state.count = 0
		state.windowStart = now
		state.suppressedUntil = now.Add(m.cfg.AlertCooldown)
	}
	m.mu.Unlock()

	if !trigger {
		return
	}

	reason := fmt.Sprintf("Automatic rollback: %d SLO/drift breaches within %s", count, m.cfg.AlertCooldown)
	if _, err := m.deployments.RaiseAlert(ctx, &models.DeploymentAlert{
		DeploymentID: deployment.ID,
		Type:         models.AlertTypeSLOBreach,
		Severity:     models.AlertSeverityCritical,
		Message:      reason,
		Threshold:    float64(m.cfg.AutoRollbackThreshold),
		Value:        float64(count),
	}); err != nil {
		logger.Warn("failed to record automatic rollback alert", zap.Error(err))
	} else {
		m.metrics.RecordAlert(ctx, string(models.AlertTypeSLOBreach), string(models.AlertSeverityCritical))
	}

	if _, err := m.TriggerRollback(ctx, deployment.ID, reason, SystemInitiator); err != nil {
		logger.Error("automatic rollback failed", zap.Error(err))
	}
}

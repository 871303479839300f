package rollback

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// VerifyRollbackSuccess probes the deployment up to HealthCheckRetries times,
// HealthCheckInterval apart. An attempt succeeds when the replicas are
// healthy and report versionID. Probe errors count as failed attempts.
// There is no wait after the last attempt.
func (o *Orchestrator) VerifyRollbackSuccess(ctx context.Context, deploymentID, versionID string) bool {
	logger := o.logger.With(
		zap.String("deployment_id", deploymentID),
		zap.String("version_id", versionID),
	)

	for attempt := 1; attempt <= o.cfg.HealthCheckRetries; attempt++ {
		ok := o.verifyOnce(ctx, deploymentID, versionID, logger.With(zap.Int("attempt", attempt)))
		o.metrics.RecordVerificationAttempt(ctx, ok)
		if ok {
			return true
		}

		if attempt == o.cfg.HealthCheckRetries {
			break
		}
		if !sleep(ctx, o.cfg.HealthCheckInterval) {
			return false
		}
	}

	logger.Warn("rollback verification exhausted retries", zap.Int("retries", o.cfg.HealthCheckRetries))
	return false
}

func (o *Orchestrator) verifyOnce(ctx context.Context, deploymentID, versionID string, logger *zap.Logger) bool {
	healthy, err := o.substrate.Health.CheckHealth(ctx, deploymentID)
	if err != nil {
		logger.Debug("health probe failed", zap.Error(err))
		return false
	}
	if !healthy {
		logger.Debug("deployment unhealthy")
		return false
	}

	matches, err := o.substrate.Health.CheckDeployedVersion(ctx, deploymentID, versionID)
	if err != nil {
		logger.Debug("version probe failed", zap.Error(err))
		return false
	}
	if !matches {
		logger.Debug("deployment reports a different version")
	}
	return matches
}

// sleep waits for d or until ctx is done, reporting whether the full wait elapsed
func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

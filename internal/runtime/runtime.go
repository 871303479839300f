// Package runtime defines the substrate a rollback drives: the workload
// scheduler, the traffic router and the health probe.
package runtime

import (
	"context"

	"github.com/agentregistry-dev/modelregistry/pkg/models"
)

// Workload deploys a model version onto a deployment's replicas.
type Workload interface {
	DeployVersion(ctx context.Context, deploymentID, targetVersionID string, cfg ResolvedConfig) error
}

// Traffic routes a percentage of live traffic to a deployment.
type Traffic interface {
	ShiftTraffic(ctx context.Context, deploymentID string, percentage float64) error
}

// HealthProbe reports the health and running version of a deployment.
type HealthProbe interface {
	CheckHealth(ctx context.Context, deploymentID string) (bool, error)
	CheckDeployedVersion(ctx context.Context, deploymentID, expectedVersionID string) (bool, error)
}

// VersionRegistry resolves model versions.
type VersionRegistry interface {
	GetVersion(ctx context.Context, versionID string) (*models.ModelVersion, error)
}

// Substrate bundles the collaborators a rollback needs.
type Substrate struct {
	Workload Workload
	Traffic  Traffic
	Health   HealthProbe
}

// ResolvedConfig is the configuration handed to the workload scheduler:
// the deployment configuration merged with the target version.
type ResolvedConfig struct {
	models.DeploymentConfig

	VersionID   string `json:"versionId"`
	ModelID     string `json:"modelId"`
	Version     string `json:"version"`
	ArtifactURI string `json:"artifactUri,omitempty"`
	Rollback    bool   `json:"rollback"`
}

// ResolveRollbackConfig merges a deployment's configuration with the version it rolls back to.
func ResolveRollbackConfig(deployment *models.Deployment, version *models.ModelVersion) ResolvedConfig {
	return ResolvedConfig{
		DeploymentConfig: deployment.Config,
		VersionID:        version.ID,
		ModelID:          version.ModelID,
		Version:          version.Version,
		ArtifactURI:      version.ArtifactURI,
		Rollback:         true,
	}
}

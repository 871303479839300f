package models

import "time"

// DeploymentStatus is the lifecycle state of a deployment
type DeploymentStatus string

const (
	DeploymentStatusPending     DeploymentStatus = "pending"
	DeploymentStatusDeploying   DeploymentStatus = "deploying"
	DeploymentStatusActive      DeploymentStatus = "active"
	DeploymentStatusRollingBack DeploymentStatus = "rolling_back"
	DeploymentStatusRolledBack  DeploymentStatus = "rolled_back"
	DeploymentStatusFailed      DeploymentStatus = "failed"
	DeploymentStatusTerminated  DeploymentStatus = "terminated"
)

// deploymentTransitions is the legal-transition graph for deployment statuses.
var deploymentTransitions = map[DeploymentStatus][]DeploymentStatus{
	DeploymentStatusPending:     {DeploymentStatusDeploying},
	DeploymentStatusDeploying:   {DeploymentStatusActive},
	DeploymentStatusActive:      {DeploymentStatusRollingBack, DeploymentStatusFailed, DeploymentStatusTerminated},
	DeploymentStatusRollingBack: {DeploymentStatusRolledBack, DeploymentStatusFailed},
}

// IsValid reports whether s is a known deployment status
func (s DeploymentStatus) IsValid() bool {
	switch s {
	case DeploymentStatusPending, DeploymentStatusDeploying, DeploymentStatusActive,
		DeploymentStatusRollingBack, DeploymentStatusRolledBack, DeploymentStatusFailed,
		DeploymentStatusTerminated:
		return true
	}
	return false
}

// IsTerminal returns true for statuses that never transition further
func (s DeploymentStatus) IsTerminal() bool {
	return s == DeploymentStatusFailed || s == DeploymentStatusRolledBack || s == DeploymentStatusTerminated
}

// CanTransition reports whether from -> to is an edge of the deployment state machine.
// The store does not enforce it; callers that own status changes consult it.
func CanTransition(from, to DeploymentStatus) bool {
	for _, next := range deploymentTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Environment is the target environment of a deployment
type Environment string

const (
	EnvironmentStaging    Environment = "staging"
	EnvironmentProduction Environment = "production"
	EnvironmentCanary     Environment = "canary"
)

// IsValid reports whether e is a known environment
func (e Environment) IsValid() bool {
	return e == EnvironmentStaging || e == EnvironmentProduction || e == EnvironmentCanary
}

// Strategy is the rollout strategy of a deployment
type Strategy string

const (
	StrategyRolling   Strategy = "rolling"
	StrategyCanary    Strategy = "canary"
	StrategyBlueGreen Strategy = "blue_green"
)

// ShiftsTraffic returns true for strategies that drain and restore traffic around a redeploy
func (s Strategy) ShiftsTraffic() bool {
	return s == StrategyCanary || s == StrategyBlueGreen
}

// ResourceShape describes the compute requested per replica
type ResourceShape struct {
	CPU    string `json:"cpu" validate:"required" doc:"CPU request per replica" example:"500m"`
	Memory string `json:"memory" validate:"required" doc:"Memory request per replica" example:"1Gi"`
	GPU    int    `json:"gpu,omitempty" validate:"gte=0" doc:"GPUs per replica"`
}

// HealthCheckSpec describes how replicas are probed
type HealthCheckSpec struct {
	Path            string `json:"path" validate:"required" doc:"HTTP path of the health endpoint" example:"/healthz"`
	Port            int    `json:"port,omitempty" validate:"gte=0,lte=65535"`
	IntervalSeconds int    `json:"intervalSeconds,omitempty" validate:"gte=0"`
	TimeoutSeconds  int    `json:"timeoutSeconds,omitempty" validate:"gte=0"`
}

// RolloutPolicy tunes how a new version is rolled out
type RolloutPolicy struct {
	MaxSurge       int     `json:"maxSurge,omitempty" validate:"gte=0"`
	MaxUnavailable int     `json:"maxUnavailable,omitempty" validate:"gte=0"`
	CanaryPercent  float64 `json:"canaryPercent,omitempty" validate:"gte=0,lte=100"`
	StepPercent    float64 `json:"stepPercent,omitempty" validate:"gte=0,lte=100"`
}

// DeploymentConfig is the runtime configuration of a deployment
type DeploymentConfig struct {
	Replicas      int             `json:"replicas" validate:"required,gte=1" doc:"Number of replicas" example:"2"`
	Resources     ResourceShape   `json:"resources"`
	HealthCheck   HealthCheckSpec `json:"healthCheck"`
	RolloutPolicy RolloutPolicy   `json:"rolloutPolicy,omitempty"`
	Endpoint      string          `json:"endpoint,omitempty" validate:"omitempty,url" doc:"Base URL serving the deployment"`
}

// SLOTargets are the service-level objectives of a deployment.
// A zero value disables the corresponding check.
type SLOTargets struct {
	Availability float64 `json:"availability,omitempty" validate:"gte=0,lte=100" doc:"Minimum availability percentage" example:"99.9"`
	LatencyP95Ms float64 `json:"latencyP95Ms,omitempty" validate:"gte=0"`
	LatencyP99Ms float64 `json:"latencyP99Ms,omitempty" validate:"gte=0"`
	ErrorRate    float64 `json:"errorRate,omitempty" validate:"gte=0,lte=100" doc:"Maximum error rate percentage" example:"0.1"`
}

// DriftThresholds bound the drift scores of a deployment. Zero disables a check.
type DriftThresholds struct {
	Input       float64 `json:"input,omitempty" validate:"gte=0"`
	Output      float64 `json:"output,omitempty" validate:"gte=0"`
	Performance float64 `json:"performance,omitempty" validate:"gte=0"`
}

// Deployment is a tracked attempt to run one model version in one environment
type Deployment struct {
	ID              string           `json:"id"`
	VersionID       string           `json:"versionId"`
	Environment     Environment      `json:"environment"`
	Status          DeploymentStatus `json:"status"`
	Strategy        Strategy         `json:"strategy"`
	Config          DeploymentConfig `json:"config"`
	CurrentTraffic  *float64         `json:"currentTraffic,omitempty"`
	SLOTargets      SLOTargets       `json:"sloTargets"`
	DriftThresholds DriftThresholds  `json:"driftThresholds"`
	DeployedBy      string           `json:"deployedBy"`
	DeployedAt      time.Time        `json:"deployedAt"`
	UpdatedAt       time.Time        `json:"updatedAt"`
}

// DeploymentFilter defines filtering options for deployment queries
type DeploymentFilter struct {
	Environment   *Environment
	Status        *DeploymentStatus
	VersionID     *string
	DeployedBy    *string
	DeployedAfter *time.Time // inclusive
	DeployedUntil *time.Time // inclusive
	ExcludeID     *string
}

// TrafficSplit is a point-in-time traffic assignment for a deployment
type TrafficSplit struct {
	ID           string     `json:"id"`
	DeploymentID string     `json:"deploymentId"`
	Percentage   float64    `json:"percentage"`
	StartedAt    time.Time  `json:"startedAt"`
	CompletedAt  *time.Time `json:"completedAt,omitempty"`
}

// IsCurrent returns true while the split has not been completed
func (t *TrafficSplit) IsCurrent() bool {
	return t.CompletedAt == nil
}

// ModelVersion is the version registry's view of a deployable model version
type ModelVersion struct {
	ID          string    `json:"id"`
	ModelID     string    `json:"modelId"`
	Version     string    `json:"version"`
	ArtifactURI string    `json:"artifactUri,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
}

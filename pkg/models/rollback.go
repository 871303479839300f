package models

import "time"

// RollbackStatus is the state of a rollback operation
type RollbackStatus string

const (
	RollbackStatusPending    RollbackStatus = "pending"
	RollbackStatusInProgress RollbackStatus = "in_progress"
	RollbackStatusCompleted  RollbackStatus = "completed"
	RollbackStatusFailed     RollbackStatus = "failed"
)

// IsTerminal returns true if the rollback is completed or failed
func (s RollbackStatus) IsTerminal() bool {
	return s == RollbackStatusCompleted || s == RollbackStatusFailed
}

// RollbackOperation is one attempt to revert a deployment to a known-good version
type RollbackOperation struct {
	ID              string         `json:"id"`
	DeploymentID    string         `json:"deploymentId"`
	TargetVersionID string         `json:"targetVersionId"`
	Reason          string         `json:"reason"`
	Status          RollbackStatus `json:"status"`
	InitiatedBy     string         `json:"initiatedBy"`
	CreatedAt       time.Time      `json:"createdAt"`
	UpdatedAt       time.Time      `json:"updatedAt"`
	CompletedAt     *time.Time     `json:"completedAt,omitempty"`
	ErrorMessage    *string        `json:"errorMessage,omitempty"`
}

package models

import "time"

// DeploymentMetrics is one append-only metrics sample of a deployment
type DeploymentMetrics struct {
	ID               string    `json:"id"`
	DeploymentID     string    `json:"deploymentId" validate:"required"`
	Timestamp        time.Time `json:"timestamp"`
	Availability     float64   `json:"availability" validate:"gte=0,lte=100"`
	LatencyP95Ms     float64   `json:"latencyP95Ms" validate:"gte=0"`
	LatencyP99Ms     float64   `json:"latencyP99Ms" validate:"gte=0"`
	ErrorRate        float64   `json:"errorRate" validate:"gte=0,lte=100"`
	InputDrift       *float64  `json:"inputDrift,omitempty" validate:"omitempty,gte=0"`
	OutputDrift      *float64  `json:"outputDrift,omitempty" validate:"omitempty,gte=0"`
	PerformanceDrift *float64  `json:"performanceDrift,omitempty" validate:"omitempty,gte=0"`
	RequestCount     int64     `json:"requestCount" validate:"gte=0"`
}

// Granularity is the bucket width used when aggregating metrics
type Granularity string

const (
	GranularityMinute Granularity = "minute"
	GranularityHour   Granularity = "hour"
	GranularityDay    Granularity = "day"
)

// Duration returns the bucket width, or 0 for an unknown granularity
func (g Granularity) Duration() time.Duration {
	switch g {
	case GranularityMinute:
		return time.Minute
	case GranularityHour:
		return time.Hour
	case GranularityDay:
		return 24 * time.Hour
	}
	return 0
}

// AlertType classifies a deployment alert
type AlertType string

const (
	AlertTypeSLOBreach       AlertType = "slo_breach"
	AlertTypeDriftDetected   AlertType = "drift_detected"
	AlertTypeHighErrorRate   AlertType = "high_error_rate"
	AlertTypeHighLatency     AlertType = "high_latency"
	AlertTypeLowAvailability AlertType = "low_availability"
)

// AlertSeverity is the severity of a deployment alert
type AlertSeverity string

const (
	AlertSeverityInfo     AlertSeverity = "info"
	AlertSeverityWarning  AlertSeverity = "warning"
	AlertSeverityCritical AlertSeverity = "critical"
)

// DeploymentAlert is raised when a metrics sample breaches a threshold
type DeploymentAlert struct {
	ID           string        `json:"id"`
	DeploymentID string        `json:"deploymentId"`
	Type         AlertType     `json:"type"`
	Severity     AlertSeverity `json:"severity"`
	Message      string        `json:"message"`
	Threshold    float64       `json:"threshold"`
	Value        float64       `json:"value"`
	TriggeredAt  time.Time     `json:"triggeredAt"`
	ResolvedAt   *time.Time    `json:"resolvedAt,omitempty"`
	Acknowledged bool          `json:"acknowledged"`
}

// Package telemetry wires OpenTelemetry metrics to a Prometheus endpoint.
package telemetry

import (
	"context"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/runtime"
	"go.opentelemetry.io/otel/attribute"
	promexporter "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
)

const (
	// Namespace prefixes every instrument name
	Namespace   = "model_registry"
	serviceName = "model-registry"
)

// ShutdownFunc flushes and stops the meter provider
type ShutdownFunc func(ctx context.Context) error

// Metrics holds the instruments recorded by the API and the deployment core.
// Recording helpers are safe on a nil receiver.
type Metrics struct {
	// HTTP
	Requests        metric.Int64Counter
	ErrorCount      metric.Int64Counter
	RequestDuration metric.Float64Histogram

	// Rollbacks
	RollbacksStarted     metric.Int64Counter
	RollbacksFinished    metric.Int64Counter
	VerificationAttempts metric.Int64Counter

	// Monitoring
	AlertsRaised  metric.Int64Counter
	ActiveWatches metric.Int64UpDownCounter

	prometheusHandler http.Handler
}

// InitMetrics creates a meter provider exporting to a dedicated Prometheus
// registry, starts Go runtime instrumentation and builds the instruments.
func InitMetrics(version string) (ShutdownFunc, *Metrics, error) {
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	exporter, err := promexporter.New(promexporter.WithRegisterer(registry))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create prometheus exporter: %w", err)
	}

	res := resource.NewSchemaless(
		attribute.String("service.name", serviceName),
		attribute.String("service.version", version),
	)
	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(exporter),
	)

	if err := runtime.Start(runtime.WithMeterProvider(mp)); err != nil {
		_ = mp.Shutdown(context.Background())
		return nil, nil, fmt.Errorf("failed to start runtime instrumentation: %w", err)
	}

	metrics, err := newMetrics(mp.Meter(Namespace))
	if err != nil {
		_ = mp.Shutdown(context.Background())
		return nil, nil, err
	}
	metrics.prometheusHandler = promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry})

	return mp.Shutdown, metrics, nil
}

func newMetrics(meter metric.Meter) (*Metrics, error) {
	var (
		m   Metrics
		err error
	)

	if m.Requests, err = meter.Int64Counter(
		Namespace+"_http_requests_total",
		metric.WithDescription("Total number of HTTP requests"),
	); err != nil {
		return nil, fmt.Errorf("failed to create requests counter: %w", err)
	}
	if m.ErrorCount, err = meter.Int64Counter(
		Namespace+"_http_errors_total",
		metric.WithDescription("Total number of HTTP responses with status >= 400"),
	); err != nil {
		return nil, fmt.Errorf("failed to create error counter: %w", err)
	}
	if m.RequestDuration, err = meter.Float64Histogram(
		Namespace+"_http_request_duration_seconds",
		metric.WithDescription("HTTP request duration"),
		metric.WithUnit("s"),
	); err != nil {
		return nil, fmt.Errorf("failed to create duration histogram: %w", err)
	}
	if m.RollbacksStarted, err = meter.Int64Counter(
		Namespace+"_rollbacks_started_total",
		metric.WithDescription("Rollback operations accepted"),
	); err != nil {
		return nil, fmt.Errorf("failed to create rollbacks started counter: %w", err)
	}
	if m.RollbacksFinished, err = meter.Int64Counter(
		Namespace+"_rollbacks_finished_total",
		metric.WithDescription("Rollback operations that reached a terminal status"),
	); err != nil {
		return nil, fmt.Errorf("failed to create rollbacks finished counter: %w", err)
	}
	if m.VerificationAttempts, err = meter.Int64Counter(
		Namespace+"_rollback_verification_attempts_total",
		metric.WithDescription("Post-rollback verification attempts"),
	); err != nil {
		return nil, fmt.Errorf("failed to create verification counter: %w", err)
	}
	if m.AlertsRaised, err = meter.Int64Counter(
		Namespace+"_alerts_raised_total",
		metric.WithDescription("Deployment alerts raised by the monitor"),
	); err != nil {
		return nil, fmt.Errorf("failed to create alerts counter: %w", err)
	}
	if m.ActiveWatches, err = meter.Int64UpDownCounter(
		Namespace+"_active_watches",
		metric.WithDescription("Deployments currently watched by the monitor"),
	); err != nil {
		return nil, fmt.Errorf("failed to create watches gauge: %w", err)
	}

	return &m, nil
}

// PrometheusHandler serves the metrics registry in the Prometheus text format
func (m *Metrics) PrometheusHandler() http.Handler {
	if m == nil || m.prometheusHandler == nil {
		return http.NotFoundHandler()
	}
	return m.prometheusHandler
}

// RecordRollbackStarted counts an accepted rollback
func (m *Metrics) RecordRollbackStarted(ctx context.Context, initiator string) {
	if m == nil {
		return
	}
	m.RollbacksStarted.Add(ctx, 1, metric.WithAttributes(attribute.String("initiator", initiator)))
}

// RecordRollbackFinished counts a rollback reaching outcome ("completed" or "failed")
func (m *Metrics) RecordRollbackFinished(ctx context.Context, outcome string) {
	if m == nil {
		return
	}
	m.RollbacksFinished.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

// RecordVerificationAttempt counts one verification attempt
func (m *Metrics) RecordVerificationAttempt(ctx context.Context, success bool) {
	if m == nil {
		return
	}
	m.VerificationAttempts.Add(ctx, 1, metric.WithAttributes(attribute.Bool("success", success)))
}

// RecordAlert counts a raised alert
func (m *Metrics) RecordAlert(ctx context.Context, alertType, severity string) {
	if m == nil {
		return
	}
	m.AlertsRaised.Add(ctx, 1, metric.WithAttributes(
		attribute.String("type", alertType),
		attribute.String("severity", severity),
	))
}

// WatchStarted increments the active watches gauge
func (m *Metrics) WatchStarted(ctx context.Context) {
	if m == nil {
		return
	}
	m.ActiveWatches.Add(ctx, 1)
}

// WatchStopped decrements the active watches gauge
func (m *Metrics) WatchStopped(ctx context.Context) {
	if m == nil {
		return
	}
	m.ActiveWatches.Add(ctx, -1)
}

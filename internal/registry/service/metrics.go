package service

import (
	"time"

	"github.com/agentregistry-dev/modelregistry/pkg/models"
)

type driftSum struct {
	sum   float64
	count int
}

func (d *driftSum) add(v *float64) {
	if v == nil {
		return
	}
	d.sum += *v
	d.count++
}

func (d *driftSum) mean() *float64 {
	if d.count == 0 {
		return nil
	}
	m := d.sum / float64(d.count)
	return &m
}

type metricsBucket struct {
	count        int
	availability float64
	latencyP95   float64
	latencyP99   float64
	errorRate    float64
	requests     int64
	input        driftSum
	output       driftSum
	performance  driftSum
}

func (b *metricsBucket) add(sample *models.DeploymentMetrics) {
	b.count++
	b.availability += sample.Availability
	b.latencyP95 += sample.LatencyP95Ms
	b.latencyP99 += sample.LatencyP99Ms
	b.errorRate += sample.ErrorRate
	b.requests += sample.RequestCount
	b.input.add(sample.InputDrift)
	b.output.add(sample.OutputDrift)
	b.performance.add(sample.PerformanceDrift)
}

// mean returns the averaged sample; request counts are summed.
// Drift scores are averaged over the samples that carry them.
func (b *metricsBucket) mean(deploymentID string, ts time.Time) *models.DeploymentMetrics {
	n := float64(b.count)
	return &models.DeploymentMetrics{
		DeploymentID:     deploymentID,
		Timestamp:        ts,
		Availability:     b.availability / n,
		LatencyP95Ms:     b.latencyP95 / n,
		LatencyP99Ms:     b.latencyP99 / n,
		ErrorRate:        b.errorRate / n,
		InputDrift:       b.input.mean(),
		OutputDrift:      b.output.mean(),
		PerformanceDrift: b.performance.mean(),
		RequestCount:     b.requests,
	}
}

// bucketMetrics folds oldest-first samples into fixed-width buckets aligned to UTC
func bucketMetrics(samples []*models.DeploymentMetrics, width time.Duration) []*models.DeploymentMetrics {
	var starts []time.Time
	buckets := make(map[time.Time]*metricsBucket)

	for _, sample := range samples {
		start := sample.Timestamp.UTC().Truncate(width)
		b, ok := buckets[start]
		if !ok {
			b = &metricsBucket{}
			buckets[start] = b
			starts = append(starts, start)
		}
		b.add(sample)
	}

	out := make([]*models.DeploymentMetrics, 0, len(starts))
	for _, start := range starts {
		out = append(out, buckets[start].mean(samples[0].DeploymentID, start))
	}
	return out
}

// AverageMetrics collapses samples into one mean sample stamped with the
// newest sample's time. It returns nil for an empty input.
func AverageMetrics(samples []*models.DeploymentMetrics) *models.DeploymentMetrics {
	if len(samples) == 0 {
		return nil
	}
	var b metricsBucket
	latest := samples[0].Timestamp
	for _, sample := range samples {
		b.add(sample)
		if sample.Timestamp.After(latest) {
			latest = sample.Timestamp
		}
	}
	return b.mean(samples[0].DeploymentID, latest)
}

// Copyright © 2025 jackelyj <dreamerlyj@gmail.com>
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in
// all copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
// THE SOFTWARE.
//

package engine

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/innovationmech/atelier/pkg/workflow"
)

// MetricsCollector receives engine measurements.
type MetricsCollector interface {
	RecordInstanceStarted(workflowName string)
	RecordInstanceFinished(workflowName string, outcome workflow.OutcomeKind, duration time.Duration)
	RecordReplay(workflowName string)
	RecordStepAttempt(workflowName, step string, success bool, duration time.Duration)
	RecordStepRetry(workflowName, step string)
	RecordCompensation(workflowName, step string, success bool)
}

type noOpMetricsCollector struct{}

func (noOpMetricsCollector) RecordInstanceStarted(string)                                      {}
func (noOpMetricsCollector) RecordInstanceFinished(string, workflow.OutcomeKind, time.Duration) {}
func (noOpMetricsCollector) RecordReplay(string)                                               {}
func (noOpMetricsCollector) RecordStepAttempt(string, string, bool, time.Duration)             {}
func (noOpMetricsCollector) RecordStepRetry(string, string)                                    {}
func (noOpMetricsCollector) RecordCompensation(string, string, bool)                           {}

// PrometheusMetricsConfig configures the Prometheus collector.
type PrometheusMetricsConfig struct {
	// Namespace is the metric namespace (default: "atelier").
	Namespace string

	// Subsystem is the metric subsystem (default: "workflow").
	Subsystem string

	// Registerer receives the collectors. If nil, a new registry is created.
	Registerer prometheus.Registerer

	// DurationBuckets are the histogram buckets in seconds.
	DurationBuckets []float64
}

// DefaultPrometheusMetricsConfig returns the default collector configuration.
func DefaultPrometheusMetricsConfig() *PrometheusMetricsConfig {
	return &PrometheusMetricsConfig{
		Namespace:       "atelier",
		Subsystem:       "workflow",
		DurationBuckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60},
	}
}

// PrometheusMetricsCollector implements MetricsCollector with Prometheus metrics.
type PrometheusMetricsCollector struct {
	instancesStarted  *prometheus.CounterVec
	instancesFinished *prometheus.CounterVec
	instanceDuration  *prometheus.HistogramVec
	replays           *prometheus.CounterVec
	stepAttempts      *prometheus.CounterVec
	stepRetries       *prometheus.CounterVec
	stepDuration      *prometheus.HistogramVec
	compensations     *prometheus.CounterVec
}

// NewPrometheusMetricsCollector creates and registers the engine metrics.
func NewPrometheusMetricsCollector(config *PrometheusMetricsConfig) (*PrometheusMetricsCollector, error) {
	if config == nil {
		config = DefaultPrometheusMetricsConfig()
	}
	if config.Namespace == "" {
		config.Namespace = "atelier"
	}
	if config.Subsystem == "" {
		config.Subsystem = "workflow"
	}
	if config.DurationBuckets == nil {
		config.DurationBuckets = DefaultPrometheusMetricsConfig().DurationBuckets
	}
	if config.Registerer == nil {
		config.Registerer = prometheus.NewRegistry()
	}

	counter := func(name, help string, labels ...string) *prometheus.CounterVec {
		return prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: config.Namespace,
			Subsystem: config.Subsystem,
			Name:      name,
			Help:      help,
		}, labels)
	}
	histogram := func(name, help string, labels ...string) *prometheus.HistogramVec {
		return prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: config.Namespace,
			Subsystem: config.Subsystem,
			Name:      name,
			Help:      help,
			Buckets:   config.DurationBuckets,
		}, labels)
	}

	c := &PrometheusMetricsCollector{
		instancesStarted:  counter("instances_started_total", "Total number of workflow instances started", "workflow"),
		instancesFinished: counter("instances_finished_total", "Total number of workflow instances finished by outcome", "workflow", "outcome"),
		instanceDuration:  histogram("instance_duration_seconds", "Duration of workflow instances in seconds", "workflow", "outcome"),
		replays:           counter("replays_total", "Total number of submissions answered from a stored outcome", "workflow"),
		stepAttempts:      counter("step_attempts_total", "Total number of step attempts", "workflow", "step", "success"),
		stepRetries:       counter("step_retries_total", "Total number of step retries", "workflow", "step"),
		stepDuration:      histogram("step_duration_seconds", "Duration of step attempts in seconds", "workflow", "step"),
		compensations:     counter("compensations_total", "Total number of compensations executed", "workflow", "step", "success"),
	}

	for _, collector := range []prometheus.Collector{
		c.instancesStarted, c.instancesFinished, c.instanceDuration, c.replays,
		c.stepAttempts, c.stepRetries, c.stepDuration, c.compensations,
	} {
		if err := config.Registerer.Register(collector); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// RecordInstanceStarted implements MetricsCollector.
func (c *PrometheusMetricsCollector) RecordInstanceStarted(workflowName string) {
	c.instancesStarted.WithLabelValues(workflowName).Inc()
}

// RecordInstanceFinished implements MetricsCollector.
func (c *PrometheusMetricsCollector) RecordInstanceFinished(workflowName string, outcome workflow.OutcomeKind, duration time.Duration) {
	c.instancesFinished.WithLabelValues(workflowName, string(outcome)).Inc()
	c.instanceDuration.WithLabelValues(workflowName, string(outcome)).Observe(duration.Seconds())
}

// RecordReplay implements MetricsCollector.
func (c *PrometheusMetricsCollector) RecordReplay(workflowName string) {
	c.replays.WithLabelValues(workflowName).Inc()
}

// RecordStepAttempt implements MetricsCollector.
func (c *PrometheusMetricsCollector) RecordStepAttempt(workflowName, step string, success bool, duration time.Duration) {
	c.stepAttempts.WithLabelValues(workflowName, step, strconv.FormatBool(success)).Inc()
	c.stepDuration.WithLabelValues(workflowName, step).Observe(duration.Seconds())
}

// RecordStepRetry implements MetricsCollector.
func (c *PrometheusMetricsCollector) RecordStepRetry(workflowName, step string) {
	c.stepRetries.WithLabelValues(workflowName, step).Inc()
}

// RecordCompensation implements MetricsCollector.
func (c *PrometheusMetricsCollector) RecordCompensation(workflowName, step string, success bool) {
	c.compensations.WithLabelValues(workflowName, step, strconv.FormatBool(success)).Inc()
}

// Package metrics exposes engine counters and histograms to prometheus.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "integra"

// Metrics groups the engine collectors. A nil *Metrics records nothing.
type Metrics struct {
	stepsTotal          *prometheus.CounterVec
	stepDuration        *prometheus.HistogramVec
	transactionsTotal   *prometheus.CounterVec
	taskRunsTotal       *prometheus.CounterVec
	taskDuration        *prometheus.HistogramVec
	runningIntegrations prometheus.Gauge
}

// New registers the engine collectors on reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		stepsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "steps_total",
				Help:      "Total number of executed steps",
			},
			[]string{"integration_id", "step_type", "result"},
		),
		stepDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "step_duration_seconds",
				Help:      "Step execution duration distribution",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"step_type"},
		),
		transactionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "transactions_total",
				Help:      "Total number of finished transactions",
			},
			[]string{"integration_id", "status"},
		),
		taskRunsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "task_runs_total",
				Help:      "Total number of scheduled task firings by outcome",
			},
			[]string{"clustered", "outcome"},
		),
		taskDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "task_duration_seconds",
				Help:      "Scheduled task duration distribution, jitter included",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"clustered"},
		),
		runningIntegrations: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "running_integrations",
				Help:      "Number of integrations currently started",
			},
		),
	}
}

func (m *Metrics) ObserveStep(integrationID, stepType string, failed bool, elapsed time.Duration) {
	if m == nil {
		return
	}

	m.stepsTotal.WithLabelValues(integrationID, stepType, result(failed)).Inc()
	m.stepDuration.WithLabelValues(stepType).Observe(elapsed.Seconds())
}

func (m *Metrics) ObserveTransaction(integrationID string, failed bool) {
	if m == nil {
		return
	}

	m.transactionsTotal.WithLabelValues(integrationID, result(failed)).Inc()
}

func (m *Metrics) ObserveTask(clustered bool, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}

	label := "false"
	if clustered {
		label = "true"
	}

	m.taskRunsTotal.WithLabelValues(label, outcome).Inc()
	m.taskDuration.WithLabelValues(label).Observe(elapsed.Seconds())
}

// IntegrationStarted and IntegrationStopped track the running gauge.
func (m *Metrics) IntegrationStarted() {
	if m != nil {
		m.runningIntegrations.Inc()
	}
}

func (m *Metrics) IntegrationStopped() {
	if m != nil {
		m.runningIntegrations.Dec()
	}
}

func result(failed bool) string {
	if failed {
		return "failed"
	}

	return "success"
}

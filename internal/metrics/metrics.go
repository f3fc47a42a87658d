// Package metrics provides Prometheus instrumentation for flow steps and
// the outbound protocol calls they make.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	// Namespace is the Prometheus namespace for all orchestrator metrics
	Namespace = "o2b2"

	LabelStep   = "step"
	LabelCall   = "call"
	LabelStatus = "status"

	StatusSuccess = "success"
	StatusFailure = "failure"
)

var (
	// StepsTotal counts step invocations by outcome.
	StepsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "steps_total",
			Help:      "Total number of flow steps by step name and outcome",
		},
		[]string{LabelStep, LabelStatus},
	)

	// StepDuration tracks the wall time of a whole step, outbound calls included.
	StepDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "step_duration_seconds",
			Help:      "Duration of flow steps in seconds",
			Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		},
		[]string{LabelStep},
	)

	// CallsTotal counts outbound protocol calls by HTTP status code ("error" for transport failures).
	CallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "outbound_calls_total",
			Help:      "Total number of outbound protocol calls by call and status code",
		},
		[]string{LabelCall, LabelStatus},
	)
)

// RecordStep records the outcome and duration of a step.
func RecordStep(step string, success bool, seconds float64) {
	status := StatusSuccess
	if !success {
		status = StatusFailure
	}
	StepsTotal.WithLabelValues(step, status).Inc()
	StepDuration.WithLabelValues(step).Observe(seconds)
}

// RecordCall records one outbound call.
func RecordCall(call, status string) {
	CallsTotal.WithLabelValues(call, status).Inc()
}

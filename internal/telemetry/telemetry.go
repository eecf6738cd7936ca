// Package telemetry wires the control core's step/sweep lifecycle into
// Prometheus counters/histograms and OpenTelemetry spans. Neither
// collaborator is required for the rig to run — a nil *Metrics or an
// unconfigured TracerProvider is a safe, inert default, treating
// observability as an optional layer rather than a load-bearing
// dependency of the core logic.
package telemetry

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

// Metrics bundles the Prometheus instruments the scheduler and sweep
// controller report against.
type Metrics struct {
	StepsTotal        *prometheus.CounterVec
	StepDurationSecs  *prometheus.HistogramVec
	HeaterCyclesTotal prometheus.Counter
	CyclesTotal       *prometheus.CounterVec
	ActiveExperiments prometheus.Gauge
}

// NewMetrics constructs and registers every instrument against reg. Pass
// prometheus.DefaultRegisterer for the process-wide default, or a fresh
// prometheus.NewRegistry() in tests to avoid collisions.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		StepsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "enosectl",
			Name:      "steps_total",
			Help:      "Primitive steps dispatched, by action and outcome.",
		}, []string{"action", "result"}),
		StepDurationSecs: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "enosectl",
			Name:      "step_duration_seconds",
			Help:      "Step execution duration by action.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"action"}),
		HeaterCyclesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "enosectl",
			Name:      "heater_cycles_observed_total",
			Help:      "Heater cycles observed across all acquire/wait steps.",
		}),
		CyclesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "enosectl",
			Name:      "sweep_cycles_total",
			Help:      "Sweep cycles run, by outcome.",
		}, []string{"result"}),
		ActiveExperiments: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "enosectl",
			Name:      "active_experiments",
			Help:      "Number of experiments currently being scheduled.",
		}),
	}
	reg.MustRegister(m.StepsTotal, m.StepDurationSecs, m.HeaterCyclesTotal, m.CyclesTotal, m.ActiveExperiments)
	return m
}

// ObserveStep records one dispatched step's outcome.
func (m *Metrics) ObserveStep(action string, success bool, d time.Duration) {
	if m == nil {
		return
	}
	result := "success"
	if !success {
		result = "failure"
	}
	m.StepsTotal.WithLabelValues(action, result).Inc()
	m.StepDurationSecs.WithLabelValues(action).Observe(d.Seconds())
}

// ObserveCycle records one sweep cycle's outcome.
func (m *Metrics) ObserveCycle(success bool) {
	if m == nil {
		return
	}
	result := "success"
	if !success {
		result = "failure"
	}
	m.CyclesTotal.WithLabelValues(result).Inc()
}

// NewTracerProvider constructs an SDK TracerProvider tagged with
// serviceName and installs it as the global provider. No span exporter
// is attached by default — callers that want spans shipped somewhere
// attach one with sdktrace.WithBatcher before this returns, or wrap this
// constructor; as shipped, the core still exercises the full Start/End
// span API so request-scoped context propagation (e.g. step path,
// program name) is in place the moment an exporter is added.
func NewTracerProvider(serviceName string, opts ...sdktrace.TracerProviderOption) *sdktrace.TracerProvider {
	res := resource.NewSchemaless(attribute.String("service.name", serviceName))
	allOpts := append([]sdktrace.TracerProviderOption{sdktrace.WithResource(res)}, opts...)
	tp := sdktrace.NewTracerProvider(allOpts...)
	otel.SetTracerProvider(tp)
	return tp
}

// StepSpan starts a span for one dispatched step, tagging it with the
// structured path and action tag.
func StepSpan(ctx context.Context, tracer trace.Tracer, path, action string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "enosectl.step", trace.WithAttributes(
		attribute.String("step.path", path),
		attribute.String("step.action", action),
	))
}

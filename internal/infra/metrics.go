package infra

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/eliteGoblin/hawkeye/internal/domain"
)

const metricsNamespace = "hawkeye"

// PrometheusMetrics implements domain.MetricsRecorder on a private registry.
// When a textfile path is set, Flush writes the registry there in the
// node-exporter textfile format.
type PrometheusMetrics struct {
	registry *prometheus.Registry
	textfile string

	syncs        *prometheus.CounterVec
	terminations *prometheus.CounterVec
	messages     *prometheus.CounterVec
	ticks        prometheus.Counter
	lastTick     prometheus.Gauge
}

// NewPrometheusMetrics creates the agent metrics. textfile may be empty.
func NewPrometheusMetrics(textfile string) *PrometheusMetrics {
	m := &PrometheusMetrics{
		registry: prometheus.NewRegistry(),
		textfile: textfile,
		syncs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "sync_total",
			Help:      "Artifact synchronizations by artifact and outcome.",
		}, []string{"artifact", "outcome"}),
		terminations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "terminations_total",
			Help:      "Process termination requests by outcome.",
		}, []string{"outcome"}),
		messages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "messages_total",
			Help:      "Message dispatcher decisions by outcome.",
		}, []string{"outcome"}),
		ticks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "ticks_total",
			Help:      "Control loop iterations.",
		}),
		lastTick: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "last_tick_timestamp_seconds",
			Help:      "Unix time of the last completed control loop iteration.",
		}),
	}
	m.registry.MustRegister(m.syncs, m.terminations, m.messages, m.ticks, m.lastTick)
	return m
}

// Registry returns the underlying Prometheus registry.
func (m *PrometheusMetrics) Registry() *prometheus.Registry {
	return m.registry
}

// ObserveSync counts one synchronization.
func (m *PrometheusMetrics) ObserveSync(result domain.SyncResult) {
	m.syncs.WithLabelValues(string(result.Kind), string(result.Outcome)).Inc()
}

// ObserveTermination counts one termination request.
func (m *PrometheusMetrics) ObserveTermination(outcome domain.TerminateOutcome) {
	m.terminations.WithLabelValues(string(outcome)).Inc()
}

// ObserveMessage counts one dispatcher decision.
func (m *PrometheusMetrics) ObserveMessage(outcome domain.DispatchOutcome) {
	m.messages.WithLabelValues(string(outcome)).Inc()
}

// ObserveTick records a completed loop iteration.
func (m *PrometheusMetrics) ObserveTick(at time.Time) {
	m.ticks.Inc()
	m.lastTick.Set(float64(at.Unix()))
}

// Flush writes the textfile if one is configured.
func (m *PrometheusMetrics) Flush() error {
	if m.textfile == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(m.textfile), 0755); err != nil {
		return fmt.Errorf("create metrics directory: %w", err)
	}
	if err := prometheus.WriteToTextfile(m.textfile, m.registry); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}

// NopMetrics discards observations.
type NopMetrics struct{}

func (NopMetrics) ObserveSync(domain.SyncResult)              {}
func (NopMetrics) ObserveTermination(domain.TerminateOutcome) {}
func (NopMetrics) ObserveMessage(domain.DispatchOutcome)      {}
func (NopMetrics) ObserveTick(time.Time)                      {}
func (NopMetrics) Flush() error                               { return nil }

var (
	_ domain.MetricsRecorder = (*PrometheusMetrics)(nil)
	_ domain.MetricsRecorder = NopMetrics{}
)

// Package metrics provides Prometheus metrics for the FacePulse service.
package metrics

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

// ErrNotInitialized is returned by Use when no manager is given.
var ErrNotInitialized = errors.New("metrics manager not initialized")

// Option configures a Manager.
type Option func(*Manager)

// WithNamespace prefixes every collector name. Defaults to "facepulse".
func WithNamespace(namespace string) Option {
	return func(m *Manager) {
		if namespace != "" {
			m.namespace = namespace
		}
	}
}

// WithSubsystem inserts a subsystem between namespace and collector name.
func WithSubsystem(subsystem string) Option {
	return func(m *Manager) {
		if subsystem != "" {
			m.subsystem = subsystem
		}
	}
}

// WithHistogramBuckets replaces the millisecond buckets shared by the
// analysis, upload, datastore, job and HTTP latency histograms.
func WithHistogramBuckets(buckets []float64) Option {
	return func(m *Manager) {
		if len(buckets) > 0 {
			m.histogramBuckets = buckets
		}
	}
}

// WithMetricsEnabled turns observation on or off. Collectors stay registered
// so /healthz keeps exposing them.
func WithMetricsEnabled(enabled bool) Option {
	return func(m *Manager) {
		m.enabled = enabled
	}
}

// WithConstLabels attaches labels such as env or instance to every collector.
func WithConstLabels(labels map[string]string) Option {
	return func(m *Manager) {
		if len(labels) > 0 {
			m.constLabels = prometheus.Labels(labels)
		}
	}
}

// WithPrometheusRegistry registers the collectors on registry instead of the
// package's own registry.
func WithPrometheusRegistry(registry prometheus.Registerer) Option {
	return func(m *Manager) {
		if registry != nil {
			m.registry = registry
		}
	}
}

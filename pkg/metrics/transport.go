package metrics

import (
	"github.com/marmos91/s3surge/pkg/transport"
)

// NewTransportMetrics creates a Prometheus-backed transport.Metrics instance.
//
// Returns nil if metrics are not enabled (InitRegistry not called). A nil
// sink disables reporting with zero overhead, so callers pass the result to
// transport.Options.Metrics unconditionally.
//
// The prometheus implementation package must be blank-imported for the
// constructor to be wired:
//
//	import _ "github.com/marmos91/s3surge/pkg/metrics/prometheus"
func NewTransportMetrics() transport.Metrics {
	if !IsEnabled() || newPrometheusTransportMetrics == nil {
		return nil
	}
	return newPrometheusTransportMetrics()
}

// newPrometheusTransportMetrics is implemented in pkg/metrics/prometheus.
// The indirection avoids an import cycle while keeping the API clean.
var newPrometheusTransportMetrics func() transport.Metrics

// RegisterTransportMetricsConstructor registers the Prometheus transport
// metrics constructor. Called by pkg/metrics/prometheus during package
// initialization.
func RegisterTransportMetricsConstructor(constructor func() transport.Metrics) {
	newPrometheusTransportMetrics = constructor
}

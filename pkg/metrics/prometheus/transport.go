// Package prometheus provides the Prometheus implementations behind the
// metrics package's constructors. Blank-import it from the binary entrypoint
// to wire them up.
package prometheus

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/marmos91/s3surge/pkg/metrics"
	"github.com/marmos91/s3surge/pkg/transport"
)

func init() {
	metrics.RegisterTransportMetricsConstructor(NewTransportMetrics)
}

// transportMetrics is the Prometheus implementation of transport.Metrics.
type transportMetrics struct {
	addressCount   prometheus.Gauge
	transfersTotal *prometheus.CounterVec
	bytesUp        prometheus.Counter
	bytesDown      prometheus.Counter
	openRequests   prometheus.Gauge
	partRetries    prometheus.Counter
}

// NewTransportMetrics creates a Prometheus-backed transport.Metrics instance.
//
// Returns nil if metrics are not enabled (InitRegistry not called).
func NewTransportMetrics() transport.Metrics {
	if !metrics.IsEnabled() {
		return nil
	}

	reg := metrics.GetRegistry()

	return &transportMetrics{
		addressCount: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Name: "s3surge_endpoint_address_count",
				Help: "Distinct resolved addresses cached for the endpoint, sampled on every DNS warm-up poll",
			},
		),
		transfersTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "s3surge_part_transfers_total",
				Help: "Total part-level transfer attempts by outcome",
			},
			[]string{"status"},
		),
		bytesUp: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "s3surge_bytes_up_total",
				Help: "Total bytes uploaded to the storage service",
			},
		),
		bytesDown: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "s3surge_bytes_down_total",
				Help: "Total bytes downloaded from the storage service",
			},
		),
		openRequests: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Name: "s3surge_open_requests",
				Help: "Requests currently in flight",
			},
		),
		partRetries: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "s3surge_part_retries_total",
				Help: "Total parts re-admitted for retry after a failed attempt",
			},
		),
	}
}

func (m *transportMetrics) AddAddressCount(count int) {
	m.addressCount.Set(float64(count))
}

func (m *transportMetrics) AddTransferStatus(success bool) {
	status := "success"
	if !success {
		status = "failure"
	}
	m.transfersTotal.WithLabelValues(status).Inc()
}

func (m *transportMetrics) AddBytesUp(n int64) {
	if n > 0 {
		m.bytesUp.Add(float64(n))
	}
}

func (m *transportMetrics) AddBytesDown(n int64) {
	if n > 0 {
		m.bytesDown.Add(float64(n))
	}
}

func (m *transportMetrics) SetOpenRequests(n int64) {
	m.openRequests.Set(float64(n))
}

func (m *transportMetrics) AddPartRetry() {
	m.partRetries.Inc()
}

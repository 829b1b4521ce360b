package transport

import "github.com/marmos91/s3surge/internal/logger"

// Metrics is the sink for transport-level datapoints. Implementations must be
// safe for concurrent use. A nil Metrics disables reporting with zero
// overhead; every call site checks for nil.
type Metrics interface {
	// AddAddressCount records the resolver's cached address count for the
	// endpoint. Emitted on every DNS warm-up poll.
	AddAddressCount(count int)

	// AddTransferStatus records a part-level transfer outcome.
	AddTransferStatus(success bool)

	// AddBytesUp records bytes sent to the storage service.
	AddBytesUp(n int64)

	// AddBytesDown records bytes received from the storage service.
	AddBytesDown(n int64)

	// SetOpenRequests records the current number of in-flight requests.
	SetOpenRequests(n int64)

	// AddPartRetry records a part being re-admitted for retry.
	AddPartRetry()
}

func (t *Transport) emitAddressCount(count int) {
	logger.Info("Emitting address count metric", "endpoint", t.endpoint, "addressCount", count)
	if t.metrics != nil {
		t.metrics.AddAddressCount(count)
	}
}

func (t *Transport) emitTransferStatus(success bool) {
	if t.metrics != nil {
		t.metrics.AddTransferStatus(success)
	}
}

func (t *Transport) emitOpenRequests(n int64) {
	if t.metrics != nil {
		t.metrics.SetOpenRequests(n)
	}
}

package transport

import "errors"

// Sentinel errors reported by transport operations.
//
// Signing and connection-acquisition failures are reported distinctly because
// they short-circuit before any stream is attempted. Stream-level failures
// (transport errors and unexpected response statuses) are normalized to
// ErrTransferFailed; the underlying cause is logged but not surfaced, since
// callers only react to pass/fail.
var (
	// ErrSigningFailure indicates the request signer rejected the request.
	ErrSigningFailure = errors.New("transport: request signing failed")

	// ErrConnectionAcquire indicates no usable connection manager could be
	// obtained for the request.
	ErrConnectionAcquire = errors.New("transport: connection acquisition failed")

	// ErrTransferFailed is the generic failure reported for any stream-level
	// error: transport failure or unexpected response status.
	ErrTransferFailed = errors.New("transport: transfer failed")

	// ErrMissingResponseMetadata indicates a response that was otherwise
	// successful but lacked required metadata (an ETag or an UploadId).
	ErrMissingResponseMetadata = errors.New("transport: response metadata missing")
)

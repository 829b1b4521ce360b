package transport

import (
	"sync"
	"sync/atomic"
)

// PartFinishResponse is the outcome a part operation reports back to the
// processor that dispatched it.
type PartFinishResponse int

const (
	// PartFinishDone retires the part.
	PartFinishDone PartFinishResponse = iota

	// PartFinishRetry re-admits the part to the processor queue.
	PartFinishRetry
)

// PartFinishedCallback reports a part outcome to the processor. It must be
// invoked exactly once per dispatch.
type PartFinishedCallback func(response PartFinishResponse)

// ProcessPartCallback performs the actual work for one part and reports the
// outcome through partFinished.
type ProcessPartCallback func(state *TransferState, partFinished PartFinishedCallback)

// FinishedCallback receives the terminal result of a whole transfer.
type FinishedCallback func(err error)

// TransferState is the per-part bookkeeping record. It is owned by the
// orchestrator that created it and passed by reference into a single in-flight
// part operation at a time. Byte counts accumulate between flushes so metrics
// are published once per attempt rather than per chunk.
type TransferState struct {
	partNumber uint32 // 1-based, used in wire paths
	partIndex  uint32 // 0-based, used for array storage

	pendingUp   atomic.Int64
	pendingDown atomic.Int64

	metrics Metrics
}

func newTransferState(metrics Metrics, partIndex uint32) *TransferState {
	return &TransferState{
		partNumber: partIndex + 1,
		partIndex:  partIndex,
		metrics:    metrics,
	}
}

// PartNumber returns the 1-based part number used in wire paths.
func (s *TransferState) PartNumber() uint32 { return s.partNumber }

// PartIndex returns the 0-based index used for array storage.
func (s *TransferState) PartIndex() uint32 { return s.partIndex }

// AddDataUp accumulates uploaded bytes pending the next flush.
func (s *TransferState) AddDataUp(n int64) {
	s.pendingUp.Add(n)
}

// AddDataDown accumulates downloaded bytes pending the next flush.
func (s *TransferState) AddDataDown(n int64) {
	s.pendingDown.Add(n)
}

// FlushDataUp publishes and resets the pending upload byte count.
func (s *TransferState) FlushDataUp() {
	n := s.pendingUp.Swap(0)
	if s.metrics != nil {
		s.metrics.AddBytesUp(n)
	}
}

// FlushDataDown publishes and resets the pending download byte count.
func (s *TransferState) FlushDataDown() {
	n := s.pendingDown.Swap(0)
	if s.metrics != nil {
		s.metrics.AddBytesDown(n)
	}
}

// MultipartState is the view of a transfer the part processor needs: its part
// count and the callback that processes one part.
type MultipartState interface {
	Key() string
	NumParts() uint32
	ProcessPart(state *TransferState, partFinished PartFinishedCallback)
}

// multipartTransferState carries the bookkeeping shared by multipart uploads
// and downloads: part counting, the process-part callback and the single-fire
// finished callback. The completed-part counter and the finished flag are
// lock-free atomics; the increment-and-compare in IncNumPartsCompleted and the
// compare-and-swap in SetFinished are what guarantee one-time actions fire
// exactly once under concurrent part completion.
type multipartTransferState struct {
	key      string
	numParts uint32

	numPartsCompleted atomic.Uint32
	finished          atomic.Bool

	callbackMu          sync.Mutex
	finishedCallback    FinishedCallback
	processPartCallback ProcessPartCallback
}

// Key returns the object key of the transfer.
func (s *multipartTransferState) Key() string { return s.key }

// NumParts returns the declared total part count.
func (s *multipartTransferState) NumParts() uint32 { return s.numParts }

// NumPartsCompleted returns how many parts have completed so far.
func (s *multipartTransferState) NumPartsCompleted() uint32 {
	return s.numPartsCompleted.Load()
}

// SetProcessPartCallback wires the callback the part processor will drive.
func (s *multipartTransferState) SetProcessPartCallback(fn ProcessPartCallback) {
	s.callbackMu.Lock()
	s.processPartCallback = fn
	s.callbackMu.Unlock()
}

// SetFinishedCallback wires the callback fired exactly once at terminal state.
func (s *multipartTransferState) SetFinishedCallback(fn FinishedCallback) {
	s.callbackMu.Lock()
	s.finishedCallback = fn
	s.callbackMu.Unlock()
}

// ProcessPart dispatches one part through the wired process-part callback.
func (s *multipartTransferState) ProcessPart(state *TransferState, partFinished PartFinishedCallback) {
	s.callbackMu.Lock()
	fn := s.processPartCallback
	s.callbackMu.Unlock()
	fn(state, partFinished)
}

// IncNumPartsCompleted increments the completed-part counter and reports
// whether this increment reached the total. At most one caller ever observes
// true, so concurrent part completions cannot double-trigger completion.
func (s *multipartTransferState) IncNumPartsCompleted() bool {
	return s.numPartsCompleted.Add(1) == s.numParts
}

// SetFinished marks the transfer terminal and fires the finished callback.
// Only the first call has any effect.
func (s *multipartTransferState) SetFinished(err error) {
	if !s.finished.CompareAndSwap(false, true) {
		return
	}
	s.callbackMu.Lock()
	fn := s.finishedCallback
	s.callbackMu.Unlock()

	if fn != nil {
		fn(err)
	}
}

// IsFinished reports whether the transfer has reached a terminal state.
func (s *multipartTransferState) IsFinished() bool {
	return s.finished.Load()
}

// MultipartUploadState tracks one multipart upload: its upload ID, the
// index-keyed ETag list and the completed-part count. ETags are recorded by
// part index, never appended, so completion order cannot corrupt the final
// list sent to CompleteMultipartUpload.
type MultipartUploadState struct {
	multipartTransferState

	objectSize uint64

	etagsMu  sync.Mutex
	uploadID string
	etags    []string
}

// NewMultipartUploadState creates upload bookkeeping for numParts parts.
func NewMultipartUploadState(key string, objectSize uint64, numParts uint32) *MultipartUploadState {
	return &MultipartUploadState{
		multipartTransferState: multipartTransferState{key: key, numParts: numParts},
		objectSize:             objectSize,
		etags:                  make([]string, numParts),
	}
}

// ObjectSize returns the total object size in bytes.
func (s *MultipartUploadState) ObjectSize() uint64 { return s.objectSize }

// SetUploadID records the server-issued upload ID. Set once after
// CreateMultipartUpload succeeds.
func (s *MultipartUploadState) SetUploadID(id string) {
	s.etagsMu.Lock()
	s.uploadID = id
	s.etagsMu.Unlock()
}

// UploadID returns the server-issued upload ID, or "" before creation.
func (s *MultipartUploadState) UploadID() string {
	s.etagsMu.Lock()
	defer s.etagsMu.Unlock()
	return s.uploadID
}

// SetETag records the ETag for the part at partIndex.
func (s *MultipartUploadState) SetETag(partIndex uint32, etag string) {
	s.etagsMu.Lock()
	s.etags[partIndex] = etag
	s.etagsMu.Unlock()
}

// ETags returns a copy of the ETag list in part-index order.
func (s *MultipartUploadState) ETags() []string {
	s.etagsMu.Lock()
	defer s.etagsMu.Unlock()
	etags := make([]string, len(s.etags))
	copy(etags, s.etags)
	return etags
}

// MultipartDownloadState tracks one multipart download. Downloads need no
// create/complete handshake, so only the shared part bookkeeping applies.
type MultipartDownloadState struct {
	multipartTransferState
}

// NewMultipartDownloadState creates download bookkeeping for numParts parts.
func NewMultipartDownloadState(key string, numParts uint32) *MultipartDownloadState {
	return &MultipartDownloadState{
		multipartTransferState: multipartTransferState{key: key, numParts: numParts},
	}
}

package transport

import (
	"sync"
	"time"

	"github.com/marmos91/s3surge/internal/logger"
)

// PartProcessor is a bounded-concurrency work queue for part operations. It
// accepts whole transfers, expands them into per-part work items, and keeps at
// most maxStreams part operations in flight at once. A part reporting Retry is
// re-admitted to the back of the queue; a part reporting Done is retired. The
// pending queue is unbounded so a retry can never deadlock against the
// in-flight ceiling.
//
// Parts are dispatched without ordering guarantees relative to each other;
// transfer completion is detected by the transfer state's completed-part
// counter, not by the processor.
type PartProcessor struct {
	name       string
	maxStreams int
	metrics    Metrics

	mu       sync.Mutex
	pending  []*partWorkItem
	inFlight int

	wake      chan struct{}
	stopOnce  sync.Once
	stopCh    chan struct{}
	stoppedCh chan struct{}
}

// partWorkItem is one queued part: the transfer it belongs to plus the
// per-part state that survives across retries of the same part.
type partWorkItem struct {
	state         MultipartState
	transferState *TransferState
}

// NewPartProcessor creates a processor and starts its dispatch loop.
func NewPartProcessor(name string, maxStreams int, metrics Metrics) *PartProcessor {
	p := &PartProcessor{
		name:       name,
		maxStreams: maxStreams,
		metrics:    metrics,
		wake:       make(chan struct{}, 1),
		stopCh:     make(chan struct{}),
		stoppedCh:  make(chan struct{}),
	}
	go p.run()
	return p
}

// PushQueue admits a whole transfer: one work item per part, each with a fresh
// TransferState.
func (p *PartProcessor) PushQueue(state MultipartState) {
	numParts := state.NumParts()
	items := make([]*partWorkItem, 0, numParts)
	for i := uint32(0); i < numParts; i++ {
		items = append(items, &partWorkItem{
			state:         state,
			transferState: newTransferState(p.metrics, i),
		})
	}

	p.mu.Lock()
	p.pending = append(p.pending, items...)
	p.mu.Unlock()

	logger.Debug("Pushed transfer into part processor",
		"processor", p.name,
		"key", state.Key(),
		"numParts", numParts)

	p.notify()
}

// Pending returns the number of parts waiting for a free stream slot.
func (p *PartProcessor) Pending() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.pending)
}

// InFlight returns the number of part operations currently outstanding.
func (p *PartProcessor) InFlight() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.inFlight
}

// Stop shuts the dispatch loop down. Parts already in flight run to
// completion; parts still pending are not dispatched.
func (p *PartProcessor) Stop(timeout time.Duration) {
	p.stopOnce.Do(func() { close(p.stopCh) })

	select {
	case <-p.stoppedCh:
	case <-time.After(timeout):
		logger.Warn("Part processor stop timed out",
			"processor", p.name,
			"pending", p.Pending(),
			"inFlight", p.InFlight())
	}
}

func (p *PartProcessor) notify() {
	select {
	case p.wake <- struct{}{}:
	default:
	}
}

func (p *PartProcessor) run() {
	defer close(p.stoppedCh)

	for {
		select {
		case <-p.stopCh:
			return
		case <-p.wake:
		}
		p.dispatch()
	}
}

// dispatch launches pending parts until the queue is empty or the in-flight
// ceiling is reached.
func (p *PartProcessor) dispatch() {
	for {
		p.mu.Lock()
		if p.inFlight >= p.maxStreams || len(p.pending) == 0 {
			p.mu.Unlock()
			return
		}
		item := p.pending[0]
		p.pending = p.pending[1:]
		p.inFlight++
		p.mu.Unlock()

		go item.state.ProcessPart(item.transferState, func(response PartFinishResponse) {
			p.finishPart(item, response)
		})
	}
}

// finishPart releases the stream slot and, on Retry, re-admits the part.
func (p *PartProcessor) finishPart(item *partWorkItem, response PartFinishResponse) {
	p.mu.Lock()
	p.inFlight--
	if response == PartFinishRetry {
		p.pending = append(p.pending, item)
	}
	p.mu.Unlock()

	if response == PartFinishRetry {
		if p.metrics != nil {
			p.metrics.AddPartRetry()
		}
		logger.Warn("Part re-admitted for retry",
			"processor", p.name,
			"key", item.state.Key(),
			"partNumber", item.transferState.PartNumber())
	}

	p.notify()
}

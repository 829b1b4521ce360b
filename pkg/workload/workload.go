// Package workload drives transfer load through a transport: an upload phase
// that writes a batch of objects and a download phase that reads them back,
// with a throughput report at the end.
package workload

import (
	"bytes"
	"context"
	"crypto/rand"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/marmos91/s3surge/internal/logger"
	"github.com/marmos91/s3surge/pkg/transport"
)

// Options shapes one workload run.
type Options struct {
	// Transport carries the transfers. Required.
	Transport *transport.Transport

	// NumTransfers is how many objects each phase moves.
	NumTransfers uint32

	// NumParts is how many parts each multipart object is split into.
	NumParts uint32

	// PartSize is the size of each part in bytes. Single-shot objects are
	// NumParts*PartSize bytes so both modes move the same volume.
	PartSize uint64

	// Multipart selects multipart transfers over single-shot ones.
	Multipart bool

	// Upload and Download select which phases run.
	Upload   bool
	Download bool

	// KeyPrefix namespaces the object keys written by the run.
	KeyPrefix string

	// SeedAddress, when non-empty, bypasses DNS warming and pins all
	// connection managers to one address.
	SeedAddress string
}

// Report summarizes a finished run.
type Report struct {
	Uploaded         uint32
	UploadFailures   uint32
	Downloaded       uint32
	DownloadFailures uint32

	BytesUp   uint64
	BytesDown uint64

	UploadDuration   time.Duration
	DownloadDuration time.Duration
}

// UploadGbps returns the upload throughput in gigabits per second.
func (r *Report) UploadGbps() float64 {
	return gbps(r.BytesUp, r.UploadDuration)
}

// DownloadGbps returns the download throughput in gigabits per second.
func (r *Report) DownloadGbps() float64 {
	return gbps(r.BytesDown, r.DownloadDuration)
}

func gbps(bytes uint64, d time.Duration) float64 {
	if d <= 0 {
		return 0
	}
	return float64(bytes) * 8 / 1e9 / d.Seconds()
}

// Runner executes one workload run.
type Runner struct {
	opts Options

	payload []byte
	keys    []string
}

// NewRunner creates a runner and its shared part payload. The payload is one
// random buffer reused as the body of every part, so generation cost never
// shows up in transfer timings.
func NewRunner(opts Options) (*Runner, error) {
	if opts.Transport == nil {
		return nil, fmt.Errorf("workload: transport is required")
	}
	if opts.NumTransfers == 0 || opts.NumParts == 0 || opts.PartSize == 0 {
		return nil, fmt.Errorf("workload: num transfers, num parts and part size must all be positive")
	}

	payload := make([]byte, opts.PartSize)
	if _, err := rand.Read(payload); err != nil {
		return nil, fmt.Errorf("workload: generating payload: %w", err)
	}

	keys := make([]string, opts.NumTransfers)
	for i := range keys {
		keys[i] = fmt.Sprintf("%s/%s.dat", opts.KeyPrefix, uuid.New())
	}

	return &Runner{opts: opts, payload: payload, keys: keys}, nil
}

// Keys returns the object keys the run uses, in transfer order.
func (r *Runner) Keys() []string {
	keys := make([]string, len(r.keys))
	copy(keys, r.keys)
	return keys
}

// Run prepares the transport and executes the selected phases. The context
// only gates phase boundaries; transfers already dispatched run to
// completion.
func (r *Runner) Run(ctx context.Context) (*Report, error) {
	t := r.opts.Transport

	if r.opts.SeedAddress != "" {
		t.SeedAddressCache(r.opts.SeedAddress)
	} else {
		t.WarmDNSCache(r.opts.NumTransfers)
	}
	t.SpawnConnectionManagers()

	report := &Report{}

	if r.opts.Upload {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		r.runUploads(report)
	}

	if r.opts.Download {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		r.runDownloads(report)
	}

	return report, nil
}

// objectSize is the total size of one object in bytes.
func (r *Runner) objectSize() uint64 {
	return uint64(r.opts.NumParts) * r.opts.PartSize
}

// partBody returns a fresh reader over the shared payload. Fresh per attempt
// because retries re-read the body from the start.
func (r *Runner) partBody(uint32, uint32) (io.Reader, int64) {
	return bytes.NewReader(r.payload), int64(len(r.payload))
}

func (r *Runner) runUploads(report *Report) {
	logger.Info("Starting upload phase",
		"numTransfers", r.opts.NumTransfers,
		"objectSize", r.objectSize(),
		"multipart", r.opts.Multipart)

	var failures atomic.Uint32
	var wg sync.WaitGroup
	start := time.Now()

	for _, key := range r.keys {
		wg.Add(1)
		key := key
		go func() {
			if r.opts.Multipart {
				r.uploadMultipart(key, &failures, &wg)
			} else {
				r.uploadSingle(key, &failures, &wg)
			}
		}()
	}
	wg.Wait()

	report.UploadDuration = time.Since(start)
	report.UploadFailures = failures.Load()
	report.Uploaded = r.opts.NumTransfers - report.UploadFailures
	report.BytesUp = uint64(report.Uploaded) * r.objectSize()

	logger.Info("Upload phase finished",
		"uploaded", report.Uploaded,
		"failures", report.UploadFailures,
		"duration", report.UploadDuration,
		"gbps", report.UploadGbps())
}

func (r *Runner) uploadMultipart(key string, failures *atomic.Uint32, wg *sync.WaitGroup) {
	r.opts.Transport.PutObjectMultipart(key, r.objectSize(), r.opts.NumParts, r.partBody,
		func(err error, numParts uint32) {
			if err != nil {
				failures.Add(1)
				logger.Error("Upload failed", "key", key, "numParts", numParts, "error", err)
			}
			wg.Done()
		})
}

func (r *Runner) uploadSingle(key string, failures *atomic.Uint32, wg *sync.WaitGroup) {
	size := r.objectSize()
	body := io.MultiReader(repeatReaders(r.payload, int(r.opts.NumParts))...)
	r.opts.Transport.PutObject(key, body, int64(size), 0, func(err error, _ string) {
		if err != nil {
			failures.Add(1)
			logger.Error("Upload failed", "key", key, "error", err)
		}
		wg.Done()
	})
}

func (r *Runner) runDownloads(report *Report) {
	logger.Info("Starting download phase",
		"numTransfers", r.opts.NumTransfers,
		"multipart", r.opts.Multipart)

	var failures atomic.Uint32
	var received atomic.Uint64
	var wg sync.WaitGroup
	start := time.Now()

	for _, key := range r.keys {
		wg.Add(1)
		key := key
		go func() {
			if r.opts.Multipart {
				r.opts.Transport.GetObjectMultipart(key, r.opts.NumParts,
					func(_ uint32, chunk []byte) {
						received.Add(uint64(len(chunk)))
					},
					func(err error, _ uint32) {
						if err != nil {
							failures.Add(1)
							logger.Error("Download failed", "key", key, "error", err)
						}
						wg.Done()
					})
			} else {
				r.opts.Transport.GetObject(key, 0,
					func(chunk []byte) {
						received.Add(uint64(len(chunk)))
					},
					func(err error) {
						if err != nil {
							failures.Add(1)
							logger.Error("Download failed", "key", key, "error", err)
						}
						wg.Done()
					})
			}
		}()
	}
	wg.Wait()

	report.DownloadDuration = time.Since(start)
	report.DownloadFailures = failures.Load()
	report.Downloaded = r.opts.NumTransfers - report.DownloadFailures
	report.BytesDown = received.Load()

	logger.Info("Download phase finished",
		"downloaded", report.Downloaded,
		"failures", report.DownloadFailures,
		"duration", report.DownloadDuration,
		"gbps", report.DownloadGbps())
}

// repeatReaders returns n readers over the same payload for single-shot
// bodies of n parts' worth of data.
func repeatReaders(payload []byte, n int) []io.Reader {
	readers := make([]io.Reader, n)
	for i := range readers {
		readers[i] = bytes.NewReader(payload)
	}
	return readers
}

package workload

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/s3surge/pkg/transport"
)

// storageStub answers the minimal S3 surface a run exercises and remembers
// what was uploaded so downloads can read it back. Blobs are stored per part
// (part number "" for single-shot objects) so ranged reads return exactly the
// bytes of one part.
type storageStub struct {
	mu    sync.Mutex
	blobs map[string][]byte // key "#" partNumber -> bytes
	puts  int
	gets  int
}

func newStorageStub() *storageStub {
	return &storageStub{blobs: make(map[string][]byte)}
}

func blobKey(key, partNumber string) string {
	return key + "#" + partNumber
}

func (s *storageStub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	key := r.URL.Path

	switch {
	case r.Method == http.MethodPost && query.Has("uploads"):
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, "<InitiateMultipartUploadResult><UploadId>upl-%s</UploadId></InitiateMultipartUploadResult>", key)

	case r.Method == http.MethodPut:
		body, _ := io.ReadAll(r.Body)
		s.mu.Lock()
		s.blobs[blobKey(key, query.Get("partNumber"))] = body
		s.puts++
		s.mu.Unlock()
		w.Header().Set("ETag", fmt.Sprintf(`"etag-%s-%s"`, key, query.Get("partNumber")))
		w.WriteHeader(http.StatusOK)

	case r.Method == http.MethodPost && query.Get("uploadId") != "":
		io.Copy(io.Discard, r.Body)
		w.WriteHeader(http.StatusOK)

	case r.Method == http.MethodGet:
		s.mu.Lock()
		data := s.blobs[blobKey(key, query.Get("partNumber"))]
		s.gets++
		s.mu.Unlock()
		if query.Get("partNumber") != "" {
			w.WriteHeader(http.StatusPartialContent)
		} else {
			w.WriteHeader(http.StatusOK)
		}
		w.Write(data)

	case r.Method == http.MethodDelete:
		w.WriteHeader(http.StatusNoContent)

	default:
		w.WriteHeader(http.StatusBadRequest)
	}
}

func newStubTransport(t *testing.T, handler http.Handler) *transport.Transport {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	_, portStr, err := net.SplitHostPort(server.Listener.Addr().String())
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)

	creds := credentials.NewStaticCredentialsProvider("AKIDEXAMPLE", "secret", "")
	tr, err := transport.New(transport.Options{
		Endpoint:    "workload.test.local",
		Region:      "us-east-1",
		Port:        port,
		Credentials: &creds,
	})
	require.NoError(t, err)
	t.Cleanup(tr.Close)
	return tr
}

func TestRunnerMultipartRoundTrip(t *testing.T) {
	stub := newStorageStub()
	tr := newStubTransport(t, stub)

	runner, err := NewRunner(Options{
		Transport:    tr,
		NumTransfers: 3,
		NumParts:     2,
		PartSize:     1024,
		Multipart:    true,
		Upload:       true,
		Download:     true,
		KeyPrefix:    "test",
		SeedAddress:  "127.0.0.1",
	})
	require.NoError(t, err)

	report, err := runner.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, uint32(3), report.Uploaded)
	assert.Zero(t, report.UploadFailures)
	assert.Equal(t, uint32(3), report.Downloaded)
	assert.Zero(t, report.DownloadFailures)

	// 3 objects of 2 parts, 1 KiB each, in both directions.
	assert.Equal(t, uint64(3*2*1024), report.BytesUp)
	assert.Equal(t, uint64(3*2*1024), report.BytesDown)
	assert.Positive(t, report.UploadDuration)
	assert.Positive(t, report.DownloadDuration)

	stub.mu.Lock()
	defer stub.mu.Unlock()
	assert.Equal(t, 6, stub.puts)
	assert.Len(t, stub.blobs, 6)
}

func TestRunnerSingleShotRoundTrip(t *testing.T) {
	stub := newStorageStub()
	tr := newStubTransport(t, stub)

	runner, err := NewRunner(Options{
		Transport:    tr,
		NumTransfers: 2,
		NumParts:     4,
		PartSize:     512,
		Multipart:    false,
		Upload:       true,
		Download:     true,
		KeyPrefix:    "single",
		SeedAddress:  "127.0.0.1",
	})
	require.NoError(t, err)

	report, err := runner.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, uint32(2), report.Uploaded)
	assert.Equal(t, uint32(2), report.Downloaded)
	// Single-shot objects are NumParts*PartSize bytes.
	assert.Equal(t, uint64(2*4*512), report.BytesUp)
	assert.Equal(t, uint64(2*4*512), report.BytesDown)

	stub.mu.Lock()
	defer stub.mu.Unlock()
	assert.Equal(t, 2, stub.puts)
	for key, data := range stub.blobs {
		assert.Len(t, data, 4*512, "object %s", key)
	}
}

func TestRunnerUploadOnly(t *testing.T) {
	stub := newStorageStub()
	tr := newStubTransport(t, stub)

	runner, err := NewRunner(Options{
		Transport:    tr,
		NumTransfers: 2,
		NumParts:     2,
		PartSize:     256,
		Multipart:    true,
		Upload:       true,
		Download:     false,
		KeyPrefix:    "uponly",
		SeedAddress:  "127.0.0.1",
	})
	require.NoError(t, err)

	report, err := runner.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, uint32(2), report.Uploaded)
	assert.Zero(t, report.Downloaded)
	assert.Zero(t, report.BytesDown)

	stub.mu.Lock()
	defer stub.mu.Unlock()
	assert.Zero(t, stub.gets)
}

func TestRunnerReportsFailures(t *testing.T) {
	// Every request fails; the run finishes and counts the failures.
	tr := newStubTransport(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))

	runner, err := NewRunner(Options{
		Transport:    tr,
		NumTransfers: 2,
		NumParts:     1,
		PartSize:     64,
		Multipart:    true,
		Upload:       true,
		Download:     false,
		KeyPrefix:    "fail",
		SeedAddress:  "127.0.0.1",
	})
	require.NoError(t, err)

	report, err := runner.Run(context.Background())
	require.NoError(t, err)

	assert.Zero(t, report.Uploaded)
	assert.Equal(t, uint32(2), report.UploadFailures)
	assert.Zero(t, report.BytesUp)
}

func TestRunnerValidation(t *testing.T) {
	_, err := NewRunner(Options{})
	assert.Error(t, err)

	stub := newStorageStub()
	tr := newStubTransport(t, stub)
	_, err = NewRunner(Options{Transport: tr, NumTransfers: 1, NumParts: 0, PartSize: 1})
	assert.Error(t, err)
}

func TestRunnerKeysAreUniquePerRun(t *testing.T) {
	stub := newStorageStub()
	tr := newStubTransport(t, stub)

	runner, err := NewRunner(Options{
		Transport:    tr,
		NumTransfers: 10,
		NumParts:     1,
		PartSize:     1,
		KeyPrefix:    "uniq",
	})
	require.NoError(t, err)

	seen := make(map[string]struct{})
	for _, key := range runner.Keys() {
		assert.NotContains(t, seen, key)
		seen[key] = struct{}{}
	}
}

func TestReportThroughput(t *testing.T) {
	report := &Report{BytesUp: 1e9, UploadDuration: 1e9} // 1 GB in 1 s
	assert.InDelta(t, 8.0, report.UploadGbps(), 0.01)

	empty := &Report{}
	assert.Zero(t, empty.DownloadGbps())
}

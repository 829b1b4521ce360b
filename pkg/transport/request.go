package transport

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/marmos91/s3surge/internal/logger"
)

// bodyChunkSize is the read granularity for streaming response bodies.
const bodyChunkSize = 32 * 1024

// requestOptions carries the stream callbacks for one request. All callbacks
// are optional; onStreamComplete receives the final response status (0 when
// the stream failed before a response arrived) and the stream error if any.
type requestOptions struct {
	onIncomingHeaders func(resp *http.Response)
	onIncomingBody    func(chunk []byte)
	onStreamComplete  func(statusCode int, streamErr error)
}

// newRequest builds a request for the given key. Keys may embed a query
// string; everything after the first "?" becomes the raw query. The request
// URL carries the pinned scheme/host while Host stays the logical endpoint so
// signing and virtual-host routing see the real hostname.
func (t *Transport) newRequest(method, key string, body io.Reader, contentLength int64) (*http.Request, error) {
	path := key
	rawQuery := ""
	if i := strings.Index(key, "?"); i >= 0 {
		path = key[:i]
		rawQuery = key[i+1:]
	}

	u := &url.URL{
		Scheme:   t.scheme(),
		Host:     net.JoinHostPort(t.endpoint, fmt.Sprintf("%d", t.port())),
		Path:     "/" + strings.TrimPrefix(path, "/"),
		RawQuery: rawQuery,
	}

	req, err := http.NewRequestWithContext(context.Background(), method, u.String(), body)
	if err != nil {
		return nil, err
	}
	req.Host = t.endpoint
	if contentLength >= 0 {
		req.ContentLength = contentLength
		req.Header.Set("Content-Length", fmt.Sprintf("%d", contentLength))
	}
	return req, nil
}

// makeSignedRequest runs the full pipeline for one request: declare the
// unsigned payload, sign, acquire a connection manager, then dispatch the
// stream. Signing and acquisition failures short-circuit without touching the
// network; the stream itself runs asynchronously and reports through
// opts.onStreamComplete.
//
// The callback receives the manager that carried the request, or nil with a
// non-nil error when the pipeline short-circuited.
func (t *Transport) makeSignedRequest(req *http.Request, opts requestOptions, callback func(cm *ConnManager, err error)) {
	req.Header.Set("x-amz-content-sha256", unsignedPayload)

	if err := t.signer.SignHTTP(req.Context(), req, unsignedPayload, signingService, t.opts.Region, time.Now().UTC()); err != nil {
		logger.Error("Request signing failed", "method", req.Method, "path", req.URL.Path, "error", err)
		callback(nil, fmt.Errorf("%w: %v", ErrSigningFailure, err))
		return
	}

	cm, err := t.GetNextConnManager()
	if err != nil {
		logger.Error("Connection acquisition failed", "method", req.Method, "path", req.URL.Path, "error", err)
		callback(nil, fmt.Errorf("%w: %v", ErrConnectionAcquire, err))
		return
	}

	t.sendRequest(cm, req, opts)
	callback(cm, nil)
}

// sendRequest dispatches the request on the manager's client and streams the
// response body in chunks. The active-request count covers the whole stream
// lifetime and is published as a gauge on both edges.
func (t *Transport) sendRequest(cm *ConnManager, req *http.Request, opts requestOptions) {
	t.emitOpenRequests(t.activeRequests.Add(1))

	go func() {
		defer func() {
			t.emitOpenRequests(t.activeRequests.Add(-1))
		}()

		resp, err := cm.client.Do(req)
		if err != nil {
			if opts.onStreamComplete != nil {
				opts.onStreamComplete(0, err)
			}
			return
		}
		defer resp.Body.Close()

		if opts.onIncomingHeaders != nil {
			opts.onIncomingHeaders(resp)
		}

		var streamErr error
		buf := make([]byte, bodyChunkSize)
		for {
			n, readErr := resp.Body.Read(buf)
			if n > 0 && opts.onIncomingBody != nil {
				opts.onIncomingBody(buf[:n])
			}
			if readErr == io.EOF {
				break
			}
			if readErr != nil {
				streamErr = readErr
				break
			}
		}

		if opts.onStreamComplete != nil {
			opts.onStreamComplete(resp.StatusCode, streamErr)
		}
	}()
}

package transport

import (
	"fmt"
	"io"
	"net/http"

	"github.com/marmos91/s3surge/internal/logger"
)

// PutObjectFlags selects optional PutObject behavior.
type PutObjectFlags uint32

const (
	// PutObjectFlagRetrieveETag captures the response ETag header and passes
	// it to the finished callback. A successful response without an ETag is
	// then treated as a failure.
	PutObjectFlagRetrieveETag PutObjectFlags = 1 << iota
)

// PutObject uploads body as the object at key and reports the outcome through
// finished. The etag argument is non-empty only when flags include
// PutObjectFlagRetrieveETag and the response carried one. A 200 response is
// the only success status.
func (t *Transport) PutObject(key string, body io.Reader, contentLength int64, flags PutObjectFlags, finished func(err error, etag string)) {
	req, err := t.newRequest(http.MethodPut, key, body, contentLength)
	if err != nil {
		finished(fmt.Errorf("%w: %v", ErrTransferFailed, err), "")
		return
	}
	req.Header.Set("Content-Type", "text/plain")

	var etag string
	opts := requestOptions{
		onIncomingHeaders: func(resp *http.Response) {
			if flags&PutObjectFlagRetrieveETag != 0 {
				etag = resp.Header.Get("ETag")
			}
		},
		onStreamComplete: func(statusCode int, streamErr error) {
			if streamErr != nil {
				logger.Error("Put stream failed", "key", key, "error", streamErr)
				finished(ErrTransferFailed, "")
				return
			}
			if statusCode != http.StatusOK {
				logger.Error("Put returned unexpected status", "key", key, "status", statusCode)
				finished(ErrTransferFailed, "")
				return
			}
			if flags&PutObjectFlagRetrieveETag != 0 && etag == "" {
				logger.Error("Put response missing ETag", "key", key)
				finished(ErrMissingResponseMetadata, "")
				return
			}
			finished(nil, etag)
		},
	}

	t.makeSignedRequest(req, opts, func(cm *ConnManager, err error) {
		if err != nil {
			finished(err, "")
		}
	})
}

// GetObject downloads the object at key, streaming body chunks to onBody.
// A partNumber greater than zero requests that part of a multipart object,
// where 206 is the expected status; whole-object reads expect 200.
func (t *Transport) GetObject(key string, partNumber uint32, onBody func(chunk []byte), finished func(err error)) {
	requestKey := key
	expectedStatus := http.StatusOK
	if partNumber > 0 {
		requestKey = fmt.Sprintf("%s?partNumber=%d", key, partNumber)
		expectedStatus = http.StatusPartialContent
	}

	req, err := t.newRequest(http.MethodGet, requestKey, nil, -1)
	if err != nil {
		finished(fmt.Errorf("%w: %v", ErrTransferFailed, err))
		return
	}

	opts := requestOptions{
		onIncomingBody: onBody,
		onStreamComplete: func(statusCode int, streamErr error) {
			if streamErr != nil {
				logger.Error("Get stream failed", "key", key, "partNumber", partNumber, "error", streamErr)
				finished(ErrTransferFailed)
				return
			}
			if statusCode != expectedStatus {
				logger.Error("Get returned unexpected status",
					"key", key, "partNumber", partNumber, "status", statusCode, "expected", expectedStatus)
				finished(ErrTransferFailed)
				return
			}
			finished(nil)
		},
	}

	t.makeSignedRequest(req, opts, func(cm *ConnManager, err error) {
		if err != nil {
			finished(err)
		}
	})
}

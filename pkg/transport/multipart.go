package transport

import (
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/marmos91/s3surge/internal/logger"
)

// GetPartBodyCallback supplies the body for one upload part. partIndex is
// 0-based, partNumber 1-based. The returned reader is consumed exactly once
// per attempt; retries call back for a fresh reader.
type GetPartBodyCallback func(partIndex, partNumber uint32) (io.Reader, int64)

// ReceivePartCallback receives downloaded body chunks for one part.
type ReceivePartCallback func(partNumber uint32, chunk []byte)

// MultipartFinishedCallback receives the terminal result of a multipart
// transfer along with its total part count.
type MultipartFinishedCallback func(err error, numParts uint32)

// PutObjectMultipart uploads an object in numParts parts. It creates the
// multipart upload, feeds the parts through the upload processor, and
// completes the upload exactly once when the last part lands. Any terminal
// failure triggers a best-effort abort before the error reaches finished.
// Individual part failures are not terminal; they retry without bound.
func (t *Transport) PutObjectMultipart(key string, objectSize uint64, numParts uint32, getPartBody GetPartBodyCallback, finished MultipartFinishedCallback) {
	state := NewMultipartUploadState(key, objectSize, numParts)

	state.SetProcessPartCallback(func(ts *TransferState, partFinished PartFinishedCallback) {
		t.uploadPart(state, ts, getPartBody, partFinished)
	})
	state.SetFinishedCallback(func(err error) {
		if err == nil {
			finished(nil, numParts)
			return
		}
		t.AbortMultipartUpload(key, state.UploadID(), func(abortErr error) {
			if abortErr != nil {
				logger.Error("Abort after failed upload did not succeed", "key", key, "error", abortErr)
			}
			finished(err, numParts)
		})
	})

	logger.Info("Beginning multipart upload", "key", key, "objectSize", objectSize, "numParts", numParts)

	t.CreateMultipartUpload(key, func(uploadID string, err error) {
		if err != nil {
			logger.Error("Multipart upload creation failed", "key", key, "error", err)
			state.SetFinished(err)
			return
		}
		state.SetUploadID(uploadID)
		t.uploadProcessor.PushQueue(state)
	})
}

// uploadPart uploads one part and records its ETag by part index. The last
// part to complete triggers CompleteMultipartUpload; its outcome is the
// transfer's terminal result. A failed part attempt is reported for retry.
func (t *Transport) uploadPart(state *MultipartUploadState, ts *TransferState, getPartBody GetPartBodyCallback, partFinished PartFinishedCallback) {
	body, length := getPartBody(ts.PartIndex(), ts.PartNumber())
	partKey := fmt.Sprintf("%s?partNumber=%d&uploadId=%s", state.Key(), ts.PartNumber(), state.UploadID())

	t.PutObject(partKey, body, length, PutObjectFlagRetrieveETag, func(err error, etag string) {
		if err != nil {
			logger.Error("Part upload failed",
				"key", state.Key(), "partNumber", ts.PartNumber(), "error", err)
			t.emitTransferStatus(false)
			ts.FlushDataUp()
			partFinished(PartFinishRetry)
			return
		}

		state.SetETag(ts.PartIndex(), etag)
		ts.AddDataUp(length)

		logger.Info("Part uploaded",
			"key", state.Key(),
			"partNumber", ts.PartNumber(),
			"completed", state.NumPartsCompleted()+1,
			"numParts", state.NumParts())

		if state.IncNumPartsCompleted() {
			t.CompleteMultipartUpload(state.Key(), state.UploadID(), state.ETags(), func(completeErr error) {
				state.SetFinished(completeErr)
			})
		}

		t.emitTransferStatus(true)
		ts.FlushDataUp()
		partFinished(PartFinishDone)
	})
}

// GetObjectMultipart downloads an object in numParts ranged part reads
// through the download processor. Chunks reach receivePart tagged with their
// part number, in no particular order across parts.
func (t *Transport) GetObjectMultipart(key string, numParts uint32, receivePart ReceivePartCallback, finished MultipartFinishedCallback) {
	state := NewMultipartDownloadState(key, numParts)

	state.SetProcessPartCallback(func(ts *TransferState, partFinished PartFinishedCallback) {
		t.getPart(state, ts, receivePart, partFinished)
	})
	state.SetFinishedCallback(func(err error) {
		finished(err, numParts)
	})

	logger.Info("Beginning multipart download", "key", key, "numParts", numParts)

	t.downloadProcessor.PushQueue(state)
}

// getPart downloads one part, forwarding chunks and accumulating byte counts.
// The last part to complete terminates the transfer.
func (t *Transport) getPart(state *MultipartDownloadState, ts *TransferState, receivePart ReceivePartCallback, partFinished PartFinishedCallback) {
	t.GetObject(state.Key(), ts.PartNumber(), func(chunk []byte) {
		ts.AddDataDown(int64(len(chunk)))
		if receivePart != nil {
			receivePart(ts.PartNumber(), chunk)
		}
	}, func(err error) {
		if err != nil {
			logger.Error("Part download failed",
				"key", state.Key(), "partNumber", ts.PartNumber(), "error", err)
			t.emitTransferStatus(false)
			ts.FlushDataDown()
			partFinished(PartFinishRetry)
			return
		}

		logger.Info("Part downloaded",
			"key", state.Key(),
			"partNumber", ts.PartNumber(),
			"completed", state.NumPartsCompleted()+1,
			"numParts", state.NumParts())

		if state.IncNumPartsCompleted() {
			state.SetFinished(nil)
		}

		t.emitTransferStatus(true)
		ts.FlushDataDown()
		partFinished(PartFinishDone)
	})
}

// CreateMultipartUpload initiates a multipart upload for key and extracts the
// upload ID from the response body.
func (t *Transport) CreateMultipartUpload(key string, callback func(uploadID string, err error)) {
	req, err := t.newRequest(http.MethodPost, key+"?uploads", nil, 0)
	if err != nil {
		callback("", fmt.Errorf("%w: %v", ErrTransferFailed, err))
		return
	}
	req.Header.Set("Content-Type", "text/plain")

	var body strings.Builder
	opts := requestOptions{
		onIncomingBody: func(chunk []byte) {
			body.Write(chunk)
		},
		onStreamComplete: func(statusCode int, streamErr error) {
			if streamErr != nil {
				logger.Error("Create multipart upload stream failed", "key", key, "error", streamErr)
				callback("", ErrTransferFailed)
				return
			}
			if statusCode != http.StatusOK {
				logger.Error("Create multipart upload returned unexpected status", "key", key, "status", statusCode)
				callback("", ErrTransferFailed)
				return
			}
			uploadID := extractUploadID(body.String())
			if uploadID == "" {
				logger.Error("Create multipart upload response missing UploadId", "key", key)
				callback("", ErrMissingResponseMetadata)
				return
			}
			callback(uploadID, nil)
		},
	}

	t.makeSignedRequest(req, opts, func(cm *ConnManager, err error) {
		if err != nil {
			callback("", err)
		}
	})
}

// extractUploadID pulls the UploadId element value out of a create-upload
// response body. Returns "" when the tags are absent.
func extractUploadID(body string) string {
	const openTag = "<UploadId>"
	const closeTag = "</UploadId>"

	start := strings.Index(body, openTag)
	if start < 0 {
		return ""
	}
	start += len(openTag)
	end := strings.Index(body[start:], closeTag)
	if end < 0 {
		return ""
	}
	return body[start : start+end]
}

// buildCompleteMultipartBody renders the part manifest for a complete-upload
// request. ETags are listed in part-number order.
func buildCompleteMultipartBody(etags []string) string {
	var b strings.Builder
	b.WriteString("<?xml version=\"1.0\" encoding=\"UTF-8\" ?>\n")
	b.WriteString("<CompleteMultipartUpload xmlns=\"http://s3.amazonaws.com/doc/2006-03-01/\">\n")
	for i, etag := range etags {
		b.WriteString("   <Part>\n")
		b.WriteString(fmt.Sprintf("       <ETag>%s</ETag>\n", etag))
		b.WriteString(fmt.Sprintf("       <PartNumber>%d</PartNumber>\n", i+1))
		b.WriteString("   </Part>\n")
	}
	b.WriteString("</CompleteMultipartUpload>")
	return b.String()
}

// CompleteMultipartUpload finalizes a multipart upload with the accumulated
// part ETags.
func (t *Transport) CompleteMultipartUpload(key, uploadID string, etags []string, callback func(err error)) {
	payload := buildCompleteMultipartBody(etags)
	req, err := t.newRequest(http.MethodPost, fmt.Sprintf("%s?uploadId=%s", key, uploadID), strings.NewReader(payload), int64(len(payload)))
	if err != nil {
		callback(fmt.Errorf("%w: %v", ErrTransferFailed, err))
		return
	}
	req.Header.Set("Content-Type", "text/plain")

	opts := requestOptions{
		onStreamComplete: func(statusCode int, streamErr error) {
			if streamErr != nil {
				logger.Error("Complete multipart upload stream failed", "key", key, "error", streamErr)
				callback(ErrTransferFailed)
				return
			}
			if statusCode != http.StatusOK {
				logger.Error("Complete multipart upload returned unexpected status", "key", key, "status", statusCode)
				callback(ErrTransferFailed)
				return
			}
			logger.Info("Multipart upload completed", "key", key, "uploadId", uploadID)
			callback(nil)
		},
	}

	t.makeSignedRequest(req, opts, func(cm *ConnManager, err error) {
		if err != nil {
			callback(err)
		}
	})
}

// AbortMultipartUpload abandons a multipart upload. A 204 response is the
// only success status. Issued best-effort even when the upload ID is empty;
// the service rejects it and the caller's error handling proceeds regardless.
func (t *Transport) AbortMultipartUpload(key, uploadID string, callback func(err error)) {
	req, err := t.newRequest(http.MethodDelete, fmt.Sprintf("%s?uploadId=%s", key, uploadID), nil, 0)
	if err != nil {
		callback(fmt.Errorf("%w: %v", ErrTransferFailed, err))
		return
	}

	opts := requestOptions{
		onStreamComplete: func(statusCode int, streamErr error) {
			if streamErr != nil {
				logger.Error("Abort multipart upload stream failed", "key", key, "error", streamErr)
				callback(ErrTransferFailed)
				return
			}
			if statusCode != http.StatusNoContent {
				logger.Error("Abort multipart upload returned unexpected status", "key", key, "status", statusCode)
				callback(ErrTransferFailed)
				return
			}
			logger.Info("Multipart upload aborted", "key", key, "uploadId", uploadID)
			callback(nil)
		},
	}

	t.makeSignedRequest(req, opts, func(cm *ConnManager, err error) {
		if err != nil {
			callback(err)
		}
	})
}

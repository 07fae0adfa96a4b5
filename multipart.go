// Multipart upload engine: create, part loop, complete, best-effort abort.
package s3kit

import (
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"

	s3errors "github.com/kerolabs/s3kit/errors"
	"github.com/kerolabs/s3kit/internal/validation"
	"github.com/kerolabs/s3kit/internal/wire"
)

// MaxParts is the store's cap on parts per multipart upload. Exceeding it is
// a UserError raised before the offending part request is issued.
const MaxParts = 10000

// PutObjectMultipart uploads an object of arbitrary or unknown size by
// streaming it in chunks. The reader is consumed sequentially; each full
// chunk becomes one part. An empty source still produces the object, as a
// single zero-length part.
//
// If any part or the completion fails, the upload is aborted on a
// best-effort basis so the store does not accumulate orphaned parts, and the
// original error is returned.
func (b *Bucket) PutObjectMultipart(ctx context.Context, key string, r io.Reader, opts ...UploadOption) error {
	const op = "putObjectMultipart"
	if err := validation.ValidateObjectKey(key); err != nil {
		return s3errors.NewError(op, s3errors.NewUserError(err)).WithBucket(b.name).WithKey(key)
	}

	cfg := uploadConfig{chunkSize: b.client.chunkSize, concurrency: 1}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.chunkSize < MinChunkSize {
		return s3errors.NewError(op, s3errors.NewUserError(s3errors.ErrChunkTooSmall)).
			WithBucket(b.name).WithKey(key)
	}

	uploadID, err := b.createMultipartUpload(ctx, key, cfg.contentType)
	if err != nil {
		return s3errors.NewError(op, err).WithBucket(b.name).WithKey(key)
	}

	var parts []wire.CompletedPart
	if cfg.concurrency > 1 {
		parts, err = b.uploadPartsConcurrent(ctx, key, uploadID, r, cfg.chunkSize, cfg.concurrency)
	} else {
		parts, err = b.uploadPartsSequential(ctx, key, uploadID, r, cfg.chunkSize)
	}
	if err != nil {
		b.abortMultipartUpload(ctx, key, uploadID)
		return s3errors.NewError(op, err).WithBucket(b.name).WithKey(key)
	}

	if err := b.completeMultipartUpload(ctx, key, uploadID, parts); err != nil {
		b.abortMultipartUpload(ctx, key, uploadID)
		return s3errors.NewError(op, err).WithBucket(b.name).WithKey(key)
	}
	return nil
}

// uploadPartsSequential reads and uploads one chunk at a time.
func (b *Bucket) uploadPartsSequential(
	ctx context.Context,
	key, uploadID string,
	r io.Reader,
	chunkSize int64,
) ([]wire.CompletedPart, error) {
	buf := make([]byte, chunkSize)
	var parts []wire.CompletedPart

	for partNum := 1; ; partNum++ {
		n, ferr := fillBuffer(r, buf)
		if ferr != nil && ferr != io.EOF {
			return nil, s3errors.NewUserError(fmt.Errorf("reading source: %w", ferr))
		}
		// A trailing zero read after at least one part means the source is
		// done. On the first iteration it means an empty source, which still
		// gets its one zero-length part.
		if n == 0 && partNum > 1 {
			break
		}
		if partNum > MaxParts {
			return nil, s3errors.NewUserError(s3errors.ErrTooManyParts)
		}

		etag, err := b.uploadPart(ctx, key, uploadID, partNum, buf[:n])
		if err != nil {
			return nil, err
		}
		parts = append(parts, wire.CompletedPart{PartNumber: partNum, ETag: etag})

		if ferr == io.EOF {
			break
		}
	}
	return parts, nil
}

// uploadPartsConcurrent overlaps part round-trips on a bounded worker pool.
// The source is still read sequentially, and at most `workers` chunk buffers
// exist at once. Completion is keyed by part number, so the assembled part
// list is ordered regardless of which upload finished first.
func (b *Bucket) uploadPartsConcurrent(
	ctx context.Context,
	key, uploadID string,
	r io.Reader,
	chunkSize int64,
	workers int,
) ([]wire.CompletedPart, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		etags    = make(map[int]string)
		firstErr error
	)
	fail := func(err error) {
		mu.Lock()
		defer mu.Unlock()
		if firstErr == nil {
			firstErr = err
			cancel()
		}
	}
	failed := func() bool {
		mu.Lock()
		defer mu.Unlock()
		return firstErr != nil
	}

	sem := make(chan struct{}, workers)
	partCount := 0

	for partNum := 1; ; partNum++ {
		// Acquire a slot before allocating the chunk buffer so in-flight
		// memory stays bounded at workers * chunkSize.
		sem <- struct{}{}
		if failed() {
			<-sem
			break
		}

		buf := make([]byte, chunkSize)
		n, ferr := fillBuffer(r, buf)
		if ferr != nil && ferr != io.EOF {
			fail(s3errors.NewUserError(fmt.Errorf("reading source: %w", ferr)))
			<-sem
			break
		}
		if n == 0 && partNum > 1 {
			<-sem
			break
		}
		if partNum > MaxParts {
			fail(s3errors.NewUserError(s3errors.ErrTooManyParts))
			<-sem
			break
		}

		partCount = partNum
		wg.Add(1)
		go func(partNum int, data []byte) {
			defer wg.Done()
			defer func() { <-sem }()

			etag, err := b.uploadPart(ctx, key, uploadID, partNum, data)
			if err != nil {
				fail(err)
				return
			}
			mu.Lock()
			etags[partNum] = etag
			mu.Unlock()
		}(partNum, buf[:n])

		if ferr == io.EOF {
			break
		}
	}

	wg.Wait()
	if firstErr != nil {
		return nil, firstErr
	}

	parts := make([]wire.CompletedPart, 0, partCount)
	for pn := 1; pn <= partCount; pn++ {
		etag, ok := etags[pn]
		if !ok {
			return nil, &s3errors.InternalError{
				Reason: fmt.Sprintf("part %d missing after upload", pn),
			}
		}
		parts = append(parts, wire.CompletedPart{PartNumber: pn, ETag: etag})
	}
	return parts, nil
}

// createMultipartUpload starts an upload and returns its id.
func (b *Bucket) createMultipartUpload(ctx context.Context, key, contentType string) (string, error) {
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	header := http.Header{"Content-Type": {contentType}}
	query := url.Values{"uploads": {""}}

	resp, err := b.client.do(ctx, http.MethodPost, b.name, key, query, header, nil, -1)
	if err != nil {
		return "", err
	}
	defer drainClose(resp.Body)

	var result wire.InitiateMultipartUploadResult
	if err := xml.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", &s3errors.InternalError{Reason: "unparsable create-upload response", Err: err}
	}
	if result.UploadID == "" {
		return "", &s3errors.InternalError{Reason: "create-upload response has no upload id"}
	}
	return result.UploadID, nil
}

// uploadPart sends one part and returns its completion token. The store must
// echo an ETag header; its absence makes the part impossible to complete.
func (b *Bucket) uploadPart(ctx context.Context, key, uploadID string, partNum int, data []byte) (string, error) {
	query := url.Values{
		"partNumber": {strconv.Itoa(partNum)},
		"uploadId":   {uploadID},
	}
	resp, err := b.client.do(
		ctx, http.MethodPut, b.name, key, query, nil,
		bytes.NewReader(data), int64(len(data)),
	)
	if err != nil {
		return "", err
	}
	drainClose(resp.Body)

	etag := resp.Header.Get("ETag")
	if etag == "" {
		return "", &s3errors.InternalError{
			Reason: fmt.Sprintf("no ETag header in part %d response", partNum),
		}
	}
	return trimETag(etag), nil
}

// completeMultipartUpload finalizes the upload with the ordered part list.
func (b *Bucket) completeMultipartUpload(
	ctx context.Context,
	key, uploadID string,
	parts []wire.CompletedPart,
) error {
	payload, err := xml.Marshal(wire.CompleteMultipartUpload{Parts: parts})
	if err != nil {
		return &s3errors.InternalError{Reason: "encoding complete-upload request", Err: err}
	}

	query := url.Values{"uploadId": {uploadID}}
	header := http.Header{"Content-Type": {"application/xml"}}
	resp, err := b.client.do(
		ctx, http.MethodPost, b.name, key, query, header,
		bytes.NewReader(payload), int64(len(payload)),
	)
	if err != nil {
		return err
	}
	defer drainClose(resp.Body)

	var result wire.CompleteMultipartUploadResult
	if err := xml.NewDecoder(resp.Body).Decode(&result); err != nil {
		return &s3errors.InternalError{Reason: "unparsable complete-upload response", Err: err}
	}
	return nil
}

// abortMultipartUpload discards a failed upload's parts. Best effort: the
// caller is already propagating the original failure, and an orphaned upload
// is recoverable server-side, so abort errors are dropped. Runs detached
// from the caller's context so a cancellation that killed the upload does
// not also kill the cleanup.
func (b *Bucket) abortMultipartUpload(ctx context.Context, key, uploadID string) {
	query := url.Values{"uploadId": {uploadID}}
	resp, err := b.client.do(
		context.WithoutCancel(ctx), http.MethodDelete, b.name, key, query, nil, nil, -1,
	)
	if err != nil {
		return
	}
	drainClose(resp.Body)
}

// fillBuffer reads until buf is full or the source ends, retrying short
// reads. Returns io.EOF exactly when the source is exhausted, whether or not
// bytes were read first.
func fillBuffer(r io.Reader, buf []byte) (int, error) {
	n, err := io.ReadFull(r, buf)
	if err == io.ErrUnexpectedEOF || err == io.EOF {
		return n, io.EOF
	}
	return n, err
}

// trimETag strips the quotes the store wraps around entity tags.
func trimETag(s string) string {
	return strings.Trim(s, `"`)
}

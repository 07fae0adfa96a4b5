// Bucket operations: bucket lifecycle and single-shot object access.
package s3kit

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/base64"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"unicode/utf8"

	"github.com/gabriel-vasile/mimetype"

	s3errors "github.com/kerolabs/s3kit/errors"
	"github.com/kerolabs/s3kit/internal/transport"
	"github.com/kerolabs/s3kit/internal/validation"
	"github.com/kerolabs/s3kit/internal/wire"
)

// copyBufferSize bounds the intermediate buffer used when streaming object
// bodies to a writer.
const copyBufferSize = 128 << 10

// maxKeysPerDelete is the store's limit on keys per batch delete request.
const maxKeysPerDelete = 1000

// Bucket is a handle on one bucket. It is stateless beyond its name: every
// operation signs a fresh request through the shared Client. Handles are
// cheap and safe to use concurrently.
type Bucket struct {
	client *Client
	name   string
}

// Name returns the bucket name.
func (b *Bucket) Name() string {
	return b.name
}

// Create creates the bucket on the store. Creating a bucket that already
// exists surfaces as a StoreError with code BucketAlreadyExists or
// BucketAlreadyOwnedByYou; callers wanting create-or-ignore semantics match
// those codes (see errors.IsBucketAlreadyExists).
func (b *Bucket) Create(ctx context.Context) error {
	resp, err := b.client.do(ctx, http.MethodPut, b.name, "", nil, nil, nil, -1)
	if err != nil {
		return s3errors.NewError("createBucket", err).WithBucket(b.name)
	}
	drainClose(resp.Body)
	return nil
}

// Delete deletes the bucket. The bucket must be empty; a non-empty bucket
// surfaces as a StoreError with code BucketNotEmpty.
func (b *Bucket) Delete(ctx context.Context) error {
	resp, err := b.client.do(ctx, http.MethodDelete, b.name, "", nil, nil, nil, -1)
	if err != nil {
		return s3errors.NewError("deleteBucket", err).WithBucket(b.name)
	}
	drainClose(resp.Body)
	return nil
}

// PutObject uploads data as a single object. The content type is detected
// from the payload unless WithContentType overrides it.
func (b *Bucket) PutObject(ctx context.Context, key string, data []byte, opts ...UploadOption) error {
	const op = "putObject"
	if err := validation.ValidateObjectKey(key); err != nil {
		return s3errors.NewError(op, s3errors.NewUserError(err)).WithBucket(b.name).WithKey(key)
	}

	cfg := uploadConfig{}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.contentType == "" {
		cfg.contentType = mimetype.Detect(data).String()
	}

	header := http.Header{"Content-Type": {cfg.contentType}}
	resp, err := b.client.do(
		ctx, http.MethodPut, b.name, key, nil, header,
		bytes.NewReader(data), int64(len(data)),
	)
	if err != nil {
		return s3errors.NewError(op, err).WithBucket(b.name).WithKey(key)
	}
	drainClose(resp.Body)
	return nil
}

// GetObjectReader streams an object. The caller must close the reader.
func (b *Bucket) GetObjectReader(ctx context.Context, key string) (io.ReadCloser, error) {
	const op = "getObject"
	if err := validation.ValidateObjectKey(key); err != nil {
		return nil, s3errors.NewError(op, s3errors.NewUserError(err)).WithBucket(b.name).WithKey(key)
	}

	resp, err := b.client.do(ctx, http.MethodGet, b.name, key, nil, nil, nil, -1)
	if err != nil {
		return nil, s3errors.NewError(op, err).WithBucket(b.name).WithKey(key)
	}
	return resp.Body, nil
}

// GetObject fetches an entire object into memory. This accessor never fails
// on payload encoding; use GetObjectString for a validated text view.
func (b *Bucket) GetObject(ctx context.Context, key string) ([]byte, error) {
	body, err := b.GetObjectReader(ctx, key)
	if err != nil {
		return nil, err
	}
	defer body.Close()

	data, err := io.ReadAll(body)
	if err != nil {
		return nil, s3errors.NewError("getObject", &s3errors.TransportError{Err: err}).
			WithBucket(b.name).WithKey(key)
	}
	return data, nil
}

// GetObjectString fetches an object as text. A payload that is not valid
// UTF-8 is a UserError (ErrNonUTF8Payload); the raw bytes remain reachable
// through GetObject, which never fails on encoding.
func (b *Bucket) GetObjectString(ctx context.Context, key string) (string, error) {
	data, err := b.GetObject(ctx, key)
	if err != nil {
		return "", err
	}
	if !utf8.Valid(data) {
		return "", s3errors.NewError("getObjectString", s3errors.NewUserError(s3errors.ErrNonUTF8Payload)).
			WithBucket(b.name).WithKey(key)
	}
	return string(data), nil
}

// GetObjectToWriter streams an object into w through a bounded buffer,
// returning the number of bytes written. The object is never held in memory
// as a whole.
func (b *Bucket) GetObjectToWriter(ctx context.Context, key string, w io.Writer) (int64, error) {
	body, err := b.GetObjectReader(ctx, key)
	if err != nil {
		return 0, err
	}
	defer body.Close()

	n, err := io.CopyBuffer(w, body, make([]byte, copyBufferSize))
	if err != nil {
		return n, s3errors.NewError("getObject", &s3errors.TransportError{Err: err}).
			WithBucket(b.name).WithKey(key)
	}
	return n, nil
}

// DeleteObject deletes one object. Deleting an absent key is not an error.
func (b *Bucket) DeleteObject(ctx context.Context, key string) error {
	const op = "deleteObject"
	if err := validation.ValidateObjectKey(key); err != nil {
		return s3errors.NewError(op, s3errors.NewUserError(err)).WithBucket(b.name).WithKey(key)
	}

	resp, err := b.client.do(ctx, http.MethodDelete, b.name, key, nil, nil, nil, -1)
	if err != nil {
		return s3errors.NewError(op, err).WithBucket(b.name).WithKey(key)
	}
	drainClose(resp.Body)
	return nil
}

// DeleteObjects deletes up to 1000 objects in one batch request. Each key
// succeeds or fails independently; per-key failures are reported in the
// result, not as an error.
func (b *Bucket) DeleteObjects(ctx context.Context, keys []string) (*DeleteResult, error) {
	const op = "deleteObjects"
	if len(keys) == 0 {
		return nil, s3errors.NewError(op, s3errors.NewUserError(
			fmt.Errorf("%w: keys cannot be empty", s3errors.ErrInvalidObjectKey),
		)).WithBucket(b.name)
	}
	if len(keys) > maxKeysPerDelete {
		return nil, s3errors.NewError(op, s3errors.NewUserError(s3errors.ErrTooManyKeys)).
			WithBucket(b.name)
	}

	req := wire.Delete{Objects: make([]wire.ObjectIdentifier, 0, len(keys))}
	for _, key := range keys {
		if err := validation.ValidateObjectKey(key); err != nil {
			return nil, s3errors.NewError(op, s3errors.NewUserError(err)).
				WithBucket(b.name).WithKey(key)
		}
		req.Objects = append(req.Objects, wire.ObjectIdentifier{Key: key})
	}

	payload, err := xml.Marshal(req)
	if err != nil {
		return nil, s3errors.NewError(op, &s3errors.InternalError{
			Reason: "encoding delete request", Err: err,
		}).WithBucket(b.name)
	}

	// The store requires a Content-MD5 on batch deletes.
	sum := md5.Sum(payload)
	header := http.Header{
		"Content-Type": {"application/xml"},
		"Content-Md5":  {base64.StdEncoding.EncodeToString(sum[:])},
	}

	query := url.Values{"delete": {""}}
	resp, err := b.client.do(
		ctx, http.MethodPost, b.name, "", query, header,
		bytes.NewReader(payload), int64(len(payload)),
	)
	if err != nil {
		return nil, s3errors.NewError(op, err).WithBucket(b.name)
	}
	defer drainClose(resp.Body)

	var result wire.DeleteResult
	if err := xml.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, s3errors.NewError(op, &s3errors.InternalError{
			Reason: "unparsable delete response", Err: err,
		}).WithBucket(b.name)
	}

	out := &DeleteResult{}
	for _, d := range result.Deleted {
		out.Deleted = append(out.Deleted, d.Key)
	}
	for _, e := range result.Errors {
		out.Errors = append(out.Errors, DeleteError{Key: e.Key, Code: e.Code, Message: e.Message})
	}
	return out, nil
}

// CopyObject copies srcBucket/srcKey into this bucket at dstKey, entirely on
// the server side.
func (b *Bucket) CopyObject(ctx context.Context, srcBucket, srcKey, dstKey string) error {
	const op = "copyObject"
	if err := validation.ValidateBucketName(srcBucket); err != nil {
		return s3errors.NewError(op, s3errors.NewUserError(err)).WithBucket(srcBucket)
	}
	if err := validation.ValidateObjectKey(srcKey); err != nil {
		return s3errors.NewError(op, s3errors.NewUserError(err)).WithBucket(srcBucket).WithKey(srcKey)
	}
	if err := validation.ValidateObjectKey(dstKey); err != nil {
		return s3errors.NewError(op, s3errors.NewUserError(err)).WithBucket(b.name).WithKey(dstKey)
	}

	header := http.Header{"X-Amz-Copy-Source": {"/" + srcBucket + "/" + srcKey}}
	resp, err := b.client.do(ctx, http.MethodPut, b.name, dstKey, nil, header, nil, -1)
	if err != nil {
		return s3errors.NewError(op, err).WithBucket(b.name).WithKey(dstKey)
	}
	defer drainClose(resp.Body)

	var result wire.CopyObjectResult
	if err := xml.NewDecoder(resp.Body).Decode(&result); err != nil {
		return s3errors.NewError(op, &s3errors.InternalError{
			Reason: "unparsable copy response", Err: err,
		}).WithBucket(b.name).WithKey(dstKey)
	}
	return nil
}

// HeadObject fetches an object's metadata without its body.
func (b *Bucket) HeadObject(ctx context.Context, key string) (*ObjectInfo, error) {
	const op = "headObject"
	if err := validation.ValidateObjectKey(key); err != nil {
		return nil, s3errors.NewError(op, s3errors.NewUserError(err)).WithBucket(b.name).WithKey(key)
	}

	resp, err := b.head(ctx, key)
	if err != nil {
		return nil, s3errors.NewError(op, err).WithBucket(b.name).WithKey(key)
	}
	drainClose(resp.Body)

	info := &ObjectInfo{
		Key:         key,
		ContentType: resp.Header.Get("Content-Type"),
		ETag:        trimETag(resp.Header.Get("ETag")),
	}
	if cl := resp.Header.Get("Content-Length"); cl != "" {
		info.Size, _ = strconv.ParseInt(cl, 10, 64)
	}
	if lm := resp.Header.Get("Last-Modified"); lm != "" {
		info.LastModified, _ = http.ParseTime(lm)
	}
	return info, nil
}

// Exists reports whether an object exists, using a HEAD request. An absent
// key is not an error.
func (b *Bucket) Exists(ctx context.Context, key string) (bool, error) {
	_, err := b.HeadObject(ctx, key)
	if err != nil {
		if s3errors.IsNoSuchKey(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// head sends a HEAD request. HEAD responses carry no body, so the usual XML
// classifier cannot apply; the store error is synthesized from the status.
func (b *Bucket) head(ctx context.Context, key string) (*transport.Response, error) {
	signed, err := b.client.signer.Presign(ctx, http.MethodHead, b.name, key, nil)
	if err != nil {
		return nil, &s3errors.InternalError{Reason: "signing request", Err: err}
	}

	resp, err := b.client.transport.Send(ctx, http.MethodHead, signed, nil, nil, -1)
	if err != nil {
		return nil, &s3errors.TransportError{Err: err}
	}

	if resp.StatusCode >= 200 && resp.StatusCode <= 299 {
		return resp, nil
	}
	drainClose(resp.Body)

	switch resp.StatusCode {
	case http.StatusNotFound:
		return nil, &s3errors.StoreError{
			StatusCode: resp.StatusCode,
			Code:       s3errors.CodeNoSuchKey,
			Message:    "The specified key does not exist.",
			Resource:   "/" + b.name + "/" + key,
		}
	case http.StatusForbidden:
		return nil, &s3errors.StoreError{
			StatusCode: resp.StatusCode,
			Code:       s3errors.CodeAccessDenied,
			Message:    "Access Denied",
			Resource:   "/" + b.name + "/" + key,
		}
	default:
		return nil, &s3errors.InternalError{
			Reason: fmt.Sprintf("head request returned status %d", resp.StatusCode),
		}
	}
}

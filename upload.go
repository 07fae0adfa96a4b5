// Size-based upload dispatch.
package s3kit

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/gabriel-vasile/mimetype"

	s3errors "github.com/kerolabs/s3kit/errors"
)

// Upload stores the contents of r under key, choosing the cheapest wire
// strategy for the declared size: sources under MinChunkSize go up as a
// single PUT, everything else through the multipart engine. A negative size
// means unknown and always takes the multipart path.
func (b *Bucket) Upload(ctx context.Context, key string, r io.Reader, size int64, opts ...UploadOption) error {
	if size >= 0 && size < MinChunkSize {
		data, err := io.ReadAll(r)
		if err != nil {
			return s3errors.NewError("upload", s3errors.NewUserError(
				fmt.Errorf("reading source: %w", err),
			)).WithBucket(b.name).WithKey(key)
		}
		return b.PutObject(ctx, key, data, opts...)
	}
	return b.PutObjectMultipart(ctx, key, r, opts...)
}

// UploadFile stores a local file under key. The size comes from the file
// stat and the content type is sniffed from the file unless WithContentType
// overrides it.
func (b *Bucket) UploadFile(ctx context.Context, key, path string, opts ...UploadOption) error {
	const op = "uploadFile"

	f, err := os.Open(path)
	if err != nil {
		return s3errors.NewError(op, s3errors.NewUserError(
			fmt.Errorf("opening %s: %w", path, err),
		)).WithBucket(b.name).WithKey(key)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return s3errors.NewError(op, s3errors.NewUserError(
			fmt.Errorf("stating %s: %w", path, err),
		)).WithBucket(b.name).WithKey(key)
	}

	cfg := uploadConfig{}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.contentType == "" {
		// Sniffing reads a prefix of the file, so rewind before uploading.
		if mt, err := mimetype.DetectReader(f); err == nil {
			opts = append(opts, WithContentType(mt.String()))
		}
		if _, err := f.Seek(0, io.SeekStart); err != nil {
			return s3errors.NewError(op, &s3errors.InternalError{
				Reason: "rewinding source", Err: err,
			}).WithBucket(b.name).WithKey(key)
		}
	}

	return b.Upload(ctx, key, f, info.Size(), opts...)
}

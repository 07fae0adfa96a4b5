package s3kit

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	s3errors "github.com/kerolabs/s3kit/errors"
	"github.com/kerolabs/s3kit/internal/testutil"
)

// makePayload builds a deterministic byte pattern so reassembly mistakes
// (reordered or truncated parts) change the content, not just the length.
func makePayload(n int) []byte {
	data := make([]byte, n)
	for i := range data {
		data[i] = byte(i % 251)
	}
	return data
}

func TestPutObjectMultipartRoundTrip(t *testing.T) {
	tests := []struct {
		name      string
		size      int
		wantParts int
	}{
		{"single small part", 1, 1},
		{"exactly one chunk", MinChunkSize, 1},
		{"exact multiple of chunk", 2 * MinChunkSize, 2},
		{"partial final part", 2*MinChunkSize + 1234, 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := testutil.NewServer()
			defer srv.Close()
			client := newTestClient(t, srv)
			bucket := newTestBucket(t, srv, client, "multi")

			payload := makePayload(tt.size)
			err := bucket.PutObjectMultipart(
				context.Background(), "big.bin", bytes.NewReader(payload),
				WithUploadChunkSize(MinChunkSize),
			)
			require.NoError(t, err)

			stored, ok := srv.Object("multi", "big.bin")
			require.True(t, ok)
			assert.Equal(t, payload, stored)
			assert.Equal(t, tt.wantParts, srv.PartCalls)
			assert.Equal(t, 1, srv.InitiateCalls)
			assert.Equal(t, 1, srv.CompleteCalls)
			assert.Zero(t, srv.AbortCalls)
			assert.Zero(t, srv.UploadCount("multi"), "no pending uploads after completion")
		})
	}
}

func TestPutObjectMultipartEmptySource(t *testing.T) {
	srv := testutil.NewServer()
	defer srv.Close()
	client := newTestClient(t, srv)
	bucket := newTestBucket(t, srv, client, "empty")

	err := bucket.PutObjectMultipart(context.Background(), "zero.bin", bytes.NewReader(nil))
	require.NoError(t, err)

	stored, ok := srv.Object("empty", "zero.bin")
	require.True(t, ok, "an empty source still produces the object")
	assert.Empty(t, stored)
	assert.Equal(t, 1, srv.PartCalls, "one zero-length part")
}

func TestPutObjectMultipartAbortsOnPartFailure(t *testing.T) {
	srv := testutil.NewServer()
	defer srv.Close()
	srv.FailPartNumber = 2
	client := newTestClient(t, srv)
	bucket := newTestBucket(t, srv, client, "flaky")

	payload := makePayload(2 * MinChunkSize)
	err := bucket.PutObjectMultipart(
		context.Background(), "doomed.bin", bytes.NewReader(payload),
		WithUploadChunkSize(MinChunkSize),
	)
	require.Error(t, err)

	storeErr, ok := s3errors.AsStoreError(err)
	require.True(t, ok, "the part failure propagates unchanged")
	assert.Equal(t, s3errors.CodeInternalError, storeErr.Code)

	assert.Equal(t, 1, srv.AbortCalls, "failed upload is aborted")
	assert.Zero(t, srv.CompleteCalls)
	assert.Zero(t, srv.UploadCount("flaky"), "no orphaned upload left behind")

	_, exists := srv.Object("flaky", "doomed.bin")
	assert.False(t, exists)
}

func TestPutObjectMultipartMissingETag(t *testing.T) {
	srv := testutil.NewServer()
	defer srv.Close()
	srv.SuppressETag = true
	client := newTestClient(t, srv)
	bucket := newTestBucket(t, srv, client, "lawless")

	err := bucket.PutObjectMultipart(
		context.Background(), "no-etag.bin", bytes.NewReader(makePayload(64)),
	)
	require.Error(t, err)

	var internalErr *s3errors.InternalError
	require.ErrorAs(t, err, &internalErr, "a missing ETag violates the store contract")
	assert.Equal(t, 1, srv.AbortCalls)
}

func TestPutObjectMultipartPartCap(t *testing.T) {
	srv := testutil.NewServer()
	defer srv.Close()
	client := newTestClient(t, srv)
	bucket := newTestBucket(t, srv, client, "capped")
	ctx := context.Background()

	// The public path cannot produce 10000 parts in a test, so this drives
	// the part loop directly with a one-byte chunk size.
	uploadID, err := bucket.createMultipartUpload(ctx, "huge.bin", "")
	require.NoError(t, err)

	source := bytes.NewReader(make([]byte, MaxParts+1))
	_, err = bucket.uploadPartsSequential(ctx, "huge.bin", uploadID, source, 1)
	require.Error(t, err)
	assert.ErrorIs(t, err, s3errors.ErrTooManyParts)
	assert.True(t, s3errors.IsUserError(err))
	assert.Equal(t, MaxParts, srv.PartCalls, "the cap is enforced before the offending request")
}

func TestPutObjectMultipartRejectsSmallChunk(t *testing.T) {
	srv := testutil.NewServer()
	defer srv.Close()
	client := newTestClient(t, srv)
	bucket := newTestBucket(t, srv, client, "strict")

	err := bucket.PutObjectMultipart(
		context.Background(), "x.bin", bytes.NewReader(makePayload(64)),
		WithUploadChunkSize(1024),
	)
	require.Error(t, err)
	assert.ErrorIs(t, err, s3errors.ErrChunkTooSmall)
	assert.Zero(t, srv.InitiateCalls, "rejected before any request")
}

func TestPutObjectMultipartConcurrent(t *testing.T) {
	srv := testutil.NewServer()
	defer srv.Close()
	client := newTestClient(t, srv)
	bucket := newTestBucket(t, srv, client, "parallel")

	payload := makePayload(3*MinChunkSize + 999)
	err := bucket.PutObjectMultipart(
		context.Background(), "fanout.bin", bytes.NewReader(payload),
		WithUploadChunkSize(MinChunkSize),
		WithUploadConcurrency(4),
	)
	require.NoError(t, err)

	stored, ok := srv.Object("parallel", "fanout.bin")
	require.True(t, ok)
	assert.Equal(t, payload, stored, "parts reassemble in part-number order")
	assert.Equal(t, 4, srv.PartCalls)
}

func TestPutObjectMultipartConcurrentPartFailure(t *testing.T) {
	srv := testutil.NewServer()
	defer srv.Close()
	srv.FailPartNumber = 1
	client := newTestClient(t, srv)
	bucket := newTestBucket(t, srv, client, "parallel-flaky")

	payload := makePayload(2*MinChunkSize + 1)
	err := bucket.PutObjectMultipart(
		context.Background(), "doomed.bin", bytes.NewReader(payload),
		WithUploadChunkSize(MinChunkSize),
		WithUploadConcurrency(2),
	)
	require.Error(t, err)
	assert.Equal(t, 1, srv.AbortCalls)
	assert.Zero(t, srv.UploadCount("parallel-flaky"))
}

// brokenReader fails on the first read.
type brokenReader struct {
	err error
}

func (b brokenReader) Read([]byte) (int, error) {
	return 0, b.err
}

func TestPutObjectMultipartSourceReadFailure(t *testing.T) {
	srv := testutil.NewServer()
	defer srv.Close()
	client := newTestClient(t, srv)
	bucket := newTestBucket(t, srv, client, "torn")

	cause := errors.New("read: file already closed")
	err := bucket.PutObjectMultipart(context.Background(), "torn.bin", brokenReader{err: cause})
	require.Error(t, err)

	// The source reader belongs to the caller, so its failure is theirs,
	// not a store-contract violation.
	assert.ErrorIs(t, err, cause)
	assert.True(t, s3errors.IsUserError(err))
	var internalErr *s3errors.InternalError
	assert.False(t, errors.As(err, &internalErr))

	assert.Equal(t, 1, srv.AbortCalls)
	assert.Zero(t, srv.UploadCount("torn"))
}

func TestFillBuffer(t *testing.T) {
	t.Run("short reads accumulate until full", func(t *testing.T) {
		// iotest-style one-byte reader.
		r := oneByteReader{bytes.NewReader([]byte("abcdef"))}
		buf := make([]byte, 4)

		n, err := fillBuffer(r, buf)
		require.NoError(t, err)
		assert.Equal(t, 4, n)
		assert.Equal(t, []byte("abcd"), buf)
	})

	t.Run("partial final fill reports EOF with the bytes", func(t *testing.T) {
		r := bytes.NewReader([]byte("ab"))
		buf := make([]byte, 4)

		n, err := fillBuffer(r, buf)
		assert.Equal(t, 2, n)
		assert.ErrorIs(t, err, io.EOF)
	})

	t.Run("empty source reports zero and EOF", func(t *testing.T) {
		n, err := fillBuffer(bytes.NewReader(nil), make([]byte, 4))
		assert.Zero(t, n)
		assert.ErrorIs(t, err, io.EOF)
	})
}

type oneByteReader struct {
	r *bytes.Reader
}

func (o oneByteReader) Read(p []byte) (int, error) {
	if len(p) > 1 {
		p = p[:1]
	}
	return o.r.Read(p)
}

func TestTrimETag(t *testing.T) {
	for raw, want := range map[string]string{
		`"abc123"`: "abc123",
		"abc123":   "abc123",
		`""`:       "",
	} {
		assert.Equal(t, want, trimETag(raw), "raw %s", raw)
	}
}

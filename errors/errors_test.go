package errors

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassify(t *testing.T) {
	t.Run("2xx is not an error", func(t *testing.T) {
		for _, status := range []int{200, 201, 204, 206} {
			assert.NoError(t, Classify(status, strings.NewReader("")), "status %d", status)
		}
	})

	t.Run("parseable error document becomes a StoreError", func(t *testing.T) {
		body := `<?xml version="1.0" encoding="UTF-8"?>
<Error>
  <Code>NoSuchKey</Code>
  <Message>The specified key does not exist.</Message>
  <BucketName>kero</BucketName>
  <Resource>/kero/missing.txt</Resource>
  <RequestId>4442587FB7D0A2F9</RequestId>
  <HostId>host-id-value</HostId>
</Error>`

		err := Classify(404, strings.NewReader(body))
		require.Error(t, err)

		storeErr, ok := AsStoreError(err)
		require.True(t, ok)
		assert.Equal(t, CodeNoSuchKey, storeErr.Code)
		assert.Equal(t, "The specified key does not exist.", storeErr.Message)
		assert.Equal(t, "kero", storeErr.BucketName)
		assert.Equal(t, "/kero/missing.txt", storeErr.Resource)
		assert.Equal(t, "4442587FB7D0A2F9", storeErr.RequestID)
		assert.Equal(t, "host-id-value", storeErr.HostID)
		assert.Equal(t, 404, storeErr.StatusCode)
	})

	t.Run("unknown code deserializes verbatim", func(t *testing.T) {
		body := `<Error><Code>SomeBrandNewCode</Code><Message>novel failure</Message></Error>`

		err := Classify(400, strings.NewReader(body))
		storeErr, ok := AsStoreError(err)
		require.True(t, ok)
		assert.Equal(t, Code("SomeBrandNewCode"), storeErr.Code)
		assert.Equal(t, "novel failure", storeErr.Message)
	})

	t.Run("unparseable body is an InternalError", func(t *testing.T) {
		err := Classify(500, strings.NewReader("<html>gateway exploded</html>"))
		require.Error(t, err)

		var internalErr *InternalError
		require.ErrorAs(t, err, &internalErr)
		var storeErr *StoreError
		assert.False(t, errors.As(err, &storeErr))
	})
}

func TestErrorContext(t *testing.T) {
	base := &StoreError{Code: CodeNoSuchKey, Message: "absent"}
	err := NewError("getObject", base).WithBucket("kero").WithKey("a/b.txt")

	assert.Contains(t, err.Error(), "getObject")
	assert.Contains(t, err.Error(), "kero/a/b.txt")

	storeErr, ok := AsStoreError(err)
	require.True(t, ok)
	assert.Same(t, base, storeErr)
}

func TestIsHelpers(t *testing.T) {
	tests := []struct {
		name string
		err  error
		fn   func(error) bool
		want bool
	}{
		{
			name: "NoSuchKey through wrapper",
			err:  NewError("getObject", &StoreError{Code: CodeNoSuchKey}),
			fn:   IsNoSuchKey,
			want: true,
		},
		{
			name: "NoSuchBucket is not NoSuchKey",
			err:  NewError("getObject", &StoreError{Code: CodeNoSuchBucket}),
			fn:   IsNoSuchKey,
			want: false,
		},
		{
			name: "BucketAlreadyExists",
			err:  NewError("createBucket", &StoreError{Code: CodeBucketAlreadyExists}),
			fn:   IsBucketAlreadyExists,
			want: true,
		},
		{
			name: "BucketAlreadyOwnedByYou counts as already exists",
			err:  NewError("createBucket", &StoreError{Code: CodeBucketAlreadyOwnedByYou}),
			fn:   IsBucketAlreadyExists,
			want: true,
		},
		{
			name: "user error through wrapper",
			err:  NewError("new", NewUserError(ErrMissingEndpoint)),
			fn:   IsUserError,
			want: true,
		},
		{
			name: "transport error is not a user error",
			err:  NewError("getObject", &TransportError{Err: fmt.Errorf("connection refused")}),
			fn:   IsUserError,
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.fn(tt.err))
		})
	}
}

func TestSentinelMatching(t *testing.T) {
	err := NewError("putObjectMultipart", NewUserError(ErrTooManyParts)).
		WithBucket("kero").WithKey("big.bin")

	assert.ErrorIs(t, err, ErrTooManyParts)
	assert.True(t, IsUserError(err))
}

func TestTransportErrorUnwraps(t *testing.T) {
	cause := fmt.Errorf("dial tcp: connection refused")
	err := NewError("getObject", &TransportError{Err: cause})

	assert.ErrorIs(t, err, cause)

	var transportErr *TransportError
	require.ErrorAs(t, err, &transportErr)
	assert.Same(t, cause, transportErr.Err)
}

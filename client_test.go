package s3kit

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	s3errors "github.com/kerolabs/s3kit/errors"
	"github.com/kerolabs/s3kit/internal/testutil"
)

// newTestClient builds a client pointed at the fake store.
func newTestClient(t *testing.T, srv *testutil.Server, opts ...Option) *Client {
	t.Helper()
	opts = append([]Option{
		WithEndpoint(srv.URL()),
		WithCredentials("test-access", "test-secret"),
	}, opts...)
	client, err := New(opts...)
	require.NoError(t, err)
	return client
}

// newTestBucket creates a bucket on the fake store and returns a handle on it.
func newTestBucket(t *testing.T, srv *testutil.Server, client *Client, name string) *Bucket {
	t.Helper()
	srv.CreateBucket(name)
	bucket, err := client.Bucket(name)
	require.NoError(t, err)
	return bucket
}

func TestNewValidation(t *testing.T) {
	tests := []struct {
		name    string
		opts    []Option
		wantErr error
	}{
		{
			name:    "missing endpoint",
			opts:    []Option{WithCredentials("ak", "sk")},
			wantErr: s3errors.ErrMissingEndpoint,
		},
		{
			name:    "missing access key",
			opts:    []Option{WithEndpoint("http://localhost:9000"), WithCredentials("", "sk")},
			wantErr: s3errors.ErrMissingAccessKey,
		},
		{
			name:    "missing secret key",
			opts:    []Option{WithEndpoint("http://localhost:9000"), WithCredentials("ak", "")},
			wantErr: s3errors.ErrMissingSecretKey,
		},
		{
			name: "chunk size below minimum",
			opts: []Option{
				WithEndpoint("http://localhost:9000"),
				WithCredentials("ak", "sk"),
				WithChunkSize(1 << 20),
			},
			wantErr: s3errors.ErrChunkTooSmall,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.opts...)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.True(t, s3errors.IsUserError(err))
		})
	}
}

func TestNewRejectsInvalidEndpoint(t *testing.T) {
	_, err := New(WithEndpoint("not a url"), WithCredentials("ak", "sk"))
	require.Error(t, err)
	assert.True(t, s3errors.IsUserError(err))
}

func TestNewDefaults(t *testing.T) {
	client, err := New(
		WithEndpoint("http://localhost:9000"),
		WithCredentials("ak", "sk"),
	)
	require.NoError(t, err)
	assert.Equal(t, int64(DefaultChunkSize), client.chunkSize)
	assert.Equal(t, DefaultRegion, client.region)
}

func TestBucketNameValidation(t *testing.T) {
	client, err := New(
		WithEndpoint("http://localhost:9000"),
		WithCredentials("ak", "sk"),
	)
	require.NoError(t, err)

	_, err = client.Bucket("Invalid_Bucket")
	require.Error(t, err)
	assert.ErrorIs(t, err, s3errors.ErrInvalidBucketName)
	assert.True(t, s3errors.IsUserError(err))

	bucket, err := client.Bucket("valid-bucket")
	require.NoError(t, err)
	assert.Equal(t, "valid-bucket", bucket.Name())
}

func TestLoadOptions(t *testing.T) {
	t.Run("full file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.yaml")
		content := `endpoint: http://localhost:9000
region: eu-west-1
access_key: file-access
secret_key: file-secret
virtual_host_style: true
signature_expiry: 30m
timeout: 90s
chunk_size: 8388608
`
		require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

		opts, err := LoadOptions(path)
		require.NoError(t, err)

		cfg := Config{}
		for _, opt := range opts {
			opt(&cfg)
		}
		assert.Equal(t, "http://localhost:9000", cfg.Endpoint)
		assert.Equal(t, "eu-west-1", cfg.Region)
		assert.Equal(t, "file-access", cfg.AccessKey)
		assert.Equal(t, "file-secret", cfg.SecretKey)
		assert.True(t, cfg.VirtualHostStyle)
		assert.Equal(t, 30*time.Minute, cfg.SignatureExpiry)
		assert.Equal(t, 90*time.Second, cfg.Timeout)
		assert.Equal(t, int64(8<<20), cfg.ChunkSize)
	})

	t.Run("partial file leaves other fields untouched", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.yaml")
		require.NoError(t, os.WriteFile(path, []byte("endpoint: http://minio:9000\n"), 0o600))

		opts, err := LoadOptions(path)
		require.NoError(t, err)

		cfg := Config{}
		for _, opt := range opts {
			opt(&cfg)
		}
		assert.Equal(t, "http://minio:9000", cfg.Endpoint)
		assert.Empty(t, cfg.AccessKey)
		assert.Zero(t, cfg.Timeout)
	})

	t.Run("bad duration", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.yaml")
		require.NoError(t, os.WriteFile(path, []byte("timeout: soon\n"), 0o600))

		_, err := LoadOptions(path)
		assert.Error(t, err)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := LoadOptions(filepath.Join(t.TempDir(), "absent.yaml"))
		assert.Error(t, err)
	})
}

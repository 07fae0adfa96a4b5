// Functional options for configuring the client and individual operations.
package s3kit

import (
	"time"

	"github.com/kerolabs/s3kit/internal/transport"
)

// Option configures the client at construction time.
type Option func(*Config)

// WithEndpoint sets the base URL of the store.
func WithEndpoint(endpoint string) Option {
	return func(c *Config) {
		c.Endpoint = endpoint
	}
}

// WithRegion sets the signing region. Default is "us-east-1".
func WithRegion(region string) Option {
	return func(c *Config) {
		c.Region = region
	}
}

// WithCredentials sets the access and secret keys.
func WithCredentials(accessKey, secretKey string) Option {
	return func(c *Config) {
		c.AccessKey = accessKey
		c.SecretKey = secretKey
	}
}

// WithSessionToken sets an optional session token to sign with.
func WithSessionToken(token string) Option {
	return func(c *Config) {
		c.SessionToken = token
	}
}

// WithVirtualHostStyle addresses buckets as subdomains of the endpoint host
// ("http://bucket.host/") instead of path segments ("http://host/bucket/").
// Path style is the default.
func WithVirtualHostStyle(enabled bool) Option {
	return func(c *Config) {
		c.VirtualHostStyle = enabled
	}
}

// WithSignatureExpiry sets how long each signed request stays valid.
// Default is one hour.
func WithSignatureExpiry(expiry time.Duration) Option {
	return func(c *Config) {
		c.SignatureExpiry = expiry
	}
}

// WithTimeout sets the per-call network timeout. Default is 60 seconds.
// The timeout applies to each HTTP call, not to a whole operation.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Config) {
		c.Timeout = timeout
	}
}

// WithChunkSize sets the default multipart chunk size. Must be at least
// MinChunkSize. Default is 50 MiB.
func WithChunkSize(size int64) Option {
	return func(c *Config) {
		if size > 0 {
			c.ChunkSize = size
		}
	}
}

// WithTransport overrides the HTTP transport. Meant for tests.
func WithTransport(tr transport.Transport) Option {
	return func(c *Config) {
		c.Transport = tr
	}
}

// uploadConfig holds per-upload settings resolved from UploadOption values.
type uploadConfig struct {
	contentType string
	chunkSize   int64
	concurrency int
}

// UploadOption configures a single upload operation.
type UploadOption func(*uploadConfig)

// WithContentType sets the Content-Type for the uploaded object, overriding
// detection from the payload.
func WithContentType(contentType string) UploadOption {
	return func(c *uploadConfig) {
		c.contentType = contentType
	}
}

// WithUploadChunkSize overrides the client-level multipart chunk size for
// this upload.
func WithUploadChunkSize(size int64) UploadOption {
	return func(c *uploadConfig) {
		if size > 0 {
			c.chunkSize = size
		}
	}
}

// WithUploadConcurrency fans part uploads out onto a bounded pool of workers.
// The default of 1 keeps the strictly sequential pipeline; completion order
// is always enforced by part number, never by submission order.
func WithUploadConcurrency(concurrency int) UploadOption {
	return func(c *uploadConfig) {
		if concurrency > 0 {
			c.concurrency = concurrency
		}
	}
}

// listConfig holds per-listing settings resolved from ListOption values.
type listConfig struct {
	pageSize int
}

// ListOption configures a listing operation.
type ListOption func(*listConfig)

// WithPageSize caps how many entries each listing page requests (1-1000).
// The store may return fewer.
func WithPageSize(n int) ListOption {
	return func(c *listConfig) {
		if n > 0 {
			c.pageSize = n
		}
	}
}

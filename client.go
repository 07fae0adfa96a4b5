// Client construction and the signed request pipeline shared by every
// operation.
package s3kit

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/aws/aws-sdk-go-v2/credentials"

	s3errors "github.com/kerolabs/s3kit/errors"
	"github.com/kerolabs/s3kit/internal/signer"
	"github.com/kerolabs/s3kit/internal/transport"
	"github.com/kerolabs/s3kit/internal/validation"
)

const (
	// DefaultRegion is used when no region is configured.
	DefaultRegion = "us-east-1"

	// DefaultSignatureExpiry bounds how long a signed request stays valid.
	DefaultSignatureExpiry = time.Hour

	// DefaultTimeout applies per HTTP call, not per operation: a multipart
	// upload of many parts can exceed it in aggregate.
	DefaultTimeout = 60 * time.Second

	// DefaultChunkSize is the multipart chunk size when none is configured.
	DefaultChunkSize = 50 << 20

	// MinChunkSize is the store's minimum size for non-final multipart parts.
	MinChunkSize = 5 << 20
)

// Config holds everything needed to construct a Client. The zero value of
// every optional field is replaced with its default; Endpoint, AccessKey,
// and SecretKey are required.
type Config struct {
	// Endpoint is the base URL of the store, e.g. "http://localhost:9000".
	Endpoint string

	// Region is the signing region.
	Region string

	// AccessKey and SecretKey are the credentials. SessionToken is optional.
	AccessKey    string
	SecretKey    string
	SessionToken string

	// VirtualHostStyle addresses buckets as subdomains of the endpoint host
	// instead of path segments. Path style is the default; localhost
	// endpoints generally require it.
	VirtualHostStyle bool

	// SignatureExpiry is how long each signed request stays valid.
	SignatureExpiry time.Duration

	// Timeout applies to each HTTP call.
	Timeout time.Duration

	// ChunkSize is the multipart chunk size. Must be at least MinChunkSize.
	ChunkSize int64

	// Transport overrides the HTTP transport. Meant for tests.
	Transport transport.Transport
}

// Client issues signed requests against one object store.
type Client struct {
	signer    *signer.Signer
	transport transport.Transport
	chunkSize int64
	endpoint  *url.URL
	region    string
}

// New creates a Client from functional options.
func New(opts ...Option) (*Client, error) {
	cfg := Config{}
	for _, opt := range opts {
		opt(&cfg)
	}
	return NewFromConfig(cfg)
}

// NewFromConfig creates a Client, validating required fields and applying
// defaults. Missing endpoint or credentials is a UserError: misuse is caught
// here, at startup, rather than on first request.
func NewFromConfig(cfg Config) (*Client, error) {
	if cfg.Endpoint == "" {
		return nil, s3errors.NewError("new", s3errors.NewUserError(s3errors.ErrMissingEndpoint))
	}
	if cfg.AccessKey == "" {
		return nil, s3errors.NewError("new", s3errors.NewUserError(s3errors.ErrMissingAccessKey))
	}
	if cfg.SecretKey == "" {
		return nil, s3errors.NewError("new", s3errors.NewUserError(s3errors.ErrMissingSecretKey))
	}

	endpoint, err := url.Parse(cfg.Endpoint)
	if err != nil || endpoint.Scheme == "" || endpoint.Host == "" {
		return nil, s3errors.NewError("new", s3errors.NewUserError(
			fmt.Errorf("s3: invalid endpoint %q", cfg.Endpoint),
		))
	}

	if cfg.Region == "" {
		cfg.Region = DefaultRegion
	}
	if cfg.SignatureExpiry == 0 {
		cfg.SignatureExpiry = DefaultSignatureExpiry
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.ChunkSize == 0 {
		cfg.ChunkSize = DefaultChunkSize
	}
	if cfg.ChunkSize < MinChunkSize {
		return nil, s3errors.NewError("new", s3errors.NewUserError(s3errors.ErrChunkTooSmall))
	}

	tr := cfg.Transport
	if tr == nil {
		tr = transport.NewHTTP(cfg.Timeout)
	}

	creds := credentials.NewStaticCredentialsProvider(
		cfg.AccessKey, cfg.SecretKey, cfg.SessionToken,
	)

	return &Client{
		signer: signer.New(
			endpoint, cfg.Region, creds, cfg.SignatureExpiry, cfg.VirtualHostStyle,
		),
		transport: tr,
		chunkSize: cfg.ChunkSize,
		endpoint:  endpoint,
		region:    cfg.Region,
	}, nil
}

// Bucket returns a handle on the named bucket. It does not create the bucket
// on the store; see Bucket.Create for that.
func (c *Client) Bucket(name string) (*Bucket, error) {
	if err := validation.ValidateBucketName(name); err != nil {
		return nil, s3errors.NewError("bucket", s3errors.NewUserError(err)).WithBucket(name)
	}
	return &Bucket{client: c, name: name}, nil
}

// do signs one request, sends it, and classifies the response. On success the
// caller owns the response body and must close it (drainClose keeps the
// underlying connection reusable).
func (c *Client) do(
	ctx context.Context,
	method, bucket, key string,
	query url.Values,
	header http.Header,
	body io.Reader,
	contentLength int64,
) (*transport.Response, error) {
	signed, err := c.signer.Presign(ctx, method, bucket, key, query)
	if err != nil {
		return nil, &s3errors.InternalError{Reason: "signing request", Err: err}
	}

	resp, err := c.transport.Send(ctx, method, signed, header, body, contentLength)
	if err != nil {
		return nil, &s3errors.TransportError{Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		return nil, s3errors.Classify(resp.StatusCode, resp.Body)
	}
	return resp, nil
}

// drainClose consumes any remaining body bytes before closing so the
// transport can reuse the connection.
func drainClose(body io.ReadCloser) {
	_, _ = io.Copy(io.Discard, body)
	_ = body.Close()
}

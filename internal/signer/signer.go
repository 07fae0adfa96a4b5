// Package signer produces presigned request URLs for store operations.
//
// Signing is delegated to the AWS SigV4 implementation; this package only
// assembles the unsigned URL (addressing style, query parameters, expiry)
// and hands it to the signer. The payload is never signed (UNSIGNED-PAYLOAD),
// matching presigned-URL semantics: the signature authorizes the action, not
// the bytes.
package signer

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
)

const (
	unsignedPayload = "UNSIGNED-PAYLOAD"
	serviceName     = "s3"
)

// Signer presigns URLs for a single endpoint/region/credential set.
// It is immutable after construction and safe for concurrent use.
type Signer struct {
	endpoint    *url.URL
	region      string
	creds       aws.CredentialsProvider
	expiry      time.Duration
	virtualHost bool
	signer      *v4.Signer

	// now is a seam for tests; defaults to time.Now.
	now func() time.Time
}

// New creates a Signer. The endpoint must carry a scheme and host.
func New(
	endpoint *url.URL,
	region string,
	creds aws.CredentialsProvider,
	expiry time.Duration,
	virtualHost bool,
) *Signer {
	return &Signer{
		endpoint:    endpoint,
		region:      region,
		creds:       creds,
		expiry:      expiry,
		virtualHost: virtualHost,
		signer:      v4.NewSigner(),
		now:         time.Now,
	}
}

// Presign returns a presigned URL for the given request shape, valid for the
// configured expiry. The bucket may be empty for account-level requests and
// the key may be empty for bucket-level requests.
func (s *Signer) Presign(
	ctx context.Context,
	method, bucket, key string,
	query url.Values,
) (string, error) {
	u := s.buildURL(bucket, key)

	q := u.Query()
	for name, values := range query {
		for _, v := range values {
			q.Add(name, v)
		}
	}
	q.Set("X-Amz-Expires", strconv.FormatInt(int64(s.expiry.Seconds()), 10))
	u.RawQuery = q.Encode()

	req, err := http.NewRequest(method, u.String(), nil)
	if err != nil {
		return "", fmt.Errorf("building request for signing: %w", err)
	}

	creds, err := s.creds.Retrieve(ctx)
	if err != nil {
		return "", fmt.Errorf("retrieving credentials: %w", err)
	}

	signed, _, err := s.signer.PresignHTTP(
		ctx, creds, req, unsignedPayload, serviceName, s.region, s.now().UTC(),
	)
	if err != nil {
		return "", fmt.Errorf("presigning request: %w", err)
	}
	return signed, nil
}

// buildURL places the bucket in the path or the host depending on the
// configured addressing style.
func (s *Signer) buildURL(bucket, key string) *url.URL {
	u := &url.URL{Scheme: s.endpoint.Scheme, Host: s.endpoint.Host}

	if s.virtualHost && bucket != "" {
		u.Host = bucket + "." + s.endpoint.Host
		u.Path = "/" + key
		return u
	}

	switch {
	case bucket == "":
		u.Path = "/"
	case key == "":
		u.Path = "/" + bucket
	default:
		u.Path = "/" + bucket + "/" + strings.TrimPrefix(key, "/")
	}
	return u
}

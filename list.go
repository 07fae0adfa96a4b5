// Paginated bucket listing.
package s3kit

import (
	"context"
	"encoding/xml"
	"net/http"
	"net/url"
	"strconv"

	s3errors "github.com/kerolabs/s3kit/errors"
	"github.com/kerolabs/s3kit/internal/wire"
)

// ListObjects returns an iterator over the keys under prefix, in the store's
// listing order. An empty prefix lists the whole bucket. Pages are fetched
// lazily as the iterator advances:
//
//	it := bucket.ListObjects("logs/")
//	for it.Next(ctx) {
//	    fmt.Println(it.Object().Key)
//	}
//	if err := it.Err(); err != nil { ... }
func (b *Bucket) ListObjects(prefix string, opts ...ListOption) *ObjectIterator {
	cfg := listConfig{}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &ObjectIterator{
		bucket:   b,
		prefix:   prefix,
		pageSize: cfg.pageSize,
		more:     true,
	}
}

// ObjectIterator walks a listing one entry at a time, fetching continuation
// pages transparently. Not safe for concurrent use.
type ObjectIterator struct {
	bucket   *Bucket
	prefix   string
	pageSize int

	token string
	more  bool

	buf []Object
	idx int
	cur Object
	err error
}

// Next advances to the next entry, fetching the next page when the buffered
// one is drained. It returns false when the listing is exhausted or a page
// fetch failed; after that it keeps returning false and issues no further
// requests.
func (it *ObjectIterator) Next(ctx context.Context) bool {
	for {
		if it.idx < len(it.buf) {
			it.cur = it.buf[it.idx]
			it.idx++
			return true
		}
		if !it.more {
			return false
		}

		page, err := it.bucket.listPage(ctx, it.prefix, it.token, it.pageSize)
		if err != nil {
			it.err = err
			it.more = false
			return false
		}

		it.buf = it.buf[:0]
		for _, e := range page.Contents {
			it.buf = append(it.buf, Object{
				Key:          e.Key,
				Size:         e.Size,
				LastModified: e.LastModified,
				ETag:         trimETag(e.ETag),
				StorageClass: e.StorageClass,
			})
		}
		it.idx = 0

		// The token is trusted verbatim: its presence alone means there is
		// another page, whatever IsTruncated says.
		it.token = page.NextContinuationToken
		it.more = it.token != ""
		// An empty page with a continuation token loops straight into the
		// next fetch.
	}
}

// Object returns the entry produced by the last successful Next.
func (it *ObjectIterator) Object() Object {
	return it.cur
}

// Err returns the page-fetch error that terminated the iteration, if any.
func (it *ObjectIterator) Err() error {
	return it.err
}

// listPage fetches one ListObjectsV2 page.
func (b *Bucket) listPage(ctx context.Context, prefix, token string, pageSize int) (*wire.ListBucketResult, error) {
	const op = "listObjects"

	query := url.Values{"list-type": {"2"}}
	if prefix != "" {
		query.Set("prefix", prefix)
	}
	if token != "" {
		query.Set("continuation-token", token)
	}
	if pageSize > 0 {
		query.Set("max-keys", strconv.Itoa(pageSize))
	}

	resp, err := b.client.do(ctx, http.MethodGet, b.name, "", query, nil, nil, -1)
	if err != nil {
		return nil, s3errors.NewError(op, err).WithBucket(b.name)
	}
	defer drainClose(resp.Body)

	var page wire.ListBucketResult
	if err := xml.NewDecoder(resp.Body).Decode(&page); err != nil {
		return nil, s3errors.NewError(op, &s3errors.InternalError{
			Reason: "unparsable listing page", Err: err,
		}).WithBucket(b.name)
	}
	return &page, nil
}

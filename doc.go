// Package s3kit is a client library for S3-compatible object stores such as
// MinIO, Garage, and AWS S3 itself. It speaks the wire protocol directly over
// presigned requests, so it works against any store that understands SigV4.
//
// A Client holds the endpoint, region, credentials, and request defaults; it
// is immutable after construction and safe to share across goroutines. Bucket
// handles spawned from it are cheap and stateless beyond their name.
//
// Key features:
//   - Explicit configuration through functional options, validated at
//     construction
//   - Streaming multipart uploads with automatic size-based dispatch
//   - Lazy paginated listing through a scanner-style iterator
//   - A typed error taxonomy (user, store, transport, internal) built for
//     errors.Is / errors.As pattern-matching
//
// Example usage:
//
//	client, err := s3kit.New(
//	    s3kit.WithEndpoint("http://localhost:9000"),
//	    s3kit.WithCredentials("access", "secret"),
//	)
//	if err != nil {
//	    return err
//	}
//
//	bucket, err := client.Bucket("documents")
//	if err != nil {
//	    return err
//	}
//	if err := bucket.PutObject(ctx, "hello.txt", []byte("kero")); err != nil {
//	    return err
//	}
package s3kit

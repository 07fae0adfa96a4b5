package s3kit

import "time"

// Object is one entry in a bucket listing.
type Object struct {
	// Key is the object key (path)
	Key string

	// Size is the object size in bytes
	Size int64

	// LastModified is when the object was last modified
	LastModified time.Time

	// ETag is the store's entity tag for the object
	ETag string

	// StorageClass is the store's storage class, if reported
	StorageClass string
}

// ObjectInfo is the metadata of a stored object, as returned by HeadObject.
type ObjectInfo struct {
	// Key is the object key
	Key string

	// Size is the object size in bytes
	Size int64

	// ContentType is the stored MIME type
	ContentType string

	// LastModified is when the object was last modified
	LastModified time.Time

	// ETag is the store's entity tag for the object
	ETag string
}

// DeleteResult reports the outcome of a batch delete. Each key succeeds or
// fails independently.
type DeleteResult struct {
	// Deleted lists the keys that were removed
	Deleted []string

	// Errors lists the keys that failed, with the store's code and message
	Errors []DeleteError
}

// DeleteError is one failed key within a batch delete.
type DeleteError struct {
	Key     string
	Code    string
	Message string
}

// Package errors provides the error taxonomy for object store operations.
//
// Every failure surfaced by the client is one of four kinds: a UserError
// (caller misuse), a StoreError (the remote store rejected the request with a
// structured XML error), a TransportError (the HTTP exchange could not
// complete), or an InternalError (the store returned a response that violates
// its own contract). Nothing is retried or swallowed; callers pattern-match
// with errors.Is / errors.As to build idempotent behavior on top.
package errors

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
)

// Error wraps a failure with context about the operation that produced it.
type Error struct {
	// Op is the operation that failed (e.g., "putObject", "listObjects")
	Op string

	// Bucket is the bucket name (if applicable)
	Bucket string

	// Key is the object key (if applicable)
	Key string

	// Err is the underlying error
	Err error
}

// Error implements the error interface by providing a formatted error message.
func (e *Error) Error() string {
	if e.Bucket != "" && e.Key != "" {
		return fmt.Sprintf("s3.%s %s/%s: %v", e.Op, e.Bucket, e.Key, e.Err)
	}
	if e.Bucket != "" {
		return fmt.Sprintf("s3.%s bucket %s: %v", e.Op, e.Bucket, e.Err)
	}
	return fmt.Sprintf("s3.%s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error for error chaining support.
func (e *Error) Unwrap() error {
	return e.Err
}

// WithBucket adds bucket context to an existing error.
func (e *Error) WithBucket(bucket string) *Error {
	e.Bucket = bucket
	return e
}

// WithKey adds object key context to an existing error.
func (e *Error) WithKey(key string) *Error {
	e.Key = key
	return e
}

// NewError creates a new Error with the given operation and underlying error.
func NewError(op string, err error) *Error {
	return &Error{Op: op, Err: err}
}

// Code is a structured error code returned by the store.
//
// The set of constants below covers the documented codes, but Code is an open
// enum: a code this package has never seen still classifies into a StoreError
// carrying the raw text, so new store-side codes never become parse failures.
type Code string

// Store error codes, as they appear in the Code element of error responses.
const (
	CodeAccessDenied            Code = "AccessDenied"
	CodeAccountProblem          Code = "AccountProblem"
	CodeAllAccessDisabled       Code = "AllAccessDisabled"
	CodeBadDigest               Code = "BadDigest"
	CodeBucketAlreadyExists     Code = "BucketAlreadyExists"
	CodeBucketAlreadyOwnedByYou Code = "BucketAlreadyOwnedByYou"
	CodeBucketNotEmpty          Code = "BucketNotEmpty"
	CodeEntityTooLarge          Code = "EntityTooLarge"
	CodeEntityTooSmall          Code = "EntityTooSmall"
	CodeExpiredToken            Code = "ExpiredToken"
	CodeIncompleteBody          Code = "IncompleteBody"
	CodeInternalError           Code = "InternalError"
	CodeInvalidAccessKeyID      Code = "InvalidAccessKeyId"
	CodeInvalidArgument         Code = "InvalidArgument"
	CodeInvalidBucketName       Code = "InvalidBucketName"
	CodeInvalidBucketState      Code = "InvalidBucketState"
	CodeInvalidDigest           Code = "InvalidDigest"
	CodeInvalidObjectState      Code = "InvalidObjectState"
	CodeInvalidPart             Code = "InvalidPart"
	CodeInvalidPartOrder        Code = "InvalidPartOrder"
	CodeInvalidRange            Code = "InvalidRange"
	CodeInvalidRequest          Code = "InvalidRequest"
	CodeInvalidSecurity         Code = "InvalidSecurity"
	CodeInvalidToken            Code = "InvalidToken"
	CodeMalformedXML            Code = "MalformedXML"
	CodeMethodNotAllowed        Code = "MethodNotAllowed"
	CodeMissingContentLength    Code = "MissingContentLength"
	CodeNoSuchBucket            Code = "NoSuchBucket"
	CodeNoSuchKey               Code = "NoSuchKey"
	CodeNoSuchUpload            Code = "NoSuchUpload"
	CodeNotImplemented          Code = "NotImplemented"
	CodeOperationAborted        Code = "OperationAborted"
	CodePreconditionFailed      Code = "PreconditionFailed"
	CodeRequestTimeout          Code = "RequestTimeout"
	CodeRequestTimeTooSkewed    Code = "RequestTimeTooSkewed"
	CodeServiceUnavailable      Code = "ServiceUnavailable"
	CodeSignatureDoesNotMatch   Code = "SignatureDoesNotMatch"
	CodeSlowDown                Code = "SlowDown"
	CodeTooManyBuckets          Code = "TooManyBuckets"
)

// StoreError is a structured rejection from the remote store, deserialized
// from the XML error document. Field names follow the wire format exactly.
type StoreError struct {
	XMLName xml.Name `xml:"Error"`

	// StatusCode is the HTTP status of the response carrying this error.
	// It is not part of the XML document.
	StatusCode int `xml:"-"`

	Code       Code   `xml:"Code"`
	Message    string `xml:"Message"`
	BucketName string `xml:"BucketName"`
	Resource   string `xml:"Resource"`
	RequestID  string `xml:"RequestId"`
	HostID     string `xml:"HostId"`
}

// Error implements the error interface.
func (e *StoreError) Error() string {
	if e.BucketName != "" {
		return fmt.Sprintf("%s: %s on %s", e.Code, e.Message, e.BucketName)
	}
	if e.Resource != "" {
		return fmt.Sprintf("%s: %s on %s", e.Code, e.Message, e.Resource)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// TransportError indicates the HTTP exchange failed before a status line was
// received (connect failure, timeout, broken connection).
type TransportError struct {
	Err error
}

// Error implements the error interface.
func (e *TransportError) Error() string {
	return fmt.Sprintf("s3: transport: %v", e.Err)
}

// Unwrap returns the underlying error.
func (e *TransportError) Unwrap() error {
	return e.Err
}

// InternalError indicates the store returned a response that violates its
// documented contract, such as a missing required header or an unparsable
// body. These should never occur against a conforming store.
type InternalError struct {
	// Reason describes which contract the response violated.
	Reason string

	// Err is the underlying failure, if any.
	Err error
}

// Error implements the error interface.
func (e *InternalError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("s3: internal: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("s3: internal: %s", e.Reason)
}

// Unwrap returns the underlying error.
func (e *InternalError) Unwrap() error {
	return e.Err
}

// UserError indicates the caller misused the client. The wrapped error is one
// of the sentinel values below, or a validation failure.
type UserError struct {
	Err error
}

// Error implements the error interface.
func (e *UserError) Error() string {
	return e.Err.Error()
}

// Unwrap returns the underlying error.
func (e *UserError) Unwrap() error {
	return e.Err
}

// NewUserError wraps err as a UserError.
func NewUserError(err error) *UserError {
	return &UserError{Err: err}
}

// Sentinel errors for caller-side misuse. Use errors.Is to check for them.
var (
	// ErrTooManyParts indicates a multipart upload would exceed the part limit
	ErrTooManyParts = errors.New("s3: multipart upload exceeds 10000 parts")

	// ErrNonUTF8Payload indicates an object was requested as a string but its
	// payload is not valid UTF-8; fetch the raw bytes instead
	ErrNonUTF8Payload = errors.New("s3: object payload is not valid UTF-8")

	// ErrChunkTooSmall indicates a multipart chunk size below the store minimum
	ErrChunkTooSmall = errors.New("s3: multipart chunk size below 5 MiB minimum")

	// ErrMissingEndpoint indicates the client was built without an endpoint URL
	ErrMissingEndpoint = errors.New("s3: missing endpoint")

	// ErrMissingAccessKey indicates the client was built without an access key
	ErrMissingAccessKey = errors.New("s3: missing access key")

	// ErrMissingSecretKey indicates the client was built without a secret key
	ErrMissingSecretKey = errors.New("s3: missing secret key")

	// ErrInvalidBucketName indicates the bucket name is not DNS-compliant
	ErrInvalidBucketName = errors.New("s3: invalid bucket name")

	// ErrInvalidObjectKey indicates the object key is invalid
	ErrInvalidObjectKey = errors.New("s3: invalid object key")

	// ErrTooManyKeys indicates a batch delete with more than 1000 keys
	ErrTooManyKeys = errors.New("s3: too many keys: maximum is 1000 per request")
)

// Classify converts an HTTP response into a typed error. A 2xx status is not
// an error and classifies to nil; the caller proceeds with the body. For any
// other status the body is consumed and parsed as an XML error document.
func Classify(status int, body io.Reader) error {
	if status >= 200 && status <= 299 {
		return nil
	}

	raw, err := io.ReadAll(body)
	if err != nil {
		return &InternalError{Reason: "reading error response body", Err: err}
	}

	storeErr := &StoreError{}
	if err := xml.Unmarshal(raw, storeErr); err != nil {
		return &InternalError{
			Reason: fmt.Sprintf("unparsable error response (status %d)", status),
			Err:    err,
		}
	}
	storeErr.StatusCode = status
	return storeErr
}

// AsStoreError unwraps err looking for a StoreError.
func AsStoreError(err error) (*StoreError, bool) {
	var storeErr *StoreError
	if errors.As(err, &storeErr) {
		return storeErr, true
	}
	return nil, false
}

// IsCode reports whether err is a StoreError carrying the given code.
func IsCode(err error, code Code) bool {
	storeErr, ok := AsStoreError(err)
	return ok && storeErr.Code == code
}

// IsNoSuchKey reports whether err indicates the requested object is absent.
func IsNoSuchKey(err error) bool {
	return IsCode(err, CodeNoSuchKey)
}

// IsNoSuchBucket reports whether err indicates the bucket is absent.
func IsNoSuchBucket(err error) bool {
	return IsCode(err, CodeNoSuchBucket)
}

// IsBucketAlreadyExists reports whether err indicates the bucket exists,
// whether or not it is owned by the caller.
func IsBucketAlreadyExists(err error) bool {
	return IsCode(err, CodeBucketAlreadyExists) || IsCode(err, CodeBucketAlreadyOwnedByYou)
}

// IsUserError reports whether err originates from caller misuse.
func IsUserError(err error) bool {
	var userErr *UserError
	return errors.As(err, &userErr)
}

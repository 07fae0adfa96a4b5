// Package validation provides input validation for bucket names and object
// keys. Inputs are checked before any request is signed so that misuse
// surfaces as a UserError without a network round trip.
package validation

import (
	"fmt"
	"strings"
	"unicode"

	s3errors "github.com/kerolabs/s3kit/errors"
)

// ValidateBucketName validates that a bucket name is DNS-compliant.
func ValidateBucketName(bucket string) error {
	if bucket == "" {
		return fmt.Errorf("%w: name cannot be empty", s3errors.ErrInvalidBucketName)
	}
	if len(bucket) < 3 || len(bucket) > 63 {
		return fmt.Errorf("%w: name must be between 3 and 63 characters", s3errors.ErrInvalidBucketName)
	}
	for _, c := range bucket {
		if !isValidBucketChar(c) {
			return fmt.Errorf(
				"%w: name can only contain lowercase letters, numbers, dots, and hyphens",
				s3errors.ErrInvalidBucketName,
			)
		}
	}
	if isEdgeChar(bucket[0]) || isEdgeChar(bucket[len(bucket)-1]) {
		return fmt.Errorf("%w: name cannot start or end with a hyphen or dot", s3errors.ErrInvalidBucketName)
	}
	if hasAdjacentSpecialChars(bucket) {
		return fmt.Errorf("%w: name cannot contain adjacent dots or hyphens", s3errors.ErrInvalidBucketName)
	}
	if isIPAddress(bucket) {
		return fmt.Errorf("%w: name cannot be formatted as an IP address", s3errors.ErrInvalidBucketName)
	}
	return nil
}

// ValidateObjectKey validates an object key. Keys may contain any printable
// UTF-8 but not control characters, leading slashes, or traversal sequences.
func ValidateObjectKey(key string) error {
	if key == "" {
		return fmt.Errorf("%w: key cannot be empty", s3errors.ErrInvalidObjectKey)
	}
	if len(key) > 1024 {
		return fmt.Errorf("%w: key cannot exceed 1024 bytes", s3errors.ErrInvalidObjectKey)
	}
	if strings.HasPrefix(key, "/") {
		return fmt.Errorf("%w: key cannot start with a slash", s3errors.ErrInvalidObjectKey)
	}
	if strings.Contains(key, "..") {
		return fmt.Errorf("%w: key cannot contain traversal sequences", s3errors.ErrInvalidObjectKey)
	}
	for _, c := range key {
		if unicode.IsControl(c) {
			return fmt.Errorf("%w: key cannot contain control characters", s3errors.ErrInvalidObjectKey)
		}
	}
	return nil
}

func isValidBucketChar(c rune) bool {
	return (c >= '0' && c <= '9') || (c >= 'a' && c <= 'z') || c == '.' || c == '-'
}

func isEdgeChar(c byte) bool {
	return c == '-' || c == '.'
}

func hasAdjacentSpecialChars(bucket string) bool {
	for i := 0; i < len(bucket)-1; i++ {
		if (bucket[i] == '.' || bucket[i] == '-') && (bucket[i+1] == '.' || bucket[i+1] == '-') {
			return true
		}
	}
	return false
}

func isIPAddress(s string) bool {
	parts := strings.Split(s, ".")
	if len(parts) != 4 {
		return false
	}
	for _, part := range parts {
		if part == "" || len(part) > 3 {
			return false
		}
		n := 0
		for _, c := range part {
			if c < '0' || c > '9' {
				return false
			}
			n = n*10 + int(c-'0')
		}
		if n > 255 {
			return false
		}
	}
	return true
}

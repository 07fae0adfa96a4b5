package validation

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	s3errors "github.com/kerolabs/s3kit/errors"
)

func TestValidateBucketName(t *testing.T) {
	tests := []struct {
		name    string
		bucket  string
		wantErr bool
	}{
		{"simple name", "kero", false},
		{"with hyphens", "my-test-bucket", false},
		{"with dots", "my.test.bucket", false},
		{"with numbers", "bucket123", false},
		{"minimum length", "abc", false},
		{"maximum length", strings.Repeat("a", 63), false},

		{"empty", "", true},
		{"too short", "ab", true},
		{"too long", strings.Repeat("a", 64), true},
		{"uppercase", "MyBucket", true},
		{"underscore", "my_bucket", true},
		{"space", "my bucket", true},
		{"leading hyphen", "-bucket", true},
		{"trailing hyphen", "bucket-", true},
		{"leading dot", ".bucket", true},
		{"trailing dot", "bucket.", true},
		{"adjacent dots", "my..bucket", true},
		{"dot next to hyphen", "my.-bucket", true},
		{"ip address", "192.168.1.1", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateBucketName(tt.bucket)
			if tt.wantErr {
				assert.ErrorIs(t, err, s3errors.ErrInvalidBucketName)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidateObjectKey(t *testing.T) {
	tests := []struct {
		name    string
		key     string
		wantErr bool
	}{
		{"simple key", "file.txt", false},
		{"nested path", "dir/subdir/file.txt", false},
		{"unicode", "日本語/ファイル.txt", false},
		{"spaces and symbols", "my file (1).txt", false},
		{"maximum length", strings.Repeat("k", 1024), false},

		{"empty", "", true},
		{"too long", strings.Repeat("k", 1025), true},
		{"leading slash", "/file.txt", true},
		{"traversal", "a/../b.txt", true},
		{"control character", "file\x00name", true},
		{"newline", "file\nname", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateObjectKey(tt.key)
			if tt.wantErr {
				assert.ErrorIs(t, err, s3errors.ErrInvalidObjectKey)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

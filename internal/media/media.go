// Package media stores uploaded files on S3 compatible storage or local disk.
package media

import (
	"context"
	"io"
	"path"
	"regexp"
	"strings"

	"github.com/google/uuid"

	"vortx/internal/apperr"
)

// MaxUploadSize caps a single upload.
const MaxUploadSize = 10 << 20

// FileStore persists files and returns their public URL.
type FileStore interface {
	Put(ctx context.Context, key, contentType string, body io.Reader, size int64) (string, error)
	Delete(ctx context.Context, key string) error
}

var unsafeChars = regexp.MustCompile(`[^a-zA-Z0-9._-]+`)

// NewKey builds a unique object key that keeps a sanitized form of filename.
func NewKey(filename string) string {
	base := path.Base(strings.ReplaceAll(filename, "\\", "/"))
	base = unsafeChars.ReplaceAllString(base, "-")
	base = strings.Trim(base, "-.")
	if base == "" {
		base = "file"
	}
	return uuid.NewString() + "-" + base
}

func validateKey(key string) error {
	if key == "" || strings.HasPrefix(key, "/") || strings.Contains(key, "..") {
		return apperr.Validation("key", "invalid object key")
	}
	return nil
}

// Package storage keeps analysis result payloads in an object store.
//
// Keys are slash-separated relative paths such as
// "analyses/<id>/lsa.json.sz". Both backends reject keys that are empty,
// absolute or that climb out of the store with "..".
package storage

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
)

// Common errors for storage operations.
var (
	ErrObjectNotFound = errors.New("object not found")
	ErrInvalidKey     = errors.New("invalid object key")
	ErrUploadFailed   = errors.New("upload failed")
	ErrDownloadFailed = errors.New("download failed")
	ErrDeleteFailed   = errors.New("delete failed")
)

// ObjectStorage is the payload store used by the results layer.
type ObjectStorage interface {
	// Put writes data under key, replacing any existing object, and returns
	// the stored object's ETag.
	Put(ctx context.Context, key string, data []byte) (string, error)

	// Get returns ErrObjectNotFound when key is absent.
	Get(ctx context.Context, key string) ([]byte, error)

	// Delete is idempotent.
	Delete(ctx context.Context, key string) error

	Exists(ctx context.Context, key string) (bool, error)

	// ListObjects returns every key under prefix in lexical order.
	ListObjects(ctx context.Context, prefix string) ([]string, error)
}

// ValidateKey reports whether key is a clean relative object key.
func ValidateKey(key string) error {
	if key == "" {
		return fmt.Errorf("%w: empty", ErrInvalidKey)
	}
	if strings.HasPrefix(key, "/") || strings.Contains(key, `\`) {
		return fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	if path.Clean(key) != key {
		return fmt.Errorf("%w: %q is not clean", ErrInvalidKey, key)
	}
	for _, seg := range strings.Split(key, "/") {
		if seg == ".." || seg == "." {
			return fmt.Errorf("%w: %q", ErrInvalidKey, key)
		}
	}
	return nil
}

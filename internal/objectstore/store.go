// Package objectstore adapts S3-compatible object stores to the narrow
// interface the storage core needs: paginated listing, reads, writes,
// copies, idempotent deletes and presigned capability URLs.
package objectstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"time"

	"github.com/zeebo/errs"
)

// Error wraps failures reported by an object store backend.
var Error = errs.Class("objectstore")

// ErrNotFound is returned when a key does not exist.
var ErrNotFound = errors.New("object not found")

// ObjectInfo describes a stored object.
type ObjectInfo struct {
	Key          string
	Size         int64
	ContentType  string
	ETag         string
	LastModified time.Time
}

// Page is one listing page. An empty NextToken means the listing is complete.
type Page struct {
	Objects   []ObjectInfo
	NextToken string
}

// Store is a single bucket of an S3-compatible object store.
type Store interface {
	// List returns the page of objects under prefix that follows token.
	List(ctx context.Context, prefix, token string) (Page, error)
	Put(ctx context.Context, key string, body io.Reader, size int64, contentType string) (ObjectInfo, error)
	Get(ctx context.Context, key string) (io.ReadCloser, ObjectInfo, error)
	Stat(ctx context.Context, key string) (ObjectInfo, error)
	// Copy duplicates src into dst, overwriting dst. A missing src yields ErrNotFound.
	Copy(ctx context.Context, src, dst string) error
	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
	// DeleteMany removes keys in batches. Missing keys are not errors.
	DeleteMany(ctx context.Context, keys []string) error
	PresignGet(ctx context.Context, key string, ttl time.Duration, opts PresignOptions) (string, error)
	PresignPut(ctx context.Context, key string, ttl time.Duration, contentType string) (string, error)
	Ping(ctx context.Context) error
}

// PresignOptions customizes a presigned GET.
type PresignOptions struct {
	// Filename, when set, asks clients to save the object under this name.
	Filename string
	// Inline serves the object for in-browser display instead of download.
	Inline bool
}

func (o PresignOptions) disposition() string {
	if o.Filename == "" && !o.Inline {
		return ""
	}
	kind := "attachment"
	if o.Inline {
		kind = "inline"
	}
	if o.Filename == "" {
		return kind
	}
	// Quotes and backslashes are escaped; non-ASCII names use filename*.
	if v := mime.FormatMediaType(kind, map[string]string{"filename": o.Filename}); v != "" {
		return v
	}
	return kind
}

// IsNotFound reports whether err means the object does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

func notFound(key string) error {
	return fmt.Errorf("%w: %s", ErrNotFound, key)
}

// cancelOnClose releases a request context once the caller finishes reading.
type cancelOnClose struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (c cancelOnClose) Close() error {
	defer c.cancel()
	return c.ReadCloser.Close()
}

var (
	_ Store = (*MinIOStore)(nil)
	_ Store = (*S3Store)(nil)
	_ Store = (*MemoryStore)(nil)
	_ Store = (*Instrumented)(nil)
)

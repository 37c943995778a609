package objectstore

import (
	"context"
	"io"
	"time"

	"github.com/kpcloud/kpcloud/internal/metrics"
)

// Instrumented records latency and failures of every call made through Store.
type Instrumented struct {
	Store Store
}

// NewInstrumented wraps store.
func NewInstrumented(store Store) *Instrumented {
	return &Instrumented{Store: store}
}

func observe(op string, start time.Time, err error) {
	if IsNotFound(err) {
		err = nil
	}
	metrics.ObserveStoreOp(op, time.Since(start), err)
}

func (i *Instrumented) List(ctx context.Context, prefix, token string) (Page, error) {
	start := time.Now()
	page, err := i.Store.List(ctx, prefix, token)
	observe("list", start, err)
	return page, err
}

func (i *Instrumented) Put(ctx context.Context, key string, body io.Reader, size int64, contentType string) (ObjectInfo, error) {
	start := time.Now()
	info, err := i.Store.Put(ctx, key, body, size, contentType)
	observe("put", start, err)
	return info, err
}

func (i *Instrumented) Get(ctx context.Context, key string) (io.ReadCloser, ObjectInfo, error) {
	start := time.Now()
	rc, info, err := i.Store.Get(ctx, key)
	observe("get", start, err)
	return rc, info, err
}

func (i *Instrumented) Stat(ctx context.Context, key string) (ObjectInfo, error) {
	start := time.Now()
	info, err := i.Store.Stat(ctx, key)
	observe("stat", start, err)
	return info, err
}

func (i *Instrumented) Copy(ctx context.Context, src, dst string) error {
	start := time.Now()
	err := i.Store.Copy(ctx, src, dst)
	observe("copy", start, err)
	return err
}

func (i *Instrumented) Delete(ctx context.Context, key string) error {
	start := time.Now()
	err := i.Store.Delete(ctx, key)
	observe("delete", start, err)
	return err
}

func (i *Instrumented) DeleteMany(ctx context.Context, keys []string) error {
	start := time.Now()
	err := i.Store.DeleteMany(ctx, keys)
	observe("delete_many", start, err)
	return err
}

func (i *Instrumented) PresignGet(ctx context.Context, key string, ttl time.Duration, opts PresignOptions) (string, error) {
	start := time.Now()
	u, err := i.Store.PresignGet(ctx, key, ttl, opts)
	observe("presign_get", start, err)
	return u, err
}

func (i *Instrumented) PresignPut(ctx context.Context, key string, ttl time.Duration, contentType string) (string, error) {
	start := time.Now()
	u, err := i.Store.PresignPut(ctx, key, ttl, contentType)
	observe("presign_put", start, err)
	return u, err
}

func (i *Instrumented) Ping(ctx context.Context) error {
	start := time.Now()
	err := i.Store.Ping(ctx)
	observe("ping", start, err)
	return err
}

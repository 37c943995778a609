package objectstore

import (
	"context"
	"errors"
	"io"
	"net/url"
	"time"

	"github.com/minio/minio-go/v7"
)

// MinIOStore implements Store on top of minio-go.
type MinIOStore struct {
	client   *minio.Client
	bucket   string
	timeout  time.Duration
	pageSize int
}

// NewMinIOStore constructs an adapter bound to bucket.
func NewMinIOStore(client *minio.Client, bucket string, timeout time.Duration, pageSize int) *MinIOStore {
	return &MinIOStore{client: client, bucket: bucket, timeout: timeout, pageSize: pageSize}
}

func (s *MinIOStore) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.timeout)
}

func (s *MinIOStore) List(ctx context.Context, prefix, token string) (Page, error) {
	// Cancelling stops minio's listing goroutine once the page is full.
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	objects := s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{
		Prefix:     prefix,
		Recursive:  true,
		StartAfter: token,
		MaxKeys:    s.pageSize,
	})

	var page Page
	for obj := range objects {
		if obj.Err != nil {
			return Page{}, Error.Wrap(obj.Err)
		}
		if len(page.Objects) == s.pageSize {
			page.NextToken = page.Objects[len(page.Objects)-1].Key
			break
		}
		page.Objects = append(page.Objects, minioInfo(obj))
	}
	return page, nil
}

func (s *MinIOStore) Put(ctx context.Context, key string, body io.Reader, size int64, contentType string) (ObjectInfo, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	info, err := s.client.PutObject(ctx, s.bucket, key, body, size, minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return ObjectInfo{}, Error.Wrap(err)
	}
	return ObjectInfo{
		Key:          key,
		Size:         info.Size,
		ContentType:  contentType,
		ETag:         info.ETag,
		LastModified: info.LastModified,
	}, nil
}

func (s *MinIOStore) Get(ctx context.Context, key string) (io.ReadCloser, ObjectInfo, error) {
	ctx, cancel := context.WithCancel(ctx)

	obj, err := s.client.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		cancel()
		return nil, ObjectInfo{}, s.translate(key, err)
	}
	stat, err := obj.Stat()
	if err != nil {
		_ = obj.Close()
		cancel()
		return nil, ObjectInfo{}, s.translate(key, err)
	}
	return cancelOnClose{ReadCloser: obj, cancel: cancel}, minioInfo(stat), nil
}

func (s *MinIOStore) Stat(ctx context.Context, key string) (ObjectInfo, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	stat, err := s.client.StatObject(ctx, s.bucket, key, minio.StatObjectOptions{})
	if err != nil {
		return ObjectInfo{}, s.translate(key, err)
	}
	return minioInfo(stat), nil
}

func (s *MinIOStore) Copy(ctx context.Context, src, dst string) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	_, err := s.client.CopyObject(ctx,
		minio.CopyDestOptions{Bucket: s.bucket, Object: dst},
		minio.CopySrcOptions{Bucket: s.bucket, Object: src},
	)
	if err != nil {
		return s.translate(src, err)
	}
	return nil
}

func (s *MinIOStore) Delete(ctx context.Context, key string) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	if err := s.client.RemoveObject(ctx, s.bucket, key, minio.RemoveObjectOptions{}); err != nil {
		if isMinIONotFound(err) {
			return nil
		}
		return Error.Wrap(err)
	}
	return nil
}

func (s *MinIOStore) DeleteMany(ctx context.Context, keys []string) error {
	if len(keys) == 0 {
		return nil
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	objectsCh := make(chan minio.ObjectInfo, len(keys))
	for _, key := range keys {
		objectsCh <- minio.ObjectInfo{Key: key}
	}
	close(objectsCh)

	var failures []error
	for rErr := range s.client.RemoveObjects(ctx, s.bucket, objectsCh, minio.RemoveObjectsOptions{}) {
		if rErr.Err == nil || isMinIONotFound(rErr.Err) {
			continue
		}
		failures = append(failures, Error.New("remove %s: %v", rErr.ObjectName, rErr.Err))
	}
	return errors.Join(failures...)
}

func (s *MinIOStore) PresignGet(ctx context.Context, key string, ttl time.Duration, opts PresignOptions) (string, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	params := url.Values{}
	if disposition := opts.disposition(); disposition != "" {
		params.Set("response-content-disposition", disposition)
	}
	u, err := s.client.PresignedGetObject(ctx, s.bucket, key, ttl, params)
	if err != nil {
		return "", Error.Wrap(err)
	}
	return u.String(), nil
}

func (s *MinIOStore) PresignPut(ctx context.Context, key string, ttl time.Duration, _ string) (string, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	u, err := s.client.PresignedPutObject(ctx, s.bucket, key, ttl)
	if err != nil {
		return "", Error.Wrap(err)
	}
	return u.String(), nil
}

func (s *MinIOStore) Ping(ctx context.Context) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return Error.Wrap(err)
	}
	if !exists {
		return Error.New("bucket %q does not exist", s.bucket)
	}
	return nil
}

func (s *MinIOStore) translate(key string, err error) error {
	if isMinIONotFound(err) {
		return notFound(key)
	}
	return Error.Wrap(err)
}

func isMinIONotFound(err error) bool {
	switch minio.ToErrorResponse(err).Code {
	case "NoSuchKey", "NotFound":
		return true
	}
	return false
}

func minioInfo(obj minio.ObjectInfo) ObjectInfo {
	return ObjectInfo{
		Key:          obj.Key,
		Size:         obj.Size,
		ContentType:  obj.ContentType,
		ETag:         obj.ETag,
		LastModified: obj.LastModified,
	}
}

package objectstore

import (
	"context"
	"errors"
	"io"
	"net/url"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
)

// S3Store implements Store with the AWS SDK. It targets AWS S3 and
// S3-compatible services such as Cloudflare R2.
type S3Store struct {
	client   *s3.Client
	presign  *s3.PresignClient
	bucket   string
	timeout  time.Duration
	pageSize int32
}

// NewS3Store constructs an adapter bound to bucket.
func NewS3Store(client *s3.Client, bucket string, timeout time.Duration, pageSize int) *S3Store {
	return &S3Store{
		client:   client,
		presign:  s3.NewPresignClient(client),
		bucket:   bucket,
		timeout:  timeout,
		pageSize: int32(pageSize),
	}
}

func (s *S3Store) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.timeout)
}

func (s *S3Store) List(ctx context.Context, prefix, token string) (Page, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	input := &s3.ListObjectsV2Input{
		Bucket:  aws.String(s.bucket),
		Prefix:  aws.String(prefix),
		MaxKeys: aws.Int32(s.pageSize),
	}
	if token != "" {
		input.ContinuationToken = aws.String(token)
	}

	out, err := s.client.ListObjectsV2(ctx, input)
	if err != nil {
		return Page{}, Error.Wrap(err)
	}

	page := Page{Objects: make([]ObjectInfo, 0, len(out.Contents))}
	for _, obj := range out.Contents {
		page.Objects = append(page.Objects, ObjectInfo{
			Key:          aws.ToString(obj.Key),
			Size:         aws.ToInt64(obj.Size),
			ETag:         strings.Trim(aws.ToString(obj.ETag), `"`),
			LastModified: aws.ToTime(obj.LastModified),
		})
	}
	if aws.ToBool(out.IsTruncated) {
		page.NextToken = aws.ToString(out.NextContinuationToken)
	}
	return page, nil
}

func (s *S3Store) Put(ctx context.Context, key string, body io.Reader, size int64, contentType string) (ObjectInfo, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	out, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          body,
		ContentLength: aws.Int64(size),
		ContentType:   aws.String(contentType),
	})
	if err != nil {
		return ObjectInfo{}, Error.Wrap(err)
	}
	return ObjectInfo{
		Key:          key,
		Size:         size,
		ContentType:  contentType,
		ETag:         strings.Trim(aws.ToString(out.ETag), `"`),
		LastModified: time.Now().UTC(),
	}, nil
}

func (s *S3Store) Get(ctx context.Context, key string) (io.ReadCloser, ObjectInfo, error) {
	ctx, cancel := context.WithCancel(ctx)

	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		cancel()
		return nil, ObjectInfo{}, s.translate(key, err)
	}
	info := ObjectInfo{
		Key:          key,
		Size:         aws.ToInt64(out.ContentLength),
		ContentType:  aws.ToString(out.ContentType),
		ETag:         strings.Trim(aws.ToString(out.ETag), `"`),
		LastModified: aws.ToTime(out.LastModified),
	}
	return cancelOnClose{ReadCloser: out.Body, cancel: cancel}, info, nil
}

func (s *S3Store) Stat(ctx context.Context, key string) (ObjectInfo, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	out, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return ObjectInfo{}, s.translate(key, err)
	}
	return ObjectInfo{
		Key:          key,
		Size:         aws.ToInt64(out.ContentLength),
		ContentType:  aws.ToString(out.ContentType),
		ETag:         strings.Trim(aws.ToString(out.ETag), `"`),
		LastModified: aws.ToTime(out.LastModified),
	}, nil
}

func (s *S3Store) Copy(ctx context.Context, src, dst string) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	_, err := s.client.CopyObject(ctx, &s3.CopyObjectInput{
		Bucket:     aws.String(s.bucket),
		Key:        aws.String(dst),
		CopySource: aws.String(copySource(s.bucket, src)),
	})
	if err != nil {
		return s.translate(src, err)
	}
	return nil
}

func (s *S3Store) Delete(ctx context.Context, key string) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil && !isS3NotFound(err) {
		return Error.Wrap(err)
	}
	return nil
}

func (s *S3Store) DeleteMany(ctx context.Context, keys []string) error {
	var failures []error
	for start := 0; start < len(keys); start += deleteBatchSize {
		end := min(start+deleteBatchSize, len(keys))

		ids := make([]types.ObjectIdentifier, 0, end-start)
		for _, key := range keys[start:end] {
			ids = append(ids, types.ObjectIdentifier{Key: aws.String(key)})
		}

		out, err := s.deleteBatch(ctx, ids)
		if err != nil {
			return Error.Wrap(err)
		}
		for _, e := range out.Errors {
			if aws.ToString(e.Code) == "NoSuchKey" {
				continue
			}
			failures = append(failures, Error.New("remove %s: %s", aws.ToString(e.Key), aws.ToString(e.Message)))
		}
	}
	return errors.Join(failures...)
}

func (s *S3Store) deleteBatch(ctx context.Context, ids []types.ObjectIdentifier) (*s3.DeleteObjectsOutput, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	return s.client.DeleteObjects(ctx, &s3.DeleteObjectsInput{
		Bucket: aws.String(s.bucket),
		Delete: &types.Delete{
			Objects: ids,
			Quiet:   aws.Bool(true),
		},
	})
}

func (s *S3Store) PresignGet(ctx context.Context, key string, ttl time.Duration, opts PresignOptions) (string, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	input := &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}
	if disposition := opts.disposition(); disposition != "" {
		input.ResponseContentDisposition = aws.String(disposition)
	}
	req, err := s.presign.PresignGetObject(ctx, input, s3.WithPresignExpires(ttl))
	if err != nil {
		return "", Error.Wrap(err)
	}
	return req.URL, nil
}

func (s *S3Store) PresignPut(ctx context.Context, key string, ttl time.Duration, contentType string) (string, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	input := &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}
	if contentType != "" {
		input.ContentType = aws.String(contentType)
	}
	req, err := s.presign.PresignPutObject(ctx, input, s3.WithPresignExpires(ttl))
	if err != nil {
		return "", Error.Wrap(err)
	}
	return req.URL, nil
}

func (s *S3Store) Ping(ctx context.Context) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	if _, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(s.bucket)}); err != nil {
		return Error.Wrap(err)
	}
	return nil
}

func (s *S3Store) translate(key string, err error) error {
	if isS3NotFound(err) {
		return notFound(key)
	}
	return Error.Wrap(err)
}

func isS3NotFound(err error) bool {
	var noSuchKey *types.NoSuchKey
	if errors.As(err, &noSuchKey) {
		return true
	}
	var notFound *types.NotFound
	if errors.As(err, &notFound) {
		return true
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NotFound":
			return true
		}
	}
	return false
}

// copySource builds the URL-encoded "bucket/key" value CopyObject expects.
func copySource(bucket, key string) string {
	segments := strings.Split(key, "/")
	for i, segment := range segments {
		segments[i] = url.PathEscape(segment)
	}
	return bucket + "/" + strings.Join(segments, "/")
}

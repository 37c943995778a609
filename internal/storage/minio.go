package storage

import (
	"context"
	"fmt"
	"net"
	"strings"

	"github.com/kpcloud/kpcloud/internal/config"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

const minioDefaultPort = "9000"

// minioEndpoint turns the configured endpoint into the host:port form the
// MinIO client expects. A scheme prefix overrides USE_SSL.
func minioEndpoint(cfg config.MinIOConfig) (string, bool) {
	endpoint, secure := cfg.Endpoint, cfg.UseSSL
	switch {
	case strings.HasPrefix(endpoint, "https://"):
		endpoint, secure = strings.TrimPrefix(endpoint, "https://"), true
	case strings.HasPrefix(endpoint, "http://"):
		endpoint, secure = strings.TrimPrefix(endpoint, "http://"), false
	}
	endpoint = strings.TrimSuffix(endpoint, "/")

	if _, _, err := net.SplitHostPort(endpoint); err != nil {
		endpoint = net.JoinHostPort(strings.Trim(endpoint, "[]"), minioDefaultPort)
	}
	return endpoint, secure
}

// NewMinIOClient builds a client for the bucket-per-deployment MinIO driver.
func NewMinIOClient(cfg config.MinIOConfig) (*minio.Client, error) {
	endpoint, secure := minioEndpoint(cfg)

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: secure,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client for %s: %w", endpoint, err)
	}
	return client, nil
}

// EnsureBucket creates the configured bucket when it is missing. Both calls
// share one request timeout from the object store config.
func EnsureBucket(ctx context.Context, client *minio.Client, osCfg config.ObjectStoreConfig, region string) error {
	if osCfg.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, osCfg.RequestTimeout)
		defer cancel()
	}

	exists, err := client.BucketExists(ctx, osCfg.Bucket)
	if err != nil {
		return fmt.Errorf("check bucket %q: %w", osCfg.Bucket, err)
	}
	if exists {
		return nil
	}

	err = client.MakeBucket(ctx, osCfg.Bucket, minio.MakeBucketOptions{Region: region})
	if err != nil {
		// Another replica may have won the race.
		if resp := minio.ToErrorResponse(err); resp.Code == "BucketAlreadyOwnedByYou" {
			return nil
		}
		return fmt.Errorf("create bucket %q: %w", osCfg.Bucket, err)
	}
	return nil
}

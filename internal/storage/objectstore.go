package storage

import (
	"context"
	"fmt"

	"github.com/kpcloud/kpcloud/internal/config"
	"github.com/kpcloud/kpcloud/internal/objectstore"
)

// OpenObjectStore builds the object store selected by cfg.ObjectStore.Driver,
// wrapped with operation metrics.
func OpenObjectStore(ctx context.Context, cfg config.Config) (objectstore.Store, error) {
	osCfg := cfg.ObjectStore

	var store objectstore.Store
	switch osCfg.Driver {
	case "minio":
		client, err := NewMinIOClient(cfg.MinIO)
		if err != nil {
			return nil, err
		}
		if osCfg.EnsureBucket {
			if err := EnsureBucket(ctx, client, osCfg, cfg.MinIO.Region); err != nil {
				return nil, err
			}
		}
		store = objectstore.NewMinIOStore(client, osCfg.Bucket, osCfg.RequestTimeout, osCfg.ListPageSize)
	case "s3":
		client, err := NewS3Client(ctx, cfg.S3)
		if err != nil {
			return nil, err
		}
		store = objectstore.NewS3Store(client, osCfg.Bucket, osCfg.RequestTimeout, osCfg.ListPageSize)
	case "memory":
		store = objectstore.NewMemoryStore(osCfg.ListPageSize)
	default:
		return nil, fmt.Errorf("unknown object store driver %q", osCfg.Driver)
	}

	return objectstore.NewInstrumented(store), nil
}

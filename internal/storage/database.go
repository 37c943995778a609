package storage

import (
	"context"
	"fmt"

	"github.com/kpcloud/kpcloud/internal/account"
	"github.com/kpcloud/kpcloud/internal/activity"
	"github.com/kpcloud/kpcloud/internal/config"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

// Database bundles the document repositories of the selected driver.
type Database struct {
	Accounts account.Repository
	Activity activity.Store

	ping  func(ctx context.Context) error
	close func()
}

// Ping checks the document store is reachable.
func (d *Database) Ping(ctx context.Context) error {
	if d.ping == nil {
		return nil
	}
	return d.ping(ctx)
}

// Close releases connections.
func (d *Database) Close() {
	if d.close != nil {
		d.close()
	}
}

// OpenDatabase connects to the document store selected by cfg.Database.Driver
// and prepares its schema.
func OpenDatabase(ctx context.Context, cfg config.Config) (*Database, error) {
	switch cfg.Database.Driver {
	case "postgres":
		pool, err := NewPostgresPool(ctx, cfg.Postgres)
		if err != nil {
			return nil, err
		}
		if err := EnsureSchema(ctx, pool); err != nil {
			pool.Close()
			return nil, err
		}
		return &Database{
			Accounts: account.NewPostgresRepository(pool),
			Activity: activity.NewPostgresRepository(pool),
			ping:     pool.Ping,
			close:    pool.Close,
		}, nil

	case "mongo":
		db, err := NewMongoDatabase(ctx, cfg.Mongo)
		if err != nil {
			return nil, err
		}
		activityRepo := activity.NewMongoRepository(db)
		if err := activityRepo.EnsureIndexes(ctx); err != nil {
			_ = db.Client().Disconnect(context.Background())
			return nil, err
		}
		return &Database{
			Accounts: account.NewMongoRepository(db),
			Activity: activityRepo,
			ping: func(ctx context.Context) error {
				return db.Client().Ping(ctx, readpref.Primary())
			},
			close: func() {
				_ = db.Client().Disconnect(context.Background())
			},
		}, nil

	case "memory":
		return &Database{
			Accounts: account.NewMemoryRepository(),
			Activity: activity.NewMemoryRepository(),
		}, nil

	default:
		return nil, fmt.Errorf("unknown database driver %q", cfg.Database.Driver)
	}
}

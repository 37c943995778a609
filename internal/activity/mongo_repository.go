package activity

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoRepository stores entries in the "activity" collection.
type MongoRepository struct {
	coll *mongo.Collection
}

// NewMongoRepository constructs a repository on db.
func NewMongoRepository(db *mongo.Database) *MongoRepository {
	return &MongoRepository{coll: db.Collection("activity")}
}

// EnsureIndexes creates the per-user timeline index.
func (r *MongoRepository) EnsureIndexes(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, repositoryTimeout)
	defer cancel()

	_, err := r.coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "userId", Value: 1}, {Key: "createdAt", Value: -1}},
	})
	if err != nil {
		return fmt.Errorf("create activity index: %w", err)
	}
	return nil
}

func (r *MongoRepository) Insert(ctx context.Context, entry Entry) error {
	ctx, cancel := context.WithTimeout(ctx, repositoryTimeout)
	defer cancel()

	if _, err := r.coll.InsertOne(ctx, entry); err != nil {
		return fmt.Errorf("insert activity: %w", err)
	}
	return nil
}

func (r *MongoRepository) List(ctx context.Context, userID string, limit int) ([]Entry, error) {
	ctx, cancel := context.WithTimeout(ctx, repositoryTimeout)
	defer cancel()

	opts := options.Find().
		SetSort(bson.D{{Key: "createdAt", Value: -1}}).
		SetLimit(int64(limit))

	cursor, err := r.coll.Find(ctx, bson.M{"userId": userID}, opts)
	if err != nil {
		return nil, fmt.Errorf("list activity: %w", err)
	}
	var entries []Entry
	if err := cursor.All(ctx, &entries); err != nil {
		return nil, fmt.Errorf("decode activity: %w", err)
	}
	return entries, nil
}

package account

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoRepository stores accounts in the "users" collection keyed by id.
type MongoRepository struct {
	coll *mongo.Collection
}

// NewMongoRepository constructs a repository on db.
func NewMongoRepository(db *mongo.Database) *MongoRepository {
	return &MongoRepository{coll: db.Collection("users")}
}

func (r *MongoRepository) Get(ctx context.Context, id string) (Account, error) {
	ctx, cancel := context.WithTimeout(ctx, repositoryTimeout)
	defer cancel()

	var acct Account
	if err := r.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&acct); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return Account{}, ErrAccountNotFound
		}
		return Account{}, fmt.Errorf("get account: %w", err)
	}
	return acct, nil
}

func (r *MongoRepository) Create(ctx context.Context, acct Account) (Account, error) {
	ctx, cancel := context.WithTimeout(ctx, repositoryTimeout)
	defer cancel()

	if _, err := r.coll.InsertOne(ctx, acct); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return Account{}, ErrAccountExists
		}
		return Account{}, fmt.Errorf("create account: %w", err)
	}
	return acct, nil
}

func (r *MongoRepository) Save(ctx context.Context, acct Account) error {
	ctx, cancel := context.WithTimeout(ctx, repositoryTimeout)
	defer cancel()

	res, err := r.coll.ReplaceOne(ctx, bson.M{"_id": acct.ID}, acct)
	if err != nil {
		return fmt.Errorf("save account: %w", err)
	}
	if res.MatchedCount == 0 {
		return ErrAccountNotFound
	}
	return nil
}

func (r *MongoRepository) ListIDs(ctx context.Context) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, repositoryTimeout)
	defer cancel()

	opts := options.Find().SetProjection(bson.M{"_id": 1}).SetSort(bson.D{{Key: "_id", Value: 1}})
	cursor, err := r.coll.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}

	var docs []struct {
		ID string `bson:"_id"`
	}
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode accounts: %w", err)
	}
	ids := make([]string, 0, len(docs))
	for _, d := range docs {
		ids = append(ids, d.ID)
	}
	return ids, nil
}

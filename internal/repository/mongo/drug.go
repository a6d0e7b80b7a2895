package mongo

import (
	"context"
	"errors"
	"fmt"
	"regexp"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/jwalitptl/clinic-api/internal/config"
	"github.com/jwalitptl/clinic-api/internal/model"
	"github.com/jwalitptl/clinic-api/internal/repository"
	"github.com/jwalitptl/clinic-api/pkg/clock"
	apperrors "github.com/jwalitptl/clinic-api/pkg/errors"
)

const drugCollection = "drugs"

// Connect opens the client and verifies it with a ping.
func Connect(ctx context.Context, cfg config.MongoConfig) (*mongo.Client, error) {
	ctx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("failed to ping mongo: %w", err)
	}
	return client, nil
}

type drugRepository struct {
	coll  *mongo.Collection
	clock clock.Clock
}

func NewDrugRepository(db *mongo.Database, clk clock.Clock) repository.DrugRepository {
	return &drugRepository{coll: db.Collection(drugCollection), clock: clk}
}

// EnsureIndexes creates the unique name index the catalog relies on.
func EnsureIndexes(ctx context.Context, db *mongo.Database) error {
	_, err := db.Collection(drugCollection).Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "name", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "category", Value: 1}}},
	})
	if err != nil {
		return fmt.Errorf("failed to create drug indexes: %w", err)
	}
	return nil
}

func (r *drugRepository) Create(ctx context.Context, drug *model.Drug) error {
	now := r.clock.Now()
	drug.ID = primitive.NewObjectID()
	drug.CreatedAt = now
	drug.UpdatedAt = now

	if _, err := r.coll.InsertOne(ctx, drug); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return apperrors.DuplicateKey("name", err)
		}
		return fmt.Errorf("failed to create drug: %w", err)
	}
	return nil
}

func (r *drugRepository) Get(ctx context.Context, id string) (*model.Drug, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, apperrors.NotFound("drug", err)
	}

	var drug model.Drug
	if err := r.coll.FindOne(ctx, bson.M{"_id": oid}).Decode(&drug); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, apperrors.NotFound("drug", err)
		}
		return nil, fmt.Errorf("failed to get drug: %w", err)
	}
	return &drug, nil
}

func (r *drugRepository) List(ctx context.Context, filter *model.DrugFilter) ([]*model.Drug, error) {
	query := bson.M{}
	if filter.Name != "" {
		query["name"] = bson.M{"$regex": primitive.Regex{Pattern: regexp.QuoteMeta(filter.Name), Options: "i"}}
	}
	if filter.Category != "" {
		query["category"] = filter.Category
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "name", Value: 1}}).
		SetLimit(int64(filter.Limit())).
		SetSkip(int64(filter.Offset()))

	cursor, err := r.coll.Find(ctx, query, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list drugs: %w", err)
	}
	defer cursor.Close(ctx)

	drugs := []*model.Drug{}
	if err := cursor.All(ctx, &drugs); err != nil {
		return nil, fmt.Errorf("failed to decode drugs: %w", err)
	}
	return drugs, nil
}

func (r *drugRepository) Update(ctx context.Context, drug *model.Drug) error {
	drug.UpdatedAt = r.clock.Now()
	update := bson.M{"$set": bson.M{
		"name":       drug.Name,
		"image":      drug.Image,
		"category":   drug.Category,
		"updated_at": drug.UpdatedAt,
	}}

	res, err := r.coll.UpdateByID(ctx, drug.ID, update)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return apperrors.DuplicateKey("name", err)
		}
		return fmt.Errorf("failed to update drug: %w", err)
	}
	if res.MatchedCount == 0 {
		return apperrors.NotFound("drug", nil)
	}
	return nil
}

func (r *drugRepository) Delete(ctx context.Context, id string) error {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return apperrors.NotFound("drug", err)
	}

	res, err := r.coll.DeleteOne(ctx, bson.M{"_id": oid})
	if err != nil {
		return fmt.Errorf("failed to delete drug: %w", err)
	}
	if res.DeletedCount == 0 {
		return apperrors.NotFound("drug", nil)
	}
	return nil
}

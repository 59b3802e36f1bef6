package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"pronto-ballbot/internal/logging"
	"pronto-ballbot/internal/model"
)

// MongoDBInventoryRepository stores one document per user.
type MongoDBInventoryRepository struct {
	client     *mongo.Client
	db         *mongo.Database
	collection *mongo.Collection
	logger     *zap.Logger
}

// inventoryDocument is the stored shape of one user's inventory.
type inventoryDocument struct {
	UserID    string    `bson:"user_id"`
	Items     []string  `bson:"items"`
	UpdatedAt time.Time `bson:"updated_at"`
}

// NewMongoDBInventoryRepository connects to uri and ensures a unique index on
// user_id.
func NewMongoDBInventoryRepository(ctx context.Context, uri, database, collection string, logger *zap.Logger) (*MongoDBInventoryRepository, error) {
	if uri == "" {
		return nil, fmt.Errorf("MONGODB_URI is required for the mongodb inventory store")
	}
	logger = logging.OrNop(logger).Named("inventory.mongodb")

	connectCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	clientOpts := options.Client().
		ApplyURI(uri).
		SetMaxPoolSize(10).
		SetMaxConnIdleTime(5 * time.Minute).
		SetRetryWrites(true)

	client, err := mongo.Connect(connectCtx, clientOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}
	if err := client.Ping(connectCtx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	db := client.Database(database)
	coll := db.Collection(collection)

	indexModel := mongo.IndexModel{
		Keys:    bson.D{{Key: "user_id", Value: 1}},
		Options: options.Index().SetUnique(true),
	}
	if _, err := coll.Indexes().CreateOne(connectCtx, indexModel); err != nil {
		logger.Warn("Failed to create index", zap.Error(err))
	}

	logger.Info("Connected", zap.String("database", database), zap.String("collection", collection))
	return &MongoDBInventoryRepository{
		client:     client,
		db:         db,
		collection: coll,
		logger:     logger,
	}, nil
}

// Load returns every user's items. An empty store yields an empty record.
func (r *MongoDBInventoryRepository) Load(ctx context.Context) (model.Inventories, error) {
	cur, err := r.collection.Find(ctx, bson.M{})
	if err != nil {
		return nil, fmt.Errorf("failed to query inventory: %w", err)
	}
	defer cur.Close(ctx)

	inv := model.Inventories{}
	for cur.Next(ctx) {
		var doc inventoryDocument
		if err := cur.Decode(&doc); err != nil {
			return nil, fmt.Errorf("failed to decode inventory: %w: %w", ErrCorrupt, err)
		}
		if doc.Items == nil {
			doc.Items = []string{}
		}
		inv[doc.UserID] = doc.Items
	}
	return inv, cur.Err()
}

// Save bulk-upserts every user document and deletes documents of users no
// longer present. MongoDB offers no multi-document transaction on standalone
// servers, so the two steps are ordered writes rather than one transaction.
func (r *MongoDBInventoryRepository) Save(ctx context.Context, inv model.Inventories) error {
	now := time.Now().UTC()
	users := make([]string, 0, len(inv))
	models := make([]mongo.WriteModel, 0, len(inv))
	for user, items := range inv {
		if items == nil {
			items = []string{}
		}
		users = append(users, user)
		models = append(models, mongo.NewUpdateOneModel().
			SetFilter(bson.M{"user_id": user}).
			SetUpdate(bson.M{"$set": bson.M{"items": items, "updated_at": now}}).
			SetUpsert(true))
	}

	if len(models) > 0 {
		if _, err := r.collection.BulkWrite(ctx, models, options.BulkWrite().SetOrdered(true)); err != nil {
			return fmt.Errorf("failed to upsert inventory: %w", err)
		}
	}

	res, err := r.collection.DeleteMany(ctx, bson.M{"user_id": bson.M{"$nin": users}})
	if err != nil {
		return fmt.Errorf("failed to delete stale inventory: %w", err)
	}
	if res.DeletedCount > 0 {
		r.logger.Info("Removed stale inventories", zap.Int64("count", res.DeletedCount))
	}
	return nil
}

// GetStats reports the backend and how many users and items it holds.
func (r *MongoDBInventoryRepository) GetStats(ctx context.Context) (map[string]interface{}, error) {
	stats := map[string]interface{}{"backend": "mongodb", "status": "connected"}

	count, err := r.collection.CountDocuments(ctx, bson.M{})
	if err != nil {
		return stats, err
	}
	stats["users"] = count

	opts := options.FindOne().SetSort(bson.D{{Key: "updated_at", Value: -1}})
	var doc inventoryDocument
	err = r.collection.FindOne(ctx, bson.M{}, opts).Decode(&doc)
	if err == nil {
		stats["last_write"] = doc.UpdatedAt
	} else if !errors.Is(err, mongo.ErrNoDocuments) {
		r.logger.Warn("Failed to read last write", zap.Error(err))
	}

	result := r.db.RunCommand(ctx, bson.D{{Key: "collStats", Value: r.collection.Name()}})
	var collStats bson.M
	if err := result.Decode(&collStats); err == nil {
		switch size := collStats["size"].(type) {
		case int64:
			stats["db_size_bytes"] = size
		case int32:
			stats["db_size_bytes"] = int64(size)
		}
	}

	return stats, nil
}

// Close releases the underlying connection.
func (r *MongoDBInventoryRepository) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return r.client.Disconnect(ctx)
}

var _ InventoryRepository = (*MongoDBInventoryRepository)(nil)

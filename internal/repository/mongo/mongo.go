// Package mongo implements the repository interfaces on MongoDB.
//
// Posts are stored the way a document database wants them: tags and comments
// live inside the post document, and the owner is an ObjectID reference that
// read paths resolve with one extra $in query per batch (the "populate" step).
//
// Every single-post mutation is one server-side atomic operation:
//   - views:    FindOneAndUpdate {$inc: {viewsCount: 1}}, returning the new document
//   - comments: FindOneAndUpdate {$push: {comments: ...}}, returning the new document
package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/sakif/blog-api/internal/apperror"
	"github.com/sakif/blog-api/internal/repository"
)

var _ repository.Store = (*DB)(nil)

const (
	usersCollection   = "users"
	postsCollection   = "posts"
	uploadsCollection = "uploads"
)

// DB holds the client and the collections of one database.
type DB struct {
	client  *mongo.Client
	db      *mongo.Database
	users   *mongo.Collection
	posts   *mongo.Collection
	uploads *mongo.Collection
}

// New connects to uri, verifies the connection and ensures indexes.
func New(ctx context.Context, uri, database string) (*DB, error) {
	client, err := mongo.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("mongo: connecting: %w", err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("mongo: pinging: %w", err)
	}

	d := client.Database(database)
	db := &DB{
		client:  client,
		db:      d,
		users:   d.Collection(usersCollection),
		posts:   d.Collection(postsCollection),
		uploads: d.Collection(uploadsCollection),
	}

	if err := db.ensureIndexes(ctx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("mongo: creating indexes: %w", err)
	}

	return db, nil
}

// Close disconnects the client, waiting at most five seconds for in-flight operations.
func (db *DB) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return db.client.Disconnect(ctx)
}

// ensureIndexes is idempotent: creating an index that already exists is a no-op.
func (db *DB) ensureIndexes(ctx context.Context) error {
	if _, err := db.users.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "email", Value: 1}},
		Options: options.Index().SetUnique(true),
	}); err != nil {
		return fmt.Errorf("users.email: %w", err)
	}

	if _, err := db.posts.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "tags", Value: 1}}},
		{Keys: bson.D{{Key: "viewsCount", Value: -1}, {Key: "_id", Value: -1}}},
	}); err != nil {
		return fmt.Errorf("posts: %w", err)
	}

	if _, err := db.uploads.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "key", Value: 1}},
		Options: options.Index().SetUnique(true),
	}); err != nil {
		return fmt.Errorf("uploads.key: %w", err)
	}

	return nil
}

// objectID parses a hex id. An id that is not a valid ObjectID cannot name
// any stored document, so it is reported as not found rather than malformed.
func objectID(resource, id string) (bson.ObjectID, error) {
	oid, err := bson.ObjectIDFromHex(id)
	if err != nil {
		return bson.ObjectID{}, apperror.NotFound(resource, id)
	}
	return oid, nil
}

func notFoundOr(err error, resource, id, op string) error {
	if errors.Is(err, mongo.ErrNoDocuments) {
		return apperror.NotFound(resource, id)
	}
	return fmt.Errorf("mongo: %s: %w", op, err)
}

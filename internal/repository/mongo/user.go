package mongo

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"

	"github.com/sakif/blog-api/internal/apperror"
	"github.com/sakif/blog-api/internal/model"
)

type userDoc struct {
	ID           bson.ObjectID `bson:"_id,omitempty"`
	Email        string        `bson:"email"`
	FullName     string        `bson:"fullName"`
	PasswordHash string        `bson:"passwordHash"`
	AvatarURL    string        `bson:"avatarURL,omitempty"`
	CreatedAt    time.Time     `bson:"createdAt"`
	UpdatedAt    time.Time     `bson:"updatedAt"`
}

func (d userDoc) toModel() *model.User {
	return &model.User{
		ID:           d.ID.Hex(),
		Email:        d.Email,
		FullName:     d.FullName,
		PasswordHash: d.PasswordHash,
		AvatarURL:    d.AvatarURL,
		CreatedAt:    d.CreatedAt,
		UpdatedAt:    d.UpdatedAt,
	}
}

// CreateUser inserts a user. The unique index on email turns a second
// registration with the same address into apperror.ErrConflict.
func (db *DB) CreateUser(ctx context.Context, user *model.User) error {
	now := time.Now().UTC().Truncate(time.Millisecond)
	doc := userDoc{
		ID:           bson.NewObjectID(),
		Email:        user.Email,
		FullName:     user.FullName,
		PasswordHash: user.PasswordHash,
		AvatarURL:    user.AvatarURL,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if _, err := db.users.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return apperror.Conflict("user", user.Email)
		}
		return fmt.Errorf("mongo: inserting user: %w", err)
	}

	user.ID = doc.ID.Hex()
	user.CreatedAt = now
	user.UpdatedAt = now
	return nil
}

func (db *DB) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	var doc userDoc
	if err := db.users.FindOne(ctx, bson.M{"email": email}).Decode(&doc); err != nil {
		return nil, notFoundOr(err, "user", email, "getting user by email")
	}
	return doc.toModel(), nil
}

func (db *DB) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	oid, err := objectID("user", id)
	if err != nil {
		return nil, err
	}

	var doc userDoc
	if err := db.users.FindOne(ctx, bson.M{"_id": oid}).Decode(&doc); err != nil {
		return nil, notFoundOr(err, "user", id, "getting user "+id)
	}
	return doc.toModel(), nil
}

// usersByID fetches the given users in one round trip, keyed by ObjectID.
// Missing ids are simply absent from the map.
func (db *DB) usersByID(ctx context.Context, ids []bson.ObjectID) (map[bson.ObjectID]*model.User, error) {
	out := make(map[bson.ObjectID]*model.User, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	cur, err := db.users.Find(ctx, bson.M{"_id": bson.M{"$in": ids}})
	if err != nil {
		return nil, fmt.Errorf("mongo: populating owners: %w", err)
	}

	var docs []userDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("mongo: decoding owners: %w", err)
	}

	for _, d := range docs {
		u := d.toModel()
		u.PasswordHash = ""
		out[d.ID] = u
	}
	return out, nil
}

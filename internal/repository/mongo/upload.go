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

type uploadDoc struct {
	ID           bson.ObjectID `bson:"_id,omitempty"`
	Key          string        `bson:"key"`
	OriginalName string        `bson:"originalName"`
	ContentType  string        `bson:"contentType"`
	Size         int64         `bson:"size"`
	UserID       string        `bson:"userId"`
	CreatedAt    time.Time     `bson:"createdAt"`
}

func (db *DB) CreateUpload(ctx context.Context, upload *model.Upload) error {
	doc := uploadDoc{
		ID:           bson.NewObjectID(),
		Key:          upload.Key,
		OriginalName: upload.OriginalName,
		ContentType:  upload.ContentType,
		Size:         upload.Size,
		UserID:       upload.UserID,
		CreatedAt:    time.Now().UTC().Truncate(time.Millisecond),
	}

	if _, err := db.uploads.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return apperror.Conflict("upload", upload.Key)
		}
		return fmt.Errorf("mongo: recording upload %s: %w", upload.Key, err)
	}

	upload.ID = doc.ID.Hex()
	upload.CreatedAt = doc.CreatedAt
	return nil
}

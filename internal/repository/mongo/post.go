package mongo

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/sakif/blog-api/internal/apperror"
	"github.com/sakif/blog-api/internal/model"
	"github.com/sakif/blog-api/internal/repository"
)

type commentDoc struct {
	UserID   string `bson:"userId"`
	FullName string `bson:"fullName"`
	Text     string `bson:"text"`
}

type postDoc struct {
	ID         bson.ObjectID `bson:"_id,omitempty"`
	Title      string        `bson:"title"`
	Text       string        `bson:"text"`
	ImageURL   string        `bson:"imageURL,omitempty"`
	Tags       []string      `bson:"tags"`
	User       bson.ObjectID `bson:"user"`
	ViewsCount int           `bson:"viewsCount"`
	Comments   []commentDoc  `bson:"comments"`
	CreatedAt  time.Time     `bson:"createdAt"`
	UpdatedAt  time.Time     `bson:"updatedAt"`
}

func (d postDoc) toModel(owner *model.User) model.Post {
	p := model.Post{
		ID:         d.ID.Hex(),
		Title:      d.Title,
		Text:       d.Text,
		ImageURL:   d.ImageURL,
		Tags:       d.Tags,
		UserID:     d.User.Hex(),
		User:       owner,
		ViewsCount: d.ViewsCount,
		Comments:   make([]model.Comment, 0, len(d.Comments)),
		CreatedAt:  d.CreatedAt,
		UpdatedAt:  d.UpdatedAt,
	}
	if p.Tags == nil {
		p.Tags = []string{}
	}
	for _, c := range d.Comments {
		p.Comments = append(p.Comments, model.Comment(c))
	}
	return p
}

func (db *DB) CreatePost(ctx context.Context, post *model.Post) error {
	owner, err := objectID("user", post.UserID)
	if err != nil {
		return err
	}

	now := time.Now().UTC().Truncate(time.Millisecond)
	tags := post.Tags
	if tags == nil {
		tags = []string{}
	}
	doc := postDoc{
		ID:        bson.NewObjectID(),
		Title:     post.Title,
		Text:      post.Text,
		ImageURL:  post.ImageURL,
		Tags:      tags,
		User:      owner,
		Comments:  []commentDoc{},
		CreatedAt: now,
		UpdatedAt: now,
	}

	if _, err := db.posts.InsertOne(ctx, doc); err != nil {
		return fmt.Errorf("mongo: inserting post: %w", err)
	}

	post.ID = doc.ID.Hex()
	post.Tags = tags
	post.ViewsCount = 0
	post.Comments = []model.Comment{}
	post.CreatedAt = now
	post.UpdatedAt = now
	return nil
}

// ListPosts sorts "newest" by _id: ObjectIDs start with a timestamp and end
// with a per-process counter, so they follow insertion order.
func (db *DB) ListPosts(ctx context.Context, opts repository.PostListOptions) ([]model.Post, error) {
	filter := bson.M{}
	if opts.Tag != "" {
		// Matching a scalar against an array field matches any element.
		filter["tags"] = opts.Tag
	}

	sort := bson.D{{Key: "_id", Value: -1}}
	if opts.Sort == repository.SortPopular {
		sort = bson.D{{Key: "viewsCount", Value: -1}, {Key: "_id", Value: -1}}
	}

	find := options.Find().SetSort(sort)
	if opts.Limit > 0 {
		find.SetLimit(int64(opts.Limit))
	}

	cur, err := db.posts.Find(ctx, filter, find)
	if err != nil {
		return nil, fmt.Errorf("mongo: listing posts: %w", err)
	}

	var docs []postDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("mongo: decoding posts: %w", err)
	}

	return db.populate(ctx, docs)
}

func (db *DB) GetPost(ctx context.Context, id string) (*model.Post, error) {
	oid, err := objectID("post", id)
	if err != nil {
		return nil, err
	}

	var doc postDoc
	if err := db.posts.FindOne(ctx, bson.M{"_id": oid}).Decode(&doc); err != nil {
		return nil, notFoundOr(err, "post", id, "getting post "+id)
	}
	return db.populateOne(ctx, doc)
}

func (db *DB) IncrementViews(ctx context.Context, id string) (*model.Post, error) {
	return db.findAndUpdate(ctx, id, bson.M{"$inc": bson.M{"viewsCount": 1}}, "incrementing views of "+id)
}

func (db *DB) UpdatePost(ctx context.Context, id string, upd repository.PostUpdate) error {
	oid, err := objectID("post", id)
	if err != nil {
		return err
	}
	owner, err := objectID("user", upd.UserID)
	if err != nil {
		return err
	}
	tags := upd.Tags
	if tags == nil {
		tags = []string{}
	}

	res, err := db.posts.UpdateOne(ctx, bson.M{"_id": oid}, bson.M{"$set": bson.M{
		"title":     upd.Title,
		"text":      upd.Text,
		"imageURL":  upd.ImageURL,
		"tags":      tags,
		"user":      owner,
		"updatedAt": time.Now().UTC(),
	}})
	if err != nil {
		return fmt.Errorf("mongo: updating post %s: %w", id, err)
	}
	if res.MatchedCount == 0 {
		return apperror.NotFound("post", id)
	}
	return nil
}

func (db *DB) AppendComment(ctx context.Context, id string, c model.Comment) (*model.Post, error) {
	return db.findAndUpdate(ctx, id, bson.M{
		"$push": bson.M{"comments": commentDoc(c)},
		"$set":  bson.M{"updatedAt": time.Now().UTC()},
	}, "appending comment to "+id)
}

func (db *DB) DeletePost(ctx context.Context, id string) error {
	oid, err := objectID("post", id)
	if err != nil {
		return err
	}

	res, err := db.posts.DeleteOne(ctx, bson.M{"_id": oid})
	if err != nil {
		return fmt.Errorf("mongo: deleting post %s: %w", id, err)
	}
	if res.DeletedCount == 0 {
		return apperror.NotFound("post", id)
	}
	return nil
}

// findAndUpdate applies update to one post and returns the document as it is
// after the update, owner populated.
func (db *DB) findAndUpdate(ctx context.Context, id string, update bson.M, op string) (*model.Post, error) {
	oid, err := objectID("post", id)
	if err != nil {
		return nil, err
	}

	var doc postDoc
	err = db.posts.FindOneAndUpdate(ctx, bson.M{"_id": oid}, update,
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&doc)
	if err != nil {
		return nil, notFoundOr(err, "post", id, op)
	}
	return db.populateOne(ctx, doc)
}

func (db *DB) populateOne(ctx context.Context, doc postDoc) (*model.Post, error) {
	posts, err := db.populate(ctx, []postDoc{doc})
	if err != nil {
		return nil, err
	}
	return &posts[0], nil
}

// populate resolves the owner of every post with a single $in query.
func (db *DB) populate(ctx context.Context, docs []postDoc) ([]model.Post, error) {
	seen := make(map[bson.ObjectID]bool, len(docs))
	ids := make([]bson.ObjectID, 0, len(docs))
	for _, d := range docs {
		if !seen[d.User] {
			seen[d.User] = true
			ids = append(ids, d.User)
		}
	}

	owners, err := db.usersByID(ctx, ids)
	if err != nil {
		return nil, err
	}

	posts := make([]model.Post, 0, len(docs))
	for _, d := range docs {
		posts = append(posts, d.toModel(owners[d.User]))
	}
	return posts, nil
}

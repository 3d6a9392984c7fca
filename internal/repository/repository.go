// Package repository declares the storage contract of the blog.
//
// Services depend on these interfaces only. Two implementations exist:
// repository/sqlite (embedded, the default) and repository/mongo (document
// store). Both return apperror kinds so services never see driver errors.
package repository

import (
	"context"

	"github.com/sakif/blog-api/internal/model"
)

// PostSort selects the ordering of ListPosts.
type PostSort string

const (
	// SortNewest orders by creation time, newest first.
	SortNewest PostSort = "newest"
	// SortPopular orders by view count, highest first; ties are newest first.
	SortPopular PostSort = "popular"
)

// PostListOptions filters and orders ListPosts.
//
// Limit <= 0 means no limit. Tag, when set, keeps only posts whose tag list
// contains it exactly (case-sensitive).
type PostListOptions struct {
	Sort  PostSort
	Tag   string
	Limit int
}

// PostUpdate is the full replacement applied by UpdatePost. Views, comments and
// the creation time are not part of it and survive the update unchanged.
type PostUpdate struct {
	Title    string
	Text     string
	ImageURL string
	Tags     []string
	UserID   string
}

type UserRepository interface {
	// CreateUser assigns ID and timestamps. A taken email yields apperror.ErrConflict.
	CreateUser(ctx context.Context, user *model.User) error
	GetUserByEmail(ctx context.Context, email string) (*model.User, error)
	GetUserByID(ctx context.Context, id string) (*model.User, error)
}

// PostRepository stores posts. Read methods populate Post.User with the owner
// when the owner exists.
type PostRepository interface {
	CreatePost(ctx context.Context, post *model.Post) error
	ListPosts(ctx context.Context, opts PostListOptions) ([]model.Post, error)
	GetPost(ctx context.Context, id string) (*model.Post, error)

	// IncrementViews atomically adds one view and returns the post as it is
	// after the increment.
	IncrementViews(ctx context.Context, id string) (*model.Post, error)

	UpdatePost(ctx context.Context, id string, upd PostUpdate) error

	// AppendComment atomically appends c to the post's comments and returns
	// the updated post.
	AppendComment(ctx context.Context, id string, c model.Comment) (*model.Post, error)

	DeletePost(ctx context.Context, id string) error
}

type UploadRepository interface {
	CreateUpload(ctx context.Context, upload *model.Upload) error
}

// Store is everything a backend provides.
type Store interface {
	UserRepository
	PostRepository
	UploadRepository
	Close() error
}

// Package service contains the business logic layer of the application.
//
// THE THREE-LAYER ARCHITECTURE:
//
//	Handler (HTTP layer)     → parses requests, writes responses
//	Service (Business layer) → validates, enforces rules, orchestrates
//	Repository (Data layer)  → reads/writes to the database
//
// Services take repository interfaces, never a concrete backend, so the same
// code runs on SQLite, on MongoDB, and on the in-memory fakes of the tests.
// They return apperror kinds; the handler decides the status codes.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/sakif/blog-api/internal/apperror"
	"github.com/sakif/blog-api/internal/model"
	"github.com/sakif/blog-api/internal/repository"
)

const (
	// recentPosts is how many of the newest posts feed the tag and comment teasers.
	recentPosts  = 5
	lastTagsN    = 5
	lastCommentN = 3
)

// PostService handles posts, their view counts and their comments.
type PostService struct {
	posts  repository.PostRepository
	users  repository.UserRepository
	logger *slog.Logger
}

func NewPostService(posts repository.PostRepository, users repository.UserRepository, logger *slog.Logger) *PostService {
	return &PostService{
		posts:  posts,
		users:  users,
		logger: logger,
	}
}

// PostInput carries the editable fields of a post.
type PostInput struct {
	Title    string
	Text     string
	ImageURL string
	Tags     []string
}

// UpdateInput is a full overwrite. UserID, when set, moves the post to that
// owner; when empty the current owner is kept.
type UpdateInput struct {
	PostInput
	UserID string
}

// validate trims the input in place and reports every invalid field.
func (in *PostInput) validate() error {
	in.Title = strings.TrimSpace(in.Title)
	in.Text = strings.TrimSpace(in.Text)
	in.ImageURL = strings.TrimSpace(in.ImageURL)

	var errs fieldErrors
	checkMinLength(&errs, "title", in.Title, MinTitleLength)
	checkMinLength(&errs, "text", in.Text, MinTextLength)
	in.Tags = cleanTags(&errs, in.Tags)
	return errs.err()
}

// Create stores a new post owned by userID.
func (s *PostService) Create(ctx context.Context, userID string, in PostInput) (*model.Post, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}

	post := &model.Post{
		Title:    in.Title,
		Text:     in.Text,
		ImageURL: in.ImageURL,
		Tags:     in.Tags,
		UserID:   userID,
	}
	if err := s.posts.CreatePost(ctx, post); err != nil {
		s.logger.Error("failed to create post",
			slog.String("userID", userID),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("service/post: creating post: %w", err)
	}

	s.logger.Info("post created",
		slog.String("id", post.ID),
		slog.String("userID", userID),
	)
	return post, nil
}

// List returns every post, newest first.
func (s *PostService) List(ctx context.Context) ([]model.Post, error) {
	return s.list(ctx, repository.PostListOptions{Sort: repository.SortNewest})
}

// ListPopular returns every post, most viewed first.
func (s *PostService) ListPopular(ctx context.Context) ([]model.Post, error) {
	return s.list(ctx, repository.PostListOptions{Sort: repository.SortPopular})
}

// ListByTag returns the posts carrying tag exactly (case-sensitive), newest first.
func (s *PostService) ListByTag(ctx context.Context, tag string) ([]model.Post, error) {
	tag = strings.TrimSpace(tag)
	if tag == "" {
		return nil, apperror.ValidationFailed("tag", "tag is required")
	}
	return s.list(ctx, repository.PostListOptions{Sort: repository.SortNewest, Tag: tag})
}

func (s *PostService) list(ctx context.Context, opts repository.PostListOptions) ([]model.Post, error) {
	posts, err := s.posts.ListPosts(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("service/post: listing posts: %w", err)
	}
	return posts, nil
}

// View counts one view of the post and returns it with the count produced by
// this call. A missing post is apperror.ErrNotFound.
func (s *PostService) View(ctx context.Context, id string) (*model.Post, error) {
	post, err := s.posts.IncrementViews(ctx, id)
	if err != nil {
		return nil, passNotFound(err, "service/post: viewing post %s", id)
	}
	return post, nil
}

// Update overwrites title, text, image, tags and (optionally) the owner.
// Views and comments are untouched. The post and any new owner must exist.
func (s *PostService) Update(ctx context.Context, id string, in UpdateInput) error {
	if err := in.validate(); err != nil {
		return err
	}

	owner := strings.TrimSpace(in.UserID)
	if owner == "" {
		current, err := s.posts.GetPost(ctx, id)
		if err != nil {
			return passNotFound(err, "service/post: loading post %s", id)
		}
		owner = current.UserID
	} else if _, err := s.users.GetUserByID(ctx, owner); err != nil {
		return passNotFound(err, "service/post: checking new owner %s", owner)
	}

	err := s.posts.UpdatePost(ctx, id, repository.PostUpdate{
		Title:    in.Title,
		Text:     in.Text,
		ImageURL: in.ImageURL,
		Tags:     in.Tags,
		UserID:   owner,
	})
	if err != nil {
		return passNotFound(err, "service/post: updating post %s", id)
	}

	s.logger.Info("post updated", slog.String("id", id))
	return nil
}

// Delete removes the post and its comments.
func (s *PostService) Delete(ctx context.Context, id string) error {
	if err := s.posts.DeletePost(ctx, id); err != nil {
		return passNotFound(err, "service/post: deleting post %s", id)
	}

	s.logger.Info("post deleted", slog.String("id", id))
	return nil
}

// AddComment appends a comment by callerID to the post.
//
// The author's current full name is copied into the comment; renaming the
// account later leaves old comments as they were. bodyUserID is the userId
// older clients send along; when present it must name the caller.
func (s *PostService) AddComment(ctx context.Context, postID, callerID, bodyUserID, text string) (*model.Post, error) {
	if bodyUserID != "" && bodyUserID != callerID {
		return nil, apperror.Forbidden("cannot comment on behalf of another user")
	}

	text = strings.TrimSpace(text)
	switch n := utf8.RuneCountInString(text); {
	case n == 0:
		return nil, apperror.ValidationFailed("comment", "comment must not be empty")
	case n > MaxCommentLength:
		return nil, apperror.ValidationFailed("comment",
			fmt.Sprintf("comment must be at most %d characters", MaxCommentLength))
	}

	author, err := s.users.GetUserByID(ctx, callerID)
	if err != nil {
		return nil, passNotFound(err, "service/post: loading comment author %s", callerID)
	}

	post, err := s.posts.AppendComment(ctx, postID, model.Comment{
		UserID:   author.ID,
		FullName: author.FullName,
		Text:     text,
	})
	if err != nil {
		return nil, passNotFound(err, "service/post: commenting on post %s", postID)
	}

	s.logger.Info("comment added",
		slog.String("postID", postID),
		slog.String("userID", callerID),
	)
	return post, nil
}

// LastTags returns up to 5 tags of the 5 newest posts, most recently added first.
func (s *PostService) LastTags(ctx context.Context) ([]string, error) {
	posts, err := s.recent(ctx)
	if err != nil {
		return nil, err
	}
	return lastOf(posts, func(p model.Post) []string { return p.Tags }, lastTagsN), nil
}

// LastComments returns up to 3 comments of the 5 newest posts, most recent first.
func (s *PostService) LastComments(ctx context.Context) ([]model.Comment, error) {
	posts, err := s.recent(ctx)
	if err != nil {
		return nil, err
	}
	return lastOf(posts, func(p model.Post) []model.Comment { return p.Comments }, lastCommentN), nil
}

func (s *PostService) recent(ctx context.Context) ([]model.Post, error) {
	posts, err := s.posts.ListPosts(ctx, repository.PostListOptions{
		Sort:  repository.SortNewest,
		Limit: recentPosts,
	})
	if err != nil {
		return nil, fmt.Errorf("service/post: listing recent posts: %w", err)
	}
	return posts, nil
}

// lastOf flattens the items of newestFirst in chronological order (oldest post
// first, each post's items in stored order), reverses the result and keeps the
// first n.
//
// Walking the posts newest-first and each item list backwards yields exactly
// that reversed sequence, so no intermediate slice is built.
func lastOf[T any](newestFirst []model.Post, items func(model.Post) []T, n int) []T {
	out := make([]T, 0, n)
	for _, p := range newestFirst {
		list := items(p)
		for i := len(list) - 1; i >= 0; i-- {
			if len(out) == n {
				return out
			}
			out = append(out, list[i])
		}
	}
	return out
}

// passNotFound returns apperror kinds unchanged and wraps anything else.
func passNotFound(err error, format string, args ...any) error {
	var appErr *apperror.AppError
	if errors.As(err, &appErr) {
		return err
	}
	return fmt.Errorf(format+": %w", append(args, err)...)
}

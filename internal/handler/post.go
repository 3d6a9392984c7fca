package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/blog-api/internal/apperror"
	"github.com/sakif/blog-api/internal/auth"
	"github.com/sakif/blog-api/internal/model"
	"github.com/sakif/blog-api/internal/service"
)

// Posts is what PostHandler needs from the post service.
type Posts interface {
	Create(ctx context.Context, userID string, in service.PostInput) (*model.Post, error)
	List(ctx context.Context) ([]model.Post, error)
	ListPopular(ctx context.Context) ([]model.Post, error)
	ListByTag(ctx context.Context, tag string) ([]model.Post, error)
	View(ctx context.Context, id string) (*model.Post, error)
	Update(ctx context.Context, id string, in service.UpdateInput) error
	Delete(ctx context.Context, id string) error
	AddComment(ctx context.Context, postID, callerID, bodyUserID, text string) (*model.Post, error)
	LastTags(ctx context.Context) ([]string, error)
	LastComments(ctx context.Context) ([]model.Comment, error)
}

// PostHandler serves posts, tags and comments.
type PostHandler struct {
	posts  Posts
	logger *slog.Logger
}

func NewPostHandler(posts Posts, logger *slog.Logger) *PostHandler {
	return &PostHandler{posts: posts, logger: logger}
}

// tagList accepts tags as a JSON array or as one comma separated string,
// which is what plain HTML forms send:
//
//	"tags": ["go", "web"]
//	"tags": "go, web"
type tagList []string

func (t *tagList) UnmarshalJSON(data []byte) error {
	var list []string
	if err := json.Unmarshal(data, &list); err == nil {
		*t = list
		return nil
	}

	var joined string
	if err := json.Unmarshal(data, &joined); err != nil {
		return apperror.ValidationFailed("tags", "tags must be an array of strings or a comma separated string")
	}
	*t = nil
	for _, tag := range strings.Split(joined, ",") {
		if tag = strings.TrimSpace(tag); tag != "" {
			*t = append(*t, tag)
		}
	}
	return nil
}

// postRequest is the body of POST /posts and PATCH /posts/{id}.
// UserID is only read by PATCH, where it reassigns the post.
type postRequest struct {
	Title    string  `json:"title"`
	Text     string  `json:"text"`
	ImageURL string  `json:"imageURL"`
	Tags     tagList `json:"tags"`
	UserID   string  `json:"userId"`
}

func (req postRequest) input() service.PostInput {
	return service.PostInput{
		Title:    req.Title,
		Text:     req.Text,
		ImageURL: req.ImageURL,
		Tags:     req.Tags,
	}
}

// commentRequest is the body of PATCH /posts/{id}/comment.
type commentRequest struct {
	UserID  string `json:"userId"`
	Comment string `json:"comment"`
}

// postDataResponse wraps a single post, the shape clients already parse.
type postDataResponse struct {
	PostData *model.Post `json:"postData"`
}

// HandleCreate stores a new post owned by the caller.
//
// HTTP: POST /posts
// Auth: Required
// REQUEST BODY: {"title": "...", "text": "...", "imageURL": "/uploads/x.png", "tags": ["go"]}
func (h *PostHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		writeError(w, h.logger, apperror.Unauthorized("authentication required"))
		return
	}

	var req postRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}

	post, err := h.posts.Create(r.Context(), userID, req.input())
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusCreated, post)
}

// HandleList returns every post, newest first.
//
// HTTP: GET /posts
func (h *PostHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	h.writePosts(w)(h.posts.List(r.Context()))
}

// HandleListPopular returns every post, most viewed first.
//
// HTTP: GET /posts/popular
func (h *PostHandler) HandleListPopular(w http.ResponseWriter, r *http.Request) {
	h.writePosts(w)(h.posts.ListPopular(r.Context()))
}

// HandleListByTag returns the posts carrying the tag.
//
// HTTP: GET /tags/{name}
func (h *PostHandler) HandleListByTag(w http.ResponseWriter, r *http.Request) {
	tag, err := pathParam(r, "name")
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	h.writePosts(w)(h.posts.ListByTag(r.Context(), tag))
}

// pathParam returns the decoded route parameter. chi matches against
// URL.RawPath when it is set, so "x%2Fy" arrives still escaped.
func pathParam(r *http.Request, name string) (string, error) {
	v := chi.URLParam(r, name)
	if r.URL.RawPath == "" {
		return v, nil
	}
	decoded, err := url.PathUnescape(v)
	if err != nil {
		return "", apperror.ValidationFailed(name, "malformed path parameter")
	}
	return decoded, nil
}

func (h *PostHandler) writePosts(w http.ResponseWriter) func([]model.Post, error) {
	return func(posts []model.Post, err error) {
		if err != nil {
			writeError(w, h.logger, err)
			return
		}
		writeJSON(w, http.StatusOK, posts)
	}
}

// HandleGet returns one post and counts the view.
//
// HTTP: GET /posts/{id}
// RESPONSE: {"postData": {...}} with viewsCount including this request.
func (h *PostHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	post, err := h.posts.View(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, postDataResponse{PostData: post})
}

// HandleUpdate overwrites a post.
//
// HTTP: PATCH /posts/{id}
// Auth: Required
// REQUEST BODY: {"title", "text", "imageURL", "tags", "userId"?}
func (h *PostHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	var req postRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}

	err := h.posts.Update(r.Context(), chi.URLParam(r, "id"), service.UpdateInput{
		PostInput: req.input(),
		UserID:    req.UserID,
	})
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, SuccessResponse{Success: true})
}

// HandleDelete removes a post.
//
// HTTP: DELETE /posts/{id}
// Auth: Required
func (h *PostHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	if err := h.posts.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, SuccessResponse{Success: true})
}

// HandleComment appends the caller's comment to a post.
//
// HTTP: PATCH /posts/{id}/comment
// Auth: Required
// REQUEST BODY: {"userId": "<caller>", "comment": "..."}
func (h *PostHandler) HandleComment(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		writeError(w, h.logger, apperror.Unauthorized("authentication required"))
		return
	}

	var req commentRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}

	post, err := h.posts.AddComment(r.Context(), chi.URLParam(r, "id"), userID, req.UserID, req.Comment)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, postDataResponse{PostData: post})
}

// HandleLastTags returns up to five of the most recently added tags.
//
// HTTP: GET /tags
func (h *PostHandler) HandleLastTags(w http.ResponseWriter, r *http.Request) {
	tags, err := h.posts.LastTags(r.Context())
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, tags)
}

// HandleLastComments returns up to three of the most recent comments.
//
// HTTP: GET /comments
func (h *PostHandler) HandleLastComments(w http.ResponseWriter, r *http.Request) {
	comments, err := h.posts.LastComments(r.Context())
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, comments)
}

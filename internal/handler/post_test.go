package handler_test

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/blog-api/internal/apperror"
	"github.com/sakif/blog-api/internal/handler"
	"github.com/sakif/blog-api/internal/model"
	"github.com/sakif/blog-api/internal/service"
)

// MockPosts records the last call and returns canned results.
type MockPosts struct {
	CapturedUserID  string
	CapturedID      string
	CapturedTag     string
	CapturedInput   service.PostInput
	CapturedUpdate  service.UpdateInput
	CapturedComment [3]string // callerID, bodyUserID, text

	ReturnPost     *model.Post
	ReturnPosts    []model.Post
	ReturnTags     []string
	ReturnComments []model.Comment
	ReturnErr      error
}

func (m *MockPosts) Create(_ context.Context, userID string, in service.PostInput) (*model.Post, error) {
	m.CapturedUserID, m.CapturedInput = userID, in
	return m.ReturnPost, m.ReturnErr
}

func (m *MockPosts) List(context.Context) ([]model.Post, error) { return m.ReturnPosts, m.ReturnErr }

func (m *MockPosts) ListPopular(context.Context) ([]model.Post, error) {
	return m.ReturnPosts, m.ReturnErr
}

func (m *MockPosts) ListByTag(_ context.Context, tag string) ([]model.Post, error) {
	m.CapturedTag = tag
	return m.ReturnPosts, m.ReturnErr
}

func (m *MockPosts) View(_ context.Context, id string) (*model.Post, error) {
	m.CapturedID = id
	return m.ReturnPost, m.ReturnErr
}

func (m *MockPosts) Update(_ context.Context, id string, in service.UpdateInput) error {
	m.CapturedID, m.CapturedUpdate = id, in
	return m.ReturnErr
}

func (m *MockPosts) Delete(_ context.Context, id string) error {
	m.CapturedID = id
	return m.ReturnErr
}

func (m *MockPosts) AddComment(_ context.Context, postID, callerID, bodyUserID, text string) (*model.Post, error) {
	m.CapturedID = postID
	m.CapturedComment = [3]string{callerID, bodyUserID, text}
	return m.ReturnPost, m.ReturnErr
}

func (m *MockPosts) LastTags(context.Context) ([]string, error) { return m.ReturnTags, m.ReturnErr }

func (m *MockPosts) LastComments(context.Context) ([]model.Comment, error) {
	return m.ReturnComments, m.ReturnErr
}

func samplePost() *model.Post {
	return &model.Post{
		ID:         "p1",
		Title:      "Hello",
		Text:       "World",
		Tags:       []string{"go"},
		UserID:     "u1",
		User:       &model.User{ID: "u1", FullName: "Ada", PasswordHash: "$2a$secret"},
		ViewsCount: 3,
		Comments:   []model.Comment{},
	}
}

func TestPostHandler_HandleCreate(t *testing.T) {
	t.Run("creates a post for the caller", func(t *testing.T) {
		m := &MockPosts{ReturnPost: samplePost()}
		h := handler.NewPostHandler(m, testLogger())

		rr := route(http.MethodPost, "/posts", h.HandleCreate, "/posts",
			`{"title":"Hello","text":"World","imageURL":"/uploads/a.png","tags":["go","web"]}`, "u1")

		assert.Equal(t, http.StatusCreated, rr.Code)
		assert.Equal(t, "u1", m.CapturedUserID)
		assert.Equal(t, []string{"go", "web"}, m.CapturedInput.Tags)
		assert.Equal(t, "/uploads/a.png", m.CapturedInput.ImageURL)
		assert.Equal(t, "p1", decode[model.Post](t, rr).ID)
		assert.NotContains(t, rr.Body.String(), "$2a$secret")
	})

	t.Run("comma separated tags", func(t *testing.T) {
		m := &MockPosts{ReturnPost: samplePost()}
		h := handler.NewPostHandler(m, testLogger())

		rr := route(http.MethodPost, "/posts", h.HandleCreate, "/posts",
			`{"title":"Hello","text":"World","tags":"go, web,,"}`, "u1")

		assert.Equal(t, http.StatusCreated, rr.Code)
		assert.Equal(t, []string{"go", "web"}, m.CapturedInput.Tags)
	})

	t.Run("tags of the wrong type", func(t *testing.T) {
		m := &MockPosts{}
		h := handler.NewPostHandler(m, testLogger())

		rr := route(http.MethodPost, "/posts", h.HandleCreate, "/posts",
			`{"title":"Hello","text":"World","tags":{"a":1}}`, "u1")

		assert.Equal(t, http.StatusBadRequest, rr.Code)
		assert.Equal(t, "tags", decode[errorBody](t, rr).Fields[0].Field)
		assert.Empty(t, m.CapturedUserID, "service must not be called")
	})

	t.Run("unauthenticated", func(t *testing.T) {
		h := handler.NewPostHandler(&MockPosts{}, testLogger())

		rr := route(http.MethodPost, "/posts", h.HandleCreate, "/posts", `{"title":"Hello"}`, "")

		assert.Equal(t, http.StatusUnauthorized, rr.Code)
	})
}

func TestPostHandler_Lists(t *testing.T) {
	posts := []model.Post{*samplePost()}

	tests := []struct {
		name    string
		pattern string
		target  string
		handler func(h *handler.PostHandler) http.HandlerFunc
	}{
		{"newest", "/posts", "/posts", func(h *handler.PostHandler) http.HandlerFunc { return h.HandleList }},
		{"popular", "/posts/popular", "/posts/popular", func(h *handler.PostHandler) http.HandlerFunc { return h.HandleListPopular }},
		{"by tag", "/tags/{name}", "/tags/go", func(h *handler.PostHandler) http.HandlerFunc { return h.HandleListByTag }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := &MockPosts{ReturnPosts: posts}
			h := handler.NewPostHandler(m, testLogger())

			rr := route(http.MethodGet, tt.pattern, tt.handler(h), tt.target, "", "")

			assert.Equal(t, http.StatusOK, rr.Code)
			got := decode[[]model.Post](t, rr)
			require.Len(t, got, 1)
			assert.Equal(t, "Ada", got[0].User.FullName)
		})
	}

	t.Run("tag comes from the path", func(t *testing.T) {
		m := &MockPosts{ReturnPosts: []model.Post{}}
		h := handler.NewPostHandler(m, testLogger())

		rr := route(http.MethodGet, "/tags/{name}", h.HandleListByTag, "/tags/golang", "", "")

		assert.Equal(t, http.StatusOK, rr.Code)
		assert.Equal(t, "[]\n", rr.Body.String())
		assert.Equal(t, "golang", m.CapturedTag)
	})

	t.Run("escaped tags are decoded", func(t *testing.T) {
		tests := map[string]string{
			"/tags/x%2Fy":   "x/y",
			"/tags/a%20b":   "a b",
			"/tags/100%25":  "100%",
			"/tags/c%2B%2B": "c++",
		}
		for target, want := range tests {
			m := &MockPosts{ReturnPosts: []model.Post{}}
			h := handler.NewPostHandler(m, testLogger())

			rr := route(http.MethodGet, "/tags/{name}", h.HandleListByTag, target, "", "")

			assert.Equal(t, http.StatusOK, rr.Code, target)
			assert.Equal(t, want, m.CapturedTag, target)
		}
	})
}

func TestPostHandler_HandleGet(t *testing.T) {
	t.Run("wraps the post in postData", func(t *testing.T) {
		m := &MockPosts{ReturnPost: samplePost()}
		h := handler.NewPostHandler(m, testLogger())

		rr := route(http.MethodGet, "/posts/{id}", h.HandleGet, "/posts/p1", "", "")

		assert.Equal(t, http.StatusOK, rr.Code)
		assert.Equal(t, "p1", m.CapturedID)
		body := decode[struct {
			PostData model.Post `json:"postData"`
		}](t, rr)
		assert.Equal(t, 3, body.PostData.ViewsCount)
	})

	t.Run("missing post", func(t *testing.T) {
		m := &MockPosts{ReturnErr: apperror.NotFound("post", "nope")}
		h := handler.NewPostHandler(m, testLogger())

		rr := route(http.MethodGet, "/posts/{id}", h.HandleGet, "/posts/nope", "", "")

		assert.Equal(t, http.StatusNotFound, rr.Code)
		assert.Equal(t, "not_found", decode[errorBody](t, rr).Error)
	})
}

func TestPostHandler_HandleUpdate(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		m := &MockPosts{}
		h := handler.NewPostHandler(m, testLogger())

		rr := route(http.MethodPatch, "/posts/{id}", h.HandleUpdate, "/posts/p1",
			`{"title":"New","text":"Body","tags":["a"],"userId":"u2"}`, "u1")

		assert.Equal(t, http.StatusOK, rr.Code)
		assert.JSONEq(t, `{"success":true}`, rr.Body.String())
		assert.Equal(t, "p1", m.CapturedID)
		assert.Equal(t, "u2", m.CapturedUpdate.UserID)
		assert.Equal(t, "New", m.CapturedUpdate.Title)
	})

	t.Run("missing post is 404", func(t *testing.T) {
		m := &MockPosts{ReturnErr: apperror.NotFound("post", "p9")}
		h := handler.NewPostHandler(m, testLogger())

		rr := route(http.MethodPatch, "/posts/{id}", h.HandleUpdate, "/posts/p9", `{"title":"New","text":"Body"}`, "u1")

		assert.Equal(t, http.StatusNotFound, rr.Code)
	})
}

func TestPostHandler_HandleDelete(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		m := &MockPosts{}
		h := handler.NewPostHandler(m, testLogger())

		rr := route(http.MethodDelete, "/posts/{id}", h.HandleDelete, "/posts/p1", "", "u1")

		assert.Equal(t, http.StatusOK, rr.Code)
		assert.JSONEq(t, `{"success":true}`, rr.Body.String())
		assert.Equal(t, "p1", m.CapturedID)
	})

	t.Run("missing post is 404", func(t *testing.T) {
		m := &MockPosts{ReturnErr: apperror.NotFound("post", "p9")}
		h := handler.NewPostHandler(m, testLogger())

		rr := route(http.MethodDelete, "/posts/{id}", h.HandleDelete, "/posts/p9", "", "u1")

		assert.Equal(t, http.StatusNotFound, rr.Code)
	})
}

func TestPostHandler_HandleComment(t *testing.T) {
	t.Run("passes caller, body user and text", func(t *testing.T) {
		post := samplePost()
		post.Comments = []model.Comment{{UserID: "u1", FullName: "Ada", Text: "nice"}}
		m := &MockPosts{ReturnPost: post}
		h := handler.NewPostHandler(m, testLogger())

		rr := route(http.MethodPatch, "/posts/{id}/comment", h.HandleComment, "/posts/p1/comment",
			`{"userId":"u1","comment":"nice"}`, "u1")

		assert.Equal(t, http.StatusOK, rr.Code)
		assert.Equal(t, [3]string{"u1", "u1", "nice"}, m.CapturedComment)
		body := decode[struct {
			PostData model.Post `json:"postData"`
		}](t, rr)
		require.Len(t, body.PostData.Comments, 1)
		assert.Equal(t, "Ada", body.PostData.Comments[0].FullName)
	})

	t.Run("commenting as someone else is 403", func(t *testing.T) {
		m := &MockPosts{ReturnErr: apperror.Forbidden("cannot comment on behalf of another user")}
		h := handler.NewPostHandler(m, testLogger())

		rr := route(http.MethodPatch, "/posts/{id}/comment", h.HandleComment, "/posts/p1/comment",
			`{"userId":"u2","comment":"nice"}`, "u1")

		assert.Equal(t, http.StatusForbidden, rr.Code)
	})

	t.Run("unauthenticated", func(t *testing.T) {
		h := handler.NewPostHandler(&MockPosts{}, testLogger())

		rr := route(http.MethodPatch, "/posts/{id}/comment", h.HandleComment, "/posts/p1/comment", `{"comment":"x"}`, "")

		assert.Equal(t, http.StatusUnauthorized, rr.Code)
	})
}

func TestPostHandler_Teasers(t *testing.T) {
	m := &MockPosts{
		ReturnTags:     []string{"g", "f", "e"},
		ReturnComments: []model.Comment{{UserID: "u1", FullName: "Ada", Text: "hi"}},
	}
	h := handler.NewPostHandler(m, testLogger())

	rr := route(http.MethodGet, "/tags", h.HandleLastTags, "/tags", "", "")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `["g","f","e"]`, rr.Body.String())

	rr = route(http.MethodGet, "/comments", h.HandleLastComments, "/comments", "", "")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `[{"userId":"u1","fullName":"Ada","text":"hi"}]`, rr.Body.String())
}

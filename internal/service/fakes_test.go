package service

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/sakif/blog-api/internal/apperror"
	"github.com/sakif/blog-api/internal/model"
	"github.com/sakif/blog-api/internal/repository"
)

// =========================================================================
// FAKES AND HELPERS
// =========================================================================

// fakeStore is an in-memory repository.Store. Using a fake (not a mock
// framework) keeps the tests easy to read: the behaviour is right here.
type fakeStore struct {
	mu      sync.Mutex
	users   map[string]*model.User
	posts   []*model.Post // insertion order
	uploads []*model.Upload
	nextID  int

	// set to a non-nil error to simulate a database failure
	createUserErr error
	listErr       error
}

var _ repository.Store = (*fakeStore)(nil)

func newFakeStore() *fakeStore {
	return &fakeStore{users: make(map[string]*model.User)}
}

func (f *fakeStore) id(prefix string) string {
	f.nextID++
	return fmt.Sprintf("%s-%d", prefix, f.nextID)
}

func (f *fakeStore) Close() error { return nil }

func (f *fakeStore) CreateUser(_ context.Context, u *model.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createUserErr != nil {
		return f.createUserErr
	}
	for _, existing := range f.users {
		if existing.Email == u.Email {
			return apperror.Conflict("user", u.Email)
		}
	}
	u.ID = f.id("user")
	u.CreatedAt = time.Now()
	u.UpdatedAt = u.CreatedAt
	copied := *u
	f.users[u.ID] = &copied
	return nil
}

func (f *fakeStore) GetUserByEmail(_ context.Context, email string) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if u.Email == email {
			copied := *u
			return &copied, nil
		}
	}
	return nil, apperror.NotFound("user", email)
}

func (f *fakeStore) GetUserByID(_ context.Context, id string) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return nil, apperror.NotFound("user", id)
	}
	copied := *u
	return &copied, nil
}

// rename simulates a profile change, for the comment snapshot test.
func (f *fakeStore) rename(id, fullName string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.users[id].FullName = fullName
}

func (f *fakeStore) CreatePost(_ context.Context, p *model.Post) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	p.ID = f.id("post")
	p.ViewsCount = 0
	p.Comments = []model.Comment{}
	p.CreatedAt = time.Now()
	copied := *p
	f.posts = append(f.posts, &copied)
	return nil
}

// snapshot copies p and populates its owner. Callers hold f.mu.
func (f *fakeStore) snapshot(p *model.Post) model.Post {
	out := *p
	out.Tags = slices.Clone(p.Tags)
	out.Comments = slices.Clone(p.Comments)
	if u, ok := f.users[p.UserID]; ok {
		owner := *u
		owner.PasswordHash = ""
		out.User = &owner
	}
	return out
}

func (f *fakeStore) find(id string) (*model.Post, error) {
	for _, p := range f.posts {
		if p.ID == id {
			return p, nil
		}
	}
	return nil, apperror.NotFound("post", id)
}

func (f *fakeStore) ListPosts(_ context.Context, opts repository.PostListOptions) ([]model.Post, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}

	out := make([]model.Post, 0, len(f.posts))
	for i := len(f.posts) - 1; i >= 0; i-- {
		p := f.posts[i]
		if opts.Tag != "" && !slices.Contains(p.Tags, opts.Tag) {
			continue
		}
		out = append(out, f.snapshot(p))
	}
	if opts.Sort == repository.SortPopular {
		slices.SortStableFunc(out, func(a, b model.Post) int { return b.ViewsCount - a.ViewsCount })
	}
	if opts.Limit > 0 && len(out) > opts.Limit {
		out = out[:opts.Limit]
	}
	return out, nil
}

func (f *fakeStore) GetPost(_ context.Context, id string) (*model.Post, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, err := f.find(id)
	if err != nil {
		return nil, err
	}
	out := f.snapshot(p)
	return &out, nil
}

func (f *fakeStore) IncrementViews(_ context.Context, id string) (*model.Post, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, err := f.find(id)
	if err != nil {
		return nil, err
	}
	p.ViewsCount++
	out := f.snapshot(p)
	return &out, nil
}

func (f *fakeStore) UpdatePost(_ context.Context, id string, upd repository.PostUpdate) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, err := f.find(id)
	if err != nil {
		return err
	}
	p.Title, p.Text, p.ImageURL, p.Tags, p.UserID = upd.Title, upd.Text, upd.ImageURL, upd.Tags, upd.UserID
	return nil
}

func (f *fakeStore) AppendComment(_ context.Context, id string, c model.Comment) (*model.Post, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, err := f.find(id)
	if err != nil {
		return nil, err
	}
	p.Comments = append(p.Comments, c)
	out := f.snapshot(p)
	return &out, nil
}

func (f *fakeStore) DeletePost(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, p := range f.posts {
		if p.ID == id {
			f.posts = slices.Delete(f.posts, i, i+1)
			return nil
		}
	}
	return apperror.NotFound("post", id)
}

func (f *fakeStore) CreateUpload(_ context.Context, u *model.Upload) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	u.ID = f.id("upload")
	u.CreatedAt = time.Now()
	f.uploads = append(f.uploads, u)
	return nil
}

// quietLogger discards everything below error level.
func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

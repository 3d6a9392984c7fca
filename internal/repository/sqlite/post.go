package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/xid"

	"github.com/sakif/blog-api/internal/apperror"
	"github.com/sakif/blog-api/internal/model"
	"github.com/sakif/blog-api/internal/repository"
)

// postSelect reads a post together with its owner. The LEFT JOIN leaves the
// u.* columns NULL when the owner no longer exists.
const postSelect = `
	SELECT p.id, p.title, p.text, p.image_url, p.tags, p.user_id, p.views_count,
	       p.comments, p.created_at, p.updated_at,
	       u.id, u.email, u.full_name, u.avatar_url, u.created_at, u.updated_at
	FROM posts p
	LEFT JOIN users u ON u.id = p.user_id`

// CreatePost inserts a post owned by post.UserID.
//
// The view count always starts at 0 and the comment list empty, whatever the
// caller put in those fields.
func (db *DB) CreatePost(ctx context.Context, post *model.Post) error {
	now := time.Now().UTC()
	post.ID = xid.New().String()
	post.ViewsCount = 0
	post.Comments = []model.Comment{}
	post.CreatedAt = now
	post.UpdatedAt = now
	if post.Tags == nil {
		post.Tags = []string{}
	}

	tags, err := json.Marshal(post.Tags)
	if err != nil {
		return fmt.Errorf("sqlite: encoding tags: %w", err)
	}

	_, err = db.conn.ExecContext(ctx,
		`INSERT INTO posts (id, title, text, image_url, tags, user_id, views_count, comments, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, 0, '[]', ?, ?)`,
		post.ID,
		post.Title,
		post.Text,
		post.ImageURL,
		string(tags),
		post.UserID,
		post.CreatedAt,
		post.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("sqlite: creating post: %w", err)
	}

	return nil
}

// ListPosts returns posts with owners populated.
//
// "Newest" is insertion order: rowid grows with every INSERT, so ordering by it
// never ties, even for posts created within the same clock tick.
func (db *DB) ListPosts(ctx context.Context, opts repository.PostListOptions) ([]model.Post, error) {
	var (
		q    strings.Builder
		args []any
	)
	q.WriteString(postSelect)

	if opts.Tag != "" {
		q.WriteString(` WHERE EXISTS (SELECT 1 FROM json_each(p.tags) WHERE json_each.value = ?)`)
		args = append(args, opts.Tag)
	}

	switch opts.Sort {
	case repository.SortPopular:
		q.WriteString(` ORDER BY p.views_count DESC, p.rowid DESC`)
	default:
		q.WriteString(` ORDER BY p.rowid DESC`)
	}

	if opts.Limit > 0 {
		q.WriteString(` LIMIT ?`)
		args = append(args, opts.Limit)
	}

	rows, err := db.conn.QueryContext(ctx, q.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing posts: %w", err)
	}
	defer rows.Close()

	posts := make([]model.Post, 0)
	for rows.Next() {
		p, err := scanPost(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scanning post row: %w", err)
		}
		posts = append(posts, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating posts: %w", err)
	}

	return posts, nil
}

// GetPost returns one post with its owner populated.
func (db *DB) GetPost(ctx context.Context, id string) (*model.Post, error) {
	return getPost(ctx, db.conn, id)
}

// IncrementViews adds one view and reads the post back in the same transaction,
// so the returned count is the one produced by this call's increment and a
// concurrent delete cannot slip in between.
func (db *DB) IncrementViews(ctx context.Context, id string) (*model.Post, error) {
	var post *model.Post
	err := db.inTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`UPDATE posts SET views_count = views_count + 1 WHERE id = ?`, id)
		if err != nil {
			return fmt.Errorf("sqlite: incrementing views of %s: %w", id, err)
		}
		if err := expectOneRow(res, id); err != nil {
			return err
		}

		post, err = getPost(ctx, tx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return post, nil
}

// UpdatePost overwrites the editable fields. views_count, comments and
// created_at are not in the SET list and survive unchanged.
func (db *DB) UpdatePost(ctx context.Context, id string, upd repository.PostUpdate) error {
	if upd.Tags == nil {
		upd.Tags = []string{}
	}
	tags, err := json.Marshal(upd.Tags)
	if err != nil {
		return fmt.Errorf("sqlite: encoding tags: %w", err)
	}

	res, err := db.conn.ExecContext(ctx,
		`UPDATE posts
		 SET title = ?, text = ?, image_url = ?, tags = ?, user_id = ?, updated_at = ?
		 WHERE id = ?`,
		upd.Title,
		upd.Text,
		upd.ImageURL,
		string(tags),
		upd.UserID,
		time.Now().UTC(),
		id,
	)
	if err != nil {
		return fmt.Errorf("sqlite: updating post %s: %w", id, err)
	}

	return expectOneRow(res, id)
}

// AppendComment pushes c onto the end of the post's comments array with
// json_insert's "$[#]" (one past the last element) and returns the result.
func (db *DB) AppendComment(ctx context.Context, id string, c model.Comment) (*model.Post, error) {
	encoded, err := json.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("sqlite: encoding comment: %w", err)
	}

	var post *model.Post
	err = db.inTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`UPDATE posts
			 SET comments = json_insert(comments, '$[#]', json(?)), updated_at = ?
			 WHERE id = ?`,
			string(encoded),
			time.Now().UTC(),
			id,
		)
		if err != nil {
			return fmt.Errorf("sqlite: appending comment to %s: %w", id, err)
		}
		if err := expectOneRow(res, id); err != nil {
			return err
		}

		post, err = getPost(ctx, tx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return post, nil
}

// DeletePost removes a post (and with it, its comments).
func (db *DB) DeletePost(ctx context.Context, id string) error {
	res, err := db.conn.ExecContext(ctx, `DELETE FROM posts WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("sqlite: deleting post %s: %w", id, err)
	}
	return expectOneRow(res, id)
}

func getPost(ctx context.Context, q querier, id string) (*model.Post, error) {
	p, err := scanPost(q.QueryRowContext(ctx, postSelect+` WHERE p.id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("post", id)
		}
		return nil, fmt.Errorf("sqlite: getting post %s: %w", id, err)
	}
	return p, nil
}

// scanner is implemented by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanPost(s scanner) (*model.Post, error) {
	var (
		p                  model.Post
		tags, comments     string
		uID, uEmail, uName sql.NullString
		uAvatar            sql.NullString
		uCreated, uUpdated sql.NullTime
	)

	err := s.Scan(
		&p.ID, &p.Title, &p.Text, &p.ImageURL, &tags, &p.UserID, &p.ViewsCount,
		&comments, &p.CreatedAt, &p.UpdatedAt,
		&uID, &uEmail, &uName, &uAvatar, &uCreated, &uUpdated,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(tags), &p.Tags); err != nil {
		return nil, fmt.Errorf("decoding tags of %s: %w", p.ID, err)
	}
	if err := json.Unmarshal([]byte(comments), &p.Comments); err != nil {
		return nil, fmt.Errorf("decoding comments of %s: %w", p.ID, err)
	}
	if p.Tags == nil {
		p.Tags = []string{}
	}
	if p.Comments == nil {
		p.Comments = []model.Comment{}
	}

	if uID.Valid {
		p.User = &model.User{
			ID:        uID.String,
			Email:     uEmail.String,
			FullName:  uName.String,
			AvatarURL: uAvatar.String,
			CreatedAt: uCreated.Time,
			UpdatedAt: uUpdated.Time,
		}
	}

	return &p, nil
}

// expectOneRow turns "the WHERE clause matched nothing" into NotFound.
func expectOneRow(res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if n == 0 {
		return apperror.NotFound("post", id)
	}
	return nil
}

// inTx runs fn in a transaction, committing on nil and rolling back otherwise.
// fn must use tx for every query: the pool has a single connection.
func (db *DB) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after Commit

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: committing transaction: %w", err)
	}
	return nil
}

package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/xid"

	"github.com/sakif/blog-api/internal/apperror"
	"github.com/sakif/blog-api/internal/model"
)

// CreateUpload records the metadata of a stored file.
func (db *DB) CreateUpload(ctx context.Context, upload *model.Upload) error {
	upload.ID = xid.New().String()
	upload.CreatedAt = time.Now().UTC()

	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO uploads (id, key, original_name, content_type, size, user_id, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		upload.ID,
		upload.Key,
		upload.OriginalName,
		upload.ContentType,
		upload.Size,
		upload.UserID,
		upload.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperror.Conflict("upload", upload.Key)
		}
		return fmt.Errorf("sqlite: recording upload %s: %w", upload.Key, err)
	}

	return nil
}

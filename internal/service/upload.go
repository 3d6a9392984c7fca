package service

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/rs/xid"

	"github.com/sakif/blog-api/internal/apperror"
	"github.com/sakif/blog-api/internal/model"
	"github.com/sakif/blog-api/internal/repository"
	"github.com/sakif/blog-api/internal/storage"
)

// UploadURLPrefix is where stored files are served.
const UploadURLPrefix = "/uploads/"

// imageTypes maps the accepted content types to the extension of the stored file.
var imageTypes = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/gif":  ".gif",
	"image/webp": ".webp",
}

func errNotAnImage() error {
	return apperror.ValidationFailed("image", "only JPEG, PNG, GIF and WebP images are accepted")
}

// mediaType lowercases a Content-Type value and drops its parameters.
func mediaType(v string) string {
	v = strings.ToLower(strings.TrimSpace(v))
	if i := strings.IndexByte(v, ';'); i >= 0 {
		v = strings.TrimSpace(v[:i])
	}
	return v
}

// UploadService stores image files for posts and avatars.
type UploadService struct {
	files    storage.FileStore
	uploads  repository.UploadRepository
	maxBytes int64
	logger   *slog.Logger
}

func NewUploadService(files storage.FileStore, uploads repository.UploadRepository, maxBytes int64, logger *slog.Logger) *UploadService {
	return &UploadService{
		files:    files,
		uploads:  uploads,
		maxBytes: maxBytes,
		logger:   logger,
	}
}

// UploadInput describes one received file.
type UploadInput struct {
	UserID       string
	OriginalName string
	ContentType  string
	Body         io.Reader
}

// sniffLen is how many leading bytes http.DetectContentType looks at.
const sniffLen = 512

// Save stores the file under a generated key and records its metadata.
//
// The stored type and extension come from the file's leading bytes. A
// declared Content-Type other than an image type (or a generic
// application/octet-stream) is rejected before reading. The
// client's filename is kept only as metadata: two users uploading
// "photo.jpg" get two different keys. Returns the stored upload and its URL.
func (s *UploadService) Save(ctx context.Context, in UploadInput) (*model.Upload, string, error) {
	if declared := mediaType(in.ContentType); declared != "" && declared != "application/octet-stream" {
		if _, ok := imageTypes[declared]; !ok {
			return nil, "", errNotAnImage()
		}
	}

	body := bufio.NewReaderSize(in.Body, sniffLen)
	head, err := body.Peek(sniffLen)
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, "", fmt.Errorf("service/upload: reading file: %w", err)
	}
	if len(head) == 0 {
		return nil, "", apperror.ValidationFailed("image", "image is empty")
	}

	contentType := mediaType(http.DetectContentType(head))
	ext, ok := imageTypes[contentType]
	if !ok {
		s.logger.Warn("upload content is not an image",
			slog.String("declared", mediaType(in.ContentType)),
			slog.String("detected", contentType),
			slog.String("userID", in.UserID),
		)
		return nil, "", errNotAnImage()
	}

	key := xid.New().String() + ext

	// One byte past the limit is enough to tell "too large" from "exactly max".
	n, err := s.files.Save(ctx, key, io.LimitReader(body, s.maxBytes+1))
	if err != nil {
		return nil, "", fmt.Errorf("service/upload: saving file: %w", err)
	}
	if n > s.maxBytes {
		s.cleanup(ctx, key)
		return nil, "", apperror.ValidationFailed("image",
			fmt.Sprintf("image exceeds the %d byte limit", s.maxBytes))
	}

	name := filepath.Base(in.OriginalName)
	if name == "." || name == string(filepath.Separator) {
		name = ""
	}

	upload := &model.Upload{
		Key:          key,
		OriginalName: name,
		ContentType:  contentType,
		Size:         n,
		UserID:       in.UserID,
	}
	if err := s.uploads.CreateUpload(ctx, upload); err != nil {
		s.cleanup(ctx, key)
		return nil, "", fmt.Errorf("service/upload: recording upload: %w", err)
	}

	s.logger.Info("file uploaded",
		slog.String("key", key),
		slog.String("userID", in.UserID),
		slog.Int64("size", n),
	)
	return upload, UploadURLPrefix + key, nil
}

// cleanup removes the bytes of an upload that was rejected after storing.
func (s *UploadService) cleanup(ctx context.Context, key string) {
	if err := s.files.Delete(ctx, key); err != nil && !errors.Is(err, context.Canceled) {
		s.logger.Warn("failed to remove rejected upload",
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
	}
}

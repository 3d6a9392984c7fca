package handler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/sakif/blog-api/internal/apperror"
	"github.com/sakif/blog-api/internal/auth"
	"github.com/sakif/blog-api/internal/model"
	"github.com/sakif/blog-api/internal/service"
)

// UploadField is the multipart form field carrying the file.
const UploadField = "image"

// multipartOverhead is room for boundaries and part headers on top of the
// file itself.
const multipartOverhead = 64 << 10

// Uploader is what UploadHandler needs from the upload service.
type Uploader interface {
	Save(ctx context.Context, in service.UploadInput) (*model.Upload, string, error)
}

// UploadHandler accepts image uploads.
type UploadHandler struct {
	uploads  Uploader
	maxBytes int64
	logger   *slog.Logger
}

func NewUploadHandler(uploads Uploader, maxBytes int64, logger *slog.Logger) *UploadHandler {
	return &UploadHandler{uploads: uploads, maxBytes: maxBytes, logger: logger}
}

type uploadResponse struct {
	URL string `json:"url"`
}

// HandleUpload stores the "image" part of a multipart form.
//
// HTTP: POST /upload
// Auth: Required
// RESPONSE: {"url": "/uploads/<generated key>"}
//
// STREAMING:
// The body is read part by part with MultipartReader, so the file goes
// straight to storage instead of being buffered by ParseMultipartForm.
func (h *UploadHandler) HandleUpload(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		writeError(w, h.logger, apperror.Unauthorized("authentication required"))
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxBytes+multipartOverhead)

	mr, err := r.MultipartReader()
	if err != nil {
		writeError(w, h.logger, apperror.ValidationFailed(UploadField, "request must be multipart/form-data"))
		return
	}

	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			writeError(w, h.logger, apperror.ValidationFailed(UploadField, "image file is required"))
			return
		}
		if err != nil {
			writeError(w, h.logger, h.readError(err))
			return
		}
		if part.FormName() != UploadField || part.FileName() == "" {
			part.Close()
			continue
		}

		upload, url, err := h.uploads.Save(r.Context(), service.UploadInput{
			UserID:       userID,
			OriginalName: part.FileName(),
			ContentType:  part.Header.Get("Content-Type"),
			Body:         part,
		})
		part.Close()
		if err != nil {
			writeError(w, h.logger, h.readError(err))
			return
		}

		h.logger.Debug("upload stored", slog.String("key", upload.Key))
		writeJSON(w, http.StatusOK, uploadResponse{URL: url})
		return
	}
}

// readError turns a body that blew through MaxBytesReader into a 400.
func (h *UploadHandler) readError(err error) error {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return apperror.ValidationFailed(UploadField, "image is too large")
	}
	var appErr *apperror.AppError
	if errors.As(err, &appErr) {
		return err
	}
	if errors.Is(err, io.ErrUnexpectedEOF) {
		return apperror.ValidationFailed(UploadField, "malformed multipart body")
	}
	return err
}

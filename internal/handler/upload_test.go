package handler_test

import (
	"bytes"
	"context"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/blog-api/internal/auth"
	"github.com/sakif/blog-api/internal/handler"
	"github.com/sakif/blog-api/internal/model"
	"github.com/sakif/blog-api/internal/service"
	"github.com/sakif/blog-api/internal/storage"
)

// memUploads keeps upload metadata in a slice.
type memUploads struct {
	got []*model.Upload
}

func (m *memUploads) CreateUpload(_ context.Context, u *model.Upload) error {
	u.ID = "up1"
	m.got = append(m.got, u)
	return nil
}

const testUploadLimit = 1 << 10

const pngMagic = "\x89PNG\r\n\x1a\n"

func newUploadHandler(t *testing.T) (*handler.UploadHandler, *memUploads, string) {
	t.Helper()
	dir := t.TempDir()
	disk, err := storage.NewDisk(dir)
	require.NoError(t, err)

	meta := &memUploads{}
	svc := service.NewUploadService(disk, meta, testUploadLimit, testLogger())
	return handler.NewUploadHandler(svc, testUploadLimit, testLogger()), meta, dir
}

// multipartBody builds a form with one file part.
func multipartBody(t *testing.T, field, filename, contentType string, content []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	require.NoError(t, mw.WriteField("caption", "ignored"))

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="`+field+`"; filename="`+filename+`"`)
	h.Set("Content-Type", contentType)
	part, err := mw.CreatePart(h)
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)

	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func doUpload(h *handler.UploadHandler, body *bytes.Buffer, contentType, userID string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/upload", body)
	req.Header.Set("Content-Type", contentType)
	if userID != "" {
		req = req.WithContext(auth.WithUserID(req.Context(), userID))
	}
	rr := httptest.NewRecorder()
	h.HandleUpload(rr, req)
	return rr
}

func TestUploadHandler_HandleUpload(t *testing.T) {
	t.Run("stores the image under a generated key", func(t *testing.T) {
		h, meta, dir := newUploadHandler(t)
		content := []byte(pngMagic + "pixels")
		body, ct := multipartBody(t, "image", "cat.png", "image/png", content)

		rr := doUpload(h, body, ct, "u1")

		require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
		url := decode[map[string]string](t, rr)["url"]
		assert.True(t, strings.HasPrefix(url, "/uploads/"), url)
		assert.NotContains(t, url, "cat")

		stored, err := os.ReadFile(filepath.Join(dir, strings.TrimPrefix(url, "/uploads/")))
		require.NoError(t, err)
		assert.Equal(t, content, stored)

		require.Len(t, meta.got, 1)
		assert.Equal(t, "cat.png", meta.got[0].OriginalName)
		assert.Equal(t, "u1", meta.got[0].UserID)
	})

	t.Run("wrong field name", func(t *testing.T) {
		h, meta, _ := newUploadHandler(t)
		body, ct := multipartBody(t, "file", "cat.png", "image/png", []byte("png"))

		rr := doUpload(h, body, ct, "u1")

		assert.Equal(t, http.StatusBadRequest, rr.Code)
		assert.Empty(t, meta.got)
	})

	t.Run("not an image", func(t *testing.T) {
		h, _, _ := newUploadHandler(t)
		body, ct := multipartBody(t, "image", "notes.txt", "text/plain", []byte("hello"))

		rr := doUpload(h, body, ct, "u1")

		assert.Equal(t, http.StatusBadRequest, rr.Code)
		assert.Equal(t, "image", decode[errorBody](t, rr).Fields[0].Field)
	})

	t.Run("html labelled as png", func(t *testing.T) {
		h, meta, dir := newUploadHandler(t)
		body, ct := multipartBody(t, "image", "evil.png", "image/png", []byte("<html><script>alert(1)</script></html>"))

		rr := doUpload(h, body, ct, "u1")

		assert.Equal(t, http.StatusBadRequest, rr.Code)
		assert.Equal(t, "image", decode[errorBody](t, rr).Fields[0].Field)
		assert.Empty(t, meta.got)
		entries, err := os.ReadDir(dir)
		require.NoError(t, err)
		assert.Empty(t, entries)
	})

	t.Run("too large", func(t *testing.T) {
		h, meta, dir := newUploadHandler(t)
		body, ct := multipartBody(t, "image", "big.png", "image/png", append([]byte(pngMagic), bytes.Repeat([]byte("x"), testUploadLimit)...))

		rr := doUpload(h, body, ct, "u1")

		assert.Equal(t, http.StatusBadRequest, rr.Code)
		assert.Empty(t, meta.got)
		entries, err := os.ReadDir(dir)
		require.NoError(t, err)
		assert.Empty(t, entries)
	})

	t.Run("not multipart", func(t *testing.T) {
		h, _, _ := newUploadHandler(t)

		rr := doUpload(h, bytes.NewBufferString(`{"image":"x"}`), "application/json", "u1")

		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})

	t.Run("unauthenticated", func(t *testing.T) {
		h, _, _ := newUploadHandler(t)
		body, ct := multipartBody(t, "image", "cat.png", "image/png", []byte("png"))

		rr := doUpload(h, body, ct, "")

		assert.Equal(t, http.StatusUnauthorized, rr.Code)
	})
}

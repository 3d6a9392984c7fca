package service

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sakif/blog-api/internal/apperror"
	"github.com/sakif/blog-api/internal/storage"
)

const testMaxUpload = 64

// Leading bytes http.DetectContentType recognises for each accepted format.
const (
	pngMagic  = "\x89PNG\r\n\x1a\n"
	jpegMagic = "\xff\xd8\xff\xe0"
	gifMagic  = "GIF89a"
	webpMagic = "RIFF\x00\x00\x00\x00WEBPVP8 "
)

func newTestUploadService(t *testing.T, store *fakeStore) (*UploadService, string) {
	t.Helper()
	dir := t.TempDir()
	disk, err := storage.NewDisk(dir)
	if err != nil {
		t.Fatalf("NewDisk: %v", err)
	}
	return NewUploadService(disk, store, testMaxUpload, quietLogger()), dir
}

// listFiles returns the visible files in dir.
func listFiles(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

// =========================================================================
// Save TESTS
// =========================================================================

func TestUploadSave(t *testing.T) {
	store := newFakeStore()
	svc, dir := newTestUploadService(t, store)
	body := []byte(pngMagic + "fake image bytes")

	upload, url, err := svc.Save(context.Background(), UploadInput{
		UserID:       "user-1",
		OriginalName: "../../holiday.png",
		ContentType:  "image/png",
		Body:         bytes.NewReader(body),
	})
	if err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	if !strings.HasPrefix(url, UploadURLPrefix) || !strings.HasSuffix(url, ".png") {
		t.Errorf("url = %q, want %s<key>.png", url, UploadURLPrefix)
	}
	if url != UploadURLPrefix+upload.Key {
		t.Errorf("url = %q does not point at key %q", url, upload.Key)
	}
	if upload.OriginalName != "holiday.png" {
		t.Errorf("OriginalName = %q, want the base name only", upload.OriginalName)
	}
	if upload.Size != int64(len(body)) {
		t.Errorf("Size = %d, want %d", upload.Size, len(body))
	}
	if upload.UserID != "user-1" {
		t.Errorf("UserID = %q", upload.UserID)
	}

	stored, err := os.ReadFile(filepath.Join(dir, upload.Key))
	if err != nil {
		t.Fatalf("reading stored file: %v", err)
	}
	if !bytes.Equal(stored, body) {
		t.Error("stored bytes differ from the upload")
	}
	if len(store.uploads) != 1 {
		t.Errorf("recorded %d uploads, want 1", len(store.uploads))
	}
}

func TestUploadSave_SameNameGetsDistinctKeys(t *testing.T) {
	svc, _ := newTestUploadService(t, newFakeStore())

	in := func() UploadInput {
		return UploadInput{OriginalName: "photo.jpg", ContentType: "image/jpeg", Body: strings.NewReader(jpegMagic + "jpeg")}
	}
	first, _, err := svc.Save(context.Background(), in())
	if err != nil {
		t.Fatal(err)
	}
	second, _, err := svc.Save(context.Background(), in())
	if err != nil {
		t.Fatal(err)
	}
	if first.Key == second.Key {
		t.Errorf("both uploads stored under %q", first.Key)
	}
}

func TestUploadSave_ContentTypeParameters(t *testing.T) {
	svc, _ := newTestUploadService(t, newFakeStore())

	upload, _, err := svc.Save(context.Background(), UploadInput{
		ContentType: "Image/WebP; charset=binary",
		Body:        strings.NewReader(webpMagic + "webp"),
	})
	if err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if upload.ContentType != "image/webp" || !strings.HasSuffix(upload.Key, ".webp") {
		t.Errorf("upload = %+v, want a normalised webp", upload)
	}
}

func TestUploadSave_TypeComesFromContent(t *testing.T) {
	tests := []struct {
		name        string
		contentType string
		body        string
		want        string
		ext         string
	}{
		{"declared png holding a gif", "image/png", gifMagic + "pixels", "image/gif", ".gif"},
		{"no declared type", "", jpegMagic + "pixels", "image/jpeg", ".jpg"},
		{"generic octet stream", "application/octet-stream", pngMagic + "pixels", "image/png", ".png"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, _ := newTestUploadService(t, newFakeStore())

			upload, url, err := svc.Save(context.Background(), UploadInput{
				ContentType: tt.contentType,
				Body:        strings.NewReader(tt.body),
			})
			if err != nil {
				t.Fatalf("Save() error = %v", err)
			}
			if upload.ContentType != tt.want {
				t.Errorf("ContentType = %q, want %q", upload.ContentType, tt.want)
			}
			if !strings.HasSuffix(url, tt.ext) {
				t.Errorf("url = %q, want %s extension", url, tt.ext)
			}
		})
	}
}

func TestUploadSave_Rejected(t *testing.T) {
	tests := []struct {
		name        string
		contentType string
		body        string
	}{
		{"not an image", "text/plain", "hello"},
		{"missing type", "", "hello"},
		{"html labelled as png", "image/png", "<html><script>alert(1)</script></html>"},
		{"text labelled as jpeg", "image/jpeg", "just some words"},
		{"empty file", "image/png", ""},
		{"one byte too large", "image/png", pngMagic + strings.Repeat("x", testMaxUpload+1-len(pngMagic))},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newFakeStore()
			svc, dir := newTestUploadService(t, store)

			_, _, err := svc.Save(context.Background(), UploadInput{
				ContentType: tt.contentType,
				Body:        strings.NewReader(tt.body),
			})

			var appErr *apperror.AppError
			if !errors.As(err, &appErr) || !errors.Is(err, apperror.ErrValidation) {
				t.Fatalf("Save() error = %v, want validation error", err)
			}
			if appErr.Field != "image" {
				t.Errorf("Field = %q, want image", appErr.Field)
			}
			if files := listFiles(t, dir); len(files) != 0 {
				t.Errorf("rejected upload left files behind: %v", files)
			}
			if len(store.uploads) != 0 {
				t.Error("rejected upload must not be recorded")
			}
		})
	}
}

func TestUploadSave_ExactlyAtLimit(t *testing.T) {
	svc, _ := newTestUploadService(t, newFakeStore())

	upload, _, err := svc.Save(context.Background(), UploadInput{
		ContentType: "image/gif",
		Body:        strings.NewReader(gifMagic + strings.Repeat("x", testMaxUpload-len(gifMagic))),
	})
	if err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if upload.Size != testMaxUpload {
		t.Errorf("Size = %d, want %d", upload.Size, testMaxUpload)
	}
}

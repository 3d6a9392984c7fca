// Package storage keeps the bytes of uploaded files. Metadata lives in the
// repository; this package only knows keys and contents.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// ErrInvalidKey is returned for keys that would escape the storage directory.
var ErrInvalidKey = errors.New("storage: invalid key")

// FileStore abstracts raw file byte storage.
type FileStore interface {
	// Save writes r under key and returns the number of bytes written.
	Save(ctx context.Context, key string, r io.Reader) (int64, error)
	Delete(ctx context.Context, key string) error
}

var _ FileStore = (*Disk)(nil)

// Disk stores each file as <dir>/<key>. The same directory is served at
// /uploads/ by the HTTP server.
type Disk struct {
	dir string
}

// NewDisk creates dir if needed.
func NewDisk(dir string) (*Disk, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("storage: creating %s: %w", dir, err)
	}
	return &Disk{dir: dir}, nil
}

// Dir is the root directory of the store.
func (d *Disk) Dir() string {
	return d.dir
}

// Save streams r into a temporary file and renames it into place, so a
// half-written upload is never visible under its final name.
func (d *Disk) Save(ctx context.Context, key string, r io.Reader) (int64, error) {
	path, err := d.path(key)
	if err != nil {
		return 0, err
	}

	tmp, err := os.CreateTemp(d.dir, ".upload-*")
	if err != nil {
		return 0, fmt.Errorf("storage: creating temp file: %w", err)
	}
	defer os.Remove(tmp.Name()) // no-op once renamed

	n, err := io.Copy(tmp, &ctxReader{ctx: ctx, r: r})
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return 0, fmt.Errorf("storage: writing %s: %w", key, err)
	}

	if err := os.Rename(tmp.Name(), path); err != nil {
		return 0, fmt.Errorf("storage: storing %s: %w", key, err)
	}
	return n, nil
}

// Delete removes key. Deleting a missing key is not an error.
func (d *Disk) Delete(_ context.Context, key string) error {
	path, err := d.path(key)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("storage: deleting %s: %w", key, err)
	}
	return nil
}

// path maps a key to a file directly inside dir. Keys are flat names.
func (d *Disk) path(key string) (string, error) {
	if key == "" || key != filepath.Base(key) || strings.HasPrefix(key, ".") {
		return "", fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return filepath.Join(d.dir, key), nil
}

// ctxReader stops a copy once ctx is cancelled, e.g. when the client hangs up
// mid-upload.
type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}

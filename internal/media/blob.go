// Package media holds the external collaborators of the minutes
// pipeline and the chat file path: an addressable blob store, the
// video-to-audio converter and the transcription engine. Each is an
// interface; production wiring uses the local-disk store and HTTP
// clients, tests substitute stubs.
package media

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/oklog/ulid/v2"
)

// BlobStore persists uploaded files and returns an addressable URL.
type BlobStore interface {
	// Put stores the content under a generated name derived from the
	// original filename's extension and returns its public URL.
	Put(ctx context.Context, filename string, content io.Reader) (url string, err error)
}

// DiskStore is a BlobStore writing to a local directory served under a
// base URL.
type DiskStore struct {
	dir     string
	baseURL string
}

// NewDiskStore creates the upload directory if needed.
func NewDiskStore(dir, baseURL string) (*DiskStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}
	return &DiskStore{dir: dir, baseURL: strings.TrimSuffix(baseURL, "/")}, nil
}

// Put writes the content to disk under a ULID-derived name.
func (s *DiskStore) Put(ctx context.Context, filename string, content io.Reader) (string, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	name := ulid.Make().String() + ext

	f, err := os.Create(filepath.Join(s.dir, name))
	if err != nil {
		return "", err
	}
	defer f.Close()

	if _, err := io.Copy(f, content); err != nil {
		os.Remove(f.Name())
		return "", err
	}

	return fmt.Sprintf("%s/%s", s.baseURL, name), nil
}

// Dir returns the directory files are written to, for static serving.
func (s *DiskStore) Dir() string { return s.dir }

// Package blob stores voice attachments on disk and hands back retrievable
// URLs. The files themselves are served by the HTTP layer; this package
// only writes them.
package blob

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
)

type IStore interface {
	Put(data []byte) (url string, err error)
}

type Store struct {
	dir     string
	baseURL string
}

func NewStore(dir, baseURL string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create blob dir: %w", err)
	}
	return &Store{dir: dir, baseURL: strings.TrimSuffix(baseURL, "/")}, nil
}

// Put writes the payload under a random name. The extension is sniffed
// from the content, so a client cannot pick the file type it is served
// back as.
func (s *Store) Put(data []byte) (string, error) {
	name := uuid.NewString() + mimetype.Detect(data).Extension()
	if err := os.WriteFile(filepath.Join(s.dir, name), data, 0o644); err != nil {
		return "", fmt.Errorf("write blob: %w", err)
	}
	return s.baseURL + "/" + name, nil
}

// Dir exposes the storage directory for the HTTP file server.
func (s *Store) Dir() string { return s.dir }

// Package session holds the viewer's shared state: the watched document, the
// current rendered snapshot and the registry of connected clients.
package session

import (
	"os"
	"path/filepath"
	"sync"

	mderrors "go-mdview/internal/errors"
)

// Snapshot is one immutable rendering of the document. Versions strictly
// increase over the life of a Coordinator; zero means nothing rendered yet.
type Snapshot struct {
	Version uint64
	HTML    string
}

// Source yields the current document text.
type Source interface {
	Path() string
	Reload() ([]byte, error)
}

// Renderer turns document text into an HTML fragment.
type Renderer interface {
	Render(source []byte) (string, error)
}

// RendererFunc adapts a function to Renderer.
type RendererFunc func(source []byte) (string, error)

func (f RendererFunc) Render(source []byte) (string, error) { return f(source) }

// Document is the file being viewed. Its path is fixed for the session.
type Document struct {
	path string

	mu      sync.Mutex
	content []byte
}

// NewDocument binds a document to path, made absolute.
func NewDocument(path string) (*Document, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, mderrors.WithPath(mderrors.KindConfig, "resolve document", path, err)
	}
	return &Document{path: abs}, nil
}

func (d *Document) Path() string { return d.path }

// Content returns the bytes from the last successful Reload.
func (d *Document) Content() []byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.content
}

// Reload re-reads the file. A missing or locked file is a transient read
// error and leaves the previous content in place.
func (d *Document) Reload() ([]byte, error) {
	data, err := os.ReadFile(d.path)
	if err != nil {
		return nil, mderrors.WithPath(mderrors.KindTransientRead, "read document", d.path, err)
	}

	d.mu.Lock()
	d.content = data
	d.mu.Unlock()
	return data, nil
}

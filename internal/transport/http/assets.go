package httpserver

import (
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"

	"go-mdview/internal/render"

	"github.com/go-chi/chi/v5"
)

const fileCacheControl = "public, max-age=3600"

// resolve maps a slash-separated path below root to a file path. Paths that
// could climb out of root are refused.
func resolve(root, rel string) (string, bool) {
	if rel == "" || strings.HasPrefix(rel, "/") || strings.Contains(rel, "//") || strings.Contains(rel, `\`) {
		return "", false
	}
	for _, part := range strings.Split(rel, "/") {
		if part == ".." {
			return "", false
		}
	}
	return filepath.Join(root, filepath.FromSlash(rel)), true
}

// handleDocument renders a markdown file linked from the watched document.
// Linked documents are rendered on request and are not live.
func (m *PreviewServer) handleDocument(w http.ResponseWriter, r *http.Request) {
	rel := chi.URLParam(r, "*")
	abs, ok := resolve(m.root, rel)
	if !ok {
		http.Error(w, "invalid path", http.StatusBadRequest)
		return
	}
	if !render.IsMarkdown(abs) {
		http.NotFound(w, r)
		return
	}
	if abs == m.cfg.Path {
		http.Redirect(w, r, "/", http.StatusFound)
		return
	}

	content, err := os.ReadFile(abs)
	if err != nil {
		http.NotFound(w, r)
		return
	}

	fragment, err := m.renderer.RenderAt(content, path.Dir(rel))
	if err != nil {
		m.logger.Warn("linked document render failed", "path", abs, "error", err)
		http.Error(w, "render failed", http.StatusInternalServerError)
		return
	}

	page := m.renderer.RenderPage(render.Page{
		Title:   path.Base(rel),
		Content: fragment,
		Mode:    "static",
	})
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write([]byte(page))
}

// handleFile serves images and other files referenced by the document.
func (m *PreviewServer) handleFile(w http.ResponseWriter, r *http.Request) {
	abs, ok := resolve(m.root, chi.URLParam(r, "*"))
	if !ok {
		http.Error(w, "invalid path", http.StatusBadRequest)
		return
	}

	info, err := os.Stat(abs)
	if err != nil || info.IsDir() {
		http.NotFound(w, r)
		return
	}

	w.Header().Set("Cache-Control", fileCacheControl)
	http.ServeFile(w, r, abs)
}

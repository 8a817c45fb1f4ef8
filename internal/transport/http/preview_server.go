// Package httpserver is the delivery front-end: it serves the page shell,
// attaches browsers to the coordinator over a push or poll channel, and
// serves documents and files linked from the watched document.
package httpserver

import (
	"context"
	stderrors "errors"
	"log/slog"
	"net"
	"net/http"
	"path/filepath"
	"time"

	"go-mdview/internal/config"
	"go-mdview/internal/logging"
	"go-mdview/internal/render"
	"go-mdview/internal/session"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const shutdownTimeout = 2 * time.Second

// PreviewServer routes browser traffic to the coordinator.
type PreviewServer struct {
	cfg      *config.Config
	coord    *session.Coordinator
	renderer *render.Renderer
	logger   *slog.Logger

	// root is the directory linked documents and files are resolved against.
	root string
	// instance identifies this process. Snapshot versions restart with every
	// process, so pages compare it before comparing versions.
	instance string

	upgrader websocket.Upgrader
}

// NewPreviewServer creates a front-end for coord using the delivery mode and
// heartbeat settings of cfg.
func NewPreviewServer(cfg *config.Config, coord *session.Coordinator, renderer *render.Renderer, logger *slog.Logger) *PreviewServer {
	return &PreviewServer{
		cfg:      cfg,
		coord:    coord,
		renderer: renderer,
		logger:   logging.Component(logger, "http"),
		root:     filepath.Dir(cfg.Path),
		instance: uuid.NewString(),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// Instance returns the id pages use to detect a server restart.
func (m *PreviewServer) Instance() string {
	return m.instance
}

// Handler returns the router. Only the update route of the configured mode
// is mounted.
func (m *PreviewServer) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/", m.handleIndex)
	switch m.cfg.Mode {
	case config.ModePoll:
		r.Get("/api/poll", m.handlePoll)
	default:
		r.Get("/ws", m.handleWS)
	}
	r.Get(render.DocumentRoute+"*", m.handleDocument)
	r.Get(render.FileRoute+"*", m.handleFile)
	r.Head(render.FileRoute+"*", m.handleFile)
	return r
}

// Serve serves on ln until ctx is done, then shuts the server down and
// disconnects every client.
func (m *PreviewServer) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           m.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	if m.cfg.Mode == config.ModePoll {
		go m.reapLoop(ctx)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if stderrors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	err := srv.Shutdown(shutdownCtx)

	// Hijacked websocket connections are not closed by Shutdown.
	m.coord.Each(m.coord.Disconnect)

	if err != nil && !stderrors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// handleIndex serves the page shell with the current snapshot inlined.
func (m *PreviewServer) handleIndex(w http.ResponseWriter, r *http.Request) {
	snap := m.coord.Current()
	page := m.renderer.RenderPage(render.Page{
		Title:        m.coord.Filename(),
		Instance:     m.instance,
		Content:      snap.HTML,
		Version:      snap.Version,
		Mode:         string(m.cfg.Mode),
		PollInterval: int(m.cfg.PollInterval / time.Millisecond),
		PongTimeout:  int(m.cfg.PongTimeout / time.Millisecond),
	})

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	_, _ = w.Write([]byte(page))
}

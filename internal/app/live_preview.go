package app

import (
	"context"
	"fmt"
	"log/slog"
	"net"

	"go-mdview/internal/config"
	mderrors "go-mdview/internal/errors"
	"go-mdview/internal/logging"
	"go-mdview/internal/render"
	"go-mdview/internal/session"
	httptransport "go-mdview/internal/transport/http"
	"go-mdview/internal/watch"

	"golang.org/x/sync/errgroup"
)

// LivePreview wires the document, watcher, coordinator and HTTP front-end
// together and runs them as one unit.
type LivePreview struct {
	cfg    *config.Config
	logger *slog.Logger

	doc      *session.Document
	renderer *render.Renderer
	coord    *session.Coordinator
	server   *httptransport.PreviewServer

	ln net.Listener
}

func NewLivePreview(cfg *config.Config, logger *slog.Logger) (*LivePreview, error) {
	doc, err := session.NewDocument(cfg.Path)
	if err != nil {
		return nil, err
	}

	renderer := render.NewRenderer(render.WithSanitize(cfg.Sanitize))
	coord := session.NewCoordinator(doc, renderer, logger)

	return &LivePreview{
		cfg:      cfg,
		logger:   logging.Component(logger, "app"),
		doc:      doc,
		renderer: renderer,
		coord:    coord,
		server:   httptransport.NewPreviewServer(cfg, coord, renderer, logger),
	}, nil
}

// Coordinator exposes the session coordinator.
func (s *LivePreview) Coordinator() *session.Coordinator {
	return s.coord
}

// Listen binds the listener. With port 0 the kernel picks a free port, which
// URL reports afterwards. Run calls Listen itself if needed.
func (s *LivePreview) Listen() error {
	if s.ln != nil {
		return nil
	}
	ln, err := net.Listen("tcp", s.cfg.Addr())
	if err != nil {
		return mderrors.New(mderrors.KindConfig, "listen", fmt.Errorf("%s: %w", s.cfg.Addr(), err))
	}
	s.ln = ln
	return nil
}

// URL returns the browser URL, or "" before Listen.
func (s *LivePreview) URL() string {
	if s.ln == nil {
		return ""
	}
	return "http://" + s.ln.Addr().String()
}

// Run sets up watching, performs the initial render and serves until ctx is
// done. Watch setup and the initial render are the only failures that end
// the session; later read and render failures keep the last snapshot.
func (s *LivePreview) Run(ctx context.Context) error {
	watcher, err := watch.New(s.cfg.Path, s.cfg.Debounce, s.logger)
	if err != nil {
		return err
	}

	if err := s.coord.Start(); err != nil {
		_ = watcher.Close()
		return fmt.Errorf("initial render: %w", err)
	}

	if err := s.Listen(); err != nil {
		_ = watcher.Close()
		return err
	}

	s.logger.Info("serving preview", "url", s.URL(), "path", s.cfg.Path, "mode", s.cfg.Mode)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return watcher.Run(ctx)
	})
	g.Go(func() error {
		return s.coord.Run(ctx, watcher.Changes())
	})
	g.Go(func() error {
		return s.server.Serve(ctx, s.ln)
	})
	return g.Wait()
}

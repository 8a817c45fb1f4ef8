// Package watch turns filesystem notifications for one file into a debounced
// stream of change signals.
//
// The file's parent directory is watched rather than the file itself, so
// editors that save by writing a temporary file and renaming it over the
// original keep being followed. While the file is missing, events are
// ignored; the next create or write resumes signalling.
package watch

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	mderrors "go-mdview/internal/errors"
	"go-mdview/internal/logging"

	"github.com/fsnotify/fsnotify"
)

// ErrAlreadyRunning is returned by a second call to Run.
var ErrAlreadyRunning = stderrors.New("watcher already running")

// Watcher observes a single file.
type Watcher struct {
	path     string
	debounce time.Duration
	logger   *slog.Logger

	fsw     *fsnotify.Watcher
	signals chan struct{}
	running atomic.Bool

	// last observed file state, used to filter chmod-only events
	lastMod  time.Time
	lastSize int64
}

// New sets up watching for path. Failure is a WatchSetup error and is not
// retried: the directory must exist and be readable.
func New(path string, debounce time.Duration, logger *slog.Logger) (*Watcher, error) {
	const op = "watch"

	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, mderrors.WithPath(mderrors.KindWatchSetup, op, path, err)
	}

	if info, err := os.Stat(abs); err == nil && info.IsDir() {
		return nil, mderrors.WithPath(mderrors.KindWatchSetup, op, abs, fmt.Errorf("is a directory"))
	}

	dir := filepath.Dir(abs)
	info, err := os.Stat(dir)
	if err != nil {
		return nil, mderrors.WithPath(mderrors.KindWatchSetup, op, dir, err)
	}
	if !info.IsDir() {
		return nil, mderrors.WithPath(mderrors.KindWatchSetup, op, dir, fmt.Errorf("not a directory"))
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, mderrors.WithPath(mderrors.KindWatchSetup, op, abs, err)
	}
	if err := fsw.Add(dir); err != nil {
		_ = fsw.Close()
		return nil, mderrors.WithPath(mderrors.KindWatchSetup, op, dir, err)
	}

	w := &Watcher{
		path:     abs,
		debounce: debounce,
		logger:   logging.Component(logger, "watcher"),
		fsw:      fsw,
		signals:  make(chan struct{}, 1),
	}
	if info, err := os.Stat(abs); err == nil {
		w.lastMod, w.lastSize = info.ModTime(), info.Size()
	}
	return w, nil
}

// Path is the absolute path being watched.
func (w *Watcher) Path() string { return w.path }

// Changes is the signal stream. Each value means "the file changed and has
// been quiet for the debounce window". It is closed when Run returns.
func (w *Watcher) Changes() <-chan struct{} { return w.signals }

// Run processes notifications until ctx is done. It can be called once.
func (w *Watcher) Run(ctx context.Context) error {
	if !w.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer close(w.signals)
	defer w.fsw.Close()

	var timer *time.Timer
	var fire <-chan time.Time

	w.logger.Debug("watching", "path", w.path, "debounce", w.debounce)

	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return nil

		case ev, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			if !w.qualifies(ev) {
				continue
			}
			// Every qualifying event restarts the quiet period.
			if timer != nil {
				timer.Stop()
			}
			timer = time.NewTimer(w.debounce)
			fire = timer.C

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("watcher error", "error", err)

		case <-fire:
			fire = nil
			w.emit()
		}
	}
}

// Close releases a watcher that was never run. It is a no-op once Run has
// started, since Run releases everything itself.
func (w *Watcher) Close() error {
	if !w.running.CompareAndSwap(false, true) {
		return nil
	}
	close(w.signals)
	return w.fsw.Close()
}

// qualifies reports whether ev is a content or mtime change of the watched
// file that exists right now.
func (w *Watcher) qualifies(ev fsnotify.Event) bool {
	if filepath.Clean(ev.Name) != w.path {
		return false
	}

	if ev.Has(fsnotify.Remove) || ev.Has(fsnotify.Rename) {
		w.logger.Debug("file went away, waiting for it to return", "op", ev.Op.String())
		return false
	}

	info, err := os.Stat(w.path)
	if err != nil {
		// Transiently missing between remove and create.
		return false
	}

	changed := !info.ModTime().Equal(w.lastMod) || info.Size() != w.lastSize
	w.lastMod, w.lastSize = info.ModTime(), info.Size()

	if ev.Has(fsnotify.Create) || ev.Has(fsnotify.Write) {
		return true
	}
	return changed
}

// emit sends one signal, merging with any signal the consumer has not taken yet.
func (w *Watcher) emit() {
	select {
	case w.signals <- struct{}{}:
		w.logger.Debug("change signalled", "path", w.path)
	default:
	}
}

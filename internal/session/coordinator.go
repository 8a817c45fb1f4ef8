package session

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"sync/atomic"

	mderrors "go-mdview/internal/errors"
	"go-mdview/internal/logging"
)

// State is the coordinator's position in its render cycle.
type State int

const (
	StateIdle State = iota
	StateRendering
	StateBroadcasting
)

// String returns the string representation of the State
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRendering:
		return "rendering"
	case StateBroadcasting:
		return "broadcasting"
	default:
		return "unknown"
	}
}

// Coordinator owns the current snapshot and the client registry.
//
// Only one render cycle runs at a time. A change signal that arrives while a
// cycle is in flight sets the owed flag; the cycle then runs exactly one more
// render before going idle, however many signals arrived meanwhile.
type Coordinator struct {
	source   Source
	renderer Renderer
	logger   *slog.Logger

	// mu guards state and owed; idle is signalled on every return to StateIdle.
	mu    sync.Mutex
	idle  *sync.Cond
	state State
	owed  bool

	// regMu guards current and sessions. Publication and connect both hold
	// it, so a client never sees a version older than one it was given.
	regMu    sync.RWMutex
	current  Snapshot
	sessions map[string]*ClientSession

	renders  atomic.Int64
	failures atomic.Int64
}

// NewCoordinator creates a coordinator. Call Start before serving clients.
func NewCoordinator(source Source, renderer Renderer, logger *slog.Logger) *Coordinator {
	c := &Coordinator{
		source:   source,
		renderer: renderer,
		logger:   logging.Component(logger, "coordinator"),
		sessions: make(map[string]*ClientSession),
	}
	c.idle = sync.NewCond(&c.mu)
	return c
}

// Start performs the initial render. Failure here is reported to the caller
// rather than swallowed: there is no previous snapshot to fall back on.
func (c *Coordinator) Start() error {
	content, err := c.source.Reload()
	if err != nil {
		return err
	}
	html, err := c.render(content)
	if err != nil {
		return err
	}
	c.publish(html)
	return nil
}

// Run feeds change signals into OnFileChanged until ctx is done or signals
// is closed, then waits for the in-flight cycle to finish.
func (c *Coordinator) Run(ctx context.Context, signals <-chan struct{}) error {
	defer c.Wait()
	for {
		select {
		case <-ctx.Done():
			return nil
		case _, ok := <-signals:
			if !ok {
				return nil
			}
			c.OnFileChanged()
		}
	}
}

// OnFileChanged starts a render cycle, or marks one as owed if a cycle is
// already running. It never blocks on rendering.
func (c *Coordinator) OnFileChanged() {
	c.mu.Lock()
	if c.state != StateIdle {
		c.owed = true
		c.mu.Unlock()
		c.logger.Debug("change during cycle, render owed", "state", c.state)
		return
	}
	c.state = StateRendering
	c.mu.Unlock()

	go c.runCycle()
}

// Wait blocks until no render cycle is in flight.
func (c *Coordinator) Wait() {
	c.mu.Lock()
	for c.state != StateIdle {
		c.idle.Wait()
	}
	c.mu.Unlock()
}

// State returns the current cycle state.
func (c *Coordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Coordinator) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

// runCycle renders until no render is owed. The owed render fires as soon as
// the current cycle completes; it is not debounced a second time.
func (c *Coordinator) runCycle() {
	for {
		c.refresh()

		c.mu.Lock()
		if !c.owed {
			c.state = StateIdle
			c.idle.Broadcast()
			c.mu.Unlock()
			return
		}
		c.owed = false
		c.state = StateRendering
		c.mu.Unlock()
	}
}

// refresh re-reads and re-renders the document, then broadcasts the result.
// Failures keep the last good snapshot.
func (c *Coordinator) refresh() {
	content, err := c.source.Reload()
	if err != nil {
		c.failures.Add(1)
		c.logger.Warn("document read failed, keeping last snapshot", "error", err)
		return
	}

	html, err := c.render(content)
	if err != nil {
		c.failures.Add(1)
		c.logger.Warn("render failed, keeping last snapshot", "error", err)
		return
	}

	c.setState(StateBroadcasting)
	c.publish(html)
}

func (c *Coordinator) render(content []byte) (html string, err error) {
	c.renders.Add(1)
	defer func() {
		if r := recover(); r != nil {
			err = mderrors.WithPath(mderrors.KindRender, "render", c.source.Path(), fmt.Errorf("renderer panic: %v", r))
		}
	}()

	html, err = c.renderer.Render(content)
	if err != nil {
		return "", mderrors.WithPath(mderrors.KindRender, "render", c.source.Path(), err)
	}
	return html, nil
}

// publish installs a new snapshot and fans it out. Output identical to the
// current snapshot is not republished.
func (c *Coordinator) publish(html string) {
	c.regMu.Lock()
	defer c.regMu.Unlock()

	if c.current.Version > 0 && c.current.HTML == html {
		c.logger.Debug("render unchanged, skipping broadcast", "version", c.current.Version)
		return
	}

	c.current = Snapshot{Version: c.current.Version + 1, HTML: html}

	var failed []*ClientSession
	for _, s := range c.sessions {
		if err := s.channel.Deliver(c.current); err != nil {
			c.logger.Warn("delivery failed, dropping client", "session", s.id,
				"error", mderrors.New(mderrors.KindChannel, "deliver", err))
			failed = append(failed, s)
		}
	}
	for _, s := range failed {
		c.removeLocked(s)
	}

	c.logger.Debug("snapshot published", "version", c.current.Version, "clients", len(c.sessions))
}

// Connect registers a client and hands it the current snapshot.
func (c *Coordinator) Connect(ch Channel) (*ClientSession, error) {
	s := newClientSession(ch)

	c.regMu.Lock()
	defer c.regMu.Unlock()

	if c.current.Version > 0 {
		if err := ch.Deliver(c.current); err != nil {
			_ = ch.Close()
			return nil, mderrors.New(mderrors.KindChannel, "initial delivery", err)
		}
	}
	c.sessions[s.id] = s

	c.logger.Debug("client connected", "session", s.id, "clients", len(c.sessions))
	return s, nil
}

// Disconnect removes a client and closes its channel. It is idempotent.
func (c *Coordinator) Disconnect(s *ClientSession) {
	if s == nil {
		return
	}
	c.regMu.Lock()
	defer c.regMu.Unlock()
	c.removeLocked(s)
}

func (c *Coordinator) removeLocked(s *ClientSession) {
	if cur, ok := c.sessions[s.id]; !ok || cur != s {
		return
	}
	delete(c.sessions, s.id)
	if err := s.channel.Close(); err != nil {
		c.logger.Debug("channel close", "session", s.id, "error", err)
	}
	c.logger.Debug("client disconnected", "session", s.id, "clients", len(c.sessions))
}

// Lookup finds a registered client by id.
func (c *Coordinator) Lookup(id string) (*ClientSession, bool) {
	c.regMu.RLock()
	defer c.regMu.RUnlock()
	s, ok := c.sessions[id]
	return s, ok
}

// Current returns the latest snapshot.
func (c *Coordinator) Current() Snapshot {
	c.regMu.RLock()
	defer c.regMu.RUnlock()
	return c.current
}

// Sessions returns the number of registered clients.
func (c *Coordinator) Sessions() int {
	c.regMu.RLock()
	defer c.regMu.RUnlock()
	return len(c.sessions)
}

// Each calls fn for every registered client.
func (c *Coordinator) Each(fn func(*ClientSession)) {
	c.regMu.RLock()
	sessions := make([]*ClientSession, 0, len(c.sessions))
	for _, s := range c.sessions {
		sessions = append(sessions, s)
	}
	c.regMu.RUnlock()

	for _, s := range sessions {
		fn(s)
	}
}

// Filename is the base name of the watched document.
func (c *Coordinator) Filename() string {
	return filepath.Base(c.source.Path())
}

// Renders counts render attempts, including failed ones.
func (c *Coordinator) Renders() int64 { return c.renders.Load() }

// Failures counts read and render failures.
func (c *Coordinator) Failures() int64 { return c.failures.Load() }

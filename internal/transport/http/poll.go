package httpserver

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"sync"
	"time"

	"go-mdview/internal/contracts"
	"go-mdview/internal/session"
)

// pollChannel is the poll-mode channel: a mailbox holding the newest
// snapshot until the browser asks for it.
type pollChannel struct {
	mu       sync.Mutex
	latest   session.Snapshot
	lastSeen time.Time
	closed   bool
}

func newPollChannel() *pollChannel {
	return &pollChannel{lastSeen: time.Now()}
}

func (c *pollChannel) Deliver(snap session.Snapshot) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return errChannelClosed
	}
	if snap.Version > c.latest.Version {
		c.latest = snap
	}
	return nil
}

func (c *pollChannel) Close() error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	return nil
}

// Take answers a poll. It returns the newest snapshot and true when its
// version differs from known, or false when the browser is already current.
// A known version above the newest one comes from a page rendered by an
// earlier process and is answered with the snapshot too.
func (c *pollChannel) Take(known uint64) (session.Snapshot, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastSeen = time.Now()
	if c.latest.Version == 0 || c.latest.Version == known {
		return c.latest, false
	}
	return c.latest, true
}

func (c *pollChannel) idleSince(now time.Time) time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return now.Sub(c.lastSeen)
}

// handlePoll serves /api/poll?session=ID&version=N&instance=I. An unknown or
// missing session id registers a new session. A version stated against
// another instance says nothing about this process, so it counts as none.
func (m *PreviewServer) handlePoll(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	var known uint64
	if v := q.Get("version"); v != "" {
		parsed, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			http.Error(w, "invalid version", http.StatusBadRequest)
			return
		}
		known = parsed
	}
	if inst := q.Get("instance"); inst != "" && inst != m.instance {
		known = 0
	}

	sess, ch := m.lookupPoll(q.Get("session"))
	if sess == nil {
		ch = newPollChannel()
		var err error
		sess, err = m.coord.Connect(ch)
		if err != nil {
			m.logger.Warn("client rejected", "error", err)
			http.Error(w, "unavailable", http.StatusServiceUnavailable)
			return
		}
	}
	resp := contracts.PollResponse{
		Type:     contracts.MessageTypeNoop,
		Instance: m.instance,
		Session:  sess.ID(),
	}
	snap, changed := ch.Take(known)
	if known <= snap.Version {
		sess.Ack(known)
	}
	resp.Version = snap.Version
	if changed {
		resp.Type = contracts.MessageTypeUpdate
		resp.HTML = snap.HTML
		resp.Filename = m.coord.Filename()
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	_ = json.NewEncoder(w).Encode(resp)
}

func (m *PreviewServer) lookupPoll(id string) (*session.ClientSession, *pollChannel) {
	if id == "" {
		return nil, nil
	}
	sess, ok := m.coord.Lookup(id)
	if !ok {
		return nil, nil
	}
	ch, ok := sess.Channel().(*pollChannel)
	if !ok {
		return nil, nil
	}
	return sess, ch
}

// pollIdleTimeout is how long a poll session may stay silent before it is
// dropped. It always covers several poll intervals.
func (m *PreviewServer) pollIdleTimeout() time.Duration {
	return max(4*m.cfg.PollInterval, m.cfg.PongTimeout)
}

// reapLoop drops poll sessions whose browser stopped asking.
func (m *PreviewServer) reapLoop(ctx context.Context) {
	ticker := time.NewTicker(m.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			m.reap(now)
		}
	}
}

func (m *PreviewServer) reap(now time.Time) {
	timeout := m.pollIdleTimeout()
	m.coord.Each(func(s *session.ClientSession) {
		ch, ok := s.Channel().(*pollChannel)
		if !ok || ch.idleSince(now) <= timeout {
			return
		}
		m.logger.Info("poll session idle, disconnecting", "session", s.ID())
		m.coord.Disconnect(s)
	})
}

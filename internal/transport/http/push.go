package httpserver

import (
	"encoding/json"
	stderrors "errors"
	"net"
	"net/http"
	"sync"
	"time"

	"go-mdview/internal/contracts"
	mderrors "go-mdview/internal/errors"
	"go-mdview/internal/session"

	"github.com/gorilla/websocket"
)

const writeTimeout = 10 * time.Second

var errChannelClosed = stderrors.New("channel closed")

// wsChannel is the push-mode channel. Deliver only records the newest
// snapshot; a single writer goroutine owns the connection and sends it, so
// a slow browser never stalls the coordinator and never sees versions go
// backwards.
type wsChannel struct {
	conn     *websocket.Conn
	filename string
	instance string

	mu      sync.Mutex
	pending session.Snapshot
	sent    uint64

	wake      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

func newWSChannel(conn *websocket.Conn, filename, instance string) *wsChannel {
	return &wsChannel{
		conn:     conn,
		filename: filename,
		instance: instance,
		wake:     make(chan struct{}, 1),
		done:     make(chan struct{}),
	}
}

func (c *wsChannel) Deliver(snap session.Snapshot) error {
	select {
	case <-c.done:
		return errChannelClosed
	default:
	}

	c.mu.Lock()
	if snap.Version > c.sent && snap.Version > c.pending.Version {
		c.pending = snap
	}
	c.mu.Unlock()

	select {
	case c.wake <- struct{}{}:
	default:
	}
	return nil
}

func (c *wsChannel) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		err = c.conn.Close()
	})
	return err
}

// take returns the pending snapshot if it is newer than what was sent.
func (c *wsChannel) take() (session.Snapshot, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pending.Version <= c.sent {
		return session.Snapshot{}, false
	}
	c.sent = c.pending.Version
	return c.pending, true
}

// writeLoop sends pending snapshots and periodic pings until the channel
// closes or a write fails.
func (c *wsChannel) writeLoop(pingInterval time.Duration) error {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return nil
		case <-c.wake:
			snap, ok := c.take()
			if !ok {
				continue
			}
			if err := c.write(contracts.UpdateMessage{
				Type:     contracts.MessageTypeUpdate,
				Instance: c.instance,
				Version:  snap.Version,
				HTML:     snap.HTML,
				Filename: c.filename,
			}); err != nil {
				return err
			}
		case <-ticker.C:
			if err := c.write(contracts.PingMessage{Type: contracts.MessageTypePing}); err != nil {
				return err
			}
		}
	}
}

func (c *wsChannel) write(v any) error {
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.conn.WriteJSON(v)
}

// handleWS upgrades the connection, registers it with the coordinator and
// reads heartbeats until the browser goes quiet for longer than the pong
// timeout.
func (m *PreviewServer) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := m.upgrader.Upgrade(w, r, nil)
	if err != nil {
		m.logger.Debug("websocket upgrade failed", "error", err)
		return
	}

	ch := newWSChannel(conn, m.coord.Filename(), m.instance)
	sess, err := m.coord.Connect(ch)
	if err != nil {
		m.logger.Warn("client rejected", "error", err)
		return
	}
	defer m.coord.Disconnect(sess)

	go func() {
		if err := ch.writeLoop(m.cfg.PingInterval); err != nil {
			m.logger.Warn("push failed", "session", sess.ID(),
				"error", mderrors.New(mderrors.KindChannel, "push", err))
		}
		// Unblocks the read loop below.
		_ = ch.Close()
	}()

	extend := func() {
		_ = conn.SetReadDeadline(time.Now().Add(m.cfg.PongTimeout))
	}
	extend()
	conn.SetPongHandler(func(string) error {
		extend()
		return nil
	})

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			var ne net.Error
			if stderrors.As(err, &ne) && ne.Timeout() {
				m.logger.Info("heartbeat timeout, disconnecting", "session", sess.ID())
			}
			return
		}

		var envelope contracts.IncomingMessage
		if err := json.Unmarshal(raw, &envelope); err != nil {
			continue
		}
		switch envelope.Type {
		case contracts.MessageTypePong:
			var msg contracts.PongMessage
			if err := json.Unmarshal(raw, &msg); err != nil {
				continue
			}
			extend()
			// A page left over from an earlier process reports versions this
			// one never published.
			if msg.Version <= m.coord.Current().Version {
				sess.Ack(msg.Version)
			}
		}
	}
}

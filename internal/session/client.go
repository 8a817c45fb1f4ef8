package session

import (
	"sync/atomic"

	"github.com/google/uuid"
)

// Channel is the per-client delivery path for snapshots. Push and poll
// delivery are two implementations of it.
//
// Deliver must not block: implementations queue the snapshot and hand it to
// the client on their own schedule, never going backwards in version. An
// error means the channel is unusable and the client should be dropped.
// Close releases the channel's resources and must be safe to call twice.
type Channel interface {
	Deliver(snap Snapshot) error
	Close() error
}

// ClientSession is one connected viewer.
type ClientSession struct {
	id      string
	channel Channel
	acked   atomic.Uint64
}

func newClientSession(ch Channel) *ClientSession {
	return &ClientSession{
		id:      uuid.NewString(),
		channel: ch,
	}
}

func (s *ClientSession) ID() string { return s.id }

func (s *ClientSession) Channel() Channel { return s.channel }

// Ack records that the client displays version v. Older acks are ignored.
func (s *ClientSession) Ack(v uint64) {
	for {
		cur := s.acked.Load()
		if v <= cur || s.acked.CompareAndSwap(cur, v) {
			return
		}
	}
}

// Acked returns the highest version the client reported.
func (s *ClientSession) Acked() uint64 { return s.acked.Load() }

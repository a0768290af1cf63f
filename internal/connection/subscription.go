package connection

import (
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

// Subscription receives every chunk read from the port after it was created.
// Chunks are shared between subscribers and must not be modified.
//
// When the buffer is full the oldest undelivered chunk is discarded to make
// room, so a slow reader loses its own backlog and never stalls the port.
type Subscription struct {
	ID string

	conn    *Connection
	ch      chan []byte
	dropped atomic.Uint64

	mu     sync.Mutex
	err    error
	closed bool
}

func newSubscription(conn *Connection, size int) *Subscription {
	return &Subscription{
		ID:   uuid.New().String(),
		conn: conn,
		ch:   make(chan []byte, size),
	}
}

// C returns the chunk stream. It is closed when the subscription ends.
func (s *Subscription) C() <-chan []byte {
	return s.ch
}

// Err returns why the stream ended: nil after Close or a graceful connection
// shutdown, an ErrIOFault-wrapped error after a device fault.
func (s *Subscription) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Dropped returns how many chunks this subscriber has lost to backpressure
func (s *Subscription) Dropped() uint64 {
	return s.dropped.Load()
}

// Close detaches the subscriber. It does not affect the connection or the
// other subscribers. Safe to call more than once.
func (s *Subscription) Close() {
	s.conn.unsubscribe(s)
}

// deliver must only be called by the publishing read loop
func (s *Subscription) deliver(chunk []byte) bool {
	select {
	case s.ch <- chunk:
		return false
	default:
	}

	// Full: discard the oldest chunk. The read loop is the only sender, so
	// the retry below finds room unless the reader drained it meanwhile.
	select {
	case <-s.ch:
	default:
	}
	s.dropped.Add(1)

	select {
	case s.ch <- chunk:
	default:
	}
	return true
}

func (s *Subscription) end(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.err = err
	s.closed = true
	close(s.ch)
}

// Package connectiontest provides an in-memory serial port for tests.
package connectiontest

import (
	"bytes"
	"errors"
	"sync"
	"time"
)

// ErrPortClosed is returned by Read and Write after Close
var ErrPortClosed = errors.New("port closed")

// Port is a scriptable in-memory serial port. Bytes passed to Feed are
// returned by Read, bytes written are captured for inspection.
type Port struct {
	// ReadTimeout bounds each Read like a real port's read timeout; zero
	// blocks until data arrives or the port closes.
	ReadTimeout time.Duration

	incoming chan []byte
	readErr  chan error
	closed   chan struct{}
	pending  []byte

	mu        sync.Mutex
	written   bytes.Buffer
	maxWrite  int
	writeErr  error
	gate      chan struct{}
	responder func([]byte) []byte
	closeOnce sync.Once
}

// NewPort creates an open port with a 10ms read timeout
func NewPort() *Port {
	return &Port{
		ReadTimeout: 10 * time.Millisecond,
		incoming:    make(chan []byte, 256),
		readErr:     make(chan error, 1),
		closed:      make(chan struct{}),
	}
}

func (p *Port) Read(b []byte) (int, error) {
	if len(p.pending) > 0 {
		n := copy(b, p.pending)
		p.pending = p.pending[n:]
		return n, nil
	}

	var timeout <-chan time.Time
	if p.ReadTimeout > 0 {
		timer := time.NewTimer(p.ReadTimeout)
		defer timer.Stop()
		timeout = timer.C
	}

	select {
	case <-p.closed:
		return 0, ErrPortClosed
	case err := <-p.readErr:
		return 0, err
	case data := <-p.incoming:
		n := copy(b, data)
		p.pending = data[n:]
		return n, nil
	case <-timeout:
		return 0, nil
	}
}

func (p *Port) Write(b []byte) (int, error) {
	p.mu.Lock()
	gate := p.gate
	p.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-p.closed:
			return 0, ErrPortClosed
		}
	}

	p.mu.Lock()
	select {
	case <-p.closed:
		p.mu.Unlock()
		return 0, ErrPortClosed
	default:
	}
	if p.writeErr != nil {
		err := p.writeErr
		p.mu.Unlock()
		return 0, err
	}

	n := len(b)
	if p.maxWrite > 0 && n > p.maxWrite {
		n = p.maxWrite
	}
	p.written.Write(b[:n])
	responder := p.responder
	p.mu.Unlock()

	if responder != nil {
		if reply := responder(append([]byte(nil), b[:n]...)); len(reply) > 0 {
			p.Feed(reply)
		}
	}
	return n, nil
}

// Close closes the port. Further calls are ignored.
func (p *Port) Close() error {
	p.closeOnce.Do(func() { close(p.closed) })
	return nil
}

// Feed makes data available to the next Read as a single chunk
func (p *Port) Feed(data []byte) {
	p.incoming <- append([]byte(nil), data...)
}

// FailRead makes the next Read return err
func (p *Port) FailRead(err error) {
	p.readErr <- err
}

// FailWrites makes every following Write return err
func (p *Port) FailWrites(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.writeErr = err
}

// LimitWrite caps the bytes accepted per Write call, forcing short writes
func (p *Port) LimitWrite(n int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.maxWrite = n
}

// Respond installs a device simulator invoked with every accepted write.
// A non-empty reply is fed back as incoming data.
func (p *Port) Respond(fn func([]byte) []byte) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.responder = fn
}

// BlockWrites holds every Write until the returned release func is called
func (p *Port) BlockWrites() (release func()) {
	gate := make(chan struct{})
	p.mu.Lock()
	p.gate = gate
	p.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			p.mu.Lock()
			p.gate = nil
			p.mu.Unlock()
			close(gate)
		})
	}
}

// Written returns a copy of everything written so far
func (p *Port) Written() []byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]byte(nil), p.written.Bytes()...)
}

// IsClosed reports whether Close has been called
func (p *Port) IsClosed() bool {
	select {
	case <-p.closed:
		return true
	default:
		return false
	}
}

// Package connection owns a single serial port and bridges it to any number
// of subscribers and concurrent writers.
//
// One read loop publishes every chunk read from the port to all current
// subscribers. All writes funnel through a bounded queue drained by a single
// writer goroutine, so concurrent Send calls reach the wire whole and in the
// order they were accepted.
package connection

import (
	"context"
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/alexconrey/webmux/internal/config"
	"github.com/alexconrey/webmux/internal/protocol"
	"github.com/alexconrey/webmux/internal/stats"
	"github.com/alexconrey/webmux/internal/trafficlog"
	"github.com/alexconrey/webmux/internal/utils"
)

// Port is an exclusively owned serial handle. Read may return (0, nil) when
// its timeout expires.
type Port interface {
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
	Close() error
}

// Opener acquires the port described by cfg
type Opener func(cfg *config.SerialConnectionConfig) (Port, error)

// Options tunes a connection
type Options struct {
	SubscriberBuffer int
	WriteQueue       int
	ReadBuffer       int
	Logger           *zap.Logger
	Observer         Observer

	// DeviceLost classifies read errors that mean the device went away.
	// Defaults to protocol.IsPortClosed.
	DeviceLost func(error) bool
}

func (o Options) withDefaults() Options {
	if o.SubscriberBuffer <= 0 {
		o.SubscriberBuffer = config.DefaultSubscriberBuffer
	}
	if o.WriteQueue <= 0 {
		o.WriteQueue = config.DefaultWriteQueue
	}
	if o.ReadBuffer <= 0 {
		o.ReadBuffer = config.DefaultReadBuffer
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	if o.DeviceLost == nil {
		o.DeviceLost = protocol.IsPortClosed
	}
	return o
}

// Stats is the externally reported view of a connection
type Stats struct {
	Name string `json:"name"`
	Port string `json:"port"`
	stats.Snapshot
	State         State  `json:"state"`
	Subscribers   int    `json:"subscribers"`
	DroppedChunks uint64 `json:"dropped_chunks"`
	LogFailures   uint64 `json:"log_failures"`
}

type writeRequest struct {
	data   []byte
	result chan error
}

// Connection is one open serial endpoint
type Connection struct {
	cfg     config.SerialConnectionConfig
	opts    Options
	port    Port
	tracker *stats.Tracker
	sink    *trafficlog.Sink
	logger  *utils.ConnectionLogger

	mu    sync.RWMutex
	state State
	fault error
	subs  map[string]*Subscription

	dropped atomic.Uint64

	writes    chan *writeRequest
	stop      chan struct{}
	readDone  chan struct{}
	writeDone chan struct{}
	closed    chan struct{}
	portOnce  sync.Once
	portErr   error
}

// Open acquires the port through opener and starts the read and write loops.
// Failure to acquire the port wraps ErrPortOpenFailed.
func Open(cfg config.SerialConnectionConfig, opener Opener, opts Options) (*Connection, error) {
	opts = opts.withDefaults()

	c := &Connection{
		cfg:       cfg,
		opts:      opts,
		tracker:   stats.NewTracker(),
		logger:    utils.NewConnectionLogger(opts.Logger, cfg.Name, cfg.Port),
		state:     StateOpening,
		subs:      make(map[string]*Subscription),
		writes:    make(chan *writeRequest, opts.WriteQueue),
		stop:      make(chan struct{}),
		readDone:  make(chan struct{}),
		writeDone: make(chan struct{}),
		closed:    make(chan struct{}),
	}

	port, err := opener(&c.cfg)
	if err != nil {
		err = fmt.Errorf("%w: %s (%s): %w", ErrPortOpenFailed, cfg.Name, cfg.Port, err)
		c.logger.LogConnection("open", false, err)
		return nil, err
	}
	c.port = port

	if cfg.Logging.Enabled {
		sink, err := trafficlog.Open(cfg.Name, cfg.Logging.Path, 0, opts.Logger)
		if err != nil {
			// Traffic logging is best-effort; run without it.
			c.logger.Warn("Traffic log disabled", zap.Error(err))
		} else {
			c.sink = sink
		}
	}

	c.mu.Lock()
	c.setStateLocked(StateOpen)
	c.tracker.MarkOpen()
	c.mu.Unlock()

	c.logger.LogConnection("open", true, nil)
	c.notify(StateOpening, StateOpen, nil)

	go c.readLoop()
	go c.writeLoop()
	return c, nil
}

// Name returns the configured connection name
func (c *Connection) Name() string {
	return c.cfg.Name
}

// Config returns a copy of the connection's configuration
func (c *Connection) Config() config.SerialConnectionConfig {
	return c.cfg
}

// State returns the current lifecycle state
func (c *Connection) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// Fault returns the error that faulted the connection, if any
func (c *Connection) Fault() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.fault
}

// Stats returns a point-in-time snapshot
func (c *Connection) Stats() Stats {
	c.mu.RLock()
	state, subs := c.state, len(c.subs)
	c.mu.RUnlock()

	snap := c.tracker.Snapshot()
	snap.IsConnected = state == StateOpen

	return Stats{
		Name:          c.cfg.Name,
		Port:          c.cfg.Port,
		Snapshot:      snap,
		State:         state,
		Subscribers:   subs,
		DroppedChunks: c.dropped.Load(),
		LogFailures:   c.sink.Failures(),
	}
}

// Subscribe attaches a new subscriber. It receives chunks read after this
// call returns, never earlier ones.
func (c *Connection) Subscribe() (*Subscription, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateOpen {
		return nil, c.unavailableLocked()
	}

	sub := newSubscription(c, c.opts.SubscriberBuffer)
	c.subs[sub.ID] = sub
	c.logger.Debug("Subscriber attached", zap.String("subscription_id", sub.ID), zap.Int("subscribers", len(c.subs)))
	return sub, nil
}

func (c *Connection) unsubscribe(sub *Subscription) {
	c.mu.Lock()
	_, ok := c.subs[sub.ID]
	delete(c.subs, sub.ID)
	c.mu.Unlock()

	if ok {
		sub.end(nil)
		c.logger.Debug("Subscriber detached", zap.String("subscription_id", sub.ID))
	}
}

// Send queues data for the port and waits until it has been written.
//
// Once queued the request is written whole even if ctx is cancelled, in
// which case Send returns ctx.Err() without waiting.
func (c *Connection) Send(ctx context.Context, data []byte) error {
	if c.State() != StateOpen {
		return c.unavailable()
	}
	if len(data) == 0 {
		return nil
	}

	req := &writeRequest{
		data:   append([]byte(nil), data...),
		result: make(chan error, 1),
	}

	select {
	case c.writes <- req:
	case <-c.stop:
		return c.unavailable()
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-req.result:
		return err
	case <-c.writeDone:
		select {
		case err := <-req.result:
			return err
		default:
			return c.unavailable()
		}
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close shuts the connection down gracefully: pending writes are flushed,
// both loops stop, the port is released and every subscriber's stream ends.
// If ctx expires first the port is force-closed. Closing a closed or
// faulted connection is a no-op.
func (c *Connection) Close(ctx context.Context) error {
	c.mu.Lock()
	if c.state.IsTerminal() {
		c.mu.Unlock()
		return nil
	}
	if c.state == StateClosing {
		c.mu.Unlock()
		select {
		case <-c.closed:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	from := c.state
	c.setStateLocked(StateClosing)
	close(c.stop)
	c.mu.Unlock()

	c.notify(from, StateClosing, nil)

	var forced error
	loopsDone := make(chan struct{})
	go func() {
		<-c.writeDone
		<-c.readDone
		close(loopsDone)
	}()

	select {
	case <-loopsDone:
	case <-ctx.Done():
		forced = fmt.Errorf("connection %s force-closed: %w", c.cfg.Name, ctx.Err())
		c.logger.Warn("Shutdown grace expired, force-closing port")
		c.closePort()
		<-loopsDone
	}

	err := c.closePort()

	c.mu.Lock()
	c.setStateLocked(StateClosed)
	subs := c.takeSubscribers()
	c.mu.Unlock()

	c.tracker.MarkClosed()
	for _, sub := range subs {
		sub.end(nil)
	}
	if logErr := c.sink.Close(); logErr != nil {
		c.logger.Warn("Failed to close traffic log", zap.Error(logErr))
	}
	close(c.closed)

	c.logger.LogConnection("close", err == nil, err)
	c.notify(StateClosing, StateClosed, nil)

	if forced != nil {
		return forced
	}
	return err
}

func (c *Connection) readLoop() {
	defer close(c.readDone)

	buf := make([]byte, c.opts.ReadBuffer)
	for {
		select {
		case <-c.stop:
			return
		default:
		}

		n, err := c.port.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])

			c.tracker.RecordRx(n)
			c.sink.Record(trafficlog.RX, chunk)
			c.publish(chunk)
		}

		if err != nil {
			if c.stopping() {
				return
			}
			if isTransient(err) {
				continue
			}
			reason := ErrIOFault
			if c.opts.DeviceLost(err) {
				reason = ErrDeviceLost
			}
			c.fail(fmt.Errorf("%w: read %s: %w", reason, c.cfg.Port, err))
			return
		}
	}
}

func (c *Connection) publish(chunk []byte) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	for _, sub := range c.subs {
		if sub.deliver(chunk) {
			c.dropped.Add(1)
		}
	}
}

func (c *Connection) writeLoop() {
	defer close(c.writeDone)

	for {
		select {
		case req := <-c.writes:
			c.handleWrite(req)
		case <-c.stop:
			// Flush what was accepted before the stop signal
			for {
				select {
				case req := <-c.writes:
					c.handleWrite(req)
				default:
					return
				}
			}
		}
	}
}

func (c *Connection) handleWrite(req *writeRequest) {
	if c.State() == StateFaulted {
		req.result <- c.unavailable()
		return
	}

	if err := c.writeAll(req.data); err != nil {
		err = fmt.Errorf("%w: write %s: %w", ErrIOFault, c.cfg.Port, err)
		req.result <- err
		c.fail(err)
		return
	}

	c.tracker.RecordTx(len(req.data))
	c.sink.Record(trafficlog.TX, req.data)
	req.result <- nil
}

func (c *Connection) writeAll(data []byte) error {
	for len(data) > 0 {
		n, err := c.port.Write(data)
		if n > 0 {
			data = data[n:]
		}
		if err != nil {
			if isTransient(err) {
				continue
			}
			return err
		}
		if n == 0 {
			return io.ErrShortWrite
		}
	}
	return nil
}

// fail moves an open connection to Faulted. Faults raised while closing are
// ignored; the close path owns teardown then.
func (c *Connection) fail(err error) {
	c.mu.Lock()
	if !c.setStateLocked(StateFaulted) {
		c.mu.Unlock()
		return
	}
	c.fault = err
	close(c.stop)
	subs := c.takeSubscribers()
	c.mu.Unlock()

	c.tracker.MarkClosed()
	if closeErr := c.closePort(); closeErr != nil {
		c.logger.Debug("Port close after fault failed", zap.Error(closeErr))
	}
	for _, sub := range subs {
		sub.end(err)
	}
	if logErr := c.sink.Close(); logErr != nil {
		c.logger.Warn("Failed to close traffic log", zap.Error(logErr))
	}

	c.notify(StateOpen, StateFaulted, err)
}

// setStateLocked moves to the given state if the lifecycle allows it.
// c.mu must be held for writing.
func (c *Connection) setStateLocked(to State) bool {
	if !CanTransition(c.state, to) {
		c.logger.Debug("Rejected state change",
			zap.Stringer("from", c.state),
			zap.Stringer("to", to),
		)
		return false
	}
	c.state = to
	return true
}

func (c *Connection) takeSubscribers() []*Subscription {
	subs := make([]*Subscription, 0, len(c.subs))
	for _, sub := range c.subs {
		subs = append(subs, sub)
	}
	c.subs = make(map[string]*Subscription)
	return subs
}

func (c *Connection) closePort() error {
	c.portOnce.Do(func() {
		c.portErr = c.port.Close()
	})
	return c.portErr
}

func (c *Connection) stopping() bool {
	select {
	case <-c.stop:
		return true
	default:
		return false
	}
}

// unavailable builds the error returned to callers of a non-open connection
func (c *Connection) unavailable() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.unavailableLocked()
}

func (c *Connection) unavailableLocked() error {
	if c.fault != nil {
		return fmt.Errorf("%w: %s is %s: %v", ErrConnectionUnavailable, c.cfg.Name, c.state, c.fault)
	}
	return fmt.Errorf("%w: %s is %s", ErrConnectionUnavailable, c.cfg.Name, c.state)
}

func (c *Connection) notify(from, to State, err error) {
	c.logger.LogStateChange(from.String(), to.String(), err)
	if c.opts.Observer != nil {
		c.opts.Observer.OnStateChange(c.cfg.Name, from, to, err)
	}
}

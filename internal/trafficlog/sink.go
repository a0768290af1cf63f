// Package trafficlog writes a human-readable RX/TX record of serial traffic,
// one line per chunk:
//
//	[2024-01-02 15:04:05.123] dev | RX | 10 bytes | HEX: 53 54 41 ... | ASCII: STATUS:OK.
//
// Logging is best-effort. Record never blocks the serial path and never
// returns an error; failed or dropped lines are counted and warned about.
package trafficlog

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/alexconrey/webmux/internal/codec"
)

// Direction of a traffic record
type Direction string

const (
	RX Direction = "RX"
	TX Direction = "TX"
)

// TimestampLayout is the millisecond-precision layout used on every line
const TimestampLayout = "2006-01-02 15:04:05.000"

const (
	defaultQueueSize = 1024
	warnEvery        = 100
)

// Sink appends traffic records for one connection. A nil *Sink is a valid,
// disabled sink.
type Sink struct {
	name   string
	w      io.Writer
	lines  chan []byte
	done   chan struct{}
	logger *zap.Logger
	now    func() time.Time

	failures  atomic.Uint64
	closeOnce sync.Once
	mu        sync.RWMutex
	closed    bool
}

// Open creates a sink appending to path, rotated by lumberjack once the file
// reaches maxSizeMB.
func Open(name, path string, maxSizeMB int, logger *zap.Logger) (*Sink, error) {
	if path == "" {
		return nil, fmt.Errorf("traffic log path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create traffic log directory: %w", err)
	}
	if maxSizeMB <= 0 {
		maxSizeMB = 100
	}

	w := &lumberjack.Logger{
		Filename:   path,
		MaxSize:    maxSizeMB, // MB
		MaxBackups: 5,
		Compress:   false,
	}
	return New(name, w, logger), nil
}

// New creates a sink writing to w. If w is an io.Closer it is closed by Close.
func New(name string, w io.Writer, logger *zap.Logger) *Sink {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Sink{
		name:   name,
		w:      w,
		lines:  make(chan []byte, defaultQueueSize),
		done:   make(chan struct{}),
		logger: logger.With(zap.String("component", "traffic-log"), zap.String("connection", name)),
		now:    time.Now,
	}
	go s.run()
	return s
}

// Record appends one line for data
func (s *Sink) Record(dir Direction, data []byte) {
	if s == nil {
		return
	}

	line := FormatLine(s.now(), s.name, dir, data)

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return
	}

	select {
	case s.lines <- line:
	default:
		s.fail(fmt.Errorf("traffic log queue full"))
	}
}

// Failures returns the number of lines that could not be written
func (s *Sink) Failures() uint64 {
	if s == nil {
		return 0
	}
	return s.failures.Load()
}

// Close flushes queued lines and releases the underlying writer
func (s *Sink) Close() error {
	if s == nil {
		return nil
	}

	var err error
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		close(s.lines)
		s.mu.Unlock()

		<-s.done
		if c, ok := s.w.(io.Closer); ok {
			err = c.Close()
		}
	})
	return err
}

func (s *Sink) run() {
	defer close(s.done)
	for line := range s.lines {
		if _, err := s.w.Write(line); err != nil {
			s.fail(err)
		}
	}
}

func (s *Sink) fail(err error) {
	n := s.failures.Add(1)
	if n == 1 || n%warnEvery == 0 {
		s.logger.Warn("Traffic log write failed",
			zap.Error(err),
			zap.Uint64("failures", n),
		)
	}
}

// FormatLine renders a single traffic record terminated by a newline
func FormatLine(ts time.Time, name string, dir Direction, data []byte) []byte {
	return []byte(fmt.Sprintf("[%s] %s | %s | %d bytes | HEX: %s | ASCII: %s\n",
		ts.Format(TimestampLayout),
		name,
		dir,
		len(data),
		codec.HexDump(data),
		codec.PrintableASCII(data),
	))
}

// Package registry owns every serial connection of the gateway, keyed by name.
package registry

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/alexconrey/webmux/internal/config"
	"github.com/alexconrey/webmux/internal/connection"
)

var (
	// ErrNotFound is returned for names that are not configured, disabled, or
	// failed to open. It also matches connection.ErrConnectionUnavailable.
	ErrNotFound = fmt.Errorf("connection not found: %w", connection.ErrConnectionUnavailable)

	// ErrAlreadyOpened is returned when OpenAll is called twice
	ErrAlreadyOpened = errors.New("registry already opened")
)

// Failure records a configured connection whose port could not be opened
type Failure struct {
	Name string `json:"name"`
	Port string `json:"port"`
	Err  error  `json:"-"`
}

// Error returns the failure reason
func (f Failure) Error() string {
	return f.Err.Error()
}

// Registry is the single owner of all connections. The name→connection view
// is replaced atomically, so lookups never observe a partially opened set.
type Registry struct {
	opener connection.Opener
	opts   connection.Options
	logger *zap.Logger

	mu       sync.RWMutex
	conns    map[string]*connection.Connection
	order    []string
	failures []Failure
	opened   bool
}

// New creates an empty registry. Ports are acquired through opener.
func New(opener connection.Opener, opts connection.Options, logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	opts.Logger = logger
	return &Registry{
		opener: opener,
		opts:   opts,
		logger: logger.With(zap.String("component", "registry")),
		conns:  make(map[string]*connection.Connection),
	}
}

// OpenAll validates every entry before opening any port. Disabled entries are
// skipped. A port that fails to open is recorded in Failures and left out of
// the registry without aborting the others.
func (r *Registry) OpenAll(ctx context.Context, configs []config.SerialConnectionConfig) error {
	if err := config.ValidateConnections(configs); err != nil {
		return err
	}

	r.mu.RLock()
	opened := r.opened
	r.mu.RUnlock()
	if opened {
		return ErrAlreadyOpened
	}

	conns := make(map[string]*connection.Connection, len(configs))
	order := make([]string, 0, len(configs))
	var failures []Failure

	for _, cfg := range configs {
		if !cfg.Enabled {
			r.logger.Info("Serial connection disabled, skipping", zap.String("connection", cfg.Name))
			continue
		}

		if err := ctx.Err(); err != nil {
			closeAll(context.Background(), conns)
			return fmt.Errorf("open aborted: %w", err)
		}

		conn, err := connection.Open(cfg, r.opener, r.opts)
		if err != nil {
			r.logger.Warn("Serial connection unavailable",
				zap.String("connection", cfg.Name),
				zap.String("port", cfg.Port),
				zap.Error(err),
			)
			failures = append(failures, Failure{Name: cfg.Name, Port: cfg.Port, Err: err})
			continue
		}

		conns[cfg.Name] = conn
		order = append(order, cfg.Name)
	}

	r.mu.Lock()
	if r.opened {
		r.mu.Unlock()
		closeAll(context.Background(), conns)
		return ErrAlreadyOpened
	}
	r.conns = conns
	r.order = order
	r.failures = failures
	r.opened = true
	r.mu.Unlock()

	r.logger.Info("Serial connections opened",
		zap.Int("open", len(order)),
		zap.Int("failed", len(failures)),
	)
	return nil
}

// Get returns the named connection, which may be in any state
func (r *Registry) Get(name string) (*connection.Connection, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conn, ok := r.conns[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return conn, nil
}

// List returns connection names in configuration order
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.order...)
}

// Connections returns every connection in configuration order
func (r *Registry) Connections() []*connection.Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conns := make([]*connection.Connection, 0, len(r.order))
	for _, name := range r.order {
		conns = append(conns, r.conns[name])
	}
	return conns
}

// Stats returns a snapshot of every connection in configuration order
func (r *Registry) Stats() []connection.Stats {
	conns := r.Connections()
	out := make([]connection.Stats, 0, len(conns))
	for _, conn := range conns {
		out = append(out, conn.Stats())
	}
	return out
}

// Failures returns the connections that could not be opened
func (r *Registry) Failures() []Failure {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]Failure(nil), r.failures...)
}

// Ready reports whether OpenAll has completed
func (r *Registry) Ready() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.opened
}

// CloseAll closes every connection concurrently and waits for all of them.
// When ctx expires, connections still closing are force-closed.
func (r *Registry) CloseAll(ctx context.Context) error {
	r.mu.RLock()
	conns := make(map[string]*connection.Connection, len(r.conns))
	for name, conn := range r.conns {
		conns[name] = conn
	}
	r.mu.RUnlock()

	err := closeAll(ctx, conns)
	if err != nil {
		r.logger.Warn("Serial connections closed with errors", zap.Error(err))
	} else {
		r.logger.Info("Serial connections closed", zap.Int("count", len(conns)))
	}
	return err
}

func closeAll(ctx context.Context, conns map[string]*connection.Connection) error {
	var (
		g    errgroup.Group
		mu   sync.Mutex
		errs error
	)

	for name, conn := range conns {
		g.Go(func() error {
			if err := conn.Close(ctx); err != nil {
				mu.Lock()
				errs = multierr.Append(errs, fmt.Errorf("close %s: %w", name, err))
				mu.Unlock()
			}
			return nil
		})
	}

	_ = g.Wait()
	return errs
}

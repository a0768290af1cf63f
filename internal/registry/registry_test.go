package registry

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alexconrey/webmux/internal/config"
	"github.com/alexconrey/webmux/internal/connection"
	"github.com/alexconrey/webmux/internal/connection/connectiontest"
)

// fakeOpener hands out in-memory ports and fails for the listed port paths
type fakeOpener struct {
	mu     sync.Mutex
	ports  map[string]*connectiontest.Port
	fail   map[string]bool
	called int
}

func newFakeOpener(failing ...string) *fakeOpener {
	o := &fakeOpener{
		ports: make(map[string]*connectiontest.Port),
		fail:  make(map[string]bool),
	}
	for _, p := range failing {
		o.fail[p] = true
	}
	return o
}

func (o *fakeOpener) Open(cfg *config.SerialConnectionConfig) (connection.Port, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.called++
	if o.fail[cfg.Port] {
		return nil, errors.New("no such file or directory")
	}
	port := connectiontest.NewPort()
	o.ports[cfg.Name] = port
	return port, nil
}

func (o *fakeOpener) port(name string) *connectiontest.Port {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.ports[name]
}

func entry(name, port string, enabled bool) config.SerialConnectionConfig {
	return config.SerialConnectionConfig{
		Name:        name,
		Port:        port,
		BaudRate:    9600,
		DataBits:    8,
		StopBits:    1,
		Parity:      config.ParityNone,
		FlowControl: config.FlowControlNone,
		Enabled:     enabled,
	}
}

func newTestRegistry(t *testing.T, opener *fakeOpener) *Registry {
	t.Helper()
	reg := New(opener.Open, connection.Options{}, nil)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = reg.CloseAll(ctx)
	})
	return reg
}

func TestOpenAll_OpensEnabledInOrder(t *testing.T) {
	opener := newFakeOpener()
	reg := newTestRegistry(t, opener)

	err := reg.OpenAll(context.Background(), []config.SerialConnectionConfig{
		entry("plc", "/dev/ttyS0", true),
		entry("spare", "/dev/ttyS1", false),
		entry("dev", "/dev/ttyUSB0", true),
	})
	require.NoError(t, err)

	assert.True(t, reg.Ready())
	assert.Equal(t, []string{"plc", "dev"}, reg.List())
	assert.Equal(t, 2, opener.called)
	assert.Empty(t, reg.Failures())

	conn, err := reg.Get("dev")
	require.NoError(t, err)
	assert.Equal(t, "/dev/ttyUSB0", conn.Config().Port)
	assert.Equal(t, connection.StateOpen, conn.State())

	_, err = reg.Get("spare")
	assert.ErrorIs(t, err, ErrNotFound)

	names := make([]string, 0)
	for _, c := range reg.Connections() {
		names = append(names, c.Name())
	}
	assert.Equal(t, []string{"plc", "dev"}, names)

	stats := reg.Stats()
	require.Len(t, stats, 2)
	assert.Equal(t, "plc", stats[0].Name)
	assert.True(t, stats[1].IsConnected)
}

func TestOpenAll_RejectsInvalidBeforeOpening(t *testing.T) {
	opener := newFakeOpener()
	reg := newTestRegistry(t, opener)

	bad := entry("plc", "/dev/ttyS2", true)
	bad.DataBits = 9

	err := reg.OpenAll(context.Background(), []config.SerialConnectionConfig{
		entry("dev", "/dev/ttyS0", true),
		entry("dev", "/dev/ttyS1", true),
		bad,
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, config.ErrConfigInvalid)
	assert.Contains(t, err.Error(), "duplicate connection name")
	assert.Contains(t, err.Error(), "data_bits")
	assert.Equal(t, 0, opener.called)
	assert.False(t, reg.Ready())
	assert.Empty(t, reg.List())
}

func TestOpenAll_RecordsOpenFailures(t *testing.T) {
	opener := newFakeOpener("/dev/missing")
	reg := newTestRegistry(t, opener)

	err := reg.OpenAll(context.Background(), []config.SerialConnectionConfig{
		entry("ghost", "/dev/missing", true),
		entry("dev", "/dev/ttyUSB0", true),
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"dev"}, reg.List())

	failures := reg.Failures()
	require.Len(t, failures, 1)
	assert.Equal(t, "ghost", failures[0].Name)
	assert.ErrorIs(t, failures[0].Err, connection.ErrPortOpenFailed)

	_, err = reg.Get("ghost")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, err, connection.ErrConnectionUnavailable)
}

func TestOpenAll_Twice(t *testing.T) {
	reg := newTestRegistry(t, newFakeOpener())
	configs := []config.SerialConnectionConfig{entry("dev", "/dev/ttyUSB0", true)}

	require.NoError(t, reg.OpenAll(context.Background(), configs))
	assert.ErrorIs(t, reg.OpenAll(context.Background(), configs), ErrAlreadyOpened)
}

func TestOpenAll_CancelledContext(t *testing.T) {
	reg := newTestRegistry(t, newFakeOpener())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := reg.OpenAll(ctx, []config.SerialConnectionConfig{entry("dev", "/dev/ttyUSB0", true)})
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, reg.Ready())
}

func TestGet_Unknown(t *testing.T) {
	reg := newTestRegistry(t, newFakeOpener())
	require.NoError(t, reg.OpenAll(context.Background(), nil))

	_, err := reg.Get("nope")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, err, connection.ErrConnectionUnavailable)
	assert.Contains(t, err.Error(), "nope")
}

func TestSendToFaultedConnection(t *testing.T) {
	opener := newFakeOpener()
	reg := newTestRegistry(t, opener)
	require.NoError(t, reg.OpenAll(context.Background(), []config.SerialConnectionConfig{
		entry("dev", "/dev/ttyUSB0", true),
	}))

	conn, err := reg.Get("dev")
	require.NoError(t, err)

	opener.port("dev").FailRead(errors.New("device removed"))
	require.Eventually(t, func() bool {
		return conn.State() == connection.StateFaulted
	}, time.Second, 5*time.Millisecond)

	// Faulted connections stay registered
	conn, err = reg.Get("dev")
	require.NoError(t, err)
	err = conn.Send(context.Background(), []byte("STATUS"))
	assert.ErrorIs(t, err, connection.ErrConnectionUnavailable)
}

func TestCloseAll(t *testing.T) {
	opener := newFakeOpener()
	reg := newTestRegistry(t, opener)
	require.NoError(t, reg.OpenAll(context.Background(), []config.SerialConnectionConfig{
		entry("a", "/dev/ttyS0", true),
		entry("b", "/dev/ttyS1", true),
		entry("c", "/dev/ttyS2", true),
	}))

	var subs []*connection.Subscription
	for _, conn := range reg.Connections() {
		sub, err := conn.Subscribe()
		require.NoError(t, err)
		subs = append(subs, sub)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, reg.CloseAll(ctx))

	for _, conn := range reg.Connections() {
		assert.Equal(t, connection.StateClosed, conn.State())
		assert.True(t, opener.port(conn.Name()).IsClosed())
	}
	for _, sub := range subs {
		_, ok := <-sub.C()
		assert.False(t, ok)
	}

	// Second call is a no-op
	require.NoError(t, reg.CloseAll(ctx))
}

func TestCloseAll_ForceClosesOnDeadline(t *testing.T) {
	opener := newFakeOpener()
	reg := newTestRegistry(t, opener)
	require.NoError(t, reg.OpenAll(context.Background(), []config.SerialConnectionConfig{
		entry("stuck", "/dev/ttyS0", true),
		entry("fine", "/dev/ttyS1", true),
	}))

	stuck, err := reg.Get("stuck")
	require.NoError(t, err)
	opener.port("stuck").BlockWrites()
	go func() { _ = stuck.Send(context.Background(), []byte("zzz")) }()
	time.Sleep(20 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err = reg.CloseAll(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Contains(t, err.Error(), "stuck")

	for _, conn := range reg.Connections() {
		assert.Equal(t, connection.StateClosed, conn.State())
	}
}

func TestConcurrentLookupsDuringOpen(t *testing.T) {
	reg := newTestRegistry(t, newFakeOpener())

	configs := make([]config.SerialConnectionConfig, 0, 20)
	for _, name := range []string{"a", "b", "c", "d", "e", "f", "g", "h"} {
		configs = append(configs, entry(name, "/dev/tty"+name, true))
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 1000; i++ {
			names := reg.List()
			assert.True(t, len(names) == 0 || len(names) == len(configs), "partial view: %v", names)
		}
	}()

	require.NoError(t, reg.OpenAll(context.Background(), configs))
	<-done
}

package metrics

import (
	"errors"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alexconrey/webmux/internal/connection"
	"github.com/alexconrey/webmux/internal/registry"
	"github.com/alexconrey/webmux/internal/stats"
)

type fakeSource struct {
	stats    []connection.Stats
	failures []registry.Failure
}

func (f *fakeSource) Stats() []connection.Stats      { return f.stats }
func (f *fakeSource) Failures() []registry.Failure { return f.failures }

func newFakeSource() *fakeSource {
	return &fakeSource{
		stats: []connection.Stats{
			{
				Name:          "plc",
				Port:          "/dev/ttyS0",
				Snapshot:      stats.Snapshot{BytesReceived: 512, BytesSent: 16, IsConnected: true, UptimeSeconds: 30},
				State:         connection.StateOpen,
				Subscribers:   2,
				DroppedChunks: 4,
				LogFailures:   1,
			},
			{
				Name:     "sensor",
				Port:     "/dev/ttyUSB0",
				Snapshot: stats.Snapshot{BytesReceived: 10},
				State:    connection.StateFaulted,
			},
		},
		failures: []registry.Failure{
			{Name: "spare", Port: "/dev/ttyS9", Err: errors.New("no such file or directory")},
		},
	}
}

func TestCollector_Values(t *testing.T) {
	c := NewCollector(newFakeSource())

	expected := `
# HELP webmux_bytes_received_total Bytes read from the serial port.
# TYPE webmux_bytes_received_total counter
webmux_bytes_received_total{connection="plc"} 512
webmux_bytes_received_total{connection="sensor"} 10
# HELP webmux_connection_up Whether the connection is open (1) or not (0).
# TYPE webmux_connection_up gauge
webmux_connection_up{connection="plc"} 1
webmux_connection_up{connection="sensor"} 0
# HELP webmux_open_failures Configured connections that failed to open at startup.
# TYPE webmux_open_failures gauge
webmux_open_failures 1
`
	err := testutil.CollectAndCompare(c, strings.NewReader(expected),
		"webmux_bytes_received_total", "webmux_connection_up", "webmux_open_failures")
	require.NoError(t, err)
}

func TestCollector_Count(t *testing.T) {
	c := NewCollector(newFakeSource())

	// seven per connection plus the open failure gauge
	assert.Equal(t, 15, testutil.CollectAndCount(c))
	assert.Equal(t, 1, testutil.CollectAndCount(c, "webmux_open_failures"))
}

func TestCollector_Lint(t *testing.T) {
	problems, err := testutil.CollectAndLint(NewCollector(newFakeSource()))
	require.NoError(t, err)
	assert.Empty(t, problems)
}

func TestNewRegistry(t *testing.T) {
	reg := NewRegistry(newFakeSource())

	families, err := reg.Gather()
	require.NoError(t, err)

	names := make(map[string]bool)
	for _, mf := range families {
		names[mf.GetName()] = true
	}
	assert.True(t, names["webmux_dropped_chunks_total"])
	assert.True(t, names["webmux_traffic_log_failures_total"])
	assert.True(t, names["go_goroutines"])
}

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func validConnection(name string) SerialConnectionConfig {
	return SerialConnectionConfig{
		Name:        name,
		Port:        "/dev/ttyUSB0",
		BaudRate:    9600,
		DataBits:    8,
		StopBits:    1,
		Parity:      ParityNone,
		FlowControl: FlowControlNone,
		Enabled:     true,
	}
}

func TestLoad_Valid(t *testing.T) {
	path := writeConfig(t, `
server:
  host: "127.0.0.1"
  port: 8080

serial_connections:
  - name: "test_device"
    port: "/dev/ttyUSB0"
    baud_rate: 115200
    data_bits: 8
    stop_bits: 1
    parity: "none"
    flow_control: "none"
    enabled: true
    logging:
      enabled: false
      path: "./logs/test.log"
    description: "Test device"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1", cfg.Server.Host)
	assert.Equal(t, 8080, cfg.Server.Port)
	require.Len(t, cfg.SerialConnections, 1)

	conn := cfg.SerialConnections[0]
	assert.Equal(t, "test_device", conn.Name)
	assert.Equal(t, 115200, conn.BaudRate)
	assert.Equal(t, 8, conn.DataBits)
	assert.Equal(t, 1, conn.StopBits)
	assert.Equal(t, ParityNone, conn.Parity)
	assert.Equal(t, FlowControlNone, conn.FlowControl)
	assert.True(t, conn.Enabled)
	assert.False(t, conn.Logging.Enabled)
	assert.Equal(t, "Test device", conn.Description)

	// Defaults
	assert.Equal(t, DefaultSubscriberBuffer, cfg.Bridge.SubscriberBuffer)
	assert.Equal(t, DefaultReadTimeout, cfg.Bridge.ReadTimeout)
	assert.Equal(t, 5*time.Second, cfg.Bridge.ShutdownGrace)
	assert.False(t, cfg.Database.Enabled)
	assert.Equal(t, "127.0.0.1:8080", cfg.GetServerAddr())
}

func TestLoad_ConnectionDefaults(t *testing.T) {
	path := writeConfig(t, `
serial_connections:
  - name: "minimal"
    port: "/dev/ttyACM0"
    baud_rate: 9600
    enabled: true
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Len(t, cfg.SerialConnections, 1)
	assert.Equal(t, 8, cfg.SerialConnections[0].DataBits)
	assert.Equal(t, 1, cfg.SerialConnections[0].StopBits)
	assert.Equal(t, ParityNone, cfg.SerialConnections[0].Parity)
	assert.Equal(t, FlowControlNone, cfg.SerialConnections[0].FlowControl)
}

func TestLoad_DuplicateNames(t *testing.T) {
	path := writeConfig(t, `
serial_connections:
  - name: "dup"
    port: "/dev/ttyUSB0"
    baud_rate: 9600
    enabled: true
  - name: "dup"
    port: "/dev/ttyUSB1"
    baud_rate: 9600
    enabled: true
`)

	_, err := Load(path)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrConfigInvalid)
	assert.Contains(t, err.Error(), "duplicate connection name")
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestLoad_InvalidServerPort(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 0
`)
	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "server.port")
}

func TestValidateConnections(t *testing.T) {
	t.Run("Valid", func(t *testing.T) {
		err := ValidateConnections([]SerialConnectionConfig{validConnection("a"), validConnection("b")})
		assert.NoError(t, err)
	})

	t.Run("Empty", func(t *testing.T) {
		assert.NoError(t, ValidateConnections(nil))
	})

	t.Run("DuplicateName", func(t *testing.T) {
		err := ValidateConnections([]SerialConnectionConfig{validConnection("a"), validConnection("a")})
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrConfigInvalid)
	})

	t.Run("ReportsEveryOffendingEntry", func(t *testing.T) {
		badBits := validConnection("bits")
		badBits.DataBits = 9
		badParity := validConnection("parity")
		badParity.Parity = "mark"
		badFlow := validConnection("flow")
		badFlow.FlowControl = "xonxoff"

		err := ValidateConnections([]SerialConnectionConfig{badBits, validConnection("ok"), badParity, badFlow})
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrConfigInvalid)
		assert.Contains(t, err.Error(), "serial_connections[bits]")
		assert.Contains(t, err.Error(), "serial_connections[parity]")
		assert.Contains(t, err.Error(), "serial_connections[flow]")
		assert.NotContains(t, err.Error(), "serial_connections[ok]")
	})

	t.Run("StopBits", func(t *testing.T) {
		conn := validConnection("s")
		conn.StopBits = 3
		assert.ErrorIs(t, ValidateConnections([]SerialConnectionConfig{conn}), ErrConfigInvalid)
	})

	t.Run("EmptyName", func(t *testing.T) {
		conn := validConnection("")
		err := ValidateConnections([]SerialConnectionConfig{conn})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "serial_connections[#0]")
	})

	t.Run("LoggingWithoutPath", func(t *testing.T) {
		conn := validConnection("log")
		conn.Logging.Enabled = true
		assert.ErrorIs(t, ValidateConnections([]SerialConnectionConfig{conn}), ErrConfigInvalid)
	})
}

func TestSerialConnectionConfig_ValidateCollectsAll(t *testing.T) {
	conn := SerialConnectionConfig{}
	err := conn.Validate()
	require.Error(t, err)
	// name, port, baud, data bits, stop bits, parity, flow control
	assert.Len(t, multierr.Errors(err), 7)
}

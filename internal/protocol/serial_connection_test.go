package protocol

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.bug.st/serial"

	"github.com/alexconrey/webmux/internal/config"
)

func baseConfig() *config.SerialConnectionConfig {
	return &config.SerialConnectionConfig{
		Name:        "dev",
		Port:        "/dev/ttyUSB0",
		BaudRate:    115200,
		DataBits:    8,
		StopBits:    1,
		Parity:      config.ParityNone,
		FlowControl: config.FlowControlNone,
		Enabled:     true,
	}
}

func TestBuildMode_Defaults(t *testing.T) {
	mode, err := BuildMode(baseConfig())
	require.NoError(t, err)

	assert.Equal(t, 115200, mode.BaudRate)
	assert.Equal(t, 8, mode.DataBits)
	assert.Equal(t, serial.OneStopBit, mode.StopBits)
	assert.Equal(t, serial.NoParity, mode.Parity)
	assert.Nil(t, mode.InitialStatusBits)
}

func TestBuildMode_Mapping(t *testing.T) {
	cfg := baseConfig()
	cfg.DataBits = 7
	cfg.StopBits = 2
	cfg.Parity = config.ParityEven
	cfg.FlowControl = config.FlowControlHardware

	mode, err := BuildMode(cfg)
	require.NoError(t, err)

	assert.Equal(t, 7, mode.DataBits)
	assert.Equal(t, serial.TwoStopBits, mode.StopBits)
	assert.Equal(t, serial.EvenParity, mode.Parity)
	require.NotNil(t, mode.InitialStatusBits)
	assert.True(t, mode.InitialStatusBits.RTS)
	assert.True(t, mode.InitialStatusBits.DTR)

	cfg.Parity = config.ParityOdd
	mode, err = BuildMode(cfg)
	require.NoError(t, err)
	assert.Equal(t, serial.OddParity, mode.Parity)
}

func TestBuildMode_Unsupported(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*config.SerialConnectionConfig)
	}{
		{"StopBits", func(c *config.SerialConnectionConfig) { c.StopBits = 3 }},
		{"Parity", func(c *config.SerialConnectionConfig) { c.Parity = "mark" }},
		{"FlowControl", func(c *config.SerialConnectionConfig) { c.FlowControl = "dsr" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := baseConfig()
			tt.mutate(cfg)
			_, err := BuildMode(cfg)
			assert.ErrorIs(t, err, ErrUnsupportedMode)
		})
	}
}

func TestOpenSerial_MissingPort(t *testing.T) {
	cfg := baseConfig()
	cfg.Port = "/dev/webmux-does-not-exist"

	_, err := OpenSerial(cfg, 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), cfg.Port)
}

func TestIsPortClosed(t *testing.T) {
	assert.False(t, IsPortClosed(nil))
	assert.False(t, IsPortClosed(fmt.Errorf("boom")))
}

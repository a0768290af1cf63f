package config

import (
	"errors"
	"fmt"
	"time"

	"go.uber.org/multierr"
)

// ErrConfigInvalid is returned when the serial connection set cannot be opened
// as configured. The wrapped error lists every offending entry.
var ErrConfigInvalid = errors.New("invalid configuration")

// Bridge defaults
const (
	DefaultSubscriberBuffer = 256
	DefaultWriteQueue       = 100
	DefaultReadBuffer       = 1024
	DefaultReadTimeout      = 100 * time.Millisecond
	DefaultShutdownGrace    = 5 * time.Second
)

// Parity values
const (
	ParityNone = "none"
	ParityOdd  = "odd"
	ParityEven = "even"
)

// Flow control values
const (
	FlowControlNone     = "none"
	FlowControlSoftware = "software"
	FlowControlHardware = "hardware"
)

// SerialConnectionConfig describes one serial endpoint exposed by the gateway
type SerialConnectionConfig struct {
	Name        string           `mapstructure:"name" json:"name"`
	Port        string           `mapstructure:"port" json:"port"`
	BaudRate    int              `mapstructure:"baud_rate" json:"baud_rate"`
	DataBits    int              `mapstructure:"data_bits" json:"data_bits"`
	StopBits    int              `mapstructure:"stop_bits" json:"stop_bits"`
	Parity      string           `mapstructure:"parity" json:"parity"`
	FlowControl string           `mapstructure:"flow_control" json:"flow_control"`
	Enabled     bool             `mapstructure:"enabled" json:"enabled"`
	Logging     TrafficLogConfig `mapstructure:"logging" json:"logging"`
	Description string           `mapstructure:"description" json:"description"`
}

// TrafficLogConfig enables the per-connection RX/TX traffic log
type TrafficLogConfig struct {
	Enabled bool   `mapstructure:"enabled" json:"enabled"`
	Path    string `mapstructure:"path" json:"path"`
}

// Validate checks a single connection entry
func (c *SerialConnectionConfig) Validate() error {
	var err error
	if c.Name == "" {
		err = multierr.Append(err, errors.New("name is required"))
	}
	if c.Port == "" {
		err = multierr.Append(err, errors.New("port is required"))
	}
	if c.BaudRate <= 0 {
		err = multierr.Append(err, fmt.Errorf("baud_rate must be positive, got %d", c.BaudRate))
	}
	if c.DataBits < 5 || c.DataBits > 8 {
		err = multierr.Append(err, fmt.Errorf("data_bits must be 5, 6, 7 or 8, got %d", c.DataBits))
	}
	if c.StopBits != 1 && c.StopBits != 2 {
		err = multierr.Append(err, fmt.Errorf("stop_bits must be 1 or 2, got %d", c.StopBits))
	}
	switch c.Parity {
	case ParityNone, ParityOdd, ParityEven:
	default:
		err = multierr.Append(err, fmt.Errorf("parity must be none, odd or even, got %q", c.Parity))
	}
	switch c.FlowControl {
	case FlowControlNone, FlowControlSoftware, FlowControlHardware:
	default:
		err = multierr.Append(err, fmt.Errorf("flow_control must be none, software or hardware, got %q", c.FlowControl))
	}
	if c.Logging.Enabled && c.Logging.Path == "" {
		err = multierr.Append(err, errors.New("logging.path is required when logging is enabled"))
	}
	return err
}

// ValidateConnections validates every entry and the uniqueness of names. All
// problems are reported together, wrapped in ErrConfigInvalid.
func ValidateConnections(conns []SerialConnectionConfig) error {
	var errs error
	seen := make(map[string]int, len(conns))

	for i := range conns {
		conn := &conns[i]
		label := conn.Name
		if label == "" {
			label = fmt.Sprintf("#%d", i)
		}

		if err := conn.Validate(); err != nil {
			for _, e := range multierr.Errors(err) {
				errs = multierr.Append(errs, fmt.Errorf("serial_connections[%s]: %w", label, e))
			}
		}

		if conn.Name == "" {
			continue
		}
		if first, dup := seen[conn.Name]; dup {
			errs = multierr.Append(errs, fmt.Errorf("serial_connections[%s]: duplicate connection name (first defined at #%d)", conn.Name, first))
			continue
		}
		seen[conn.Name] = i
	}

	if errs != nil {
		return fmt.Errorf("%w: %w", ErrConfigInvalid, errs)
	}
	return nil
}

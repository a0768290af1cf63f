// internal/protocol/serial_connection.go
package protocol

import (
	"errors"
	"fmt"
	"time"

	"go.bug.st/serial"

	"github.com/alexconrey/webmux/internal/config"
)

// SerialPort is the subset of serial.Port the bridge needs
type SerialPort interface {
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
	Close() error
}

// ErrUnsupportedMode is returned when a config cannot be mapped to a serial mode
var ErrUnsupportedMode = errors.New("unsupported serial mode")

// BuildMode maps a connection config onto a go.bug.st/serial mode.
//
// The driver has no RTS/CTS or XON/XOFF handshake support. Hardware flow
// control raises RTS and DTR on open so that devices waiting for them start
// talking; software flow control is passed through untouched.
func BuildMode(cfg *config.SerialConnectionConfig) (*serial.Mode, error) {
	mode := &serial.Mode{
		BaudRate: cfg.BaudRate,
		DataBits: cfg.DataBits,
	}

	switch cfg.StopBits {
	case 1:
		mode.StopBits = serial.OneStopBit
	case 2:
		mode.StopBits = serial.TwoStopBits
	default:
		return nil, fmt.Errorf("%w: stop bits %d", ErrUnsupportedMode, cfg.StopBits)
	}

	// Set parity
	switch cfg.Parity {
	case config.ParityNone, "":
		mode.Parity = serial.NoParity
	case config.ParityOdd:
		mode.Parity = serial.OddParity
	case config.ParityEven:
		mode.Parity = serial.EvenParity
	default:
		return nil, fmt.Errorf("%w: parity %q", ErrUnsupportedMode, cfg.Parity)
	}

	switch cfg.FlowControl {
	case config.FlowControlHardware:
		mode.InitialStatusBits = &serial.ModemOutputBits{RTS: true, DTR: true}
	case config.FlowControlNone, config.FlowControlSoftware, "":
	default:
		return nil, fmt.Errorf("%w: flow control %q", ErrUnsupportedMode, cfg.FlowControl)
	}

	return mode, nil
}

// OpenSerial opens the port described by cfg. Reads on the returned port
// return (0, nil) after readTimeout so the caller can observe shutdown.
func OpenSerial(cfg *config.SerialConnectionConfig, readTimeout time.Duration) (SerialPort, error) {
	mode, err := BuildMode(cfg)
	if err != nil {
		return nil, err
	}

	port, err := serial.Open(cfg.Port, mode)
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port %s: %w", cfg.Port, err)
	}

	if readTimeout > 0 {
		if err := port.SetReadTimeout(readTimeout); err != nil {
			port.Close()
			return nil, fmt.Errorf("failed to set read timeout: %w", err)
		}
	}

	return port, nil
}

// IsPortClosed reports whether err is the driver's PortClosed error. On Linux
// this is also what a read returns once the device has been unplugged.
func IsPortClosed(err error) bool {
	var portErr *serial.PortError
	if errors.As(err, &portErr) {
		return portErr.Code() == serial.PortClosed
	}
	return false
}

package connection

import (
	"errors"
	"fmt"
	"syscall"
)

var (
	// ErrConnectionUnavailable is returned by Send and Subscribe on a
	// connection that is not open.
	ErrConnectionUnavailable = errors.New("connection unavailable")

	// ErrPortOpenFailed is returned when the serial port cannot be acquired
	ErrPortOpenFailed = errors.New("failed to open port")

	// ErrIOFault marks a read or write failure that faulted the connection
	ErrIOFault = errors.New("serial i/o fault")

	// ErrDeviceLost is the fault raised when the device disappears, e.g. a
	// USB adapter being unplugged. It matches ErrIOFault too.
	ErrDeviceLost = fmt.Errorf("device disconnected: %w", ErrIOFault)
)

func isTransient(err error) bool {
	return errors.Is(err, syscall.EINTR) || errors.Is(err, syscall.EAGAIN)
}

package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.bug.st/serial"
	"go.uber.org/zap"

	"github.com/alexconrey/webmux/internal/cli"
	"github.com/alexconrey/webmux/internal/config"
	"github.com/alexconrey/webmux/internal/utils"
)

const mockReadTimeout = 100 * time.Millisecond

var (
	mockBaud      int
	mockTelemetry time.Duration
	mockEcho      bool
	mockVerbose   bool
)

var mockCmd = &cobra.Command{
	Use:   "mock <port> <iot|mcu|plc>",
	Short: "Simulate a serial device on a port",
	Long: `Simulate a serial device on a port.

Device types:
  iot (sensor)        temperature/humidity sensor, 115200 baud
  mcu (embedded)      Arduino-like microcontroller, 9600 baud
  plc (industrial)    industrial PLC controller, 19200 baud

The device answers STATUS, VERSION, ID and HELP plus its own commands, and
sends telemetry on an interval. To test without hardware, create a virtual
port pair with:
  socat -d -d pty,raw,echo=0 pty,raw,echo=0`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		portName := args[0]
		profile, err := cli.LookupProfile(args[1])
		if err != nil {
			return err
		}

		baud := mockBaud
		if baud <= 0 {
			baud = profile.DefaultBaud
		}

		level := "info"
		if mockVerbose {
			level = "debug"
		}
		logger, err := utils.NewLogger(&config.LoggingConfig{Level: level, Format: "console", Output: "stdout"})
		if err != nil {
			return err
		}
		defer logger.Sync()

		port, err := serial.Open(portName, &serial.Mode{BaudRate: baud})
		if err != nil {
			return fmt.Errorf("failed to open %s: %w", portName, err)
		}
		defer port.Close()

		if err := port.SetReadTimeout(mockReadTimeout); err != nil {
			return fmt.Errorf("failed to set read timeout: %w", err)
		}

		logger.Info("Mock device ready",
			zap.String("device", profile.Title),
			zap.String("port", portName),
			zap.Int("baud_rate", baud),
			zap.Duration("telemetry", mockTelemetry),
			zap.Bool("echo", mockEcho),
		)

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		device := cli.NewMockDevice(profile, port, cli.MockOptions{
			Telemetry: mockTelemetry,
			Echo:      mockEcho,
		}, logger)
		return device.Run(ctx)
	},
}

func init() {
	rootCmd.AddCommand(mockCmd)

	flags := mockCmd.Flags()
	flags.IntVarP(&mockBaud, "baud", "b", 0, "baud rate (default depends on device type)")
	flags.DurationVarP(&mockTelemetry, "telemetry", "t", cli.DefaultTelemetryInterval, "telemetry interval, 0 disables it")
	flags.BoolVar(&mockEcho, "echo", false, "echo received data back")
	flags.BoolVarP(&mockVerbose, "verbose", "v", false, "log raw traffic and telemetry")
}

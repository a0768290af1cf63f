// cmd/webmux-cli/main.go
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/alexconrey/webmux/internal/cli"
)

var (
	endpoint = cli.Endpoint{Host: "127.0.0.1", Port: 8080}
	timeout  time.Duration
)

var rootCmd = &cobra.Command{
	Use:   "webmux-cli",
	Short: "Talk to serial devices through a webmux server",
	Long: `webmux-cli connects to serial devices exposed by a webmux server.

Open an interactive terminal on a device, inspect connections and their
traffic counters, send one-off payloads, list local serial ports, or run a
simulated device on a serial port for testing.

Example usage:
  webmux-cli connect -d plc
  webmux-cli send plc "STATUS\r\n"
  webmux-cli mock /dev/pts/3 iot --telemetry 2s`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&endpoint.Host, "host", "H", endpoint.Host, "webmux server host")
	flags.IntVarP(&endpoint.Port, "port", "p", endpoint.Port, "webmux server port")
	flags.BoolVarP(&endpoint.TLS, "tls", "s", false, "use https/wss")
	flags.DurationVar(&timeout, "timeout", cli.DefaultTimeout, "timeout for REST calls")
}

func newClient() *cli.Client {
	return cli.NewClient(endpoint.BaseURL(), timeout)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/alexconrey/webmux/internal/cli"
)

var connectDevice string

var connectCmd = &cobra.Command{
	Use:   "connect -d <name>",
	Short: "Open an interactive terminal on a serial connection",
	Long: `Open an interactive terminal on a serial connection.

Each line typed is sent to the device terminated with CRLF. Everything the
device sends is printed as it arrives. Ctrl+C or end of input disconnects.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		url := endpoint.TerminalURL(connectDevice)
		fmt.Fprintf(os.Stderr, "Connecting to %s\n", url)

		term, err := cli.DialTerminal(ctx, url, os.Stdout)
		if err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "Connected to %s. Press Ctrl+C to disconnect.\n", connectDevice)

		if err := term.Run(ctx, os.Stdin); err != nil {
			return err
		}
		fmt.Fprintln(os.Stderr, "\r\nDisconnected")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(connectCmd)

	connectCmd.Flags().StringVarP(&connectDevice, "device", "d", "", "serial connection name")
	connectCmd.MarkFlagRequired("device")
}


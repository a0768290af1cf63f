package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List the serial connections of the server",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		conns, err := newClient().ListConnections(cmd.Context())
		if err != nil {
			return err
		}

		if len(conns) == 0 {
			fmt.Println("No serial connections")
			return nil
		}
		for _, c := range conns {
			fmt.Println(c.Name)
		}
		return nil
	},
}

var statsCmd = &cobra.Command{
	Use:   "stats <name>",
	Short: "Show the traffic counters of a connection",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := newClient().Stats(cmd.Context(), args[0])
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintf(w, "Name:\t%s\n", s.Name)
		fmt.Fprintf(w, "Port:\t%s\n", s.Port)
		fmt.Fprintf(w, "State:\t%s\n", s.State)
		fmt.Fprintf(w, "Connected:\t%t\n", s.IsConnected)
		fmt.Fprintf(w, "Uptime:\t%ds\n", s.UptimeSeconds)
		fmt.Fprintf(w, "Bytes received:\t%d\n", s.BytesReceived)
		fmt.Fprintf(w, "Bytes sent:\t%d\n", s.BytesSent)
		fmt.Fprintf(w, "Subscribers:\t%d\n", s.Subscribers)
		fmt.Fprintf(w, "Dropped chunks:\t%d\n", s.DroppedChunks)
		fmt.Fprintf(w, "Log failures:\t%d\n", s.LogFailures)
		return w.Flush()
	},
}

var sendFormat string

var sendCmd = &cobra.Command{
	Use:   "send <name> <data>",
	Short: "Send a payload to a connection",
	Long: `Send a payload to a connection.

The payload is interpreted according to --format: text is sent as-is,
hex accepts pairs of hex digits with optional whitespace, base64 is
standard padded base64.

Example usage:
  webmux-cli send plc STATUS
  webmux-cli send plc "0d0a" --format hex`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		result, err := newClient().Send(cmd.Context(), args[0], args[1], sendFormat)
		if err != nil {
			return err
		}

		fmt.Printf("Sent %d bytes to %s\n", result.Bytes, result.Connection)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(sendCmd)

	sendCmd.Flags().StringVarP(&sendFormat, "format", "f", "text", "payload format: text, hex or base64")
}

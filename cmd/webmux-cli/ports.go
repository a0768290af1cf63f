package main

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/alexconrey/webmux/internal/cli"
	"github.com/alexconrey/webmux/internal/protocol"
)

var portsRemote bool

var portsCmd = &cobra.Command{
	Use:   "ports",
	Short: "List serial ports",
	Long: `List serial ports on this machine.

With --remote the ports of the webmux server host are listed instead.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		var ports []cli.PortInfo

		if portsRemote {
			remote, err := newClient().Ports(cmd.Context())
			if err != nil {
				return err
			}
			ports = remote
		} else {
			local, err := protocol.ListPorts()
			if err != nil {
				return err
			}
			for _, p := range local {
				ports = append(ports, cli.PortInfo(p))
			}
		}

		if len(ports) == 0 {
			fmt.Println("No serial ports found")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "PORT\tUSB\tVID:PID\tADAPTER\tSERIAL\tPRODUCT")
		for _, p := range ports {
			ids := ""
			if p.IsUSB {
				ids = p.VID + ":" + p.PID
			}
			adapter := strings.TrimSpace(p.Vendor + " " + p.Adapter)
			fmt.Fprintf(w, "%s\t%t\t%s\t%s\t%s\t%s\n", p.Name, p.IsUSB, ids, adapter, p.SerialNumber, p.Product)
		}
		return w.Flush()
	},
}

func init() {
	rootCmd.AddCommand(portsCmd)

	portsCmd.Flags().BoolVarP(&portsRemote, "remote", "r", false, "list ports of the server host")
}

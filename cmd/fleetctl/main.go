// Command fleetctl is a thin inspection tool over discoverd's on-disk
// state: it never touches the multicast wire itself, only config.json,
// the same way the teacher's cmd/surp never touches a UDP socket
// directly and only calls into pkg/surp.
package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/fleetcast/discoverd/cmd/fleetctl/commands"
)

func main() {
	root := &cobra.Command{
		Use:   "fleetctl",
		Short: "fleetctl inspects and edits a discoverd instance's persisted state.",
		Long: `fleetctl reads config.json written by a discoverd instance to list the
known fleet and inspect or edit configuration. It does not join the
multicast group itself.

Environment variable FLEETCTL_CONFIG overrides the default config.json
path.`,
		SilenceUsage: true,
	}

	root.AddCommand(
		commands.NewNodesCommand(),
		commands.NewConfigCommand(),
		commands.NewVersionCommand(),
	)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

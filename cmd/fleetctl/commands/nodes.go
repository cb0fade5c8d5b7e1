package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fleetcast/discoverd/internal/config"
)

// NewNodesCommand lists the last-known roster persisted by a running
// discoverd instance, in the teacher's `list` command idiom
// (cmd/surp/commands/list.go).
func NewNodesCommand() *cobra.Command {
	var activeOnly bool

	cmd := &cobra.Command{
		Use:   "nodes",
		Short: "List the last-known fleet roster",
		Long:  `Reads config.json's node_list and prints each node's id, name, address and last-seen time.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := config.Open(configPath(), zap.NewNop())
			if err != nil {
				return err
			}
			cfg := store.Get()

			for _, n := range cfg.NodeList {
				if activeOnly && !n.Active {
					continue
				}
				lastSeen := "never"
				if n.HitTimestamp > 0 {
					lastSeen = time.UnixMilli(int64(n.HitTimestamp)).Format(time.RFC3339)
				}
				fmt.Printf("%d\t%s\t%s:%d\tactive=%t\tlast_seen=%s\n", n.ID, n.Name, n.IPAddress, n.Port, n.Active, lastSeen)
			}
			return nil
		},
	}

	cmd.Flags().BoolVarP(&activeOnly, "active", "a", false, "only print currently active nodes")

	return cmd
}

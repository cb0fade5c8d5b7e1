package commands

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fleetcast/discoverd/internal/config"
)

// NewConfigCommand prints and edits the persisted Config, in the teacher's
// `get`/`set` command idiom (cmd/surp/commands/get.go, set.go).
func NewConfigCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Show the persisted daemon config",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := config.Open(configPath(), zap.NewNop())
			if err != nil {
				return err
			}
			cfg := store.Get()
			fmt.Printf("id: %d\n", cfg.ID)
			fmt.Printf("node_name: %s\n", cfg.NodeName)
			fmt.Printf("board_ip: %s\n", cfg.BoardIP)
			fmt.Printf("board_port: %d\n", cfg.BoardPort)
			fmt.Printf("node_timeout: %d\n", cfg.NodeTimeout)
			fmt.Printf("node_list: %d known node(s)\n", len(cfg.NodeList))
			return nil
		},
	}

	cmd.AddCommand(newConfigSetCommand())

	return cmd
}

func newConfigSetCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "set <field> <value>",
		Short: "Set a single config field (node_name, board_ip, board_port, node_timeout)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := config.Open(configPath(), zap.NewNop())
			if err != nil {
				return err
			}

			field, value := args[0], args[1]
			switch field {
			case "node_name":
				return store.SetNodeName(value)
			case "board_ip":
				return store.SetBoardIP(value)
			case "board_port":
				port, err := strconv.ParseUint(value, 10, 16)
				if err != nil {
					return fmt.Errorf("board_port must be a uint16: %w", err)
				}
				return store.SetBoardPort(uint16(port))
			case "node_timeout":
				seconds, err := strconv.ParseUint(value, 10, 16)
				if err != nil {
					return fmt.Errorf("node_timeout must be a uint16: %w", err)
				}
				return store.SetNodeTimeout(uint16(seconds))
			default:
				return fmt.Errorf("unknown field %q", field)
			}
		},
	}
}

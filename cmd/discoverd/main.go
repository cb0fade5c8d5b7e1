// Command discoverd runs the fleet discovery daemon: it loads
// config.json, binds the multicast transport, seeds and runs the node
// registry, and keeps announcing/listening/sweeping until it is killed.
//
// Structured as a single cobra root command, in the shape of the teacher
// repository's cmd/surp/main.go.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fleetcast/discoverd/internal/config"
	"github.com/fleetcast/discoverd/internal/discover"
	"github.com/fleetcast/discoverd/internal/logging"
	"github.com/fleetcast/discoverd/internal/registry"
	"github.com/fleetcast/discoverd/internal/transport"
)

func main() {
	var configPath string
	var logPath string

	root := &cobra.Command{
		Use:   "discoverd",
		Short: "discoverd advertises this host and tracks the reachable fleet over UDP multicast.",
		Long: `discoverd is the peer-discovery and presence-tracking daemon for an
ad-hoc local-network fleet of screen-broadcasting nodes.

It periodically advertises itself over IPv4 multicast, listens for
advertisements from other nodes, and maintains a shared view of the
currently-reachable fleet, persisted to config.json.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), configPath, logPath)
		},
	}

	root.Flags().StringVar(&configPath, "config", "config.json", "path to the persisted config file")
	root.Flags().StringVar(&logPath, "log-file", "discoverd.log", "path to the rotating log file")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := root.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func run(ctx context.Context, configPath, logPath string) error {
	logOpts := logging.DefaultOptions()
	logOpts.FilePath = logPath
	log := logging.New(logOpts)
	defer log.Sync() //nolint:errcheck

	store, err := config.Open(configPath, log)
	if err != nil {
		return err
	}
	cfg := store.Get()

	t, err := transport.New(int(cfg.BoardPort), cfg.BoardIP, int(cfg.BoardPort), log)
	if err != nil {
		log.Fatal("failed to start multicast transport", zap.Error(err))
	}
	defer t.Close()

	reg := registry.New(store, log)
	reg.Seed(cfg.NodeList)

	d := discover.NewDaemon(t, reg, store, cfg, log)

	go reg.Run(ctx)
	go d.RunSweeper(ctx)
	go d.RunListen(ctx)
	go d.RunAnnounce(ctx)

	log.Info("discoverd started",
		zap.Int64("node_id", cfg.ID),
		zap.String("board_ip", cfg.BoardIP),
		zap.Uint16("board_port", cfg.BoardPort),
	)

	<-ctx.Done()
	log.Info("discoverd shutting down")
	return nil
}

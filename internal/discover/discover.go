// Package discover wires the transport and registry together into the
// two long-lived loops spec.md calls Announce and Listen: periodically
// advertise the local node, and decode everything heard into registry
// commands.
//
// Grounded in the original Rust implementation's
// discover/src/broadcast_server.rs (notify_node / listen_notify).
package discover

import (
	"context"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/fleetcast/discoverd/internal/config"
	"github.com/fleetcast/discoverd/internal/frame"
	"github.com/fleetcast/discoverd/internal/node"
	"github.com/fleetcast/discoverd/internal/registry"
	"github.com/fleetcast/discoverd/internal/snowflake"
	"github.com/fleetcast/discoverd/internal/transport"
)

// announcePeriod is how often the local node advertises itself, per spec.
const announcePeriod = 3 * time.Second

// Daemon bundles everything needed to run the discovery subsystem for one
// process: the transport it sends/receives over, the registry it feeds,
// and its own self-description.
type Daemon struct {
	transport *transport.Transport
	registry  *registry.Registry
	store     *config.Store
	ids       *snowflake.Generator
	log       *zap.Logger

	selfMu sync.Mutex
	self   node.Node
}

// NewDaemon builds a daemon from a loaded config and a bound transport.
// The self node is created fresh on every start (hit_timestamp=0, active),
// per spec's Node.new_self.
func NewDaemon(t *transport.Transport, reg *registry.Registry, store *config.Store, cfg config.Config, log *zap.Logger) *Daemon {
	return &Daemon{
		transport: t,
		registry:  reg,
		store:     store,
		ids:       snowflake.Default(),
		log:       log,
		self:      node.NewSelf(cfg.ID, cfg.NodeName, cfg.BoardPort),
	}
}

// Self returns a copy of the local node's current self-description.
func (d *Daemon) Self() node.Node {
	d.selfMu.Lock()
	defer d.selfMu.Unlock()
	return d.self
}

// RunAnnounce is the announce loop: every 3s, snapshot the self node,
// encode it, and send it as a fresh frame. It runs until ctx is canceled,
// which in practice only happens at process shutdown.
func (d *Daemon) RunAnnounce(ctx context.Context) {
	ticker := time.NewTicker(announcePeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.announceOnce()
		}
	}
}

func (d *Daemon) announceOnce() {
	self := d.Self()

	data, err := self.Encode()
	if err != nil {
		d.log.Error("announce: failed to encode self node", zap.Error(err))
		return
	}

	id := strconv.FormatInt(d.ids.Next(), 10)
	d.transport.Send(frame.New(id, data))
}

// RunListen is the listen loop: decode every complete frame heard into a
// Node and forward it to the registry as an Active command. It never
// exits on its own; decode failures are dropped and logged.
func (d *Daemon) RunListen(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		f, ok := d.transport.Receive()
		if !ok {
			continue
		}

		n, err := node.Decode(f.Data)
		if err != nil {
			d.log.Debug("listen: dropping undecodable node payload", zap.Error(err))
			continue
		}

		d.registry.Send(registry.Command{Op: registry.Active, Node: n})
	}
}

// RunSweeper delegates to the registry's sweeper, reading node_timeout
// fresh from the config store on every tick.
func (d *Daemon) RunSweeper(ctx context.Context) {
	d.registry.RunSweeper(ctx, func() time.Duration {
		return time.Duration(d.store.Get().NodeTimeout) * time.Second
	})
}

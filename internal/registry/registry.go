// Package registry is the node holder: the single-consumer command loop
// that owns the authoritative roster of known nodes, plus the expiry
// sweeper that demotes stale active nodes to inactive.
//
// Grounded in the original Rust implementation's
// discover/src/node_holder.rs (command enum, channel capacity 100,
// retain-then-push per-id upsert, fire-and-forget config fan-out per
// mutation) and in the teacher repository's pkg/surp.go for the idiom of
// serializing all mutation through channels rather than holding a lock
// across I/O.
package registry

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/fleetcast/discoverd/internal/config"
	"github.com/fleetcast/discoverd/internal/node"
)

// Op is one of the four roster mutations the node holder understands.
type Op int

const (
	// Active upserts a node as reachable and bumps its hit_timestamp.
	Active Op = iota
	// InActive upserts a node as known-but-timed-out, leaving hit_timestamp
	// untouched.
	InActive
	// Remove deletes a node from the roster outright.
	Remove
	// Init upserts a node unchanged, used only to seed the roster from a
	// persisted snapshot at startup.
	Init
)

// Command is a single roster mutation request.
type Command struct {
	Op   Op
	Node node.Node
}

// commandQueueCapacity is the bounded channel capacity: producers await
// capacity rather than dropping commands under burst load, per spec.
const commandQueueCapacity = 100

// sweepInterval is how often the expiry sweeper looks for stale nodes.
const sweepInterval = 6 * time.Second

// Registry is the node holder. All roster mutation funnels through Run;
// Snapshot takes a read-locked copy for callers that only look.
type Registry struct {
	mu       sync.RWMutex
	nodes    []node.Node
	commands chan Command
	store    *config.Store
	log      *zap.Logger
}

// New returns an empty registry. Seed the roster (e.g. from persisted
// config) before traffic starts, then run Run in its own goroutine for the
// daemon's lifetime.
func New(store *config.Store, log *zap.Logger) *Registry {
	return &Registry{
		commands: make(chan Command, commandQueueCapacity),
		store:    store,
		log:      log,
	}
}

// Send enqueues a mutation. It blocks until the channel has capacity,
// which is the backpressure the spec calls for under bursty arrival.
func (r *Registry) Send(cmd Command) {
	r.commands <- cmd
}

// Seed upserts every node in nodes via Init commands, used once at startup
// to restore the last-known roster before any network traffic arrives.
func (r *Registry) Seed(nodes []node.Node) {
	for _, n := range nodes {
		r.Send(Command{Op: Init, Node: n})
	}
}

// Snapshot returns a copy of the current roster.
func (r *Registry) Snapshot() []node.Node {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]node.Node, len(r.nodes))
	copy(out, r.nodes)
	return out
}

// Run is the command loop: the sole writer of the roster. It applies
// commands in arrival order until ctx is canceled.
func (r *Registry) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case cmd, ok := <-r.commands:
			if !ok {
				return
			}
			r.apply(cmd)
		}
	}
}

func (r *Registry) apply(cmd Command) {
	r.mu.Lock()

	switch cmd.Op {
	case Remove:
		r.removeLocked(cmd.Node.ID)
	case InActive:
		n := cmd.Node
		r.removeLocked(n.ID)
		n.Deactivate()
		r.nodes = append(r.nodes, n)
	case Active:
		n := cmd.Node
		r.removeLocked(n.ID)
		n.Activate()
		n.UpdateHitTimestamp()
		r.nodes = append(r.nodes, n)
	case Init:
		n := cmd.Node
		r.removeLocked(n.ID)
		r.nodes = append(r.nodes, n)
	}

	snapshot := make([]node.Node, len(r.nodes))
	copy(snapshot, r.nodes)
	r.mu.Unlock()

	r.fanOut(snapshot)
}

// removeLocked deletes any entry with a matching id. Callers must hold
// r.mu for writing.
func (r *Registry) removeLocked(id int64) {
	kept := r.nodes[:0]
	for _, n := range r.nodes {
		if n.ID != id {
			kept = append(kept, n)
		}
	}
	r.nodes = kept
}

// fanOut writes the new roster into the config store on its own
// goroutine, so a slow flush never stalls command processing.
func (r *Registry) fanOut(snapshot []node.Node) {
	go func() {
		if err := r.store.SetNodeList(snapshot); err != nil {
			r.log.Error("registry: config fan-out failed", zap.Error(err))
		}
	}()
}

// RunSweeper periodically demotes active nodes that have exceeded
// timeout() to inactive, by emitting InActive commands back into Run. It
// never mutates the roster directly. timeout is read fresh on every tick
// so operators can retune node_timeout without a restart.
func (r *Registry) RunSweeper(ctx context.Context, timeout func() time.Duration) {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.sweepOnce(timeout())
		}
	}
}

func (r *Registry) sweepOnce(timeout time.Duration) {
	now := time.Now().UnixMilli()

	r.mu.RLock()
	var stale []node.Node
	for _, n := range r.nodes {
		if !n.Active {
			continue
		}
		age := time.Duration(now-int64(n.HitTimestamp)) * time.Millisecond
		if age > timeout {
			stale = append(stale, n)
		}
	}
	r.mu.RUnlock()

	for _, n := range stale {
		r.log.Debug("sweeper: marking node inactive", zap.Int64("node_id", n.ID), zap.Duration("timeout", timeout))
		r.Send(Command{Op: InActive, Node: n})
	}
}

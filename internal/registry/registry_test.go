package registry

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fleetcast/discoverd/internal/config"
	"github.com/fleetcast/discoverd/internal/node"
)

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	store, err := config.Open(path, zap.NewNop())
	require.NoError(t, err)
	return New(store, zap.NewNop())
}

func runFor(t *testing.T, r *Registry) context.CancelFunc {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	go r.Run(ctx)
	return cancel
}

// waitFor polls Snapshot until pred is satisfied or the deadline passes.
func waitFor(t *testing.T, r *Registry, pred func([]node.Node) bool) []node.Node {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		snap := r.Snapshot()
		if pred(snap) {
			return snap
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
	return nil
}

func TestActiveUpsertIsUniqueByID(t *testing.T) {
	r := newTestRegistry(t)
	defer runFor(t, r)()

	n := node.NewSelf(1, "board", 8081)
	r.Send(Command{Op: Active, Node: n})
	r.Send(Command{Op: Active, Node: n})

	snap := waitFor(t, r, func(ns []node.Node) bool { return len(ns) == 1 })
	require.Len(t, snap, 1)
	require.Equal(t, n.ID, snap[0].ID)
}

func TestActiveSetsHitTimestampMonotonically(t *testing.T) {
	r := newTestRegistry(t)
	defer runFor(t, r)()

	n := node.NewSelf(2, "board", 8081)
	r.Send(Command{Op: Active, Node: n})
	first := waitFor(t, r, func(ns []node.Node) bool { return len(ns) == 1 })[0].HitTimestamp

	time.Sleep(5 * time.Millisecond)
	r.Send(Command{Op: Active, Node: n})
	second := waitFor(t, r, func(ns []node.Node) bool {
		return len(ns) == 1 && ns[0].HitTimestamp > first
	})[0].HitTimestamp

	require.Greater(t, second, first)
}

func TestInActiveLeavesHitTimestampUntouched(t *testing.T) {
	r := newTestRegistry(t)
	defer runFor(t, r)()

	n := node.NewSelf(3, "board", 8081)
	r.Send(Command{Op: Active, Node: n})
	active := waitFor(t, r, func(ns []node.Node) bool { return len(ns) == 1 })[0]

	r.Send(Command{Op: InActive, Node: active})
	snap := waitFor(t, r, func(ns []node.Node) bool { return len(ns) == 1 && !ns[0].Active })

	require.Equal(t, active.HitTimestamp, snap[0].HitTimestamp)
	require.False(t, snap[0].Active)
}

func TestRemoveOverridesAnyState(t *testing.T) {
	r := newTestRegistry(t)
	defer runFor(t, r)()

	n := node.NewSelf(4, "board", 8081)
	r.Send(Command{Op: Active, Node: n})
	waitFor(t, r, func(ns []node.Node) bool { return len(ns) == 1 })

	r.Send(Command{Op: Remove, Node: n})
	waitFor(t, r, func(ns []node.Node) bool { return len(ns) == 0 })
}

func TestSeedInitializesRosterUnchanged(t *testing.T) {
	r := newTestRegistry(t)
	defer runFor(t, r)()

	seeded := []node.Node{
		node.NewSelf(5, "a", 100),
		node.NewSelf(6, "b", 200),
	}
	r.Seed(seeded)

	snap := waitFor(t, r, func(ns []node.Node) bool { return len(ns) == 2 })
	require.ElementsMatch(t, seeded, snap)
}

func TestSweepDemotesStaleActiveNodesOnly(t *testing.T) {
	r := newTestRegistry(t)
	defer runFor(t, r)()

	stale := node.NewSelf(7, "stale", 8081)
	stale.HitTimestamp = uint64(time.Now().Add(-time.Hour).UnixMilli())
	stale.Active = true

	fresh := node.NewSelf(8, "fresh", 8081)
	fresh.UpdateHitTimestamp()
	fresh.Active = true

	r.Send(Command{Op: Init, Node: stale})
	r.Send(Command{Op: Init, Node: fresh})
	waitFor(t, r, func(ns []node.Node) bool { return len(ns) == 2 })

	r.sweepOnce(time.Minute)

	snap := waitFor(t, r, func(ns []node.Node) bool {
		if len(ns) != 2 {
			return false
		}
		for _, n := range ns {
			if n.ID == stale.ID && n.Active {
				return false
			}
			if n.ID == fresh.ID && !n.Active {
				return false
			}
		}
		return true
	})

	for _, n := range snap {
		if n.ID == stale.ID {
			require.False(t, n.Active)
		}
		if n.ID == fresh.ID {
			require.True(t, n.Active)
		}
	}
}

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fleetcast/discoverd/internal/node"
)

func newTestStore(t *testing.T) (*Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	s, err := Open(path, zap.NewNop())
	require.NoError(t, err)
	return s, path
}

func TestOpenMaterializesDefaultWhenFileMissing(t *testing.T) {
	s, path := newTestStore(t)

	cfg := s.Get()
	require.Equal(t, defaultBoardIP, cfg.BoardIP)
	require.EqualValues(t, defaultBoardPort, cfg.BoardPort)
	require.EqualValues(t, defaultNodeTimeout, cfg.NodeTimeout)
	require.NotZero(t, cfg.ID)

	require.FileExists(t, path)
}

func TestOpenMaterializesDefaultWhenFileCorrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte("not json"), 0o644))

	s, err := Open(path, zap.NewNop())
	require.NoError(t, err)

	cfg := s.Get()
	require.Equal(t, defaultBoardIP, cfg.BoardIP)
}

func TestSettersPersistAndAreReadBack(t *testing.T) {
	s, _ := newTestStore(t)

	require.NoError(t, s.SetNodeName("board-7"))
	require.NoError(t, s.SetBoardIP("224.0.0.9"))
	require.NoError(t, s.SetBoardPort(9000))
	require.NoError(t, s.SetNodeTimeout(30))

	cfg := s.Get()
	require.Equal(t, "board-7", cfg.NodeName)
	require.Equal(t, "224.0.0.9", cfg.BoardIP)
	require.EqualValues(t, 9000, cfg.BoardPort)
	require.EqualValues(t, 30, cfg.NodeTimeout)
}

func TestSetNodeListRoundTrips(t *testing.T) {
	s, _ := newTestStore(t)

	nodes := []node.Node{
		node.NewSelf(1, "a", 100),
		node.NewSelf(2, "b", 200),
	}
	require.NoError(t, s.SetNodeList(nodes))

	cfg := s.Get()
	require.Equal(t, nodes, cfg.NodeList)
}

func TestInMemoryStateRemainsAuthoritativeWhenWriteFails(t *testing.T) {
	s, _ := newTestStore(t)

	// Point the store at a path whose directory doesn't exist so every
	// write fails, without disturbing the in-memory copy already loaded.
	s.path = filepath.Join(t.TempDir(), "missing-dir", "config.json")

	err := s.SetNodeName("still-applied")
	require.Error(t, err)

	s.mu.Lock()
	name := s.cfg.NodeName
	s.mu.Unlock()
	require.Equal(t, "still-applied", name)
}

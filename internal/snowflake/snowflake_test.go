package snowflake

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNextIsStrictlyIncreasingAndNonZero(t *testing.T) {
	g := New(3)

	var prev int64
	for i := 0; i < 1000; i++ {
		id := g.Next()
		require.NotZero(t, id)
		require.Greater(t, id, prev)
		prev = id
	}
}

func TestDefaultIsASingleton(t *testing.T) {
	require.Same(t, Default(), Default())
}

func TestNewMasksMachineIDToTenBits(t *testing.T) {
	g := New(1 << 20)
	require.Less(t, g.machineID, int64(1<<machineBits))
}

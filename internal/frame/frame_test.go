package frame

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/fleetcast/discoverd/internal/snowflake"
)

func TestRoundTrip(t *testing.T) {
	f := New("msg-1", []byte("hello fleet"))

	decoded, err := Decode(f.Encode())
	require.NoError(t, err)
	require.Equal(t, f.Data, decoded.Data)
	require.Equal(t, f.ID, decoded.ID)
	require.Equal(t, CurrentVersion, decoded.Version)
}

func TestDecodeRejectsUnknownVersion(t *testing.T) {
	f := New("msg-2", []byte("payload"))
	encoded := f.Encode()

	// version byte follows the 2-byte-length-prefixed id.
	versionOffset := 2 + len(f.ID)
	encoded[versionOffset] = 7

	_, err := Decode(encoded)
	require.Error(t, err)
}

func TestDecodeRejectsTruncatedBytes(t *testing.T) {
	f := New("msg-3", []byte("payload"))
	encoded := f.Encode()

	_, err := Decode(encoded[:len(encoded)-3])
	require.Error(t, err)
}

func TestSplitSmallPayloadIsUnfragmented(t *testing.T) {
	f := New("msg-4", []byte("short"))
	parts := Split(f)

	require.Len(t, parts, 1)
	require.Equal(t, uint8(0), parts[0].Order)
	require.Equal(t, uint8(0), parts[0].OrderCount)
}

func TestSplitMergeIdempotence(t *testing.T) {
	payload := []byte(strings.Repeat("hello world", 300)) // > 1000 bytes
	f := New("msg-5", payload)

	parts := Split(f)
	require.Greater(t, len(parts), 1)
	require.LessOrEqual(t, len(parts), MaxFragments)

	ids := snowflake.New(1)
	merged := Merge(ids, parts)
	require.Equal(t, payload, merged.Data)
}

func TestSplitAssignsContiguousOrder(t *testing.T) {
	payload := []byte(strings.Repeat("x", 2500))
	f := New("msg-6", payload)
	parts := Split(f)

	require.Len(t, parts, 3)
	for i, p := range parts {
		require.Equal(t, uint8(i), p.Order)
		require.Equal(t, uint8(3), p.OrderCount)
	}
}

func TestMergeToleratesOutOfOrderFragments(t *testing.T) {
	payload := []byte(strings.Repeat("y", 2500))
	f := New("msg-7", payload)
	parts := Split(f)

	shuffled := []Frame{parts[2], parts[0], parts[1]}

	ids := snowflake.New(2)
	merged := Merge(ids, shuffled)
	require.Equal(t, payload, merged.Data)
}

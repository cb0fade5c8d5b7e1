// Package frame implements the discovery subsystem's wire format: a
// length-prefixed binary TLV encoding of a single datagram payload unit,
// plus the split/merge logic fragmenting oversized messages across
// multiple datagrams.
//
// The encoding is grounded in the teacher repository's
// pkg/messages.go (length-prefixed strings and byte slices written with
// binary.BigEndian over a bytes.Buffer) and in the original Rust
// implementation's domain/src/udp_frame.rs for the field set and
// split/merge semantics.
package frame

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"sort"
	"strconv"

	"github.com/fleetcast/discoverd/internal/snowflake"
)

// Type distinguishes a frame carrying application data from one carrying a
// control command. Discovery only ever uses Data.
type Type uint8

const (
	TypeCommand Type = 0
	TypeData    Type = 1
)

// CurrentVersion is the only wire version this implementation understands.
// Frames carrying any other version are rejected by Decode.
const CurrentVersion uint8 = 1

// MaxFragmentPayload is the MTU budget per fragment: 1000 bytes of payload,
// per spec. order and order_count are single bytes, capping a reassembled
// message at 255*1000 bytes (~255KB).
const MaxFragmentPayload = 1000

// MaxFragments is the largest order_count representable in a single byte.
const MaxFragments = 255

// Frame is one datagram's worth of payload, possibly a fragment of a
// larger logical message sharing the same ID.
type Frame struct {
	ID         string
	Version    uint8
	Type       Type
	Length     uint16
	Order      uint8
	OrderCount uint8
	Data       []byte
}

// New wraps data as a single, unfragmented Data frame under the given
// message id.
func New(id string, data []byte) Frame {
	return Frame{
		ID:      id,
		Version: CurrentVersion,
		Type:    TypeData,
		Length:  uint16(len(data)),
		Data:    data,
	}
}

// Encode serializes a frame to its wire bytes.
func (f Frame) Encode() []byte {
	var buf bytes.Buffer

	writeLengthPrefixedString(&buf, f.ID)
	buf.WriteByte(f.Version)
	buf.WriteByte(byte(f.Type))
	_ = binary.Write(&buf, binary.BigEndian, uint16(len(f.Data)))
	buf.WriteByte(f.Order)
	buf.WriteByte(f.OrderCount)
	writeLengthPrefixedBytes(&buf, f.Data)

	return buf.Bytes()
}

// Decode parses wire bytes into a Frame. A malformed datagram, or one
// carrying an unsupported version, is reported as an error: callers are
// expected to drop the datagram, log it, and keep polling.
func Decode(b []byte) (Frame, error) {
	r := bytes.NewReader(b)

	id, err := readLengthPrefixedString(r)
	if err != nil {
		return Frame{}, fmt.Errorf("frame: decode id: %w", err)
	}

	var version, frameType, order, orderCount uint8
	var length uint16

	if err := binary.Read(r, binary.BigEndian, &version); err != nil {
		return Frame{}, fmt.Errorf("frame: decode version: %w", err)
	}
	if version != CurrentVersion {
		return Frame{}, fmt.Errorf("frame: unsupported version %d", version)
	}

	if err := binary.Read(r, binary.BigEndian, &frameType); err != nil {
		return Frame{}, fmt.Errorf("frame: decode frame_type: %w", err)
	}
	if err := binary.Read(r, binary.BigEndian, &length); err != nil {
		return Frame{}, fmt.Errorf("frame: decode length: %w", err)
	}
	if err := binary.Read(r, binary.BigEndian, &order); err != nil {
		return Frame{}, fmt.Errorf("frame: decode order: %w", err)
	}
	if err := binary.Read(r, binary.BigEndian, &orderCount); err != nil {
		return Frame{}, fmt.Errorf("frame: decode order_count: %w", err)
	}

	data, err := readLengthPrefixedBytes(r)
	if err != nil {
		return Frame{}, fmt.Errorf("frame: decode data: %w", err)
	}

	return Frame{
		ID:         id,
		Version:    version,
		Type:       Type(frameType),
		Length:     length,
		Order:      order,
		OrderCount: orderCount,
		Data:       data,
	}, nil
}

// Split fragments a frame so each piece fits MaxFragmentPayload bytes of
// payload. A frame whose data already fits is returned unchanged with
// order=0, order_count=0 (the "no reassembly needed" marker).
func Split(f Frame) []Frame {
	if len(f.Data) <= MaxFragmentPayload {
		out := f
		out.Order = 0
		out.OrderCount = 0
		out.Length = uint16(len(f.Data))
		return []Frame{out}
	}

	var chunks [][]byte
	for start := 0; start < len(f.Data); start += MaxFragmentPayload {
		end := start + MaxFragmentPayload
		if end > len(f.Data) {
			end = len(f.Data)
		}
		chunks = append(chunks, f.Data[start:end])
	}

	n := len(chunks)
	frames := make([]Frame, n)
	for i, chunk := range chunks {
		frames[i] = Frame{
			ID:         f.ID,
			Version:    f.Version,
			Type:       f.Type,
			Length:     uint16(len(chunk)),
			Order:      uint8(i),
			OrderCount: uint8(n),
			Data:       chunk,
		}
	}
	return frames
}

// Merge reassembles a complete set of fragments (in any order) into a
// single frame wrapping the concatenated payload under a fresh id, minted
// by ids (the same Snowflake generator message and node ids are drawn
// from, per spec's design notes).
func Merge(ids *snowflake.Generator, frames []Frame) Frame {
	newID := strconv.FormatInt(ids.Next(), 10)
	sorted := make([]Frame, len(frames))
	copy(sorted, frames)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Order < sorted[j].Order })

	var data []byte
	version := CurrentVersion
	typ := TypeData
	if len(sorted) > 0 {
		version = sorted[0].Version
		typ = sorted[0].Type
	}
	for _, f := range sorted {
		data = append(data, f.Data...)
	}

	return Frame{
		ID:      newID,
		Version: version,
		Type:    typ,
		Length:  uint16(len(data)),
		Data:    data,
	}
}

func writeLengthPrefixedString(buf *bytes.Buffer, s string) {
	writeLengthPrefixedBytes(buf, []byte(s))
}

func writeLengthPrefixedBytes(buf *bytes.Buffer, b []byte) {
	_ = binary.Write(buf, binary.BigEndian, uint16(len(b)))
	buf.Write(b)
}

func readLengthPrefixedString(r *bytes.Reader) (string, error) {
	b, err := readLengthPrefixedBytes(r)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func readLengthPrefixedBytes(r *bytes.Reader) ([]byte, error) {
	var length uint16
	if err := binary.Read(r, binary.BigEndian, &length); err != nil {
		return nil, err
	}
	b := make([]byte, length)
	if length > 0 {
		if _, err := io.ReadFull(r, b); err != nil {
			return nil, err
		}
	}
	return b, nil
}

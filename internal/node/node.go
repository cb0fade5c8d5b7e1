// Package node describes a peer's self-presence record: the unit the
// registry tracks and the payload announcements carry over the wire.
package node

import (
	"fmt"
	"net"
	"time"

	"github.com/fxamacker/cbor/v2"
)

// Node is a peer's self-description, advertised periodically over
// multicast and tracked by every peer's registry.
type Node struct {
	ID           int64    `cbor:"id"`
	Name         string   `cbor:"name"`
	IPAddress    string   `cbor:"ipaddress"`
	Port         uint16   `cbor:"port"`
	MACAddresses []string `cbor:"mac_address"`
	HitTimestamp uint64   `cbor:"hit_timestamp"`
	Active       bool     `cbor:"active"`
}

// NewSelf builds the local node's own presence record. ipaddress and
// mac_address are populated from the host's network interfaces; active
// starts true and hit_timestamp starts at zero, per spec.
func NewSelf(id int64, name string, port uint16) Node {
	ip := primaryIPv4()
	if name == "" {
		name = ip
	}
	return Node{
		ID:           id,
		Name:         name,
		IPAddress:    ip,
		Port:         port,
		MACAddresses: interfaceMACs(),
		Active:       true,
		HitTimestamp: 0,
	}
}

// UpdateHitTimestamp sets hit_timestamp to the current wall-clock time in
// milliseconds since the Unix epoch.
func (n *Node) UpdateHitTimestamp() {
	n.HitTimestamp = uint64(time.Now().UnixMilli())
}

// Activate marks the node reachable.
func (n *Node) Activate() {
	n.Active = true
}

// Deactivate marks the node as known-but-timed-out. It does not touch
// hit_timestamp: the last observed time is preserved for diagnostics.
func (n *Node) Deactivate() {
	n.Active = false
}

// Encode serializes the node to its wire payload (CBOR).
func (n Node) Encode() ([]byte, error) {
	return cbor.Marshal(n)
}

// Decode parses a node from its wire payload. A malformed payload is
// reported as an error, never a panic.
func Decode(data []byte) (Node, error) {
	var n Node
	if err := cbor.Unmarshal(data, &n); err != nil {
		return Node{}, fmt.Errorf("node: decode: %w", err)
	}
	return n, nil
}

func primaryIPv4() string {
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return "0.0.0.0"
	}
	for _, addr := range addrs {
		ipNet, ok := addr.(*net.IPNet)
		if !ok || ipNet.IP.IsLoopback() {
			continue
		}
		if v4 := ipNet.IP.To4(); v4 != nil {
			return v4.String()
		}
	}
	return "0.0.0.0"
}

func interfaceMACs() []string {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil
	}
	macs := make([]string, 0, len(ifaces))
	for _, iface := range ifaces {
		if iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		if hw := iface.HardwareAddr.String(); hw != "" {
			macs = append(macs, hw)
		}
	}
	return macs
}

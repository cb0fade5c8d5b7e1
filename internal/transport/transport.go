// Package transport is the UDP multicast transport the discovery
// subsystem rides on: bind, join group, send a frame (fragmenting as
// needed), and receive a frame (reassembling as needed).
//
// Socket setup is grounded in the teacher repository's pkg/pipe-udp.go,
// without its background pipe goroutines: callers drive Send and Receive
// directly. The IPv4 group-join/loopback mechanics via
// golang.org/x/net/ipv4.PacketConn are grounded in
// rcarmo-codebits-tv/internal/mcast/mcast.go, generalized from that
// example's ad hoc fragment header to this subsystem's frame package.
package transport

import (
	"context"
	"fmt"
	"net"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/net/ipv4"

	"github.com/fleetcast/discoverd/internal/frame"
	"github.com/fleetcast/discoverd/internal/reassembly"
	"github.com/fleetcast/discoverd/internal/snowflake"
)

// receiveBufferSize is one MTU's worth of receive buffer, per spec.
const receiveBufferSize = 1500

// bindRetryDelay is how long to wait before the one allowed retry of a
// failed bind, per spec ("fatal after a 10s back-off").
const bindRetryDelay = 10 * time.Second

// Transport owns the multicast UDP socket: binding, group membership, and
// the reassembly cache receive() feeds through.
type Transport struct {
	conn      *net.UDPConn
	groupAddr *net.UDPAddr
	cache     *reassembly.Cache
	ids       *snowflake.Generator
	log       *zap.Logger
}

// New binds to 0.0.0.0:localBindPort, enables multicast loopback (a node
// must see its own advertisements for single-host testing), and joins
// groupIP:groupPort on the wildcard interface. A bind failure is retried
// once after a 10s back-off and is otherwise fatal.
func New(localBindPort int, groupIP string, groupPort int, log *zap.Logger) (*Transport, error) {
	conn, err := bindWithRetry(localBindPort, log)
	if err != nil {
		return nil, err
	}

	pc := ipv4.NewPacketConn(conn)
	if err := pc.SetMulticastLoopback(true); err != nil {
		conn.Close()
		return nil, fmt.Errorf("transport: set multicast loopback: %w", err)
	}

	ip := net.ParseIP(groupIP)
	if ip == nil {
		conn.Close()
		return nil, fmt.Errorf("transport: invalid multicast group %q", groupIP)
	}

	if err := pc.JoinGroup(nil, &net.UDPAddr{IP: ip}); err != nil {
		conn.Close()
		return nil, fmt.Errorf("transport: join multicast group %s: %w", groupIP, err)
	}

	return &Transport{
		conn:      conn,
		groupAddr: &net.UDPAddr{IP: ip, Port: groupPort},
		cache:     reassembly.New(),
		ids:       snowflake.Default(),
		log:       log,
	}, nil
}

func bindWithRetry(port int, log *zap.Logger) (*net.UDPConn, error) {
	conn, err := bindUDP(port)
	if err == nil {
		return conn, nil
	}

	log.Error("bind failed, retrying once after back-off", zap.Int("port", port), zap.Error(err), zap.Duration("backoff", bindRetryDelay))
	time.Sleep(bindRetryDelay)

	conn, err = bindUDP(port)
	if err != nil {
		return nil, fmt.Errorf("transport: bind 0.0.0.0:%d: %w", port, err)
	}
	return conn, nil
}

// bindUDP binds 0.0.0.0:port with SO_REUSEADDR/SO_REUSEPORT set, so
// multiple peers on the same host (as in single-host testing, or several
// daemons sharing a board_port) can each bind the shared multicast port.
// Grounded in rcarmo-codebits-tv/internal/mcast/mcast.go's ListenConfig.Control.
func bindUDP(port int) (*net.UDPConn, error) {
	lc := net.ListenConfig{
		Control: func(network, address string, c syscall.RawConn) error {
			var ctrlErr error
			err := c.Control(func(fd uintptr) {
				if e := syscall.SetsockoptInt(int(fd), syscall.SOL_SOCKET, syscall.SO_REUSEADDR, 1); e != nil {
					ctrlErr = e
					return
				}
				_ = syscall.SetsockoptInt(int(fd), syscall.SOL_SOCKET, syscall.SO_REUSEPORT, 1)
			})
			if err != nil {
				return err
			}
			return ctrlErr
		},
	}

	pc, err := lc.ListenPacket(context.Background(), "udp4", fmt.Sprintf("0.0.0.0:%d", port))
	if err != nil {
		return nil, err
	}
	conn, ok := pc.(*net.UDPConn)
	if !ok {
		pc.Close()
		return nil, fmt.Errorf("transport: unexpected packet conn type %T", pc)
	}
	return conn, nil
}

// Send fragments f and sends each fragment to the multicast group. A
// per-fragment send error is logged and does not abort the remaining
// fragments.
func (t *Transport) Send(f frame.Frame) {
	for _, fragment := range frame.Split(f) {
		if _, err := t.conn.WriteToUDP(fragment.Encode(), t.groupAddr); err != nil {
			t.log.Error("send fragment failed", zap.String("frame_id", f.ID), zap.Error(err))
		}
	}
}

// Receive reads one datagram (up to one MTU), decodes it, and feeds it
// through the reassembly cache. It returns (frame, true) only once a
// logical message is complete; any other outcome (decode failure, partial
// fragment, socket error) returns (zero, false) and callers should keep
// polling.
func (t *Transport) Receive() (frame.Frame, bool) {
	buf := make([]byte, receiveBufferSize)
	n, _, err := t.conn.ReadFromUDP(buf)
	if err != nil {
		t.log.Error("receive failed", zap.Error(err))
		return frame.Frame{}, false
	}

	f, err := frame.Decode(buf[:n])
	if err != nil {
		t.log.Debug("dropping undecodable datagram", zap.Error(err), zap.Int("bytes", n))
		return frame.Frame{}, false
	}

	fragments, complete := t.cache.Ingest(f)
	if !complete {
		return frame.Frame{}, false
	}

	return frame.Merge(t.ids, fragments), true
}

// Close releases the underlying socket.
func (t *Transport) Close() error {
	return t.conn.Close()
}

// Package snowflake provides a process-wide generator of monotonically
// increasing 64-bit ids, seeded from a hash of the host's primary local
// IPv4 address so that ids assigned by distinct peers are very unlikely to
// collide.
package snowflake

import (
	"hash/fnv"
	"net"
	"sync"
	"time"
)

const (
	epoch            int64 = 1700000000000 // arbitrary recent epoch, ms
	timestampBits          = 41
	machineBits            = 10
	sequenceBits           = 12
	maxSequence      int64 = -1 ^ (-1 << sequenceBits)
	machineIDShift         = sequenceBits
	timestampShift         = sequenceBits + machineBits
)

// Generator hands out ids guarded by a single mutex, mirroring the
// mutex-wrapped singleton in the system this protocol is drawn from.
type Generator struct {
	mu        sync.Mutex
	machineID int64
	lastTime  int64
	sequence  int64
}

var (
	instance *Generator
	once     sync.Once
)

// Default returns the process-wide singleton, seeded on first use from the
// primary local IPv4 address.
func Default() *Generator {
	once.Do(func() {
		instance = New(machineIDFromLocalIP())
	})
	return instance
}

// New builds a generator for a given 10-bit machine id (only the low 10
// bits are used).
func New(machineID int64) *Generator {
	return &Generator{machineID: machineID & (1<<machineBits - 1)}
}

// Next returns the next id. Ids are never zero: zero is reserved to mean
// "unassigned".
func (g *Generator) Next() int64 {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := time.Now().UnixMilli()
	if now == g.lastTime {
		g.sequence = (g.sequence + 1) & maxSequence
		if g.sequence == 0 {
			for now <= g.lastTime {
				now = time.Now().UnixMilli()
			}
		}
	} else {
		g.sequence = 0
	}
	g.lastTime = now

	id := ((now - epoch) << timestampShift) | (g.machineID << machineIDShift) | g.sequence
	if id == 0 {
		id = 1
	}
	return id
}

// machineIDFromLocalIP hashes the primary outbound local IPv4 address into a
// 10-bit machine id. Falls back to a constant when no address is available
// (e.g. an isolated test sandbox).
func machineIDFromLocalIP() int64 {
	ip := primaryLocalIPv4()
	h := fnv.New32a()
	_, _ = h.Write([]byte(ip))
	return int64(h.Sum32() & (1<<machineBits - 1))
}

// primaryLocalIPv4 returns the first non-loopback IPv4 address bound to any
// interface, or "127.0.0.1" if none is found.
func primaryLocalIPv4() string {
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return "127.0.0.1"
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
	return "127.0.0.1"
}

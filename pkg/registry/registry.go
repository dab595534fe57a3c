// Package registry tracks live connections by a monotonically increasing
// identifier and delivers encoded frames to them.
package registry

import (
	"errors"
	"fmt"
	"net"
	"slices"
	"sync"
)

// Registry errors.
var (
	// ErrNotRegistered is returned when an identifier has no live connection.
	ErrNotRegistered = errors.New("connection not registered")
	// ErrConnectionLimit is returned when the connection limit is reached.
	ErrConnectionLimit = errors.New("connection limit reached")
)

// Peer is a registered connection.
type Peer interface {
	// Send writes an encoded frame in a single write.
	Send(frame []byte) error
	Close() error
	RemoteAddr() net.Addr
}

// Config holds registry limits. Zero means unlimited.
type Config struct {
	// MaxConnections is the maximum number of connections.
	MaxConnections int
	// MaxConnectionsPerIP is the max connections per IP.
	MaxConnectionsPerIP int
}

// Stats is a snapshot of registry counters.
type Stats struct {
	Active          int    `json:"active"`
	TotalRegistered uint64 `json:"totalRegistered"`
	TotalRemoved    uint64 `json:"totalRemoved"`
	Rejected        uint64 `json:"rejected"`
}

type entry struct {
	peer Peer
	ip   string
}

// Registry owns every live connection. All methods are safe for concurrent
// use; no network I/O happens while the lock is held.
type Registry struct {
	mu       sync.RWMutex
	cfg      Config
	lastID   uint64
	peers    map[uint64]entry
	ipCounts map[string]int

	registered uint64
	removed    uint64
	rejected   uint64
}

// New creates an empty registry.
func New(cfg Config) *Registry {
	return &Registry{
		cfg:      cfg,
		peers:    make(map[uint64]entry),
		ipCounts: make(map[string]int),
	}
}

// Register stores p under the next identifier. Identifiers start at 1 and
// are never reused, even after the connection is removed.
func (r *Registry) Register(p Peer) (uint64, error) {
	ip := ipOf(p.RemoteAddr())

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.cfg.MaxConnections > 0 && len(r.peers) >= r.cfg.MaxConnections {
		r.rejected++
		return 0, ErrConnectionLimit
	}
	if r.cfg.MaxConnectionsPerIP > 0 && r.ipCounts[ip] >= r.cfg.MaxConnectionsPerIP {
		r.rejected++
		return 0, fmt.Errorf("%w for %s", ErrConnectionLimit, ip)
	}

	r.lastID++
	id := r.lastID
	r.peers[id] = entry{peer: p, ip: ip}
	r.ipCounts[ip]++
	r.registered++

	return id, nil
}

// Get returns the connection registered under id.
func (r *Registry) Get(id uint64) (Peer, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.peers[id]
	return e.peer, ok
}

// Remove deletes id and closes its connection. It reports whether id was
// registered.
func (r *Registry) Remove(id uint64) bool {
	r.mu.Lock()
	e, ok := r.peers[id]
	if ok {
		delete(r.peers, id)
		if r.ipCounts[e.ip] <= 1 {
			delete(r.ipCounts, e.ip)
		} else {
			r.ipCounts[e.ip]--
		}
		r.removed++
	}
	r.mu.Unlock()

	if ok {
		_ = e.peer.Close()
	}
	return ok
}

// Send delivers frame to a single connection.
func (r *Registry) Send(id uint64, frame []byte) error {
	p, ok := r.Get(id)
	if !ok {
		return fmt.Errorf("%w: %d", ErrNotRegistered, id)
	}
	return p.Send(frame)
}

// Broadcast delivers frame to every registered connection. A failed write
// does not stop delivery to the others; the failures are joined into the
// returned error. It returns the number of successful deliveries.
func (r *Registry) Broadcast(frame []byte) (int, error) {
	r.mu.RLock()
	targets := make(map[uint64]Peer, len(r.peers))
	for id, e := range r.peers {
		targets[id] = e.peer
	}
	r.mu.RUnlock()

	var (
		delivered int
		errs      []error
	)
	for _, id := range sortedIDs(targets) {
		if err := targets[id].Send(frame); err != nil {
			errs = append(errs, fmt.Errorf("connection %d: %w", id, err))
			continue
		}
		delivered++
	}
	return delivered, errors.Join(errs...)
}

// IDs returns the registered identifiers in ascending order.
func (r *Registry) IDs() []uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]uint64, 0, len(r.peers))
	for id := range r.peers {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// Count returns the number of registered connections.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.peers)
}

// Stats returns current registry counters.
func (r *Registry) Stats() Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return Stats{
		Active:          len(r.peers),
		TotalRegistered: r.registered,
		TotalRemoved:    r.removed,
		Rejected:        r.rejected,
	}
}

// CloseAll removes and closes every connection.
func (r *Registry) CloseAll() {
	for _, id := range r.IDs() {
		r.Remove(id)
	}
}

func sortedIDs(m map[uint64]Peer) []uint64 {
	ids := make([]uint64, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// ipOf extracts the IP address from a remote address.
func ipOf(addr net.Addr) string {
	if addr == nil {
		return "unknown"
	}
	if tcpAddr, ok := addr.(*net.TCPAddr); ok {
		return tcpAddr.IP.String()
	}
	if host, _, err := net.SplitHostPort(addr.String()); err == nil {
		return host
	}
	return addr.String()
}

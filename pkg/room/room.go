// Package room maintains capacity-bounded rooms and their membership.
//
// Rooms are created on demand by JoinRandomRoom and are never deleted, not
// even when their last member leaves; an empty room is simply the first
// candidate for the next join.
package room

import (
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"
)

// DefaultCapacity is the number of members a room holds.
const DefaultCapacity = 2

// Room errors.
var (
	ErrRoomNotFound = errors.New("room not found")
	ErrNotMember    = errors.New("client not in room")
)

// Room is a snapshot of a room. Members keeps join order.
type Room struct {
	ID        int
	Name      string
	CreatedBy uint64
	Capacity  int
	CreatedAt time.Time
	Members   []uint64
}

// Count returns the member count.
func (r Room) Count() int {
	return len(r.Members)
}

// Has reports whether connID is a member.
func (r Room) Has(connID uint64) bool {
	return slices.Contains(r.Members, connID)
}

// Option configures a Manager.
type Option func(*Manager)

// WithCapacity sets the capacity of rooms created afterwards.
func WithCapacity(n int) Option {
	return func(m *Manager) {
		if n > 0 {
			m.capacity = n
		}
	}
}

// WithClock replaces time.Now, which names new rooms.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		m.now = now
	}
}

// Manager owns every room. It is safe for concurrent use.
type Manager struct {
	mu       sync.Mutex
	rooms    []*Room
	byID     map[int]*Room
	lastID   int
	capacity int
	now      func() time.Time
}

// NewManager creates a manager with no rooms.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		byID:     make(map[int]*Room),
		capacity: DefaultCapacity,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// JoinRandomRoom adds connID to the oldest room that has free capacity and
// does not already hold connID, creating a room when none qualifies.
func (m *Manager) JoinRandomRoom(connID uint64) Room {
	m.mu.Lock()
	defer m.mu.Unlock()

	var target *Room
	for _, r := range m.rooms {
		if len(r.Members) < r.Capacity && !r.Has(connID) {
			target = r
			break
		}
	}
	if target == nil {
		target = m.create(connID)
	}

	target.Members = append(target.Members, connID)
	return target.snapshot()
}

func (m *Manager) create(creator uint64) *Room {
	m.lastID++
	now := m.now()
	r := &Room{
		ID:        m.lastID,
		Name:      fmt.Sprintf("room_%d", now.UnixMilli()),
		CreatedBy: creator,
		Capacity:  m.capacity,
		CreatedAt: now,
	}
	m.rooms = append(m.rooms, r)
	m.byID[r.ID] = r
	return r
}

// LeaveRoom removes connID from room roomID.
func (m *Manager) LeaveRoom(roomID int, connID uint64) (Room, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.byID[roomID]
	if !ok {
		return Room{}, fmt.Errorf("%w: %d", ErrRoomNotFound, roomID)
	}

	i := slices.Index(r.Members, connID)
	if i < 0 {
		return Room{}, fmt.Errorf("%w: client %d, room %d", ErrNotMember, connID, roomID)
	}
	r.Members = slices.Delete(r.Members, i, i+1)

	return r.snapshot(), nil
}

// LeaveAll removes connID from every room it belongs to and returns the
// affected room identifiers.
func (m *Manager) LeaveAll(connID uint64) []int {
	m.mu.Lock()
	defer m.mu.Unlock()

	var left []int
	for _, r := range m.rooms {
		if i := slices.Index(r.Members, connID); i >= 0 {
			r.Members = slices.Delete(r.Members, i, i+1)
			left = append(left, r.ID)
		}
	}
	return left
}

// Get returns a snapshot of room roomID.
func (m *Manager) Get(roomID int) (Room, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.byID[roomID]
	if !ok {
		return Room{}, false
	}
	return r.snapshot(), true
}

// List returns snapshots of every room in creation order.
func (m *Manager) List() []Room {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]Room, 0, len(m.rooms))
	for _, r := range m.rooms {
		out = append(out, r.snapshot())
	}
	return out
}

// Len returns the number of rooms ever created.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.rooms)
}

func (r *Room) snapshot() Room {
	s := *r
	s.Members = slices.Clone(r.Members)
	if s.Members == nil {
		s.Members = []uint64{}
	}
	return s
}

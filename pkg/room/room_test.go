package room

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedClock() func() time.Time {
	t := time.UnixMilli(1700000000000)
	return func() time.Time { return t }
}

func TestJoinRandomRoomFillsBeforeCreating(t *testing.T) {
	m := NewManager(WithClock(fixedClock()))

	a := m.JoinRandomRoom(1)
	assert.Equal(t, 1, a.ID)
	assert.Equal(t, "room_1700000000000", a.Name)
	assert.Equal(t, uint64(1), a.CreatedBy)
	assert.Equal(t, DefaultCapacity, a.Capacity)
	assert.Equal(t, []uint64{1}, a.Members)

	b := m.JoinRandomRoom(2)
	assert.Equal(t, a.ID, b.ID)
	assert.Equal(t, []uint64{1, 2}, b.Members)
	assert.Equal(t, 2, b.Count())

	c := m.JoinRandomRoom(3)
	assert.NotEqual(t, a.ID, c.ID, "a full room must not be reused")
	assert.Equal(t, uint64(3), c.CreatedBy)
	assert.Equal(t, 1, c.Count())
}

func TestJoinWithTwoFullRoomsCreatesThird(t *testing.T) {
	m := NewManager()
	for id := uint64(1); id <= 4; id++ {
		m.JoinRandomRoom(id)
	}
	require.Equal(t, 2, m.Len())

	r := m.JoinRandomRoom(5)
	assert.Equal(t, 3, r.ID)
	assert.Equal(t, 3, m.Len())
}

func TestJoinSkipsRoomAlreadyJoined(t *testing.T) {
	m := NewManager()
	first := m.JoinRandomRoom(1)
	second := m.JoinRandomRoom(1)

	assert.NotEqual(t, first.ID, second.ID)
	got, ok := m.Get(first.ID)
	require.True(t, ok)
	assert.Equal(t, []uint64{1}, got.Members)
}

func TestLeaveRoom(t *testing.T) {
	m := NewManager()
	r := m.JoinRandomRoom(1)
	m.JoinRandomRoom(2)

	left, err := m.LeaveRoom(r.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, []uint64{2}, left.Members)
	assert.Equal(t, 1, left.Count())

	_, err = m.LeaveRoom(r.ID, 1)
	assert.ErrorIs(t, err, ErrNotMember)

	_, err = m.LeaveRoom(99, 2)
	assert.ErrorIs(t, err, ErrRoomNotFound)
}

func TestEmptyRoomIsKeptAndReused(t *testing.T) {
	m := NewManager()
	r := m.JoinRandomRoom(1)
	_, err := m.LeaveRoom(r.ID, 1)
	require.NoError(t, err)

	got, ok := m.Get(r.ID)
	require.True(t, ok, "empty rooms are not deleted")
	assert.Empty(t, got.Members)

	again := m.JoinRandomRoom(2)
	assert.Equal(t, r.ID, again.ID)
	assert.Equal(t, 1, m.Len())
}

func TestLeaveAll(t *testing.T) {
	m := NewManager()
	r1 := m.JoinRandomRoom(1)
	r2 := m.JoinRandomRoom(1)
	m.JoinRandomRoom(2)

	assert.ElementsMatch(t, []int{r1.ID, r2.ID}, m.LeaveAll(1))

	for _, r := range m.List() {
		assert.False(t, r.Has(1))
	}
	assert.Empty(t, m.LeaveAll(1))
}

func TestWithCapacity(t *testing.T) {
	m := NewManager(WithCapacity(3))
	for id := uint64(1); id <= 3; id++ {
		m.JoinRandomRoom(id)
	}
	assert.Equal(t, 1, m.Len())
	assert.Equal(t, 2, m.JoinRandomRoom(4).ID)
}

func TestSnapshotsAreIndependent(t *testing.T) {
	m := NewManager()
	r := m.JoinRandomRoom(1)
	r.Members[0] = 99

	got, _ := m.Get(r.ID)
	assert.Equal(t, []uint64{1}, got.Members)
}

func TestConcurrentJoinsNeverExceedCapacity(t *testing.T) {
	m := NewManager()

	var wg sync.WaitGroup
	for id := uint64(1); id <= 200; id++ {
		wg.Add(1)
		go func(id uint64) {
			defer wg.Done()
			m.JoinRandomRoom(id)
		}(id)
	}
	wg.Wait()

	rooms := m.List()
	assert.Len(t, rooms, 100)
	total := 0
	for _, r := range rooms {
		assert.LessOrEqual(t, r.Count(), r.Capacity)
		total += r.Count()
	}
	assert.Equal(t, 200, total)
}

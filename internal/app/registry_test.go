package app

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkeye/voxroom/internal/core"
)

type nopConn struct{ closed bool }

func (c *nopConn) TrySend(core.Frame) error { return nil }
func (c *nopConn) Close()                   { c.closed = true }

func TestRegistryBindReplacesAndCancelsPrevious(t *testing.T) {
	t.Parallel()
	r := NewRegistry()
	first, second := &nopConn{}, &nopConn{}

	cancelled := false
	assert.Nil(t, r.Bind("s1", first, func() { cancelled = true }))
	prev := r.Bind("s1", second, nil)
	assert.Same(t, first, prev)
	assert.True(t, cancelled)

	assert.False(t, r.Unbind("s1", first), "a stale connection cannot unbind its replacement")
	conn, ok := r.Conn("s1")
	require.True(t, ok)
	assert.Same(t, second, conn)
	assert.True(t, r.Unbind("s1", second))
	assert.Equal(t, 0, r.Len())
}

func TestRegistryRebindKeepsRoom(t *testing.T) {
	t.Parallel()
	r := NewRegistry()
	r.Bind("s1", &nopConn{}, nil)
	require.True(t, r.SetRoom("s1", "room-a"))

	r.Bind("s1", &nopConn{}, nil)
	room, ok := r.RoomOf("s1")
	require.True(t, ok)
	assert.Equal(t, "room-a", string(room))
}

func TestRegistryRoomAssociation(t *testing.T) {
	t.Parallel()
	r := NewRegistry()
	r.Bind("s1", &nopConn{}, nil)

	_, ok := r.RoomOf("s1")
	assert.False(t, ok)

	require.True(t, r.SetRoom("s1", "room-a"))
	room, ok := r.RoomOf("s1")
	require.True(t, ok)
	assert.Equal(t, "room-a", string(room))

	r.ClearRoom("s1", "room-b")
	_, ok = r.RoomOf("s1")
	assert.True(t, ok, "clearing a different room keeps the association")

	r.ClearRoom("s1", "room-a")
	_, ok = r.RoomOf("s1")
	assert.False(t, ok)
	assert.False(t, r.SetRoom("unknown", "room-a"))
}

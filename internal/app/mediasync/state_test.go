package mediasync

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func intp(i int) *int { return &i }
func floatp(f float64) *float64 { return &f }

var playlist = []Item{{ID: "v1"}, {ID: "v2"}, {ID: "v3"}}

func TestNextPreviousRejectedWithoutPlaylist(t *testing.T) {
	t.Parallel()
	now := time.UnixMilli(1_000_000)

	for _, action := range []Action{ActionNext, ActionPrevious, ActionGoto} {
		var st State
		before := st
		_, err := st.Apply(Control{Action: action, Index: intp(0)}, "a", now)
		assert.ErrorIs(t, err, ErrEmptyPlaylist, action)
		assert.Equal(t, before, st, "rejected control leaves state untouched")
	}

	s := NewStore()
	_, err := s.Apply("r", Control{Action: ActionNext}, "a", now)
	assert.ErrorIs(t, err, ErrEmptyPlaylist)
	_, ok := s.Snapshot("r", now)
	assert.False(t, ok, "a rejected first control does not create state")
}

func TestPlaybackFlow(t *testing.T) {
	t.Parallel()
	now := time.UnixMilli(1_000_000)
	var st State

	ev, err := st.Apply(Control{Action: ActionPlay, PlaylistID: "pl", Items: playlist}, "a", now)
	require.NoError(t, err)
	assert.Equal(t, "video:play", ev.Type)
	assert.Equal(t, now.UnixMilli(), ev.SyncTimestamp)
	assert.True(t, st.IsOpen)
	assert.True(t, st.IsPlaying)
	assert.Equal(t, "a", string(st.UpdatedBy))

	now = now.Add(10 * time.Second)
	ev, err = st.Apply(Control{Action: ActionPause}, "b", now)
	require.NoError(t, err)
	assert.Equal(t, "video:pause", ev.Type)
	assert.InDelta(t, 10.0, st.Offset, 0.001)
	assert.True(t, st.IsPaused)

	now = now.Add(time.Minute)
	assert.InDelta(t, 10.0, st.Position(now), 0.001, "paused playback does not advance")

	_, err = st.Apply(Control{Action: ActionResume}, "b", now)
	require.NoError(t, err)
	now = now.Add(5 * time.Second)
	assert.InDelta(t, 15.0, st.Position(now), 0.001)

	_, err = st.Apply(Control{Action: ActionSeek, CurrentTime: floatp(42)}, "a", now)
	require.NoError(t, err)
	assert.InDelta(t, 42.0, st.Offset, 0.001)
	assert.True(t, st.IsPlaying)

	ev, err = st.Apply(Control{Action: ActionNext}, "a", now)
	require.NoError(t, err)
	assert.Equal(t, "video:next", ev.Type)
	assert.Equal(t, 1, st.CurrentIndex)
	assert.Zero(t, st.Offset)

	_, err = st.Apply(Control{Action: ActionGoto, Index: intp(2)}, "a", now)
	require.NoError(t, err)
	_, err = st.Apply(Control{Action: ActionNext}, "a", now)
	assert.ErrorIs(t, err, ErrOutOfRange)
	assert.Equal(t, 2, st.CurrentIndex)

	_, err = st.Apply(Control{Action: ActionPrevious}, "a", now)
	require.NoError(t, err)
	assert.Equal(t, 1, st.CurrentIndex)

	ev, err = st.Apply(Control{Action: ActionStop}, "a", now)
	require.NoError(t, err)
	assert.Equal(t, "video:stop", ev.Type)
	assert.False(t, st.IsOpen)
	assert.Len(t, st.Items, 3, "stop keeps the playlist")
}

func TestControlValidation(t *testing.T) {
	t.Parallel()
	now := time.UnixMilli(5_000)

	tests := []struct {
		name    string
		state   State
		control Control
		wantErr error
	}{
		{name: "pause closed", control: Control{Action: ActionPause}, wantErr: ErrNotOpen},
		{name: "resume closed", control: Control{Action: ActionResume}, wantErr: ErrNotOpen},
		{name: "stop closed", control: Control{Action: ActionStop}, wantErr: ErrNotOpen},
		{name: "play nothing", control: Control{Action: ActionPlay}, wantErr: ErrEmptyPlaylist},
		{name: "play bad index", control: Control{Action: ActionPlay, Items: playlist, Index: intp(7)}, wantErr: ErrOutOfRange},
		{name: "seek without time", state: State{Items: playlist, IsOpen: true}, control: Control{Action: ActionSeek}, wantErr: ErrMissingTime},
		{name: "goto without index", state: State{Items: playlist, IsOpen: true}, control: Control{Action: ActionGoto}, wantErr: ErrMissingIndex},
		{name: "previous at start", state: State{Items: playlist, IsOpen: true}, control: Control{Action: ActionPrevious}, wantErr: ErrOutOfRange},
		{name: "unknown", control: Control{Action: "rewind"}, wantErr: ErrUnknownAction},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			st := tc.state
			_, err := st.Apply(tc.control, "a", now)
			assert.ErrorIs(t, err, tc.wantErr)
		})
	}
}

func TestEndedAdvancesOnceAndStopsAtEnd(t *testing.T) {
	t.Parallel()
	now := time.UnixMilli(1_000)
	st := State{Items: playlist[:2], IsOpen: true, IsPlaying: true}

	ev, err := st.Apply(Control{Action: ActionEnded, Index: intp(0)}, "a", now)
	require.NoError(t, err)
	assert.Equal(t, "video:next", ev.Type)
	assert.Equal(t, 1, st.CurrentIndex)

	_, err = st.Apply(Control{Action: ActionEnded, Index: intp(0)}, "b", now)
	assert.ErrorIs(t, err, ErrStaleItem, "a late report for the previous item is ignored")

	ev, err = st.Apply(Control{Action: ActionEnded, Index: intp(1)}, "a", now)
	require.NoError(t, err)
	assert.Equal(t, "video:stop", ev.Type)
	assert.False(t, st.IsOpen)
}

func TestSnapshotProjectsOffset(t *testing.T) {
	t.Parallel()
	s := NewStore()
	start := time.UnixMilli(100_000)
	_, err := s.Apply("r", Control{Action: ActionPlay, Items: playlist, CurrentTime: floatp(3)}, "a", start)
	require.NoError(t, err)

	snap, ok := s.Snapshot("r", start.Add(2500*time.Millisecond))
	require.True(t, ok)
	assert.InDelta(t, 5.5, snap.Offset, 0.001)
	assert.Equal(t, start.Add(2500*time.Millisecond).UnixMilli(), snap.SyncTimestamp)

	s.Remove("r")
	_, ok = s.Snapshot("r", start)
	assert.False(t, ok)
}

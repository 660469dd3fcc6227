// Package mediasync holds the authoritative shared playback state of each room.
package mediasync

import (
	"errors"
	"time"

	"github.com/dkeye/voxroom/internal/domain"
)

var (
	ErrEmptyPlaylist = errors.New("playlist is empty")
	ErrOutOfRange    = errors.New("playlist index out of range")
	ErrNotOpen       = errors.New("player is not open")
	ErrMissingTime   = errors.New("currentTime is required")
	ErrMissingIndex  = errors.New("index is required")
	ErrStaleItem     = errors.New("ended item is not the current item")
	ErrUnknownAction = errors.New("unknown action")
)

type Action string

const (
	ActionPlay     Action = "play"
	ActionPause    Action = "pause"
	ActionResume   Action = "resume"
	ActionSeek     Action = "seek"
	ActionNext     Action = "next"
	ActionPrevious Action = "previous"
	ActionGoto     Action = "goto"
	ActionStop     Action = "stop"
	ActionEnded    Action = "ended"
)

type Item struct {
	ID    string `json:"id"`
	URL   string `json:"url,omitempty"`
	Title string `json:"title,omitempty"`
}

type State struct {
	PlaylistID    string        `json:"playlistId,omitempty"`
	Items         []Item        `json:"items"`
	CurrentIndex  int           `json:"currentIndex"`
	IsOpen        bool          `json:"isOpen"`
	IsPlaying     bool          `json:"isPlaying"`
	IsPaused      bool          `json:"isPaused"`
	Offset        float64       `json:"currentTime"`
	SyncTimestamp int64         `json:"syncTimestamp"`
	UpdatedBy     domain.PeerID `json:"updatedBy,omitempty"`
}

// Control is a validated-on-apply request to change playback.
type Control struct {
	Action      Action   `json:"action"`
	PlaylistID  string   `json:"playlistId,omitempty"`
	Items       []Item   `json:"items,omitempty"`
	Index       *int     `json:"index,omitempty"`
	CurrentTime *float64 `json:"currentTime,omitempty"`
}

// Event is what the room receives after a control is accepted.
type Event struct {
	Type          string        `json:"type"`
	State         State         `json:"state"`
	SyncTimestamp int64         `json:"syncTimestamp"`
	By            domain.PeerID `json:"by,omitempty"`
}

func EventType(a Action) string { return "video:" + string(a) }

// Position is the playback offset projected to now.
func (s State) Position(now time.Time) float64 {
	if !s.IsPlaying || s.SyncTimestamp == 0 {
		return s.Offset
	}
	elapsed := float64(now.UnixMilli()-s.SyncTimestamp) / 1000
	if elapsed < 0 {
		elapsed = 0
	}
	return s.Offset + elapsed
}

// Snapshot returns a copy with the offset projected to now.
func (s State) Snapshot(now time.Time) State {
	out := s.clone()
	out.Offset = s.Position(now)
	out.SyncTimestamp = now.UnixMilli()
	return out
}

func (s State) clone() State {
	s.Items = append([]Item(nil), s.Items...)
	return s
}

// Apply validates c against s and, on success, mutates s and returns the resulting event.
// A rejected control leaves s untouched.
func (s *State) Apply(c Control, by domain.PeerID, now time.Time) (Event, error) {
	next := s.clone()
	result := c.Action

	switch c.Action {
	case ActionPlay:
		changed := false
		if len(c.Items) > 0 {
			next.Items = append([]Item(nil), c.Items...)
			next.PlaylistID = c.PlaylistID
			next.CurrentIndex = 0
			changed = true
		}
		if len(next.Items) == 0 {
			return Event{}, ErrEmptyPlaylist
		}
		if c.Index != nil {
			if !next.inRange(*c.Index) {
				return Event{}, ErrOutOfRange
			}
			changed = changed || *c.Index != next.CurrentIndex
			next.CurrentIndex = *c.Index
		}
		switch {
		case c.CurrentTime != nil:
			next.Offset = clampTime(*c.CurrentTime)
		case changed || !next.IsOpen:
			next.Offset = 0
		default:
			next.Offset = s.Position(now)
		}
		next.play()

	case ActionPause:
		if !next.IsOpen {
			return Event{}, ErrNotOpen
		}
		next.Offset = s.Position(now)
		if c.CurrentTime != nil {
			next.Offset = clampTime(*c.CurrentTime)
		}
		next.IsPlaying = false
		next.IsPaused = true

	case ActionResume:
		if !next.IsOpen {
			return Event{}, ErrNotOpen
		}
		next.Offset = s.Position(now)
		if c.CurrentTime != nil {
			next.Offset = clampTime(*c.CurrentTime)
		}
		next.play()

	case ActionSeek:
		if !next.IsOpen {
			return Event{}, ErrNotOpen
		}
		if c.CurrentTime == nil {
			return Event{}, ErrMissingTime
		}
		next.Offset = clampTime(*c.CurrentTime)

	case ActionNext, ActionPrevious, ActionGoto:
		if len(next.Items) == 0 {
			return Event{}, ErrEmptyPlaylist
		}
		target := next.CurrentIndex
		switch c.Action {
		case ActionNext:
			target++
		case ActionPrevious:
			target--
		default:
			if c.Index == nil {
				return Event{}, ErrMissingIndex
			}
			target = *c.Index
		}
		if !next.inRange(target) {
			return Event{}, ErrOutOfRange
		}
		next.CurrentIndex = target
		next.Offset = 0
		next.play()

	case ActionStop:
		if !next.IsOpen {
			return Event{}, ErrNotOpen
		}
		next.stop()

	case ActionEnded:
		if !next.IsOpen {
			return Event{}, ErrNotOpen
		}
		// every peer reports the end of the same item; only the first report counts
		if c.Index != nil && *c.Index != next.CurrentIndex {
			return Event{}, ErrStaleItem
		}
		if next.inRange(next.CurrentIndex + 1) {
			next.CurrentIndex++
			next.Offset = 0
			next.play()
			result = ActionNext
		} else {
			next.stop()
			result = ActionStop
		}

	default:
		return Event{}, ErrUnknownAction
	}

	next.SyncTimestamp = now.UnixMilli()
	next.UpdatedBy = by
	*s = next
	return Event{
		Type:          EventType(result),
		State:         s.clone(),
		SyncTimestamp: s.SyncTimestamp,
		By:            by,
	}, nil
}

func (s *State) play() {
	s.IsOpen = true
	s.IsPlaying = true
	s.IsPaused = false
}

func (s *State) stop() {
	s.IsOpen = false
	s.IsPlaying = false
	s.IsPaused = false
	s.Offset = 0
}

func (s State) inRange(i int) bool { return i >= 0 && i < len(s.Items) }

func clampTime(t float64) float64 {
	if t < 0 {
		return 0
	}
	return t
}

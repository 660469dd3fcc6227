package orch

import (
	"context"
	"errors"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/voxroom/internal/app"
	"github.com/dkeye/voxroom/internal/app/mediasync"
	"github.com/dkeye/voxroom/internal/core"
	"github.com/dkeye/voxroom/internal/domain"
	"github.com/dkeye/voxroom/internal/voiceai"
)

// CreateRoom registers a room and persists its record. The first peer to join becomes owner.
func (o *Orchestrator) CreateRoom(ctx context.Context, spec domain.RoomSpec) (domain.Room, error) {
	room, err := o.Rooms.CreateRoom(spec, domain.PeerInfo{})
	if err != nil {
		return domain.Room{}, err
	}
	o.Context.InitRoom(room.ID, o.cfg.SystemPrompt)
	o.persist(ctx, room)
	return room, nil
}

func (o *Orchestrator) persist(ctx context.Context, room domain.Room) {
	if o.Store == nil {
		return
	}
	if err := o.Store.Save(ctx, room); err != nil {
		log.Warn().Err(err).Str("module", "orch").Str("room_id", string(room.ID)).Msg("save room")
	}
}

// ensureRoom makes a stored but not yet live room joinable.
func (o *Orchestrator) ensureRoom(ctx context.Context, roomID domain.RoomID) error {
	if ok, _ := o.Rooms.Exists(ctx, roomID); ok {
		return nil
	}
	if o.Store == nil {
		return domain.ErrRoomNotFound
	}
	rec, err := o.Store.Get(ctx, roomID)
	if err != nil {
		if !errors.Is(err, core.ErrRoomNotStored) {
			log.Error().Err(err).Str("module", "orch").Str("room_id", string(roomID)).Msg("room store lookup")
		}
		return domain.ErrRoomNotFound
	}
	o.Rooms.Hydrate(rec)
	return nil
}

func guestName(sid core.SessionID) string {
	s := string(sid)
	if len(s) > 4 {
		s = s[:4]
	}
	return "Guest-" + s
}

// Join seats sid in roomID, leaving any other room first.
func (o *Orchestrator) Join(ctx context.Context, sid core.SessionID, roomID domain.RoomID, displayName string) error {
	if roomID == "" {
		return invalid("roomId is required")
	}
	name, err := domain.NormalizeDisplayName(displayName)
	switch {
	case errors.Is(err, domain.ErrDisplayNameEmpty):
		name = guestName(sid)
	case err != nil:
		return invalid(err.Error())
	}

	if cur, ok := o.Registry.RoomOf(sid); ok && cur != roomID {
		o.removePeer(cur, sid.PeerID(), ReasonSwitched)
	}
	if err := o.ensureRoom(ctx, roomID); err != nil {
		return err
	}

	unlock := o.lock(roomID)
	res, err := o.Rooms.Join(roomID, domain.PeerInfo{ID: sid.PeerID(), DisplayName: name})
	if err != nil {
		unlock()
		log.Info().Str("module", "orch").Str("room_id", string(roomID)).Str("sid", string(sid)).
			Str("code", string(domain.CodeOf(err, ""))).Msg("join rejected")
		return err
	}
	if !o.Registry.SetRoom(sid, roomID) {
		log.Warn().Str("module", "orch").Str("sid", string(sid)).Msg("join without bound connection")
	}
	if !o.Context.HasRoom(roomID) {
		o.Context.InitRoom(roomID, o.cfg.SystemPrompt)
	}
	o.Context.AddParticipant(roomID, string(res.Peer.ID), res.Peer.DisplayName)

	joiner := res.Peer.ID
	views := make([]PeerView, 0, len(res.Existing))
	for _, other := range res.Existing {
		views = append(views, PeerView{Peer: other, ShouldOffer: app.ShouldInitiate(joiner, other.ID)})
	}
	ev := roomJoinedEvent{
		Type:       EventRoomJoined,
		Room:       res.Room,
		Peer:       res.Peer,
		Peers:      views,
		ICEServers: o.cfg.ICEServers,
		AI:         o.aiView(roomID),
		Rejoined:   res.Rejoined,
	}
	if st, ok := o.Media.Snapshot(roomID, o.now()); ok {
		ev.Video = &st
	}
	o.send(roomID, joiner, ev)

	for _, other := range res.Existing {
		o.send(roomID, other.ID, peerJoinedEvent{
			Type: EventPeerJoined,
			Peer: PeerView{Peer: res.Peer, ShouldOffer: app.ShouldInitiate(other.ID, joiner)},
		})
	}

	ai, _ := o.AI.Get(roomID)
	unlock()

	// backend writes stay outside the room lock
	if ai != nil && !res.Rejoined {
		ai.InjectContext(roomID, res.Peer.DisplayName+" joined the call.")
	}
	return nil
}

// Leave takes sid out of its room. Leaving twice is harmless.
func (o *Orchestrator) Leave(sid core.SessionID) {
	roomID, ok := o.Registry.RoomOf(sid)
	if ok {
		o.removePeer(roomID, sid.PeerID(), ReasonLeft)
	}
	o.sendSession(sid, roomEvent{Type: EventRoomLeft, RoomID: roomID})
}

// Disconnect cleans up after a transport went away. A connection that was
// already replaced by a newer one for the same session is ignored.
func (o *Orchestrator) Disconnect(sid core.SessionID, conn core.SignalConnection) {
	cur, ok := o.Registry.Conn(sid)
	if !ok || cur != conn {
		return
	}
	if roomID, ok := o.Registry.RoomOf(sid); ok {
		o.removePeer(roomID, sid.PeerID(), ReasonDisconnected)
	}
	o.Registry.Unbind(sid, conn)
}

// removePeer is the single exit path for a seated peer.
func (o *Orchestrator) removePeer(roomID domain.RoomID, peerID domain.PeerID, reason string) bool {
	unlock := o.lock(roomID)
	res, ok := o.Rooms.Leave(roomID, peerID)
	o.Registry.ClearRoom(core.SessionID(peerID), roomID)
	if !ok {
		unlock()
		return false
	}
	o.Context.RemoveParticipant(roomID, string(peerID))
	o.broadcast(roomID, peerLeftEvent{Type: EventPeerLeft, PeerID: peerID, Reason: reason}, "")

	empty := res.Remaining == 0
	var ai voiceai.Provider
	if empty {
		o.Media.Remove(roomID)
		ai, _ = o.AI.Detach(roomID)
	} else {
		ai, _ = o.AI.Get(roomID)
	}
	unlock()

	switch {
	case ai != nil && empty:
		_ = ai.CloseSession()
		log.Info().Str("module", "orch").Str("room_id", string(roomID)).Msg("room empty, AI session closed")
	case ai != nil:
		ai.InjectContext(roomID, res.Peer.DisplayName+" left the call.")
	}
	log.Info().Str("module", "orch").Str("room_id", string(roomID)).Str("sid", string(peerID)).
		Str("reason", reason).Int("remaining", res.Remaining).Msg("peer removed")
	return true
}

// UpdatePresence applies a presence patch and tells the rest of the room.
func (o *Orchestrator) UpdatePresence(sid core.SessionID, patch domain.PeerPatch) error {
	roomID, err := o.roomOf(sid)
	if err != nil {
		return err
	}
	if patch.Empty() {
		return invalid("nothing to update")
	}
	if patch.ConnState != nil && !patch.ConnState.Valid() {
		return invalid("unknown connectionState")
	}
	if patch.DisplayName != nil {
		name, err := domain.NormalizeDisplayName(*patch.DisplayName)
		if err != nil {
			return invalid(err.Error())
		}
		patch.DisplayName = &name
	}

	unlock := o.lock(roomID)
	peer, ok := o.Rooms.UpdatePeer(roomID, sid.PeerID(), patch)
	if !ok {
		unlock()
		return ErrNotInRoom
	}
	if patch.DisplayName != nil {
		o.Context.AddParticipant(roomID, string(peer.ID), peer.DisplayName)
	}
	o.broadcast(roomID, peerUpdatedEvent{Type: EventPeerUpdated, Peer: peer}, peer.ID)
	var effect func()
	if patch.Speaking != nil {
		effect = o.speakingChanged(roomID, peer, *patch.Speaking)
	}
	unlock()

	if effect != nil {
		effect()
	}
	return nil
}

// CloseRoom closes roomID on behalf of actor, who must own it. An empty actor skips the check.
func (o *Orchestrator) CloseRoom(ctx context.Context, actor domain.PeerID, roomID domain.RoomID) error {
	room, ok := o.Rooms.GetRoom(roomID)
	if !ok {
		return domain.ErrRoomNotFound
	}
	if actor != "" && room.OwnerID != actor {
		return ErrNotOwner
	}
	return o.closeRoom(ctx, roomID, ReasonClosed)
}

func (o *Orchestrator) closeRoom(ctx context.Context, roomID domain.RoomID, reason string) error {
	unlock := o.lock(roomID)
	evicted, err := o.Rooms.CloseRoom(roomID)
	if err != nil {
		unlock()
		return err
	}
	if frame, ok := encode(roomEvent{Type: EventRoomClosed, RoomID: roomID, Reason: reason}); ok {
		for _, p := range evicted {
			o.deliver(roomID, p.ID, frame)
		}
	}
	for _, p := range evicted {
		o.Registry.ClearRoom(core.SessionID(p.ID), roomID)
	}
	o.Media.Remove(roomID)
	ai, _ := o.AI.Detach(roomID)
	unlock()

	if ai != nil {
		_ = ai.CloseSession()
	}
	o.Context.RemoveRoom(roomID)
	if o.Store != nil {
		if err := o.Store.Delete(ctx, roomID); err != nil {
			log.Warn().Err(err).Str("module", "orch").Str("room_id", string(roomID)).Msg("delete stored room")
		}
	}
	log.Info().Str("module", "orch").Str("room_id", string(roomID)).Str("reason", reason).
		Int("evicted", len(evicted)).Msg("room closed")
	return nil
}

// Sweep closes rooms that stayed empty past the idle ttl and forgets closed ones.
func (o *Orchestrator) Sweep(ctx context.Context) int {
	closed := 0
	for _, id := range o.Rooms.IdleRooms(o.cfg.IdleTTL) {
		room, ok := o.Rooms.GetRoom(id)
		if !ok {
			continue
		}
		if room.Status == domain.RoomClosed {
			o.Rooms.Forget(id)
			o.dropLock(id)
			continue
		}
		if err := o.closeRoom(ctx, id, ReasonIdle); err == nil {
			closed++
		}
	}
	return closed
}

// MediaSync answers a late joiner or a drifting client with the projected playback state.
func (o *Orchestrator) MediaSync(sid core.SessionID) error {
	roomID, err := o.roomOf(sid)
	if err != nil {
		return err
	}
	now := o.now()
	ev := videoSyncEvent{Type: EventVideoSync, SyncTimestamp: now.UnixMilli()}
	if st, ok := o.Media.Snapshot(roomID, now); ok {
		ev.State = &st
	}
	o.send(roomID, sid.PeerID(), ev)
	return nil
}

// MediaControl applies a playback control and broadcasts the result to the whole room.
func (o *Orchestrator) MediaControl(sid core.SessionID, c mediasync.Control) error {
	roomID, err := o.roomOf(sid)
	if err != nil {
		return err
	}
	_, err = o.applyMedia(roomID, c, sid.PeerID())
	return err
}

func (o *Orchestrator) applyMedia(roomID domain.RoomID, c mediasync.Control, by domain.PeerID) (mediasync.Event, error) {
	unlock := o.lock(roomID)
	defer unlock()

	ev, err := o.Media.Apply(roomID, c, by, o.now())
	if errors.Is(err, mediasync.ErrStaleItem) {
		return mediasync.Event{}, nil
	}
	if err != nil {
		return mediasync.Event{}, domain.Reject(domain.CodeMediaRejected, err.Error())
	}
	o.broadcast(roomID, ev, "")
	return ev, nil
}

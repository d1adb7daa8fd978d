package client

import (
	"errors"

	"go.uber.org/zap"

	"github.com/cory-johannsen/edgemultiplay/internal/events"
	"github.com/cory-johannsen/edgemultiplay/internal/game/observe"
	"github.com/cory-johannsen/edgemultiplay/internal/game/player"
	"github.com/cory-johannsen/edgemultiplay/internal/game/session"
	"github.com/cory-johannsen/edgemultiplay/internal/protocol"
)

func (c *Client) handleReliable(data []byte) {
	msg, err := protocol.Decode(data)
	if err != nil {
		c.dropUndecodable("reliable", data, err)
		return
	}

	switch m := msg.(type) {
	case *protocol.Register:
		c.handleRegister(m)
	case *protocol.Notification:
		c.handleNotification(m)
	case *protocol.RoomsList:
		c.surface.RoomsList.Emit(m.Rooms)
	case *protocol.AvailableRoomsList:
		c.surface.AvailableRoomsList.Emit(m.AvailableRooms)
	case *protocol.RoomCreated:
		if c.enterRoom(m.Room) {
			c.surface.RoomCreated.Emit(m.Room)
			c.startIfReady(m.Room)
		}
	case *protocol.RoomJoin:
		if c.enterRoom(m.Room) {
			c.surface.RoomJoined.Emit(m.Room)
			c.startIfReady(m.Room)
		}
	case *protocol.PlayerJoinedRoom:
		c.handlePlayerJoined(m.Room)
	case *protocol.MemberLeft:
		c.handleMemberLeft(m.IDOfPlayerLeft)
	case *protocol.GameStart:
		c.startGame(m.Room)
	case *protocol.GamePlayEvent:
		c.handleGamePlayEvent(*m)
	default:
		c.logger.Debug("ignoring request-type message from server", zap.String("type", msg.MessageType()))
	}
}

func (c *Client) handleUnreliable(data []byte) {
	msg, err := protocol.Decode(data)
	if err != nil {
		c.dropUndecodable("unreliable", data, err)
		return
	}
	ev, ok := msg.(*protocol.GamePlayEvent)
	if !ok {
		c.logger.Warn("dropping non-event datagram", zap.String("type", msg.MessageType()))
		return
	}
	if ev.EventName == protocol.EventObserverSync {
		c.engine.ApplySync(*ev)
		return
	}
	c.surface.UDPEventReceived.Emit(*ev)
}

func (c *Client) dropUndecodable(channel string, data []byte, err error) {
	var unknown *protocol.UnknownTypeError
	if errors.As(err, &unknown) {
		c.logger.Warn("dropping unknown message type",
			zap.String("channel", channel),
			zap.String("type", unknown.Type),
		)
		return
	}
	c.logger.Warn("dropping malformed message",
		zap.String("channel", channel),
		zap.Int("size", len(data)),
		zap.Error(err),
	)
}

func (c *Client) handleRegister(m *protocol.Register) {
	if err := c.sess.Register(m.SessionID, m.PlayerID); err != nil {
		c.logger.Warn("unexpected register", zap.String("player_id", m.PlayerID), zap.Error(err))
		return
	}
	c.logger.Info("registered",
		zap.String("session_id", m.SessionID),
		zap.String("player_id", m.PlayerID),
	)
	c.surface.Registered.Emit(events.Registered{SessionID: m.SessionID, PlayerID: m.PlayerID})
}

// enterRoom records membership of r. It reports false when the session
// cannot accept a room confirmation in its current state.
func (c *Client) enterRoom(r protocol.Room) bool {
	if err := c.sess.EnterRoom(r.RoomID, r.RoomMembers); err != nil {
		c.logger.Warn("unexpected room confirmation", zap.String("room_id", r.RoomID), zap.Error(err))
		return false
	}
	c.logger.Info("entered room",
		zap.String("room_id", r.RoomID),
		zap.Int("members", len(r.RoomMembers)),
		zap.Int("start_threshold", r.StartThreshold()),
	)
	return true
}

func (c *Client) startIfReady(r protocol.Room) {
	if c.sess.State() == session.InRoom && len(r.RoomMembers) >= r.StartThreshold() {
		c.startGame(r)
	}
}

func (c *Client) handlePlayerJoined(r protocol.Room) {
	if !c.sess.InRoom() || r.RoomID != c.sess.RoomID() {
		c.logger.Warn("player joined a room we are not in", zap.String("room_id", r.RoomID))
		return
	}
	previous := c.sess.Roster()
	c.sess.SetRoster(r.RoomMembers)

	var newcomers []protocol.Player
	for _, p := range r.RoomMembers {
		if !containsPlayer(previous, p.PlayerID) && !c.sess.IsLocal(p.PlayerID) {
			newcomers = append(newcomers, p)
		}
	}
	if len(newcomers) == 0 {
		return
	}
	c.surface.PlayerJoinedRoom.Emit(r)

	if c.sess.Playing() {
		for _, p := range newcomers {
			if err := c.spawn(p); err != nil {
				c.fail(err)
				return
			}
		}
		return
	}
	c.startIfReady(r)
}

func containsPlayer(roster []protocol.Player, playerID string) bool {
	for _, p := range roster {
		if p.PlayerID == playerID {
			return true
		}
	}
	return false
}

// startGame runs game-start handling once per room.
func (c *Client) startGame(r protocol.Room) {
	if c.sess.State() != session.InRoom {
		c.logger.Debug("ignoring game start", zap.Stringer("state", c.sess.State()), zap.String("room_id", r.RoomID))
		return
	}
	if r.RoomID != "" && r.RoomID != c.sess.RoomID() {
		c.logger.Warn("game start for another room", zap.String("room_id", r.RoomID))
		return
	}
	if err := c.sess.StartGame(r.RoomMembers); err != nil {
		c.logger.Warn("cannot start game", zap.String("room_id", r.RoomID), zap.Error(err))
		return
	}
	for _, p := range c.sess.Roster() {
		if err := c.spawn(p); err != nil {
			c.fail(err)
			return
		}
	}
	c.engine.ClaimOrphans()
	c.openUnreliable()
	if err := c.BroadcastUnreliable(protocol.StartProbe()); err != nil {
		c.logger.Warn("sending start probe failed", zap.Error(err))
	}

	c.logger.Info("game started",
		zap.String("room_id", c.sess.RoomID()),
		zap.Int("player_index", c.sess.PlayerIndex()),
		zap.Int("players", c.players.Len()),
	)
	c.surface.GameStarted.Emit(r)
}

// spawn creates p's entity and, when its template declares one, registers
// the avatar observable as index 0 of p's observer. Players that already
// have an entity are skipped.
func (c *Client) spawn(p protocol.Player) error {
	if c.players.Has(p.PlayerID) {
		return nil
	}
	e, err := c.players.Spawn(p, c.sess.RoomID(), c.sess.IsLocal(p.PlayerID))
	if err != nil {
		return err
	}
	tmpl := e.Template.Observable
	if tmpl == nil {
		return nil
	}
	mode, err := tmpl.SyncMode()
	if err != nil {
		return &player.ConfigError{PlayerID: p.PlayerID, Reason: err.Error()}
	}
	_, err = c.engine.Register(p.PlayerID, e.Transform, observe.Options{
		Mode:                mode,
		InterpolatePosition: tmpl.InterpolatePosition,
		InterpolateRotation: tmpl.InterpolateRotation,
		InterpolationFactor: tmpl.InterpolationFactor,
		Prefab:              e.Template.Name,
	}, false)
	return err
}

func (c *Client) openUnreliable() {
	host, port := c.endpoint.ResolvedHost(), c.endpoint.UnreliablePort
	if !c.endpoint.UseLocalHost && c.discovery != nil {
		h, p, err := c.discovery.UnreliableEndpoint(c.ctx)
		if err != nil {
			c.logger.Warn("discovery failed, using configured endpoint", zap.Error(err))
		} else {
			host, port = h, p
		}
	}
	if err := c.conn.OpenUnreliable(c.ctx, host, port, c.sess.UDPReceivePort()); err != nil {
		c.logger.Error("opening unreliable channel failed", zap.Error(err))
	}
}

func (c *Client) handleMemberLeft(playerID string) {
	if !c.sess.InRoom() {
		c.logger.Warn("member-left outside a room", zap.String("player_id", playerID))
		return
	}
	if _, ok := c.sess.RemoveMember(playerID); !ok {
		c.logger.Warn("unknown member left", zap.String("player_id", playerID))
		return
	}
	c.players.Destroy(playerID)
	c.engine.RemoveOwner(playerID)
	c.surface.PlayerLeft.Emit(events.PlayerLeft{PlayerID: playerID, RoomID: c.sess.RoomID()})
}

func (c *Client) handleNotification(m *protocol.Notification) {
	switch m.NotificationText {
	case protocol.NotificationLeftRoom:
		c.leaveRoom()
		c.surface.LeftRoom.Emit(events.Signal{})
	case protocol.NotificationJoinRoomFailure, protocol.NotificationJoinRoomFailureLegacy:
		c.surface.JoinRoomFailed.Emit(events.Signal{})
	case protocol.NotificationNewRoomCreatedInLobby:
		c.surface.NewRoomCreatedInLobby.Emit(events.Signal{})
	case protocol.NotificationRoomsUpdated:
		c.surface.RoomsUpdated.Emit(events.Signal{})
	default:
		c.logger.Debug("notification", zap.String("text", m.NotificationText))
	}
	c.surface.Notification.Emit(*m)
}

func (c *Client) leaveRoom() {
	roomID := c.sess.RoomID()
	c.players.Clear()
	c.engine.Reset()
	c.conn.CloseUnreliable()
	if err := c.sess.LeaveRoom(); err != nil {
		c.logger.Warn("left-room outside a room", zap.Error(err))
		return
	}
	c.logger.Info("left room", zap.String("room_id", roomID))
}

func (c *Client) handleGamePlayEvent(ev protocol.GamePlayEvent) {
	switch {
	case protocol.IsSyncControl(ev.EventName):
		c.engine.HandleControl(ev)
	case ev.EventName == protocol.EventObserverSync:
		c.engine.ApplySync(ev)
	default:
		c.surface.EventReceived.Emit(ev)
	}
}

func (c *Client) fail(err error) {
	c.logger.Error("fatal client error", zap.Error(err))
	c.fatal = err
}

// Package room builds room-directory requests and enforces the client-side
// preconditions that fail fast before anything reaches the server.
package room

import (
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/cory-johannsen/edgemultiplay/internal/protocol"
)

// MinRoomSize is the smallest room the server accepts.
const MinRoomSize = 2

var (
	// ErrRoomTooSmall is returned when maxPlayers is below MinRoomSize.
	ErrRoomTooSmall = errors.New("room: maxPlayersPerRoom must be greater than 1")
	// ErrMinExceedsMax is returned when the start threshold exceeds capacity.
	ErrMinExceedsMax = errors.New("room: minPlayersToStartGame exceeds maxPlayersPerRoom")
	// ErrAlreadyInRoom is returned when the player is already a room member.
	ErrAlreadyInRoom = errors.New("room: player is already a member of a room")
	// ErrNotInRoom is returned by ExitRoom outside a room.
	ErrNotInRoom = errors.New("room: player is not a member of a room")
	// ErrNotRegistered is returned before the server has assigned a player ID.
	ErrNotRegistered = errors.New("room: session is not registered")
)

// Sender delivers a request over the reliable channel.
type Sender interface {
	SendReliable(msg protocol.Message) error
}

// SessionView is the read-only session state the directory consults.
type SessionView interface {
	PlayerID() string
	PlayerName() string
	RoomID() string
}

// Request carries the player-facing arguments shared by create and join.
type Request struct {
	// PlayerName overrides the session's name when non-empty.
	PlayerName string
	Avatar     int
	Tags       map[string]string
}

// Directory issues room requests for the local session.
type Directory struct {
	logger *zap.Logger
	sess   SessionView
	sender Sender
}

// NewDirectory creates a Directory.
//
// Precondition: logger, sess, and sender must not be nil.
func NewDirectory(logger *zap.Logger, sess SessionView, sender Sender) *Directory {
	return &Directory{logger: logger, sess: sess, sender: sender}
}

func (d *Directory) reject(op string, err error, fields ...zap.Field) error {
	d.logger.Warn("room request rejected",
		append([]zap.Field{zap.String("op", op), zap.Error(err)}, fields...)...)
	return err
}

func (d *Directory) name(req Request) string {
	if req.PlayerName != "" {
		return req.PlayerName
	}
	return d.sess.PlayerName()
}

func (d *Directory) capacity(op string, maxPlayers, minPlayers int) (int, error) {
	if maxPlayers < MinRoomSize {
		return 0, d.reject(op, ErrRoomTooSmall, zap.Int("max_players", maxPlayers))
	}
	if minPlayers > maxPlayers {
		return 0, d.reject(op, ErrMinExceedsMax,
			zap.Int("min_players", minPlayers), zap.Int("max_players", maxPlayers))
	}
	if minPlayers <= 0 {
		minPlayers = maxPlayers
	}
	return minPlayers, nil
}

func (d *Directory) send(op string, msg protocol.Message) error {
	if err := d.sender.SendReliable(msg); err != nil {
		return fmt.Errorf("sending %s: %w", op, err)
	}
	d.logger.Debug("room request sent", zap.String("op", op))
	return nil
}

// CreateRoom asks the server for a new room.
//
// Precondition: registered, not in a room, maxPlayers >= 2 and
// minPlayersToStart <= maxPlayers. A minPlayersToStart of 0 means maxPlayers.
// Postcondition: On violation nothing is sent and a sentinel error is returned.
func (d *Directory) CreateRoom(req Request, maxPlayers, minPlayersToStart int) error {
	const op = "CreateRoom"
	if d.sess.PlayerID() == "" {
		return d.reject(op, ErrNotRegistered)
	}
	minPlayers, err := d.capacity(op, maxPlayers, minPlayersToStart)
	if err != nil {
		return err
	}
	if roomID := d.sess.RoomID(); roomID != "" {
		return d.reject(op, fmt.Errorf("%w: already in another room", ErrAlreadyInRoom), zap.String("room_id", roomID))
	}
	return d.send(op, &protocol.CreateRoom{
		PlayerID:              d.sess.PlayerID(),
		PlayerName:            d.name(req),
		PlayerAvatar:          req.Avatar,
		MaxPlayersPerRoom:     maxPlayers,
		MinPlayersToStartGame: minPlayers,
		PlayerTags:            req.Tags,
	})
}

// JoinOrCreateRoom joins any room with space, or creates one.
//
// Precondition: registered, maxPlayers >= 2 and minPlayersToStart <= maxPlayers.
func (d *Directory) JoinOrCreateRoom(req Request, maxPlayers, minPlayersToStart int) error {
	const op = "JoinOrCreateRoom"
	if d.sess.PlayerID() == "" {
		return d.reject(op, ErrNotRegistered)
	}
	minPlayers, err := d.capacity(op, maxPlayers, minPlayersToStart)
	if err != nil {
		return err
	}
	return d.send(op, &protocol.JoinOrCreateRoom{
		PlayerID:              d.sess.PlayerID(),
		PlayerName:            d.name(req),
		PlayerAvatar:          req.Avatar,
		MaxPlayersPerRoom:     maxPlayers,
		MinPlayersToStartGame: minPlayers,
		PlayerTags:            req.Tags,
	})
}

// JoinRoom joins roomID.
//
// Precondition: registered and not in a room.
func (d *Directory) JoinRoom(roomID string, req Request) error {
	const op = "JoinRoom"
	if d.sess.PlayerID() == "" {
		return d.reject(op, ErrNotRegistered)
	}
	if current := d.sess.RoomID(); current != "" {
		where := "another room"
		if current == roomID {
			where = "this room"
		}
		return d.reject(op, fmt.Errorf("%w: already in %s", ErrAlreadyInRoom, where), zap.String("room_id", current))
	}
	return d.send(op, &protocol.JoinRoom{
		RoomID:       roomID,
		PlayerID:     d.sess.PlayerID(),
		PlayerName:   d.name(req),
		PlayerAvatar: req.Avatar,
		PlayerTags:   req.Tags,
	})
}

// ListRooms requests every room on the server.
func (d *Directory) ListRooms() error {
	return d.send("GetRooms", &protocol.GetRooms{})
}

// ListAvailableRooms requests the rooms that still have space.
func (d *Directory) ListAvailableRooms() error {
	return d.send("GetAvailableRooms", &protocol.GetAvailableRooms{})
}

// ExitRoom asks the server to remove the player from the current room. Local
// teardown happens when the server confirms with a left-room notification.
//
// Precondition: in a room.
func (d *Directory) ExitRoom() error {
	const op = "ExitRoom"
	roomID := d.sess.RoomID()
	if roomID == "" {
		return d.reject(op, ErrNotInRoom)
	}
	return d.send(op, &protocol.ExitRoom{PlayerID: d.sess.PlayerID(), RoomID: roomID})
}

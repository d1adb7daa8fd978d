// Package protocol defines the relay server wire messages and the codec that
// converts between wire text and typed message records.
package protocol

// Inbound message discriminators (server to client).
const (
	TypeRegister           = "register"
	TypeNotification       = "notification"
	TypeRoomsList          = "roomsList"
	TypeAvailableRoomsList = "availableRoomsList"
	TypeRoomCreated        = "roomCreated"
	TypeRoomJoin           = "roomJoin"
	TypePlayerJoinedRoom   = "playerJoinedRoom"
	TypeMemberLeft         = "memberLeft"
	TypeGameStart          = "gameStart"
	TypeGamePlayEvent      = "GamePlayEvent"
)

// Outbound request discriminators (client to server).
const (
	TypeCreateRoom        = "CreateRoom"
	TypeJoinOrCreateRoom  = "JoinOrCreateRoom"
	TypeJoinRoom          = "JoinRoom"
	TypeGetRooms          = "GetRooms"
	TypeGetAvailableRooms = "GetAvailableRooms"
	TypeExitRoom          = "ExitRoom"
)

// Notification texts sent by the relay server.
const (
	NotificationLeftRoom              = "left-room"
	NotificationJoinRoomFailure       = "join-room-failure"
	NotificationJoinRoomFailureLegacy = "join-room-faliure"
	NotificationNewRoomCreatedInLobby = "new-room-created-in-lobby"
	NotificationRoomsUpdated          = "rooms-updated"
)

// Message is any typed wire record.
type Message interface {
	// MessageType returns the wire discriminator.
	MessageType() string
}

// Player is a room member as reported by the server. PlayerTags, here and in
// the room requests, is omitted only when nil; an empty map encodes as {}.
type Player struct {
	PlayerID     string            `json:"playerId"`
	PlayerName   string            `json:"playerName"`
	PlayerIndex  int               `json:"playerIndex"`
	PlayerAvatar int               `json:"playerAvatar"`
	UDPPort      int               `json:"udpPort,omitempty"`
	PlayerTags   map[string]string `json:"playerTags,omitzero"`
}

// Room is the server's view of a room at the time a message was sent.
type Room struct {
	RoomID                string   `json:"roomId"`
	RoomMembers           []Player `json:"roomMembers"`
	MaxPlayersPerRoom     int      `json:"maxPlayersPerRoom"`
	MinPlayersToStartGame int      `json:"minPlayersToStartGame,omitempty"`
}

// StartThreshold returns the member count at which the game starts.
// Servers that do not report a minimum start when the room is full.
func (r Room) StartThreshold() int {
	if r.MinPlayersToStartGame > 0 {
		return r.MinPlayersToStartGame
	}
	return r.MaxPlayersPerRoom
}

// Member returns the member with the given player ID.
func (r Room) Member(playerID string) (Player, bool) {
	for _, p := range r.RoomMembers {
		if p.PlayerID == playerID {
			return p, true
		}
	}
	return Player{}, false
}

// Register assigns the session identity after connect.
type Register struct {
	SessionID string `json:"sessionId"`
	PlayerID  string `json:"playerId"`
}

// Notification carries a free-text server notice.
type Notification struct {
	NotificationText string `json:"notificationText"`
}

// RoomsList answers GetRooms.
type RoomsList struct {
	Rooms []Room `json:"rooms"`
}

// AvailableRoomsList answers GetAvailableRooms.
type AvailableRoomsList struct {
	AvailableRooms []Room `json:"availableRooms"`
}

// RoomCreated confirms a CreateRoom or JoinOrCreateRoom that created a room.
type RoomCreated struct {
	Room Room `json:"room"`
}

// RoomJoin confirms that the local player joined an existing room.
type RoomJoin struct {
	Room Room `json:"room"`
}

// PlayerJoinedRoom reports a new member of the current room.
type PlayerJoinedRoom struct {
	Room Room `json:"room"`
}

// MemberLeft reports a member leaving the current room.
type MemberLeft struct {
	IDOfPlayerLeft string `json:"idOfPlayerLeft"`
}

// GameStart reports that the room reached its start threshold.
type GameStart struct {
	Room Room `json:"room"`
}

// CreateRoom asks the server for a new room.
type CreateRoom struct {
	PlayerID              string            `json:"playerId"`
	PlayerName            string            `json:"playerName"`
	PlayerAvatar          int               `json:"playerAvatar"`
	MaxPlayersPerRoom     int               `json:"maxPlayersPerRoom"`
	MinPlayersToStartGame int               `json:"minPlayersToStartGame"`
	PlayerTags            map[string]string `json:"playerTags,omitzero"`
}

// JoinOrCreateRoom joins any room with space or creates one.
type JoinOrCreateRoom struct {
	PlayerID              string            `json:"playerId"`
	PlayerName            string            `json:"playerName"`
	PlayerAvatar          int               `json:"playerAvatar"`
	MaxPlayersPerRoom     int               `json:"maxPlayersPerRoom"`
	MinPlayersToStartGame int               `json:"minPlayersToStartGame"`
	PlayerTags            map[string]string `json:"playerTags,omitzero"`
}

// JoinRoom joins a specific room.
type JoinRoom struct {
	RoomID       string            `json:"roomId"`
	PlayerID     string            `json:"playerId"`
	PlayerName   string            `json:"playerName"`
	PlayerAvatar int               `json:"playerAvatar"`
	PlayerTags   map[string]string `json:"playerTags,omitzero"`
}

// GetRooms lists all rooms.
type GetRooms struct{}

// GetAvailableRooms lists rooms that still have space.
type GetAvailableRooms struct{}

// ExitRoom leaves the current room.
type ExitRoom struct {
	PlayerID string `json:"playerId"`
	RoomID   string `json:"roomId"`
}

func (*Register) MessageType() string           { return TypeRegister }
func (*Notification) MessageType() string       { return TypeNotification }
func (*RoomsList) MessageType() string          { return TypeRoomsList }
func (*AvailableRoomsList) MessageType() string { return TypeAvailableRoomsList }
func (*RoomCreated) MessageType() string        { return TypeRoomCreated }
func (*RoomJoin) MessageType() string           { return TypeRoomJoin }
func (*PlayerJoinedRoom) MessageType() string   { return TypePlayerJoinedRoom }
func (*MemberLeft) MessageType() string         { return TypeMemberLeft }
func (*GameStart) MessageType() string          { return TypeGameStart }
func (*GamePlayEvent) MessageType() string      { return TypeGamePlayEvent }
func (*CreateRoom) MessageType() string         { return TypeCreateRoom }
func (*JoinOrCreateRoom) MessageType() string   { return TypeJoinOrCreateRoom }
func (*JoinRoom) MessageType() string           { return TypeJoinRoom }
func (*GetRooms) MessageType() string           { return TypeGetRooms }
func (*GetAvailableRooms) MessageType() string  { return TypeGetAvailableRooms }
func (*ExitRoom) MessageType() string           { return TypeExitRoom }

// newMessage returns an empty record for a discriminator, or nil if unknown.
func newMessage(msgType string) Message {
	switch msgType {
	case TypeRegister:
		return &Register{}
	case TypeNotification:
		return &Notification{}
	case TypeRoomsList:
		return &RoomsList{}
	case TypeAvailableRoomsList:
		return &AvailableRoomsList{}
	case TypeRoomCreated:
		return &RoomCreated{}
	case TypeRoomJoin:
		return &RoomJoin{}
	case TypePlayerJoinedRoom:
		return &PlayerJoinedRoom{}
	case TypeMemberLeft:
		return &MemberLeft{}
	case TypeGameStart:
		return &GameStart{}
	case TypeGamePlayEvent:
		return &GamePlayEvent{}
	case TypeCreateRoom:
		return &CreateRoom{}
	case TypeJoinOrCreateRoom:
		return &JoinOrCreateRoom{}
	case TypeJoinRoom:
		return &JoinRoom{}
	case TypeGetRooms:
		return &GetRooms{}
	case TypeGetAvailableRooms:
		return &GetAvailableRooms{}
	case TypeExitRoom:
		return &ExitRoom{}
	default:
		return nil
	}
}

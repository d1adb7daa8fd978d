package events

import (
	"github.com/cory-johannsen/edgemultiplay/internal/protocol"
)

// Signal is the payload of hooks that carry no data.
type Signal struct{}

// ConnectionFailed describes why the reliable channel could not be opened.
type ConnectionFailed struct {
	Reason string
}

// Registered carries the identity assigned by the server.
type Registered struct {
	SessionID string
	PlayerID  string
}

// PlayerLeft identifies a member that left the current room.
type PlayerLeft struct {
	PlayerID string
	RoomID   string
}

// Surface groups every hook the client emits. The zero value is ready to use.
type Surface struct {
	Connected             Hook[Signal]
	ConnectionFailed      Hook[ConnectionFailed]
	Registered            Hook[Registered]
	Notification          Hook[protocol.Notification]
	RoomsList             Hook[[]protocol.Room]
	AvailableRoomsList    Hook[[]protocol.Room]
	RoomCreated           Hook[protocol.Room]
	RoomJoined            Hook[protocol.Room]
	PlayerJoinedRoom      Hook[protocol.Room]
	JoinRoomFailed        Hook[Signal]
	NewRoomCreatedInLobby Hook[Signal]
	RoomsUpdated          Hook[Signal]
	LeftRoom              Hook[Signal]
	GameStarted           Hook[protocol.Room]
	PlayerLeft            Hook[PlayerLeft]
	// EventReceived carries non-reserved reliable GamePlayEvents.
	EventReceived Hook[protocol.GamePlayEvent]
	// UDPEventReceived carries non-sync unreliable GamePlayEvents.
	UDPEventReceived   Hook[protocol.GamePlayEvent]
	OwnershipRequested Hook[protocol.OwnershipClaim]
}

// NewSurface returns an empty Surface.
func NewSurface() *Surface {
	return &Surface{}
}

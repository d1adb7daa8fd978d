// Package player spawns and tracks the networked entity bound to each room
// member.
package player

import (
	"github.com/cory-johannsen/edgemultiplay/internal/events"
	"github.com/cory-johannsen/edgemultiplay/internal/game/spatial"
	"github.com/cory-johannsen/edgemultiplay/internal/protocol"
)

// Broadcaster sends gameplay events to the other room members. The
// implementation stamps room and sender IDs.
type Broadcaster interface {
	BroadcastReliable(ev protocol.GamePlayEvent) error
	BroadcastUnreliable(ev protocol.GamePlayEvent) error
}

// Entity is the local instantiation of one room member.
type Entity struct {
	Player    protocol.Player
	RoomID    string
	Name      string
	IsLocal   bool
	Template  Template
	Transform *spatial.Transform
	// Messages receives every GamePlayEvent this player sent, on either
	// channel. Only remote entities listen.
	Messages events.Hook[protocol.GamePlayEvent]

	net  Broadcaster
	subs []*events.Subscription
}

// PlayerID returns the bound player's ID.
func (e *Entity) PlayerID() string { return e.Player.PlayerID }

// Index returns the bound player's index.
func (e *Entity) Index() int { return e.Player.PlayerIndex }

// listen subscribes a remote entity to both event hooks, filtered to events
// it sent.
func (e *Entity) listen(surface *events.Surface) {
	if e.IsLocal {
		return
	}
	forward := func(ev protocol.GamePlayEvent) {
		if ev.SenderID == e.Player.PlayerID {
			e.Messages.Emit(ev)
		}
	}
	e.subs = append(e.subs,
		surface.EventReceived.Subscribe(forward),
		surface.UDPEventReceived.Subscribe(forward),
	)
}

// stopListening removes the entity's hook subscriptions.
func (e *Entity) stopListening() {
	for _, s := range e.subs {
		s.Unsubscribe()
	}
	e.subs = nil
}

// Broadcast sends ev to the room over the reliable channel.
func (e *Entity) Broadcast(ev protocol.GamePlayEvent) error {
	return e.net.BroadcastReliable(ev)
}

// BroadcastUnreliable sends ev to the room over the datagram channel.
func (e *Entity) BroadcastUnreliable(ev protocol.GamePlayEvent) error {
	return e.net.BroadcastUnreliable(ev)
}

// BroadcastPosition sends a position in floatData[0:3].
func (e *Entity) BroadcastPosition(eventName string, position spatial.Vec3) error {
	return e.Broadcast(protocol.PositionEvent(eventName, position))
}

// BroadcastRotation sends Euler angles in floatData[0:3].
func (e *Entity) BroadcastRotation(eventName string, eulers spatial.Vec3) error {
	return e.Broadcast(protocol.RotationEvent(eventName, eulers))
}

// BroadcastPositionAndRotation sends a position then Euler angles in floatData[0:6].
func (e *Entity) BroadcastPositionAndRotation(eventName string, position, eulers spatial.Vec3) error {
	return e.Broadcast(protocol.PositionAndRotationEvent(eventName, position, eulers))
}

// BroadcastInts sends integerData.
func (e *Entity) BroadcastInts(eventName string, values []int) error {
	return e.Broadcast(protocol.IntegersEvent(eventName, values))
}

// BroadcastFloats sends floatData.
func (e *Entity) BroadcastFloats(eventName string, values []float64) error {
	return e.Broadcast(protocol.FloatsEvent(eventName, values))
}

// BroadcastData sends any combination of the four arrays; nil arrays are omitted.
func (e *Entity) BroadcastData(eventName string, strs []string, ints []int, floats []float64, bools []bool) error {
	return e.Broadcast(protocol.GamePlayEvent{
		EventName:   eventName,
		StringData:  strs,
		IntegerData: ints,
		FloatData:   floats,
		BooleanData: bools,
	})
}

// Package session tracks the local client's identity, room membership and
// roster, and the connection state machine that governs which server
// messages are meaningful.
package session

import "fmt"

// State is the client's position in the session lifecycle.
type State int

const (
	// Disconnected is the initial state and the state after Disconnect.
	Disconnected State = iota
	// Connected means the reliable channel is open but no identity is assigned.
	Connected
	// Registered means the server assigned a session and player ID.
	Registered
	// InRoom means the player is a member of a room that has not started.
	InRoom
	// Playing means the room's game has started.
	Playing
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connected:
		return "connected"
	case Registered:
		return "registered"
	case InRoom:
		return "in_room"
	case Playing:
		return "playing"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// transitions lists the legal successors of each state, excluding the
// universal edge to Disconnected.
var transitions = map[State][]State{
	Disconnected: {Connected},
	Connected:    {Registered},
	Registered:   {InRoom},
	InRoom:       {Playing, Registered},
	Playing:      {Registered},
}

// CanTransition reports whether from → to is a legal edge.
func CanTransition(from, to State) bool {
	if to == Disconnected {
		return true
	}
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// TransitionError reports an illegal state change.
type TransitionError struct {
	From State
	To   State
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("session: illegal transition %s -> %s", e.From, e.To)
}

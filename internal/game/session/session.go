package session

import (
	"fmt"
	"sync"

	"github.com/cory-johannsen/edgemultiplay/internal/protocol"
)

// Session is the local client's view of its identity and room.
// Mutators are called from the tick goroutine; readers may be called from
// any goroutine.
type Session struct {
	mu             sync.RWMutex
	state          State
	sessionID      string
	playerID       string
	playerName     string
	roomID         string
	playerIndex    int
	udpReceivePort int
	roster         []protocol.Player
}

// New returns a Disconnected session.
func New() *Session {
	return &Session{playerIndex: -1}
}

// Snapshot is an immutable copy of a Session.
type Snapshot struct {
	State          State
	SessionID      string
	PlayerID       string
	PlayerName     string
	RoomID         string
	PlayerIndex    int
	UDPReceivePort int
	Roster         []protocol.Player
}

// Snapshot returns a copy of the session's current fields.
func (s *Session) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Snapshot{
		State:          s.state,
		SessionID:      s.sessionID,
		PlayerID:       s.playerID,
		PlayerName:     s.playerName,
		RoomID:         s.roomID,
		PlayerIndex:    s.playerIndex,
		UDPReceivePort: s.udpReceivePort,
		Roster:         append([]protocol.Player(nil), s.roster...),
	}
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Transition moves the session to the given state.
//
// Postcondition: Returns a *TransitionError and leaves the state unchanged if
// the edge is illegal.
func (s *Session) Transition(to State) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.transitionLocked(to)
}

func (s *Session) transitionLocked(to State) error {
	if !CanTransition(s.state, to) {
		return &TransitionError{From: s.state, To: to}
	}
	s.state = to
	return nil
}

// Register records the identity assigned by the server.
//
// Precondition: state is Connected.
func (s *Session) Register(sessionID, playerID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.transitionLocked(Registered); err != nil {
		return err
	}
	s.sessionID = sessionID
	s.playerID = playerID
	return nil
}

// EnterRoom records membership of roomID with its current roster.
//
// Precondition: state is Registered.
func (s *Session) EnterRoom(roomID string, roster []protocol.Player) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.transitionLocked(InRoom); err != nil {
		return err
	}
	s.roomID = roomID
	s.roster = append([]protocol.Player(nil), roster...)
	return nil
}

// SetRoster replaces the roster with the server's latest view.
func (s *Session) SetRoster(roster []protocol.Player) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.roster = append([]protocol.Player(nil), roster...)
}

// StartGame snapshots the roster and takes the local player's index and
// datagram port from it.
//
// Precondition: state is InRoom and the local player is in roster.
// Postcondition: state is Playing.
func (s *Session) StartGame(roster []protocol.Player) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var local *protocol.Player
	for i := range roster {
		if roster[i].PlayerID == s.playerID {
			local = &roster[i]
			break
		}
	}
	if local == nil {
		return fmt.Errorf("session: local player %q not in roster", s.playerID)
	}
	if err := s.transitionLocked(Playing); err != nil {
		return err
	}
	s.roster = append([]protocol.Player(nil), roster...)
	s.playerIndex = local.PlayerIndex
	s.udpReceivePort = local.UDPPort
	if local.PlayerName != "" {
		s.playerName = local.PlayerName
	}
	return nil
}

// RemoveMember drops playerID from the roster.
//
// Postcondition: Returns the removed member, or false if it was not present.
func (s *Session) RemoveMember(playerID string) (protocol.Player, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, p := range s.roster {
		if p.PlayerID == playerID {
			s.roster = append(s.roster[:i:i], s.roster[i+1:]...)
			return p, true
		}
	}
	return protocol.Player{}, false
}

// LeaveRoom clears room membership and returns to Registered.
//
// Precondition: state is InRoom or Playing.
func (s *Session) LeaveRoom() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.transitionLocked(Registered); err != nil {
		return err
	}
	s.clearRoomLocked()
	return nil
}

func (s *Session) clearRoomLocked() {
	s.roomID = ""
	s.roster = nil
	s.playerIndex = -1
	s.udpReceivePort = 0
}

// Reset returns the session to Disconnected and clears every field except
// the preferred player name.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = Disconnected
	s.sessionID = ""
	s.playerID = ""
	s.clearRoomLocked()
}

// SessionID returns the server-assigned session ID.
func (s *Session) SessionID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sessionID
}

// PlayerID returns the server-assigned local player ID.
func (s *Session) PlayerID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.playerID
}

// PlayerName returns the local player's display name.
func (s *Session) PlayerName() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.playerName
}

// SetPlayerName sets the name sent with room requests.
func (s *Session) SetPlayerName(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.playerName = name
}

// RoomID returns the current room, or "" outside a room.
func (s *Session) RoomID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.roomID
}

// InRoom reports whether the session is a member of a room.
func (s *Session) InRoom() bool {
	st := s.State()
	return st == InRoom || st == Playing
}

// Playing reports whether the room's game has started.
func (s *Session) Playing() bool {
	return s.State() == Playing
}

// PlayerIndex returns the local player's index, or -1 before game start.
func (s *Session) PlayerIndex() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.playerIndex
}

// UDPReceivePort returns the local datagram port assigned at game start.
func (s *Session) UDPReceivePort() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.udpReceivePort
}

// Roster returns a copy of the room members in server order.
func (s *Session) Roster() []protocol.Player {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]protocol.Player(nil), s.roster...)
}

// Member returns the roster entry for playerID.
func (s *Session) Member(playerID string) (protocol.Player, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, p := range s.roster {
		if p.PlayerID == playerID {
			return p, true
		}
	}
	return protocol.Player{}, false
}

// PlayerAt returns the roster entry with the given player index.
func (s *Session) PlayerAt(index int) (protocol.Player, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, p := range s.roster {
		if p.PlayerIndex == index {
			return p, true
		}
	}
	return protocol.Player{}, false
}

// FirstMember returns the roster entry with the lowest player index.
func (s *Session) FirstMember() (protocol.Player, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var first protocol.Player
	found := false
	for _, p := range s.roster {
		if !found || p.PlayerIndex < first.PlayerIndex {
			first, found = p, true
		}
	}
	return first, found
}

// IsLocal reports whether playerID is the local player.
func (s *Session) IsLocal(playerID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return playerID != "" && playerID == s.playerID
}

// IsMaster reports whether the local player holds index 0 in a started game.
func (s *Session) IsMaster() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state == Playing && s.playerIndex == 0
}

// Package testutil provides an in-process relay server for end-to-end client
// tests.
package testutil

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	deadlock "github.com/sasha-s/go-deadlock"

	"github.com/cory-johannsen/edgemultiplay/internal/protocol"
	"github.com/cory-johannsen/edgemultiplay/internal/transport"
)

// Relay is a minimal room server. It assigns player IDs on connect, places
// players into rooms, announces game start once a room reaches its threshold,
// and forwards GamePlayEvents to the other members of the sender's room over
// both channels.
type Relay struct {
	server   *httptest.Server
	udp      *net.UDPConn
	upgrader websocket.Upgrader
	wg       sync.WaitGroup

	mu         deadlock.Mutex
	nextPeer   int
	nextRoom   int
	peers      map[string]*relayPeer
	rooms      []*relayRoom
	udpAddrs   map[string]*net.UDPAddr
	gameStarts map[string]int
	closed     bool
}

type relayPeer struct {
	id      string
	conn    *websocket.Conn
	writeMu sync.Mutex
	player  protocol.Player
	room    *relayRoom
}

type relayRoom struct {
	id      string
	max     int
	min     int
	members []*relayPeer
	started bool
}

func (r *relayRoom) view() protocol.Room {
	members := make([]protocol.Player, 0, len(r.members))
	for _, p := range r.members {
		members = append(members, p.player)
	}
	return protocol.Room{
		RoomID:                r.id,
		RoomMembers:           members,
		MaxPlayersPerRoom:     r.max,
		MinPlayersToStartGame: r.min,
	}
}

func (r *relayRoom) hasSpace() bool {
	return !r.started && len(r.members) < r.max
}

func (r *relayRoom) freeIndex() int {
	for i := 0; ; i++ {
		taken := false
		for _, p := range r.members {
			if p.player.PlayerIndex == i {
				taken = true
				break
			}
		}
		if !taken {
			return i
		}
	}
}

// NewRelay starts a relay on loopback ports. It is closed by t.Cleanup.
//
// Postcondition: Returns a listening relay, or fails the test.
func NewRelay(t testing.TB) *Relay {
	t.Helper()
	udp, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	if err != nil {
		t.Fatalf("listening for datagrams: %v", err)
	}
	r := &Relay{
		udp:        udp,
		peers:      make(map[string]*relayPeer),
		udpAddrs:   make(map[string]*net.UDPAddr),
		gameStarts: make(map[string]int),
	}
	r.server = httptest.NewServer(http.HandlerFunc(r.serveWS))
	r.wg.Add(1)
	go r.readDatagrams()
	t.Cleanup(r.Close)
	return r
}

// Endpoint returns a local-host endpoint addressing both relay channels.
func (r *Relay) Endpoint() transport.Endpoint {
	_, portStr, _ := net.SplitHostPort(r.server.Listener.Addr().String())
	port, _ := strconv.Atoi(portStr)
	return transport.Endpoint{
		UseLocalHost:   true,
		Host:           "127.0.0.1",
		ReliablePort:   port,
		UnreliablePort: r.udp.LocalAddr().(*net.UDPAddr).Port,
		Path:           "/",
		Timeout:        5 * time.Second,
	}
}

// GameStarts returns how many gameStart messages roomID produced.
func (r *Relay) GameStarts(roomID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.gameStarts[roomID]
}

// Rooms returns the current rooms.
func (r *Relay) Rooms() []protocol.Room {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]protocol.Room, 0, len(r.rooms))
	for _, rm := range r.rooms {
		out = append(out, rm.view())
	}
	return out
}

// DatagramSender reports whether the relay has learned playerID's datagram
// address.
func (r *Relay) DatagramSender(playerID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.udpAddrs[playerID]
	return ok
}

// Close disconnects every peer and stops both listeners. It is idempotent.
func (r *Relay) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	for _, p := range r.peers {
		_ = p.conn.Close()
	}
	r.mu.Unlock()

	r.server.Close()
	_ = r.udp.Close()
	r.wg.Wait()
}

func (r *Relay) serveWS(w http.ResponseWriter, req *http.Request) {
	conn, err := r.upgrader.Upgrade(w, req, nil)
	if err != nil {
		return
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		_ = conn.Close()
		return
	}
	r.nextPeer++
	p := &relayPeer{id: fmt.Sprintf("p%d", r.nextPeer), conn: conn}
	r.peers[p.id] = p
	r.send(p, &protocol.Register{SessionID: "s-" + p.id, PlayerID: p.id})
	r.mu.Unlock()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			r.mu.Lock()
			r.leave(p)
			delete(r.peers, p.id)
			r.mu.Unlock()
			_ = conn.Close()
			return
		}
		msg, err := protocol.Decode(data)
		if err != nil {
			continue
		}
		r.mu.Lock()
		r.handle(p, msg)
		r.mu.Unlock()
	}
}

// send writes msg to p. Caller holds r.mu.
func (r *Relay) send(p *relayPeer, msg protocol.Message) {
	data, err := protocol.Encode(msg)
	if err != nil {
		return
	}
	p.writeMu.Lock()
	defer p.writeMu.Unlock()
	_ = p.conn.WriteMessage(websocket.TextMessage, data)
}

func (r *Relay) notify(p *relayPeer, text string) {
	r.send(p, &protocol.Notification{NotificationText: text})
}

func (r *Relay) handle(p *relayPeer, msg protocol.Message) {
	switch m := msg.(type) {
	case *protocol.CreateRoom:
		if p.room != nil {
			r.notify(p, protocol.NotificationJoinRoomFailure)
			return
		}
		rm := r.createRoom(m.MaxPlayersPerRoom, m.MinPlayersToStartGame)
		r.join(p, rm, protocol.Player{PlayerName: m.PlayerName, PlayerAvatar: m.PlayerAvatar, PlayerTags: m.PlayerTags}, true)
	case *protocol.JoinOrCreateRoom:
		if p.room != nil {
			r.notify(p, protocol.NotificationJoinRoomFailure)
			return
		}
		info := protocol.Player{PlayerName: m.PlayerName, PlayerAvatar: m.PlayerAvatar, PlayerTags: m.PlayerTags}
		for _, rm := range r.rooms {
			if rm.max == m.MaxPlayersPerRoom && rm.hasSpace() {
				r.join(p, rm, info, false)
				return
			}
		}
		r.join(p, r.createRoom(m.MaxPlayersPerRoom, m.MinPlayersToStartGame), info, true)
	case *protocol.JoinRoom:
		rm := r.findRoom(m.RoomID)
		if p.room != nil || rm == nil || !rm.hasSpace() {
			r.notify(p, protocol.NotificationJoinRoomFailure)
			return
		}
		r.join(p, rm, protocol.Player{PlayerName: m.PlayerName, PlayerAvatar: m.PlayerAvatar, PlayerTags: m.PlayerTags}, false)
	case *protocol.GetRooms:
		list := &protocol.RoomsList{Rooms: []protocol.Room{}}
		for _, rm := range r.rooms {
			list.Rooms = append(list.Rooms, rm.view())
		}
		r.send(p, list)
	case *protocol.GetAvailableRooms:
		list := &protocol.AvailableRoomsList{AvailableRooms: []protocol.Room{}}
		for _, rm := range r.rooms {
			if rm.hasSpace() {
				list.AvailableRooms = append(list.AvailableRooms, rm.view())
			}
		}
		r.send(p, list)
	case *protocol.ExitRoom:
		if p.room == nil {
			return
		}
		r.leave(p)
		r.notify(p, protocol.NotificationLeftRoom)
	case *protocol.GamePlayEvent:
		if p.room == nil {
			return
		}
		for _, other := range p.room.members {
			if other != p {
				r.send(other, m)
			}
		}
	}
}

func (r *Relay) createRoom(maxPlayers, minPlayers int) *relayRoom {
	r.nextRoom++
	if minPlayers <= 0 {
		minPlayers = maxPlayers
	}
	rm := &relayRoom{id: fmt.Sprintf("room-%d", r.nextRoom), max: maxPlayers, min: minPlayers}
	r.rooms = append(r.rooms, rm)
	r.broadcastLobby(protocol.NotificationNewRoomCreatedInLobby)
	return rm
}

func (r *Relay) findRoom(roomID string) *relayRoom {
	for _, rm := range r.rooms {
		if rm.id == roomID {
			return rm
		}
	}
	return nil
}

// broadcastLobby notifies every registered peer outside a room.
func (r *Relay) broadcastLobby(text string) {
	for _, p := range r.peers {
		if p.room == nil {
			r.notify(p, text)
		}
	}
}

func (r *Relay) join(p *relayPeer, rm *relayRoom, info protocol.Player, created bool) {
	info.PlayerID = p.id
	info.PlayerIndex = rm.freeIndex()
	p.player = info
	p.room = rm
	rm.members = append(rm.members, p)

	view := rm.view()
	if created {
		r.send(p, &protocol.RoomCreated{Room: view})
	} else {
		r.send(p, &protocol.RoomJoin{Room: view})
	}
	for _, other := range rm.members {
		if other != p {
			r.send(other, &protocol.PlayerJoinedRoom{Room: view})
		}
	}
	if !rm.started && len(rm.members) >= rm.min {
		rm.started = true
		r.gameStarts[rm.id]++
		for _, member := range rm.members {
			r.send(member, &protocol.GameStart{Room: view})
		}
	}
	r.broadcastLobby(protocol.NotificationRoomsUpdated)
}

func (r *Relay) leave(p *relayPeer) {
	rm := p.room
	if rm == nil {
		return
	}
	p.room = nil
	for i, member := range rm.members {
		if member == p {
			rm.members = append(rm.members[:i:i], rm.members[i+1:]...)
			break
		}
	}
	delete(r.udpAddrs, p.id)
	for _, other := range rm.members {
		r.send(other, &protocol.MemberLeft{IDOfPlayerLeft: p.id})
	}
	if len(rm.members) == 0 {
		for i, cur := range r.rooms {
			if cur == rm {
				r.rooms = append(r.rooms[:i:i], r.rooms[i+1:]...)
				break
			}
		}
	}
}

func (r *Relay) readDatagrams() {
	defer r.wg.Done()
	buf := make([]byte, 2048)
	for {
		n, addr, err := r.udp.ReadFromUDP(buf)
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			continue
		}
		data := append([]byte(nil), buf[:n]...)
		msg, err := protocol.Decode(data)
		if err != nil {
			continue
		}
		ev, ok := msg.(*protocol.GamePlayEvent)
		if !ok {
			continue
		}

		r.mu.Lock()
		p, ok := r.peers[ev.SenderID]
		if ok && p.room != nil {
			r.udpAddrs[p.id] = addr
			for _, other := range p.room.members {
				if other == p {
					continue
				}
				if to, ok := r.udpAddrs[other.id]; ok {
					_, _ = r.udp.WriteToUDP(data, to)
				}
			}
		}
		r.mu.Unlock()
	}
}

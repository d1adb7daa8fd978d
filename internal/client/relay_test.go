package client_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/cory-johannsen/edgemultiplay/internal/client"
	"github.com/cory-johannsen/edgemultiplay/internal/events"
	"github.com/cory-johannsen/edgemultiplay/internal/game/room"
	"github.com/cory-johannsen/edgemultiplay/internal/game/session"
	"github.com/cory-johannsen/edgemultiplay/internal/game/spatial"
	"github.com/cory-johannsen/edgemultiplay/internal/protocol"
	"github.com/cory-johannsen/edgemultiplay/internal/testutil"
)

func connect(t *testing.T, relay *testutil.Relay, name string) *client.Client {
	t.Helper()
	c := client.New(zaptest.NewLogger(t).Named(name), client.Options{
		Endpoint:   relay.Endpoint(),
		PlayerName: name,
	})
	require.NoError(t, c.Connect(context.Background()))
	t.Cleanup(c.Disconnect)
	return c
}

// tickUntil ticks every client until cond holds.
//
// Postcondition: Returns once cond is true, or fails the test after five seconds.
func tickUntil(t *testing.T, cond func() bool, clients ...*client.Client) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		for _, c := range clients {
			require.NoError(t, c.Tick(10*time.Millisecond))
		}
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func registered(c *client.Client) func() bool {
	return func() bool { return c.Session().State() == session.Registered }
}

func TestRelay_JoinOrCreateRoom(t *testing.T) {
	relay := testutil.NewRelay(t)
	alice := connect(t, relay, "Alice")
	tickUntil(t, registered(alice), alice)

	var created []protocol.Room
	alice.Surface().RoomCreated.Subscribe(func(r protocol.Room) { created = append(created, r) })
	require.NoError(t, alice.Rooms().JoinOrCreateRoom(room.Request{PlayerName: "Alice"}, 2, 0))
	tickUntil(t, func() bool { return len(created) == 1 }, alice)

	r := created[0]
	assert.Equal(t, 2, r.MaxPlayersPerRoom)
	require.Len(t, r.RoomMembers, 1)
	assert.Equal(t, alice.Session().PlayerID(), r.RoomMembers[0].PlayerID)
	assert.Equal(t, "Alice", r.RoomMembers[0].PlayerName)
	assert.Equal(t, session.InRoom, alice.Session().State())
}

func startTwo(t *testing.T) (*testutil.Relay, *client.Client, *client.Client) {
	t.Helper()
	relay := testutil.NewRelay(t)
	a := connect(t, relay, "a")
	b := connect(t, relay, "b")
	tickUntil(t, func() bool { return registered(a)() && registered(b)() }, a, b)

	require.NoError(t, a.Rooms().JoinOrCreateRoom(room.Request{}, 2, 0))
	tickUntil(t, func() bool { return a.Session().InRoom() }, a, b)
	require.NoError(t, b.Rooms().JoinOrCreateRoom(room.Request{}, 2, 0))
	tickUntil(t, func() bool { return a.Session().Playing() && b.Session().Playing() }, a, b)
	return relay, a, b
}

func TestRelay_SecondJoinStartsGame(t *testing.T) {
	relay, a, b := startTwo(t)

	// Let the server's gameStart reach both clients after their own start.
	for i := 0; i < 5; i++ {
		require.NoError(t, a.Tick(10*time.Millisecond))
		require.NoError(t, b.Tick(10*time.Millisecond))
	}

	roomID := a.Session().RoomID()
	assert.Equal(t, roomID, b.Session().RoomID())
	assert.Equal(t, 1, relay.GameStarts(roomID))
	for _, c := range []*client.Client{a, b} {
		assert.Equal(t, 2, c.Players().Len())
		assert.True(t, c.Transport().UnreliableOpen())
	}
	assert.True(t, a.LocalPlayerIsMaster())
	assert.False(t, b.LocalPlayerIsMaster())

	tickUntil(t, func() bool {
		return relay.DatagramSender(a.Session().PlayerID()) && relay.DatagramSender(b.Session().PlayerID())
	}, a, b)
}

func TestRelay_EventsReachOwningEntity(t *testing.T) {
	_, a, b := startTwo(t)
	aID := a.Session().PlayerID()

	mirror, ok := b.Players().Get(aID)
	require.True(t, ok)
	var got []protocol.GamePlayEvent
	mirror.Messages.Subscribe(func(ev protocol.GamePlayEvent) { got = append(got, ev) })

	local, ok := a.Players().Local()
	require.True(t, ok)
	require.NoError(t, local.BroadcastInts("Score", []int{7}))
	tickUntil(t, func() bool { return len(got) == 1 }, a, b)

	assert.Equal(t, "Score", got[0].EventName)
	assert.Equal(t, aID, got[0].SenderID)
	assert.Equal(t, []int{7}, got[0].IntegerData)
}

func TestRelay_AvatarTransformSync(t *testing.T) {
	relay, a, b := startTwo(t)
	aID := a.Session().PlayerID()
	tickUntil(t, func() bool {
		return relay.DatagramSender(aID) && relay.DatagramSender(b.Session().PlayerID())
	}, a, b)

	local, ok := a.Players().Local()
	require.True(t, ok)
	mirror, ok := b.Observation().Lookup(aID, 0)
	require.True(t, ok)

	x := 0.0
	tickUntil(t, func() bool {
		// Keep moving so a datagram lost before the relay learned b's address
		// is superseded by the next one.
		x++
		local.Transform.SetPosition(spatial.Vec3{X: x, Z: -5})
		pos, _ := mirror.Received()
		return pos.X > 0
	}, a, b)
}

func TestRelay_ExitRoom(t *testing.T) {
	_, a, b := startTwo(t)
	bID := b.Session().PlayerID()

	var leftIDs []string
	a.Surface().PlayerLeft.Subscribe(func(p events.PlayerLeft) { leftIDs = append(leftIDs, p.PlayerID) })

	require.NoError(t, b.Rooms().ExitRoom())
	tickUntil(t, func() bool { return b.Session().State() == session.Registered && len(leftIDs) == 1 }, a, b)

	assert.Equal(t, []string{bID}, leftIDs)
	assert.False(t, a.Players().Has(bID))
	assert.Equal(t, 0, b.Players().Len())
	assert.False(t, b.Transport().UnreliableOpen())
}

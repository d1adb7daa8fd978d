package player

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"pgregory.net/rapid"

	"github.com/cory-johannsen/edgemultiplay/internal/events"
	"github.com/cory-johannsen/edgemultiplay/internal/game/spatial"
	"github.com/cory-johannsen/edgemultiplay/internal/protocol"
)

type recordingNet struct {
	reliable   []protocol.GamePlayEvent
	unreliable []protocol.GamePlayEvent
}

func (n *recordingNet) BroadcastReliable(ev protocol.GamePlayEvent) error {
	n.reliable = append(n.reliable, ev)
	return nil
}

func (n *recordingNet) BroadcastUnreliable(ev protocol.GamePlayEvent) error {
	n.unreliable = append(n.unreliable, ev)
	return nil
}

func newRegistry(t *testing.T) (*Registry, *events.Surface, *recordingNet) {
	t.Helper()
	surface := events.NewSurface()
	net := &recordingNet{}
	return NewRegistry(zaptest.NewLogger(t), DefaultSpawnConfig(), surface, net), surface, net
}

func member(id string, index, avatar int) protocol.Player {
	return protocol.Player{PlayerID: id, PlayerIndex: index, PlayerAvatar: avatar}
}

func TestSpawn_PositionsAndNames(t *testing.T) {
	r, _, _ := newRegistry(t)
	e, err := r.Spawn(member("a", 1, 0), "r1", false)
	require.NoError(t, err)
	assert.Equal(t, "Player 2", e.Name)
	assert.Equal(t, spatial.Vec3{X: 5, Z: -5}, e.Transform.Position())
	assert.Equal(t, spatial.Vec3{Y: 90}, e.Transform.Rotation())
	assert.True(t, e.Transform.IsKinematic())
	assert.Equal(t, "capsule", e.Template.Name)

	named := member("b", 0, 0)
	named.PlayerName = "Alice"
	local, err := r.Spawn(named, "r1", true)
	require.NoError(t, err)
	assert.Equal(t, "Alice", local.Name)
	assert.False(t, local.Transform.IsKinematic())

	got, ok := r.Local()
	require.True(t, ok)
	assert.Same(t, local, got)
}

func TestSpawn_Idempotent(t *testing.T) {
	r, _, _ := newRegistry(t)
	first, err := r.Spawn(member("a", 0, 0), "r1", true)
	require.NoError(t, err)
	second, err := r.Spawn(member("a", 0, 0), "r1", true)
	require.NoError(t, err)
	assert.Same(t, first, second)
	assert.Equal(t, 1, r.Len())
}

func TestSpawn_ConfigErrors(t *testing.T) {
	r, _, _ := newRegistry(t)
	_, err := r.Spawn(member("a", 0, 3), "r1", false)
	var cerr *ConfigError
	require.True(t, errors.As(err, &cerr))
	assert.Contains(t, cerr.Reason, "avatar")

	_, err = r.Spawn(member("b", 4, 0), "r1", false)
	require.True(t, errors.As(err, &cerr))
	assert.Contains(t, cerr.Reason, "spawn points")
	assert.Equal(t, 0, r.Len())
}

func TestRegistry_Lookups(t *testing.T) {
	r, _, _ := newRegistry(t)
	_, err := r.Spawn(member("a", 0, 0), "r1", true)
	require.NoError(t, err)
	_, err = r.Spawn(member("b", 1, 0), "r1", false)
	require.NoError(t, err)

	e, ok := r.GetByIndex(1)
	require.True(t, ok)
	assert.Equal(t, "b", e.PlayerID())
	_, ok = r.GetByIndex(7)
	assert.False(t, ok)
	_, ok = r.Get("zzz")
	assert.False(t, ok)
	assert.True(t, r.Has("a"))
}

func TestEntity_ReceivesOnlyOwnEvents(t *testing.T) {
	r, surface, _ := newRegistry(t)
	remote, err := r.Spawn(member("b", 1, 0), "r1", false)
	require.NoError(t, err)
	local, err := r.Spawn(member("a", 0, 0), "r1", true)
	require.NoError(t, err)

	var remoteGot, localGot []string
	remote.Messages.Subscribe(func(ev protocol.GamePlayEvent) { remoteGot = append(remoteGot, ev.EventName) })
	local.Messages.Subscribe(func(ev protocol.GamePlayEvent) { localGot = append(localGot, ev.EventName) })

	surface.EventReceived.Emit(protocol.GamePlayEvent{SenderID: "b", EventName: "Jump"})
	surface.UDPEventReceived.Emit(protocol.GamePlayEvent{SenderID: "b", EventName: "Dash"})
	surface.EventReceived.Emit(protocol.GamePlayEvent{SenderID: "c", EventName: "Other"})
	surface.EventReceived.Emit(protocol.GamePlayEvent{SenderID: "a", EventName: "Self"})

	assert.Equal(t, []string{"Jump", "Dash"}, remoteGot)
	assert.Empty(t, localGot, "local entity does not listen")
}

func TestRegistry_DestroyUnsubscribes(t *testing.T) {
	r, surface, _ := newRegistry(t)
	remote, err := r.Spawn(member("b", 1, 0), "r1", false)
	require.NoError(t, err)
	calls := 0
	remote.Messages.Subscribe(func(protocol.GamePlayEvent) { calls++ })

	assert.True(t, r.Destroy("b"))
	assert.False(t, r.Destroy("b"))
	surface.EventReceived.Emit(protocol.GamePlayEvent{SenderID: "b"})
	assert.Equal(t, 0, calls)
	assert.Equal(t, 0, surface.EventReceived.Len())
}

func TestRegistry_DestroyedDuringEmitGetsNothing(t *testing.T) {
	r, surface, _ := newRegistry(t)
	// Subscribed ahead of the entity, so it runs first in each Emit.
	surface.EventReceived.Subscribe(func(ev protocol.GamePlayEvent) {
		if ev.EventName == "died" {
			r.Destroy(ev.SenderID)
		}
	})
	remote, err := r.Spawn(member("p2", 1, 0), "r1", false)
	require.NoError(t, err)
	var got []string
	remote.Messages.Subscribe(func(ev protocol.GamePlayEvent) { got = append(got, ev.EventName) })

	surface.EventReceived.Emit(protocol.GamePlayEvent{SenderID: "p2", EventName: "hit"})
	surface.EventReceived.Emit(protocol.GamePlayEvent{SenderID: "p2", EventName: "died"})
	surface.EventReceived.Emit(protocol.GamePlayEvent{SenderID: "p2", EventName: "after"})

	assert.False(t, r.Has("p2"))
	assert.Equal(t, []string{"hit"}, got)
}

func TestRegistry_Clear(t *testing.T) {
	r, surface, _ := newRegistry(t)
	for i, id := range []string{"a", "b", "c"} {
		_, err := r.Spawn(member(id, i, 0), "r1", i == 0)
		require.NoError(t, err)
	}
	r.Clear()
	assert.Equal(t, 0, r.Len())
	assert.Equal(t, 0, surface.UDPEventReceived.Len())
}

func TestEntity_BroadcastHelpers(t *testing.T) {
	r, _, net := newRegistry(t)
	e, err := r.Spawn(member("a", 0, 0), "r1", true)
	require.NoError(t, err)

	require.NoError(t, e.BroadcastPosition("Pos", spatial.Vec3{X: 1}))
	require.NoError(t, e.BroadcastRotation("Rot", spatial.Vec3{Y: 2}))
	require.NoError(t, e.BroadcastPositionAndRotation("PR", spatial.Vec3{}, spatial.Vec3{Z: 3}))
	require.NoError(t, e.BroadcastInts("Ints", []int{4}))
	require.NoError(t, e.BroadcastFloats("Floats", []float64{5}))
	require.NoError(t, e.BroadcastData("Data", []string{"s"}, nil, nil, []bool{true}))
	require.NoError(t, e.BroadcastUnreliable(protocol.NewEvent("Fast")))

	require.Len(t, net.reliable, 6)
	assert.Equal(t, []float64{0, 0, 0, 0, 0, 3}, net.reliable[2].FloatData)
	assert.Nil(t, net.reliable[5].IntegerData)
	assert.Equal(t, "Fast", net.unreliable[0].EventName)
}

func TestParseSpawnConfig(t *testing.T) {
	data := []byte(`
templates:
  - name: knight
    observable:
      mode: position
      interpolate_position: true
      interpolation_factor: 10
  - name: archer
spawn_points:
  - position: {x: 1, y: 0, z: 2}
    rotation: {x: 0, y: 45, z: 0}
  - position: {x: -1, y: 0, z: -2}
`)
	cfg, err := ParseSpawnConfig(data)
	require.NoError(t, err)
	require.Len(t, cfg.Templates, 2)
	mode, err := cfg.Templates[0].Observable.SyncMode()
	require.NoError(t, err)
	assert.Equal(t, protocol.SyncPosition, mode)
	assert.Nil(t, cfg.Templates[1].Observable)
	assert.Equal(t, spatial.Vec3{Y: 45}, cfg.SpawnPoints[0].Rotation)
	assert.Equal(t, spatial.Vec3{X: -1, Z: -2}, cfg.SpawnPoints[1].Position)
}

func TestParseSpawnConfig_Invalid(t *testing.T) {
	_, err := ParseSpawnConfig([]byte(`templates: [{name: "", observable: {mode: sideways, interpolation_factor: -1}}]`))
	require.Error(t, err)
	msg := err.Error()
	assert.Contains(t, msg, "spawn_points")
	assert.Contains(t, msg, "name must not be empty")
	assert.Contains(t, msg, "sideways")
	assert.Contains(t, msg, "interpolation_factor")

	_, err = ParseSpawnConfig([]byte("templates: [:::"))
	assert.Error(t, err)
}

func TestLoadSpawnConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "spawn.yaml")
	require.NoError(t, os.WriteFile(path, []byte("templates: [{name: a}]\nspawn_points: [{position: {x: 1}}]\n"), 0o644))
	cfg, err := LoadSpawnConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 1.0, cfg.SpawnPoints[0].Position.X)

	_, err = LoadSpawnConfig(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
}

func TestProperty_SpawnWithinTables(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		r := NewRegistry(zaptest.NewLogger(t), DefaultSpawnConfig(), events.NewSurface(), &recordingNet{})
		avatar := rapid.IntRange(-1, 2).Draw(rt, "avatar")
		index := rapid.IntRange(-1, 6).Draw(rt, "index")
		_, err := r.Spawn(member("p", index, avatar), "r", false)

		ok := avatar >= 0 && avatar < 1 && index >= 0 && index < 4
		var cerr *ConfigError
		if ok && err != nil {
			rt.Fatalf("avatar=%d index=%d: unexpected %v", avatar, index, err)
		}
		if !ok && !errors.As(err, &cerr) {
			rt.Fatalf("avatar=%d index=%d: want ConfigError, got %v", avatar, index, err)
		}
	})
}

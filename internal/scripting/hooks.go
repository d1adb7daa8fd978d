package scripting

import (
	"time"

	lua "github.com/yuin/gopher-lua"
)

// Hook names looked up as Lua globals.
const (
	HookRegistered = "on_registered"
	HookGameStart  = "on_game_start"
	HookEvent      = "on_event"
	HookPlayerLeft = "on_player_left"
	HookTick       = "on_tick"
)

// OnRegistered calls on_registered(player_id).
func (m *Manager) OnRegistered(botID, playerID string) {
	_, _ = m.CallHook(botID, HookRegistered, lua.LString(playerID))
}

// OnGameStart calls on_game_start(room_id, player_index).
func (m *Manager) OnGameStart(botID, roomID string, index int) {
	_, _ = m.CallHook(botID, HookGameStart, lua.LString(roomID), lua.LNumber(index))
}

// OnEvent calls on_event(ev) where ev is a table with name, sender, strings,
// ints, floats and bools fields.
func (m *Manager) OnEvent(botID string, ev EventInfo) {
	_, _ = m.call(botID, HookEvent, func(L *lua.LState) []lua.LValue {
		return []lua.LValue{eventToTable(L, ev)}
	})
}

// OnPlayerLeft calls on_player_left(player_id).
func (m *Manager) OnPlayerLeft(botID, playerID string) {
	_, _ = m.CallHook(botID, HookPlayerLeft, lua.LString(playerID))
}

// OnTick calls on_tick(dt) with dt in seconds.
func (m *Manager) OnTick(botID string, dt time.Duration) {
	_, _ = m.CallHook(botID, HookTick, lua.LNumber(dt.Seconds()))
}

// DefaultScript joins or creates a two-player room once registered and walks
// the avatar in a circle while playing.
const DefaultScript = `
local playing = false
local t = 0

function on_registered(id)
  edge.log.info("registered as " .. id)
  local ok, err = edge.join_or_create_room(2)
  if not ok then
    edge.log.warn("join failed: " .. err)
  end
end

function on_game_start(room, index)
  playing = true
  edge.log.info("game started in " .. room .. " at index " .. index)
  if edge.is_master() then
    edge.broadcast("Hello", { strings = { edge.player_id() } })
  end
end

function on_event(ev)
  edge.log.debug("event " .. ev.name .. " from " .. ev.sender)
end

function on_player_left(id)
  edge.log.info(id .. " left")
end

function on_tick(dt)
  if not playing then
    return
  end
  t = t + dt
  edge.move(math.cos(t) * 5, 0, math.sin(t) * 5)
end
`

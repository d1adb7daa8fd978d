package scripting

import (
	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"
)

// RegisterModules installs the edge.* table into L, bound to host.
//
// Precondition: L must be from NewSandboxedState; host must be non-nil.
// Postcondition: The edge global is defined in L.
func (m *Manager) RegisterModules(L *lua.LState, botID string, host *Host) {
	edge := L.NewTable()
	L.SetGlobal("edge", edge)

	logger := m.logger.With(zap.String("bot", botID))
	logTbl := L.NewTable()
	for name, fn := range map[string]func(string, ...zap.Field){
		"debug": logger.Debug,
		"info":  logger.Info,
		"warn":  logger.Warn,
		"error": logger.Error,
	} {
		L.SetField(logTbl, name, L.NewFunction(func(L *lua.LState) int {
			fn(L.CheckString(1))
			return 0
		}))
	}
	L.SetField(edge, "log", logTbl)

	L.SetField(edge, "player_id", L.NewFunction(func(L *lua.LState) int {
		if host.PlayerID == nil {
			L.Push(lua.LString(""))
			return 1
		}
		L.Push(lua.LString(host.PlayerID()))
		return 1
	}))

	L.SetField(edge, "is_master", L.NewFunction(func(L *lua.LState) int {
		L.Push(lua.LBool(host.IsMaster != nil && host.IsMaster()))
		return 1
	}))

	// Room and broadcast calls return (true) or (nil, message).
	L.SetField(edge, "join_or_create_room", L.NewFunction(func(L *lua.LState) int {
		maxPlayers := L.OptInt(1, 0)
		minPlayers := L.OptInt(2, 0)
		if host.JoinOrCreateRoom == nil {
			return pushResult(L, nil)
		}
		return pushResult(L, host.JoinOrCreateRoom(maxPlayers, minPlayers))
	}))

	L.SetField(edge, "exit_room", L.NewFunction(func(L *lua.LState) int {
		if host.ExitRoom == nil {
			return pushResult(L, nil)
		}
		return pushResult(L, host.ExitRoom())
	}))

	L.SetField(edge, "broadcast", L.NewFunction(func(L *lua.LState) int {
		ev := eventFromTable(L.CheckString(1), L.OptTable(2, L.NewTable()))
		if host.Broadcast == nil {
			return pushResult(L, nil)
		}
		return pushResult(L, host.Broadcast(ev))
	}))

	L.SetField(edge, "move", L.NewFunction(func(L *lua.LState) int {
		x := float64(L.CheckNumber(1))
		y := float64(L.CheckNumber(2))
		z := float64(L.CheckNumber(3))
		if host.Move != nil {
			host.Move(x, y, z)
		}
		return 0
	}))

	L.SetField(edge, "position", L.NewFunction(func(L *lua.LState) int {
		var x, y, z float64
		if host.Position != nil {
			x, y, z = host.Position()
		}
		L.Push(lua.LNumber(x))
		L.Push(lua.LNumber(y))
		L.Push(lua.LNumber(z))
		return 3
	}))
}

func pushResult(L *lua.LState, err error) int {
	if err != nil {
		L.Push(lua.LNil)
		L.Push(lua.LString(err.Error()))
		return 2
	}
	L.Push(lua.LTrue)
	return 1
}

// eventFromTable reads the ints, floats, strings and bools arrays of tbl.
// Elements of the wrong type are skipped.
func eventFromTable(name string, tbl *lua.LTable) EventInfo {
	ev := EventInfo{Name: name}
	eachArray(tbl, "strings", func(v lua.LValue) {
		if s, ok := v.(lua.LString); ok {
			ev.Strings = append(ev.Strings, string(s))
		}
	})
	eachArray(tbl, "ints", func(v lua.LValue) {
		if n, ok := v.(lua.LNumber); ok {
			ev.Ints = append(ev.Ints, int(n))
		}
	})
	eachArray(tbl, "floats", func(v lua.LValue) {
		if n, ok := v.(lua.LNumber); ok {
			ev.Floats = append(ev.Floats, float64(n))
		}
	})
	eachArray(tbl, "bools", func(v lua.LValue) {
		if b, ok := v.(lua.LBool); ok {
			ev.Bools = append(ev.Bools, bool(b))
		}
	})
	return ev
}

func eachArray(tbl *lua.LTable, field string, fn func(lua.LValue)) {
	arr, ok := tbl.RawGetString(field).(*lua.LTable)
	if !ok {
		return
	}
	for i := 1; i <= arr.Len(); i++ {
		fn(arr.RawGetInt(i))
	}
}

// eventToTable is the inverse of eventFromTable, with name and sender fields.
func eventToTable(L *lua.LState, ev EventInfo) *lua.LTable {
	tbl := L.NewTable()
	tbl.RawSetString("name", lua.LString(ev.Name))
	tbl.RawSetString("sender", lua.LString(ev.SenderID))

	strs := L.NewTable()
	for _, s := range ev.Strings {
		strs.Append(lua.LString(s))
	}
	tbl.RawSetString("strings", strs)

	ints := L.NewTable()
	for _, n := range ev.Ints {
		ints.Append(lua.LNumber(n))
	}
	tbl.RawSetString("ints", ints)

	floats := L.NewTable()
	for _, f := range ev.Floats {
		floats.Append(lua.LNumber(f))
	}
	tbl.RawSetString("floats", floats)

	bools := L.NewTable()
	for _, b := range ev.Bools {
		bools.Append(lua.LBool(b))
	}
	tbl.RawSetString("bools", bools)
	return tbl
}

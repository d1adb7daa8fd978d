package scripting

import (
	"context"
	"fmt"
	"os"
	"sync"

	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"
)

// EventInfo is a snapshot of a gameplay event passed to and from Lua.
type EventInfo struct {
	Name     string
	SenderID string
	Strings  []string
	Ints     []int
	Floats   []float64
	Bools    []bool
}

// Host is the client surface a script drives. Nil fields are no-ops in the
// edge.* modules.
type Host struct {
	PlayerID         func() string
	IsMaster         func() bool
	JoinOrCreateRoom func(maxPlayers, minPlayers int) error
	ExitRoom         func() error
	Broadcast        func(ev EventInfo) error
	Move             func(x, y, z float64)
	Position         func() (x, y, z float64)
}

type botVM struct {
	mu     sync.Mutex
	L      *lua.LState
	limit  int
	cancel context.CancelFunc
}

func (v *botVM) close() {
	if v.cancel != nil {
		v.cancel()
	}
	v.L.Close()
}

// Manager owns one sandboxed LState per bot and exposes hook dispatch.
//
// Manager is safe for concurrent use. Calls into one bot's VM are serialized;
// different bots run concurrently.
type Manager struct {
	mu     sync.RWMutex
	vms    map[string]*botVM
	logger *zap.Logger
}

// NewManager creates a Manager.
//
// Precondition: logger must be non-nil.
// Postcondition: Returns a non-nil Manager with no VMs.
func NewManager(logger *zap.Logger) *Manager {
	if logger == nil {
		panic("scripting.NewManager: logger must not be nil")
	}
	return &Manager{
		vms:    make(map[string]*botVM),
		logger: logger,
	}
}

// LoadFile creates a sandboxed VM for botID bound to host and executes the
// script at path. An empty path loads DefaultScript.
//
// Precondition: botID must be non-empty.
// Postcondition: The VM replaces any previous VM for botID; returns error on
// read or Lua load failure.
func (m *Manager) LoadFile(botID, path string, instLimit int, host *Host) error {
	if path == "" {
		return m.LoadString(botID, DefaultScript, instLimit, host)
	}
	src, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("scripting: reading %q for %q: %w", path, botID, err)
	}
	return m.LoadString(botID, string(src), instLimit, host)
}

// LoadString is LoadFile for in-memory source.
func (m *Manager) LoadString(botID, src string, instLimit int, host *Host) error {
	if host == nil {
		host = &Host{}
	}
	L, cancel := NewSandboxedState(instLimit)
	m.RegisterModules(L, botID, host)

	if err := L.DoString(src); err != nil {
		cancel()
		L.Close()
		return fmt.Errorf("scripting: loading script for %q: %w", botID, err)
	}

	m.mu.Lock()
	if old, ok := m.vms[botID]; ok {
		old.mu.Lock()
		old.close()
		old.mu.Unlock()
	}
	m.vms[botID] = &botVM{L: L, limit: instLimit, cancel: cancel}
	m.mu.Unlock()
	return nil
}

// Unload closes botID's VM. It is a no-op for unknown IDs.
func (m *Manager) Unload(botID string) {
	m.mu.Lock()
	v, ok := m.vms[botID]
	delete(m.vms, botID)
	m.mu.Unlock()
	if ok {
		v.mu.Lock()
		v.close()
		v.mu.Unlock()
	}
}

// Close closes every VM.
func (m *Manager) Close() {
	m.mu.Lock()
	vms := m.vms
	m.vms = make(map[string]*botVM)
	m.mu.Unlock()
	for _, v := range vms {
		v.mu.Lock()
		v.close()
		v.mu.Unlock()
	}
}

// CallHook calls the named Lua global function in botID's VM with a fresh
// instruction budget. Returns (LNil, nil) if the hook is not defined or no VM
// exists. Lua runtime errors, including an exhausted budget, are logged at
// Warn level and never propagated.
//
// Precondition: args must be valid lua.LValue instances.
// Postcondition: Returns the first return value of the hook, or LNil.
func (m *Manager) CallHook(botID, hook string, args ...lua.LValue) (lua.LValue, error) {
	return m.call(botID, hook, func(*lua.LState) []lua.LValue { return args })
}

// call runs hook with arguments built inside the VM lock, so tables can be
// allocated on the bot's own LState.
func (m *Manager) call(botID, hook string, build func(L *lua.LState) []lua.LValue) (lua.LValue, error) {
	m.mu.RLock()
	v, ok := m.vms[botID]
	m.mu.RUnlock()
	if !ok {
		m.logger.Info("scripting: no VM for bot",
			zap.String("bot", botID),
			zap.String("hook", hook),
		)
		return lua.LNil, nil
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	L := v.L
	fn := L.GetGlobal(hook)
	if fn == lua.LNil {
		return lua.LNil, nil
	}

	if v.cancel != nil {
		v.cancel()
	}
	v.cancel = SetBudget(L, v.limit)

	if err := L.CallByParam(lua.P{
		Fn:      fn,
		NRet:    1,
		Protect: true,
	}, build(L)...); err != nil {
		m.logger.Warn("scripting: Lua runtime error",
			zap.String("bot", botID),
			zap.String("hook", hook),
			zap.Error(err),
		)
		return lua.LNil, nil
	}

	ret := L.Get(-1)
	L.Pop(1)
	return ret, nil
}

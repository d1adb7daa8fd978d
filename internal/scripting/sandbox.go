// Package scripting runs sandboxed GopherLua bot behaviour scripts. It has no
// dependency on the client packages; every client interaction is injected
// through a Host.
package scripting

import (
	"context"
	"sync/atomic"

	lua "github.com/yuin/gopher-lua"
)

// DefaultInstructionLimit bounds the opcodes of one hook call when
// bot.instruction_limit is 0.
const DefaultInstructionLimit = 100_000

// budgetContext cancels itself on the Nth call to Done. The VM polls Done
// once per opcode when a context is set, so N is an opcode budget.
type budgetContext struct {
	context.Context
	cancel context.CancelFunc
	left   atomic.Int64
}

func (b *budgetContext) Done() <-chan struct{} {
	if b.left.Add(-1) <= 0 {
		b.cancel()
	}
	return b.Context.Done()
}

// Precondition: opcodes > 0.
func newBudgetContext(opcodes int) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	b := &budgetContext{Context: ctx, cancel: cancel}
	b.left.Store(int64(opcodes))
	return b, cancel
}

func effectiveLimit(instLimit int) int {
	if instLimit <= 0 {
		return DefaultInstructionLimit
	}
	return instLimit
}

// SetBudget installs a fresh budget of instLimit opcodes on L, replacing any
// previous one. The returned cancel releases the budget's context.
//
// Precondition: instLimit >= 0; 0 uses DefaultInstructionLimit.
func SetBudget(L *lua.LState, instLimit int) context.CancelFunc {
	ctx, cancel := newBudgetContext(effectiveLimit(instLimit))
	L.SetContext(ctx)
	return cancel
}

// NewSandboxedState opens only the base, table, string and math libraries,
// removes the globals that reach the filesystem or the loader, and installs
// an initial budget that covers loading the script.
//
// Precondition: instLimit >= 0; 0 uses DefaultInstructionLimit.
// Postcondition: Returns a non-nil LState and the cancel of its initial
// budget. The caller owns the LState and must call L.Close() when done.
func NewSandboxedState(instLimit int) (*lua.LState, context.CancelFunc) {
	L := lua.NewState(lua.Options{SkipOpenLibs: true})

	lua.OpenBase(L)
	lua.OpenTable(L)
	lua.OpenString(L)
	lua.OpenMath(L)

	for _, name := range []string{"dofile", "loadfile", "load", "collectgarbage", "require"} {
		L.SetGlobal(name, lua.LNil)
	}

	return L, SetBudget(L, instLimit)
}

package transform

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	lua "github.com/yuin/gopher-lua"
)

// helperTimeout bounds a single helper call.
const helperTimeout = 2 * time.Second

// Helpers holds the template helpers available to markup rendering: the
// built-in uppercase and lowercase plus user helpers written in Lua.
//
// A user helper is the body of a function of one string argument `s`, e.g.
// "return string.upper(s) .. '!'". All helpers share one Lua state guarded
// by a mutex since gopher-lua states are not goroutine-safe.
type Helpers struct {
	mu    sync.Mutex
	L     *lua.LState
	funcs map[string]*lua.LFunction
}

// NewHelpers compiles the given Lua helper bodies. Only the base, table,
// string and math libraries are available to them.
func NewHelpers(defs map[string]string) (*Helpers, error) {
	L := lua.NewState(lua.Options{SkipOpenLibs: true})
	lua.OpenBase(L)
	lua.OpenTable(L)
	lua.OpenString(L)
	lua.OpenMath(L)

	h := &Helpers{L: L, funcs: make(map[string]*lua.LFunction, len(defs))}

	names := make([]string, 0, len(defs))
	for name := range defs {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		if _, builtin := builtinHelpers[name]; builtin {
			L.Close()
			return nil, fmt.Errorf("helper '%s' shadows a built-in helper", name)
		}
		fn, err := L.LoadString("return function(s) " + defs[name] + " end")
		if err != nil {
			L.Close()
			return nil, fmt.Errorf("compiling helper '%s': %w", name, err)
		}
		L.Push(fn)
		if err := L.PCall(0, 1, nil); err != nil {
			L.Close()
			return nil, fmt.Errorf("compiling helper '%s': %w", name, err)
		}
		ret := L.Get(-1)
		L.Pop(1)
		lf, ok := ret.(*lua.LFunction)
		if !ok {
			L.Close()
			return nil, fmt.Errorf("helper '%s' did not compile to a function", name)
		}
		h.funcs[name] = lf
	}
	return h, nil
}

var builtinHelpers = map[string]func(string) string{
	"uppercase": strings.ToUpper,
	"lowercase": strings.ToLower,
}

// Call invokes the named user helper with s.
func (h *Helpers) Call(name, s string) (string, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	fn, ok := h.funcs[name]
	if !ok {
		return "", fmt.Errorf("unknown helper '%s'", name)
	}

	ctx, cancel := context.WithTimeout(context.Background(), helperTimeout)
	defer cancel()
	h.L.SetContext(ctx)
	defer h.L.RemoveContext()

	if err := h.L.CallByParam(lua.P{Fn: fn, NRet: 1, Protect: true}, lua.LString(s)); err != nil {
		return "", fmt.Errorf("helper '%s': %w", name, err)
	}
	ret := h.L.Get(-1)
	h.L.Pop(1)

	switch v := ret.(type) {
	case lua.LString:
		return string(v), nil
	case lua.LNumber, lua.LBool:
		return v.String(), nil
	default:
		if ret == lua.LNil {
			return "", nil
		}
		return "", fmt.Errorf("helper '%s' returned %s, want a string", name, ret.Type())
	}
}

// Names returns every helper name, built-ins included, sorted.
func (h *Helpers) Names() []string {
	names := make([]string, 0, len(builtinHelpers)+len(h.funcs))
	for name := range builtinHelpers {
		names = append(names, name)
	}
	for name := range h.funcs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Template returns the helpers in the form the Handlebars engine registers.
// A failing Lua helper panics with an error, which the engine turns into a
// render error for the current page.
func (h *Helpers) Template() map[string]any {
	out := make(map[string]any, len(builtinHelpers)+len(h.funcs))
	for name, fn := range builtinHelpers {
		out[name] = fn
	}
	for name := range h.funcs {
		out[name] = func(s string) string {
			v, err := h.Call(name, s)
			if err != nil {
				panic(err)
			}
			return v
		}
	}
	return out
}

// Close releases the Lua state.
func (h *Helpers) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.L.Close()
}

package lua

import (
	"bytes"
	"context"
	"fmt"
	"time"

	lua "github.com/yuin/gopher-lua"
	"github.com/yuin/gopher-lua/parse"

	"github.com/Karniz-UI/NewEraV4Fix/pkg/plugin"
)

// Extension is the artifact extension of Lua plugins.
const Extension = ".lua"

// Runtime compiles Lua plugins.
type Runtime struct {
	timeout time.Duration
}

// NewRuntime returns a Runtime whose calls are bounded by timeout when
// the caller sets no deadline of its own. Zero disables the bound.
func NewRuntime(timeout time.Duration) *Runtime {
	return &Runtime{timeout: timeout}
}

func (r *Runtime) Extension() string { return Extension }

// Compile parses src, runs its top level in a fresh state and returns
// the resulting unit.
func (r *Runtime) Compile(ctx context.Context, name string, src []byte) (plugin.Unit, error) {
	chunk := name + Extension
	stmts, err := parse.Parse(bytes.NewReader(src), chunk)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", plugin.ErrCompile, err)
	}
	proto, err := lua.Compile(stmts, chunk)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", plugin.ErrCompile, err)
	}

	state := NewState(name, r.timeout)
	err = state.run(ctx, func(L *lua.LState) error {
		L.Push(L.NewFunctionFromProto(proto))
		return L.PCall(0, 0, nil)
	})
	if err != nil {
		_ = state.Close()
		return nil, fmt.Errorf("%w: %v", plugin.ErrCompile, err)
	}
	return &unit{name: name, state: state}, nil
}

type unit struct {
	name  string
	state *State
	bot   *lua.LTable
}

func (u *unit) Register(ctx context.Context, host *plugin.Host) (plugin.Manifest, error) {
	var manifest plugin.Manifest
	err := u.state.run(ctx, func(L *lua.LState) error {
		fn := L.GetGlobal("register")
		if fn.Type() != lua.LTFunction {
			return fmt.Errorf("%w: %s has no register function", plugin.ErrNotAPlugin, u.name)
		}
		u.bot = newBotModule(L, u, host)
		results, err := call(L, fn, u.bot)
		if err != nil {
			return fmt.Errorf("%w: register: %v", plugin.ErrCompile, err)
		}
		if len(results) > 0 {
			if t, ok := results[0].(*lua.LTable); ok {
				manifest = toManifest(t)
			}
		}
		if manifest == nil {
			if t, ok := L.GetGlobal("commands").(*lua.LTable); ok {
				manifest = toManifest(t)
			}
		}
		return nil
	})
	return manifest, err
}

func (u *unit) HasTeardown() bool {
	has := false
	_ = u.state.run(context.Background(), func(L *lua.LState) error {
		has = L.GetGlobal("unregister").Type() == lua.LTFunction
		return nil
	})
	return has
}

func (u *unit) Unregister(ctx context.Context, _ *plugin.Host) error {
	return u.state.run(ctx, func(L *lua.LState) error {
		fn := L.GetGlobal("unregister")
		if fn.Type() != lua.LTFunction {
			return nil
		}
		bot := u.bot
		if bot == nil {
			bot = L.NewTable()
		}
		_, err := call(L, fn, bot)
		return err
	})
}

func (u *unit) Close() error {
	return u.state.Close()
}

// toManifest accepts both {name = "description"} and {"name", ...}.
func toManifest(t *lua.LTable) plugin.Manifest {
	m := plugin.Manifest{}
	t.ForEach(func(k, v lua.LValue) {
		switch key := k.(type) {
		case lua.LString:
			m[string(key)] = lua.LVAsString(v)
		case lua.LNumber:
			if s, ok := v.(lua.LString); ok {
				m[string(s)] = ""
			}
		}
	})
	return m
}

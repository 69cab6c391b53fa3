package lua

import (
	"context"

	lua "github.com/yuin/gopher-lua"

	"github.com/Karniz-UI/NewEraV4Fix/pkg/commands"
	"github.com/Karniz-UI/NewEraV4Fix/pkg/logger"
	"github.com/Karniz-UI/NewEraV4Fix/pkg/plugin"
)

// DefaultArgs is the argument pattern of bot.command when none is given:
// an optional remainder captured as args[1].
const DefaultArgs = `(?:\s+([\s\S]*))?`

func contextOf(L *lua.LState) context.Context {
	if ctx := L.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

// argBase skips self when a function is called with method syntax.
func argBase(L *lua.LState, self lua.LValue) int {
	if L.GetTop() > 0 && L.Get(1) == self {
		return 2
	}
	return 1
}

// newBotModule builds the table passed to register and unregister.
func newBotModule(L *lua.LState, u *unit, host *plugin.Host) *lua.LTable {
	mod := L.NewTable()
	L.SetFuncs(mod, map[string]lua.LGFunction{
		"command": func(L *lua.LState) int {
			i := argBase(L, mod)
			name := L.CheckString(i)
			fn := L.CheckFunction(i + 1)
			description := L.OptString(i+2, "")
			args := L.OptString(i+3, DefaultArgs)
			if err := host.Command(name, args, description, u.handler(fn)); err != nil {
				L.RaiseError("%s", err.Error())
			}
			return 0
		},
		"on": func(L *lua.LState) int {
			i := argBase(L, mod)
			pattern := L.CheckString(i)
			fn := L.CheckFunction(i + 1)
			if err := host.Subscribe(pattern, u.handler(fn)); err != nil {
				L.RaiseError("%s", err.Error())
			}
			return 0
		},
		"prefix": func(L *lua.LState) int {
			L.Push(lua.LString(host.Prefix()))
			return 1
		},
		"name": func(L *lua.LState) int {
			L.Push(lua.LString(host.Name()))
			return 1
		},
		"me": func(L *lua.LState) int {
			id, err := host.Self(contextOf(L))
			if err != nil {
				L.RaiseError("%s", err.Error())
			}
			t := L.NewTable()
			t.RawSetString("id", lua.LString(id.ID))
			t.RawSetString("username", lua.LString(id.Username))
			t.RawSetString("name", lua.LString(id.Name))
			L.Push(t)
			return 1
		},
		"log": func(L *lua.LState) int {
			logger.InfoCF("plugin", L.CheckString(argBase(L, mod)), map[string]any{"plugin": host.Name()})
			return 0
		},
	})
	return mod
}

// handler adapts a Lua function to a command handler. A string returned
// by the function becomes the reply.
func (u *unit) handler(fn *lua.LFunction) commands.Handler {
	return func(ctx context.Context, req commands.Request) error {
		var (
			reply    string
			hasReply bool
		)
		err := u.state.run(ctx, func(L *lua.LState) error {
			results, err := call(L, fn, eventTable(L, req))
			if err != nil {
				return err
			}
			if len(results) > 0 {
				if s, ok := results[0].(lua.LString); ok {
					reply, hasReply = string(s), true
				}
			}
			return nil
		})
		if err != nil {
			return err
		}
		if hasReply {
			return req.Reply(reply)
		}
		return nil
	}
}

func eventTable(L *lua.LState, req commands.Request) *lua.LTable {
	evt := L.NewTable()
	evt.RawSetString("text", lua.LString(req.Event.Text))
	evt.RawSetString("command", lua.LString(req.Command))
	evt.RawSetString("chat", lua.LString(req.Event.ChatID))
	evt.RawSetString("message_id", lua.LString(req.Event.MessageID))
	evt.RawSetString("sender", lua.LString(req.Event.SenderID))
	evt.RawSetString("is_reply", lua.LBool(req.Event.IsReply))

	args := L.NewTable()
	for _, a := range req.Args {
		args.Append(lua.LString(a))
	}
	evt.RawSetString("args", args)

	edit := L.NewFunction(func(L *lua.LState) int {
		if err := req.Reply(L.CheckString(argBase(L, evt))); err != nil {
			L.RaiseError("%s", err.Error())
		}
		return 0
	})
	evt.RawSetString("edit", edit)
	evt.RawSetString("reply", edit)
	return evt
}

package scripting

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"

	"github.com/noodles/ramen/internal/client"
	"github.com/noodles/ramen/internal/core/value"
	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"
)

// Engine wraps a single gopher-lua VM whose scripts observe the mirror.
// Single-goroutine access only (dispatch loop).
type Engine struct {
	vm  *lua.LState
	log *zap.Logger
}

// NewEngine creates a Lua engine and loads all scripts from the given
// directory. Scripts under lib/ load first so others can use them.
func NewEngine(scriptsDir string, log *zap.Logger) (*Engine, error) {
	vm := lua.NewState(lua.Options{
		SkipOpenLibs: false,
	})

	vm.SetGlobal("API_VERSION", lua.LNumber(1))

	e := &Engine{vm: vm, log: log}
	e.registerAPI()

	for _, dir := range []string{filepath.Join(scriptsDir, "lib"), scriptsDir} {
		if err := e.loadDir(dir); err != nil {
			vm.Close()
			return nil, fmt.Errorf("load scripts: %w", err)
		}
	}
	return e, nil
}

// registerAPI exposes the ramen table to scripts.
func (e *Engine) registerAPI() {
	api := e.vm.NewTable()
	e.vm.SetFuncs(api, map[string]lua.LGFunction{
		"log": func(L *lua.LState) int {
			e.log.Info("lua", zap.String("msg", L.CheckString(1)))
			return 0
		},
	})
	e.vm.SetGlobal("ramen", api)
}

// loadDir loads all .lua files in a directory.
func (e *Engine) loadDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil // skip missing dirs
		}
		return err
	}
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".lua" {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		if err := e.vm.DoFile(path); err != nil {
			return fmt.Errorf("load %s: %w", path, err)
		}
		e.log.Debug("loaded lua script", zap.String("file", path))
	}
	return nil
}

// Delegates builds a delegate for every collection whose hooks a script
// defines as globals <collection>_on_create, _on_update or _on_delete.
// Collections without any such global are left out.
func (e *Engine) Delegates(collections []string) map[string]client.Delegate {
	out := make(map[string]client.Delegate)
	for _, name := range append(slices.Clone(collections), client.DocumentDelegate) {
		var d client.Delegate
		if fn := e.function(name + "_on_create"); fn != nil {
			d.OnCreate = func(_ *client.Client, rec *value.Record) {
				e.call(fn, e.toLua(value.Map(rec)))
			}
		}
		if fn := e.function(name + "_on_update"); fn != nil {
			d.OnUpdate = func(_ *client.Client, rec, partial *value.Record) {
				e.call(fn, e.toLua(value.Map(rec)), e.toLua(value.Map(partial)))
			}
		}
		if fn := e.function(name + "_on_delete"); fn != nil {
			d.OnDelete = func(_ *client.Client, rec *value.Record) {
				e.call(fn, e.toLua(value.Map(rec)))
			}
		}
		if !d.IsZero() {
			e.log.Info("lua delegates installed", zap.String("collection", name))
			out[name] = d
		}
	}
	return out
}

func (e *Engine) function(name string) *lua.LFunction {
	fn, ok := e.vm.GetGlobal(name).(*lua.LFunction)
	if !ok {
		return nil
	}
	return fn
}

// call runs fn protected. Script errors are logged and never reach the
// dispatch loop.
func (e *Engine) call(fn *lua.LFunction, args ...lua.LValue) {
	if err := e.vm.CallByParam(lua.P{
		Fn:      fn,
		NRet:    0,
		Protect: true,
	}, args...); err != nil {
		e.log.Error("lua hook error", zap.Error(err))
	}
}

// toLua converts a Value into a Lua value. Lists become 1-based tables;
// collaborator-attached state is not visible to scripts.
func (e *Engine) toLua(v value.Value) lua.LValue {
	switch v.Kind() {
	case value.KindBool:
		b, _ := v.AsBool()
		return lua.LBool(b)
	case value.KindInt, value.KindUint, value.KindFloat:
		f, _ := v.AsFloat()
		return lua.LNumber(f)
	case value.KindString:
		s, _ := v.AsString()
		return lua.LString(s)
	case value.KindBytes:
		b, _ := v.AsBytes()
		return lua.LString(b)
	case value.KindList:
		list, _ := v.AsList()
		t := e.vm.CreateTable(len(list), 0)
		// null items keep their position as holes
		for i, item := range list {
			t.RawSetInt(i+1, e.toLua(item))
		}
		return t
	case value.KindMap:
		rec, _ := v.AsMap()
		t := e.vm.CreateTable(0, rec.Len())
		rec.Each(func(key string, item value.Value) {
			if item.Kind() == value.KindExtern {
				return
			}
			t.RawSetString(key, e.toLua(item))
		})
		return t
	default:
		return lua.LNil
	}
}

// Close shuts down the Lua VM.
func (e *Engine) Close() {
	e.vm.Close()
}

package sim

import (
	"errors"
	"fmt"

	"github.com/dop251/goja"

	"github.com/lynxrender/backend/internal/env"
)

// scriptRuntime wraps one goja runtime. goja runtimes are not safe for
// concurrent use; callers hold the owning instance's lock.
type scriptRuntime struct {
	vm      *goja.Runtime
	modules map[string]env.Module
}

func newScriptRuntime(e *env.Env) *scriptRuntime {
	rt := &scriptRuntime{
		vm:      goja.New(),
		modules: make(map[string]env.Module),
	}
	rt.installNativeModules(e)
	return rt
}

// installNativeModules exposes NativeModules.<name>.invoke(method, ...args)
// for every module registered in e. Modules are instantiated on first use.
func (rt *scriptRuntime) installNativeModules(e *env.Env) {
	if e == nil {
		return
	}
	nm := rt.vm.NewObject()
	for _, name := range e.ModuleNames() {
		obj := rt.vm.NewObject()
		_ = obj.Set("invoke", rt.vm.ToValue(func(call goja.FunctionCall) goja.Value {
			m, ok := rt.modules[name]
			if !ok {
				var err error
				if m, err = e.NewModule(name); err != nil {
					panic(rt.vm.NewGoError(err))
				}
				rt.modules[name] = m
			}
			method := call.Argument(0).String()
			var args []any
			if len(call.Arguments) > 1 {
				for _, a := range call.Arguments[1:] {
					args = append(args, a.Export())
				}
			}
			out, err := m.Invoke(method, args)
			if err != nil {
				panic(rt.vm.NewGoError(err))
			}
			return rt.vm.ToValue(out)
		}))
		_ = nm.Set(name, obj)
	}
	_ = rt.vm.Set("NativeModules", nm)
}

func (rt *scriptRuntime) run(name, src string) (any, error) {
	v, err := rt.vm.RunScript(name, src)
	if err != nil {
		return nil, err
	}
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return nil, nil
	}
	return v.Export(), nil
}

// function looks up a global function, returning nil if absent.
func (rt *scriptRuntime) function(name string) goja.Callable {
	fn, ok := goja.AssertFunction(rt.vm.Get(name))
	if !ok {
		return nil
	}
	return fn
}

// callGlobal calls a global function if it exists.
func (rt *scriptRuntime) callGlobal(name string, args ...any) (any, bool, error) {
	fn := rt.function(name)
	if fn == nil {
		return nil, false, nil
	}
	vals := make([]goja.Value, len(args))
	for i, a := range args {
		vals[i] = rt.vm.ToValue(a)
	}
	v, err := fn(goja.Undefined(), vals...)
	if err != nil {
		return nil, true, err
	}
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return nil, true, nil
	}
	return v.Export(), true, nil
}

var errProcessorMissing = errors.New("sim: data processor not defined")

// process runs processors[name](data) and returns the processed data.
func (rt *scriptRuntime) process(name string, data map[string]any) (map[string]any, error) {
	procs := rt.vm.Get("processors")
	if procs == nil || goja.IsUndefined(procs) || goja.IsNull(procs) {
		return nil, fmt.Errorf("%w: %s", errProcessorMissing, name)
	}
	fn, ok := goja.AssertFunction(procs.ToObject(rt.vm).Get(name))
	if !ok {
		return nil, fmt.Errorf("%w: %s", errProcessorMissing, name)
	}
	v, err := fn(goja.Undefined(), rt.vm.ToValue(data))
	if err != nil {
		return nil, err
	}
	out, ok := v.Export().(map[string]any)
	if !ok {
		return nil, fmt.Errorf("sim: processor %s returned %T, want object", name, v.Export())
	}
	return out, nil
}

func (rt *scriptRuntime) destroy() {
	for name, m := range rt.modules {
		if d, ok := m.(env.ModuleDestroyer); ok {
			d.Destroy()
		}
		delete(rt.modules, name)
	}
	rt.vm.Interrupt("destroyed")
}

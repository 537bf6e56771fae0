package interp

import (
	"fmt"

	"github.com/dop251/goja"
)

// Module is a loaded script module. It is bound to the runtime of the thread
// that imported it and may only be used by that thread while holding the GIL.
type Module struct {
	path    string
	vm      *goja.Runtime
	exports *goja.Object
}

// Path returns the absolute path the module was loaded from.
func (m *Module) Path() string {
	return m.path
}

// Exports returns the module's exports object.
func (m *Module) Exports() *goja.Object {
	return m.exports
}

// Has reports whether the module exports a function called name.
func (m *Module) Has(name string) bool {
	_, ok := goja.AssertFunction(m.exports.Get(name))
	return ok
}

// Call invokes the exported function name. Go arguments are converted with
// Runtime.ToValue; goja values are passed through. The returned error is the
// raw goja error (*goja.Exception, *goja.InterruptedError, ...) so callers
// can inspect it.
func (m *Module) Call(name string, args ...any) (goja.Value, error) {
	fn, ok := goja.AssertFunction(m.exports.Get(name))
	if !ok {
		return nil, fmt.Errorf("interp: %s does not export function %q", m.path, name)
	}

	vals := make([]goja.Value, len(args))
	for i, a := range args {
		if v, isVal := a.(goja.Value); isVal {
			vals[i] = v
			continue
		}
		vals[i] = m.vm.ToValue(a)
	}
	return fn(goja.Undefined(), vals...)
}

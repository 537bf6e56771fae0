// Package registry provides a global registry of native script modules.
// Engine packages register modules in init() functions; the interpreter
// installs every registered module when its context is created, so scripts can
// require() them without the interpreter depending on engine packages.
package registry

import (
	"fmt"
	"sort"
	"sync"

	"github.com/dop251/goja_nodejs/require"
)

// ModuleInfo contains metadata about a registered module.
type ModuleInfo struct {
	Name        string
	Description string
}

type entry struct {
	info   ModuleInfo
	loader require.ModuleLoader
}

var (
	modules = make(map[string]entry)
	mu      sync.RWMutex
)

// Register adds a native module under name (e.g. "engine:vec").
// Panics if a module with the same name is already registered.
func Register(name, description string, loader require.ModuleLoader) {
	mu.Lock()
	defer mu.Unlock()

	if _, exists := modules[name]; exists {
		panic(fmt.Sprintf("registry: module %q already registered", name))
	}
	if loader == nil {
		panic(fmt.Sprintf("registry: module %q has nil loader", name))
	}

	modules[name] = entry{
		info:   ModuleInfo{Name: name, Description: description},
		loader: loader,
	}
}

// List returns information about all registered modules, sorted by name.
func List() []ModuleInfo {
	mu.RLock()
	defer mu.RUnlock()

	result := make([]ModuleInfo, 0, len(modules))
	for _, e := range modules {
		result = append(result, e.info)
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].Name < result[j].Name
	})

	return result
}

// Exists checks if a module with the given name is registered.
func Exists(name string) bool {
	mu.RLock()
	defer mu.RUnlock()

	_, ok := modules[name]
	return ok
}

// Install registers every known module with a require registry.
func Install(reg *require.Registry) {
	mu.RLock()
	defer mu.RUnlock()

	for name, e := range modules {
		reg.RegisterNativeModule(name, e.loader)
	}
}

// Package interp hosts the embedded script interpreter for the engine.
//
// A single Context exists per process. It owns the global interpreter lock
// (GIL), the shared module registry and the logger. Every goroutine that wants
// to run script code registers itself with NewThreadState, which pins it to an
// OS thread and gives it its own goja runtime. Script execution across all
// thread states is serialized by the GIL.
package interp

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/charmbracelet/log"
	"github.com/dop251/goja"
	"github.com/dop251/goja_nodejs/require"

	"github.com/vovakirdan/scriptworld/internal/registry"
)

var (
	// ErrLockNotHeld is returned when an operation that needs the GIL is
	// attempted by a thread state that does not hold it.
	ErrLockNotHeld = errors.New("interp: interpreter lock not held")

	// ErrReentrantAcquire is the panic value raised when a thread state tries
	// to acquire the GIL it already holds.
	ErrReentrantAcquire = errors.New("interp: reentrant acquisition of interpreter lock")

	// ErrThreadReleased is returned when a released thread state is used.
	ErrThreadReleased = errors.New("interp: thread state already released")
)

// ThreadID identifies a registered thread for the lifetime of the process.
// Zero is never assigned.
type ThreadID int64

// Options configures a Context.
type Options struct {
	// GameFolder is added to the module search path so scripts can
	// require() their siblings by bare name.
	GameFolder string

	// Logger receives interpreter diagnostics. Nil discards them.
	Logger *log.Logger
}

// Context is the process-wide interpreter handle. It is shared by reference;
// nothing that receives a Context owns it.
type Context struct {
	gil    sync.Mutex
	holder atomic.Int64

	nextID atomic.Int64

	modules    *require.Registry
	gameFolder string
	logger     *log.Logger
}

// New creates the interpreter context and installs every native module
// registered with the registry package.
func New(opts Options) *Context {
	logger := opts.Logger
	if logger == nil {
		logger = log.New(io.Discard)
	}

	var folders []string
	if opts.GameFolder != "" {
		folders = append(folders, opts.GameFolder, filepath.Join(opts.GameFolder, "node_modules"))
	}

	modules := require.NewRegistry(require.WithGlobalFolders(folders...))
	registry.Install(modules)

	return &Context{
		modules:    modules,
		gameFolder: opts.GameFolder,
		logger:     logger,
	}
}

// Logger returns the context logger.
func (c *Context) Logger() *log.Logger {
	return c.logger
}

// GameFolder returns the configured game folder.
func (c *Context) GameFolder() string {
	return c.gameFolder
}

// GILHolder returns the thread currently holding the interpreter lock, or 0.
func (c *Context) GILHolder() ThreadID {
	return ThreadID(c.holder.Load())
}

// ImportFile loads the script module at path into the runtime of ts and
// returns its exports. The caller must hold the GIL through ts.
func (c *Context) ImportFile(ts *ThreadState, path string) (mod *Module, err error) {
	if ts.ctx != c {
		return nil, fmt.Errorf("interp: thread state belongs to another context")
	}
	if !ts.Holding() {
		return nil, ErrLockNotHeld
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("interp: cannot resolve %s: %w", path, err)
	}
	abs = filepath.ToSlash(abs)

	// require() reports some load failures by panicking with a goja value.
	defer func() {
		if r := recover(); r != nil {
			mod = nil
			err = fmt.Errorf("interp: import %s: %v", path, r)
		}
	}()

	exports, err := ts.req.Require(abs)
	if err != nil {
		return nil, fmt.Errorf("interp: import %s: %w", path, err)
	}
	if exports == nil || goja.IsUndefined(exports) || goja.IsNull(exports) {
		return nil, fmt.Errorf("interp: import %s: module has no exports", path)
	}

	c.logger.Debug("module imported", "path", abs, "thread", ts.id)
	return &Module{path: abs, vm: ts.vm, exports: exports.ToObject(ts.vm)}, nil
}

// Ensure runs fn holding the GIL on behalf of a goroutine that has no
// registered thread state, such as a finalizing caller on the main thread.
// fn must not acquire the GIL again; reentrancy cannot be detected here.
func (c *Context) Ensure(fn func()) {
	id := ThreadID(c.nextID.Add(1))
	c.lock(id)
	defer c.unlock(id)
	fn()
}

// lock blocks until id holds the GIL.
func (c *Context) lock(id ThreadID) {
	if ThreadID(c.holder.Load()) == id {
		panic(ErrReentrantAcquire)
	}
	c.gil.Lock()
	c.holder.Store(int64(id))
}

func (c *Context) unlock(id ThreadID) {
	c.holder.CompareAndSwap(int64(id), 0)
	c.gil.Unlock()
}

package interp

import (
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/dop251/goja"
	"github.com/dop251/goja_nodejs/require"
)

// ThreadState is the registration of one goroutine with the interpreter.
// It must be created and used on the same goroutine, which stays locked to
// its OS thread until Release.
type ThreadState struct {
	ctx *Context
	id  ThreadID
	vm  *goja.Runtime
	req *require.RequireModule

	released    atomic.Bool
	releaseOnce sync.Once
}

// NewThreadState registers the calling goroutine. Defer Release on the same
// goroutine.
func (c *Context) NewThreadState() *ThreadState {
	runtime.LockOSThread()

	vm := goja.New()
	vm.SetFieldNameMapper(goja.UncapFieldNameMapper())

	ts := &ThreadState{
		ctx: c,
		id:  ThreadID(c.nextID.Add(1)),
		vm:  vm,
	}
	ts.req = c.modules.Enable(vm)

	c.logger.Debug("thread registered", "thread", ts.id)
	return ts
}

// ID returns the interpreter-level identifier of the thread.
func (ts *ThreadState) ID() ThreadID {
	return ts.id
}

// Runtime returns the goja runtime bound to this thread. Only touch it while
// holding the GIL, except for Runtime.Interrupt which is goroutine-safe.
func (ts *ThreadState) Runtime() *goja.Runtime {
	return ts.vm
}

// Context returns the owning interpreter context.
func (ts *ThreadState) Context() *Context {
	return ts.ctx
}

// Holding reports whether this thread currently holds the GIL.
func (ts *ThreadState) Holding() bool {
	return ts.ctx.GILHolder() == ts.id
}

// Acquire blocks until this thread holds the GIL. There is no timeout.
func (ts *ThreadState) Acquire() *Held {
	if ts.released.Load() {
		panic(ErrThreadReleased)
	}
	ts.ctx.lock(ts.id)
	return &Held{ts: ts}
}

// With runs fn while holding the GIL. The lock is released when fn returns
// or panics.
func (ts *ThreadState) With(fn func()) {
	h := ts.Acquire()
	defer h.Release()
	fn()
}

// AllowThreads releases the GIL for the duration of fn, which must not touch
// interpreter state, and reacquires it before returning. It is a no-op
// wrapper when the GIL is not held.
func (ts *ThreadState) AllowThreads(fn func()) {
	if !ts.Holding() {
		fn()
		return
	}
	ts.ctx.unlock(ts.id)
	defer ts.ctx.lock(ts.id)
	fn()
}

// Release unregisters the thread and unpins it from its OS thread. It must
// be called on the registering goroutine, never while holding the GIL.
func (ts *ThreadState) Release() {
	ts.releaseOnce.Do(func() {
		ts.released.Store(true)
		runtime.UnlockOSThread()
		ts.ctx.logger.Debug("thread released", "thread", ts.id)
	})
}

// Held is one scoped acquisition of the GIL.
type Held struct {
	ts   *ThreadState
	once sync.Once
}

// Release gives the GIL back. Safe to call more than once, so it can be both
// deferred and called early.
func (h *Held) Release() {
	h.once.Do(func() {
		h.ts.ctx.unlock(h.ts.id)
	})
}

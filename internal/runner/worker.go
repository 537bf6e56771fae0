// Package runner drives entity groups through their bootstrap script on
// background goroutines.
package runner

import (
	"errors"
	"fmt"
	"math"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"github.com/dop251/goja"

	"github.com/vovakirdan/scriptworld/internal/entity"
	"github.com/vovakirdan/scriptworld/internal/interp"
)

// DefaultPollInterval is how often Finish re-sends KILL while waiting.
const DefaultPollInterval = 25 * time.Millisecond

// EntryPoint is the function every bootstrap module must export.
const EntryPoint = "start"

// State is the lifecycle state of a worker.
type State int32

const (
	StateImporting State = iota
	StateRunning
	StateFinished
)

func (s State) String() string {
	switch s {
	case StateImporting:
		return "IMPORTING"
	case StateRunning:
		return "RUNNING"
	case StateFinished:
		return "FINISHED"
	default:
		return "UNKNOWN"
	}
}

// Scheduler queues fn to run on the main thread after delay. fn is called
// without the GIL held.
type Scheduler interface {
	Schedule(delay time.Duration, fn func())
}

// Options configures a worker.
type Options struct {
	// Bootstrap is the script path, relative to the context game folder
	// unless absolute.
	Bootstrap string

	// Engine is handed to the entry point untouched.
	Engine any

	// Scheduler backs the after() script global. Nil disables it.
	Scheduler Scheduler

	// PollInterval defaults to DefaultPollInterval.
	PollInterval time.Duration

	Logger *log.Logger
}

// Worker runs one entity group's bootstrap loop on its own goroutine.
type Worker struct {
	ctx     *interp.Context
	group   *entity.Group
	opts    Options
	logger  *log.Logger
	signals *SignalRegistry

	threadID *threadIDFuture
	wake     chan struct{}
	done     chan struct{}

	// vm is set once, before threadID is published.
	vm *goja.Runtime

	state      atomic.Int32
	finished   atomic.Bool
	waiting    atomic.Bool
	iterations atomic.Uint64
	lastCall   atomic.Uint64
	exitErr    error

	finishOnce sync.Once
	closeOnce  sync.Once
}

// New starts a worker for group. The worker retains the group until Close.
// It must be called without holding the GIL.
func New(ctx *interp.Context, group *entity.Group, opts Options) *Worker {
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	logger := opts.Logger
	if logger == nil {
		logger = ctx.Logger()
	}
	logger = logger.With("group", group.ID())

	w := &Worker{
		ctx:      ctx,
		group:    group.Retain(),
		opts:     opts,
		logger:   logger,
		signals:  NewSignalRegistry(ctx, group.ID()),
		threadID: newThreadIDFuture(),
		wake:     make(chan struct{}, 1),
		done:     make(chan struct{}),
	}
	w.lastCall.Store(group.CallNumber())
	w.waiting.Store(true)

	go w.run()
	return w
}

func (w *Worker) run() {
	defer func() {
		if r := recover(); r != nil {
			w.exitErr = fmt.Errorf("runner: worker panic: %v", r)
			w.logger.Error("worker panicked", "panic", r)
		}
		w.threadID.publish(0, ErrWorkerExited)
		w.state.Store(int32(StateFinished))
		w.finished.Store(true)
		close(w.done)
	}()

	w.exitErr = w.loop()
	if w.exitErr != nil {
		w.logger.Error("worker exited", "err", w.exitErr, "iterations", w.iterations.Load())
	} else {
		w.logger.Info("worker finished", "iterations", w.iterations.Load())
	}
}

func (w *Worker) loop() error {
	ts := w.ctx.NewThreadState()
	defer ts.Release()

	boot, err := w.startup(ts)
	if err != nil {
		err = fmt.Errorf("%w: %w", ErrImport, err)
		w.threadID.publish(0, err)
		return err
	}
	w.threadID.publish(ts.ID(), nil)
	w.state.Store(int32(StateRunning))
	w.logger.Info("worker started", "thread", ts.ID())

	for {
		w.drainWake()

		var callErr error
		ts.With(func() {
			callErr = boot.call(w.waiting.Load())
		})
		w.iterations.Add(1)

		if callErr == nil {
			w.waiting.Store(true)
			continue
		}

		sig, ok := w.signals.MatchError(callErr)
		if !ok {
			w.logger.Error("unrecognized signal", "err", callErr)
			return fmt.Errorf("%w: %w", ErrUnrecognizedSignal, callErr)
		}
		w.logger.Debug("signal received", "signal", sig)
		switch sig {
		case SignalRestart:
			w.waiting.Store(false)
		case SignalStop:
			w.waiting.Store(true)
		case SignalKill:
			return nil
		}
	}
}

// bootstrap is the resolved entry point with its arguments wrapped once, so
// scripts see the same marker objects on every call.
type bootstrap struct {
	vm    *goja.Runtime
	start goja.Callable
	args  []goja.Value
}

func (b *bootstrap) call(waiting bool) error {
	args := append(b.args[:len(b.args):len(b.args)], b.vm.ToValue(waiting))
	_, err := b.start(goja.Undefined(), args...)
	return err
}

// startup imports the bootstrap module under the GIL and resolves its entry
// point. The GIL is released before it returns.
func (w *Worker) startup(ts *interp.ThreadState) (*bootstrap, error) {
	h := ts.Acquire()
	defer h.Release()

	vm := ts.Runtime()
	if err := w.installGlobals(ts); err != nil {
		return nil, err
	}

	path := w.opts.Bootstrap
	if !filepath.IsAbs(path) {
		path = filepath.Join(w.ctx.GameFolder(), path)
	}
	mod, err := w.ctx.ImportFile(ts, path)
	if err != nil {
		return nil, err
	}

	start, ok := goja.AssertFunction(mod.Exports().Get(EntryPoint))
	if !ok {
		return nil, fmt.Errorf("runner: %s does not export %q", mod.Path(), EntryPoint)
	}

	entities := make([]any, 0, len(w.group.Entities()))
	for _, e := range w.group.Entities() {
		entities = append(entities, e)
	}
	args := []goja.Value{
		vm.NewArray(entities...),
		vm.ToValue(w.opts.Engine),
	}
	for _, s := range Signals {
		args = append(args, vm.ToValue(w.signals.Marker(s)))
	}
	w.vm = vm
	return &bootstrap{vm: vm, start: start, args: args}, nil
}

func (w *Worker) installGlobals(ts *interp.ThreadState) error {
	vm := ts.Runtime()

	sleep := func(seconds float64) {
		d, forever := scriptDuration(seconds)
		if d <= 0 && !forever {
			return
		}
		ts.AllowThreads(func() {
			if forever {
				<-w.wake
				return
			}
			t := time.NewTimer(d)
			defer t.Stop()
			select {
			case <-t.C:
			case <-w.wake:
			}
		})
	}
	if err := vm.Set("sleep", sleep); err != nil {
		return fmt.Errorf("runner: install sleep: %w", err)
	}

	logFn := func(call goja.FunctionCall) goja.Value {
		parts := make([]string, len(call.Arguments))
		for i, a := range call.Arguments {
			parts[i] = a.String()
		}
		w.logger.Info(strings.Join(parts, " "), "source", "script")
		return goja.Undefined()
	}
	if err := vm.Set("log", logFn); err != nil {
		return fmt.Errorf("runner: install log: %w", err)
	}

	after := func(call goja.FunctionCall) goja.Value {
		if w.opts.Scheduler == nil {
			panic(vm.NewTypeError("after: no scheduler"))
		}
		fn, ok := goja.AssertFunction(call.Argument(1))
		if !ok {
			panic(vm.NewTypeError("after: second argument must be a function"))
		}
		delay, forever := scriptDuration(call.Argument(0).ToFloat())
		if forever {
			return goja.Undefined()
		}
		w.opts.Scheduler.Schedule(delay, func() { w.callback(fn) })
		return goja.Undefined()
	}
	if err := vm.Set("after", after); err != nil {
		return fmt.Errorf("runner: install after: %w", err)
	}
	return nil
}

// maxScriptSeconds is the longest delay a time.Duration can hold.
const maxScriptSeconds = float64(math.MaxInt64 / int64(time.Second))

// scriptDuration converts a script delay in seconds. NaN and non-positive
// values give zero; anything too long for a time.Duration reports forever.
func scriptDuration(seconds float64) (d time.Duration, forever bool) {
	switch {
	case math.IsNaN(seconds) || seconds <= 0:
		return 0, false
	case seconds >= maxScriptSeconds:
		return 0, true
	}
	return time.Duration(seconds * float64(time.Second)), false
}

// callback runs a deferred script function on behalf of the main thread.
func (w *Worker) callback(fn goja.Callable) {
	if w.finished.Load() {
		return
	}
	w.ctx.Ensure(func() {
		_, err := fn(goja.Undefined())
		if err == nil {
			return
		}
		// A signal that landed in the callback belongs to the loop.
		var ie *goja.InterruptedError
		if errors.As(err, &ie) {
			w.vm.Interrupt(ie.Value())
			return
		}
		w.logger.Warn("deferred callback failed", "err", err)
	})
}

func (w *Worker) drainWake() {
	select {
	case <-w.wake:
	default:
	}
}

// HaltSoft injects sig into the running script and returns immediately. It
// blocks only until the worker's thread id is known. Delivery happens at the
// script's next interpreter checkpoint; a host sleep is cut short.
func (w *Worker) HaltSoft(sig ControlSignal) error {
	marker := w.signals.Marker(sig)
	if marker == nil {
		return fmt.Errorf("runner: halt %s: %w", sig, ErrUnrecognizedSignal)
	}
	if _, err := w.ThreadID(); err != nil {
		return err
	}
	if w.finished.Load() {
		return nil
	}
	w.vm.Interrupt(marker)
	select {
	case w.wake <- struct{}{}:
	default:
	}
	return nil
}

// HaltHard would stop the worker without its cooperation. Goroutines cannot
// be terminated from outside, so it always fails.
func (w *Worker) HaltHard() error {
	return ErrHardHaltUnsupported
}

// Finish sends KILL and blocks until the worker goroutine has exited,
// re-sending KILL every poll interval. It returns the worker's exit error.
// Later calls return immediately with the same error.
func (w *Worker) Finish() error {
	w.finishOnce.Do(func() {
		_ = w.HaltSoft(SignalKill)

		ticker := time.NewTicker(w.opts.PollInterval)
		defer ticker.Stop()
		for {
			select {
			case <-w.done:
				return
			case <-ticker.C:
				_ = w.HaltSoft(SignalKill)
			}
		}
	})
	<-w.done
	return w.exitErr
}

// ThreadID blocks until the worker publishes its thread id, or the error
// that stopped it from starting.
func (w *Worker) ThreadID() (interp.ThreadID, error) {
	return w.threadID.wait()
}

// IsDirty reports whether the group changed since the last Clean.
func (w *Worker) IsDirty() bool {
	return w.group.CallNumber() != w.lastCall.Load()
}

// Clean records the group's current call number.
func (w *Worker) Clean() {
	w.lastCall.Store(w.group.CallNumber())
}

// Close finishes the worker, releases its markers and drops its group
// reference. The caller must then hold the only reference to the group;
// anything else panics with ErrOwnershipViolation.
func (w *Worker) Close() error {
	err := w.Finish()
	w.closeOnce.Do(func() {
		w.signals.Close()
		w.group.Release()
		if refs := w.group.Refs(); refs != 1 {
			panic(fmt.Errorf("%w: group %q has %d references", ErrOwnershipViolation, w.group.ID(), refs))
		}
	})
	return err
}

// Finished reports whether the worker goroutine has left its loop.
func (w *Worker) Finished() bool { return w.finished.Load() }

// Waiting reports the flag passed to the next entry point call.
func (w *Worker) Waiting() bool { return w.waiting.Load() }

// State returns the worker's lifecycle state.
func (w *Worker) State() State { return State(w.state.Load()) }

// Done is closed when the worker goroutine exits.
func (w *Worker) Done() <-chan struct{} { return w.done }

// Err returns the exit error once Done is closed, nil before.
func (w *Worker) Err() error {
	select {
	case <-w.done:
		return w.exitErr
	default:
		return nil
	}
}

// Group returns the entity group the worker drives.
func (w *Worker) Group() *entity.Group { return w.group }

// Iterations counts completed entry point calls.
func (w *Worker) Iterations() uint64 { return w.iterations.Load() }

// Signals exposes the worker's marker registry.
func (w *Worker) Signals() *SignalRegistry { return w.signals }

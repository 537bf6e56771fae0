package runner

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/dop251/goja"

	"github.com/vovakirdan/scriptworld/internal/interp"
)

// ControlSignal is the control vocabulary understood by a worker's loop.
type ControlSignal int

const (
	signalNone ControlSignal = iota
	SignalRestart
	SignalStop
	SignalKill
)

// Signals lists every control signal in release order.
var Signals = []ControlSignal{SignalRestart, SignalStop, SignalKill}

func (s ControlSignal) String() string {
	switch s {
	case SignalRestart:
		return "RESTART"
	case SignalStop:
		return "STOP"
	case SignalKill:
		return "KILL"
	default:
		return "NONE"
	}
}

// ParseSignal converts a signal name (case-sensitive, as printed by String).
func ParseSignal(name string) (ControlSignal, error) {
	for _, s := range Signals {
		if s.String() == name {
			return s, nil
		}
	}
	return signalNone, fmt.Errorf("runner: unknown signal %q", name)
}

// SignalMarker identifies one control signal of one worker. Markers are
// compared by pointer identity, never by value.
type SignalMarker struct {
	signal ControlSignal
	name   string
	base   *SignalMarker
	refs   atomic.Int32
}

func newMarker(signal ControlSignal, name string, base *SignalMarker) *SignalMarker {
	m := &SignalMarker{signal: signal, name: name, base: base}
	m.refs.Store(1)
	return m
}

// Signal returns the control signal the marker stands for.
func (m *SignalMarker) Signal() string {
	return m.signal.String()
}

// Name returns the marker's display name.
func (m *SignalMarker) Name() string {
	return m.name
}

// IsAsync reports whether the marker derives from an asynchronous base
// marker. Scripts use it as a catch-all test.
func (m *SignalMarker) IsAsync() bool {
	return m.base != nil
}

// Refs returns the marker's reference count; zero once released.
func (m *SignalMarker) Refs() int {
	return int(m.refs.Load())
}

func (m *SignalMarker) release() {
	if m.refs.Add(-1) < 0 {
		panic(fmt.Sprintf("runner: marker %s released twice", m.name))
	}
}

// SignalRegistry owns the markers of one worker.
type SignalRegistry struct {
	ctx     *interp.Context
	base    *SignalMarker
	markers map[ControlSignal]*SignalMarker

	closeOnce sync.Once
}

// NewSignalRegistry creates the base marker and one marker per control
// signal, all inside a single GIL critical section. The caller must not hold
// the GIL.
func NewSignalRegistry(ctx *interp.Context, owner string) *SignalRegistry {
	r := &SignalRegistry{
		ctx:     ctx,
		markers: make(map[ControlSignal]*SignalMarker, len(Signals)),
	}
	ctx.Ensure(func() {
		r.base = newMarker(signalNone, owner+".BaseAsyncSignal", nil)
		for _, s := range Signals {
			r.markers[s] = newMarker(s, owner+".BaseAsyncSignal_"+s.String(), r.base)
		}
	})
	return r
}

// Marker returns the marker for s, or nil for an unknown signal.
func (r *SignalRegistry) Marker(s ControlSignal) *SignalMarker {
	return r.markers[s]
}

// Base returns the shared base marker.
func (r *SignalRegistry) Base() *SignalMarker {
	return r.base
}

// Match maps a delivered value back to its control signal by identity.
func (r *SignalRegistry) Match(v any) (ControlSignal, bool) {
	m, ok := v.(*SignalMarker)
	if !ok || m == nil {
		return signalNone, false
	}
	for _, s := range Signals {
		if r.markers[s] == m {
			return s, true
		}
	}
	return signalNone, false
}

// MatchError inspects an error returned by a script call. Both an injected
// interrupt and a script that throws one of the markers are recognized.
func (r *SignalRegistry) MatchError(err error) (ControlSignal, bool) {
	var interrupted *goja.InterruptedError
	if errors.As(err, &interrupted) {
		return r.Match(interrupted.Value())
	}
	var exc *goja.Exception
	if errors.As(err, &exc) {
		if v := exc.Value(); v != nil {
			return r.Match(v.Export())
		}
	}
	return signalNone, false
}

// Close releases RESTART, STOP and KILL in that order, then the base, inside
// one GIL critical section. Safe to call more than once. The caller must not
// hold the GIL.
func (r *SignalRegistry) Close() {
	r.closeOnce.Do(func() {
		r.ctx.Ensure(func() {
			for _, s := range Signals {
				r.markers[s].release()
			}
			r.base.release()
		})
	})
}

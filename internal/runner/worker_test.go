package runner

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/vovakirdan/scriptworld/internal/entity"
	"github.com/vovakirdan/scriptworld/internal/interp"
)

const testPoll = 25 * time.Millisecond

// recorder is the engine handle handed to test scripts.
type recorder struct {
	mu      sync.Mutex
	waiting []bool
	notes   []string
}

func (r *recorder) Record(waiting bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.waiting = append(r.waiting, waiting)
}

func (r *recorder) Note(s string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notes = append(r.notes, s)
}

func (r *recorder) calls() []bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]bool(nil), r.waiting...)
}

func (r *recorder) noted() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.notes...)
}

type goScheduler struct{}

func (goScheduler) Schedule(delay time.Duration, fn func()) {
	time.AfterFunc(delay, fn)
}

func startWorker(t *testing.T, src string) (*Worker, *entity.Group, *recorder) {
	t.Helper()
	dir := t.TempDir()
	if src != "" {
		if err := os.WriteFile(filepath.Join(dir, "bootstrapper.js"), []byte(src), 0o644); err != nil {
			t.Fatalf("write bootstrap: %v", err)
		}
	}

	group, err := entity.NewGroup("g1", entity.New("hero", 0, 0, nil))
	if err != nil {
		t.Fatalf("NewGroup() failed: %v", err)
	}
	rec := &recorder{}
	ctx := interp.New(interp.Options{GameFolder: dir})
	w := New(ctx, group, Options{
		Bootstrap:    "bootstrapper.js",
		Engine:       rec,
		Scheduler:    goScheduler{},
		PollInterval: testPoll,
	})
	return w, group, rec
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(time.Millisecond)
	}
}

const idleScript = `
exports.start = function(entities, engine, RESTART, STOP, KILL, waiting) {
	engine.record(waiting);
	if (waiting) {
		sleep(30);
	}
};
`

func TestFinishNoopLoop(t *testing.T) {
	w, _, _ := startWorker(t, `exports.start = function() {};`)

	if _, err := w.ThreadID(); err != nil {
		t.Fatalf("ThreadID() failed: %v", err)
	}
	waitFor(t, "first iteration", func() bool { return w.Iterations() > 0 })

	if err := w.HaltSoft(SignalKill); err != nil {
		t.Fatalf("HaltSoft() failed: %v", err)
	}
	began := time.Now()
	if err := w.Finish(); err != nil {
		t.Fatalf("Finish() = %v, want nil", err)
	}
	if elapsed := time.Since(began); elapsed > 5*testPoll {
		t.Errorf("Finish() took %v, want at most %v", elapsed, 5*testPoll)
	}
	if !w.Finished() {
		t.Error("worker should be finished")
	}
	if w.State() != StateFinished {
		t.Errorf("State() = %v, want FINISHED", w.State())
	}
	select {
	case <-w.Done():
	default:
		t.Error("Done() should be closed after Finish")
	}
}

func TestFinishIdempotent(t *testing.T) {
	w, _, _ := startWorker(t, idleScript)

	if err := w.Finish(); err != nil {
		t.Fatalf("Finish() = %v", err)
	}
	began := time.Now()
	for i := 0; i < 3; i++ {
		if err := w.Finish(); err != nil {
			t.Errorf("repeat Finish() = %v", err)
		}
	}
	if elapsed := time.Since(began); elapsed > testPoll {
		t.Errorf("repeat Finish() took %v", elapsed)
	}
}

func TestRestartFromIdle(t *testing.T) {
	w, _, rec := startWorker(t, idleScript)
	defer w.Finish()

	waitFor(t, "idle call", func() bool { return len(rec.calls()) >= 1 })
	if got := rec.calls()[0]; !got {
		t.Fatalf("first call waiting = %v, want true", got)
	}

	if err := w.HaltSoft(SignalRestart); err != nil {
		t.Fatalf("HaltSoft(RESTART) failed: %v", err)
	}
	waitFor(t, "restarted call", func() bool { return len(rec.calls()) >= 2 })

	calls := rec.calls()
	if calls[1] {
		t.Errorf("call after RESTART waiting = true, want false")
	}
	// the restarted call returns normally, which re-arms waiting
	waitFor(t, "waiting re-armed", w.Waiting)
}

func TestStopSetsWaiting(t *testing.T) {
	w, _, rec := startWorker(t, `
exports.start = function(entities, engine, RESTART, STOP, KILL, waiting) {
	engine.record(waiting);
	sleep(30);
};
`)
	defer w.Finish()

	waitFor(t, "first call", func() bool { return len(rec.calls()) >= 1 })
	if err := w.HaltSoft(SignalRestart); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "second call", func() bool { return len(rec.calls()) >= 2 })
	if err := w.HaltSoft(SignalStop); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "third call", func() bool { return len(rec.calls()) >= 3 })

	calls := rec.calls()
	want := []bool{true, false, true}
	for i, v := range want {
		if calls[i] != v {
			t.Errorf("call %d waiting = %v, want %v", i, calls[i], v)
		}
	}
}

func TestThrownMarkers(t *testing.T) {
	tests := []struct {
		name    string
		src     string
		wantErr error
	}{
		{
			name:    "kill",
			src:     `exports.start = function(e, engine, RESTART, STOP, KILL) { throw KILL; };`,
			wantErr: nil,
		},
		{
			name:    "unrecognized",
			src:     `exports.start = function() { throw new Error("boom"); };`,
			wantErr: ErrUnrecognizedSignal,
		},
		{
			name:    "plain value",
			src:     `exports.start = function() { throw "KILL"; };`,
			wantErr: ErrUnrecognizedSignal,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, _, _ := startWorker(t, tt.src)

			select {
			case <-w.Done():
			case <-time.After(2 * time.Second):
				t.Fatal("worker did not exit on its own")
			}

			err := w.Finish()
			if tt.wantErr == nil && err != nil {
				t.Errorf("Finish() = %v, want nil", err)
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("Finish() = %v, want %v", err, tt.wantErr)
			}
			if !w.Finished() {
				t.Error("finished flag not set")
			}
		})
	}
}

func TestRestartThrownByScript(t *testing.T) {
	w, _, rec := startWorker(t, `
var thrown = false;
exports.start = function(entities, engine, RESTART, STOP, KILL, waiting) {
	engine.record(waiting);
	if (!thrown) {
		thrown = true;
		throw RESTART;
	}
	throw KILL;
};
`)
	if err := w.Finish(); err != nil {
		t.Fatalf("Finish() = %v", err)
	}
	calls := rec.calls()
	if len(calls) != 2 || calls[0] != true || calls[1] != false {
		t.Errorf("calls = %v, want [true false]", calls)
	}
}

func TestImportFailureReported(t *testing.T) {
	w, group, _ := startWorker(t, "")

	type result struct {
		id  interp.ThreadID
		err error
	}
	got := make(chan result, 1)
	go func() {
		id, err := w.ThreadID()
		got <- result{id, err}
	}()

	select {
	case r := <-got:
		if !errors.Is(r.err, ErrImport) {
			t.Errorf("ThreadID() error = %v, want ErrImport", r.err)
		}
		if r.id != 0 {
			t.Errorf("ThreadID() = %d, want 0", r.id)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("ThreadID() blocked after import failure")
	}

	if err := w.Finish(); !errors.Is(err, ErrImport) {
		t.Errorf("Finish() = %v, want ErrImport", err)
	}
	if err := w.HaltSoft(SignalKill); !errors.Is(err, ErrImport) {
		t.Errorf("HaltSoft() = %v, want ErrImport", err)
	}
	if err := w.Close(); !errors.Is(err, ErrImport) {
		t.Errorf("Close() = %v, want ErrImport", err)
	}
	if group.Refs() != 1 {
		t.Errorf("group refs = %d, want 1", group.Refs())
	}
}

func TestMissingEntryPoint(t *testing.T) {
	w, _, _ := startWorker(t, `exports.other = function() {};`)
	if _, err := w.ThreadID(); !errors.Is(err, ErrImport) {
		t.Errorf("ThreadID() error = %v, want ErrImport", err)
	}
	w.Finish()
}

func TestThreadIDStable(t *testing.T) {
	w, _, _ := startWorker(t, idleScript)
	defer w.Finish()

	first, err := w.ThreadID()
	if err != nil {
		t.Fatalf("ThreadID() failed: %v", err)
	}
	if first == 0 {
		t.Fatal("ThreadID() returned zero")
	}

	began := time.Now()
	second, err := w.ThreadID()
	if err != nil {
		t.Fatalf("second ThreadID() failed: %v", err)
	}
	if second != first {
		t.Errorf("ThreadID() = %d then %d", first, second)
	}
	if time.Since(began) > 10*time.Millisecond {
		t.Error("second ThreadID() blocked")
	}
}

func TestDirtyAndClean(t *testing.T) {
	w, group, _ := startWorker(t, idleScript)
	defer w.Finish()

	if w.IsDirty() {
		t.Fatal("fresh worker should be clean")
	}
	hero, _ := group.Lookup("hero")
	hero.MoveNorth()
	if !w.IsDirty() {
		t.Fatal("worker should be dirty after an entity call")
	}
	w.Clean()
	if w.IsDirty() {
		t.Error("worker should be clean after Clean()")
	}
}

func TestScriptCallsMarkDirty(t *testing.T) {
	w, _, rec := startWorker(t, `
exports.start = function(entities, engine, RESTART, STOP, KILL, waiting) {
	if (!waiting) {
		entities[0].moveEast();
	}
	engine.record(waiting);
	sleep(30);
};
`)
	defer w.Finish()

	waitFor(t, "idle call", func() bool { return len(rec.calls()) >= 1 })
	w.Clean()
	w.HaltSoft(SignalRestart)
	waitFor(t, "active call", func() bool { return len(rec.calls()) >= 2 })
	if !w.IsDirty() {
		t.Error("script movement should dirty the worker")
	}
}

func TestCloseReleasesMarkersOnce(t *testing.T) {
	w, group, _ := startWorker(t, idleScript)
	reg := w.Signals()

	for _, s := range Signals {
		if got := reg.Marker(s).Refs(); got != 1 {
			t.Errorf("%s refs before close = %d, want 1", s, got)
		}
	}

	if err := w.Close(); err != nil {
		t.Fatalf("Close() = %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("second Close() = %v", err)
	}

	for _, s := range Signals {
		if got := reg.Marker(s).Refs(); got != 0 {
			t.Errorf("%s refs after close = %d, want 0", s, got)
		}
	}
	if got := reg.Base().Refs(); got != 0 {
		t.Errorf("base refs after close = %d, want 0", got)
	}
	if group.Refs() != 1 {
		t.Errorf("group refs = %d, want 1", group.Refs())
	}
}

func TestCloseOwnershipViolation(t *testing.T) {
	w, group, _ := startWorker(t, idleScript)
	group.Retain()

	defer func() {
		r := recover()
		err, ok := r.(error)
		if !ok || !errors.Is(err, ErrOwnershipViolation) {
			t.Errorf("Close() panic = %v, want ErrOwnershipViolation", r)
		}
	}()
	w.Close()
	t.Error("Close() should have panicked")
}

func TestHaltHardUnsupported(t *testing.T) {
	w, _, _ := startWorker(t, idleScript)
	defer w.Finish()

	if err := w.HaltHard(); !errors.Is(err, ErrHardHaltUnsupported) {
		t.Errorf("HaltHard() = %v, want ErrHardHaltUnsupported", err)
	}
	if w.Finished() {
		t.Error("HaltHard() must not stop the worker")
	}
}

func TestMarkersVisibleToScript(t *testing.T) {
	w, _, rec := startWorker(t, `
exports.start = function(entities, engine, RESTART, STOP, KILL, waiting) {
	engine.note(STOP.signal());
	engine.note(String(KILL.isAsync()));
	engine.note(String(RESTART === STOP));
	engine.note(entities[0].name());
	throw KILL;
};
`)
	if err := w.Finish(); err != nil {
		t.Fatalf("Finish() = %v", err)
	}
	want := []string{"STOP", "true", "false", "hero"}
	got := rec.noted()
	if len(got) != len(want) {
		t.Fatalf("notes = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("note %d = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestAfterRunsCallback(t *testing.T) {
	w, _, rec := startWorker(t, `
var scheduled = false;
exports.start = function(entities, engine, RESTART, STOP, KILL, waiting) {
	if (!scheduled) {
		scheduled = true;
		after(0.01, function() { engine.note("fired"); });
	}
	sleep(30);
};
`)
	defer w.Finish()

	waitFor(t, "callback", func() bool { return len(rec.noted()) == 1 })
	if got := rec.noted()[0]; got != "fired" {
		t.Errorf("note = %q, want fired", got)
	}
}

func TestSleepForever(t *testing.T) {
	w, _, rec := startWorker(t, `
exports.start = function(entities, engine, RESTART, STOP, KILL, waiting) {
	engine.record(waiting);
	sleep(Infinity);
};
`)
	defer w.Finish()

	waitFor(t, "first call", func() bool { return len(rec.calls()) >= 1 })
	time.Sleep(4 * testPoll)
	if n := len(rec.calls()); n != 1 {
		t.Fatalf("sleep(Infinity) returned early: %d calls", n)
	}

	if err := w.HaltSoft(SignalRestart); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "restarted call", func() bool { return len(rec.calls()) >= 2 })
	if rec.calls()[1] {
		t.Error("call after RESTART waiting = true, want false")
	}
}

func TestAfterOutOfRangeDelays(t *testing.T) {
	w, _, rec := startWorker(t, `
var scheduled = false;
exports.start = function(entities, engine, RESTART, STOP, KILL, waiting) {
	if (!scheduled) {
		scheduled = true;
		after(Infinity, function() { engine.note("never"); });
		after(1e300, function() { engine.note("never"); });
		after(NaN, function() { engine.note("now"); });
	}
	sleep(30);
};
`)
	defer w.Finish()

	waitFor(t, "immediate callback", func() bool { return len(rec.noted()) >= 1 })
	time.Sleep(2 * testPoll)
	notes := rec.noted()
	if len(notes) != 1 || notes[0] != "now" {
		t.Errorf("notes = %v, want [now]", notes)
	}
}

func TestScriptDuration(t *testing.T) {
	tests := []struct {
		seconds     float64
		want        time.Duration
		wantForever bool
	}{
		{math.NaN(), 0, false},
		{-1, 0, false},
		{0, 0, false},
		{0.5, 500 * time.Millisecond, false},
		{30, 30 * time.Second, false},
		{1e12, 0, true},
		{math.Inf(1), 0, true},
		{math.Inf(-1), 0, false},
	}
	for _, tt := range tests {
		d, forever := scriptDuration(tt.seconds)
		if d != tt.want || forever != tt.wantForever {
			t.Errorf("scriptDuration(%v) = %v, %v; want %v, %v", tt.seconds, d, forever, tt.want, tt.wantForever)
		}
	}
}

func TestRestartBreaksBusyLoop(t *testing.T) {
	w, _, rec := startWorker(t, `
exports.start = function(entities, engine, RESTART, STOP, KILL, waiting) {
	engine.record(waiting);
	if (waiting) {
		while (true) {}
	}
	sleep(30);
};
`)

	waitFor(t, "busy call", func() bool { return len(rec.calls()) >= 1 })
	if err := w.HaltSoft(SignalRestart); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "restarted call", func() bool { return len(rec.calls()) >= 2 })
	if calls := rec.calls(); calls[1] {
		t.Error("call after RESTART waiting = true, want false")
	}

	began := time.Now()
	if err := w.Finish(); err != nil {
		t.Fatalf("Finish() = %v", err)
	}
	if elapsed := time.Since(began); elapsed > 5*testPoll {
		t.Errorf("Finish() took %v, want at most %v", elapsed, 5*testPoll)
	}
}

func TestFinishBusyLoop(t *testing.T) {
	w, _, _ := startWorker(t, `exports.start = function() { while (true) {} };`)

	if _, err := w.ThreadID(); err != nil {
		t.Fatalf("ThreadID() failed: %v", err)
	}
	waitFor(t, "loop running", func() bool { return w.State() == StateRunning })
	time.Sleep(testPoll)

	began := time.Now()
	if err := w.Finish(); err != nil {
		t.Fatalf("Finish() = %v", err)
	}
	if elapsed := time.Since(began); elapsed > 5*testPoll {
		t.Errorf("Finish() took %v, want at most %v", elapsed, 5*testPoll)
	}
}

func TestRestartLandsInCallback(t *testing.T) {
	w, _, rec := startWorker(t, `
var scheduled = false;
exports.start = function(entities, engine, RESTART, STOP, KILL, waiting) {
	engine.record(waiting);
	if (!scheduled) {
		scheduled = true;
		after(0.01, function() {
			engine.note("busy");
			while (true) {}
		});
	}
	sleep(30);
};
`)
	defer w.Finish()

	waitFor(t, "callback running", func() bool { return len(rec.noted()) == 1 })
	if err := w.HaltSoft(SignalRestart); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "restarted call", func() bool { return len(rec.calls()) >= 2 })
	if calls := rec.calls(); calls[1] {
		t.Error("call after RESTART waiting = true, want false")
	}
}

func TestParseSignal(t *testing.T) {
	for _, s := range Signals {
		got, err := ParseSignal(s.String())
		if err != nil || got != s {
			t.Errorf("ParseSignal(%q) = %v, %v", s.String(), got, err)
		}
	}
	if _, err := ParseSignal("PAUSE"); err == nil {
		t.Error("ParseSignal(PAUSE) should fail")
	}
}

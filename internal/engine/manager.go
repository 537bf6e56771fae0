package engine

import (
	"crypto/rand"
	"encoding/base32"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/vovakirdan/scriptworld/internal/entity"
	"github.com/vovakirdan/scriptworld/internal/interp"
	"github.com/vovakirdan/scriptworld/internal/runner"
)

// ErrUnknownGroup is returned for operations on a group the manager does not
// run.
var ErrUnknownGroup = errors.New("engine: unknown group")

// ManagerConfig controls how workers are started and replaced.
type ManagerConfig struct {
	Bootstrap    string        // Bootstrap script, relative to the game folder
	PollInterval time.Duration // Passed to every worker
	Respawn      bool          // Replace workers that exit with an error
	MaxRespawns  int           // Respawn attempts per group before giving up
}

// DefaultManagerConfig returns the defaults used when no config file exists.
func DefaultManagerConfig() ManagerConfig {
	return ManagerConfig{
		Bootstrap:    "bootstrapper.js",
		PollInterval: runner.DefaultPollInterval,
		Respawn:      true,
		MaxRespawns:  3,
	}
}

// RunRecorder persists finished worker runs. The storage package implements
// it; the manager works without one.
type RunRecorder interface {
	SaveRun(run RunRecord) error
}

// RunRecord describes one worker lifetime for a group.
type RunRecord struct {
	RunID      string
	GroupID    string
	Bootstrap  string
	Attempt    int
	Status     entity.Status
	Iterations uint64
	Error      string
	StartedAt  time.Time
	EndedAt    time.Time
}

// GroupStatus is a point-in-time view of one managed group.
type GroupStatus struct {
	ID         string
	RunID      string
	Status     entity.Status
	State      runner.State
	Waiting    bool
	Dirty      bool
	Iterations uint64
	Attempts   int
	Error      string
	Entities   []entity.Snapshot
}

type slot struct {
	group     *entity.Group
	bootstrap string
	worker    *interp.Lockable[*runner.Worker]

	// guarded by Manager.mu
	runID     string
	startedAt time.Time
	attempts  int
	status    entity.Status
	killed    bool
	recorded  bool
	replacing bool
	lastErr   error
	dirty     bool
}

type exitMsg struct {
	groupID string
	worker  *runner.Worker
}

// Manager keeps exactly one worker per registered entity group.
//
// mu only guards bookkeeping. Creating and closing workers both take the GIL,
// so they happen with mu released and the result is swapped in afterwards.
type Manager struct {
	ctx      *interp.Context
	engine   *Engine
	config   ManagerConfig
	logger   *log.Logger
	recorder RunRecorder

	mu       sync.RWMutex
	slots    map[string]*slot
	order    []string
	starting map[string]bool

	exits    chan exitMsg
	done     chan struct{}
	wg       sync.WaitGroup
	spawning sync.WaitGroup // Add and replace calls in flight
	started  bool
	closed   bool
}

// NewManager creates a manager. Call Start before adding groups.
func NewManager(ctx *interp.Context, eng *Engine, cfg ManagerConfig, logger *log.Logger) *Manager {
	if logger == nil {
		logger = log.New(io.Discard)
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = runner.DefaultPollInterval
	}
	return &Manager{
		ctx:    ctx,
		engine: eng,
		config: cfg,
		logger: logger,
		slots:    make(map[string]*slot),
		starting: make(map[string]bool),
		exits:    make(chan exitMsg, 64),
		done:     make(chan struct{}),
	}
}

// SetRecorder sets the optional run recorder.
func (m *Manager) SetRecorder(r RunRecorder) {
	m.recorder = r
}

// Start begins processing worker exits.
func (m *Manager) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.started {
		return
	}
	m.started = true
	m.wg.Add(1)
	go m.processExits()
}

// Add takes over the caller's reference to group and starts a worker for it.
// An empty bootstrap uses the configured one. On error the caller keeps its
// reference.
func (m *Manager) Add(group *entity.Group, bootstrap string) error {
	if bootstrap == "" {
		bootstrap = m.config.Bootstrap
	}
	id := group.ID()

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return fmt.Errorf("engine: manager closed")
	}
	if _, exists := m.slots[id]; exists || m.starting[id] {
		m.mu.Unlock()
		return fmt.Errorf("engine: group %q already managed", id)
	}
	m.starting[id] = true
	m.spawning.Add(1)
	m.mu.Unlock()
	defer m.spawning.Done()

	w := m.newWorker(group, bootstrap)

	m.mu.Lock()
	delete(m.starting, id)
	if m.closed {
		m.mu.Unlock()
		m.closeWorker(w)
		return fmt.Errorf("engine: manager closed")
	}
	s := &slot{group: group, bootstrap: bootstrap, worker: interp.NewLockable(w)}
	m.slots[id] = s
	m.order = append(m.order, id)
	m.startedLocked(s, w)
	m.mu.Unlock()
	return nil
}

// newWorker creates a worker for group. It takes the GIL, so m.mu must not be
// held.
func (m *Manager) newWorker(group *entity.Group, bootstrap string) *runner.Worker {
	return runner.New(m.ctx, group, runner.Options{
		Bootstrap:    bootstrap,
		Engine:       m.engine.Handle(),
		Scheduler:    m.engine.Events(),
		PollInterval: m.config.PollInterval,
		Logger:       m.logger,
	})
}

// startedLocked resets the run bookkeeping of s for its new worker w and
// watches w for exit. m.mu must be held.
func (m *Manager) startedLocked(s *slot, w *runner.Worker) {
	s.runID = generateRunID()
	s.startedAt = time.Now()
	s.killed = false
	s.recorded = false
	s.lastErr = nil
	s.setStatus(entity.StatusRunning)

	m.logger.Info("worker spawned", "group", s.group.ID(), "run", s.runID, "attempt", s.attempts)
	go m.watch(s.group.ID(), w)
}

// replace closes old and installs a fresh worker in s. The caller sets
// s.replacing and adds to m.spawning while holding m.mu.
func (m *Manager) replace(s *slot, old *runner.Worker) {
	defer m.spawning.Done()

	// The old worker must drop its group reference before the new one
	// takes it.
	m.closeWorker(old)
	w := m.newWorker(s.group, s.bootstrap)

	m.mu.Lock()
	defer m.mu.Unlock()
	s.replacing = false
	s.worker.Set(w)
	m.startedLocked(s, w)
}

func (s *slot) setStatus(st entity.Status) {
	s.status = st
	s.group.SetStatus(st)
}

func (m *Manager) watch(groupID string, w *runner.Worker) {
	select {
	case <-w.Done():
	case <-m.done:
		return
	}
	select {
	case m.exits <- exitMsg{groupID: groupID, worker: w}:
	case <-m.done:
	}
}

func (m *Manager) processExits() {
	defer m.wg.Done()
	for {
		select {
		case msg := <-m.exits:
			m.handleExit(msg)
		case <-m.done:
			return
		}
	}
}

func (m *Manager) handleExit(msg exitMsg) {
	m.mu.Lock()
	s, ok := m.slots[msg.groupID]
	if !ok || m.closed || s.replacing || s.worker.Get() != msg.worker {
		m.mu.Unlock()
		return
	}

	w := msg.worker
	err := w.Err()
	s.lastErr = err
	s.setStatus(exitStatus(err))
	run := m.recordLocked(s, w)

	respawn := err != nil && !s.killed && m.config.Respawn && s.attempts < m.config.MaxRespawns
	if respawn {
		s.attempts++
		s.replacing = true
		m.spawning.Add(1)
	}
	m.mu.Unlock()

	m.save(run)
	if err != nil {
		m.logger.Warn("worker failed", "group", msg.groupID, "err", err, "respawn", respawn)
	}
	if respawn {
		m.replace(s, w)
	}
}

// recordLocked builds the run record for w once per run. m.mu must be held.
func (m *Manager) recordLocked(s *slot, w *runner.Worker) *RunRecord {
	if s.recorded {
		return nil
	}
	s.recorded = true
	run := &RunRecord{
		RunID:      s.runID,
		GroupID:    s.group.ID(),
		Bootstrap:  s.bootstrap,
		Attempt:    s.attempts,
		Status:     s.status,
		Iterations: w.Iterations(),
		StartedAt:  s.startedAt,
		EndedAt:    time.Now(),
	}
	if s.lastErr != nil {
		run.Error = s.lastErr.Error()
	}
	return run
}

func (m *Manager) save(run *RunRecord) {
	if run == nil || m.recorder == nil {
		return
	}
	if err := m.recorder.SaveRun(*run); err != nil {
		m.logger.Error("cannot save run", "run", run.RunID, "err", err)
	}
}

// closeWorker finishes w and releases it. An ownership violation is a bug in
// the manager, so the panic is left alone.
func (m *Manager) closeWorker(w *runner.Worker) {
	_ = w.Close()
}

// Control delivers sig to a group's worker. RESTART on a worker that has
// already exited starts a fresh one.
func (m *Manager) Control(groupID string, sig runner.ControlSignal) error {
	m.mu.Lock()
	s, ok := m.slots[groupID]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("%w: %q", ErrUnknownGroup, groupID)
	}
	if m.closed {
		m.mu.Unlock()
		return fmt.Errorf("engine: manager closed")
	}

	w := s.worker.Get()

	if w.Finished() {
		// A replacement already under way counts as the restart.
		if sig != runner.SignalRestart || s.replacing {
			m.mu.Unlock()
			return nil
		}
		if !s.recorded {
			s.lastErr = w.Err()
			s.setStatus(exitStatus(s.lastErr))
		}
		run := m.recordLocked(s, w)
		s.attempts = 0
		s.replacing = true
		m.spawning.Add(1)
		m.mu.Unlock()

		m.save(run)
		m.replace(s, w)
		return nil
	}

	switch sig {
	case runner.SignalRestart:
		s.setStatus(entity.StatusRunning)
	case runner.SignalStop:
		s.setStatus(entity.StatusStopped)
	case runner.SignalKill:
		s.killed = true
		s.setStatus(entity.StatusKilled)
	}
	m.mu.Unlock()

	m.logger.Debug("signal sent", "group", groupID, "signal", sig)
	return w.HaltSoft(sig)
}

// Step runs one main-thread frame: the engine advances, due events run and
// dirty groups are noted and cleaned. It returns the IDs of groups that
// changed since the previous step.
func (m *Manager) Step() []string {
	m.engine.Advance()

	m.mu.Lock()
	defer m.mu.Unlock()

	var changed []string
	for _, id := range m.order {
		s := m.slots[id]
		s.worker.With(func(w **runner.Worker) {
			s.dirty = (*w).IsDirty()
			if s.dirty {
				(*w).Clean()
			}
		})
		if s.dirty {
			changed = append(changed, id)
		}
	}
	return changed
}

// Groups returns the managed group IDs in the order they were added.
func (m *Manager) Groups() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]string(nil), m.order...)
}

// Snapshot returns the status of every group in the order they were added.
func (m *Manager) Snapshot() []GroupStatus {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]GroupStatus, 0, len(m.order))
	for _, id := range m.order {
		s := m.slots[id]
		w := s.worker.Get()
		st := GroupStatus{
			ID:         id,
			RunID:      s.runID,
			Status:     s.status,
			State:      w.State(),
			Waiting:    w.Waiting(),
			Dirty:      s.dirty,
			Iterations: w.Iterations(),
			Attempts:   s.attempts,
		}
		if s.lastErr != nil {
			st.Error = s.lastErr.Error()
		}
		for _, e := range s.group.Entities() {
			st.Entities = append(st.Entities, e.Snapshot())
		}
		out = append(out, st)
	}
	return out
}

// Close kills every worker, records their final runs and releases the
// groups. It is safe to call more than once.
func (m *Manager) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	close(m.done)
	started := m.started
	m.mu.Unlock()

	if started {
		m.wg.Wait()
	}
	m.spawning.Wait()

	m.mu.RLock()
	slots := make([]*slot, 0, len(m.order))
	for _, id := range m.order {
		slots = append(slots, m.slots[id])
	}
	m.mu.RUnlock()

	var wg sync.WaitGroup
	for _, s := range slots {
		wg.Add(1)
		go func(w *runner.Worker) {
			defer wg.Done()
			_ = w.Finish()
		}(s.worker.Get())
	}
	wg.Wait()

	runs := make([]*RunRecord, 0, len(slots))
	m.mu.Lock()
	for _, s := range slots {
		w := s.worker.Get()
		if !s.recorded {
			s.lastErr = w.Err()
			s.setStatus(exitStatus(s.lastErr))
		}
		runs = append(runs, m.recordLocked(s, w))
	}
	m.mu.Unlock()

	for _, s := range slots {
		m.closeWorker(s.worker.Get())
		s.group.Release()
	}
	// Callbacks queued by the closed workers have nothing left to run on.
	m.engine.Events().Clear()

	for _, run := range runs {
		m.save(run)
	}
	m.logger.Info("manager closed", "groups", len(slots))
}

// generateRunID creates an 8-character uppercase run identifier.
func generateRunID() string {
	b := make([]byte, 5)
	if _, err := rand.Read(b); err != nil {
		return fmt.Sprintf("%08X", time.Now().UnixNano()&0xFFFFFFFF)
	}
	return strings.ToUpper(base32.StdEncoding.EncodeToString(b))
}

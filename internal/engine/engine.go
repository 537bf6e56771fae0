// Package engine is the main-thread side of the scripted world: the handle
// scripts receive, the cooperative event scheduler, and the manager that keeps
// one script worker per entity group.
package engine

import (
	"io"
	"sync/atomic"

	"github.com/charmbracelet/log"

	"github.com/vovakirdan/scriptworld/internal/world"
)

// Engine owns the world state shared by every worker.
type Engine struct {
	world  *world.TileMap
	events *EventManager
	logger *log.Logger
	tick   atomic.Uint64
}

// New creates an engine over m. A nil events manager gets a fresh one.
func New(m *world.TileMap, events *EventManager, logger *log.Logger) *Engine {
	if events == nil {
		events = NewEventManager(nil)
	}
	if logger == nil {
		logger = log.New(io.Discard)
	}
	return &Engine{world: m, events: events, logger: logger}
}

// Map returns the tile map.
func (e *Engine) Map() *world.TileMap { return e.world }

// Events returns the engine's scheduler.
func (e *Engine) Events() *EventManager { return e.events }

// Tick returns the number of completed frames.
func (e *Engine) Tick() uint64 { return e.tick.Load() }

// Advance completes one frame: the tick counter moves and due events run on
// the calling goroutine. It returns the number of events that ran.
func (e *Engine) Advance() int {
	e.tick.Add(1)
	return e.events.Process()
}

// Handle returns the object handed to scripts as the engine argument.
func (e *Engine) Handle() *Handle {
	return &Handle{e: e}
}

// Handle is the script view of the engine. Its methods are called from
// worker goroutines.
type Handle struct {
	e *Engine
}

// Log writes a message to the engine log.
func (h *Handle) Log(msg string) {
	h.e.logger.Info(msg, "source", "engine")
}

// IsSolid reports whether the tile at (x, y) blocks movement.
func (h *Handle) IsSolid(x, y int) bool {
	return h.e.world.IsSolid(x, y)
}

func (h *Handle) Tick() uint64 { return h.e.Tick() }
func (h *Handle) Width() int   { return h.e.world.Width() }
func (h *Handle) Height() int  { return h.e.world.Height() }

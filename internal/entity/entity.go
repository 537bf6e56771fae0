// Package entity provides the domain entities exposed to scripts.
//
// Scripts see entities through their exported methods (first letter lowered by
// the interpreter, so MoveNorth becomes moveNorth). Every script-visible
// method bumps the entity's call number, which lets the owner of a worker tell
// whether script execution touched the entity since it last looked.
package entity

import (
	"fmt"
	"sync"
	"sync/atomic"
)

// Direction is one of the four compass directions an entity can face.
type Direction string

const (
	North Direction = "north"
	East  Direction = "east"
	South Direction = "south"
	West  Direction = "west"
)

// Delta returns the tile offset for one step in the direction.
// North is +y, matching the map coordinate system.
func (d Direction) Delta() (int, int) {
	switch d {
	case North:
		return 0, 1
	case East:
		return 1, 0
	case South:
		return 0, -1
	case West:
		return -1, 0
	default:
		return 0, 0
	}
}

// Opposite returns the direction facing the other way.
func (d Direction) Opposite() Direction {
	return d.Right().Right()
}

// Right returns the direction a quarter turn clockwise.
func (d Direction) Right() Direction {
	switch d {
	case North:
		return East
	case East:
		return South
	case South:
		return West
	case West:
		return North
	default:
		return d
	}
}

// Left returns the direction a quarter turn counter-clockwise.
func (d Direction) Left() Direction {
	return d.Right().Right().Right()
}

// ParseDirection validates a direction name.
func ParseDirection(s string) (Direction, error) {
	switch d := Direction(s); d {
	case North, East, South, West:
		return d, nil
	}
	return "", fmt.Errorf("entity: unknown direction %q", s)
}

// Blocker answers whether a tile is solid. The map implementation lives
// outside this package.
type Blocker interface {
	IsSolid(x, y int) bool
}

// Status mirrors the per-sprite status shown above objects in game.
type Status string

const (
	StatusNothing Status = "nothing"
	StatusRunning Status = "running"
	StatusStopped Status = "stopped"
	StatusFailed  Status = "failed"
	StatusKilled  Status = "killed"
)

// Entity is a named object on the map driven by script logic.
type Entity struct {
	name  string
	world Blocker

	calls atomic.Uint64

	mu     sync.Mutex
	x, y   int
	facing Direction
	state  string
	busy   bool
	text   string
	status Status
}

// New creates an entity at (x, y) facing north. world may be nil, in which
// case every tile is walkable.
func New(name string, x, y int, world Blocker) *Entity {
	return &Entity{
		name:   name,
		world:  world,
		x:      x,
		y:      y,
		facing: North,
		state:  "main",
		status: StatusNothing,
	}
}

func (e *Entity) touch() {
	e.calls.Add(1)
}

// CallNumber returns the number of script calls made on this entity.
// Reading it is not a call.
func (e *Entity) CallNumber() uint64 {
	return e.calls.Load()
}

// Name returns the entity name.
func (e *Entity) Name() string {
	e.touch()
	return e.name
}

// Position returns the tile position as [x, y].
func (e *Entity) Position() []int {
	e.touch()
	e.mu.Lock()
	defer e.mu.Unlock()
	return []int{e.x, e.y}
}

// Facing returns the direction the entity is facing.
func (e *Entity) Facing() string {
	e.touch()
	e.mu.Lock()
	defer e.mu.Unlock()
	return string(e.facing)
}

// Face turns the entity without moving it.
func (e *Entity) Face(dir string) error {
	e.touch()
	d, err := ParseDirection(dir)
	if err != nil {
		return err
	}
	e.mu.Lock()
	e.facing = d
	e.mu.Unlock()
	return nil
}

// Walkable reports whether the tile one step away in dir is free.
func (e *Entity) Walkable(dir string) bool {
	e.touch()
	d, err := ParseDirection(dir)
	if err != nil {
		return false
	}
	e.mu.Lock()
	tx, ty := e.x, e.y
	e.mu.Unlock()
	dx, dy := d.Delta()
	return e.world == nil || !e.world.IsSolid(tx+dx, ty+dy)
}

// Move faces dir and steps one tile if the entity is not busy and the target
// is walkable. It returns whether the entity moved.
func (e *Entity) Move(dir string) bool {
	e.touch()
	d, err := ParseDirection(dir)
	if err != nil {
		return false
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	e.facing = d
	if e.busy {
		return false
	}
	dx, dy := d.Delta()
	if e.world != nil && e.world.IsSolid(e.x+dx, e.y+dy) {
		return false
	}
	e.x += dx
	e.y += dy
	return true
}

// MoveNorth steps north.
func (e *Entity) MoveNorth() bool { return e.Move(string(North)) }

// MoveEast steps east.
func (e *Entity) MoveEast() bool { return e.Move(string(East)) }

// MoveSouth steps south.
func (e *Entity) MoveSouth() bool { return e.Move(string(South)) }

// MoveWest steps west.
func (e *Entity) MoveWest() bool { return e.Move(string(West)) }

// SetBusy marks the entity as occupied so movement requests are ignored.
func (e *Entity) SetBusy(busy bool) {
	e.touch()
	e.mu.Lock()
	e.busy = busy
	e.mu.Unlock()
}

// IsBusy reports the busy flag.
func (e *Entity) IsBusy() bool {
	e.touch()
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.busy
}

// ChangeState switches the sprite state folder (e.g. "main", "swimming").
func (e *Entity) ChangeState(state string) {
	e.touch()
	e.mu.Lock()
	e.state = state
	e.mu.Unlock()
}

// Sprite returns the sprite location, "<state>/<facing>".
func (e *Entity) Sprite() string {
	e.touch()
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state + "/" + string(e.facing)
}

// Say sets the text displayed above the entity.
func (e *Entity) Say(text string) {
	e.touch()
	e.mu.Lock()
	e.text = text
	e.mu.Unlock()
}

// Snapshot is a copy of an entity's observable state for the main thread.
// Taking it does not bump the call number.
type Snapshot struct {
	Name   string
	X, Y   int
	Facing Direction
	Sprite string
	Busy   bool
	Text   string
	Status Status
}

// Snapshot returns the current state without counting as a script call.
func (e *Entity) Snapshot() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return Snapshot{
		Name:   e.name,
		X:      e.x,
		Y:      e.y,
		Facing: e.facing,
		Sprite: e.state + "/" + string(e.facing),
		Busy:   e.busy,
		Text:   e.text,
		Status: e.status,
	}
}

// SetStatus is used by the engine to reflect the owning worker's outcome.
// It is not a script call.
func (e *Entity) SetStatus(s Status) {
	e.mu.Lock()
	e.status = s
	e.mu.Unlock()
}

package entity

import (
	"fmt"
	"sync/atomic"
)

// Group is the collection of entities driven by one script worker. It is
// reference counted: the engine holds the first reference and every worker
// that runs the group retains another. Entities are fixed at construction.
type Group struct {
	id       string
	entities []*Entity
	refs     atomic.Int32
}

// NewGroup creates a group holding one reference owned by the caller.
// A group must contain at least one entity.
func NewGroup(id string, entities ...*Entity) (*Group, error) {
	if len(entities) == 0 {
		return nil, fmt.Errorf("entity: group %q has no entities", id)
	}
	g := &Group{
		id:       id,
		entities: append([]*Entity(nil), entities...),
	}
	g.refs.Store(1)
	return g, nil
}

// ID returns the group identifier.
func (g *Group) ID() string {
	return g.id
}

// Entities returns the entities in the group. The slice must not be modified.
func (g *Group) Entities() []*Entity {
	return g.entities
}

// Lookup returns the entity with the given name.
func (g *Group) Lookup(name string) (*Entity, bool) {
	for _, e := range g.entities {
		if e.name == name {
			return e, true
		}
	}
	return nil, false
}

// CallNumber returns the call number of the group's lead entity, which is
// what dirty-checking follows.
func (g *Group) CallNumber() uint64 {
	return g.entities[0].CallNumber()
}

// Retain adds a reference and returns the group for chaining.
func (g *Group) Retain() *Group {
	if g.refs.Add(1) <= 1 {
		panic(fmt.Sprintf("entity: retain of released group %q", g.id))
	}
	return g
}

// Release drops a reference.
func (g *Group) Release() {
	if g.refs.Add(-1) < 0 {
		panic(fmt.Sprintf("entity: group %q released too many times", g.id))
	}
}

// Refs returns the number of live references.
func (g *Group) Refs() int {
	return int(g.refs.Load())
}

// SetStatus applies s to every entity in the group.
func (g *Group) SetStatus(s Status) {
	for _, e := range g.entities {
		e.SetStatus(s)
	}
}

package world

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/vovakirdan/scriptworld/internal/entity"
)

// Level is a map plus the entity groups placed on it, as stored in a level
// YAML file.
type Level struct {
	Name   string      `yaml:"name"`
	Map    []string    `yaml:"map"`
	Groups []GroupSpec `yaml:"groups"`
}

// GroupSpec places one script-driven entity group.
type GroupSpec struct {
	ID string `yaml:"id"`
	// Bootstrap overrides the configured bootstrapper for this group.
	Bootstrap string       `yaml:"bootstrap,omitempty"`
	Entities  []EntitySpec `yaml:"entities"`
}

// EntitySpec places one entity.
type EntitySpec struct {
	Name   string `yaml:"name"`
	X      int    `yaml:"x"`
	Y      int    `yaml:"y"`
	Facing string `yaml:"facing,omitempty"`
}

// LoadLevel reads and validates a level file.
func LoadLevel(path string) (*Level, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("world: read level: %w", err)
	}
	lvl, err := ParseLevel(data)
	if err != nil {
		return nil, fmt.Errorf("world: %s: %w", path, err)
	}
	return lvl, nil
}

// ParseLevel decodes and validates level YAML.
func ParseLevel(data []byte) (*Level, error) {
	var lvl Level
	if err := yaml.Unmarshal(data, &lvl); err != nil {
		return nil, fmt.Errorf("world: parse level: %w", err)
	}
	if _, _, err := lvl.Build(); err != nil {
		return nil, err
	}
	return &lvl, nil
}

// Build creates the tile map and one entity group per GroupSpec. Entities are
// bound to the map for collision. Each returned group holds one reference
// owned by the caller.
func (l *Level) Build() (*TileMap, []*entity.Group, error) {
	m, err := ParseTileMap(l.Map)
	if err != nil {
		return nil, nil, err
	}

	groupIDs := make(map[string]bool)
	names := make(map[string]bool)
	groups := make([]*entity.Group, 0, len(l.Groups))

	for _, gs := range l.Groups {
		if gs.ID == "" {
			return nil, nil, fmt.Errorf("world: group without id")
		}
		if groupIDs[gs.ID] {
			return nil, nil, fmt.Errorf("world: duplicate group %q", gs.ID)
		}
		groupIDs[gs.ID] = true

		ents := make([]*entity.Entity, 0, len(gs.Entities))
		for _, es := range gs.Entities {
			if es.Name == "" {
				return nil, nil, fmt.Errorf("world: group %q: entity without name", gs.ID)
			}
			if names[es.Name] {
				return nil, nil, fmt.Errorf("world: duplicate entity %q", es.Name)
			}
			names[es.Name] = true
			if m.IsSolid(es.X, es.Y) {
				return nil, nil, fmt.Errorf("world: entity %q placed on solid tile (%d, %d)", es.Name, es.X, es.Y)
			}

			e := entity.New(es.Name, es.X, es.Y, m)
			if es.Facing != "" {
				if _, err := entity.ParseDirection(es.Facing); err != nil {
					return nil, nil, fmt.Errorf("world: entity %q: %w", es.Name, err)
				}
				_ = e.Face(es.Facing)
			}
			ents = append(ents, e)
		}

		g, err := entity.NewGroup(gs.ID, ents...)
		if err != nil {
			return nil, nil, fmt.Errorf("world: %w", err)
		}
		groups = append(groups, g)
	}
	return m, groups, nil
}

// BootstrapFor returns the per-group bootstrap override, or "".
func (l *Level) BootstrapFor(groupID string) string {
	for _, gs := range l.Groups {
		if gs.ID == groupID {
			return gs.Bootstrap
		}
	}
	return ""
}

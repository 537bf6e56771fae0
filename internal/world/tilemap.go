package world

import (
	"fmt"
	"unicode/utf8"
)

// Tile glyphs understood by the map parser. Any other rune is walkable
// decoration.
const (
	TileFloor = '.'
	TileWall  = '#'
	TileWater = '~'
)

// TileMap is a fixed grid of tiles. Coordinates grow east (x) and north (y);
// the first text line of a map is its northern edge.
type TileMap struct {
	width  int
	height int
	rows   [][]rune
}

// ParseTileMap builds a map from text lines, north first. Every line must
// have the same length.
func ParseTileMap(lines []string) (*TileMap, error) {
	if len(lines) == 0 {
		return nil, fmt.Errorf("world: map is empty")
	}
	width := utf8.RuneCountInString(lines[0])
	if width == 0 {
		return nil, fmt.Errorf("world: map has zero width")
	}

	m := &TileMap{width: width, height: len(lines), rows: make([][]rune, len(lines))}
	for i, line := range lines {
		row := []rune(line)
		if len(row) != width {
			return nil, fmt.Errorf("world: map line %d has width %d, want %d", i+1, len(row), width)
		}
		m.rows[i] = row
	}
	return m, nil
}

func (m *TileMap) Width() int  { return m.width }
func (m *TileMap) Height() int { return m.height }

// Bounds returns the rectangle covering the whole map.
func (m *TileMap) Bounds() Rect {
	return NewRect(0, 0, m.width, m.height)
}

// Tile returns the glyph at (x, y), or a wall outside the map.
func (m *TileMap) Tile(x, y int) rune {
	if !m.Bounds().Contains(x, y) {
		return TileWall
	}
	return m.rows[m.height-1-y][x]
}

// IsSolid reports whether (x, y) blocks movement. Everything outside the map
// is solid.
func (m *TileMap) IsSolid(x, y int) bool {
	switch m.Tile(x, y) {
	case TileWall, TileWater:
		return true
	default:
		return false
	}
}

// Mark is a glyph drawn over the map, usually an entity.
type Mark struct {
	X, Y  int
	Glyph rune
}

// Render draws the map inside a box with marks on top. Marks outside the map
// are dropped.
func (m *TileMap) Render(marks []Mark) *Screen {
	s := NewScreen(m.width+2, m.height+2)
	s.DrawBox(NewRect(0, 0, m.width+2, m.height+2))

	for row := 0; row < m.height; row++ {
		for x := 0; x < m.width; x++ {
			s.Set(x+1, row+1, m.rows[row][x])
		}
	}
	for _, mk := range marks {
		if !m.Bounds().Contains(mk.X, mk.Y) {
			continue
		}
		s.Set(mk.X+1, m.height-mk.Y, mk.Glyph)
	}
	return s
}

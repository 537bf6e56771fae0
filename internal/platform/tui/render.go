package tui

import (
	"strings"
	"unicode"

	"github.com/charmbracelet/lipgloss"

	"github.com/vovakirdan/scriptworld/internal/engine"
	"github.com/vovakirdan/scriptworld/internal/entity"
	"github.com/vovakirdan/scriptworld/internal/world"
)

// statusStyles maps entity.Status to lipgloss styles.
var statusStyles = map[entity.Status]lipgloss.Style{
	entity.StatusNothing: lipgloss.NewStyle().Foreground(lipgloss.Color("245")),
	entity.StatusRunning: lipgloss.NewStyle().Foreground(lipgloss.Color("10")),
	entity.StatusStopped: lipgloss.NewStyle().Foreground(lipgloss.Color("11")),
	entity.StatusFailed:  lipgloss.NewStyle().Foreground(lipgloss.Color("9")),
	entity.StatusKilled:  lipgloss.NewStyle().Foreground(lipgloss.Color("13")),
}

var tileStyles = map[rune]lipgloss.Style{
	world.TileWall:  lipgloss.NewStyle().Foreground(lipgloss.Color("240")),
	world.TileWater: lipgloss.NewStyle().Foreground(lipgloss.Color("12")),
	world.TileFloor: lipgloss.NewStyle().Foreground(lipgloss.Color("238")),
}

func statusStyle(s entity.Status) lipgloss.Style {
	if style, ok := statusStyles[s]; ok {
		return style
	}
	return lipgloss.NewStyle()
}

// entityGlyph is the first letter of the entity name, or '@' for names that
// do not start with a letter.
func entityGlyph(name string) rune {
	for _, r := range name {
		if unicode.IsLetter(r) {
			return r
		}
		break
	}
	return '@'
}

// marksFor converts group snapshots into map marks.
func marksFor(groups []engine.GroupStatus) []world.Mark {
	var marks []world.Mark
	for _, g := range groups {
		for _, e := range g.Entities {
			marks = append(marks, world.Mark{X: e.X, Y: e.Y, Glyph: entityGlyph(e.Name)})
		}
	}
	return marks
}

// RenderMap draws the tile map with every entity on top, colored by the
// status of its group.
func RenderMap(m *world.TileMap, groups []engine.GroupStatus) string {
	if m == nil {
		return ""
	}
	screen := m.Render(marksFor(groups))

	// Screen coordinates of each entity, so their glyphs get the status color.
	owners := make(map[[2]int]entity.Status)
	for _, g := range groups {
		for _, e := range g.Entities {
			owners[[2]int{e.X + 1, m.Height() - e.Y}] = e.Status
		}
	}

	var sb strings.Builder
	sb.Grow(screen.Width()*screen.Height()*2 + screen.Height())
	for y := range screen.Height() {
		if y > 0 {
			sb.WriteRune('\n')
		}
		for x := range screen.Width() {
			r := screen.Get(x, y)
			if st, ok := owners[[2]int{x, y}]; ok {
				sb.WriteString(statusStyle(st).Bold(true).Render(string(r)))
				continue
			}
			if style, ok := tileStyles[r]; ok {
				sb.WriteString(style.Render(string(r)))
				continue
			}
			sb.WriteRune(r)
		}
	}
	return sb.String()
}

// centerText centers text within given width.
func centerText(text string, width int) string {
	w := lipgloss.Width(text)
	if w >= width {
		return text
	}
	padding := (width - w) / 2
	return strings.Repeat(" ", padding) + text
}

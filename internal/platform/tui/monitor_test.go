package tui

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/vovakirdan/scriptworld/internal/engine"
	"github.com/vovakirdan/scriptworld/internal/entity"
	"github.com/vovakirdan/scriptworld/internal/interp"
	"github.com/vovakirdan/scriptworld/internal/world"
)

const idleScript = `
exports.start = function(entities, engine, RESTART, STOP, KILL, waiting) {
	sleep(0.005);
};
`

func setupMonitor(t *testing.T) (*engine.Manager, *engine.Engine, *world.TileMap) {
	t.Helper()
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "bootstrapper.js"), []byte(idleScript), 0o644); err != nil {
		t.Fatal(err)
	}

	m, err := world.ParseTileMap([]string{
		"#######",
		"#.....#",
		"#..~..#",
		"#######",
	})
	if err != nil {
		t.Fatalf("ParseTileMap() failed: %v", err)
	}

	ctx := interp.New(interp.Options{GameFolder: dir})
	eng := engine.New(m, nil, nil)
	mgr := engine.NewManager(ctx, eng, engine.ManagerConfig{
		Bootstrap:    "bootstrapper.js",
		PollInterval: 10 * time.Millisecond,
	}, nil)
	mgr.Start()
	t.Cleanup(mgr.Close)

	g, err := entity.NewGroup("crocs", entity.New("snappy", 2, 1, m))
	if err != nil {
		t.Fatal(err)
	}
	if err := mgr.Add(g, ""); err != nil {
		t.Fatalf("Add() failed: %v", err)
	}
	return mgr, eng, m
}

func keyMsg(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func update(t *testing.T, m MonitorModel, msg tea.Msg) (MonitorModel, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(msg)
	mm, ok := next.(MonitorModel)
	if !ok {
		t.Fatalf("Update() returned %T", next)
	}
	return mm, cmd
}

func TestMonitorViewListsGroups(t *testing.T) {
	mgr, _, m := setupMonitor(t)
	model := NewMonitorModel(mgr, m, nil, MonitorOptions{}, 120, 40)

	view := model.View()
	for _, want := range []string{"SCRIPTWORLD - 1 groups", "crocs", "snappy", "running"} {
		if !strings.Contains(view, want) {
			t.Errorf("View() missing %q:\n%s", want, view)
		}
	}

	g, ok := model.Selected()
	if !ok || g.ID != "crocs" {
		t.Errorf("Selected() = %+v, %v", g, ok)
	}
}

func TestMonitorEmpty(t *testing.T) {
	model := NewMonitorModel(nil, nil, nil, MonitorOptions{}, 80, 24)
	if !strings.Contains(model.View(), "No entity groups loaded") {
		t.Error("empty monitor should say no groups are loaded")
	}
	if _, ok := model.Selected(); ok {
		t.Error("Selected() should fail without groups")
	}
	if _, cmd := update(t, model, keyMsg("s")); cmd != nil {
		t.Error("control keys without a selection should do nothing")
	}
}

func TestMonitorStopKey(t *testing.T) {
	mgr, _, m := setupMonitor(t)
	model := NewMonitorModel(mgr, m, nil, MonitorOptions{}, 120, 40)

	model, cmd := update(t, model, keyMsg("s"))
	if cmd == nil {
		t.Fatal("stop key should return a command")
	}
	model, _ = update(t, model, cmd())

	if !strings.Contains(model.notice, "sent STOP to crocs") {
		t.Errorf("notice = %q", model.notice)
	}
	g, _ := model.Selected()
	if g.Status != entity.StatusStopped {
		t.Errorf("status after stop = %s", g.Status)
	}
}

func TestMonitorKillKey(t *testing.T) {
	mgr, _, m := setupMonitor(t)
	model := NewMonitorModel(mgr, m, nil, MonitorOptions{}, 120, 40)

	model, cmd := update(t, model, keyMsg("x"))
	if cmd == nil {
		t.Fatal("kill key should return a command")
	}
	model, _ = update(t, model, cmd())

	g, _ := model.Selected()
	if g.Status != entity.StatusKilled {
		t.Errorf("status after kill = %s", g.Status)
	}
}

func TestMonitorTickDrivesManager(t *testing.T) {
	tests := []struct {
		name  string
		drive bool
		want  uint64
	}{
		{"driving", true, 2},
		{"observing", false, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mgr, eng, m := setupMonitor(t)
			model := NewMonitorModel(mgr, m, nil, MonitorOptions{Drive: tt.drive}, 120, 40)

			var cmd tea.Cmd
			model, cmd = update(t, model, TickMsg(time.Now()))
			if cmd == nil {
				t.Fatal("tick should schedule the next tick")
			}
			model, _ = update(t, model, TickMsg(time.Now()))

			if got := eng.Tick(); got != tt.want {
				t.Errorf("engine tick = %d, expected %d", got, tt.want)
			}
			if model.ticks != 2 {
				t.Errorf("model ticks = %d", model.ticks)
			}
		})
	}
}

func TestMonitorToggleRunsWithoutStore(t *testing.T) {
	mgr, _, m := setupMonitor(t)
	model := NewMonitorModel(mgr, m, nil, MonitorOptions{}, 120, 40)

	model, _ = update(t, model, tea.KeyMsg{Type: tea.KeyTab})
	if !model.showRuns {
		t.Fatal("tab should show the run history")
	}
	if !strings.Contains(model.View(), "Run history disabled") {
		t.Error("history panel should explain that there is no database")
	}

	model, _ = update(t, model, tea.KeyMsg{Type: tea.KeyTab})
	if model.showRuns {
		t.Error("second tab should hide the run history")
	}
}

func TestMonitorQuit(t *testing.T) {
	model := NewMonitorModel(nil, nil, nil, MonitorOptions{}, 80, 24)
	model, cmd := update(t, model, keyMsg("q"))
	if cmd == nil || !model.IsQuitting() {
		t.Fatal("q should quit")
	}
	if model.View() != "" {
		t.Error("View() should be empty after quitting")
	}
}

func TestMonitorWindowResize(t *testing.T) {
	mgr, _, m := setupMonitor(t)
	model := NewMonitorModel(mgr, m, nil, MonitorOptions{}, 60, 20)
	if model.showMap {
		t.Error("narrow monitor should hide the map")
	}

	model, _ = update(t, model, tea.WindowSizeMsg{Width: 140, Height: 50})
	if !model.showMap {
		t.Error("wide monitor should show the map")
	}
	if !strings.Contains(model.View(), "~") {
		t.Error("map panel should draw water tiles")
	}
}

func TestRenderMap(t *testing.T) {
	m, err := world.ParseTileMap([]string{
		"#####",
		"#...#",
		"#####",
	})
	if err != nil {
		t.Fatal(err)
	}

	groups := []engine.GroupStatus{{
		ID:     "g",
		Status: entity.StatusRunning,
		Entities: []entity.Snapshot{
			{Name: "Bob", X: 1, Y: 1, Status: entity.StatusRunning},
			{Name: "9lives", X: 3, Y: 1, Status: entity.StatusRunning},
		},
	}}

	out := RenderMap(m, groups)
	lines := strings.Split(out, "\n")
	if len(lines) != 5 {
		t.Fatalf("RenderMap() has %d lines, expected 5", len(lines))
	}
	if !strings.Contains(lines[2], "#B.@#") {
		t.Errorf("middle row = %q", lines[2])
	}

	if RenderMap(nil, groups) != "" {
		t.Error("RenderMap(nil) should be empty")
	}
}

func TestEntityGlyph(t *testing.T) {
	tests := []struct {
		name string
		want rune
	}{
		{"alice", 'a'},
		{"Zed", 'Z'},
		{"_x", '@'},
		{"", '@'},
	}
	for _, tt := range tests {
		if got := entityGlyph(tt.name); got != tt.want {
			t.Errorf("entityGlyph(%q) = %q, expected %q", tt.name, got, tt.want)
		}
	}
}

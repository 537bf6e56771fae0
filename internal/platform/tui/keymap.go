package tui

import (
	"github.com/charmbracelet/bubbles/key"
)

// MonitorKeyMap defines the key bindings for the worker monitor.
type MonitorKeyMap struct {
	Up         key.Binding
	Down       key.Binding
	Restart    key.Binding
	Stop       key.Binding
	Kill       key.Binding
	ToggleRuns key.Binding
	Help       key.Binding
	Quit       key.Binding
}

// ShortHelp returns key bindings for the short help view.
func (k MonitorKeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Restart, k.Stop, k.Kill, k.ToggleRuns, k.Help, k.Quit}
}

// FullHelp returns key bindings for the full help view.
func (k MonitorKeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Up, k.Down},
		{k.Restart, k.Stop, k.Kill},
		{k.ToggleRuns, k.Help, k.Quit},
	}
}

// DefaultMonitorKeyMap returns default key bindings.
func DefaultMonitorKeyMap() MonitorKeyMap {
	return MonitorKeyMap{
		Up: key.NewBinding(
			key.WithKeys("up", "k"),
			key.WithHelp("up/k", "prev group"),
		),
		Down: key.NewBinding(
			key.WithKeys("down", "j"),
			key.WithHelp("down/j", "next group"),
		),
		Restart: key.NewBinding(
			key.WithKeys("r"),
			key.WithHelp("r", "restart"),
		),
		Stop: key.NewBinding(
			key.WithKeys("s"),
			key.WithHelp("s", "stop"),
		),
		Kill: key.NewBinding(
			key.WithKeys("x"),
			key.WithHelp("x", "kill"),
		),
		ToggleRuns: key.NewBinding(
			key.WithKeys("tab"),
			key.WithHelp("tab", "run history"),
		),
		Help: key.NewBinding(
			key.WithKeys("?"),
			key.WithHelp("?", "more keys"),
		),
		Quit: key.NewBinding(
			key.WithKeys("q", "ctrl+c"),
			key.WithHelp("q", "quit"),
		),
	}
}

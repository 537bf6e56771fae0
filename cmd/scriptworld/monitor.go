package main

import (
	"io"
	"os"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/vovakirdan/scriptworld/internal/platform/tui"
)

var flagLogFile string

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Run the level with the interactive monitor",
	Long: `Load the configured level and show every group's worker in a table
next to the map. The monitor drives the main loop itself.

Controls:
  Up/Down/j/k  - Select group
  R            - Send RESTART
  S            - Send STOP
  X            - Send KILL
  Tab          - Toggle run history
  Q/Ctrl+C     - Quit (kills all workers)

Logs would corrupt the screen, so they are discarded unless --log-file is set.

Examples:
  scriptworld monitor
  scriptworld monitor --log-file scriptworld.log`,
	RunE: runMonitor,
}

func init() {
	monitorCmd.Flags().StringVar(&flagLogFile, "log-file", "", "Write logs to this file")
}

func runMonitor(_ *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	var out io.Writer = io.Discard
	if flagLogFile != "" {
		f, openErr := os.OpenFile(flagLogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if openErr != nil {
			return openErr
		}
		defer f.Close()
		out = f
	}
	logger := newLogger(cfg, "scriptworld")
	logger.SetOutput(out)
	logger.SetFormatter(log.TextFormatter)

	a, err := newApp(cfg, logger)
	if err != nil {
		return err
	}
	defer a.close()

	width, height := 80, 24 // Defaults
	if w, h, termErr := term.GetSize(int(os.Stdout.Fd())); termErr == nil {
		width = w
		height = h
	}

	return tui.RunMonitor(a.manager, a.world, a.store, cfg.Runner.TickRate, width, height)
}

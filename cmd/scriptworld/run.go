package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/vovakirdan/scriptworld/internal/engine"
)

var flagDuration time.Duration

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the level headless",
	Long: `Load the configured level and run its script workers without a UI.

The main loop steps the engine at the configured tick rate until --duration
elapses or Ctrl+C is pressed. All workers are then killed and a summary is
printed. A zero duration runs until interrupted.

Examples:
  scriptworld run
  scriptworld run --duration 1m
  scriptworld run --config ./configs/scriptworld.yaml --log-level debug`,
	RunE: runRun,
}

func init() {
	runCmd.Flags().DurationVar(&flagDuration, "duration", 10*time.Second, "How long to run (0 = until interrupted)")
}

func runRun(_ *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := newLogger(cfg, "scriptworld")

	a, err := newApp(cfg, logger)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if flagDuration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, flagDuration)
		defer cancel()
	}

	steps := stepLoop(ctx, a.manager, cfg.TickInterval())
	a.close()

	printSummary(a.manager.Snapshot(), steps, a.engine.Tick())
	return nil
}

// stepLoop drives the manager until ctx is done and returns the number of
// frames that changed at least one group.
func stepLoop(ctx context.Context, mgr *engine.Manager, interval time.Duration) int {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	busy := 0
	for {
		select {
		case <-ctx.Done():
			return busy
		case <-ticker.C:
			if len(mgr.Step()) > 0 {
				busy++
			}
		}
	}
}

func printSummary(groups []engine.GroupStatus, busy int, ticks uint64) {
	fmt.Printf("Ran %d frames (%d with changes)\n", ticks, busy)
	fmt.Println()

	if len(groups) == 0 {
		fmt.Println("No groups in level.")
		return
	}

	fmt.Printf("  %-12s  %-8s  %-10s  %8s  %5s  %s\n", "Group", "Status", "Run", "Iter", "Tries", "Error")
	fmt.Printf("  %-12s  %-8s  %-10s  %8s  %5s  %s\n", "-----", "------", "---", "----", "-----", "-----")
	for _, g := range groups {
		fmt.Printf("  %-12s  %-8s  %-10s  %8d  %5d  %s\n",
			g.ID, g.Status, g.RunID, g.Iterations, g.Attempts, g.Error)
	}
}

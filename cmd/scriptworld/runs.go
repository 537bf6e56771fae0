package main

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/vovakirdan/scriptworld/internal/storage"
)

var (
	flagRunsLimit int
	flagRunsStats bool
	flagRunsClear bool
	flagRunsID    string
)

var runsCmd = &cobra.Command{
	Use:   "runs [group]",
	Short: "Show worker run history",
	Long: `Display the most recent worker runs, optionally for one group.

Every worker lifetime is recorded when it ends: killed from the monitor,
failed with an error, or stopped at shutdown.

Examples:
  scriptworld runs
  scriptworld runs crocs --limit 50
  scriptworld runs --stats
  scriptworld runs --id 3f2a9c1e
  scriptworld runs crocs --clear`,
	Args: cobra.MaximumNArgs(1),
	RunE: runRuns,
}

func init() {
	runsCmd.Flags().IntVar(&flagRunsLimit, "limit", 20, "Number of runs to show")
	runsCmd.Flags().BoolVar(&flagRunsStats, "stats", false, "Show per-group totals instead of runs")
	runsCmd.Flags().BoolVar(&flagRunsClear, "clear", false, "Delete the history (of one group if given)")
	runsCmd.Flags().StringVar(&flagRunsID, "id", "", "Show the full record of one run")
}

func runRuns(_ *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	store, err := storage.Open(cfg.Storage.DBPath)
	if err != nil {
		return fmt.Errorf("opening run history: %w", err)
	}
	defer store.Close()

	group := ""
	if len(args) == 1 {
		group = args[0]
	}

	switch {
	case flagRunsClear:
		if err := store.ClearRuns(group); err != nil {
			return err
		}
		if group == "" {
			fmt.Println("Cleared all run history.")
		} else {
			fmt.Printf("Cleared run history of %s.\n", group)
		}
		return nil
	case flagRunsStats:
		return printStats(store)
	case flagRunsID != "":
		return printRun(store, flagRunsID)
	}

	var runs []storage.Run
	if group == "" {
		runs, err = store.RecentRuns(flagRunsLimit)
	} else {
		runs, err = store.GroupRuns(group, flagRunsLimit)
	}
	if err != nil {
		return err
	}

	if len(runs) == 0 {
		fmt.Println("No runs recorded yet.")
		fmt.Println()
		fmt.Println("Run 'scriptworld run' to start the workers.")
		return nil
	}

	fmt.Printf("  %-8s  %-12s  %-7s  %-8s  %8s  %9s  %s\n", "Run", "Group", "Attempt", "Status", "Iter", "Duration", "Started")
	fmt.Printf("  %-8s  %-12s  %-7s  %-8s  %8s  %9s  %s\n", "---", "-----", "-------", "------", "----", "--------", "-------")
	for _, r := range runs {
		fmt.Printf("  %-8s  %-12s  %-7d  %-8s  %8d  %9s  %s\n",
			r.RunID, r.GroupID, r.Attempt, r.Status, r.Iterations,
			r.Duration().Truncate(time.Millisecond), r.StartedAt.Format("2006-01-02 15:04:05"))
		if r.Error != "" {
			fmt.Printf("      error: %s\n", r.Error)
		}
	}
	return nil
}

func printRun(store *storage.Store, runID string) error {
	r, err := store.RunByID(runID)
	if errors.Is(err, storage.ErrRunNotFound) {
		return fmt.Errorf("no run with id %q", runID)
	}
	if err != nil {
		return err
	}

	fmt.Printf("  Run:        %s\n", r.RunID)
	fmt.Printf("  Group:      %s\n", r.GroupID)
	fmt.Printf("  Attempt:    %d\n", r.Attempt)
	fmt.Printf("  Status:     %s\n", r.Status)
	fmt.Printf("  Iterations: %d\n", r.Iterations)
	fmt.Printf("  Started:    %s\n", r.StartedAt.Format("2006-01-02 15:04:05"))
	fmt.Printf("  Duration:   %s\n", r.Duration().Truncate(time.Millisecond))
	if r.Error != "" {
		fmt.Printf("  Error:      %s\n", r.Error)
	}
	return nil
}

func printStats(store *storage.Store) error {
	stats, err := store.AllGroupStats()
	if err != nil {
		return err
	}
	if len(stats) == 0 {
		fmt.Println("No runs recorded yet.")
		return nil
	}

	ids := make([]string, 0, len(stats))
	for id := range stats {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	fmt.Printf("  %-12s  %5s  %8s  %5s  %10s  %s\n", "Group", "Runs", "Failures", "Kills", "Iterations", "Last run")
	fmt.Printf("  %-12s  %5s  %8s  %5s  %10s  %s\n", "-----", "----", "--------", "-----", "----------", "--------")
	for _, id := range ids {
		s := stats[id]
		fmt.Printf("  %-12s  %5d  %8d  %5d  %10d  %s\n",
			s.GroupID, s.Runs, s.Failures, s.Kills, s.TotalIterations, s.LastStarted.Format("2006-01-02 15:04:05"))
	}
	return nil
}

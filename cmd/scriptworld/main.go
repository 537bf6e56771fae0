// scriptworld runs a tile world whose entities are driven by user scripts,
// one script worker per entity group.
//
// Usage:
//
//	scriptworld run             - Run the level headless for a while
//	scriptworld monitor         - Run the level with the interactive monitor
//	scriptworld serve           - Run the level and serve the monitor over SSH
//	scriptworld runs [group]    - Show worker run history
//	scriptworld check [script]  - Import a script once and report its exports
//	scriptworld modules         - List native modules scripts can require
//
// Global flags:
//
//	--config <path>     - Config file (default: search ~/.scriptworld, ./configs)
//	--db <path>         - Override the run history database path
//	--log-level <lvl>   - Override the log level
package main

import (
	"fmt"
	"os"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/vovakirdan/scriptworld/internal/config"
)

var (
	// Global flags
	flagConfig   string
	flagDBPath   string
	flagLogLevel string
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "scriptworld",
	Short: "Scriptworld - a tile world driven by entity scripts",
	Long: `Scriptworld loads a level and runs one script worker per entity group.
Each worker calls the bootstrapper's start() in a loop; workers can be
restarted, stopped or killed from the monitor.

Available commands:
  run      - Run the level headless
  monitor  - Run the level with the interactive monitor
  serve    - Serve the monitor over SSH
  runs     - Show worker run history
  check    - Import a script and report its exports
  modules  - List native modules

Examples:
  scriptworld run --duration 30s
  scriptworld monitor
  scriptworld serve --ssh :2323
  scriptworld runs crocs
  scriptworld check game/villager.js`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "Path to config YAML")
	rootCmd.PersistentFlags().StringVar(&flagDBPath, "db", "", "Path to run history database (overrides config)")
	rootCmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "", "Log level: debug, info, warn, error (overrides config)")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(monitorCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(runsCmd)
	rootCmd.AddCommand(checkCmd)
	rootCmd.AddCommand(modulesCmd)
}

// loadConfig loads the configuration and applies the global flag overrides.
func loadConfig() (config.Config, error) {
	cfg, err := config.Load(flagConfig)
	if err != nil {
		return cfg, err
	}
	if flagDBPath != "" {
		cfg.Storage.DBPath = flagDBPath
	}
	if flagLogLevel != "" {
		cfg.Log.Level = flagLogLevel
	}
	return cfg, cfg.Validate()
}

// newLogger builds the process logger at the configured level.
func newLogger(cfg config.Config, prefix string) *log.Logger {
	logger := log.NewWithOptions(os.Stderr, log.Options{
		ReportTimestamp: true,
		Prefix:          prefix,
	})
	if level, err := log.ParseLevel(cfg.Log.Level); err == nil {
		logger.SetLevel(level)
	}
	return logger
}

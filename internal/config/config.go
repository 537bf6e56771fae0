// Package config provides YAML-based configuration loading for scriptworld.
package config

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/charmbracelet/log"
)

// Config is the complete application configuration.
type Config struct {
	Files   FilesConfig   `yaml:"files"`
	Runner  RunnerConfig  `yaml:"runner"`
	Log     LogConfig     `yaml:"log"`
	Storage StorageConfig `yaml:"storage"`
	SSH     SSHConfig     `yaml:"ssh"`

	// Source records where the configuration was loaded from.
	Source string `yaml:"-"`
}

// FilesConfig locates the scripts and the level.
type FilesConfig struct {
	GameFolder   string `yaml:"game_folder"`
	Bootstrapper string `yaml:"bootstrapper"` // Relative to game_folder
	Level        string `yaml:"level"`        // Relative to game_folder
}

// RunnerConfig controls the script workers and the main loop.
type RunnerConfig struct {
	PollInterval time.Duration `yaml:"poll_interval"` // KILL resend period while finishing
	TickRate     int           `yaml:"tick_rate"`     // Main loop frames per second
	Respawn      bool          `yaml:"respawn"`       // Replace workers that fail
	MaxRespawns  int           `yaml:"max_respawns"`
}

// LogConfig controls logging.
type LogConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error
}

// StorageConfig locates the run history database.
type StorageConfig struct {
	DBPath string `yaml:"db_path"`
}

// SSHConfig controls the SSH monitor server.
type SSHConfig struct {
	Address     string        `yaml:"address"`
	HostKey     string        `yaml:"host_key"`
	IdleTimeout time.Duration `yaml:"idle_timeout"`
	MaxSessions int           `yaml:"max_sessions"`
}

// BootstrapPath returns the bootstrapper path joined with the game folder.
func (c Config) BootstrapPath() string {
	return filepath.Join(c.Files.GameFolder, c.Files.Bootstrapper)
}

// LevelPath returns the level path joined with the game folder.
func (c Config) LevelPath() string {
	if filepath.IsAbs(c.Files.Level) {
		return c.Files.Level
	}
	return filepath.Join(c.Files.GameFolder, c.Files.Level)
}

// TickInterval returns the main loop frame duration.
func (c Config) TickInterval() time.Duration {
	if c.Runner.TickRate <= 0 {
		return time.Second / 30
	}
	return time.Second / time.Duration(c.Runner.TickRate)
}

// Validate checks values that would otherwise fail later and far away.
func (c Config) Validate() error {
	if c.Files.GameFolder == "" {
		return fmt.Errorf("config: files.game_folder is empty")
	}
	if c.Files.Bootstrapper == "" {
		return fmt.Errorf("config: files.bootstrapper is empty")
	}
	if c.Runner.PollInterval <= 0 {
		return fmt.Errorf("config: runner.poll_interval must be positive, got %v", c.Runner.PollInterval)
	}
	if c.Runner.MaxRespawns < 0 {
		return fmt.Errorf("config: runner.max_respawns must not be negative")
	}
	if _, err := log.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("config: log.level: %w", err)
	}
	return nil
}

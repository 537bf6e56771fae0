package config

import (
	_ "embed"
	"time"
)

//go:embed defaults/scriptworld.yaml
var defaultYAML []byte

// DefaultConfig returns the built-in configuration.
func DefaultConfig() Config {
	return Config{
		Files: FilesConfig{
			GameFolder:   "game",
			Bootstrapper: "bootstrapper.js",
			Level:        "levels/pond.yaml",
		},
		Runner: RunnerConfig{
			PollInterval: 25 * time.Millisecond,
			TickRate:     30,
			Respawn:      true,
			MaxRespawns:  3,
		},
		Log: LogConfig{
			Level: "info",
		},
		Storage: StorageConfig{
			DBPath: "~/.scriptworld/runs.db",
		},
		SSH: SSHConfig{
			Address:     ":2323",
			HostKey:     ".ssh/scriptworld_ed25519",
			IdleTimeout: 10 * time.Minute,
			MaxSessions: 8,
		},
		Source: "built-in",
	}
}

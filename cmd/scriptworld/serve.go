package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/vovakirdan/scriptworld/internal/platform/tui"
)

var (
	flagSSHAddr string
	flagHostKey string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the level and serve the monitor over SSH",
	Long: `Load the configured level, drive it headless and let SSH clients
watch and control the workers with the same monitor as 'scriptworld monitor'.

Every session shares one world. Sessions beyond ssh.max_sessions are
turned away.

Host key handling:
  - If --host-key or ssh.host_key is set, uses that key file
  - Otherwise, auto-generates a key at ~/.scriptworld/host_key

Examples:
  scriptworld serve
  scriptworld serve --ssh :2222
  scriptworld serve --host-key ./my_host_key

Users can connect with:
  ssh localhost -p 2323`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&flagSSHAddr, "ssh", "", "SSH server address (overrides config)")
	serveCmd.Flags().StringVar(&flagHostKey, "host-key", "", "Path to host key file (overrides config)")
}

func runServe(_ *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if flagSSHAddr != "" {
		cfg.SSH.Address = flagSSHAddr
	}
	if flagHostKey != "" {
		cfg.SSH.HostKey = flagHostKey
	}
	logger := newLogger(cfg, "scriptworld")

	a, err := newApp(cfg, logger)
	if err != nil {
		return err
	}
	defer a.close()

	server, err := tui.NewSSHServer(tui.SSHServerConfig{
		Address:     cfg.SSH.Address,
		HostKeyPath: cfg.SSH.HostKey,
		IdleTimeout: cfg.SSH.IdleTimeout,
		MaxSessions: cfg.SSH.MaxSessions,
		TickRate:    10,
	}, a.manager, a.world, a.store, logger.WithPrefix("scriptworld-ssh"))
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	loopDone := make(chan struct{})
	go func() {
		defer close(loopDone)
		stepLoop(ctx, a.manager, cfg.TickInterval())
	}()

	fmt.Printf("Starting scriptworld SSH server on %s\n", server.Addr())
	fmt.Println("Press Ctrl+C to stop")

	err = server.ListenAndServe(ctx)
	cancel()
	<-loopDone
	return err
}

package main

import (
	"fmt"

	"github.com/charmbracelet/log"

	"github.com/vovakirdan/scriptworld/internal/config"
	"github.com/vovakirdan/scriptworld/internal/engine"
	"github.com/vovakirdan/scriptworld/internal/interp"
	"github.com/vovakirdan/scriptworld/internal/storage"
	"github.com/vovakirdan/scriptworld/internal/world"
)

// app is a loaded level with its manager and run history.
type app struct {
	cfg     config.Config
	logger  *log.Logger
	level   *world.Level
	world   *world.TileMap
	engine  *engine.Engine
	manager *engine.Manager
	store   *storage.Store // nil when the database could not be opened
}

// newApp loads the level and starts a worker for every group in it.
func newApp(cfg config.Config, logger *log.Logger) (*app, error) {
	level, err := world.LoadLevel(cfg.LevelPath())
	if err != nil {
		return nil, err
	}
	m, groups, err := level.Build()
	if err != nil {
		return nil, err
	}

	store, err := storage.Open(cfg.Storage.DBPath)
	if err != nil {
		logger.Warn("could not open run history database", "error", err)
		store = nil
	}

	ctx := interp.New(interp.Options{
		GameFolder: cfg.Files.GameFolder,
		Logger:     logger.WithPrefix("interp"),
	})
	eng := engine.New(m, nil, logger.WithPrefix("engine"))
	mgr := engine.NewManager(ctx, eng, engine.ManagerConfig{
		Bootstrap:    cfg.Files.Bootstrapper,
		PollInterval: cfg.Runner.PollInterval,
		Respawn:      cfg.Runner.Respawn,
		MaxRespawns:  cfg.Runner.MaxRespawns,
	}, logger.WithPrefix("manager"))
	if store != nil {
		mgr.SetRecorder(store)
	}
	mgr.Start()

	a := &app{
		cfg:     cfg,
		logger:  logger,
		level:   level,
		world:   m,
		engine:  eng,
		manager: mgr,
		store:   store,
	}

	for i, g := range groups {
		if err := mgr.Add(g, level.BootstrapFor(g.ID())); err != nil {
			// Groups not handed over yet still hold the caller's reference.
			for _, rest := range groups[i:] {
				rest.Release()
			}
			a.close()
			return nil, fmt.Errorf("cannot start group %s: %w", g.ID(), err)
		}
	}

	logger.Info("level loaded", "level", level.Name, "groups", len(groups), "config", cfg.Source)
	return a, nil
}

// close kills every worker and closes the database.
func (a *app) close() {
	a.manager.Close()
	if a.store != nil {
		a.store.Close()
	}
}

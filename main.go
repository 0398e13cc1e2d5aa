package main

import (
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"mllab/config"
	"mllab/db"
	mhttp "mllab/http"
	"mllab/logging"
	"mllab/session"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	// 1. Load config
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	if err := logging.Init(logging.Options{
		Level:      cfg.Log.Level,
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
	}); err != nil {
		log.Fatalf("Failed to initialize logging: %v", err)
	}
	defer logging.Sync()

	// 2. Initialize database
	if err := db.InitDB(cfg.Database.Path); err != nil {
		logging.L().Fatalw("failed to initialize database", "path", cfg.Database.Path, "err", err)
	}
	defer db.Close()
	logging.L().Infow("database initialized", "path", cfg.Database.Path)

	// 3. Event hub and session manager
	hub := mhttp.NewHub()
	go hub.Run()
	defer hub.Stop()

	manager, err := session.NewManager(cfg.Sessions.MaxActive, sessionConfig(cfg), logging.L(), hub, db.NewStore())
	if err != nil {
		logging.L().Fatalw("failed to create session manager", "err", err)
	}
	defer manager.Close()

	// 4. Hot-reload training defaults on config change
	stopWatch, err := config.Watch(*configPath, func(next *config.Config) {
		manager.UpdateConfig(sessionConfig(next))
	}, func(err error) {
		logging.L().Warnw("config reload failed", "err", err)
	})
	if err != nil {
		logging.L().Warnw("config watcher unavailable", "err", err)
	} else {
		defer stopWatch()
	}

	// 5. Start HTTP server
	serverCfg := mhttp.DefaultServerConfig()
	serverCfg.Port = cfg.Http.Port
	server := mhttp.NewServer(serverCfg, mhttp.NewAPI(manager), hub)
	go func() {
		if err := server.Start(); err != nil {
			logging.L().Fatalw("http server failed", "err", err)
		}
	}()

	// 6. Handle graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logging.L().Infow("shutting down")

	if err := server.Stop(); err != nil {
		logging.L().Warnw("server forced to shutdown", "err", err)
	}

	logging.L().Infow("exiting")
}

func sessionConfig(cfg *config.Config) session.Config {
	sc := session.DefaultConfig()
	sc.ImageGridSize = cfg.Training.ImageGridSize
	sc.ImageClassCap = cfg.Training.ImageClassCap
	sc.MaxImageClasses = cfg.Training.MaxImageClasses
	sc.TaskPolicy.MaxClassUniques = cfg.Training.ClassUniqueThreshold
	sc.Seed = cfg.Training.Seed
	return sc
}

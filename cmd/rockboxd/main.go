package main

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"

	"rockboxd/internal/browse"
	"rockboxd/internal/config"
	"rockboxd/internal/devices"
	"rockboxd/internal/engine"
	"rockboxd/internal/events"
	"rockboxd/internal/graphqlsrv"
	"rockboxd/internal/library"
	"rockboxd/internal/mpd"
	"rockboxd/internal/mpris"
	"rockboxd/internal/player"
	"rockboxd/internal/rpcsrv"
	"rockboxd/internal/search"
	"rockboxd/internal/server"
	"rockboxd/internal/settings"
	"rockboxd/internal/worker"
)

func main() {
	configPath := pflag.StringP("config", "c", filepath.Join(settings.ConfigDir(), "config.toml"), "path to the config file")
	libraryPath := pflag.StringP("library", "l", "", "music library directory (overrides config)")
	noScan := pflag.Bool("no-scan", false, "skip the startup library scan")
	pflag.Parse()

	// Initialize basic logger for startup
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})

	// Load configuration
	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		logger.WithError(err).Fatal("Error loading configuration")
	}
	if *libraryPath != "" {
		cfg.Library.Path = *libraryPath
	}
	configureLogger(logger, cfg.Logging)

	// Check if music directory exists
	if _, err := os.Stat(cfg.Library.Path); os.IsNotExist(err) {
		logger.WithField("library_path", cfg.Library.Path).Fatal("Music directory does not exist. Please create it and add your music files.")
	}

	bus := events.NewBus(0)

	// Settings, engine and its retrying front
	settingsStore := settings.NewStore(filepath.Dir(*configPath))
	sim := engine.NewSimEngine(cfg.Library.Path, settingsStore, logger)
	facade := engine.NewFacade(sim, logger)

	// Library storage and search index
	store, err := library.Open(cfg.Library.DatabaseURL, logger)
	if err != nil {
		logger.WithError(err).Fatal("Error opening library database")
	}
	defer store.Close()

	index, err := search.Open(cfg.Library.IndexDir, logger)
	if err != nil {
		logger.WithError(err).Fatal("Error opening search index")
	}
	defer index.Close()

	probe := library.NewProbe(logger)
	ingestor := library.NewIngestor(store, probe, index, bus, logger)

	pool := worker.NewPool(runtime.NumCPU(), logger)
	defer pool.Close()
	cache := browse.NewCache(pool, index, cfg.Library.ShowHidden, logger)

	// Device discovery and the playback session
	registry := devices.NewRegistry(bus, logger)
	discovery := devices.NewDiscovery(registry, cfg.Devices.CastService, cfg.Devices.NativeService, logger)
	discovery.Advertise("rockboxd", cfg.Server.HTTPPort)
	discovery.Start()
	defer discovery.Close()

	heartbeat := time.Duration(cfg.Devices.HeartbeatSeconds) * time.Second
	enginePlayer := player.NewEnginePlayer(facade, store)
	session := player.NewSession(enginePlayer, registry, bus, heartbeat, logger)

	// Filesystem watcher keeps the database and browse cache current
	var watcher *library.Watcher
	if cfg.Library.WatchChanges {
		watcher, err = library.NewWatcher(ingestor, cfg.Library.Path, cache.Invalidate, logger)
		if err != nil {
			logger.WithError(err).Warn("Could not watch library for changes")
		} else {
			defer watcher.Close()
		}
	}

	if cfg.Library.ScanOnStartup && !*noScan {
		go func() {
			count, err := ingestor.Scan(cfg.Library.Path)
			if err != nil {
				logger.WithError(err).Error("Startup library scan failed")
				return
			}
			if count == 0 {
				logger.WithField("library_path", cfg.Library.Path).Warn("No supported audio files found in music directory")
			}
		}()
	}

	// The MPD kill command and POSIX signals share one shutdown path
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	onKill := func() {
		select {
		case quit <- syscall.SIGTERM:
		default:
		}
	}

	httpServer := server.NewServer(cfg, store, ingestor, index, cache, session, registry, settingsStore, bus, logger)
	gqlServer, err := graphqlsrv.New(cfg, bus, logger)
	if err != nil {
		logger.WithError(err).Fatal("Error building GraphQL schema")
	}
	rpcServer, err := rpcsrv.NewServer(cfg, store, ingestor, index, cache, session, registry, facade, settingsStore, logger)
	if err != nil {
		logger.WithError(err).Fatal("Error creating RPC server")
	}
	mpdServer := mpd.NewServer(cfg, store, ingestor, index, cache, session, registry, settingsStore, bus, onKill, logger)
	mprisServer := mpris.New(session, bus, logger)

	go func() {
		if err := httpServer.Start(); err != nil {
			logger.WithError(err).Fatal("HTTP server failed")
		}
	}()
	go func() {
		if err := gqlServer.Start(); err != nil {
			logger.WithError(err).Fatal("GraphQL server failed")
		}
	}()
	go func() {
		if err := rpcServer.Start(); err != nil {
			logger.WithError(err).Fatal("RPC server failed")
		}
	}()
	go func() {
		if err := mpdServer.Start(); err != nil {
			logger.WithError(err).Fatal("MPD server failed")
		}
	}()
	mprisServer.Start()

	<-quit
	logger.Info("Received shutdown signal")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	mprisServer.Shutdown()
	if err := mpdServer.Shutdown(ctx); err != nil {
		logger.WithError(err).Warn("MPD server shutdown failed")
	}
	if err := rpcServer.Shutdown(ctx); err != nil {
		logger.WithError(err).Warn("RPC server shutdown failed")
	}
	if err := gqlServer.Shutdown(ctx); err != nil {
		logger.WithError(err).Warn("GraphQL server shutdown failed")
	}
	if err := httpServer.Shutdown(ctx); err != nil {
		logger.WithError(err).Warn("HTTP server shutdown failed")
	}
	if err := session.Disconnect(); err != nil {
		logger.WithError(err).Debug("No cast session to close")
	}
	logger.Info("Shutdown complete")
}

func configureLogger(logger *logrus.Logger, lc config.LoggingConfig) {
	if level, err := logrus.ParseLevel(lc.Level); err == nil {
		logger.SetLevel(level)
	}
	if lc.Format == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	}
	if lc.File != "" {
		f, err := os.OpenFile(lc.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			logger.WithError(err).Warn("Could not open log file, logging to stderr")
			return
		}
		logger.SetOutput(f)
	}
}

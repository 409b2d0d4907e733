package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/lynxrender/backend/internal/config"
	"github.com/lynxrender/backend/internal/engine/sim"
	"github.com/lynxrender/backend/internal/env"
	"github.com/lynxrender/backend/internal/history"
	"github.com/lynxrender/backend/internal/host"
	"github.com/lynxrender/backend/internal/logging"
	"github.com/lynxrender/backend/internal/mock"
	"github.com/lynxrender/backend/internal/resource"
	"github.com/lynxrender/backend/internal/session"
	"github.com/lynxrender/backend/internal/uithread"
	"github.com/lynxrender/backend/internal/ws"
)

func main() {
	mockMode := flag.Bool("mock", false, "Drive synthetic sessions instead of loading -url")
	configPath := flag.String("config", "", "Path to config file (defaults when empty)")
	port := flag.Int("port", 0, "Override devtool server port")
	pageURL := flag.String("url", "", "Template URL to open at startup")
	root := flag.String("root", ".", "Root directory for file:// templates")
	flag.Parse()

	if err := run(*configPath, *port, *pageURL, *root, *mockMode); err != nil {
		fmt.Fprintf(os.Stderr, "renderhost: %v\n", err)
		os.Exit(1)
	}
}

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.Default(), nil
	}
	return config.Load(path)
}

func run(configPath string, port int, pageURL, root string, mockMode bool) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if port > 0 {
		cfg.Server.Port = port
	}

	level, err := logging.ParseLevel(cfg.Log.Level)
	if err != nil {
		return err
	}
	logger := logging.New(os.Stderr, level)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	loop, err := uithread.New(logger)
	if err != nil {
		return fmt.Errorf("ui thread: %w", err)
	}
	if err := loop.Start(ctx); err != nil {
		return fmt.Errorf("ui thread: %w", err)
	}
	defer func() {
		stopCtx, stopCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer stopCancel()
		_ = loop.Stop(stopCtx)
	}()

	e := env.FromConfig(cfg.Env)
	if err := e.RegisterDefaults(); err != nil {
		return err
	}
	eng := sim.New(e, logger)

	absRoot, err := filepath.Abs(root)
	if err != nil {
		return err
	}
	fetcher := resource.Default(absRoot)
	fetcher.Register(mock.Scheme, mock.Fetcher())

	store := session.NewStore()
	h := host.New(cfg, store, loop, eng, e, fetcher, logger)
	go h.Start(ctx)

	redactor := &session.Redactor{
		MaskURLQuery:  cfg.Privacy.MaskURLQuery,
		MaskLocalPath: cfg.Privacy.MaskLocalPath,
		MaskIDs:       cfg.Privacy.MaskIDs,
		AllowedURLs:   cfg.Privacy.AllowedURLs,
		BlockedURLs:   cfg.Privacy.BlockedURLs,
	}
	broadcaster := ws.NewBroadcaster(store, cfg.Devtool.BroadcastThrottle, cfg.Devtool.SnapshotInterval, cfg.Devtool.MaxConnections, redactor, logger)
	defer broadcaster.Stop()
	go broadcaster.Watch(ctx)

	server := ws.NewServer(cfg, store, broadcaster, h, fetcher.Health(), logger)

	if cfg.History.Enabled {
		tracker, err := history.NewTracker(history.NewStore(cfg.History.Dir), cfg.History.SaveInterval, logger)
		if err != nil {
			logger.Warning().Err(err).Log(`history disabled`)
		} else {
			events, unsubscribe := store.Subscribe(256)
			defer unsubscribe()
			historyDone := make(chan struct{})
			go func() {
				tracker.Run(ctx, events)
				close(historyDone)
			}()
			// final save happens once ctx is cancelled
			defer func() { <-historyDone }()
			defer cancel()
			server.SetHistory(tracker)
		}
	}

	if mockMode {
		logger.Info().Log(`starting in mock mode`)
		if err := mock.NewGenerator(h, loop, logger).Start(ctx); err != nil {
			return fmt.Errorf("mock generator: %w", err)
		}
	} else if pageURL != "" {
		if _, err := h.Open(ctx, pageURL, nil); err != nil {
			return fmt.Errorf("open %s: %w", pageURL, err)
		}
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	defer signal.Stop(sigCh)
	go func() {
		for sig := range sigCh {
			if sig == syscall.SIGHUP {
				reloadConfig(configPath, h, e, logger)
				continue
			}
			logger.Info().Str(`signal`, sig.String()).Log(`shutting down`)
			h.DestroyAll()
			drainCtx, drainCancel := context.WithTimeout(context.Background(), 2*time.Second)
			_ = loop.Call(drainCtx, func() {})
			drainCancel()
			cancel()
			return
		}
	}()

	if !cfg.Devtool.Enabled {
		<-ctx.Done()
		return nil
	}
	return ws.ListenAndServe(ctx, cfg.Server.Host, cfg.Server.Port, server.Handler(), logger)
}

// reloadConfig applies a re-read config to sessions opened afterwards and to
// the process-wide switches.
func reloadConfig(path string, h *host.Host, e *env.Env, logger *logging.Logger) {
	if path == "" {
		logger.Info().Log(`no config file to reload`)
		return
	}
	cfg, err := config.Load(path)
	if err != nil {
		logger.Err().Err(err).Str(`path`, path).Log(`config reload failed`)
		return
	}
	h.SetConfig(cfg)
	e.SetVsyncAlignedFlushSwitches(cfg.Env.VsyncAlignedFlushExp, cfg.Env.VsyncAlignedFlushGlobal)
	e.SetLayoutOnBackgroundThread(cfg.Env.LayoutOnBackgroundThread)
	logger.Info().Str(`path`, path).Log(`config reloaded`)
}

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/b0czek/linuxcnc-node-sub000/internal/api"
	"github.com/b0czek/linuxcnc-node-sub000/internal/auth"
	"github.com/b0czek/linuxcnc-node-sub000/internal/channels"
	"github.com/b0czek/linuxcnc-node-sub000/internal/config"
	"github.com/b0czek/linuxcnc-node-sub000/internal/hal"
	"github.com/b0czek/linuxcnc-node-sub000/internal/history"
	"github.com/b0czek/linuxcnc-node-sub000/internal/machine"
	"github.com/b0czek/linuxcnc-node-sub000/internal/message"
	"github.com/b0czek/linuxcnc-node-sub000/internal/position"
	"github.com/b0czek/linuxcnc-node-sub000/internal/sim"
	"github.com/b0czek/linuxcnc-node-sub000/internal/status"
	"github.com/b0czek/linuxcnc-node-sub000/internal/stream"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the configuration file")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize structured logger
	logger := initLogger(cfg.Logging)
	logger.Info("Starting machine subscription server",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
		"simulate", cfg.Machine.Simulate,
	)

	if !cfg.Machine.Simulate {
		// Live controller sessions need an external shared-memory adapter
		// feeding the channel interfaces; this binary only ships the
		// simulated backend.
		log.Fatalf("Only simulated machine sessions are supported by this build; set machine.simulate")
	}

	// Create context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize diagnostic channels
	events := channels.NewEvents(channels.Config{})
	defer events.Close()
	channels.StartDiagnosticsLogger(ctx, events, logger)

	// Initialize authentication service
	authService, err := auth.NewService(
		cfg.Auth.JWTSecret,
		cfg.Auth.AdminUsername,
		cfg.Auth.AdminPassword,
		cfg.Auth.GetJWTExpiry(),
	)
	if err != nil {
		log.Fatalf("Failed to initialize auth service: %v", err)
	}

	// Machine sources. The position logger samples on its own schedule, so
	// it gets its own channel to the session rather than stealing change
	// flags from the status watcher.
	statChannel := sim.NewStatChannel(machine.Status{})
	positionChannel := sim.NewStatChannel(machine.Status{})
	errorChannel := sim.NewErrorChannel()
	driver := sim.NewDriver(statChannel, errorChannel, 100*time.Millisecond)
	driver.Attach(positionChannel)
	go driver.Run(ctx)

	// HAL component with a few demo items
	comp := hal.NewComponent(cfg.Machine.Component, cfg.Machine.Prefix)
	if err := buildComponent(comp); err != nil {
		log.Fatalf("Failed to build HAL component: %v", err)
	}

	// Watchers
	statusWatcher := status.New(statChannel,
		status.WithLogger(logger),
		status.WithDiagnostics(events),
		status.WithPollInterval(cfg.Watchers.StatusInterval()),
	)
	defer statusWatcher.Destroy()

	messageWatcher := message.New(errorChannel,
		message.WithLogger(logger),
		message.WithDiagnostics(events),
		message.WithPollInterval(cfg.Watchers.MessageInterval()),
	)
	defer messageWatcher.Destroy()

	halWatcher := hal.New(comp,
		hal.WithLogger(logger),
		hal.WithDiagnostics(events),
		hal.WithPollInterval(cfg.Watchers.HalInterval()),
	)
	defer halWatcher.Destroy()

	positionLogger := position.New(positionChannel,
		position.WithLogger(logger),
		position.WithDiagnostics(events),
	)
	defer positionLogger.Destroy()

	// Websocket fan-out
	hub := stream.NewHub()
	go hub.Run()
	statusWatcher.On("task.motionLine", stream.StatusCallback(hub))
	statusWatcher.On("motion.traj.position", stream.StatusCallback(hub))
	messageWatcher.On(machine.KindError, stream.MessageCallback(hub))
	messageWatcher.On(machine.KindText, stream.MessageCallback(hub))
	halWatcher.OnDelta(stream.HalDeltaCallback(hub))

	// Change history
	if cfg.History.Enabled {
		if err := history.RunMigrations(&cfg.History.Database); err != nil {
			log.Fatalf("Migrations failed: %v", err)
		}
		pool, err := history.Connect(ctx, &cfg.History.Database)
		if err != nil {
			log.Fatalf("History DB init failed: %v", err)
		}
		defer pool.Close()

		writer := history.NewWriter(pool, &cfg.History, logger)
		go func() {
			if err := writer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("History writer error", "error", err)
			}
		}()

		recorder := history.NewRecorder(writer)
		statusWatcher.On("task.motionLine", recorder.StatusCallback())
		messageWatcher.On(machine.KindError, recorder.MessageCallback())
		halWatcher.OnDelta(recorder.HalDeltaCallback())
	}

	// Create API router
	router := api.NewRouter(&api.Dependencies{
		Auth:       authService,
		Status:     statusWatcher,
		HalWatcher: halWatcher,
		Component:  comp,
		Position:   positionLogger,
		Hub:        hub,
		Logger:     logger,
	})

	// Create HTTP server
	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.GetReadTimeout(),
		WriteTimeout: cfg.Server.GetWriteTimeout(),
	}

	// Start server in goroutine
	go func() {
		logger.Info("HTTP server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Server failed", "error", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", "error", err)
	}

	logger.Info("Server stopped gracefully")
}

// buildComponent declares the demo component's pin and parameter set.
func buildComponent(comp *hal.Component) error {
	decls := []struct {
		suffix string
		typ    hal.Type
		pin    bool
		pinDir hal.PinDir
		parDir hal.ParamDir
	}{
		{"enable", hal.Bit, true, hal.In, 0},
		{"running", hal.Bit, true, hal.Out, 0},
		{"speed-cmd", hal.Float, true, hal.Out, 0},
		{"speed-fb", hal.Float, true, hal.In, 0},
		{"count", hal.S32, true, hal.IO, 0},
		{"scale", hal.Float, false, 0, hal.RW},
		{"revision", hal.U32, false, 0, hal.RO},
	}
	for _, d := range decls {
		var err error
		if d.pin {
			err = comp.NewPin(d.suffix, d.typ, d.pinDir)
		} else {
			err = comp.NewParam(d.suffix, d.typ, d.parDir)
		}
		if err != nil {
			return err
		}
	}
	comp.Ready()
	return nil
}

func initLogger(cfg config.LoggingConfig) *slog.Logger {
	var handler slog.Handler

	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}

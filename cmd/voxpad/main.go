package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/voxpad/voxpad/internal/app"
	"github.com/voxpad/voxpad/internal/audio"
	"github.com/voxpad/voxpad/internal/config"
	"github.com/voxpad/voxpad/internal/inject"
	"github.com/voxpad/voxpad/internal/logging"
	"github.com/voxpad/voxpad/internal/permissions"
	"github.com/voxpad/voxpad/internal/tray"
	"github.com/voxpad/voxpad/internal/trigger"
	"github.com/voxpad/voxpad/internal/whisper"
)

var (
	// Version is set via ldflags at build time
	Version = "dev"
	// Commit is set via ldflags at build time
	Commit = "unknown"
)

func main() {
	listDevices := pflag.Bool("list-devices", false, "List audio input devices and exit")
	logLevel := pflag.String("log-level", "", "Override the configured log level (debug, info, warn, error)")
	showVersion := pflag.Bool("version", false, "Print version and exit")
	pflag.Parse()

	if *showVersion {
		fmt.Printf("voxpad %s (%s)\n", Version, Commit)
		return
	}

	// Load config from XDG/Library/AppData
	cfg, err := config.Load()
	if err != nil {
		// Use default logger if config fails to load
		log := logging.New()
		log.Fatal().Err(err).Msg("Failed to load config")
	}

	// Initialize logger with configured level; the flag wins
	level := cfg.LogLevel
	if *logLevel != "" {
		level = *logLevel
	}
	log := logging.NewWithLevel(level)

	// macOS requires explicit microphone approval before capture works
	if err := permissions.EnsureMicrophone(); err != nil {
		log.Fatal().Err(err).Msg("Required permissions not granted")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize audio capture
	rec, err := audio.NewRecorder(cfg.Audio.DeviceID, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize audio")
	}
	defer rec.Close()

	if *listDevices {
		devices, err := rec.Devices()
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to list devices")
		}
		for _, d := range devices {
			marker := "  "
			if d.Default {
				marker = "* "
			}
			fmt.Printf("%s%s\n", marker, d.Name)
		}
		return
	}

	// Initialize whisper; downloads the model on first run
	transcriber, err := whisper.New(cfg.Whisper, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize whisper")
	}
	defer transcriber.Close()

	// Initialize transcript delivery
	injector := inject.NewClipboard(log)

	// Create tray UI first (we'll pass it to app)
	trayUI := tray.New(nil, cfg, Version, Commit, log) // App reference set below

	// Create app with tray as status updater
	application := app.New(app.Config{
		Recorder:      rec,
		Transcriber:   transcriber,
		Injector:      injector,
		Config:        cfg,
		Logger:        log,
		StatusUpdater: trayUI,
	})

	// Set app reference in tray
	trayUI.SetApp(application)

	// Toggle dictation on SIGUSR1
	trig := trigger.New(log, application.Toggle)
	defer trig.Close()

	log.Info().Str("version", Version).Msg("VoxPad starting...")

	// Setup shutdown signal handling
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		log.Info().Msg("Shutting down...")
		if err := application.Shutdown(ctx); err != nil {
			log.Error().Err(err).Msg("Shutdown error")
		}
		// os.Exit skips deferred calls; release the stream here.
		rec.Close()
		os.Exit(0)
	}()

	// Start tray UI - MUST run on main thread
	if err := trayUI.Run(ctx); err != nil {
		log.Fatal().Err(err).Msg("Tray error")
	}
}

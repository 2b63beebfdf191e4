package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/rs/zerolog"
)

// New creates a logger at the default info level
func New() zerolog.Logger {
	return NewWithLevel("info")
}

// NewWithLevel creates a zerolog logger with console and file output,
// filtered to the given level ("debug", "info", "warn", "error").
// Unknown levels fall back to info.
func NewWithLevel(level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}

	console := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}

	logPath := Path()
	os.MkdirAll(filepath.Dir(logPath), 0755)

	logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		// Keep running with console output only.
		fmt.Fprintf(os.Stderr, "could not open log file %s: %v\n", logPath, err)
		return zerolog.New(console).Level(lvl).With().Timestamp().Caller().Logger()
	}

	// Multi-writer: console + file
	multi := zerolog.MultiLevelWriter(console, logFile)

	return zerolog.New(multi).Level(lvl).With().Timestamp().Caller().Logger()
}

// Path returns the platform-specific log file path
func Path() string {
	var base string

	switch runtime.GOOS {
	case "darwin":
		base = os.Getenv("HOME") + "/Library/Logs"
	case "windows":
		base = os.Getenv("LOCALAPPDATA")
	default:
		if xdg := os.Getenv("XDG_STATE_HOME"); xdg != "" {
			base = xdg
		} else {
			base = os.Getenv("HOME") + "/.local/state"
		}
	}

	return filepath.Join(base, "voxpad", "voxpad.log")
}

package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"runtime"
)

type Config struct {
	LogLevel        string        `json:"log_level"` // "debug", "info", "warn", "error"
	Audio           AudioConfig   `json:"audio"`
	Whisper         WhisperConfig `json:"whisper"`
	CopyToClipboard bool          `json:"copy_to_clipboard"`
	Notify          bool          `json:"notify"`
	AppendSpace     bool          `json:"append_space"`
}

type AudioConfig struct {
	DeviceID string `json:"device_id"` // empty = system default input
	DumpDir  string `json:"dump_dir"`  // when set, finished clips are written here as WAV
}

type WhisperConfig struct {
	Model     string `json:"model"`    // "base-q5_1", "small", etc.
	Language  string `json:"language"` // "auto", "en", etc.
	Threads   int    `json:"threads"`  // 0 = auto-detect
	Translate bool   `json:"translate"`
}

// Load reads the config from disk or returns defaults
func Load() (*Config, error) {
	path := configPath()

	// Default config
	cfg := &Config{
		LogLevel: "info",
		Audio: AudioConfig{
			DeviceID: "",
			DumpDir:  "",
		},
		Whisper: WhisperConfig{
			Model:     "base-q5_1",
			Language:  "auto",
			Threads:   0, // Auto-detect
			Translate: false,
		},
		CopyToClipboard: true,
		Notify:          true,
		AppendSpace:     false,
	}

	// Load existing config if it exists
	if data, err := os.ReadFile(path); err == nil {
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, err
		}
	}

	return cfg, nil
}

// Save writes the config to disk
func (c *Config) Save() error {
	path := configPath()

	// Ensure directory exists
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}

// configPath returns the platform-specific config file path
func configPath() string {
	var base string

	switch runtime.GOOS {
	case "darwin":
		base = os.Getenv("HOME") + "/Library/Application Support"
	case "windows":
		base = os.Getenv("APPDATA")
	default: // linux
		if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
			base = xdg
		} else {
			base = os.Getenv("HOME") + "/.config"
		}
	}

	return filepath.Join(base, "voxpad", "config.json")
}

// ModelsPath returns the platform-specific models directory path
func ModelsPath() string {
	var base string

	switch runtime.GOOS {
	case "darwin":
		base = os.Getenv("HOME") + "/Library/Application Support"
	case "windows":
		base = os.Getenv("LOCALAPPDATA")
	default:
		if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
			base = xdg
		} else {
			base = os.Getenv("HOME") + "/.local/share"
		}
	}

	return filepath.Join(base, "voxpad", "models")
}

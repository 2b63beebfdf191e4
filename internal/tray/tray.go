package tray

import (
	"context"
	"fmt"
	"os/exec"
	"runtime"

	"github.com/getlantern/systray"
	"github.com/rs/zerolog"

	"github.com/voxpad/voxpad/internal/app"
	"github.com/voxpad/voxpad/internal/config"
	"github.com/voxpad/voxpad/internal/logging"
	"github.com/voxpad/voxpad/internal/whisper"
)

type UI struct {
	app     *app.App
	cfg     *config.Config
	version string
	commit  string
	log     zerolog.Logger

	// Menu items
	mStartStop *systray.MenuItem
	mDevices   *systray.MenuItem
	mModels    *systray.MenuItem
}

// Status update methods for the app to call. The menu items are nil
// until onReady has run.

func (u *UI) SetIdle() {
	u.updateStatus("idle")
	if u.mStartStop != nil {
		u.mStartStop.SetTitle("Start Dictation")
		u.mStartStop.Enable()
	}
}

func (u *UI) SetRecording() {
	u.updateStatus("recording")
	if u.mStartStop != nil {
		u.mStartStop.SetTitle("Stop Dictation")
	}
}

func (u *UI) SetProcessing() {
	u.updateStatus("processing")
	if u.mStartStop != nil {
		u.mStartStop.SetTitle("Transcribing...")
		u.mStartStop.Disable()
	}
}

func (u *UI) SetError() {
	u.updateStatus("error")
	if u.mStartStop != nil {
		u.mStartStop.SetTitle("Start Dictation")
		u.mStartStop.Enable()
	}
}

// ShowTranscript surfaces the last transcript in the tray tooltip.
func (u *UI) ShowTranscript(text string) {
	systray.SetTooltip("VoxPad: " + truncate(text, 120))
}

func New(application *app.App, cfg *config.Config, version, commit string, log zerolog.Logger) *UI {
	return &UI{
		app:     application,
		cfg:     cfg,
		version: version,
		commit:  commit,
		log:     log,
	}
}

// SetApp sets the app reference (for circular dependency resolution)
func (u *UI) SetApp(application *app.App) {
	u.app = application
}

func (u *UI) Run(ctx context.Context) error {
	systray.Run(u.onReady, u.onExit)
	return nil
}

func (u *UI) onReady() {
	// Use emoji instead of icon - microphone with initial status
	u.updateStatus("idle")
	systray.SetTooltip("VoxPad voice dictation")

	// Build menu
	u.mStartStop = systray.AddMenuItem("Start Dictation", "Toggle dictation")
	systray.AddSeparator()

	u.mDevices = systray.AddMenuItem("Microphone", "Select audio device")
	u.buildDeviceMenu()

	u.mModels = systray.AddMenuItem("Model", "Select Whisper model")
	u.buildModelMenu()

	systray.AddSeparator()
	mLogs := systray.AddMenuItem("Open Logs", "View application logs")
	mAbout := systray.AddMenuItem("About", "About VoxPad")
	mQuit := systray.AddMenuItem("Quit", "Exit application")

	// Event loop
	go u.handleEvents(mLogs, mAbout, mQuit)
}

func (u *UI) handleEvents(mLogs, mAbout, mQuit *systray.MenuItem) {
	for {
		select {
		case <-u.mStartStop.ClickedCh:
			u.app.Toggle()
		case <-mLogs.ClickedCh:
			u.openLogs()
		case <-mAbout.ClickedCh:
			u.showAbout()
		case <-mQuit.ClickedCh:
			systray.Quit()
			return
		}
	}
}

func (u *UI) buildDeviceMenu() {
	// Get devices from app
	devices, err := u.app.ListDevices()
	if err != nil {
		u.log.Error().Err(err).Msg("Failed to list audio devices")
		return
	}

	deviceItems := make(map[string]*systray.MenuItem)

	for _, dev := range devices {
		item := u.mDevices.AddSubMenuItem(dev.Name, "")
		if dev.ID == u.cfg.Audio.DeviceID || (u.cfg.Audio.DeviceID == "" && dev.Default) {
			item.Check()
		}
		deviceItems[dev.ID] = item

		go func(deviceID, deviceName string, menuItem *systray.MenuItem) {
			for {
				<-menuItem.ClickedCh
				if err := u.app.SetDevice(deviceID); err != nil {
					u.log.Warn().Err(err).Str("device", deviceName).Msg("Could not change audio device")
					continue
				}
				// Uncheck all other items
				for id, itm := range deviceItems {
					if id != deviceID {
						itm.Uncheck()
					}
				}
				menuItem.Check()
				u.log.Info().Str("device", deviceName).Msg("Changed audio device")
			}
		}(dev.ID, dev.Name, item)
	}
}

func (u *UI) buildModelMenu() {
	modelItems := make(map[string]*systray.MenuItem)

	for _, model := range whisper.Models() {
		item := u.mModels.AddSubMenuItem(model, "")
		if model == u.cfg.Whisper.Model {
			item.Check()
		}
		modelItems[model] = item

		go func(m string, menuItem *systray.MenuItem) {
			for {
				<-menuItem.ClickedCh
				oldModel := u.cfg.Whisper.Model
				// May download the model; SetModel refuses while busy.
				if err := u.app.SetModel(m); err != nil {
					u.log.Warn().Err(err).Str("model", m).Msg("Could not change Whisper model")
					continue
				}
				// Uncheck all other items
				for mdl, itm := range modelItems {
					if mdl != m {
						itm.Uncheck()
					}
				}
				menuItem.Check()
				u.log.Info().Str("from", oldModel).Str("to", m).Msg("Changed Whisper model")
			}
		}(model, item)
	}
}

func (u *UI) openLogs() {
	path := logging.Path()

	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", path)
	case "windows":
		cmd = exec.Command("explorer", path)
	default:
		cmd = exec.Command("xdg-open", path)
	}
	if err := cmd.Start(); err != nil {
		u.log.Error().Err(err).Str("path", path).Msg("Failed to open log file")
	}
}

func (u *UI) showAbout() {
	// TODO: Show about dialog with native UI
	fmt.Printf("VoxPad %s (%s)\nLocal voice dictation\n", u.version, u.commit)
}

func (u *UI) onExit() {
	// Cleanup
}

// updateStatus sets the tray title with microphone emoji and status indicator
func (u *UI) updateStatus(status string) {
	emoji := emojiForStatus(status)
	systray.SetTitle(fmt.Sprintf("🎤 %s", emoji))
}

// emojiForStatus returns the appropriate status emoji
func emojiForStatus(status string) string {
	switch status {
	case "recording":
		return "🔴" // Red - recording
	case "processing":
		return "🟡" // Yellow - processing transcription
	case "idle":
		return "🟢" // Green - ready/idle
	case "error":
		return "⚪️" // White - error
	default:
		return "🟢" // Green - default to ready
	}
}

// truncate shortens s to at most n runes, marking the cut with an
// ellipsis.
func truncate(s string, n int) string {
	if n <= 0 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n-1]) + "…"
}

package app

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/gen2brain/beeep"
	"github.com/rs/zerolog"

	"github.com/voxpad/voxpad/internal/audio"
	"github.com/voxpad/voxpad/internal/config"
	"github.com/voxpad/voxpad/internal/inject"
	"github.com/voxpad/voxpad/internal/whisper"
)

// Recorder captures microphone audio. *audio.Recorder implements it;
// tests substitute their own.
type Recorder interface {
	Start() error
	Stop() ([]float32, error)
	SetDevice(id string) error
	Devices() ([]audio.Device, error)
}

// StatusUpdater is an interface for updating status (e.g., tray icon)
type StatusUpdater interface {
	SetIdle()
	SetRecording()
	SetProcessing()
	SetError()
	ShowTranscript(text string)
}

type Config struct {
	Recorder      Recorder
	Transcriber   whisper.Transcriber
	Injector      inject.Injector
	Config        *config.Config
	Logger        zerolog.Logger
	StatusUpdater StatusUpdater // Optional - can be nil
}

type App struct {
	rec    Recorder
	stt    whisper.Transcriber
	inj    inject.Injector
	cfg    *config.Config
	log    zerolog.Logger
	status StatusUpdater

	// notify sends a desktop notification; swapped out in tests
	notify func(title, message string)

	mu        sync.Mutex
	dictating bool
	busy      bool
}

func New(cfg Config) *App {
	a := &App{
		rec:    cfg.Recorder,
		stt:    cfg.Transcriber,
		inj:    cfg.Injector,
		cfg:    cfg.Config,
		log:    cfg.Logger,
		status: cfg.StatusUpdater,
	}
	a.notify = func(title, message string) {
		if err := beeep.Notify(title, message, ""); err != nil {
			a.log.Warn().Err(err).Msg("Desktop notification failed")
		}
	}
	return a
}

// Toggle flips between idle and recording. Called from the tray menu
// and the signal trigger. While a previous clip is still being
// transcribed the toggle is ignored, so clips cannot interleave.
func (a *App) Toggle() {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.busy {
		a.log.Warn().Msg("Previous clip still processing, toggle ignored")
		return
	}
	if !a.dictating {
		a.startDictationLocked()
	} else {
		a.stopAndTranscribeLocked()
	}
}

func (a *App) startDictationLocked() {
	a.log.Info().Msg("Starting dictation")

	if err := a.rec.Start(); err != nil {
		a.log.Error().Err(err).Msg("Failed to start recording")
		if a.status != nil {
			a.status.SetError()
		}
		a.notifyUser("VoxPad", "Could not start recording: "+err.Error())
		return
	}
	a.dictating = true

	if a.status != nil {
		a.status.SetRecording()
	}
}

func (a *App) stopAndTranscribeLocked() {
	a.log.Info().Msg("Stopping dictation")
	a.dictating = false
	a.busy = true

	if a.status != nil {
		a.status.SetProcessing()
	}

	// Transcription can take seconds; run it off the UI path.
	go a.finishDictation()
}

func (a *App) finishDictation() {
	defer func() {
		a.mu.Lock()
		a.busy = false
		a.mu.Unlock()
	}()

	clip, err := a.rec.Stop()
	if err != nil {
		a.log.Error().Err(err).Msg("Failed to stop recording")
		if a.status != nil {
			a.status.SetError()
		}
		return
	}
	if len(clip) == 0 {
		a.log.Info().Msg("Nothing but silence recorded")
		if a.status != nil {
			a.status.SetIdle()
		}
		a.notifyUser("VoxPad", "No speech detected")
		return
	}

	a.dumpClip(clip)

	text, err := a.stt.Transcribe(clip)
	if err != nil {
		a.log.Error().Err(err).Msg("Transcription failed")
		if a.status != nil {
			a.status.SetError()
		}
		a.notifyUser("VoxPad", "Transcription failed")
		return
	}

	text = a.applyFilters(text)
	if strings.TrimSpace(text) == "" {
		a.log.Info().Msg("Transcription produced no text")
		if a.status != nil {
			a.status.SetIdle()
		}
		a.notifyUser("VoxPad", "No speech detected")
		return
	}

	if a.cfg.CopyToClipboard {
		if err := a.inj.Deliver(text); err != nil {
			a.log.Error().Err(err).Msg("Failed to deliver transcript")
			if a.status != nil {
				a.status.SetError()
			}
			return
		}
	}

	a.log.Info().Str("text", text).Msg("Transcript ready")
	if a.status != nil {
		a.status.ShowTranscript(text)
		a.status.SetIdle()
	}
	a.notifyUser("VoxPad", text)
}

// dumpClip writes the clip as a WAV file when a dump directory is
// configured, so a bad transcription can be replayed later.
func (a *App) dumpClip(clip []float32) {
	if a.cfg.Audio.DumpDir == "" {
		return
	}
	path := filepath.Join(a.cfg.Audio.DumpDir, "clip-"+time.Now().Format("20060102-150405")+".wav")
	if err := audio.WriteWAV(path, clip, audio.TargetRate); err != nil {
		a.log.Warn().Err(err).Str("path", path).Msg("Failed to dump clip")
		return
	}
	a.log.Debug().Str("path", path).Msg("Clip dumped")
}

func (a *App) applyFilters(text string) string {
	text = strings.TrimSpace(text)
	if len(text) == 0 {
		return text
	}

	// Auto-capitalize first letter
	if text[0] >= 'a' && text[0] <= 'z' {
		text = string(text[0]-32) + text[1:]
	}

	if a.cfg.AppendSpace {
		text += " "
	}

	return text
}

func (a *App) notifyUser(title, message string) {
	if !a.cfg.Notify || a.notify == nil {
		return
	}
	a.notify(title, message)
}

// Shutdown discards any active recording. The clip is intentionally
// not transcribed: the user is quitting, not dictating.
func (a *App) Shutdown(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.dictating {
		a.dictating = false
		if _, err := a.rec.Stop(); err != nil {
			a.log.Warn().Err(err).Msg("Discarding recording on shutdown")
		}
	}
	return nil
}

// Tray actions

func (a *App) SetDevice(id string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.dictating || a.busy {
		return fmt.Errorf("cannot change device while dictating")
	}

	if err := a.rec.SetDevice(id); err != nil {
		return err
	}
	a.cfg.Audio.DeviceID = id
	return a.cfg.Save()
}

// SetModel loads a different whisper model, downloading it first if
// needed. The busy flag is held across the load so a toggle during a
// long download is refused instead of queued.
func (a *App) SetModel(model string) error {
	a.mu.Lock()
	if a.dictating || a.busy {
		a.mu.Unlock()
		return fmt.Errorf("cannot change model while dictating")
	}
	a.busy = true
	a.mu.Unlock()

	err := a.stt.LoadModel(model)

	a.mu.Lock()
	defer a.mu.Unlock()
	a.busy = false
	if err != nil {
		return err
	}
	a.cfg.Whisper.Model = model
	return a.cfg.Save()
}

func (a *App) IsDictating() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.dictating
}

func (a *App) ListDevices() ([]audio.Device, error) {
	return a.rec.Devices()
}

package whisper

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"

	whisperlib "github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"
	"github.com/rs/zerolog"

	"github.com/voxpad/voxpad/internal/config"
)

// Transcriber interface for speech-to-text
type Transcriber interface {
	Transcribe(samples []float32) (string, error)
	LoadModel(name string) error
	Close() error
}

// engine wraps the whisper.cpp bindings. The model is loaded once and
// reused; each Transcribe call gets a fresh context because contexts
// are not safe for concurrent use.
type engine struct {
	mu    sync.Mutex
	model whisperlib.Model
	cfg   config.WhisperConfig
	log   zerolog.Logger
}

// New creates a transcriber and loads the configured model,
// downloading it first if it is not on disk yet.
func New(cfg config.WhisperConfig, log zerolog.Logger) (Transcriber, error) {
	e := &engine{cfg: cfg, log: log}
	if err := e.LoadModel(cfg.Model); err != nil {
		return nil, err
	}
	return e, nil
}

// LoadModel swaps in a different model. The old model is closed only
// after the new one loaded, so a failed swap leaves the engine usable.
func (e *engine) LoadModel(name string) error {
	path := filepath.Join(config.ModelsPath(), modelFile(name))

	// Check if model exists, download if needed
	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := downloadModel(name, path, e.log); err != nil {
			return fmt.Errorf("download model %s: %w", name, err)
		}
	}

	model, err := whisperlib.New(path)
	if err != nil {
		return fmt.Errorf("load model %s: %w", name, err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.model != nil {
		e.model.Close()
	}
	e.model = model
	e.cfg.Model = name
	e.log.Info().Str("model", name).Str("path", path).Msg("Whisper model loaded")
	return nil
}

// Transcribe runs a finished clip through the model and returns the
// joined segment text. The clip must be 16 kHz mono float32.
func (e *engine) Transcribe(samples []float32) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.model == nil {
		return "", errors.New("no model loaded")
	}
	if len(samples) == 0 {
		return "", nil
	}

	wctx, err := e.model.NewContext()
	if err != nil {
		return "", fmt.Errorf("create whisper context: %w", err)
	}

	threads := e.cfg.Threads
	if threads <= 0 {
		threads = runtime.NumCPU()
	}
	wctx.SetThreads(uint(threads))
	wctx.SetTranslate(e.cfg.Translate)

	if lang := e.cfg.Language; lang != "" && lang != "auto" {
		if e.model.IsMultilingual() {
			if err := wctx.SetLanguage(lang); err != nil {
				return "", fmt.Errorf("set language %q: %w", lang, err)
			}
		} else {
			e.log.Warn().Str("language", lang).Msg("Model is English-only, ignoring configured language")
		}
	}

	start := time.Now()
	if err := wctx.Process(samples, nil, nil, nil); err != nil {
		return "", fmt.Errorf("whisper process: %w", err)
	}

	var parts []string
	for {
		segment, err := wctx.NextSegment()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", fmt.Errorf("read segment: %w", err)
		}
		if text := strings.TrimSpace(segment.Text); text != "" {
			parts = append(parts, text)
		}
	}

	text := strings.Join(parts, " ")
	e.log.Info().
		Float64("audio_seconds", float64(len(samples))/float64(whisperlib.SampleRate)).
		Dur("took", time.Since(start)).
		Int("chars", len(text)).
		Msg("Transcription complete")
	return text, nil
}

// Close releases the loaded model.
func (e *engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.model != nil {
		e.model.Close()
		e.model = nil
	}
	return nil
}

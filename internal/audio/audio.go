// Package audio implements the capture side of dictation: a portaudio
// input stream whose callback hands downmixed mono chunks to a worker
// goroutine. The worker accumulates samples between Start and Stop
// commands and, on Stop, returns a finished clip resampled to the rate
// the transcription engine expects and trimmed of leading and trailing
// silence.
package audio

import (
	"errors"
	"time"
)

const (
	// TargetRate is the sample rate of finished clips, fixed by the
	// transcription engine's expected input.
	TargetRate = 16000

	// silenceThreshold is the absolute amplitude below which a sample
	// counts as silence, as a fraction of full scale.
	silenceThreshold = 0.01

	// trimPadding is the number of samples kept on either side of
	// detected speech when trimming, about 0.2 s at TargetRate.
	trimPadding = 3200

	// silenceWindow is how long a recording can stay below the
	// threshold before the worker notes it has gone quiet.
	silenceWindow = 2 * time.Second

	// pollInterval bounds how long the worker waits for the next audio
	// chunk before re-checking its command inbox.
	pollInterval = 50 * time.Millisecond

	// chunkQueueDepth is the capture callback's delivery buffer. At
	// typical hardware buffer sizes this holds several seconds of
	// audio; chunks beyond it are dropped rather than blocking the
	// callback.
	chunkQueueDepth = 64
)

// Recorder errors, matched by callers with errors.Is.
var (
	// ErrNoInputDevice means no usable capture device is present.
	ErrNoInputDevice = errors.New("audio: no input device available")

	// ErrStreamSetup means a device was found but the input stream
	// could not be opened at the target rate or the device default.
	ErrStreamSetup = errors.New("audio: input stream setup failed")

	// ErrWorkerGone means the capture worker exited before a command
	// could be delivered or answered. The recording is lost; callers
	// must not retry automatically.
	ErrWorkerGone = errors.New("audio: capture worker exited unexpectedly")

	// ErrClosed means the recorder was already closed.
	ErrClosed = errors.New("audio: recorder is closed")
)

// Device identifies an input device for selection menus.
type Device struct {
	ID      string
	Name    string
	Default bool
}

// CaptureConfig is the negotiated stream configuration, fixed for the
// lifetime of one stream.
type CaptureConfig struct {
	SampleRate float64
	Channels   int
	Format     string
}

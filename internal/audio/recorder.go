package audio

import (
	"fmt"
	"sync"
	"time"

	"github.com/gordonklaus/portaudio"
	"github.com/rs/zerolog"
)

type cmdKind int

const (
	cmdStart cmdKind = iota
	cmdStop
	cmdShutdown
)

// command is a worker inbox message. Stop carries the reply channel
// its issuer blocks on; the channel is buffered so the worker's single
// send can never block, even if the issuer is gone.
type command struct {
	kind  cmdKind
	reply chan []float32
}

// chunkSource is what the worker consumes: downmixed mono chunks plus
// the negotiated configuration. *captureStream implements it; tests
// substitute their own.
type chunkSource interface {
	Chunks() <-chan []float32
	Config() CaptureConfig
	Close() error
}

// Recorder owns the capture stream and its worker goroutine. Both are
// created on the first Start and persist across Start/Stop cycles
// until Close or SetDevice tears them down; recreating the device
// stream per recording would add latency for no benefit.
//
// Start, Stop, SetDevice, Devices and Close may be called from any
// goroutine. All recording state lives in the worker, reached only
// through its command channel; Stop is the sole blocking call, bounded
// by the worker's poll interval.
type Recorder struct {
	log zerolog.Logger

	mu       sync.Mutex
	deviceID string
	cmds     chan command
	done     chan struct{}
	closed   bool

	// open is swapped for a fake in tests; release gives back the
	// portaudio runtime on Close and is nil unless NewRecorder
	// initialized it.
	open    func(deviceID string, log zerolog.Logger) (chunkSource, error)
	release func() error
}

// NewRecorder initializes portaudio and returns a recorder bound to
// the configured device id (empty means the system default).
func NewRecorder(deviceID string, log zerolog.Logger) (*Recorder, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("initialize portaudio: %w", err)
	}
	return &Recorder{
		log:      log,
		deviceID: deviceID,
		open:     defaultOpenStream,
		release:  portaudio.Terminate,
	}, nil
}

func defaultOpenStream(deviceID string, log zerolog.Logger) (chunkSource, error) {
	cs, err := openCaptureStream(deviceID, log)
	if err != nil {
		return nil, err
	}
	return cs, nil
}

// Start begins accumulating audio, creating the stream and worker on
// first use. A Start while already recording restarts from an empty
// accumulator.
func (r *Recorder) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return ErrClosed
	}
	if r.cmds == nil {
		source, err := r.open(r.deviceID, r.log)
		if err != nil {
			return err
		}
		r.cmds = make(chan command)
		r.done = make(chan struct{})
		w := &worker{
			source: source,
			cmds:   r.cmds,
			done:   r.done,
			log:    r.log.With().Str("component", "capture").Logger(),
		}
		go w.run()
	}
	return r.deliverLocked(command{kind: cmdStart})
}

// Stop ends the current recording and returns the finished clip,
// resampled to TargetRate and trimmed of silence. A Stop before any
// Start, or over a silent recording, returns an empty clip and no
// error.
func (r *Recorder) Stop() ([]float32, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil, ErrClosed
	}
	if r.cmds == nil {
		return nil, nil
	}

	reply := make(chan []float32, 1)
	if err := r.deliverLocked(command{kind: cmdStop, reply: reply}); err != nil {
		return nil, err
	}
	select {
	case clip := <-reply:
		return clip, nil
	case <-r.done:
		// The reply may have raced with the worker exiting.
		select {
		case clip := <-reply:
			return clip, nil
		default:
		}
		return nil, ErrWorkerGone
	}
}

// SetDevice selects the capture device for future recordings. Any
// existing stream is torn down; the next Start rebuilds it lazily.
func (r *Recorder) SetDevice(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return ErrClosed
	}
	r.deviceID = id
	r.shutdownWorkerLocked()
	return nil
}

// Devices lists input-capable devices for the selection menu.
func (r *Recorder) Devices() ([]Device, error) {
	devices, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("enumerate devices: %w", err)
	}
	def, _ := portaudio.DefaultInputDevice()

	out := make([]Device, 0, len(devices))
	for _, d := range devices {
		if d.MaxInputChannels > 0 {
			out = append(out, Device{ID: d.Name, Name: d.Name, Default: d == def})
		}
	}
	return out, nil
}

// Close shuts down the worker, releases the stream and gives back the
// portaudio runtime. The recorder cannot be reused afterwards; Close
// is idempotent.
func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil
	}
	r.closed = true
	r.shutdownWorkerLocked()
	if r.release != nil {
		return r.release()
	}
	return nil
}

// deliverLocked hands a command to the worker, failing if the worker
// has exited. The worker drains its inbox at least once per poll
// interval, so delivery blocks only briefly.
func (r *Recorder) deliverLocked(cmd command) error {
	select {
	case r.cmds <- cmd:
		return nil
	case <-r.done:
		return ErrWorkerGone
	}
}

// shutdownWorkerLocked asks the worker to exit and waits for it to
// release the stream.
func (r *Recorder) shutdownWorkerLocked() {
	if r.cmds == nil {
		return
	}
	select {
	case r.cmds <- command{kind: cmdShutdown}:
	case <-r.done:
	}
	<-r.done
	r.cmds = nil
	r.done = nil
}

// accumSeconds sizes the accumulator's initial capacity, in seconds of
// audio at the device rate.
const accumSeconds = 30

// worker is the single goroutine owning all recording state. Each loop
// iteration drains at most one command, then waits up to pollInterval
// for the next audio chunk, so commands are serviced with sub-poll
// latency even under continuous capture.
type worker struct {
	source chunkSource
	cmds   <-chan command
	done   chan struct{}
	log    zerolog.Logger

	recording   bool
	acc         []float32
	lastSpeech  time.Time
	quietLogged bool
}

func (w *worker) run() {
	defer close(w.done)
	defer w.source.Close()

	cfg := w.source.Config()
	w.acc = make([]float32, 0, int(cfg.SampleRate)*accumSeconds)

	timer := time.NewTimer(pollInterval)
	defer timer.Stop()

	for {
		select {
		case cmd := <-w.cmds:
			if !w.apply(cmd, cfg) {
				return
			}
		default:
		}

		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(pollInterval)

		select {
		case chunk, ok := <-w.source.Chunks():
			if !ok {
				// Capture source disappeared out from under us.
				w.log.Warn().Msg("Capture stream ended, worker exiting")
				return
			}
			if w.recording {
				w.accumulate(chunk)
			}
		case <-timer.C:
		}
	}
}

// apply executes one command, returning false when the worker must
// exit. A queued Stop that is never drained before Shutdown keeps its
// reply unfulfilled; the issuer observes the worker's exit instead.
func (w *worker) apply(cmd command, cfg CaptureConfig) bool {
	switch cmd.kind {
	case cmdStart:
		// Last Start wins: restarting mid-recording drops whatever
		// was accumulated so far.
		w.acc = w.acc[:0]
		w.recording = true
		w.lastSpeech = time.Now()
		w.quietLogged = false
		w.log.Info().Float64("sample_rate", cfg.SampleRate).Msg("Recording started")
	case cmdStop:
		w.recording = false
		clip := w.finish(cfg)
		cmd.reply <- clip
		w.log.Info().
			Int("raw_samples", len(w.acc)).
			Int("clip_samples", len(clip)).
			Msg("Recording stopped")
		w.acc = w.acc[:0]
	case cmdShutdown:
		w.log.Debug().Msg("Capture worker shutting down")
		return false
	}
	return true
}

// accumulate appends a chunk and tracks when the input last crossed
// the silence threshold.
func (w *worker) accumulate(chunk []float32) {
	w.acc = append(w.acc, chunk...)

	loud := false
	for _, s := range chunk {
		if abs(s) > silenceThreshold {
			loud = true
			break
		}
	}
	now := time.Now()
	if loud {
		w.lastSpeech = now
		w.quietLogged = false
	} else if !w.quietLogged && now.Sub(w.lastSpeech) >= silenceWindow {
		w.quietLogged = true
		w.log.Debug().Dur("quiet_for", now.Sub(w.lastSpeech)).Msg("Recording has gone quiet")
	}
}

// finish produces the caller-ready clip: the accumulated samples,
// resampled to TargetRate when the device rate differs, then trimmed
// of silence. The result never aliases the accumulator, which is
// reused by the next recording.
func (w *worker) finish(cfg CaptureConfig) []float32 {
	var samples []float32
	if cfg.SampleRate != TargetRate {
		samples = Resample(w.acc, cfg.SampleRate, TargetRate)
	} else {
		samples = append([]float32(nil), w.acc...)
	}
	return TrimSilence(samples, silenceThreshold, trimPadding)
}

package audio

import (
	"fmt"
	"sync"

	"github.com/gordonklaus/portaudio"
	"github.com/rs/zerolog"
)

// captureStream owns one portaudio input stream and the channel its
// callback delivers downmixed chunks on.
type captureStream struct {
	stream *portaudio.Stream
	cfg    CaptureConfig
	chunks chan []float32
	log    zerolog.Logger

	closeOnce sync.Once
}

// openCaptureStream resolves the input device, negotiates a stream
// configuration and starts the callback stream. The target rate is
// tried first so most recordings need no resampling; if the device
// refuses it, the device default rate is used and the worker resamples
// on Stop.
func openCaptureStream(deviceID string, log zerolog.Logger) (*captureStream, error) {
	device, err := findInputDevice(deviceID, log)
	if err != nil {
		return nil, err
	}
	channels := device.MaxInputChannels

	cs := &captureStream{
		chunks: make(chan []float32, chunkQueueDepth),
		log:    log,
	}

	// Runs on the audio backend's thread once per hardware buffer.
	// Never blocks: a chunk the worker has not drained in time is
	// dropped.
	callback := func(in []float32) {
		chunk := downmixInterleaved(in, channels, len(in)/channels)
		select {
		case cs.chunks <- chunk:
		default:
		}
	}

	open := func(rate float64) (*portaudio.Stream, error) {
		return portaudio.OpenStream(portaudio.StreamParameters{
			Input: portaudio.StreamDeviceParameters{
				Device:   device,
				Channels: channels,
				Latency:  device.DefaultLowInputLatency,
			},
			SampleRate:      rate,
			FramesPerBuffer: portaudio.FramesPerBufferUnspecified,
		}, callback)
	}

	rate := float64(TargetRate)
	stream, err := open(rate)
	if err != nil {
		rate = device.DefaultSampleRate
		stream, err = open(rate)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStreamSetup, err)
	}

	if err := stream.Start(); err != nil {
		stream.Close()
		return nil, fmt.Errorf("%w: %w", ErrStreamSetup, err)
	}

	cs.stream = stream
	cs.cfg = CaptureConfig{SampleRate: rate, Channels: channels, Format: "float32"}

	log.Info().
		Str("device", device.Name).
		Float64("sample_rate", rate).
		Int("channels", channels).
		Str("format", cs.cfg.Format).
		Msg("Capture stream started")

	return cs, nil
}

// Chunks is the delivery channel. It is closed by Close once no
// further callback can run.
func (cs *captureStream) Chunks() <-chan []float32 { return cs.chunks }

// Config reports the negotiated stream configuration.
func (cs *captureStream) Config() CaptureConfig { return cs.cfg }

// Close stops and releases the stream. portaudio guarantees the
// callback is no longer running once the stream is closed, so closing
// the chunk channel afterwards cannot race a send.
func (cs *captureStream) Close() error {
	var err error
	cs.closeOnce.Do(func() {
		if stopErr := cs.stream.Stop(); stopErr != nil {
			err = stopErr
		}
		if closeErr := cs.stream.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
		close(cs.chunks)
		cs.log.Debug().Msg("Capture stream closed")
	})
	return err
}

// findInputDevice resolves a configured device name, falling back to
// the system default input. An empty id always means the default; a
// name that no longer matches any device (unplugged since it was
// configured) falls back with a warning instead of failing the
// recording.
func findInputDevice(id string, log zerolog.Logger) (*portaudio.DeviceInfo, error) {
	if id != "" {
		devices, err := portaudio.Devices()
		if err != nil {
			return nil, fmt.Errorf("enumerate devices: %w", err)
		}
		for _, d := range devices {
			if d.Name == id && d.MaxInputChannels > 0 {
				return d, nil
			}
		}
		log.Warn().Str("device", id).Msg("Configured device not found, using default input")
	}

	device, err := portaudio.DefaultInputDevice()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNoInputDevice, err)
	}
	if device == nil || device.MaxInputChannels < 1 {
		return nil, ErrNoInputDevice
	}
	return device, nil
}

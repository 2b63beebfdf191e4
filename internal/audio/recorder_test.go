package audio

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

// fakeSource stands in for the portaudio stream: tests feed chunks
// directly and observe Close. The chunk channel is unbuffered so a
// completed send means the worker has taken the chunk.
type fakeSource struct {
	chunks chan []float32
	cfg    CaptureConfig

	mu     sync.Mutex
	closed bool
}

func newFakeSource(rate float64) *fakeSource {
	return &fakeSource{
		chunks: make(chan []float32),
		cfg:    CaptureConfig{SampleRate: rate, Channels: 1, Format: "float32"},
	}
}

func (f *fakeSource) Chunks() <-chan []float32 { return f.chunks }

func (f *fakeSource) Config() CaptureConfig { return f.cfg }

func (f *fakeSource) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.closed {
		f.closed = true
		close(f.chunks)
	}
	return nil
}

func (f *fakeSource) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func testRecorder(open func(string, zerolog.Logger) (chunkSource, error)) *Recorder {
	return &Recorder{log: zerolog.Nop(), open: open}
}

// feed delivers samples to the worker in fixed-size chunks, returning
// once the worker has taken them all.
func feed(t *testing.T, src *fakeSource, samples []float32, chunkSize int) {
	t.Helper()
	for start := 0; start < len(samples); start += chunkSize {
		end := start + chunkSize
		if end > len(samples) {
			end = len(samples)
		}
		chunk := make([]float32, end-start)
		copy(chunk, samples[start:end])
		select {
		case src.chunks <- chunk:
		case <-time.After(2 * time.Second):
			t.Fatal("worker did not accept a chunk within 2s")
		}
	}
}

func TestStopBeforeStartReturnsEmpty(t *testing.T) {
	opened := false
	r := testRecorder(func(string, zerolog.Logger) (chunkSource, error) {
		opened = true
		return newFakeSource(TargetRate), nil
	})

	clip, err := r.Stop()
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(clip) != 0 {
		t.Fatalf("expected empty clip, got %d samples", len(clip))
	}
	if opened {
		t.Fatal("expected Stop before Start to leave the stream unopened")
	}
}

func TestRecordAtTargetRateTrimsSilence(t *testing.T) {
	src := newFakeSource(TargetRate)
	r := testRecorder(func(string, zerolog.Logger) (chunkSource, error) { return src, nil })
	defer r.Close()

	if err := r.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}

	samples := make([]float32, 18000)
	for i := 5000; i < 13000; i++ {
		samples[i] = 0.5
	}
	feed(t, src, samples, 1600)

	clip, err := r.Stop()
	if err != nil {
		t.Fatalf("stop: %v", err)
	}

	wantLen := (12999 + trimPadding) - (5000 - trimPadding)
	if len(clip) != wantLen {
		t.Fatalf("expected %d samples, got %d", wantLen, len(clip))
	}
	if clip[0] != 0 {
		t.Fatalf("expected leading guard padding to be silence, got %f", clip[0])
	}
	if clip[trimPadding] != 0.5 {
		t.Fatalf("expected speech onset at offset %d, got %f", trimPadding, clip[trimPadding])
	}
}

func TestRecordSilenceReturnsEmpty(t *testing.T) {
	src := newFakeSource(TargetRate)
	r := testRecorder(func(string, zerolog.Logger) (chunkSource, error) { return src, nil })
	defer r.Close()

	if err := r.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}

	// Half a second of nothing but room tone.
	feed(t, src, make([]float32, 8000), 800)

	clip, err := r.Stop()
	if err != nil {
		t.Fatalf("stop: %v", err)
	}
	if len(clip) != 0 {
		t.Fatalf("expected silent recording to produce an empty clip, got %d samples", len(clip))
	}
}

func TestRestartDiscardsEarlierSamples(t *testing.T) {
	src := newFakeSource(TargetRate)
	r := testRecorder(func(string, zerolog.Logger) (chunkSource, error) { return src, nil })
	defer r.Close()

	if err := r.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	loud := make([]float32, 4000)
	for i := range loud {
		loud[i] = 0.9
	}
	feed(t, src, loud, 400)

	// A second Start restarts from an empty accumulator.
	if err := r.Start(); err != nil {
		t.Fatalf("restart: %v", err)
	}
	feed(t, src, make([]float32, 1000), 100)

	clip, err := r.Stop()
	if err != nil {
		t.Fatalf("stop: %v", err)
	}
	if len(clip) != 0 {
		t.Fatalf("expected restart to discard earlier samples, got %d samples", len(clip))
	}
}

func TestStopResamplesDeviceRate(t *testing.T) {
	src := newFakeSource(48000)
	r := testRecorder(func(string, zerolog.Logger) (chunkSource, error) { return src, nil })
	defer r.Close()

	if err := r.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}

	tone := make([]float32, 48000)
	for i := range tone {
		tone[i] = 0.5
	}
	feed(t, src, tone, 4800)

	clip, err := r.Stop()
	if err != nil {
		t.Fatalf("stop: %v", err)
	}
	if len(clip) != 16000 {
		t.Fatalf("expected one second at the target rate (16000 samples), got %d", len(clip))
	}
	for _, i := range []int{0, 1, 7999, 15998, 15999} {
		if clip[i] != 0.5 {
			t.Fatalf("sample %d: expected 0.5, got %f", i, clip[i])
		}
	}
}

func TestStopTwiceSecondIsEmpty(t *testing.T) {
	src := newFakeSource(TargetRate)
	r := testRecorder(func(string, zerolog.Logger) (chunkSource, error) { return src, nil })
	defer r.Close()

	if err := r.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	loud := make([]float32, 8000)
	for i := range loud {
		loud[i] = 0.5
	}
	feed(t, src, loud, 800)

	first, err := r.Stop()
	if err != nil {
		t.Fatalf("first stop: %v", err)
	}
	if len(first) == 0 {
		t.Fatal("expected first stop to return samples")
	}

	second, err := r.Stop()
	if err != nil {
		t.Fatalf("second stop: %v", err)
	}
	if len(second) != 0 {
		t.Fatalf("expected second stop to return an empty clip, got %d samples", len(second))
	}
}

func TestStopWhileAudioStreaming(t *testing.T) {
	src := newFakeSource(TargetRate)
	r := testRecorder(func(string, zerolog.Logger) (chunkSource, error) { return src, nil })

	if err := r.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}

	stopFeeding := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		chunk := make([]float32, 800)
		for i := range chunk {
			chunk[i] = 0.5
		}
		for {
			select {
			case src.chunks <- chunk:
			case <-stopFeeding:
				return
			}
		}
	}()

	time.Sleep(120 * time.Millisecond)

	begin := time.Now()
	clip, err := r.Stop()
	elapsed := time.Since(begin)

	close(stopFeeding)
	wg.Wait()

	if err != nil {
		t.Fatalf("stop: %v", err)
	}
	if len(clip) == 0 {
		t.Fatal("expected samples accumulated while audio was streaming")
	}
	if elapsed > time.Second {
		t.Fatalf("stop took %v under continuous audio, expected a prompt reply", elapsed)
	}

	r.Close()
}

func TestWorkerExitsWhenSourceCloses(t *testing.T) {
	src := newFakeSource(TargetRate)
	r := testRecorder(func(string, zerolog.Logger) (chunkSource, error) { return src, nil })
	defer r.Close()

	if err := r.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	src.Close()

	var lastErr error
	for i := 0; i < 100; i++ {
		_, lastErr = r.Stop()
		if errors.Is(lastErr, ErrWorkerGone) {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if !errors.Is(lastErr, ErrWorkerGone) {
		t.Fatalf("expected worker-gone error after the source closed, got %v", lastErr)
	}
}

func TestCloseShutsDownWorker(t *testing.T) {
	src := newFakeSource(TargetRate)
	released := 0
	r := testRecorder(func(string, zerolog.Logger) (chunkSource, error) { return src, nil })
	r.release = func() error {
		released++
		return nil
	}

	if err := r.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := r.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	if !src.isClosed() {
		t.Fatal("expected the stream to be closed with the worker")
	}
	if released != 1 {
		t.Fatalf("expected portaudio to be released once, got %d", released)
	}

	if err := r.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
	if released != 1 {
		t.Fatalf("expected idempotent close, release count %d", released)
	}

	if err := r.Start(); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed from Start after Close, got %v", err)
	}
	if _, err := r.Stop(); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed from Stop after Close, got %v", err)
	}
}

func TestLazyStreamPersistsAcrossCycles(t *testing.T) {
	opens := 0
	src := newFakeSource(TargetRate)
	r := testRecorder(func(string, zerolog.Logger) (chunkSource, error) {
		opens++
		return src, nil
	})
	defer r.Close()

	if err := r.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := r.Stop(); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if err := r.Start(); err != nil {
		t.Fatalf("second start: %v", err)
	}

	if opens != 1 {
		t.Fatalf("expected the stream to be opened once and reused, got %d opens", opens)
	}
}

func TestSetDeviceRebuildsStream(t *testing.T) {
	sources := []*fakeSource{newFakeSource(TargetRate), newFakeSource(TargetRate)}
	var devices []string
	opens := 0
	r := testRecorder(func(id string, _ zerolog.Logger) (chunkSource, error) {
		devices = append(devices, id)
		s := sources[opens]
		opens++
		return s, nil
	})
	defer r.Close()

	if err := r.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := r.SetDevice("usb mic"); err != nil {
		t.Fatalf("set device: %v", err)
	}
	if !sources[0].isClosed() {
		t.Fatal("expected the old stream to be torn down on device change")
	}

	if err := r.Start(); err != nil {
		t.Fatalf("start after device change: %v", err)
	}
	if opens != 2 {
		t.Fatalf("expected a second open after the device change, got %d", opens)
	}
	if devices[1] != "usb mic" {
		t.Fatalf("expected the new device id to be used, got %q", devices[1])
	}
}

func TestStartReturnsOpenError(t *testing.T) {
	calls := 0
	r := testRecorder(func(string, zerolog.Logger) (chunkSource, error) {
		calls++
		return nil, ErrNoInputDevice
	})

	if err := r.Start(); !errors.Is(err, ErrNoInputDevice) {
		t.Fatalf("expected ErrNoInputDevice, got %v", err)
	}
	// A failed lazy init leaves no worker behind: the next Start
	// retries the open.
	if err := r.Start(); !errors.Is(err, ErrNoInputDevice) {
		t.Fatalf("expected ErrNoInputDevice on retry, got %v", err)
	}
	if calls != 2 {
		t.Fatalf("expected two open attempts, got %d", calls)
	}
}

func TestShutdownLeavesQueuedStopUnanswered(t *testing.T) {
	src := newFakeSource(TargetRate)
	cmds := make(chan command, 2)
	done := make(chan struct{})
	w := &worker{source: src, cmds: cmds, done: done, log: zerolog.Nop()}

	reply := make(chan []float32, 1)
	cmds <- command{kind: cmdShutdown}
	cmds <- command{kind: cmdStop, reply: reply}

	go w.run()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not exit after shutdown")
	}

	select {
	case clip := <-reply:
		t.Fatalf("expected the queued stop to go unanswered, got %d samples", len(clip))
	default:
	}
	if !src.isClosed() {
		t.Fatal("expected the source to be closed on worker exit")
	}
}

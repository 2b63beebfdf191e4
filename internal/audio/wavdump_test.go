package audio

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/go-audio/wav"
)

func TestWriteWAVRoundTrip(t *testing.T) {
	samples := []float32{0, 0.5, -0.25, 1, -1, 2, -2}
	path := filepath.Join(t.TempDir(), "clips", "take1.wav")

	if err := WriteWAV(path, samples, TargetRate); err != nil {
		t.Fatalf("write wav: %v", err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open wav: %v", err)
	}
	defer f.Close()

	dec := wav.NewDecoder(f)
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		t.Fatalf("decode wav: %v", err)
	}

	if buf.Format.NumChannels != 1 {
		t.Fatalf("expected mono, got %d channels", buf.Format.NumChannels)
	}
	if buf.Format.SampleRate != TargetRate {
		t.Fatalf("expected sample rate %d, got %d", TargetRate, buf.Format.SampleRate)
	}

	// Out-of-range samples clamp to full scale rather than wrapping.
	want := []int{0, 16383, -8191, 32767, -32767, 32767, -32767}
	if len(buf.Data) != len(want) {
		t.Fatalf("expected %d samples, got %d", len(want), len(buf.Data))
	}
	for i, w := range want {
		if buf.Data[i] != w {
			t.Fatalf("sample %d: expected %d, got %d", i, w, buf.Data[i])
		}
	}
}

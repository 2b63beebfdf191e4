package audio

// downmixInterleaved folds an interleaved multi-channel buffer into
// mono, one arithmetic-mean sample per frame. The result is always a
// fresh slice: the input belongs to the audio backend and must not be
// retained past the callback.
func downmixInterleaved(in []float32, channels, frames int) []float32 {
	out := make([]float32, frames)
	if channels == 1 {
		copy(out, in)
		return out
	}
	for f := 0; f < frames; f++ {
		var sum float32
		base := f * channels
		for c := 0; c < channels; c++ {
			sum += in[base+c]
		}
		out[f] = sum / float32(channels)
	}
	return out
}

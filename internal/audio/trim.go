package audio

// TrimSilence strips leading and trailing silence from a clip, keeping
// padding samples of context on either side of the first and last
// sample whose magnitude exceeds threshold. A clip with no sample
// above threshold, or with only a single one, trims to nothing. The
// result aliases the input's backing array; callers hand over
// ownership of in.
func TrimSilence(in []float32, threshold float32, padding int) []float32 {
	first, last := -1, -1
	for i, s := range in {
		if abs(s) > threshold {
			if first < 0 {
				first = i
			}
			last = i
		}
	}
	if first < 0 || first >= last {
		return nil
	}

	start := first - padding
	if start < 0 {
		start = 0
	}
	end := last + padding
	if end > len(in) {
		end = len(in)
	}
	return in[start:end]
}

func abs(x float32) float32 {
	if x < 0 {
		return -x
	}
	return x
}

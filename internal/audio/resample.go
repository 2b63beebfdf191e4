package audio

// Resample converts mono samples from inRate to outRate by linear
// interpolation. When the rates match (or either rate is invalid) the
// input is returned unchanged. The output length is
// floor(len(in) / (inRate/outRate)); each output sample is
// interpolated between the two nearest input samples at its fractional
// source position, with the upper neighbor clamped to the final input
// sample.
func Resample(in []float32, inRate, outRate float64) []float32 {
	if inRate == outRate || inRate <= 0 || outRate <= 0 || len(in) == 0 {
		return in
	}

	ratio := inRate / outRate
	out := make([]float32, int(float64(len(in))/ratio))
	for i := range out {
		pos := float64(i) * ratio
		j := int(pos)
		k := j + 1
		if k >= len(in) {
			k = len(in) - 1
		}
		frac := float32(pos - float64(j))
		out[i] = in[j] + (in[k]-in[j])*frac
	}
	return out
}

package audio

// Downmix averages interleaved channels into a freshly allocated mono slice.
// A trailing partial frame is ignored.
func Downmix(samples []float32, channels int) []float32 {
	if channels <= 0 {
		channels = 1
	}
	return downmixInterleaved(samples, channels, len(samples)/channels)
}

func downmixInterleaved(input []float32, channels, frames int) []float32 {
	out := make([]float32, frames)
	if channels == 1 {
		copy(out, input[:frames])
		return out
	}
	if channels == 2 {
		for i := range frames {
			out[i] = (input[2*i] + input[2*i+1]) / 2
		}
		return out
	}
	for i := range frames {
		var sum float32
		base := i * channels
		for c := range channels {
			sum += input[base+c]
		}
		out[i] = sum / float32(channels)
	}
	return out
}

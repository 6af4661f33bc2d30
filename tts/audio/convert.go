package audio

import "github.com/dgnsrekt/chunkvoice/tts"

// Convert resamples buf to the rate of to and spreads it across to.Channels,
// returning interleaved samples. Resampling is linear.
func Convert(buf tts.AudioBuffer, to tts.Format) []float32 {
	mono := buf.Samples
	if buf.SampleRate > 0 && to.SampleRate > 0 && buf.SampleRate != to.SampleRate {
		mono = resample(mono, buf.SampleRate, to.SampleRate)
	}

	channels := max(1, to.Channels)
	if channels == 1 {
		return mono
	}
	out := make([]float32, len(mono)*channels)
	for i, s := range mono {
		for c := range channels {
			out[i*channels+c] = s
		}
	}
	return out
}

func resample(in []float32, from, to int) []float32 {
	if len(in) == 0 {
		return nil
	}
	n := int(int64(len(in)) * int64(to) / int64(from))
	if n == 0 {
		return nil
	}

	out := make([]float32, n)
	step := float64(from) / float64(to)
	last := len(in) - 1
	for i := range out {
		pos := float64(i) * step
		j := int(pos)
		if j >= last {
			out[i] = in[last]
			continue
		}
		frac := float32(pos - float64(j))
		out[i] = in[j] + (in[j+1]-in[j])*frac
	}
	return out
}

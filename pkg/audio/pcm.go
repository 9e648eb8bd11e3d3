// Package audio provides the PCM primitives shared by the segment recorder
// and the speech-to-text providers: chunk energy measurement for the VAD gate,
// sample conversions, and WAV file encode/decode.
//
// All byte-level PCM in this package is 16-bit signed little-endian.
package audio

import "math"

// BytesPerSample is the width of one int16 PCM sample.
const BytesPerSample = 2

// RMS computes the root-mean-square energy of an int16 PCM chunk, normalized
// to [0,1] by the int16 full scale. An empty or odd-length chunk yields 0.
func RMS(pcm []byte) float64 {
	n := len(pcm) / BytesPerSample
	if n == 0 {
		return 0
	}
	var sum float64
	for i := 0; i < n*BytesPerSample; i += BytesPerSample {
		s := float64(int16(pcm[i]) | int16(pcm[i+1])<<8)
		sum += s * s
	}
	return math.Sqrt(sum/float64(n)) / 32768
}

// Samples decodes int16 PCM bytes into samples. A trailing odd byte is ignored.
func Samples(pcm []byte) []int16 {
	n := len(pcm) / BytesPerSample
	out := make([]int16, n)
	for i := range out {
		out[i] = int16(pcm[i*BytesPerSample]) | int16(pcm[i*BytesPerSample+1])<<8
	}
	return out
}

// Bytes encodes int16 samples as little-endian PCM bytes.
func Bytes(samples []int16) []byte {
	out := make([]byte, len(samples)*BytesPerSample)
	for i, s := range samples {
		out[i*BytesPerSample] = byte(s)
		out[i*BytesPerSample+1] = byte(s >> 8)
	}
	return out
}

// Float32Samples converts int16 PCM bytes to float32 samples in [-1,1],
// the input format expected by whisper-family models.
func Float32Samples(pcm []byte) []float32 {
	n := len(pcm) / BytesPerSample
	out := make([]float32, n)
	for i := range out {
		s := int16(pcm[i*BytesPerSample]) | int16(pcm[i*BytesPerSample+1])<<8
		out[i] = float32(s) / 32768
	}
	return out
}

// Duration returns the playback length in seconds of a PCM byte buffer.
func Duration(pcm []byte, sampleRate, channels int) float64 {
	if sampleRate <= 0 || channels <= 0 {
		return 0
	}
	return float64(len(pcm)/BytesPerSample) / float64(sampleRate*channels)
}

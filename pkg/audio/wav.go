package audio

import (
	"errors"
	"fmt"
	"math"
	"os"

	gaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// WriteWAV writes int16 PCM bytes as a RIFF/WAV file (16-bit PCM). The file
// is created atomically enough for downstream consumers: it is fully written
// and closed before WriteWAV returns.
func WriteWAV(path string, pcm []byte, sampleRate, channels int) error {
	if sampleRate <= 0 || channels <= 0 {
		return fmt.Errorf("write wav %s: invalid format %dHz/%dch", path, sampleRate, channels)
	}
	fh, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("write wav: %w", err)
	}

	enc := wav.NewEncoder(fh, sampleRate, 16, channels, 1)
	samples := Samples(pcm)
	buf := &gaudio.IntBuffer{
		Format:         &gaudio.Format{NumChannels: channels, SampleRate: sampleRate},
		Data:           make([]int, len(samples)),
		SourceBitDepth: 16,
	}
	for i, s := range samples {
		buf.Data[i] = int(s)
	}
	if err := enc.Write(buf); err != nil {
		enc.Close()
		fh.Close()
		return fmt.Errorf("write wav %s: %w", path, err)
	}
	if err := enc.Close(); err != nil {
		fh.Close()
		return fmt.Errorf("finalize wav %s: %w", path, err)
	}
	return fh.Close()
}

// ReadWAVFloat32Mono reads a WAV file and returns mono PCM as float32 samples
// in [-1,1] at the requested sample rate. Inputs with any source rate and one
// or two channels are converted: stereo is mixed down, rate changes use linear
// interpolation (adequate for speech).
func ReadWAVFloat32Mono(path string, outRate int) ([]float32, error) {
	fh, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer fh.Close()

	dec := wav.NewDecoder(fh)
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("decode wav %s: %w", path, err)
	}
	if buf == nil || buf.Data == nil {
		return nil, errors.New("invalid or empty wav data")
	}

	inRate := int(dec.SampleRate)
	chans := int(dec.NumChans)
	if inRate <= 0 {
		return nil, errors.New("invalid sample rate")
	}
	if chans != 1 && chans != 2 {
		return nil, fmt.Errorf("unsupported channel count %d", chans)
	}

	mono := make([]float64, 0, len(buf.Data))
	if chans == 2 {
		for i := 0; i+1 < len(buf.Data); i += 2 {
			l := clampUnit(float64(buf.Data[i]) / float64(1<<15))
			r := clampUnit(float64(buf.Data[i+1]) / float64(1<<15))
			mono = append(mono, 0.5*(l+r))
		}
	} else {
		for _, v := range buf.Data {
			mono = append(mono, clampUnit(float64(v)/float64(1<<15)))
		}
	}

	if inRate != outRate && outRate > 0 {
		ratio := float64(outRate) / float64(inRate)
		outLen := int(math.Ceil(float64(len(mono)) * ratio))
		res := make([]float64, outLen)
		for i := range res {
			srcPos := float64(i) / ratio
			j := int(math.Floor(srcPos))
			t := srcPos - float64(j)
			if j+1 < len(mono) {
				res[i] = (1-t)*mono[j] + t*mono[j+1]
			} else if j < len(mono) {
				res[i] = mono[j]
			}
		}
		mono = res
	}

	out := make([]float32, len(mono))
	for i := range mono {
		out[i] = float32(mono[i])
	}
	return out, nil
}

func clampUnit(v float64) float64 {
	if v > 1 {
		return 1
	}
	if v < -1 {
		return -1
	}
	return v
}

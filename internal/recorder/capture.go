package recorder

import (
	"fmt"
	"sync"

	"github.com/gordonklaus/portaudio"

	"github.com/quonset/squawkbox/pkg/audio"
)

// CaptureSource reads chunks from the default system audio input via
// PortAudio. Used for monitoring a local scanner or SDR feed instead
// of an HTTP stream.
type CaptureSource struct {
	stream *portaudio.Stream
	in     []int16

	closeOnce sync.Once
	closeErr  error
}

// NewCaptureSource opens the default input device at the given mono
// sample rate and starts the stream.
func NewCaptureSource(sampleRate int) (*CaptureSource, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("capture: initialize portaudio: %w", err)
	}
	in := make([]int16, ChunkSamples)
	stream, err := portaudio.OpenDefaultStream(1, 0, float64(sampleRate), len(in), in)
	if err != nil {
		portaudio.Terminate()
		return nil, fmt.Errorf("capture: open input stream: %w", err)
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		portaudio.Terminate()
		return nil, fmt.Errorf("capture: start input stream: %w", err)
	}
	return &CaptureSource{stream: stream, in: in}, nil
}

// Next blocks until a full chunk has been captured.
func (s *CaptureSource) Next() ([]byte, error) {
	if err := s.stream.Read(); err != nil {
		return nil, fmt.Errorf("capture: read: %w", err)
	}
	return audio.Bytes(s.in), nil
}

// Close stops the stream and shuts PortAudio down.
func (s *CaptureSource) Close() error {
	s.closeOnce.Do(func() {
		s.stream.Stop()
		s.closeErr = s.stream.Close()
		portaudio.Terminate()
	})
	return s.closeErr
}

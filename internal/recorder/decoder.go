package recorder

import (
	"fmt"
	"io"
	"os/exec"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/quonset/squawkbox/pkg/audio"
)

// killGrace is how long the decoder gets to exit after SIGTERM before
// it is killed.
const killGrace = 2 * time.Second

// DecoderSource runs an external stream decoder (ffmpeg by default)
// that fetches a compressed HTTP audio stream and emits raw int16 PCM
// on stdout. One decoder process serves one channel.
type DecoderSource struct {
	cmd    *exec.Cmd
	stdout io.ReadCloser
	buf    []byte

	waitOnce sync.Once
	waitErr  error

	closing   atomic.Bool
	closeOnce sync.Once
}

// NewDecoderSource starts the decoder process for streamURL. command
// is the decoder binary; empty means "ffmpeg".
func NewDecoderSource(command, streamURL string, sampleRate, channels int) (*DecoderSource, error) {
	if command == "" {
		command = "ffmpeg"
	}
	cmd := exec.Command(command,
		"-i", streamURL,
		"-f", "s16le",
		"-acodec", "pcm_s16le",
		"-ar", fmt.Sprintf("%d", sampleRate),
		"-ac", fmt.Sprintf("%d", channels),
		"-loglevel", "quiet",
		"-",
	)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("decoder: stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("decoder: start %s: %w", command, err)
	}
	return &DecoderSource{
		cmd:    cmd,
		stdout: stdout,
		buf:    make([]byte, ChunkSamples*audio.BytesPerSample*channels),
	}, nil
}

// Next reads one PCM chunk from the decoder. A short final read is
// returned before the stream ends so trailing audio is not dropped.
// When the stream ends the decoder's exit status decides the result:
// a clean exit is io.EOF, anything else is an error. A stream we shut
// down ourselves is always a clean end.
func (s *DecoderSource) Next() ([]byte, error) {
	n, _ := io.ReadFull(s.stdout, s.buf)
	if n > 0 {
		return s.buf[:n], nil
	}
	if s.closing.Load() {
		return nil, io.EOF
	}
	if err := s.wait(); err != nil {
		return nil, fmt.Errorf("decoder exited: %w", err)
	}
	return nil, io.EOF
}

// wait reaps the decoder process exactly once and remembers the
// result.
func (s *DecoderSource) wait() error {
	s.waitOnce.Do(func() { s.waitErr = s.cmd.Wait() })
	return s.waitErr
}

// Close stops the decoder: SIGTERM first, SIGKILL if it has not exited
// within the grace period. Safe to call more than once.
func (s *DecoderSource) Close() error {
	s.closeOnce.Do(func() {
		s.closing.Store(true)
		if s.cmd.Process != nil {
			s.cmd.Process.Signal(syscall.SIGTERM)
		}
		// Reaping the process closes the stdout pipe, which unblocks
		// any pending Next.
		done := make(chan error, 1)
		go func() { done <- s.wait() }()
		select {
		case <-done:
		case <-time.After(killGrace):
			if s.cmd.Process != nil {
				s.cmd.Process.Kill()
			}
			<-done
		}
	})
	return nil
}

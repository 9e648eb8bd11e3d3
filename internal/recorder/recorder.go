// Package recorder turns a continuous PCM chunk stream into discrete
// voice segments. An RMS gate opens a segment on the first chunk above
// the threshold and closes it after a run of silent chunks; closed
// segments are written as WAV files and handed to a callback.
package recorder

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"path/filepath"
	"strings"
	"time"

	"github.com/quonset/squawkbox/pkg/audio"
)

// ChunkSamples is the number of int16 samples read per chunk. At 16 kHz
// one chunk is 64 ms of audio.
const ChunkSamples = 1024

// ChunkSource yields fixed-size PCM chunks. Next blocks until a chunk
// is available and returns io.EOF when the stream ends. Close releases
// the underlying stream and unblocks a pending Next.
type ChunkSource interface {
	Next() ([]byte, error)
	Close() error
}

// Segment describes one finished voice segment on disk.
type Segment struct {
	// Path is the WAV file location.
	Path string

	// RecordedAt is when the segment was finalized.
	RecordedAt time.Time

	// Duration is the audio length in seconds.
	Duration float64
}

// SegmentFunc receives finished segments. It is called from the
// recorder's Run goroutine, so it must not block for long.
type SegmentFunc func(Segment)

// Config holds the recorder gate parameters.
type Config struct {
	// SampleRate and Channels describe the incoming PCM.
	SampleRate int
	Channels   int

	// VADThreshold is the normalized RMS level above which a chunk is
	// voiced.
	VADThreshold float64

	// SilenceDuration is the seconds of continuous silence that close
	// an open segment.
	SilenceDuration float64

	// MinLength discards closed segments shorter than this many seconds.
	MinLength float64

	// MaxDuration force-closes a segment after this many seconds of
	// audio. Zero means no cap.
	MaxDuration float64

	// Dir is where segment WAV files are written.
	Dir string

	// Frequency is the channel dial string, embedded in file names.
	// Optional.
	Frequency string
}

// Recorder runs the voice gate over one channel's chunk stream.
type Recorder struct {
	src       ChunkSource
	cfg       Config
	onSegment SegmentFunc
	log       *slog.Logger

	silenceChunks int

	// gate state, touched only by Run
	recording bool
	buf       []byte
	silence   int
}

// New builds a Recorder over src. onSegment may be nil.
func New(src ChunkSource, cfg Config, onSegment SegmentFunc, log *slog.Logger) *Recorder {
	if log == nil {
		log = slog.Default()
	}
	silenceChunks := int(math.Ceil(cfg.SilenceDuration * float64(cfg.SampleRate) / float64(ChunkSamples)))
	if silenceChunks < 1 {
		silenceChunks = 1
	}
	return &Recorder{
		src:           src,
		cfg:           cfg,
		onSegment:     onSegment,
		log:           log,
		silenceChunks: silenceChunks,
	}
}

// Run consumes the source until it ends or ctx is cancelled. A segment
// still open when the stream ends is finalized so audio is not lost on
// shutdown. Run closes the source before returning.
func (r *Recorder) Run(ctx context.Context) error {
	stop := context.AfterFunc(ctx, func() {
		r.src.Close()
	})
	defer stop()
	defer r.src.Close()

	for {
		chunk, err := r.src.Next()
		if len(chunk) > 0 {
			r.process(chunk)
		}
		if err != nil {
			r.finalize()
			if errors.Is(err, io.EOF) || ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("recorder: read chunk: %w", err)
		}
	}
}

func (r *Recorder) process(chunk []byte) {
	rms := audio.RMS(chunk)
	voiced := rms > r.cfg.VADThreshold

	switch {
	case voiced && !r.recording:
		r.recording = true
		r.buf = r.buf[:0]
		r.silence = 0
		r.buf = append(r.buf, chunk...)
	case voiced:
		r.silence = 0
		r.buf = append(r.buf, chunk...)
	case r.recording:
		// Silence inside a segment is kept so pauses between words
		// survive; the segment closes once the silence run is long
		// enough.
		r.buf = append(r.buf, chunk...)
		r.silence++
		if r.silence >= r.silenceChunks {
			r.finalize()
		}
	}

	if r.recording && r.cfg.MaxDuration > 0 {
		if audio.Duration(r.buf, r.cfg.SampleRate, r.cfg.Channels) >= r.cfg.MaxDuration {
			r.finalize()
		}
	}
}

// finalize closes the open segment, if any, writing it to disk when it
// meets the minimum length.
func (r *Recorder) finalize() {
	if !r.recording {
		return
	}
	r.recording = false
	dur := audio.Duration(r.buf, r.cfg.SampleRate, r.cfg.Channels)
	r.silence = 0
	if dur < r.cfg.MinLength {
		r.log.Debug("discarding short segment", "duration", dur, "min", r.cfg.MinLength)
		return
	}

	recordedAt := time.Now()
	path := filepath.Join(r.cfg.Dir, SegmentFileName(recordedAt, r.cfg.Frequency))
	if err := audio.WriteWAV(path, r.buf, r.cfg.SampleRate, r.cfg.Channels); err != nil {
		r.log.Error("failed to write segment", "path", path, "error", err)
		return
	}
	r.log.Info("recorded transmission", "path", path, "duration", fmt.Sprintf("%.1fs", dur))
	if r.onSegment != nil {
		r.onSegment(Segment{Path: path, RecordedAt: recordedAt, Duration: dur})
	}
}

// SegmentFileName builds the WAV file name for a segment finalized at
// t, e.g. "transmission_20260826_141503_250_118p7.wav". The frequency
// suffix is omitted when freq is empty.
func SegmentFileName(t time.Time, freq string) string {
	name := fmt.Sprintf("transmission_%s_%03d", t.Format("20060102_150405"), t.Nanosecond()/1e6)
	if freq != "" {
		name += "_" + strings.ReplaceAll(freq, ".", "p")
	}
	return name + ".wav"
}

// ChannelDirName builds the per-channel artifact directory name from a
// frequency and display name, e.g. "118p7_MSP_Tower".
func ChannelDirName(freq, name string) string {
	return strings.ReplaceAll(freq, ".", "p") + "_" + strings.ReplaceAll(name, " ", "_")
}

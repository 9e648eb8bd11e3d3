// Package whisper implements stt.Transcriber on the whisper.cpp Go
// bindings (CGO). The model is loaded once per Transcriber; each call to
// Transcribe decodes with a fresh whisper context, so separate pool
// workers must each own their own Transcriber.
package whisper

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	whisperlib "github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"
	"github.com/quonset/squawkbox/pkg/atc"
	"github.com/quonset/squawkbox/pkg/audio"
	"github.com/quonset/squawkbox/pkg/provider/stt"
)

// whisper.cpp only accepts 16 kHz mono input.
const sampleRate = 16000

const defaultLanguage = "en"

// Compile-time assertion that Transcriber satisfies stt.Transcriber.
var _ stt.Transcriber = (*Transcriber)(nil)

// Transcriber decodes recorded WAV files with a local whisper.cpp model.
// It is not safe for concurrent use; give each worker its own instance.
type Transcriber struct {
	model     whisperlib.Model
	modelName string

	language      string
	threads       int
	beamSize      int
	initialPrompt string
}

// Option is a functional option for configuring a Transcriber.
type Option func(*Transcriber)

// WithLanguage sets the decode language code (e.g. "en"). Defaults to "en".
func WithLanguage(lang string) Option {
	return func(t *Transcriber) { t.language = lang }
}

// WithThreads sets the number of decode threads. Zero leaves the
// whisper.cpp default in place.
func WithThreads(n int) Option {
	return func(t *Transcriber) { t.threads = n }
}

// WithBeamSize sets the beam width for decoding. Zero leaves the
// whisper.cpp default (greedy) in place.
func WithBeamSize(n int) Option {
	return func(t *Transcriber) { t.beamSize = n }
}

// WithInitialPrompt sets the text used to prime the decoder. Domain
// vocabulary here measurably improves accuracy on radio audio.
func WithInitialPrompt(prompt string) Option {
	return func(t *Transcriber) { t.initialPrompt = prompt }
}

// WithModelName overrides the model identifier reported in results.
// Defaults to the model file name without its extension.
func WithModelName(name string) Option {
	return func(t *Transcriber) { t.modelName = name }
}

// New loads the whisper.cpp model at modelPath and returns a Transcriber
// over it. Loading pulls the full weights into memory, so construct once
// per worker and call Close when done.
func New(modelPath string, opts ...Option) (*Transcriber, error) {
	if modelPath == "" {
		return nil, errors.New("whisper: modelPath must not be empty")
	}
	model, err := whisperlib.New(modelPath)
	if err != nil {
		return nil, fmt.Errorf("whisper: load model %q: %w", modelPath, err)
	}

	t := &Transcriber{
		model:     model,
		modelName: strings.TrimSuffix(filepath.Base(modelPath), filepath.Ext(modelPath)),
		language:  defaultLanguage,
	}
	for _, o := range opts {
		o(t)
	}
	return t, nil
}

// Close releases the model weights. The Transcriber must not be used
// afterwards.
func (t *Transcriber) Close() error {
	if t.model != nil {
		return t.model.Close()
	}
	return nil
}

// Transcribe decodes the WAV file at path and returns the transcript with
// per-segment timings. Files recorded at other sample rates are resampled
// to 16 kHz before decoding.
func (t *Transcriber) Transcribe(ctx context.Context, path string) (stt.Result, error) {
	if err := ctx.Err(); err != nil {
		return stt.Result{}, fmt.Errorf("whisper: context already cancelled: %w", err)
	}

	samples, err := audio.ReadWAVFloat32Mono(path, sampleRate)
	if err != nil {
		return stt.Result{}, fmt.Errorf("whisper: read %q: %w", path, err)
	}

	wctx, err := t.model.NewContext()
	if err != nil {
		return stt.Result{}, fmt.Errorf("whisper: create context: %w", err)
	}
	wctx.SetTranslate(false)
	if t.threads > 0 {
		wctx.SetThreads(uint(t.threads))
	}
	if t.beamSize > 0 {
		wctx.SetBeamSize(t.beamSize)
	}
	if t.initialPrompt != "" {
		wctx.SetInitialPrompt(t.initialPrompt)
	}
	if err := wctx.SetLanguage(t.language); err != nil {
		return stt.Result{}, fmt.Errorf("whisper: set language %q: %w", t.language, err)
	}

	if err := wctx.Process(samples, nil, nil, nil); err != nil {
		return stt.Result{}, fmt.Errorf("whisper: process audio: %w", err)
	}

	var (
		segments []atc.TranscriptSegment
		parts    []string
	)
	for {
		segment, err := wctx.NextSegment()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return stt.Result{}, fmt.Errorf("whisper: read segment: %w", err)
		}
		text := strings.TrimSpace(segment.Text)
		if text == "" {
			continue
		}
		segments = append(segments, atc.TranscriptSegment{
			Start: segment.Start.Seconds(),
			End:   segment.End.Seconds(),
			Text:  text,
		})
		parts = append(parts, text)
	}

	return stt.Result{
		Text:     strings.Join(parts, " "),
		Segments: segments,
		Language: t.language,
		Model:    t.modelName,
	}, nil
}

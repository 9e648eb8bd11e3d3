// Package stt defines the interface between the transcription pool and
// speech-to-text backends.
//
// A Transcriber converts one finished recording into text. Unlike a
// streaming recognizer it sees the whole file at once, so backends are
// free to run multi-pass decoding. Implementations live in subpackages
// (whisper, openai) plus a mock for tests.
//
// Backends are not required to be safe for concurrent use. The pool
// builds one Transcriber per worker through a Factory, so each model
// instance only ever serves a single goroutine.
package stt

import (
	"context"

	"github.com/quonset/squawkbox/pkg/atc"
)

// Result is the outcome of transcribing a single audio file.
type Result struct {
	// Text is the full transcript with leading and trailing space trimmed.
	// Empty when the file contained no recognizable speech.
	Text string

	// Segments are the timed spans that make up Text, in order.
	Segments []atc.TranscriptSegment

	// Language is the language the backend decoded with, e.g. "en".
	Language string

	// Model identifies the model that produced the result, e.g.
	// "whisper-small.en". Informational only.
	Model string
}

// Transcriber converts one recorded audio file into a Result.
//
// Transcribe blocks until decoding finishes or ctx is canceled. The file
// at path must be a 16 kHz mono WAV as written by the recorder; backends
// that need another rate resample internally.
type Transcriber interface {
	Transcribe(ctx context.Context, path string) (Result, error)
}

// Factory builds a ready-to-use Transcriber. The transcription pool calls
// it once per worker during startup, so expensive work such as loading
// model weights belongs here rather than in Transcribe.
//
// If the Transcriber also implements io.Closer, the pool closes it when
// the worker shuts down.
type Factory func(ctx context.Context) (Transcriber, error)

// Package llm defines the Generator interface between the correlator and
// text-generation backends.
//
// The contract mirrors a raw generate API rather than a chat abstraction:
// one prompt in, one completion out, with the backend's token accounting
// exposed. The correlator depends on EvalCount to detect responses that
// ran into the generation ceiling and need JSON repair, so backends must
// report it faithfully. Implementations live in subpackages (ollama,
// openai) plus a mock for tests.
package llm

import "context"

// Options are the sampling parameters forwarded to the backend. Zero
// values mean "backend default" for every field.
type Options struct {
	// Temperature controls output randomness. The correlator runs low
	// (0.3 by default) because it wants reproducible JSON, not prose.
	Temperature float64

	// TopP is the nucleus-sampling cutoff.
	TopP float64

	// NumPredict caps the number of tokens the model may generate.
	NumPredict int

	// NumCtx is the model context window in tokens. Backends without a
	// per-request context size ignore it.
	NumCtx int

	// RepeatPenalty discourages the looping output that small local
	// models produce on long structured completions.
	RepeatPenalty float64
}

// Request carries one generation call.
type Request struct {
	// Model names the backend model, e.g. "gpt-oss:20b".
	Model string

	// Prompt is the full prompt text. The caller owns prompt assembly
	// and token budgeting; backends send it verbatim.
	Prompt string

	Options Options
}

// Response is the completed generation.
type Response struct {
	// Text is the raw model output, untrimmed.
	Text string

	// EvalCount is the number of tokens generated. When it reaches
	// NumPredict the response was likely cut off mid-JSON.
	EvalCount int

	// PromptEvalCount is the number of prompt tokens the model consumed.
	PromptEvalCount int
}

// Generator produces one completion per call.
//
// Generate blocks until the backend finishes or ctx is cancelled.
// Implementations must be safe for concurrent use: the correlator may
// run one call per transcription worker simultaneously.
type Generator interface {
	Generate(ctx context.Context, req Request) (Response, error)
}

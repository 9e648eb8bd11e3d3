// Package correlate matches transcribed transmissions against the live
// surveillance picture by querying an LLM backend.
//
// The correlator owns prompt budgeting for a fixed context window,
// best-effort repair of truncated responses, and the post-filtering of
// low-confidence alerts. It holds no transmission state of its own;
// the monitor hands it a contact snapshot and a recent batch per call.
package correlate

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/quonset/squawkbox/pkg/atc"
	"github.com/quonset/squawkbox/pkg/provider/llm"
)

// Config tunes the correlator. DefaultConfig matches the limits of a
// locally hosted gpt-oss:20b.
type Config struct {
	Model string

	ContextWindow        int
	MaxResponse          int
	CharsPerToken        float64
	TokenBuffer          int
	TokensPerCorrelation int
	JSONOverhead         int
	MaxBatch             int
	ADSBRatio            float64
	PreviewChars         int

	Temperature   float64
	TopP          float64
	RepeatPenalty float64

	// SafetyMargin marks responses within this many tokens of
	// MaxResponse as likely truncated.
	SafetyMargin int

	// AlertThreshold suppresses alerts below this confidence.
	AlertThreshold float64

	// LatencyWindow sizes the moving-average latency window.
	LatencyWindow int
}

// DefaultConfig returns the stock tuning.
func DefaultConfig() Config {
	return Config{
		Model:                "gpt-oss:20b",
		ContextWindow:        12400,
		MaxResponse:          6400,
		CharsPerToken:        4.0,
		TokenBuffer:          20,
		TokensPerCorrelation: 180,
		JSONOverhead:         200,
		MaxBatch:             10,
		ADSBRatio:            0.70,
		PreviewChars:         150,
		Temperature:          0.3,
		TopP:                 0.9,
		RepeatPenalty:        1.1,
		SafetyMargin:         50,
		AlertThreshold:       0.7,
		LatencyWindow:        100,
	}
}

// ParseError reports a response that could not be decoded even after
// repair. Raw carries the model output for postmortems.
type ParseError struct {
	Raw string
	Err error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("correlate: parse response: %v", e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// Correlator queries a generation backend and turns its answer into
// correlation records and alerts.
type Correlator struct {
	gen   llm.Generator
	cfg   Config
	log   *slog.Logger
	stats *Stats
}

// New builds a Correlator over gen. log may be nil.
func New(gen llm.Generator, cfg Config, log *slog.Logger) *Correlator {
	if log == nil {
		log = slog.Default()
	}
	return &Correlator{
		gen:   gen,
		cfg:   cfg,
		log:   log,
		stats: newStats(cfg.LatencyWindow),
	}
}

// Stats returns the request counters.
func (c *Correlator) Stats() StatsSnapshot { return c.stats.Snapshot() }

// MaxTransmissions reports the largest batch a single request can
// carry; callers size their "recent transmissions" slice with it.
func (c *Correlator) MaxTransmissions() int { return c.budget().MaxTransmissions() }

func (c *Correlator) budget() Budget {
	return Budget{
		ContextWindow:        c.cfg.ContextWindow,
		MaxResponse:          c.cfg.MaxResponse,
		CharsPerToken:        c.cfg.CharsPerToken,
		EstimateBuffer:       c.cfg.TokenBuffer,
		TokensPerCorrelation: c.cfg.TokensPerCorrelation,
		JSONOverhead:         c.cfg.JSONOverhead,
		MaxBatch:             c.cfg.MaxBatch,
		ADSBRatio:            c.cfg.ADSBRatio,
	}
}

// Outcome pairs the analysis result with the batch it was computed
// over: transmission_id values in the result index into Batch.
type Outcome struct {
	Result atc.AnalysisResult
	Batch  []atc.Transmission

	// Contacts and Tokens describe the prompt that was sent.
	Contacts int
	Tokens   int

	// PromptEvalCount and EvalCount are the backend's token accounting
	// for the request and the response.
	PromptEvalCount int
	EvalCount       int
}

// Correlate submits the contacts and transmissions for analysis. An
// empty transmission list short-circuits without a request. Alerts
// below the confidence threshold are dropped from the result.
func (c *Correlator) Correlate(ctx context.Context, contacts []atc.Contact, txs []atc.Transmission) (Outcome, error) {
	if len(txs) == 0 {
		return Outcome{
			Result: atc.AnalysisResult{
				Correlations: []atc.Correlation{},
				Alerts:       []atc.Alert{},
				Summary:      "No transmissions",
			},
		}, nil
	}

	b := c.budget()
	built := buildPrompt(b, c.cfg.PreviewChars, contacts, txs)
	if built.Tokens > b.MaxPromptTokens() {
		c.log.Warn("prompt exceeds token budget, sending anyway",
			"tokens", built.Tokens, "budget", b.MaxPromptTokens())
	}

	start := time.Now()
	resp, err := c.gen.Generate(ctx, llm.Request{
		Model:  c.cfg.Model,
		Prompt: built.Text,
		Options: llm.Options{
			Temperature:   c.cfg.Temperature,
			TopP:          c.cfg.TopP,
			NumPredict:    c.cfg.MaxResponse,
			NumCtx:        c.cfg.ContextWindow,
			RepeatPenalty: c.cfg.RepeatPenalty,
		},
	})
	latency := time.Since(start)
	tokens := int64(resp.EvalCount + resp.PromptEvalCount)
	contextUsage := built.Tokens + c.cfg.MaxResponse

	if err != nil {
		c.stats.recordCall(latency, tokens, contextUsage, true)
		return Outcome{}, fmt.Errorf("correlate: generate: %w", err)
	}
	c.log.Debug("correlation response",
		"latency", latency,
		"eval_count", resp.EvalCount,
		"prompt_tokens", resp.PromptEvalCount,
		"contacts", built.Contacts,
		"batch", len(built.Batch))

	result, err := c.parse(resp)
	c.stats.recordCall(latency, tokens, contextUsage, err != nil)
	if err != nil {
		return Outcome{}, err
	}

	result.Alerts = c.filterAlerts(result.Alerts)
	return Outcome{
		Result:          result,
		Batch:           built.Batch,
		Contacts:        built.Contacts,
		Tokens:          built.Tokens,
		PromptEvalCount: resp.PromptEvalCount,
		EvalCount:       resp.EvalCount,
	}, nil
}

func (c *Correlator) parse(resp llm.Response) (atc.AnalysisResult, error) {
	jsonStr, ok := extractJSON(resp.Text)
	if !ok {
		return atc.AnalysisResult{}, &ParseError{Raw: resp.Text, Err: fmt.Errorf("no JSON object in response")}
	}

	result, err := decodeResult(jsonStr)
	if err == nil {
		return result, nil
	}

	// A response that ran up against the token ceiling is probably cut
	// off mid-document; try to close it.
	if resp.EvalCount >= c.cfg.MaxResponse-c.cfg.SafetyMargin {
		c.log.Warn("response likely truncated, attempting repair",
			"eval_count", resp.EvalCount, "max_response", c.cfg.MaxResponse)
		if result, rerr := decodeResult(repairTruncated(jsonStr)); rerr == nil {
			return result, nil
		}
	}
	return atc.AnalysisResult{}, &ParseError{Raw: resp.Text, Err: err}
}

func (c *Correlator) filterAlerts(alerts []atc.Alert) []atc.Alert {
	kept := alerts[:0]
	for _, a := range alerts {
		if a.Confidence >= c.cfg.AlertThreshold {
			kept = append(kept, a)
		} else {
			c.log.Debug("suppressing low-confidence alert",
				"type", a.Type, "confidence", a.Confidence, "threshold", c.cfg.AlertThreshold)
		}
	}
	return kept
}

// Package openai implements stt.Transcriber against the hosted OpenAI
// transcription API. It is the remote alternative to the whisper backend
// for machines without local model weights or the CGO toolchain.
package openai

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	wavlib "github.com/go-audio/wav"
	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"

	"github.com/quonset/squawkbox/pkg/atc"
	"github.com/quonset/squawkbox/pkg/provider/stt"
)

const defaultModel = "whisper-1"

// Compile-time assertion that Transcriber satisfies stt.Transcriber.
var _ stt.Transcriber = (*Transcriber)(nil)

// Transcriber uploads recorded WAV files to the OpenAI transcription
// endpoint. The hosted API reports text only, so results carry a single
// segment spanning the measured duration of the file.
type Transcriber struct {
	client   oai.Client
	model    string
	language string
	prompt   string
}

// config holds optional configuration for the transcriber.
type config struct {
	model    string
	language string
	prompt   string
	baseURL  string
	timeout  time.Duration
}

// Option is a functional option for Transcriber.
type Option func(*config)

// WithModel overrides the default "whisper-1" transcription model.
func WithModel(model string) Option {
	return func(c *config) {
		c.model = model
	}
}

// WithLanguage sets the expected audio language code (e.g. "en").
func WithLanguage(lang string) Option {
	return func(c *config) {
		c.language = lang
	}
}

// WithPrompt sets the text used to prime the decoder with domain
// vocabulary.
func WithPrompt(prompt string) Option {
	return func(c *config) {
		c.prompt = prompt
	}
}

// WithBaseURL overrides the default OpenAI API base URL.
func WithBaseURL(url string) Option {
	return func(c *config) {
		c.baseURL = url
	}
}

// WithTimeout sets a per-request HTTP timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *config) {
		c.timeout = d
	}
}

// New constructs a Transcriber that authenticates with the given API key.
func New(apiKey string, opts ...Option) (*Transcriber, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("openai: apiKey must not be empty")
	}

	cfg := &config{model: defaultModel}
	for _, o := range opts {
		o(cfg)
	}

	reqOpts := []option.RequestOption{
		option.WithAPIKey(apiKey),
	}
	if cfg.baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.baseURL))
	}
	if cfg.timeout > 0 {
		reqOpts = append(reqOpts, option.WithHTTPClient(&http.Client{
			Timeout: cfg.timeout,
		}))
	}

	return &Transcriber{
		client:   oai.NewClient(reqOpts...),
		model:    cfg.model,
		language: cfg.language,
		prompt:   cfg.prompt,
	}, nil
}

// Transcribe implements stt.Transcriber.
func (t *Transcriber) Transcribe(ctx context.Context, path string) (stt.Result, error) {
	duration, err := wavDuration(path)
	if err != nil {
		return stt.Result{}, fmt.Errorf("openai: inspect %q: %w", path, err)
	}

	fh, err := os.Open(path)
	if err != nil {
		return stt.Result{}, fmt.Errorf("openai: open %q: %w", path, err)
	}
	defer fh.Close()

	params := oai.AudioTranscriptionNewParams{
		File:  fh,
		Model: oai.AudioModel(t.model),
	}
	if t.language != "" {
		params.Language = param.NewOpt(t.language)
	}
	if t.prompt != "" {
		params.Prompt = param.NewOpt(t.prompt)
	}

	resp, err := t.client.Audio.Transcriptions.New(ctx, params)
	if err != nil {
		return stt.Result{}, fmt.Errorf("openai: transcribe %q: %w", path, err)
	}

	text := strings.TrimSpace(resp.Text)
	result := stt.Result{
		Text:     text,
		Language: t.language,
		Model:    t.model,
	}
	if text != "" {
		result.Segments = []atc.TranscriptSegment{
			{Start: 0, End: duration.Seconds(), Text: text},
		}
	}
	return result, nil
}

// wavDuration reads just enough of the WAV header to measure play time.
func wavDuration(path string) (time.Duration, error) {
	fh, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer fh.Close()

	dec := wavlib.NewDecoder(fh)
	dec.ReadInfo()
	if err := dec.Err(); err != nil {
		return 0, err
	}
	return dec.Duration()
}

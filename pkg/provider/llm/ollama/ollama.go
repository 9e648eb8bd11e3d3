// Package ollama implements llm.Generator against an Ollama server's
// /api/generate endpoint. This is the primary correlator backend: a
// locally hosted model with no per-token cost, which matters when every
// radio transmission triggers a generation call.
package ollama

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ollama/ollama/api"

	"github.com/quonset/squawkbox/pkg/provider/llm"
)

const (
	defaultBaseURL = "http://localhost:11434"

	// Correlation batches are large and local models are slow; the
	// request timeout is generous by default and configurable because
	// it dominates the correlator's worst-case latency.
	defaultTimeout = 220 * time.Second
)

// Compile-time assertion that Client satisfies llm.Generator.
var _ llm.Generator = (*Client)(nil)

// Client is a non-streaming Ollama generate client.
type Client struct {
	client *api.Client
}

// config holds optional configuration for the client.
type config struct {
	baseURL    string
	timeout    time.Duration
	httpClient *http.Client
}

// Option is a functional option for Client.
type Option func(*config)

// WithBaseURL overrides the default Ollama server address.
func WithBaseURL(u string) Option {
	return func(c *config) {
		c.baseURL = strings.TrimRight(u, "/")
	}
}

// WithTimeout sets the per-request HTTP timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *config) {
		c.timeout = d
	}
}

// WithHTTPClient overrides the HTTP client. A Timeout set on it wins
// over WithTimeout.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *config) {
		c.httpClient = hc
	}
}

// New constructs an Ollama client. The server is not contacted until the
// first Generate call.
func New(opts ...Option) (*Client, error) {
	cfg := &config{
		baseURL: defaultBaseURL,
		timeout: defaultTimeout,
	}
	for _, o := range opts {
		o(cfg)
	}

	base, err := url.Parse(cfg.baseURL)
	if err != nil {
		return nil, fmt.Errorf("ollama: parse base url %q: %w", cfg.baseURL, err)
	}
	hc := cfg.httpClient
	if hc == nil {
		hc = &http.Client{Timeout: cfg.timeout}
	}
	return &Client{client: api.NewClient(base, hc)}, nil
}

// Generate implements llm.Generator. It issues a single non-streaming
// generate request and maps the server's eval counts through.
func (c *Client) Generate(ctx context.Context, req llm.Request) (llm.Response, error) {
	if req.Model == "" {
		return llm.Response{}, fmt.Errorf("ollama: model must not be empty")
	}

	stream := false
	greq := &api.GenerateRequest{
		Model:   req.Model,
		Prompt:  req.Prompt,
		Stream:  &stream,
		Options: optionsMap(req.Options),
	}

	var resp llm.Response
	err := c.client.Generate(ctx, greq, func(gr api.GenerateResponse) error {
		// Non-streaming requests deliver exactly one callback carrying
		// the whole completion.
		resp.Text = gr.Response
		resp.EvalCount = gr.EvalCount
		resp.PromptEvalCount = gr.PromptEvalCount
		return nil
	})
	if err != nil {
		return llm.Response{}, fmt.Errorf("ollama: generate: %w", err)
	}
	return resp, nil
}

// optionsMap converts llm.Options into the Ollama options payload,
// omitting unset fields so the server's model defaults apply.
func optionsMap(o llm.Options) map[string]any {
	m := map[string]any{}
	if o.Temperature > 0 {
		m["temperature"] = o.Temperature
	}
	if o.TopP > 0 {
		m["top_p"] = o.TopP
	}
	if o.NumPredict > 0 {
		m["num_predict"] = o.NumPredict
	}
	if o.NumCtx > 0 {
		m["num_ctx"] = o.NumCtx
	}
	if o.RepeatPenalty > 0 {
		m["repeat_penalty"] = o.RepeatPenalty
	}
	return m
}

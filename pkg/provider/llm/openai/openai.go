// Package openai implements llm.Generator on the OpenAI chat completions
// API. It also works against OpenAI-compatible local servers (llama.cpp,
// vLLM and friends) through WithBaseURL.
//
// The generate-style contract is mapped onto a single-user-message chat
// call. NumCtx and RepeatPenalty have no chat-completions equivalent and
// are ignored; the reported usage still lets the correlator detect
// truncation via EvalCount against NumPredict.
package openai

import (
	"context"
	"fmt"
	"net/http"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/quonset/squawkbox/pkg/provider/llm"
)

// Compile-time assertion that Client satisfies llm.Generator.
var _ llm.Generator = (*Client)(nil)

// Client generates completions through the OpenAI API.
type Client struct {
	client oai.Client
}

// config holds optional configuration for the client.
type config struct {
	baseURL string
	timeout time.Duration
}

// Option is a functional option for Client.
type Option func(*config)

// WithBaseURL points the client at an OpenAI-compatible server.
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

// New constructs an OpenAI generator. apiKey may be empty when the
// target server does not authenticate (common for local deployments).
func New(apiKey string, opts ...Option) *Client {
	cfg := &config{}
	for _, o := range opts {
		o(cfg)
	}

	reqOpts := []option.RequestOption{}
	if apiKey != "" {
		reqOpts = append(reqOpts, option.WithAPIKey(apiKey))
	}
	if cfg.baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.baseURL))
	}
	if cfg.timeout > 0 {
		reqOpts = append(reqOpts, option.WithHTTPClient(&http.Client{Timeout: cfg.timeout}))
	}
	return &Client{client: oai.NewClient(reqOpts...)}
}

// Generate implements llm.Generator.
func (c *Client) Generate(ctx context.Context, req llm.Request) (llm.Response, error) {
	if req.Model == "" {
		return llm.Response{}, fmt.Errorf("openai: model must not be empty")
	}

	completion, err := c.client.Chat.Completions.New(ctx, buildParams(req))
	if err != nil {
		return llm.Response{}, fmt.Errorf("openai: chat completion: %w", err)
	}
	if len(completion.Choices) == 0 {
		return llm.Response{}, fmt.Errorf("openai: chat completion returned no choices")
	}

	return llm.Response{
		Text:            completion.Choices[0].Message.Content,
		EvalCount:       int(completion.Usage.CompletionTokens),
		PromptEvalCount: int(completion.Usage.PromptTokens),
	}, nil
}

// buildParams maps the generate-style request onto chat-completion
// parameters. Zero-valued options stay unset so the server keeps its
// defaults.
func buildParams(req llm.Request) oai.ChatCompletionNewParams {
	params := oai.ChatCompletionNewParams{
		Model: req.Model,
		Messages: []oai.ChatCompletionMessageParamUnion{
			oai.UserMessage(req.Prompt),
		},
	}
	o := req.Options
	if o.Temperature > 0 {
		params.Temperature = oai.Float(o.Temperature)
	}
	if o.TopP > 0 {
		params.TopP = oai.Float(o.TopP)
	}
	if o.NumPredict > 0 {
		params.MaxTokens = oai.Int(int64(o.NumPredict))
	}
	return params
}

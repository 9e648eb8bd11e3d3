// Package mock provides a test double for the llm.Generator interface.
//
// Use Generator to script responses or errors and inspect the prompts
// the correlator built. ResponseFn takes precedence over Response/Err
// when set, which lets a test derive output from the request.
//
// Example:
//
//	g := &mock.Generator{
//	    Response: llm.Response{Text: `{"correlations":[],"alerts":[],"summary":"ok"}`},
//	}
//	corr := correlate.New(g, correlate.DefaultConfig(), nil)
package mock

import (
	"context"
	"sync"

	"github.com/quonset/squawkbox/pkg/provider/llm"
)

// GenerateCall records a single invocation of Generator.Generate.
type GenerateCall struct {
	// Ctx is the context passed to Generate.
	Ctx context.Context
	// Req is the request passed to Generate.
	Req llm.Request
}

// Generator is a mock implementation of llm.Generator.
type Generator struct {
	mu sync.Mutex

	// Response is returned from Generate when ResponseFn is nil.
	Response llm.Response

	// ResponseFn, if non-nil, computes the response per call.
	ResponseFn func(req llm.Request) (llm.Response, error)

	// Err, if non-nil, is returned as the error from Generate.
	Err error

	// Calls records every call to Generate.
	Calls []GenerateCall
}

// Generate records the call and returns the scripted response.
func (g *Generator) Generate(ctx context.Context, req llm.Request) (llm.Response, error) {
	g.mu.Lock()
	g.Calls = append(g.Calls, GenerateCall{Ctx: ctx, Req: req})
	fn := g.ResponseFn
	resp := g.Response
	err := g.Err
	g.mu.Unlock()

	if fn != nil {
		return fn(req)
	}
	if err != nil {
		return llm.Response{}, err
	}
	return resp, nil
}

// CallCount returns how many times Generate has been invoked.
// Thread-safe.
func (g *Generator) CallCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.Calls)
}

// LastPrompt returns the prompt of the most recent call, or "" when no
// call has been made. Thread-safe.
func (g *Generator) LastPrompt() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	if len(g.Calls) == 0 {
		return ""
	}
	return g.Calls[len(g.Calls)-1].Req.Prompt
}

// Reset clears all recorded calls. Thread-safe.
func (g *Generator) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.Calls = nil
}

// Ensure Generator implements llm.Generator at compile time.
var _ llm.Generator = (*Generator)(nil)

// Package mock provides test doubles for the stt package interfaces.
//
// Use Transcriber to script results or errors and inspect which files
// were submitted. ResultFn takes precedence over Result/Err when set,
// which lets a test derive output from the submitted path.
//
// Example:
//
//	tr := &mock.Transcriber{
//	    Result: stt.Result{Text: "cessna one two three"},
//	}
//	pool := transcribe.NewPool(2, mock.Factory(tr))
package mock

import (
	"context"
	"sync"
	"time"

	"github.com/quonset/squawkbox/pkg/provider/stt"
)

// TranscribeCall records a single invocation of Transcriber.Transcribe.
type TranscribeCall struct {
	// Ctx is the context passed to Transcribe.
	Ctx context.Context
	// Path is the audio file path passed to Transcribe.
	Path string
}

// Transcriber is a mock implementation of stt.Transcriber.
type Transcriber struct {
	mu sync.Mutex

	// Result is returned from Transcribe when ResultFn is nil.
	Result stt.Result

	// ResultFn, if non-nil, computes the result per call.
	ResultFn func(path string) (stt.Result, error)

	// Err, if non-nil, is returned as the error from Transcribe.
	Err error

	// Delay is how long Transcribe blocks before returning. The block is
	// interrupted by context cancellation.
	Delay time.Duration

	// Calls records every call to Transcribe.
	Calls []TranscribeCall

	// CloseCalls counts invocations of Close.
	CloseCalls int

	// CloseErr, if non-nil, is returned as the error from Close.
	CloseErr error
}

// Transcribe records the call, waits Delay, then returns the scripted
// result.
func (t *Transcriber) Transcribe(ctx context.Context, path string) (stt.Result, error) {
	t.mu.Lock()
	t.Calls = append(t.Calls, TranscribeCall{Ctx: ctx, Path: path})
	fn := t.ResultFn
	res := t.Result
	err := t.Err
	delay := t.Delay
	t.mu.Unlock()

	if delay > 0 {
		select {
		case <-ctx.Done():
			return stt.Result{}, ctx.Err()
		case <-time.After(delay):
		}
	}
	if fn != nil {
		return fn(path)
	}
	if err != nil {
		return stt.Result{}, err
	}
	return res, nil
}

// Close counts the call and returns CloseErr.
func (t *Transcriber) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.CloseCalls++
	return t.CloseErr
}

// CallCount returns how many times Transcribe has been invoked.
// Thread-safe.
func (t *Transcriber) CallCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.Calls)
}

// Paths returns the file paths of all recorded calls in order.
// Thread-safe.
func (t *Transcriber) Paths() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	paths := make([]string, len(t.Calls))
	for i, c := range t.Calls {
		paths[i] = c.Path
	}
	return paths
}

// Reset clears all recorded calls. Thread-safe.
func (t *Transcriber) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.Calls = nil
	t.CloseCalls = 0
}

// Ensure Transcriber implements stt.Transcriber at compile time.
var _ stt.Transcriber = (*Transcriber)(nil)

// Factory returns an stt.Factory that hands out t on every call.
func Factory(t *Transcriber) stt.Factory {
	return func(context.Context) (stt.Transcriber, error) {
		return t, nil
	}
}

// FactoryErr returns an stt.Factory that always fails with err.
func FactoryErr(err error) stt.Factory {
	return func(context.Context) (stt.Transcriber, error) {
		return nil, err
	}
}

package ollama

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/quonset/squawkbox/pkg/provider/llm"
)

// generatePayload is the wire shape the test server decodes.
type generatePayload struct {
	Model   string         `json:"model"`
	Prompt  string         `json:"prompt"`
	Stream  *bool          `json:"stream"`
	Options map[string]any `json:"options"`
}

func newTestServer(t *testing.T, handle func(generatePayload) map[string]any) (*httptest.Server, *generatePayload) {
	t.Helper()
	var got generatePayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/generate" {
			t.Errorf("path = %q, want /api/generate", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(handle(got))
	}))
	t.Cleanup(srv.Close)
	return srv, &got
}

func TestClient_Generate(t *testing.T) {
	srv, got := newTestServer(t, func(generatePayload) map[string]any {
		return map[string]any{
			"model":             "gpt-oss:20b",
			"response":          `{"correlations":[],"alerts":[],"summary":"quiet"}`,
			"done":              true,
			"eval_count":        42,
			"prompt_eval_count": 913,
		}
	})

	c, err := New(WithBaseURL(srv.URL))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	resp, err := c.Generate(t.Context(), llm.Request{
		Model:  "gpt-oss:20b",
		Prompt: "analyze this",
		Options: llm.Options{
			Temperature:   0.3,
			TopP:          0.9,
			NumPredict:    6400,
			NumCtx:        12400,
			RepeatPenalty: 1.1,
		},
	})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	if want := `{"correlations":[],"alerts":[],"summary":"quiet"}`; resp.Text != want {
		t.Errorf("Text = %q, want %q", resp.Text, want)
	}
	if resp.EvalCount != 42 {
		t.Errorf("EvalCount = %d, want 42", resp.EvalCount)
	}
	if resp.PromptEvalCount != 913 {
		t.Errorf("PromptEvalCount = %d, want 913", resp.PromptEvalCount)
	}

	if got.Model != "gpt-oss:20b" {
		t.Errorf("request model = %q", got.Model)
	}
	if got.Stream == nil || *got.Stream {
		t.Errorf("request stream = %v, want false", got.Stream)
	}
	wantOpts := map[string]float64{
		"temperature":    0.3,
		"top_p":          0.9,
		"num_predict":    6400,
		"num_ctx":        12400,
		"repeat_penalty": 1.1,
	}
	for k, want := range wantOpts {
		v, ok := got.Options[k].(float64)
		if !ok || v != want {
			t.Errorf("options[%q] = %v, want %v", k, got.Options[k], want)
		}
	}
}

func TestClient_Generate_OmitsZeroOptions(t *testing.T) {
	srv, got := newTestServer(t, func(generatePayload) map[string]any {
		return map[string]any{"response": "ok", "done": true}
	})

	c, err := New(WithBaseURL(srv.URL))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := c.Generate(t.Context(), llm.Request{Model: "m", Prompt: "p"}); err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if len(got.Options) != 0 {
		t.Errorf("options = %v, want empty", got.Options)
	}
}

func TestClient_Generate_RequiresModel(t *testing.T) {
	c, err := New()
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	_, err = c.Generate(t.Context(), llm.Request{Prompt: "p"})
	if err == nil || !strings.Contains(err.Error(), "model") {
		t.Fatalf("Generate without model: err = %v, want model error", err)
	}
}

func TestClient_Generate_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"model not found"}`, http.StatusNotFound)
	}))
	defer srv.Close()

	c, err := New(WithBaseURL(srv.URL))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := c.Generate(t.Context(), llm.Request{Model: "nope", Prompt: "p"}); err == nil {
		t.Fatal("Generate against erroring server returned nil error")
	}
}

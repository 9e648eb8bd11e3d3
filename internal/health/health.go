// Package health serves the monitor's liveness and readiness probes.
//
// /healthz answers 200 whenever the process can serve HTTP at all.
// /readyz reports per-subsystem state: the transcription pool, the
// surveillance poller, and the language model each register a Checker,
// and a single failing checker turns the whole response into a 503 so
// an orchestrator holds traffic until the monitor is actually working.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"time"
)

// checkBudget bounds one subsystem probe during a /readyz request.
const checkBudget = 5 * time.Second

// A Checker probes one subsystem. Check returns nil when the subsystem
// is ready and an error describing what is wrong otherwise; it must
// honor ctx cancellation. Name keys the subsystem's entry in the
// /readyz response.
type Checker struct {
	Name  string
	Check func(ctx context.Context) error
}

// Handler answers /healthz and /readyz. The checker set is fixed at
// construction; Handler itself is stateless and safe for concurrent
// requests.
type Handler struct {
	checkers []Checker
}

// New builds a Handler over checkers. /readyz runs them in the order
// given.
func New(checkers ...Checker) *Handler {
	return &Handler{checkers: append([]Checker(nil), checkers...)}
}

// Register mounts both probe routes on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", h.Healthz)
	mux.HandleFunc("GET /readyz", h.Readyz)
}

// report is the JSON body of both probes.
type report struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// Healthz is the liveness probe. Serving the request is the proof.
func (h *Handler) Healthz(w http.ResponseWriter, _ *http.Request) {
	h.respond(w, http.StatusOK, report{Status: "ok"})
}

// Readyz runs every checker under its own checkBudget and reports
// "ok" per subsystem or "fail: <reason>". Any failure makes the
// overall status "fail" with a 503.
func (h *Handler) Readyz(w http.ResponseWriter, r *http.Request) {
	rep := report{Status: "ok", Checks: make(map[string]string, len(h.checkers))}
	code := http.StatusOK

	for _, c := range h.checkers {
		ctx, cancel := context.WithTimeout(r.Context(), checkBudget)
		err := c.Check(ctx)
		cancel()
		if err != nil {
			rep.Checks[c.Name] = "fail: " + err.Error()
			rep.Status = "fail"
			code = http.StatusServiceUnavailable
			continue
		}
		rep.Checks[c.Name] = "ok"
	}

	h.respond(w, code, rep)
}

func (h *Handler) respond(w http.ResponseWriter, code int, rep report) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(rep); err != nil {
		http.Error(w, `{"status":"error"}`, http.StatusInternalServerError)
	}
}

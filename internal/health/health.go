// Package health serves the liveness and readiness probes of the server.
//
// GET /healthz answers 200 while the process can serve HTTP. GET /readyz
// answers 200 only when every [Checker] passes, 503 otherwise, and lists each
// check by name so an operator can see what is missing: a transcript, an LLM
// provider, or a model whose circuit breaker is open.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"
)

// checkTimeout bounds one readiness check.
const checkTimeout = 5 * time.Second

// Checker is one named readiness check. Check returns nil when ready.
type Checker struct {
	Name  string
	Check func(ctx context.Context) error
}

// CheckResult is the outcome of one [Checker].
type CheckResult struct {
	Name   string `json:"name"`
	OK     bool   `json:"ok"`
	Detail string `json:"detail,omitempty"`
}

// Report is the body of both probes.
type Report struct {
	Status  string        `json:"status"`
	Version string        `json:"version,omitempty"`
	Uptime  string        `json:"uptime,omitempty"`
	Checks  []CheckResult `json:"checks,omitempty"`
}

// Handler serves /healthz and /readyz. The checker list is fixed at
// construction.
type Handler struct {
	// Version is reported by both probes when set.
	Version string

	checkers []Checker
	started  time.Time
}

// New returns a Handler evaluating checkers on every /readyz request.
func New(checkers ...Checker) *Handler {
	return &Handler{
		checkers: append([]Checker(nil), checkers...),
		started:  time.Now(),
	}
}

// Register mounts both probes on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", h.Healthz)
	mux.HandleFunc("GET /readyz", h.Readyz)
}

// Healthz always answers 200.
func (h *Handler) Healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, Report{
		Status:  "ok",
		Version: h.Version,
		Uptime:  time.Since(h.started).Round(time.Second).String(),
	})
}

// Readyz answers 200 when all checks pass and 503 otherwise.
func (h *Handler) Readyz(w http.ResponseWriter, r *http.Request) {
	rep := h.Check(r.Context())
	status := http.StatusOK
	if rep.Status != "ok" {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, rep)
}

// Check runs all checkers concurrently, each under [checkTimeout], and
// returns their results in registration order.
func (h *Handler) Check(ctx context.Context) Report {
	results := make([]CheckResult, len(h.checkers))
	var g errgroup.Group
	for i, c := range h.checkers {
		g.Go(func() error {
			cctx, cancel := context.WithTimeout(ctx, checkTimeout)
			defer cancel()
			results[i] = CheckResult{Name: c.Name, OK: true}
			if err := c.Check(cctx); err != nil {
				results[i] = CheckResult{Name: c.Name, Detail: err.Error()}
			}
			return nil
		})
	}
	_ = g.Wait()

	rep := Report{Status: "ok", Version: h.Version, Checks: results}
	for _, res := range results {
		if !res.OK {
			rep.Status = "fail"
			break
		}
	}
	return rep
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

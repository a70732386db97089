// Package health serves the operational probes of a synthesis run.
//
// Three endpoints:
//
//   - /healthz  — liveness; a process that answers is alive, always 200.
//   - /readyz   — readiness; 200 only while every registered [Checker]
//     passes, 503 otherwise.
//   - /progress — unit completion counts for the run in flight.
//
// Bodies are JSON with a top-level "status" field; /readyz adds a "checks"
// map keyed by checker name.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"slices"
	"time"
)

// checkTimeout bounds one readiness probe of one dependency.
const checkTimeout = 5 * time.Second

// Checker probes one named dependency. Check returns nil while the
// dependency can serve and an error describing the problem otherwise; it
// must honor ctx.
type Checker struct {
	// Name keys this check's entry in the /readyz response
	// (e.g. "keys", "output").
	Name string

	Check func(ctx context.Context) error
}

// ProgressSource reports unit counts for an in-flight synthesis run: units
// finished successfully, units failed terminally, and the run total.
// Implementations must be safe for concurrent use.
type ProgressSource interface {
	Progress() (done, failed, total int)
}

type probeBody struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

type progressBody struct {
	Status string `json:"status"`
	Done   int    `json:"done"`
	Failed int    `json:"failed"`
	Total  int    `json:"total"`
}

// Handler answers the operational endpoints. The checker list and progress
// source are fixed before serving starts; afterwards the handler is
// read-only and safe for concurrent use.
type Handler struct {
	checkers []Checker
	progress ProgressSource
}

// New builds a Handler over the given checkers. /readyz evaluates them
// sequentially in this order.
func New(checkers ...Checker) *Handler {
	return &Handler{checkers: slices.Clone(checkers)}
}

// AttachProgress exposes ps on /progress. Call before the server starts;
// later swaps are not synchronized.
func (h *Handler) AttachProgress(ps ProgressSource) {
	h.progress = ps
}

// Healthz answers 200 unconditionally.
func (h *Handler) Healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, probeBody{Status: "ok"})
}

// Readyz runs every checker under its own [checkTimeout] and reports each
// result; the response is 503 when any checker failed, 200 otherwise.
func (h *Handler) Readyz(w http.ResponseWriter, r *http.Request) {
	body := probeBody{Status: "ok", Checks: make(map[string]string, len(h.checkers))}
	status := http.StatusOK

	for _, c := range h.checkers {
		if err := h.runCheck(r.Context(), c); err != nil {
			body.Checks[c.Name] = "fail: " + err.Error()
			body.Status = "fail"
			status = http.StatusServiceUnavailable
		} else {
			body.Checks[c.Name] = "ok"
		}
	}
	writeJSON(w, status, body)
}

func (h *Handler) runCheck(ctx context.Context, c Checker) error {
	ctx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()
	return c.Check(ctx)
}

// Progress reports run completion: "idle" before a run is attached,
// "running" while units remain, "done" once done plus failed covers the
// total.
func (h *Handler) Progress(w http.ResponseWriter, _ *http.Request) {
	if h.progress == nil {
		writeJSON(w, http.StatusOK, progressBody{Status: "idle"})
		return
	}

	done, failed, total := h.progress.Progress()
	body := progressBody{Status: "running", Done: done, Failed: failed, Total: total}
	if done+failed >= total {
		body.Status = "done"
	}
	writeJSON(w, http.StatusOK, body)
}

// Register mounts the three routes on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", h.Healthz)
	mux.HandleFunc("GET /readyz", h.Readyz)
	mux.HandleFunc("GET /progress", h.Progress)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		http.Error(w, `{"status":"error"}`, http.StatusInternalServerError)
	}
}

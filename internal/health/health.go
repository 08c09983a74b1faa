// Package health provides HTTP liveness and readiness handlers for the relay.
//
//   - /healthz — liveness probe; returns 200 with current registry counts.
//   - /readyz  — readiness probe; returns 200 only when every registered
//     [Check] passes (providers configured, registry reachable).
//
// Responses are JSON with a top-level "status" field ("ok" or "fail"), the
// registry snapshot, and a "checks" map when checks are registered.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"time"
)

// checkTimeout bounds a single readiness check.
const checkTimeout = 5 * time.Second

// Snapshot is a point-in-time view of the session registry, reported on both
// probes so operators can read load at a glance.
type Snapshot struct {
	ActiveSessions  int `json:"activeSessions"`
	PendingSessions int `json:"pendingSessions"`
	Participants    int `json:"participants"`
	Waiting         int `json:"waiting"`
}

// Check is a named readiness check. Check functions must respect context
// cancellation and return nil when the dependency is usable.
type Check struct {
	// Name appears as a key in the JSON "checks" map (e.g. "asr", "mt", "tts").
	Name string

	// Probe evaluates the dependency.
	Probe func(ctx context.Context) error
}

// ConfiguredCheck returns a [Check] that passes when configured is true.
// Used to report whether a provider stage has at least one usable credential.
func ConfiguredCheck(name string, configured bool) Check {
	return Check{
		Name: name,
		Probe: func(context.Context) error {
			if !configured {
				return errNotConfigured
			}
			return nil
		},
	}
}

var errNotConfigured = &configError{}

type configError struct{}

func (*configError) Error() string { return "no provider configured" }

// result is the JSON response body for both probes.
type result struct {
	Status   string            `json:"status"`
	Registry Snapshot          `json:"registry"`
	Checks   map[string]string `json:"checks,omitempty"`
}

// Handler serves the health endpoints. Safe for concurrent use; the check
// list is fixed at construction.
type Handler struct {
	snapshot func() Snapshot
	checks   []Check
}

// New creates a [Handler]. snapshot supplies the current registry counts; a
// nil snapshot reports zeros. Checks are evaluated in order on each /readyz
// request.
func New(snapshot func() Snapshot, checks ...Check) *Handler {
	if snapshot == nil {
		snapshot = func() Snapshot { return Snapshot{} }
	}
	c := make([]Check, len(checks))
	copy(c, checks)
	return &Handler{snapshot: snapshot, checks: c}
}

// Healthz is the liveness probe. A process that can serve HTTP and read its
// registry is alive, so this always returns 200.
func (h *Handler) Healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, result{Status: "ok", Registry: h.snapshot()})
}

// Readyz is the readiness probe. It returns 200 only when every registered
// [Check] passes; each check runs under a [checkTimeout] deadline derived
// from the request context.
func (h *Handler) Readyz(w http.ResponseWriter, r *http.Request) {
	checks := make(map[string]string, len(h.checks))
	allOK := true

	for _, c := range h.checks {
		ctx, cancel := context.WithTimeout(r.Context(), checkTimeout)
		err := c.Probe(ctx)
		cancel()

		if err != nil {
			checks[c.Name] = "fail: " + err.Error()
			allOK = false
		} else {
			checks[c.Name] = "ok"
		}
	}

	res := result{
		Status:   "ok",
		Registry: h.snapshot(),
		Checks:   checks,
	}
	status := http.StatusOK
	if !allOK {
		res.Status = "fail"
		status = http.StatusServiceUnavailable
	}

	writeJSON(w, status, res)
}

// Register adds the /healthz and /readyz routes to mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", h.Healthz)
	mux.HandleFunc("GET /readyz", h.Readyz)
}

// writeJSON encodes v as JSON with the given status code. On encoding failure
// it falls back to a plain-text 500 response.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"status":"error"}`, http.StatusInternalServerError)
	}
}

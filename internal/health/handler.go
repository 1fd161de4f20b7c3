// Package health exposes the /api/v1/health and /api/v1/ready HTTP handlers.
package health

import (
	"context"
	"net/http"
	"sort"
	"time"

	"github.com/d9705996/commune/internal/api/jsonapi"
	"github.com/d9705996/commune/internal/version"
)

// Pinger is implemented by anything that can check a downstream dependency.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handler holds dependencies for the health and ready endpoints.
type Handler struct {
	checks    map[string]Pinger
	startTime time.Time
}

// New creates a Handler over named dependency checks, for example
// {"database": db.NewPinger(gdb)}. With no checks /ready returns 503.
func New(checks map[string]Pinger) *Handler {
	return &Handler{checks: checks, startTime: time.Now()}
}

// healthAttrs is the JSON:API attributes payload for the health response.
type healthAttrs struct {
	Status        string `json:"status"`
	Version       string `json:"version"`
	Commit        string `json:"commit"`
	BuildDate     string `json:"build_date"`
	UptimeSeconds int64  `json:"uptime_seconds"`
}

// ServeHealth handles GET /api/v1/health.
func (h *Handler) ServeHealth(w http.ResponseWriter, r *http.Request) {
	jsonapi.RenderOne(w, http.StatusOK, jsonapi.ResourceObject{
		Type: "health",
		ID:   "1",
		Attributes: healthAttrs{
			Status:        "ok",
			Version:       version.Version,
			Commit:        version.Commit,
			BuildDate:     version.Date,
			UptimeSeconds: int64(time.Since(h.startTime).Seconds()),
		},
	})
}

// ServeReady handles GET /api/v1/ready.
// Returns 200 when every dependency answers; 503 with one error per failed
// dependency otherwise.
func (h *Handler) ServeReady(w http.ResponseWriter, r *http.Request) {
	if len(h.checks) == 0 {
		jsonapi.RenderError(w, http.StatusServiceUnavailable,
			"dependency_unavailable", "Service Unavailable",
			"no dependency checks are configured")
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	names := make([]string, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	status := map[string]string{}
	var failed []jsonapi.ErrorObject
	for _, name := range names {
		if err := h.checks[name].Ping(ctx); err != nil {
			status[name] = "unavailable"
			failed = append(failed, jsonapi.ErrorObject{
				Status: http.StatusText(http.StatusServiceUnavailable),
				Code:   "dependency_unavailable",
				Title:  "Service Unavailable",
				Detail: name + " is unreachable: " + err.Error(),
			})
			continue
		}
		status[name] = "ok"
	}
	if len(failed) > 0 {
		jsonapi.RenderErrors(w, http.StatusServiceUnavailable, failed)
		return
	}

	jsonapi.RenderOne(w, http.StatusOK, jsonapi.ResourceObject{
		Type:       "ready",
		ID:         "1",
		Attributes: status,
	})
}

package handler

import (
	"net/http"
	"runtime"
	"time"

	"pronto-ballbot/internal/poller"
	"pronto-ballbot/pkg/response"
)

// StatsSource reports dispatcher activity.
type StatsSource interface {
	Stats() poller.Stats
}

// Handler serves the public health endpoints.
type Handler struct {
	service    string
	version    string
	dispatcher StatsSource
	startTime  time.Time
}

// New creates a new handler. dispatcher may be nil.
func New(service, version string, dispatcher StatsSource) *Handler {
	return &Handler{
		service:    service,
		version:    version,
		dispatcher: dispatcher,
		startTime:  time.Now(),
	}
}

// HealthResponse represents the health check response.
type HealthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Version   string    `json:"version"`
}

// Health handles GET /api/v1/health
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	response.OK(w, HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC(),
		Version:   h.version,
	})
}

// StatusChecks represents the checks in status response
type StatusChecks struct {
	Poller   string  `json:"poller"`
	MemoryMB float64 `json:"memory_mb"`
}

// StatusResponse is the bot monitoring payload.
type StatusResponse struct {
	Service       string       `json:"service"`
	Status        string       `json:"status"`
	State         string       `json:"state,omitempty"`
	Cursor        string       `json:"cursor,omitempty"`
	Timestamp     string       `json:"timestamp"`
	UptimeSeconds int64        `json:"uptime_seconds"`
	Checks        StatusChecks `json:"checks"`
}

// Status handles GET /api/status
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)
	memoryMB := float64(memStats.Alloc) / 1024 / 1024

	resp := StatusResponse{
		Service:       h.service,
		Status:        "ok",
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
		UptimeSeconds: int64(time.Since(h.startTime).Seconds()),
		Checks: StatusChecks{
			Poller:   "not_configured",
			MemoryMB: float64(int(memoryMB*100)) / 100,
		},
	}
	if h.dispatcher != nil {
		st := h.dispatcher.Stats()
		resp.State = st.State
		resp.Cursor = st.Cursor
		resp.Checks.Poller = pollerHealth(st)
	}

	w.Header().Set("Cache-Control", "no-store, no-cache, must-revalidate")
	response.OK(w, resp)
}

// pollerHealth is "degraded" when every poll so far has failed.
func pollerHealth(st poller.Stats) string {
	switch {
	case st.Polls == 0:
		return "starting"
	case st.FetchErrors >= st.Polls:
		return "degraded"
	default:
		return "ok"
	}
}

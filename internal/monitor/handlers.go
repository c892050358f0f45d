package monitor

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/HerbHall/creditdesk/internal/auth"
	"go.uber.org/zap"
)

// Handler serves the monitor API.
type Handler struct {
	monitor *Monitor
	logger  *zap.Logger
}

func NewHandler(m *Monitor, logger *zap.Logger) *Handler {
	return &Handler{monitor: m, logger: logger}
}

var anyRole = []auth.Role{auth.RoleAdmin, auth.RoleStaff, auth.RoleClient}

func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/monitor/report", auth.RequireRole(h.handleReport, anyRole...))
	mux.HandleFunc("GET /api/v1/monitor/history", auth.RequireRole(h.handleHistory, anyRole...))
	mux.HandleFunc("GET /api/v1/monitor/probes", auth.RequireRole(h.handleProbes, anyRole...))
	mux.HandleFunc("POST /api/v1/monitor/run", auth.RequireRole(h.handleRun, auth.RoleAdmin))
	mux.HandleFunc("POST /api/v1/monitor/alerts/reset", auth.RequireRole(h.handleResetAlerts, auth.RoleAdmin))
}

// handleReport returns the latest health report.
//
//	@Summary		Latest health report
//	@Tags			monitor
//	@Produce		json
//	@Security		BearerAuth
//	@Success		200	{object}	HealthReport
//	@Failure		401	{object}	server.Problem
//	@Failure		404	{object}	server.Problem
//	@Router			/monitor/report [get]
func (h *Handler) handleReport(w http.ResponseWriter, r *http.Request) {
	report, err := h.monitor.Latest(r.Context())
	if errors.Is(err, ErrNoReport) {
		writeProblem(w, http.StatusNotFound, "no health cycle has completed yet")
		return
	}
	if err != nil {
		h.logger.Warn("failed to load latest report", zap.Error(err))
		writeProblem(w, http.StatusInternalServerError, "failed to load report")
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// handleHistory returns stored reports, newest first.
//
//	@Summary		Health report history
//	@Tags			monitor
//	@Produce		json
//	@Security		BearerAuth
//	@Param			since	query		string	false	"RFC 3339 lower bound (default 24h ago)"
//	@Param			limit	query		int		false	"Maximum reports"	default(100)
//	@Success		200		{array}		HealthReport
//	@Failure		400		{object}	server.Problem
//	@Router			/monitor/history [get]
func (h *Handler) handleHistory(w http.ResponseWriter, r *http.Request) {
	since := h.monitor.clock.Now().Add(-24 * time.Hour)
	if s := r.URL.Query().Get("since"); s != "" {
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			writeProblem(w, http.StatusBadRequest, "since must be an RFC 3339 timestamp")
			return
		}
		since = t
	}
	limit := 100
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 || n > 1000 {
			writeProblem(w, http.StatusBadRequest, "limit must be between 1 and 1000")
			return
		}
		limit = n
	}
	reports, err := h.monitor.History(r.Context(), since, limit)
	if err != nil {
		h.logger.Warn("failed to load report history", zap.Error(err))
		writeProblem(w, http.StatusInternalServerError, "failed to load history")
		return
	}
	writeJSON(w, http.StatusOK, reports)
}

// ProbesResponse lists the configured probes.
type ProbesResponse struct {
	Probes        []string `json:"probes"`
	AlertCooldown string   `json:"alert_cooldown"`
	TrackedAlerts int      `json:"tracked_alerts"`
}

// handleProbes lists the configured probes and gate state.
//
//	@Summary		Configured probes
//	@Tags			monitor
//	@Produce		json
//	@Security		BearerAuth
//	@Success		200	{object}	ProbesResponse
//	@Router			/monitor/probes [get]
func (h *Handler) handleProbes(w http.ResponseWriter, _ *http.Request) {
	gate := h.monitor.Gate()
	writeJSON(w, http.StatusOK, ProbesResponse{
		Probes:        h.monitor.Probes(),
		AlertCooldown: gate.Cooldown().String(),
		TrackedAlerts: gate.Len(),
	})
}

// handleRun triggers a cycle and returns its report.
//
//	@Summary		Run health cycle
//	@Tags			monitor
//	@Produce		json
//	@Security		BearerAuth
//	@Success		200	{object}	HealthReport
//	@Failure		403	{object}	server.Problem
//	@Router			/monitor/run [post]
func (h *Handler) handleRun(w http.ResponseWriter, r *http.Request) {
	report, err := h.monitor.RunOnce(r.Context())
	if err != nil {
		// The cycle itself completed; only a side effect failed.
		h.logger.Warn("manual health cycle", zap.Error(err))
	}
	writeJSON(w, http.StatusOK, report)
}

// handleResetAlerts clears the alert cooldowns.
//
//	@Summary		Reset alert cooldowns
//	@Tags			monitor
//	@Security		BearerAuth
//	@Success		204
//	@Failure		403	{object}	server.Problem
//	@Router			/monitor/alerts/reset [post]
func (h *Handler) handleResetAlerts(w http.ResponseWriter, r *http.Request) {
	h.monitor.Gate().Reset()
	if c := auth.ClaimsFromContext(r.Context()); c != nil {
		h.logger.Info("alert cooldowns reset", zap.String("user_id", c.UserID))
	}
	w.WriteHeader(http.StatusNoContent)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeProblem(w http.ResponseWriter, status int, detail string) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"type":   "https://creditdesk.dev/problems/monitor-error",
		"title":  http.StatusText(status),
		"status": status,
		"detail": detail,
	})
}

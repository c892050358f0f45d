package casework

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/HerbHall/creditdesk/internal/auth"
	"go.uber.org/zap"
)

type Handler struct {
	service *Service
	logger  *zap.Logger
}

func NewHandler(service *Service, logger *zap.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

var (
	staffRoles = []auth.Role{auth.RoleAdmin, auth.RoleStaff}
	allRoles   = []auth.Role{auth.RoleAdmin, auth.RoleStaff, auth.RoleClient}
)

func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/v1/clients", auth.RequireRole(h.handleCreateClient, staffRoles...))
	mux.HandleFunc("GET /api/v1/clients", auth.RequireRole(h.handleListClients, staffRoles...))
	mux.HandleFunc("GET /api/v1/clients/{id}", auth.RequireRole(h.handleGetClient, staffRoles...))
	mux.HandleFunc("GET /api/v1/clients/{id}/disputes", auth.RequireRole(h.handleClientDisputes, staffRoles...))
	mux.HandleFunc("POST /api/v1/disputes", auth.RequireRole(h.handleCreateDispute, staffRoles...))
	mux.HandleFunc("GET /api/v1/disputes", auth.RequireRole(h.handleListDisputes, staffRoles...))
	mux.HandleFunc("GET /api/v1/disputes/{id}", auth.RequireRole(h.handleGetDispute, staffRoles...))
	mux.HandleFunc("GET /api/v1/enforcement-stages", auth.RequireRole(h.handleStages, allRoles...))
	mux.HandleFunc("GET /api/v1/stats", auth.RequireRole(h.handleStats, staffRoles...))
}

// handleCreateClient opens a client file.
//
//	@Summary		Create client
//	@Tags			casework
//	@Accept			json
//	@Produce		json
//	@Security		BearerAuth
//	@Param			request	body		CreateClientRequest	true	"Client"
//	@Success		201		{object}	Client
//	@Failure		400		{object}	server.Problem
//	@Router			/clients [post]
func (h *Handler) handleCreateClient(w http.ResponseWriter, r *http.Request) {
	var req CreateClientRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeProblem(w, http.StatusBadRequest, "invalid request body")
		return
	}
	c, err := h.service.CreateClient(r.Context(), req)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

// handleListClients lists all clients.
//
//	@Summary		List clients
//	@Tags			casework
//	@Produce		json
//	@Security		BearerAuth
//	@Success		200	{array}	Client
//	@Router			/clients [get]
func (h *Handler) handleListClients(w http.ResponseWriter, r *http.Request) {
	clients, err := h.service.ListClients(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, clients)
}

// handleGetClient returns one client.
//
//	@Summary		Get client
//	@Tags			casework
//	@Produce		json
//	@Security		BearerAuth
//	@Param			id	path		string	true	"Client ID"
//	@Success		200	{object}	Client
//	@Failure		404	{object}	server.Problem
//	@Router			/clients/{id} [get]
func (h *Handler) handleGetClient(w http.ResponseWriter, r *http.Request) {
	c, err := h.service.GetClient(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// handleClientDisputes lists a client's disputes.
//
//	@Summary		Client disputes
//	@Tags			casework
//	@Produce		json
//	@Security		BearerAuth
//	@Param			id	path	string	true	"Client ID"
//	@Success		200	{array}	Dispute
//	@Failure		404	{object}	server.Problem
//	@Router			/clients/{id}/disputes [get]
func (h *Handler) handleClientDisputes(w http.ResponseWriter, r *http.Request) {
	disputes, err := h.service.ListClientDisputes(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, disputes)
}

// handleCreateDispute files a dispute.
//
//	@Summary		Create dispute
//	@Tags			casework
//	@Accept			json
//	@Produce		json
//	@Security		BearerAuth
//	@Param			request	body		CreateDisputeRequest	true	"Dispute"
//	@Success		201		{object}	Dispute
//	@Failure		400		{object}	server.Problem
//	@Failure		404		{object}	server.Problem
//	@Router			/disputes [post]
func (h *Handler) handleCreateDispute(w http.ResponseWriter, r *http.Request) {
	var req CreateDisputeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeProblem(w, http.StatusBadRequest, "invalid request body")
		return
	}
	d, err := h.service.CreateDispute(r.Context(), req)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, d)
}

// handleListDisputes lists all disputes.
//
//	@Summary		List disputes
//	@Tags			casework
//	@Produce		json
//	@Security		BearerAuth
//	@Success		200	{array}	Dispute
//	@Router			/disputes [get]
func (h *Handler) handleListDisputes(w http.ResponseWriter, r *http.Request) {
	disputes, err := h.service.ListDisputes(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, disputes)
}

// handleGetDispute returns one dispute.
//
//	@Summary		Get dispute
//	@Tags			casework
//	@Produce		json
//	@Security		BearerAuth
//	@Param			id	path		string	true	"Dispute ID"
//	@Success		200	{object}	Dispute
//	@Failure		404	{object}	server.Problem
//	@Router			/disputes/{id} [get]
func (h *Handler) handleGetDispute(w http.ResponseWriter, r *http.Request) {
	d, err := h.service.GetDispute(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

// handleStages lists the enforcement stages.
//
//	@Summary		Enforcement stages
//	@Tags			casework
//	@Produce		json
//	@Security		BearerAuth
//	@Success		200	{array}	Stage
//	@Router			/enforcement-stages [get]
func (h *Handler) handleStages(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, EnforcementStages())
}

// handleStats summarizes the caseload.
//
//	@Summary		Caseload statistics
//	@Tags			casework
//	@Produce		json
//	@Security		BearerAuth
//	@Success		200	{object}	Stats
//	@Router			/stats [get]
func (h *Handler) handleStats(w http.ResponseWriter, r *http.Request) {
	st, err := h.service.Stats(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	var v *ValidationError
	switch {
	case errors.As(err, &v):
		writeProblem(w, http.StatusBadRequest, v.Msg)
	case errors.Is(err, ErrClientNotFound), errors.Is(err, ErrDisputeNotFound):
		writeProblem(w, http.StatusNotFound, err.Error())
	default:
		h.logger.Error("casework request failed", zap.Error(err))
		writeProblem(w, http.StatusInternalServerError, "internal error")
	}
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
		"type":   "https://creditdesk.dev/problems/casework-error",
		"title":  http.StatusText(status),
		"status": status,
		"detail": detail,
	})
}

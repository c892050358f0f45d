package postal

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/HerbHall/creditdesk/internal/auth"
	"go.uber.org/zap"
)

type Handler struct {
	client *Client
	logger *zap.Logger
}

func NewHandler(client *Client, logger *zap.Logger) *Handler {
	return &Handler{client: client, logger: logger}
}

func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/v1/postal/address/verify", auth.RequireRole(h.handleVerify, auth.RoleAdmin, auth.RoleStaff))
	mux.HandleFunc("GET /api/v1/postal/tracking/{number}", auth.RequireRole(h.handleTrack, auth.RoleAdmin, auth.RoleStaff))
	mux.HandleFunc("GET /api/v1/postal/health", auth.RequireRole(h.handleHealth, auth.RoleAdmin, auth.RoleStaff))
}

// handleVerify standardizes an address.
//
//	@Summary		Verify address
//	@Tags			postal
//	@Accept			json
//	@Produce		json
//	@Security		BearerAuth
//	@Param			request	body		Address	true	"Address"
//	@Success		200		{object}	AddressResult
//	@Failure		502		{object}	server.Problem
//	@Failure		503		{object}	server.Problem
//	@Router			/postal/address/verify [post]
func (h *Handler) handleVerify(w http.ResponseWriter, r *http.Request) {
	var a Address
	if err := json.NewDecoder(r.Body).Decode(&a); err != nil {
		writeProblem(w, http.StatusBadRequest, "invalid request body")
		return
	}
	res, err := h.client.VerifyAddress(r.Context(), a)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// handleTrack returns the delivery state of a mailed letter.
//
//	@Summary		Track package
//	@Tags			postal
//	@Produce		json
//	@Security		BearerAuth
//	@Param			number	path		string	true	"Tracking number"
//	@Success		200		{object}	TrackingResult
//	@Failure		502		{object}	server.Problem
//	@Router			/postal/tracking/{number} [get]
func (h *Handler) handleTrack(w http.ResponseWriter, r *http.Request) {
	res, err := h.client.TrackPackage(r.Context(), r.PathValue("number"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// handleHealth reports whether a carrier token can be obtained.
//
//	@Summary		Postal client health
//	@Tags			postal
//	@Produce		json
//	@Security		BearerAuth
//	@Success		200	{object}	map[string]any
//	@Router			/postal/health [get]
func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{"enabled": h.client.Enabled()}
	if h.client.Enabled() {
		if _, err := h.client.Token(r.Context()); err != nil {
			resp["status"] = "error"
			resp["error"] = "token request failed"
			h.logger.Warn("postal token check failed", zap.Error(err))
		} else {
			resp["status"] = "healthy"
		}
	} else {
		resp["status"] = "disabled"
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	var apiErr *APIError
	switch {
	case errors.Is(err, ErrDisabled):
		writeProblem(w, http.StatusServiceUnavailable, ErrDisabled.Error())
	case errors.As(err, &apiErr):
		writeProblem(w, http.StatusBadGateway, "carrier API rejected the request")
	case errors.Is(err, ErrInvalidInput):
		writeProblem(w, http.StatusBadRequest, err.Error())
	default:
		h.logger.Warn("postal request failed", zap.Error(err))
		writeProblem(w, http.StatusBadGateway, "carrier API unavailable")
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
		"type":   "https://creditdesk.dev/problems/postal-error",
		"title":  http.StatusText(status),
		"status": status,
		"detail": detail,
	})
}

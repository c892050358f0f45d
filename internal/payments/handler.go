package payments

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/HerbHall/creditdesk/internal/auth"
	"github.com/HerbHall/creditdesk/pkg/platform"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

// TopicWebhookReceived is published for every verified processor webhook;
// the payload is the *Event.
const TopicWebhookReceived = "payments.webhook.received"

// maxWebhookBody bounds a webhook payload.
const maxWebhookBody = 256 << 10

var staffRoles = []auth.Role{auth.RoleAdmin, auth.RoleStaff}

type Handler struct {
	client *Client
	bus    platform.Publisher
	clock  clockwork.Clock
	logger *zap.Logger
}

// NewHandler serves the payment routes. bus may be nil.
func NewHandler(client *Client, bus platform.Publisher, clock clockwork.Clock, logger *zap.Logger) *Handler {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Handler{client: client, bus: bus, clock: clock, logger: logger}
}

func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/payments/health", auth.RequireRole(h.handleHealth, staffRoles...))
	mux.HandleFunc("GET /api/v1/payments/plans", auth.RequireRole(h.handlePlans, auth.RoleAdmin, auth.RoleStaff, auth.RoleClient))
	mux.HandleFunc("POST /api/v1/payments/customers", auth.RequireRole(h.handleCreateCustomer, staffRoles...))
	mux.HandleFunc("GET /api/v1/payments/customers/{id}/subscriptions", auth.RequireRole(h.handleListSubscriptions, staffRoles...))
	mux.HandleFunc("POST /api/v1/payments/payment-intents", auth.RequireRole(h.handleCreatePaymentIntent, staffRoles...))
	mux.HandleFunc("POST /api/v1/payments/subscriptions", auth.RequireRole(h.handleCreateSubscription, staffRoles...))
	mux.HandleFunc("POST /api/v1/payments/subscriptions/{id}/cancel", auth.RequireRole(h.handleCancelSubscription, staffRoles...))
	mux.HandleFunc("POST /api/v1/payments/webhook", h.handleWebhook)
}

// handleHealth reports whether the processor account can take charges.
//
//	@Summary		Payment provider health
//	@Tags			payments
//	@Produce		json
//	@Security		BearerAuth
//	@Success		200	{object}	map[string]any
//	@Router			/payments/health [get]
func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	if !h.client.Enabled() {
		writeJSON(w, http.StatusOK, map[string]any{"healthy": false, "status": "disabled"})
		return
	}
	acct, err := h.client.Account(r.Context())
	if err != nil {
		h.logger.Warn("payment account lookup failed", zap.Error(err))
		writeJSON(w, http.StatusOK, map[string]any{"healthy": false, "status": "error", "error": "account lookup failed"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"healthy":         acct.ChargesEnabled,
		"status":          "operational",
		"account_id":      acct.ID,
		"charges_enabled": acct.ChargesEnabled,
		"payouts_enabled": acct.PayoutsEnabled,
	})
}

// handlePlans lists the service catalogue.
//
//	@Summary		Subscription plans
//	@Tags			payments
//	@Produce		json
//	@Security		BearerAuth
//	@Success		200	{object}	map[string][]Plan
//	@Router			/payments/plans [get]
func (h *Handler) handlePlans(w http.ResponseWriter, _ *http.Request) {
	plans := h.client.Plans()
	if plans == nil {
		plans = []Plan{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"plans": plans})
}

func (h *Handler) handleCreateCustomer(w http.ResponseWriter, r *http.Request) {
	var req CustomerRequest
	if !decode(w, r, &req) {
		return
	}
	c, err := h.client.CreateCustomer(r.Context(), req)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

func (h *Handler) handleCreatePaymentIntent(w http.ResponseWriter, r *http.Request) {
	var req PaymentIntentRequest
	if !decode(w, r, &req) {
		return
	}
	pi, err := h.client.CreatePaymentIntent(r.Context(), req)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, pi)
}

func (h *Handler) handleCreateSubscription(w http.ResponseWriter, r *http.Request) {
	var req SubscriptionRequest
	if !decode(w, r, &req) {
		return
	}
	s, err := h.client.CreateSubscription(r.Context(), req)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, s)
}

func (h *Handler) handleListSubscriptions(w http.ResponseWriter, r *http.Request) {
	subs, err := h.client.ListSubscriptions(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"subscriptions": subs})
}

func (h *Handler) handleCancelSubscription(w http.ResponseWriter, r *http.Request) {
	s, err := h.client.CancelSubscription(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s)
}

// handleWebhook accepts signed processor events and republishes them on the
// event bus. Unsigned or stale deliveries are rejected.
//
//	@Summary		Payment webhook
//	@Tags			payments
//	@Accept			json
//	@Produce		json
//	@Param			Stripe-Signature	header		string	true	"t=<unix>,v1=<hmac>"
//	@Success		200					{object}	map[string]bool
//	@Failure		400					{object}	server.Problem
//	@Router			/payments/webhook [post]
func (h *Handler) handleWebhook(w http.ResponseWriter, r *http.Request) {
	secret := h.client.cfg.WebhookSecret
	if secret == "" {
		writeProblem(w, http.StatusServiceUnavailable, "webhook secret not configured")
		return
	}
	payload, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		writeProblem(w, http.StatusBadRequest, "unreadable body")
		return
	}
	if err := VerifySignature(payload, r.Header.Get(SignatureHeader), secret,
		h.client.cfg.WebhookTolerance, h.clock.Now()); err != nil {
		h.logger.Warn("webhook rejected", zap.Error(err))
		writeProblem(w, http.StatusBadRequest, err.Error())
		return
	}

	var ev Event
	if err := json.Unmarshal(payload, &ev); err != nil || ev.Type == "" {
		writeProblem(w, http.StatusBadRequest, "invalid event payload")
		return
	}
	h.logger.Info("payment webhook received", zap.String("event_id", ev.ID), zap.String("type", ev.Type))
	if h.bus != nil {
		if err := h.bus.Publish(r.Context(), platform.Event{
			Topic:     TopicWebhookReceived,
			Source:    "payments",
			Timestamp: h.clock.Now().UTC(),
			Payload:   &ev,
		}); err != nil {
			h.logger.Warn("publish webhook event", zap.Error(err))
		}
	}
	writeJSON(w, http.StatusOK, map[string]bool{"received": true})
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	var apiErr *APIError
	switch {
	case errors.Is(err, ErrDisabled):
		writeProblem(w, http.StatusServiceUnavailable, ErrDisabled.Error())
	case errors.Is(err, ErrInvalidInput):
		writeProblem(w, http.StatusBadRequest, err.Error())
	case errors.As(err, &apiErr) && apiErr.StatusCode < 500:
		writeProblem(w, http.StatusBadRequest, apiErr.Message)
	default:
		h.logger.Warn("payment request failed", zap.Error(err))
		writeProblem(w, http.StatusBadGateway, "payment provider unavailable")
	}
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeProblem(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
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
		"type":   "https://creditdesk.dev/problems/payment-error",
		"title":  http.StatusText(status),
		"status": status,
		"detail": detail,
	})
}

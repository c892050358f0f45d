package payments

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/HerbHall/creditdesk/internal/auth"
	"github.com/HerbHall/creditdesk/internal/event"
	"github.com/HerbHall/creditdesk/pkg/platform"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

func withRole(role auth.Role) func(*http.Request) *http.Request {
	return func(r *http.Request) *http.Request {
		return r.WithContext(auth.WithClaims(r.Context(), &auth.Claims{UserID: "u1", Role: role}))
	}
}

func TestHandler(t *testing.T) {
	p := newProcessor(t)
	mux := http.NewServeMux()
	NewHandler(p.client(), nil, nil, zap.NewNop()).RegisterRoutes(mux)
	staff := withRole(auth.RoleStaff)

	tests := []struct {
		method, path, body string
		want               int
	}{
		{"GET", "/api/v1/payments/health", "", http.StatusOK},
		{"GET", "/api/v1/payments/plans", "", http.StatusOK},
		{"POST", "/api/v1/payments/customers", `{"email":"ada@example.com","name":"Ada User"}`, http.StatusCreated},
		{"POST", "/api/v1/payments/customers", `{"email":"nope","name":"Ada"}`, http.StatusBadRequest},
		{"POST", "/api/v1/payments/customers", `not json`, http.StatusBadRequest},
		{"POST", "/api/v1/payments/payment-intents", `{"amount":19700,"customer_id":"cus_1"}`, http.StatusCreated},
		{"POST", "/api/v1/payments/payment-intents", `{"amount":0}`, http.StatusBadRequest},
		{"POST", "/api/v1/payments/subscriptions", `{"customer_id":"cus_1","price_id":"price_pro"}`, http.StatusCreated},
		{"POST", "/api/v1/payments/subscriptions", `{"customer_id":"cus_1","price_id":"price_missing"}`, http.StatusBadRequest},
		{"GET", "/api/v1/payments/customers/cus_1/subscriptions", "", http.StatusOK},
		{"POST", "/api/v1/payments/subscriptions/sub_1/cancel", "", http.StatusOK},
	}
	for _, tc := range tests {
		w := httptest.NewRecorder()
		mux.ServeHTTP(w, staff(httptest.NewRequest(tc.method, tc.path, strings.NewReader(tc.body))))
		if w.Code != tc.want {
			t.Errorf("%s %s = %d, want %d (%s)", tc.method, tc.path, w.Code, tc.want, w.Body.String())
		}
	}
}

func TestHandler_Roles(t *testing.T) {
	mux := http.NewServeMux()
	NewHandler(newProcessor(t).client(), nil, nil, zap.NewNop()).RegisterRoutes(mux)
	client := withRole(auth.RoleClient)

	w := httptest.NewRecorder()
	mux.ServeHTTP(w, client(httptest.NewRequest("GET", "/api/v1/payments/plans", nil)))
	if w.Code != http.StatusOK {
		t.Fatalf("client plans = %d", w.Code)
	}
	var body struct {
		Plans []Plan `json:"plans"`
	}
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil || len(body.Plans) != 3 {
		t.Errorf("plans = %+v, %v", body.Plans, err)
	}

	w = httptest.NewRecorder()
	mux.ServeHTTP(w, client(httptest.NewRequest("POST", "/api/v1/payments/customers", strings.NewReader(`{}`))))
	if w.Code != http.StatusForbidden {
		t.Errorf("client create customer = %d, want 403", w.Code)
	}
}

func TestHandler_HealthStates(t *testing.T) {
	p := newProcessor(t)
	p.accountFail.Store(true)
	staff := withRole(auth.RoleStaff)

	tests := []struct {
		name   string
		client *Client
		status string
	}{
		{"disabled", New(Config{}, nil, zap.NewNop()), "disabled"},
		{"lookup failure", p.client(), "error"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			mux := http.NewServeMux()
			NewHandler(tc.client, nil, nil, zap.NewNop()).RegisterRoutes(mux)
			w := httptest.NewRecorder()
			mux.ServeHTTP(w, staff(httptest.NewRequest("GET", "/api/v1/payments/health", nil)))
			var body map[string]any
			_ = json.NewDecoder(w.Body).Decode(&body)
			if w.Code != http.StatusOK || body["healthy"] != false || body["status"] != tc.status {
				t.Errorf("health = %d %v", w.Code, body)
			}
		})
	}

	disabled := http.NewServeMux()
	NewHandler(New(Config{}, nil, zap.NewNop()), nil, nil, zap.NewNop()).RegisterRoutes(disabled)
	w := httptest.NewRecorder()
	disabled.ServeHTTP(w, staff(httptest.NewRequest("POST", "/api/v1/payments/payment-intents", strings.NewReader(`{"amount":100}`))))
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("disabled payment intent = %d, want 503", w.Code)
	}
}

func TestHandler_Webhook(t *testing.T) {
	p := newProcessor(t)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	clock := clockwork.NewFakeClockAt(now)
	bus := event.NewBus(zap.NewNop())

	var got []platform.Event
	bus.Subscribe(TopicWebhookReceived, func(_ context.Context, ev platform.Event) {
		got = append(got, ev)
	})

	mux := http.NewServeMux()
	NewHandler(p.client(), bus, clock, zap.NewNop()).RegisterRoutes(mux)

	payload := `{"id":"evt_1","type":"customer.subscription.deleted","created":1772366400,"data":{"object":{"id":"sub_1"}}}`
	secret := p.config().WebhookSecret

	tests := []struct {
		name      string
		body      string
		signature string
		want      int
	}{
		{"valid", payload, SignatureHeaderValue([]byte(payload), secret, now), http.StatusOK},
		{"unsigned", payload, "", http.StatusBadRequest},
		{"forged", payload, SignatureHeaderValue([]byte(payload), "whsec_attacker", now), http.StatusBadRequest},
		{"replayed", payload, SignatureHeaderValue([]byte(payload), secret, now.Add(-time.Hour)), http.StatusBadRequest},
		{"signed garbage", `{"id":"evt_2"}`, SignatureHeaderValue([]byte(`{"id":"evt_2"}`), secret, now), http.StatusBadRequest},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			r := httptest.NewRequest("POST", "/api/v1/payments/webhook", strings.NewReader(tc.body))
			if tc.signature != "" {
				r.Header.Set(SignatureHeader, tc.signature)
			}
			w := httptest.NewRecorder()
			mux.ServeHTTP(w, r)
			if w.Code != tc.want {
				t.Errorf("status = %d, want %d (%s)", w.Code, tc.want, w.Body.String())
			}
		})
	}

	if len(got) != 1 {
		t.Fatalf("published events = %d, want 1", len(got))
	}
	ev, ok := got[0].Payload.(*Event)
	if !ok || ev.ID != "evt_1" || ev.Type != "customer.subscription.deleted" || got[0].Source != "payments" {
		t.Errorf("event = %+v payload = %+v", got[0], got[0].Payload)
	}
}

func TestHandler_WebhookWithoutSecret(t *testing.T) {
	p := newProcessor(t)
	cfg := p.config()
	cfg.WebhookSecret = ""
	mux := http.NewServeMux()
	NewHandler(New(cfg, nil, zap.NewNop()), nil, nil, zap.NewNop()).RegisterRoutes(mux)

	w := httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest("POST", "/api/v1/payments/webhook", strings.NewReader(`{}`)))
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", w.Code)
	}
}

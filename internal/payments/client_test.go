package payments

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/HerbHall/creditdesk/internal/monitor"
	"go.uber.org/zap"
)

const testKey = "sk_test_123"

// processor is a fake payment API speaking the form-encoded dialect.
type processor struct {
	srv            *httptest.Server
	chargesEnabled atomic.Bool
	accountFail    atomic.Bool
	lastForm       atomic.Value // url.Values
}

func newProcessor(t *testing.T) *processor {
	t.Helper()
	p := &processor{}
	p.chargesEnabled.Store(true)

	authed := func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("Authorization") != "Bearer "+testKey {
				w.WriteHeader(http.StatusUnauthorized)
				_, _ = w.Write([]byte(`{"error":{"type":"invalid_request_error","message":"Invalid API Key provided"}}`))
				return
			}
			if r.Method == http.MethodPost {
				if err := r.ParseForm(); err != nil {
					w.WriteHeader(http.StatusBadRequest)
					return
				}
				p.lastForm.Store(r.PostForm)
			}
			w.Header().Set("Content-Type", "application/json")
			next(w, r)
		}
	}
	reply := func(w http.ResponseWriter, v any) { _ = json.NewEncoder(w).Encode(v) }

	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/account", authed(func(w http.ResponseWriter, _ *http.Request) {
		if p.accountFail.Load() {
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = w.Write([]byte(`{"error":{"type":"api_error","message":"upstream down"}}`))
			return
		}
		reply(w, Account{ID: "acct_1", ChargesEnabled: p.chargesEnabled.Load(), PayoutsEnabled: true})
	}))
	mux.HandleFunc("POST /v1/customers", authed(func(w http.ResponseWriter, r *http.Request) {
		reply(w, Customer{ID: "cus_1", Email: r.PostForm.Get("email"), Name: r.PostForm.Get("name")})
	}))
	mux.HandleFunc("POST /v1/payment_intents", authed(func(w http.ResponseWriter, r *http.Request) {
		reply(w, map[string]any{
			"id": "pi_1", "client_secret": "pi_1_secret", "amount": 19700,
			"currency": r.PostForm.Get("currency"), "status": "requires_payment_method",
		})
	}))
	mux.HandleFunc("POST /v1/subscriptions", authed(func(w http.ResponseWriter, r *http.Request) {
		if r.PostForm.Get("items[0][price]") == "price_missing" {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":{"type":"invalid_request_error","code":"resource_missing","message":"No such price"}}`))
			return
		}
		reply(w, Subscription{ID: "sub_1", Status: "incomplete"})
	}))
	mux.HandleFunc("GET /v1/subscriptions", authed(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("customer") != "cus_1" {
			reply(w, map[string]any{"data": []any{}})
			return
		}
		reply(w, map[string]any{"data": []Subscription{{ID: "sub_1", Status: "active"}}})
	}))
	mux.HandleFunc("POST /v1/subscriptions/{id}", authed(func(w http.ResponseWriter, r *http.Request) {
		reply(w, Subscription{ID: r.PathValue("id"), Status: "active", CancelAtPeriodEnd: r.PostForm.Get("cancel_at_period_end") == "true"})
	}))

	p.srv = httptest.NewServer(mux)
	t.Cleanup(p.srv.Close)
	return p
}

func (p *processor) config() Config {
	cfg := DefaultConfig()
	cfg.Enabled = true
	cfg.BaseURL = p.srv.URL
	cfg.SecretKey = testKey
	cfg.WebhookSecret = "whsec_test"
	return cfg
}

func (p *processor) client() *Client {
	return New(p.config(), p.srv.Client(), zap.NewNop())
}

func TestClient_Calls(t *testing.T) {
	p := newProcessor(t)
	client := p.client()
	ctx := context.Background()

	acct, err := client.Account(ctx)
	if err != nil || acct.ID != "acct_1" || !acct.ChargesEnabled {
		t.Fatalf("Account = %+v, %v", acct, err)
	}

	cus, err := client.CreateCustomer(ctx, CustomerRequest{Email: "ada@example.com", Name: "Ada User"})
	if err != nil || cus.ID != "cus_1" || cus.Email != "ada@example.com" {
		t.Fatalf("CreateCustomer = %+v, %v", cus, err)
	}

	pi, err := client.CreatePaymentIntent(ctx, PaymentIntentRequest{Amount: 19700, CustomerID: "cus_1"})
	if err != nil || pi.Currency != "usd" || pi.ClientSecret == "" {
		t.Fatalf("CreatePaymentIntent = %+v, %v", pi, err)
	}
	if form := p.lastForm.Load().(url.Values); form.Get("automatic_payment_methods[enabled]") != "true" || form.Get("customer") != "cus_1" {
		t.Errorf("payment intent form = %v", form)
	}

	sub, err := client.CreateSubscription(ctx, SubscriptionRequest{CustomerID: "cus_1", PriceID: "price_pro"})
	if err != nil || sub.ID != "sub_1" {
		t.Fatalf("CreateSubscription = %+v, %v", sub, err)
	}

	subs, err := client.ListSubscriptions(ctx, "cus_1")
	if err != nil || len(subs) != 1 {
		t.Fatalf("ListSubscriptions = %+v, %v", subs, err)
	}
	none, err := client.ListSubscriptions(ctx, "cus_other")
	if err != nil || none == nil || len(none) != 0 {
		t.Errorf("ListSubscriptions(other) = %#v, %v", none, err)
	}

	canceled, err := client.CancelSubscription(ctx, "sub_1")
	if err != nil || !canceled.CancelAtPeriodEnd {
		t.Fatalf("CancelSubscription = %+v, %v", canceled, err)
	}
}

func TestClient_APIError(t *testing.T) {
	client := newProcessor(t).client()
	_, err := client.CreateSubscription(context.Background(), SubscriptionRequest{CustomerID: "cus_1", PriceID: "price_missing"})
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("err = %v, want APIError", err)
	}
	if apiErr.StatusCode != http.StatusBadRequest || apiErr.Code != "resource_missing" || apiErr.Message != "No such price" {
		t.Errorf("APIError = %+v", apiErr)
	}

	wrongKey := newProcessor(t)
	cfg := wrongKey.config()
	cfg.SecretKey = "sk_test_wrong"
	_, err = New(cfg, nil, zap.NewNop()).Account(context.Background())
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusUnauthorized {
		t.Errorf("err = %v, want APIError 401", err)
	}
}

func TestClient_ValidatesInput(t *testing.T) {
	client := newProcessor(t).client()
	ctx := context.Background()

	tests := []struct {
		name string
		call func() error
	}{
		{"bad email", func() error {
			_, err := client.CreateCustomer(ctx, CustomerRequest{Email: "not-an-email", Name: "Ada"})
			return err
		}},
		{"blank name", func() error {
			_, err := client.CreateCustomer(ctx, CustomerRequest{Email: "ada@example.com", Name: "  "})
			return err
		}},
		{"zero amount", func() error {
			_, err := client.CreatePaymentIntent(ctx, PaymentIntentRequest{})
			return err
		}},
		{"subscription without price", func() error {
			_, err := client.CreateSubscription(ctx, SubscriptionRequest{CustomerID: "cus_1"})
			return err
		}},
		{"list without customer", func() error {
			_, err := client.ListSubscriptions(ctx, "")
			return err
		}},
		{"cancel without id", func() error {
			_, err := client.CancelSubscription(ctx, "")
			return err
		}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if err := tc.call(); !errors.Is(err, ErrInvalidInput) {
				t.Errorf("err = %v, want ErrInvalidInput", err)
			}
		})
	}
}

func TestClient_Disabled(t *testing.T) {
	tests := []Config{
		{},
		{Enabled: true, BaseURL: "http://example.test"},
		{Enabled: false, SecretKey: testKey},
	}
	for _, cfg := range tests {
		client := New(cfg, nil, zap.NewNop())
		if client.Enabled() {
			t.Errorf("Enabled() = true for %+v", cfg)
		}
		if _, err := client.Account(context.Background()); !errors.Is(err, ErrDisabled) {
			t.Errorf("Account err = %v, want ErrDisabled", err)
		}
	}
}

func TestClient_TimeoutBoundsCall(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-release:
		}
	}))
	t.Cleanup(srv.Close)
	t.Cleanup(func() { close(release) })

	cfg := Config{Enabled: true, BaseURL: srv.URL, SecretKey: testKey, Timeout: 100 * time.Millisecond}
	start := time.Now()
	if _, err := New(cfg, nil, zap.NewNop()).Account(context.Background()); err == nil {
		t.Fatal("expected timeout error")
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("call took %v", elapsed)
	}
}

func TestAccountProbe(t *testing.T) {
	p := newProcessor(t)
	probe := NewAccountProbe(p.client(), nil)
	if probe.Name() != "payments" {
		t.Errorf("Name = %q", probe.Name())
	}

	res, err := probe.Check(context.Background())
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if res.Status != monitor.StatusHealthy || res.Details["account_id"] != "acct_1" || len(res.Alerts) != 0 {
		t.Errorf("healthy result = %+v", res)
	}

	p.chargesEnabled.Store(false)
	res, err = probe.Check(context.Background())
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if res.Status != monitor.StatusWarning || len(res.Alerts) != 1 {
		t.Errorf("charges disabled result = %+v", res)
	}

	p.accountFail.Store(true)
	if _, err := probe.Check(context.Background()); err == nil {
		t.Error("expected error when the account lookup fails")
	}
}

func TestAccountProbe_InAggregator(t *testing.T) {
	p := newProcessor(t)
	p.chargesEnabled.Store(false)

	agg := monitor.NewAggregator(monitor.AggregatorConfig{
		ProbeTimeout: 2 * time.Second,
		CycleTimeout: 5 * time.Second,
	}, nil, zap.NewNop())
	report := agg.RunCycle(context.Background(), []monitor.Probe{NewAccountProbe(p.client(), nil)})
	if len(report.Checks) != 1 || report.Checks[0].Status != monitor.StatusWarning {
		t.Fatalf("report = %+v", report)
	}
}

package payments

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/mail"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/HerbHall/creditdesk/internal/version"
	"go.uber.org/zap"
)

var _ Provider = (*Client)(nil)

// Client talks to the processor's form-encoded REST API with the account's
// secret key.
type Client struct {
	cfg    Config
	http   *http.Client
	logger *zap.Logger
}

// New builds a client. A disabled or key-less configuration yields a client
// whose calls return ErrDisabled. base supplies the transport; nil means
// http.DefaultTransport.
func New(cfg Config, base *http.Client, logger *zap.Logger) *Client {
	if cfg.Enabled && cfg.SecretKey == "" {
		logger.Warn("payment secret key not configured, provider disabled")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	var transport http.RoundTripper
	if base != nil {
		transport = base.Transport
	}
	return &Client{
		cfg:    cfg,
		http:   &http.Client{Timeout: cfg.Timeout, Transport: transport},
		logger: logger,
	}
}

func (c *Client) Enabled() bool { return c.cfg.Enabled && c.cfg.SecretKey != "" }

// Plans returns the configured service catalogue.
func (c *Client) Plans() []Plan { return c.cfg.Plans }

func (c *Client) Account(ctx context.Context) (*Account, error) {
	var out Account
	if err := c.do(ctx, http.MethodGet, "/v1/account", nil, &out); err != nil {
		return nil, fmt.Errorf("retrieve account: %w", err)
	}
	return &out, nil
}

func (c *Client) CreateCustomer(ctx context.Context, req CustomerRequest) (*Customer, error) {
	if _, err := mail.ParseAddress(req.Email); err != nil {
		return nil, fmt.Errorf("%w: a valid email is required", ErrInvalidInput)
	}
	if strings.TrimSpace(req.Name) == "" {
		return nil, fmt.Errorf("%w: name is required", ErrInvalidInput)
	}
	form := url.Values{"email": {req.Email}, "name": {req.Name}}
	if req.Phone != "" {
		form.Set("phone", req.Phone)
	}
	var out Customer
	if err := c.do(ctx, http.MethodPost, "/v1/customers", form, &out); err != nil {
		return nil, fmt.Errorf("create customer: %w", err)
	}
	c.logger.Info("payment customer created", zap.String("customer_id", out.ID))
	return &out, nil
}

func (c *Client) CreatePaymentIntent(ctx context.Context, req PaymentIntentRequest) (*PaymentIntent, error) {
	if req.Amount <= 0 {
		return nil, fmt.Errorf("%w: amount must be positive", ErrInvalidInput)
	}
	if req.Currency == "" {
		req.Currency = "usd"
	}
	form := url.Values{
		"amount":                             {strconv.FormatInt(req.Amount, 10)},
		"currency":                           {strings.ToLower(req.Currency)},
		"automatic_payment_methods[enabled]": {"true"},
	}
	if req.CustomerID != "" {
		form.Set("customer", req.CustomerID)
	}
	if req.Description != "" {
		form.Set("description", req.Description)
	}
	var out PaymentIntent
	if err := c.do(ctx, http.MethodPost, "/v1/payment_intents", form, &out); err != nil {
		return nil, fmt.Errorf("create payment intent: %w", err)
	}
	return &out, nil
}

func (c *Client) CreateSubscription(ctx context.Context, req SubscriptionRequest) (*Subscription, error) {
	if req.CustomerID == "" || req.PriceID == "" {
		return nil, fmt.Errorf("%w: customer_id and price_id are required", ErrInvalidInput)
	}
	form := url.Values{
		"customer":         {req.CustomerID},
		"items[0][price]":  {req.PriceID},
		"payment_behavior": {"default_incomplete"},
	}
	if req.PaymentMethodID != "" {
		form.Set("default_payment_method", req.PaymentMethodID)
	}
	var out Subscription
	if err := c.do(ctx, http.MethodPost, "/v1/subscriptions", form, &out); err != nil {
		return nil, fmt.Errorf("create subscription: %w", err)
	}
	c.logger.Info("subscription created",
		zap.String("subscription_id", out.ID),
		zap.String("status", out.Status),
	)
	return &out, nil
}

func (c *Client) ListSubscriptions(ctx context.Context, customerID string) ([]Subscription, error) {
	if customerID == "" {
		return nil, fmt.Errorf("%w: customer id is required", ErrInvalidInput)
	}
	var out struct {
		Data []Subscription `json:"data"`
	}
	path := "/v1/subscriptions?" + url.Values{"customer": {customerID}}.Encode()
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, fmt.Errorf("list subscriptions: %w", err)
	}
	if out.Data == nil {
		out.Data = []Subscription{}
	}
	return out.Data, nil
}

// CancelSubscription stops renewal at the end of the current period.
func (c *Client) CancelSubscription(ctx context.Context, subscriptionID string) (*Subscription, error) {
	if subscriptionID == "" {
		return nil, fmt.Errorf("%w: subscription id is required", ErrInvalidInput)
	}
	var out Subscription
	form := url.Values{"cancel_at_period_end": {"true"}}
	if err := c.do(ctx, http.MethodPost, "/v1/subscriptions/"+url.PathEscape(subscriptionID), form, &out); err != nil {
		return nil, fmt.Errorf("cancel subscription: %w", err)
	}
	return &out, nil
}

// do sends form (nil for none) to path and decodes the JSON answer into out.
func (c *Client) do(ctx context.Context, method, path string, form url.Values, out any) error {
	if !c.Enabled() {
		return ErrDisabled
	}

	var body io.Reader = http.NoBody
	if form != nil {
		body = strings.NewReader(form.Encode())
	}
	req, err := http.NewRequestWithContext(ctx, method, strings.TrimRight(c.cfg.BaseURL, "/")+path, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.SecretKey)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "CreditDesk/"+version.Short())
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var e struct {
			Error struct {
				Type    string `json:"type"`
				Code    string `json:"code"`
				Message string `json:"message"`
			} `json:"error"`
		}
		_ = json.NewDecoder(io.LimitReader(resp.Body, 4096)).Decode(&e)
		c.logger.Debug("payment API error",
			zap.String("path", path),
			zap.Int("status", resp.StatusCode),
			zap.String("type", e.Error.Type),
		)
		return &APIError{StatusCode: resp.StatusCode, Type: e.Error.Type, Code: e.Error.Code, Message: e.Error.Message}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}

// Package payments takes client payments through a card processor: plans,
// customers, one-off payment intents, subscriptions and signed webhooks.
package payments

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrDisabled is returned by every call on a provider that is switched
	// off or has no secret key.
	ErrDisabled = errors.New("payment provider is disabled")
	// ErrInvalidInput marks requests rejected before reaching the processor.
	ErrInvalidInput = errors.New("invalid payment request")
)

// APIError is a non-2xx answer from the processor.
type APIError struct {
	StatusCode int
	Type       string
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("payment API returned %d", e.StatusCode)
	}
	return fmt.Sprintf("payment API returned %d: %s", e.StatusCode, e.Message)
}

// Provider is the processor account the platform charges through.
type Provider interface {
	Enabled() bool
	Account(ctx context.Context) (*Account, error)
	CreateCustomer(ctx context.Context, req CustomerRequest) (*Customer, error)
	CreatePaymentIntent(ctx context.Context, req PaymentIntentRequest) (*PaymentIntent, error)
	CreateSubscription(ctx context.Context, req SubscriptionRequest) (*Subscription, error)
	ListSubscriptions(ctx context.Context, customerID string) ([]Subscription, error)
	CancelSubscription(ctx context.Context, subscriptionID string) (*Subscription, error)
}

// Plan is one entry of the service catalogue.
type Plan struct {
	ID       string   `json:"id" mapstructure:"id"`
	Name     string   `json:"name" mapstructure:"name"`
	PriceID  string   `json:"price_id,omitempty" mapstructure:"price_id"`
	Amount   int64    `json:"amount" mapstructure:"amount"` // minor units
	Currency string   `json:"currency" mapstructure:"currency"`
	Interval string   `json:"interval" mapstructure:"interval"`
	Features []string `json:"features" mapstructure:"features"`
	Popular  bool     `json:"popular" mapstructure:"popular"`
}

// Account is the processor account state used for health checks.
type Account struct {
	ID             string `json:"id"`
	ChargesEnabled bool   `json:"charges_enabled"`
	PayoutsEnabled bool   `json:"payouts_enabled"`
}

type CustomerRequest struct {
	Email string `json:"email"`
	Name  string `json:"name"`
	Phone string `json:"phone,omitempty"`
}

type Customer struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
}

type PaymentIntentRequest struct {
	Amount      int64  `json:"amount"`
	Currency    string `json:"currency"`
	CustomerID  string `json:"customer_id,omitempty"`
	Description string `json:"description,omitempty"`
}

type PaymentIntent struct {
	ID           string `json:"id"`
	ClientSecret string `json:"client_secret"`
	Amount       int64  `json:"amount"`
	Currency     string `json:"currency"`
	Status       string `json:"status"`
}

type SubscriptionRequest struct {
	CustomerID      string `json:"customer_id"`
	PriceID         string `json:"price_id"`
	PaymentMethodID string `json:"payment_method_id,omitempty"`
}

type Subscription struct {
	ID                 string `json:"id"`
	Status             string `json:"status"`
	CurrentPeriodStart int64  `json:"current_period_start"`
	CurrentPeriodEnd   int64  `json:"current_period_end"`
	CancelAtPeriodEnd  bool   `json:"cancel_at_period_end"`
}

package postal

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// ErrInvalidInput marks requests rejected before reaching the carrier.
var ErrInvalidInput = errors.New("invalid postal request")

// Address is a postal address as the carrier expects it.
type Address struct {
	StreetAddress    string `json:"streetAddress"`
	SecondaryAddress string `json:"secondaryAddress,omitempty"`
	City             string `json:"cityName"`
	State            string `json:"state"`
	ZIPCode          string `json:"ZIPCode"`
}

// AddressResult is the standardized form of a verified address.
type AddressResult struct {
	Address     Address  `json:"address"`
	Deliverable bool     `json:"deliverable"`
	Suggestions []string `json:"suggestions,omitempty"`
}

// VerifyAddress standardizes a before it is printed on a dispute letter.
func (c *Client) VerifyAddress(ctx context.Context, a Address) (*AddressResult, error) {
	if strings.TrimSpace(a.StreetAddress) == "" || strings.TrimSpace(a.State) == "" {
		return nil, fmt.Errorf("%w: street address and state are required", ErrInvalidInput)
	}
	var out AddressResult
	if err := c.Do(ctx, http.MethodPost, "/addresses/v3/address", a, &out); err != nil {
		return nil, fmt.Errorf("verify address: %w", err)
	}
	return &out, nil
}

// TrackingEvent is one scan in a package's history.
type TrackingEvent struct {
	Type      string `json:"eventType"`
	Timestamp string `json:"eventTimestamp"`
	City      string `json:"eventCity,omitempty"`
	State     string `json:"eventState,omitempty"`
}

// TrackingResult is the delivery state of a mailed item.
type TrackingResult struct {
	TrackingNumber string          `json:"trackingNumber"`
	Status         string          `json:"status"`
	StatusCategory string          `json:"statusCategory,omitempty"`
	Events         []TrackingEvent `json:"trackingEvents,omitempty"`
}

// TrackPackage looks up a certified-mail tracking number.
func (c *Client) TrackPackage(ctx context.Context, trackingNumber string) (*TrackingResult, error) {
	trackingNumber = strings.TrimSpace(trackingNumber)
	if trackingNumber == "" {
		return nil, fmt.Errorf("%w: tracking number is required", ErrInvalidInput)
	}
	var out TrackingResult
	if err := c.Do(ctx, http.MethodPost, "/tracking/v3/tracking", map[string]string{"trackingNumber": trackingNumber}, &out); err != nil {
		return nil, fmt.Errorf("track package: %w", err)
	}
	return &out, nil
}

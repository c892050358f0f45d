// Package postal is a client for the carrier API used to verify client
// addresses and track mailed dispute letters. Access tokens come from the
// OAuth2 client-credentials flow and are cached until shortly before expiry.
package postal

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/HerbHall/creditdesk/internal/version"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

// ErrDisabled is returned by every call on a client that is switched off or
// has no credentials.
var ErrDisabled = errors.New("postal client is disabled")

// APIError is a non-2xx answer from the carrier API.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("postal API returned %d: %s", e.StatusCode, e.Body)
}

// Client talks to the carrier API.
type Client struct {
	cfg    Config
	http   *http.Client
	creds  *clientcredentials.Config
	logger *zap.Logger

	// fetchSem admits one token request at a time; waiters give up with
	// their own context.
	fetchSem chan struct{}
	mu       sync.Mutex
	token    *oauth2.Token
}

// New builds a client. A disabled or credential-less configuration yields a
// client whose calls return ErrDisabled. base supplies the transport for
// both token and API requests; nil means http.DefaultTransport. Every
// request, token requests included, is bounded by cfg.Timeout.
func New(cfg Config, base *http.Client, logger *zap.Logger) *Client {
	c := &Client{cfg: cfg, logger: logger}
	if !cfg.Enabled || cfg.ClientID == "" || cfg.ClientSecret == "" {
		if cfg.Enabled {
			logger.Warn("postal credentials not configured, client disabled")
		}
		return c
	}
	if cfg.TokenURL == "" {
		cfg.TokenURL = strings.TrimRight(cfg.BaseURL, "/") + "/oauth2/v3/token"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	c.cfg = cfg

	var transport http.RoundTripper
	if base != nil {
		transport = base.Transport
	}
	c.http = &http.Client{Timeout: cfg.Timeout, Transport: transport}
	c.creds = &clientcredentials.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		TokenURL:     cfg.TokenURL,
		Scopes:       cfg.Scopes,
		AuthStyle:    oauth2.AuthStyleInParams,
	}
	c.fetchSem = make(chan struct{}, 1)
	return c
}

// Enabled reports whether the client can make calls.
func (c *Client) Enabled() bool { return c.creds != nil }

// Token returns a valid access token, fetching one only when the cached
// token is missing or inside the refresh margin. The fetch runs under ctx.
func (c *Client) Token(ctx context.Context) (*oauth2.Token, error) {
	if !c.Enabled() {
		return nil, ErrDisabled
	}
	if tok := c.cached(); tok != nil {
		return tok, nil
	}

	select {
	case c.fetchSem <- struct{}{}:
	case <-ctx.Done():
		return nil, fmt.Errorf("obtain postal token: %w", ctx.Err())
	}
	defer func() { <-c.fetchSem }()

	// Another caller may have refreshed while we waited.
	if tok := c.cached(); tok != nil {
		return tok, nil
	}

	tok, err := c.creds.Token(context.WithValue(ctx, oauth2.HTTPClient, c.http))
	if err != nil {
		return nil, fmt.Errorf("obtain postal token: %w", err)
	}
	c.mu.Lock()
	c.token = tok
	c.mu.Unlock()
	c.logger.Debug("postal token refreshed", zap.Time("expiry", tok.Expiry))
	return tok, nil
}

// cached returns the stored token while it is outside the refresh margin.
func (c *Client) cached() *oauth2.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.token == nil || c.token.AccessToken == "" {
		return nil
	}
	if !c.token.Expiry.IsZero() && !time.Now().Add(c.cfg.TokenRefreshMargin).Before(c.token.Expiry) {
		return nil
	}
	return c.token
}

// Do sends a JSON request to path under the base URL and decodes the JSON
// answer into out when out is non-nil.
func (c *Client) Do(ctx context.Context, method, path string, body, out any) error {
	if !c.Enabled() {
		return ErrDisabled
	}

	var reader io.Reader = http.NoBody
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(buf)
	}
	req, err := http.NewRequestWithContext(ctx, method, strings.TrimRight(c.cfg.BaseURL, "/")+path, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "CreditDesk/"+version.Short())
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	tok, err := c.Token(ctx)
	if err != nil {
		return err
	}
	tok.SetAuthHeader(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		c.logger.Debug("postal API error",
			zap.String("path", path),
			zap.Int("status", resp.StatusCode),
		)
		return &APIError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(msg))}
	}
	if out == nil {
		io.Copy(io.Discard, resp.Body) //nolint:errcheck // drain body for connection reuse
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}

package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

var ErrNotConfigured = errors.New("payment provider client not configured")

// Client talks to the payment provider's REST API. Only the read needed
// for payment-method enrichment is implemented.
type Client struct {
	baseURL    string
	secretKey  string
	httpClient *http.Client
}

func NewClient(baseURL, secretKey string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		secretKey:  secretKey,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// CheckoutSessionPaymentMethod fetches the checkout session and returns the
// payment method used, or "" when the provider did not report one.
func (c *Client) CheckoutSessionPaymentMethod(ctx context.Context, sessionID string) (string, error) {
	if c == nil || c.secretKey == "" || c.baseURL == "" {
		return "", ErrNotConfigured
	}

	endpoint := c.baseURL + "/checkout_sessions/" + url.PathEscape(sessionID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", fmt.Errorf("payment: failed to build request: %w", err)
	}
	req.SetBasicAuth(c.secretKey, "")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("payment: checkout session request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("payment: failed to read checkout session response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("payment: checkout session %s: unexpected status %d", sessionID, resp.StatusCode)
	}

	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var root map[string]any
	if err := dec.Decode(&root); err != nil {
		return "", fmt.Errorf("payment: failed to decode checkout session: %w", err)
	}

	attrs, _ := lookupMap(root, "data", "attributes")
	return ResolveMethod(attrs), nil
}

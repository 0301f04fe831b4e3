// Package gateway implements the payment gateway client: remote intent
// creation and receipt signature verification.
//
// The signature scheme is HMAC-SHA256 over "{order_id}|{payment_id}" keyed
// by the gateway's shared secret, hex encoded.
package gateway

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"
)

// Client creates remote payment intents and verifies gateway receipts.
type Client interface {
	// CreateIntent creates a remote order for the amount and returns the
	// gateway's order ID. The receiptID ties the remote order back to the
	// local subject.
	CreateIntent(ctx context.Context, amountMinor int64, receiptID string, metadata map[string]string) (string, error)
	// VerifySignature reports whether the signature matches the
	// order/payment pair under the shared secret. Constant time.
	VerifySignature(gatewayOrderID, gatewayPaymentID, signature string) bool
}

// Signature computes the hex HMAC-SHA256 signature for an order/payment pair.
func Signature(secret, gatewayOrderID, gatewayPaymentID string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(gatewayOrderID))
	mac.Write([]byte("|"))
	mac.Write([]byte(gatewayPaymentID))
	return hex.EncodeToString(mac.Sum(nil))
}

func verify(secret, gatewayOrderID, gatewayPaymentID, signature string) bool {
	expected := Signature(secret, gatewayOrderID, gatewayPaymentID)
	return hmac.Equal([]byte(expected), []byte(signature))
}

// HTTPClient talks to a remote gateway over its REST API.
type HTTPClient struct {
	baseURL string
	keyID   string
	secret  string
	client  *http.Client
}

// NewHTTPClient creates a gateway client for the given base URL and credentials.
func NewHTTPClient(baseURL, keyID, secret string) *HTTPClient {
	return &HTTPClient{
		baseURL: baseURL,
		keyID:   keyID,
		secret:  secret,
		client:  &http.Client{Timeout: 30 * time.Second},
	}
}

// CreateIntent creates a remote order via POST {base}/v1/orders.
func (c *HTTPClient) CreateIntent(ctx context.Context, amountMinor int64, receiptID string, metadata map[string]string) (string, error) {
	body, err := json.Marshal(map[string]any{
		"amount":   amountMinor,
		"currency": "INR",
		"receipt":  receiptID,
		"notes":    metadata,
	})
	if err != nil {
		return "", fmt.Errorf("marshal order request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/orders", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.SetBasicAuth(c.keyID, c.secret)

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("gateway order create: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read gateway response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("gateway order create: status %d: %s", resp.StatusCode, respBody)
	}

	var out struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(respBody, &out); err != nil {
		return "", fmt.Errorf("parse gateway response: %w", err)
	}
	if out.ID == "" {
		return "", fmt.Errorf("gateway response missing order id")
	}
	return out.ID, nil
}

// VerifySignature implements Client.
func (c *HTTPClient) VerifySignature(gatewayOrderID, gatewayPaymentID, signature string) bool {
	return verify(c.secret, gatewayOrderID, gatewayPaymentID, signature)
}

// Sandbox is an in-process gateway with deterministic IDs. It backs local
// development and tests; SignReceipt plays the part of the real gateway's
// checkout callback.
type Sandbox struct {
	secret  string
	fail    atomic.Bool
	counter atomic.Uint64
}

// NewSandbox creates a sandbox gateway with the given shared secret.
func NewSandbox(secret string) *Sandbox {
	return &Sandbox{secret: secret}
}

// CreateIntent returns a deterministic order ID of the form "order_000001".
func (s *Sandbox) CreateIntent(ctx context.Context, amountMinor int64, receiptID string, metadata map[string]string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if s.fail.Load() {
		return "", fmt.Errorf("sandbox gateway unavailable")
	}
	if amountMinor <= 0 {
		return "", fmt.Errorf("amount must be positive, got %d", amountMinor)
	}
	n := s.counter.Add(1)
	return fmt.Sprintf("order_%06d", n), nil
}

// VerifySignature implements Client.
func (s *Sandbox) VerifySignature(gatewayOrderID, gatewayPaymentID, signature string) bool {
	return verify(s.secret, gatewayOrderID, gatewayPaymentID, signature)
}

// SignReceipt produces the signature the real gateway would attach to a
// completed payment.
func (s *Sandbox) SignReceipt(gatewayOrderID, gatewayPaymentID string) string {
	return Signature(s.secret, gatewayOrderID, gatewayPaymentID)
}

// SetFailing makes CreateIntent return an error, simulating a gateway outage.
func (s *Sandbox) SetFailing(fail bool) {
	s.fail.Store(fail)
}

package payments

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/mkarsono/go-order-fulfillment/internal/orders"
)

// Gateway is the full adapter contract; *Client is the HTTP implementation.
type Gateway interface {
	CreateIntent(ctx context.Context, amountCents int64, currency string) (*orders.PaymentIntent, error)
	RetrieveIntent(ctx context.Context, id string) (*orders.PaymentIntent, error)
	Confirm(ctx context.Context, id string, method orders.PaymentMethod) (*orders.PaymentIntent, error)
}

// Client talks to the external payment processor. The processor is treated as
// an unreliable, latency-bearing dependency: every call carries the request
// context and the HTTP client's timeout bounds the worst case.
type Client struct {
	BaseURL        string
	APIKey         string
	MinAmountCents int64
	MaxAmountCents int64
	HTTP           *http.Client
	Logger         *zap.Logger
}

type gatewayError struct {
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}

// CreateIntent registers a payment intent for the amount in minor units.
// The range check runs first: rejecting locally is cheaper than a round trip.
func (c *Client) CreateIntent(ctx context.Context, amountCents int64, currency string) (*orders.PaymentIntent, error) {
	if amountCents < c.MinAmountCents || amountCents > c.MaxAmountCents {
		return nil, fmt.Errorf("amount %d: %w", amountCents, ErrAmountOutOfRange)
	}
	body := map[string]any{"amount": amountCents, "currency": currency}
	var intent orders.PaymentIntent
	if err := c.do(ctx, http.MethodPost, "/v1/payment_intents", body, &intent); err != nil {
		return nil, err
	}
	return &intent, nil
}

func (c *Client) RetrieveIntent(ctx context.Context, id string) (*orders.PaymentIntent, error) {
	var intent orders.PaymentIntent
	if err := c.do(ctx, http.MethodGet, "/v1/payment_intents/"+id, nil, &intent); err != nil {
		return nil, err
	}
	return &intent, nil
}

// Confirm settles a card intent. Methods that settle out-of-band (COD) have
// nothing to confirm at the gateway.
func (c *Client) Confirm(ctx context.Context, id string, method orders.PaymentMethod) (*orders.PaymentIntent, error) {
	if !method.RequiresGateway() {
		return nil, fmt.Errorf("method %s: %w", method, orders.ErrInvalidPaymentMethod)
	}
	body := map[string]any{"payment_method": string(method)}
	var intent orders.PaymentIntent
	if err := c.do(ctx, http.MethodPost, "/v1/payment_intents/"+id+"/confirm", body, &intent); err != nil {
		return nil, err
	}
	return &intent, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %v: %w", method, path, err, ErrGatewayUnavailable)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 500:
		return fmt.Errorf("%s %s: status %d: %w", method, path, resp.StatusCode, ErrGatewayUnavailable)
	case resp.StatusCode >= 400:
		var ge gatewayError
		_ = json.NewDecoder(resp.Body).Decode(&ge)
		c.Logger.Warn("gateway rejected request",
			zap.String("path", path),
			zap.Int("status", resp.StatusCode),
			zap.String("message", ge.Error.Message))
		return fmt.Errorf("gateway rejected %s %s (%d): %s", method, path, resp.StatusCode, ge.Error.Message)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

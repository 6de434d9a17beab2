package payments

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Gateway webhook event types the reconciler understands. Everything else is
// accepted and ignored for forward compatibility.
const (
	EventIntentSucceeded = "payment_intent.succeeded"
	EventIntentFailed    = "payment_intent.payment_failed"
	EventChargeRefunded  = "charge.refunded"
)

// Event is the decoded webhook delivery. CreatedAt is the gateway's own event
// time and drives the stale-event check; deliveries may arrive late, out of
// order or more than once.
type Event struct {
	ID        string
	Type      string
	CreatedAt time.Time
	IntentID  string
}

type eventJSON struct {
	ID      string `json:"id"`
	Type    string `json:"type"`
	Created int64  `json:"created"`
	Data    struct {
		Object struct {
			ID            string `json:"id"`
			PaymentIntent string `json:"payment_intent"`
		} `json:"object"`
	} `json:"data"`
}

// ParseEvent decodes a signature-verified payload. The correlation id is the
// intent id: directly for intent events, via the charge's payment_intent
// reference for refunds.
func ParseEvent(payload []byte) (Event, error) {
	var raw eventJSON
	if err := json.Unmarshal(payload, &raw); err != nil {
		return Event{}, fmt.Errorf("decode event: %v: %w", err, ErrInvalidWebhookEvent)
	}
	if raw.ID == "" || raw.Type == "" {
		return Event{}, fmt.Errorf("event missing id or type: %w", ErrInvalidWebhookEvent)
	}
	intentID := raw.Data.Object.PaymentIntent
	if intentID == "" {
		intentID = raw.Data.Object.ID
	}
	return Event{
		ID:        raw.ID,
		Type:      raw.Type,
		CreatedAt: time.Unix(raw.Created, 0).UTC(),
		IntentID:  intentID,
	}, nil
}

// VerifySignature checks the `t=<unix>,v1=<hex>` header: HMAC-SHA256 of
// "<t>.<payload>" under the shared secret, with a clock-tolerance window
// against replay of old deliveries.
func VerifySignature(payload []byte, header, secret string, now time.Time, tolerance time.Duration) error {
	var ts string
	var sig string
	for _, part := range strings.Split(header, ",") {
		k, v, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		switch k {
		case "t":
			ts = v
		case "v1":
			sig = v
		}
	}
	if ts == "" || sig == "" {
		return fmt.Errorf("malformed signature header: %w", ErrInvalidWebhookEvent)
	}
	unix, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return fmt.Errorf("malformed signature timestamp: %w", ErrInvalidWebhookEvent)
	}
	if d := now.Sub(time.Unix(unix, 0)); d > tolerance || d < -tolerance {
		return fmt.Errorf("signature timestamp outside tolerance: %w", ErrInvalidWebhookEvent)
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(ts))
	mac.Write([]byte("."))
	mac.Write(payload)
	want := mac.Sum(nil)

	got, err := hex.DecodeString(sig)
	if err != nil || !hmac.Equal(got, want) {
		return fmt.Errorf("signature mismatch: %w", ErrInvalidWebhookEvent)
	}
	return nil
}

// SignPayload produces the header VerifySignature accepts. Used by tests and
// local tooling that replays gateway deliveries.
func SignPayload(payload []byte, secret string, at time.Time) string {
	ts := strconv.FormatInt(at.Unix(), 10)
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(ts))
	mac.Write([]byte("."))
	mac.Write(payload)
	return "t=" + ts + ",v1=" + hex.EncodeToString(mac.Sum(nil))
}

/**
 * @description
 * Webhook event parsing and signature verification. The webhook endpoint is
 * public, so the HMAC check is load-bearing: events are only accepted when the
 * Stripe-Signature header proves the payload was signed with the shared
 * endpoint secret inside the allowed clock tolerance.
 */
package stripeclient

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Event kinds the reconciler handles.
const (
	EventInvoicePaymentSucceeded = "invoice.payment_succeeded"
	EventInvoicePaymentFailed    = "invoice.payment_failed"
	EventSubscriptionDeleted     = "customer.subscription.deleted"
)

// DefaultTolerance bounds the age of a signed payload.
const DefaultTolerance = 5 * time.Minute

var (
	ErrInvalidSignature = errors.New("webhook signature verification failed")
	ErrTooOld           = errors.New("webhook timestamp outside of tolerance")
)

// Event is the webhook envelope delivered by Stripe.
type Event struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Data struct {
		Object json.RawMessage `json:"object"`
	} `json:"data"`
}

// Invoice decodes the event payload as an invoice object.
func (e *Event) Invoice() (*Invoice, error) {
	var invoice Invoice
	if err := json.Unmarshal(e.Data.Object, &invoice); err != nil {
		return nil, fmt.Errorf("failed to decode invoice payload: %w", err)
	}
	return &invoice, nil
}

// Subscription decodes the event payload as a subscription object.
func (e *Event) Subscription() (*Subscription, error) {
	var sub Subscription
	if err := json.Unmarshal(e.Data.Object, &sub); err != nil {
		return nil, fmt.Errorf("failed to decode subscription payload: %w", err)
	}
	return &sub, nil
}

// ConstructEvent verifies the Stripe-Signature header against the raw payload
// and, on success, decodes the event envelope.
func ConstructEvent(payload []byte, signatureHeader, secret string) (*Event, error) {
	if err := VerifySignature(payload, signatureHeader, secret, DefaultTolerance, time.Now()); err != nil {
		return nil, err
	}

	var event Event
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, fmt.Errorf("failed to decode webhook payload: %w", err)
	}
	return &event, nil
}

// VerifySignature checks the `t=<unix>,v1=<hex hmac>` header format: the
// signed payload is "<t>.<body>" and the expected MAC is HMAC-SHA256 keyed by
// the endpoint secret. All candidate v1 signatures are tried with a
// constant-time compare.
func VerifySignature(payload []byte, signatureHeader, secret string, tolerance time.Duration, now time.Time) error {
	header := strings.TrimSpace(signatureHeader)
	if header == "" {
		return ErrInvalidSignature
	}

	var timestamp int64 = -1
	var candidates []string
	for _, pair := range strings.Split(header, ",") {
		parts := strings.SplitN(strings.TrimSpace(pair), "=", 2)
		if len(parts) != 2 {
			continue
		}
		switch parts[0] {
		case "t":
			ts, err := strconv.ParseInt(parts[1], 10, 64)
			if err != nil {
				return ErrInvalidSignature
			}
			timestamp = ts
		case "v1":
			candidates = append(candidates, parts[1])
		}
	}
	if timestamp < 0 || len(candidates) == 0 {
		return ErrInvalidSignature
	}

	if tolerance > 0 {
		age := now.Sub(time.Unix(timestamp, 0))
		if age > tolerance || age < -tolerance {
			return ErrTooOld
		}
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(strconv.FormatInt(timestamp, 10)))
	mac.Write([]byte("."))
	mac.Write(payload)
	expected := mac.Sum(nil)

	for _, candidate := range candidates {
		sig, err := hex.DecodeString(candidate)
		if err != nil {
			continue
		}
		if hmac.Equal(sig, expected) {
			return nil
		}
	}
	return ErrInvalidSignature
}

// SignPayload produces a Stripe-Signature header value for a payload. Used by
// tests and local tooling to exercise the webhook endpoint.
func SignPayload(payload []byte, secret string, at time.Time) string {
	ts := strconv.FormatInt(at.Unix(), 10)
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(ts))
	mac.Write([]byte("."))
	mac.Write(payload)
	return fmt.Sprintf("t=%s,v1=%s", ts, hex.EncodeToString(mac.Sum(nil)))
}

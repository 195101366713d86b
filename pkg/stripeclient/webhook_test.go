package stripeclient

import (
	"errors"
	"testing"
	"time"
)

const webhookSecret = "whsec_test_secret"

func TestVerifySignatureAcceptsValidHeader(t *testing.T) {
	payload := []byte(`{"id":"evt_1","type":"invoice.payment_succeeded"}`)
	now := time.Now()
	header := SignPayload(payload, webhookSecret, now)

	if err := VerifySignature(payload, header, webhookSecret, DefaultTolerance, now); err != nil {
		t.Fatalf("expected a valid signature, got %v", err)
	}
}

func TestVerifySignatureRejectsWrongSecret(t *testing.T) {
	payload := []byte(`{"id":"evt_1"}`)
	now := time.Now()
	header := SignPayload(payload, "whsec_other", now)

	if err := VerifySignature(payload, header, webhookSecret, DefaultTolerance, now); !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("expected ErrInvalidSignature, got %v", err)
	}
}

func TestVerifySignatureRejectsModifiedPayload(t *testing.T) {
	payload := []byte(`{"id":"evt_1"}`)
	now := time.Now()
	header := SignPayload(payload, webhookSecret, now)

	if err := VerifySignature([]byte(`{"id":"evt_2"}`), header, webhookSecret, DefaultTolerance, now); !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("expected ErrInvalidSignature, got %v", err)
	}
}

func TestVerifySignatureRejectsStaleTimestamp(t *testing.T) {
	payload := []byte(`{"id":"evt_1"}`)
	signedAt := time.Now().Add(-10 * time.Minute)
	header := SignPayload(payload, webhookSecret, signedAt)

	if err := VerifySignature(payload, header, webhookSecret, DefaultTolerance, time.Now()); !errors.Is(err, ErrTooOld) {
		t.Fatalf("expected ErrTooOld, got %v", err)
	}
}

func TestVerifySignatureRejectsMalformedHeaders(t *testing.T) {
	payload := []byte(`{"id":"evt_1"}`)
	for _, header := range []string{"", "t=abc,v1=00", "v1=00", "t=123"} {
		if err := VerifySignature(payload, header, webhookSecret, DefaultTolerance, time.Now()); !errors.Is(err, ErrInvalidSignature) {
			t.Fatalf("expected ErrInvalidSignature for %q, got %v", header, err)
		}
	}
}

func TestConstructEventDecodesEnvelope(t *testing.T) {
	payload := []byte(`{
		"id": "evt_1",
		"type": "customer.subscription.deleted",
		"data": {"object": {"id": "sub_1", "customer": "cus_1", "status": "canceled"}}
	}`)
	header := SignPayload(payload, webhookSecret, time.Now())

	event, err := ConstructEvent(payload, header, webhookSecret)
	if err != nil {
		t.Fatalf("ConstructEvent returned error: %v", err)
	}
	if event.Type != EventSubscriptionDeleted {
		t.Fatalf("expected %s, got %s", EventSubscriptionDeleted, event.Type)
	}

	sub, err := event.Subscription()
	if err != nil {
		t.Fatalf("Subscription decode failed: %v", err)
	}
	if sub.ID != "sub_1" || sub.Status != "canceled" {
		t.Fatalf("unexpected subscription payload: %+v", sub)
	}
}

func TestInvoiceSubscriptionID(t *testing.T) {
	invoice := &Invoice{}
	if got := invoice.SubscriptionID(); got != "" {
		t.Fatalf("expected empty subscription id without parent, got %q", got)
	}

	invoice.Parent = &InvoiceParent{}
	invoice.Parent.SubscriptionDetails.Subscription = "sub_1"
	if got := invoice.SubscriptionID(); got != "sub_1" {
		t.Fatalf("expected sub_1, got %q", got)
	}
}

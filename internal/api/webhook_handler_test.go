package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Vladurka/TelegramAICloud/internal/app"
	"github.com/Vladurka/TelegramAICloud/internal/store"
	"github.com/Vladurka/TelegramAICloud/pkg/stripeclient"
)

const webhookTestSecret = "whsec_test"

type webhookRepoStub struct {
	store.Repository
}

type webhookPaymentsStub struct{}

func (s *webhookPaymentsStub) RetrieveSubscription(ctx context.Context, subscriptionID string) (*stripeclient.Subscription, error) {
	return &stripeclient.Subscription{ID: subscriptionID}, nil
}

func newTestWebhookHandler() *WebhookHandler {
	reconciler := app.NewBillingReconciler(&webhookRepoStub{}, &webhookPaymentsStub{}, &handlerBillingStub{}, &handlerProducerStub{})
	return NewWebhookHandler(reconciler, webhookTestSecret)
}

func TestWebhookRejectsMissingSignature(t *testing.T) {
	handler := newTestWebhookHandler()

	req := httptest.NewRequest(http.MethodPost, "/webhooks/stripe", strings.NewReader(`{"id":"evt_1"}`))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unsigned payload, got %d", rec.Code)
	}
}

func TestWebhookRejectsWrongSecret(t *testing.T) {
	handler := newTestWebhookHandler()

	payload := `{"id":"evt_1","type":"invoice.payment_succeeded"}`
	req := httptest.NewRequest(http.MethodPost, "/webhooks/stripe", strings.NewReader(payload))
	req.Header.Set("Stripe-Signature", stripeclient.SignPayload([]byte(payload), "whsec_other", time.Now()))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for a mismatched secret, got %d", rec.Code)
	}
}

func TestWebhookAcknowledgesUnhandledEventTypes(t *testing.T) {
	handler := newTestWebhookHandler()

	payload := `{"id":"evt_1","type":"charge.refunded","data":{"object":{}}}`
	req := httptest.NewRequest(http.MethodPost, "/webhooks/stripe", strings.NewReader(payload))
	req.Header.Set("Stripe-Signature", stripeclient.SignPayload([]byte(payload), webhookTestSecret, time.Now()))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for an unhandled event type, got %d", rec.Code)
	}
	if body := rec.Body.String(); body != "Webhook received" {
		t.Fatalf("unexpected body: %q", body)
	}
}

func TestWebhookRejectsOversizedBody(t *testing.T) {
	handler := newTestWebhookHandler()

	payload := strings.Repeat("a", maxWebhookBodyBytes+1)
	req := httptest.NewRequest(http.MethodPost, "/webhooks/stripe", strings.NewReader(payload))
	req.Header.Set("Stripe-Signature", stripeclient.SignPayload([]byte(payload), webhookTestSecret, time.Now()))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for an oversized payload, got %d", rec.Code)
	}
	if body := rec.Body.String(); !strings.Contains(body, "Cannot read request body") {
		t.Fatalf("unexpected body: %q", body)
	}
}

func TestWebhookSurfacesHandlerErrorsForRedelivery(t *testing.T) {
	handler := newTestWebhookHandler()

	// A paid invoice without a subscription reference is a data fault; the
	// handler must 500 so the provider keeps redelivering.
	payload := `{"id":"evt_1","type":"invoice.payment_succeeded","data":{"object":{"id":"in_1","customer":"cus_1"}}}`
	req := httptest.NewRequest(http.MethodPost, "/webhooks/stripe", strings.NewReader(payload))
	req.Header.Set("Stripe-Signature", stripeclient.SignPayload([]byte(payload), webhookTestSecret, time.Now()))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500 for a handler error, got %d", rec.Code)
	}
}

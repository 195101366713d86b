/**
 * @description
 * This file contains the HTTP handler for processing incoming webhooks from
 * the payment provider. It is the entry point for all asynchronous billing
 * notifications.
 *
 * Key features:
 * - Security: validates the HMAC signature of incoming webhooks before any
 *   processing; the endpoint is public and the check is load-bearing.
 * - Delegation: verified events go to the billing reconciler; any handler
 *   error surfaces as a 500 so the provider's retry policy redelivers.
 *
 * @dependencies
 * - io, log, net/http: Standard Go libraries.
 * - internal/app, pkg/stripeclient: Reconciliation logic and signature verification.
 */

package api

import (
	"io"
	"log"
	"net/http"

	"github.com/Vladurka/TelegramAICloud/internal/app"
	"github.com/Vladurka/TelegramAICloud/pkg/stripeclient"
)

// WebhookHandler processes incoming billing webhooks.
type WebhookHandler struct {
	reconciler *app.BillingReconciler
	secret     string
}

// NewWebhookHandler creates a new handler for the webhook endpoint.
func NewWebhookHandler(reconciler *app.BillingReconciler, secret string) *WebhookHandler {
	return &WebhookHandler{reconciler: reconciler, secret: secret}
}

// maxWebhookBodyBytes caps the request body read on the public webhook
// endpoint. Provider events are a few KiB; anything larger is rejected
// before signature verification.
const maxWebhookBodyBytes = 64 * 1024

// ServeHTTP implements the http.Handler interface. Responses are plain text:
// the only reader is the payment provider's delivery loop.
func (h *WebhookHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxWebhookBodyBytes)
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "Cannot read request body", http.StatusBadRequest)
		return
	}

	event, err := stripeclient.ConstructEvent(body, r.Header.Get("Stripe-Signature"), h.secret)
	if err != nil {
		log.Printf("level=warn component=webhook msg=\"invalid webhook signature\" err=%v", err)
		http.Error(w, "Webhook Error: invalid signature", http.StatusBadRequest)
		return
	}

	if err := h.reconciler.HandleEvent(r.Context(), event); err != nil {
		log.Printf("level=error component=webhook event_type=%s event_id=%s msg=\"handler error\" err=%v", event.Type, event.ID, err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusOK)
	w.Write([]byte("Webhook received"))
}

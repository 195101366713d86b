package billingclient

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestCreateSubscriptionSendsAuthenticatedRequest(t *testing.T) {
	var gotPath, gotKey string
	var gotPayload CreateSubscriptionRequest

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotKey = r.Header.Get("x-internal-key")
		if err := json.NewDecoder(r.Body).Decode(&gotPayload); err != nil {
			t.Errorf("failed to decode request payload: %v", err)
		}
		json.NewEncoder(w).Encode(CreateSubscriptionResponse{URL: "https://checkout.example/session"})
	}))
	defer server.Close()

	client := NewClient(server.URL, "internal-key")
	resp, err := client.CreateSubscription(context.Background(), CreateSubscriptionRequest{
		ClerkID:     "user_2abcdefghijklmnopqrstuv",
		ContainerID: 12345678,
		PlanType:    "month",
	})
	if err != nil {
		t.Fatalf("CreateSubscription returned error: %v", err)
	}

	if gotPath != "/subscription/create" {
		t.Fatalf("expected /subscription/create, got %q", gotPath)
	}
	if gotKey != "internal-key" {
		t.Fatalf("expected internal key header, got %q", gotKey)
	}
	if gotPayload.ContainerID != 12345678 || gotPayload.PlanType != "month" {
		t.Fatalf("unexpected payload: %+v", gotPayload)
	}
	if resp.URL != "https://checkout.example/session" {
		t.Fatalf("unexpected checkout URL: %q", resp.URL)
	}
}

func TestCancelSubscriptionSurfacesErrorBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/subscription/cancel" {
			t.Errorf("expected /subscription/cancel, got %q", r.URL.Path)
		}
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(map[string]string{"error": "Subscription not found"})
	}))
	defer server.Close()

	client := NewClient(server.URL, "internal-key")
	err := client.CancelSubscription(context.Background(), CancelSubscriptionRequest{
		ContainerID: 12345678,
		ClerkID:     "user_2abcdefghijklmnopqrstuv",
	})
	if err == nil {
		t.Fatal("expected an error for a non-2xx response")
	}

	var errResp *ErrorResponse
	if !errors.As(err, &errResp) {
		t.Fatalf("expected ErrorResponse, got %T", err)
	}
	if errResp.Status != http.StatusNotFound || errResp.Reason != "Subscription not found" {
		t.Fatalf("unexpected error detail: %+v", errResp)
	}
}

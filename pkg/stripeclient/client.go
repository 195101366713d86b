/**
 * @description
 * This package provides a minimal client for the Stripe API surface the
 * agent-service depends on: retrieving subscription detail (webhook payloads
 * are not trusted as complete), creating billing customers during the
 * identity-provider callback, and verifying webhook signatures.
 *
 * @dependencies
 * - context, encoding/json, net/http, net/url, time: Standard Go libraries.
 * - crypto/hmac, crypto/sha256: For webhook signature validation.
 */
package stripeclient

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const defaultBaseURL = "https://api.stripe.com"

// Client is a client for the Stripe API.
type Client struct {
	BaseURL    string
	SecretKey  string
	HTTPClient *http.Client
}

// NewClient creates a new Stripe API client. An empty baseURL selects the
// public API endpoint; tests point it at a local server.
func NewClient(baseURL, secretKey string) *Client {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &Client{
		BaseURL:   baseURL,
		SecretKey: secretKey,
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// Subscription is the subset of Stripe's subscription object the reconciler
// reads. Metadata carries the container id, owning user id and plan type
// stamped by the billing service at checkout time.
type Subscription struct {
	ID       string            `json:"id"`
	Customer string            `json:"customer"`
	Status   string            `json:"status"`
	Metadata map[string]string `json:"metadata"`
}

// Invoice is the subset of Stripe's invoice object consumed from webhook
// events.
type Invoice struct {
	ID       string            `json:"id"`
	Customer string            `json:"customer"`
	Metadata map[string]string `json:"metadata"`
	Parent   *InvoiceParent    `json:"parent"`
}

// InvoiceParent carries the subscription reference on invoice events.
type InvoiceParent struct {
	SubscriptionDetails struct {
		Subscription string `json:"subscription"`
	} `json:"subscription_details"`
}

// SubscriptionID resolves the provider subscription id referenced by the
// invoice, or "" when absent.
func (i *Invoice) SubscriptionID() string {
	if i.Parent == nil {
		return ""
	}
	return i.Parent.SubscriptionDetails.Subscription
}

// Customer is the subset of Stripe's customer object used at user provisioning.
type Customer struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

// ErrorResponse represents an error returned by the Stripe API.
type ErrorResponse struct {
	Status int `json:"-"`
	E      struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

func (e *ErrorResponse) Error() string {
	if e.E.Message != "" {
		return fmt.Sprintf("stripe api error: %s - %s", e.E.Type, e.E.Message)
	}
	return fmt.Sprintf("stripe api error (status %d)", e.Status)
}

// RetrieveSubscription fetches the full subscription object from Stripe.
func (c *Client) RetrieveSubscription(ctx context.Context, subscriptionID string) (*Subscription, error) {
	bodyBytes, err := c.do(ctx, "GET", "/v1/subscriptions/"+url.PathEscape(subscriptionID), nil)
	if err != nil {
		return nil, err
	}

	var sub Subscription
	if err := json.Unmarshal(bodyBytes, &sub); err != nil {
		return nil, fmt.Errorf("failed to decode subscription response: %w", err)
	}
	return &sub, nil
}

// CreateCustomer creates a billing customer for a newly provisioned user.
func (c *Client) CreateCustomer(ctx context.Context, email string) (*Customer, error) {
	form := url.Values{}
	form.Set("email", email)

	bodyBytes, err := c.do(ctx, "POST", "/v1/customers", strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}

	var customer Customer
	if err := json.Unmarshal(bodyBytes, &customer); err != nil {
		return nil, fmt.Errorf("failed to decode customer response: %w", err)
	}
	return &customer, nil
}

func (c *Client) do(ctx context.Context, method, path string, body io.Reader) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create stripe request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+c.SecretKey)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute stripe request: %w", err)
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read stripe response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		errResp := ErrorResponse{Status: resp.StatusCode}
		if err := json.Unmarshal(bodyBytes, &errResp); err != nil {
			log.Printf("level=warn component=stripe_client path=%s status=%d msg=\"non-2xx response (unparsable error body)\"", path, resp.StatusCode)
			return nil, &ErrorResponse{Status: resp.StatusCode}
		}
		log.Printf("level=warn component=stripe_client path=%s status=%d type=%q message=%q", path, resp.StatusCode, errResp.E.Type, errResp.E.Message)
		return nil, &errResp
	}

	return bodyBytes, nil
}

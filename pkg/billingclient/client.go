/**
 * @description
 * This package provides a client for the sibling billing service, which owns
 * checkout-session creation and subscription cancellation against the payment
 * provider. It encapsulates the logic for making authenticated HTTP requests,
 * handling request body construction, and parsing responses.
 *
 * @dependencies
 * - bytes, context, encoding/json, fmt, net/http, time: Standard Go libraries.
 */
package billingclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"
)

// Client is a client for the billing service.
type Client struct {
	BaseURL    string
	APIKey     string
	HTTPClient *http.Client
}

// NewClient creates a new billing service client.
func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		BaseURL: baseURL,
		APIKey:  apiKey,
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// CreateSubscriptionRequest is the payload for opening a checkout session.
type CreateSubscriptionRequest struct {
	ClerkID     string `json:"clerkId"`
	ContainerID int64  `json:"containerId"`
	PlanType    string `json:"planType"`
}

// CreateSubscriptionResponse carries the redirect URL for payment completion.
type CreateSubscriptionResponse struct {
	Message string `json:"message"`
	URL     string `json:"url"`
}

// CancelSubscriptionRequest is the payload for canceling the subscription
// bound to a container.
type CancelSubscriptionRequest struct {
	ContainerID int64  `json:"containerId"`
	ClerkID     string `json:"clerkId"`
}

// ErrorResponse represents an error from the billing service.
type ErrorResponse struct {
	Status int    `json:"-"`
	Reason string `json:"error"`
}

func (e *ErrorResponse) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("billing service error (status %d): %s", e.Status, e.Reason)
	}
	return fmt.Sprintf("billing service error (status %d)", e.Status)
}

// CreateSubscription opens a subscription checkout for (user, container, plan)
// and returns the redirect URL the client must follow to complete payment.
func (c *Client) CreateSubscription(ctx context.Context, req CreateSubscriptionRequest) (*CreateSubscriptionResponse, error) {
	bodyBytes, err := c.do(ctx, "POST", "/subscription/create", req)
	if err != nil {
		return nil, err
	}

	var resp CreateSubscriptionResponse
	if err := json.Unmarshal(bodyBytes, &resp); err != nil {
		return nil, fmt.Errorf("failed to decode create subscription response: %w", err)
	}
	return &resp, nil
}

// CancelSubscription cancels the billing subscription bound to a container.
func (c *Client) CancelSubscription(ctx context.Context, req CancelSubscriptionRequest) error {
	_, err := c.do(ctx, "POST", "/subscription/cancel", req)
	return err
}

func (c *Client) do(ctx context.Context, method, path string, payload interface{}) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal billing request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, bytes.NewBuffer(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create billing request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.APIKey != "" {
		req.Header.Set("x-internal-key", c.APIKey)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute billing request: %w", err)
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read billing response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		errResp := ErrorResponse{Status: resp.StatusCode}
		if err := json.Unmarshal(bodyBytes, &errResp); err != nil {
			log.Printf("level=warn component=billing_client path=%s status=%d msg=\"non-2xx response (unparsable error body)\"", path, resp.StatusCode)
			return nil, &ErrorResponse{Status: resp.StatusCode}
		}
		log.Printf("level=warn component=billing_client path=%s status=%d reason=%q", path, resp.StatusCode, errResp.Reason)
		return nil, &errResp
	}

	return bodyBytes, nil
}

/**
 * @description
 * This file defines the core domain models for the agent-service.
 * These structs represent the main entities and data transfer objects (DTOs)
 * used throughout the service's business logic, database interactions, and API layers.
 *
 * @notes
 * - Using distinct types for API requests, database models, and queue
 *   payloads ensures clear separation of concerns and type safety.
 * - `SessionString` holds the AES-GCM encrypted Telegram session credential;
 *   the plaintext never reaches the database or the domain layer after intake.
 */

package domain

import (
	"time"

	"github.com/google/uuid"
)

// Agent status values. A frozen agent is persisted but not running on the
// worker fleet; it flips to active only when the billing reconciler observes
// a successful payment for its container.
const (
	AgentStatusFrozen = "frozen"
	AgentStatusActive = "active"
)

// Plan types accepted by the billing service.
const (
	PlanTypeMonth = "month"
	PlanTypeYear  = "year"
)

// Worker queue names. These are stable wire identifiers shared with the
// Python consumer; do not rename.
const (
	QueueCreateOrUpdateAgent = "create_or_update_agent"
	QueueDeleteAgent         = "delete_agent"
)

// Agent represents a user-owned Telegram auto-responder configuration.
// This struct maps directly to the `agents` table in the database.
type Agent struct {
	ID            uuid.UUID `json:"id"`
	UserID        uuid.UUID `json:"user_id"`
	APIID         int64     `json:"api_id"`         // Telegram API id; doubles as the billing container id
	APIHash       string    `json:"api_hash"`
	SessionString string    `json:"session_string"` // encrypted at rest
	Name          string    `json:"name"`
	Prompt        string    `json:"prompt"`
	TypingTime    int       `json:"typing_time"`
	ReactionTime  int       `json:"reaction_time"`
	Model         string    `json:"model"`
	Status        string    `json:"status"` // 'frozen' or 'active'
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// User represents an account provisioned on the first identity-provider
// callback. The Clerk id is the stable external identifier; the Stripe
// customer id links the account to the payment provider.
type User struct {
	ID                     uuid.UUID `json:"id"`
	Email                  string    `json:"email"`
	ClerkID                string    `json:"clerk_id"`
	StripeCustomerID       string    `json:"stripe_customer_id"`
	FullName               string    `json:"full_name"`
	CurrentSubscriptionIDs []string  `json:"current_subscription_ids"`
	CreatedAt              time.Time `json:"created_at"`
	UpdatedAt              time.Time `json:"updated_at"`
}

// Subscription links a user, an agent (by container id) and a payment-provider
// subscription. Rows are created and updated only by the billing reconciler,
// keyed by the provider subscription id so redelivered webhooks upsert instead
// of duplicating.
type Subscription struct {
	ID                   uuid.UUID `json:"id"`
	UserID               uuid.UUID `json:"user_id"`
	ContainerID          int64     `json:"container_id"`
	StripeSubscriptionID string    `json:"stripe_subscription_id"`
	PlanType             string    `json:"plan_type"` // 'month' or 'year'
	CurrentPeriodStart   time.Time `json:"current_period_start"`
	CurrentPeriodEnd     time.Time `json:"current_period_end"`
	Status               string    `json:"status"` // mirrors the provider status: 'active', 'canceled', ...
}

// CreateAgentRequest is the DTO for the agent creation endpoint.
type CreateAgentRequest struct {
	ClerkID       string `json:"clerkId"`
	APIID         int64  `json:"apiId"`
	APIHash       string `json:"apiHash"`
	SessionString string `json:"sessionString"`
	Name          string `json:"name"`
	Prompt        string `json:"prompt"`
	TypingTime    *int   `json:"typingTime,omitempty"`
	ReactionTime  *int   `json:"reactionTime,omitempty"`
	Model         string `json:"model,omitempty"`
	PlanType      string `json:"planType"`
}

// UnfreezeAgentRequest is the DTO for re-opening a billing checkout on an
// existing frozen agent.
type UnfreezeAgentRequest struct {
	ClerkID  string `json:"clerkId"`
	APIID    int64  `json:"apiId"`
	PlanType string `json:"planType"`
}

// UpdateAgentRequest is the DTO for partial agent updates. Nil fields retain
// the stored value.
type UpdateAgentRequest struct {
	ClerkID      string  `json:"clerkId"`
	APIID        int64   `json:"apiId"`
	Name         *string `json:"name,omitempty"`
	Prompt       *string `json:"prompt,omitempty"`
	TypingTime   *int    `json:"typingTime,omitempty"`
	ReactionTime *int    `json:"reactionTime,omitempty"`
	Model        *string `json:"model,omitempty"`
}

// DeleteAgentRequest is the DTO for agent deletion.
type DeleteAgentRequest struct {
	ClerkID string `json:"clerkId"`
	APIID   int64  `json:"apiId"`
}

// AgentSummary is the per-agent projection returned by the list endpoint.
// PlanType is present only when an active subscription exists for the agent.
type AgentSummary struct {
	APIID    int64  `json:"apiId"`
	Name     string `json:"name"`
	Status   string `json:"status"`
	PlanType string `json:"planType,omitempty"`
}

// AgentDetail is the projection returned by the detail endpoint.
type AgentDetail struct {
	Name         string `json:"name"`
	Status       string `json:"status"`
	Prompt       string `json:"prompt"`
	TypingTime   int    `json:"typingTime"`
	ReactionTime int    `json:"reactionTime"`
	Model        string `json:"model"`
	PlanType     string `json:"planType,omitempty"`
}

// AgentCommand is the message published to the `create_or_update_agent`
// queue. Field names are the wire contract consumed by the worker fleet.
type AgentCommand struct {
	UserID        string `json:"user_id"`
	APIID         int64  `json:"api_id"`
	APIHash       string `json:"api_hash"`
	SessionString string `json:"session_string"`
	Name          string `json:"name"`
	Prompt        string `json:"prompt"`
	TypingTime    int    `json:"typing_time"`
	ReactionTime  int    `json:"reaction_time"`
	Model         string `json:"model"`
}

// DeleteAgentCommand is the message published to the `delete_agent` queue.
type DeleteAgentCommand struct {
	APIID int64 `json:"api_id"`
}

// AuthCallbackRequest is the DTO for the identity-provider callback that
// provisions a local user on first login.
type AuthCallbackRequest struct {
	Email     string `json:"email"`
	ClerkID   string `json:"clerkId"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
}

// BuildAgentCommand projects a stored agent into the queue payload consumed
// by the worker fleet. The session string stays in its encrypted form; the
// worker holds the decryption key.
func BuildAgentCommand(agent *Agent) AgentCommand {
	return AgentCommand{
		UserID:        agent.UserID.String(),
		APIID:         agent.APIID,
		APIHash:       agent.APIHash,
		SessionString: agent.SessionString,
		Name:          agent.Name,
		Prompt:        agent.Prompt,
		TypingTime:    agent.TypingTime,
		ReactionTime:  agent.ReactionTime,
		Model:         agent.Model,
	}
}

/**
 * @description
 * This file defines the `Repository` interface, which specifies the contract for all
 * data access operations required by the agent-service. By defining an interface,
 * we decouple the lifecycle and reconciliation logic from the specific database
 * implementation (e.g., PostgreSQL), making the code more modular and easier to test.
 *
 * @dependencies
 * - context, time: Standard Go libraries.
 * - github.com/google/uuid: For UUID handling.
 * - internal/domain: For the service's domain models.
 */

package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/Vladurka/TelegramAICloud/internal/domain"
)

// Domain errors returned by the repository. Driver-specific failures (unique
// violations, missing rows, connectivity loss) are translated into these
// values so callers never inspect pgx error shapes.
var (
	ErrUserNotFound         = errors.New("user not found")
	ErrAgentNotFound        = errors.New("agent not found")
	ErrAgentExists          = errors.New("agent already exists")
	ErrUserExists           = errors.New("user already exists")
	ErrSubscriptionNotFound = errors.New("subscription not found")
	ErrUnavailable          = errors.New("database unavailable")
)

// ActivateSubscriptionParams carries everything the payment-success
// reconciliation writes in one transaction.
type ActivateSubscriptionParams struct {
	UserID               uuid.UUID
	ContainerID          int64
	StripeSubscriptionID string
	PlanType             string
	ProviderStatus       string
	PeriodStart          time.Time
	PeriodEnd            time.Time
}

// Repository defines the set of methods for interacting with the database.
type Repository interface {
	// User methods
	FindUserByClerkID(ctx context.Context, clerkID string) (*domain.User, error)
	FindUserByStripeCustomerID(ctx context.Context, stripeCustomerID string) (*domain.User, error)
	CreateUser(ctx context.Context, user *domain.User) (*domain.User, error)

	// Agent methods
	CreateAgent(ctx context.Context, agent *domain.Agent) (*domain.Agent, error)
	FindAgentByAPIID(ctx context.Context, userID uuid.UUID, apiID int64) (*domain.Agent, error)
	FindFrozenAgentByAPIID(ctx context.Context, userID uuid.UUID, apiID int64) (*domain.Agent, error)
	FindAgentsByUserID(ctx context.Context, userID uuid.UUID) ([]domain.Agent, error)
	UpdateAgent(ctx context.Context, agent *domain.Agent) error
	DeleteAgentByID(ctx context.Context, agentID uuid.UUID) error
	SetAgentStatusByContainerID(ctx context.Context, containerID int64, status string) (*domain.Agent, error)

	// Subscription methods
	FindActiveSubscriptionByContainerID(ctx context.Context, containerID int64) (*domain.Subscription, error)
	UpdateSubscriptionStatus(ctx context.Context, stripeSubscriptionID, status string) error

	// ActivateSubscription applies the whole payment-success sequence
	// (subscription upsert, user subscription-id append, agent unfreeze)
	// atomically and returns the activated agent. Safe to re-run for the
	// same provider subscription id.
	ActivateSubscription(ctx context.Context, params ActivateSubscriptionParams) (*domain.Agent, error)

	// Agents whose active subscription period has lapsed; consumed by the
	// billing-drift audit, which only logs.
	FindAgentsWithLapsedSubscriptions(ctx context.Context, now time.Time) ([]domain.Agent, error)
}

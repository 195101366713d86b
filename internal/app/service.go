/**
 * @description
 * This file contains the core business logic for the agent-service. The `Service`
 * struct orchestrates the agent lifecycle (create/unfreeze/update/delete plus
 * read projections), coordinating between the database repository, the billing
 * service client, and the worker-fleet message broker.
 *
 * Key features:
 * - Compensates on partial failure: an agent is never left in storage without
 *   a billing intent, and never removed while its subscription is still live.
 * - Publishes worker commands to RabbitMQ; queue unavailability is a distinct,
 *   retryable failure from storage errors.
 * - Session credentials are encrypted before they reach the repository.
 *
 * @dependencies
 * - context, errors, fmt, log: Standard Go libraries.
 * - internal/domain, internal/store, internal/sessioncrypt: Domain models, data access, credential encryption.
 * - pkg/billingclient, pkg/rabbitmq: External service communication.
 */

package app

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/google/uuid"

	"github.com/Vladurka/TelegramAICloud/internal/domain"
	"github.com/Vladurka/TelegramAICloud/internal/sessioncrypt"
	"github.com/Vladurka/TelegramAICloud/internal/store"
	"github.com/Vladurka/TelegramAICloud/pkg/billingclient"
	"github.com/Vladurka/TelegramAICloud/pkg/rabbitmq"
)

var (
	// ErrSubscriptionCreateFailed reports a failed billing checkout call.
	// When returned from CreateAgent the just-created agent row has already
	// been compensated away.
	ErrSubscriptionCreateFailed = errors.New("failed to create subscription")

	// ErrSubscriptionCancelFailed reports a failed billing cancellation. When
	// returned from DeleteAgent the deleted row has been re-created.
	ErrSubscriptionCancelFailed = errors.New("failed to cancel subscription")
)

// BillingClient is the slice of the billing service the lifecycle manager
// depends on. Injected so tests can simulate upstream failures.
type BillingClient interface {
	CreateSubscription(ctx context.Context, req billingclient.CreateSubscriptionRequest) (*billingclient.CreateSubscriptionResponse, error)
	CancelSubscription(ctx context.Context, req billingclient.CancelSubscriptionRequest) error
}

// Service provides the core business logic for the agent lifecycle.
type Service struct {
	repo     store.Repository
	billing  BillingClient
	producer rabbitmq.Publisher
	cipher   *sessioncrypt.Cipher

	// skipBilling short-circuits the outbound billing calls in the test
	// execution mode, matching the delete response's "skipped" status.
	skipBilling bool
}

// NewService creates a new agent lifecycle service instance.
func NewService(repo store.Repository, billing BillingClient, producer rabbitmq.Publisher, cipher *sessioncrypt.Cipher, skipBilling bool) *Service {
	return &Service{
		repo:        repo,
		billing:     billing,
		producer:    producer,
		cipher:      cipher,
		skipBilling: skipBilling,
	}
}

// CreateAgentResult is returned on successful agent creation.
type CreateAgentResult struct {
	Message string `json:"message"`
	URL     string `json:"url,omitempty"`
	Status  string `json:"status,omitempty"`
}

// DeleteAgentResult distinguishes a canceled subscription from the skipped
// test-mode path.
type DeleteAgentResult struct {
	Status       string `json:"status"`
	Subscription string `json:"subscription"`
}

// CreateAgent persists a frozen agent with its session credential encrypted,
// then opens a billing checkout for it. If the billing call fails the agent
// row is deleted again: a stored agent must always have a pending or active
// billing intent.
func (s *Service) CreateAgent(ctx context.Context, req domain.CreateAgentRequest) (*CreateAgentResult, error) {
	if err := ValidateCreateAgent(&req); err != nil {
		return nil, err
	}

	user, err := s.repo.FindUserByClerkID(ctx, req.ClerkID)
	if err != nil {
		return nil, err
	}

	encryptedSession, err := s.cipher.Encrypt(req.SessionString)
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt session credential: %w", err)
	}

	agent, err := s.repo.CreateAgent(ctx, &domain.Agent{
		UserID:        user.ID,
		APIID:         req.APIID,
		APIHash:       req.APIHash,
		SessionString: encryptedSession,
		Name:          req.Name,
		Prompt:        req.Prompt,
		TypingTime:    intOrZero(req.TypingTime),
		ReactionTime:  intOrZero(req.ReactionTime),
		Model:         req.Model,
		Status:        domain.AgentStatusFrozen,
	})
	if err != nil {
		return nil, err
	}

	if s.skipBilling {
		return &CreateAgentResult{Message: "Test agent created successfully"}, nil
	}

	checkout, err := s.billing.CreateSubscription(ctx, billingclient.CreateSubscriptionRequest{
		ClerkID:     req.ClerkID,
		ContainerID: req.APIID,
		PlanType:    req.PlanType,
	})
	if err != nil {
		log.Printf("CreateAgent: billing checkout failed for container %d, rolling back agent: %v", req.APIID, err)
		if delErr := s.repo.DeleteAgentByID(ctx, agent.ID); delErr != nil {
			// The compensation itself failed; escalate loudly rather than hide it.
			log.Printf("CreateAgent: COMPENSATION FAILED, orphaned agent %s without billing intent: %v", agent.ID, delErr)
		}
		return nil, fmt.Errorf("%w: %v", ErrSubscriptionCreateFailed, err)
	}

	return &CreateAgentResult{
		Message: "Redirect to complete payment to unfreeze agent",
		URL:     checkout.URL,
		Status:  domain.AgentStatusFrozen,
	}, nil
}

// UnfreezeAgent re-opens a billing checkout for an existing frozen agent. The
// agent's status is not touched here; it flips only when the reconciler
// observes payment success. A non-frozen agent reads as not found, which makes
// double-unfreeze a clean 404 instead of a duplicate checkout.
func (s *Service) UnfreezeAgent(ctx context.Context, req domain.UnfreezeAgentRequest) (*CreateAgentResult, error) {
	if err := ValidateUnfreezeAgent(&req); err != nil {
		return nil, err
	}

	user, err := s.repo.FindUserByClerkID(ctx, req.ClerkID)
	if err != nil {
		return nil, err
	}

	if _, err := s.repo.FindFrozenAgentByAPIID(ctx, user.ID, req.APIID); err != nil {
		return nil, err
	}

	if s.skipBilling {
		return &CreateAgentResult{Message: "Test agent unfreeze request received successfully"}, nil
	}

	checkout, err := s.billing.CreateSubscription(ctx, billingclient.CreateSubscriptionRequest{
		ClerkID:     req.ClerkID,
		ContainerID: req.APIID,
		PlanType:    req.PlanType,
	})
	if err != nil {
		log.Printf("UnfreezeAgent: billing checkout failed for container %d: %v", req.APIID, err)
		return nil, fmt.Errorf("%w: %v", ErrSubscriptionCreateFailed, err)
	}

	return &CreateAgentResult{
		Message: "Redirect to complete payment to unfreeze agent",
		URL:     checkout.URL,
		Status:  domain.AgentStatusFrozen,
	}, nil
}

// UpdateAgentResult acknowledges a queued worker refresh.
type UpdateAgentResult struct {
	Status string `json:"status"`
	Type   string `json:"type"`
}

// UpdateAgent merges the supplied partial fields over the stored agent,
// persists the result, and pushes the full merged definition to the worker
// fleet so it can apply the change without re-reading storage.
func (s *Service) UpdateAgent(ctx context.Context, req domain.UpdateAgentRequest) (*UpdateAgentResult, error) {
	if err := ValidateUpdateAgent(&req); err != nil {
		return nil, err
	}

	user, err := s.repo.FindUserByClerkID(ctx, req.ClerkID)
	if err != nil {
		return nil, err
	}

	agent, err := s.repo.FindAgentByAPIID(ctx, user.ID, req.APIID)
	if err != nil {
		return nil, err
	}

	mergeAgentUpdate(agent, &req)

	if err := s.repo.UpdateAgent(ctx, agent); err != nil {
		return nil, err
	}

	if !s.skipBilling {
		if err := s.producer.Publish(ctx, domain.QueueCreateOrUpdateAgent, domain.BuildAgentCommand(agent)); err != nil {
			return nil, err
		}
	}

	return &UpdateAgentResult{Status: "queued", Type: domain.QueueCreateOrUpdateAgent}, nil
}

// DeleteAgent removes the agent row and cancels its billing subscription. If
// the cancellation fails the row is re-inserted with the same field values
// (new storage identity): an agent must never be gone from storage while its
// subscription is still live on the payment provider.
func (s *Service) DeleteAgent(ctx context.Context, req domain.DeleteAgentRequest) (*DeleteAgentResult, error) {
	user, err := s.repo.FindUserByClerkID(ctx, req.ClerkID)
	if err != nil {
		return nil, err
	}

	agent, err := s.repo.FindAgentByAPIID(ctx, user.ID, req.APIID)
	if err != nil {
		return nil, err
	}

	if err := s.repo.DeleteAgentByID(ctx, agent.ID); err != nil {
		return nil, err
	}

	subscriptionStatus := "skipped (test env)"
	if !s.skipBilling {
		err := s.billing.CancelSubscription(ctx, billingclient.CancelSubscriptionRequest{
			ContainerID: req.APIID,
			ClerkID:     req.ClerkID,
		})
		if err != nil {
			log.Printf("DeleteAgent: billing cancel failed for container %d, restoring agent: %v", req.APIID, err)
			restored := *agent
			restored.ID = uuid.Nil // new identity on re-insert
			if _, createErr := s.repo.CreateAgent(ctx, &restored); createErr != nil {
				log.Printf("DeleteAgent: COMPENSATION FAILED, agent %d deleted but subscription still live: %v", req.APIID, createErr)
			}
			return nil, fmt.Errorf("%w: %v", ErrSubscriptionCancelFailed, err)
		}
		subscriptionStatus = "canceled"
	}

	return &DeleteAgentResult{Status: "deleted", Subscription: subscriptionStatus}, nil
}

// ListAgentsByUser returns the caller's agents with the plan type of the
// active subscription attached where one exists.
func (s *Service) ListAgentsByUser(ctx context.Context, clerkID string) ([]domain.AgentSummary, error) {
	user, err := s.repo.FindUserByClerkID(ctx, clerkID)
	if err != nil {
		return nil, err
	}

	agents, err := s.repo.FindAgentsByUserID(ctx, user.ID)
	if err != nil {
		return nil, err
	}

	summaries := make([]domain.AgentSummary, 0, len(agents))
	for _, agent := range agents {
		summary := domain.AgentSummary{
			APIID:  agent.APIID,
			Name:   agent.Name,
			Status: agent.Status,
		}
		if sub, err := s.repo.FindActiveSubscriptionByContainerID(ctx, agent.APIID); err == nil {
			summary.PlanType = sub.PlanType
		} else if !errors.Is(err, store.ErrSubscriptionNotFound) {
			return nil, err
		}
		summaries = append(summaries, summary)
	}
	return summaries, nil
}

// GetAgent returns the detail projection for one agent. A missing active
// subscription is not an error; the detail is returned without a plan type.
func (s *Service) GetAgent(ctx context.Context, clerkID string, apiID int64) (*domain.AgentDetail, error) {
	user, err := s.repo.FindUserByClerkID(ctx, clerkID)
	if err != nil {
		return nil, err
	}

	agent, err := s.repo.FindAgentByAPIID(ctx, user.ID, apiID)
	if err != nil {
		return nil, err
	}

	detail := &domain.AgentDetail{
		Name:         agent.Name,
		Status:       agent.Status,
		Prompt:       agent.Prompt,
		TypingTime:   agent.TypingTime,
		ReactionTime: agent.ReactionTime,
		Model:        agent.Model,
	}
	if sub, err := s.repo.FindActiveSubscriptionByContainerID(ctx, apiID); err == nil {
		detail.PlanType = sub.PlanType
	} else if !errors.Is(err, store.ErrSubscriptionNotFound) {
		return nil, err
	}
	return detail, nil
}

func intOrZero(v *int) int {
	if v == nil {
		return 0
	}
	return *v
}

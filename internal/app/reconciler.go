/**
 * @description
 * The billing reconciler translates asynchronous payment-provider webhook
 * events into local lifecycle transitions. It is the only component that
 * creates or mutates subscription rows and the only writer of agent status.
 *
 * Key features:
 * - Re-fetches subscription detail from the provider instead of trusting the
 *   webhook payload to be complete.
 * - Applies the payment-success sequence through one storage transaction and
 *   compensates (best-effort billing cancel) if that transaction fails, so
 *   payment and object state never diverge silently.
 * - Every branch is safe to re-run: the provider redelivers events until it
 *   sees a 2xx, and a handler error here surfaces as a 500 to trigger that.
 *
 * @dependencies
 * - context, errors, fmt, log, strconv, time: Standard Go libraries.
 * - internal/domain, internal/store: Domain models and data access.
 * - pkg/billingclient, pkg/rabbitmq, pkg/stripeclient: External collaborators.
 */

package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/Vladurka/TelegramAICloud/internal/domain"
	"github.com/Vladurka/TelegramAICloud/internal/store"
	"github.com/Vladurka/TelegramAICloud/pkg/billingclient"
	"github.com/Vladurka/TelegramAICloud/pkg/rabbitmq"
	"github.com/Vladurka/TelegramAICloud/pkg/stripeclient"
)

// ErrMissingMetadata reports a provider event whose metadata is incomplete.
// This is a data-integrity fault, not a retryable condition: it surfaces as a
// handler error so the provider keeps the event in its retry loop until an
// operator intervenes.
var ErrMissingMetadata = errors.New("missing metadata in billing event")

// PaymentProvider is the slice of the payment-provider API the reconciler
// depends on.
type PaymentProvider interface {
	RetrieveSubscription(ctx context.Context, subscriptionID string) (*stripeclient.Subscription, error)
}

// BillingReconciler consumes verified payment-provider events.
type BillingReconciler struct {
	repo     store.Repository
	payments PaymentProvider
	billing  BillingClient
	producer rabbitmq.Publisher

	now func() time.Time
}

// NewBillingReconciler creates a reconciler with its external collaborators injected.
func NewBillingReconciler(repo store.Repository, payments PaymentProvider, billing BillingClient, producer rabbitmq.Publisher) *BillingReconciler {
	return &BillingReconciler{
		repo:     repo,
		payments: payments,
		billing:  billing,
		producer: producer,
		now:      time.Now,
	}
}

// HandleEvent dispatches one verified webhook event. Unhandled event kinds are
// acknowledged without action.
func (r *BillingReconciler) HandleEvent(ctx context.Context, event *stripeclient.Event) error {
	switch event.Type {
	case stripeclient.EventInvoicePaymentSucceeded:
		return r.handlePaymentSucceeded(ctx, event)
	case stripeclient.EventInvoicePaymentFailed:
		return r.handlePaymentFailed(ctx, event)
	case stripeclient.EventSubscriptionDeleted:
		return r.handleSubscriptionCanceled(ctx, event)
	default:
		log.Printf("HandleEvent: ignoring unhandled event type %q", event.Type)
		return nil
	}
}

func (r *BillingReconciler) handlePaymentSucceeded(ctx context.Context, event *stripeclient.Event) error {
	invoice, err := event.Invoice()
	if err != nil {
		return err
	}

	subscriptionID := invoice.SubscriptionID()
	if subscriptionID == "" {
		return fmt.Errorf("%w: no subscription id on paid invoice", ErrMissingMetadata)
	}

	// The webhook payload is not trusted as complete; re-fetch the full
	// subscription, which carries the metadata stamped at checkout.
	subscription, err := r.payments.RetrieveSubscription(ctx, subscriptionID)
	if err != nil {
		return fmt.Errorf("failed to retrieve subscription %s: %w", subscriptionID, err)
	}

	containerID, err := parseContainerID(subscription.Metadata["containerId"])
	if err != nil {
		return err
	}
	ownerID, err := uuid.Parse(subscription.Metadata["user"])
	if err != nil {
		return fmt.Errorf("%w: user id on subscription %s", ErrMissingMetadata, subscriptionID)
	}
	planType := subscription.Metadata["planType"]
	if planType != domain.PlanTypeMonth && planType != domain.PlanTypeYear {
		return fmt.Errorf("%w: plan type on subscription %s", ErrMissingMetadata, subscriptionID)
	}
	if subscription.Customer == "" {
		return fmt.Errorf("%w: customer on subscription %s", ErrMissingMetadata, subscriptionID)
	}

	user, err := r.repo.FindUserByStripeCustomerID(ctx, subscription.Customer)
	if err != nil {
		return fmt.Errorf("owner of customer %s: %w", subscription.Customer, err)
	}

	periodStart := r.now()
	periodEnd := periodStart.AddDate(0, 1, 0)
	if planType == domain.PlanTypeYear {
		periodEnd = periodStart.AddDate(1, 0, 0)
	}

	agent, err := r.repo.ActivateSubscription(ctx, store.ActivateSubscriptionParams{
		UserID:               ownerID,
		ContainerID:          containerID,
		StripeSubscriptionID: subscription.ID,
		PlanType:             planType,
		ProviderStatus:       subscription.Status,
		PeriodStart:          periodStart,
		PeriodEnd:            periodEnd,
	})
	if err != nil {
		// The payment exists on the provider but the local state could not be
		// applied; cancel the now-orphaned subscription so the two sides do
		// not diverge silently.
		cancelErr := r.billing.CancelSubscription(ctx, billingclient.CancelSubscriptionRequest{
			ContainerID: containerID,
			ClerkID:     user.ClerkID,
		})
		if cancelErr != nil {
			log.Printf("handlePaymentSucceeded: COMPENSATION FAILED, subscription %s live without local state: %v", subscription.ID, cancelErr)
		}
		return fmt.Errorf("failed to activate subscription %s: %w", subscription.ID, err)
	}

	// Push the full agent definition so the worker starts (or refreshes) it.
	if err := r.producer.Publish(ctx, domain.QueueCreateOrUpdateAgent, domain.BuildAgentCommand(agent)); err != nil {
		return fmt.Errorf("failed to enqueue agent start for container %d: %w", containerID, err)
	}

	log.Printf("handlePaymentSucceeded: agent started for container %d (subscription %s)", containerID, subscription.ID)
	return nil
}

func (r *BillingReconciler) handlePaymentFailed(ctx context.Context, event *stripeclient.Event) error {
	invoice, err := event.Invoice()
	if err != nil {
		return err
	}

	containerID, err := parseContainerID(invoice.Metadata["containerId"])
	if err != nil {
		return err
	}
	if invoice.Customer == "" {
		return fmt.Errorf("%w: customer on failed invoice", ErrMissingMetadata)
	}

	// A first-payment failure arrives before any successful period exists;
	// freezing then would be wrong, so the event is a no-op.
	if _, err := r.repo.FindActiveSubscriptionByContainerID(ctx, containerID); err != nil {
		if errors.Is(err, store.ErrSubscriptionNotFound) {
			log.Printf("handlePaymentFailed: no active subscription for container %d, ignoring", containerID)
			return nil
		}
		return err
	}

	user, err := r.repo.FindUserByStripeCustomerID(ctx, invoice.Customer)
	if err != nil {
		return fmt.Errorf("owner of customer %s: %w", invoice.Customer, err)
	}

	if _, err := r.repo.SetAgentStatusByContainerID(ctx, containerID, domain.AgentStatusFrozen); err != nil {
		if !errors.Is(err, store.ErrAgentNotFound) {
			return err
		}
		log.Printf("handlePaymentFailed: no agent for container %d, freezing skipped", containerID)
	}

	// A failed renewal must not leave a dangling active billing object.
	if err := r.billing.CancelSubscription(ctx, billingclient.CancelSubscriptionRequest{
		ContainerID: containerID,
		ClerkID:     user.ClerkID,
	}); err != nil {
		return fmt.Errorf("failed to cancel subscription for container %d: %w", containerID, err)
	}

	log.Printf("handlePaymentFailed: agent frozen and subscription canceled for container %d", containerID)
	return nil
}

func (r *BillingReconciler) handleSubscriptionCanceled(ctx context.Context, event *stripeclient.Event) error {
	subscription, err := event.Subscription()
	if err != nil {
		return err
	}

	containerID, err := parseContainerID(subscription.Metadata["containerId"])
	if err != nil {
		return err
	}
	if subscription.Customer == "" {
		return fmt.Errorf("%w: customer on canceled subscription", ErrMissingMetadata)
	}

	status := subscription.Status
	if status == "" {
		status = "canceled"
	}
	if err := r.repo.UpdateSubscriptionStatus(ctx, subscription.ID, status); err != nil {
		return err
	}

	// Stop the worker instance, but keep the local agent row: removal of the
	// record is reserved for the explicit user-initiated delete.
	if err := r.producer.Publish(ctx, domain.QueueDeleteAgent, domain.DeleteAgentCommand{APIID: containerID}); err != nil {
		return fmt.Errorf("failed to enqueue agent stop for container %d: %w", containerID, err)
	}

	log.Printf("handleSubscriptionCanceled: subscription %s marked %s for container %d", subscription.ID, status, containerID)
	return nil
}

func parseContainerID(raw string) (int64, error) {
	if raw == "" {
		return 0, fmt.Errorf("%w: container id", ErrMissingMetadata)
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: container id %q", ErrMissingMetadata, raw)
	}
	return id, nil
}

/**
 * @description
 * First-login user provisioning. The identity provider calls back with the
 * user's profile after sign-up; a local user row is created exactly once,
 * together with a billing customer at the payment provider. Subsequent
 * callbacks for the same Clerk id are acknowledged without side effects.
 */

package app

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Vladurka/TelegramAICloud/internal/domain"
	"github.com/Vladurka/TelegramAICloud/internal/store"
	"github.com/Vladurka/TelegramAICloud/pkg/stripeclient"
)

// CustomerCreator is the slice of the payment provider used at provisioning time.
type CustomerCreator interface {
	CreateCustomer(ctx context.Context, email string) (*stripeclient.Customer, error)
}

// Provisioner handles identity-provider callbacks.
type Provisioner struct {
	repo     store.Repository
	payments CustomerCreator
}

// NewProvisioner creates a Provisioner.
func NewProvisioner(repo store.Repository, payments CustomerCreator) *Provisioner {
	return &Provisioner{repo: repo, payments: payments}
}

// ProvisionResult reports whether a user row was created by this callback.
type ProvisionResult struct {
	Success bool `json:"success"`
	Created bool `json:"created"`
}

// HandleCallback creates the local user and its billing customer on first
// sight of a Clerk id. Idempotent: an existing user short-circuits before any
// provider call.
func (p *Provisioner) HandleCallback(ctx context.Context, req domain.AuthCallbackRequest) (*ProvisionResult, error) {
	if req.ClerkID == "" || req.Email == "" {
		return nil, fmt.Errorf("%w: email and clerkId are required", ErrValidation)
	}

	if _, err := p.repo.FindUserByClerkID(ctx, req.ClerkID); err == nil {
		return &ProvisionResult{Success: true, Created: false}, nil
	} else if !errors.Is(err, store.ErrUserNotFound) {
		return nil, err
	}

	customer, err := p.payments.CreateCustomer(ctx, req.Email)
	if err != nil {
		return nil, fmt.Errorf("failed to create billing customer: %w", err)
	}

	nameParts := make([]string, 0, 2)
	if req.FirstName != "" {
		nameParts = append(nameParts, req.FirstName)
	}
	if req.LastName != "" {
		nameParts = append(nameParts, req.LastName)
	}

	_, err = p.repo.CreateUser(ctx, &domain.User{
		Email:            req.Email,
		ClerkID:          req.ClerkID,
		StripeCustomerID: customer.ID,
		FullName:         strings.Join(nameParts, " "),
	})
	if err != nil {
		// A concurrent callback won the insert race; the user exists, which is
		// the outcome this callback wanted.
		if errors.Is(err, store.ErrUserExists) {
			return &ProvisionResult{Success: true, Created: false}, nil
		}
		return nil, err
	}

	return &ProvisionResult{Success: true, Created: true}, nil
}

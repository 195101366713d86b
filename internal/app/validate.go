/**
 * @description
 * Request validation for the agent lifecycle operations. Bounds mirror the
 * public API contract: Telegram api ids are 8 digits, session strings are
 * 200-400 characters, and the model must be one of the supported selectors.
 * Failures wrap ErrValidation so the HTTP layer can map them to 400.
 */

package app

import (
	"errors"
	"fmt"
	"strings"

	"github.com/Vladurka/TelegramAICloud/internal/domain"
)

// ErrValidation marks a request that failed schema validation.
var ErrValidation = errors.New("validation failed")

// AllowedModels is the set of model selectors an agent may run with. The
// first entry is the default.
var AllowedModels = []string{
	"gpt-3.5-turbo",
	"gpt-4o",
	"gpt-4o-mini",
	"o4-mini",
	"gpt-4.1-mini",
	"gpt-4.1-nano",
}

const (
	minAPIID = 10000000
	maxAPIID = 99999999
)

func invalid(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

func validateClerkID(clerkID string) error {
	if len(clerkID) < 25 || len(clerkID) > 40 || !strings.HasPrefix(clerkID, "user_") {
		return invalid("clerkId must be a Clerk user id")
	}
	return nil
}

func validateAPIID(apiID int64) error {
	if apiID < minAPIID || apiID > maxAPIID {
		return invalid("apiId must be an 8 digit number")
	}
	return nil
}

func validatePlanType(planType string) error {
	if planType != domain.PlanTypeMonth && planType != domain.PlanTypeYear {
		return invalid("planType must be 'month' or 'year'")
	}
	return nil
}

func validateModel(model string) error {
	for _, allowed := range AllowedModels {
		if model == allowed {
			return nil
		}
	}
	return invalid("model must be one of: %s", strings.Join(AllowedModels, ", "))
}

// ValidateCreateAgent checks the full creation payload and normalizes the
// trimmed/defaulted fields in place.
func ValidateCreateAgent(req *domain.CreateAgentRequest) error {
	if err := validateClerkID(req.ClerkID); err != nil {
		return err
	}
	if err := validateAPIID(req.APIID); err != nil {
		return err
	}
	if len(req.APIHash) < 30 || len(req.APIHash) > 40 {
		return invalid("apiHash must be 30-40 characters")
	}
	if len(req.SessionString) < 200 || len(req.SessionString) > 400 {
		return invalid("sessionString must be 200-400 characters")
	}

	req.Name = strings.TrimSpace(req.Name)
	if len(req.Name) < 1 || len(req.Name) > 40 {
		return invalid("name must be 1-40 characters")
	}
	req.Prompt = strings.TrimSpace(req.Prompt)
	if len(req.Prompt) < 1 || len(req.Prompt) > 1000 {
		return invalid("prompt must be 1-1000 characters")
	}

	if req.TypingTime != nil && (*req.TypingTime < 0 || *req.TypingTime > 10) {
		return invalid("typingTime must be between 0 and 10")
	}
	if req.ReactionTime != nil && (*req.ReactionTime < 0 || *req.ReactionTime > 120) {
		return invalid("reactionTime must be between 0 and 120")
	}

	req.Model = strings.TrimSpace(req.Model)
	if req.Model == "" {
		req.Model = AllowedModels[0]
	}
	if err := validateModel(req.Model); err != nil {
		return err
	}

	return validatePlanType(req.PlanType)
}

// ValidateUnfreezeAgent checks the unfreeze payload.
func ValidateUnfreezeAgent(req *domain.UnfreezeAgentRequest) error {
	if err := validateClerkID(req.ClerkID); err != nil {
		return err
	}
	if err := validateAPIID(req.APIID); err != nil {
		return err
	}
	return validatePlanType(req.PlanType)
}

// ValidateUpdateAgent checks the partial update payload. Nil fields are
// untouched; supplied fields must satisfy the same bounds as creation.
func ValidateUpdateAgent(req *domain.UpdateAgentRequest) error {
	if req.ClerkID == "" {
		return invalid("clerkId is required")
	}
	if err := validateAPIID(req.APIID); err != nil {
		return err
	}
	if req.Name != nil && strings.TrimSpace(*req.Name) == "" {
		return invalid("name must not be empty")
	}
	if req.Prompt != nil && strings.TrimSpace(*req.Prompt) == "" {
		return invalid("prompt must not be empty")
	}
	if req.TypingTime != nil && *req.TypingTime < 0 {
		return invalid("typingTime must be >= 0")
	}
	if req.ReactionTime != nil && *req.ReactionTime < 0 {
		return invalid("reactionTime must be >= 0")
	}
	if req.Model != nil {
		if err := validateModel(strings.TrimSpace(*req.Model)); err != nil {
			return err
		}
	}
	return nil
}

// mergeAgentUpdate overlays the supplied fields on the stored agent.
// Unspecified fields retain their prior values; textual fields are trimmed.
func mergeAgentUpdate(agent *domain.Agent, req *domain.UpdateAgentRequest) {
	if req.Name != nil {
		agent.Name = strings.TrimSpace(*req.Name)
	}
	if req.Prompt != nil {
		agent.Prompt = strings.TrimSpace(*req.Prompt)
	}
	if req.TypingTime != nil {
		agent.TypingTime = *req.TypingTime
	}
	if req.ReactionTime != nil {
		agent.ReactionTime = *req.ReactionTime
	}
	if req.Model != nil {
		agent.Model = strings.TrimSpace(*req.Model)
	}
}

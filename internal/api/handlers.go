/**
 * @description
 * This file contains the HTTP handlers for the agent-service's API endpoints.
 * Handlers are responsible for parsing incoming requests, calling the
 * appropriate methods on the application service, and writing the HTTP
 * response. They act as the bridge between the web layer and the business
 * logic layer, mapping domain errors to contractual status codes.
 *
 * @dependencies
 * - encoding/json, log, net/http: Standard Go libraries.
 * - internal/app, internal/domain, internal/store: For service logic, models, and custom errors.
 * - pkg/rabbitmq: For the queue-unavailable sentinel.
 */

package api

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/Vladurka/TelegramAICloud/internal/app"
	"github.com/Vladurka/TelegramAICloud/internal/domain"
	"github.com/Vladurka/TelegramAICloud/internal/store"
	"github.com/Vladurka/TelegramAICloud/pkg/rabbitmq"
)

// AgentHandlers holds the application services that handlers use.
type AgentHandlers struct {
	service     *app.Service
	provisioner *app.Provisioner
}

// NewAgentHandlers creates a new instance of AgentHandlers.
func NewAgentHandlers(service *app.Service, provisioner *app.Provisioner) *AgentHandlers {
	return &AgentHandlers{service: service, provisioner: provisioner}
}

func (h *AgentHandlers) writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Printf("level=error component=api msg=\"response encode failed\" err=%v", err)
	}
}

func (h *AgentHandlers) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}

// writeDomainError maps domain errors produced by the lifecycle manager to
// the contractual status codes.
func (h *AgentHandlers) writeDomainError(w http.ResponseWriter, endpoint string, err error) {
	switch {
	case errors.Is(err, store.ErrUserNotFound):
		h.writeError(w, http.StatusNotFound, "User not found")
	case errors.Is(err, store.ErrAgentNotFound):
		h.writeError(w, http.StatusNotFound, "Agent not found")
	case errors.Is(err, store.ErrAgentExists):
		h.writeError(w, http.StatusBadRequest, "Agent already exists")
	case errors.Is(err, app.ErrValidation):
		h.writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, app.ErrSubscriptionCreateFailed):
		h.writeError(w, http.StatusInternalServerError, "Failed to create subscription")
	case errors.Is(err, app.ErrSubscriptionCancelFailed):
		h.writeError(w, http.StatusInternalServerError, "Failed to cancel subscription")
	case errors.Is(err, rabbitmq.ErrNotConnected):
		h.writeError(w, http.StatusServiceUnavailable, "RabbitMQ is not connected. Please try again later.")
	case errors.Is(err, store.ErrUnavailable):
		h.writeError(w, http.StatusServiceUnavailable, "Database connection error. Please try again later.")
	default:
		log.Printf("level=error component=api endpoint=%s msg=\"unhandled error\" err=%v", endpoint, err)
		h.writeError(w, http.StatusInternalServerError, "Internal server error")
	}
}

// CreateAgentHandler handles agent creation requests.
func (h *AgentHandlers) CreateAgentHandler(w http.ResponseWriter, r *http.Request) {
	var req domain.CreateAgentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	result, err := h.service.CreateAgent(r.Context(), req)
	if err != nil {
		h.writeDomainError(w, "create_agent", err)
		return
	}
	h.writeJSON(w, http.StatusOK, result)
}

// UnfreezeAgentHandler re-opens a billing checkout for a frozen agent.
func (h *AgentHandlers) UnfreezeAgentHandler(w http.ResponseWriter, r *http.Request) {
	var req domain.UnfreezeAgentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	result, err := h.service.UnfreezeAgent(r.Context(), req)
	if err != nil {
		h.writeDomainError(w, "unfreeze_agent", err)
		return
	}
	h.writeJSON(w, http.StatusOK, result)
}

// UpdateAgentHandler applies a partial update and queues a worker refresh.
func (h *AgentHandlers) UpdateAgentHandler(w http.ResponseWriter, r *http.Request) {
	var req domain.UpdateAgentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	result, err := h.service.UpdateAgent(r.Context(), req)
	if err != nil {
		h.writeDomainError(w, "update_agent", err)
		return
	}
	h.writeJSON(w, http.StatusOK, result)
}

// DeleteAgentHandler removes an agent and cancels its subscription.
func (h *AgentHandlers) DeleteAgentHandler(w http.ResponseWriter, r *http.Request) {
	var req domain.DeleteAgentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.APIID == 0 || req.ClerkID == "" {
		h.writeError(w, http.StatusBadRequest, "apiId and clerkId are required")
		return
	}

	result, err := h.service.DeleteAgent(r.Context(), req)
	if err != nil {
		h.writeDomainError(w, "delete_agent", err)
		return
	}
	h.writeJSON(w, http.StatusOK, result)
}

// GetAgentsByUserHandler lists the caller's agents.
func (h *AgentHandlers) GetAgentsByUserHandler(w http.ResponseWriter, r *http.Request) {
	clerkID := chi.URLParam(r, "clerkId")
	if clerkID == "" {
		h.writeError(w, http.StatusBadRequest, "clerkId is required")
		return
	}

	agents, err := h.service.ListAgentsByUser(r.Context(), clerkID)
	if err != nil {
		h.writeDomainError(w, "get_agents_by_user", err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{"agents": agents})
}

// GetAgentByIDHandler returns the detail projection for one agent.
func (h *AgentHandlers) GetAgentByIDHandler(w http.ResponseWriter, r *http.Request) {
	clerkID := chi.URLParam(r, "clerkId")
	apiID, err := strconv.ParseInt(chi.URLParam(r, "apiId"), 10, 64)
	if err != nil || clerkID == "" {
		h.writeError(w, http.StatusBadRequest, "apiId and clerkId are required")
		return
	}

	agent, err := h.service.GetAgent(r.Context(), clerkID, apiID)
	if err != nil {
		h.writeDomainError(w, "get_agent_by_id", err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{"agent": agent})
}

// AuthCallbackHandler provisions a user on the first identity-provider callback.
func (h *AgentHandlers) AuthCallbackHandler(w http.ResponseWriter, r *http.Request) {
	var req domain.AuthCallbackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	result, err := h.provisioner.HandleCallback(r.Context(), req)
	if err != nil {
		if errors.Is(err, app.ErrValidation) {
			h.writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		log.Printf("level=error component=api endpoint=auth_callback msg=\"provisioning failed\" err=%v", err)
		h.writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	status := http.StatusOK
	if result.Created {
		status = http.StatusCreated
	}
	h.writeJSON(w, status, result)
}

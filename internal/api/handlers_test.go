package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/Vladurka/TelegramAICloud/internal/app"
	"github.com/Vladurka/TelegramAICloud/internal/domain"
	"github.com/Vladurka/TelegramAICloud/internal/sessioncrypt"
	"github.com/Vladurka/TelegramAICloud/internal/store"
	"github.com/Vladurka/TelegramAICloud/pkg/billingclient"
	"github.com/Vladurka/TelegramAICloud/pkg/rabbitmq"
	"github.com/Vladurka/TelegramAICloud/pkg/stripeclient"
)

type handlerRepoStub struct {
	store.Repository

	user           *domain.User
	userErr        error
	agent          *domain.Agent
	agents         []domain.Agent
	createAgentErr error
}

func (s *handlerRepoStub) CreateAgent(ctx context.Context, agent *domain.Agent) (*domain.Agent, error) {
	if s.createAgentErr != nil {
		return nil, s.createAgentErr
	}
	created := *agent
	created.ID = uuid.New()
	return &created, nil
}

func (s *handlerRepoStub) FindUserByClerkID(ctx context.Context, clerkID string) (*domain.User, error) {
	if s.userErr != nil {
		return nil, s.userErr
	}
	return s.user, nil
}

func (s *handlerRepoStub) FindAgentByAPIID(ctx context.Context, userID uuid.UUID, apiID int64) (*domain.Agent, error) {
	if s.agent == nil {
		return nil, store.ErrAgentNotFound
	}
	return s.agent, nil
}

func (s *handlerRepoStub) FindAgentsByUserID(ctx context.Context, userID uuid.UUID) ([]domain.Agent, error) {
	return s.agents, nil
}

func (s *handlerRepoStub) UpdateAgent(ctx context.Context, agent *domain.Agent) error {
	return nil
}

func (s *handlerRepoStub) FindActiveSubscriptionByContainerID(ctx context.Context, containerID int64) (*domain.Subscription, error) {
	return nil, store.ErrSubscriptionNotFound
}

type handlerBillingStub struct{}

func (h *handlerBillingStub) CreateSubscription(ctx context.Context, req billingclient.CreateSubscriptionRequest) (*billingclient.CreateSubscriptionResponse, error) {
	return &billingclient.CreateSubscriptionResponse{URL: "https://checkout.example"}, nil
}

func (h *handlerBillingStub) CancelSubscription(ctx context.Context, req billingclient.CancelSubscriptionRequest) error {
	return nil
}

type handlerProducerStub struct {
	err error
}

func (p *handlerProducerStub) Publish(ctx context.Context, queue string, body interface{}) error {
	return p.err
}

func (p *handlerProducerStub) Close() {}

func newTestRouter(t *testing.T, repo store.Repository, producer rabbitmq.Publisher) http.Handler {
	t.Helper()
	cipher, err := sessioncrypt.New("6a09e667f3bcc908b2fb1366ea957d3e3adec17512775099da2f590b0667322a")
	if err != nil {
		t.Fatalf("failed to build cipher: %v", err)
	}
	service := app.NewService(repo, &handlerBillingStub{}, producer, cipher, false)
	handlers := NewAgentHandlers(service, nil)
	return AgentRoutes(RouterOptions{Handlers: handlers})
}

func decodeErrorBody(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]string
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode error body: %v", err)
	}
	return body["error"]
}

func TestDeleteAgentHandlerRequiresFields(t *testing.T) {
	router := newTestRouter(t, &handlerRepoStub{}, &handlerProducerStub{})

	req := httptest.NewRequest(http.MethodDelete, "/agents/", strings.NewReader(`{"apiId":0}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if got := decodeErrorBody(t, rec); got != "apiId and clerkId are required" {
		t.Fatalf("unexpected error message: %q", got)
	}
}

func TestCreateAgentHandlerMapsUserNotFound(t *testing.T) {
	router := newTestRouter(t, &handlerRepoStub{userErr: store.ErrUserNotFound}, &handlerProducerStub{})

	payload := `{
		"clerkId": "user_2abcdefghijklmnopqrstuv",
		"apiId": 12345678,
		"apiHash": "` + strings.Repeat("a", 32) + `",
		"sessionString": "` + strings.Repeat("s", 250) + `",
		"name": "Helper",
		"prompt": "Be helpful",
		"planType": "month"
	}`
	req := httptest.NewRequest(http.MethodPost, "/agents/", strings.NewReader(payload))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
	if got := decodeErrorBody(t, rec); got != "User not found" {
		t.Fatalf("unexpected error message: %q", got)
	}
}

func TestCreateAgentHandlerMapsDuplicateToConflictMessage(t *testing.T) {
	repo := &handlerRepoStub{
		user:           &domain.User{ID: uuid.New()},
		createAgentErr: store.ErrAgentExists,
	}
	router := newTestRouter(t, repo, &handlerProducerStub{})

	payload := `{
		"clerkId": "user_2abcdefghijklmnopqrstuv",
		"apiId": 12345678,
		"apiHash": "` + strings.Repeat("a", 32) + `",
		"sessionString": "` + strings.Repeat("s", 250) + `",
		"name": "Helper",
		"prompt": "Be helpful",
		"planType": "year"
	}`
	req := httptest.NewRequest(http.MethodPost, "/agents/", strings.NewReader(payload))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if got := decodeErrorBody(t, rec); got != "Agent already exists" {
		t.Fatalf("unexpected error message: %q", got)
	}
}

func TestCreateAgentHandlerMapsValidationError(t *testing.T) {
	router := newTestRouter(t, &handlerRepoStub{}, &handlerProducerStub{})

	req := httptest.NewRequest(http.MethodPost, "/agents/", strings.NewReader(`{"clerkId":"bad","apiId":1}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestUpdateAgentHandlerMapsQueueOutage(t *testing.T) {
	userID := uuid.New()
	repo := &handlerRepoStub{
		user:  &domain.User{ID: userID},
		agent: &domain.Agent{ID: uuid.New(), UserID: userID, APIID: 12345678, Name: "A", Prompt: "P"},
	}
	router := newTestRouter(t, repo, &handlerProducerStub{err: rabbitmq.ErrNotConnected})

	payload := `{"clerkId":"user_2abcdefghijklmnopqrstuv","apiId":12345678,"name":"B"}`
	req := httptest.NewRequest(http.MethodPut, "/agents/", strings.NewReader(payload))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
	if got := decodeErrorBody(t, rec); got != "RabbitMQ is not connected. Please try again later." {
		t.Fatalf("unexpected error message: %q", got)
	}
}

func TestGetAgentsByUserHandlerWrapsEnvelope(t *testing.T) {
	userID := uuid.New()
	repo := &handlerRepoStub{
		user: &domain.User{ID: userID},
		agents: []domain.Agent{
			{APIID: 12345678, Name: "Helper", Status: domain.AgentStatusFrozen},
		},
	}
	router := newTestRouter(t, repo, &handlerProducerStub{})

	req := httptest.NewRequest(http.MethodGet, "/agents/getByUser/user_2abcdefghijklmnopqrstuv", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var body struct {
		Agents []domain.AgentSummary `json:"agents"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode body: %v", err)
	}
	if len(body.Agents) != 1 || body.Agents[0].APIID != 12345678 {
		t.Fatalf("unexpected agents payload: %+v", body.Agents)
	}
}

func TestGetAgentByIDHandlerRejectsNonNumericID(t *testing.T) {
	router := newTestRouter(t, &handlerRepoStub{}, &handlerProducerStub{})

	req := httptest.NewRequest(http.MethodGet, "/agents/abc/user_2abcdefghijklmnopqrstuv", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestGetAgentByIDHandlerMapsAgentNotFound(t *testing.T) {
	repo := &handlerRepoStub{user: &domain.User{ID: uuid.New()}}
	router := newTestRouter(t, repo, &handlerProducerStub{})

	req := httptest.NewRequest(http.MethodGet, "/agents/12345678/user_2abcdefghijklmnopqrstuv", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
	if got := decodeErrorBody(t, rec); got != "Agent not found" {
		t.Fatalf("unexpected error message: %q", got)
	}
}

type callbackRepoStub struct {
	store.Repository

	existing *domain.User
}

func (s *callbackRepoStub) FindUserByClerkID(ctx context.Context, clerkID string) (*domain.User, error) {
	if s.existing != nil {
		return s.existing, nil
	}
	return nil, store.ErrUserNotFound
}

func (s *callbackRepoStub) CreateUser(ctx context.Context, user *domain.User) (*domain.User, error) {
	created := *user
	created.ID = uuid.New()
	return &created, nil
}

type callbackCustomerStub struct{}

func (c *callbackCustomerStub) CreateCustomer(ctx context.Context, email string) (*stripeclient.Customer, error) {
	return &stripeclient.Customer{ID: "cus_new", Email: email}, nil
}

func TestAuthCallbackHandlerStatusReflectsCreation(t *testing.T) {
	tests := []struct {
		name     string
		existing *domain.User
		want     int
	}{
		{name: "first callback creates", want: http.StatusCreated},
		{name: "repeat callback acknowledges", existing: &domain.User{ID: uuid.New()}, want: http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			provisioner := app.NewProvisioner(&callbackRepoStub{existing: tt.existing}, &callbackCustomerStub{})
			handlers := NewAgentHandlers(nil, provisioner)
			router := AgentRoutes(RouterOptions{Handlers: handlers})

			payload := `{"email":"jo@example.com","clerkId":"user_2abcdefghijklmnopqrstuv","firstName":"Jo"}`
			req := httptest.NewRequest(http.MethodPost, "/auth/callback", strings.NewReader(payload))
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)

			if rec.Code != tt.want {
				t.Fatalf("expected %d, got %d", tt.want, rec.Code)
			}
		})
	}
}

func TestHealthEndpoint(t *testing.T) {
	router := newTestRouter(t, &handlerRepoStub{}, &handlerProducerStub{})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

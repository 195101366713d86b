/**
 * @description
 * This file provides the PostgreSQL implementation of the `Repository` interface.
 * It contains all the SQL queries for users, agents and subscriptions, and maps
 * driver-level failures (unique violations, missing rows, lost connections) to
 * the domain errors declared in repository.go.
 *
 * @dependencies
 * - context, errors, time: Standard Go libraries.
 * - github.com/jackc/pgx/v5: The PostgreSQL driver for database operations.
 * - internal/domain: Contains the domain models used for data transfer.
 */

package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Vladurka/TelegramAICloud/internal/domain"
)

// PostgresRepository is a concrete implementation of the Repository interface for PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository creates a new instance of PostgresRepository.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// classify translates pgx errors into domain errors. Unique violations become
// the supplied duplicate error; connectivity failures become ErrUnavailable.
func classify(err error, onDuplicate error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if pgErr.Code == "23505" { // unique_violation
			return onDuplicate
		}
		return err
	}
	if pgconn.Timeout(err) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return err
}

const userColumns = `id, email, clerk_id, COALESCE(stripe_customer_id, ''), full_name, COALESCE(current_subscription_ids, '{}'), created_at, updated_at`

func scanUser(row pgx.Row) (*domain.User, error) {
	var user domain.User
	err := row.Scan(
		&user.ID,
		&user.Email,
		&user.ClerkID,
		&user.StripeCustomerID,
		&user.FullName,
		&user.CurrentSubscriptionIDs,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, classify(err, nil)
	}
	return &user, nil
}

// FindUserByClerkID retrieves a user by their Clerk identifier.
func (r *PostgresRepository) FindUserByClerkID(ctx context.Context, clerkID string) (*domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE clerk_id = $1`
	return scanUser(r.db.QueryRow(ctx, query, clerkID))
}

// FindUserByStripeCustomerID retrieves a user by their payment-provider customer id.
func (r *PostgresRepository) FindUserByStripeCustomerID(ctx context.Context, stripeCustomerID string) (*domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE stripe_customer_id = $1`
	return scanUser(r.db.QueryRow(ctx, query, stripeCustomerID))
}

// CreateUser inserts a user provisioned by the identity-provider callback.
func (r *PostgresRepository) CreateUser(ctx context.Context, user *domain.User) (*domain.User, error) {
	query := `
		INSERT INTO users (id, email, clerk_id, stripe_customer_id, full_name)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING ` + userColumns
	id := user.ID
	if id == uuid.Nil {
		id = uuid.New()
	}
	created, err := scanUser(r.db.QueryRow(ctx, query, id, user.Email, user.ClerkID, user.StripeCustomerID, user.FullName))
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, ErrUnavailable
		}
		return nil, classify(err, ErrUserExists)
	}
	return created, nil
}

const agentColumns = `id, user_id, api_id, api_hash, session_string, name, prompt, typing_time, reaction_time, model, status, created_at, updated_at`

func scanAgent(row pgx.Row) (*domain.Agent, error) {
	var agent domain.Agent
	err := row.Scan(
		&agent.ID,
		&agent.UserID,
		&agent.APIID,
		&agent.APIHash,
		&agent.SessionString,
		&agent.Name,
		&agent.Prompt,
		&agent.TypingTime,
		&agent.ReactionTime,
		&agent.Model,
		&agent.Status,
		&agent.CreatedAt,
		&agent.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAgentNotFound
		}
		return nil, classify(err, nil)
	}
	return &agent, nil
}

// CreateAgent inserts a new agent row. Unique violations on api_id or
// session_string surface as ErrAgentExists.
func (r *PostgresRepository) CreateAgent(ctx context.Context, agent *domain.Agent) (*domain.Agent, error) {
	query := `
		INSERT INTO agents (id, user_id, api_id, api_hash, session_string, name, prompt, typing_time, reaction_time, model, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING ` + agentColumns
	id := agent.ID
	if id == uuid.Nil {
		id = uuid.New()
	}
	created, err := scanAgent(r.db.QueryRow(ctx, query,
		id,
		agent.UserID,
		agent.APIID,
		agent.APIHash,
		agent.SessionString,
		agent.Name,
		agent.Prompt,
		agent.TypingTime,
		agent.ReactionTime,
		agent.Model,
		agent.Status,
	))
	if err != nil {
		if errors.Is(err, ErrAgentNotFound) {
			return nil, ErrUnavailable
		}
		return nil, classify(err, ErrAgentExists)
	}
	return created, nil
}

// FindAgentByAPIID retrieves an agent owned by the given user.
func (r *PostgresRepository) FindAgentByAPIID(ctx context.Context, userID uuid.UUID, apiID int64) (*domain.Agent, error) {
	query := `SELECT ` + agentColumns + ` FROM agents WHERE user_id = $1 AND api_id = $2`
	return scanAgent(r.db.QueryRow(ctx, query, userID, apiID))
}

// FindFrozenAgentByAPIID retrieves an agent only if it is currently frozen.
// A non-frozen agent reads as not found, which guards unfreeze against
// double-submission.
func (r *PostgresRepository) FindFrozenAgentByAPIID(ctx context.Context, userID uuid.UUID, apiID int64) (*domain.Agent, error) {
	query := `SELECT ` + agentColumns + ` FROM agents WHERE user_id = $1 AND api_id = $2 AND status = $3`
	return scanAgent(r.db.QueryRow(ctx, query, userID, apiID, domain.AgentStatusFrozen))
}

// FindAgentsByUserID lists all agents owned by a user.
func (r *PostgresRepository) FindAgentsByUserID(ctx context.Context, userID uuid.UUID) ([]domain.Agent, error) {
	query := `SELECT ` + agentColumns + ` FROM agents WHERE user_id = $1 ORDER BY created_at`
	rows, err := r.db.Query(ctx, query, userID)
	if err != nil {
		return nil, classify(err, nil)
	}
	defer rows.Close()

	var agents []domain.Agent
	for rows.Next() {
		agent, err := scanAgent(rows)
		if err != nil {
			return nil, err
		}
		agents = append(agents, *agent)
	}
	return agents, rows.Err()
}

// UpdateAgent persists the mutable agent fields.
func (r *PostgresRepository) UpdateAgent(ctx context.Context, agent *domain.Agent) error {
	query := `
		UPDATE agents
		SET name = $2, prompt = $3, typing_time = $4, reaction_time = $5, model = $6, updated_at = NOW()
		WHERE id = $1`
	tag, err := r.db.Exec(ctx, query, agent.ID, agent.Name, agent.Prompt, agent.TypingTime, agent.ReactionTime, agent.Model)
	if err != nil {
		return classify(err, nil)
	}
	if tag.RowsAffected() == 0 {
		return ErrAgentNotFound
	}
	return nil
}

// DeleteAgentByID removes an agent row.
func (r *PostgresRepository) DeleteAgentByID(ctx context.Context, agentID uuid.UUID) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM agents WHERE id = $1`, agentID)
	if err != nil {
		return classify(err, nil)
	}
	if tag.RowsAffected() == 0 {
		return ErrAgentNotFound
	}
	return nil
}

// SetAgentStatusByContainerID flips an agent's lifecycle status, addressed by
// its billing container id, and returns the updated row.
func (r *PostgresRepository) SetAgentStatusByContainerID(ctx context.Context, containerID int64, status string) (*domain.Agent, error) {
	query := `
		UPDATE agents SET status = $2, updated_at = NOW()
		WHERE api_id = $1
		RETURNING ` + agentColumns
	return scanAgent(r.db.QueryRow(ctx, query, containerID, status))
}

const subscriptionColumns = `id, user_id, container_id, stripe_subscription_id, plan_type, current_period_start, current_period_end, status`

func scanSubscription(row pgx.Row) (*domain.Subscription, error) {
	var sub domain.Subscription
	err := row.Scan(
		&sub.ID,
		&sub.UserID,
		&sub.ContainerID,
		&sub.StripeSubscriptionID,
		&sub.PlanType,
		&sub.CurrentPeriodStart,
		&sub.CurrentPeriodEnd,
		&sub.Status,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSubscriptionNotFound
		}
		return nil, classify(err, nil)
	}
	return &sub, nil
}

// FindActiveSubscriptionByContainerID retrieves the active subscription for a
// container, if any.
func (r *PostgresRepository) FindActiveSubscriptionByContainerID(ctx context.Context, containerID int64) (*domain.Subscription, error) {
	query := `SELECT ` + subscriptionColumns + ` FROM subscriptions WHERE container_id = $1 AND status = 'active'`
	return scanSubscription(r.db.QueryRow(ctx, query, containerID))
}

// UpdateSubscriptionStatus sets the provider-reported status on the
// subscription keyed by the provider subscription id. Missing rows are not an
// error: a cancellation webhook may arrive for a subscription this service
// never recorded, and the operation must stay re-runnable.
func (r *PostgresRepository) UpdateSubscriptionStatus(ctx context.Context, stripeSubscriptionID, status string) error {
	query := `UPDATE subscriptions SET status = $2 WHERE stripe_subscription_id = $1`
	if _, err := r.db.Exec(ctx, query, stripeSubscriptionID, status); err != nil {
		return classify(err, nil)
	}
	return nil
}

// ActivateSubscription applies the payment-success sequence in one
// transaction: upsert the subscription by provider subscription id, append
// the id to the user's known-subscription list (idempotent), and flip the
// agent to active. The transaction rolls back on any failure so payment and
// object state never diverge partially.
func (r *PostgresRepository) ActivateSubscription(ctx context.Context, params ActivateSubscriptionParams) (*domain.Agent, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, classify(err, nil)
	}
	defer tx.Rollback(ctx)

	upsert := `
		INSERT INTO subscriptions (id, user_id, container_id, stripe_subscription_id, plan_type, current_period_start, current_period_end, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (stripe_subscription_id) DO UPDATE SET
			status = 'active',
			current_period_start = EXCLUDED.current_period_start,
			current_period_end = EXCLUDED.current_period_end`
	if _, err := tx.Exec(ctx, upsert,
		uuid.New(),
		params.UserID,
		params.ContainerID,
		params.StripeSubscriptionID,
		params.PlanType,
		params.PeriodStart,
		params.PeriodEnd,
		params.ProviderStatus,
	); err != nil {
		return nil, classify(err, nil)
	}

	appendQuery := `
		UPDATE users
		SET current_subscription_ids = array_append(COALESCE(current_subscription_ids, '{}'), $2), updated_at = NOW()
		WHERE id = $1 AND NOT ($2 = ANY(COALESCE(current_subscription_ids, '{}')))`
	if _, err := tx.Exec(ctx, appendQuery, params.UserID, params.StripeSubscriptionID); err != nil {
		return nil, classify(err, nil)
	}

	flip := `
		UPDATE agents SET status = $2, updated_at = NOW()
		WHERE api_id = $1
		RETURNING ` + agentColumns
	agent, err := scanAgent(tx.QueryRow(ctx, flip, params.ContainerID, domain.AgentStatusActive))
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, classify(err, nil)
	}
	return agent, nil
}

// FindAgentsWithLapsedSubscriptions returns active agents whose active
// subscription period ended before `now`. Read-only; used by the drift audit.
func (r *PostgresRepository) FindAgentsWithLapsedSubscriptions(ctx context.Context, now time.Time) ([]domain.Agent, error) {
	query := `
		SELECT ` + prefixedAgentColumns("a") + `
		FROM agents a
		JOIN subscriptions s ON s.container_id = a.api_id AND s.status = 'active'
		WHERE a.status = $1 AND s.current_period_end < $2`
	rows, err := r.db.Query(ctx, query, domain.AgentStatusActive, now)
	if err != nil {
		return nil, classify(err, nil)
	}
	defer rows.Close()

	var agents []domain.Agent
	for rows.Next() {
		agent, err := scanAgent(rows)
		if err != nil {
			return nil, err
		}
		agents = append(agents, *agent)
	}
	return agents, rows.Err()
}

func prefixedAgentColumns(alias string) string {
	return alias + `.id, ` + alias + `.user_id, ` + alias + `.api_id, ` + alias + `.api_hash, ` + alias + `.session_string, ` +
		alias + `.name, ` + alias + `.prompt, ` + alias + `.typing_time, ` + alias + `.reaction_time, ` + alias + `.model, ` +
		alias + `.status, ` + alias + `.created_at, ` + alias + `.updated_at`
}

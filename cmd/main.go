/**
 * @description
 * This is the main entry point for the agent service. It is responsible for
 * initializing all components of the service, including configuration, database
 * connection, external API clients, the message broker producer, repositories,
 * the core application services, and the HTTP server. It wires everything
 * together and starts the service.
 *
 * @dependencies
 * - log, net/http: Standard Go libraries for logging and HTTP server functionality.
 * - github.com/jackc/pgx/v5: PostgreSQL driver.
 * - github.com/joho/godotenv: For loading .env files during local development.
 * - github.com/redis/go-redis/v9: Redis client for distributed rate limiting.
 * - internal/api, internal/app, internal/config, internal/store: Internal packages for the service.
 * - pkg/billingclient: Client for the billing service.
 * - pkg/stripeclient: Client for the Stripe API.
 * - pkg/rabbitmq: Client for RabbitMQ.
 */

package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/Vladurka/TelegramAICloud/internal/api"
	"github.com/Vladurka/TelegramAICloud/internal/app"
	"github.com/Vladurka/TelegramAICloud/internal/config"
	"github.com/Vladurka/TelegramAICloud/internal/sessioncrypt"
	"github.com/Vladurka/TelegramAICloud/internal/store"
	"github.com/Vladurka/TelegramAICloud/pkg/billingclient"
	"github.com/Vladurka/TelegramAICloud/pkg/rabbitmq"
	"github.com/Vladurka/TelegramAICloud/pkg/stripeclient"
)

func main() {
	// Load .env for local development; in production the environment is set
	// by the platform and the file is absent.
	if err := godotenv.Load(); err != nil {
		log.Println("level=info component=bootstrap msg=\"no .env file found, reading environment\"")
	}

	// Load application configuration from environment variables.
	cfg, err := config.LoadConfig(".")
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"config load failed\" err=%v", err)
	}

	log.Printf("level=info component=bootstrap msg=\"starting agent-service\" port=%s env=%s", cfg.ServerPort, cfg.Environment)

	// Establish a connection pool to the PostgreSQL database.
	poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"database url parse failed\" err=%v", err)
	}

	poolConfig.MaxConns = 50
	poolConfig.MinConns = 5
	poolConfig.MaxConnLifetime = 30 * time.Minute
	poolConfig.MaxConnIdleTime = 5 * time.Minute

	// Disable prepared statement caching to prevent conflicts behind poolers.
	poolConfig.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeSimpleProtocol

	dbpool, err := pgxpool.NewWithConfig(context.Background(), poolConfig)
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"database connection failed\" err=%v", err)
	}
	defer dbpool.Close()
	log.Println("level=info component=bootstrap msg=\"database connected\"")

	// Session strings must be encrypted at rest, so a bad key is fatal.
	cipher, err := sessioncrypt.New(cfg.EncryptionKey)
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"encryption key invalid\" err=%v", err)
	}

	// Initialize the RabbitMQ producer to publish agent commands. A broker
	// outage at boot degrades to 503s on the affected endpoints instead of
	// preventing startup.
	var producer rabbitmq.Publisher
	eventProducer, err := rabbitmq.NewEventProducer(cfg.RabbitMQURL)
	if err != nil {
		log.Printf("level=warn component=bootstrap msg=\"rabbitmq producer unavailable; using fallback\" err=%v", err)
		producer = &rabbitmq.DisconnectedProducer{}
	} else {
		defer eventProducer.Close()
		producer = eventProducer
		log.Println("level=info component=bootstrap msg=\"rabbitmq producer connected\"")
	}

	// Initialize the billing-service and Stripe clients.
	billingClient := billingclient.NewClient(cfg.BillingServiceURL, cfg.BillingServiceAPIKey)
	stripeClient := stripeclient.NewClient(cfg.StripeAPIBaseURL, cfg.StripeSecretKey)

	// Optional Redis for distributed rate limiting.
	var redisClient *redis.Client
	if strings.TrimSpace(cfg.RedisURL) == "" {
		log.Println("level=warn component=bootstrap msg=\"redis url missing; rate limiting disabled\" env=REDIS_URL")
	} else {
		redisOptions, parseErr := redis.ParseURL(cfg.RedisURL)
		if parseErr != nil {
			log.Printf("level=warn component=bootstrap msg=\"redis url parse failed; rate limiting disabled\" err=%v", parseErr)
		} else {
			redisClient = redis.NewClient(redisOptions)
			pingCtx, cancelPing := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancelPing()
			if pingErr := redisClient.Ping(pingCtx).Err(); pingErr != nil {
				log.Printf("level=warn component=bootstrap msg=\"redis ping failed; rate limiting disabled\" err=%v", pingErr)
				redisClient.Close()
				redisClient = nil
			} else {
				defer redisClient.Close()
				log.Println("level=info component=bootstrap msg=\"redis connected\"")
			}
		}
	}

	// Initialize the data access layer (repository).
	repository := store.NewPostgresRepository(dbpool)

	// Initialize the core application services with their dependencies.
	agentService := app.NewService(repository, billingClient, producer, cipher, cfg.IsTest())
	reconciler := app.NewBillingReconciler(repository, stripeClient, billingClient, producer)
	provisioner := app.NewProvisioner(repository, stripeClient)

	auditor := app.NewDriftAuditor(repository)
	if err := auditor.Start(); err != nil {
		log.Printf("level=warn component=bootstrap msg=\"drift auditor start failed\" err=%v", err)
	} else {
		defer auditor.Stop()
	}

	// Initialize the API handlers and router.
	handlers := api.NewAgentHandlers(agentService, provisioner)
	webhookHandler := api.NewWebhookHandler(reconciler, cfg.StripeWebhookSecret)

	var limiter *api.RateLimiter
	if redisClient != nil && cfg.RateLimitRequests > 0 {
		limiter = api.NewRateLimiter(
			redisClient,
			cfg.RateLimitRequests,
			time.Duration(cfg.RateLimitWindowMin)*time.Minute,
		)
	}

	router := api.AgentRoutes(api.RouterOptions{
		Handlers:       handlers,
		Webhook:        webhookHandler,
		JWKSURL:        cfg.ClerkJWKSURL,
		Limiter:        limiter,
		AllowedOrigins: cfg.AllowedOrigins(),
	})

	// Start the HTTP server.
	serverAddr := fmt.Sprintf(":%s", cfg.ServerPort)
	log.Printf("level=info component=http msg=\"server listening\" addr=%s", serverAddr)

	server := &http.Server{
		Addr:    serverAddr,
		Handler: router,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("level=fatal component=http msg=\"server stopped unexpectedly\" err=%v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	log.Println("level=info component=http msg=\"shutdown started\"")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Printf("level=error component=http msg=\"shutdown failed\" err=%v", err)
	}

	log.Println("level=info component=http msg=\"shutdown complete\"")
}

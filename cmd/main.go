/**
 * @description
 * This is the main entry point for the transfer-status-service. It is
 * responsible for initializing all components of the service: configuration,
 * the event log (in-memory by default, Postgres when DATABASE_URL is set),
 * the optional RabbitMQ ingestion consumer and change-feed producer, the
 * optional Redis rate limiter, the derivation service, and the HTTP server.
 *
 * Every external collaborator degrades gracefully: a missing broker, database,
 * or Redis leaves the service running on its in-process defaults.
 *
 * @dependencies
 * - log, net/http: Standard Go libraries for logging and HTTP server functionality.
 * - github.com/go-chi/chi/v5: For HTTP routing.
 * - github.com/jackc/pgx/v5: PostgreSQL driver.
 * - github.com/redis/go-redis/v9: Redis client for the submit rate limiter.
 * - internal/api, internal/app, internal/config, internal/store: Internal packages for the service.
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
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/transfa/transfer-status-service/internal/api"
	"github.com/transfa/transfer-status-service/internal/app"
	"github.com/transfa/transfer-status-service/internal/config"
	"github.com/transfa/transfer-status-service/internal/store"
	rmrabbit "github.com/transfa/transfer-status-service/pkg/rabbitmq"
)

func main() {
	// Load application configuration from environment variables.
	cfg, err := config.LoadConfig(".")
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"config load failed\" err=%v", err)
	}

	log.Printf("level=info component=bootstrap msg=\"starting transfer-status-service\" port=%s", cfg.ServerPort)

	// Choose the event log backing store. The derivation engine only sees the
	// EventLog contract; durability is this wiring decision and nothing more.
	var eventLog store.EventLog
	var dbpool *pgxpool.Pool
	if cfg.DatabaseURL != "" {
		poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("level=fatal component=bootstrap msg=\"database url parse failed\" err=%v", err)
		}
		poolConfig.MaxConns = 20
		poolConfig.MaxConnLifetime = 30 * time.Minute
		poolConfig.MaxConnIdleTime = 5 * time.Minute
		poolConfig.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeSimpleProtocol

		dbpool, err = pgxpool.NewWithConfig(context.Background(), poolConfig)
		if err != nil {
			log.Fatalf("level=fatal component=bootstrap msg=\"database connection failed\" err=%v", err)
		}
		defer dbpool.Close()

		pgLog := store.NewPostgresEventLog(dbpool)
		if err := pgLog.EnsureSchema(context.Background()); err != nil {
			log.Fatalf("level=fatal component=bootstrap msg=\"schema setup failed\" err=%v", err)
		}
		eventLog = pgLog
		log.Println("level=info component=bootstrap msg=\"using postgres event log\"")
	} else {
		eventLog = store.NewMemoryEventLog()
		log.Println("level=info component=bootstrap msg=\"using in-memory event log\"")
	}

	// Initialize the RabbitMQ producer for the change feed. Missing broker
	// config or a failed dial leaves change publication disabled.
	var changeFeed rmrabbit.Publisher
	if cfg.RabbitMQURL != "" {
		producer, err := rmrabbit.NewEventProducer(cfg.RabbitMQURL)
		if err != nil {
			log.Printf("level=warn component=bootstrap msg=\"rabbitmq producer unavailable; change feed disabled\" err=%v", err)
		} else {
			defer producer.Close()
			changeFeed = producer
			log.Println("level=info component=bootstrap msg=\"rabbitmq producer connected\"")
		}
	}

	// Initialize the core derivation service.
	service := app.NewService(eventLog, changeFeed, cfg.TransferEventExchange, cfg.ChangeFeedRoutingKey)

	// Rebuild the derived cache from a durable log before serving reads.
	if dbpool != nil {
		if err := service.WarmCache(context.Background()); err != nil {
			log.Fatalf("level=fatal component=bootstrap msg=\"cache warmup failed\" err=%v", err)
		}
	}

	// Optional Redis-backed submit rate limiter.
	var limiter api.SubmitRateLimiter
	if cfg.SubmitRateLimitPerMinute > 0 && cfg.RedisURL != "" {
		redisOptions, parseErr := redis.ParseURL(cfg.RedisURL)
		if parseErr != nil {
			log.Printf("level=warn component=bootstrap msg=\"redis url parse failed; submit rate limiting disabled\" err=%v", parseErr)
		} else {
			redisClient := redis.NewClient(redisOptions)
			pingCtx, cancelPing := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancelPing()
			if pingErr := redisClient.Ping(pingCtx).Err(); pingErr != nil {
				log.Printf("level=warn component=bootstrap msg=\"redis ping failed; submit rate limiting disabled\" err=%v", pingErr)
				redisClient.Close()
			} else {
				defer redisClient.Close()
				limiter = app.NewRedisSubmitRateLimiter(redisClient, cfg.RedisRateLimitPrefix)
				log.Println("level=info component=bootstrap msg=\"redis connected\"")
			}
		}
	}

	// Wire up the asynchronous ingestion path: upstream lifecycle messages
	// flow through the same submit gate as the HTTP endpoint.
	if cfg.RabbitMQURL != "" {
		statusConsumer := app.NewTransferStatusConsumer(service)
		rabbitConsumer, err := rmrabbit.NewConsumer(cfg.RabbitMQURL)
		if err != nil {
			log.Printf("level=warn component=bootstrap msg=\"rabbitmq consumer unavailable; async ingestion disabled\" err=%v", err)
		} else {
			defer rabbitConsumer.Close()
			bindingKeys := []string{"transfer.status.#"}
			if err := rabbitConsumer.Consume(cfg.TransferEventExchange, cfg.TransferEventQueue, bindingKeys, statusConsumer.HandleMessage); err != nil {
				log.Fatalf("level=fatal component=bootstrap msg=\"transfer consumer start failed\" err=%v", err)
			}
			log.Println("level=info component=bootstrap msg=\"rabbitmq consumer started\"")
		}
	}

	// Initialize the API handlers and router.
	transferHandlers := api.NewTransferHandlers(service)
	router := chi.NewRouter()
	router.Mount("/transfers", api.TransferRoutes(transferHandlers, limiter, cfg.SubmitRateLimitPerMinute))

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

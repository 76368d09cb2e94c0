/**
 * @description
 * Entry point for the ledger service. Wires together configuration, the
 * account/transaction store (PostgreSQL when DATABASE_URL is set, otherwise
 * in-memory), the token authority, the metrics collector, the optional
 * RabbitMQ event producer and the HTTP router, then runs the server with
 * graceful shutdown.
 */

package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"

	"github.com/vchan-in/OhMyBank-Server/internal/api"
	"github.com/vchan-in/OhMyBank-Server/internal/app"
	"github.com/vchan-in/OhMyBank-Server/internal/auth"
	"github.com/vchan-in/OhMyBank-Server/internal/config"
	"github.com/vchan-in/OhMyBank-Server/internal/store"
	"github.com/vchan-in/OhMyBank-Server/pkg/metrics"
	"github.com/vchan-in/OhMyBank-Server/pkg/rabbitmq"
)

// schema is applied idempotently at startup. Account and transaction IDs are
// sequence-allocated, so identifiers are monotonic and collision-free.
const schema = `
CREATE TABLE IF NOT EXISTS accounts (
    account_id BIGINT PRIMARY KEY GENERATED BY DEFAULT AS IDENTITY (START WITH 100000001),
    username TEXT NOT NULL,
    email TEXT NOT NULL,
    password_hash TEXT NOT NULL,
    account_type TEXT NOT NULL,
    balance BIGINT NOT NULL DEFAULT 0 CHECK (balance >= 0),
    currency TEXT NOT NULL,
    phone TEXT NOT NULL DEFAULT '',
    address TEXT NOT NULL DEFAULT '',
    is_active BOOLEAN NOT NULL DEFAULT TRUE,
    is_admin BOOLEAN NOT NULL DEFAULT FALSE,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE TABLE IF NOT EXISTS transactions (
    transaction_id BIGINT PRIMARY KEY GENERATED BY DEFAULT AS IDENTITY,
    account_id BIGINT NOT NULL REFERENCES accounts(account_id),
    type TEXT NOT NULL,
    amount BIGINT NOT NULL CHECK (amount > 0),
    currency TEXT NOT NULL,
    status TEXT NOT NULL,
    description TEXT NOT NULL DEFAULT '',
    linked_transaction_id BIGINT,
    timestamp TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_accounts_username ON accounts (LOWER(username));
CREATE UNIQUE INDEX IF NOT EXISTS idx_accounts_email ON accounts (LOWER(email));
CREATE INDEX IF NOT EXISTS idx_transactions_account_id ON transactions(account_id);
`

func main() {
	// Load .env file for local development. In production, env vars are set
	// directly.
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	cfg, err := config.LoadConfig(".")
	if err != nil {
		log.Fatalf("cannot load config: %v", err)
	}

	var repo store.Repository
	if cfg.DatabaseURL != "" {
		dbConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("Unable to parse database URL: %v\n", err)
		}
		dbConfig.MaxConns = 10
		dbConfig.MinConns = 2
		dbConfig.MaxConnLifetime = 30 * time.Minute
		dbConfig.MaxConnIdleTime = 5 * time.Minute
		dbConfig.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeSimpleProtocol

		dbpool, err := pgxpool.NewWithConfig(context.Background(), dbConfig)
		if err != nil {
			log.Fatalf("Unable to connect to database: %v\n", err)
		}
		defer dbpool.Close()
		log.Println("Database connection established")

		// Ensure required tables exist (idempotent).
		if _, err := dbpool.Exec(context.Background(), schema); err != nil {
			log.Printf("Warning: failed ensuring tables (may already exist): %v", err)
		}
		repo = store.NewPostgresRepository(dbpool)
	} else {
		log.Println("DATABASE_URL not set; using in-memory store")
		repo = store.NewMemoryRepository()
	}

	// Set up the RabbitMQ producer; fall back to a no-op publisher on failure.
	var producer rabbitmq.Publisher
	if cfg.RabbitMQURL != "" {
		if p, err := rabbitmq.NewEventProducer(cfg.RabbitMQURL); err != nil {
			log.Printf("WARNING: Failed to connect to RabbitMQ at startup: %v. Continuing without MQ.", err)
			producer = &rabbitmq.EventProducerFallback{}
		} else {
			producer = p
			defer p.Close()
			log.Println("RabbitMQ producer connected")
		}
	}

	collector := metrics.NewCollector()
	authenticator := auth.NewAuthenticator(repo, cfg.TokenSigningSecret, time.Duration(cfg.TokenTTLMinutes)*time.Minute, cfg.BcryptCost)
	service := app.NewService(repo, authenticator, collector, producer)

	handlers := api.NewLedgerHandlers(service)
	router := api.NewRouter(handlers, authenticator)

	var metricsServer *http.Server
	if cfg.MetricsAddr != "" {
		metricsServer = collector.StartMetricsServer(cfg.MetricsAddr)
	}

	server := &http.Server{
		Addr:    ":" + cfg.ServerPort,
		Handler: router,
	}

	go func() {
		log.Printf("Server starting on port %s", cfg.ServerPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Could not start server: %s\n", err)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatalf("Server shutdown failed: %v", err)
	}
	if metricsServer != nil {
		if err := metricsServer.Shutdown(ctx); err != nil {
			log.Printf("Metrics server shutdown failed: %v", err)
		}
	}

	log.Println("Server gracefully stopped")
}

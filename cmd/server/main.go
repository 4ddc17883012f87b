/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the delivery earnings engine server. Handles
  configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Parse command-line flags and load the environment
  2. Open the store (PostgreSQL when DATABASE_URL is set, SQLite otherwise)
  3. Create API handler with dependencies
  4. Start the background sweep scheduler and the optional event consumer
  5. Start server with graceful shutdown

COMMAND-LINE FLAGS:
  -port            HTTP server port (default: 8080)
  -db              SQLite database path (default: earnings.db)
                   Use ":memory:" for in-memory database
  -sweep-interval  How often the background totals sweep runs (default: 1h)
  -sweep           Whether the background sweep runs at all (default: true)

ENVIRONMENT:
  DATABASE_URL  PostgreSQL connection string. When set it wins over -db.
                The schema must already exist; create it with cmd/dbtool.
  AMQP_URL      RabbitMQ connection string. When set, delivered events are
                consumed from the dispatch exchange; without it the
                delivered webhook is the only event source.
  A .env file in the working directory is loaded if present.

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (30s timeout)
  3. Stop the sweep scheduler and the event consumer
  4. Close the store
  5. Exit

EXAMPLES:
  # Run with a local file database
  ./server -db="./data/earnings.db"

  # Run against PostgreSQL with dispatch events
  DATABASE_URL=postgres://... AMQP_URL=amqp://... ./server

  # Run with a 10 minute sweep cadence
  ./server -sweep-interval=10m

SEE ALSO:
  - api/server.go: Router configuration
  - api/scheduler.go: Background sweep
  - cmd/dbtool: Schema initialization and seeding
*/
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/warp/earnings-engine/api"
	"github.com/warp/earnings-engine/broker"
	"github.com/warp/earnings-engine/store/postgres"
	"github.com/warp/earnings-engine/store/sqlite"
)

func main() {
	// Flags
	port := flag.Int("port", 8080, "HTTP server port")
	dbPath := flag.String("db", "earnings.db", "SQLite database path (ignored when DATABASE_URL is set)")
	sweepInterval := flag.Duration("sweep-interval", time.Hour, "background sweep cadence")
	sweepEnabled := flag.Bool("sweep", true, "run the background totals sweep")
	flag.Parse()

	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found (using environment variables)")
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// Initialize store
	var (
		store  api.Store
		closer interface{ Close() error }
	)
	if url := os.Getenv("DATABASE_URL"); url != "" {
		pg, err := postgres.New(url)
		if err != nil {
			log.Fatalf("Failed to connect to PostgreSQL: %v", err)
		}
		store, closer = pg, pg
		log.Println("Using PostgreSQL store")
	} else {
		lite, err := sqlite.New(*dbPath)
		if err != nil {
			log.Fatalf("Failed to initialize database: %v", err)
		}
		store, closer = lite, lite
		log.Printf("Using SQLite store at %s", *dbPath)
	}
	defer closer.Close()

	// Initialize handler
	handler := api.NewHandler(store, logger)

	// Background sweep
	scheduler := api.NewSweepScheduler(handler.Engine, store)
	scheduler.CheckInterval = *sweepInterval
	scheduler.Enabled = *sweepEnabled
	scheduler.Start()
	defer scheduler.Stop()

	// Delivered events from the dispatch system, when configured
	if url := os.Getenv("AMQP_URL"); url != "" {
		consumer, err := broker.NewConsumer(url, handler.Engine, logger)
		if err != nil {
			log.Fatalf("Failed to connect to RabbitMQ: %v", err)
		}
		defer consumer.Close()
	}

	// Create router
	router := api.NewRouter(handler)

	// Create server
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", *port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Printf("🚀 Server starting on http://localhost:%d", *port)
		log.Printf("📊 API available at http://localhost:%d/api", *port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("Server stopped")
}

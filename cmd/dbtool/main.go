/*
main.go - Database initialization and seeding tool

PURPOSE:
  Prepares a database for the earnings engine: creates the schema and
  optionally loads drivers and deliveries from a JSON seed file. Seeded
  delivered deliveries get their earnings and driver totals computed in the
  same run, so the database comes up fully reconciled.

USAGE:
  # Initialize PostgreSQL schema and seed demo data
  DATABASE_URL=postgres://... ./dbtool -seed=data/seeds/deliveries.json

  # Initialize a local SQLite database, schema only
  ./dbtool -db=./data/earnings.db

COMMAND-LINE FLAGS:
  -db         SQLite database path (ignored when DATABASE_URL is set)
  -seed       JSON seed file; empty means schema only
  -reconcile  Compute earnings and totals for seeded deliveries (default: true)

SEE ALSO:
  - store/seed.go: Seed file format and loader
  - cmd/server: The service this prepares the database for
*/
package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"os"
	"strings"

	"github.com/joho/godotenv"

	"github.com/warp/earnings-engine/earnings"
	"github.com/warp/earnings-engine/store"
	"github.com/warp/earnings-engine/store/postgres"
	"github.com/warp/earnings-engine/store/sqlite"
)

// engineStore is the slice of the storage surface this tool needs. Both
// backends satisfy it.
type engineStore interface {
	earnings.RuleSetStore
	earnings.DeliveryStore
	earnings.DriverStore
	earnings.AuditLog
}

func main() {
	dbPath := flag.String("db", "earnings.db", "SQLite database path (ignored when DATABASE_URL is set)")
	seedPath := flag.String("seed", "", "JSON seed file with drivers and deliveries; empty means schema only")
	reconcile := flag.Bool("reconcile", true, "compute earnings and totals for seeded delivered deliveries")
	flag.Parse()

	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found (using environment variables)")
	}

	ctx := context.Background()

	var (
		st     engineStore
		closer interface{ Close() error }
	)
	if url := strings.TrimSpace(os.Getenv("DATABASE_URL")); url != "" {
		pg, err := postgres.New(url)
		if err != nil {
			log.Fatal(err)
		}
		log.Println("Initializing database schema...")
		if err := pg.InitSchema(ctx); err != nil {
			log.Fatalf("schema initialization failed: %v", err)
		}
		log.Println("Schema ready.")
		st, closer = pg, pg
	} else {
		// SQLite migrates on open.
		lite, err := sqlite.New(*dbPath)
		if err != nil {
			log.Fatal(err)
		}
		log.Printf("Schema ready at %s.", *dbPath)
		st, closer = lite, lite
	}
	defer closer.Close()

	if *seedPath == "" {
		return
	}

	log.Println("Seeding database...")
	result, err := store.SeedFromJSON(ctx, st, st, *seedPath)
	if err != nil {
		log.Fatalf("seeding failed: %v", err)
	}
	log.Printf("Seeding complete: %d drivers, %d deliveries.", result.Drivers, result.Deliveries)

	if !*reconcile || len(result.DeliveredIDs) == 0 {
		return
	}

	log.Println("Computing earnings for seeded deliveries...")
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	engine := earnings.NewReconciler(st, st, earnings.NewConfigService(st), st, logger)
	for _, id := range result.DeliveredIDs {
		if err := engine.EnsureDeliveryEarnings(ctx, id); err != nil {
			log.Fatalf("earnings for %s failed: %v", id, err)
		}
	}
	report, err := engine.FixAll(ctx)
	if err != nil {
		log.Fatalf("totals sweep failed: %v", err)
	}
	log.Printf("Reconciliation complete: %d deliveries computed, %d drivers updated.",
		len(result.DeliveredIDs), report.DriversFixed)
}

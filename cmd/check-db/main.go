// Package main is a diagnostic tool for testing database connectivity and
// inspecting live challenge data. It connects to the database, queries the
// profiles and activities tables, and prints a summary to stdout. The binary
// exits with a non-zero code on any failure so it can be embedded in health
// checks or CI/CD pipeline steps to gate deployments on a reachable,
// populated database.
package main

import (
	"database/sql"
	"fmt"
	"log"
	"os"

	_ "github.com/lib/pq"
)

func main() {
	dbPassword := os.Getenv("DATABASE_PASSWORD")
	if dbPassword == "" {
		dbPassword = "thirtyx30"
	}

	connStr := fmt.Sprintf("host=localhost port=5432 user=thirtyx30 password=%s dbname=thirtyx30 sslmode=disable", dbPassword)
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		log.Fatalf("Failed to connect: %v", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		log.Fatalf("Failed to ping database: %v", err)
	}
	log.Println("Connected to database successfully")

	var profiles int
	if err := db.QueryRow("SELECT COUNT(*) FROM profiles").Scan(&profiles); err != nil {
		log.Fatalf("Failed to count profiles: %v", err)
	}

	var activities int
	if err := db.QueryRow("SELECT COUNT(*) FROM activities").Scan(&activities); err != nil {
		log.Fatalf("Failed to count activities: %v", err)
	}

	var validDays int
	if err := db.QueryRow("SELECT COUNT(*) FROM daily_activities WHERE is_valid").Scan(&validDays); err != nil {
		log.Fatalf("Failed to count valid days: %v", err)
	}

	var orgs int
	if err := db.QueryRow("SELECT COUNT(*) FROM organizations WHERE is_active").Scan(&orgs); err != nil {
		log.Fatalf("Failed to count organizations: %v", err)
	}

	fmt.Printf("profiles:        %d\n", profiles)
	fmt.Printf("activities:      %d\n", activities)
	fmt.Printf("valid days:      %d\n", validDays)
	fmt.Printf("active orgs:     %d\n", orgs)
}

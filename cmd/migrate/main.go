// migrate applies the embedded PostgreSQL schema: go run ./cmd/migrate -direction up
package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/joho/godotenv"
	"github.com/phone-otp-api/internal/config"
	"github.com/phone-otp-api/internal/infrastructure/postgres"
)

func main() {
	direction := flag.String("direction", "up", "Migration direction: up or down")
	flag.Parse()

	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, reading from environment")
	}
	cfg := config.Load()

	if err := postgres.RunMigrations(cfg.DatabaseURL, *direction); err != nil {
		fmt.Fprintln(os.Stderr, "migrate:", err)
		os.Exit(1)
	}
	log.Printf("migrations applied (%s)", *direction)
}

package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/phone-otp-api/internal/config"
	boltstore "github.com/phone-otp-api/internal/infrastructure/bolt"
	"github.com/phone-otp-api/internal/infrastructure/dynamo"
	jwtinfra "github.com/phone-otp-api/internal/infrastructure/jwt"
	"github.com/phone-otp-api/internal/infrastructure/postgres"
	s3infra "github.com/phone-otp-api/internal/infrastructure/s3"
	"github.com/phone-otp-api/internal/infrastructure/sns"
	transporthttp "github.com/phone-otp-api/internal/transport/http"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, reading from environment")
	}

	cfg := config.Load()
	setupLogger(cfg)
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}

	ctx := context.Background()
	store, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		log.Fatalf("open %s store: %v", cfg.StoreDriver, err)
	}
	defer closeStore()

	deps := &transporthttp.Deps{Store: store}

	// SNS SMS sender (optional: issuance still succeeds without it).
	if cfg.SMSEnabled {
		if sender, err := sns.NewSender(ctx, cfg); err == nil {
			deps.SMSSender = sender
		} else {
			log.Printf("WARN: SNS sender not available: %v", err)
		}
	}

	// JWT provider (optional: dashboard routes are not mounted without it).
	if p, err := jwtinfra.NewProvider(cfg); err == nil {
		deps.JWTProvider = p
	} else {
		log.Printf("WARN: JWT provider not available, dashboard disabled: %v", err)
	}
	if !cfg.HasOperatorLogin() {
		log.Println("WARN: OPERATOR_PASSWORD_HASH not set, dashboard disabled")
	}

	// S3 export bucket (optional).
	if cfg.S3BucketName != "" {
		if client, err := s3infra.NewClient(ctx, cfg); err == nil {
			deps.Exporter = s3infra.NewStore(client, cfg.S3BucketName)
		} else {
			log.Printf("WARN: S3 export not available: %v", err)
		}
	}

	router := transporthttp.NewRouter(cfg, deps)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.AppPort),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("Server starting on :%s (env=%s, store=%s)", cfg.AppPort, cfg.AppEnv, cfg.StoreDriver)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("forced shutdown: %v", err)
	}
	log.Println("Server stopped")
}

func setupLogger(cfg *config.Config) {
	opts := &slog.HandlerOptions{Level: slog.LevelInfo}
	if cfg.IsProduction() {
		slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, opts)))
		return
	}
	opts.Level = slog.LevelDebug
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, opts)))
}

// openStore builds the verification store selected by STORE_DRIVER.
func openStore(ctx context.Context, cfg *config.Config) (transporthttp.VerificationStore, func(), error) {
	switch cfg.StoreDriver {
	case config.StorePostgres:
		pool, err := postgres.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		return postgres.NewVerificationRepo(pool), pool.Close, nil
	case config.StoreBolt:
		s, err := boltstore.Open(cfg.BoltPath)
		if err != nil {
			return nil, nil, err
		}
		return s, func() { _ = s.Close() }, nil
	default:
		client, err := dynamo.NewClient(ctx, cfg)
		if err != nil {
			return nil, nil, err
		}
		// Creates the table and GSI if they don't exist.
		dynamo.Bootstrap(ctx, client, cfg.DynamoTables)
		return dynamo.NewVerificationRepo(client, cfg.DynamoTables.Verifications), func() {}, nil
	}
}

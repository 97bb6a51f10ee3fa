package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Store drivers accepted in STORE_DRIVER.
const (
	StoreDynamo   = "dynamo"
	StorePostgres = "postgres"
	StoreBolt     = "bolt"
)

// Config holds all runtime configuration loaded from environment variables.
// It is built once in main and handed to constructors; nothing below cmd/
// reads the environment.
type Config struct {
	AppPort string
	AppEnv  string

	// Verification store
	StoreDriver    string
	AWSRegion      string
	AWSEndpointURL string // empty in prod, set to LocalStack URL in dev
	AWSAccessKeyID string
	AWSSecretKey   string
	DynamoTables   DynamoTables
	DatabaseURL    string
	BoltPath       string

	// SMS provider
	SMSEnabled  bool
	SNSRegion   string
	SNSSenderID string

	// OTP lifecycle
	OTPWindow                time.Duration
	OTPLength                int
	PreventReissueIfVerified bool
	ExposeDevOTP             bool

	// Dashboard
	S3BucketName         string
	JWTPrivateKeyPath    string
	JWTPublicKeyPath     string
	JWTExpiry            time.Duration
	OperatorUsername     string
	OperatorPasswordHash string

	AllowedOrigins []string // CORS allowed origins
}

// DynamoTables holds the DynamoDB table name for each entity.
type DynamoTables struct {
	Verifications string
}

// Load reads all configuration from environment variables.
func Load() *Config {
	appEnv := getEnv("APP_ENV", "development")
	return &Config{
		AppPort: getEnv("APP_PORT", "3000"),
		AppEnv:  appEnv,

		StoreDriver:    strings.ToLower(getEnv("STORE_DRIVER", StoreDynamo)),
		AWSRegion:      getEnv("AWS_REGION", "us-east-1"),
		AWSEndpointURL: getEnv("AWS_ENDPOINT_URL", ""),
		AWSAccessKeyID: getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretKey:   getEnv("AWS_SECRET_ACCESS_KEY", ""),
		DynamoTables: DynamoTables{
			Verifications: getEnv("DYNAMO_TABLE_PHONE_VERIFICATIONS", "phone_verifications"),
		},
		DatabaseURL: getEnv("DATABASE_URL", ""),
		BoltPath:    getEnv("BOLT_PATH", "./phone_verifications.db"),

		SMSEnabled:  getEnvBool("SMS_ENABLED", true),
		SNSRegion:   getEnv("SNS_REGION", "us-east-1"),
		SNSSenderID: getEnv("SNS_SENDER_ID", ""),

		OTPWindow:                time.Duration(getEnvInt("OTP_WINDOW_SECONDS", 300)) * time.Second,
		OTPLength:                getEnvInt("OTP_LENGTH", 6),
		PreventReissueIfVerified: getEnvBool("PREVENT_REISSUE_IF_VERIFIED", false),
		ExposeDevOTP:             getEnvBool("EXPOSE_DEV_OTP", appEnv != "production"),

		S3BucketName:         getEnv("S3_BUCKET_NAME", ""),
		JWTPrivateKeyPath:    getEnv("JWT_PRIVATE_KEY_PATH", "./private_key.pem"),
		JWTPublicKeyPath:     getEnv("JWT_PUBLIC_KEY_PATH", "./public_key.pem"),
		JWTExpiry:            getEnvDuration("JWT_EXPIRY", 12*time.Hour),
		OperatorUsername:     getEnv("OPERATOR_USERNAME", "admin"),
		OperatorPasswordHash: getEnv("OPERATOR_PASSWORD_HASH", ""),

		AllowedOrigins: strings.Split(getEnv("ALLOWED_ORIGINS", "*"), ","),
	}
}

// Validate rejects combinations the server must not start with.
func (c *Config) Validate() error {
	var errs []error
	switch c.StoreDriver {
	case StoreDynamo, StoreBolt:
	case StorePostgres:
		if c.DatabaseURL == "" {
			errs = append(errs, errors.New("DATABASE_URL is required when STORE_DRIVER=postgres"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown STORE_DRIVER %q", c.StoreDriver))
	}
	if c.OTPLength < 4 || c.OTPLength > 10 {
		errs = append(errs, fmt.Errorf("OTP_LENGTH must be between 4 and 10, got %d", c.OTPLength))
	}
	if c.OTPWindow <= 0 {
		errs = append(errs, errors.New("OTP_WINDOW_SECONDS must be positive"))
	}
	if c.ExposeDevOTP && c.IsProduction() {
		errs = append(errs, errors.New("EXPOSE_DEV_OTP must not be enabled when APP_ENV=production"))
	}
	return errors.Join(errs...)
}

func (c *Config) IsProduction() bool {
	return c.AppEnv == "production"
}

// HasOperatorLogin reports whether dashboard login can be offered.
func (c *Config) HasOperatorLogin() bool {
	return c.OperatorUsername != "" && c.OperatorPasswordHash != ""
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

package config

import "time"

// PortalConfig holds runtime configuration for the portal API service.
type PortalConfig struct {
	Environment    string
	Addr           string
	DatabaseURL    string
	MigrationsDir  string
	UseMemoryStore bool

	SessionSecret string

	S3Bucket       string
	S3Region       string
	S3BaseEndpoint string
	S3AccessKey    string
	S3SecretKey    string

	ResendAPIKey      string
	NotificationEmail string
	EmailFrom         string

	BundleFetchTimeout time.Duration

	RateLimitRedisAddr string
	RateLimitRedisPass string
	RateLimitRedisDB   int
}

// LoadPortalConfig constructs a PortalConfig from environment variables.
func LoadPortalConfig() PortalConfig {
	return PortalConfig{
		Environment:    GetString("APP_ENV", "development"),
		Addr:           GetString("API_ADDR", ":4000"),
		DatabaseURL:    GetString("DATABASE_URL", "postgres://portal:portal@db:5432/portal?sslmode=disable"),
		MigrationsDir:  GetString("DB_MIGRATIONS_DIR", "./db/migrations"),
		UseMemoryStore: GetBool("USE_MEMORY_STORE", false),

		SessionSecret: GetString("SESSION_SECRET", "supersecuresecret"),

		S3Bucket:       GetString("S3_BUCKET", "statements"),
		S3Region:       GetString("S3_REGION", "us-east-1"),
		S3BaseEndpoint: GetString("S3_BASE_ENDPOINT", ""),
		S3AccessKey:    GetString("S3_ACCESS_KEY", ""),
		S3SecretKey:    GetString("S3_SECRET_KEY", ""),

		ResendAPIKey:      GetString("RESEND_API_KEY", ""),
		NotificationEmail: GetString("NOTIFICATION_EMAIL", ""),
		EmailFrom:         GetString("EMAIL_FROM", "MyBookkeepers.com <noreply@mybookkeepers.com>"),

		BundleFetchTimeout: time.Duration(GetInt("BUNDLE_FETCH_TIMEOUT_SECONDS", 30)) * time.Second,

		RateLimitRedisAddr: GetString("RATE_LIMIT_REDIS_ADDR", ""),
		RateLimitRedisPass: GetString("RATE_LIMIT_REDIS_PASSWORD", ""),
		RateLimitRedisDB:   GetInt("RATE_LIMIT_REDIS_DB", 0),
	}
}

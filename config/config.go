package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Config holds all application settings. Every external collaborator
// (database, payment provider, SMTP relay, event archive) is configured
// here and validated at startup so a misconfigured deployment fails
// before it accepts traffic.
type Config struct {
	DatabaseURL  string
	JWTSecretKey string
	ServerPort   int
	PublicURL    string

	// Payment provider.
	ProviderAPIURL        string
	ProviderSecretKey     string
	ProviderWebhookSecret string
	PriceMonthlyID        string
	PriceAnnualID         string

	// SMTP relay for invitation mail.
	SMTPHost string
	SMTPPort int
	SMTPUser string
	SMTPPass string
	SMTPFrom string

	// Optional S3-compatible archive for raw webhook payloads.
	// All four must be set together or the archive is disabled.
	ArchiveBucket          string
	ArchiveEndpoint        string
	ArchiveAccessKeyID     string
	ArchiveSecretAccessKey string
}

// Load reads configuration from environment variables, optionally
// seeded from a .env file for local development.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		DatabaseURL:           os.Getenv("DATABASE_URL"),
		JWTSecretKey:          os.Getenv("JWT_SECRET_KEY"),
		PublicURL:             os.Getenv("PUBLIC_URL"),
		ProviderAPIURL:        getEnvOrDefault("PROVIDER_API_URL", "https://api.stripe.com"),
		ProviderSecretKey:     os.Getenv("PROVIDER_SECRET_KEY"),
		ProviderWebhookSecret: os.Getenv("PROVIDER_WEBHOOK_SECRET"),
		PriceMonthlyID:        os.Getenv("PROVIDER_PRICE_MONTHLY"),
		PriceAnnualID:         os.Getenv("PROVIDER_PRICE_ANNUAL"),
		SMTPHost:              os.Getenv("SMTP_HOST"),
		SMTPUser:              os.Getenv("SMTP_USER"),
		SMTPPass:              os.Getenv("SMTP_PASS"),
		SMTPFrom:              os.Getenv("SMTP_FROM"),

		ArchiveBucket:          os.Getenv("ARCHIVE_BUCKET"),
		ArchiveEndpoint:        os.Getenv("ARCHIVE_ENDPOINT"),
		ArchiveAccessKeyID:     os.Getenv("ARCHIVE_ACCESS_KEY_ID"),
		ArchiveSecretAccessKey: os.Getenv("ARCHIVE_SECRET_ACCESS_KEY"),
	}

	required := map[string]string{
		"DATABASE_URL":            cfg.DatabaseURL,
		"JWT_SECRET_KEY":          cfg.JWTSecretKey,
		"PUBLIC_URL":              cfg.PublicURL,
		"PROVIDER_SECRET_KEY":     cfg.ProviderSecretKey,
		"PROVIDER_WEBHOOK_SECRET": cfg.ProviderWebhookSecret,
		"PROVIDER_PRICE_MONTHLY":  cfg.PriceMonthlyID,
		"PROVIDER_PRICE_ANNUAL":   cfg.PriceAnnualID,
		"SMTP_HOST":               cfg.SMTPHost,
		"SMTP_FROM":               cfg.SMTPFrom,
	}
	for name, value := range required {
		if value == "" {
			return nil, fmt.Errorf("%s environment variable is not set", name)
		}
	}

	port, err := parsePort("SERVER_PORT", "8080")
	if err != nil {
		return nil, err
	}
	cfg.ServerPort = port

	smtpPort, err := parsePort("SMTP_PORT", "587")
	if err != nil {
		return nil, err
	}
	cfg.SMTPPort = smtpPort

	if cfg.ArchiveEnabled() {
		if cfg.ArchiveBucket == "" || cfg.ArchiveEndpoint == "" ||
			cfg.ArchiveAccessKeyID == "" || cfg.ArchiveSecretAccessKey == "" {
			return nil, fmt.Errorf("archive configuration is incomplete: ARCHIVE_BUCKET, ARCHIVE_ENDPOINT, ARCHIVE_ACCESS_KEY_ID and ARCHIVE_SECRET_ACCESS_KEY must all be set")
		}
	}

	return cfg, nil
}

// ArchiveEnabled reports whether any of the archive settings is present.
// Load rejects a partially configured archive.
func (c *Config) ArchiveEnabled() bool {
	return c.ArchiveBucket != "" || c.ArchiveEndpoint != "" ||
		c.ArchiveAccessKeyID != "" || c.ArchiveSecretAccessKey != ""
}

func parsePort(name, fallback string) (int, error) {
	portStr := os.Getenv(name)
	if portStr == "" {
		portStr = fallback
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return 0, fmt.Errorf("invalid %s environment variable: %w", name, err)
	}
	if port <= 0 || port > 65535 {
		return 0, fmt.Errorf("%s must be between 1 and 65535, got %d", name, port)
	}
	return port, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

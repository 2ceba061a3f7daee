package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Env      string
	Port     string
	SiteDir  string
	SiteURL  string
	RedisURL string
	// DatabaseURL is optional; the issuance audit trail is skipped without it.
	DatabaseURL string

	SupabaseURL        string
	SupabaseAnonKey    string
	SupabaseServiceKey string

	SendGridKey string
	MailFrom    string

	LandingWait    time.Duration
	LinkRatePerSec int
	AllowlistFile  string

	// OTLPEndpoint enables trace export when set.
	OTLPEndpoint string
	OTLPInsecure bool
}

// LoadEnv reads .env into the process environment outside production.
func LoadEnv() {
	if os.Getenv("APP_ENV") != "production" {
		if err := godotenv.Load(); err != nil {
			log.Println("No .env file found, continuing..")
		}
	}
	log.Println("environment: ", os.Getenv("APP_ENV"))
}

func Load() Config {
	return Config{
		Env:                readString("APP_ENV", "development"),
		Port:               readString("PORT", "8080"),
		SiteDir:            readString("SITE_DIR", "./build"),
		SiteURL:            readString("SITE_URL", "http://localhost:8080"),
		RedisURL:           readString("REDIS_URL", "redis://localhost:6379/0"),
		DatabaseURL:        os.Getenv("DATABASE_URL"),
		SupabaseURL:        os.Getenv("SUPABASE_URL"),
		SupabaseAnonKey:    os.Getenv("SUPABASE_ANON_KEY"),
		SupabaseServiceKey: os.Getenv("SUPABASE_SERVICE_ROLE_KEY"),
		SendGridKey:        os.Getenv("SENDGRID_API_KEY"),
		MailFrom:           readString("MAIL_FROM", "docs@localhost"),
		LandingWait:        readDuration("LANDING_WAIT", 2*time.Minute),
		LinkRatePerSec:     readInt("LINK_RATE_PER_SEC", 2),
		AllowlistFile:      os.Getenv("ALLOWLIST_FILE"),
		OTLPEndpoint:       os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		OTLPInsecure:       os.Getenv("OTEL_EXPORTER_OTLP_INSECURE") == "true",
	}
}

// Production is true for APP_ENV=production; cookies are marked Secure then.
func (c Config) Production() bool {
	return c.Env == "production"
}

func readString(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func readInt(key string, fallback int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return value
}

func readDuration(key string, fallback time.Duration) time.Duration {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	value, err := time.ParseDuration(raw)
	if err != nil || value <= 0 {
		return fallback
	}
	return value
}

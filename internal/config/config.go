package config

import (
	"fmt"
	"os"
	"strings"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"trust-accounting-backend/internal/money"
)

type Config struct {
	ServerAddr     string
	DatabaseURL    string
	AllowedOrigins []string
	ApproverIDs    []string
	KafkaBrokers   []string
	AuditTopic     string

	// ReconcileTolerance is the maximum bank-vs-account discrepancy, in
	// cents, still considered reconciled. The ledger-sum check is always
	// exact.
	ReconcileTolerance money.Cents
}

func Load() Config {
	cfg := Config{
		ServerAddr:     getenv("SERVER_ADDR", ":8080"),
		DatabaseURL:    getenv("DATABASE_URL", ""),
		AllowedOrigins: splitList(getenv("ALLOWED_ORIGINS", "http://localhost:3000")),
		ApproverIDs:    splitList(os.Getenv("TRUST_APPROVER_IDS")),
		KafkaBrokers:   splitList(os.Getenv("KAFKA_BROKERS")),
		AuditTopic:     getenv("AUDIT_TOPIC", "trust.audit"),
	}

	if cfg.DatabaseURL == "" {
		cfg.DatabaseURL = fmt.Sprintf(
			"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
			getenv("DB_HOST", "localhost"),
			getenv("DB_PORT", "5432"),
			getenv("DB_USER", "postgres"),
			getenv("DB_PASSWORD", "postgres"),
			getenv("DB_NAME", "trust_accounting"),
			getenv("DB_SSLMODE", "disable"),
		)
	}

	if tol := os.Getenv("RECONCILE_TOLERANCE"); tol != "" {
		if cents, err := money.Parse(tol); err == nil && cents >= 0 {
			cfg.ReconcileTolerance = cents
		}
	}

	return cfg
}

func InitDB(cfg Config) (*gorm.DB, error) {
	return gorm.Open(postgres.Open(cfg.DatabaseURL), &gorm.Config{
		TranslateError: true,
	})
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

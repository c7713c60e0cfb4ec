// Package config loads application configuration and watches the schema
// directory for live reloads.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration

	DatabaseURL string

	// JWKSURL is the OIDC issuer's key endpoint used to validate bearer
	// tokens.
	JWKSURL string

	AllowedOrigins []string

	// SchemaDir optionally overrides the embedded scope schemas with files
	// on disk: account_scope.json, project_scope.json, apikey_scope.json.
	// When set, the reloader watches it and recompiles on change.
	SchemaDir string
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	databasePasswordFile := os.Getenv("MYSQL_PASSWORD_FILE")
	if databasePasswordFile == "" {
		return nil, fmt.Errorf("MYSQL_PASSWORD_FILE is required")
	}
	databasePassword, err := os.ReadFile(databasePasswordFile)
	if err != nil || string(databasePassword) == "" {
		return nil, fmt.Errorf("failed to read %s: %w", databasePasswordFile, err)
	}

	jwksURL := os.Getenv("JWKS_URL")
	if jwksURL == "" {
		return nil, fmt.Errorf("JWKS_URL is required")
	}

	dbUser := getEnv("MYSQL_USER", "elevaite")
	dbHost := getEnv("MYSQL_HOST", "mysql:3306")
	dbName := getEnv("MYSQL_DATABASE", "elevaite")

	cfg := &Config{
		Port:         getEnv("PORT", "8080"),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,

		DatabaseURL: fmt.Sprintf("%s:%s@tcp(%s)/%s?parseTime=true",
			dbUser, strings.TrimSpace(string(databasePassword)), dbHost, dbName),

		JWKSURL: jwksURL,

		AllowedOrigins: parseAllowedOrigins(os.Getenv("ALLOWED_ORIGINS")),

		SchemaDir: os.Getenv("SCHEMA_DIR"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that required configuration is present.
func (cfg *Config) Validate() error {
	if cfg.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.JWKSURL == "" {
		return fmt.Errorf("JWKS_URL is required")
	}
	return nil
}

// getEnv retrieves an environment variable with a fallback default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// parseAllowedOrigins parses ALLOWED_ORIGINS env var or returns secure defaults
// Format: comma-separated list of origins (e.g., "https://api.elevaite.io,https://dash.elevaite.io").
func parseAllowedOrigins(originsEnv string) []string {
	if originsEnv != "" {
		origins := strings.Split(originsEnv, ",")
		for i := range origins {
			origins[i] = strings.TrimSpace(origins[i])
		}
		return origins
	}

	return []string{
		"https://api.elevaite.io",
		"https://dash.elevaite.io",
		"http://localhost:8080",
	}
}

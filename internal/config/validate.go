package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

var qrLevels = map[string]bool{"low": true, "medium": true, "high": true, "highest": true}

// Validate checks Config for production-critical problems.
// It collects all errors into a single joined error.
func (c *Config) Validate() error {
	var errs []string

	// Port ranges
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("SERVER_PORT must be 1–65535, got %d", c.Server.Port))
	}

	// Storage backend
	switch c.Storage.Driver {
	case DriverFile:
		if c.Storage.FilePath == "" {
			errs = append(errs, "STORAGE_FILE_PATH is required for the file driver")
		}
	case DriverRedis:
		if c.Redis.Port < 1 || c.Redis.Port > 65535 {
			errs = append(errs, fmt.Sprintf("REDIS_PORT must be 1–65535, got %d", c.Redis.Port))
		}
		if c.Redis.Key == "" {
			errs = append(errs, "REDIS_KEY is required for the redis driver")
		}
	case DriverPostgres:
		if c.DB.Password == "" {
			errs = append(errs, "DB_PASSWORD is required for the postgres driver")
		}
		if c.DB.Port < 1 || c.DB.Port > 65535 {
			errs = append(errs, fmt.Sprintf("DB_PORT must be 1–65535, got %d", c.DB.Port))
		}
	default:
		errs = append(errs, fmt.Sprintf("STORAGE_DRIVER must be file, redis or postgres, got %q", c.Storage.Driver))
	}

	// Ledger timing
	if c.Ledger.KeyTTL <= 0 {
		errs = append(errs, "LEDGER_KEY_TTL must be positive")
	}
	if c.Ledger.ResetInterval <= 0 {
		errs = append(errs, "LEDGER_RESET_INTERVAL must be positive")
	} else if c.Ledger.ResetInterval > 24*time.Hour {
		errs = append(errs, "LEDGER_RESET_INTERVAL must not exceed 24h")
	}
	if _, err := c.Ledger.Location(); err != nil {
		errs = append(errs, fmt.Sprintf("LEDGER_TIMEZONE is invalid: %v", err))
	}

	// QR rendering
	if c.QR.Size < 64 || c.QR.Size > 2048 {
		errs = append(errs, fmt.Sprintf("QR_SIZE must be 64–2048, got %d", c.QR.Size))
	}
	if !qrLevels[c.QR.Level] {
		errs = append(errs, fmt.Sprintf("QR_LEVEL must be low, medium, high or highest, got %q", c.QR.Level))
	}

	// Open CORS: warn only
	for _, o := range c.CORS.AllowedOrigins {
		if o == "*" {
			slog.Warn("CORS_ALLOWED_ORIGINS contains '*', any origin may call the API")
			break
		}
	}

	if len(errs) > 0 {
		return errors.New("config validation failed:\n  " + strings.Join(errs, "\n  "))
	}
	return nil
}

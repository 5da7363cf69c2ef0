// Package config loads application configuration from environment variables.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"
)

// Config holds the core runtime settings. Each field maps to one
// environment variable.
type Config struct {
	Env           string        // APP_ENV (dev, test, prod)
	Port          string        // APP_PORT
	DBUser        string        // DB_USER
	DBPass        string        // DB_PASS (may be empty)
	DBHost        string        // DB_HOST
	DBPort        string        // DB_PORT
	DBName        string        // DB_NAME
	JWTSecret     string        // JWT_SECRET, verifies staff bearer tokens
	SessionSecret string        // SESSION_SECRET, signs anonymous session cookies
	HoldTTL       time.Duration // HOLD_TTL, default 30m
	PDFCacheTTL   time.Duration // PDF_CACHE_TTL, default 24h
}

// Production reports whether the service runs in a production environment.
func (c Config) Production() bool {
	switch strings.ToLower(c.Env) {
	case "prod", "production":
		return true
	}
	return false
}

// Load reads Config. Every missing required variable is reported in one
// error.
func Load() (Config, error) {
	var l loader
	cfg := Config{
		Env:           l.must("APP_ENV"),
		Port:          l.must("APP_PORT"),
		DBUser:        l.must("DB_USER"),
		DBPass:        os.Getenv("DB_PASS"),
		DBHost:        l.must("DB_HOST"),
		DBPort:        l.must("DB_PORT"),
		DBName:        l.must("DB_NAME"),
		JWTSecret:     l.must("JWT_SECRET"),
		SessionSecret: l.must("SESSION_SECRET"),
		HoldTTL:       l.dur("HOLD_TTL", 30*time.Minute),
		PDFCacheTTL:   l.dur("PDF_CACHE_TTL", 24*time.Hour),
	}
	if err := l.err(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// loader collects problems instead of exiting on the first one.
type loader struct {
	missing []string
	invalid []string
}

func (l *loader) must(key string) string {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		l.missing = append(l.missing, key)
	}
	return v
}

func (l *loader) dur(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		l.invalid = append(l.invalid, fmt.Sprintf("%s=%q", key, v))
		return def
	}
	return d
}

func (l *loader) err() error {
	var parts []string
	if len(l.missing) > 0 {
		parts = append(parts, "missing required env vars: "+strings.Join(l.missing, ", "))
	}
	if len(l.invalid) > 0 {
		parts = append(parts, "invalid env vars: "+strings.Join(l.invalid, ", "))
	}
	if len(parts) == 0 {
		return nil
	}
	return fmt.Errorf("config: %s", strings.Join(parts, "; "))
}

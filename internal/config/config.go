// Package config loads process-wide configuration from the environment once
// at startup. Values are immutable for the lifetime of the run.
package config

import (
	"log"
	"os"
	"strconv"
	"strings"
)

type JWT struct {
	Secret            string
	Issuer            string
	Audience          string
	ExpiryMinutes     int
	RefreshExpiryDays int
}

type Mail struct {
	Host     string
	Port     string
	Username string
	Password string
	From     string
}

type Redis struct {
	Addr     string
	Password string
	DB       int
}

type Config struct {
	HTTPPort       string
	DatabaseURL    string
	JWT            JWT
	Mail           Mail
	Redis          Redis
	AllowedOrigins []string
}

// Load reads every setting from the environment. Missing required variables
// abort startup.
func Load() Config {
	return Config{
		HTTPPort:    getenv("HTTP_PORT", "8080"),
		DatabaseURL: must("DATABASE_URL"),
		JWT: JWT{
			Secret:            must("JWT_SECRET"),
			Issuer:            getenv("JWT_ISSUER", "keymart"),
			Audience:          getenv("JWT_AUDIENCE", "keymart-admin"),
			ExpiryMinutes:     mustInt("JWT_EXPIRY_MINUTES", 30),
			RefreshExpiryDays: mustInt("JWT_REFRESH_EXPIRY_DAYS", 7),
		},
		Mail: Mail{
			Host:     must("MAIL_HOST"),
			Port:     getenv("MAIL_PORT", "587"),
			Username: os.Getenv("MAIL_USERNAME"),
			Password: os.Getenv("MAIL_PASSWORD"),
			From:     must("MAIL_FROM"),
		},
		Redis: Redis{
			Addr:     getenv("REDIS_ADDR", "localhost:6379"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       mustInt("REDIS_DB", 0),
		},
		AllowedOrigins: splitOrigins(getenv("CORS_ALLOWED_ORIGINS", "*")),
	}
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func must(key string) string {
	v := os.Getenv(key)
	if v == "" {
		log.Fatalf("missing required env var: %s", key)
	}
	return v
}

func mustInt(key string, def int) int {
	s := os.Getenv(key)
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		log.Fatalf("invalid int for %s: %q", key, s)
	}
	return n
}

func splitOrigins(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"studydeck/pkg/logger"
)

type Config struct {
	Port              string
	DatabaseURL       string
	JWTSecret         string
	AdminPasswordHash string
	SaveInterval      time.Duration
	LogLevel          string
	AllowedOrigins    []string
}

// Load reads .env when present, then the process environment.
func Load() Config {
	if err := godotenv.Load(); err != nil {
		logger.Sugar.Info("No .env file found, using environment variables from OS")
	}

	cfg := Config{
		Port:              env("PORT", "8080"),
		DatabaseURL:       databaseURL(),
		JWTSecret:         env("JWT_SECRET", ""),
		AdminPasswordHash: env("ADMIN_PASSWORD_HASH", ""),
		SaveInterval:      10 * time.Second,
		LogLevel:          env("LOG_LEVEL", "info"),
		AllowedOrigins:    splitList(env("ALLOWED_ORIGINS", "*")),
	}
	if raw := env("SAVE_INTERVAL", ""); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil || d <= 0 {
			logger.Sugar.Warnf("Invalid SAVE_INTERVAL %q, using %s", raw, cfg.SaveInterval)
		} else {
			cfg.SaveInterval = d
		}
	}
	return cfg
}

func env(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

// databaseURL prefers DATABASE_URL and otherwise builds one from the
// user/password/host/port/dbname variables. Empty means no database.
func databaseURL() string {
	if url := env("DATABASE_URL", ""); url != "" {
		return url
	}
	host := env("host", "")
	if host == "" {
		return ""
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		env("user", ""), env("password", ""), host, env("port", "5432"), env("dbname", ""), env("DB_SSLMODE", "require"))
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

package config

import (
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	// Database
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string
	DBSSLMode  string

	// JWT issued by the identity provider; sub is the participant id
	JWTSecret string

	// Admin
	AdminToken string

	// Server
	Port        string
	CORSOrigins string

	// Matchmaking
	MatchSweepInterval time.Duration
	MatchBatchSize     int

	// Quota and moderation policy
	DailyNextLimit     int
	QuotaResetInterval time.Duration
	BanThreshold       int

	// Outbound relay
	RelayWebhookURL string
	RelayTimeout    time.Duration

	// Logging
	LogRetention time.Duration
}

func Load() *Config {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		slog.Warn("could not read .env file", "error", err)
	}

	return &Config{
		DBHost:     getEnv("DB_HOST", "localhost"),
		DBPort:     getEnv("DB_PORT", "5432"),
		DBUser:     getEnv("DB_USER", "postgres"),
		DBPassword: getEnv("DB_PASSWORD", ""),
		DBName:     getEnv("DB_NAME", "anonchat_db"),
		DBSSLMode:  getEnv("DB_SSLMODE", "disable"),

		JWTSecret: getEnv("JWT_SECRET", ""),

		AdminToken: getEnv("ADMIN_TOKEN", ""),

		Port:        getEnv("PORT", "8080"),
		CORSOrigins: getEnv("CORS_ORIGINS", "*"),

		MatchSweepInterval: parseDuration(getEnv("MATCH_SWEEP_INTERVAL", "2s"), 2*time.Second),
		MatchBatchSize:     parseInt(getEnv("MATCH_BATCH_SIZE", "50"), 50),

		DailyNextLimit:     parseInt(getEnv("DAILY_NEXT_LIMIT", "5"), 5),
		QuotaResetInterval: parseDuration(getEnv("QUOTA_RESET_INTERVAL", "24h"), 24*time.Hour),
		BanThreshold:       parseInt(getEnv("BAN_THRESHOLD", "3"), 3),

		RelayWebhookURL: getEnv("RELAY_WEBHOOK_URL", ""),
		RelayTimeout:    parseDuration(getEnv("RELAY_TIMEOUT", "5s"), 5*time.Second),

		LogRetention: parseDuration(getEnv("LOG_RETENTION", "720h"), 30*24*time.Hour),
	}
}

func (c *Config) DSN() string {
	return "host=" + c.DBHost +
		" user=" + c.DBUser +
		" password=" + c.DBPassword +
		" dbname=" + c.DBName +
		" port=" + c.DBPort +
		" sslmode=" + c.DBSSLMode +
		" TimeZone=UTC"
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

func parseInt(s string, fallback int) int {
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}

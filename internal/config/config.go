package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	Port          int
	DatabaseURL   string // empty selects the in-memory store
	RTMWindow     time.Duration
	RetentionDays int
	LogLevel      string
}

func Load() *Config {
	return &Config{
		Port:          envInt("PORT", 8080),
		DatabaseURL:   os.Getenv("DATABASE_URL"),
		RTMWindow:     time.Duration(envInt("RTM_WINDOW_SEC", 60)) * time.Second,
		RetentionDays: envInt("RETENTION_DAYS", 30),
		LogLevel:      envStr("LOG_LEVEL", "info"),
	}
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	APIBaseURL     string
	WSURL          string
	Token          string
	Username       string
	Password       string
	PollInterval   time.Duration
	RequestTimeout time.Duration
	ReconnectDelay time.Duration
	MaxReconnects  int
	SettleDelay    time.Duration

	// Simulator settings.
	SimPort         string
	JWTSecret       string
	SimOwner        string
	SimOpenToAnyone bool
	SimDuration     time.Duration
	SimPromptLimit  int
	SimUsers        string
}

func Load() *Config {
	godotenv.Load()

	return &Config{
		APIBaseURL:     getEnv("WORMINAL_API_URL", "http://localhost:8080"),
		WSURL:          getEnv("WORMINAL_WS_URL", "ws://localhost:8080/worminal/ws"),
		Token:          getEnv("WORMINAL_TOKEN", ""),
		Username:       getEnv("WORMINAL_USERNAME", ""),
		Password:       getEnv("WORMINAL_PASSWORD", ""),
		PollInterval:   getEnvDuration("WORMINAL_POLL_INTERVAL_MS", 10000),
		RequestTimeout: getEnvDuration("WORMINAL_REQUEST_TIMEOUT_MS", 10000),
		ReconnectDelay: getEnvDuration("WORMINAL_RECONNECT_DELAY_MS", 3000),
		MaxReconnects:  getEnvInt("WORMINAL_MAX_RECONNECTS", 5),
		SettleDelay:    getEnvDuration("WORMINAL_SETTLE_DELAY_MS", 500),

		SimPort:         getEnv("SIM_PORT", "8080"),
		JWTSecret:       getEnv("JWT_SECRET", "super-secret-key-change-me"),
		SimOwner:        getEnv("SIM_OWNER", ""),
		SimOpenToAnyone: getEnv("SIM_OPEN_TO_ANYONE", "") == "true",
		SimDuration:     getEnvDuration("SIM_SESSION_DURATION_MS", 600000),
		SimPromptLimit:  getEnvInt("SIM_PROMPT_LIMIT", 50),
		SimUsers:        getEnv("SIM_USERS", "alice:alice,bob:bob"),
	}
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvDuration(key string, fallbackMS int64) time.Duration {
	ms := fallbackMS
	if val := os.Getenv(key); val != "" {
		if n, err := strconv.ParseInt(val, 10, 64); err == nil && n > 0 {
			ms = n
		}
	}
	return time.Duration(ms) * time.Millisecond
}

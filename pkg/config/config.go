package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds environment-driven settings for the orchestration core.
type Config struct {
	Port string

	// Scheduler
	TickInterval time.Duration
	CycleHistory int // recent cycle records kept for the API

	// Worker pool
	TerminalsDir string // base directory for per-account terminal state
	StopTimeout  time.Duration

	// Terminal bridge
	BridgeAddr      string
	BridgeRateLimit float64 // requests per second per session
	BridgeBurst     int
	ConnectTimeout  time.Duration

	// Account configuration
	AccountsFile string

	// Database (legacy session registry + audit trail)
	DBPath string

	// Execution
	DryRun bool

	// Auth
	JWTSecret string
}

// Load reads environment variables (optionally via .env) into Config.
func Load() (*Config, error) {
	// Ignore error so the app still starts when .env is missing.
	_ = godotenv.Load()

	// Database path: prefer DB_PATH, then DATABASE_PATH for backward compatibility.
	dbPath := getEnv("DB_PATH", "")
	if dbPath == "" {
		dbPath = getEnv("DATABASE_PATH", "./data/terminals.db")
	}

	return &Config{
		Port:            getEnv("PORT", "8080"),
		TickInterval:    time.Duration(getEnvInt("TICK_INTERVAL_SECONDS", 60)) * time.Second,
		CycleHistory:    getEnvInt("CYCLE_HISTORY", 50),
		TerminalsDir:    getEnv("TERMINALS_DIR", "./data/terminals"),
		StopTimeout:     time.Duration(getEnvInt("STOP_TIMEOUT_SECONDS", 30)) * time.Second,
		BridgeAddr:      getEnv("BRIDGE_ADDR", "ws://localhost:9015/rpc"),
		BridgeRateLimit: getEnvFloat("BRIDGE_RATE_LIMIT", 10),
		BridgeBurst:     getEnvInt("BRIDGE_BURST", 20),
		ConnectTimeout:  time.Duration(getEnvInt("CONNECT_TIMEOUT_SECONDS", 15)) * time.Second,
		AccountsFile:    getEnv("ACCOUNTS_FILE", "./configs/accounts.yaml"),
		DBPath:          dbPath,
		DryRun:          getEnv("DRY_RUN", "false") == "true",
		JWTSecret:       getEnv("JWT_SECRET", "dev-secret"),
	}, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

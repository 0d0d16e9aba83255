package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"equity-backtest/internal/data"

	"github.com/joho/godotenv"
)

// Server holds process settings for the API server and CLI.
type Server struct {
	Port         string
	Env          string // "production" switches gin to release mode
	DBPath       string
	DataDir      string
	Workers      int
	LogLevel     string
	LogFile      string
	CacheTTL     time.Duration
	AllowOrigins []string
}

func DefaultServer() Server {
	return Server{
		Port:     "8080",
		Env:      "development",
		DBPath:   "results/runs.db",
		DataDir:  data.DefaultDataDir(),
		LogLevel: "info",
		CacheTTL: 10 * time.Minute,
	}
}

// LoadEnv loads settings from a .env file (if it exists) and environment
// variables. Priority: ENV > .env file > defaults.
func LoadEnv(envPath string) Server {
	cfg := DefaultServer()

	if envPath != "" {
		_ = godotenv.Load(envPath)
	} else {
		_ = godotenv.Load()
	}

	cfg.Port = getEnv("API_PORT", cfg.Port)
	cfg.Env = getEnv("API_ENV", cfg.Env)
	cfg.DBPath = getEnv("BT_DB_PATH", cfg.DBPath)
	cfg.DataDir = getEnv("BT_DATA_DIR", cfg.DataDir)
	cfg.LogLevel = getEnv("BT_LOG_LEVEL", cfg.LogLevel)
	cfg.LogFile = getEnv("BT_LOG_FILE", cfg.LogFile)

	if w := os.Getenv("BT_WORKERS"); w != "" {
		if n, err := strconv.Atoi(w); err == nil && n >= 0 {
			cfg.Workers = n
		}
	}
	if ttl := os.Getenv("BT_CACHE_TTL"); ttl != "" {
		if d, err := time.ParseDuration(ttl); err == nil {
			cfg.CacheTTL = d
		}
	}
	if origins := os.Getenv("BT_ALLOW_ORIGINS"); origins != "" {
		cfg.AllowOrigins = splitList(origins)
	}
	return cfg
}

// Production reports whether the server runs in release mode.
func (s Server) Production() bool { return s.Env == "production" }

// getEnv returns environment variable value or default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
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

package config

import (
	"log"
	"os"
	"sort"
	"time"

	"github.com/joho/godotenv"
)

// Config holds everything the dashboard reads from the environment.
type Config struct {
	// Brokerage API
	APIKeyID     string
	APISecretKey string
	BaseURL      string // trading endpoints (/v2/account, /v2/orders, ...)
	DataURL      string // market data endpoints (/v2/stocks/...)
	Backend      string // "rest" or "sdk"
	MaxAttempts  int
	HTTPTimeout  time.Duration

	// Dashboard
	PollInterval  time.Duration
	ServerAddr    string
	SessionFile   string
	LoginEmail    string
	LoginPassword string

	// Logging
	LogLevel      string
	LogFile       string
	MaxLogSizeMB  int64
	MaxLogBackups int

	// Notifications (optional)
	TelegramToken  string
	TelegramChatID string

	Version string
}

const (
	BackendREST = "rest"
	BackendSDK  = "sdk"
)

// secretVars are masked when the .env file is echoed.
var secretVars = map[string]bool{
	"APCA_API_KEY_ID":          true,
	"APCA_API_SECRET_KEY":      true,
	"DASHBOARD_LOGIN_PASSWORD": true,
	"TELEGRAM_BOT_TOKEN":       true,
}

// Load initializes the configuration.
// It tries to read a .env file, then falls back to the process environment.
// Missing API credentials only warn: each market data call reports them itself.
func Load() *Config {
	// Load .env variables into the process environment
	if err := godotenv.Load(); err != nil {
		log.Println("Warning: No .env file found, using system environment variables")
	}

	cfg := &Config{
		APIKeyID:     os.Getenv("APCA_API_KEY_ID"),
		APISecretKey: os.Getenv("APCA_API_SECRET_KEY"),
		BaseURL:      getEnv("APCA_API_BASE_URL", "https://paper-api.alpaca.markets"),
		Backend:      getEnv("BROKER_BACKEND", BackendREST),
		MaxAttempts:  getEnvAsInt("HTTP_MAX_ATTEMPTS", 3),
		HTTPTimeout:  time.Duration(getEnvAsInt("HTTP_TIMEOUT_SEC", 15)) * time.Second,

		PollInterval:  time.Duration(getEnvAsInt("POLL_INTERVAL_SEC", 10)) * time.Second,
		ServerAddr:    getEnv("SERVER_ADDR", "127.0.0.1:8080"),
		SessionFile:   getEnv("SESSION_FILE", "session_state.json"),
		LoginEmail:    getEnv("DASHBOARD_LOGIN_EMAIL", "admin@gmail.com"),
		LoginPassword: getEnv("DASHBOARD_LOGIN_PASSWORD", "123456"),

		LogLevel:      getEnv("LOG_LEVEL", "info"),
		LogFile:       getEnv("LOG_FILE", "dashboard.log"),
		MaxLogSizeMB:  int64(getEnvAsInt("MAX_LOG_SIZE_MB", 10)),
		MaxLogBackups: getEnvAsInt("MAX_LOG_BACKUPS", 3),

		TelegramToken:  os.Getenv("TELEGRAM_BOT_TOKEN"),
		TelegramChatID: os.Getenv("TELEGRAM_CHAT_ID"),
	}
	// Trading and market data share one host unless APCA_API_DATA_URL is set
	cfg.DataURL = getEnv("APCA_API_DATA_URL", cfg.BaseURL)

	if cfg.Backend != BackendREST && cfg.Backend != BackendSDK {
		log.Printf("Warning: Unknown BROKER_BACKEND %q, using %q", cfg.Backend, BackendREST)
		cfg.Backend = BackendREST
	}
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 10 * time.Second
	}
	if !cfg.HasCredentials() {
		log.Println("Warning: APCA_API_KEY_ID / APCA_API_SECRET_KEY not set, broker calls will fail")
	}

	echoDotEnv()
	return cfg
}

// HasCredentials reports whether both API credentials are set.
func (c *Config) HasCredentials() bool {
	return c.APIKeyID != "" && c.APISecretKey != ""
}

// TelegramEnabled reports whether order notifications can be sent.
func (c *Config) TelegramEnabled() bool {
	return c.TelegramToken != "" && c.TelegramChatID != ""
}

// echoDotEnv prints variables defined in the .env file, masking secrets.
func echoDotEnv() {
	envMap, err := godotenv.Read()
	if err != nil {
		return
	}
	keys := make([]string, 0, len(envMap))
	for k := range envMap {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	log.Println("--- .env File Variables ---")
	for _, key := range keys {
		log.Printf("%s=%s", key, maskValue(key, envMap[key]))
	}
	log.Println("---------------------------")
}

// maskValue shows only the last 4 chars of secret values.
func maskValue(key, val string) string {
	if !secretVars[key] {
		return val
	}
	if len(val) > 4 {
		return "***" + val[len(val)-4:]
	}
	return "***"
}

package config

import (
	"log"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

type Config struct {
	Port    string
	GinMode string

	// Auth keys. AuthKey grants admin access (token management, forced
	// alias selection); ShareKey selects from the normal queues.
	AuthKey  string
	ShareKey string

	// Pool persistence
	TokensFilePath  string
	ProxiesFilePath string

	// Upstream hosts
	UpstreamAPIHost string
	UpstreamWebHost string

	// HTTP Transport Connection Pool
	ProxyMaxIdleConns        int
	ProxyMaxIdleConnsPerHost int
	ProxyMaxConnsPerHost     int
	ProxyIdleConnTimeout     int // in seconds
	ConnectTimeoutSeconds    int

	// Request Tracking
	RequestTrackingWorkerPoolSize int
	RequestTrackingBufferSize     int
	RequestTrackingCapacity       int

	// Credential refresh sweep schedule (cron expression)
	RefreshSweepCron string

	// Server
	ServerShutdownTimeoutSeconds int

	// CORS
	CORSAllowedOrigins string

	// Logging
	LogLevel  string
	LogFormat string

	// Default instruction template; {{currentDateTime}} is substituted
	// with the corrected clock at request time.
	DefaultInstructions string

	// Settings file (TOML, reloadable)
	SettingsFilePath string
}

var AppConfig *Config

const defaultInstructions = "You are a helpful assistant.\n\nThe current date is {{currentDateTime}}"

func LoadConfig() {
	// Load .env file if it exists
	if err := godotenv.Load(".env"); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	AppConfig = &Config{
		Port:    getEnvOrDefault("PORT", "3000"),
		GinMode: getEnvOrDefault("GIN_MODE", "release"),

		AuthKey:  os.Getenv("AUTH_KEY"),
		ShareKey: os.Getenv("SHARE_KEY"),

		TokensFilePath:  getEnvOrDefault("TOKENS_FILE_PATH", "data/tokens.bin"),
		ProxiesFilePath: getEnvOrDefault("PROXIES_FILE_PATH", "data/proxies.bin"),

		UpstreamAPIHost: getEnvOrDefault("UPSTREAM_API_HOST", "api2.cursor.sh"),
		UpstreamWebHost: getEnvOrDefault("UPSTREAM_WEB_HOST", "cursor.com"),

		ProxyMaxIdleConns:        getEnvAsInt("PROXY_MAX_IDLE_CONNS", 100),
		ProxyMaxIdleConnsPerHost: getEnvAsInt("PROXY_MAX_IDLE_CONNS_PER_HOST", 50),
		ProxyMaxConnsPerHost:     getEnvAsInt("PROXY_MAX_CONNS_PER_HOST", 100),
		ProxyIdleConnTimeout:     getEnvAsInt("PROXY_IDLE_CONN_TIMEOUT_SECONDS", 90),
		ConnectTimeoutSeconds:    getEnvAsInt("CONNECT_TIMEOUT_SECONDS", 10),

		RequestTrackingWorkerPoolSize: getEnvAsInt("REQUEST_TRACKING_WORKER_POOL_SIZE", 4),
		RequestTrackingBufferSize:     getEnvAsInt("REQUEST_TRACKING_BUFFER_SIZE", 1000),
		RequestTrackingCapacity:       getEnvAsInt("REQUEST_TRACKING_CAPACITY", 2000),

		RefreshSweepCron: getEnvOrDefault("REFRESH_SWEEP_CRON", "@every 30m"),

		ServerShutdownTimeoutSeconds: getEnvAsInt("SERVER_SHUTDOWN_TIMEOUT_SECONDS", 30),

		CORSAllowedOrigins: getEnvOrDefault("CORS_ALLOWED_ORIGINS", "*"),

		LogLevel:  getEnvOrDefault("LOG_LEVEL", "info"),
		LogFormat: getEnvOrDefault("LOG_FORMAT", "text"),

		DefaultInstructions: getEnvOrDefault("DEFAULT_INSTRUCTIONS", defaultInstructions),

		SettingsFilePath: getEnvOrDefault("SETTINGS_FILE_PATH", "settings.toml"),
	}

	if AppConfig.AuthKey == "" {
		log.Println("Warning: AUTH_KEY is missing; admin routes are disabled. Set the AUTH_KEY environment variable.")
	}

	if err := LoadSettings(AppConfig.SettingsFilePath); err != nil {
		log.Printf("Warning: settings file not loaded, using defaults: %v", err)
	}
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		} else {
			log.Printf("Warning: Failed to parse environment variable %s='%s' as int, using default %d: %v", key, value, defaultValue, err)
		}
	}
	return defaultValue
}

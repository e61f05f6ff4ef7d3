package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds the application configuration
type Config struct {
	// Database
	DatabaseURL string

	// Server
	ServerPort string

	// Execution
	WorkerLimit     int
	TestCaseTimeout time.Duration
	RunTimeout      time.Duration

	// Analysis
	StabilityBandPct float64

	// Engine
	AnalysisEngine string // "openai" or "sim"
	OpenAIAPIKey   string
	OpenAIModel    string

	// Background workers
	RollupsEnabled  bool
	MonitorInterval time.Duration
}

// Load loads configuration from environment variables
func Load() *Config {
	return &Config{
		DatabaseURL:      getEnv("DATABASE_URL", "postgres://localhost/ai_testbench?sslmode=disable"),
		ServerPort:       getEnv("SERVER_PORT", "8080"),
		WorkerLimit:      getEnvInt("WORKER_LIMIT", 4),
		TestCaseTimeout:  getEnvDuration("TESTCASE_TIMEOUT", 2*time.Minute),
		RunTimeout:       getEnvDuration("RUN_TIMEOUT", 30*time.Minute),
		StabilityBandPct: getEnvFloat("STABILITY_BAND_PCT", 1.0),
		AnalysisEngine:   getEnv("ANALYSIS_ENGINE", "sim"),
		OpenAIAPIKey:     getEnv("OPENAI_API_KEY", ""),
		OpenAIModel:      getEnv("OPENAI_MODEL", ""),
		RollupsEnabled:   getEnvBool("ROLLUPS_ENABLED", true),
		MonitorInterval:  getEnvDuration("MONITOR_INTERVAL", time.Minute),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

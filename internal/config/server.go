package config

import (
	"fmt"
	"os"
	"time"
)

// ServerConfig is the HTTP serving layer's env-driven configuration.
type ServerConfig struct {
	Port           string
	RequestTimeout time.Duration
	CORSEnabled    bool
}

func LoadServerConfig() (*ServerConfig, error) {
	timeoutStr := getEnvOrDefault("REQUEST_TIMEOUT", "60s")
	timeout, err := time.ParseDuration(timeoutStr)
	if err != nil {
		return nil, fmt.Errorf("invalid REQUEST_TIMEOUT: %s", timeoutStr)
	}

	cfg := &ServerConfig{
		Port:           getEnvOrDefault("PORT", "8080"),
		RequestTimeout: timeout,
		CORSEnabled:    getEnvOrDefault("CORS_ENABLED", "true") == "true",
	}

	return cfg, nil
}

func getEnvOrDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

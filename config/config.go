package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Config holds all application configuration parameters.
type Config struct {
	DatabaseURL string
	ServerPort  int

	// QueuePath is where the offline operation queue file lives.
	QueuePath string

	// StartOnline is the initial connectivity belief. Kiosks that boot
	// before the venue uplink comes up start offline.
	StartOnline bool

	// Cloudflare R2, optional. Results archiving is disabled when the
	// account ID is empty.
	R2AccountID       string
	R2AccessKeyID     string
	R2SecretAccessKey string
	R2BucketName      string
	R2PublicBaseURL   string
}

// Load reads configuration from environment variables, optionally
// loading a .env file first for local development.
func Load() (*Config, error) {
	_ = godotenv.Load()

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		return nil, fmt.Errorf("DATABASE_URL environment variable is not set")
	}

	portStr := os.Getenv("SERVER_PORT")
	if portStr == "" {
		portStr = "8080"
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return nil, fmt.Errorf("invalid SERVER_PORT environment variable: %w", err)
	}
	if port <= 0 || port > 65535 {
		return nil, fmt.Errorf("SERVER_PORT must be between 1 and 65535, got %d", port)
	}

	queuePath := os.Getenv("OFFLINE_QUEUE_PATH")
	if queuePath == "" {
		queuePath = "data/offline-queue.json"
	}

	startOnline := true
	if raw := os.Getenv("START_ONLINE"); raw != "" {
		startOnline, err = strconv.ParseBool(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid START_ONLINE environment variable: %w", err)
		}
	}

	cfg := &Config{
		DatabaseURL:       dbURL,
		ServerPort:        port,
		QueuePath:         queuePath,
		StartOnline:       startOnline,
		R2AccountID:       os.Getenv("R2_ACCOUNT_ID"),
		R2AccessKeyID:     os.Getenv("R2_ACCESS_KEY_ID"),
		R2SecretAccessKey: os.Getenv("R2_SECRET_ACCESS_KEY"),
		R2BucketName:      os.Getenv("R2_BUCKET_NAME"),
		R2PublicBaseURL:   os.Getenv("R2_PUBLIC_BASE_URL"),
	}

	return cfg, nil
}

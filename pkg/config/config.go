package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	ServerPort      string
	FirebaseProject string
	StorageBucket   string
	Environment     string

	// ActivateTimeout bounds the initial message fetch when a conversation
	// becomes active; past it the caller gets an empty, usable view.
	ActivateTimeout time.Duration

	// TypingTTL is how long a typing indicator stays lit without a refresh.
	TypingTTL time.Duration
}

func Load() (*Config, error) {
	godotenv.Load()

	config := &Config{
		ServerPort:      getEnv("SERVER_PORT", "8080"),
		FirebaseProject: getEnv("FIREBASE_PROJECT_ID", ""),
		StorageBucket:   getEnv("STORAGE_BUCKET", ""),
		Environment:     getEnv("ENVIRONMENT", "development"),
		ActivateTimeout: getEnvAsMillis("ACTIVATE_TIMEOUT_MS", 5000),
		TypingTTL:       getEnvAsMillis("TYPING_TTL_MS", 2000),
	}

	return config, nil
}

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvAsMillis(key string, defaultValue int64) time.Duration {
	if value, exists := os.LookupEnv(key); exists {
		intValue, err := strconv.ParseInt(value, 10, 64)
		if err == nil {
			return time.Duration(intValue) * time.Millisecond
		}
	}
	return time.Duration(defaultValue) * time.Millisecond
}

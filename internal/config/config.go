// Package config provides environment-based configuration for the sync core
// and its tooling. A .env file in the working directory is honored when
// present; real environment variables win.
package config

import (
	"os"

	"github.com/joho/godotenv"
)

// Config holds the client-side settings.
type Config struct {
	// BackendURL is the base URL of the LumiScan backend.
	BackendURL string

	// StorePath is the on-device sqlite file backing the KV store and the
	// outbox.
	StorePath string

	// Env names the runtime environment (development, production).
	Env string
}

// FromEnv loads configuration from the environment, applying defaults.
func FromEnv() Config {
	_ = godotenv.Load()

	return Config{
		BackendURL: getenv("LUMISCAN_BACKEND_URL", "https://api.lumiscan.app"),
		StorePath:  getenv("LUMISCAN_STORE_PATH", ".lumiscan/store.db"),
		Env:        getenv("LUMISCAN_ENV", "development"),
	}
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

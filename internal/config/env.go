package config

import (
	"os"
	"time"

	"github.com/joho/godotenv"
)

// parseEnv overlays Config with values from the process environment,
// first merging an optional .env file in the working directory. A missing
// .env file is not an error; malformed durations are ignored.
func parseEnv(cfg *Config) {
	_ = godotenv.Load()

	if v := os.Getenv("AYLA_API_URL"); v != "" {
		cfg.APIBaseURL = v
	}
	if v := os.Getenv("AYLA_STORE_PATH"); v != "" {
		cfg.StorePath = v
	}
	if v := os.Getenv("AYLA_REVALIDATE_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.RevalidateInterval = d
		}
	}
}

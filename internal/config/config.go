package config

import "time"

// Config holds runtime settings for the Ayla CLI.
//
// Fields:
//   - APIBaseURL: base URL of the identity/activity backend.
//   - StorePath: SQLite file backing the local session store.
//   - RevalidateInterval: how often an authenticated session is probed for
//     liveness. Zero disables the probe, meaning a cached profile may be
//     served indefinitely while the backend is unreachable.
type Config struct {
	APIBaseURL         string
	StorePath          string
	RevalidateInterval time.Duration
}

// LoadDefaults populates c with sensible defaults.
func (c *Config) LoadDefaults() {
	c.APIBaseURL = "http://127.0.0.1:8080"
	c.StorePath = "ayla.db"
	c.RevalidateInterval = 0
}

// LoadConfig constructs a Config, applies defaults, then overlays values
// from the environment (including an optional .env file), a JSON file (if
// one is named via -c/-config), and command-line flags. Later sources take
// precedence over earlier ones.
func LoadConfig() *Config {
	cfg := &Config{}
	cfg.LoadDefaults()
	parseEnv(cfg)
	parseJson(cfg)
	parseFlags(cfg)
	return cfg
}

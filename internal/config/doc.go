// Package config loads runtime configuration for the Ayla CLI.
//
// Sources & precedence
//
//  1. Built-in defaults (see (*Config).LoadDefaults).
//  2. Environment variables, merged with an optional .env file:
//     AYLA_API_URL, AYLA_STORE_PATH, AYLA_REVALIDATE_INTERVAL.
//  3. Optional JSON file selected via -c or -config.
//  4. Command-line flags (-a, -s, -i), which override earlier values.
//
// # JSON schema
//
// The JSON loader uses timex.Duration for intervals, so values can be
// either strings like "15m" or integer nanoseconds:
//
//	{
//	  "api_base_url": "https://api.ayla.health",
//	  "store_path": "/home/ada/.ayla/session.db",
//	  "revalidate_interval": "15m"
//	}
//
// Primary API
//
//   - type Config                     — runtime settings
//   - func LoadConfig() *Config       — defaults, env, JSON, then flags
//   - func (*Config) LoadDefaults()   — sets sensible defaults
package config

package config

import (
	"encoding/json"
	"os"
	"time"

	"github.com/ayla-health/ayla-cli/internal/flagx"
	"github.com/ayla-health/ayla-cli/internal/timex"
)

// JsonConfig is a DTO used exclusively for JSON unmarshalling. It relies on
// timex.Duration so JSON can specify intervals either as strings like "15m"
// or as integer nanoseconds.
type JsonConfig struct {
	APIBaseURL         string         `json:"api_base_url"`
	StorePath          string         `json:"store_path"`
	RevalidateInterval timex.Duration `json:"revalidate_interval"`
}

// parseJson overlays Config with values loaded from the JSON file named by
// the -c/-config flags. Absent flags mean no JSON is loaded; read or parse
// errors panic, since a named-but-broken config file is not recoverable.
func parseJson(cfg *Config) {
	path := flagx.ConfigFilePath()
	if path == "" {
		return
	}

	var jc JsonConfig

	data, err := os.ReadFile(path)
	if err != nil {
		panic(err)
	}
	if err := json.Unmarshal(data, &jc); err != nil {
		panic(err)
	}

	if jc.APIBaseURL != "" {
		cfg.APIBaseURL = jc.APIBaseURL
	}
	if jc.StorePath != "" {
		cfg.StorePath = jc.StorePath
	}
	if jc.RevalidateInterval.Duration != 0 {
		cfg.RevalidateInterval = time.Duration(jc.RevalidateInterval.Duration)
	}
}

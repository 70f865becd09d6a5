package config

import (
	"flag"
	"os"
	"time"

	"github.com/ayla-health/ayla-cli/internal/flagx"
)

// parseFlags populates selected Config fields from command-line flags.
//
// Supported flags:
//
//	-a string   base URL of the backend API (default from Config)
//	-s string   path of the local session store (default from Config)
//	-i int      session revalidation interval in seconds, 0 disables
//
// The function filters os.Args to only the flags it knows about, using
// flagx.FilterArgs, to avoid interference with other components.
func parseFlags(cfg *Config) {
	args := flagx.FilterArgs(os.Args[1:], []string{"-a", "-s", "-i"})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&cfg.APIBaseURL, "a", cfg.APIBaseURL, "base URL of the backend API")
	fs.StringVar(&cfg.StorePath, "s", cfg.StorePath, "path of the local session store")
	revalidate := fs.Int("i", int(cfg.RevalidateInterval.Seconds()), "revalidation interval (seconds, 0 disables)")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	cfg.RevalidateInterval = time.Duration(*revalidate) * time.Second
}

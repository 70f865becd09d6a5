package main

import (
	"context"
	"log"

	"github.com/ayla-health/ayla-cli/internal/cli"
	"github.com/ayla-health/ayla-cli/internal/config"
)

func main() {
	cfg := config.LoadConfig()

	app, err := cli.NewApp(cfg)
	if err != nil {
		log.Fatalf("%v", err)
	}

	app.Run(context.Background())
}

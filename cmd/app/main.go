package main

import (
	"context"
	"flag"
	"log"
	"os"

	"github.com/jtorres-1/mirror-trade/internal/di"
	"github.com/jtorres-1/mirror-trade/pkg/config"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "config file path")
	noBackfill := flag.Bool("no-backfill", false, "skip the startup scan of recent messages")
	flag.Parse()

	cfg, err := config.LoadWithEnv(*configPath)
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}
	if *noBackfill {
		cfg.Backfill.Enabled = false
	}

	log.Printf("env=%s executor=%s state=%s", cfg.Environment, cfg.Executor.Type, cfg.State.Backend)

	app, err := di.InitializeApp(cfg)
	if err != nil {
		log.Fatalf("app initialization failed: %v", err)
	}

	if err := app.Run(context.Background()); err != nil {
		log.Printf("app error: %v", err)
		os.Exit(1)
	}
}

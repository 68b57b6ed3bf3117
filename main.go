package main

import (
	"flag"
	"log"

	"subzone/internal/config"
	"subzone/internal/provider"
	"subzone/internal/server"
)

var version = "dev"

func main() {
	configPath := flag.String("config", "config.yaml", "Path to configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, sync, err := server.NewLogger(cfg.Log)
	if err != nil {
		log.Fatalf("Failed to init logger: %v", err)
	}
	defer sync()

	logger.Info("=== subzone - subdomain DNS service ===", "version", version)
	logger.Info("DNS provider", "name", cfg.DNS.Provider, "available", provider.Registered())

	if err := server.Start(cfg, version, logger); err != nil {
		logger.Error(err, "server error")
		sync()
		log.Fatal(err)
	}
}

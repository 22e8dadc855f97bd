package main

import (
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/GriffinCanCode/docviewer/internal/infrastructure/config"
	"github.com/GriffinCanCode/docviewer/internal/infrastructure/server"
)

func main() {
	// Parse flags; they override the environment
	port := flag.String("port", "", "Server port (overrides PORT)")
	origin := flag.String("origin", "", "Origin the viewer is hosted at (overrides APP_ORIGIN)")
	proxies := flag.String("proxy-file", "", "YAML file listing CORS proxies (overrides RESOLVER_PROXY_FILE)")
	dev := flag.Bool("dev", false, "Development logging")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if *port != "" {
		cfg.Server.Port = *port
	}
	if *origin != "" {
		cfg.Server.Origin = *origin
	}
	if *proxies != "" {
		cfg.Resolver.ProxyFile = *proxies
	}
	if *dev {
		cfg.Logging.Development = true
		cfg.Logging.Level = "debug"
	}

	// Create server
	srv, err := server.NewServer(cfg)
	if err != nil {
		log.Fatalf("Failed to create server: %v", err)
	}

	// Handle graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	// Start server in goroutine
	errChan := make(chan error, 1)
	go func() {
		if err := srv.Run(); err != nil {
			errChan <- err
		}
	}()

	// Wait for shutdown signal or error
	select {
	case <-sigChan:
		if err := srv.Close(); err != nil {
			log.Printf("Error during shutdown: %v", err)
		}
	case err := <-errChan:
		log.Fatalf("Server error: %v", err)
	}
}

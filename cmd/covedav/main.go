package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/covedav/covedav/internal/logger"
	"github.com/covedav/covedav/pkg/config"
	"github.com/covedav/covedav/pkg/server"
)

func main() {
	configPath := flag.String("config", "", "Path to config file (default: "+config.GetDefaultConfigPath()+")")
	logLevel := flag.String("log-level", "", "Log level override (DEBUG, INFO, WARN, ERROR)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// CLI flag overrides the configured level
	if *logLevel != "" {
		cfg.Logging.Level = *logLevel
	}

	logger.SetLevel(cfg.Logging.Level)
	logger.SetFormat(cfg.Logging.Format)
	if err := logger.SetOutput(cfg.Logging.Output); err != nil {
		log.Fatalf("Failed to configure log output: %v", err)
	}

	fmt.Println("covedav - authenticated document server")
	logger.Info("Log level set to: %s", cfg.Logging.Level)
	logger.Info("Storage backend: %s", cfg.Storage.Type)

	backend, err := config.CreateBackend(&cfg.Storage)
	if err != nil {
		log.Fatalf("Failed to create storage backend: %v", err)
	}

	registry, err := config.CreateRegistry(cfg, backend)
	if err != nil {
		log.Fatalf("Failed to build principal registry: %v", err)
	}

	serverConfig := config.CreateServerConfig(cfg)

	logger.Info("Server configuration:")
	logger.Info("  Address: %s", serverConfig.Address)
	logger.Info("  Port: %d", serverConfig.Port)
	if serverConfig.Prefix != "" {
		logger.Info("  Prefix: %s", serverConfig.Prefix)
	}
	if serverConfig.TLSCertFile != "" {
		logger.Info("  TLS: enabled")
	}
	logger.Info("  Shutdown timeout: %v", serverConfig.ShutdownTimeout)

	srv := server.New(serverConfig, registry)

	// Create cancellable context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	serverDone := make(chan error, 1)
	go func() {
		serverDone <- srv.Serve(ctx)
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	logger.Info("Server is running on port %d. Press Ctrl+C to stop.", serverConfig.Port)

	select {
	case <-sigChan:
		logger.Info("Shutdown signal received, initiating graceful shutdown...")
		cancel()

		if err := <-serverDone; err != nil {
			logger.Error("Server shutdown error: %v", err)
			os.Exit(1)
		}

	case err := <-serverDone:
		if err != nil {
			logger.Error("Server error: %v", err)
			os.Exit(1)
		}
		logger.Info("Server stopped")
	}
}

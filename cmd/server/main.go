package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/pkg/profile"
	"github.com/sirupsen/logrus"

	"github.com/brandon/mailsync/internal/cache"
	"github.com/brandon/mailsync/internal/config"
	"github.com/brandon/mailsync/internal/contacts"
	"github.com/brandon/mailsync/internal/email"
	"github.com/brandon/mailsync/internal/mcp"
	"github.com/brandon/mailsync/internal/oauth"
	"github.com/brandon/mailsync/internal/secrets"
	"github.com/brandon/mailsync/internal/tools"
)

var (
	version     = "dev"
	showVersion = flag.Bool("version", false, "Show version information")
	configPath  = flag.String("config", "settings.yml", "Path to the settings file")
	profileMode = flag.String("profile", "", "Write a cpu or mem profile to the working directory")
)

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Printf("mailsync version %s\n", version)
		os.Exit(0)
	}

	switch *profileMode {
	case "cpu":
		defer profile.Start(profile.CPUProfile, profile.ProfilePath("."), profile.Quiet).Stop()
	case "mem":
		defer profile.Start(profile.MemProfile, profile.ProfilePath("."), profile.Quiet).Stop()
	}

	// Set up logging; stdout carries the protocol
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetOutput(os.Stderr)

	// A missing .env file is fine
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		logger.WithError(err).Warn("Failed to load .env file")
	}

	// Load configuration
	cfg, err := loadConfig(*configPath)
	if err != nil {
		logger.WithError(err).Fatal("Failed to load configuration")
	}

	// Set log level
	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	logger.WithField("accounts", len(cfg.Accounts)).Info("Starting mailsync")

	// Initialize cache
	emailCache, err := cache.NewCache(cfg.CachePath, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize cache")
	}
	defer emailCache.Close()

	secretStore, err := secrets.Open(cfg.SecretsDir)
	if err != nil {
		logger.WithError(err).Fatal("Failed to open secret store")
	}

	tokens, err := oauth.NewManager(cfg.OAuthProviders, nil, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to create OAuth token manager")
	}

	contactStore, err := contacts.NewStore(emailCache, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to create contacts store")
	}

	// Initialize email manager
	emailManager := email.NewManager(cfg, email.Dependencies{
		Cache:    emailCache,
		Contacts: contactStore,
		Tokens:   tokens,
		Secrets:  secretStore,
		Logger:   logger,
	})
	defer emailManager.Close()

	reload := func(ctx context.Context) error {
		next, err := loadConfig(*configPath)
		if err != nil {
			return err
		}
		tokens.SetProviders(next.OAuthProviders)
		emailManager.Reset(next)
		contactStore.Invalidate()
		return nil
	}

	registry := tools.NewRegistry(emailManager, contactStore, reload, logger)
	server := mcp.NewServer(registry, version, logger)

	// Set up signal handling for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	// Run server in a goroutine
	errChan := make(chan error, 1)
	go func() {
		errChan <- server.Run(ctx)
	}()

	// Wait for shutdown signal or the client closing stdin
	select {
	case sig := <-sigChan:
		logger.WithField("signal", sig).Info("Received shutdown signal")
	case err := <-errChan:
		if err != nil {
			logger.WithError(err).Error("Server error")
		}
	}
	cancel()

	logger.Info("Shutting down mailsync")
}

func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.LoadConfig(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

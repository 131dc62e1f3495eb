// Copyright 2026 The Cloister Authors
// SPDX-License-Identifier: Apache-2.0

// cloister-server is the data custody daemon. It loads the registered
// identity keys, opens the sealed dataset store, and serves the gate
// protocol on a Unix socket until signalled.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/cloister-systems/cloister/auth"
	"github.com/cloister-systems/cloister/datastore"
	"github.com/cloister-systems/cloister/engine"
	"github.com/cloister-systems/cloister/gate"
	"github.com/cloister-systems/cloister/identity"
	"github.com/cloister-systems/cloister/lib/clock"
	"github.com/cloister-systems/cloister/lib/config"
	"github.com/cloister-systems/cloister/lib/secret"
	"github.com/cloister-systems/cloister/lib/version"
	"github.com/cloister-systems/cloister/review"
	"github.com/cloister-systems/cloister/service"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		configPath  string
		showVersion bool
	)

	pflag.StringVar(&configPath, "config", "", "path to cloister.yaml (default: $CLOISTER_CONFIG)")
	pflag.BoolVar(&showVersion, "version", false, "print version information and exit")
	pflag.Parse()

	if showVersion {
		fmt.Printf("cloister-server %s\n", version.Info())
		return nil
	}

	var cfg *config.Config
	var err error
	if configPath != "" {
		cfg, err = config.LoadFile(configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if err := cfg.EnsurePaths(); err != nil {
		return err
	}

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	registry, err := identity.LoadDirectory(cfg.Keys.Directory)
	if err != nil {
		return fmt.Errorf("loading identity keys: %w", err)
	}
	logger.Info("identity keys loaded",
		"directory", cfg.Keys.Directory,
		"owners", registry.Count(identity.RoleOwner),
		"users", registry.Count(identity.RoleUser),
	)

	// The sealing identity unseals dataset frames when a release is
	// granted. It stays in locked memory for the life of the process.
	sealingIdentity, err := secret.ReadFromPath(cfg.Datastore.SealingIdentityFile)
	if err != nil {
		return fmt.Errorf("reading sealing identity: %w", err)
	}
	defer sealingIdentity.Close()

	clk := clock.Real()

	store, err := datastore.Open(datastore.Config{
		Path:              cfg.Datastore.Path,
		PoolSize:          cfg.Datastore.PoolSize,
		SealingRecipients: cfg.Datastore.SealingRecipients,
		Logger:            logger,
		Clock:             clk,
	})
	if err != nil {
		return fmt.Errorf("opening datastore: %w", err)
	}
	defer store.Close()

	authenticator := auth.NewAuthenticator(
		registry,
		auth.NewChallengeStore(clk, cfg.ChallengeTTL()),
		auth.NewSessionStore(clk, cfg.SessionTTL()),
	)
	g := gate.New(
		authenticator,
		store,
		review.NewCoordinator(clk, cfg.ReviewTimeout()),
		engine.NewEcho(store, sealingIdentity),
		logger,
	)

	server := service.NewSocketServer(cfg.Listen.SocketPath, logger)
	service.Register(server, g)

	serveDone := make(chan error, 1)
	go func() {
		serveDone <- server.Serve(ctx)
	}()

	logger.Info("cloister server running",
		"socket", cfg.Listen.SocketPath,
		"datastore", cfg.Datastore.Path,
		"challenge_ttl", cfg.ChallengeTTL(),
		"session_ttl", cfg.SessionTTL(),
		"review_timeout", cfg.ReviewTimeout(),
	)

	<-ctx.Done()
	logger.Info("shutting down")

	// Wait for the socket server to drain in-flight requests, including
	// release requests parked in review.
	if err := <-serveDone; err != nil {
		return fmt.Errorf("socket server: %w", err)
	}
	return nil
}

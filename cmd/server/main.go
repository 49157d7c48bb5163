// Vigil - Multi-User Web Change Monitor
// Copyright 2026 Vigil contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vigil-watch/vigil

// Command server runs the Vigil monitoring daemon: per-user query
// scheduling, the JSON API and the websocket dashboard push.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/vigil-watch/vigil/internal/api"
	"github.com/vigil-watch/vigil/internal/auth"
	"github.com/vigil-watch/vigil/internal/config"
	"github.com/vigil-watch/vigil/internal/events"
	"github.com/vigil-watch/vigil/internal/fetch"
	"github.com/vigil-watch/vigil/internal/logging"
	"github.com/vigil-watch/vigil/internal/match"
	"github.com/vigil-watch/vigil/internal/registry"
	"github.com/vigil-watch/vigil/internal/storage"
	"github.com/vigil-watch/vigil/internal/supervisor"
	"github.com/vigil-watch/vigil/internal/websocket"
)

func main() {
	configPath := flag.String("config", "", "path to config file (overrides search)")
	addUser := flag.String("add-user", "", "add a user to the users file and exit (reads password from VIGIL_NEW_PASSWORD)")
	flag.Parse()

	var (
		cfg *config.Config
		err error
	)
	if *configPath != "" {
		cfg, err = config.LoadFile(*configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		logging.Fatal().Err(err).Msg("configuration load failed")
	}

	logging.Init(logging.Config{
		Level:     cfg.Logging.Level,
		Format:    cfg.Logging.Format,
		Timestamp: true,
	})

	creds, err := auth.LoadCredentials(cfg.Storage.UsersFile)
	if err != nil {
		logging.Fatal().Err(err).Msg("credentials load failed")
	}

	if *addUser != "" {
		password := os.Getenv("VIGIL_NEW_PASSWORD")
		if password == "" {
			logging.Fatal().Msg("VIGIL_NEW_PASSWORD must be set for -add-user")
		}
		if err := creds.AddUser(*addUser, password); err != nil {
			logging.Fatal().Err(err).Str("user", *addUser).Msg("add user failed")
		}
		logging.Info().Str("user", *addUser).Msg("user added")
		return
	}

	store, err := storage.New(cfg.Storage.DataDir)
	if err != nil {
		logging.Fatal().Err(err).Msg("storage setup failed")
	}

	keywords := match.NewKeywords(cfg.Monitor.CaptchaKeywords)
	fetcher := fetch.New(fetch.Config{
		Timeout:       cfg.Fetch.Timeout,
		UserAgent:     cfg.Fetch.UserAgent,
		RatePerSecond: cfg.Fetch.RatePerSecond,
		Burst:         cfg.Fetch.Burst,
		DumpPages:     cfg.Monitor.DumpPages,
		DumpDir:       cfg.Monitor.DumpDir,
	})

	reg := registry.New(registry.Options{
		Credentials: creds,
		Issuer:      auth.NewTokenIssuer(cfg.Session.TokenSecret, cfg.Session.TokenTTL),
		Store:       store,
		Fetcher:     fetcher,
		Keywords:    keywords,
		MinInterval: cfg.Monitor.MinInterval,
		ScanWorkers: cfg.Monitor.ScanWorkers,
		MaxIdle:     cfg.Session.MaxIdle,
	})

	manager := config.NewManager(cfg, *configPath)
	manager.OnReload(func(fresh *config.Config) {
		keywords.Update(fresh.Monitor.CaptchaKeywords)
		fetcher.SetUserAgent(fresh.Fetch.UserAgent)
		fetcher.SetDumpPages(fresh.Monitor.DumpPages)
		reg.Reconfigure(fresh.Monitor.CaptchaKeywords)
		if err := creds.Reload(); err != nil {
			logging.Error().Err(err).Msg("credentials reload failed")
		}
	})

	bus := events.NewBus()
	defer bus.Close()
	hub := websocket.NewHub(bus)

	server := api.NewServer(reg, manager, bus, hub)

	tree := supervisor.NewTree(logging.NewSlogLogger(), supervisor.DefaultTreeConfig())
	tree.AddMessagingService(hub)
	tree.AddMessagingService(registry.NewJanitor(reg, cfg.Session.JanitorInterval))
	tree.AddAPIService(api.NewHTTPService(cfg.Server, server.Router(cfg.Server.CORSOrigins)))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logging.Info().
		Str("data_dir", cfg.Storage.DataDir).
		Int("port", cfg.Server.Port).
		Msg("vigil starting")

	err = tree.Serve(ctx)
	if err != nil && err != context.Canceled {
		logging.Error().Err(err).Msg("supervisor tree exited")
	}

	// Persist every live session before the process goes away.
	reg.SaveAll()
	if report, rerr := tree.UnstoppedServiceReport(); rerr == nil && len(report) > 0 {
		for _, svc := range report {
			logging.Warn().Str("service", svc.Name).Msg("service missed shutdown timeout")
		}
	}
	logging.Info().Msg("vigil stopped")
}

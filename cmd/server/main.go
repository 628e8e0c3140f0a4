// Package main is the entry point for the HTTP API and the ops bot.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"

	"case-market/internal/app"
	"case-market/internal/bot"
	"case-market/internal/config"
	"case-market/internal/handler"
	"case-market/internal/middleware"
	"case-market/internal/router"
	"case-market/internal/scheduler"
)

func main() {
	cfg, err := config.Load("config")
	if err != nil {
		app.SetupLogging("info")
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	app.SetupLogging(cfg.Log.Level)
	log.Info().Msg("Configuration loaded successfully")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := app.New(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialise application")
	}
	defer a.Close()

	if cfg.Auth.GatewaySecret == "" {
		log.Warn().Msg("Gateway secret not configured, every profile request will be rejected")
	}

	// The intervals belong to cmd/scheduler; here the jobs only run on demand
	// from the ops bot, sharing the same overlap guard.
	manual := a.Jobs()
	for i := range manual {
		manual[i].Timeout = manual[i].Interval
		manual[i].Interval = 0
	}
	jobs := scheduler.New(manual...)

	var opsBot *bot.Bot
	if cfg.Bot.Token != "" {
		opsBot, err = bot.New(&bot.Dependencies{
			Config:   cfg,
			Catalog:  a.Importer,
			Jobs:     jobs,
			Prices:   a.Market,
			Accounts: a.Accounts,
		})
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create ops bot")
		}
		jobs.OnFailure(opsBot.Notifier().JobFailed)
	} else {
		log.Info().Msg("Bot token not configured, ops bot disabled")
	}

	mux := router.New(router.Config{
		Handler:        handler.New(a.Store),
		CaseHandler:    handler.NewCaseHandler(a.Cases),
		GameHandler:    handler.NewGameHandler(a.Rewards),
		ProfileHandler: handler.NewProfileHandler(a.Accounts, a.Inventory, a.Withdrawals),
		Identity: middleware.NewIdentity(middleware.IdentityConfig{
			Secret:   cfg.Auth.GatewaySecret,
			Profiles: a.Accounts,
		}),
		AllowedOrigins: cfg.Server.AllowedOrigins,
	})

	srv := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      mux,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		log.Info().Str("addr", srv.Addr).Msg("HTTP server is starting...")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	if opsBot != nil {
		go opsBot.Start()
	}

	sig := <-sigChan
	log.Info().Str("signal", sig.String()).Msg("Received shutdown signal")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown failed")
	}
	if opsBot != nil {
		opsBot.Stop()
	}
	log.Info().Msg("Server stopped gracefully")
}

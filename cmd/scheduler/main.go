// Package main is the entry point for the background job runner.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"

	"case-market/internal/app"
	"case-market/internal/bot"
	"case-market/internal/config"
	"case-market/internal/scheduler"
)

func main() {
	cfg, err := config.Load("config")
	if err != nil {
		app.SetupLogging("info")
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	app.SetupLogging(cfg.Log.Level)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := app.New(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialise application")
	}
	defer a.Close()

	s := scheduler.New(a.Jobs()...)

	if cfg.Bot.Token != "" && len(cfg.Admin.IDs) > 0 {
		notifier, err := bot.NewOfflineNotifier(cfg.Bot.Token, cfg.Admin.IDs)
		if err != nil {
			log.Warn().Err(err).Msg("Job failure alerts disabled")
		} else {
			s.OnFailure(notifier.JobFailed)
		}
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	log.Info().Strs("jobs", s.Jobs()).Msg("Scheduler is starting...")
	s.Start(ctx)

	sig := <-sigChan
	log.Info().Str("signal", sig.String()).Msg("Received shutdown signal")

	s.Stop()
	log.Info().Msg("Scheduler stopped gracefully")
}

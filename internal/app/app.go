// Package app wires the dependency graph shared by the binaries.
package app

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"case-market/internal/cache"
	"case-market/internal/catalog"
	"case-market/internal/config"
	"case-market/internal/game/reward"
	"case-market/internal/market"
	"case-market/internal/pkg/db"
	"case-market/internal/repository"
	"case-market/internal/scheduler"
	"case-market/internal/service"
	"case-market/internal/steam"
)

// closableCache is a cache that owns a connection or a goroutine.
type closableCache interface {
	cache.Cache
	Close() error
}

// App holds the wired services of one process.
type App struct {
	Config *config.Config

	Store    *repository.Store
	Market   *market.Client
	Steam    *steam.Client
	Importer *catalog.Importer

	Accounts    *service.AccountService
	Cases       *service.CaseService
	Rewards     *service.RewardService
	Inventory   *service.InventoryService
	Withdrawals *service.WithdrawalService
	PriceSync   *service.PriceSyncService

	pool  *db.Pool
	cache closableCache
}

// SetupLogging configures the global zerolog logger.
func SetupLogging(level string) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
}

// New connects to the database, applies migrations and builds every service.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	pool, err := db.NewPool(ctx, &cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := db.Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to run database migrations: %w", err)
	}

	c, err := newCache(ctx, cfg.Redis)
	if err != nil {
		pool.Close()
		return nil, err
	}

	store := repository.NewStore(pool.Pool)
	marketClient := market.NewClient(cfg.Market, market.NewLimiter(cfg.Market.RateLimit, cfg.Market.Burst))
	steamClient := steam.NewClient(cfg.Steam, c)
	importer := catalog.NewImporter(store, cfg.Catalog)

	a := &App{
		Config:      cfg,
		Store:       store,
		Market:      marketClient,
		Steam:       steamClient,
		Importer:    importer,
		Accounts:    service.NewAccountService(store, steamClient, cfg.Account.Deposit(), cfg.Steam.MaxAge),
		Cases:       service.NewCaseService(store),
		Rewards:     service.NewRewardService(store, reward.NewCryptoRoller()),
		Inventory:   service.NewInventoryService(store),
		Withdrawals: service.NewWithdrawalService(store, marketClient, cfg.Withdrawal),
		PriceSync:   service.NewPriceSyncService(store.Items, marketClient, importer),
		pool:        pool,
		cache:       c,
	}
	return a, nil
}

func newCache(ctx context.Context, cfg config.RedisConfig) (closableCache, error) {
	if cfg.Addr == "" {
		log.Info().Msg("Redis not configured, using in-memory cache")
		return cache.NewMemoryCache(), nil
	}
	c, err := cache.NewRedisCache(ctx, cfg, "casemarket")
	if err != nil {
		return nil, err
	}
	log.Info().Str("addr", cfg.Addr).Msg("Redis cache connected")
	return c, nil
}

// Jobs returns the background jobs with their configured intervals.
func (a *App) Jobs() []scheduler.Job {
	return []scheduler.Job{
		{
			Name:     scheduler.JobPriceSync,
			Interval: a.Config.Scheduler.PriceSyncInterval,
			Run: func(ctx context.Context) error {
				_, err := a.PriceSync.SyncPrices(ctx)
				return err
			},
		},
		{
			Name:     scheduler.JobWithdrawalPoll,
			Interval: a.Config.Scheduler.WithdrawalPollInterval,
			Run:      a.Withdrawals.PollWithdrawals,
		},
	}
}

// Close releases the cache and the database pool.
func (a *App) Close() {
	if err := a.cache.Close(); err != nil {
		log.Warn().Err(err).Msg("Failed to close cache")
	}
	a.pool.Close()
}

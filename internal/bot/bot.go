// Package bot provides the Telegram ops bot for administrators.
package bot

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	tele "gopkg.in/telebot.v3"

	"case-market/internal/config"
)

// commandTimeout bounds a single command; imports download many images.
const commandTimeout = 5 * time.Minute

// Bot wraps the telebot instance with the ops commands.
type Bot struct {
	bot      *tele.Bot
	cfg      *config.Config
	commands *Commands
	notifier *Notifier
}

// Dependencies holds everything the commands need.
type Dependencies struct {
	Config   *config.Config
	Catalog  CatalogOps
	Jobs     JobRunner
	Prices   PriceLookup
	Accounts AccountOps
}

// New creates a new Bot instance with the given dependencies.
func New(deps *Dependencies) (*Bot, error) {
	if deps.Config.Bot.Token == "" {
		return nil, fmt.Errorf("bot token is required")
	}

	pref := tele.Settings{
		Token:  deps.Config.Bot.Token,
		Poller: &tele.LongPoller{Timeout: 10 * time.Second},
	}

	teleBot, err := tele.NewBot(pref)
	if err != nil {
		return nil, fmt.Errorf("failed to create bot: %w", err)
	}

	b := &Bot{
		bot:      teleBot,
		cfg:      deps.Config,
		commands: NewCommands(deps.Catalog, deps.Jobs, deps.Prices, deps.Accounts),
		notifier: NewNotifier(teleBot, deps.Config.Admin.IDs),
	}

	b.registerMiddleware()
	b.registerHandlers()

	return b, nil
}

func (b *Bot) registerMiddleware() {
	b.bot.Use(RecoveryMiddleware())
	b.bot.Use(LoggingMiddleware())
	b.bot.Use(AdminMiddleware(b.cfg))
}

func (b *Bot) registerHandlers() {
	b.bot.Handle("/start", b.wrap(b.commands.Help))
	b.bot.Handle("/help", b.wrap(b.commands.Help))
	b.bot.Handle("/import", b.wrap(b.commands.Import))
	b.bot.Handle("/recalc", b.wrap(b.commands.Recalc))
	b.bot.Handle("/syncprices", b.wrap(b.commands.SyncPrices))
	b.bot.Handle("/pollwithdrawals", b.wrap(b.commands.PollWithdrawals))
	b.bot.Handle("/price", b.wrap(b.commands.Price))
	b.bot.Handle("/deposit", b.wrap(b.commands.Deposit))
	b.bot.Handle("/block", b.wrap(b.commands.Block))
	b.bot.Handle("/unblock", b.wrap(b.commands.Unblock))
}

// wrap adapts a command to telebot: arguments in, reply out.
func (b *Bot) wrap(cmd func(ctx context.Context, args []string) string) tele.HandlerFunc {
	return func(c tele.Context) error {
		ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
		defer cancel()
		return c.Reply(cmd(ctx, c.Args()))
	}
}

// Notifier returns the admin notifier bound to this bot.
func (b *Bot) Notifier() *Notifier {
	return b.notifier
}

// Start starts polling. It blocks until Stop.
func (b *Bot) Start() {
	log.Info().Msg("Starting ops bot...")
	b.bot.Start()
}

// Stop stops the bot gracefully.
func (b *Bot) Stop() {
	log.Info().Msg("Stopping ops bot...")
	b.bot.Stop()
}

package bot

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"case-market/internal/catalog"
	"case-market/internal/market"
	"case-market/internal/repository"
	"case-market/internal/scheduler"
)

// CatalogOps imports and recalculates cases.
type CatalogOps interface {
	Import(ctx context.Context, slug, pageURL string) (*catalog.Result, error)
	Recalculate(ctx context.Context, slug string) (int, error)
}

// JobRunner triggers background jobs on demand.
type JobRunner interface {
	RunNow(ctx context.Context, name string) error
}

// PriceLookup quotes the marketplace.
type PriceLookup interface {
	LowestPrice(ctx context.Context, hashName string) market.Outcome[int64]
}

// AccountOps are the admin account actions.
type AccountOps interface {
	Deposit(ctx context.Context, steamID64 string, amount decimal.Decimal) (decimal.Decimal, error)
	SetWithdrawBlocked(ctx context.Context, steamID64 string, blocked bool) error
}

const maxListedErrors = 5

// Commands implements the ops commands independently of Telegram. Every
// method returns the reply text.
type Commands struct {
	catalog  CatalogOps
	jobs     JobRunner
	prices   PriceLookup
	accounts AccountOps
}

// NewCommands creates a new Commands instance.
func NewCommands(c CatalogOps, jobs JobRunner, prices PriceLookup, accounts AccountOps) *Commands {
	return &Commands{catalog: c, jobs: jobs, prices: prices, accounts: accounts}
}

// Help lists the commands.
func (c *Commands) Help(_ context.Context, _ []string) string {
	return strings.Join([]string{
		"Ops commands:",
		"/import <slug> <url> - import a catalog page into a case",
		"/recalc <slug> - recompute drop chances of a case",
		"/syncprices - refresh prices from the marketplace",
		"/pollwithdrawals - reconcile pending withdrawals",
		"/price <market hash name> - lowest marketplace listing",
		"/deposit <steam_id> [amount] - top up a balance",
		"/block <steam_id>, /unblock <steam_id> - toggle withdrawals",
	}, "\n")
}

// Import handles /import <slug> <url>.
func (c *Commands) Import(ctx context.Context, args []string) string {
	if len(args) != 2 {
		return "Usage: /import <slug> <url>"
	}
	slug, pageURL := args[0], args[1]
	if u, err := url.Parse(pageURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "❌ Invalid URL"
	}

	res, err := c.catalog.Import(ctx, slug, pageURL)
	switch {
	case errors.Is(err, repository.ErrCaseNotFound):
		return fmt.Sprintf("❌ Case %q not found", slug)
	case errors.Is(err, catalog.ErrNothingParsed):
		return "❌ No items found on the page"
	case err != nil:
		log.Error().Err(err).Str("slug", slug).Msg("Import command failed")
		return "❌ Import failed, see logs"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "✅ Imported %d items into %s", res.Imported, slug)
	if len(res.Errors) > 0 {
		fmt.Fprintf(&b, "\n⚠️ %d items failed:", len(res.Errors))
		for i, msg := range res.Errors {
			if i == maxListedErrors {
				fmt.Fprintf(&b, "\n… and %d more", len(res.Errors)-maxListedErrors)
				break
			}
			b.WriteString("\n- " + msg)
		}
	}
	return b.String()
}

// Recalc handles /recalc <slug>.
func (c *Commands) Recalc(ctx context.Context, args []string) string {
	if len(args) != 1 {
		return "Usage: /recalc <slug>"
	}
	n, err := c.catalog.Recalculate(ctx, args[0])
	switch {
	case errors.Is(err, repository.ErrCaseNotFound):
		return fmt.Sprintf("❌ Case %q not found", args[0])
	case err != nil:
		log.Error().Err(err).Str("slug", args[0]).Msg("Recalc command failed")
		return "❌ Recalculation failed, see logs"
	}
	return fmt.Sprintf("✅ Updated %d drop chances in %s", n, args[0])
}

// SyncPrices handles /syncprices.
func (c *Commands) SyncPrices(ctx context.Context, _ []string) string {
	return c.runJob(ctx, scheduler.JobPriceSync)
}

// PollWithdrawals handles /pollwithdrawals.
func (c *Commands) PollWithdrawals(ctx context.Context, _ []string) string {
	return c.runJob(ctx, scheduler.JobWithdrawalPoll)
}

func (c *Commands) runJob(ctx context.Context, name string) string {
	started := time.Now()
	err := c.jobs.RunNow(ctx, name)
	switch {
	case errors.Is(err, scheduler.ErrJobRunning):
		return fmt.Sprintf("⏳ %s is already running", name)
	case err != nil:
		return fmt.Sprintf("❌ %s failed, see logs", name)
	}
	return fmt.Sprintf("✅ %s finished in %s", name, time.Since(started).Round(time.Millisecond))
}

// Price handles /price <market hash name>.
func (c *Commands) Price(ctx context.Context, args []string) string {
	hashName := strings.TrimSpace(strings.Join(args, " "))
	if hashName == "" {
		return "Usage: /price <market hash name>"
	}

	out := c.prices.LowestPrice(ctx, hashName)
	switch {
	case errors.Is(out.Err, market.ErrRejected):
		return fmt.Sprintf("No listings for %s", hashName)
	case !out.OK():
		return "❌ Marketplace unavailable"
	}
	return fmt.Sprintf("%s: $%s", hashName, decimal.New(out.Value, -2).StringFixed(2))
}

// Deposit handles /deposit <steam_id> [amount].
func (c *Commands) Deposit(ctx context.Context, args []string) string {
	if len(args) < 1 || len(args) > 2 {
		return "Usage: /deposit <steam_id> [amount]"
	}

	amount := decimal.Zero
	if len(args) == 2 {
		var err error
		if amount, err = decimal.NewFromString(args[1]); err != nil || !amount.IsPositive() {
			return "❌ Amount must be a positive number"
		}
	}

	balance, err := c.accounts.Deposit(ctx, args[0], amount)
	switch {
	case errors.Is(err, repository.ErrProfileNotFound):
		return "❌ Profile not found"
	case err != nil:
		log.Error().Err(err).Str("steam_id", args[0]).Msg("Deposit command failed")
		return "❌ Deposit failed, see logs"
	}
	return fmt.Sprintf("✅ Balance of %s is now $%s", args[0], balance.StringFixed(2))
}

// Block handles /block <steam_id>.
func (c *Commands) Block(ctx context.Context, args []string) string {
	return c.setBlocked(ctx, args, true)
}

// Unblock handles /unblock <steam_id>.
func (c *Commands) Unblock(ctx context.Context, args []string) string {
	return c.setBlocked(ctx, args, false)
}

func (c *Commands) setBlocked(ctx context.Context, args []string, blocked bool) string {
	verb := "unblock"
	if blocked {
		verb = "block"
	}
	if len(args) != 1 {
		return fmt.Sprintf("Usage: /%s <steam_id>", verb)
	}

	err := c.accounts.SetWithdrawBlocked(ctx, args[0], blocked)
	switch {
	case errors.Is(err, repository.ErrProfileNotFound):
		return "❌ Profile not found"
	case err != nil:
		log.Error().Err(err).Str("steam_id", args[0]).Msg("Block command failed")
		return "❌ Update failed, see logs"
	}
	if blocked {
		return fmt.Sprintf("🚫 Withdrawals blocked for %s", args[0])
	}
	return fmt.Sprintf("✅ Withdrawals unblocked for %s", args[0])
}

// Package service provides business logic implementations.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"case-market/internal/model"
	"case-market/internal/repository"
	"case-market/internal/steam"
)

// PlayerLookup fetches identity-provider summaries.
type PlayerLookup interface {
	Player(ctx context.Context, steamID64 string) (*steam.Player, error)
}

// Overview is everything the profile page shows.
type Overview struct {
	Profile             *model.Profile         `json:"profile"`
	ItemsWithdrawn      int                    `json:"items_withdrawn"`
	FavoriteCase        *model.Case            `json:"favorite_case,omitempty"`
	BestDrop            *model.Item            `json:"best_drop,omitempty"`
	Inventory           []*model.InventoryItem `json:"inventory"`
	ActiveWithdrawalIDs []int64                `json:"active_withdrawal_ids"`
}

// AccountService handles profiles, identity sync and balance top-ups.
type AccountService struct {
	store   *repository.Store
	players PlayerLookup
	deposit decimal.Decimal
	maxAge  time.Duration
	now     func() time.Time
}

// NewAccountService creates a new AccountService instance.
func NewAccountService(
	store *repository.Store,
	players PlayerLookup,
	deposit decimal.Decimal,
	maxAge time.Duration,
) *AccountService {
	if maxAge <= 0 {
		maxAge = 12 * time.Hour
	}
	return &AccountService{
		store:   store,
		players: players,
		deposit: deposit,
		maxAge:  maxAge,
		now:     time.Now,
	}
}

// EnsureProfile ensures a profile exists for the Steam identity.
// Returns the profile and whether it was newly created.
func (s *AccountService) EnsureProfile(ctx context.Context, steamID64 string) (*model.Profile, bool, error) {
	if _, err := steam.SteamID64ToAccountID(steamID64); err != nil {
		return nil, false, fmt.Errorf("invalid steam id %q: %w", steamID64, err)
	}

	p, created, err := s.store.Profiles.GetOrCreate(ctx, steamID64, steamID64)
	if err != nil {
		return nil, false, fmt.Errorf("failed to ensure profile: %w", err)
	}
	if created {
		log.Info().Int64("profile_id", p.ID).Str("steam_id", steamID64).Msg("Profile created")
	}
	return p, created, nil
}

// GetProfile retrieves a profile by id.
func (s *AccountService) GetProfile(ctx context.Context, profileID int64) (*model.Profile, error) {
	return s.store.Profiles.GetByID(ctx, profileID)
}

// SyncProfile refreshes username and avatar from the identity provider.
// A failed lookup is logged and the profile is returned unchanged.
func (s *AccountService) SyncProfile(ctx context.Context, p *model.Profile) *model.Profile {
	player, err := s.players.Player(ctx, p.SteamID)
	if err != nil {
		log.Warn().Err(err).Int64("profile_id", p.ID).Msg("Steam profile sync failed")
		return p
	}

	if err := s.store.Profiles.UpdateSteam(ctx, p.ID, player.PersonaName, player.AvatarFull, s.now()); err != nil {
		log.Warn().Err(err).Int64("profile_id", p.ID).Msg("Failed to store steam profile")
		return p
	}

	fresh, err := s.store.Profiles.GetByID(ctx, p.ID)
	if err != nil {
		log.Warn().Err(err).Int64("profile_id", p.ID).Msg("Failed to reload profile")
		return p
	}
	return fresh
}

// MaybeRefresh syncs the profile when it was never synced or the last sync
// is older than the configured maximum age.
func (s *AccountService) MaybeRefresh(ctx context.Context, p *model.Profile) *model.Profile {
	if !needsRefresh(p.LastSteamSync, s.now(), s.maxAge) {
		return p
	}
	return s.SyncProfile(ctx, p)
}

func needsRefresh(lastSync *time.Time, now time.Time, maxAge time.Duration) bool {
	return lastSync == nil || now.Sub(*lastSync) >= maxAge
}

// UpdateTradeURL validates and stores a trade URL belonging to the profile.
func (s *AccountService) UpdateTradeURL(ctx context.Context, profileID int64, raw string) error {
	p, err := s.store.Profiles.GetByID(ctx, profileID)
	if err != nil {
		return err
	}

	tu, err := steam.ParseOwnedTradeURL(raw, p.SteamID)
	if err != nil {
		return err
	}
	return s.store.Profiles.SetTradeURL(ctx, profileID, tu.Raw)
}

// Deposit tops up the balance of the profile owning steamID64. A zero amount
// uses the configured default. Returns the new balance.
func (s *AccountService) Deposit(ctx context.Context, steamID64 string, amount decimal.Decimal) (decimal.Decimal, error) {
	if amount.IsNegative() {
		return decimal.Zero, ErrInvalidAmount
	}
	if amount.IsZero() {
		amount = s.deposit
	}

	p, err := s.store.Profiles.GetBySteamID(ctx, steamID64)
	if err != nil {
		return decimal.Zero, err
	}

	var balance decimal.Decimal
	err = s.store.InTx(ctx, func(r *repository.Repos) error {
		if _, err := r.Profiles.LockByID(ctx, p.ID); err != nil {
			return err
		}
		b, err := r.Profiles.AddBalance(ctx, p.ID, amount)
		if err != nil {
			return err
		}
		balance = b
		_, err = r.Logs.Append(ctx, repository.LogEntry{
			ProfileID:  p.ID,
			ActionType: model.ActionDeposit,
			Details:    fmt.Sprintf("deposit %s", amount.StringFixed(2)),
			Amount:     amount,
		})
		return err
	})
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to deposit: %w", err)
	}

	log.Info().Int64("profile_id", p.ID).Str("amount", amount.StringFixed(2)).Msg("Balance deposited")
	return balance, nil
}

// SetWithdrawBlocked toggles the withdrawal block of the profile owning steamID64.
func (s *AccountService) SetWithdrawBlocked(ctx context.Context, steamID64 string, blocked bool) error {
	p, err := s.store.Profiles.GetBySteamID(ctx, steamID64)
	if err != nil {
		return err
	}

	details := "withdrawals unblocked"
	if blocked {
		details = "withdrawals blocked"
	}
	return s.store.InTx(ctx, func(r *repository.Repos) error {
		if err := r.Profiles.SetWithdrawBlocked(ctx, p.ID, blocked); err != nil {
			return err
		}
		_, err := r.Logs.Append(ctx, repository.LogEntry{
			ProfileID:  p.ID,
			ActionType: model.ActionWithdrawBlock,
			Details:    details,
			Amount:     decimal.Zero,
		})
		return err
	})
}

// RecomputeProjections re-derives the cached favorite case and best drop.
func (s *AccountService) RecomputeProjections(ctx context.Context, profileID int64) error {
	_, _, err := s.store.Profiles.RecomputeProjections(ctx, profileID)
	return err
}

// Overview assembles the profile page. Missing projections of an active
// profile are re-derived first.
func (s *AccountService) Overview(ctx context.Context, profileID int64) (*Overview, error) {
	p, err := s.store.Profiles.GetByID(ctx, profileID)
	if err != nil {
		return nil, err
	}

	if (p.FavoriteCaseID == nil && p.CasesOpened > 0) || (p.BestDropItemID == nil && p.CasesOpened+p.UpgradesCount+p.ContractsCount > 0) {
		if err := s.RecomputeProjections(ctx, p.ID); err != nil {
			log.Warn().Err(err).Int64("profile_id", p.ID).Msg("Failed to recompute projections")
		} else if p, err = s.store.Profiles.GetByID(ctx, profileID); err != nil {
			return nil, err
		}
	}

	ov := &Overview{Profile: p, ActiveWithdrawalIDs: []int64{}}

	if ov.ItemsWithdrawn, err = s.store.Withdrawals.CountCompleted(ctx, p.ID); err != nil {
		return nil, err
	}
	if p.FavoriteCaseID != nil {
		ov.FavoriteCase, err = s.store.Cases.GetByID(ctx, *p.FavoriteCaseID)
		if err != nil && !errors.Is(err, repository.ErrCaseNotFound) {
			return nil, err
		}
	}
	if p.BestDropItemID != nil {
		ov.BestDrop, err = s.store.Items.GetByID(ctx, *p.BestDropItemID)
		if err != nil && !errors.Is(err, repository.ErrItemNotFound) {
			return nil, err
		}
	}

	if ov.Inventory, err = s.store.Inventory.ListByProfile(ctx, p.ID); err != nil {
		return nil, err
	}
	pending, err := s.store.Withdrawals.ListPendingByProfile(ctx, p.ID)
	if err != nil {
		return nil, err
	}
	for _, w := range pending {
		if w.InventoryItemID != nil {
			ov.ActiveWithdrawalIDs = append(ov.ActiveWithdrawalIDs, *w.InventoryItemID)
		}
	}
	return ov, nil
}

package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"case-market/internal/game/reward"
	"case-market/internal/model"
	"case-market/internal/repository"
)

// SpinResult is the outcome of one case opening.
type SpinResult struct {
	InventoryItem *model.InventoryItem `json:"inventory_item"`
	Item          *model.Item          `json:"item"`
	Balance       decimal.Decimal      `json:"balance"`
	Roll          float64              `json:"roll"`
}

// UpgradeResult is the outcome of one upgrade.
type UpgradeResult struct {
	Won           bool                 `json:"won"`
	Chance        float64              `json:"chance"`
	Roll          float64              `json:"roll"`
	Target        *model.Item          `json:"target"`
	InventoryItem *model.InventoryItem `json:"inventory_item,omitempty"`
	Cashback      decimal.Decimal      `json:"cashback"`
	Balance       decimal.Decimal      `json:"balance"`
	RemovedIDs    []int64              `json:"removed_ids"`
}

// ContractResult is the outcome of one contract.
type ContractResult struct {
	Multiplier    decimal.Decimal      `json:"multiplier"`
	Roll          float64              `json:"roll"`
	AttemptValue  decimal.Decimal      `json:"attempt_value"`
	ResultValue   decimal.Decimal      `json:"result_value"`
	Fallback      bool                 `json:"fallback"`
	Item          *model.Item          `json:"item"`
	InventoryItem *model.InventoryItem `json:"inventory_item"`
	Balance       decimal.Decimal      `json:"balance"`
	RemovedIDs    []int64              `json:"removed_ids"`
}

// RewardService runs case spins, upgrades and contracts. Each operation is
// one transaction holding the profile row lock, so balance, inventory and
// counters change together or not at all.
type RewardService struct {
	store  *repository.Store
	roller reward.Roller
}

// NewRewardService creates a new RewardService instance.
func NewRewardService(store *repository.Store, roller reward.Roller) *RewardService {
	return &RewardService{store: store, roller: roller}
}

// Spin opens the case identified by slug for the profile.
func (s *RewardService) Spin(ctx context.Context, profileID int64, slug string) (*SpinResult, error) {
	c, err := s.store.Cases.GetBySlug(ctx, slug, true)
	if err != nil {
		return nil, err
	}

	var res SpinResult
	err = s.store.InTx(ctx, func(r *repository.Repos) error {
		p, err := r.Profiles.LockByID(ctx, profileID)
		if err != nil {
			return err
		}
		if p.Balance.LessThan(c.Price) {
			return ErrInsufficientFunds
		}

		items, err := r.Cases.Items(ctx, c.ID, true)
		if err != nil {
			return err
		}
		drawn, point, err := reward.Draw(items, s.roller)
		if err != nil {
			if errors.Is(err, reward.ErrNoWeights) {
				return ErrCaseEmpty
			}
			return err
		}

		if res.Balance, err = r.Profiles.AddBalance(ctx, p.ID, c.Price.Neg()); err != nil {
			return err
		}
		if res.InventoryItem, err = r.Inventory.Create(ctx, p.ID, drawn.ItemID); err != nil {
			return err
		}
		res.InventoryItem.Item = drawn.Item
		res.Item = drawn.Item
		res.Roll = point

		if _, err := r.Logs.Append(ctx, repository.LogEntry{
			ProfileID:  p.ID,
			ActionType: model.ActionOpenCase,
			Details:    fmt.Sprintf("opened %s, won %s", c.Title, drawn.Item.DisplayName()),
			Amount:     c.Price.Neg(),
			ItemID:     &drawn.ItemID,
			Roll:       &point,
		}); err != nil {
			return err
		}

		if err := r.Profiles.Increment(ctx, p.ID, repository.CounterCasesOpened); err != nil {
			return err
		}
		opens, err := r.Profiles.RecordCaseOpen(ctx, p.ID, c.ID)
		if err != nil {
			return err
		}
		return updateProjections(ctx, r, p, &c.ID, opens, drawn.Item)
	})
	if err != nil {
		return nil, err
	}

	log.Info().
		Int64("profile_id", profileID).
		Str("case", slug).
		Int64("item_id", res.Item.ID).
		Float64("roll", res.Roll).
		Msg("Case opened")
	return &res, nil
}

// Upgrade stakes the listed inventory items plus extra balance for a chance
// at the target item.
func (s *RewardService) Upgrade(ctx context.Context, profileID int64, inventoryIDs []int64, extra decimal.Decimal, targetItemID int64) (*UpgradeResult, error) {
	if extra.IsNegative() {
		return nil, ErrInvalidAmount
	}
	ids := uniqueIDs(inventoryIDs)
	if len(ids) == 0 && !extra.IsPositive() {
		return nil, ErrEmptyStake
	}

	target, err := s.store.Items.GetByID(ctx, targetItemID)
	if err != nil {
		return nil, err
	}

	res := UpgradeResult{Target: target, Cashback: decimal.Zero, RemovedIDs: ids}
	err = s.store.InTx(ctx, func(r *repository.Repos) error {
		p, err := r.Profiles.LockByID(ctx, profileID)
		if err != nil {
			return err
		}
		if p.Balance.LessThan(extra) {
			return ErrInsufficientFunds
		}

		staked, err := lockStake(ctx, r, p.ID, ids)
		if err != nil {
			return err
		}
		attempt := sumPrices(staked).Add(extra)
		if !attempt.IsPositive() {
			return ErrEmptyStake
		}

		if res.Chance, err = reward.UpgradeChance(attempt, target.Price); err != nil {
			return err
		}
		res.Roll = s.roller.Uniform(0, reward.RollMax)
		res.Won = reward.UpgradeWins(res.Roll, res.Chance)

		if len(ids) > 0 {
			if _, err := r.Inventory.DeleteByIDs(ctx, ids); err != nil {
				return err
			}
		}

		delta := extra.Neg()
		entry := repository.LogEntry{ProfileID: p.ID, ActionType: model.ActionUpgrade, Roll: &res.Roll}
		if res.Won {
			if res.InventoryItem, err = r.Inventory.Create(ctx, p.ID, target.ID); err != nil {
				return err
			}
			res.InventoryItem.Item = target
			if err := r.Profiles.Increment(ctx, p.ID, repository.CounterUpgrades); err != nil {
				return err
			}
			if err := updateProjections(ctx, r, p, nil, 0, target); err != nil {
				return err
			}
			entry.ItemID = &target.ID
			entry.Details = fmt.Sprintf("upgrade won %s: staked %s at %.2f%%, rolled %.4f",
				target.DisplayName(), attempt.StringFixed(2), res.Chance, res.Roll)
		} else {
			res.Cashback = reward.Cashback(attempt)
			delta = delta.Add(res.Cashback)
			entry.Details = fmt.Sprintf("upgrade lost %s: staked %s at %.2f%%, rolled %.4f, cashback %s",
				target.DisplayName(), attempt.StringFixed(2), res.Chance, res.Roll, res.Cashback.StringFixed(2))
		}

		if res.Balance, err = r.Profiles.AddBalance(ctx, p.ID, delta); err != nil {
			return err
		}
		entry.Amount = delta
		_, err = r.Logs.Append(ctx, entry)
		return err
	})
	if err != nil {
		return nil, err
	}

	log.Info().
		Int64("profile_id", profileID).
		Int64("target_id", target.ID).
		Bool("won", res.Won).
		Float64("chance", res.Chance).
		Float64("roll", res.Roll).
		Msg("Upgrade resolved")
	return &res, nil
}

// Contract exchanges at least three inventory items plus extra balance for
// a random item priced by a rolled multiplier.
func (s *RewardService) Contract(ctx context.Context, profileID int64, inventoryIDs []int64, extra decimal.Decimal) (*ContractResult, error) {
	ids := uniqueIDs(inventoryIDs)
	if len(ids) < reward.MinContractItems {
		return nil, ErrInvalidContract
	}
	if extra.IsNegative() {
		return nil, ErrInvalidAmount
	}

	res := ContractResult{RemovedIDs: ids}
	err := s.store.InTx(ctx, func(r *repository.Repos) error {
		p, err := r.Profiles.LockByID(ctx, profileID)
		if err != nil {
			return err
		}
		if p.Balance.LessThan(extra) {
			return ErrInsufficientFunds
		}

		staked, err := lockStake(ctx, r, p.ID, ids)
		if err != nil {
			return err
		}
		itemsValue := sumPrices(staked)
		res.AttemptValue = itemsValue.Add(extra)

		res.Roll = s.roller.Uniform(0, reward.RollMax)
		res.Multiplier = reward.ContractMultiplier(res.Roll)
		low, high := reward.ContractBounds(res.AttemptValue, res.Multiplier)
		res.ResultValue = high

		candidates, err := r.Items.IDsInPriceRange(ctx, low, high)
		if err != nil {
			return err
		}
		var itemID int64
		if len(candidates) > 0 {
			if itemID, err = reward.PickUniform(candidates, s.roller); err != nil {
				return err
			}
		} else {
			// Can land outside [low, high] when the catalog has a gap there.
			if itemID, err = r.Items.ClosestToPrice(ctx, high); err != nil {
				return err
			}
			res.Fallback = true
		}
		if res.Item, err = r.Items.GetByID(ctx, itemID); err != nil {
			return err
		}

		if _, err := r.Inventory.DeleteByIDs(ctx, ids); err != nil {
			return err
		}
		if res.Balance, err = r.Profiles.AddBalance(ctx, p.ID, extra.Neg()); err != nil {
			return err
		}
		if res.InventoryItem, err = r.Inventory.Create(ctx, p.ID, itemID); err != nil {
			return err
		}
		res.InventoryItem.Item = res.Item

		if _, err := r.Logs.CreateContract(ctx, &model.Contract{
			ProfileID:       p.ID,
			TotalItemsValue: itemsValue,
			UsedBalance:     extra,
			Multiplier:      res.Multiplier,
			ResultItemID:    &itemID,
		}); err != nil {
			return err
		}
		if err := r.Profiles.Increment(ctx, p.ID, repository.CounterContracts); err != nil {
			return err
		}
		if err := updateProjections(ctx, r, p, nil, 0, res.Item); err != nil {
			return err
		}

		_, err = r.Logs.Append(ctx, repository.LogEntry{
			ProfileID:  p.ID,
			ActionType: model.ActionContract,
			Details: fmt.Sprintf("contract x%s on %s, won %s (%s)",
				res.Multiplier.String(), res.AttemptValue.StringFixed(2), res.Item.DisplayName(), res.Item.Price.StringFixed(2)),
			Amount: extra.Neg(),
			ItemID: &itemID,
			Roll:   &res.Roll,
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	ev := log.Info()
	if res.Fallback {
		ev = log.Warn()
	}
	ev.Int64("profile_id", profileID).
		Str("multiplier", res.Multiplier.String()).
		Int64("item_id", res.Item.ID).
		Bool("fallback", res.Fallback).
		Msg("Contract resolved")
	return &res, nil
}

// lockStake locks the staked rows. Every id must belong to the profile and
// none may be reserved for a withdrawal.
func lockStake(ctx context.Context, r *repository.Repos, profileID int64, ids []int64) ([]*model.InventoryItem, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	staked, err := r.Inventory.LockOwned(ctx, profileID, ids)
	if err != nil {
		return nil, err
	}
	if len(staked) != len(ids) {
		return nil, repository.ErrInventoryItemNotFound
	}
	for _, inv := range staked {
		if inv.Pending {
			return nil, ErrItemLocked
		}
	}
	return staked, nil
}

func sumPrices(items []*model.InventoryItem) decimal.Decimal {
	total := decimal.Zero
	for _, inv := range items {
		total = total.Add(inv.Item.Price)
	}
	return total
}

func uniqueIDs(ids []int64) []int64 {
	seen := make(map[int64]struct{}, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// updateProjections refreshes the cached favorite case and best drop after
// a win. caseID is nil for upgrades and contracts; opens is the profile's
// new open count for that case.
func updateProjections(ctx context.Context, r *repository.Repos, p *model.Profile, caseID *int64, opens int, won *model.Item) error {
	favorite, best := p.FavoriteCaseID, p.BestDropItemID
	changed := false

	if caseID != nil && (favorite == nil || *favorite != *caseID) {
		take := favorite == nil
		if !take {
			current, err := r.Profiles.CaseOpens(ctx, p.ID, *favorite)
			if err != nil {
				return err
			}
			take = opens > current
		}
		if take {
			favorite, changed = caseID, true
		}
	}

	if best == nil {
		best, changed = &won.ID, true
	} else if *best != won.ID {
		current, err := r.Items.GetByID(ctx, *best)
		switch {
		case errors.Is(err, repository.ErrItemNotFound):
			best, changed = &won.ID, true
		case err != nil:
			return err
		case won.Price.GreaterThan(current.Price):
			best, changed = &won.ID, true
		}
	}

	if !changed {
		return nil
	}
	return r.Profiles.SetProjections(ctx, p.ID, favorite, best)
}

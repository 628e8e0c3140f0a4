package service

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"case-market/internal/model"
	"case-market/internal/repository"
)

// SellResult is the outcome of selling inventory items back for balance.
type SellResult struct {
	RemovedIDs []int64         `json:"removed_ids"`
	Amount     decimal.Decimal `json:"amount"`
	Balance    decimal.Decimal `json:"balance"`
}

// InventoryService handles owned items.
type InventoryService struct {
	store *repository.Store
}

// NewInventoryService creates a new InventoryService instance.
func NewInventoryService(store *repository.Store) *InventoryService {
	return &InventoryService{store: store}
}

// List returns the profile's inventory, newest first.
func (s *InventoryService) List(ctx context.Context, profileID int64) ([]*model.InventoryItem, error) {
	return s.store.Inventory.ListByProfile(ctx, profileID)
}

// Sell credits the catalog price of every selected, unlocked item owned by
// the profile and removes them. Ids that are missing, foreign or reserved for
// a withdrawal are left alone. When nothing is sellable the error tells
// reserved items apart from missing ones.
func (s *InventoryService) Sell(ctx context.Context, profileID int64, inventoryIDs []int64) (*SellResult, error) {
	ids := uniqueIDs(inventoryIDs)
	if len(ids) == 0 {
		return nil, repository.ErrInventoryItemNotFound
	}

	res := SellResult{RemovedIDs: []int64{}, Amount: decimal.Zero}
	err := s.store.InTx(ctx, func(r *repository.Repos) error {
		p, err := r.Profiles.LockByID(ctx, profileID)
		if err != nil {
			return err
		}

		owned, err := r.Inventory.LockOwned(ctx, p.ID, ids)
		if err != nil {
			return err
		}

		locked := false
		for _, inv := range owned {
			if inv.Pending {
				locked = true
				continue
			}
			res.RemovedIDs = append(res.RemovedIDs, inv.ID)
			res.Amount = res.Amount.Add(inv.Item.Price)
		}
		if len(res.RemovedIDs) == 0 {
			if locked {
				return ErrItemLocked
			}
			return repository.ErrInventoryItemNotFound
		}

		if _, err := r.Inventory.DeleteByIDs(ctx, res.RemovedIDs); err != nil {
			return err
		}
		if res.Balance, err = r.Profiles.AddBalance(ctx, p.ID, res.Amount); err != nil {
			return err
		}
		_, err = r.Logs.Append(ctx, repository.LogEntry{
			ProfileID:  p.ID,
			ActionType: model.ActionSell,
			Details:    fmt.Sprintf("sold %d item(s) for %s", len(res.RemovedIDs), res.Amount.StringFixed(2)),
			Amount:     res.Amount,
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	log.Info().
		Int64("profile_id", profileID).
		Int("items", len(res.RemovedIDs)).
		Str("amount", res.Amount.StringFixed(2)).
		Msg("Items sold")
	return &res, nil
}

package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"case-market/internal/game/reward"
	"case-market/internal/model"
	"case-market/internal/repository"
)

// ============================================================================
// Spin
// ============================================================================

func TestRewardService_SpinExactBalance(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	p := seedProfile(t, store, testSteamID, "10.00")
	c := seedCase(t, store, "chroma", "10.00")
	it := seedItem(t, store, "AK-47", "Redline", "5.00")
	link(t, store, c, it, 1.0)

	svc := NewRewardService(store, newScriptedRoller(0.5))
	res, err := svc.Spin(ctx, p.ID, "chroma")
	require.NoError(t, err)

	assert.True(t, res.Balance.Equal(dec("0")), "balance %s", res.Balance)
	assert.Equal(t, it.ID, res.Item.ID)
	assert.Equal(t, 0.5, res.Roll)
	assert.Len(t, inventoryIDs(t, store, p.ID), 1)

	logs, err := store.Logs.ListByProfile(ctx, p.ID, 10)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, model.ActionOpenCase, logs[0].ActionType)
	assert.True(t, logs[0].Amount.Equal(dec("-10")))
	require.NotNil(t, logs[0].Roll)
	assert.Equal(t, 0.5, *logs[0].Roll)

	after, err := store.Profiles.GetByID(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, after.CasesOpened)
	require.NotNil(t, after.FavoriteCaseID)
	assert.Equal(t, c.ID, *after.FavoriteCaseID)
	require.NotNil(t, after.BestDropItemID)
	assert.Equal(t, it.ID, *after.BestDropItemID)
}

func TestRewardService_SpinInsufficientFunds(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	p := seedProfile(t, store, testSteamID, "9.99")
	c := seedCase(t, store, "chroma", "10.00")
	link(t, store, c, seedItem(t, store, "AK-47", "Redline", "5.00"), 1.0)

	svc := NewRewardService(store, reward.NewCryptoRoller())
	_, err := svc.Spin(ctx, p.ID, "chroma")
	assert.ErrorIs(t, err, ErrInsufficientFunds)

	assert.True(t, balanceOf(t, store, p.ID).Equal(dec("9.99")))
	assert.Empty(t, inventoryIDs(t, store, p.ID))
	logs, err := store.Logs.ListByProfile(ctx, p.ID, 10)
	require.NoError(t, err)
	assert.Empty(t, logs)
}

func TestRewardService_SpinNeverDropsExcludedItems(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	p := seedProfile(t, store, testSteamID, "100.00")
	c := seedCase(t, store, "chroma", "1.00")
	common := seedItem(t, store, "P250", "Sand Dune", "0.10")
	excluded := seedItem(t, store, "AWP", "Dragon Lore", "5000.00")
	link(t, store, c, common, 0.01)
	link(t, store, c, excluded, 1.0)
	require.NoError(t, store.Cases.SetNeverDrop(ctx, c.ID, excluded.ID, true))

	svc := NewRewardService(store, reward.NewCryptoRoller())
	for i := 0; i < 25; i++ {
		res, err := svc.Spin(ctx, p.ID, "chroma")
		require.NoError(t, err)
		require.Equal(t, common.ID, res.Item.ID)
	}
}

func TestRewardService_SpinEmptyCase(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	p := seedProfile(t, store, testSteamID, "50.00")
	seedCase(t, store, "empty", "10.00")

	svc := NewRewardService(store, reward.NewCryptoRoller())
	_, err := svc.Spin(ctx, p.ID, "empty")
	assert.ErrorIs(t, err, ErrCaseEmpty)
	assert.True(t, balanceOf(t, store, p.ID).Equal(dec("50")))

	_, err = svc.Spin(ctx, p.ID, "missing")
	assert.ErrorIs(t, err, repository.ErrCaseNotFound)
}

// ============================================================================
// Upgrade
// ============================================================================

func TestRewardService_UpgradeWin(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	p := seedProfile(t, store, testSteamID, "0")
	stake := grant(t, store, p, seedItem(t, store, "P250", "Sand Dune", "10.00"))
	target := seedItem(t, store, "AWP", "Asiimov", "100.00")

	svc := NewRewardService(store, newScriptedRoller(5))
	res, err := svc.Upgrade(ctx, p.ID, []int64{stake.ID}, dec("0"), target.ID)
	require.NoError(t, err)

	assert.True(t, res.Won)
	assert.InDelta(t, 10.0, res.Chance, 1e-9)
	require.NotNil(t, res.InventoryItem)
	assert.Equal(t, target.ID, res.InventoryItem.ItemID)
	assert.Equal(t, []int64{res.InventoryItem.ID}, inventoryIDs(t, store, p.ID))

	after, err := store.Profiles.GetByID(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, after.UpgradesCount)
	require.NotNil(t, after.BestDropItemID)
	assert.Equal(t, target.ID, *after.BestDropItemID)

	logs, err := store.Logs.ListByProfile(ctx, p.ID, 10)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, model.ActionUpgrade, logs[0].ActionType)
	require.NotNil(t, logs[0].ItemID)
	assert.Equal(t, target.ID, *logs[0].ItemID)
}

func TestRewardService_UpgradeLossPaysCashback(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	p := seedProfile(t, store, testSteamID, "20.00")
	stake := grant(t, store, p, seedItem(t, store, "P250", "Sand Dune", "10.00"))
	target := seedItem(t, store, "AWP", "Asiimov", "100.00")

	svc := NewRewardService(store, newScriptedRoller(50))
	res, err := svc.Upgrade(ctx, p.ID, []int64{stake.ID}, dec("5.00"), target.ID)
	require.NoError(t, err)

	assert.False(t, res.Won)
	assert.InDelta(t, 15.0, res.Chance, 1e-9)
	assert.True(t, res.Cashback.Equal(dec("0.30")), "cashback %s", res.Cashback)
	// 20 - 5 + 0.30
	assert.True(t, res.Balance.Equal(dec("15.30")), "balance %s", res.Balance)
	assert.Empty(t, inventoryIDs(t, store, p.ID))

	after, err := store.Profiles.GetByID(ctx, p.ID)
	require.NoError(t, err)
	assert.Zero(t, after.UpgradesCount)
}

func TestRewardService_UpgradeChanceIsCapped(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	p := seedProfile(t, store, testSteamID, "0")
	stake := grant(t, store, p, seedItem(t, store, "AWP", "Dragon Lore", "200.00"))
	target := seedItem(t, store, "AK-47", "Redline", "100.00")

	svc := NewRewardService(store, newScriptedRoller(80))
	res, err := svc.Upgrade(ctx, p.ID, []int64{stake.ID}, dec("0"), target.ID)
	require.NoError(t, err)
	assert.Equal(t, reward.UpgradeCap, res.Chance)
	assert.False(t, res.Won, "a roll above the cap loses even when over-staked")
}

func TestRewardService_UpgradeRejectsInvalidStakes(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	p := seedProfile(t, store, testSteamID, "10.00")
	other := seedProfile(t, store, "76561197960278074", "0")
	item := seedItem(t, store, "P250", "Sand Dune", "10.00")
	target := seedItem(t, store, "AWP", "Asiimov", "100.00")

	reserved := grant(t, store, p, item)
	require.NoError(t, store.Inventory.Reserve(ctx, reserved.ID, reserved.CreatedAt))
	foreign := grant(t, store, other, item)

	svc := NewRewardService(store, reward.NewCryptoRoller())

	_, err := svc.Upgrade(ctx, p.ID, []int64{reserved.ID}, dec("0"), target.ID)
	assert.ErrorIs(t, err, ErrItemLocked)

	_, err = svc.Upgrade(ctx, p.ID, []int64{foreign.ID}, dec("0"), target.ID)
	assert.ErrorIs(t, err, repository.ErrInventoryItemNotFound)

	_, err = svc.Upgrade(ctx, p.ID, nil, dec("0"), target.ID)
	assert.ErrorIs(t, err, ErrEmptyStake)

	_, err = svc.Upgrade(ctx, p.ID, nil, dec("-1"), target.ID)
	assert.ErrorIs(t, err, ErrInvalidAmount)

	_, err = svc.Upgrade(ctx, p.ID, nil, dec("10.01"), target.ID)
	assert.ErrorIs(t, err, ErrInsufficientFunds)

	assert.True(t, balanceOf(t, store, p.ID).Equal(dec("10")))
	assert.Equal(t, []int64{reserved.ID}, inventoryIDs(t, store, p.ID))
	assert.Equal(t, []int64{foreign.ID}, inventoryIDs(t, store, other.ID))
}

// ============================================================================
// Contract
// ============================================================================

func TestRewardService_ContractNeedsThreeItems(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	p := seedProfile(t, store, testSteamID, "10.00")
	item := seedItem(t, store, "P250", "Sand Dune", "10.00")
	a, b := grant(t, store, p, item), grant(t, store, p, item)

	svc := NewRewardService(store, reward.NewCryptoRoller())
	_, err := svc.Contract(ctx, p.ID, []int64{a.ID, b.ID, a.ID}, dec("0"))
	assert.ErrorIs(t, err, ErrInvalidContract, "duplicate ids do not count twice")

	assert.Len(t, inventoryIDs(t, store, p.ID), 2)
	assert.True(t, balanceOf(t, store, p.ID).Equal(dec("10")))
}

func TestRewardService_ContractPicksWithinBounds(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	p := seedProfile(t, store, testSteamID, "0")
	item := seedItem(t, store, "P250", "Sand Dune", "10.00")
	ids := []int64{grant(t, store, p, item).ID, grant(t, store, p, item).ID, grant(t, store, p, item).ID}
	inRange := seedItem(t, store, "M4A1-S", "Hyper Beast", "40.00")
	seedItem(t, store, "AWP", "Dragon Lore", "5000.00")

	// 60 -> x2, window [15, 60]
	svc := NewRewardService(store, newScriptedRoller(60))
	res, err := svc.Contract(ctx, p.ID, ids, dec("0"))
	require.NoError(t, err)

	assert.True(t, res.Multiplier.Equal(dec("2")))
	assert.True(t, res.AttemptValue.Equal(dec("30")))
	assert.True(t, res.ResultValue.Equal(dec("60")))
	assert.False(t, res.Fallback)
	assert.Equal(t, inRange.ID, res.Item.ID)
	assert.Equal(t, []int64{res.InventoryItem.ID}, inventoryIDs(t, store, p.ID))

	after, err := store.Profiles.GetByID(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, after.ContractsCount)

	logs, err := store.Logs.ListByProfile(ctx, p.ID, 10)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, model.ActionContract, logs[0].ActionType)
	require.NotNil(t, logs[0].Roll)
	assert.Equal(t, 60.0, *logs[0].Roll)
}

func TestRewardService_ContractFallsBackToClosestPrice(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	p := seedProfile(t, store, testSteamID, "0")
	item := seedItem(t, store, "P250", "Sand Dune", "10.00")
	ids := []int64{grant(t, store, p, item).ID, grant(t, store, p, item).ID, grant(t, store, p, item).ID}
	seedItem(t, store, "M4A1-S", "Hyper Beast", "40.00")

	// 10 -> x0.5, window [15, 15] holds nothing; 10.00 is closest to 15.
	svc := NewRewardService(store, newScriptedRoller(10))
	res, err := svc.Contract(ctx, p.ID, ids, dec("0"))
	require.NoError(t, err)

	assert.True(t, res.Fallback)
	assert.Equal(t, item.ID, res.Item.ID)
}

package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"case-market/internal/model"
	"case-market/internal/repository"
)

func TestClampPage(t *testing.T) {
	tests := []struct {
		offset, limit         int
		wantOffset, wantLimit int
	}{
		{0, 0, 0, DefaultTargetLimit},
		{-5, 10, 0, 10},
		{20, -3, 20, 1},
		{0, 1, 0, 1},
		{0, 200, 0, 200},
		{0, 201, 0, MaxTargetLimit},
		{7, 5000, 7, MaxTargetLimit},
	}
	for _, tt := range tests {
		offset, limit := ClampPage(tt.offset, tt.limit)
		assert.Equal(t, tt.wantOffset, offset, "offset for (%d,%d)", tt.offset, tt.limit)
		assert.Equal(t, tt.wantLimit, limit, "limit for (%d,%d)", tt.offset, tt.limit)
	}
}

func TestCaseService_ListGrouped(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	later, err := store.Cases.UpsertSection(ctx, "Premium", 2)
	require.NoError(t, err)
	first, err := store.Cases.UpsertSection(ctx, "Starter", 1)
	require.NoError(t, err)
	_, err = store.Cases.UpsertSection(ctx, "Empty", 0)
	require.NoError(t, err)

	mk := func(slug string, section *model.CaseSection) *model.Case {
		c := &model.Case{Title: slug, Slug: slug, Price: dec("1.00"), Active: true}
		if section != nil {
			c.SectionID = &section.ID
		}
		created, err := store.Cases.Create(ctx, c)
		require.NoError(t, err)
		return created
	}
	premium := mk("premium", later)
	starter := mk("starter", first)
	loose := mk("loose", nil)
	_, err = store.Cases.Create(ctx, &model.Case{Title: "hidden", Slug: "hidden", Price: dec("1.00"), Active: false})
	require.NoError(t, err)

	svc := NewCaseService(store)
	groups, err := svc.ListGrouped(ctx)
	require.NoError(t, err)
	require.Len(t, groups, 3, "empty sections are dropped")

	assert.Equal(t, "Starter", groups[0].Section.Name)
	assert.Equal(t, starter.ID, groups[0].Cases[0].ID)
	assert.Equal(t, "Premium", groups[1].Section.Name)
	assert.Equal(t, premium.ID, groups[1].Cases[0].ID)
	assert.Nil(t, groups[2].Section)
	require.Len(t, groups[2].Cases, 1)
	assert.Equal(t, loose.ID, groups[2].Cases[0].ID)
}

func TestCaseService_Detail(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	c := seedCase(t, store, "chroma", "2.50")
	link(t, store, c, seedItem(t, store, "AK-47", "Redline", "12.50"), 0.1)
	link(t, store, c, seedItem(t, store, "P250", "Sand Dune", "0.03"), 1)

	svc := NewCaseService(store)

	d, err := svc.Detail(ctx, "chroma", nil)
	require.NoError(t, err)
	assert.Len(t, d.Items, 2)
	assert.Equal(t, 2, d.Case.ItemCount)
	assert.Nil(t, d.NeedAmount)

	poor := seedProfile(t, store, testSteamID, "1.00")
	d, err = svc.Detail(ctx, "chroma", poor)
	require.NoError(t, err)
	require.NotNil(t, d.NeedAmount)
	assert.True(t, d.NeedAmount.Equal(dec("1.50")), "need %s", d.NeedAmount)

	rich := seedProfile(t, store, "76561197960278074", "2.50")
	d, err = svc.Detail(ctx, "chroma", rich)
	require.NoError(t, err)
	assert.Nil(t, d.NeedAmount)

	_, err = svc.Detail(ctx, "missing", nil)
	assert.ErrorIs(t, err, repository.ErrCaseNotFound)
}

func TestCaseService_UpgradeTargets(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	cheap := seedItem(t, store, "P250", "Sand Dune", "0.03")
	mid := seedItem(t, store, "AK-47", "Redline", "12.50")
	top := seedItem(t, store, "AWP", "Asiimov", "40.00")

	svc := NewCaseService(store)
	items, err := svc.UpgradeTargets(ctx, 0, 0)
	require.NoError(t, err)
	require.Len(t, items, 3)
	assert.Equal(t, []int64{top.ID, mid.ID, cheap.ID}, []int64{items[0].ID, items[1].ID, items[2].ID})

	items, err = svc.UpgradeTargets(ctx, 1, 1)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, mid.ID, items[0].ID)
}

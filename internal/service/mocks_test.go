package service

import (
	"context"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"

	"case-market/internal/market"
	"case-market/internal/model"
	"case-market/internal/steam"
)

// MockMarketplace is a testify mock of Marketplace.
type MockMarketplace struct {
	mock.Mock
}

func (m *MockMarketplace) BuyFor(ctx context.Context, r market.BuyRequest) market.Outcome[market.BuyResult] {
	args := m.Called(ctx, r)
	return args.Get(0).(market.Outcome[market.BuyResult])
}

func (m *MockMarketplace) BuyInfo(ctx context.Context, customID string) market.Outcome[market.BuyInfo] {
	args := m.Called(ctx, customID)
	return args.Get(0).(market.Outcome[market.BuyInfo])
}

func (m *MockMarketplace) BatchBuyInfo(ctx context.Context, customIDs []string) market.Outcome[map[string]market.BuyInfo] {
	args := m.Called(ctx, customIDs)
	return args.Get(0).(market.Outcome[map[string]market.BuyInfo])
}

// MockPriceSource is a testify mock of PriceSource.
type MockPriceSource struct {
	mock.Mock
}

func (m *MockPriceSource) Prices(ctx context.Context) market.Outcome[map[string]decimal.Decimal] {
	args := m.Called(ctx)
	return args.Get(0).(market.Outcome[map[string]decimal.Decimal])
}

// MockRecalculator is a testify mock of Recalculator.
type MockRecalculator struct {
	mock.Mock
}

func (m *MockRecalculator) RecalculateAll(ctx context.Context) (int, error) {
	args := m.Called(ctx)
	return args.Int(0), args.Error(1)
}

// MockItemPrices is a testify mock of ItemPrices.
type MockItemPrices struct {
	mock.Mock
}

func (m *MockItemPrices) ListWithHashName(ctx context.Context) ([]*model.Item, error) {
	args := m.Called(ctx)
	items, _ := args.Get(0).([]*model.Item)
	return items, args.Error(1)
}

func (m *MockItemPrices) UpdatePrice(ctx context.Context, id int64, price decimal.Decimal) error {
	return m.Called(ctx, id, price).Error(0)
}

func (m *MockItemPrices) UpdatePriceAndHashName(ctx context.Context, id int64, price decimal.Decimal, hashName string) error {
	return m.Called(ctx, id, price, hashName).Error(0)
}

// MockPlayerLookup is a testify mock of PlayerLookup.
type MockPlayerLookup struct {
	mock.Mock
}

func (m *MockPlayerLookup) Player(ctx context.Context, steamID64 string) (*steam.Player, error) {
	args := m.Called(ctx, steamID64)
	p, _ := args.Get(0).(*steam.Player)
	return p, args.Error(1)
}

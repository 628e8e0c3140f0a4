package handler

import (
	"context"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"

	"case-market/internal/model"
	"case-market/internal/repository"
	"case-market/internal/service"
)

type mockCases struct{ mock.Mock }

func (m *mockCases) ListGrouped(ctx context.Context) ([]service.SectionCases, error) {
	args := m.Called(ctx)
	v, _ := args.Get(0).([]service.SectionCases)
	return v, args.Error(1)
}

func (m *mockCases) Search(ctx context.Context, f repository.CaseFilter) ([]*model.Case, error) {
	args := m.Called(ctx, f)
	v, _ := args.Get(0).([]*model.Case)
	return v, args.Error(1)
}

func (m *mockCases) Detail(ctx context.Context, slug string, viewer *model.Profile) (*service.CaseDetail, error) {
	args := m.Called(ctx, slug, viewer)
	v, _ := args.Get(0).(*service.CaseDetail)
	return v, args.Error(1)
}

func (m *mockCases) UpgradeTargets(ctx context.Context, offset, limit int) ([]*model.Item, error) {
	args := m.Called(ctx, offset, limit)
	v, _ := args.Get(0).([]*model.Item)
	return v, args.Error(1)
}

type mockRewards struct{ mock.Mock }

func (m *mockRewards) Spin(ctx context.Context, profileID int64, slug string) (*service.SpinResult, error) {
	args := m.Called(ctx, profileID, slug)
	v, _ := args.Get(0).(*service.SpinResult)
	return v, args.Error(1)
}

func (m *mockRewards) Upgrade(ctx context.Context, profileID int64, ids []int64, extra decimal.Decimal, target int64) (*service.UpgradeResult, error) {
	args := m.Called(ctx, profileID, ids, extra, target)
	v, _ := args.Get(0).(*service.UpgradeResult)
	return v, args.Error(1)
}

func (m *mockRewards) Contract(ctx context.Context, profileID int64, ids []int64, extra decimal.Decimal) (*service.ContractResult, error) {
	args := m.Called(ctx, profileID, ids, extra)
	v, _ := args.Get(0).(*service.ContractResult)
	return v, args.Error(1)
}

type mockAccounts struct{ mock.Mock }

func (m *mockAccounts) Overview(ctx context.Context, profileID int64) (*service.Overview, error) {
	args := m.Called(ctx, profileID)
	v, _ := args.Get(0).(*service.Overview)
	return v, args.Error(1)
}

func (m *mockAccounts) UpdateTradeURL(ctx context.Context, profileID int64, raw string) error {
	return m.Called(ctx, profileID, raw).Error(0)
}

type mockInventory struct{ mock.Mock }

func (m *mockInventory) Sell(ctx context.Context, profileID int64, ids []int64) (*service.SellResult, error) {
	args := m.Called(ctx, profileID, ids)
	v, _ := args.Get(0).(*service.SellResult)
	return v, args.Error(1)
}

type mockWithdrawals struct{ mock.Mock }

func (m *mockWithdrawals) Create(ctx context.Context, profileID int64, ids []int64) (*service.WithdrawResult, error) {
	args := m.Called(ctx, profileID, ids)
	v, _ := args.Get(0).(*service.WithdrawResult)
	return v, args.Error(1)
}

func (m *mockWithdrawals) PollForProfile(ctx context.Context, profileID int64) (*service.PollResult, error) {
	args := m.Called(ctx, profileID)
	v, _ := args.Get(0).(*service.PollResult)
	return v, args.Error(1)
}

func (m *mockWithdrawals) ListByProfile(ctx context.Context, profileID int64, limit int) ([]*model.Withdrawal, error) {
	args := m.Called(ctx, profileID, limit)
	v, _ := args.Get(0).([]*model.Withdrawal)
	return v, args.Error(1)
}

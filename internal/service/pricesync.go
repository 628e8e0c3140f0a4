package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"case-market/internal/market"
	"case-market/internal/model"
)

// PriceSource provides the marketplace price list.
type PriceSource interface {
	Prices(ctx context.Context) market.Outcome[map[string]decimal.Decimal]
}

// Recalculator recomputes cached drop chances after a price change.
type Recalculator interface {
	RecalculateAll(ctx context.Context) (int, error)
}

// SyncResult summarises one price sync run.
type SyncResult struct {
	Updated      int `json:"updated"`
	Renamed      int `json:"renamed"`
	Missing      int `json:"missing"`
	Failed       int `json:"failed"`
	Recalculated int `json:"recalculated"`
}

// ItemPrices is the item storage price sync writes to.
// *repository.ItemRepository implements it.
type ItemPrices interface {
	ListWithHashName(ctx context.Context) ([]*model.Item, error)
	UpdatePrice(ctx context.Context, id int64, price decimal.Decimal) error
	UpdatePriceAndHashName(ctx context.Context, id int64, price decimal.Decimal, hashName string) error
}

// PriceSyncService refreshes catalog prices from the marketplace.
type PriceSyncService struct {
	items  ItemPrices
	prices PriceSource
	recalc Recalculator
}

// NewPriceSyncService creates a new PriceSyncService instance.
func NewPriceSyncService(items ItemPrices, prices PriceSource, recalc Recalculator) *PriceSyncService {
	return &PriceSyncService{items: items, prices: prices, recalc: recalc}
}

// baseHashName strips the skin part of a market hash name.
func baseHashName(hashName string) string {
	base, _, _ := strings.Cut(hashName, " | ")
	return base
}

// ResolvePrice looks hashName up in prices, falling back to its base name.
// It returns the price, the key that matched and whether one did.
func ResolvePrice(prices map[string]decimal.Decimal, hashName string) (decimal.Decimal, string, bool) {
	if p, ok := prices[hashName]; ok {
		return p, hashName, true
	}
	base := baseHashName(hashName)
	if p, ok := prices[base]; ok {
		return p, base, true
	}
	return decimal.Zero, "", false
}

// SyncPrices updates every item with a catalog key from the marketplace
// price list, then recomputes drop chances.
func (s *PriceSyncService) SyncPrices(ctx context.Context) (*SyncResult, error) {
	out := s.prices.Prices(ctx)
	if !out.OK() {
		return nil, fmt.Errorf("failed to fetch price list: %w", out.Err)
	}

	items, err := s.items.ListWithHashName(ctx)
	if err != nil {
		return nil, err
	}

	res := &SyncResult{}
	for _, it := range items {
		key := *it.MarketHashName
		price, matched, ok := ResolvePrice(out.Value, key)
		if !ok {
			res.Missing++
			continue
		}
		price = price.Round(2)
		renamed := matched != key

		switch {
		case renamed:
			err = s.items.UpdatePriceAndHashName(ctx, it.ID, price, matched)
		case !price.Equal(it.Price):
			err = s.items.UpdatePrice(ctx, it.ID, price)
		default:
			continue
		}
		if err != nil {
			res.Failed++
			log.Warn().Err(err).Int64("item_id", it.ID).Str("hash_name", key).Msg("Price update failed")
			continue
		}
		res.Updated++
		if renamed {
			res.Renamed++
		}
	}

	if res.Recalculated, err = s.recalc.RecalculateAll(ctx); err != nil {
		return res, fmt.Errorf("failed to recalculate drop chances: %w", err)
	}

	log.Info().
		Int("items", len(items)).
		Int("updated", res.Updated).
		Int("renamed", res.Renamed).
		Int("missing", res.Missing).
		Int("failed", res.Failed).
		Int("recalculated", res.Recalculated).
		Msg("Price sync finished")
	return res, nil
}

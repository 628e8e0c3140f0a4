// Package model defines the persisted entities of the case marketplace.
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Rarity is an item grade with its display colour.
type Rarity struct {
	ID    int64  `db:"id" json:"id"`
	Name  string `db:"name" json:"name"`
	Color string `db:"color" json:"color"`
}

// DefaultRarityColor is assigned to rarities created during import.
const DefaultRarityColor = "#ffffff"

// Item is a catalog entry.
type Item struct {
	ID             int64           `db:"id" json:"id"`
	WeaponName     string          `db:"weapon_name" json:"weapon_name"`
	SkinName       string          `db:"skin_name" json:"skin_name"`
	MarketHashName *string         `db:"market_hash_name" json:"market_hash_name,omitempty"`
	Price          decimal.Decimal `db:"price" json:"price"`
	RarityID       *int64          `db:"rarity_id" json:"-"`
	ImagePath      string          `db:"image_path" json:"image_path"`
	Rarity         *Rarity         `db:"-" json:"rarity,omitempty"`
	CreatedAt      time.Time       `db:"created_at" json:"-"`
	UpdatedAt      time.Time       `db:"updated_at" json:"-"`
}

// DisplayName renders "Weapon | Skin" or just the weapon for vanilla items.
func (i *Item) DisplayName() string {
	if i.SkinName == "" {
		return i.WeaponName
	}
	return i.WeaponName + " | " + i.SkinName
}

// HashName returns the marketplace key, falling back to the display name.
func (i *Item) HashName() string {
	if i.MarketHashName != nil && *i.MarketHashName != "" {
		return *i.MarketHashName
	}
	return i.DisplayName()
}

// RarityColor returns the item's rarity colour or the neutral default.
func (i *Item) RarityColor() string {
	if i.Rarity == nil || i.Rarity.Color == "" {
		return DefaultRarityColor
	}
	return i.Rarity.Color
}

// CaseSection groups cases for listing.
type CaseSection struct {
	ID       int64  `db:"id" json:"id"`
	Name     string `db:"name" json:"name"`
	Position int    `db:"position" json:"position"`
}

// Case is a purchasable pool of items.
type Case struct {
	ID        int64            `db:"id" json:"id"`
	Title     string           `db:"title" json:"title"`
	Slug      string           `db:"slug" json:"slug"`
	Price     decimal.Decimal  `db:"price" json:"price"`
	OldPrice  *decimal.Decimal `db:"old_price" json:"old_price,omitempty"`
	Active    bool             `db:"active" json:"active"`
	SectionID *int64           `db:"section_id" json:"section_id,omitempty"`
	ImagePath string           `db:"image_path" json:"image_path"`
	ItemCount int              `db:"-" json:"item_count"`
	CreatedAt time.Time        `db:"created_at" json:"-"`
}

// CaseItem links an item to a case with a cached drop chance.
type CaseItem struct {
	ID         int64   `db:"id" json:"id"`
	CaseID     int64   `db:"case_id" json:"case_id"`
	ItemID     int64   `db:"item_id" json:"item_id"`
	DropChance float64 `db:"drop_chance" json:"drop_chance"`
	NeverDrop  bool    `db:"never_drop" json:"never_drop"`
	Item       *Item   `db:"-" json:"item,omitempty"`
}

// Profile is one user's account.
// FavoriteCaseID and BestDropItemID are informational caches; see
// repository.ProfileRepository.RecomputeProjections.
type Profile struct {
	ID               int64           `db:"id" json:"id"`
	SteamID          string          `db:"steam_id" json:"steam_id"`
	Username         string          `db:"username" json:"username"`
	AvatarURL        string          `db:"avatar_url" json:"avatar_url"`
	Balance          decimal.Decimal `db:"balance" json:"balance"`
	TradeURL         string          `db:"trade_url" json:"trade_url"`
	CasesOpened      int             `db:"cases_opened" json:"cases_opened"`
	UpgradesCount    int             `db:"upgrades_count" json:"upgrades_count"`
	ContractsCount   int             `db:"contracts_count" json:"contracts_count"`
	WithdrawalsCount int             `db:"withdrawals_count" json:"withdrawals_count"`
	WithdrawBlocked  bool            `db:"withdraw_blocked" json:"withdraw_blocked"`
	FavoriteCaseID   *int64          `db:"favorite_case_id" json:"favorite_case_id,omitempty"`
	BestDropItemID   *int64          `db:"best_drop_item_id" json:"best_drop_item_id,omitempty"`
	LastSteamSync    *time.Time      `db:"last_steam_sync" json:"last_steam_sync,omitempty"`
	CreatedAt        time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time       `db:"updated_at" json:"-"`
}

// InventoryItem is an owned instance of an item.
type InventoryItem struct {
	ID        int64      `db:"id" json:"id"`
	ProfileID int64      `db:"profile_id" json:"profile_id"`
	ItemID    int64      `db:"item_id" json:"item_id"`
	Pending   bool       `db:"pending" json:"pending"`
	LockedAt  *time.Time `db:"locked_at" json:"-"`
	CreatedAt time.Time  `db:"created_at" json:"created_at"`
	Item      *Item      `db:"-" json:"item,omitempty"`
}

// WithdrawalStatus is the lifecycle state of a withdrawal.
type WithdrawalStatus string

// Withdrawal statuses. Completed and failed are terminal.
const (
	WithdrawalPending   WithdrawalStatus = "pending"
	WithdrawalCompleted WithdrawalStatus = "completed"
	WithdrawalFailed    WithdrawalStatus = "failed"
)

// Terminal reports whether no further transition is allowed.
func (s WithdrawalStatus) Terminal() bool {
	return s == WithdrawalCompleted || s == WithdrawalFailed
}

// Withdrawal is one attempt to deliver an inventory item as a trade offer.
type Withdrawal struct {
	ID              int64            `db:"id" json:"id"`
	ProfileID       int64            `db:"profile_id" json:"profile_id"`
	InventoryItemID *int64           `db:"inventory_item_id" json:"inventory_item_id,omitempty"`
	ItemID          int64            `db:"item_id" json:"item_id"`
	CustomID        string           `db:"custom_id" json:"custom_id"`
	OfferID         string           `db:"offer_id" json:"offer_id"`
	PriceCents      int64            `db:"price_cents" json:"price_cents"`
	Status          WithdrawalStatus `db:"status" json:"status"`
	FailSeenAt      *time.Time       `db:"fail_seen_at" json:"fail_seen_at,omitempty"`
	CreatedAt       time.Time        `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time        `db:"updated_at" json:"-"`
}

// TransactionLog is an append-only audit record.
type TransactionLog struct {
	ID         int64           `db:"id" json:"id"`
	ProfileID  int64           `db:"profile_id" json:"profile_id"`
	ActionType string          `db:"action_type" json:"action_type"`
	Details    string          `db:"details" json:"details"`
	Amount     decimal.Decimal `db:"amount" json:"amount"`
	ItemID     *int64          `db:"item_id" json:"item_id,omitempty"`
	Roll       *float64        `db:"roll" json:"roll,omitempty"`
	CreatedAt  time.Time       `db:"created_at" json:"created_at"`
}

// Transaction log action types.
const (
	ActionOpenCase      = "open_case"
	ActionUpgrade       = "upgrade"
	ActionContract      = "contract"
	ActionSell          = "sell"
	ActionDeposit       = "deposit"
	ActionWithdrawBlock = "withdraw_block"
)

// Contract records one contract outcome.
type Contract struct {
	ID              int64           `db:"id" json:"id"`
	ProfileID       int64           `db:"profile_id" json:"profile_id"`
	TotalItemsValue decimal.Decimal `db:"total_items_value" json:"total_items_value"`
	UsedBalance     decimal.Decimal `db:"used_balance" json:"used_balance"`
	Multiplier      decimal.Decimal `db:"multiplier" json:"multiplier"`
	ResultItemID    *int64          `db:"result_item_id" json:"result_item_id,omitempty"`
	CreatedAt       time.Time       `db:"created_at" json:"created_at"`
}

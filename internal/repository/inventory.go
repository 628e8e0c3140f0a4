package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"case-market/internal/model"
)

// InventoryRepository handles owned item instances.
type InventoryRepository struct {
	db DBTX
}

// NewInventoryRepository creates a new InventoryRepository instance.
func NewInventoryRepository(db DBTX) *InventoryRepository {
	return &InventoryRepository{db: db}
}

const inventorySelect = `
	SELECT ` + itemColumns + `, ii.id, ii.profile_id, ii.pending, ii.locked_at, ii.created_at
	FROM inventory_items ii
	JOIN items i ON i.id = ii.item_id
	LEFT JOIN rarities r ON r.id = i.rarity_id`

func collectInventory(rows pgx.Rows) ([]*model.InventoryItem, error) {
	defer rows.Close()

	var out []*model.InventoryItem
	for rows.Next() {
		var inv model.InventoryItem
		it, err := scanItemInto(rows, &inv.ID, &inv.ProfileID, &inv.Pending, &inv.LockedAt, &inv.CreatedAt)
		if err != nil {
			return nil, err
		}
		inv.ItemID = it.ID
		inv.Item = it
		out = append(out, &inv)
	}
	return out, rows.Err()
}

// Create grants an item to a profile.
func (r *InventoryRepository) Create(ctx context.Context, profileID, itemID int64) (*model.InventoryItem, error) {
	const query = `
		INSERT INTO inventory_items (profile_id, item_id)
		VALUES ($1, $2)
		RETURNING id, profile_id, item_id, pending, locked_at, created_at
	`

	var inv model.InventoryItem
	err := r.db.QueryRow(ctx, query, profileID, itemID).Scan(
		&inv.ID,
		&inv.ProfileID,
		&inv.ItemID,
		&inv.Pending,
		&inv.LockedAt,
		&inv.CreatedAt,
	)
	if err != nil {
		return nil, wrap("create inventory item", err)
	}
	return &inv, nil
}

// ListByProfile returns a profile's inventory, newest first.
func (r *InventoryRepository) ListByProfile(ctx context.Context, profileID int64) ([]*model.InventoryItem, error) {
	rows, err := r.db.Query(ctx, inventorySelect+` WHERE ii.profile_id = $1 ORDER BY ii.created_at DESC, ii.id DESC`, profileID)
	if err != nil {
		return nil, wrap("list inventory", err)
	}
	items, err := collectInventory(rows)
	if err != nil {
		return nil, wrap("scan inventory", err)
	}
	return items, nil
}

// LockOwned selects the profile's rows among ids FOR UPDATE.
// Ids that do not exist or belong to someone else are simply absent.
func (r *InventoryRepository) LockOwned(ctx context.Context, profileID int64, ids []int64) ([]*model.InventoryItem, error) {
	rows, err := r.db.Query(ctx,
		inventorySelect+` WHERE ii.profile_id = $1 AND ii.id = ANY($2) ORDER BY ii.id FOR UPDATE OF ii`,
		profileID, ids)
	if err != nil {
		return nil, wrap("lock inventory", err)
	}
	items, err := collectInventory(rows)
	if err != nil {
		return nil, wrap("scan inventory", err)
	}
	return items, nil
}

// LockOne selects one owned row FOR UPDATE.
func (r *InventoryRepository) LockOne(ctx context.Context, profileID, id int64) (*model.InventoryItem, error) {
	items, err := r.LockOwned(ctx, profileID, []int64{id})
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, ErrInventoryItemNotFound
	}
	return items[0], nil
}

// LockByID selects a row FOR UPDATE regardless of owner.
func (r *InventoryRepository) LockByID(ctx context.Context, id int64) (*model.InventoryItem, error) {
	rows, err := r.db.Query(ctx, inventorySelect+` WHERE ii.id = $1 FOR UPDATE OF ii`, id)
	if err != nil {
		return nil, wrap("lock inventory item", err)
	}
	items, err := collectInventory(rows)
	if err != nil {
		return nil, wrap("scan inventory", err)
	}
	if len(items) == 0 {
		return nil, ErrInventoryItemNotFound
	}
	return items[0], nil
}

// DeleteByIDs removes rows and returns how many were deleted.
func (r *InventoryRepository) DeleteByIDs(ctx context.Context, ids []int64) (int64, error) {
	tag, err := r.db.Exec(ctx, `DELETE FROM inventory_items WHERE id = ANY($1)`, ids)
	if err != nil {
		return 0, wrap("delete inventory items", err)
	}
	return tag.RowsAffected(), nil
}

// Delete removes one row. A missing row is not an error.
func (r *InventoryRepository) Delete(ctx context.Context, id int64) error {
	if _, err := r.db.Exec(ctx, `DELETE FROM inventory_items WHERE id = $1`, id); err != nil {
		return wrap("delete inventory item", err)
	}
	return nil
}

// Reserve marks the row as locked for a withdrawal.
func (r *InventoryRepository) Reserve(ctx context.Context, id int64, at time.Time) error {
	const query = `UPDATE inventory_items SET pending = TRUE, locked_at = $2 WHERE id = $1`

	tag, err := r.db.Exec(ctx, query, id, at)
	if err != nil {
		return wrap("reserve inventory item", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrInventoryItemNotFound
	}
	return nil
}

// Release unlocks the row. A missing row is not an error.
func (r *InventoryRepository) Release(ctx context.Context, id int64) error {
	const query = `UPDATE inventory_items SET pending = FALSE, locked_at = NULL WHERE id = $1`
	if _, err := r.db.Exec(ctx, query, id); err != nil {
		return wrap("release inventory item", err)
	}
	return nil
}

// ReleaseStale unlocks rows reserved before cutoff that never got a pending
// withdrawal, and returns their ids.
func (r *InventoryRepository) ReleaseStale(ctx context.Context, cutoff time.Time) ([]int64, error) {
	const query = `
		UPDATE inventory_items ii
		SET pending = FALSE, locked_at = NULL
		WHERE ii.pending
		  AND (ii.locked_at IS NULL OR ii.locked_at < $1)
		  AND NOT EXISTS (
			SELECT 1 FROM withdrawals w
			WHERE w.inventory_item_id = ii.id AND w.status = 'pending'
		  )
		RETURNING ii.id
	`

	rows, err := r.db.Query(ctx, query, cutoff)
	if err != nil {
		return nil, wrap("release stale reservations", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[int64])
	if err != nil {
		return nil, wrap("scan released ids", err)
	}
	return ids, nil
}

// Exists reports whether the row exists.
func (r *InventoryRepository) Exists(ctx context.Context, id int64) (bool, error) {
	var one int
	err := r.db.QueryRow(ctx, `SELECT 1 FROM inventory_items WHERE id = $1`, id).Scan(&one)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, wrap("check inventory item", err)
	}
	return true, nil
}

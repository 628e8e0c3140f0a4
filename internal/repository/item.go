package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"case-market/internal/model"
)

const itemColumns = `
	i.id, i.weapon_name, i.skin_name, i.market_hash_name, i.price, i.rarity_id,
	i.image_path, i.created_at, i.updated_at, r.id, r.name, r.color`

const itemFrom = ` FROM items i LEFT JOIN rarities r ON r.id = i.rarity_id`

// ItemRepository handles catalog items and rarities.
type ItemRepository struct {
	db DBTX
}

// NewItemRepository creates a new ItemRepository instance.
func NewItemRepository(db DBTX) *ItemRepository {
	return &ItemRepository{db: db}
}

// scanItemInto reads itemColumns; extra destinations are appended after them.
func scanItemInto(row pgx.Row, extra ...any) (*model.Item, error) {
	var (
		it                    model.Item
		rarityID              *int64
		rarityName, rarityCol *string
	)
	dest := []any{
		&it.ID,
		&it.WeaponName,
		&it.SkinName,
		&it.MarketHashName,
		&it.Price,
		&it.RarityID,
		&it.ImagePath,
		&it.CreatedAt,
		&it.UpdatedAt,
		&rarityID,
		&rarityName,
		&rarityCol,
	}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return nil, err
	}
	if rarityID != nil {
		it.Rarity = &model.Rarity{ID: *rarityID, Name: deref(rarityName), Color: deref(rarityCol)}
	}
	return &it, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func collectItems(rows pgx.Rows) ([]*model.Item, error) {
	defer rows.Close()

	var items []*model.Item
	for rows.Next() {
		it, err := scanItemInto(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

// GetByID retrieves an item with its rarity.
func (r *ItemRepository) GetByID(ctx context.Context, id int64) (*model.Item, error) {
	const query = `SELECT ` + itemColumns + itemFrom + ` WHERE i.id = $1`

	it, err := scanItemInto(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrItemNotFound
		}
		return nil, wrap("get item", err)
	}
	return it, nil
}

// FindByName looks an item up by (weapon, skin).
func (r *ItemRepository) FindByName(ctx context.Context, weaponName, skinName string) (*model.Item, error) {
	const query = `SELECT ` + itemColumns + itemFrom + ` WHERE i.weapon_name = $1 AND i.skin_name = $2`

	it, err := scanItemInto(r.db.QueryRow(ctx, query, weaponName, skinName))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrItemNotFound
		}
		return nil, wrap("find item", err)
	}
	return it, nil
}

// GetOrCreate finds an item by (weapon, skin) or creates it with the given
// price and catalog key.
func (r *ItemRepository) GetOrCreate(ctx context.Context, weaponName, skinName string, price decimal.Decimal, hashName *string) (*model.Item, bool, error) {
	const insert = `
		INSERT INTO items (weapon_name, skin_name, price, market_hash_name)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (weapon_name, skin_name) DO NOTHING
		RETURNING id
	`

	var id int64
	err := r.db.QueryRow(ctx, insert, weaponName, skinName, price, hashName).Scan(&id)
	created := err == nil
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return nil, false, wrap("create item", err)
	}

	it, err := r.FindByName(ctx, weaponName, skinName)
	if err != nil {
		return nil, false, err
	}
	return it, created, nil
}

// UpdatePrice sets a new price.
func (r *ItemRepository) UpdatePrice(ctx context.Context, id int64, price decimal.Decimal) error {
	const query = `UPDATE items SET price = $2, updated_at = NOW() WHERE id = $1`
	return r.exec(ctx, "update item price", query, id, price)
}

// UpdatePriceAndHashName sets price and catalog key together.
func (r *ItemRepository) UpdatePriceAndHashName(ctx context.Context, id int64, price decimal.Decimal, hashName string) error {
	const query = `UPDATE items SET price = $2, market_hash_name = $3, updated_at = NOW() WHERE id = $1`
	return r.exec(ctx, "update item price", query, id, price, hashName)
}

// SetHashName backfills the catalog key.
func (r *ItemRepository) SetHashName(ctx context.Context, id int64, hashName string) error {
	const query = `UPDATE items SET market_hash_name = $2, updated_at = NOW() WHERE id = $1`
	return r.exec(ctx, "set item hash name", query, id, hashName)
}

// SetRarity links the item to a rarity.
func (r *ItemRepository) SetRarity(ctx context.Context, id, rarityID int64) error {
	const query = `UPDATE items SET rarity_id = $2, updated_at = NOW() WHERE id = $1`
	return r.exec(ctx, "set item rarity", query, id, rarityID)
}

// SetImage stores the relative path of the item image.
func (r *ItemRepository) SetImage(ctx context.Context, id int64, path string) error {
	const query = `UPDATE items SET image_path = $2, updated_at = NOW() WHERE id = $1`
	return r.exec(ctx, "set item image", query, id, path)
}

func (r *ItemRepository) exec(ctx context.Context, op, query string, args ...any) error {
	tag, err := r.db.Exec(ctx, query, args...)
	if err != nil {
		return wrap(op, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrItemNotFound
	}
	return nil
}

// ListWithHashName returns every item that carries a catalog key.
func (r *ItemRepository) ListWithHashName(ctx context.Context) ([]*model.Item, error) {
	const query = `SELECT ` + itemColumns + itemFrom + ` WHERE i.market_hash_name IS NOT NULL AND i.market_hash_name <> '' ORDER BY i.id`

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, wrap("list items", err)
	}
	items, err := collectItems(rows)
	if err != nil {
		return nil, wrap("scan items", err)
	}
	return items, nil
}

// ListByPriceDesc pages through the catalog, most expensive first.
func (r *ItemRepository) ListByPriceDesc(ctx context.Context, offset, limit int) ([]*model.Item, error) {
	const query = `SELECT ` + itemColumns + itemFrom + ` ORDER BY i.price DESC, i.id ASC OFFSET $1 LIMIT $2`

	rows, err := r.db.Query(ctx, query, offset, limit)
	if err != nil {
		return nil, wrap("list items", err)
	}
	items, err := collectItems(rows)
	if err != nil {
		return nil, wrap("scan items", err)
	}
	return items, nil
}

// IDsInPriceRange returns ids of items priced within [low, high].
func (r *ItemRepository) IDsInPriceRange(ctx context.Context, low, high decimal.Decimal) ([]int64, error) {
	const query = `SELECT id FROM items WHERE price >= $1 AND price <= $2 ORDER BY id`

	rows, err := r.db.Query(ctx, query, low, high)
	if err != nil {
		return nil, wrap("query items by price", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[int64])
	if err != nil {
		return nil, wrap("scan item ids", err)
	}
	return ids, nil
}

// ClosestToPrice returns the id of the item whose price is nearest to target.
func (r *ItemRepository) ClosestToPrice(ctx context.Context, target decimal.Decimal) (int64, error) {
	const query = `SELECT id FROM items ORDER BY ABS(price - $1), id LIMIT 1`

	var id int64
	if err := r.db.QueryRow(ctx, query, target).Scan(&id); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrItemNotFound
		}
		return 0, wrap("query closest item", err)
	}
	return id, nil
}

// FindOrCreateRarity matches a rarity by case-insensitive name, creating it
// with the neutral colour when missing.
func (r *ItemRepository) FindOrCreateRarity(ctx context.Context, name string) (*model.Rarity, error) {
	const insert = `
		INSERT INTO rarities (name, color) VALUES ($1, $2)
		ON CONFLICT ((LOWER(name))) DO NOTHING
	`
	const query = `SELECT id, name, color FROM rarities WHERE LOWER(name) = LOWER($1)`

	if _, err := r.db.Exec(ctx, insert, name, model.DefaultRarityColor); err != nil {
		return nil, wrap("create rarity", err)
	}

	var rar model.Rarity
	if err := r.db.QueryRow(ctx, query, name).Scan(&rar.ID, &rar.Name, &rar.Color); err != nil {
		return nil, wrap("get rarity", err)
	}
	return &rar, nil
}

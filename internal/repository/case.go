package repository

import (
	"context"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"case-market/internal/model"
)

const caseColumns = `c.id, c.title, c.slug, c.price, c.old_price, c.active, c.section_id, c.image_path, c.created_at`

// CaseFilter narrows ListActive. Zero values mean "no constraint".
type CaseFilter struct {
	Term     string
	MinPrice *decimal.Decimal
	MaxPrice *decimal.Decimal
}

// CaseRepository handles cases, their item links and sections.
type CaseRepository struct {
	db DBTX
}

// NewCaseRepository creates a new CaseRepository instance.
func NewCaseRepository(db DBTX) *CaseRepository {
	return &CaseRepository{db: db}
}

func scanCase(row pgx.Row, extra ...any) (*model.Case, error) {
	var c model.Case
	dest := []any{
		&c.ID,
		&c.Title,
		&c.Slug,
		&c.Price,
		&c.OldPrice,
		&c.Active,
		&c.SectionID,
		&c.ImagePath,
		&c.CreatedAt,
	}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrCaseNotFound
		}
		return nil, err
	}
	return &c, nil
}

// Create inserts a case.
func (r *CaseRepository) Create(ctx context.Context, c *model.Case) (*model.Case, error) {
	const query = `
		INSERT INTO cases AS c (title, slug, price, old_price, active, section_id, image_path)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING ` + caseColumns

	created, err := scanCase(r.db.QueryRow(ctx, query,
		c.Title, c.Slug, c.Price, c.OldPrice, c.Active, c.SectionID, c.ImagePath))
	if err != nil {
		return nil, wrap("create case", err)
	}
	return created, nil
}

// GetByID retrieves a case regardless of its active flag.
func (r *CaseRepository) GetByID(ctx context.Context, id int64) (*model.Case, error) {
	const query = `SELECT ` + caseColumns + ` FROM cases c WHERE c.id = $1`

	c, err := scanCase(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, ErrCaseNotFound) {
			return nil, err
		}
		return nil, wrap("get case", err)
	}
	return c, nil
}

// GetBySlug retrieves a case; activeOnly hides inactive cases.
func (r *CaseRepository) GetBySlug(ctx context.Context, slug string, activeOnly bool) (*model.Case, error) {
	const query = `SELECT ` + caseColumns + ` FROM cases c WHERE c.slug = $1 AND (c.active OR NOT $2)`

	c, err := scanCase(r.db.QueryRow(ctx, query, slug, activeOnly))
	if err != nil {
		if errors.Is(err, ErrCaseNotFound) {
			return nil, err
		}
		return nil, wrap("get case", err)
	}
	return c, nil
}

// ListActive returns active cases with item counts, grouped by section order.
func (r *CaseRepository) ListActive(ctx context.Context, f CaseFilter) ([]*model.Case, error) {
	const query = `
		SELECT ` + caseColumns + `, COUNT(ci.id)
		FROM cases c
		LEFT JOIN case_sections s ON s.id = c.section_id
		LEFT JOIN case_items ci ON ci.case_id = c.id
		WHERE c.active
		  AND ($1 = '' OR POSITION($1 IN LOWER(c.title)) > 0)
		  AND ($2::numeric IS NULL OR c.price >= $2)
		  AND ($3::numeric IS NULL OR c.price <= $3)
		GROUP BY c.id, s.position
		ORDER BY s.position NULLS LAST, c.section_id NULLS LAST, c.id
	`

	rows, err := r.db.Query(ctx, query, strings.ToLower(strings.TrimSpace(f.Term)), f.MinPrice, f.MaxPrice)
	if err != nil {
		return nil, wrap("list cases", err)
	}
	defer rows.Close()

	var cases []*model.Case
	for rows.Next() {
		var count int
		c, err := scanCase(rows, &count)
		if err != nil {
			return nil, wrap("scan case", err)
		}
		c.ItemCount = count
		cases = append(cases, c)
	}
	if err := rows.Err(); err != nil {
		return nil, wrap("list cases", err)
	}
	return cases, nil
}

// ListIDs returns the ids of every case.
func (r *CaseRepository) ListIDs(ctx context.Context) ([]int64, error) {
	rows, err := r.db.Query(ctx, `SELECT id FROM cases ORDER BY id`)
	if err != nil {
		return nil, wrap("list case ids", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[int64])
	if err != nil {
		return nil, wrap("scan case ids", err)
	}
	return ids, nil
}

// UpsertSection creates a section or moves an existing one to position.
func (r *CaseRepository) UpsertSection(ctx context.Context, name string, position int) (*model.CaseSection, error) {
	const query = `
		INSERT INTO case_sections (name, position) VALUES ($1, $2)
		ON CONFLICT (name) DO UPDATE SET position = EXCLUDED.position
		RETURNING id, name, position
	`
	sec := &model.CaseSection{}
	if err := r.db.QueryRow(ctx, query, name, position).Scan(&sec.ID, &sec.Name, &sec.Position); err != nil {
		return nil, wrap("upsert section", err)
	}
	return sec, nil
}

// ListSections returns case sections in display order.
func (r *CaseRepository) ListSections(ctx context.Context) ([]*model.CaseSection, error) {
	rows, err := r.db.Query(ctx, `SELECT id, name, position FROM case_sections ORDER BY position, id`)
	if err != nil {
		return nil, wrap("list sections", err)
	}
	sections, err := pgx.CollectRows(rows, pgx.RowToAddrOfStructByPos[model.CaseSection])
	if err != nil {
		return nil, wrap("scan sections", err)
	}
	return sections, nil
}

// Items returns the case's item links with items and rarities.
// droppableOnly excludes never_drop links.
func (r *CaseRepository) Items(ctx context.Context, caseID int64, droppableOnly bool) ([]*model.CaseItem, error) {
	const query = `
		SELECT ` + itemColumns + `, ci.id, ci.case_id, ci.drop_chance, ci.never_drop
		FROM case_items ci
		JOIN items i ON i.id = ci.item_id
		LEFT JOIN rarities r ON r.id = i.rarity_id
		WHERE ci.case_id = $1 AND (NOT $2 OR NOT ci.never_drop)
		ORDER BY ci.id
	`

	rows, err := r.db.Query(ctx, query, caseID, droppableOnly)
	if err != nil {
		return nil, wrap("list case items", err)
	}
	defer rows.Close()

	var links []*model.CaseItem
	for rows.Next() {
		var ci model.CaseItem
		it, err := scanItemInto(rows, &ci.ID, &ci.CaseID, &ci.DropChance, &ci.NeverDrop)
		if err != nil {
			return nil, wrap("scan case item", err)
		}
		ci.ItemID = it.ID
		ci.Item = it
		links = append(links, &ci)
	}
	if err := rows.Err(); err != nil {
		return nil, wrap("list case items", err)
	}
	return links, nil
}

// UpsertItem links an item to a case or refreshes the link's drop chance.
// An existing never_drop flag is preserved.
func (r *CaseRepository) UpsertItem(ctx context.Context, caseID, itemID int64, dropChance float64) error {
	const query = `
		INSERT INTO case_items (case_id, item_id, drop_chance, never_drop)
		VALUES ($1, $2, $3, FALSE)
		ON CONFLICT (case_id, item_id) DO UPDATE SET drop_chance = EXCLUDED.drop_chance
	`
	if _, err := r.db.Exec(ctx, query, caseID, itemID, dropChance); err != nil {
		return wrap("upsert case item", err)
	}
	return nil
}

// SetNeverDrop toggles the never_drop flag of one link.
func (r *CaseRepository) SetNeverDrop(ctx context.Context, caseID, itemID int64, neverDrop bool) error {
	const query = `UPDATE case_items SET never_drop = $3 WHERE case_id = $1 AND item_id = $2`

	tag, err := r.db.Exec(ctx, query, caseID, itemID, neverDrop)
	if err != nil {
		return wrap("set never drop", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrItemNotFound
	}
	return nil
}

// SetDropChance stores a recomputed chance for one link.
func (r *CaseRepository) SetDropChance(ctx context.Context, caseItemID int64, dropChance float64) error {
	const query = `UPDATE case_items SET drop_chance = $2 WHERE id = $1 AND drop_chance IS DISTINCT FROM $2`
	if _, err := r.db.Exec(ctx, query, caseItemID, dropChance); err != nil {
		return wrap("set drop chance", err)
	}
	return nil
}

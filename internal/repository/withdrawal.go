package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"case-market/internal/model"
)

const withdrawalColumns = `
	id, profile_id, inventory_item_id, item_id, custom_id, offer_id, price_cents,
	status, fail_seen_at, created_at, updated_at`

// WithdrawalRepository handles withdrawal rows.
// Status transitions are conditional on status = 'pending', so a row already
// in a terminal state is never touched again.
type WithdrawalRepository struct {
	db DBTX
}

// NewWithdrawalRepository creates a new WithdrawalRepository instance.
func NewWithdrawalRepository(db DBTX) *WithdrawalRepository {
	return &WithdrawalRepository{db: db}
}

func scanWithdrawal(row pgx.Row) (*model.Withdrawal, error) {
	var w model.Withdrawal
	err := row.Scan(
		&w.ID,
		&w.ProfileID,
		&w.InventoryItemID,
		&w.ItemID,
		&w.CustomID,
		&w.OfferID,
		&w.PriceCents,
		&w.Status,
		&w.FailSeenAt,
		&w.CreatedAt,
		&w.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrWithdrawalNotFound
		}
		return nil, err
	}
	return &w, nil
}

func (r *WithdrawalRepository) list(ctx context.Context, op, query string, args ...any) ([]*model.Withdrawal, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, wrap(op, err)
	}
	defer rows.Close()

	var out []*model.Withdrawal
	for rows.Next() {
		w, err := scanWithdrawal(rows)
		if err != nil {
			return nil, wrap(op, err)
		}
		out = append(out, w)
	}
	if err := rows.Err(); err != nil {
		return nil, wrap(op, err)
	}
	return out, nil
}

// Create inserts a pending withdrawal.
// Returns ErrDuplicateWithdrawal when the item already has a pending one.
func (r *WithdrawalRepository) Create(ctx context.Context, w *model.Withdrawal) (*model.Withdrawal, error) {
	const query = `
		INSERT INTO withdrawals (profile_id, inventory_item_id, item_id, custom_id, offer_id, price_cents, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, 'pending', $7, $7)
		RETURNING ` + withdrawalColumns

	created, err := scanWithdrawal(r.db.QueryRow(ctx, query,
		w.ProfileID, w.InventoryItemID, w.ItemID, w.CustomID, w.OfferID, w.PriceCents, w.CreatedAt))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" && pgErr.ConstraintName == "idx_withdrawals_one_pending" {
			return nil, ErrDuplicateWithdrawal
		}
		return nil, wrap("create withdrawal", err)
	}
	return created, nil
}

// HasPending reports whether the inventory item has a non-terminal withdrawal.
func (r *WithdrawalRepository) HasPending(ctx context.Context, inventoryItemID int64) (bool, error) {
	const query = `SELECT EXISTS (SELECT 1 FROM withdrawals WHERE inventory_item_id = $1 AND status = 'pending')`

	var exists bool
	if err := r.db.QueryRow(ctx, query, inventoryItemID).Scan(&exists); err != nil {
		return false, wrap("check pending withdrawal", err)
	}
	return exists, nil
}

// GetByCustomID retrieves a withdrawal by correlation id.
func (r *WithdrawalRepository) GetByCustomID(ctx context.Context, customID string) (*model.Withdrawal, error) {
	const query = `SELECT ` + withdrawalColumns + ` FROM withdrawals WHERE custom_id = $1`

	w, err := scanWithdrawal(r.db.QueryRow(ctx, query, customID))
	if err != nil {
		if errors.Is(err, ErrWithdrawalNotFound) {
			return nil, err
		}
		return nil, wrap("get withdrawal", err)
	}
	return w, nil
}

// ListPending returns every pending withdrawal, oldest first.
func (r *WithdrawalRepository) ListPending(ctx context.Context) ([]*model.Withdrawal, error) {
	return r.list(ctx, "list pending withdrawals",
		`SELECT `+withdrawalColumns+` FROM withdrawals WHERE status = 'pending' ORDER BY created_at, id`)
}

// ListPendingByProfile returns one profile's pending withdrawals, oldest first.
func (r *WithdrawalRepository) ListPendingByProfile(ctx context.Context, profileID int64) ([]*model.Withdrawal, error) {
	return r.list(ctx, "list pending withdrawals",
		`SELECT `+withdrawalColumns+` FROM withdrawals WHERE profile_id = $1 AND status = 'pending' ORDER BY created_at, id`,
		profileID)
}

// ListByProfile returns a profile's withdrawals, newest first.
func (r *WithdrawalRepository) ListByProfile(ctx context.Context, profileID int64, limit int) ([]*model.Withdrawal, error) {
	return r.list(ctx, "list withdrawals",
		`SELECT `+withdrawalColumns+` FROM withdrawals WHERE profile_id = $1 ORDER BY created_at DESC, id DESC LIMIT $2`,
		profileID, limit)
}

// CountCompleted counts delivered withdrawals of a profile.
func (r *WithdrawalRepository) CountCompleted(ctx context.Context, profileID int64) (int, error) {
	var n int
	err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM withdrawals WHERE profile_id = $1 AND status = 'completed'`, profileID).Scan(&n)
	if err != nil {
		return 0, wrap("count withdrawals", err)
	}
	return n, nil
}

func (r *WithdrawalRepository) transition(ctx context.Context, op string, id int64, status model.WithdrawalStatus) (bool, error) {
	const query = `
		UPDATE withdrawals SET status = $2, updated_at = NOW()
		WHERE id = $1 AND status = 'pending'
	`
	tag, err := r.db.Exec(ctx, query, id, status)
	if err != nil {
		return false, wrap(op, err)
	}
	return tag.RowsAffected() == 1, nil
}

// MarkCompleted moves a pending row to completed. Reports whether it moved.
func (r *WithdrawalRepository) MarkCompleted(ctx context.Context, id int64) (bool, error) {
	return r.transition(ctx, "complete withdrawal", id, model.WithdrawalCompleted)
}

// MarkFailed moves a pending row to failed. Reports whether it moved.
func (r *WithdrawalRepository) MarkFailed(ctx context.Context, id int64) (bool, error) {
	return r.transition(ctx, "fail withdrawal", id, model.WithdrawalFailed)
}

// MarkFailSeen records the first observation of an explicit failure flag.
func (r *WithdrawalRepository) MarkFailSeen(ctx context.Context, id int64, at time.Time) (bool, error) {
	const query = `
		UPDATE withdrawals SET fail_seen_at = $2, updated_at = NOW()
		WHERE id = $1 AND status = 'pending' AND fail_seen_at IS NULL
	`
	tag, err := r.db.Exec(ctx, query, id, at)
	if err != nil {
		return false, wrap("mark withdrawal failure seen", err)
	}
	return tag.RowsAffected() == 1, nil
}

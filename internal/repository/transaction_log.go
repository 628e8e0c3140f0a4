package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"case-market/internal/model"
)

// LogEntry is the input for an audit record.
type LogEntry struct {
	ProfileID  int64
	ActionType string
	Details    string
	Amount     decimal.Decimal
	ItemID     *int64
	Roll       *float64
}

// TransactionLogRepository handles the append-only audit trail and contract records.
type TransactionLogRepository struct {
	db DBTX
}

// NewTransactionLogRepository creates a new TransactionLogRepository instance.
func NewTransactionLogRepository(db DBTX) *TransactionLogRepository {
	return &TransactionLogRepository{db: db}
}

// Append writes one audit record.
func (r *TransactionLogRepository) Append(ctx context.Context, e LogEntry) (*model.TransactionLog, error) {
	const query = `
		INSERT INTO transaction_logs (profile_id, action_type, details, amount, item_id, roll)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, profile_id, action_type, details, amount, item_id, roll, created_at
	`

	rows, err := r.db.Query(ctx, query, e.ProfileID, e.ActionType, e.Details, e.Amount, e.ItemID, e.Roll)
	if err != nil {
		return nil, wrap("append transaction log", err)
	}
	entry, err := pgx.CollectExactlyOneRow(rows, pgx.RowToAddrOfStructByPos[model.TransactionLog])
	if err != nil {
		return nil, wrap("append transaction log", err)
	}
	return entry, nil
}

// ListByProfile returns the newest audit records of a profile.
func (r *TransactionLogRepository) ListByProfile(ctx context.Context, profileID int64, limit int) ([]*model.TransactionLog, error) {
	const query = `
		SELECT id, profile_id, action_type, details, amount, item_id, roll, created_at
		FROM transaction_logs
		WHERE profile_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`

	rows, err := r.db.Query(ctx, query, profileID, limit)
	if err != nil {
		return nil, wrap("list transaction logs", err)
	}
	logs, err := pgx.CollectRows(rows, pgx.RowToAddrOfStructByPos[model.TransactionLog])
	if err != nil {
		return nil, wrap("scan transaction logs", err)
	}
	return logs, nil
}

// CreateContract stores a contract outcome.
func (r *TransactionLogRepository) CreateContract(ctx context.Context, c *model.Contract) (*model.Contract, error) {
	const query = `
		INSERT INTO contracts (profile_id, total_items_value, used_balance, multiplier, result_item_id)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, profile_id, total_items_value, used_balance, multiplier, result_item_id, created_at
	`

	rows, err := r.db.Query(ctx, query, c.ProfileID, c.TotalItemsValue, c.UsedBalance, c.Multiplier, c.ResultItemID)
	if err != nil {
		return nil, wrap("create contract", err)
	}
	created, err := pgx.CollectExactlyOneRow(rows, pgx.RowToAddrOfStructByPos[model.Contract])
	if err != nil {
		return nil, wrap("create contract", err)
	}
	return created, nil
}

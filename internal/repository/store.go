// Package repository provides data access layer implementations.
package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Common errors for repository operations.
var (
	ErrProfileNotFound       = errors.New("profile not found")
	ErrCaseNotFound          = errors.New("case not found")
	ErrItemNotFound          = errors.New("item not found")
	ErrInventoryItemNotFound = errors.New("inventory item not found")
	ErrWithdrawalNotFound    = errors.New("withdrawal not found")
	ErrDuplicateWithdrawal   = errors.New("withdrawal already pending for inventory item")
)

// DBTX is the query surface shared by *pgxpool.Pool and pgx.Tx.
type DBTX interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Repos bundles every repository bound to one DBTX.
type Repos struct {
	Profiles    *ProfileRepository
	Items       *ItemRepository
	Cases       *CaseRepository
	Inventory   *InventoryRepository
	Withdrawals *WithdrawalRepository
	Logs        *TransactionLogRepository
}

func newRepos(db DBTX) *Repos {
	return &Repos{
		Profiles:    NewProfileRepository(db),
		Items:       NewItemRepository(db),
		Cases:       NewCaseRepository(db),
		Inventory:   NewInventoryRepository(db),
		Withdrawals: NewWithdrawalRepository(db),
		Logs:        NewTransactionLogRepository(db),
	}
}

// Store exposes pool-bound repositories and transactional units of work.
type Store struct {
	*Repos
	pool *pgxpool.Pool
}

// NewStore creates a Store over the pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{Repos: newRepos(pool), pool: pool}
}

// InTx runs fn inside one transaction. Any error rolls everything back.
// Row locks taken with FOR UPDATE inside fn are held until fn returns.
func (s *Store) InTx(ctx context.Context, fn func(r *Repos) error) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		return fn(newRepos(tx))
	})
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func wrap(op string, err error) error {
	return fmt.Errorf("failed to %s: %w", op, err)
}

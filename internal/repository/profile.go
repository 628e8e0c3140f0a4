package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"case-market/internal/model"
)

const profileColumns = `
	id, steam_id, username, avatar_url, balance, trade_url,
	cases_opened, upgrades_count, contracts_count, withdrawals_count,
	withdraw_blocked, favorite_case_id, best_drop_item_id, last_steam_sync,
	created_at, updated_at`

// Counter names a profile counter column.
type Counter string

// Profile counters.
const (
	CounterCasesOpened Counter = "cases_opened"
	CounterUpgrades    Counter = "upgrades_count"
	CounterContracts   Counter = "contracts_count"
	CounterWithdrawals Counter = "withdrawals_count"
)

// ProfileRepository handles profile persistence.
type ProfileRepository struct {
	db DBTX
}

// NewProfileRepository creates a new ProfileRepository instance.
func NewProfileRepository(db DBTX) *ProfileRepository {
	return &ProfileRepository{db: db}
}

func scanProfile(row pgx.Row) (*model.Profile, error) {
	var p model.Profile
	err := row.Scan(
		&p.ID,
		&p.SteamID,
		&p.Username,
		&p.AvatarURL,
		&p.Balance,
		&p.TradeURL,
		&p.CasesOpened,
		&p.UpgradesCount,
		&p.ContractsCount,
		&p.WithdrawalsCount,
		&p.WithdrawBlocked,
		&p.FavoriteCaseID,
		&p.BestDropItemID,
		&p.LastSteamSync,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrProfileNotFound
		}
		return nil, err
	}
	return &p, nil
}

// Create creates a profile for a Steam identity with zero balance.
func (r *ProfileRepository) Create(ctx context.Context, steamID, username string) (*model.Profile, error) {
	const query = `
		INSERT INTO profiles (steam_id, username)
		VALUES ($1, $2)
		RETURNING ` + profileColumns

	p, err := scanProfile(r.db.QueryRow(ctx, query, steamID, username))
	if err != nil {
		return nil, wrap("create profile", err)
	}
	return p, nil
}

// GetByID retrieves a profile by id.
// Returns ErrProfileNotFound if the profile does not exist.
func (r *ProfileRepository) GetByID(ctx context.Context, id int64) (*model.Profile, error) {
	const query = `SELECT ` + profileColumns + ` FROM profiles WHERE id = $1`

	p, err := scanProfile(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, ErrProfileNotFound) {
			return nil, err
		}
		return nil, wrap("get profile", err)
	}
	return p, nil
}

// GetBySteamID retrieves a profile by SteamID64.
func (r *ProfileRepository) GetBySteamID(ctx context.Context, steamID string) (*model.Profile, error) {
	const query = `SELECT ` + profileColumns + ` FROM profiles WHERE steam_id = $1`

	p, err := scanProfile(r.db.QueryRow(ctx, query, steamID))
	if err != nil {
		if errors.Is(err, ErrProfileNotFound) {
			return nil, err
		}
		return nil, wrap("get profile by steam id", err)
	}
	return p, nil
}

// GetOrCreate retrieves a profile by SteamID64, creating one if it doesn't exist.
func (r *ProfileRepository) GetOrCreate(ctx context.Context, steamID, username string) (*model.Profile, bool, error) {
	p, err := r.GetBySteamID(ctx, steamID)
	if err == nil {
		return p, false, nil
	}
	if !errors.Is(err, ErrProfileNotFound) {
		return nil, false, err
	}

	p, err = r.Create(ctx, steamID, username)
	if err != nil {
		// Another request may have created it first.
		if !isUniqueViolation(err) {
			return nil, false, err
		}
		p, err = r.GetBySteamID(ctx, steamID)
		if err != nil {
			return nil, false, err
		}
		return p, false, nil
	}

	return p, true, nil
}

// LockByID selects the profile row FOR UPDATE. Must run inside Store.InTx.
func (r *ProfileRepository) LockByID(ctx context.Context, id int64) (*model.Profile, error) {
	const query = `SELECT ` + profileColumns + ` FROM profiles WHERE id = $1 FOR UPDATE`

	p, err := scanProfile(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, ErrProfileNotFound) {
			return nil, err
		}
		return nil, wrap("lock profile", err)
	}
	return p, nil
}

// AddBalance adds delta (possibly negative) and returns the new balance.
func (r *ProfileRepository) AddBalance(ctx context.Context, id int64, delta decimal.Decimal) (decimal.Decimal, error) {
	const query = `
		UPDATE profiles
		SET balance = balance + $2, updated_at = NOW()
		WHERE id = $1
		RETURNING balance
	`

	var balance decimal.Decimal
	if err := r.db.QueryRow(ctx, query, id, delta).Scan(&balance); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return decimal.Zero, ErrProfileNotFound
		}
		return decimal.Zero, wrap("update balance", err)
	}
	return balance, nil
}

// Increment bumps one counter by one.
func (r *ProfileRepository) Increment(ctx context.Context, id int64, counter Counter) error {
	var query string
	switch counter {
	case CounterCasesOpened, CounterUpgrades, CounterContracts, CounterWithdrawals:
		query = `UPDATE profiles SET ` + string(counter) + ` = ` + string(counter) + ` + 1, updated_at = NOW() WHERE id = $1`
	default:
		return wrap("increment counter", errors.New("unknown counter "+string(counter)))
	}

	tag, err := r.db.Exec(ctx, query, id)
	if err != nil {
		return wrap("increment counter", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrProfileNotFound
	}
	return nil
}

// SetProjections stores the cached favorite case and best drop.
func (r *ProfileRepository) SetProjections(ctx context.Context, id int64, favoriteCaseID, bestDropItemID *int64) error {
	const query = `
		UPDATE profiles
		SET favorite_case_id = $2, best_drop_item_id = $3, updated_at = NOW()
		WHERE id = $1
	`
	if _, err := r.db.Exec(ctx, query, id, favoriteCaseID, bestDropItemID); err != nil {
		return wrap("set profile projections", err)
	}
	return nil
}

// RecomputeProjections re-derives favorite case and best drop from history
// and stores them. The favorite is the case with most opens; among equals the
// one that reached the count first.
func (r *ProfileRepository) RecomputeProjections(ctx context.Context, id int64) (*int64, *int64, error) {
	const favoriteQuery = `
		SELECT case_id FROM case_open_stats
		WHERE profile_id = $1 AND opens > 0
		ORDER BY opens DESC, updated_at ASC
		LIMIT 1
	`
	const bestQuery = `
		SELECT i.id FROM transaction_logs t
		JOIN items i ON i.id = t.item_id
		WHERE t.profile_id = $1
		ORDER BY i.price DESC, t.created_at ASC
		LIMIT 1
	`

	var favorite, best *int64
	if err := r.db.QueryRow(ctx, favoriteQuery, id).Scan(&favorite); err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return nil, nil, wrap("derive favorite case", err)
	}
	if err := r.db.QueryRow(ctx, bestQuery, id).Scan(&best); err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return nil, nil, wrap("derive best drop", err)
	}

	if err := r.SetProjections(ctx, id, favorite, best); err != nil {
		return nil, nil, err
	}
	return favorite, best, nil
}

// UpdateSteam stores a fresh identity-provider snapshot.
func (r *ProfileRepository) UpdateSteam(ctx context.Context, id int64, username, avatarURL string, syncedAt time.Time) error {
	const query = `
		UPDATE profiles
		SET username = COALESCE(NULLIF($2, ''), username),
			avatar_url = COALESCE(NULLIF($3, ''), avatar_url),
			last_steam_sync = $4,
			updated_at = NOW()
		WHERE id = $1
	`
	tag, err := r.db.Exec(ctx, query, id, username, avatarURL, syncedAt)
	if err != nil {
		return wrap("update steam profile", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrProfileNotFound
	}
	return nil
}

// SetTradeURL stores a validated trade URL.
func (r *ProfileRepository) SetTradeURL(ctx context.Context, id int64, tradeURL string) error {
	const query = `UPDATE profiles SET trade_url = $2, updated_at = NOW() WHERE id = $1`

	tag, err := r.db.Exec(ctx, query, id, tradeURL)
	if err != nil {
		return wrap("set trade url", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrProfileNotFound
	}
	return nil
}

// SetWithdrawBlocked toggles the withdrawal block flag.
func (r *ProfileRepository) SetWithdrawBlocked(ctx context.Context, id int64, blocked bool) error {
	const query = `UPDATE profiles SET withdraw_blocked = $2, updated_at = NOW() WHERE id = $1`

	tag, err := r.db.Exec(ctx, query, id, blocked)
	if err != nil {
		return wrap("set withdraw block", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrProfileNotFound
	}
	return nil
}

// CaseOpens returns how often the profile opened the case.
func (r *ProfileRepository) CaseOpens(ctx context.Context, profileID, caseID int64) (int, error) {
	const query = `SELECT opens FROM case_open_stats WHERE profile_id = $1 AND case_id = $2`

	var opens int
	if err := r.db.QueryRow(ctx, query, profileID, caseID).Scan(&opens); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, nil
		}
		return 0, wrap("get case opens", err)
	}
	return opens, nil
}

// RecordCaseOpen increments the (profile, case) open counter and returns the new count.
func (r *ProfileRepository) RecordCaseOpen(ctx context.Context, profileID, caseID int64) (int, error) {
	const query = `
		INSERT INTO case_open_stats (profile_id, case_id, opens, updated_at)
		VALUES ($1, $2, 1, NOW())
		ON CONFLICT (profile_id, case_id)
		DO UPDATE SET opens = case_open_stats.opens + 1, updated_at = NOW()
		RETURNING opens
	`

	var opens int
	if err := r.db.QueryRow(ctx, query, profileID, caseID).Scan(&opens); err != nil {
		return 0, wrap("record case open", err)
	}
	return opens, nil
}

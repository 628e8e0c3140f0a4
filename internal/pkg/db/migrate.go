package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rs/zerolog/log"
)

// Execer is satisfied by *pgxpool.Pool, *Pool and pgx.Tx.
type Execer interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
}

type migration struct {
	name string
	sql  string
}

// Every statement is idempotent so the list can be replayed on each start.
var migrations = []migration{
	{"rarities", `
		CREATE TABLE IF NOT EXISTS rarities (
			id BIGSERIAL PRIMARY KEY,
			name VARCHAR(64) NOT NULL,
			color VARCHAR(16) NOT NULL DEFAULT '#ffffff'
		);
		CREATE UNIQUE INDEX IF NOT EXISTS idx_rarities_name_lower ON rarities (LOWER(name));
	`},
	{"items", `
		CREATE TABLE IF NOT EXISTS items (
			id BIGSERIAL PRIMARY KEY,
			weapon_name VARCHAR(128) NOT NULL,
			skin_name VARCHAR(128) NOT NULL DEFAULT '',
			market_hash_name VARCHAR(255),
			price NUMERIC(12,2) NOT NULL DEFAULT 0 CHECK (price >= 0),
			rarity_id BIGINT REFERENCES rarities(id) ON DELETE SET NULL,
			image_path TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE UNIQUE INDEX IF NOT EXISTS idx_items_weapon_skin ON items (weapon_name, skin_name);
		CREATE INDEX IF NOT EXISTS idx_items_market_hash_name ON items (market_hash_name);
		CREATE INDEX IF NOT EXISTS idx_items_price ON items (price DESC);
	`},
	{"cases", `
		CREATE TABLE IF NOT EXISTS case_sections (
			id BIGSERIAL PRIMARY KEY,
			name VARCHAR(100) NOT NULL UNIQUE,
			position INT NOT NULL DEFAULT 0
		);
		CREATE TABLE IF NOT EXISTS cases (
			id BIGSERIAL PRIMARY KEY,
			title VARCHAR(100) NOT NULL,
			slug VARCHAR(100) NOT NULL UNIQUE,
			price NUMERIC(12,2) NOT NULL,
			old_price NUMERIC(12,2),
			active BOOLEAN NOT NULL DEFAULT TRUE,
			section_id BIGINT REFERENCES case_sections(id) ON DELETE SET NULL,
			image_path TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			CONSTRAINT chk_cases_active_price CHECK (NOT active OR price > 0)
		);
		CREATE TABLE IF NOT EXISTS case_items (
			id BIGSERIAL PRIMARY KEY,
			case_id BIGINT NOT NULL REFERENCES cases(id) ON DELETE CASCADE,
			item_id BIGINT NOT NULL REFERENCES items(id) ON DELETE RESTRICT,
			drop_chance DOUBLE PRECISION NOT NULL DEFAULT 1 CHECK (drop_chance > 0 AND drop_chance <= 1),
			never_drop BOOLEAN NOT NULL DEFAULT FALSE,
			UNIQUE (case_id, item_id)
		);
	`},
	{"profiles", `
		CREATE TABLE IF NOT EXISTS profiles (
			id BIGSERIAL PRIMARY KEY,
			steam_id VARCHAR(32) NOT NULL UNIQUE,
			username VARCHAR(150) NOT NULL DEFAULT '',
			avatar_url TEXT NOT NULL DEFAULT '',
			balance NUMERIC(12,2) NOT NULL DEFAULT 0 CHECK (balance >= 0),
			trade_url TEXT NOT NULL DEFAULT '',
			cases_opened INT NOT NULL DEFAULT 0,
			upgrades_count INT NOT NULL DEFAULT 0,
			contracts_count INT NOT NULL DEFAULT 0,
			withdrawals_count INT NOT NULL DEFAULT 0,
			withdraw_blocked BOOLEAN NOT NULL DEFAULT FALSE,
			favorite_case_id BIGINT REFERENCES cases(id) ON DELETE SET NULL,
			best_drop_item_id BIGINT REFERENCES items(id) ON DELETE SET NULL,
			last_steam_sync TIMESTAMPTZ,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE TABLE IF NOT EXISTS case_open_stats (
			profile_id BIGINT NOT NULL REFERENCES profiles(id) ON DELETE CASCADE,
			case_id BIGINT NOT NULL REFERENCES cases(id) ON DELETE CASCADE,
			opens INT NOT NULL DEFAULT 0,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			PRIMARY KEY (profile_id, case_id)
		);
	`},
	{"inventory", `
		CREATE TABLE IF NOT EXISTS inventory_items (
			id BIGSERIAL PRIMARY KEY,
			profile_id BIGINT NOT NULL REFERENCES profiles(id) ON DELETE CASCADE,
			item_id BIGINT NOT NULL REFERENCES items(id) ON DELETE RESTRICT,
			pending BOOLEAN NOT NULL DEFAULT FALSE,
			locked_at TIMESTAMPTZ,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_inventory_profile ON inventory_items (profile_id, created_at DESC);
		CREATE INDEX IF NOT EXISTS idx_inventory_pending ON inventory_items (pending) WHERE pending;
	`},
	{"withdrawals", `
		CREATE TABLE IF NOT EXISTS withdrawals (
			id BIGSERIAL PRIMARY KEY,
			profile_id BIGINT NOT NULL REFERENCES profiles(id) ON DELETE CASCADE,
			inventory_item_id BIGINT REFERENCES inventory_items(id) ON DELETE SET NULL,
			item_id BIGINT NOT NULL REFERENCES items(id) ON DELETE RESTRICT,
			custom_id VARCHAR(64) NOT NULL UNIQUE,
			offer_id VARCHAR(64) NOT NULL DEFAULT '',
			price_cents BIGINT NOT NULL,
			status VARCHAR(16) NOT NULL DEFAULT 'pending'
				CHECK (status IN ('pending', 'completed', 'failed')),
			fail_seen_at TIMESTAMPTZ,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE UNIQUE INDEX IF NOT EXISTS idx_withdrawals_one_pending
			ON withdrawals (inventory_item_id) WHERE status = 'pending';
		CREATE INDEX IF NOT EXISTS idx_withdrawals_status ON withdrawals (status, created_at);
	`},
	{"audit", `
		CREATE TABLE IF NOT EXISTS transaction_logs (
			id BIGSERIAL PRIMARY KEY,
			profile_id BIGINT NOT NULL REFERENCES profiles(id) ON DELETE CASCADE,
			action_type VARCHAR(20) NOT NULL,
			details TEXT NOT NULL,
			amount NUMERIC(12,2) NOT NULL DEFAULT 0,
			item_id BIGINT REFERENCES items(id) ON DELETE SET NULL,
			roll DOUBLE PRECISION,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_transaction_logs_profile ON transaction_logs (profile_id, created_at DESC);
		CREATE TABLE IF NOT EXISTS contracts (
			id BIGSERIAL PRIMARY KEY,
			profile_id BIGINT NOT NULL REFERENCES profiles(id) ON DELETE CASCADE,
			total_items_value NUMERIC(12,2) NOT NULL,
			used_balance NUMERIC(12,2) NOT NULL,
			multiplier NUMERIC(4,1) NOT NULL,
			result_item_id BIGINT REFERENCES items(id) ON DELETE SET NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
	`},
}

// Migrate applies the schema in order.
func Migrate(ctx context.Context, db Execer) error {
	log.Info().Msg("Running database migrations...")

	for i, m := range migrations {
		if _, err := db.Exec(ctx, m.sql); err != nil {
			return fmt.Errorf("failed to apply migration %d (%s): %w", i+1, m.name, err)
		}
		log.Info().Int("step", i+1).Str("name", m.name).Msg("Migration applied")
	}

	log.Info().Msg("All migrations completed successfully")
	return nil
}

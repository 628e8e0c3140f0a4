// Package service tests use testcontainers-go for PostgreSQL and testify
// mocks for the marketplace and identity provider.
package service

import (
	"context"
	"os/exec"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"case-market/internal/model"
	"case-market/internal/pkg/db"
	"case-market/internal/repository"
)

// checkDockerAvailable checks if Docker is available and running
func checkDockerAvailable() bool {
	return exec.Command("docker", "info").Run() == nil
}

// setupTestStore starts PostgreSQL with the full schema applied.
// Skips the test if Docker is not available
func setupTestStore(t *testing.T) *repository.Store {
	t.Helper()
	if !checkDockerAvailable() {
		t.Skip("Docker is not available, skipping integration test")
	}

	ctx := context.Background()
	pgContainer, err := postgres.Run(ctx,
		"postgres:15-alpine",
		postgres.WithDatabase("testdb"),
		postgres.WithUsername("testuser"),
		postgres.WithPassword("testpass"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = pgContainer.Terminate(ctx) })

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	pool, err := pgxpool.New(ctx, connStr)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	require.NoError(t, db.Migrate(ctx, pool))
	return repository.NewStore(pool)
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

const testSteamID = "76561197960278073" // account id 12345

func seedProfile(t *testing.T, s *repository.Store, steamID, balance string) *model.Profile {
	t.Helper()
	ctx := context.Background()
	p, err := s.Profiles.Create(ctx, steamID, "player")
	require.NoError(t, err)
	if b := dec(balance); !b.IsZero() {
		_, err = s.Profiles.AddBalance(ctx, p.ID, b)
		require.NoError(t, err)
	}
	p, err = s.Profiles.GetByID(ctx, p.ID)
	require.NoError(t, err)
	return p
}

func seedItem(t *testing.T, s *repository.Store, weapon, skin, price string) *model.Item {
	t.Helper()
	hash := weapon + " | " + skin
	it, _, err := s.Items.GetOrCreate(context.Background(), weapon, skin, dec(price), &hash)
	require.NoError(t, err)
	return it
}

func seedCase(t *testing.T, s *repository.Store, slug, price string) *model.Case {
	t.Helper()
	c, err := s.Cases.Create(context.Background(), &model.Case{Title: slug, Slug: slug, Price: dec(price), Active: true})
	require.NoError(t, err)
	return c
}

func link(t *testing.T, s *repository.Store, c *model.Case, it *model.Item, chance float64) {
	t.Helper()
	require.NoError(t, s.Cases.UpsertItem(context.Background(), c.ID, it.ID, chance))
}

func grant(t *testing.T, s *repository.Store, p *model.Profile, it *model.Item) *model.InventoryItem {
	t.Helper()
	inv, err := s.Inventory.Create(context.Background(), p.ID, it.ID)
	require.NoError(t, err)
	return inv
}

func balanceOf(t *testing.T, s *repository.Store, profileID int64) decimal.Decimal {
	t.Helper()
	p, err := s.Profiles.GetByID(context.Background(), profileID)
	require.NoError(t, err)
	return p.Balance
}

func inventoryIDs(t *testing.T, s *repository.Store, profileID int64) []int64 {
	t.Helper()
	items, err := s.Inventory.ListByProfile(context.Background(), profileID)
	require.NoError(t, err)
	ids := make([]int64, 0, len(items))
	for _, inv := range items {
		ids = append(ids, inv.ID)
	}
	return ids
}

// scriptedRoller returns queued Uniform values in order, then lo. Intn
// always returns 0.
type scriptedRoller struct {
	mu     sync.Mutex
	values []float64
}

func newScriptedRoller(values ...float64) *scriptedRoller {
	return &scriptedRoller{values: values}
}

func (r *scriptedRoller) Uniform(lo, hi float64) float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.values) == 0 {
		return lo
	}
	v := r.values[0]
	r.values = r.values[1:]
	return v
}

func (r *scriptedRoller) Intn(n int) int {
	return 0
}

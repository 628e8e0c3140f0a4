package catalog

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"case-market/internal/config"
	"case-market/internal/game/pricing"
	"case-market/internal/model"
	"case-market/internal/pkg/db"
	"case-market/internal/repository"
)

func setupStore(t *testing.T) *repository.Store {
	t.Helper()
	if err := exec.Command("docker", "info").Run(); err != nil {
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

// catalogServer serves the fixtures with image links pointing back at itself.
// The gloves page is missing to exercise sub-page failures.
func catalogServer(t *testing.T) *httptest.Server {
	t.Helper()
	var srv *httptest.Server

	fixture := func(name string) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			raw, err := os.ReadFile(filepath.Join("testdata", name))
			if err != nil {
				http.Error(w, err.Error(), http.StatusInternalServerError)
				return
			}
			body := strings.ReplaceAll(string(raw), "http://img.test", srv.URL)
			w.Header().Set("Content-Type", "text/html; charset=utf-8")
			_, _ = w.Write([]byte(body))
		}
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/cases/chroma", fixture("listing.html"))
	mux.HandleFunc("/cases/chroma/knives", fixture("knives.html"))
	mux.HandleFunc("/cases/empty", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("<html><body></body></html>"))
	})
	mux.HandleFunc("/cases/down", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})
	mux.HandleFunc("/items/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write([]byte("\x89PNG fake"))
	})

	srv = httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newTestImporter(t *testing.T, store *repository.Store) (*Importer, string) {
	t.Helper()
	media := t.TempDir()
	return NewImporter(store, config.CatalogConfig{MediaDir: media, Timeout: 5 * time.Second}), media
}

func seedCase(t *testing.T, store *repository.Store, slug, price string) *model.Case {
	t.Helper()
	c, err := store.Cases.Create(context.Background(), &model.Case{
		Title:  slug,
		Slug:   slug,
		Price:  decimal.RequireFromString(price),
		Active: true,
	})
	require.NoError(t, err)
	return c
}

func linksByWeapon(t *testing.T, store *repository.Store, caseID int64) map[string]*model.CaseItem {
	t.Helper()
	links, err := store.Cases.Items(context.Background(), caseID, false)
	require.NoError(t, err)
	out := make(map[string]*model.CaseItem, len(links))
	for _, l := range links {
		out[l.Item.WeaponName] = l
	}
	return out
}

func TestImporter_Import(t *testing.T) {
	store := setupStore(t)
	srv := catalogServer(t)
	im, media := newTestImporter(t, store)
	ctx := context.Background()

	c := seedCase(t, store, "chroma", "10")

	res, err := im.Import(ctx, "chroma", srv.URL+"/cases/chroma")
	require.NoError(t, err)
	assert.Equal(t, 4, res.Imported, "three listing items and one deduplicated knife")
	assert.Empty(t, res.Errors)

	links := linksByWeapon(t, store, c.ID)
	require.Len(t, links, 4)

	ak := links["AK-47"]
	require.NotNil(t, ak)
	assert.True(t, ak.Item.Price.Equal(decimal.RequireFromString("12.50")))
	require.NotNil(t, ak.Item.MarketHashName)
	assert.Equal(t, "AK-47 | Redline (Battle-Scarred)", *ak.Item.MarketHashName)
	require.NotNil(t, ak.Item.Rarity)
	assert.Equal(t, "Classified", ak.Item.Rarity.Name)
	assert.Equal(t, "items/ak-redline.png", ak.Item.ImagePath)
	assert.FileExists(t, filepath.Join(media, "items", "ak-redline.png"))

	for name, l := range links {
		assert.Equal(t, pricing.DropChance(c.Price, l.Item.Price), l.DropChance, name)
	}
	assert.Equal(t, 1.0, links["P250"].DropChance, "items cheaper than the case always qualify")

	knife := links["★ Karambit"]
	require.NotNil(t, knife)
	assert.Equal(t, "Safari Mesh", knife.Item.SkinName)
}

func TestImporter_ReimportRefreshesPriceAndKeepsNeverDrop(t *testing.T) {
	store := setupStore(t)
	srv := catalogServer(t)
	im, _ := newTestImporter(t, store)
	ctx := context.Background()

	c := seedCase(t, store, "chroma", "10")
	_, err := im.Import(ctx, "chroma", srv.URL+"/cases/chroma")
	require.NoError(t, err)

	ak := linksByWeapon(t, store, c.ID)["AK-47"]
	require.NoError(t, store.Cases.SetNeverDrop(ctx, c.ID, ak.ItemID, true))
	require.NoError(t, store.Items.UpdatePrice(ctx, ak.ItemID, decimal.NewFromInt(99)))

	res, err := im.Import(ctx, "chroma", srv.URL+"/cases/chroma")
	require.NoError(t, err)
	assert.Equal(t, 4, res.Imported)

	after := linksByWeapon(t, store, c.ID)
	require.Len(t, after, 4, "re-import does not duplicate links")
	assert.True(t, after["AK-47"].NeverDrop)
	assert.True(t, after["AK-47"].Item.Price.Equal(decimal.RequireFromString("12.50")))
}

func TestImporter_MainListingFailures(t *testing.T) {
	store := setupStore(t)
	srv := catalogServer(t)
	im, _ := newTestImporter(t, store)
	ctx := context.Background()

	seedCase(t, store, "chroma", "10")

	_, err := im.Import(ctx, "chroma", srv.URL+"/cases/empty")
	assert.ErrorIs(t, err, ErrNothingParsed)

	_, err = im.Import(ctx, "chroma", srv.URL+"/cases/down")
	assert.Error(t, err)

	_, err = im.Import(ctx, "missing", srv.URL+"/cases/chroma")
	assert.ErrorIs(t, err, repository.ErrCaseNotFound)
}

func TestImporter_Recalculate(t *testing.T) {
	store := setupStore(t)
	srv := catalogServer(t)
	im, _ := newTestImporter(t, store)
	ctx := context.Background()

	c := seedCase(t, store, "chroma", "10")
	_, err := im.Import(ctx, "chroma", srv.URL+"/cases/chroma")
	require.NoError(t, err)

	n, err := im.Recalculate(ctx, "chroma")
	require.NoError(t, err)
	assert.Zero(t, n, "fresh import is already consistent")

	p250 := linksByWeapon(t, store, c.ID)["P250"]
	require.NoError(t, store.Items.UpdatePrice(ctx, p250.ItemID, decimal.NewFromInt(50)))

	n, err = im.RecalculateAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got := linksByWeapon(t, store, c.ID)["P250"]
	assert.Equal(t, pricing.DropChance(c.Price, decimal.NewFromInt(50)), got.DropChance)
	assert.Less(t, got.DropChance, 1.0)
}

// Package catalog imports case contents from the external catalog site and
// keeps cached drop chances in line with prices.
package catalog

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"case-market/internal/config"
	"case-market/internal/game/pricing"
	"case-market/internal/model"
	"case-market/internal/repository"
)

// ErrNothingParsed is returned when the main listing yields no item.
var ErrNothingParsed = errors.New("no items parsed from catalog page")

const maxPageBytes = 8 << 20

// subPages are fetched next to the main listing. The item kind is the page
// name without its plural "s".
var subPages = []string{"knives", "gloves"}

// Result summarises one import run.
type Result struct {
	Imported int      `json:"imported"`
	Errors   []string `json:"errors"`
}

// Importer fetches catalog pages and persists their items into a case.
type Importer struct {
	store     *repository.Store
	http      *http.Client
	images    *ImageStore
	userAgent string
}

// NewImporter creates an Importer.
func NewImporter(store *repository.Store, cfg config.CatalogConfig) *Importer {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	ua := cfg.UserAgent
	if ua == "" {
		ua = "Mozilla/5.0 (importer)"
	}
	hc := &http.Client{Timeout: timeout}
	return &Importer{
		store:     store,
		http:      hc,
		images:    NewImageStore(cfg.MediaDir, ua, hc),
		userAgent: ua,
	}
}

func (im *Importer) fetch(ctx context.Context, pageURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", im.userAgent)

	resp, err := im.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("http %d", resp.StatusCode)
	}
	return io.ReadAll(io.LimitReader(resp.Body, maxPageBytes))
}

// Fetch downloads and parses the main listing and the knife and glove
// sub-pages. Sub-page failures only shrink the result.
func (im *Importer) Fetch(ctx context.Context, pageURL string) ([]ParsedItem, error) {
	body, err := im.fetch(ctx, pageURL)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", pageURL, err)
	}

	items, cards, err := ParseListing(bytes.NewReader(body), KindNormal, false)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", pageURL, err)
	}
	if len(items) == 0 {
		return nil, fmt.Errorf("%w: %d cards on %s", ErrNothingParsed, cards, pageURL)
	}

	base := strings.TrimRight(pageURL, "/")
	for _, page := range subPages {
		kind := Kind(strings.TrimSuffix(page, "s"))
		sub, err := im.fetch(ctx, base+"/"+page)
		if err != nil {
			log.Warn().Err(err).Str("page", page).Msg("Catalog sub-page unavailable")
			continue
		}
		special, _, err := ParseListing(bytes.NewReader(sub), kind, true)
		if err != nil {
			log.Warn().Err(err).Str("page", page).Msg("Catalog sub-page unparseable")
			continue
		}
		items = append(items, dedupeCheapest(special)...)
	}
	return items, nil
}

// Import fills the case identified by slug with the items listed at pageURL.
// Per-item failures are collected in the result; only an unreachable or
// empty main listing is an error.
func (im *Importer) Import(ctx context.Context, slug, pageURL string) (*Result, error) {
	c, err := im.store.Cases.GetBySlug(ctx, slug, false)
	if err != nil {
		return nil, err
	}

	items, err := im.Fetch(ctx, pageURL)
	if err != nil {
		return nil, err
	}
	SortItems(items)

	res := &Result{}
	for _, it := range items {
		if err := im.importOne(ctx, c, it); err != nil {
			log.Warn().Err(err).Str("case", slug).Str("weapon", it.WeaponName).Msg("Catalog item import failed")
			res.Errors = append(res.Errors, fmt.Sprintf("%s: %v", it.WeaponName, err))
			continue
		}
		res.Imported++
	}

	log.Info().
		Str("case", slug).
		Int("parsed", len(items)).
		Int("imported", res.Imported).
		Int("failed", len(res.Errors)).
		Msg("Catalog import finished")
	return res, nil
}

func (im *Importer) importOne(ctx context.Context, c *model.Case, it ParsedItem) error {
	var image string
	if it.ImageURL != "" {
		rel, err := im.images.Save(ctx, it.ImageURL)
		if err != nil {
			log.Debug().Err(err).Str("url", it.ImageURL).Msg("Item image not saved")
		} else {
			image = rel
		}
	}

	var hashName *string
	if it.MarketHashName != "" {
		hashName = &it.MarketHashName
	}

	return im.store.InTx(ctx, func(r *repository.Repos) error {
		item, created, err := r.Items.GetOrCreate(ctx, it.WeaponName, it.SkinName, it.Price, hashName)
		if err != nil {
			return err
		}
		if !created && !item.Price.Equal(it.Price) {
			if err := r.Items.UpdatePrice(ctx, item.ID, it.Price); err != nil {
				return err
			}
		}
		if (item.MarketHashName == nil || *item.MarketHashName == "") && hashName != nil {
			if err := r.Items.SetHashName(ctx, item.ID, *hashName); err != nil {
				return err
			}
		}

		if it.Rarity != "" {
			rarity, err := r.Items.FindOrCreateRarity(ctx, it.Rarity)
			if err != nil {
				return err
			}
			if item.RarityID == nil || *item.RarityID != rarity.ID {
				if err := r.Items.SetRarity(ctx, item.ID, rarity.ID); err != nil {
					return err
				}
			}
		}

		if image != "" {
			if err := r.Items.SetImage(ctx, item.ID, image); err != nil {
				return err
			}
		}

		return r.Cases.UpsertItem(ctx, c.ID, item.ID, pricing.DropChance(c.Price, it.Price))
	})
}

// Recalculate recomputes the drop chances of one case from current prices.
// It returns how many links changed.
func (im *Importer) Recalculate(ctx context.Context, slug string) (int, error) {
	c, err := im.store.Cases.GetBySlug(ctx, slug, false)
	if err != nil {
		return 0, err
	}
	return im.recalculate(ctx, c)
}

// RecalculateAll recomputes drop chances of every case.
func (im *Importer) RecalculateAll(ctx context.Context) (int, error) {
	ids, err := im.store.Cases.ListIDs(ctx)
	if err != nil {
		return 0, err
	}

	total := 0
	for _, id := range ids {
		c, err := im.store.Cases.GetByID(ctx, id)
		if err != nil {
			log.Warn().Err(err).Int64("case_id", id).Msg("Case vanished during recalculation")
			continue
		}
		n, err := im.recalculate(ctx, c)
		if err != nil {
			return total, err
		}
		total += n
	}
	return total, nil
}

func (im *Importer) recalculate(ctx context.Context, c *model.Case) (int, error) {
	links, err := im.store.Cases.Items(ctx, c.ID, false)
	if err != nil {
		return 0, err
	}

	changed := 0
	for _, link := range links {
		if pricing.Matches(link.DropChance, c.Price, link.Item.Price) {
			continue
		}
		if err := im.store.Cases.SetDropChance(ctx, link.ID, pricing.DropChance(c.Price, link.Item.Price)); err != nil {
			return changed, err
		}
		changed++
	}
	return changed, nil
}

package catalog

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func openFixture(t *testing.T, name string) *os.File {
	t.Helper()
	f, err := os.Open(filepath.Join("testdata", name))
	require.NoError(t, err)
	t.Cleanup(func() { f.Close() })
	return f
}

func TestParseListing_MainPage(t *testing.T) {
	items, cards, err := ParseListing(openFixture(t, "listing.html"), KindNormal, false)
	require.NoError(t, err)
	assert.Equal(t, 4, cards)
	require.Len(t, items, 3, "card without a price is dropped")

	ak := items[0]
	assert.Equal(t, "AK-47", ak.WeaponName)
	assert.Equal(t, "Redline", ak.SkinName)
	assert.Equal(t, "Classified", ak.Rarity, "StatTrak title is skipped")
	assert.True(t, ak.Price.Equal(decimal.RequireFromString("12.50")), "range yields its lower bound")
	assert.Equal(t, "http://img.test/items/ak-redline.png?w=256", ak.ImageURL)
	assert.Equal(t, "AK-47 | Redline (Battle-Scarred)", ak.MarketHashName)
	assert.Equal(t, KindNormal, ak.Kind)

	p250 := items[1]
	assert.Equal(t, "http://img.test/items/p250.png", p250.ImageURL, "noscript image is used")
	assert.Equal(t, "Consumer Grade", p250.Rarity)
	assert.True(t, p250.Price.Equal(decimal.RequireFromString("0.03")))

	awp := items[2]
	assert.Equal(t, "Covert", awp.Rarity, "star prefix is trimmed")
}

func TestParseListing_ScopedSubPage(t *testing.T) {
	items, cards, err := ParseListing(openFixture(t, "knives.html"), KindKnife, true)
	require.NoError(t, err)
	assert.Equal(t, 2, cards, "cards outside the listing container are ignored")
	require.Len(t, items, 2)
	for _, it := range items {
		assert.Equal(t, KindKnife, it.Kind)
		assert.Equal(t, "★ Karambit", it.WeaponName)
		assert.Equal(t, "Covert", it.Rarity, "knives keep their label without the star")
		assert.Empty(t, it.MarketHashName, "only weapon links carry a hash name")
	}

	deduped := dedupeCheapest(items)
	require.Len(t, deduped, 1)
	assert.Equal(t, "Safari Mesh", deduped[0].SkinName)
}

func TestParseListing_GlovesAlwaysExtraordinary(t *testing.T) {
	items, _, err := ParseListing(openFixture(t, "gloves.html"), KindGlove, true)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, GloveRarity, items[0].Rarity)
	assert.True(t, items[0].Price.Equal(decimal.RequireFromString("1200.00")))
}

func TestParseListing_EmptyPage(t *testing.T) {
	items, cards, err := ParseListing(strings.NewReader("<html><body><p>maintenance</p></body></html>"), KindNormal, false)
	require.NoError(t, err)
	assert.Zero(t, cards)
	assert.Empty(t, items)
}

func TestParsePrice(t *testing.T) {
	tests := []struct {
		name    string
		texts   []string
		want    string
		wantErr bool
	}{
		{name: "single", texts: []string{"$4.20"}, want: "4.2"},
		{name: "en dash range", texts: []string{"1.20 – 3.40"}, want: "1.2"},
		{name: "hyphen range", texts: []string{"9 - 7"}, want: "7"},
		{name: "thousands separator", texts: []string{"2,500.10"}, want: "2500.1"},
		{name: "min across texts", texts: []string{"5.00", "3.00"}, want: "3"},
		{name: "words only", texts: []string{"No price"}, wantErr: true},
		{name: "empty", texts: nil, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParsePrice(tt.texts)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.True(t, got.Equal(decimal.RequireFromString(tt.want)), "got %s", got)
		})
	}
}

func TestParsePrice_RangeLowerBoundProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		a := rapid.IntRange(0, 1_000_000).Draw(t, "a")
		b := rapid.IntRange(0, 1_000_000).Draw(t, "b")
		da := decimal.New(int64(a), -2)
		db := decimal.New(int64(b), -2)

		got, err := ParsePrice([]string{"$ " + da.StringFixed(2) + " – $ " + db.StringFixed(2)})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !got.Equal(decimal.Min(da, db)) {
			t.Fatalf("got %s, want %s", got, decimal.Min(da, db))
		}
	})
}

func TestHashNameFromHref(t *testing.T) {
	tests := []struct {
		href string
		want string
	}{
		{"/ru/weapons/ak-47/redline", "AK-47 | Redline (Battle-Scarred)"},
		{"https://example.test/weapons/ak-47/redline?x=1", "AK-47 | Redline (Battle-Scarred)"},
		{"/weapons/ak-47", ""},
		{"/knives/karambit/fade", ""},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, HashNameFromHref(tt.href, "AK-47", "Redline"), tt.href)
	}
}

func TestSortItems_Order(t *testing.T) {
	items := []ParsedItem{
		{WeaponName: "a", Rarity: "Mil-Spec"},
		{WeaponName: "b", Rarity: "Consumer Grade"},
		{WeaponName: "c", Rarity: "Covert"},
		{WeaponName: "d", Rarity: "Covert", Kind: KindGlove},
		{WeaponName: "e", Rarity: "Classified"},
		{WeaponName: "f", Rarity: "Restricted"},
		{WeaponName: "g", Rarity: "Covert", Kind: KindKnife},
	}
	SortItems(items)

	var names []string
	for _, it := range items {
		names = append(names, it.WeaponName)
	}
	assert.Equal(t, []string{"d", "g", "c", "e", "f", "a", "b"}, names)
}

func TestSortItems_StableAndMonotone(t *testing.T) {
	rarities := []string{"Covert", "Classified", "Restricted", "Mil-Spec", "Industrial Grade", ""}
	kinds := []Kind{KindNormal, KindNormal, KindNormal, KindKnife, KindGlove}

	rapid.Check(t, func(t *rapid.T) {
		n := rapid.IntRange(0, 40).Draw(t, "n")
		items := make([]ParsedItem, n)
		for i := range items {
			items[i] = ParsedItem{
				Rarity: rapid.SampledFrom(rarities).Draw(t, "rarity"),
				Kind:   rapid.SampledFrom(kinds).Draw(t, "kind"),
				// position is encoded in the price to check stability
				Price: decimal.NewFromInt(int64(i)),
			}
		}
		SortItems(items)

		for i := 1; i < len(items); i++ {
			prev, cur := items[i-1], items[i]
			if prev.rank() > cur.rank() {
				t.Fatalf("rank order broken at %d", i)
			}
			if prev.rank() == cur.rank() && !prev.Price.LessThan(cur.Price) {
				t.Fatalf("relative order of equal ranks changed at %d", i)
			}
		}
	})
}

func TestDedupeCheapest_KeepsFirstAppearanceOrder(t *testing.T) {
	items := []ParsedItem{
		{WeaponName: "Bayonet", Price: decimal.NewFromInt(300)},
		{WeaponName: "Karambit", Price: decimal.NewFromInt(500)},
		{WeaponName: "Bayonet", Price: decimal.NewFromInt(200)},
		{WeaponName: "Karambit", Price: decimal.NewFromInt(700)},
	}
	got := dedupeCheapest(items)
	require.Len(t, got, 2)
	assert.Equal(t, "Bayonet", got[0].WeaponName)
	assert.True(t, got[0].Price.Equal(decimal.NewFromInt(200)))
	assert.Equal(t, "Karambit", got[1].WeaponName)
	assert.True(t, got[1].Price.Equal(decimal.NewFromInt(500)))
}

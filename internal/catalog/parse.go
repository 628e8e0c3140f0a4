package catalog

import (
	"errors"
	"io"
	"net/url"
	"regexp"
	"sort"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/shopspring/decimal"
	"golang.org/x/net/html"
)

// Card markup of the catalog site. The class names are generated by the
// site and matched as substrings.
const (
	selCard       = `a[class*="blzuifkxmlnzwzwpwjzrrtwcse"]`
	selWeapon     = `div[class*="szvsuisjrrqalciyqqzoxoaubw"]`
	selSkin       = `div[class*="zhqwubnajobxbgkzlnptmjmgwn"]`
	selRarity     = `div[class*="nwdmbwsohrhpxvdldicoixwfed"]`
	selPrice      = `div[class*="ribvzntfjepldppjrgkwabviqq"]`
	selSubListing = `div[class*="gasovxczmdwrpzliptyovkjrjp"]`
)

// Kind separates regular case items from the special sub-page items.
type Kind string

// Item kinds.
const (
	KindNormal Kind = "normal"
	KindKnife  Kind = "knife"
	KindGlove  Kind = "glove"
)

// GloveRarity is assigned to every glove regardless of its label.
const GloveRarity = "Extraordinary"

var (
	errNoWeapon = errors.New("no weapon name")
	errNoPrice  = errors.New("no prices found")
)

var priceToken = regexp.MustCompile(`^\d+(\.\d+)?$`)
var priceJunk = regexp.MustCompile(`[^\d.\-]`)

// ParsedItem is one normalised card.
type ParsedItem struct {
	WeaponName     string
	SkinName       string
	Rarity         string
	ImageURL       string
	Price          decimal.Decimal
	Kind           Kind
	MarketHashName string
}

// rarityRank orders items for presentation; unknown rarities sort last.
var rarityRank = map[string]int{
	"Covert":     1,
	"Classified": 2,
	"Restricted": 3,
	"Mil-Spec":   4,
}

const unknownRank = 5

func (p ParsedItem) rank() int {
	if p.Kind == KindKnife || p.Kind == KindGlove {
		return 0
	}
	if r, ok := rarityRank[p.Rarity]; ok {
		return r
	}
	return unknownRank
}

// SortItems orders knives and gloves first, then by rarity rank. Items of
// equal rank keep their relative order.
func SortItems(items []ParsedItem) {
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].rank() < items[j].rank()
	})
}

// parseDocument parses with scripting disabled so <noscript> content is
// available as elements rather than raw text.
func parseDocument(r io.Reader) (*goquery.Document, error) {
	root, err := html.ParseWithOptions(r, html.ParseOptionEnableScripting(false))
	if err != nil {
		return nil, err
	}
	return goquery.NewDocumentFromNode(root), nil
}

// ParseListing extracts cards from a page. When scoped is set only cards
// inside the sub-page listing container are considered. It returns the
// parsed items and the number of cards found, so callers can tell an empty
// page from a page whose cards all failed.
func ParseListing(r io.Reader, kind Kind, scoped bool) ([]ParsedItem, int, error) {
	doc, err := parseDocument(r)
	if err != nil {
		return nil, 0, err
	}

	cards := doc.Find(selCard)
	if scoped {
		cards = doc.Find(selSubListing).Find(selCard)
	}

	var items []ParsedItem
	cards.Each(func(_ int, card *goquery.Selection) {
		it, err := parseCard(card, kind)
		if err != nil {
			return
		}
		items = append(items, it)
	})
	return items, cards.Length(), nil
}

// directTexts returns the trimmed text nodes that are direct children of s.
func directTexts(s *goquery.Selection) []string {
	var out []string
	s.Contents().Each(func(_ int, c *goquery.Selection) {
		if n := c.Get(0); n != nil && n.Type == html.TextNode {
			if t := strings.TrimSpace(n.Data); t != "" {
				out = append(out, t)
			}
		}
	})
	return out
}

func parseCard(card *goquery.Selection, kind Kind) (ParsedItem, error) {
	weapon := firstText(card.Find(selWeapon))
	if weapon == "" {
		return ParsedItem{}, errNoWeapon
	}
	skin := firstText(card.Find(selSkin))

	price, err := ParsePrice(collectTexts(card.Find(selPrice)))
	if err != nil {
		return ParsedItem{}, err
	}

	href, _ := card.Attr("href")
	return ParsedItem{
		WeaponName:     weapon,
		SkinName:       skin,
		Rarity:         cardRarity(card, kind),
		ImageURL:       cardImage(card),
		Price:          price,
		Kind:           kind,
		MarketHashName: HashNameFromHref(href, weapon, skin),
	}, nil
}

func firstText(s *goquery.Selection) string {
	var first string
	s.EachWithBreak(func(_ int, el *goquery.Selection) bool {
		if texts := directTexts(el); len(texts) > 0 {
			first = texts[0]
			return false
		}
		return true
	})
	return first
}

func collectTexts(s *goquery.Selection) []string {
	var out []string
	s.Each(func(_ int, el *goquery.Selection) {
		out = append(out, directTexts(el)...)
	})
	return out
}

// cardRarity takes the first rarity title that is not a StatTrak label.
func cardRarity(card *goquery.Selection, kind Kind) string {
	if kind == KindGlove {
		return GloveRarity
	}

	var titles []string
	card.Find(selRarity).Each(func(_ int, el *goquery.Selection) {
		if t, ok := el.Attr("title"); ok {
			titles = append(titles, t)
		}
	})
	raw := ""
	for _, t := range titles {
		if !strings.Contains(t, "StatTrak") {
			raw = t
			break
		}
	}
	if raw == "" && len(titles) > 0 {
		raw = titles[0]
	}
	return strings.TrimSpace(strings.TrimLeft(raw, "★ "))
}

func cardImage(card *goquery.Selection) string {
	if src, ok := card.Find(`img[src^="http"]`).First().Attr("src"); ok {
		return strings.TrimSpace(src)
	}
	if src, ok := card.Find("noscript img").First().Attr("src"); ok {
		return strings.TrimSpace(src)
	}
	return ""
}

// ParsePrice returns the smallest number found in the price texts. Ranges
// such as "1.20 – 3.40" yield their lower bound.
func ParsePrice(texts []string) (decimal.Decimal, error) {
	var (
		best  decimal.Decimal
		found bool
	)
	for _, txt := range texts {
		cleaned := priceJunk.ReplaceAllString(strings.ReplaceAll(txt, "–", "-"), "")
		for _, part := range strings.Split(cleaned, "-") {
			if !priceToken.MatchString(part) {
				continue
			}
			n, err := decimal.NewFromString(part)
			if err != nil {
				continue
			}
			if !found || n.LessThan(best) {
				best, found = n, true
			}
		}
	}
	if !found {
		return decimal.Zero, errNoPrice
	}
	return best, nil
}

// HashNameFromHref derives a marketplace key from a weapon card link of the
// form /weapons/<weapon>/<skin>. Other links yield "".
func HashNameFromHref(href, weapon, skin string) string {
	u, err := url.Parse(href)
	if err != nil {
		return ""
	}
	var parts []string
	for _, p := range strings.Split(u.Path, "/") {
		if p != "" && p != "ru" {
			parts = append(parts, p)
		}
	}
	if len(parts) >= 3 && parts[0] == "weapons" {
		return weapon + " | " + skin + " (Battle-Scarred)"
	}
	return ""
}

// dedupeCheapest keeps one item per weapon name, the cheapest. Order of
// first appearance is preserved.
func dedupeCheapest(items []ParsedItem) []ParsedItem {
	index := map[string]int{}
	var out []ParsedItem
	for _, it := range items {
		if i, ok := index[it.WeaponName]; ok {
			if it.Price.LessThan(out[i].Price) {
				out[i] = it
			}
			continue
		}
		index[it.WeaponName] = len(out)
		out = append(out, it)
	}
	return out
}

// Package steam looks up Steam identities and validates trade links.
package steam

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/rs/zerolog/log"

	"case-market/internal/cache"
	"case-market/internal/config"
)

const (
	summariesPath = "/ISteamUser/GetPlayerSummaries/v0002/"

	// desktopUserAgent makes the community site serve the full profile layout.
	desktopUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/112.0.0.0 Safari/537.36"
)

// ErrLookupFailed is returned when the Web API could not be reached or
// returned no player.
var ErrLookupFailed = errors.New("steam lookup failed")

var profileDataRe = regexp.MustCompile(`(?s)var\s+g_rgProfileData\s*=\s*(\{.*?\});`)

// Player is the part of a player summary the profile keeps.
type Player struct {
	SteamID     string `json:"steamid"`
	PersonaName string `json:"personaname"`
	AvatarFull  string `json:"avatarfull"`
}

// Client queries the Steam Web API and community pages.
type Client struct {
	apiURL       string
	communityURL string
	apiKey       string
	ttl          time.Duration
	http         *http.Client
	cache        cache.Cache
}

// NewClient creates a Client caching summaries in c.
func NewClient(cfg config.SteamConfig, c cache.Cache) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	ttl := cfg.CacheTTL
	if ttl <= 0 {
		ttl = 12 * time.Hour
	}
	return &Client{
		apiURL:       strings.TrimRight(cfg.APIURL, "/"),
		communityURL: strings.TrimRight(cfg.CommunityURL, "/"),
		apiKey:       cfg.APIKey,
		ttl:          ttl,
		http:         &http.Client{Timeout: timeout},
		cache:        c,
	}
}

func cacheKey(steamID64 string) string {
	return "steam_profile_" + steamID64
}

// Player returns the cached or freshly fetched summary of steamID64.
// A non-animated avatar is replaced by the best one found on the profile page.
func (c *Client) Player(ctx context.Context, steamID64 string) (*Player, error) {
	raw, err := c.cache.GetOrSet(ctx, cacheKey(steamID64), c.ttl, func() ([]byte, error) {
		p, err := c.fetchPlayer(ctx, steamID64)
		if err != nil {
			return nil, err
		}
		return json.Marshal(p)
	})
	if err != nil {
		return nil, err
	}

	var p Player
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("failed to decode cached player: %w", err)
	}
	return &p, nil
}

// Invalidate drops the cached summary of steamID64.
func (c *Client) Invalidate(ctx context.Context, steamID64 string) error {
	return c.cache.Delete(ctx, cacheKey(steamID64))
}

func (c *Client) fetchPlayer(ctx context.Context, steamID64 string) (*Player, error) {
	q := url.Values{"key": {c.apiKey}, "steamids": {steamID64}}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.apiURL+summariesPath+"?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLookupFailed, err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: request failed", ErrLookupFailed)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: http %d", ErrLookupFailed, resp.StatusCode)
	}

	var body struct {
		Response struct {
			Players []Player `json:"players"`
		} `json:"response"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("%w: decode: %v", ErrLookupFailed, err)
	}
	if len(body.Response.Players) == 0 {
		return nil, fmt.Errorf("%w: no player %s", ErrLookupFailed, steamID64)
	}

	p := body.Response.Players[0]
	if !isGIF(p.AvatarFull) {
		if avatar := c.scrapeAvatar(ctx, steamID64); avatar != "" {
			p.AvatarFull = avatar
		}
	}
	return &p, nil
}

func isGIF(u string) bool {
	return strings.HasSuffix(strings.ToLower(u), ".gif")
}

func (c *Client) scrapeAvatar(ctx context.Context, steamID64 string) string {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.communityURL+"/profiles/"+steamID64, nil)
	if err != nil {
		return ""
	}
	req.Header.Set("User-Agent", desktopUserAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		log.Debug().Err(err).Str("steam_id", steamID64).Msg("Profile page fetch failed")
		return ""
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return ""
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return ""
	}
	return AvatarFromProfilePage(string(body))
}

// AvatarFromProfilePage picks the best avatar on a community profile page:
// the animated avatar from the embedded profile data, then the images of the
// avatar block (second preferred), then og:image.
func AvatarFromProfilePage(page string) string {
	if m := profileDataRe.FindStringSubmatch(page); m != nil {
		var data struct {
			AvatarFullAnimated string `json:"avatarFullAnimated"`
		}
		if err := json.Unmarshal([]byte(m[1]), &data); err == nil && isGIF(data.AvatarFullAnimated) {
			return data.AvatarFullAnimated
		}
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(page))
	if err != nil {
		return ""
	}

	imgs := doc.Find("div.playerAvatarAutoSizeInner").First().ChildrenFiltered("img")
	if imgs.Length() >= 2 {
		if src := imgSource(imgs.Eq(1)); src != "" {
			return src
		}
	}
	if imgs.Length() >= 1 {
		if src := imgSource(imgs.Eq(0)); src != "" {
			return src
		}
	}

	if content, ok := doc.Find(`meta[property="og:image"]`).First().Attr("content"); ok {
		return content
	}
	return ""
}

func imgSource(s *goquery.Selection) string {
	if src, ok := s.Attr("src"); ok && src != "" {
		return src
	}
	if src, ok := s.Attr("data-src"); ok {
		return src
	}
	return ""
}

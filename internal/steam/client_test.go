package steam

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"case-market/internal/cache"
	"case-market/internal/config"
)

const profilePageWithData = `<html><head>
<meta property="og:image" content="https://cdn/og.jpg">
<script>
	var g_rgProfileData = {"url":"x","steamid":"1","avatarFullAnimated":"https://cdn/anim.gif"};
</script></head><body></body></html>`

const profilePageWithImages = `<html><head>
<meta property="og:image" content="https://cdn/og.jpg"></head><body>
<div class="playerAvatarAutoSizeInner">
	<div class="profile_avatar_frame"><img src="https://cdn/frame.png"></div>
	<img src="https://cdn/static.jpg">
	<img data-src="https://cdn/second.gif">
</div></body></html>`

const profilePageOnlyOG = `<html><head><meta property="og:image" content="https://cdn/og.jpg"></head><body></body></html>`

func TestAvatarFromProfilePage(t *testing.T) {
	assert.Equal(t, "https://cdn/anim.gif", AvatarFromProfilePage(profilePageWithData))
	assert.Equal(t, "https://cdn/second.gif", AvatarFromProfilePage(profilePageWithImages))
	assert.Equal(t, "https://cdn/og.jpg", AvatarFromProfilePage(profilePageOnlyOG))
	assert.Equal(t, "", AvatarFromProfilePage("<html></html>"))
}

func newSteamServer(t *testing.T, avatar string, apiCalls, pageCalls *atomic.Int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasPrefix(r.URL.Path, summariesPath):
			apiCalls.Add(1)
			assert.Equal(t, "k", r.URL.Query().Get("key"))
			if r.URL.Query().Get("steamids") == "404" {
				_, _ = w.Write([]byte(`{"response":{"players":[]}}`))
				return
			}
			_, _ = w.Write([]byte(`{"response":{"players":[{"steamid":"765","personaname":"gaben","avatarfull":"` + avatar + `"}]}}`))
		case strings.HasPrefix(r.URL.Path, "/profiles/"):
			pageCalls.Add(1)
			_, _ = w.Write([]byte(profilePageWithImages))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestClient_PlayerScrapesStaticAvatarAndCaches(t *testing.T) {
	var apiCalls, pageCalls atomic.Int32
	srv := newSteamServer(t, "https://cdn/full.jpg", &apiCalls, &pageCalls)

	mem := cache.NewMemoryCache()
	defer mem.Close()
	c := NewClient(config.SteamConfig{APIURL: srv.URL, CommunityURL: srv.URL, APIKey: "k", CacheTTL: time.Hour}, mem)
	ctx := context.Background()

	p, err := c.Player(ctx, "765")
	require.NoError(t, err)
	assert.Equal(t, "gaben", p.PersonaName)
	assert.Equal(t, "https://cdn/second.gif", p.AvatarFull)

	_, err = c.Player(ctx, "765")
	require.NoError(t, err)
	assert.Equal(t, int32(1), apiCalls.Load(), "second lookup is served from cache")
	assert.Equal(t, int32(1), pageCalls.Load())

	require.NoError(t, c.Invalidate(ctx, "765"))
	_, err = c.Player(ctx, "765")
	require.NoError(t, err)
	assert.Equal(t, int32(2), apiCalls.Load())
}

func TestClient_PlayerKeepsAnimatedAvatar(t *testing.T) {
	var apiCalls, pageCalls atomic.Int32
	srv := newSteamServer(t, "https://cdn/full.GIF", &apiCalls, &pageCalls)

	mem := cache.NewMemoryCache()
	defer mem.Close()
	c := NewClient(config.SteamConfig{APIURL: srv.URL, CommunityURL: srv.URL, APIKey: "k"}, mem)

	p, err := c.Player(context.Background(), "765")
	require.NoError(t, err)
	assert.Equal(t, "https://cdn/full.GIF", p.AvatarFull)
	assert.Equal(t, int32(0), pageCalls.Load())
}

func TestClient_PlayerFailureIsNotCached(t *testing.T) {
	var apiCalls, pageCalls atomic.Int32
	srv := newSteamServer(t, "x.gif", &apiCalls, &pageCalls)

	mem := cache.NewMemoryCache()
	defer mem.Close()
	c := NewClient(config.SteamConfig{APIURL: srv.URL, CommunityURL: srv.URL, APIKey: "k"}, mem)
	ctx := context.Background()

	_, err := c.Player(ctx, "404")
	assert.ErrorIs(t, err, ErrLookupFailed)
	_, err = c.Player(ctx, "404")
	assert.ErrorIs(t, err, ErrLookupFailed)
	assert.Equal(t, int32(2), apiCalls.Load())
}

package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"case-market/internal/model"
	"case-market/pkg/uid"
)

type mockResolver struct {
	mock.Mock
}

func (m *mockResolver) EnsureProfile(ctx context.Context, steamID64 string) (*model.Profile, bool, error) {
	args := m.Called(ctx, steamID64)
	p, _ := args.Get(0).(*model.Profile)
	return p, args.Bool(1), args.Error(2)
}

func (m *mockResolver) MaybeRefresh(ctx context.Context, p *model.Profile) *model.Profile {
	return m.Called(ctx, p).Get(0).(*model.Profile)
}

func TestRequestID(t *testing.T) {
	var seen string
	h := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetRequestID(r.Context())
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.True(t, uid.IsValid(seen))
	assert.Equal(t, seen, rec.Header().Get(RequestIDHeader))

	incoming := uid.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, incoming)
	h.ServeHTTP(httptest.NewRecorder(), req)
	assert.Equal(t, incoming, seen)

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "<script>")
	h.ServeHTTP(httptest.NewRecorder(), req)
	assert.NotEqual(t, "<script>", seen)
}

func TestRecovery(t *testing.T) {
	h := Recovery(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "INTERNAL_ERROR")
	assert.NotContains(t, rec.Body.String(), "boom")
}

func TestLogging_CapturesStatus(t *testing.T) {
	h := Logging(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusTeapot, rec.Code)
}

func identityServer(t *testing.T, resolver ProfileResolver) (http.Handler, **model.Profile) {
	t.Helper()
	var seen *model.Profile
	h := NewIdentity(IdentityConfig{Secret: "s3cret", Profiles: resolver})(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			seen = GetProfile(r.Context())
			w.WriteHeader(http.StatusNoContent)
		}))
	return h, &seen
}

func TestIdentity(t *testing.T) {
	const steamID = "76561197960278073"
	p := &model.Profile{ID: 7, SteamID: steamID}
	refreshed := &model.Profile{ID: 7, SteamID: steamID, Username: "gaben"}

	resolver := new(mockResolver)
	resolver.On("EnsureProfile", mock.Anything, steamID).Return(p, false, nil)
	resolver.On("EnsureProfile", mock.Anything, "bogus").Return(nil, false, errors.New("invalid steam id"))
	resolver.On("MaybeRefresh", mock.Anything, p).Return(refreshed)

	h, seen := identityServer(t, resolver)

	t.Run("anonymous", func(t *testing.T) {
		*seen = nil
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		assert.Equal(t, http.StatusNoContent, rec.Code)
		assert.Nil(t, *seen)
	})

	t.Run("vouched", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set(SteamIDHeader, steamID)
		req.Header.Set(GatewaySecretHeader, "s3cret")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusNoContent, rec.Code)
		require.NotNil(t, *seen)
		assert.Equal(t, "gaben", (*seen).Username)
	})

	for _, secret := range []string{"", "wrong", "s3cret "} {
		t.Run("bad secret "+secret, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.Header.Set(SteamIDHeader, steamID)
			req.Header.Set(GatewaySecretHeader, secret)
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			assert.Equal(t, http.StatusUnauthorized, rec.Code)
		})
	}

	t.Run("unresolvable id", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set(SteamIDHeader, "bogus")
		req.Header.Set(GatewaySecretHeader, "s3cret")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}

func TestIdentity_EmptySecretRejectsEveryone(t *testing.T) {
	resolver := new(mockResolver)
	h := NewIdentity(IdentityConfig{Profiles: resolver})(http.NotFoundHandler())

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(SteamIDHeader, "76561197960278073")
	req.Header.Set(GatewaySecretHeader, "")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	resolver.AssertNotCalled(t, "EnsureProfile", mock.Anything, mock.Anything)
}

func TestRequireProfile(t *testing.T) {
	h := RequireProfile(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req = req.WithContext(context.WithValue(req.Context(), ProfileKey, &model.Profile{ID: 1}))
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

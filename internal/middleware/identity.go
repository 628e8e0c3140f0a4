package middleware

import (
	"context"
	"crypto/subtle"
	"net/http"

	"github.com/rs/zerolog/log"

	"case-market/internal/model"
	"case-market/pkg/apierror"
	"case-market/pkg/response"
)

// Headers set by the login gateway.
const (
	SteamIDHeader       = "X-Steam-ID"
	GatewaySecretHeader = "X-Gateway-Secret"
)

// ProfileKey is the context key of the caller's profile.
const ProfileKey contextKey = "profile"

// ProfileResolver turns a verified Steam identity into a profile.
type ProfileResolver interface {
	EnsureProfile(ctx context.Context, steamID64 string) (*model.Profile, bool, error)
	MaybeRefresh(ctx context.Context, p *model.Profile) *model.Profile
}

// IdentityConfig holds the identity middleware dependencies.
type IdentityConfig struct {
	Secret   string
	Profiles ProfileResolver
}

// NewIdentity attaches the caller's profile when the request carries a Steam
// id vouched for by the gateway. Requests without an identity pass through
// anonymously; a forged or malformed one is rejected.
func NewIdentity(cfg IdentityConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			steamID := r.Header.Get(SteamIDHeader)
			if steamID == "" {
				next.ServeHTTP(w, r)
				return
			}

			if !validSecret(cfg.Secret, r.Header.Get(GatewaySecretHeader)) {
				log.Warn().Str("request_id", GetRequestID(r.Context())).Msg("Identity header without valid gateway secret")
				response.Error(w, apierror.Unauthorized("invalid gateway credentials"))
				return
			}

			p, _, err := cfg.Profiles.EnsureProfile(r.Context(), steamID)
			if err != nil {
				log.Warn().Err(err).Str("steam_id", steamID).Msg("Failed to resolve profile")
				response.Error(w, apierror.Unauthorized("unknown identity"))
				return
			}
			p = cfg.Profiles.MaybeRefresh(r.Context(), p)

			ctx := context.WithValue(r.Context(), ProfileKey, p)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func validSecret(want, got string) bool {
	if want == "" || got == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(want), []byte(got)) == 1
}

// RequireProfile rejects anonymous requests.
func RequireProfile(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if GetProfile(r.Context()) == nil {
			response.Error(w, apierror.Unauthorized(""))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// GetProfile returns the caller's profile or nil.
func GetProfile(ctx context.Context) *model.Profile {
	if p, ok := ctx.Value(ProfileKey).(*model.Profile); ok {
		return p
	}
	return nil
}

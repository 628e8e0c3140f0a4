package steam

import (
	"errors"
	"net/url"
	"strconv"
	"strings"
)

// TradeURLPrefix is the only accepted form of a trade offer link.
const TradeURLPrefix = "https://steamcommunity.com/tradeoffer/new/?"

// SteamID64Base converts a 32-bit account id into a SteamID64.
const SteamID64Base uint64 = 76561197960265728

// Errors for trade URL validation
var (
	ErrInvalidTradeURL  = errors.New("invalid trade url")
	ErrTradeURLNotOwned = errors.New("trade url belongs to another account")
)

// TradeURL holds the parts of a trade offer link the marketplace needs.
type TradeURL struct {
	Raw     string
	Partner string
	Token   string
}

// ParseTradeURL validates the shape of a trade offer link and extracts
// partner and token.
func ParseTradeURL(raw string) (TradeURL, error) {
	raw = strings.TrimSpace(raw)
	if !strings.HasPrefix(raw, TradeURLPrefix) {
		return TradeURL{}, ErrInvalidTradeURL
	}

	u, err := url.Parse(raw)
	if err != nil {
		return TradeURL{}, ErrInvalidTradeURL
	}
	q := u.Query()
	partner, token := q.Get("partner"), q.Get("token")
	if partner == "" || token == "" {
		return TradeURL{}, ErrInvalidTradeURL
	}
	if _, err := strconv.ParseUint(partner, 10, 32); err != nil {
		return TradeURL{}, ErrInvalidTradeURL
	}

	return TradeURL{Raw: raw, Partner: partner, Token: token}, nil
}

// SteamID64 returns the SteamID64 of the trade partner.
func (t TradeURL) SteamID64() string {
	id, _ := AccountIDToSteamID64(t.Partner)
	return id
}

// ParseOwnedTradeURL parses raw and checks that the partner is steamID64.
func ParseOwnedTradeURL(raw, steamID64 string) (TradeURL, error) {
	t, err := ParseTradeURL(raw)
	if err != nil {
		return TradeURL{}, err
	}
	if t.SteamID64() != strings.TrimSpace(steamID64) {
		return TradeURL{}, ErrTradeURLNotOwned
	}
	return t, nil
}

// AccountIDToSteamID64 converts a 32-bit account id to a SteamID64.
func AccountIDToSteamID64(accountID string) (string, error) {
	n, err := strconv.ParseUint(accountID, 10, 32)
	if err != nil {
		return "", ErrInvalidTradeURL
	}
	return strconv.FormatUint(n+SteamID64Base, 10), nil
}

// SteamID64ToAccountID converts a SteamID64 to its 32-bit account id.
func SteamID64ToAccountID(steamID64 string) (string, error) {
	n, err := strconv.ParseUint(steamID64, 10, 64)
	if err != nil || n < SteamID64Base {
		return "", errors.New("invalid steam id")
	}
	return strconv.FormatUint(n-SteamID64Base, 10), nil
}

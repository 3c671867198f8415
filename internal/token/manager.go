// Package token decides how an access token is obtained: from the
// pipeline's own disk cache, from the host session's embedded token, or
// through a refresh-token exchange.
package token

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"worthbar/internal/models"
	"worthbar/internal/state"
)

// ExpiryMargin is the safety margin an access token must outlive to be
// considered usable.
const ExpiryMargin = 2 * time.Minute

// Source describes how an access token was obtained.
type Source string

const (
	SourceCached    Source = "cached"
	SourceSession   Source = "session"
	SourceRefreshed Source = "refreshed"
)

// Refresher performs the refresh-token exchange.
type Refresher interface {
	RefreshToken(ctx context.Context, cfg models.OAuthConfig, refreshToken string) (models.TokenResponse, error)
}

// Manager resolves access tokens. Tokens themselves are never logged.
type Manager struct {
	Store     state.Store
	Refresher Refresher
	Clock     func() time.Time
	Log       zerolog.Logger
}

// AccessToken returns a usable access token, first match wins: a persisted
// cache entry bound to the session's refresh token, the session's own
// embedded token, or a fresh exchange. Only freshly exchanged tokens are
// persisted; the session's token is already the host's own cache.
func (m *Manager) AccessToken(ctx context.Context, session models.AuthSession, cfg models.OAuthConfig) (string, Source, error) {
	now := m.now()

	if entry, ok := m.loadCached(session.RefreshToken); ok {
		if exp, ok := parseTimestamp(entry.AccessTokenExpired); ok && exp.Sub(now) > ExpiryMargin {
			m.Log.Debug().Time("expires", exp).Msg("using cached access token")
			return entry.AccessToken, SourceCached, nil
		}
	}

	if session.AccessToken != "" {
		if exp, ok := parseTimestamp(session.AccessTokenExpired); ok && exp.Sub(now) > ExpiryMargin {
			m.Log.Debug().Time("expires", exp).Msg("using session access token")
			return session.AccessToken, SourceSession, nil
		}
	}

	tok, err := m.ForceRefresh(ctx, session, cfg)
	if err != nil {
		return "", "", err
	}
	return tok, SourceRefreshed, nil
}

// ForceRefresh exchanges the session's refresh token unconditionally and
// persists the result bound to that refresh token.
func (m *Manager) ForceRefresh(ctx context.Context, session models.AuthSession, cfg models.OAuthConfig) (string, error) {
	resp, err := m.Refresher.RefreshToken(ctx, cfg, session.RefreshToken)
	if err != nil {
		return "", err
	}

	entry := models.TokenCacheEntry{
		RefreshToken:       session.RefreshToken,
		AccessToken:        resp.AccessToken,
		AccessTokenExpired: resp.AccessTokenExpired,
		UpdatedAt:          m.now().Format(time.RFC3339),
	}
	payload, err := json.MarshalIndent(entry, "", "  ")
	if err != nil {
		return "", err
	}
	if err := m.Store.Write(state.TokenCacheFile, append(payload, '\n')); err != nil {
		return "", fmt.Errorf("persist token cache: %w", err)
	}

	m.Log.Debug().Msg("refreshed and cached access token")
	return resp.AccessToken, nil
}

// loadCached returns the persisted cache entry when it is bound to the
// current refresh token. A missing or corrupt file, or an entry bound to a
// different refresh token, is treated as absent.
func (m *Manager) loadCached(refreshToken string) (models.TokenCacheEntry, bool) {
	data, err := m.Store.Read(state.TokenCacheFile)
	if err != nil {
		return models.TokenCacheEntry{}, false
	}
	var entry models.TokenCacheEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		return models.TokenCacheEntry{}, false
	}
	if entry.RefreshToken != refreshToken || entry.AccessToken == "" {
		return models.TokenCacheEntry{}, false
	}
	return entry, true
}

func (m *Manager) now() time.Time {
	if m.Clock != nil {
		return m.Clock()
	}
	return models.NowUTC()
}

// timestampLayouts are the accepted expiry formats: RFC3339 (with or
// without fractional seconds) and bare ISO timestamps treated as UTC.
var timestampLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04:05.999999999",
}

func parseTimestamp(value string) (time.Time, bool) {
	if value == "" {
		return time.Time{}, false
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

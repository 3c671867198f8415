package token

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"worthbar/internal/models"
	"worthbar/internal/state"
)

var testNow = time.Date(2026, 8, 27, 12, 0, 0, 0, time.UTC)

type fakeRefresher struct {
	resp  models.TokenResponse
	err   error
	calls int
}

func (f *fakeRefresher) RefreshToken(ctx context.Context, cfg models.OAuthConfig, refreshToken string) (models.TokenResponse, error) {
	f.calls++
	return f.resp, f.err
}

func newManager(store state.Store, refresher *fakeRefresher) *Manager {
	return &Manager{
		Store:     store,
		Refresher: refresher,
		Clock:     func() time.Time { return testNow },
		Log:       zerolog.Nop(),
	}
}

func writeCacheEntry(t *testing.T, store state.Store, entry models.TokenCacheEntry) {
	t.Helper()
	payload, err := json.Marshal(entry)
	require.NoError(t, err)
	require.NoError(t, store.Write(state.TokenCacheFile, payload))
}

func TestCachedTokenReused(t *testing.T) {
	store := state.NewMemStore()
	writeCacheEntry(t, store, models.TokenCacheEntry{
		RefreshToken:       "R",
		AccessToken:        "cached-token",
		AccessTokenExpired: testNow.Add(5 * time.Minute).Format(time.RFC3339),
	})
	refresher := &fakeRefresher{}

	m := newManager(store, refresher)
	session := models.AuthSession{RefreshToken: "R"}

	tok, source, err := m.AccessToken(context.Background(), session, models.OAuthConfig{})
	require.NoError(t, err)
	assert.Equal(t, "cached-token", tok)
	assert.Equal(t, SourceCached, source)
	assert.Zero(t, refresher.calls, "no network exchange expected")
}

func TestStaleRefreshTokenInvalidatesCache(t *testing.T) {
	store := state.NewMemStore()
	writeCacheEntry(t, store, models.TokenCacheEntry{
		RefreshToken:       "R1",
		AccessToken:        "cached-token",
		AccessTokenExpired: testNow.Add(time.Hour).Format(time.RFC3339),
	})
	refresher := &fakeRefresher{resp: models.TokenResponse{
		AccessToken:        "fresh-token",
		AccessTokenExpired: testNow.Add(time.Hour).Format(time.RFC3339),
	}}

	m := newManager(store, refresher)
	session := models.AuthSession{RefreshToken: "R2"}

	tok, source, err := m.AccessToken(context.Background(), session, models.OAuthConfig{})
	require.NoError(t, err)
	assert.Equal(t, "fresh-token", tok)
	assert.Equal(t, SourceRefreshed, source)
	assert.Equal(t, 1, refresher.calls)
}

func TestCachedTokenInsideMarginIsRefreshed(t *testing.T) {
	store := state.NewMemStore()
	writeCacheEntry(t, store, models.TokenCacheEntry{
		RefreshToken:       "R",
		AccessToken:        "almost-expired",
		AccessTokenExpired: testNow.Add(time.Minute).Format(time.RFC3339),
	})
	refresher := &fakeRefresher{resp: models.TokenResponse{AccessToken: "fresh-token"}}

	m := newManager(store, refresher)
	session := models.AuthSession{RefreshToken: "R"}

	tok, source, err := m.AccessToken(context.Background(), session, models.OAuthConfig{})
	require.NoError(t, err)
	assert.Equal(t, "fresh-token", tok)
	assert.Equal(t, SourceRefreshed, source)
}

func TestSessionTokenUsedWithoutPersisting(t *testing.T) {
	store := state.NewMemStore()
	refresher := &fakeRefresher{}

	m := newManager(store, refresher)
	session := models.AuthSession{
		RefreshToken:       "R",
		AccessToken:        "session-token",
		AccessTokenExpired: testNow.Add(10 * time.Minute).Format(time.RFC3339),
	}

	tok, source, err := m.AccessToken(context.Background(), session, models.OAuthConfig{})
	require.NoError(t, err)
	assert.Equal(t, "session-token", tok)
	assert.Equal(t, SourceSession, source)
	assert.False(t, store.Exists(state.TokenCacheFile), "session token is the host's own cache")
}

func TestRefreshPersistsBoundEntry(t *testing.T) {
	store := state.NewMemStore()
	refresher := &fakeRefresher{resp: models.TokenResponse{
		AccessToken:        "fresh-token",
		AccessTokenExpired: testNow.Add(time.Hour).Format(time.RFC3339),
	}}

	m := newManager(store, refresher)
	session := models.AuthSession{RefreshToken: "R"}

	_, _, err := m.AccessToken(context.Background(), session, models.OAuthConfig{})
	require.NoError(t, err)

	data, err := store.Read(state.TokenCacheFile)
	require.NoError(t, err)

	var entry models.TokenCacheEntry
	require.NoError(t, json.Unmarshal(data, &entry))
	assert.Equal(t, "R", entry.RefreshToken)
	assert.Equal(t, "fresh-token", entry.AccessToken)
	assert.NotEmpty(t, entry.UpdatedAt)
}

func TestBareTimestampTreatedAsUTC(t *testing.T) {
	exp, ok := parseTimestamp("2026-08-27T13:00:00")
	require.True(t, ok)
	assert.Equal(t, time.Date(2026, 8, 27, 13, 0, 0, 0, time.UTC), exp)

	_, ok = parseTimestamp("not a time")
	assert.False(t, ok)
}

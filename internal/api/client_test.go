package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"worthbar/internal/models"
)

func testClient() *Client {
	return NewClient(5*time.Second, zerolog.Nop())
}

func testConfig(servicesURL string) models.OAuthConfig {
	return models.OAuthConfig{
		ServicesURL:  servicesURL,
		ClientID:     "client-1",
		ClientSecret: "secret-1",
		RedirectURI:  "https://app.example/redirect",
	}
}

func TestRefreshToken(t *testing.T) {
	var gotBody map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/oauth/token", r.URL.Path)
		require.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))

		fmt.Fprint(w, `{"accessToken":"at-new","accessTokenExpired":"2026-08-27T13:00:00Z"}`)
	}))
	defer srv.Close()

	token, err := testClient().RefreshToken(context.Background(), testConfig(srv.URL), "rt-1")
	require.NoError(t, err)
	assert.Equal(t, "at-new", token.AccessToken)
	assert.Equal(t, "2026-08-27T13:00:00Z", token.AccessTokenExpired)

	assert.Equal(t, map[string]string{
		"clientId":     "client-1",
		"clientSecret": "secret-1",
		"grantType":    "refreshToken",
		"responseType": "token",
		"redirectUri":  "https://app.example/redirect",
		"refreshToken": "rt-1",
	}, gotBody)
}

func TestRefreshTokenMissingAccessToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"error":"invalid_grant"}`)
	}))
	defer srv.Close()

	_, err := testClient().RefreshToken(context.Background(), testConfig(srv.URL), "rt-1")
	require.ErrorIs(t, err, ErrTokenExchange)
	assert.Contains(t, err.Error(), "no accessToken")
}

func TestRefreshTokenHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad refresh token", http.StatusBadRequest)
	}))
	defer srv.Close()

	_, err := testClient().RefreshToken(context.Background(), testConfig(srv.URL), "rt-1")
	assert.ErrorIs(t, err, ErrTokenExchange)
}

func TestAccountsSendsAuthHeaders(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/accounts", r.URL.Path)
		require.Equal(t, "Bearer at-1", r.Header.Get("Authorization"))
		require.Equal(t, "ds-1", r.Header.Get("qcs-dataset-id"))

		fmt.Fprint(w, `{"resources":[{"id":1,"onlineBalance":100.5},{"id":"acc-2","isClosed":true}]}`)
	}))
	defer srv.Close()

	accounts, err := testClient().Accounts(context.Background(), srv.URL, "at-1", "ds-1")
	require.NoError(t, err)
	require.Len(t, accounts, 2)
	assert.Equal(t, "1", accounts[0].ID.String())
	assert.Equal(t, 100.5, *accounts[0].OnlineBalance)
	assert.Equal(t, "acc-2", accounts[1].ID.String())
	assert.True(t, accounts[1].IsClosed)
}

func TestBalances(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/accounts/balances", r.URL.Path)
		fmt.Fprint(w, `{"resources":[{"accountId":1,"balanceOn":"2026-08-27","balanceType":"ONLINE","balanceAmount":250}]}`)
	}))
	defer srv.Close()

	balances, err := testClient().Balances(context.Background(), srv.URL, "at-1", "ds-1")
	require.NoError(t, err)
	require.Len(t, balances, 1)
	assert.Equal(t, "1", balances[0].AccountID.String())
	assert.Equal(t, "2026-08-27", balances[0].BalanceOn)
	assert.Equal(t, 250.0, *balances[0].BalanceAmount)
}

func TestUnauthorizedStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "token expired", http.StatusUnauthorized)
	}))
	defer srv.Close()

	_, err := testClient().Accounts(context.Background(), srv.URL, "at-stale", "ds-1")
	require.Error(t, err)

	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusUnauthorized, se.Status)
	assert.Equal(t, "token expired", se.Body)
	assert.True(t, IsUnauthorized(err))
}

func TestIsUnauthorizedOtherErrors(t *testing.T) {
	assert.False(t, IsUnauthorized(errors.New("plain")))
	assert.False(t, IsUnauthorized(&StatusError{Status: http.StatusInternalServerError}))
	assert.False(t, IsUnauthorized(nil))
}

func TestUnexpectedShape(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"top level list", `[{"id":1}]`},
		{"resources missing", `{"items":[]}`},
		{"resources not a list", `{"resources":{"id":1}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				fmt.Fprint(w, tt.body)
			}))
			defer srv.Close()

			_, err := testClient().Accounts(context.Background(), srv.URL, "at-1", "ds-1")
			assert.ErrorIs(t, err, ErrUnexpectedShape)
		})
	}
}

func TestFetchBytes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "<html>bundle</html>")
	}))
	defer srv.Close()

	body, err := testClient().FetchBytes(context.Background(), srv.URL+"/")
	require.NoError(t, err)
	assert.Equal(t, "<html>bundle</html>", string(body))
}

func TestStatusErrorSnippetTruncated(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		for i := 0; i < 100; i++ {
			fmt.Fprint(w, "0123456789")
		}
	}))
	defer srv.Close()

	_, err := testClient().FetchBytes(context.Background(), srv.URL+"/")
	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Len(t, se.Body, 200)
}

// Package api is the client for the aggregator's services API: the
// refresh-token exchange and the two authenticated balance endpoints.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"worthbar/internal/models"
)

// Errors surfaced by the API layer.
var (
	// ErrTokenExchange indicates the refresh call failed or returned no
	// access token.
	ErrTokenExchange = errors.New("refresh token exchange failed")

	// ErrUnexpectedShape indicates an API payload was not the expected
	// list-of-objects shape.
	ErrUnexpectedShape = errors.New("unexpected API response shape")
)

// maxResponseSize bounds response bodies read into memory.
const maxResponseSize = 10 * 1024 * 1024

// StatusError is a non-2xx HTTP response from the services API.
type StatusError struct {
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("services API returned HTTP %d: %s", e.Status, e.Body)
	}
	return fmt.Sprintf("services API returned HTTP %d", e.Status)
}

// IsUnauthorized reports whether err is an HTTP 401 from the services API.
func IsUnauthorized(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && se.Status == http.StatusUnauthorized
}

// Client talks to the aggregator's services API. The zero HTTP client is
// replaced with one carrying the pipeline's fixed network timeout.
type Client struct {
	HTTP *http.Client
	Log  zerolog.Logger
}

// NewClient returns a Client with the given network timeout.
func NewClient(timeout time.Duration, log zerolog.Logger) *Client {
	return &Client{
		HTTP: &http.Client{Timeout: timeout},
		Log:  log,
	}
}

// FetchBytes performs a plain GET and returns the raw body. It backs the
// config resolver's fetch port.
func (c *Client) FetchBytes(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	return c.do(req)
}

// refreshRequest is the JSON body of the token refresh call.
type refreshRequest struct {
	ClientID     string `json:"clientId"`
	ClientSecret string `json:"clientSecret"`
	GrantType    string `json:"grantType"`
	ResponseType string `json:"responseType"`
	RedirectURI  string `json:"redirectUri"`
	RefreshToken string `json:"refreshToken"`
}

// RefreshToken exchanges a refresh token for a new access token.
func (c *Client) RefreshToken(ctx context.Context, cfg models.OAuthConfig, refreshToken string) (models.TokenResponse, error) {
	body, err := json.Marshal(refreshRequest{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		GrantType:    "refreshToken",
		ResponseType: "token",
		RedirectURI:  cfg.RedirectURI,
		RefreshToken: refreshToken,
	})
	if err != nil {
		return models.TokenResponse{}, err
	}

	url := strings.TrimRight(cfg.ServicesURL, "/") + "/oauth/token"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return models.TokenResponse{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	c.Log.Debug().Str("url", url).Msg("refreshing access token")

	respBody, err := c.do(req)
	if err != nil {
		return models.TokenResponse{}, fmt.Errorf("%w: %v", ErrTokenExchange, err)
	}

	var token models.TokenResponse
	if err := json.Unmarshal(respBody, &token); err != nil {
		return models.TokenResponse{}, fmt.Errorf("%w: %v", ErrTokenExchange, err)
	}
	if token.AccessToken == "" {
		return models.TokenResponse{}, fmt.Errorf("%w: response carries no accessToken", ErrTokenExchange)
	}
	return token, nil
}

// Accounts fetches the full account list.
func (c *Client) Accounts(ctx context.Context, servicesURL, accessToken, datasetID string) ([]models.AccountRecord, error) {
	body, err := c.getJSON(ctx, servicesURL, "/accounts", accessToken, datasetID)
	if err != nil {
		return nil, err
	}
	var accounts []models.AccountRecord
	if err := decodeResources(body, "/accounts", &accounts); err != nil {
		return nil, err
	}
	return accounts, nil
}

// Balances fetches the full balance observation list.
func (c *Client) Balances(ctx context.Context, servicesURL, accessToken, datasetID string) ([]models.BalanceRecord, error) {
	body, err := c.getJSON(ctx, servicesURL, "/accounts/balances", accessToken, datasetID)
	if err != nil {
		return nil, err
	}
	var balances []models.BalanceRecord
	if err := decodeResources(body, "/accounts/balances", &balances); err != nil {
		return nil, err
	}
	return balances, nil
}

// getJSON performs one authenticated GET. The dataset id is a required
// header on every authenticated call.
func (c *Client) getJSON(ctx context.Context, servicesURL, path, accessToken, datasetID string) ([]byte, error) {
	url := strings.TrimRight(servicesURL, "/") + path
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("qcs-dataset-id", datasetID)
	req.Header.Set("Accept", "application/json")

	c.Log.Debug().Str("path", path).Msg("services API request")
	return c.do(req)
}

// do executes the request and returns the body, converting non-2xx
// statuses into StatusError. No retries happen at this layer.
func (c *Client) do(req *http.Request) ([]byte, error) {
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet := string(body)
		if len(snippet) > 200 {
			snippet = snippet[:200]
		}
		return nil, &StatusError{Status: resp.StatusCode, Body: strings.TrimSpace(snippet)}
	}
	return body, nil
}

// decodeResources unpacks a `{"resources": [...]}` payload, failing with
// ErrUnexpectedShape when the envelope or the list is missing.
func decodeResources(body []byte, path string, out any) error {
	var envelope struct {
		Resources json.RawMessage `json:"resources"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return fmt.Errorf("%w: %s is not a JSON object: %v", ErrUnexpectedShape, path, err)
	}

	resources := bytes.TrimSpace(envelope.Resources)
	if len(resources) == 0 || resources[0] != '[' {
		return fmt.Errorf("%w: %s resources is not a list", ErrUnexpectedShape, path)
	}
	if err := json.Unmarshal(resources, out); err != nil {
		return fmt.Errorf("%w: %s resources: %v", ErrUnexpectedShape, path, err)
	}
	return nil
}

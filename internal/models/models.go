package models

import (
	"bytes"
	"encoding/json"
	"time"
)

// FlexID is an upstream identifier that may arrive as a JSON string or a
// JSON number. It is kept as its string form; numbers keep their literal
// representation.
type FlexID string

// UnmarshalJSON implements json.Unmarshaler.
func (f *FlexID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || string(data) == "null" {
		*f = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = FlexID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*f = FlexID(n.String())
	return nil
}

func (f FlexID) String() string { return string(f) }

// OAuthConfig is the upstream client registration extracted from the
// aggregator's web bundle.
type OAuthConfig struct {
	ServicesURL  string `json:"services_url"`
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
	RedirectURI  string `json:"redirect_uri"`
}

// StoredOAuthConfig is the persisted form of OAuthConfig, with extraction
// metadata. The extra fields are informational only; callers receive the
// four operational fields.
type StoredOAuthConfig struct {
	OAuthConfig
	Environment   string `json:"environment,omitempty"`
	FetchedAt     string `json:"fetched_at,omitempty"`
	MainBundleURL string `json:"main_bundle_url,omitempty"`
}

// Complete reports whether all four operational fields are present.
func (c OAuthConfig) Complete() bool {
	return c.ServicesURL != "" && c.ClientID != "" && c.ClientSecret != "" && c.RedirectURI != ""
}

// AuthSession is the desktop host's locally stored session. It is owned by
// the host application and read-only to this pipeline.
type AuthSession struct {
	RefreshToken       string `json:"refreshToken"`
	DatasetID          FlexID `json:"datasetId"`
	AccessToken        string `json:"accessToken"`
	AccessTokenExpired string `json:"accessTokenExpired"`
}

// TokenCacheEntry is the persisted access-token cache. It is valid only
// while bound to the refresh token currently present in the session.
type TokenCacheEntry struct {
	RefreshToken       string `json:"refreshToken"`
	AccessToken        string `json:"accessToken"`
	AccessTokenExpired string `json:"accessTokenExpired"`
	UpdatedAt          string `json:"updated_at"`
}

// TokenResponse is the upstream reply to a refresh-token exchange.
type TokenResponse struct {
	AccessToken        string `json:"accessToken"`
	AccessTokenExpired string `json:"accessTokenExpired"`
}

// AccountRecord is one financial account from the live API.
type AccountRecord struct {
	ID                 FlexID   `json:"id"`
	OnlineBalance      *float64 `json:"onlineBalance"`
	IsConnected        bool     `json:"isConnected"`
	InstitutionLoginID FlexID   `json:"institutionLoginId"`
	IsDeleted          bool     `json:"isDeleted"`
	IsIgnored          bool     `json:"isIgnored"`
	IsClosed           bool     `json:"isClosed"`
}

// Excluded reports whether the account is kept out of totals entirely.
func (a AccountRecord) Excluded() bool {
	return a.IsDeleted || a.IsIgnored || a.IsClosed
}

// Balance type tags used by the upstream API.
const (
	BalanceTypeOnline  = "ONLINE"
	BalanceTypeCurrent = "CURRENT"
)

// PreferredBalanceType classifies which balance rows are summed for this
// account: ONLINE for institution-synced accounts, CURRENT for manual ones.
// Exactly one tag governs an account, never both.
func (a AccountRecord) PreferredBalanceType() string {
	if a.OnlineBalance != nil || a.IsConnected || a.InstitutionLoginID != "" {
		return BalanceTypeOnline
	}
	return BalanceTypeCurrent
}

// BalanceRecord is one (account, date, balance-type) observation.
type BalanceRecord struct {
	AccountID     FlexID   `json:"accountId"`
	BalanceOn     string   `json:"balanceOn"`
	BalanceType   string   `json:"balanceType"`
	BalanceAmount *float64 `json:"balanceAmount"`
}

// Snapshot sources.
const (
	SourceLive  = "live"
	SourceCache = "cache"
)

// Snapshot is the reconciled (total, daily percent change, source) result
// computed fresh on every invocation.
type Snapshot struct {
	Total        float64 `json:"total"`
	DailyPercent float64 `json:"daily_percent"`
	Source       string  `json:"source"`
}

// NowUTC returns the current time in UTC. Components take it as an
// injectable clock so tests can pin time.
func NowUTC() time.Time { return time.Now().UTC() }

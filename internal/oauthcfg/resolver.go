// Package oauthcfg discovers the upstream OAuth client registration. The
// aggregator does not publish it, so the resolver scrapes it out of the
// site's own webpack bundle: a fixed module embeds the configuration as a
// single-quoted JSON literal passed to JSON.parse. Once extracted, the
// config is persisted and reused until the file is deleted.
package oauthcfg

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"worthbar/internal/models"
	"worthbar/internal/state"
)

// ErrConfigExtraction indicates the upstream bundle no longer contains the
// expected structure.
var ErrConfigExtraction = errors.New("oauth config extraction failed")

// Markers locating the config module inside the main bundle. These track a
// versioned upstream artifact; when the bundle layout changes they are the
// first thing to update.
const (
	moduleMarker = "451557:e=>"
	parseMarker  = "e.exports=JSON.parse('"
)

var mainBundleRe = regexp.MustCompile(`src="(/main\.[^"]+\.js)"`)

// FetchFunc fetches the raw bytes at url. It is the resolver's only
// network dependency, so the extraction algorithm stays unit-testable
// against fixed fixtures.
type FetchFunc func(ctx context.Context, url string) ([]byte, error)

// Resolver extracts and caches the upstream OAuth configuration.
type Resolver struct {
	Fetch   FetchFunc
	Store   state.Store
	BaseURL string
	Host    string
	Clock   func() time.Time
	Log     zerolog.Logger
}

// Resolve returns the OAuth configuration, preferring the persisted copy.
// Extraction is assumed stable: a complete persisted config is returned
// without any freshness check.
func (r *Resolver) Resolve(ctx context.Context) (models.OAuthConfig, error) {
	if cached, ok := r.loadPersisted(); ok {
		r.Log.Debug().Str("path", r.Store.Path(state.OAuthConfigFile)).Msg("using persisted oauth config")
		return cached, nil
	}

	bundleURL, err := r.mainBundleURL(ctx)
	if err != nil {
		return models.OAuthConfig{}, err
	}
	r.Log.Debug().Str("bundle", bundleURL).Msg("fetching main bundle")

	js, err := r.Fetch(ctx, bundleURL)
	if err != nil {
		return models.OAuthConfig{}, fmt.Errorf("fetch main bundle: %w", err)
	}

	extracted, env, err := extract(string(js), r.Host)
	if err != nil {
		return models.OAuthConfig{}, err
	}

	stored := models.StoredOAuthConfig{
		OAuthConfig:   extracted,
		Environment:   env,
		FetchedAt:     r.now().Format(time.RFC3339),
		MainBundleURL: bundleURL,
	}
	payload, err := json.MarshalIndent(stored, "", "  ")
	if err != nil {
		return models.OAuthConfig{}, err
	}
	if err := r.Store.Write(state.OAuthConfigFile, append(payload, '\n')); err != nil {
		return models.OAuthConfig{}, fmt.Errorf("persist oauth config: %w", err)
	}

	r.Log.Info().Str("environment", env).Msg("extracted oauth config from main bundle")
	return extracted, nil
}

func (r *Resolver) now() time.Time {
	if r.Clock != nil {
		return r.Clock()
	}
	return models.NowUTC()
}

// loadPersisted returns the persisted config when it carries all four
// operational fields. A missing, corrupt, or partial file is treated as
// absent.
func (r *Resolver) loadPersisted() (models.OAuthConfig, bool) {
	data, err := r.Store.Read(state.OAuthConfigFile)
	if err != nil {
		return models.OAuthConfig{}, false
	}
	var stored models.StoredOAuthConfig
	if err := json.Unmarshal(data, &stored); err != nil {
		return models.OAuthConfig{}, false
	}
	if !stored.Complete() {
		return models.OAuthConfig{}, false
	}
	return stored.OAuthConfig, true
}

// mainBundleURL fetches the site root and locates the main script bundle.
func (r *Resolver) mainBundleURL(ctx context.Context) (string, error) {
	html, err := r.Fetch(ctx, r.BaseURL+"/")
	if err != nil {
		return "", fmt.Errorf("fetch site root: %w", err)
	}
	m := mainBundleRe.FindSubmatch(html)
	if m == nil {
		return "", fmt.Errorf("%w: main bundle script not found in site HTML", ErrConfigExtraction)
	}
	return r.BaseURL + string(m[1]), nil
}

// extract locates the config literal in the bundle text and navigates it
// down to the four operational fields plus the active environment name.
func extract(js, host string) (models.OAuthConfig, string, error) {
	fail := func(format string, args ...any) (models.OAuthConfig, string, error) {
		return models.OAuthConfig{}, "", fmt.Errorf("%w: %s", ErrConfigExtraction, fmt.Sprintf(format, args...))
	}

	start := indexFrom(js, moduleMarker, 0)
	if start < 0 {
		return fail("config module marker not found in main bundle")
	}
	start = indexFrom(js, parseMarker, start)
	if start < 0 {
		return fail("config JSON.parse marker not found in main bundle")
	}
	start += len(parseMarker)

	raw, err := scanSingleQuoted(js, start)
	if err != nil {
		return models.OAuthConfig{}, "", fmt.Errorf("%w: %v", ErrConfigExtraction, err)
	}

	var payload map[string]any
	if err := json.Unmarshal([]byte(unescapeJS(raw)), &payload); err != nil {
		return fail("config literal is not valid JSON: %v", err)
	}

	hosts, _ := payload["hosts"].(map[string]any)
	envs, _ := payload["environments"].(map[string]any)

	hostCfg, ok := hosts[host].(map[string]any)
	if !ok {
		return fail("no host config for %s", host)
	}
	envKey, ok := hostCfg["environment_default"].(string)
	if !ok || envKey == "" {
		return fail("host environment_default missing")
	}
	redirectURI, ok := hostCfg["redirect_uri"].(string)
	if !ok || redirectURI == "" {
		return fail("host redirect_uri missing")
	}

	envCfg, ok := envs[envKey].(map[string]any)
	if !ok {
		return fail("no environment config for %s", envKey)
	}
	servicesURL, ok := envCfg["services_url"].(string)
	if !ok || len(servicesURL) < 4 || servicesURL[:4] != "http" {
		return fail("services_url missing/invalid")
	}
	clientID, ok := envCfg["client_id"].(string)
	if !ok || clientID == "" {
		return fail("client_id missing/invalid")
	}
	clientSecret, ok := envCfg["client_secret"].(string)
	if !ok || clientSecret == "" {
		return fail("client_secret missing/invalid")
	}

	return models.OAuthConfig{
		ServicesURL:  servicesURL,
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RedirectURI:  redirectURI,
	}, envKey, nil
}

// indexFrom is strings.Index starting at off, returning an absolute index.
func indexFrom(s, substr string, off int) int {
	if off > len(s) {
		return -1
	}
	i := strings.Index(s[off:], substr)
	if i < 0 {
		return -1
	}
	return off + i
}

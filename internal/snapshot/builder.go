// Package snapshot acquires the reconciled net-worth snapshot: the live
// API path first, the desktop host's cached datasets as fallback, one
// recovery only.
package snapshot

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"worthbar/internal/api"
	"worthbar/internal/models"
	"worthbar/internal/token"
)

// HostReader provides the desktop host's locally stored session and
// cached dataset blobs.
type HostReader interface {
	AuthSession() (models.AuthSession, error)
	CacheBlob(storeName string) ([]byte, error)
}

// ConfigResolver provides the upstream OAuth configuration.
type ConfigResolver interface {
	Resolve(ctx context.Context) (models.OAuthConfig, error)
}

// TokenSource resolves access tokens.
type TokenSource interface {
	AccessToken(ctx context.Context, session models.AuthSession, cfg models.OAuthConfig) (string, token.Source, error)
	ForceRefresh(ctx context.Context, session models.AuthSession, cfg models.OAuthConfig) (string, error)
}

// LiveAPI fetches the two live endpoints.
type LiveAPI interface {
	Accounts(ctx context.Context, servicesURL, accessToken, datasetID string) ([]models.AccountRecord, error)
	Balances(ctx context.Context, servicesURL, accessToken, datasetID string) ([]models.BalanceRecord, error)
}

// Builder runs the acquisition pipeline.
type Builder struct {
	Host     HostReader
	Resolver ConfigResolver
	Tokens   TokenSource
	API      LiveAPI
	Log      zerolog.Logger
}

// Live builds a snapshot from the live API: session, config, token, the
// two fetches, then reconciliation. An unauthorized response triggers
// exactly one forced refresh and retry of both fetches; a second
// unauthorized failure propagates.
func (b *Builder) Live(ctx context.Context) (models.Snapshot, error) {
	session, err := b.Host.AuthSession()
	if err != nil {
		return models.Snapshot{}, err
	}
	if session.RefreshToken == "" {
		return models.Snapshot{}, fmt.Errorf("missing refreshToken in authSession (are you signed in?)")
	}
	if session.DatasetID == "" {
		return models.Snapshot{}, fmt.Errorf("missing datasetId in authSession")
	}

	cfg, err := b.Resolver.Resolve(ctx)
	if err != nil {
		return models.Snapshot{}, err
	}

	accessToken, source, err := b.Tokens.AccessToken(ctx, session, cfg)
	if err != nil {
		return models.Snapshot{}, err
	}
	b.Log.Debug().Str("token_source", string(source)).Msg("access token resolved")

	datasetID := session.DatasetID.String()
	accounts, balances, err := b.fetchBoth(ctx, cfg, accessToken, datasetID)
	if api.IsUnauthorized(err) {
		b.Log.Debug().Msg("unauthorized response, forcing token refresh and retrying")
		accessToken, err = b.Tokens.ForceRefresh(ctx, session, cfg)
		if err != nil {
			return models.Snapshot{}, err
		}
		accounts, balances, err = b.fetchBoth(ctx, cfg, accessToken, datasetID)
	}
	if err != nil {
		return models.Snapshot{}, err
	}

	total, percent, err := reconcile(accounts, balances)
	if err != nil {
		return models.Snapshot{}, err
	}
	return models.Snapshot{Total: total, DailyPercent: percent, Source: models.SourceLive}, nil
}

// fetchBoth performs the two independent live calls in their fixed order.
func (b *Builder) fetchBoth(ctx context.Context, cfg models.OAuthConfig, accessToken, datasetID string) ([]models.AccountRecord, []models.BalanceRecord, error) {
	accounts, err := b.API.Accounts(ctx, cfg.ServicesURL, accessToken, datasetID)
	if err != nil {
		return nil, nil, err
	}
	balances, err := b.API.Balances(ctx, cfg.ServicesURL, accessToken, datasetID)
	if err != nil {
		return nil, nil, err
	}
	return accounts, balances, nil
}

// Snapshot tries the live path in full, falls back to the host cache, and
// classifies the original live error when both fail. The live path is the
// only recovery point; a second-level failure is surfaced, not retried.
func (b *Builder) Snapshot(ctx context.Context) (models.Snapshot, error) {
	snap, liveErr := b.Live(ctx)
	if liveErr == nil {
		return snap, nil
	}
	b.Log.Warn().Err(liveErr).Msg("live snapshot failed, trying host cache")

	snap, cacheErr := b.Cache()
	if cacheErr == nil {
		return snap, nil
	}
	b.Log.Warn().Err(cacheErr).Msg("cache snapshot failed")

	return models.Snapshot{}, &ClassifiedError{Code: Classify(liveErr), Err: liveErr}
}

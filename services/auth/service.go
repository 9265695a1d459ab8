package auth

import (
	"context"
	"time"

	"github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"

	"github.com/payradar/payradar/dto"
	"github.com/payradar/payradar/interfaces"
	"github.com/payradar/payradar/internal/errs"
	"github.com/payradar/payradar/internal/logger"
	"github.com/payradar/payradar/internal/models"
	"github.com/payradar/payradar/internal/tracing"
)

// DefaultRefreshMargin is how long before expiry a token is refreshed
// proactively.
const DefaultRefreshMargin = 60 * time.Second

type tokenVault struct {
	accounts  interfaces.MailAccountRepository
	providers map[string]interfaces.MailProvider
	log       logger.Logger
	margin    time.Duration
	now       func() time.Time
}

func NewTokenVault(accounts interfaces.MailAccountRepository, providers map[string]interfaces.MailProvider, log logger.Logger) interfaces.TokenVault {
	return &tokenVault{
		accounts:  accounts,
		providers: providers,
		log:       log,
		margin:    DefaultRefreshMargin,
		now:       time.Now,
	}
}

func (v *tokenVault) GetValidAccessToken(ctx context.Context, account *models.MailAccount) (string, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "tokenVault.GetValidAccessToken")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)

	if account == nil {
		return "", errors.New("account is nil")
	}
	tracing.TagAccount(span, account.ID)

	provider, ok := v.providers[account.Provider]
	if !ok {
		err := errors.Errorf("unknown provider: %s", account.Provider)
		tracing.TraceErr(span, err)
		return "", err
	}

	// Password-authenticated providers carry no OAuth token.
	if !provider.SupportsOAuth() {
		return "", nil
	}

	if account.AccessToken != "" && account.TokenExpiresIn(v.now()) > v.margin {
		span.SetTag("refreshed", false)
		return account.AccessToken, nil
	}

	span.SetTag("refreshed", true)
	return v.refreshAccount(ctx, provider, account)
}

// refreshAccount exchanges the refresh token and persists the new token
// state atomically. Any failure flips needs_reauth; the caller never gets
// a stale token back.
func (v *tokenVault) refreshAccount(ctx context.Context, provider interfaces.MailProvider, account *models.MailAccount) (string, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "tokenVault.refreshAccount")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	tracing.TagAccount(span, account.ID)

	if account.RefreshToken == "" {
		if err := v.accounts.SetNeedsReauth(ctx, account.ID, true); err != nil {
			tracing.TraceErr(span, err)
		}
		err := errors.Wrapf(errs.ErrReauthRequired, "account %s has no refresh token", account.ID)
		tracing.TraceErr(span, err)
		return "", err
	}

	token, err := provider.Refresh(ctx, account.RefreshToken)
	if err != nil {
		if reauthErr := v.accounts.SetNeedsReauth(ctx, account.ID, true); reauthErr != nil {
			tracing.TraceErr(span, reauthErr)
		}
		wrapped := errors.Wrapf(errs.ErrReauthRequired, "token refresh rejected for account %s: %v", account.ID, err)
		tracing.TraceErr(span, wrapped)
		return "", wrapped
	}

	account.AccessToken = token.AccessToken
	account.ExpiresAt = token.ExpiresAt
	if token.RefreshToken != "" {
		account.RefreshToken = token.RefreshToken
	}
	if token.Scope != "" {
		account.Scope = token.Scope
	}
	account.NeedsReauth = false

	if err := v.accounts.UpdateTokens(ctx, account); err != nil {
		tracing.TraceErr(span, err)
		return "", err
	}

	v.log.Infof("Refreshed token for account %s (%s)", account.ID, account.Provider)
	return account.AccessToken, nil
}

// RefreshAll refreshes every active OAuth account of the provider. One
// account's failure is tallied, not propagated.
func (v *tokenVault) RefreshAll(ctx context.Context, providerName string) (*dto.RefreshSummary, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "tokenVault.RefreshAll")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	span.SetTag("provider", providerName)

	provider, ok := v.providers[providerName]
	if !ok {
		err := errors.Errorf("unknown provider: %s", providerName)
		tracing.TraceErr(span, err)
		return nil, err
	}

	summary := &dto.RefreshSummary{Provider: providerName}
	if !provider.SupportsOAuth() {
		return summary, nil
	}

	accounts, err := v.accounts.ListActiveByProvider(ctx, providerName)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}

	for _, account := range accounts {
		if account.AccessToken != "" && account.TokenExpiresIn(v.now()) > v.margin {
			summary.Skipped++
			continue
		}
		if _, err := v.refreshAccount(ctx, provider, account); err != nil {
			v.log.Warnf("Bulk refresh failed for account %s: %v", account.ID, err)
			summary.Failed++
			continue
		}
		summary.Refreshed++
	}

	span.SetTag("refreshed", summary.Refreshed)
	span.SetTag("failed", summary.Failed)
	return summary, nil
}

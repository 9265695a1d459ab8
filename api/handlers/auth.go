package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"

	"github.com/payradar/payradar/interfaces"
	"github.com/payradar/payradar/internal/models"
	"github.com/payradar/payradar/internal/tracing"
)

// AuthorizeURL returns the provider consent URL. The state parameter
// carries the connecting user's id and comes back on the callback.
func AuthorizeURL(providers map[string]interfaces.MailProvider) gin.HandlerFunc {
	return func(c *gin.Context) {
		_, span := tracing.StartHttpServerTracerSpanWithHeader(c.Request.Context(), "AuthorizeURL", c.Request.Header)
		defer span.Finish()
		tracing.TagComponentRest(span)

		provider, ok := providers[c.Param("provider")]
		if !ok {
			respondBadRequest(c, "unknown provider")
			return
		}
		if !provider.SupportsOAuth() {
			respondBadRequest(c, "provider does not support oauth")
			return
		}

		state := c.Query("state")
		if state == "" {
			state = requestUserID(c)
		}
		if state == "" {
			respondBadRequest(c, "state or user id is required")
			return
		}

		respondOK(c, gin.H{"url": provider.AuthorizeURL(state)})
	}
}

// OAuthCallback completes the authorization-code flow: exchanges the code,
// resolves the mailbox address from the provider, and upserts the account
// with fresh tokens.
func OAuthCallback(providers map[string]interfaces.MailProvider, accounts interfaces.MailAccountRepository) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := tracing.StartHttpServerTracerSpanWithHeader(c.Request.Context(), "OAuthCallback", c.Request.Header)
		defer span.Finish()
		tracing.TagComponentRest(span)

		providerName := c.Param("provider")
		provider, ok := providers[providerName]
		if !ok {
			respondBadRequest(c, "unknown provider")
			return
		}

		code := c.Query("code")
		userID := c.Query("state")
		if code == "" || userID == "" {
			respondBadRequest(c, "code and state are required")
			return
		}
		tracing.TagUser(span, userID)

		token, err := provider.ExchangeCode(ctx, code)
		if err != nil {
			tracing.TraceErr(span, err)
			respondError(c, err)
			return
		}

		userInfo, err := provider.FetchUserInfo(ctx, token.AccessToken)
		if err != nil {
			tracing.TraceErr(span, err)
			respondError(c, err)
			return
		}
		if token.RefreshToken == "" {
			// Without a refresh token the account would break at first
			// expiry; force the user through consent again.
			err := errors.New("provider did not issue a refresh token")
			tracing.TraceErr(span, err)
			respondError(c, err)
			return
		}

		account := &models.MailAccount{
			UserID:       userID,
			Provider:     providerName,
			Email:        userInfo.Email,
			AccessToken:  token.AccessToken,
			RefreshToken: token.RefreshToken,
			ExpiresAt:    token.ExpiresAt,
			Scope:        token.Scope,
			IsActive:     true,
		}
		if _, err := accounts.Create(ctx, account); err != nil {
			tracing.TraceErr(span, err)
			respondError(c, err)
			return
		}

		respondOK(c, toAccountView(account))
	}
}

// RefreshProviderTokens refreshes every active account of the provider.
func RefreshProviderTokens(vault interfaces.TokenVault) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := tracing.StartHttpServerTracerSpanWithHeader(c.Request.Context(), "RefreshProviderTokens", c.Request.Header)
		defer span.Finish()
		tracing.TagComponentRest(span)

		summary, err := vault.RefreshAll(ctx, c.Param("provider"))
		if err != nil {
			tracing.TraceErr(span, err)
			respondError(c, err)
			return
		}
		respondOK(c, summary)
	}
}

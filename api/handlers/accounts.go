package handlers

import (
	"strconv"
	"time"

	"github.com/customeros/mailsherpa/mailvalidate"
	"github.com/gin-gonic/gin"

	"github.com/payradar/payradar/dto"
	"github.com/payradar/payradar/interfaces"
	"github.com/payradar/payradar/internal/models"
	"github.com/payradar/payradar/internal/tracing"
)

// accountView is the API shape of an account: token material never leaves
// the server.
type accountView struct {
	ID          string    `json:"id"`
	UserID      string    `json:"userId"`
	Provider    string    `json:"provider"`
	Email       string    `json:"email"`
	IsActive    bool      `json:"isActive"`
	NeedsReauth bool      `json:"needsReauth"`
	CreatedAt   time.Time `json:"createdAt"`
}

func toAccountView(account *models.MailAccount) accountView {
	return accountView{
		ID:          account.ID,
		UserID:      account.UserID,
		Provider:    account.Provider,
		Email:       account.Email,
		IsActive:    account.IsActive,
		NeedsReauth: account.NeedsReauth,
		CreatedAt:   account.CreatedAt,
	}
}

func ListAccounts(accounts interfaces.MailAccountRepository) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := tracing.StartHttpServerTracerSpanWithHeader(c.Request.Context(), "ListAccounts", c.Request.Header)
		defer span.Finish()
		tracing.TagComponentRest(span)

		userID := requestUserID(c)
		if userID == "" {
			respondBadRequest(c, "userId is required")
			return
		}
		tracing.TagUser(span, userID)

		list, err := accounts.ListByUser(ctx, userID)
		if err != nil {
			tracing.TraceErr(span, err)
			respondError(c, err)
			return
		}

		views := make([]accountView, 0, len(list))
		for _, account := range list {
			views = append(views, toAccountView(account))
		}
		respondOK(c, views)
	}
}

type createAccountRequest struct {
	UserID       string `json:"userId" binding:"required"`
	Email        string `json:"email" binding:"required"`
	ImapHost     string `json:"imapHost" binding:"required"`
	ImapPort     int    `json:"imapPort" binding:"required"`
	ImapUsername string `json:"imapUsername" binding:"required"`
	ImapPassword string `json:"imapPassword" binding:"required"`
}

// CreateAccount registers a password-authenticated IMAP account. OAuth
// accounts are created through the provider callback instead.
func CreateAccount(accounts interfaces.MailAccountRepository) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := tracing.StartHttpServerTracerSpanWithHeader(c.Request.Context(), "CreateAccount", c.Request.Header)
		defer span.Finish()
		tracing.TagComponentRest(span)

		var req createAccountRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			tracing.TraceErr(span, err)
			respondBadRequest(c, err.Error())
			return
		}
		tracing.TagUser(span, req.UserID)

		validation := mailvalidate.ValidateEmailSyntax(req.Email)
		if !validation.IsValid {
			respondBadRequest(c, "invalid email address")
			return
		}

		account := &models.MailAccount{
			UserID:       req.UserID,
			Provider:     "imap",
			Email:        validation.CleanEmail,
			ImapHost:     req.ImapHost,
			ImapPort:     req.ImapPort,
			ImapUsername: req.ImapUsername,
			ImapPassword: req.ImapPassword,
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

// SyncAccount triggers one sync pass for the account.
func SyncAccount(syncService interfaces.SyncService) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := tracing.StartHttpServerTracerSpanWithHeader(c.Request.Context(), "SyncAccount", c.Request.Header)
		defer span.Finish()
		tracing.TagComponentRest(span)

		accountID := c.Param("id")
		tracing.TagAccount(span, accountID)

		opts := dto.SyncOptions{}
		if raw := c.Query("maxResults"); raw != "" {
			maxResults, err := strconv.ParseInt(raw, 10, 64)
			if err != nil || maxResults < 1 {
				respondBadRequest(c, "maxResults must be a positive integer")
				return
			}
			opts.MaxResults = maxResults
		}

		result, err := syncService.SyncAccount(ctx, accountID, opts)
		if err != nil {
			tracing.TraceErr(span, err)
			respondError(c, err)
			return
		}
		respondOK(c, result)
	}
}

// AccountMessages lists synced messages for an account, newest first, with
// substring search over the search-text blob.
func AccountMessages(messages interfaces.MessageRepository) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := tracing.StartHttpServerTracerSpanWithHeader(c.Request.Context(), "AccountMessages", c.Request.Header)
		defer span.Finish()
		tracing.TagComponentRest(span)

		accountID := c.Param("id")
		tracing.TagAccount(span, accountID)

		filters := interfaces.MessageFilters{
			Search: c.Query("search"),
			Limit:  parseIntDefault(c.Query("limit"), 50),
			Offset: parseIntDefault(c.Query("offset"), 0),
		}
		if raw := c.Query("analyzed"); raw != "" {
			analyzed := raw == "true"
			filters.OnlyAnalyzed = &analyzed
		}

		list, total, err := messages.ListByAccount(ctx, accountID, filters)
		if err != nil {
			tracing.TraceErr(span, err)
			respondError(c, err)
			return
		}
		respondOK(c, gin.H{
			"messages": list,
			"total":    total,
		})
	}
}

func parseIntDefault(raw string, fallback int) int {
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return value
}

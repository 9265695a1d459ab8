package gmail

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	gmailapi "google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"

	"github.com/payradar/payradar/config"
	"github.com/payradar/payradar/dto"
	"github.com/payradar/payradar/interfaces"
	"github.com/payradar/payradar/internal/errs"
	"github.com/payradar/payradar/internal/logger"
	"github.com/payradar/payradar/internal/models"
	"github.com/payradar/payradar/internal/tracing"
)

const (
	ProviderName = "gmail"

	userInfoEndpoint = "https://www.googleapis.com/oauth2/v2/userinfo"
)

type gmailProvider struct {
	oauth      *oauth2.Config
	log        logger.Logger
	httpClient *http.Client
}

func NewGmailProvider(cfg *config.GoogleOAuthConfig, log logger.Logger) interfaces.MailProvider {
	return &gmailProvider{
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Endpoint:     google.Endpoint,
			Scopes: []string{
				gmailapi.GmailReadonlyScope,
				"https://www.googleapis.com/auth/userinfo.email",
			},
		},
		log:        log,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

func (g *gmailProvider) Name() string {
	return ProviderName
}

func (g *gmailProvider) SupportsOAuth() bool {
	return true
}

// AuthorizeURL always requests offline access with forced consent so a
// refresh token is issued even on repeat authorizations.
func (g *gmailProvider) AuthorizeURL(state string) string {
	return g.oauth.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce)
}

func (g *gmailProvider) ExchangeCode(ctx context.Context, code string) (*dto.ProviderToken, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "gmailProvider.ExchangeCode")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)

	token, err := g.oauth.Exchange(ctx, code)
	if err != nil {
		wrapped := &errs.ProviderError{Op: "exchange code", Err: err}
		tracing.TraceErr(span, wrapped)
		return nil, wrapped
	}
	return convertToken(token), nil
}

func (g *gmailProvider) Refresh(ctx context.Context, refreshToken string) (*dto.ProviderToken, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "gmailProvider.Refresh")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)

	source := g.oauth.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken})
	token, err := source.Token()
	if err != nil {
		wrapped := &errs.ProviderError{Op: "refresh token", Err: err}
		tracing.TraceErr(span, wrapped)
		return nil, wrapped
	}
	return convertToken(token), nil
}

func (g *gmailProvider) FetchUserInfo(ctx context.Context, accessToken string) (*dto.ProviderUserInfo, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "gmailProvider.FetchUserInfo")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, userInfoEndpoint, nil)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := g.httpClient.Do(req)
	if err != nil {
		wrapped := &errs.ProviderError{Op: "fetch user info", Err: err}
		tracing.TraceErr(span, wrapped)
		return nil, wrapped
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		wrapped := &errs.ProviderError{Op: "fetch user info", Err: errors.Errorf("unexpected status %d", resp.StatusCode)}
		tracing.TraceErr(span, wrapped)
		return nil, wrapped
	}

	var payload struct {
		Email string `json:"email"`
		Name  string `json:"name"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		wrapped := &errs.ProviderError{Op: "decode user info", Err: err}
		tracing.TraceErr(span, wrapped)
		return nil, wrapped
	}
	if payload.Email == "" {
		wrapped := &errs.ProviderError{Op: "fetch user info", Err: errors.New("response has no email")}
		tracing.TraceErr(span, wrapped)
		return nil, wrapped
	}
	return &dto.ProviderUserInfo{Email: payload.Email, Name: payload.Name}, nil
}

func (g *gmailProvider) ListMessageIDs(ctx context.Context, account *models.MailAccount, accessToken string, query dto.MessageQuery) (*dto.MessageIDPage, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "gmailProvider.ListMessageIDs")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	tracing.TagAccount(span, account.ID)

	svc, err := g.apiService(ctx, accessToken)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}

	call := svc.Users.Messages.List("me").Context(ctx)
	if q := buildQuery(query); q != "" {
		call = call.Q(q)
	}
	if query.MaxResults > 0 {
		call = call.MaxResults(query.MaxResults)
	}
	if query.PageToken != "" {
		call = call.PageToken(query.PageToken)
	}

	resp, err := call.Do()
	if err != nil {
		wrapped := &errs.ProviderError{Op: "list messages", Err: err}
		tracing.TraceErr(span, wrapped)
		return nil, wrapped
	}

	page := &dto.MessageIDPage{
		IDs:           make([]string, 0, len(resp.Messages)),
		NextPageToken: resp.NextPageToken,
	}
	for _, m := range resp.Messages {
		page.IDs = append(page.IDs, m.Id)
	}
	span.SetTag("result.count", len(page.IDs))
	return page, nil
}

func (g *gmailProvider) GetMessage(ctx context.Context, account *models.MailAccount, accessToken string, providerMessageID string) (*dto.ProviderMessage, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "gmailProvider.GetMessage")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	tracing.TagAccount(span, account.ID)
	span.SetTag("provider-message-id", providerMessageID)

	svc, err := g.apiService(ctx, accessToken)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}

	msg, err := svc.Users.Messages.Get("me", providerMessageID).Format("full").Context(ctx).Do()
	if err != nil {
		wrapped := &errs.ProviderError{Op: "get message " + providerMessageID, Err: err}
		tracing.TraceErr(span, wrapped)
		return nil, wrapped
	}

	return &dto.ProviderMessage{
		ID:           msg.Id,
		ThreadID:     msg.ThreadId,
		Labels:       msg.LabelIds,
		InternalDate: msg.InternalDate,
		SizeEstimate: msg.SizeEstimate,
		Payload:      convertPart(msg.Payload),
	}, nil
}

func (g *gmailProvider) GetAttachment(ctx context.Context, account *models.MailAccount, accessToken string, providerMessageID, attachmentID string) ([]byte, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "gmailProvider.GetAttachment")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	tracing.TagAccount(span, account.ID)
	span.SetTag("provider-message-id", providerMessageID)

	svc, err := g.apiService(ctx, accessToken)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}

	body, err := svc.Users.Messages.Attachments.Get("me", providerMessageID, attachmentID).Context(ctx).Do()
	if err != nil {
		wrapped := &errs.ProviderError{Op: "get attachment " + attachmentID, Err: err}
		tracing.TraceErr(span, wrapped)
		return nil, wrapped
	}

	data, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(body.Data, "="))
	if err != nil {
		wrapped := &errs.ProviderError{Op: "decode attachment " + attachmentID, Err: err}
		tracing.TraceErr(span, wrapped)
		return nil, wrapped
	}
	return data, nil
}

func (g *gmailProvider) apiService(ctx context.Context, accessToken string) (*gmailapi.Service, error) {
	source := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: accessToken})
	svc, err := gmailapi.NewService(ctx, option.WithTokenSource(source))
	if err != nil {
		return nil, &errs.ProviderError{Op: "build client", Err: err}
	}
	return svc, nil
}

// buildQuery renders the provider-agnostic query in Gmail search syntax.
func buildQuery(query dto.MessageQuery) string {
	parts := make([]string, 0, 2)
	if query.AfterUnix > 0 {
		parts = append(parts, fmt.Sprintf("after:%d", query.AfterUnix))
	}
	if query.Terms != "" {
		parts = append(parts, query.Terms)
	}
	return strings.Join(parts, " ")
}

func convertToken(token *oauth2.Token) *dto.ProviderToken {
	out := &dto.ProviderToken{
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
	}
	if !token.Expiry.IsZero() {
		out.ExpiresAt = token.Expiry.UnixMilli()
	}
	if scope, ok := token.Extra("scope").(string); ok {
		out.Scope = scope
	}
	return out
}

func convertPart(part *gmailapi.MessagePart) *dto.MessagePart {
	if part == nil {
		return nil
	}
	out := &dto.MessagePart{
		PartID:   part.PartId,
		MimeType: part.MimeType,
		Filename: part.Filename,
	}
	for _, h := range part.Headers {
		out.Headers = append(out.Headers, dto.MessageHeader{Name: h.Name, Value: h.Value})
	}
	if part.Body != nil {
		out.Body = &dto.MessagePartBody{
			AttachmentID: part.Body.AttachmentId,
			Size:         part.Body.Size,
			Data:         part.Body.Data,
		}
	}
	for _, child := range part.Parts {
		out.Parts = append(out.Parts, convertPart(child))
	}
	return out
}

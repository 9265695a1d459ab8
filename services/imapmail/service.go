package imapmail

import (
	"bytes"
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"sort"
	"strconv"
	"time"

	"context"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
	"github.com/jhillyerd/enmime"
	"github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"

	"github.com/payradar/payradar/dto"
	"github.com/payradar/payradar/interfaces"
	"github.com/payradar/payradar/internal/errs"
	"github.com/payradar/payradar/internal/logger"
	"github.com/payradar/payradar/internal/models"
	"github.com/payradar/payradar/internal/tracing"
)

const (
	ProviderName = "imap"

	dialTimeout  = 30 * time.Second
	loginTimeout = 30 * time.Second
)

// imapProvider serves password-authenticated mailboxes over IMAP. It
// normalizes fetched messages into the same part-tree shape the REST
// providers return, so everything downstream is provider-agnostic.
type imapProvider struct {
	log logger.Logger
}

func NewIMAPProvider(log logger.Logger) interfaces.MailProvider {
	return &imapProvider{log: log}
}

func (p *imapProvider) Name() string {
	return ProviderName
}

func (p *imapProvider) SupportsOAuth() bool {
	return false
}

func (p *imapProvider) AuthorizeURL(state string) string {
	return ""
}

func (p *imapProvider) ExchangeCode(ctx context.Context, code string) (*dto.ProviderToken, error) {
	return nil, errors.New("imap accounts do not use oauth")
}

func (p *imapProvider) Refresh(ctx context.Context, refreshToken string) (*dto.ProviderToken, error) {
	return nil, errors.New("imap accounts do not use oauth")
}

func (p *imapProvider) FetchUserInfo(ctx context.Context, accessToken string) (*dto.ProviderUserInfo, error) {
	return nil, errors.New("imap accounts do not use oauth")
}

func (p *imapProvider) ListMessageIDs(ctx context.Context, account *models.MailAccount, accessToken string, query dto.MessageQuery) (*dto.MessageIDPage, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "imapProvider.ListMessageIDs")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	tracing.TagAccount(span, account.ID)

	c, err := p.connect(ctx, account)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}
	defer p.disconnect(account.ID, c)

	if _, err := c.Select("INBOX", true); err != nil {
		wrapped := &errs.ProviderError{Op: "select inbox", Err: err}
		tracing.TraceErr(span, wrapped)
		return nil, wrapped
	}

	criteria := imap.NewSearchCriteria()
	if query.AfterUnix > 0 {
		// IMAP SINCE has day granularity; the existence filter downstream
		// absorbs the overlap.
		criteria.Since = time.Unix(query.AfterUnix, 0).UTC().Truncate(24 * time.Hour)
	}

	uids, err := c.UidSearch(criteria)
	if err != nil {
		wrapped := &errs.ProviderError{Op: "uid search", Err: err}
		tracing.TraceErr(span, wrapped)
		return nil, wrapped
	}

	sort.Slice(uids, func(i, j int) bool { return uids[i] > uids[j] })
	if query.MaxResults > 0 && int64(len(uids)) > query.MaxResults {
		uids = uids[:query.MaxResults]
	}

	page := &dto.MessageIDPage{IDs: make([]string, 0, len(uids))}
	for _, uid := range uids {
		page.IDs = append(page.IDs, strconv.FormatUint(uint64(uid), 10))
	}
	span.SetTag("result.count", len(page.IDs))
	return page, nil
}

func (p *imapProvider) GetMessage(ctx context.Context, account *models.MailAccount, accessToken string, providerMessageID string) (*dto.ProviderMessage, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "imapProvider.GetMessage")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	tracing.TagAccount(span, account.ID)
	span.SetTag("provider-message-id", providerMessageID)

	raw, internalDate, err := p.fetchRaw(ctx, account, providerMessageID)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}

	envelope, err := enmime.ReadEnvelope(bytes.NewReader(raw))
	if err != nil {
		wrapped := &errs.ProviderError{Op: "parse message " + providerMessageID, Err: err}
		tracing.TraceErr(span, wrapped)
		return nil, wrapped
	}

	return buildProviderMessage(providerMessageID, envelope, internalDate, int64(len(raw))), nil
}

func (p *imapProvider) GetAttachment(ctx context.Context, account *models.MailAccount, accessToken string, providerMessageID, attachmentID string) ([]byte, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "imapProvider.GetAttachment")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	tracing.TagAccount(span, account.ID)
	span.SetTag("provider-message-id", providerMessageID)

	raw, _, err := p.fetchRaw(ctx, account, providerMessageID)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}

	envelope, err := enmime.ReadEnvelope(bytes.NewReader(raw))
	if err != nil {
		wrapped := &errs.ProviderError{Op: "parse message " + providerMessageID, Err: err}
		tracing.TraceErr(span, wrapped)
		return nil, wrapped
	}

	for idx, att := range envelope.Attachments {
		if attachmentRef(idx) == attachmentID {
			return att.Content, nil
		}
	}
	for idx, inline := range envelope.Inlines {
		if inlineRef(idx) == attachmentID {
			return inline.Content, nil
		}
	}

	wrapped := &errs.ProviderError{Op: "get attachment " + attachmentID, Err: errs.ErrNotFound}
	tracing.TraceErr(span, wrapped)
	return nil, wrapped
}

// fetchRaw pulls one message body by UID.
func (p *imapProvider) fetchRaw(ctx context.Context, account *models.MailAccount, providerMessageID string) ([]byte, time.Time, error) {
	uid, err := strconv.ParseUint(providerMessageID, 10, 32)
	if err != nil {
		return nil, time.Time{}, &errs.ProviderError{Op: "parse uid " + providerMessageID, Err: err}
	}

	c, err := p.connect(ctx, account)
	if err != nil {
		return nil, time.Time{}, err
	}
	defer p.disconnect(account.ID, c)

	if _, err := c.Select("INBOX", true); err != nil {
		return nil, time.Time{}, &errs.ProviderError{Op: "select inbox", Err: err}
	}

	seqSet := new(imap.SeqSet)
	seqSet.AddNum(uint32(uid))

	section := &imap.BodySectionName{Peek: true}
	items := []imap.FetchItem{section.FetchItem(), imap.FetchInternalDate}

	messages := make(chan *imap.Message, 1)
	done := make(chan error, 1)
	go func() {
		done <- c.UidFetch(seqSet, items, messages)
	}()

	var raw []byte
	var internalDate time.Time
	for msg := range messages {
		internalDate = msg.InternalDate
		if body := msg.GetBody(section); body != nil {
			data, readErr := io.ReadAll(body)
			if readErr != nil {
				return nil, time.Time{}, &errs.ProviderError{Op: "read body", Err: readErr}
			}
			raw = data
		}
	}
	if err := <-done; err != nil {
		return nil, time.Time{}, &errs.ProviderError{Op: "uid fetch " + providerMessageID, Err: err}
	}
	if raw == nil {
		return nil, time.Time{}, &errs.ProviderError{Op: "uid fetch " + providerMessageID, Err: errs.ErrNotFound}
	}
	return raw, internalDate, nil
}

func (p *imapProvider) connect(ctx context.Context, account *models.MailAccount) (*client.Client, error) {
	span, _ := opentracing.StartSpanFromContext(ctx, "imapProvider.connect")
	defer span.Finish()
	span.SetTag("server", account.ImapHost)
	span.SetTag("port", account.ImapPort)

	if account.ImapHost == "" || account.ImapUsername == "" {
		err := errors.Errorf("account %s has no imap credentials", account.ID)
		tracing.TraceErr(span, err)
		return nil, err
	}

	serverAddr := fmt.Sprintf("%s:%d", account.ImapHost, account.ImapPort)
	dialer := &net.Dialer{
		Timeout:   dialTimeout,
		KeepAlive: dialTimeout,
	}

	tlsConfig := &tls.Config{ServerName: account.ImapHost}
	c, err := client.DialWithDialerTLS(dialer, serverAddr, tlsConfig)
	if err != nil {
		wrapped := &errs.ProviderError{Op: "connect " + serverAddr, Err: err}
		tracing.TraceErr(span, wrapped)
		return nil, wrapped
	}

	c.Timeout = loginTimeout
	if err := c.Login(account.ImapUsername, account.ImapPassword); err != nil {
		c.Logout()
		wrapped := &errs.ProviderError{Op: "login " + account.ImapUsername, Err: err}
		tracing.TraceErr(span, wrapped)
		return nil, wrapped
	}
	c.Timeout = 0

	return c, nil
}

func (p *imapProvider) disconnect(accountID string, c *client.Client) {
	if c == nil {
		return
	}
	done := make(chan error, 1)
	go func() {
		done <- c.Logout()
	}()
	select {
	case err := <-done:
		if err != nil {
			p.log.Warnf("IMAP logout failed for account %s: %v", accountID, err)
		}
	case <-time.After(5 * time.Second):
		p.log.Warnf("IMAP logout timed out for account %s", accountID)
	}
}

func attachmentRef(idx int) string {
	return fmt.Sprintf("att-%d", idx)
}

func inlineRef(idx int) string {
	return fmt.Sprintf("inl-%d", idx)
}

package sync

import (
	"context"
	"strings"
	"time"

	"github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"

	"github.com/payradar/payradar/config"
	"github.com/payradar/payradar/dto"
	"github.com/payradar/payradar/interfaces"
	"github.com/payradar/payradar/internal/errs"
	"github.com/payradar/payradar/internal/logger"
	"github.com/payradar/payradar/internal/models"
	"github.com/payradar/payradar/internal/tracing"
	"github.com/payradar/payradar/internal/utils"
	"github.com/payradar/payradar/services/parser"
)

// resumeSlackSeconds is added to the last message's receive time when
// building the incremental query. The provider's after: filter is
// inclusive at second granularity; without the slack the newest stored
// message reappears in every run.
const resumeSlackSeconds = 2

type syncService struct {
	accounts    interfaces.MailAccountRepository
	messages    interfaces.MessageRepository
	attachments interfaces.AttachmentRepository
	providers   map[string]interfaces.MailProvider
	vault       interfaces.TokenVault
	events      interfaces.EventPublisher
	cfg         *config.SyncConfig
	log         logger.Logger
	now         func() time.Time
}

func NewSyncService(
	accounts interfaces.MailAccountRepository,
	messages interfaces.MessageRepository,
	attachments interfaces.AttachmentRepository,
	providers map[string]interfaces.MailProvider,
	vault interfaces.TokenVault,
	events interfaces.EventPublisher,
	cfg *config.SyncConfig,
	log logger.Logger,
) interfaces.SyncService {
	return &syncService{
		accounts:    accounts,
		messages:    messages,
		attachments: attachments,
		providers:   providers,
		vault:       vault,
		events:      events,
		cfg:         cfg,
		log:         log,
		now:         time.Now,
	}
}

// SyncAccount pulls new messages for one account. The first sync reaches
// back the configured lookback window and walks every page; later syncs
// resume from the newest stored message in a single page. Re-running is
// idempotent: already-persisted provider ids are skipped, never rewritten.
func (s *syncService) SyncAccount(ctx context.Context, accountID string, opts dto.SyncOptions) (*dto.SyncResult, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "syncService.SyncAccount")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	tracing.TagAccount(span, accountID)

	account, err := s.accounts.GetByID(ctx, accountID)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}
	if account == nil {
		err := errors.Wrapf(errs.ErrNotFound, "account %s", accountID)
		tracing.TraceErr(span, err)
		return nil, err
	}
	if !account.IsActive {
		err := errors.Errorf("account %s is not active", accountID)
		tracing.TraceErr(span, err)
		return nil, err
	}

	provider, ok := s.providers[account.Provider]
	if !ok {
		err := errors.Errorf("unknown provider: %s", account.Provider)
		tracing.TraceErr(span, err)
		return nil, err
	}

	accessToken, err := s.vault.GetValidAccessToken(ctx, account)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}

	latest, err := s.messages.GetLatestByAccount(ctx, accountID)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}

	result := &dto.SyncResult{AccountID: accountID}
	if latest == nil {
		span.SetTag("sync.mode", "first")
		err = s.firstSync(ctx, provider, account, accessToken, opts, result)
	} else {
		span.SetTag("sync.mode", "incremental")
		err = s.incrementalSync(ctx, provider, account, accessToken, latest, opts, result)
	}
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}

	span.SetTag("synced", result.Synced)
	span.SetTag("skipped", result.Skipped)
	s.log.Infof("Synced account %s: %d new, %d skipped", accountID, result.Synced, result.Skipped)
	return result, nil
}

// firstSync walks every page of the lookback window.
func (s *syncService) firstSync(ctx context.Context, provider interfaces.MailProvider, account *models.MailAccount, accessToken string, opts dto.SyncOptions, result *dto.SyncResult) error {
	lookback := s.now().UTC().AddDate(0, -s.cfg.FirstSyncLookbackMonths, 0)
	query := dto.MessageQuery{
		AfterUnix:  lookback.Unix(),
		MaxResults: s.cfg.FirstSyncPageSize,
	}
	if opts.MaxResults > 0 {
		query.MaxResults = opts.MaxResults
	}

	for {
		page, err := provider.ListMessageIDs(ctx, account, accessToken, query)
		if err != nil {
			return err
		}
		if err := s.ingestIDs(ctx, provider, account, accessToken, page.IDs, result); err != nil {
			return err
		}
		if page.NextPageToken == "" {
			return nil
		}
		query.PageToken = page.NextPageToken
	}
}

// incrementalSync fetches one page starting just after the newest stored
// message.
func (s *syncService) incrementalSync(ctx context.Context, provider interfaces.MailProvider, account *models.MailAccount, accessToken string, latest *models.Message, opts dto.SyncOptions, result *dto.SyncResult) error {
	query := dto.MessageQuery{
		AfterUnix:  latest.ReceivedAt.UnixMilli()/1000 + resumeSlackSeconds,
		MaxResults: s.cfg.IncrementalPageSize,
	}
	if opts.MaxResults > 0 {
		query.MaxResults = opts.MaxResults
	}

	page, err := provider.ListMessageIDs(ctx, account, accessToken, query)
	if err != nil {
		return err
	}
	return s.ingestIDs(ctx, provider, account, accessToken, page.IDs, result)
}

// ingestIDs persists the new subset of the listed ids. One message's
// failure is logged and skipped; the rest of the batch proceeds.
func (s *syncService) ingestIDs(ctx context.Context, provider interfaces.MailProvider, account *models.MailAccount, accessToken string, providerIDs []string, result *dto.SyncResult) error {
	if len(providerIDs) == 0 {
		return nil
	}

	existing, err := s.messages.FilterExistingProviderIDs(ctx, account.ID, providerIDs)
	if err != nil {
		return err
	}

	for _, providerID := range providerIDs {
		if existing[providerID] {
			result.Skipped++
			continue
		}
		if err := s.ingestMessage(ctx, provider, account, accessToken, providerID); err != nil {
			s.log.Warnf("Failed to ingest message %s for account %s: %v", providerID, account.ID, err)
			continue
		}
		result.Synced++
	}
	return nil
}

func (s *syncService) ingestMessage(ctx context.Context, provider interfaces.MailProvider, account *models.MailAccount, accessToken string, providerID string) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "syncService.ingestMessage")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	tracing.TagAccount(span, account.ID)
	span.SetTag("provider-message-id", providerID)

	raw, err := provider.GetMessage(ctx, account, accessToken, providerID)
	if err != nil {
		tracing.TraceErr(span, err)
		return err
	}

	parsed, err := parser.Parse(raw)
	if err != nil {
		tracing.TraceErr(span, err)
		return err
	}

	message := buildMessage(account.ID, raw, parsed)
	messageID, err := s.messages.Create(ctx, message)
	if err != nil {
		tracing.TraceErr(span, err)
		return err
	}

	s.storeAttachments(ctx, provider, account, accessToken, providerID, messageID, parsed.Attachments)

	if s.events != nil {
		if err := s.events.PublishMessageReceived(ctx, dto.MessageReceived{
			MessageID:  messageID,
			AccountID:  account.ID,
			UserID:     account.UserID,
			ReceivedAt: raw.InternalDate,
		}); err != nil {
			s.log.Warnf("Failed to publish message.received for %s: %v", messageID, err)
		}
	}
	return nil
}

// storeAttachments persists attachment rows, fetching payloads the
// provider only referenced. Attachment failures never fail the message.
func (s *syncService) storeAttachments(ctx context.Context, provider interfaces.MailProvider, account *models.MailAccount, accessToken string, providerMessageID, messageID string, attachments []parser.ParsedAttachment) {
	for _, a := range attachments {
		payload := a.Data
		if payload == nil && a.ProviderAttachmentID != "" && !strings.HasPrefix(a.ProviderAttachmentID, "part-") {
			fetched, err := provider.GetAttachment(ctx, account, accessToken, providerMessageID, a.ProviderAttachmentID)
			if err != nil {
				s.log.Warnf("Failed to fetch attachment %s of message %s: %v", a.ProviderAttachmentID, messageID, err)
			} else {
				payload = fetched
			}
		}

		size := a.Size
		if size == 0 {
			size = len(payload)
		}
		attachment := &models.Attachment{
			MessageID:            messageID,
			ProviderAttachmentID: a.ProviderAttachmentID,
			Filename:             a.Filename,
			ContentType:          a.ContentType,
			ContentID:            a.ContentID,
			Size:                 size,
			IsInline:             a.IsInline,
			Payload:              payload,
		}
		if _, err := s.attachments.Create(ctx, attachment); err != nil {
			s.log.Warnf("Failed to persist attachment for message %s: %v", messageID, err)
		}
	}
}

func buildMessage(accountID string, raw *dto.ProviderMessage, parsed *parser.ParsedMessage) *models.Message {
	return &models.Message{
		AccountID:         accountID,
		ProviderMessageID: raw.ID,
		ThreadID:          raw.ThreadID,
		Subject:           parsed.Subject,
		FromAddress:       parsed.EffectiveFrom,
		ToAddresses:       parsed.To,
		CcAddresses:       parsed.Cc,
		BodyText:          parsed.BodyText,
		BodyHTML:          parsed.BodyHTML,
		SearchText:        parsed.SearchText,
		Labels:            raw.Labels,
		ReceivedAt:        time.UnixMilli(raw.InternalDate).UTC(),
		IsRead:            !utils.IsStringInSlice("UNREAD", raw.Labels),
		HasAttachment:     len(parsed.Attachments) > 0,
		HasInlineImages:   parsed.HasInlineImages,
	}
}

// SyncAllAccounts runs every active account of every registered provider.
// Accounts flagged for reauthorization are skipped; one account's failure
// does not abort the sweep.
func (s *syncService) SyncAllAccounts(ctx context.Context) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "syncService.SyncAllAccounts")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)

	for providerName := range s.providers {
		accounts, err := s.accounts.ListActiveByProvider(ctx, providerName)
		if err != nil {
			tracing.TraceErr(span, err)
			return err
		}
		for _, account := range accounts {
			if account.NeedsReauth {
				s.log.Debugf("Skipping account %s: reauthorization required", account.ID)
				continue
			}
			if _, err := s.SyncAccount(ctx, account.ID, dto.SyncOptions{}); err != nil {
				s.log.Errorf("Sync failed for account %s: %v", account.ID, err)
			}
		}
	}
	return nil
}

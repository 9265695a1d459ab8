package analysis

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

type analysisService struct {
	messages   interfaces.MessageRepository
	records    interfaces.AnalysisRecordRepository
	accounts   interfaces.MailAccountRepository
	classifier interfaces.ClassifierService
	collector  interfaces.CollectorService
	events     interfaces.EventPublisher
	log        logger.Logger
}

func NewAnalysisService(
	messages interfaces.MessageRepository,
	records interfaces.AnalysisRecordRepository,
	accounts interfaces.MailAccountRepository,
	classifier interfaces.ClassifierService,
	collector interfaces.CollectorService,
	events interfaces.EventPublisher,
	log logger.Logger,
) interfaces.AnalysisService {
	return &analysisService{
		messages:   messages,
		records:    records,
		accounts:   accounts,
		classifier: classifier,
		collector:  collector,
		events:     events,
		log:        log,
	}
}

// Analyze runs one message through the classifier and persists the
// structured record. Idempotent: an already-analyzed message returns its
// existing record untouched unless force is set, in which case the prior
// record is deleted and the message is re-classified. A classifier failure
// leaves no partial state; the message stays eligible for a later attempt.
func (s *analysisService) Analyze(ctx context.Context, messageID string, force bool) (*models.AnalysisRecord, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "analysisService.Analyze")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	tracing.TagEntity(span, messageID)
	span.SetTag("force", force)

	message, err := s.messages.GetByID(ctx, messageID)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}
	if message == nil {
		err := errors.Wrapf(errs.ErrNotFound, "message %s", messageID)
		tracing.TraceErr(span, err)
		return nil, err
	}

	existing, err := s.records.GetByMessageID(ctx, messageID)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}
	if existing != nil {
		if !force {
			span.SetTag("already-analyzed", true)
			return existing, nil
		}
		if err := s.records.DeleteByMessageID(ctx, messageID); err != nil {
			tracing.TraceErr(span, err)
			return nil, err
		}
	}

	account, err := s.accounts.GetByID(ctx, message.AccountID)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}
	if account == nil {
		err := errors.Wrapf(errs.ErrNotFound, "account %s", message.AccountID)
		tracing.TraceErr(span, err)
		return nil, err
	}

	// Evidence collection is best-effort; classification proceeds on the
	// text alone when it fails.
	files, err := s.collector.Collect(ctx, message)
	if err != nil {
		s.log.Warnf("Evidence collection failed for message %s: %v", messageID, err)
		files = nil
	}

	response, err := s.classifier.Classify(ctx, dto.ClassifyRequest{
		Sender:   message.FromAddress,
		Subject:  message.Subject,
		BodyText: message.BodyText,
		BodyHTML: message.BodyHTML,
		Files:    files,
	})
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}

	record := s.buildRecord(message, account.UserID, response)
	if _, err := s.records.Create(ctx, record); err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}

	if err := s.messages.MarkAnalyzed(ctx, message.ID, time.Now().UTC()); err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}

	if s.events != nil {
		if err := s.events.PublishRecordCreated(ctx, dto.RecordCreated{
			RecordID:  record.ID,
			MessageID: message.ID,
			UserID:    account.UserID,
			IsPayment: record.IsPayment,
		}); err != nil {
			s.log.Warnf("Failed to publish record.created for %s: %v", record.ID, err)
		}
	}

	span.SetTag("is-payment", record.IsPayment)
	return record, nil
}

// buildRecord maps the classifier verdict onto a persistable record. A
// missing or unparseable payment date falls back to the message's
// received-at timestamp.
func (s *analysisService) buildRecord(message *models.Message, userID string, response *dto.ClassifyResponse) *models.AnalysisRecord {
	payment := response.Payment
	record := &models.AnalysisRecord{
		MessageID:   message.ID,
		UserID:      userID,
		IsPayment:   payment.IsPayment,
		Amount:      payment.Amount,
		Currency:    payment.Currency,
		Merchant:    payment.Merchant,
		CardType:    payment.CardType,
		PaymentType: payment.PaymentType,
		Category:    payment.Category,
		Summary:     payment.Summary,
		RawResponse: models.JSONMap(response.Raw),
	}

	if payment.PaymentDate != "" {
		if parsed, err := time.Parse("2006-01-02", payment.PaymentDate); err == nil {
			record.PaymentDate = &parsed
		}
	}
	if record.PaymentDate == nil && payment.IsPayment {
		receivedAt := message.ReceivedAt
		record.PaymentDate = &receivedAt
	}
	return record
}

// AnalyzeBatch classifies up to limit unanalyzed messages for the user,
// oldest first. One message's failure is tallied, not propagated.
func (s *analysisService) AnalyzeBatch(ctx context.Context, userID string, limit int, force bool) (*dto.BatchAnalysisResult, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "analysisService.AnalyzeBatch")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	tracing.TagUser(span, userID)
	span.SetTag("limit", limit)

	messages, err := s.messages.ListUnanalyzed(ctx, userID, limit)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}

	result := &dto.BatchAnalysisResult{}
	for _, message := range messages {
		record, err := s.Analyze(ctx, message.ID, force)
		if err != nil {
			s.log.Warnf("Analysis failed for message %s: %v", message.ID, err)
			result.Failed++
			continue
		}
		result.Processed++
		if record.IsPayment {
			result.Payments++
		}
	}

	span.SetTag("processed", result.Processed)
	span.SetTag("failed", result.Failed)
	return result, nil
}

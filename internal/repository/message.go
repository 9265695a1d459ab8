package repository

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/opentracing/opentracing-go"
	"gorm.io/gorm"

	"github.com/payradar/payradar/interfaces"
	"github.com/payradar/payradar/internal/models"
	"github.com/payradar/payradar/internal/tracing"
	"github.com/payradar/payradar/internal/utils"
)

const existenceLookupBatchSize = 200

type messageRepository struct {
	db *gorm.DB
}

func NewMessageRepository(db *gorm.DB) interfaces.MessageRepository {
	return &messageRepository{db: db}
}

func (r *messageRepository) Create(ctx context.Context, message *models.Message) (string, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "messageRepository.Create")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	if message == nil {
		return "", nil
	}

	// Re-sync must never insert a duplicate (account, provider message id).
	existing := &models.Message{}
	err := r.db.WithContext(ctx).
		Where("account_id = ? AND provider_message_id = ?", message.AccountID, message.ProviderMessageID).
		First(existing).Error
	if err == nil {
		span.SetTag("duplicate", true)
		return existing.ID, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		tracing.TraceErr(span, err)
		return "", err
	}

	result := r.db.WithContext(ctx).Create(message)
	if result.Error != nil {
		tracing.TraceErr(span, result.Error)
		return "", result.Error
	}

	return message.ID, nil
}

func (r *messageRepository) GetByID(ctx context.Context, id string) (*models.Message, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "messageRepository.GetByID")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	var message models.Message
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&message).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		tracing.TraceErr(span, err)
		return nil, err
	}
	return &message, nil
}

func (r *messageRepository) GetLatestByAccount(ctx context.Context, accountID string) (*models.Message, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "messageRepository.GetLatestByAccount")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)
	tracing.TagAccount(span, accountID)

	var message models.Message
	err := r.db.WithContext(ctx).
		Where("account_id = ?", accountID).
		Order("received_at DESC").
		First(&message).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		tracing.TraceErr(span, err)
		return nil, err
	}
	return &message, nil
}

// FilterExistingProviderIDs batches the lookup so a first sync over
// thousands of ids does not build one enormous IN clause.
func (r *messageRepository) FilterExistingProviderIDs(ctx context.Context, accountID string, providerIDs []string) (map[string]bool, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "messageRepository.FilterExistingProviderIDs")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)
	tracing.TagAccount(span, accountID)
	span.SetTag("candidates", len(providerIDs))

	existing := make(map[string]bool, len(providerIDs))
	for start := 0; start < len(providerIDs); start += existenceLookupBatchSize {
		end := start + existenceLookupBatchSize
		if end > len(providerIDs) {
			end = len(providerIDs)
		}

		var found []string
		err := r.db.WithContext(ctx).
			Model(&models.Message{}).
			Where("account_id = ? AND provider_message_id IN ?", accountID, providerIDs[start:end]).
			Pluck("provider_message_id", &found).Error
		if err != nil {
			tracing.TraceErr(span, err)
			return nil, err
		}
		for _, id := range found {
			existing[id] = true
		}
	}

	span.SetTag("existing", len(existing))
	return existing, nil
}

func (r *messageRepository) ListByAccount(ctx context.Context, accountID string, filters interfaces.MessageFilters) ([]*models.Message, int64, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "messageRepository.ListByAccount")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)
	tracing.TagAccount(span, accountID)

	query := r.db.WithContext(ctx).Model(&models.Message{}).Where("account_id = ?", accountID)

	if filters.Search != "" {
		query = query.Where("search_text LIKE ?", "%"+strings.ToLower(filters.Search)+"%")
	}
	if filters.OnlyAnalyzed != nil {
		if *filters.OnlyAnalyzed {
			query = query.Where("analyzed_at IS NOT NULL")
		} else {
			query = query.Where("analyzed_at IS NULL")
		}
	}
	if filters.ReceivedAfter != nil {
		query = query.Where("received_at > ?", *filters.ReceivedAfter)
	}

	var count int64
	if err := query.Count(&count).Error; err != nil {
		tracing.TraceErr(span, err)
		return nil, 0, err
	}

	limit := filters.Limit
	if limit <= 0 {
		limit = 50
	}

	var messages []*models.Message
	if err := query.
		Order("received_at DESC").
		Limit(limit).
		Offset(filters.Offset).
		Find(&messages).Error; err != nil {
		tracing.TraceErr(span, err)
		return nil, 0, err
	}

	return messages, count, nil
}

func (r *messageRepository) ListUnanalyzed(ctx context.Context, userID string, limit int) ([]*models.Message, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "messageRepository.ListUnanalyzed")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	if limit <= 0 {
		limit = 50
	}

	query := r.db.WithContext(ctx).
		Joins("JOIN mail_accounts ON mail_accounts.id = messages.account_id").
		Where("messages.analyzed_at IS NULL")
	if userID != "" {
		query = query.Where("mail_accounts.user_id = ?", userID)
	}

	var messages []*models.Message
	err := query.
		Order("messages.received_at ASC").
		Limit(limit).
		Find(&messages).Error
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}
	return messages, nil
}

func (r *messageRepository) MarkAnalyzed(ctx context.Context, id string, at time.Time) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "messageRepository.MarkAnalyzed")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)
	tracing.TagEntity(span, id)

	err := r.db.WithContext(ctx).
		Model(&models.Message{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"analyzed_at": at,
			"updated_at":  utils.Now(),
		}).Error
	if err != nil {
		tracing.TraceErr(span, err)
	}
	return err
}

func (r *messageRepository) Delete(ctx context.Context, id string) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "messageRepository.Delete")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)
	tracing.TagEntity(span, id)

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("message_id = ?", id).Delete(&models.Attachment{}).Error; err != nil {
			tracing.TraceErr(span, err)
			return err
		}
		if err := tx.Where("message_id = ?", id).Delete(&models.AnalysisRecord{}).Error; err != nil {
			tracing.TraceErr(span, err)
			return err
		}
		if err := tx.Where("id = ?", id).Delete(&models.Message{}).Error; err != nil {
			tracing.TraceErr(span, err)
			return err
		}
		return nil
	})
}

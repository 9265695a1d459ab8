package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/opentracing/opentracing-go"
	"gorm.io/gorm"

	"github.com/payradar/payradar/interfaces"
	"github.com/payradar/payradar/internal/errs"
	"github.com/payradar/payradar/internal/models"
	"github.com/payradar/payradar/internal/tracing"
)

type attachmentRepository struct {
	db      *gorm.DB
	storage interfaces.StorageService
}

// NewAttachmentRepository builds the attachment repository. storage may be
// nil; payloads then live only in Postgres.
func NewAttachmentRepository(db *gorm.DB, storage interfaces.StorageService) interfaces.AttachmentRepository {
	return &attachmentRepository{db: db, storage: storage}
}

func (r *attachmentRepository) Create(ctx context.Context, attachment *models.Attachment) (string, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "attachmentRepository.Create")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	if attachment == nil {
		return "", nil
	}

	existing := &models.Attachment{}
	err := r.db.WithContext(ctx).
		Where("message_id = ? AND provider_attachment_id = ?", attachment.MessageID, attachment.ProviderAttachmentID).
		First(existing).Error
	if err == nil {
		span.SetTag("duplicate", true)
		return existing.ID, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		tracing.TraceErr(span, err)
		return "", err
	}

	if result := r.db.WithContext(ctx).Create(attachment); result.Error != nil {
		tracing.TraceErr(span, result.Error)
		return "", result.Error
	}

	// Offload to object storage after the row exists; failure here is not
	// fatal, the payload stays in Postgres.
	if r.storage != nil && len(attachment.Payload) > 0 {
		key := fmt.Sprintf("%s/%s", attachment.MessageID, attachment.ID)
		if uploadErr := r.storage.Upload(ctx, key, attachment.Payload, attachment.ContentType); uploadErr != nil {
			tracing.TraceErr(span, uploadErr)
		} else {
			updateErr := r.db.WithContext(ctx).
				Model(&models.Attachment{}).
				Where("id = ?", attachment.ID).
				Update("storage_key", key).Error
			if updateErr != nil {
				tracing.TraceErr(span, updateErr)
			}
		}
	}

	return attachment.ID, nil
}

func (r *attachmentRepository) GetByID(ctx context.Context, id string) (*models.Attachment, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "attachmentRepository.GetByID")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	var attachment models.Attachment
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&attachment).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		tracing.TraceErr(span, err)
		return nil, err
	}
	return &attachment, nil
}

func (r *attachmentRepository) ListByMessage(ctx context.Context, messageID string) ([]*models.Attachment, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "attachmentRepository.ListByMessage")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)
	tracing.TagEntity(span, messageID)

	var attachments []*models.Attachment
	if err := r.db.WithContext(ctx).
		Where("message_id = ?", messageID).
		Order("created_at ASC").
		Find(&attachments).Error; err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}
	return attachments, nil
}

func (r *attachmentRepository) GetPayload(ctx context.Context, id string) ([]byte, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "attachmentRepository.GetPayload")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)
	tracing.TagEntity(span, id)

	attachment, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if attachment == nil {
		return nil, errs.ErrNotFound
	}

	if len(attachment.Payload) > 0 {
		return attachment.Payload, nil
	}

	if r.storage != nil && attachment.StorageKey != "" {
		data, err := r.storage.Download(ctx, attachment.StorageKey)
		if err != nil {
			tracing.TraceErr(span, err)
			return nil, err
		}
		return data, nil
	}

	return nil, errs.ErrNotFound
}

package repository

import (
	"context"
	"errors"

	"github.com/opentracing/opentracing-go"
	"gorm.io/gorm"

	"github.com/payradar/payradar/dto"
	"github.com/payradar/payradar/interfaces"
	"github.com/payradar/payradar/internal/models"
	"github.com/payradar/payradar/internal/tracing"
	"github.com/payradar/payradar/internal/utils"
)

type analysisRecordRepository struct {
	db *gorm.DB
}

func NewAnalysisRecordRepository(db *gorm.DB) interfaces.AnalysisRecordRepository {
	return &analysisRecordRepository{db: db}
}

func (r *analysisRecordRepository) Create(ctx context.Context, record *models.AnalysisRecord) (string, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "analysisRecordRepository.Create")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	if record == nil {
		return "", nil
	}

	if result := r.db.WithContext(ctx).Create(record); result.Error != nil {
		tracing.TraceErr(span, result.Error)
		return "", result.Error
	}
	return record.ID, nil
}

func (r *analysisRecordRepository) GetByID(ctx context.Context, id string) (*models.AnalysisRecord, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "analysisRecordRepository.GetByID")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	var record models.AnalysisRecord
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&record).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		tracing.TraceErr(span, err)
		return nil, err
	}
	return &record, nil
}

func (r *analysisRecordRepository) GetByMessageID(ctx context.Context, messageID string) (*models.AnalysisRecord, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "analysisRecordRepository.GetByMessageID")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)
	tracing.TagEntity(span, messageID)

	var record models.AnalysisRecord
	if err := r.db.WithContext(ctx).Where("message_id = ?", messageID).First(&record).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		tracing.TraceErr(span, err)
		return nil, err
	}
	return &record, nil
}

func (r *analysisRecordRepository) DeleteByMessageID(ctx context.Context, messageID string) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "analysisRecordRepository.DeleteByMessageID")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)
	tracing.TagEntity(span, messageID)

	err := r.db.WithContext(ctx).
		Where("message_id = ?", messageID).
		Delete(&models.AnalysisRecord{}).Error
	if err != nil {
		tracing.TraceErr(span, err)
	}
	return err
}

func (r *analysisRecordRepository) ListByUser(ctx context.Context, userID string, filters interfaces.RecordFilters) ([]*models.AnalysisRecord, int64, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "analysisRecordRepository.ListByUser")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	query := r.db.WithContext(ctx).Model(&models.AnalysisRecord{}).Where("user_id = ?", userID)

	if filters.OnlyPayments {
		query = query.Where("is_payment = ?", true)
	}
	if filters.ExcludeDupes {
		query = query.Where("is_duplicate = ?", false)
	}
	if filters.Merchant != "" {
		query = query.Where("merchant ILIKE ?", "%"+filters.Merchant+"%")
	}
	if filters.From != nil {
		query = query.Where("payment_date >= ?", *filters.From)
	}
	if filters.To != nil {
		query = query.Where("payment_date < ?", *filters.To)
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

	var records []*models.AnalysisRecord
	if err := query.
		Order("payment_date DESC NULLS LAST, created_at DESC").
		Limit(limit).
		Offset(filters.Offset).
		Find(&records).Error; err != nil {
		tracing.TraceErr(span, err)
		return nil, 0, err
	}

	return records, count, nil
}

func (r *analysisRecordRepository) ListPaymentsForDedup(ctx context.Context, userID string) ([]*models.AnalysisRecord, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "analysisRecordRepository.ListPaymentsForDedup")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	var records []*models.AnalysisRecord
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND is_payment = ? AND is_duplicate = ?", userID, true, false).
		Order("payment_date ASC NULLS LAST, created_at ASC").
		Find(&records).Error
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}
	return records, nil
}

func (r *analysisRecordRepository) MarkDuplicate(ctx context.Context, id string, primaryID string) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "analysisRecordRepository.MarkDuplicate")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)
	tracing.TagEntity(span, id)

	err := r.db.WithContext(ctx).
		Model(&models.AnalysisRecord{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"is_duplicate":      true,
			"primary_report_id": primaryID,
			"updated_at":        utils.Now(),
		}).Error
	if err != nil {
		tracing.TraceErr(span, err)
	}
	return err
}

func (r *analysisRecordRepository) ResetDuplicates(ctx context.Context, userID string) (int64, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "analysisRecordRepository.ResetDuplicates")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	result := r.db.WithContext(ctx).
		Model(&models.AnalysisRecord{}).
		Where("user_id = ? AND is_duplicate = ?", userID, true).
		Updates(map[string]interface{}{
			"is_duplicate":      false,
			"primary_report_id": nil,
			"updated_at":        utils.Now(),
		})
	if result.Error != nil {
		tracing.TraceErr(span, result.Error)
		return 0, result.Error
	}
	return result.RowsAffected, nil
}

func (r *analysisRecordRepository) MonthlyStats(ctx context.Context, userID string, months int) ([]dto.MonthlyStat, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "analysisRecordRepository.MonthlyStats")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	if months <= 0 {
		months = 12
	}

	var stats []dto.MonthlyStat
	err := r.db.WithContext(ctx).
		Model(&models.AnalysisRecord{}).
		Select("to_char(payment_date, 'YYYY-MM') AS month, currency, COALESCE(SUM(amount), 0) AS total, COUNT(*) AS count").
		Where("user_id = ? AND is_payment = ? AND is_duplicate = ? AND payment_date IS NOT NULL", userID, true, false).
		Where("payment_date >= date_trunc('month', now()) - (? || ' months')::interval", months).
		Group("month, currency").
		Order("month DESC").
		Scan(&stats).Error
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}
	return stats, nil
}

func (r *analysisRecordRepository) DailyStats(ctx context.Context, userID string, days int) ([]dto.DailyStat, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "analysisRecordRepository.DailyStats")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	if days <= 0 {
		days = 30
	}

	var stats []dto.DailyStat
	err := r.db.WithContext(ctx).
		Model(&models.AnalysisRecord{}).
		Select("to_char(payment_date, 'YYYY-MM-DD') AS day, currency, COALESCE(SUM(amount), 0) AS total, COUNT(*) AS count").
		Where("user_id = ? AND is_payment = ? AND is_duplicate = ? AND payment_date IS NOT NULL", userID, true, false).
		Where("payment_date >= now() - (? || ' days')::interval", days).
		Group("day, currency").
		Order("day DESC").
		Scan(&stats).Error
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}
	return stats, nil
}

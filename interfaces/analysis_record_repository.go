package interfaces

import (
	"context"
	"time"

	"github.com/payradar/payradar/dto"
	"github.com/payradar/payradar/internal/models"
)

type RecordFilters struct {
	OnlyPayments bool
	ExcludeDupes bool
	Merchant     string
	From         *time.Time
	To           *time.Time
	Limit        int
	Offset       int
}

type AnalysisRecordRepository interface {
	Create(ctx context.Context, record *models.AnalysisRecord) (string, error)
	GetByID(ctx context.Context, id string) (*models.AnalysisRecord, error)
	GetByMessageID(ctx context.Context, messageID string) (*models.AnalysisRecord, error)
	DeleteByMessageID(ctx context.Context, messageID string) error
	ListByUser(ctx context.Context, userID string, filters RecordFilters) ([]*models.AnalysisRecord, int64, error)
	// ListPaymentsForDedup returns non-duplicate payment records for the
	// user ordered by (payment_date, created_at).
	ListPaymentsForDedup(ctx context.Context, userID string) ([]*models.AnalysisRecord, error)
	MarkDuplicate(ctx context.Context, id string, primaryID string) error
	ResetDuplicates(ctx context.Context, userID string) (int64, error)
	MonthlyStats(ctx context.Context, userID string, months int) ([]dto.MonthlyStat, error)
	DailyStats(ctx context.Context, userID string, days int) ([]dto.DailyStat, error)
}
